package chunker

import (
	"fmt"
	"regexp"
	"strings"
)

// rowStartMarker is emitted by the document loader in front of every
// tabular row it extracts.
const rowStartMarker = "[ROW_START]"

// rowSplitPattern is the fallback row boundary when markers are absent:
// a line that starts a new numbered finding.
var rowSplitPattern = regexp.MustCompile(`(?m)^\s*\d+\s*\|`)

// Labeled field names used when rendering a row.
const (
	fieldDepartment  = "部门单位"
	fieldSequence    = "问题序号"
	fieldIssue       = "问题摘要"
	fieldRemediation = "整改情况"
)

// AuditIssue consumes pre-tagged tabular rows. Each row becomes one
// chunk rendered as labeled fields; blank department and sequence cells
// inherit the prior row's value, matching how merged cells appear in
// the source tables.
type AuditIssue struct{}

// NewAuditIssue returns an AuditIssue strategy.
func NewAuditIssue() *AuditIssue {
	return &AuditIssue{}
}

// Chunk implements Strategy.
func (a *AuditIssue) Chunk(doc Document) []Chunk {
	rows := splitRows(doc.Text)
	if len(rows) == 0 {
		return nil
	}

	var (
		chunks   []Chunk
		prevDept string
		prevSeq  string
	)
	for _, row := range rows {
		cells := splitCells(row)
		if len(cells) == 0 {
			continue
		}

		// Loader cell order: sequence | department | issue | remediation.
		seq := cellOrEmpty(cells, 0)
		dept := cellOrEmpty(cells, 1)
		issue := cellOrEmpty(cells, 2)
		remediation := cellOrEmpty(cells, 3)

		if seq == "" {
			seq = prevSeq
		}
		if dept == "" {
			dept = prevDept
		}
		prevSeq, prevDept = seq, dept

		if issue == "" && remediation == "" {
			continue
		}

		text := renderRow(dept, seq, issue, remediation)
		chunks = append(chunks, Chunk{Text: text, SemanticBoundary: BoundaryIssueRow})
	}
	return chunks
}

func renderRow(dept, seq, issue, remediation string) string {
	var b strings.Builder
	writeField := func(name, val string) {
		if val == "" {
			return
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s: %s", name, val)
	}
	writeField(fieldDepartment, dept)
	writeField(fieldSequence, seq)
	writeField(fieldIssue, issue)
	writeField(fieldRemediation, remediation)
	return b.String()
}

func splitRows(text string) []string {
	var raw []string
	if strings.Contains(text, rowStartMarker) {
		raw = strings.Split(text, rowStartMarker)
	} else {
		raw = splitAtPattern(text, rowSplitPattern)
	}
	var rows []string
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r != "" {
			rows = append(rows, r)
		}
	}
	return rows
}

// splitAtPattern cuts text at each match start, keeping the match with
// the piece it begins.
func splitAtPattern(text string, re *regexp.Regexp) []string {
	locs := re.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return []string{text}
	}
	var out []string
	if locs[0][0] > 0 {
		out = append(out, text[:locs[0][0]])
	}
	for i, loc := range locs {
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		out = append(out, text[loc[0]:end])
	}
	return out
}

func splitCells(row string) []string {
	// Rows may span multiple lines; cell separators stay meaningful
	// across them.
	row = strings.ReplaceAll(row, "\n", " ")
	parts := strings.Split(row, "|")
	cells := make([]string, len(parts))
	for i, p := range parts {
		cells[i] = strings.TrimSpace(p)
	}
	return cells
}

func cellOrEmpty(cells []string, i int) string {
	if i < len(cells) {
		return cells[i]
	}
	return ""
}
