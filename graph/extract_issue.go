package graph

import (
	"strings"

	"github.com/brunobiangulo/auditrag/chunker"
)

// IssueExtractor mines audit issue rows. Issue chunks are rendered as
// labeled fields by the chunker, so extraction here reads fields back
// rather than scanning free text.
type IssueExtractor struct{}

func (e *IssueExtractor) Name() string { return "issue" }

type issueRow struct {
	department  string
	sequence    string
	issue       string
	remediation string
}

func parseIssueRow(text string) issueRow {
	var row issueRow
	for _, line := range strings.Split(text, "\n") {
		name, val, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		val = strings.TrimSpace(val)
		switch strings.TrimSpace(name) {
		case "部门单位":
			row.department = val
		case "问题序号":
			row.sequence = val
		case "问题摘要":
			row.issue = val
		case "整改情况":
			row.remediation = val
		}
	}
	return row
}

func (e *IssueExtractor) ExtractEntities(ch chunker.Chunk) []Entity {
	row := parseIssueRow(ch.Text)
	if row.issue == "" {
		return baseEntities(ch.Text)
	}

	var out []Entity
	out = append(out, Entity{Type: NodeIssue, Value: row.issue})
	if row.department != "" {
		out = append(out, Entity{Type: NodeDepartment, Value: row.department})
	}
	if row.remediation != "" {
		out = append(out, Entity{Type: NodeRectification, Value: row.remediation})
	}
	if status, ok := matchKeywordRules(scanPrefix(row.remediation, statusScanLimit), statusRules); ok {
		out = append(out, Entity{Type: NodeRectificationStatus, Value: status})
	}
	if topic, ok := matchKeywordRules(row.issue, topicRules); ok {
		out = append(out, Entity{Type: NodeIssueTopic, Value: topic})
	}
	out = append(out, baseEntities(row.issue)...)
	return out
}

func (e *IssueExtractor) ExtractRelations(ch chunker.Chunk) []RelationRecord {
	row := parseIssueRow(ch.Text)
	if row.issue == "" {
		return nil
	}

	rel := func(st, sv, tt, tv, relation string, conf float64) RelationRecord {
		return RelationRecord{
			SourceType: st, SourceValue: sv,
			TargetType: tt, TargetValue: tv,
			Relation: relation, Confidence: conf, Extractor: e.Name(),
		}
	}

	var out []RelationRecord
	if row.department != "" {
		out = append(out, rel(NodeIssue, row.issue, NodeDepartment, row.department, RelInvolvesDept, 0.9))
	}
	if row.remediation != "" {
		out = append(out, rel(NodeIssue, row.issue, NodeRectification, row.remediation, RelRectifiedBy, 0.85))
	}
	if status, ok := matchKeywordRules(row.remediation, statusRules); ok {
		out = append(out, rel(NodeIssue, row.issue, NodeRectificationStatus, status, RelHasStatus, 0.85))
	}
	if topic, ok := matchKeywordRules(row.issue, topicRules); ok {
		out = append(out, rel(NodeIssue, row.issue, NodeIssueTopic, topic, RelAboutTopic, 0.75))
	}
	if clause := clauseCanonPattern.FindString(row.issue); clause != "" {
		out = append(out, rel(NodeIssue, row.issue, NodeClause, clause, RelViolates, 0.8))
	}
	for _, amount := range dedupe(amountPattern.FindAllString(row.issue, -1)) {
		out = append(out, rel(NodeIssue, row.issue, NodeAmount, amount, RelHasAmount, 0.8))
	}
	return out
}
