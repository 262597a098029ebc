package graph

import (
	"regexp"
	"strings"
)

// Per-type canonical length caps. Values past the cap are truncated so
// node names stay bounded.
const (
	maxIssueLen   = 120
	maxGenericLen = 60
	maxShortLen   = 40
)

// departmentAliases maps surface forms to canonical department names.
var departmentAliases = map[string]string{
	"财务":    "财务部",
	"财务处":   "财务部",
	"财务部门":  "财务部",
	"审计":    "审计部",
	"审计处":   "审计部",
	"审计部门":  "审计部",
	"内审部":   "审计部",
	"采购":    "采购部",
	"采购处":   "采购部",
	"采购中心":  "采购部",
	"人事":    "人力资源部",
	"人事处":   "人力资源部",
	"人事部":   "人力资源部",
	"办公室":   "综合办公室",
	"综合办":   "综合办公室",
	"基建":    "基建部",
	"基建处":   "基建部",
	"后勤":    "后勤保障部",
	"后勤中心":  "后勤保障部",
	"信息中心":  "信息技术部",
	"信息部":   "信息技术部",
	"科技部门":  "信息技术部",
	"资产管理处": "资产管理部",
}

var (
	clauseCanonPattern = regexp.MustCompile(`第[一二三四五六七八九十百千万零0-9]+条`)
	amountCanonPattern = regexp.MustCompile(`(\d+(?:\.\d+)?)(亿元|万元|元)`)
	yearCanonPattern   = regexp.MustCompile(`(19|20)\d{2}`)
	punctStripper      = regexp.MustCompile(`[\s　,，。；;:：、"'！？!?（）()\[\]【】<>《》]+`)
)

// Linker canonicalizes extracted entity surface forms. Normalize is
// deterministic and idempotent; node deduplication by
// (type, canonical value) depends on that.
type Linker struct{}

// NewLinker returns a Linker.
func NewLinker() *Linker {
	return &Linker{}
}

// Normalize maps a raw surface form of the given entity type to its
// canonical value. The second return is false when the value cannot be
// canonicalized and should be discarded.
func (l *Linker) Normalize(entityType, raw string) (string, bool) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return "", false
	}

	switch entityType {
	case NodeDepartment:
		return l.normalizeDepartment(v)
	case NodeClause:
		return l.normalizeClause(v)
	case NodeAmount:
		return l.normalizeAmount(v)
	case NodeYear:
		return l.normalizeYear(v)
	case NodeIssue, NodeRectification:
		return truncate(stripPunct(v), maxIssueLen)
	case NodeControlRequirement:
		return truncate(stripPunct(v), maxGenericLen)
	case NodeRectificationStatus, NodeRiskType, NodeIssueTopic, NodeDocType:
		return truncate(stripPunct(v), maxShortLen)
	case NodeSection:
		return truncate(strings.Join(strings.Fields(v), " "), maxGenericLen)
	default:
		return truncate(stripPunct(v), maxGenericLen)
	}
}

func (l *Linker) normalizeDepartment(v string) (string, bool) {
	v = stripPunctAll(v)
	if v == "" {
		return "", false
	}
	if canon, ok := departmentAliases[v]; ok {
		return canon, true
	}
	return truncate(v, maxShortLen)
}

// normalizeClause extracts the clause citation itself, dropping any
// surrounding text: "依据第三条的规定" -> "第三条".
func (l *Linker) normalizeClause(v string) (string, bool) {
	m := clauseCanonPattern.FindString(v)
	if m == "" {
		return "", false
	}
	return m, true
}

// normalizeAmount keeps the number and unit only: "涉及 3.5亿元 资金"
// -> "3.5亿元".
func (l *Linker) normalizeAmount(v string) (string, bool) {
	m := amountCanonPattern.FindStringSubmatch(v)
	if m == nil {
		return "", false
	}
	return m[1] + m[2], true
}

func (l *Linker) normalizeYear(v string) (string, bool) {
	m := yearCanonPattern.FindString(v)
	if m == "" {
		return "", false
	}
	return m, true
}

func stripPunct(v string) string {
	// Collapse whitespace and drop leading/trailing punctuation runs,
	// keeping inner punctuation that carries meaning.
	v = strings.Join(strings.Fields(v), "")
	v = strings.Trim(v, " \t　,，。；;:：、\"'！？!?（）()[]【】<>《》")
	return v
}

func stripPunctAll(v string) string {
	return punctStripper.ReplaceAllString(v, "")
}

func truncate(v string, max int) (string, bool) {
	if v == "" {
		return "", false
	}
	r := []rune(v)
	if len(r) > max {
		v = string(r[:max])
	}
	return v, true
}
