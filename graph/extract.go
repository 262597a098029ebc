package graph

import (
	"regexp"
	"strings"

	"github.com/brunobiangulo/auditrag/chunker"
)

// Entity is one extracted (type, value) pair, pre-normalization.
type Entity struct {
	Type  string
	Value string
}

// RelationRecord is transient extractor output describing one edge
// between two entities. Consumed only by the Builder; never persisted
// directly.
type RelationRecord struct {
	SourceType  string
	SourceValue string
	TargetType  string
	TargetValue string
	Relation    string
	Confidence  float64
	Extractor   string
}

// Extractor mines entities and relations from one chunk's text.
type Extractor interface {
	Name() string
	ExtractEntities(ch chunker.Chunk) []Entity
	ExtractRelations(ch chunker.Chunk) []RelationRecord
}

// ExtractorFor returns the extractor for a document type.
func ExtractorFor(docType string) Extractor {
	switch docType {
	case chunker.DocTypeRegulation:
		return &RegulationExtractor{}
	case chunker.DocTypeReport:
		return &ReportExtractor{}
	case chunker.DocTypeIssue:
		return &IssueExtractor{}
	default:
		return &BaseExtractor{}
	}
}

// ---------------------------------------------------------------------------
// Scan bounds
//
// Pattern scans run over a bounded text prefix. Entities past the bound
// are missed; that is the accepted precision/throughput trade-off.
// ---------------------------------------------------------------------------

const (
	clauseScanLimit = 6000
	deptScanLimit   = 5000
	amountScanLimit = 4000
	statusScanLimit = 1500
)

func scanPrefix(text string, limit int) string {
	r := []rune(text)
	if len(r) <= limit {
		return text
	}
	return string(r[:limit])
}

// ---------------------------------------------------------------------------
// Shared rule tables
// ---------------------------------------------------------------------------

// patternRule binds one regex to the entity type it yields.
type patternRule struct {
	pattern    *regexp.Regexp
	entityType string
	limit      int
}

var (
	yearPattern   = regexp.MustCompile(`(19|20)\d{2}年`)
	amountPattern = regexp.MustCompile(`\d+(?:\.\d+)?(?:亿元|万元)`)
	deptPattern   = regexp.MustCompile(`[\p{Han}]{1,6}(?:部|处(?:室)?|中心|办公室|司|局)`)
)

var baseRules = []patternRule{
	{yearPattern, NodeYear, amountScanLimit},
	{clauseCanonPattern, NodeClause, clauseScanLimit},
	{amountPattern, NodeAmount, amountScanLimit},
	{deptPattern, NodeDepartment, deptScanLimit},
}

// keywordRule maps a trigger keyword to a canonical bucket value.
type keywordRule struct {
	keyword string
	value   string
}

// statusRules map remediation phrases to canonical statuses. Order
// matters: the more specific phrase wins.
var statusRules = []keywordRule{
	{"部分整改", "partial"},
	{"未整改", "pending"},
	{"尚未整改", "pending"},
	{"整改中", "in_progress"},
	{"正在整改", "in_progress"},
	{"持续整改", "in_progress"},
	{"已整改", "completed"},
	{"整改完成", "completed"},
	{"已完成整改", "completed"},
}

// topicRules bucket issue text into topics by keyword.
var topicRules = []keywordRule{
	{"采购", "采购管理"},
	{"招标", "采购管理"},
	{"工程", "工程建设"},
	{"基建", "工程建设"},
	{"报销", "费用报销"},
	{"差旅", "费用报销"},
	{"接待", "费用报销"},
	{"资产", "资产管理"},
	{"合同", "合同管理"},
	{"税", "财税合规"},
	{"票据", "财税合规"},
	{"发票", "财税合规"},
	{"薪酬", "人事管理"},
	{"编制", "人事管理"},
	{"资金", "资金管理"},
	{"经费", "资金管理"},
	{"预算", "预算管理"},
}

// riskRules bucket text into risk types by keyword.
var riskRules = []keywordRule{
	{"廉政", "廉政风险"},
	{"舞弊", "舞弊风险"},
	{"违规", "合规风险"},
	{"违反", "合规风险"},
	{"法律", "法律风险"},
	{"诉讼", "法律风险"},
	{"资金安全", "资金风险"},
	{"内控", "内控风险"},
}

// requirementMarkers open a normative sentence in regulation text.
var requirementMarkers = []string{"应当", "必须", "不得", "禁止", "应", "需"}

// maxRequirements caps control-requirement entities per chunk.
const maxRequirements = 4

// ---------------------------------------------------------------------------
// Base extractor
// ---------------------------------------------------------------------------

// BaseExtractor applies only the shared rules: years, clauses,
// amounts, departments, risk keywords. Used for untyped documents.
type BaseExtractor struct{}

func (e *BaseExtractor) Name() string { return "base" }

func (e *BaseExtractor) ExtractEntities(ch chunker.Chunk) []Entity {
	return baseEntities(ch.Text)
}

func (e *BaseExtractor) ExtractRelations(ch chunker.Chunk) []RelationRecord {
	return nil
}

func baseEntities(text string) []Entity {
	var out []Entity
	seen := map[Entity]bool{}
	add := func(t, v string) {
		ent := Entity{Type: t, Value: v}
		if v != "" && !seen[ent] {
			seen[ent] = true
			out = append(out, ent)
		}
	}

	for _, rule := range baseRules {
		for _, m := range rule.pattern.FindAllString(scanPrefix(text, rule.limit), -1) {
			add(rule.entityType, m)
		}
	}
	for _, rule := range riskRules {
		if containsKeyword(text, rule.keyword) {
			add(NodeRiskType, rule.value)
		}
	}
	return out
}

func matchKeywordRules(text string, rules []keywordRule) (string, bool) {
	for _, r := range rules {
		if containsKeyword(text, r.keyword) {
			return r.value, true
		}
	}
	return "", false
}

func containsKeyword(text, kw string) bool {
	return kw != "" && strings.Contains(text, kw)
}
