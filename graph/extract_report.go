package graph

import (
	"github.com/brunobiangulo/auditrag/chunker"
)

// ReportExtractor mines audit report chunks: findings with their
// departments, amounts, topics and remediation status.
type ReportExtractor struct{}

func (e *ReportExtractor) Name() string { return "report" }

func (e *ReportExtractor) ExtractEntities(ch chunker.Chunk) []Entity {
	out := baseEntities(ch.Text)

	if topic, ok := matchKeywordRules(ch.Text, topicRules); ok {
		out = append(out, Entity{Type: NodeIssueTopic, Value: topic})
	}
	if status, ok := matchKeywordRules(scanPrefix(ch.Text, statusScanLimit), statusRules); ok {
		out = append(out, Entity{Type: NodeRectificationStatus, Value: status})
	}
	for _, sec := range ch.SectionPath {
		out = append(out, Entity{Type: NodeSection, Value: sec})
	}
	return out
}

func (e *ReportExtractor) ExtractRelations(ch chunker.Chunk) []RelationRecord {
	var out []RelationRecord
	text := ch.Text

	depts := deptPattern.FindAllString(scanPrefix(text, deptScanLimit), -1)
	topic, hasTopic := matchKeywordRules(text, topicRules)
	amounts := amountPattern.FindAllString(scanPrefix(text, amountScanLimit), -1)

	// Department findings connect to the topic and amounts seen in the
	// same chunk. Co-occurrence level evidence only, so the confidence
	// stays moderate.
	for _, dept := range dedupe(depts) {
		if hasTopic {
			out = append(out, RelationRecord{
				SourceType:  NodeDepartment,
				SourceValue: dept,
				TargetType:  NodeIssueTopic,
				TargetValue: topic,
				Relation:    RelHasIssue,
				Confidence:  0.6,
				Extractor:   e.Name(),
			})
		}
	}
	if hasTopic {
		for _, amount := range dedupe(amounts) {
			out = append(out, RelationRecord{
				SourceType:  NodeIssueTopic,
				SourceValue: topic,
				TargetType:  NodeAmount,
				TargetValue: amount,
				Relation:    RelHasAmount,
				Confidence:  0.6,
				Extractor:   e.Name(),
			})
		}
	}
	return out
}

func dedupe(vals []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, v := range vals {
		if v != "" && !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
