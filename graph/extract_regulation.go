package graph

import (
	"strings"

	"github.com/brunobiangulo/auditrag/chunker"
)

// RegulationExtractor mines regulation chunks: clause citations,
// normative control requirements and the section structure the chunk
// sits under.
type RegulationExtractor struct{}

func (e *RegulationExtractor) Name() string { return "regulation" }

func (e *RegulationExtractor) ExtractEntities(ch chunker.Chunk) []Entity {
	out := baseEntities(ch.Text)

	for _, sec := range ch.SectionPath {
		out = append(out, Entity{Type: NodeSection, Value: sec})
	}
	for _, req := range extractRequirements(ch.Text) {
		out = append(out, Entity{Type: NodeControlRequirement, Value: req})
	}
	return out
}

func (e *RegulationExtractor) ExtractRelations(ch chunker.Chunk) []RelationRecord {
	var out []RelationRecord

	// Each normative requirement hangs off the clause that states it.
	clause := clauseCanonPattern.FindString(scanPrefix(ch.Text, clauseScanLimit))
	if clause == "" {
		return nil
	}
	for _, req := range extractRequirements(ch.Text) {
		out = append(out, RelationRecord{
			SourceType:  NodeClause,
			SourceValue: clause,
			TargetType:  NodeControlRequirement,
			TargetValue: req,
			Relation:    RelRequires,
			Confidence:  0.85,
			Extractor:   e.Name(),
		})
	}
	return out
}

// extractRequirements pulls sentences opened by a normative marker
// (应当, 不得, ...), capped at maxRequirements per chunk.
func extractRequirements(text string) []string {
	var out []string
	for _, sentence := range splitNormativeSentences(text) {
		if len(out) >= maxRequirements {
			break
		}
		for _, marker := range requirementMarkers {
			if strings.Contains(sentence, marker) {
				out = append(out, strings.TrimSpace(sentence))
				break
			}
		}
	}
	return out
}

func splitNormativeSentences(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return r == '。' || r == '；' || r == ';' || r == '\n'
	})
}
