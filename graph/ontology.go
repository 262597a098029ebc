// Package graph builds and queries the knowledge graph derived from
// document chunks: a property graph of typed nodes and weighted
// directed edges, persisted as a single JSON file.
package graph

// Node types.
const (
	NodeDocument            = "document"
	NodeChunk               = "chunk"
	NodeDocType             = "doc_type"
	NodeYear                = "year"
	NodeClause              = "clause"
	NodeSection             = "section"
	NodeDepartment          = "department"
	NodeIssueTopic          = "issue_topic"
	NodeIssue               = "issue"
	NodeRectification       = "rectification_action"
	NodeRectificationStatus = "rectification_status"
	NodeControlRequirement  = "control_requirement"
	NodeRiskType            = "risk_type"
	NodeAmount              = "amount"
)

// Relation types. Bidirectional relations are materialized as two
// directed edges with distinct reverse names.
const (
	RelContains    = "contains"     // document -> chunk
	RelPartOf      = "part_of"      // chunk -> document
	RelMentions    = "mentions"     // chunk -> entity
	RelMentionedBy = "mentioned_by" // entity -> chunk

	RelHasDocType = "has_doc_type" // document -> doc_type
	RelDocTypeOf  = "doc_type_of"
	RelIssuedIn   = "issued_in" // document -> year
	RelYearOf     = "year_of"

	RelHasSection   = "has_section" // document -> section
	RelSectionOf    = "section_of"
	RelCitesClause  = "cites_clause" // chunk -> clause
	RelClauseCited  = "clause_cited_by"
	RelViolates     = "violates_clause" // issue -> clause
	RelViolatedBy   = "violated_by"
	RelInvolvesDept = "involves_department" // issue -> department
	RelDeptInvolved = "department_involved_in"

	RelHasIssue    = "has_issue" // department -> issue
	RelIssueOf     = "issue_of"
	RelAboutTopic  = "about_topic" // issue -> issue_topic
	RelTopicOf     = "topic_of"
	RelRectifiedBy = "rectified_by" // issue -> rectification_action
	RelRectifies   = "rectifies"
	RelHasStatus   = "has_status" // issue -> rectification_status
	RelStatusOf    = "status_of"

	RelHasAmount  = "has_amount" // issue -> amount
	RelAmountOf   = "amount_of"
	RelHasRisk    = "has_risk" // chunk/issue -> risk_type
	RelRiskOf     = "risk_of"
	RelRequires   = "requires_control" // clause -> control_requirement
	RelRequiredBy = "control_required_by"
)

// RelationWeights are per-relation traversal weights used by the
// retriever's scoring. Tunable heuristics, not normalized guarantees.
var RelationWeights = map[string]float64{
	RelContains:    1.00,
	RelPartOf:      1.00,
	RelMentions:    0.90,
	RelMentionedBy: 0.90,

	RelHasDocType: 0.50,
	RelDocTypeOf:  0.50,
	RelIssuedIn:   0.60,
	RelYearOf:     0.60,

	RelHasSection:   0.70,
	RelSectionOf:    0.70,
	RelCitesClause:  1.10,
	RelClauseCited:  1.10,
	RelViolates:     1.25,
	RelViolatedBy:   1.25,
	RelInvolvesDept: 1.00,
	RelDeptInvolved: 1.00,

	RelHasIssue:    1.10,
	RelIssueOf:     1.10,
	RelAboutTopic:  0.95,
	RelTopicOf:     0.95,
	RelRectifiedBy: 1.05,
	RelRectifies:   1.05,
	RelHasStatus:   0.80,
	RelStatusOf:    0.80,

	RelHasAmount:  0.75,
	RelAmountOf:   0.75,
	RelHasRisk:    1.00,
	RelRiskOf:     1.00,
	RelRequires:   1.05,
	RelRequiredBy: 1.05,
}

// reverseRelation maps a relation to its reverse name for bidirectional
// materialization.
var reverseRelation = map[string]string{
	RelContains:     RelPartOf,
	RelMentions:     RelMentionedBy,
	RelHasDocType:   RelDocTypeOf,
	RelIssuedIn:     RelYearOf,
	RelHasSection:   RelSectionOf,
	RelCitesClause:  RelClauseCited,
	RelViolates:     RelViolatedBy,
	RelInvolvesDept: RelDeptInvolved,
	RelHasIssue:     RelIssueOf,
	RelAboutTopic:   RelTopicOf,
	RelRectifiedBy:  RelRectifies,
	RelHasStatus:    RelStatusOf,
	RelHasAmount:    RelAmountOf,
	RelHasRisk:      RelRiskOf,
	RelRequires:     RelRequiredBy,
}

// ReverseRelation returns the reverse relation name and whether the
// relation is declared bidirectional.
func ReverseRelation(relation string) (string, bool) {
	rev, ok := reverseRelation[relation]
	return rev, ok
}

// RelationWeight returns the traversal weight for a relation,
// defaulting to 1.0 for unknown relations.
func RelationWeight(relation string) float64 {
	if w, ok := RelationWeights[relation]; ok {
		return w
	}
	return 1.0
}
