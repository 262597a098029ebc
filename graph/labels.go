package graph

// Chinese display labels for graph inspection surfaces.

// NodeTypeLabels maps node types to display names.
var NodeTypeLabels = map[string]string{
	NodeDocument:            "文档",
	NodeChunk:               "文本块",
	NodeDocType:             "文档类型",
	NodeYear:                "年度",
	NodeClause:              "条款",
	NodeSection:             "章节",
	NodeDepartment:          "部门单位",
	NodeIssueTopic:          "问题主题",
	NodeIssue:               "审计问题",
	NodeRectification:       "整改措施",
	NodeRectificationStatus: "整改状态",
	NodeControlRequirement:  "控制要求",
	NodeRiskType:            "风险类型",
	NodeAmount:              "金额",
}

// RelationLabels maps relations to display names.
var RelationLabels = map[string]string{
	RelContains:     "包含",
	RelPartOf:       "属于",
	RelMentions:     "提及",
	RelMentionedBy:  "被提及",
	RelHasDocType:   "文档类型为",
	RelDocTypeOf:    "类型包含文档",
	RelIssuedIn:     "发布于",
	RelYearOf:       "年度发布",
	RelHasSection:   "包含章节",
	RelSectionOf:    "章节属于",
	RelCitesClause:  "引用条款",
	RelClauseCited:  "条款被引用",
	RelViolates:     "违反条款",
	RelViolatedBy:   "条款被违反",
	RelInvolvesDept: "涉及部门",
	RelDeptInvolved: "部门涉及",
	RelHasIssue:     "存在问题",
	RelIssueOf:      "问题归属",
	RelAboutTopic:   "问题主题",
	RelTopicOf:      "主题问题",
	RelRectifiedBy:  "整改措施",
	RelRectifies:    "措施针对",
	RelHasStatus:    "整改状态",
	RelStatusOf:     "状态归属",
	RelHasAmount:    "涉及金额",
	RelAmountOf:     "金额归属",
	RelHasRisk:      "存在风险",
	RelRiskOf:       "风险归属",
	RelRequires:     "提出要求",
	RelRequiredBy:   "要求来源",
}

// StatusLabels maps canonical rectification statuses to display names.
var StatusLabels = map[string]string{
	"completed":   "已整改",
	"in_progress": "整改中",
	"partial":     "部分整改",
	"pending":     "未整改",
}

// Label returns the display name for a node type, falling back to the
// raw value.
func Label(nodeType string) string {
	if l, ok := NodeTypeLabels[nodeType]; ok {
		return l
	}
	return nodeType
}
