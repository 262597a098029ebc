package graph

import (
	"strings"
	"testing"
)

func TestNormalizeIdempotent(t *testing.T) {
	l := NewLinker()

	tests := []struct {
		entityType string
		raw        string
	}{
		{NodeDepartment, "财务处"},
		{NodeDepartment, "综合办公室"},
		{NodeClause, "依据第三十二条的规定处理"},
		{NodeAmount, "涉及资金 3.5亿元 左右"},
		{NodeYear, "2023年度预算"},
		{NodeIssue, "差旅费报销不合规，部分票据缺失。"},
		{NodeRectificationStatus, "已整改"},
	}

	for _, tt := range tests {
		first, ok := l.Normalize(tt.entityType, tt.raw)
		if !ok {
			t.Errorf("Normalize(%s, %q) rejected", tt.entityType, tt.raw)
			continue
		}
		second, ok := l.Normalize(tt.entityType, first)
		if !ok {
			t.Errorf("Normalize(%s, %q) rejected its own output %q", tt.entityType, tt.raw, first)
			continue
		}
		if first != second {
			t.Errorf("Normalize(%s, %q) not idempotent: %q -> %q", tt.entityType, tt.raw, first, second)
		}
	}
}

func TestNormalizeDepartmentAliases(t *testing.T) {
	l := NewLinker()

	tests := []struct {
		raw  string
		want string
	}{
		{"财务处", "财务部"},
		{"财务部门", "财务部"},
		{"内审部", "审计部"},
		{"后勤中心", "后勤保障部"},
		{"审计署", "审计署"}, // no alias, passes through
	}
	for _, tt := range tests {
		got, ok := l.Normalize(NodeDepartment, tt.raw)
		if !ok {
			t.Errorf("Normalize(department, %q) rejected", tt.raw)
			continue
		}
		if got != tt.want {
			t.Errorf("Normalize(department, %q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestNormalizeClause(t *testing.T) {
	l := NewLinker()

	got, ok := l.Normalize(NodeClause, "依据《审计法》第二十条的规定")
	if !ok || got != "第二十条" {
		t.Errorf("Normalize(clause) = %q, %v, want 第二十条, true", got, ok)
	}

	if _, ok := l.Normalize(NodeClause, "没有条款引用"); ok {
		t.Error("text without a clause citation should be rejected")
	}
}

func TestNormalizeAmount(t *testing.T) {
	l := NewLinker()

	tests := []struct {
		raw  string
		want string
	}{
		{"涉及 3.5亿元 资金", "3.5亿元"},
		{"2000万元", "2000万元"},
		{"共计500元整", "500元"},
	}
	for _, tt := range tests {
		got, ok := l.Normalize(NodeAmount, tt.raw)
		if !ok {
			t.Errorf("Normalize(amount, %q) rejected", tt.raw)
			continue
		}
		if got != tt.want {
			t.Errorf("Normalize(amount, %q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestNormalizeTruncation(t *testing.T) {
	l := NewLinker()

	long := strings.Repeat("问题描述", 100)
	got, ok := l.Normalize(NodeIssue, long)
	if !ok {
		t.Fatal("long issue text rejected")
	}
	if n := len([]rune(got)); n > maxIssueLen {
		t.Errorf("issue canonical length = %d, want <= %d", n, maxIssueLen)
	}
}

func TestNormalizeRejectsEmpty(t *testing.T) {
	l := NewLinker()
	if _, ok := l.Normalize(NodeDepartment, "   "); ok {
		t.Error("blank value should be rejected")
	}
}
