package retrieval

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/brunobiangulo/auditrag/llm"
)

type stubClassifier struct {
	intent *llm.Intent
	err    error
}

func (s *stubClassifier) DetectIntent(ctx context.Context, query string) (*llm.Intent, error) {
	return s.intent, s.err
}

func testDefaults() Defaults {
	return Defaults{
		TopK:        10,
		GraphTopK:   15,
		GraphHops:   2,
		HybridAlpha: 0.65,
		UseRerank:   true,
		RerankTopK:  10,
	}
}

func newTestRouter(c llm.IntentClassifier) *Router {
	return NewRouter(c, testDefaults(), time.Second, nil)
}

func boolPtr(v bool) *bool { return &v }

func floatPtr(v float64) *float64 { return &v }

func TestRouteDefaultPlanWithoutClassifier(t *testing.T) {
	plan := newTestRouter(nil).Route(context.Background(), "财务部有什么问题", Overrides{})
	if plan.Intent != IntentComprehensive {
		t.Errorf("intent = %q, want comprehensive", plan.Intent)
	}
	if plan.Mode != ModeHybrid {
		t.Errorf("mode = %q, want hybrid", plan.Mode)
	}
	if plan.TopK != 10 || plan.HybridAlpha != 0.65 {
		t.Errorf("got topK=%d alpha=%v, want defaults", plan.TopK, plan.HybridAlpha)
	}
}

func TestRouteClassifierFailureFallsBack(t *testing.T) {
	r := newTestRouter(&stubClassifier{err: errors.New("model offline")})
	plan := r.Route(context.Background(), "q", Overrides{})
	if plan.Intent != IntentComprehensive || plan.Mode != ModeHybrid {
		t.Errorf("got %q/%q, want comprehensive/hybrid", plan.Intent, plan.Mode)
	}
	if plan.HybridAlpha != 0.65 {
		t.Errorf("alpha = %v, want 0.65", plan.HybridAlpha)
	}
}

func TestRouteRegulationDefaults(t *testing.T) {
	r := newTestRouter(&stubClassifier{intent: &llm.Intent{Intent: IntentRegulation}})
	plan := r.Route(context.Background(), "第二十条规定了什么", Overrides{})
	if !reflect.DeepEqual(plan.DocTypes, []string{"regulation"}) {
		t.Errorf("doc types = %v, want [regulation]", plan.DocTypes)
	}
	if plan.HybridAlpha != 0.8 {
		t.Errorf("alpha = %v, want 0.8", plan.HybridAlpha)
	}
	if plan.GraphHops != 1 {
		t.Errorf("hops = %d, want 1", plan.GraphHops)
	}
}

func TestRouteAnalysisForcesGraphBreadth(t *testing.T) {
	r := newTestRouter(&stubClassifier{intent: &llm.Intent{Intent: IntentAnalysis}})
	plan := r.Route(context.Background(), "各部门整改情况的关联分析", Overrides{})
	if plan.Mode != ModeGraph {
		t.Errorf("mode = %q, want graph", plan.Mode)
	}
	if plan.TopK != analysisMinTopK {
		t.Errorf("topK = %d, want %d", plan.TopK, analysisMinTopK)
	}
	if plan.GraphHops != 3 {
		t.Errorf("hops = %d, want 3", plan.GraphHops)
	}
	if plan.HybridAlpha != 0.45 {
		t.Errorf("alpha = %v, want 0.45", plan.HybridAlpha)
	}
	if plan.UseRerank {
		t.Error("rerank should be disabled for wide analytical result sets")
	}
}

func TestRouteOverridesWin(t *testing.T) {
	r := newTestRouter(&stubClassifier{intent: &llm.Intent{
		Intent:        IntentRegulation,
		RetrievalMode: ModeHybrid,
	}})
	plan := r.Route(context.Background(), "q", Overrides{
		TopK:        7,
		Mode:        ModeVector,
		HybridAlpha: floatPtr(0.3),
		UseRerank:   boolPtr(false),
		DocTypes:    []string{"report"},
	})
	if plan.Mode != ModeVector {
		t.Errorf("mode = %q, want vector", plan.Mode)
	}
	if plan.TopK != 7 {
		t.Errorf("topK = %d, want 7", plan.TopK)
	}
	if plan.HybridAlpha != 0.3 {
		t.Errorf("alpha = %v, want 0.3", plan.HybridAlpha)
	}
	if plan.UseRerank {
		t.Error("rerank override should win")
	}
	if !reflect.DeepEqual(plan.DocTypes, []string{"report"}) {
		t.Errorf("doc types = %v, want [report]", plan.DocTypes)
	}
}

func TestRouteClampsNumericFields(t *testing.T) {
	r := newTestRouter(&stubClassifier{intent: &llm.Intent{
		Intent:        IntentAudit,
		RetrievalMode: "semantic_boost",
		GraphHops:     9,
		GraphTopK:     200,
		HybridAlpha:   floatPtr(1.7),
	}})
	plan := r.Route(context.Background(), "q", Overrides{})
	if plan.Mode != ModeHybrid {
		t.Errorf("unknown mode coerced to %q, want hybrid", plan.Mode)
	}
	if plan.GraphHops != maxGraphHops {
		t.Errorf("hops = %d, want %d", plan.GraphHops, maxGraphHops)
	}
	if plan.GraphTopK != maxGraphTopK {
		t.Errorf("graph topK = %d, want %d", plan.GraphTopK, maxGraphTopK)
	}
	if plan.HybridAlpha != 1 {
		t.Errorf("alpha = %v, want 1", plan.HybridAlpha)
	}
}

func TestRouteClampsLowBounds(t *testing.T) {
	r := newTestRouter(nil)
	plan := r.Route(context.Background(), "q", Overrides{HybridAlpha: floatPtr(-0.5)})
	if plan.HybridAlpha != 0 {
		t.Errorf("alpha = %v, want 0", plan.HybridAlpha)
	}
	if plan.GraphHops < minGraphHops || plan.GraphTopK < minGraphTopK {
		t.Errorf("got hops=%d graphTopK=%d below minimums", plan.GraphHops, plan.GraphTopK)
	}
}

func TestRouteSmallTopKShrinksRerank(t *testing.T) {
	plan := newTestRouter(nil).Route(context.Background(), "q", Overrides{TopK: 3})
	if plan.RerankTopK != 6 {
		t.Errorf("rerank topK = %d, want 6", plan.RerankTopK)
	}
	plan = newTestRouter(nil).Route(context.Background(), "q", Overrides{TopK: 5})
	if plan.RerankTopK != 10 {
		t.Errorf("rerank topK = %d, want 10", plan.RerankTopK)
	}
}

func TestRouteDocTypeAliases(t *testing.T) {
	r := newTestRouter(&stubClassifier{intent: &llm.Intent{
		Intent:   IntentAudit,
		DocTypes: []string{"audit_report", "regulation", "bogus", "audit_report"},
	}})
	plan := r.Route(context.Background(), "q", Overrides{})
	if !reflect.DeepEqual(plan.DocTypes, []string{"report", "regulation"}) {
		t.Errorf("doc types = %v, want [report regulation]", plan.DocTypes)
	}
}

func TestRouteUseGraphToggle(t *testing.T) {
	r := newTestRouter(&stubClassifier{intent: &llm.Intent{
		Intent:   IntentAudit,
		UseGraph: boolPtr(false),
	}})
	if plan := r.Route(context.Background(), "q", Overrides{}); plan.Mode != ModeVector {
		t.Errorf("use_graph=false → mode %q, want vector", plan.Mode)
	}

	r = newTestRouter(&stubClassifier{intent: &llm.Intent{
		Intent:        IntentAudit,
		RetrievalMode: ModeVector,
		UseGraph:      boolPtr(true),
	}})
	if plan := r.Route(context.Background(), "q", Overrides{}); plan.Mode != ModeHybrid {
		t.Errorf("use_graph=true over vector → mode %q, want hybrid", plan.Mode)
	}
}

func TestRouteUnknownIntentFallsThrough(t *testing.T) {
	r := newTestRouter(&stubClassifier{intent: &llm.Intent{Intent: "chitchat"}})
	plan := r.Route(context.Background(), "q", Overrides{})
	if plan.Intent != IntentComprehensive {
		t.Errorf("intent = %q, want comprehensive", plan.Intent)
	}
}
