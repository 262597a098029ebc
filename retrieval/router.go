// Package retrieval turns a user query into ranked chunks. The Router
// resolves a per-query plan from a classified intent; the Orchestrator
// executes the plan over the vector and graph stores and fuses the scores.
package retrieval

import (
	"context"
	"log/slog"
	"time"

	"github.com/brunobiangulo/auditrag/chunker"
	"github.com/brunobiangulo/auditrag/llm"
)

// Query intents recognized by the router. Anything else falls through to
// the comprehensive defaults.
const (
	IntentRegulation    = "regulation_query"
	IntentAudit         = "audit_query"
	IntentIssue         = "audit_issue"
	IntentAnalysis      = "audit_analysis"
	IntentComprehensive = "comprehensive_query"
)

// Retrieval modes.
const (
	ModeVector = "vector"
	ModeGraph  = "graph"
	ModeHybrid = "hybrid"
)

const (
	minGraphHops = 1
	maxGraphHops = 4
	minGraphTopK = 5
	maxGraphTopK = 40
	maxRerankK   = 10

	// Analytical queries need a wide candidate set before fusing.
	analysisMinTopK = 20
)

// Plan is the fully resolved parameter set for one search. It is never
// persisted.
type Plan struct {
	Intent      string   `json:"intent"`
	Mode        string   `json:"retrieval_mode"`
	TopK        int      `json:"top_k"`
	DocTypes    []string `json:"doc_types,omitempty"`
	GraphTopK   int      `json:"graph_top_k"`
	GraphHops   int      `json:"graph_hops"`
	HybridAlpha float64  `json:"hybrid_alpha"`
	UseRerank   bool     `json:"use_rerank"`
	RerankTopK  int      `json:"rerank_top_k"`
	Reason      string   `json:"reason,omitempty"`
}

// Overrides are explicit caller choices layered on top of the routed
// plan. Zero values mean "no preference"; the pointer fields distinguish
// a deliberate false/zero from unset.
type Overrides struct {
	TopK        int
	DocTypes    []string
	Mode        string
	GraphHops   int
	GraphTopK   int
	HybridAlpha *float64
	UseRerank   *bool
}

// Defaults seeds every plan before intent and override layering.
type Defaults struct {
	TopK        int
	GraphTopK   int
	GraphHops   int
	HybridAlpha float64
	UseRerank   bool
	RerankTopK  int
}

// Router resolves retrieval plans. A nil classifier routes every query to
// the default comprehensive plan.
type Router struct {
	classifier llm.IntentClassifier
	defaults   Defaults
	timeout    time.Duration
	logger     *slog.Logger
}

// NewRouter builds a Router. timeout bounds the classifier call; zero
// means 10 seconds.
func NewRouter(classifier llm.IntentClassifier, defaults Defaults, timeout time.Duration, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Router{classifier: classifier, defaults: defaults, timeout: timeout, logger: logger}
}

// Route resolves the plan for query: classifier intent first, then
// intent-specific defaults, then caller overrides, then safety clamps.
// Classification failures degrade to the default plan, never an error.
func (r *Router) Route(ctx context.Context, query string, ov Overrides) Plan {
	plan := r.defaultPlan()

	if r.classifier != nil {
		cctx, cancel := context.WithTimeout(ctx, r.timeout)
		intent, err := r.classifier.DetectIntent(cctx, query)
		cancel()
		if err != nil {
			r.logger.Warn("intent classification failed, using default plan",
				slog.String("query", query), slog.Any("error", err))
		} else {
			plan = r.applyIntent(plan, intent)
		}
	}

	plan = applyOverrides(plan, ov)
	return r.finalize(plan)
}

func (r *Router) defaultPlan() Plan {
	return Plan{
		Intent:      IntentComprehensive,
		Mode:        ModeHybrid,
		TopK:        r.defaults.TopK,
		GraphTopK:   r.defaults.GraphTopK,
		GraphHops:   r.defaults.GraphHops,
		HybridAlpha: r.defaults.HybridAlpha,
		UseRerank:   r.defaults.UseRerank,
		RerankTopK:  r.defaults.RerankTopK,
	}
}

// applyIntent layers the per-intent defaults, then any explicit fields the
// classifier returned.
func (r *Router) applyIntent(plan Plan, intent *llm.Intent) Plan {
	plan.Intent = intent.Intent
	plan.Reason = intent.Reason

	switch intent.Intent {
	case IntentRegulation:
		// Clause lookups are near-verbatim matches: lean on the vectors,
		// stay close to the seeds.
		plan.DocTypes = []string{chunker.DocTypeRegulation}
		plan.HybridAlpha = 0.8
		plan.GraphHops = 1
	case IntentAudit:
		plan.DocTypes = []string{chunker.DocTypeReport}
		plan.HybridAlpha = 0.7
	case IntentIssue:
		plan.DocTypes = []string{chunker.DocTypeIssue}
		plan.HybridAlpha = 0.6
	case IntentAnalysis:
		// Aggregation across documents wants graph reach and breadth.
		plan.Mode = ModeGraph
		plan.HybridAlpha = 0.45
		plan.GraphHops = 3
		plan.GraphTopK = 30
		if plan.TopK < analysisMinTopK {
			plan.TopK = analysisMinTopK
		}
	case IntentComprehensive:
		// Defaults already reflect this.
	default:
		plan.Intent = IntentComprehensive
	}

	if len(intent.DocTypes) > 0 {
		plan.DocTypes = normalizeDocTypes(intent.DocTypes)
	}
	if intent.RetrievalMode != "" {
		plan.Mode = intent.RetrievalMode
	}
	if intent.UseGraph != nil {
		if !*intent.UseGraph {
			plan.Mode = ModeVector
		} else if plan.Mode == ModeVector {
			plan.Mode = ModeHybrid
		}
	}
	if intent.TopK > 0 {
		plan.TopK = intent.TopK
	}
	if intent.GraphHops > 0 {
		plan.GraphHops = intent.GraphHops
	}
	if intent.GraphTopK > 0 {
		plan.GraphTopK = intent.GraphTopK
	}
	if intent.HybridAlpha != nil {
		plan.HybridAlpha = *intent.HybridAlpha
	}
	if intent.UseRerank != nil {
		plan.UseRerank = *intent.UseRerank
	}
	return plan
}

func applyOverrides(plan Plan, ov Overrides) Plan {
	if ov.TopK > 0 {
		plan.TopK = ov.TopK
	}
	if len(ov.DocTypes) > 0 {
		plan.DocTypes = normalizeDocTypes(ov.DocTypes)
	}
	if ov.Mode != "" {
		plan.Mode = ov.Mode
	}
	if ov.GraphHops > 0 {
		plan.GraphHops = ov.GraphHops
	}
	if ov.GraphTopK > 0 {
		plan.GraphTopK = ov.GraphTopK
	}
	if ov.HybridAlpha != nil {
		plan.HybridAlpha = *ov.HybridAlpha
	}
	if ov.UseRerank != nil {
		plan.UseRerank = *ov.UseRerank
	}
	return plan
}

// finalize clamps every numeric field to a safe range and coerces an
// unrecognized mode to hybrid.
func (r *Router) finalize(plan Plan) Plan {
	switch plan.Mode {
	case ModeVector, ModeGraph, ModeHybrid:
	default:
		plan.Mode = ModeHybrid
	}
	if plan.TopK < 1 {
		plan.TopK = r.defaults.TopK
	}
	plan.GraphHops = clampInt(plan.GraphHops, minGraphHops, maxGraphHops)
	plan.GraphTopK = clampInt(plan.GraphTopK, minGraphTopK, maxGraphTopK)
	if plan.HybridAlpha < 0 {
		plan.HybridAlpha = 0
	} else if plan.HybridAlpha > 1 {
		plan.HybridAlpha = 1
	}

	if plan.RerankTopK <= 0 {
		plan.RerankTopK = maxRerankK
	}
	if plan.RerankTopK > maxRerankK {
		plan.RerankTopK = maxRerankK
	}
	if plan.TopK <= 5 {
		plan.RerankTopK = min(maxRerankK, plan.TopK*2)
	}
	// Reranking a very wide analytical result set costs more than it buys.
	if plan.Intent == IntentAnalysis && plan.TopK >= analysisMinTopK {
		plan.UseRerank = false
	}
	return plan
}

// normalizeDocTypes maps classifier and caller vocabulary onto the chunk
// doc-type enum, dropping anything unrecognized.
func normalizeDocTypes(in []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, dt := range in {
		var canon string
		switch dt {
		case chunker.DocTypeRegulation, "regulation_document":
			canon = chunker.DocTypeRegulation
		case chunker.DocTypeReport, "audit_report":
			canon = chunker.DocTypeReport
		case chunker.DocTypeIssue, "audit_issue", "issue_table":
			canon = chunker.DocTypeIssue
		default:
			continue
		}
		if !seen[canon] {
			seen[canon] = true
			out = append(out, canon)
		}
	}
	return out
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
