package graph

import (
	"context"
	"testing"

	"github.com/brunobiangulo/auditrag/chunker"
)

// buildTestGraph wires a small graph by hand:
//
//	dept(财务部) --mentioned_by--> chunk c1 (direct mention)
//	dept --has_issue--> issue --mentioned_by--> chunk c2 (two hops)
func buildTestGraph() *Store {
	s := NewStore()
	s.AddNode("chunk:c1", NodeChunk, "c1", map[string]any{
		"chunk_id": "c1", "doc_id": "d1", "doc_type": "report",
		"text": "财务部审计发现", "title": "报告",
	})
	s.AddNode("chunk:c2", NodeChunk, "c2", map[string]any{
		"chunk_id": "c2", "doc_id": "d1", "doc_type": "regulation",
		"text": "相关规定条文", "title": "办法",
	})
	s.AddNode("dept", NodeDepartment, "财务部", nil)
	s.AddNode("issue", NodeIssue, "资金使用问题", nil)

	s.AddEdge("chunk:c1", "dept", RelMentions, 0.9, nil)  // reverse gives dept -> c1
	s.AddEdge("dept", "issue", RelHasIssue, 1.1, nil)     // reverse gives issue -> dept
	s.AddEdge("chunk:c2", "issue", RelMentions, 0.9, nil) // reverse gives issue -> c2
	return s
}

func TestRetrieverHarmonicDecay(t *testing.T) {
	r := NewRetriever(buildTestGraph(), nil)
	results := r.Search("财务部", 10, nil, 3)

	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	// c1 sits one hop from the seed, c2 two hops away through the
	// issue node. Scores are seedScore/(depth+1), so the direct
	// mention ranks first.
	if results[0].ChunkID != "c1" {
		t.Errorf("results[0] = %s, want c1 (direct mention outranks distant relation)", results[0].ChunkID)
	}
	if results[0].Score <= results[1].Score {
		t.Errorf("scores not decaying: %f <= %f", results[0].Score, results[1].Score)
	}

	seeds := r.store.FindNodesByQuery("财务部")
	if len(seeds) == 0 {
		t.Fatal("no seeds")
	}
	seedScore := seeds[0].Score
	if got, want := results[0].Score, seedScore/2; got != want {
		t.Errorf("c1 score = %f, want seedScore/(1+1) = %f", got, want)
	}
	if got, want := results[1].Score, seedScore/3; got != want {
		t.Errorf("c2 score = %f, want seedScore/(2+1) = %f", got, want)
	}
}

func TestRetrieverHopBound(t *testing.T) {
	r := NewRetriever(buildTestGraph(), nil)

	// One hop reaches only the directly mentioned chunk.
	results := r.Search("财务部", 10, nil, 1)
	if len(results) != 1 || results[0].ChunkID != "c1" {
		t.Errorf("results = %+v, want only c1 within one hop", results)
	}
}

func TestRetrieverDocTypeFilter(t *testing.T) {
	r := NewRetriever(buildTestGraph(), nil)

	results := r.Search("财务部", 10, []string{"regulation"}, 3)
	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1", len(results))
	}
	if results[0].ChunkID != "c2" {
		t.Errorf("results[0] = %s, want the regulation chunk", results[0].ChunkID)
	}
}

func TestRetrieverMultiSeedAccumulation(t *testing.T) {
	s := buildTestGraph()
	// A second entity also mentioned by c1: two seeds corroborate it.
	s.AddNode("topic", NodeIssueTopic, "资金管理", nil)
	s.AddEdge("chunk:c1", "topic", RelMentions, 0.9, nil)

	r := NewRetriever(s, nil)
	single := r.Search("财务部", 10, nil, 2)
	double := r.Search("财务部资金管理", 10, nil, 2)

	score := func(results []Result, chunkID string) float64 {
		for _, res := range results {
			if res.ChunkID == chunkID {
				return res.Score
			}
		}
		return 0
	}
	if score(double, "c1") <= score(single, "c1") {
		t.Errorf("multi-seed score %f should exceed single-seed %f",
			score(double, "c1"), score(single, "c1"))
	}
}

func TestRetrieverNoSeeds(t *testing.T) {
	r := NewRetriever(buildTestGraph(), nil)
	if results := r.Search("毫无关联的查询词汇", 10, nil, 2); len(results) != 0 {
		t.Errorf("results = %+v, want none without seeds", results)
	}
}

func TestRetrieverOverBuiltGraph(t *testing.T) {
	chunks := []chunker.Chunk{
		{
			ChunkID: "doc1_chunk_0", DocID: "doc1", DocType: chunker.DocTypeIssue,
			Title: "台账", Filename: "issues.txt",
			Text: "部门单位: 财务处\n问题序号: 1\n问题摘要: 差旅费报销不合规\n整改情况: 已整改",
		},
	}
	b := NewBuilder(nil, 1)
	store, err := b.Build(context.Background(), chunks)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	r := NewRetriever(store, nil)
	results := r.Search("财务部差旅费问题", 5, nil, 2)
	if len(results) == 0 {
		t.Fatal("expected the issue chunk to be reachable from its entities")
	}
	if results[0].ChunkID != "doc1_chunk_0" {
		t.Errorf("chunk = %s, want doc1_chunk_0", results[0].ChunkID)
	}
}
