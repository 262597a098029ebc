package graph

import (
	"log/slog"
	"sort"
)

// Result is one chunk ranked by graph traversal.
type Result struct {
	ChunkID  string
	DocID    string
	Text     string
	DocType  string
	Title    string
	Filename string
	Score    float64
}

// Retriever ranks chunks by bounded breadth-first traversal from
// query-matched seed nodes.
type Retriever struct {
	store  *Store
	logger *slog.Logger
}

// NewRetriever returns a Retriever over store.
func NewRetriever(store *Store, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{store: store, logger: logger}
}

// Search finds seed nodes for the query, walks up to hops edges out of
// each, and scores every chunk node reached at depth d with
// seedScore/(d+1). Direct mentions outrank distant relations; scores
// from multiple seeds add up, so chunks corroborated by several seeds
// rise. Results are filtered to docTypes before ranking; ties keep
// first-encounter order.
func (r *Retriever) Search(query string, topK int, docTypes []string, hops int) []Result {
	if topK <= 0 || hops < 1 {
		return nil
	}
	seeds := r.store.FindNodesByQuery(query)
	if len(seeds) == 0 {
		r.logger.Debug("graph search found no seeds", "query", query)
		return nil
	}

	allowed := map[string]bool{}
	for _, dt := range docTypes {
		allowed[dt] = true
	}

	scores := map[string]float64{}
	order := map[string]int{}
	next := 0

	for _, seed := range seeds {
		r.walk(seed, hops, func(chunkID string, depth int) {
			if _, seen := order[chunkID]; !seen {
				order[chunkID] = next
				next++
			}
			scores[chunkID] += seed.Score / float64(depth+1)
		})
	}

	var results []Result
	for id, score := range scores {
		node, ok := r.store.Node(id)
		if !ok {
			continue
		}
		res := chunkResult(id, node, score)
		if len(allowed) > 0 && !allowed[res.DocType] {
			continue
		}
		results = append(results, res)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return order[NodeID(NodeChunk, results[i].ChunkID)] < order[NodeID(NodeChunk, results[j].ChunkID)]
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results
}

// walk runs BFS from one seed, invoking visit for every chunk node
// reached, including the re-visit-at-shallower-depth case handled by
// the seenDepth map: a node is expanded once at its first (shallowest)
// depth.
func (r *Retriever) walk(seed Seed, hops int, visit func(chunkID string, depth int)) {
	type item struct {
		id    string
		depth int
	}
	seenDepth := map[string]int{seed.ID: 0}
	queue := []item{{id: seed.ID, depth: 0}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		if node, ok := r.store.Node(cur.id); ok && node.Type == NodeChunk {
			visit(cur.id, cur.depth)
		}
		if cur.depth >= hops {
			continue
		}
		for _, edge := range r.store.Neighbors(cur.id) {
			if prev, seen := seenDepth[edge.Target]; seen && prev <= cur.depth+1 {
				continue
			}
			seenDepth[edge.Target] = cur.depth + 1
			queue = append(queue, item{id: edge.Target, depth: cur.depth + 1})
		}
	}
}

func chunkResult(id string, node *Node, score float64) Result {
	attrs := node.Attrs
	str := func(key string) string {
		v, _ := attrs[key].(string)
		return v
	}
	return Result{
		ChunkID:  str("chunk_id"),
		DocID:    str("doc_id"),
		Text:     str("text"),
		DocType:  str("doc_type"),
		Title:    str("title"),
		Filename: str("filename"),
		Score:    score,
	}
}
