package graph

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode"
)

// Node is one typed graph node. Attrs merge on re-insertion.
type Node struct {
	Type  string         `json:"type"`
	Name  string         `json:"name"`
	Attrs map[string]any `json:"attrs,omitempty"`
}

// Edge is one directed edge out of a source node.
type Edge struct {
	Target   string         `json:"target"`
	Relation string         `json:"relation"`
	Weight   float64        `json:"weight"`
	Attrs    map[string]any `json:"attrs,omitempty"`
}

// Seed is a query-matched entry node for traversal.
type Seed struct {
	ID    string
	Score float64
}

// maxSeeds caps how many query-matched nodes feed the traversal.
const maxSeeds = 24

// Store is an in-memory property graph with JSON persistence. The
// mutation model is whole-graph rebuild-and-replace; point deletion is
// best effort. Reads and writes are guarded by one RWMutex.
type Store struct {
	mu    sync.RWMutex
	nodes map[string]*Node
	edges map[string][]Edge
}

// NewStore returns an empty graph store.
func NewStore() *Store {
	return &Store{
		nodes: make(map[string]*Node),
		edges: make(map[string][]Edge),
	}
}

// AddNode inserts a node, merging attrs if the id already exists.
// Existing attr keys are overwritten by the new value; other keys are
// kept.
func (s *Store) AddNode(id, nodeType, name string, attrs map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n, ok := s.nodes[id]; ok {
		if n.Attrs == nil && len(attrs) > 0 {
			n.Attrs = make(map[string]any, len(attrs))
		}
		for k, v := range attrs {
			n.Attrs[k] = v
		}
		return
	}
	var copied map[string]any
	if len(attrs) > 0 {
		copied = make(map[string]any, len(attrs))
		for k, v := range attrs {
			copied[k] = v
		}
	}
	s.nodes[id] = &Node{Type: nodeType, Name: name, Attrs: copied}
}

// AddEdge inserts a directed edge. No-op when either endpoint is
// missing. When the relation is declared bidirectional the reverse
// edge is materialized too, under its reverse relation name.
func (s *Store) AddEdge(source, target, relation string, weight float64, attrs map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nodes[source]; !ok {
		return
	}
	if _, ok := s.nodes[target]; !ok {
		return
	}
	s.edges[source] = append(s.edges[source], Edge{
		Target: target, Relation: relation, Weight: weight, Attrs: attrs,
	})
	if rev, ok := ReverseRelation(relation); ok {
		s.edges[target] = append(s.edges[target], Edge{
			Target: source, Relation: rev, Weight: weight, Attrs: attrs,
		})
	}
}

// Node returns a node by id.
func (s *Store) Node(id string) (*Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	return n, ok
}

// Neighbors returns the outgoing edges of a node.
func (s *Store) Neighbors(id string) []Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	edges := s.edges[id]
	out := make([]Edge, len(edges))
	copy(out, edges)
	return out
}

// NodeCount returns the number of nodes.
func (s *Store) NodeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

// EdgeCount returns the number of directed edges.
func (s *Store) EdgeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, es := range s.edges {
		n += len(es)
	}
	return n
}

// CountsByType returns node counts grouped by node type.
func (s *Store) CountsByType() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int)
	for _, n := range s.nodes {
		out[n.Type]++
	}
	return out
}

// ---------------------------------------------------------------------------
// Query matching
// ---------------------------------------------------------------------------

// FindNodesByQuery scores entity nodes against the query text and
// returns up to maxSeeds seeds, best first. Document and chunk nodes
// never seed: traversal reaches them through their entities. An exact
// substring match scores 2.0, each overlapping token adds 1.0.
func (s *Store) FindNodesByQuery(query string) []Seed {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}
	tokens := QueryTokens(query)

	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		id    string
		name  string
		score float64
	}
	var matches []scored
	for id, n := range s.nodes {
		if n.Type == NodeDocument || n.Type == NodeChunk {
			continue
		}
		if n.Name == "" {
			continue
		}
		score := 0.0
		if strings.Contains(query, n.Name) || strings.Contains(n.Name, query) {
			score += 2.0
		}
		for _, tok := range tokens {
			if strings.Contains(n.Name, tok) {
				score += 1.0
			}
		}
		if score > 0 {
			matches = append(matches, scored{id: id, name: n.Name, score: score})
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score > matches[j].score
		}
		return matches[i].name < matches[j].name
	})
	if len(matches) > maxSeeds {
		matches = matches[:maxSeeds]
	}

	seeds := make([]Seed, len(matches))
	for i, m := range matches {
		seeds[i] = Seed{ID: m.id, Score: m.score}
	}
	return seeds
}

// QueryTokens splits query text into matchable tokens: latin words,
// digit runs, and CJK bigrams. Single CJK characters are too noisy to
// match on.
func QueryTokens(query string) []string {
	var tokens []string
	seen := map[string]bool{}
	add := func(t string) {
		if t != "" && !seen[t] {
			seen[t] = true
			tokens = append(tokens, t)
		}
	}

	var latin []rune
	var han []rune
	flushLatin := func() {
		if len(latin) >= 2 {
			add(strings.ToLower(string(latin)))
		}
		latin = latin[:0]
	}
	flushHan := func() {
		for i := 0; i+1 < len(han); i++ {
			add(string(han[i : i+2]))
		}
		if len(han) >= 3 {
			add(string(han))
		}
		han = han[:0]
	}

	for _, r := range query {
		switch {
		case unicode.Is(unicode.Han, r):
			flushLatin()
			han = append(han, r)
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			flushHan()
			latin = append(latin, r)
		default:
			flushLatin()
			flushHan()
		}
	}
	flushLatin()
	flushHan()
	return tokens
}

// ChunkNode is one chunk node with its stored attributes.
type ChunkNode struct {
	ID    string
	Name  string
	Attrs map[string]any
}

// IterChunkNodes returns chunk nodes, optionally filtered to the given
// doc types. A nil or empty filter passes everything.
func (s *Store) IterChunkNodes(docTypes []string) []ChunkNode {
	allowed := map[string]bool{}
	for _, dt := range docTypes {
		allowed[dt] = true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []ChunkNode
	for id, n := range s.nodes {
		if n.Type != NodeChunk {
			continue
		}
		if len(allowed) > 0 {
			dt, _ := n.Attrs["doc_type"].(string)
			if !allowed[dt] {
				continue
			}
		}
		out = append(out, ChunkNode{ID: id, Name: n.Name, Attrs: n.Attrs})
	}
	return out
}

// ---------------------------------------------------------------------------
// Persistence
// ---------------------------------------------------------------------------

type persistedGraph struct {
	Nodes map[string]*Node  `json:"nodes"`
	Edges map[string][]Edge `json:"edges"`
}

// Save writes the graph to path as one JSON document.
func (s *Store) Save(path string) error {
	s.mu.RLock()
	doc := persistedGraph{Nodes: s.nodes, Edges: s.edges}
	data, err := json.Marshal(doc)
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode graph: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create graph dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write graph file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace graph file: %w", err)
	}
	return nil
}

// Load replaces the in-memory graph with the file's content. A missing
// file leaves an empty graph. A file that fails to decode leaves the
// previous state untouched and returns the error; a partially loaded
// graph is never installed.
func (s *Store) Load(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read graph file: %w", err)
	}

	var doc persistedGraph
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("decode graph file %s: %w", path, err)
	}
	if doc.Nodes == nil {
		doc.Nodes = make(map[string]*Node)
	}
	if doc.Edges == nil {
		doc.Edges = make(map[string][]Edge)
	}

	s.mu.Lock()
	s.nodes = doc.Nodes
	s.edges = doc.Edges
	s.mu.Unlock()
	return nil
}

// Replace swaps in another store's content wholesale. Used by rebuild.
func (s *Store) Replace(other *Store) {
	other.mu.RLock()
	nodes := other.nodes
	edges := other.edges
	other.mu.RUnlock()

	s.mu.Lock()
	s.nodes = nodes
	s.edges = edges
	s.mu.Unlock()
}

// Clear drops all nodes and edges.
func (s *Store) Clear() {
	s.mu.Lock()
	s.nodes = make(map[string]*Node)
	s.edges = make(map[string][]Edge)
	s.mu.Unlock()
}
