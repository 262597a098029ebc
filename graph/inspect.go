package graph

// Inspection surfaces over the graph: overview counts, neighborhood
// subgraphs and shortest paths. Read-only.

// Overview summarizes graph size and composition.
type Overview struct {
	Nodes       int            `json:"nodes"`
	Edges       int            `json:"edges"`
	NodesByType map[string]int `json:"nodes_by_type"`
}

// Overview reports node/edge totals and per-type node counts.
func (s *Store) Overview() Overview {
	return Overview{
		Nodes:       s.NodeCount(),
		Edges:       s.EdgeCount(),
		NodesByType: s.CountsByType(),
	}
}

// SubgraphNode is one node in an extracted neighborhood.
type SubgraphNode struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Name  string `json:"name"`
	Label string `json:"label"`
	Depth int    `json:"depth"`
}

// SubgraphEdge is one edge in an extracted neighborhood.
type SubgraphEdge struct {
	Source   string  `json:"source"`
	Target   string  `json:"target"`
	Relation string  `json:"relation"`
	Weight   float64 `json:"weight"`
}

// Subgraph is the neighborhood around a center node.
type Subgraph struct {
	Center string         `json:"center"`
	Nodes  []SubgraphNode `json:"nodes"`
	Edges  []SubgraphEdge `json:"edges"`
}

// SubgraphAround extracts the neighborhood within depth hops of
// center. Returns false when the center node does not exist.
func (s *Store) SubgraphAround(center string, depth int) (Subgraph, bool) {
	if _, ok := s.Node(center); !ok {
		return Subgraph{}, false
	}
	if depth < 1 {
		depth = 1
	}

	sub := Subgraph{Center: center}
	seen := map[string]int{center: 0}
	queue := []string{center}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		d := seen[id]

		node, ok := s.Node(id)
		if !ok {
			continue
		}
		sub.Nodes = append(sub.Nodes, SubgraphNode{
			ID: id, Type: node.Type, Name: node.Name,
			Label: Label(node.Type), Depth: d,
		})
		if d >= depth {
			continue
		}
		for _, edge := range s.Neighbors(id) {
			sub.Edges = append(sub.Edges, SubgraphEdge{
				Source: id, Target: edge.Target,
				Relation: edge.Relation, Weight: edge.Weight,
			})
			if _, visited := seen[edge.Target]; !visited {
				seen[edge.Target] = d + 1
				queue = append(queue, edge.Target)
			}
		}
	}
	return sub, true
}

// ShortestPath returns the node id sequence of an unweighted shortest
// path from one node to another, or false when no path exists.
func (s *Store) ShortestPath(from, to string) ([]string, bool) {
	if _, ok := s.Node(from); !ok {
		return nil, false
	}
	if _, ok := s.Node(to); !ok {
		return nil, false
	}
	if from == to {
		return []string{from}, true
	}

	parent := map[string]string{from: ""}
	queue := []string{from}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, edge := range s.Neighbors(id) {
			if _, seen := parent[edge.Target]; seen {
				continue
			}
			parent[edge.Target] = id
			if edge.Target == to {
				return reconstructPath(parent, to), true
			}
			queue = append(queue, edge.Target)
		}
	}
	return nil, false
}

func reconstructPath(parent map[string]string, to string) []string {
	var rev []string
	for id := to; id != ""; id = parent[id] {
		rev = append(rev, id)
	}
	path := make([]string, len(rev))
	for i, id := range rev {
		path[len(rev)-1-i] = id
	}
	return path
}
