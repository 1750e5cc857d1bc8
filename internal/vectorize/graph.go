package vectorize

import (
	"github.com/paulmach/orb"

	"github.com/openroads/road-extractor/internal/mask"
)

var offsets = [8][2]int{
	{-1, -1}, {-1, 0}, {-1, 1},
	{0, -1}, {0, 1},
	{1, -1}, {1, 0}, {1, 1},
}

// Node is a junction or an endpoint of the skeleton. Adjacent junction pixels
// are merged into a single node.
type Node struct {
	ID     int
	Pixels [][2]int
	// Center is the mean (row, col) of Pixels.
	Center orb.Point
}

// Edge is a traced centerline between two nodes. Path holds (row, col) points
// with both ends replaced by the node centers.
type Edge struct {
	From int
	To   int
	Path orb.LineString
}

type Graph struct {
	Nodes []Node
	Edges []Edge
}

const (
	cellEmpty = -2
	cellEdge  = -1
)

// BuildGraph turns a skeleton into an undirected graph. Pixels with a number of
// 8-neighbours other than two become nodes; chains of two-neighbour pixels become
// edges. Closed loops without any node are anchored on their first pixel and
// produce a self edge. Isolated nodes are kept but carry no edge.
func BuildGraph(skel *mask.Binary) *Graph {
	w, h := skel.Width, skel.Height
	// cell holds cellEmpty, cellEdge, or a node id
	cell := make([]int, w*h)
	for i := range cell {
		cell[i] = cellEmpty
	}

	isNode := make([]bool, w*h)
	for row := 0; row < h; row++ {
		for col := 0; col < w; col++ {
			if !skel.At(row, col) {
				continue
			}
			cell[row*w+col] = cellEdge
			if degree(skel, row, col) != 2 {
				isNode[row*w+col] = true
			}
		}
	}

	g := &Graph{}
	for row := 0; row < h; row++ {
		for col := 0; col < w; col++ {
			if isNode[row*w+col] && cell[row*w+col] == cellEdge {
				g.addNode(cell, isNode, w, h, row, col)
			}
		}
	}

	for i := range g.Nodes {
		g.traceFrom(cell, w, h, g.Nodes[i].Pixels)
	}

	// remaining edge pixels belong to rings
	for row := 0; row < h; row++ {
		for col := 0; col < w; col++ {
			if cell[row*w+col] != cellEdge {
				continue
			}
			id := len(g.Nodes)
			cell[row*w+col] = id
			g.Nodes = append(g.Nodes, Node{
				ID:     id,
				Pixels: [][2]int{{row, col}},
				Center: orb.Point{float64(row), float64(col)},
			})
			g.traceFrom(cell, w, h, g.Nodes[id].Pixels)
		}
	}

	for i := range g.Edges {
		path := g.Edges[i].Path
		path[0] = g.Nodes[g.Edges[i].From].Center
		path[len(path)-1] = g.Nodes[g.Edges[i].To].Center
	}
	return g
}

func degree(skel *mask.Binary, row, col int) int {
	n := 0
	for _, o := range offsets {
		if skel.At(row+o[0], col+o[1]) {
			n++
		}
	}
	return n
}

// addNode flood-fills the 8-connected cluster of node pixels containing (row, col).
func (g *Graph) addNode(cell []int, isNode []bool, w, h, row, col int) {
	id := len(g.Nodes)
	node := Node{ID: id}

	stack := [][2]int{{row, col}}
	cell[row*w+col] = id
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		node.Pixels = append(node.Pixels, p)

		for _, o := range offsets {
			r, c := p[0]+o[0], p[1]+o[1]
			if r < 0 || c < 0 || r >= h || c >= w {
				continue
			}
			if isNode[r*w+c] && cell[r*w+c] == cellEdge {
				cell[r*w+c] = id
				stack = append(stack, [2]int{r, c})
			}
		}
	}

	var sr, sc float64
	for _, p := range node.Pixels {
		sr += float64(p[0])
		sc += float64(p[1])
	}
	n := float64(len(node.Pixels))
	node.Center = orb.Point{sr / n, sc / n}
	g.Nodes = append(g.Nodes, node)
}

func (g *Graph) traceFrom(cell []int, w, h int, pixels [][2]int) {
	for _, p := range pixels {
		for _, o := range offsets {
			r, c := p[0]+o[0], p[1]+o[1]
			if r < 0 || c < 0 || r >= h || c >= w {
				continue
			}
			if cell[r*w+c] != cellEdge {
				continue
			}
			if e, ok := trace(cell, w, h, r, c); ok {
				g.Edges = append(g.Edges, e)
			}
		}
	}
}

// trace walks a chain of edge pixels starting at (row, col). The first node pixel
// seen is the start of the edge, the next one ends it. Visited pixels are cleared
// so every chain is traced once.
func trace(cell []int, w, h, row, col int) (Edge, bool) {
	from, to := -1, -1
	var head, tail [2]int
	var path []orb.Point

	for {
		cell[row*w+col] = cellEmpty
		path = append(path, orb.Point{float64(row), float64(col)})

		next := [2]int{-1, -1}
		for _, o := range offsets {
			r, c := row+o[0], col+o[1]
			if r < 0 || c < 0 || r >= h || c >= w {
				continue
			}
			v := cell[r*w+c]
			switch {
			case v >= 0:
				if from < 0 {
					from, head = v, [2]int{r, c}
				} else {
					to, tail = v, [2]int{r, c}
				}
			case v == cellEdge:
				next = [2]int{r, c}
			}
		}
		if to >= 0 {
			break
		}
		if next[0] < 0 {
			// dangling chain, cannot happen on a clean skeleton
			return Edge{}, false
		}
		row, col = next[0], next[1]
	}
	if from < 0 {
		return Edge{}, false
	}

	line := make(orb.LineString, 0, len(path)+2)
	line = append(line, orb.Point{float64(head[0]), float64(head[1])})
	line = append(line, path...)
	line = append(line, orb.Point{float64(tail[0]), float64(tail[1])})
	return Edge{From: from, To: to, Path: line}, true
}
