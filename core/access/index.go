package access

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/spatial/kdtree"

	"github.com/crisisworks/lifeline/core/transpo"
)

// ErrNoAccessNodes is returned when a component has no known access node.
var ErrNoAccessNodes = errors.New("access: no access nodes for component")

// Coord is a planar coordinate in the network's projection.
type Coord struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Index maps a power or water component to the transportation node(s)
// nearest its physical connection points. It is precomputed once from static
// geometry and read-only during scheduling.
type Index struct {
	nodes map[string][]string
}

// NewIndex wraps a precomputed component -> access nodes mapping.
func NewIndex(mapping map[string][]string) *Index {
	nodes := make(map[string][]string, len(mapping))
	for id, ns := range mapping {
		nodes[id] = append([]string(nil), ns...)
	}
	return &Index{nodes: nodes}
}

// Build computes the index from component connection points and
// transportation node coordinates using a k-d tree nearest-neighbour query.
// A component incident to several connection points (a pipe's two ends) gets
// one candidate per point, deduplicated.
func Build(connections map[string][]Coord, nodes []transpo.Node) (*Index, error) {
	if len(nodes) == 0 {
		return nil, errors.New("access: no transportation nodes")
	}
	pts := make(accessPoints, 0, len(nodes))
	for _, n := range nodes {
		pts = append(pts, accessPoint{id: n.ID, x: n.X, y: n.Y})
	}
	tree := kdtree.New(pts, false)

	mapping := make(map[string][]string, len(connections))
	for id, coords := range connections {
		if len(coords) == 0 {
			return nil, fmt.Errorf("access: component %s has no connection points", id)
		}
		seen := make(map[string]bool, len(coords))
		for _, c := range coords {
			got, _ := tree.Nearest(accessPoint{x: c.X, y: c.Y})
			node := got.(accessPoint).id
			if !seen[node] {
				seen[node] = true
				mapping[id] = append(mapping[id], node)
			}
		}
	}
	return &Index{nodes: mapping}, nil
}

// NearestTransportNodes returns the candidate access nodes for the component.
func (ix *Index) NearestTransportNodes(componentID string) ([]string, error) {
	ns, ok := ix.nodes[componentID]
	if !ok || len(ns) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoAccessNodes, componentID)
	}
	return ns, nil
}

// accessPoint adapts a transportation node to the kdtree interfaces.
type accessPoint struct {
	id   string
	x, y float64
}

func (p accessPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(accessPoint)
	switch d {
	case 0:
		return p.x - q.x
	case 1:
		return p.y - q.y
	default:
		panic("access: illegal dimension")
	}
}

func (p accessPoint) Dims() int { return 2 }

func (p accessPoint) Distance(c kdtree.Comparable) float64 {
	q := c.(accessPoint)
	dx, dy := p.x-q.x, p.y-q.y
	return dx*dx + dy*dy
}

type accessPoints []accessPoint

func (p accessPoints) Index(i int) kdtree.Comparable { return p[i] }
func (p accessPoints) Len() int                      { return len(p) }
func (p accessPoints) Pivot(d kdtree.Dim) int        { return plane{accessPoints: p, Dim: d}.Pivot() }
func (p accessPoints) Slice(start, end int) kdtree.Interface {
	return p[start:end]
}

// plane is required by the kdtree Interface to pivot on a dimension.
type plane struct {
	kdtree.Dim
	accessPoints
}

func (p plane) Less(i, j int) bool {
	switch p.Dim {
	case 0:
		return p.accessPoints[i].x < p.accessPoints[j].x
	case 1:
		return p.accessPoints[i].y < p.accessPoints[j].y
	default:
		panic("access: illegal dimension")
	}
}

func (p plane) Pivot() int { return kdtree.Partition(p, kdtree.MedianOfMedians(p)) }

func (p plane) Slice(start, end int) kdtree.SortSlicer {
	p.accessPoints = p.accessPoints[start:end]
	return p
}

func (p plane) Swap(i, j int) {
	p.accessPoints[i], p.accessPoints[j] = p.accessPoints[j], p.accessPoints[i]
}
