package transpo

import (
	"errors"
	"fmt"
)

// ErrUnknownNode is returned for queries on nodes outside the graph.
var ErrUnknownNode = errors.New("transpo: unknown node")

// ErrUnknownLink is returned for cost updates on links outside the graph.
var ErrUnknownLink = errors.New("transpo: unknown link")

// Node is one transportation junction.
type Node struct {
	ID string  `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}

// Link is one directed road link. FreeFlowMinutes is the nominal travel
// cost; LengthM and Capacity are carried for the traffic collaborators.
type Link struct {
	ID              string  `json:"id"`
	From            string  `json:"from"`
	To              string  `json:"to"`
	FreeFlowMinutes float64 `json:"free_flow_minutes"`
	LengthM         float64 `json:"length_m"`
	Capacity        float64 `json:"capacity"`
}

// Network is the static transportation graph: node set, directed links and
// an internal integer index for the shortest-path solver. It is immutable
// after construction; time-varying costs live in the CostModel.
type Network struct {
	nodes     map[string]Node
	nodeOrder []string
	index     map[string]int64 // node id -> dense graph id
	ids       []string         // dense graph id -> node id
	links     map[string]Link
	linkOrder []string
}

// NewNetwork validates and indexes the transportation graph.
func NewNetwork(nodes []Node, links []Link) (*Network, error) {
	n := &Network{
		nodes: make(map[string]Node, len(nodes)),
		index: make(map[string]int64, len(nodes)),
		links: make(map[string]Link, len(links)),
	}
	for _, node := range nodes {
		if _, ok := n.nodes[node.ID]; ok {
			return nil, fmt.Errorf("transpo: duplicate node %s", node.ID)
		}
		n.nodes[node.ID] = node
		n.index[node.ID] = int64(len(n.ids))
		n.ids = append(n.ids, node.ID)
		n.nodeOrder = append(n.nodeOrder, node.ID)
	}
	for _, l := range links {
		if _, ok := n.links[l.ID]; ok {
			return nil, fmt.Errorf("transpo: duplicate link %s", l.ID)
		}
		if _, ok := n.nodes[l.From]; !ok {
			return nil, fmt.Errorf("transpo: link %s: %w: %s", l.ID, ErrUnknownNode, l.From)
		}
		if _, ok := n.nodes[l.To]; !ok {
			return nil, fmt.Errorf("transpo: link %s: %w: %s", l.ID, ErrUnknownNode, l.To)
		}
		if l.From == l.To {
			return nil, fmt.Errorf("transpo: link %s is a self loop", l.ID)
		}
		if l.FreeFlowMinutes <= 0 {
			return nil, fmt.Errorf("transpo: link %s has non-positive cost", l.ID)
		}
		n.links[l.ID] = l
		n.linkOrder = append(n.linkOrder, l.ID)
	}
	return n, nil
}

// Link returns the static link definition.
func (n *Network) Link(id string) (Link, error) {
	l, ok := n.links[id]
	if !ok {
		return Link{}, fmt.Errorf("%w: %s", ErrUnknownLink, id)
	}
	return l, nil
}

// HasNode reports whether the node exists in the graph.
func (n *Network) HasNode(id string) bool {
	_, ok := n.nodes[id]
	return ok
}

// Nodes returns all nodes in insertion order.
func (n *Network) Nodes() []Node {
	out := make([]Node, 0, len(n.nodeOrder))
	for _, id := range n.nodeOrder {
		out = append(out, n.nodes[id])
	}
	return out
}

// Links returns all links in insertion order.
func (n *Network) Links() []Link {
	out := make([]Link, 0, len(n.linkOrder))
	for _, id := range n.linkOrder {
		out = append(out, n.links[id])
	}
	return out
}
