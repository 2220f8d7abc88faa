package transpo

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/crisisworks/lifeline/core/logger"
)

// ImpassableMinutes models a failed link: the cost is large enough that a
// route through it is only chosen when no intact alternative exists, yet
// finite so the blocked route stays observable to the scheduler.
const ImpassableMinutes = 9999

// ErrNoRoute is returned when the destination is unreachable from the
// origin in the queried snapshot, failed links included.
var ErrNoRoute = errors.New("transpo: no route")

// Route is one shortest-path result.
type Route struct {
	Nodes   []string
	Links   []string
	Minutes float64
}

// snapshot is a point-in-time copy of the edge costs, immutable once built.
type snapshot struct {
	activation int64
	graph      *simple.WeightedDirectedGraph
	// edgeLink resolves a traversed (from, to) pair back to the link id
	// whose cost won the edge.
	edgeLink map[[2]int64]string
}

// linkChange is one cost transition: a link failing at a disruption time or
// regaining its nominal cost at a repair completion time.
type linkChange struct {
	at     int64
	linkID string
	failed bool
}

// CostModel is a versioned shortest-path oracle over the transportation
// graph. Failing or repairing a link records a change and rebuilds the
// affected snapshots; a query "as of" time T uses the latest snapshot
// activated at or before T, so queries never observe future repairs.
// Snapshots are run-scoped.
type CostModel struct {
	net *Network
	// failed is the link state after every recorded change, regardless of
	// activation time.
	failed  map[string]bool
	changes []linkChange
	snaps   []snapshot
	log     logger.Logger
}

// NewCostModel builds the model with a base snapshot of nominal costs.
func NewCostModel(net *Network, log logger.Logger) *CostModel {
	m := &CostModel{net: net, failed: make(map[string]bool), log: log}
	m.snaps = []snapshot{m.buildSnapshot(math.MinInt64, nil)}
	return m
}

// FailLink sets the link cost to the impassable sentinel from the given time
// onward (the simulation origin for seed disruptions).
func (m *CostModel) FailLink(linkID string, at int64) error {
	if _, err := m.net.Link(linkID); err != nil {
		return err
	}
	m.failed[linkID] = true
	m.insertChange(linkChange{at: at, linkID: linkID, failed: true})
	m.log.Debugw("transportation link failed", map[string]any{"link": linkID, "activation": at})
	return nil
}

// RepairLink restores the nominal link cost from the repair completion time
// onward.
func (m *CostModel) RepairLink(linkID string, completion int64) error {
	if _, err := m.net.Link(linkID); err != nil {
		return err
	}
	delete(m.failed, linkID)
	m.insertChange(linkChange{at: completion, linkID: linkID, failed: false})
	m.log.Debugw("transportation link repaired", map[string]any{"link": linkID, "activation": completion})
	return nil
}

// Failed reports whether the link is impassable after every recorded change.
func (m *CostModel) Failed(linkID string) bool { return m.failed[linkID] }

// SnapshotCount returns the number of snapshots recorded so far.
func (m *CostModel) SnapshotCount() int { return len(m.snaps) }

// ShortestTravelTime runs Dijkstra over the snapshot active at asOf and
// returns the minimum-cost route from origin to destination in minutes.
func (m *CostModel) ShortestTravelTime(origin, destination string, asOf int64) (Route, error) {
	oid, ok := m.net.index[origin]
	if !ok {
		return Route{}, fmt.Errorf("%w: %s", ErrUnknownNode, origin)
	}
	did, ok := m.net.index[destination]
	if !ok {
		return Route{}, fmt.Errorf("%w: %s", ErrUnknownNode, destination)
	}
	snap := m.active(asOf)
	if oid == did {
		return Route{Nodes: []string{origin}}, nil
	}
	shortest := path.DijkstraFrom(snap.graph.Node(oid), snap.graph)
	nodes, minutes := shortest.To(did)
	if math.IsInf(minutes, 1) || len(nodes) == 0 {
		return Route{}, fmt.Errorf("%w: %s -> %s", ErrNoRoute, origin, destination)
	}
	route := Route{Minutes: minutes}
	for _, n := range nodes {
		route.Nodes = append(route.Nodes, m.net.ids[n.ID()])
	}
	for i := 1; i < len(nodes); i++ {
		route.Links = append(route.Links, snap.edgeLink[[2]int64{nodes[i-1].ID(), nodes[i].ID()}])
	}
	return route, nil
}

// active returns the latest snapshot with activation <= asOf. The base
// snapshot guarantees a match.
func (m *CostModel) active(asOf int64) *snapshot {
	i := sort.Search(len(m.snaps), func(i int) bool { return m.snaps[i].activation > asOf })
	return &m.snaps[i-1]
}

// insertChange splices the change into timestamp order and rebuilds every
// snapshot from that point on. Repairs committed by different crews may
// complete out of timestamp order; rebuilding the suffix keeps every
// snapshot priced by the changes at or before its own activation only, so
// a query at an earlier time never observes a later completion.
func (m *CostModel) insertChange(c linkChange) {
	pos := sort.Search(len(m.changes), func(i int) bool { return m.changes[i].at > c.at })
	m.changes = append(m.changes, linkChange{})
	copy(m.changes[pos+1:], m.changes[pos:])
	m.changes[pos] = c

	state := make(map[string]bool)
	for _, ch := range m.changes[:pos] {
		applyChange(state, ch)
	}
	// snaps[0] is the base; snaps[i+1] belongs to changes[i].
	m.snaps = m.snaps[:pos+1]
	for _, ch := range m.changes[pos:] {
		applyChange(state, ch)
		m.snaps = append(m.snaps, m.buildSnapshot(ch.at, state))
	}
}

func applyChange(state map[string]bool, c linkChange) {
	if c.failed {
		state[c.linkID] = true
	} else {
		delete(state, c.linkID)
	}
}

// buildSnapshot copies the link costs implied by the given failure set into
// an immutable snapshot.
func (m *CostModel) buildSnapshot(activation int64, failed map[string]bool) snapshot {
	g := simple.NewWeightedDirectedGraph(0, math.Inf(1))
	for i := range m.net.ids {
		g.AddNode(simple.Node(int64(i)))
	}
	edgeLink := make(map[[2]int64]string, len(m.net.linkOrder))
	for _, linkID := range m.net.linkOrder {
		l := m.net.links[linkID]
		cost := l.FreeFlowMinutes
		if failed[linkID] {
			cost = ImpassableMinutes
		}
		f, t := m.net.index[l.From], m.net.index[l.To]
		key := [2]int64{f, t}
		// Parallel links: the cheaper one defines the edge.
		if existing := g.WeightedEdge(f, t); existing != nil && existing.Weight() <= cost {
			continue
		}
		g.SetWeightedEdge(simple.WeightedEdge{F: simple.Node(f), T: simple.Node(t), W: cost})
		edgeLink[key] = linkID
	}
	return snapshot{activation: activation, graph: g, edgeLink: edgeLink}
}
