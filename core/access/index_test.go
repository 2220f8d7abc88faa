package access

import (
	"errors"
	"testing"

	"github.com/crisisworks/lifeline/core/transpo"
)

func TestBuildNearest(t *testing.T) {
	nodes := []transpo.Node{
		{ID: "T_J1", X: 0, Y: 0},
		{ID: "T_J2", X: 100, Y: 0},
		{ID: "T_J3", X: 0, Y: 100},
	}
	connections := map[string][]Coord{
		// A pipe with two ends near different junctions.
		"W_PMA1": {{X: 5, Y: 2}, {X: 95, Y: 1}},
		// A bus next to a single junction.
		"P_B2": {{X: 1, Y: 98}},
		// Both ends nearest to the same junction: deduplicated.
		"W_PSC3": {{X: 98, Y: 3}, {X: 97, Y: 2}},
	}
	ix, err := Build(connections, nodes)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	got, err := ix.NearestTransportNodes("W_PMA1")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if len(got) != 2 || got[0] != "T_J1" || got[1] != "T_J2" {
		t.Fatalf("W_PMA1 access nodes %v", got)
	}

	got, err = ix.NearestTransportNodes("P_B2")
	if err != nil || len(got) != 1 || got[0] != "T_J3" {
		t.Fatalf("P_B2 access nodes %v %v", got, err)
	}

	got, err = ix.NearestTransportNodes("W_PSC3")
	if err != nil || len(got) != 1 || got[0] != "T_J2" {
		t.Fatalf("W_PSC3 access nodes %v %v", got, err)
	}
}

func TestUnknownComponent(t *testing.T) {
	ix := NewIndex(map[string][]string{"W_P1": {"T_J1"}})
	if _, err := ix.NearestTransportNodes("W_P2"); !errors.Is(err, ErrNoAccessNodes) {
		t.Fatalf("expected ErrNoAccessNodes, got %v", err)
	}
}

func TestNewIndexCopies(t *testing.T) {
	src := map[string][]string{"W_P1": {"T_J1", "T_J2"}}
	ix := NewIndex(src)
	src["W_P1"][0] = "T_J9"
	got, err := ix.NearestTransportNodes("W_P1")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got[0] != "T_J1" {
		t.Fatalf("index aliases caller slice: %v", got)
	}
}
