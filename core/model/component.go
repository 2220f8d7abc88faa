package model

import (
	"fmt"
	"strings"
)

// InfraType identifies one of the three coupled network layers.
type InfraType string

const (
	Power   InfraType = "power"
	Water   InfraType = "water"
	Transpo InfraType = "transpo"
)

// Infras lists the infrastructure types in a stable order.
var Infras = []InfraType{Power, Water, Transpo}

// State is the lifecycle state of a component.
type State string

const (
	StateFunctional State = "Functional"
	StateDisrupted  State = "Service Disrupted"
	StateIsolated   State = "Isolated"
	StateRepairing  State = "Repairing"
	StateRestored   State = "Service Restored"
)

// Class distinguishes point components from connecting components.
type Class string

const (
	ClassNode Class = "node"
	ClassLink Class = "link"
)

// Isolation groups used by the event table's closure policies.
const (
	GroupPipes = "pipes"
	GroupLines = "lines"
)

// TypeSpec is the static metadata for one component type code.
type TypeSpec struct {
	Name        string
	Class       Class
	RepairHours float64
	// Group marks the component as subject to an isolation policy
	// (pipes, power lines). Empty for everything else.
	Group string
}

// Catalog maps infrastructure type and type code to component metadata.
// It is read-only after construction and passed explicitly to the registry.
type Catalog map[InfraType]map[string]TypeSpec

// DefaultCatalog returns the component catalog with base repair times in
// hours for every supported type code.
func DefaultCatalog() Catalog {
	return Catalog{
		Water: {
			"WP":  {Name: "Pump", Class: ClassLink, RepairHours: 12},
			"R":   {Name: "Reservoir", Class: ClassNode, RepairHours: 24},
			"P":   {Name: "Pipe", Class: ClassLink, RepairHours: 12, Group: GroupPipes},
			"PSC": {Name: "Service Connection Pipe", Class: ClassLink, RepairHours: 2, Group: GroupPipes},
			"PMA": {Name: "Main Pipe", Class: ClassLink, RepairHours: 12, Group: GroupPipes},
			"PHC": {Name: "Hydrant Connection Pipe", Class: ClassLink, RepairHours: 4, Group: GroupPipes},
			"PV":  {Name: "Valve converted to Pipe", Class: ClassLink, RepairHours: 2, Group: GroupPipes},
			"PTV": {Name: "Tank Valve converted to Pipe", Class: ClassLink, RepairHours: 2, Group: GroupPipes},
			"J":   {Name: "Junction", Class: ClassNode, RepairHours: 5},
			"T":   {Name: "Tank", Class: ClassNode, RepairHours: 24},
		},
		Power: {
			"B":  {Name: "Bus", Class: ClassNode, RepairHours: 3},
			"BL": {Name: "Bus connected to load", Class: ClassNode, RepairHours: 3},
			"BS": {Name: "Bus connected to switch", Class: ClassNode, RepairHours: 3},
			"LO": {Name: "Load", Class: ClassNode, RepairHours: 3},
			"G":  {Name: "Generator", Class: ClassNode, RepairHours: 24},
			"MP": {Name: "Motor Pump", Class: ClassNode, RepairHours: 10},
			"ST": {Name: "Storage", Class: ClassNode, RepairHours: 5},
			"EG": {Name: "External Grid", Class: ClassNode, RepairHours: 10},
			"S":  {Name: "Switch", Class: ClassLink, RepairHours: 4},
			"L":  {Name: "Line", Class: ClassLink, RepairHours: 5, Group: GroupLines},
			"LS": {Name: "Line connected to switch", Class: ClassLink, RepairHours: 5, Group: GroupLines},
			"TF": {Name: "Transformer", Class: ClassLink, RepairHours: 10},
			"I":  {Name: "Impedance", Class: ClassLink, RepairHours: 5},
			"DL": {Name: "DC Line", Class: ClassLink, RepairHours: 3, Group: GroupLines},
		},
		Transpo: {
			"J": {Name: "Junction", Class: ClassNode, RepairHours: 24},
			"L": {Name: "Link", Class: ClassLink, RepairHours: 24},
		},
	}
}

// Details holds the catalog lookup result for a component id.
type Details struct {
	Infra    InfraType
	TypeCode string
	Spec     TypeSpec
}

var infraPrefixes = map[string]InfraType{
	"P": Power,
	"W": Water,
	"T": Transpo,
}

// ParseComponentID resolves a component id of the form <P|W|T>_<typecode><n>
// against the catalog.
func ParseComponentID(catalog Catalog, id string) (Details, error) {
	prefix, rest, ok := strings.Cut(id, "_")
	if !ok {
		return Details{}, fmt.Errorf("component %q: missing infrastructure prefix", id)
	}
	infra, ok := infraPrefixes[prefix]
	if !ok {
		return Details{}, fmt.Errorf("component %q: unknown infrastructure prefix %q", id, prefix)
	}
	var code strings.Builder
	for _, r := range rest {
		if r >= 'A' && r <= 'Z' || r >= 'a' && r <= 'z' {
			code.WriteRune(r)
			continue
		}
		break
	}
	spec, ok := catalog[infra][code.String()]
	if !ok {
		return Details{}, fmt.Errorf("component %q: unknown type code %q for %s", id, code.String(), infra)
	}
	return Details{Infra: infra, TypeCode: code.String(), Spec: spec}, nil
}

// Component is one registered infrastructure component and its mutable
// lifecycle state. Components are created at ingest and never deleted
// during a run.
type Component struct {
	ID string
	Details

	DisruptionTime int64 // seconds
	FailPct        float64
	// RecoveryOverride is an externally supplied recovery duration in
	// seconds. Zero means no override.
	RecoveryOverride int64

	State State
}

// RecoveryDuration returns the repair duration in seconds: the override when
// present, otherwise the type's base repair time scaled by the damage
// percentage.
func (c *Component) RecoveryDuration() int64 {
	if c.RecoveryOverride > 0 {
		return c.RecoveryOverride
	}
	return int64(c.Spec.RepairHours * 3600 * c.FailPct / 100)
}

// Disruption is one row of the externally supplied disruption list.
type Disruption struct {
	Time      int64   `json:"time_stamp"`
	Component string  `json:"component"`
	FailPct   float64 `json:"fail_perc"`
	// RecoveryTime optionally overrides the derived repair duration, in
	// seconds. Zero means derive from the catalog.
	RecoveryTime int64 `json:"recovery_time"`
}
