package eventtable

import (
	"fmt"
	"sort"

	"github.com/crisisworks/lifeline/core/model"
)

// IsolationMode selects how a damaged pipe or power line is contained before
// its crew arrives.
type IsolationMode string

const (
	// IsolationRepair waits for the repair itself; no isolation record.
	IsolationRepair IsolationMode = "repair"
	// IsolationComponent models sensor-based isolation of the single
	// component after a closure delay.
	IsolationComponent IsolationMode = "component"
	// IsolationCluster models valve- or switch-section isolation: the whole
	// section drops out, so performance goes to zero until repair.
	IsolationCluster IsolationMode = "cluster"
)

// IsolationPolicy configures containment for one component group.
type IsolationPolicy struct {
	Mode         IsolationMode `json:"mode"`
	DelaySeconds int64         `json:"delay_seconds"`
}

// Config controls time quantization and isolation behaviour.
type Config struct {
	// SimStep is the base discretization unit in seconds shared with the
	// downstream simulators. Every emitted timestamp is a multiple of
	// 2*SimStep.
	SimStep int64 `json:"sim_step"`
	// RestoreBufferSeconds delays the settled sentinel row appended after
	// restoration.
	RestoreBufferSeconds int64           `json:"restore_buffer_seconds"`
	Pipes                IsolationPolicy `json:"pipes"`
	Lines                IsolationPolicy `json:"lines"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.SimStep == 0 {
		c.SimStep = 60
	}
	if c.RestoreBufferSeconds == 0 {
		c.RestoreBufferSeconds = 240
	}
	if c.Pipes.Mode == "" {
		c.Pipes.Mode = IsolationRepair
	}
	if c.Lines.Mode == "" {
		c.Lines.Mode = IsolationRepair
	}
}

// Validate rejects unusable configurations.
func (c Config) Validate() error {
	if c.SimStep <= 0 {
		return fmt.Errorf("eventtable: sim step must be positive, got %d", c.SimStep)
	}
	for _, p := range []IsolationPolicy{c.Pipes, c.Lines} {
		switch p.Mode {
		case IsolationRepair, IsolationComponent, IsolationCluster:
		default:
			return fmt.Errorf("eventtable: unknown isolation mode %q", p.Mode)
		}
	}
	return nil
}

// Builder accumulates state-change records and the per-component summary,
// applying time quantization on every append.
type Builder struct {
	cfg     Config
	records []model.EventRecord
	summary map[string]*model.SummaryRow
	order   []string
}

// New creates a Builder. The config must have been validated.
func New(cfg Config) *Builder {
	return &Builder{cfg: cfg, summary: make(map[string]*model.SummaryRow)}
}

// Quantize snaps t to the nearest multiple of 2*SimStep with a floor of one
// quantum for positive times. Zero stays zero so the t=0 seed rows survive.
func (b *Builder) Quantize(t int64) int64 {
	quantum := 2 * b.cfg.SimStep
	if t <= 0 {
		return 0
	}
	q := (t + quantum/2) / quantum * quantum
	if q < quantum {
		q = quantum
	}
	return q
}

// Append adds one record, quantizing its timestamp.
func (b *Builder) Append(component string, t int64, perf float64, state model.State) {
	b.records = append(b.records, model.EventRecord{
		Time:      b.Quantize(t),
		Component: component,
		PerfLevel: perf,
		State:     state,
	})
}

// RecordDisruption seeds the table for one disrupted component: Functional
// at t=0 and Service Disrupted at the quantized disruption time.
func (b *Builder) RecordDisruption(c *model.Component) {
	b.Append(c.ID, 0, 100, model.StateFunctional)
	b.Append(c.ID, c.DisruptionTime, 100-c.FailPct, model.StateDisrupted)
	b.row(c).DisruptTime = b.Quantize(c.DisruptionTime)
}

// RecordRepair emits the repair timeline for one component: an optional
// Isolated record per the configured policy, Repairing at the start and just
// before the end, exactly one Service Restored record, and a settled
// Functional sentinel after the restore buffer.
func (b *Builder) RecordRepair(c *model.Component, start, end int64) {
	perf := 100 - c.FailPct
	qStart, qEnd := b.Quantize(start), b.Quantize(end)

	if iso, isoPerf, ok := b.isolation(c, qStart); ok {
		b.Append(c.ID, iso, isoPerf, model.StateIsolated)
	}

	b.Append(c.ID, qStart, perf, model.StateRepairing)
	if hold := qEnd - 2*b.cfg.SimStep; hold > qStart {
		b.Append(c.ID, hold, perf, model.StateRepairing)
	}
	b.Append(c.ID, qEnd, 100, model.StateRestored)
	b.Append(c.ID, qEnd+b.cfg.RestoreBufferSeconds, 100, model.StateFunctional)

	row := b.row(c)
	row.RepairStart = qStart
	row.FunctionalStart = qEnd
}

// isolation returns the isolation timestamp and performance level when the
// component's policy yields a time strictly between disruption and repair
// start.
func (b *Builder) isolation(c *model.Component, repairStart int64) (int64, float64, bool) {
	var policy IsolationPolicy
	switch c.Spec.Group {
	case model.GroupPipes:
		policy = b.cfg.Pipes
	case model.GroupLines:
		policy = b.cfg.Lines
	default:
		return 0, 0, false
	}
	if policy.Mode == IsolationRepair {
		return 0, 0, false
	}
	iso := b.Quantize(c.DisruptionTime + policy.DelaySeconds)
	if iso <= b.Quantize(c.DisruptionTime) || iso >= repairStart {
		return 0, 0, false
	}
	perf := 100 - c.FailPct
	if policy.Mode == IsolationCluster {
		perf = 0
	}
	return iso, perf, true
}

// Finalize returns the globally time-sorted event table and the summary in
// component registration order.
func (b *Builder) Finalize() ([]model.EventRecord, []model.SummaryRow) {
	records := append([]model.EventRecord(nil), b.records...)
	sort.SliceStable(records, func(i, j int) bool { return records[i].Time < records[j].Time })
	rows := make([]model.SummaryRow, 0, len(b.order))
	for _, id := range b.order {
		rows = append(rows, *b.summary[id])
	}
	return records, rows
}

func (b *Builder) row(c *model.Component) *model.SummaryRow {
	r, ok := b.summary[c.ID]
	if !ok {
		r = &model.SummaryRow{Component: c.ID}
		b.summary[c.ID] = r
		b.order = append(b.order, c.ID)
	}
	return r
}
