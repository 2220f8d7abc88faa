package model

// EventRecord is one discrete state change consumed by the downstream
// physics simulators. Records are globally time-sorted on finalize.
type EventRecord struct {
	Time      int64   `json:"time_stamp"`
	Component string  `json:"component"`
	PerfLevel float64 `json:"perf_level"`
	State     State   `json:"component_state"`
}

// SummaryRow is the wide-form schedule for one component.
type SummaryRow struct {
	Component       string `json:"component"`
	DisruptTime     int64  `json:"disrupt_time"`
	RepairStart     int64  `json:"repair_start"`
	FunctionalStart int64  `json:"functional_start"`
}

// InfraStats aggregates crew effort for one infrastructure type.
type InfraStats struct {
	TravelMinutes   float64 `json:"travel_minutes"`
	RecoverySeconds int64   `json:"recovery_seconds"`
	Repaired        int     `json:"repaired"`
}
