package recovery

import "github.com/crisisworks/lifeline/core/model"

// DispatchEvent is published when a repair job is committed to a crew.
type DispatchEvent struct {
	RunID         string
	Component     string
	Infra         model.InfraType
	CrewID        int
	AccessNode    string
	TravelMinutes float64
	RecoveryStart int64
	RecoveryEnd   int64
	// Forced marks a dispatch committed after a stalled scan, using the
	// earliest known blocker completion as the departure time.
	Forced bool
}

// DeferEvent is published when a candidate cannot be dispatched in the
// current scan.
type DeferEvent struct {
	RunID     string
	Component string
	CrewID    int
	// Blockers are the unrepaired transportation links on the best route.
	Blockers []string
	Reason   string
}

// LinkRepairEvent is published when a transportation link repair completes
// and a new cost snapshot is activated.
type LinkRepairEvent struct {
	RunID      string
	Link       string
	Completion int64
}
