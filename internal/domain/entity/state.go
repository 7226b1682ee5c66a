package entity

// JobState is a step of the job processing state machine.
type JobState int

const (
	StateIdle JobState = iota
	StateLeaseAcquired
	StateProtectionEngaged
	StateDownloaded
	StatePipelineRunning
	StateCompleted
	StateAcknowledged
	StateLeaseAbandoned
)

var stateNames = [...]string{
	StateIdle:              "idle",
	StateLeaseAcquired:     "lease_acquired",
	StateProtectionEngaged: "protection_engaged",
	StateDownloaded:        "downloaded",
	StatePipelineRunning:   "pipeline_running",
	StateCompleted:         "completed",
	StateAcknowledged:      "acknowledged",
	StateLeaseAbandoned:    "lease_abandoned",
}

func (s JobState) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}
