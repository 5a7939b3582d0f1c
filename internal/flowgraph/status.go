package flowgraph

import "fmt"

// Status is the execution state of a flowgraph node.
type Status string

const (
	// StatusPending marks a node waiting on its inputs.
	StatusPending Status = "pending"
	// StatusQueued marks a node ready to run and waiting for a slot.
	StatusQueued Status = "queued"
	// StatusRunning marks a node currently executing.
	StatusRunning Status = "running"

	// Exit states.
	StatusSuccess Status = "success"
	StatusError   Status = "error"
	StatusSkipped Status = "skipped"
	StatusTimeout Status = "timeout"
)

// ParseStatus parses the manifest form of a node status.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusQueued, StatusRunning,
		StatusSuccess, StatusError, StatusSkipped, StatusTimeout:
		return Status(s), nil
	}
	return "", fmt.Errorf("unknown node status %q", s)
}

// IsDone reports whether the node reached an exit state.
func (s Status) IsDone() bool {
	switch s {
	case StatusSuccess, StatusError, StatusSkipped, StatusTimeout:
		return true
	}
	return false
}

// IsRunning reports whether the node is queued or executing.
func (s Status) IsRunning() bool {
	return s == StatusQueued || s == StatusRunning
}

// IsWaiting reports whether the node has not been scheduled yet.
func (s Status) IsWaiting() bool {
	return s == StatusPending
}

// IsSuccess reports whether the node finished without failing. Skipped
// nodes count as successful.
func (s Status) IsSuccess() bool {
	return s == StatusSuccess || s == StatusSkipped
}

// IsError reports whether the node failed or timed out.
func (s Status) IsError() bool {
	return s == StatusError || s == StatusTimeout
}
