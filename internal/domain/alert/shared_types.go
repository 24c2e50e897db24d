// internal/domain/alert/shared_types.go
package alert

// Status is the persisted lifecycle state of an emergency alert.
type Status string

const (
	StatusActive   Status = "Active"
	StatusResolved Status = "Resolved"
)

// Phase is the dispatch state machine of an alert:
// Created -> Dispatching -> Dispatched(partial|complete) -> Resolved.
// Only Status is persisted; the dispatching phases live with the dispatcher.
type Phase string

const (
	PhaseCreated            Phase = "created"
	PhaseDispatching        Phase = "dispatching"
	PhaseDispatchedPartial  Phase = "dispatched_partial"
	PhaseDispatchedComplete Phase = "dispatched_complete"
	PhaseResolved           Phase = "resolved"
)

// ResponseStatus is a recipient's reaction to an alert.
type ResponseStatus string

const (
	ResponseNone         ResponseStatus = ""
	ResponseAcknowledged ResponseStatus = "Acknowledged"
	ResponseDeclined     ResponseStatus = "Declined"
	ResponseTimedOut     ResponseStatus = "TimedOut"
)

// IsRecipientAnswer reports whether s can be submitted by a recipient.
// TimedOut is reserved for the sweep.
func (s ResponseStatus) IsRecipientAnswer() bool {
	return s == ResponseAcknowledged || s == ResponseDeclined
}
