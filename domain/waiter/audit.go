package waiter

import "time"

type Action string

const (
	ActionCreate    Action = "create"
	ActionUpdate    Action = "update"
	ActionDelete    Action = "delete"
	ActionAutoClear Action = "auto_clear"
)

// AuditEntry is one append-only row describing a mutation of an order.
// Before is nil for creates; After is nil for deletes.
type AuditEntry struct {
	ID        int64     `json:"id"`
	RecordID  int64     `json:"record_id"`
	Action    Action    `json:"action"`
	Before    *Order    `json:"old_values"`
	After     *Order    `json:"new_values"`
	Initials  string    `json:"staff_initials"`
	Timestamp time.Time `json:"timestamp"`
}

// NewAudit snapshots before and after so later edits to either cannot leak
// into the log.
func NewAudit(action Action, before, after *Order, initials string, at time.Time) AuditEntry {
	e := AuditEntry{
		Action:    action,
		Initials:  initials,
		Timestamp: at,
	}
	if before != nil {
		e.Before = before.Clone()
		e.RecordID = before.ID
	}
	if after != nil {
		e.After = after.Clone()
		e.RecordID = after.ID
	}
	return e
}
