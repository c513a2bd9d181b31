// Package store defines the persistence boundary for orders, settings,
// patients and the audit log.
//
// Every order mutation is paired with exactly one audit entry and a backend
// must commit both or neither.
package store

import (
	"context"

	"waiterboard/domain/waiter"
)

type Orders interface {
	// InsertOrder assigns o an ID and stores it together with entry. The
	// entry's RecordID and After snapshot are filled in with the new ID.
	InsertOrder(ctx context.Context, o waiter.Order, entry waiter.AuditEntry) (waiter.Order, error)
	// UpdateOrder replaces the stored row for o.ID and appends entry.
	UpdateOrder(ctx context.Context, o waiter.Order, entry waiter.AuditEntry) error
	// DeleteOrder removes the row and appends entry.
	DeleteOrder(ctx context.Context, id int64, entry waiter.AuditEntry) error
	GetOrder(ctx context.Context, id int64) (waiter.Order, error)
	ListOrders(ctx context.Context, includeCompleted bool) ([]waiter.Order, error)
}

type Settings interface {
	Settings(ctx context.Context) (map[string]string, error)
	PutSettings(ctx context.Context, kv map[string]string) error
}

type Patients interface {
	PatientByMRN(ctx context.Context, mrn string) (waiter.Patient, error)
	ListPatients(ctx context.Context) ([]waiter.Patient, error)
	InsertPatient(ctx context.Context, p waiter.Patient) (waiter.Patient, error)
	// UpsertPatients inserts patients whose MRN is not yet known and returns
	// how many were added.
	UpsertPatients(ctx context.Context, ps []waiter.Patient) (int, error)
}

type Audit interface {
	// ListAudit returns up to limit entries, newest first.
	ListAudit(ctx context.Context, limit int) ([]waiter.AuditEntry, error)
	// RecordAudit returns the history of one order, oldest first.
	RecordAudit(ctx context.Context, recordID int64) ([]waiter.AuditEntry, error)
}

type Store interface {
	Orders
	Settings
	Patients
	Audit
	Close() error
}
