// Package sqlstore implements store.Store on database/sql. SQLite
// (modernc.org/sqlite, no cgo) is the default single-node deployment;
// PostgreSQL (lib/pq) is used when several boards share one database.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"waiterboard/domain/waiter"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

const orderColumns = `id, mrn, first_name, last_name, dob, num_prescriptions, comments, initials,
	order_type, due_time, created_at, printed, ready, ready_at, completed,
	moved_to_mail, moved_to_mail_at, mailed, mailed_at`

type Store struct {
	db     *sql.DB
	driver string
}

// Open connects to dsn and brings the schema up to date.
func Open(driver, dsn string) (*Store, error) {
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, errors.Newf("unsupported sql driver %q", driver)
	}
	memory := driver == DriverSQLite && (strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory"))
	if driver == DriverSQLite && !memory {
		dsn = sqliteDSN(dsn)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", driver)
	}
	// An in-memory sqlite database lives and dies with its connection.
	if memory {
		db.SetMaxOpenConns(1)
	}

	s := &Store{db: db, driver: driver}
	if err := s.Migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate applies any migrations the database has not seen yet.
func (s *Store) Migrate() error {
	if err := migrator(s.driver).Apply(s.db, Migrations(s.driver)); err != nil {
		return errors.Wrap(err, "apply migrations")
	}
	return nil
}

// sqliteDSN turns on WAL and a busy timeout, and makes every transaction
// take the write lock at BEGIN.
func sqliteDSN(dsn string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"
}

// DB exposes the connection for tests and the migrate command.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error {
	return s.db.Close()
}

// ---------------- Orders ----------------

func (s *Store) InsertOrder(ctx context.Context, o waiter.Order, entry waiter.AuditEntry) (waiter.Order, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, s.rebind(`
			INSERT INTO orders (mrn, first_name, last_name, dob, num_prescriptions, comments, initials,
				order_type, due_time, created_at, printed, ready, ready_at, completed,
				moved_to_mail, moved_to_mail_at, mailed, mailed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			RETURNING id`),
			o.MRN, o.FirstName, o.LastName, o.DOB, o.NumPrescriptions, o.Comments, o.Initials,
			string(o.Type), millis(o.DueTime), millis(o.CreatedAt), b2i(o.Printed), b2i(o.Ready),
			nullMillis(o.ReadyAt), b2i(o.Completed), b2i(o.MovedToMail), nullMillis(o.MovedToMailAt),
			b2i(o.Mailed), nullMillis(o.MailedAt))
		if err := row.Scan(&o.ID); err != nil {
			return errors.Wrap(err, "insert order")
		}
		entry.RecordID = o.ID
		entry.After = o.Clone()
		return s.appendAudit(ctx, tx, entry)
	})
	if err != nil {
		return waiter.Order{}, err
	}
	return o, nil
}

func (s *Store) UpdateOrder(ctx context.Context, o waiter.Order, entry waiter.AuditEntry) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, s.rebind(`
			UPDATE orders SET mrn = ?, first_name = ?, last_name = ?, dob = ?, num_prescriptions = ?,
				comments = ?, initials = ?, order_type = ?, due_time = ?, created_at = ?,
				printed = ?, ready = ?, ready_at = ?, completed = ?,
				moved_to_mail = ?, moved_to_mail_at = ?, mailed = ?, mailed_at = ?
			WHERE id = ?`),
			o.MRN, o.FirstName, o.LastName, o.DOB, o.NumPrescriptions,
			o.Comments, o.Initials, string(o.Type), millis(o.DueTime), millis(o.CreatedAt),
			b2i(o.Printed), b2i(o.Ready), nullMillis(o.ReadyAt), b2i(o.Completed),
			b2i(o.MovedToMail), nullMillis(o.MovedToMailAt), b2i(o.Mailed), nullMillis(o.MailedAt),
			o.ID)
		if err != nil {
			return errors.Wrapf(err, "update order %d", o.ID)
		}
		if err := mustAffect(res, "order %d", o.ID); err != nil {
			return err
		}
		entry.RecordID = o.ID
		return s.appendAudit(ctx, tx, entry)
	})
}

func (s *Store) DeleteOrder(ctx context.Context, id int64, entry waiter.AuditEntry) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM orders WHERE id = ?`), id)
		if err != nil {
			return errors.Wrapf(err, "delete order %d", id)
		}
		if err := mustAffect(res, "order %d", id); err != nil {
			return err
		}
		entry.RecordID = id
		return s.appendAudit(ctx, tx, entry)
	})
}

func (s *Store) GetOrder(ctx context.Context, id int64) (waiter.Order, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+orderColumns+` FROM orders WHERE id = ?`), id)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return waiter.Order{}, errors.Wrapf(waiter.ErrNotFound, "order %d", id)
	}
	return o, err
}

func (s *Store) ListOrders(ctx context.Context, includeCompleted bool) ([]waiter.Order, error) {
	q := `SELECT ` + orderColumns + ` FROM orders`
	if !includeCompleted {
		q += ` WHERE completed = 0`
	}
	rows, err := s.db.QueryContext(ctx, q+` ORDER BY id`)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	defer rows.Close()

	var out []waiter.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(sc scanner) (waiter.Order, error) {
	var (
		o                                      waiter.Order
		orderType                              string
		due, created                           int64
		printed, ready, completed, moved, sent int
		readyAt, movedAt, mailedAt             sql.NullInt64
	)
	err := sc.Scan(&o.ID, &o.MRN, &o.FirstName, &o.LastName, &o.DOB, &o.NumPrescriptions,
		&o.Comments, &o.Initials, &orderType, &due, &created, &printed, &ready, &readyAt,
		&completed, &moved, &movedAt, &sent, &mailedAt)
	if err != nil {
		return waiter.Order{}, err
	}
	o.Type = waiter.OrderType(orderType)
	o.DueTime = fromMillis(due)
	o.CreatedAt = fromMillis(created)
	o.Printed = printed != 0
	o.Ready = ready != 0
	o.ReadyAt = fromNullMillis(readyAt)
	o.Completed = completed != 0
	o.MovedToMail = moved != 0
	o.MovedToMailAt = fromNullMillis(movedAt)
	o.Mailed = sent != 0
	o.MailedAt = fromNullMillis(mailedAt)
	return o, nil
}

// ---------------- Settings ----------------

func (s *Store) Settings(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return nil, errors.Wrap(err, "load settings")
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

func (s *Store) PutSettings(ctx context.Context, kv map[string]string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		q := s.rebind(`INSERT INTO settings (key, value) VALUES (?, ?)
			ON CONFLICT (key) DO UPDATE SET value = excluded.value`)
		for k, v := range kv {
			if _, err := tx.ExecContext(ctx, q, k, v); err != nil {
				return errors.Wrapf(err, "put setting %s", k)
			}
		}
		return nil
	})
}

// ---------------- Patients ----------------

const patientColumns = `id, mrn, first_name, last_name, dob, created_at`

func scanPatient(sc scanner) (waiter.Patient, error) {
	var (
		p       waiter.Patient
		created int64
	)
	if err := sc.Scan(&p.ID, &p.MRN, &p.FirstName, &p.LastName, &p.DOB, &created); err != nil {
		return waiter.Patient{}, err
	}
	p.CreatedAt = fromMillis(created)
	return p, nil
}

func (s *Store) PatientByMRN(ctx context.Context, mrn string) (waiter.Patient, error) {
	mrn = waiter.NormalizeMRN(mrn)
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+patientColumns+` FROM patients WHERE mrn = ?`), mrn)
	p, err := scanPatient(row)
	if errors.Is(err, sql.ErrNoRows) {
		return waiter.Patient{}, errors.Wrapf(waiter.ErrNotFound, "patient %s", mrn)
	}
	return p, err
}

func (s *Store) ListPatients(ctx context.Context) ([]waiter.Patient, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+patientColumns+` FROM patients ORDER BY last_name, first_name, id`)
	if err != nil {
		return nil, errors.Wrap(err, "list patients")
	}
	defer rows.Close()

	var out []waiter.Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) InsertPatient(ctx context.Context, p waiter.Patient) (waiter.Patient, error) {
	p.MRN = waiter.NormalizeMRN(p.MRN)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var n int
		err := tx.QueryRowContext(ctx, s.rebind(`SELECT COUNT(*) FROM patients WHERE mrn = ?`), p.MRN).Scan(&n)
		if err != nil {
			return err
		}
		if n > 0 {
			return errors.Wrapf(waiter.ErrInvalid, "patient %s already exists", p.MRN)
		}
		row := tx.QueryRowContext(ctx, s.rebind(`
			INSERT INTO patients (mrn, first_name, last_name, dob, created_at)
			VALUES (?, ?, ?, ?, ?) RETURNING id`),
			p.MRN, p.FirstName, p.LastName, p.DOB, millis(p.CreatedAt))
		return errors.Wrap(row.Scan(&p.ID), "insert patient")
	})
	if err != nil {
		return waiter.Patient{}, err
	}
	return p, nil
}

func (s *Store) UpsertPatients(ctx context.Context, ps []waiter.Patient) (int, error) {
	added := 0
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		q := s.rebind(`INSERT INTO patients (mrn, first_name, last_name, dob, created_at)
			VALUES (?, ?, ?, ?, ?) ON CONFLICT (mrn) DO NOTHING`)
		for _, p := range ps {
			res, err := tx.ExecContext(ctx, q,
				waiter.NormalizeMRN(p.MRN), p.FirstName, p.LastName, p.DOB, millis(p.CreatedAt))
			if err != nil {
				return errors.Wrapf(err, "upsert patient %s", p.MRN)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			added += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return added, nil
}

// ---------------- Audit ----------------

const auditColumns = `id, record_id, action, old_values, new_values, staff_initials, changed_at`

func (s *Store) appendAudit(ctx context.Context, tx *sql.Tx, e waiter.AuditEntry) error {
	before, err := encodeSnapshot(e.Before)
	if err != nil {
		return err
	}
	after, err := encodeSnapshot(e.After)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, s.rebind(`
		INSERT INTO audit_log (record_id, action, old_values, new_values, staff_initials, changed_at)
		VALUES (?, ?, ?, ?, ?, ?)`),
		e.RecordID, string(e.Action), before, after, e.Initials, millis(e.Timestamp))
	return errors.Wrapf(err, "append audit for order %d", e.RecordID)
}

func (s *Store) ListAudit(ctx context.Context, limit int) ([]waiter.AuditEntry, error) {
	return s.queryAudit(ctx, `SELECT `+auditColumns+` FROM audit_log ORDER BY id DESC LIMIT ?`, limit)
}

func (s *Store) RecordAudit(ctx context.Context, recordID int64) ([]waiter.AuditEntry, error) {
	return s.queryAudit(ctx, `SELECT `+auditColumns+` FROM audit_log WHERE record_id = ? ORDER BY id`, recordID)
}

func (s *Store) queryAudit(ctx context.Context, q string, arg any) ([]waiter.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(q), arg)
	if err != nil {
		return nil, errors.Wrap(err, "query audit")
	}
	defer rows.Close()

	var out []waiter.AuditEntry
	for rows.Next() {
		var (
			e             waiter.AuditEntry
			action        string
			before, after sql.NullString
			at            int64
		)
		if err := rows.Scan(&e.ID, &e.RecordID, &action, &before, &after, &e.Initials, &at); err != nil {
			return nil, err
		}
		e.Action = waiter.Action(action)
		e.Timestamp = fromMillis(at)
		if e.Before, err = decodeSnapshot(before); err != nil {
			return nil, errors.Wrapf(err, "audit %d old_values", e.ID)
		}
		if e.After, err = decodeSnapshot(after); err != nil {
			return nil, errors.Wrapf(err, "audit %d new_values", e.ID)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func encodeSnapshot(o *waiter.Order) (sql.NullString, error) {
	if o == nil {
		return sql.NullString{}, nil
	}
	buf, err := json.Marshal(o)
	if err != nil {
		return sql.NullString{}, errors.Wrap(err, "encode audit snapshot")
	}
	return sql.NullString{String: string(buf), Valid: true}, nil
}

func decodeSnapshot(ns sql.NullString) (*waiter.Order, error) {
	if !ns.Valid {
		return nil, nil
	}
	var o waiter.Order
	if err := json.Unmarshal([]byte(ns.String), &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// ---------------- Helpers ----------------

func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "commit tx")
}

// rebind turns ? placeholders into $1..$n for postgres.
func (s *Store) rebind(q string) string {
	if s.driver != DriverPostgres {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func mustAffect(res sql.Result, format string, args ...any) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.Wrapf(waiter.ErrNotFound, format, args...)
	}
	return nil
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}

func millis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func fromNullMillis(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromMillis(n.Int64)
	return &t
}
