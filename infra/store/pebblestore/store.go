package pebblestore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"

	"waiterboard/domain/waiter"
	"waiterboard/infra/sequence"
)

/*
Key layout

	order/<id:%020d>                     -> JSON waiter.Order
	setting/<key>                        -> raw value
	patient/<MRN>                        -> JSON waiter.Patient
	audit/<id:%020d>                     -> JSON waiter.AuditEntry
	auditidx/<record:%020d>/<id:%020d>   -> empty (per-order history)

Zero-padded IDs keep pebble's byte ordering equal to numeric ordering.
*/

const (
	prefixOrder    = "order/"
	prefixSetting  = "setting/"
	prefixPatient  = "patient/"
	prefixAudit    = "audit/"
	prefixAuditIdx = "auditidx/"
)

type Config struct {
	Dir      string
	InMemory bool
}

// Store is the embedded backend. Writes are serialized by mu so the
// read-check-write in Update/Delete cannot interleave.
type Store struct {
	db *pebble.DB
	mu sync.Mutex

	orderSeq   *sequence.Sequencer
	auditSeq   *sequence.Sequencer
	patientSeq *sequence.Sequencer
}

func Open(cfg Config) (*Store, error) {
	opts := &pebble.Options{}
	dir := cfg.Dir
	if cfg.InMemory {
		opts.FS = vfs.NewMem()
		if dir == "" {
			dir = "waiterboard"
		}
	}

	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "open pebble store %q", dir)
	}
	s := &Store{db: db}

	// Resume sequencing after whatever is already on disk.
	for _, seq := range []struct {
		prefix string
		dst    **sequence.Sequencer
	}{
		{prefixOrder, &s.orderSeq},
		{prefixAudit, &s.auditSeq},
	} {
		last, err := s.lastID(seq.prefix)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		*seq.dst = sequence.New(last)
	}

	s.patientSeq = sequence.New(0)
	err = s.scan(prefixPatient, func(_, val []byte) error {
		var p waiter.Patient
		if err := json.Unmarshal(val, &p); err != nil {
			return err
		}
		s.patientSeq.Observe(uint64(p.ID))
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// ---------------- Orders ----------------

func (s *Store) InsertOrder(ctx context.Context, o waiter.Order, entry waiter.AuditEntry) (waiter.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o.ID = int64(s.orderSeq.Next())
	entry.RecordID = o.ID
	entry.After = o.Clone()

	b := s.db.NewBatch()
	defer b.Close()

	if err := setJSON(b, orderKey(o.ID), o); err != nil {
		return waiter.Order{}, err
	}
	if err := s.appendAudit(b, entry); err != nil {
		return waiter.Order{}, err
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return waiter.Order{}, errors.Wrap(err, "commit order insert")
	}
	return o, nil
}

func (s *Store) UpdateOrder(ctx context.Context, o waiter.Order, entry waiter.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.exists(orderKey(o.ID)); err != nil {
		return err
	}

	b := s.db.NewBatch()
	defer b.Close()

	if err := setJSON(b, orderKey(o.ID), o); err != nil {
		return err
	}
	entry.RecordID = o.ID
	if err := s.appendAudit(b, entry); err != nil {
		return err
	}
	return errors.Wrap(b.Commit(pebble.Sync), "commit order update")
}

func (s *Store) DeleteOrder(ctx context.Context, id int64, entry waiter.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.exists(orderKey(id)); err != nil {
		return err
	}

	b := s.db.NewBatch()
	defer b.Close()

	if err := b.Delete(orderKey(id), nil); err != nil {
		return err
	}
	entry.RecordID = id
	if err := s.appendAudit(b, entry); err != nil {
		return err
	}
	return errors.Wrap(b.Commit(pebble.Sync), "commit order delete")
}

func (s *Store) GetOrder(ctx context.Context, id int64) (waiter.Order, error) {
	var o waiter.Order
	if err := s.getJSON(orderKey(id), &o); err != nil {
		return waiter.Order{}, errors.Wrapf(err, "order %d", id)
	}
	return o, nil
}

func (s *Store) ListOrders(ctx context.Context, includeCompleted bool) ([]waiter.Order, error) {
	var out []waiter.Order
	err := s.scan(prefixOrder, func(_, val []byte) error {
		var o waiter.Order
		if err := json.Unmarshal(val, &o); err != nil {
			return err
		}
		if includeCompleted || !o.Completed {
			out = append(out, o)
		}
		return nil
	})
	return out, err
}

// ---------------- Settings ----------------

func (s *Store) Settings(ctx context.Context) (map[string]string, error) {
	out := map[string]string{}
	err := s.scan(prefixSetting, func(key, val []byte) error {
		out[string(key[len(prefixSetting):])] = string(val)
		return nil
	})
	return out, err
}

func (s *Store) PutSettings(ctx context.Context, kv map[string]string) error {
	b := s.db.NewBatch()
	defer b.Close()
	for k, v := range kv {
		if err := b.Set([]byte(prefixSetting+k), []byte(v), nil); err != nil {
			return err
		}
	}
	return errors.Wrap(b.Commit(pebble.Sync), "commit settings")
}

// ---------------- Patients ----------------

func (s *Store) PatientByMRN(ctx context.Context, mrn string) (waiter.Patient, error) {
	var p waiter.Patient
	if err := s.getJSON(patientKey(mrn), &p); err != nil {
		return waiter.Patient{}, errors.Wrapf(err, "patient %s", waiter.NormalizeMRN(mrn))
	}
	return p, nil
}

func (s *Store) ListPatients(ctx context.Context) ([]waiter.Patient, error) {
	var out []waiter.Patient
	err := s.scan(prefixPatient, func(_, val []byte) error {
		var p waiter.Patient
		if err := json.Unmarshal(val, &p); err != nil {
			return err
		}
		out = append(out, p)
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].LastName != out[j].LastName {
			return out[i].LastName < out[j].LastName
		}
		return out[i].FirstName < out[j].FirstName
	})
	return out, err
}

func (s *Store) InsertPatient(ctx context.Context, p waiter.Patient) (waiter.Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p.MRN = waiter.NormalizeMRN(p.MRN)
	switch err := s.exists(patientKey(p.MRN)); {
	case err == nil:
		return waiter.Patient{}, errors.Wrapf(waiter.ErrInvalid, "patient %s already exists", p.MRN)
	case !errors.Is(err, waiter.ErrNotFound):
		return waiter.Patient{}, err
	}

	p.ID = int64(s.patientSeq.Next())
	b := s.db.NewBatch()
	defer b.Close()
	if err := setJSON(b, patientKey(p.MRN), p); err != nil {
		return waiter.Patient{}, err
	}
	return p, errors.Wrap(b.Commit(pebble.Sync), "commit patient")
}

func (s *Store) UpsertPatients(ctx context.Context, ps []waiter.Patient) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.db.NewBatch()
	defer b.Close()

	added := 0
	pending := map[string]bool{}
	for _, p := range ps {
		p.MRN = waiter.NormalizeMRN(p.MRN)
		if pending[p.MRN] {
			continue
		}
		err := s.exists(patientKey(p.MRN))
		if err == nil {
			continue
		}
		if !errors.Is(err, waiter.ErrNotFound) {
			return 0, err
		}
		p.ID = int64(s.patientSeq.Next())
		if err := setJSON(b, patientKey(p.MRN), p); err != nil {
			return 0, err
		}
		pending[p.MRN] = true
		added++
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return 0, errors.Wrap(err, "commit patients")
	}
	return added, nil
}

// ---------------- Audit ----------------

func (s *Store) ListAudit(ctx context.Context, limit int) ([]waiter.AuditEntry, error) {
	iter, err := s.db.NewIter(prefixBounds(prefixAudit))
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []waiter.AuditEntry
	for iter.Last(); iter.Valid() && len(out) < limit; iter.Prev() {
		var e waiter.AuditEntry
		if err := json.Unmarshal(iter.Value(), &e); err != nil {
			return nil, errors.Wrapf(err, "decode audit %s", iter.Key())
		}
		out = append(out, e)
	}
	return out, iter.Error()
}

func (s *Store) RecordAudit(ctx context.Context, recordID int64) ([]waiter.AuditEntry, error) {
	prefix := fmt.Sprintf("%s%020d/", prefixAuditIdx, recordID)
	var ids []uint64
	err := s.scan(prefix, func(key, _ []byte) error {
		id, err := strconv.ParseUint(string(key[len(prefix):]), 10, 64)
		if err != nil {
			return err
		}
		ids = append(ids, id)
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]waiter.AuditEntry, 0, len(ids))
	for _, id := range ids {
		var e waiter.AuditEntry
		if err := s.getJSON(auditKey(int64(id)), &e); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *Store) appendAudit(b *pebble.Batch, e waiter.AuditEntry) error {
	e.ID = int64(s.auditSeq.Next())
	if err := setJSON(b, auditKey(e.ID), e); err != nil {
		return err
	}
	idx := fmt.Sprintf("%s%020d/%020d", prefixAuditIdx, e.RecordID, e.ID)
	return b.Set([]byte(idx), nil, nil)
}

// ---------------- Helpers ----------------

func orderKey(id int64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixOrder, id))
}

func auditKey(id int64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixAudit, id))
}

func patientKey(mrn string) []byte {
	return []byte(prefixPatient + waiter.NormalizeMRN(mrn))
}

// prefixBounds covers every key starting with prefix, whatever bytes follow.
func prefixBounds(prefix string) *pebble.IterOptions {
	return &pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: prefixEnd(prefix),
	}
}

// prefixEnd is the first key past all keys sharing prefix. Prefixes here end
// in '/', so bumping the last byte never overflows.
func prefixEnd(prefix string) []byte {
	end := []byte(prefix)
	end[len(end)-1]++
	return end
}

func setJSON(b *pebble.Batch, key []byte, v any) error {
	buf, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "encode %s", key)
	}
	return b.Set(key, buf, nil)
}

func (s *Store) getJSON(key []byte, v any) error {
	val, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return waiter.ErrNotFound
	}
	if err != nil {
		return err
	}
	defer closer.Close()
	return json.Unmarshal(val, v)
}

func (s *Store) exists(key []byte) error {
	_, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return waiter.ErrNotFound
	}
	if err != nil {
		return err
	}
	return closer.Close()
}

func (s *Store) scan(prefix string, fn func(key, val []byte) error) error {
	iter, err := s.db.NewIter(prefixBounds(prefix))
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		if err := fn(iter.Key(), iter.Value()); err != nil {
			return err
		}
	}
	return iter.Error()
}

func (s *Store) lastID(prefix string) (uint64, error) {
	iter, err := s.db.NewIter(prefixBounds(prefix))
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	if !iter.Last() {
		return 0, iter.Error()
	}
	id, err := strconv.ParseUint(string(iter.Key()[len(prefix):]), 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "parse key %q", iter.Key())
	}
	return id, nil
}
