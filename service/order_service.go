package service

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"waiterboard/domain/waiter"
	"waiterboard/infra/metrics"
	"waiterboard/infra/store"
)

/*
WaiterService serializes every mutation behind mu so that the
load -> apply -> store+audit sequence of one request never interleaves with
another. Reads go straight to the store.

Notifiers are told about a change only after it is committed. A notifier
error is logged and never undoes the mutation.
*/

// Notifier receives committed changes.
type Notifier interface {
	Notify(ctx context.Context, ev waiter.Event) error
}

type WaiterService struct {
	store     store.Store
	log       *zap.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
	newID     func() string
	notifiers []Notifier

	mu sync.Mutex
}

type Option func(*WaiterService)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *WaiterService) { s.now = now }
}

func WithLogger(log *zap.Logger) Option {
	return func(s *WaiterService) { s.log = log }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *WaiterService) { s.metrics = m }
}

func WithNotifier(n ...Notifier) Option {
	return func(s *WaiterService) { s.notifiers = append(s.notifiers, n...) }
}

// NewWaiterService wires all dependencies.
func NewWaiterService(st store.Store, opts ...Option) *WaiterService {
	s := &WaiterService{
		store:   st,
		log:     zap.NewNop(),
		metrics: metrics.NopMetrics(),
		now:     defaultNow,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.Named("service")
	return s
}

// Stored timestamps keep millisecond precision on every backend.
func defaultNow() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

//
// ──────────────────────────────────────────────────────────
// Commands
// ──────────────────────────────────────────────────────────
//

// CreateOrder validates the entry form, stamps the due time from the
// current settings and stores the order with its create audit entry.
func (s *WaiterService) CreateOrder(ctx context.Context, in waiter.NewOrder) (waiter.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings, err := s.Settings(ctx)
	if err != nil {
		return waiter.Order{}, err
	}

	now := s.now()
	o, err := in.Build(settings, now)
	if err != nil {
		return waiter.Order{}, err
	}

	saved, err := s.store.InsertOrder(ctx, o, waiter.NewAudit(waiter.ActionCreate, nil, &o, o.Initials, now))
	if err != nil {
		return waiter.Order{}, errors.Wrap(err, "create order")
	}

	s.metrics.OrdersCreated.With("type", string(saved.Type)).Add(1)
	s.metrics.Mutations.With("action", string(waiter.ActionCreate)).Add(1)
	s.log.Info("order created",
		zap.Int64("id", saved.ID),
		zap.String("type", string(saved.Type)),
		zap.Time("due", saved.DueTime),
		zap.String("initials", saved.Initials))

	s.emit(ctx, waiter.EventOrderCreated, &saved)
	return saved, nil
}

// UpdateOrder applies a partial update. A patch that changes nothing returns
// the stored order and leaves no audit trail.
func (s *WaiterService) UpdateOrder(ctx context.Context, id int64, p waiter.Patch, initials string) (waiter.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.store.GetOrder(ctx, id)
	if err != nil {
		return waiter.Order{}, err
	}
	if p.Empty() {
		return cur, nil
	}

	now := s.now()
	next := *cur.Clone()
	if !next.Apply(p, now) {
		return cur, nil
	}

	if initials == "" && p.Initials != nil {
		initials = *p.Initials
	}
	if err := s.store.UpdateOrder(ctx, next, waiter.NewAudit(waiter.ActionUpdate, &cur, &next, initials, now)); err != nil {
		return waiter.Order{}, errors.Wrapf(err, "update order %d", id)
	}

	s.metrics.Mutations.With("action", string(waiter.ActionUpdate)).Add(1)
	s.log.Info("order updated", zap.Int64("id", id), zap.String("initials", initials))

	s.emit(ctx, waiter.EventOrderUpdated, &next)
	if !cur.Ready && next.Ready {
		s.emit(ctx, waiter.EventOrderReady, &next)
	}
	return next, nil
}

// DeleteOrder removes an order. The audit entry keeps its last state.
func (s *WaiterService) DeleteOrder(ctx context.Context, id int64, initials string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.store.GetOrder(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteOrder(ctx, id, waiter.NewAudit(waiter.ActionDelete, &cur, nil, initials, s.now())); err != nil {
		return errors.Wrapf(err, "delete order %d", id)
	}

	s.metrics.Mutations.With("action", string(waiter.ActionDelete)).Add(1)
	s.log.Info("order deleted", zap.Int64("id", id), zap.String("initials", initials))

	s.emit(ctx, waiter.EventOrderDeleted, &cur)
	return nil
}

// AutoClear completes every waiter order that has been ready for longer
// than the auto-clear window and returns how many it cleared.
func (s *WaiterService) AutoClear(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.autoClearLocked(ctx, s.now())
}

func (s *WaiterService) autoClearLocked(ctx context.Context, now time.Time) (int, error) {
	settings, err := s.Settings(ctx)
	if err != nil {
		return 0, err
	}
	orders, err := s.store.ListOrders(ctx, false)
	if err != nil {
		return 0, err
	}

	done := true
	cleared := 0
	for _, cur := range waiter.Expired(orders, settings, now) {
		next := *cur.Clone()
		next.Apply(waiter.Patch{Completed: &done}, now)
		if err := s.store.UpdateOrder(ctx, next, waiter.NewAudit(waiter.ActionAutoClear, &cur, &next, "", now)); err != nil {
			return cleared, errors.Wrapf(err, "auto-clear order %d", cur.ID)
		}
		cleared++
		s.emit(ctx, waiter.EventOrderAutoCleared, &next)
	}

	if cleared > 0 {
		s.metrics.AutoCleared.Add(float64(cleared))
		s.metrics.Mutations.With("action", string(waiter.ActionAutoClear)).Add(float64(cleared))
		s.log.Info("auto-cleared orders", zap.Int("count", cleared))
	}
	return cleared, nil
}

//
// ──────────────────────────────────────────────────────────
// Queries
// ──────────────────────────────────────────────────────────
//

func (s *WaiterService) GetOrder(ctx context.Context, id int64) (waiter.Order, error) {
	return s.store.GetOrder(ctx, id)
}

// AllOrders returns every stored order, completed ones included.
func (s *WaiterService) AllOrders(ctx context.Context) ([]waiter.Order, error) {
	return s.store.ListOrders(ctx, true)
}

// ActiveOrders returns every order not yet completed, soonest due first.
func (s *WaiterService) ActiveOrders(ctx context.Context) ([]waiter.Order, error) {
	orders, err := s.store.ListOrders(ctx, false)
	if err != nil {
		return nil, err
	}
	return waiter.Active(orders), nil
}

// ProductionBoard is what staff work from: everything still to be filled.
func (s *WaiterService) ProductionBoard(ctx context.Context) ([]waiter.Order, error) {
	orders, err := s.store.ListOrders(ctx, false)
	if err != nil {
		return nil, err
	}
	board := waiter.ProductionBoard(orders)
	s.metrics.BoardSize.With("board", "production").Set(float64(len(board)))
	s.metrics.Overdue.Set(float64(waiter.CountOverdue(board, s.now())))
	return board, nil
}

func (s *WaiterService) MailQueue(ctx context.Context) ([]waiter.Order, error) {
	orders, err := s.store.ListOrders(ctx, false)
	if err != nil {
		return nil, err
	}
	queue := waiter.MailQueue(orders)
	s.metrics.BoardSize.With("board", "mail").Set(float64(len(queue)))
	return queue, nil
}

// PatientBoard sweeps expired orders first so a stale entry is never shown,
// then returns the waiter orders ready for pickup, newest first.
func (s *WaiterService) PatientBoard(ctx context.Context) ([]waiter.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if _, err := s.autoClearLocked(ctx, now); err != nil {
		return nil, err
	}
	settings, err := s.Settings(ctx)
	if err != nil {
		return nil, err
	}
	orders, err := s.store.ListOrders(ctx, false)
	if err != nil {
		return nil, err
	}
	board := waiter.PatientBoard(orders, settings, now)
	s.metrics.BoardSize.With("board", "patient").Set(float64(len(board)))
	return board, nil
}

// Now exposes the service clock so transports render countdowns against
// the same instant the boards were computed with.
func (s *WaiterService) Now() time.Time {
	return s.now()
}

//
// ──────────────────────────────────────────────────────────
// Audit
// ──────────────────────────────────────────────────────────
//

const (
	DefaultAuditLimit = 100
	MaxAuditLimit     = 1000
)

// AuditLog returns the most recent entries, newest first. limit <= 0 means
// DefaultAuditLimit; it is capped at MaxAuditLimit.
func (s *WaiterService) AuditLog(ctx context.Context, limit int) ([]waiter.AuditEntry, error) {
	switch {
	case limit <= 0:
		limit = DefaultAuditLimit
	case limit > MaxAuditLimit:
		limit = MaxAuditLimit
	}
	return s.store.ListAudit(ctx, limit)
}

// OrderHistory returns every audit entry for one order, oldest first.
func (s *WaiterService) OrderHistory(ctx context.Context, id int64) ([]waiter.AuditEntry, error) {
	return s.store.RecordAudit(ctx, id)
}

//
// ──────────────────────────────────────────────────────────
// Events
// ──────────────────────────────────────────────────────────
//

func (s *WaiterService) emit(ctx context.Context, typ waiter.EventType, o *waiter.Order) {
	ev := waiter.Event{
		V:    waiter.EventVersion,
		ID:   s.newID(),
		Type: typ,
		At:   s.now(),
	}
	if o != nil {
		ev.OrderID = o.ID
		ev.Order = o.Clone()
	}
	s.publish(ctx, ev)
}

func (s *WaiterService) publish(ctx context.Context, ev waiter.Event) {
	for _, n := range s.notifiers {
		if err := n.Notify(ctx, ev); err != nil {
			s.log.Error("notify failed",
				zap.String("event", string(ev.Type)),
				zap.Int64("order", ev.OrderID),
				zap.Error(err))
		}
	}
}
