package service

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"waiterboard/domain/waiter"
	"waiterboard/infra/store/pebblestore"
	"waiterboard/snapshot"
)

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recorder struct {
	mu     sync.Mutex
	events []waiter.Event
}

func (r *recorder) Notify(_ context.Context, ev waiter.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) types() []waiter.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]waiter.EventType, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

type harness struct {
	svc    *WaiterService
	clock  *fakeClock
	events *recorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	st, err := pebblestore.Open(pebblestore.Config{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	h := &harness{clock: &fakeClock{now: t0}, events: &recorder{}}
	h.svc = NewWaiterService(st, WithClock(h.clock.Now), WithNotifier(h.events))
	return h
}

func form(typ string) waiter.NewOrder {
	return waiter.NewOrder{
		MRN:       "MRN-10001",
		FirstName: "James",
		LastName:  "Anderson",
		DOB:       "1985-03-15",
		Initials:  "JA",
		Type:      typ,
	}
}

func ptr[T any](v T) *T { return &v }

func TestCreateOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	o, err := h.svc.CreateOrder(ctx, form(""))
	require.NoError(t, err)
	assert.NotZero(t, o.ID)
	assert.Equal(t, waiter.TypeWaiter, o.Type)
	assert.Equal(t, 1, o.NumPrescriptions)
	assert.True(t, o.DueTime.Equal(t0.Add(30*time.Minute)))

	urgent, err := h.svc.CreateOrder(ctx, form("urgent_mail"))
	require.NoError(t, err)
	assert.True(t, urgent.DueTime.Equal(t0.Add(time.Hour)))

	hist, err := h.svc.OrderHistory(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, waiter.ActionCreate, hist[0].Action)
	assert.Equal(t, "JA", hist[0].Initials)

	assert.Equal(t, []waiter.EventType{waiter.EventOrderCreated, waiter.EventOrderCreated}, h.events.types())
	assert.Equal(t, o.ID, h.events.events[0].OrderID)
	assert.NotEmpty(t, h.events.events[0].ID)
}

func TestCreateOrderRejectsInvalid(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	bad := form("")
	bad.FirstName = "  "
	_, err := h.svc.CreateOrder(ctx, bad)
	require.ErrorIs(t, err, waiter.ErrInvalid)

	_, err = h.svc.CreateOrder(ctx, form("courier"))
	require.ErrorIs(t, err, waiter.ErrInvalid)

	all, err := h.svc.AllOrders(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.Empty(t, h.events.types())
}

func TestUpdateOrderReady(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	o, err := h.svc.CreateOrder(ctx, form(""))
	require.NoError(t, err)

	h.clock.Advance(12 * time.Minute)
	got, err := h.svc.UpdateOrder(ctx, o.ID, waiter.Patch{Ready: ptr(true), Printed: ptr(true)}, "RB")
	require.NoError(t, err)
	assert.True(t, got.Ready)
	require.NotNil(t, got.ReadyAt)
	assert.True(t, got.ReadyAt.Equal(t0.Add(12*time.Minute)))

	hist, err := h.svc.OrderHistory(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, waiter.ActionUpdate, hist[1].Action)
	assert.Equal(t, "RB", hist[1].Initials)
	assert.False(t, hist[1].Before.Ready)
	assert.True(t, hist[1].After.Ready)

	assert.Equal(t, []waiter.EventType{
		waiter.EventOrderCreated,
		waiter.EventOrderUpdated,
		waiter.EventOrderReady,
	}, h.events.types())

	// un-readying clears the timestamp and is not a ready event
	got, err = h.svc.UpdateOrder(ctx, o.ID, waiter.Patch{Ready: ptr(false)}, "RB")
	require.NoError(t, err)
	assert.Nil(t, got.ReadyAt)
	assert.Len(t, h.events.types(), 4)
}

func TestUpdateOrderNoChange(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	o, err := h.svc.CreateOrder(ctx, form(""))
	require.NoError(t, err)

	for _, p := range []waiter.Patch{{}, {Comments: ptr(""), Ready: ptr(false)}} {
		got, err := h.svc.UpdateOrder(ctx, o.ID, p, "JA")
		require.NoError(t, err)
		assert.Equal(t, o, got)
	}

	hist, err := h.svc.OrderHistory(ctx, o.ID)
	require.NoError(t, err)
	assert.Len(t, hist, 1)
	assert.Len(t, h.events.types(), 1)

	_, err = h.svc.UpdateOrder(ctx, 999, waiter.Patch{Ready: ptr(true)}, "JA")
	require.ErrorIs(t, err, waiter.ErrNotFound)
}

func TestUpdateOrderInitialsFallback(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	o, err := h.svc.CreateOrder(ctx, form(""))
	require.NoError(t, err)

	_, err = h.svc.UpdateOrder(ctx, o.ID, waiter.Patch{Initials: ptr("KL")}, "")
	require.NoError(t, err)

	hist, err := h.svc.OrderHistory(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "KL", hist[1].Initials)
}

func TestMailFlow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	o, err := h.svc.CreateOrder(ctx, form("urgent_mail"))
	require.NoError(t, err)

	_, err = h.svc.UpdateOrder(ctx, o.ID, waiter.Patch{MovedToMail: ptr(true)}, "JA")
	require.NoError(t, err)

	prod, err := h.svc.ProductionBoard(ctx)
	require.NoError(t, err)
	assert.Empty(t, prod)

	queue, err := h.svc.MailQueue(ctx)
	require.NoError(t, err)
	require.Len(t, queue, 1)

	mailed, err := h.svc.UpdateOrder(ctx, o.ID, waiter.Patch{Mailed: ptr(true)}, "JA")
	require.NoError(t, err)
	assert.True(t, mailed.Completed)
	require.NotNil(t, mailed.MailedAt)

	queue, err = h.svc.MailQueue(ctx)
	require.NoError(t, err)
	assert.Empty(t, queue)

	active, err := h.svc.ActiveOrders(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestDeleteOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	o, err := h.svc.CreateOrder(ctx, form(""))
	require.NoError(t, err)

	require.NoError(t, h.svc.DeleteOrder(ctx, o.ID, "JA"))
	_, err = h.svc.GetOrder(ctx, o.ID)
	require.ErrorIs(t, err, waiter.ErrNotFound)
	require.ErrorIs(t, h.svc.DeleteOrder(ctx, o.ID, "JA"), waiter.ErrNotFound)

	hist, err := h.svc.OrderHistory(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, waiter.ActionDelete, hist[1].Action)
	assert.Equal(t, o.MRN, hist[1].Before.MRN)
	assert.Equal(t, waiter.EventOrderDeleted, h.events.types()[1])
}

func TestPatientBoardAutoClears(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	walkIn, err := h.svc.CreateOrder(ctx, form("waiter"))
	require.NoError(t, err)
	acute, err := h.svc.CreateOrder(ctx, form("acute"))
	require.NoError(t, err)
	for _, id := range []int64{walkIn.ID, acute.ID} {
		_, err = h.svc.UpdateOrder(ctx, id, waiter.Patch{Ready: ptr(true)}, "JA")
		require.NoError(t, err)
	}

	h.clock.Advance(44 * time.Minute)
	board, err := h.svc.PatientBoard(ctx)
	require.NoError(t, err)
	require.Len(t, board, 1)
	assert.Equal(t, walkIn.ID, board[0].ID)

	h.clock.Advance(time.Minute)
	board, err = h.svc.PatientBoard(ctx)
	require.NoError(t, err)
	assert.Empty(t, board)

	cleared, err := h.svc.GetOrder(ctx, walkIn.ID)
	require.NoError(t, err)
	assert.True(t, cleared.Completed)

	// acute orders never appear on, or get cleared from, the public board
	stillOpen, err := h.svc.GetOrder(ctx, acute.ID)
	require.NoError(t, err)
	assert.False(t, stillOpen.Completed)

	hist, err := h.svc.OrderHistory(ctx, walkIn.ID)
	require.NoError(t, err)
	last := hist[len(hist)-1]
	assert.Equal(t, waiter.ActionAutoClear, last.Action)
	assert.Empty(t, last.Initials)
	assert.Contains(t, h.events.types(), waiter.EventOrderAutoCleared)

	n, err := h.svc.AutoClear(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestUpdateSettings(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	s, err := h.svc.UpdateSettings(ctx, map[string]any{"waiter_due_minutes": float64(15), "dark_mode": true})
	require.NoError(t, err)
	assert.Equal(t, 15, s.WaiterDueMinutes)
	assert.True(t, s.DarkMode)

	o, err := h.svc.CreateOrder(ctx, form(""))
	require.NoError(t, err)
	assert.True(t, o.DueTime.Equal(t0.Add(15*time.Minute)))

	_, err = h.svc.UpdateSettings(ctx, map[string]any{"patient_board_refresh_rate": 2})
	require.ErrorIs(t, err, waiter.ErrInvalid)
	_, err = h.svc.UpdateSettings(ctx, map[string]any{"colour": "#ffffff"})
	require.ErrorIs(t, err, waiter.ErrInvalid)

	got, err := h.svc.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, s, got)

	types := h.events.types()
	assert.Equal(t, waiter.EventSettingsUpdated, types[0])
	require.NotNil(t, h.events.events[0].Settings)
	assert.Equal(t, 15, h.events.events[0].Settings.WaiterDueMinutes)
}

func TestImportExportSettings(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.ImportSettings(ctx, bytes.NewBufferString("pharmacy_name: Riverside\nauto_clear_minutes: 20\n"), snapshot.FormatYAML)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, h.svc.ExportSettings(ctx, &buf, snapshot.FormatJSON))
	assert.Contains(t, buf.String(), `"pharmacy_name": "Riverside"`)
	assert.Contains(t, buf.String(), `"auto_clear_minutes": 20`)

	_, err = h.svc.ImportSettings(ctx, bytes.NewBufferString(`{"auto_clear_minutes": 0}`), snapshot.FormatJSON)
	require.ErrorIs(t, err, waiter.ErrInvalid)
}

func TestPatients(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	n, err := h.svc.SeedPatients(ctx)
	require.NoError(t, err)
	assert.Equal(t, 25, n)
	n, err = h.svc.SeedPatients(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	p, err := h.svc.LookupPatient(ctx, " mrn-10021 ")
	require.NoError(t, err)
	assert.Equal(t, "Neima", p.FirstName)
	assert.Equal(t, "Brandon", p.LastName)

	_, err = h.svc.LookupPatient(ctx, "")
	require.ErrorIs(t, err, waiter.ErrInvalid)
	_, err = h.svc.LookupPatient(ctx, "MRN-0")
	require.ErrorIs(t, err, waiter.ErrNotFound)

	added, err := h.svc.AddPatient(ctx, waiter.Patient{MRN: "mrn-20000", FirstName: "Ines", LastName: "Costa"})
	require.NoError(t, err)
	assert.Equal(t, "MRN-20000", added.MRN)
	_, err = h.svc.AddPatient(ctx, waiter.Patient{MRN: "MRN-20000", FirstName: "X", LastName: "Y"})
	require.ErrorIs(t, err, waiter.ErrInvalid)

	all, err := h.svc.Patients(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 26)
}

func TestAuditLogLimit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := h.svc.CreateOrder(ctx, form(""))
		require.NoError(t, err)
	}

	log, err := h.svc.AuditLog(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, log, 2)

	log, err = h.svc.AuditLog(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, log, 3)

	log, err = h.svc.AuditLog(ctx, 5000)
	require.NoError(t, err)
	assert.Len(t, log, 3)
}
