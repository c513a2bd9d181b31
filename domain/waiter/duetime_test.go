package waiter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func TestDueTimeUsesPerTypeMinutes(t *testing.T) {
	s := DefaultSettings()
	assert.Equal(t, t0.Add(30*time.Minute), DueTime(TypeWaiter, s, t0))
	assert.Equal(t, t0.Add(time.Hour), DueTime(TypeAcute, s, t0))
	assert.Equal(t, t0.Add(time.Hour), DueTime(TypeUrgentMail, s, t0))

	s.UrgentDueMinutes = 90
	s.WaiterDueMinutes = 15
	assert.Equal(t, t0.Add(90*time.Minute), DueTime(TypeUrgentMail, s, t0))
	assert.Equal(t, t0.Add(15*time.Minute), DueTime(TypeWaiter, s, t0))
}

func TestTimeRemaining(t *testing.T) {
	due := t0.Add(12*time.Minute + 5*time.Second)

	c := TimeRemaining(due, t0)
	assert.False(t, c.Overdue)
	assert.Equal(t, 12, c.Minutes)
	assert.Equal(t, 5, c.Seconds)

	c = TimeRemaining(due, due.Add(3*time.Minute+20*time.Second))
	assert.True(t, c.Overdue)
	assert.Equal(t, 3, c.Minutes)
	assert.Equal(t, 20, c.Seconds)
	assert.Equal(t, -(3*time.Minute + 20*time.Second), c.Total)
}

func TestTimeRemainingMinutesWrapAtHour(t *testing.T) {
	c := TimeRemaining(t0.Add(75*time.Minute), t0)
	assert.Equal(t, 15, c.Minutes)
}

func TestFormatTimeRemaining(t *testing.T) {
	cases := []struct {
		name string
		left time.Duration
		want string
	}{
		{"minutes and seconds", 4*time.Minute + 9*time.Second, "4m 9s"},
		{"under a minute", 42 * time.Second, "42s"},
		{"exactly due", 0, "0s"},
		{"overdue", -(7*time.Minute + 30*time.Second), "Overdue by 7m"},
		{"overdue under a minute", -10 * time.Second, "Overdue by 0m"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, FormatTimeRemaining(t0.Add(tc.left), t0))
		})
	}
}

func TestElapsedMinutes(t *testing.T) {
	assert.Equal(t, 0, ElapsedMinutes(t0, t0.Add(59*time.Second)))
	assert.Equal(t, 5, ElapsedMinutes(t0, t0.Add(5*time.Minute+59*time.Second)))
	assert.Equal(t, -1, ElapsedMinutes(t0, t0.Add(-time.Second)))
}

func TestOrderOverdue(t *testing.T) {
	o := Order{DueTime: t0}
	assert.False(t, o.Overdue(t0))
	assert.True(t, o.Overdue(t0.Add(time.Second)))

	o.Ready = true
	assert.False(t, o.Overdue(t0.Add(time.Hour)), "ready orders are no longer counting down")
}

func TestNewOrderBuild(t *testing.T) {
	form := NewOrder{
		MRN:       " MRN-10001 ",
		FirstName: "James",
		LastName:  "Anderson",
		DOB:       "1985-03-15",
		Initials:  "AB",
	}

	o, err := form.Build(DefaultSettings(), t0)
	require.NoError(t, err)
	assert.Equal(t, "MRN-10001", o.MRN)
	assert.Equal(t, TypeWaiter, o.Type)
	assert.Equal(t, 1, o.NumPrescriptions)
	assert.Equal(t, t0, o.CreatedAt)
	assert.Equal(t, t0.Add(30*time.Minute), o.DueTime)

	form.Type = "acute"
	form.NumPrescriptions = 3
	o, err = form.Build(DefaultSettings(), t0)
	require.NoError(t, err)
	assert.Equal(t, TypeAcute, o.Type)
	assert.Equal(t, 3, o.NumPrescriptions)
	assert.Equal(t, t0.Add(time.Hour), o.DueTime)
}

func TestNewOrderBuildRejectsBadInput(t *testing.T) {
	_, err := NewOrder{FirstName: "A"}.Build(DefaultSettings(), t0)
	require.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, err.Error(), "mrn")
	assert.Contains(t, err.Error(), "initials")

	good := NewOrder{MRN: "M", FirstName: "A", LastName: "B", DOB: "2000-01-01", Initials: "X"}

	bad := good
	bad.Type = "drive_thru"
	_, err = bad.Build(DefaultSettings(), t0)
	require.ErrorIs(t, err, ErrInvalid)

	bad = good
	bad.NumPrescriptions = -2
	_, err = bad.Build(DefaultSettings(), t0)
	require.ErrorIs(t, err, ErrInvalid)
}

func TestOrderTypeLabel(t *testing.T) {
	assert.Equal(t, "WAITER", TypeWaiter.Label())
	assert.Equal(t, "ACUTE", TypeAcute.Label())
	assert.Equal(t, "URGENT MAIL", TypeUrgentMail.Label())
	assert.Equal(t, "OTHER", OrderType("other").Label())
}
