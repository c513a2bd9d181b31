package waiter

import (
	"fmt"
	"time"
)

// DueTime is the moment an order of the given type, created at now, becomes overdue.
func DueTime(t OrderType, s Settings, now time.Time) time.Time {
	return now.Add(time.Duration(s.DueMinutes(t)) * time.Minute)
}

// Countdown is the board's view of how far an order is from its due time.
// Minutes wraps at the hour, matching what the boards have always shown.
type Countdown struct {
	Total   time.Duration `json:"total"`
	Minutes int           `json:"minutes"`
	Seconds int           `json:"seconds"`
	Overdue bool          `json:"overdue"`
}

func TimeRemaining(due, now time.Time) Countdown {
	total := due.Sub(now)
	abs := total
	if abs < 0 {
		abs = -abs
	}
	return Countdown{
		Total:   total,
		Minutes: int((abs % time.Hour) / time.Minute),
		Seconds: int((abs % time.Minute) / time.Second),
		Overdue: total < 0,
	}
}

func FormatTimeRemaining(due, now time.Time) string {
	c := TimeRemaining(due, now)
	switch {
	case c.Overdue:
		return fmt.Sprintf("Overdue by %dm", c.Minutes)
	case c.Total < time.Minute:
		return fmt.Sprintf("%ds", c.Seconds)
	default:
		return fmt.Sprintf("%dm %ds", c.Minutes, c.Seconds)
	}
}

// ElapsedMinutes is the whole number of minutes since createdAt.
func ElapsedMinutes(createdAt, now time.Time) int {
	d := now.Sub(createdAt)
	m := int(d / time.Minute)
	if d < 0 && d%time.Minute != 0 {
		m-- // floor, not truncate
	}
	return m
}

// Overdue reports whether an open order has passed its due time.
func (o Order) Overdue(now time.Time) bool {
	return !o.Completed && !o.Ready && now.After(o.DueTime)
}
