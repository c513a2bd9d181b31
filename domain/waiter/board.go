package waiter

import (
	"sort"
	"time"
)

/*
Board queries.

Every function here is a pure filter over a slice of orders, so both store
backends share one definition of what each board shows. Inputs are never
modified; results are freshly allocated.
*/

// Active returns every order that has not been completed, soonest due first.
func Active(orders []Order) []Order {
	out := filter(orders, func(o Order) bool { return !o.Completed })
	sortByDue(out)
	return out
}

// ProductionBoard is the internal work queue: open orders not yet ready and
// not diverted to mail.
func ProductionBoard(orders []Order) []Order {
	out := filter(orders, func(o Order) bool {
		return !o.Completed && !o.Ready && !o.MovedToMail
	})
	sortByDue(out)
	return out
}

// PatientBoard is the public pickup board: ready waiter orders still inside
// the auto-clear window. Most recently readied first.
func PatientBoard(orders []Order, s Settings, now time.Time) []Order {
	window := s.AutoClear()
	out := filter(orders, func(o Order) bool {
		return pickupCandidate(o) && now.Sub(*o.ReadyAt) < window
	})
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ReadyAt.After(*out[j].ReadyAt)
	})
	return out
}

// Expired returns the ready waiter orders whose auto-clear window has elapsed.
// These are exactly the ready waiter orders PatientBoard leaves out.
func Expired(orders []Order, s Settings, now time.Time) []Order {
	window := s.AutoClear()
	return filter(orders, func(o Order) bool {
		return pickupCandidate(o) && now.Sub(*o.ReadyAt) >= window
	})
}

// MailQueue lists orders moved to mail that have not been sent yet.
func MailQueue(orders []Order) []Order {
	out := filter(orders, func(o Order) bool {
		return o.MovedToMail && !o.Mailed && !o.Completed
	})
	sortByDue(out)
	return out
}

// GroupByType buckets orders by type, preserving their relative order.
func GroupByType(orders []Order) map[OrderType][]Order {
	out := make(map[OrderType][]Order, len(OrderTypes))
	for _, o := range orders {
		out[o.Type] = append(out[o.Type], o)
	}
	return out
}

// CountOverdue counts orders past due at now.
func CountOverdue(orders []Order, now time.Time) int {
	n := 0
	for _, o := range orders {
		if o.Overdue(now) {
			n++
		}
	}
	return n
}

func pickupCandidate(o Order) bool {
	return o.Type.OnPatientBoard() && o.Ready && o.ReadyAt != nil &&
		!o.Completed && !o.MovedToMail
}

func filter(orders []Order, keep func(Order) bool) []Order {
	out := make([]Order, 0, len(orders))
	for _, o := range orders {
		if keep(o) {
			out = append(out, o)
		}
	}
	return out
}

func sortByDue(orders []Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		if !orders[i].DueTime.Equal(orders[j].DueTime) {
			return orders[i].DueTime.Before(orders[j].DueTime)
		}
		return orders[i].ID < orders[j].ID
	})
}
