package waiter

import "time"

// Patch carries a partial update. Nil fields are left alone.
type Patch struct {
	Comments    *string `json:"comments,omitempty"`
	Initials    *string `json:"initials,omitempty"`
	Printed     *bool   `json:"printed,omitempty"`
	Ready       *bool   `json:"ready,omitempty"`
	Completed   *bool   `json:"completed,omitempty"`
	MovedToMail *bool   `json:"moved_to_mail,omitempty"`
	Mailed      *bool   `json:"mailed,omitempty"`
}

// Empty reports whether the patch sets nothing.
func (p Patch) Empty() bool {
	return p.Comments == nil && p.Initials == nil && p.Printed == nil &&
		p.Ready == nil && p.Completed == nil && p.MovedToMail == nil && p.Mailed == nil
}

// Apply mutates o in place and reports whether any stored field changed.
//
// Timestamps follow the flags they belong to: ReadyAt is set when an order
// becomes ready and cleared when it is un-readied; MovedToMailAt and MailedAt
// behave the same way. Marking an order mailed also completes it, and
// un-completing a mailed order clears its mailed state so it returns to the
// mail queue.
func (o *Order) Apply(p Patch, now time.Time) bool {
	changed := false

	if p.Comments != nil && *p.Comments != o.Comments {
		o.Comments = *p.Comments
		changed = true
	}
	if p.Initials != nil && *p.Initials != o.Initials {
		o.Initials = *p.Initials
		changed = true
	}
	if p.Printed != nil && *p.Printed != o.Printed {
		o.Printed = *p.Printed
		changed = true
	}
	if p.Ready != nil && *p.Ready != o.Ready {
		o.Ready = *p.Ready
		o.ReadyAt = stamp(o.Ready, now)
		changed = true
	}
	if p.MovedToMail != nil && *p.MovedToMail != o.MovedToMail {
		o.MovedToMail = *p.MovedToMail
		o.MovedToMailAt = stamp(o.MovedToMail, now)
		changed = true
	}
	if p.Mailed != nil && *p.Mailed != o.Mailed {
		o.Mailed = *p.Mailed
		o.MailedAt = stamp(o.Mailed, now)
		if o.Mailed {
			o.Completed = true
		}
		changed = true
	}
	if p.Completed != nil && *p.Completed != o.Completed {
		o.Completed = *p.Completed
		if !o.Completed && o.Mailed {
			o.Mailed = false
			o.MailedAt = nil
		}
		changed = true
	}

	return changed
}

func stamp(on bool, now time.Time) *time.Time {
	if !on {
		return nil
	}
	t := now
	return &t
}
