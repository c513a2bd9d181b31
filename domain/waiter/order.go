package waiter

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

type OrderType string

const (
	TypeWaiter     OrderType = "waiter"
	TypeAcute      OrderType = "acute"
	TypeUrgentMail OrderType = "urgent_mail"
)

// OrderTypes lists every known type in board display order.
var OrderTypes = []OrderType{TypeWaiter, TypeAcute, TypeUrgentMail}

// ParseOrderType maps the wire value to an OrderType. Empty means waiter.
func ParseOrderType(s string) (OrderType, error) {
	switch t := OrderType(strings.TrimSpace(s)); t {
	case "":
		return TypeWaiter, nil
	case TypeWaiter, TypeAcute, TypeUrgentMail:
		return t, nil
	default:
		return "", errors.Wrapf(ErrInvalid, "unknown order type %q", s)
	}
}

// Label is the upper-case badge text shown on boards.
func (t OrderType) Label() string {
	switch t {
	case TypeWaiter:
		return "WAITER"
	case TypeAcute:
		return "ACUTE"
	case TypeUrgentMail:
		return "URGENT MAIL"
	default:
		return strings.ToUpper(string(t))
	}
}

// OnPatientBoard reports whether orders of this type are ever shown publicly.
func (t OrderType) OnPatientBoard() bool {
	return t == TypeWaiter
}

// Order is a prescription order tracked from entry to pickup or mailing.
type Order struct {
	ID               int64      `json:"id"`
	MRN              string     `json:"mrn"`
	FirstName        string     `json:"first_name"`
	LastName         string     `json:"last_name"`
	DOB              string     `json:"dob"`
	NumPrescriptions int        `json:"num_prescriptions"`
	Comments         string     `json:"comments"`
	Initials         string     `json:"initials"`
	Type             OrderType  `json:"order_type"`
	DueTime          time.Time  `json:"due_time"`
	CreatedAt        time.Time  `json:"created_at"`
	Printed          bool       `json:"printed"`
	Ready            bool       `json:"ready"`
	ReadyAt          *time.Time `json:"ready_at"`
	Completed        bool       `json:"completed"`
	MovedToMail      bool       `json:"moved_to_mail"`
	MovedToMailAt    *time.Time `json:"moved_to_mail_at"`
	Mailed           bool       `json:"mailed"`
	MailedAt         *time.Time `json:"mailed_at"`
}

// NewOrder is the staff entry form.
type NewOrder struct {
	MRN              string `json:"mrn"`
	FirstName        string `json:"first_name"`
	LastName         string `json:"last_name"`
	DOB              string `json:"dob"`
	NumPrescriptions int    `json:"num_prescriptions"`
	Comments         string `json:"comments"`
	Initials         string `json:"initials"`
	Type             string `json:"order_type"`
}

// Build validates the form and produces an unsaved order created at now.
func (n NewOrder) Build(s Settings, now time.Time) (Order, error) {
	required := []struct{ name, value string }{
		{"mrn", n.MRN},
		{"first_name", n.FirstName},
		{"last_name", n.LastName},
		{"dob", n.DOB},
		{"initials", n.Initials},
	}
	var missing []string
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return Order{}, errors.Wrapf(ErrInvalid, "missing required fields: %s", strings.Join(missing, ", "))
	}

	typ, err := ParseOrderType(n.Type)
	if err != nil {
		return Order{}, err
	}

	count := n.NumPrescriptions
	if count == 0 {
		count = 1
	}
	if count < 0 {
		return Order{}, errors.Wrapf(ErrInvalid, "num_prescriptions must be positive, got %d", count)
	}

	return Order{
		MRN:              strings.TrimSpace(n.MRN),
		FirstName:        strings.TrimSpace(n.FirstName),
		LastName:         strings.TrimSpace(n.LastName),
		DOB:              strings.TrimSpace(n.DOB),
		NumPrescriptions: count,
		Comments:         n.Comments,
		Initials:         strings.TrimSpace(n.Initials),
		Type:             typ,
		DueTime:          DueTime(typ, s, now),
		CreatedAt:        now,
	}, nil
}

// Clone returns a deep copy so audit snapshots never alias live records.
func (o Order) Clone() *Order {
	c := o
	c.ReadyAt = cloneTime(o.ReadyAt)
	c.MovedToMailAt = cloneTime(o.MovedToMailAt)
	c.MailedAt = cloneTime(o.MailedAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
