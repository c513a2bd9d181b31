package waiter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestApplyReadyStampsAndClears(t *testing.T) {
	o := Order{ID: 1, Type: TypeWaiter}

	require.True(t, o.Apply(Patch{Ready: ptr(true)}, t0))
	require.NotNil(t, o.ReadyAt)
	assert.Equal(t, t0, *o.ReadyAt)

	// Re-sending ready=true is a no-op and keeps the original stamp.
	assert.False(t, o.Apply(Patch{Ready: ptr(true)}, t0.Add(time.Minute)))
	assert.Equal(t, t0, *o.ReadyAt)

	require.True(t, o.Apply(Patch{Ready: ptr(false)}, t0.Add(2*time.Minute)))
	assert.Nil(t, o.ReadyAt)
}

func TestApplyMailedCompletes(t *testing.T) {
	o := Order{ID: 1}
	require.True(t, o.Apply(Patch{MovedToMail: ptr(true)}, t0))
	assert.Equal(t, t0, *o.MovedToMailAt)
	assert.False(t, o.Completed)

	require.True(t, o.Apply(Patch{Mailed: ptr(true)}, t0.Add(time.Hour)))
	assert.True(t, o.Mailed)
	assert.True(t, o.Completed)
	assert.Equal(t, t0.Add(time.Hour), *o.MailedAt)
}

func TestApplyExplicitCompletedWinsOverMailed(t *testing.T) {
	o := Order{ID: 1}
	o.Apply(Patch{Mailed: ptr(true), Completed: ptr(false)}, t0)
	assert.False(t, o.Mailed)
	assert.Nil(t, o.MailedAt)
	assert.False(t, o.Completed)
}

func TestApplyUncompleteClearsMailed(t *testing.T) {
	o := Order{ID: 1}
	o.Apply(Patch{MovedToMail: ptr(true)}, t0)
	o.Apply(Patch{Mailed: ptr(true)}, t0.Add(time.Hour))
	require.True(t, o.Completed)

	require.True(t, o.Apply(Patch{Completed: ptr(false)}, t0.Add(2*time.Hour)))
	assert.False(t, o.Completed)
	assert.False(t, o.Mailed)
	assert.Nil(t, o.MailedAt)
	// still moved to mail, so it is back in the mail queue
	assert.True(t, o.MovedToMail)
	assert.Equal(t, t0, *o.MovedToMailAt)
}

func TestApplyTextFields(t *testing.T) {
	o := Order{Comments: "a", Initials: "XY"}
	assert.False(t, o.Apply(Patch{Comments: ptr("a"), Initials: ptr("XY")}, t0))
	assert.True(t, o.Apply(Patch{Comments: ptr("call when ready")}, t0))
	assert.Equal(t, "call when ready", o.Comments)
	assert.Equal(t, "XY", o.Initials)
}

func TestPatchEmpty(t *testing.T) {
	assert.True(t, Patch{}.Empty())
	assert.False(t, Patch{Printed: ptr(false)}.Empty())
}

func TestNewAuditSnapshotsAreIndependent(t *testing.T) {
	before := Order{ID: 7, Comments: "x", ReadyAt: at(0)}
	after := before
	after.Comments = "y"

	e := NewAudit(ActionUpdate, &before, &after, "AB", t0)
	before.Comments = "mutated"
	*before.ReadyAt = t0.Add(time.Hour)

	assert.Equal(t, int64(7), e.RecordID)
	assert.Equal(t, "x", e.Before.Comments)
	assert.Equal(t, "y", e.After.Comments)
	assert.Equal(t, t0, *e.Before.ReadyAt)
}

func TestNewAuditCreateAndDelete(t *testing.T) {
	o := Order{ID: 3}
	created := NewAudit(ActionCreate, nil, &o, "AB", t0)
	assert.Nil(t, created.Before)
	assert.Equal(t, int64(3), created.RecordID)

	deleted := NewAudit(ActionDelete, &o, nil, "", t0)
	assert.Nil(t, deleted.After)
	assert.Equal(t, int64(3), deleted.RecordID)
}

func TestMaskName(t *testing.T) {
	assert.Equal(t, "Ja*** And*****", MaskName("James", "Anderson"))
	assert.Equal(t, "Al Lee", MaskName("Al", "Lee"))
	assert.Equal(t, "Zo** Ng", MaskName("Zoë!", "Ng"))
	assert.Equal(t, "Jo** Ñúñ**", MaskName("José", "Ñúñez"))
}

func TestNormalizeMRN(t *testing.T) {
	assert.Equal(t, "MRN-10001", NormalizeMRN("  mrn-10001 "))
}
