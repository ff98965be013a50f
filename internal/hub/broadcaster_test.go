package hub

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func registerWithSender(t *testing.T, r *Registry, teamID uuid.UUID, resource *ResourceKey) (*Connection, *fakeSender) {
	t.Helper()
	c := testConn(uuid.New(), teamID, resource)
	s := &fakeSender{}
	c.Attach(s)
	require.NoError(t, r.Register(c))
	return c, s
}

func TestBroadcaster_ToTeamExcludesSenderAndSurvivesFailures(t *testing.T) {
	r := NewRegistry()
	b := NewBroadcaster(r)
	team := uuid.New()

	origin, originSender := registerWithSender(t, r, team, nil)
	_, okSender := registerWithSender(t, r, team, nil)
	_, brokenSender := registerWithSender(t, r, team, nil)
	_, otherOK := registerWithSender(t, r, team, nil)
	_, foreign := registerWithSender(t, r, uuid.New(), nil)
	brokenSender.fail = true

	delivered := b.ToTeam(team, &Message{Type: TypeJoin}, origin.ID)

	assert.Equal(t, 2, delivered)
	assert.Zero(t, originSender.Attempts())
	assert.Equal(t, 1, okSender.Attempts())
	assert.Equal(t, 1, brokenSender.Attempts())
	assert.Equal(t, 1, otherOK.Attempts())
	assert.Zero(t, foreign.Attempts())
}

func TestBroadcaster_ResourceIsolation(t *testing.T) {
	r := NewRegistry()
	b := NewBroadcaster(r)
	team := uuid.New()
	r1 := &ResourceKey{TeamID: team, Type: "document", ID: "R1"}
	r2 := &ResourceKey{TeamID: team, Type: "document", ID: "R2"}

	editor, editorSender := registerWithSender(t, r, team, r1)
	_, peerSender := registerWithSender(t, r, team, r1)
	_, otherDocSender := registerWithSender(t, r, team, r2)
	_, teamOnlySender := registerWithSender(t, r, team, nil)

	delivered := b.ToResource(*r1, &Message{Type: TypeCursorMove}, editor.ID)

	assert.Equal(t, 1, delivered)
	assert.Zero(t, editorSender.Attempts())
	assert.Equal(t, 1, peerSender.Attempts())
	assert.Zero(t, otherDocSender.Attempts())
	assert.Zero(t, teamOnlySender.Attempts())
}

func TestBroadcaster_EmptyGroup(t *testing.T) {
	b := NewBroadcaster(NewRegistry())
	assert.Zero(t, b.ToTeam(uuid.New(), &Message{Type: TypeJoin}, uuid.Nil))
}
