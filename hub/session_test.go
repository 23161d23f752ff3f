package hub

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientSession_AssignedColor(t *testing.T) {
	colorRe := regexp.MustCompile(`^#[0-9a-f]{6}$`)
	for i := 0; i < 20; i++ {
		sess := newClientSession("c", &mockConn{id: "t"})
		assert.Regexp(t, colorRe, sess.State().Color)
	}
}

func TestClientSession_ApplyDraw(t *testing.T) {
	sess := newClientSession("c", &mockConn{id: "t"})
	assigned := sess.State().Color

	sess.ApplyDraw(100, 200, "")
	state := sess.State()
	assert.Equal(t, 100, state.X)
	assert.Equal(t, 200, state.Y)
	assert.Equal(t, assigned, state.Color, "empty color keeps the assigned one")

	sess.ApplyDraw(5, 6, "#ff0000")
	state = sess.State()
	assert.Equal(t, 5, state.X)
	assert.Equal(t, 6, state.Y)
	assert.Equal(t, "#ff0000", state.Color)
}

func TestClientSession_Touch(t *testing.T) {
	sess := newClientSession("c", &mockConn{id: "t"})
	before := sess.LastActive()

	time.Sleep(2 * time.Millisecond)
	sess.Touch()

	assert.True(t, sess.LastActive().After(before))
	assert.Equal(t, sess.LastActive().UnixMilli(), sess.State().LastActive)
}

func TestSessionDirectory_Admit(t *testing.T) {
	d := NewSessionDirectory()
	sess := newClientSession("X", &mockConn{id: "t1"})

	priorRoom, displaced := d.Admit(sess)
	assert.Empty(t, priorRoom)
	assert.False(t, displaced)

	got, ok := d.Get("X")
	require.True(t, ok)
	assert.Same(t, sess, got)
	assert.Equal(t, 1, d.Len())
}

func TestSessionDirectory_AdmitDisplaces(t *testing.T) {
	d := NewSessionDirectory()
	firstConn := &mockConn{id: "t1"}
	first := newClientSession("X", firstConn)
	first.SetRoom("R")
	d.Admit(first)

	second := newClientSession("X", &mockConn{id: "t2"})
	priorRoom, displaced := d.Admit(second)

	assert.Equal(t, "R", priorRoom)
	assert.True(t, displaced)
	assert.True(t, firstConn.isClosed())
	assert.Equal(t, "R", second.Room(), "room carries over to the successor")
	assert.Equal(t, 1, d.Len())

	got, ok := d.Get("X")
	require.True(t, ok)
	assert.Same(t, second, got)
}

func TestSessionDirectory_RemoveIf(t *testing.T) {
	d := NewSessionDirectory()
	first := newClientSession("X", &mockConn{id: "t1"})
	d.Admit(first)
	second := newClientSession("X", &mockConn{id: "t2"})
	d.Admit(second)

	assert.False(t, d.RemoveIf(first), "stale session must not evict its successor")
	_, ok := d.Get("X")
	assert.True(t, ok)

	assert.True(t, d.RemoveIf(second))
	_, ok = d.Get("X")
	assert.False(t, ok)
	assert.False(t, d.RemoveIf(second))
}

func TestSessionDirectory_Remove(t *testing.T) {
	d := NewSessionDirectory()
	sess := newClientSession("X", &mockConn{id: "t1"})
	d.Admit(sess)

	got, ok := d.Remove("X")
	require.True(t, ok)
	assert.Same(t, sess, got)

	_, ok = d.Remove("X")
	assert.False(t, ok)
}

func TestSessionDirectory_Clear(t *testing.T) {
	d := NewSessionDirectory()
	d.Admit(newClientSession("a", &mockConn{id: "t1"}))
	d.Admit(newClientSession("b", &mockConn{id: "t2"}))

	cleared := d.Clear()
	assert.Len(t, cleared, 2)
	assert.Equal(t, 0, d.Len())
	assert.Empty(t, d.Snapshot())
}
