package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pywire/pywire"
	"github.com/pywire/pywire/runtime"
	"github.com/pywire/pywire/wire"
)

// stubPage is a minimal runtime.PageClass for exercising Session/Manager
// without needing a compiled page.
type stubPage struct {
	*runtime.Base
	filePath    string
	deps        []string
	renderCount int
	renderErr   error
	handleErr   error
	lastHandled string
	lastPayload map[string]interface{}
}

func newStubPage(filePath string) *stubPage {
	return &stubPage{Base: runtime.NewBase(), filePath: filePath}
}

func (p *stubPage) Init(ctx context.Context) error { return nil }

func (p *stubPage) Render(ctx context.Context, init bool) (string, error) {
	p.renderCount++
	if p.renderErr != nil {
		return "", p.renderErr
	}
	counter := p.State().Get("counter")
	return fmt.Sprintf("<div>render-%d counter=%v</div>", p.renderCount, counter), nil
}

func (p *stubPage) HandleEvent(ctx context.Context, name string, payload map[string]interface{}) (string, error) {
	p.lastHandled = name
	p.lastPayload = payload
	if p.handleErr != nil {
		return "", p.handleErr
	}
	return p.Render(ctx, false)
}

func (p *stubPage) Routes() map[string]string { return nil }
func (p *stubPage) FilePath() string          { return p.filePath }
func (p *stubPage) Dependencies() []string    { return p.deps }

func newManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager(time.Hour, time.Hour)
	t.Cleanup(m.Close)
	return m
}

func TestManagerCreateAndGet(t *testing.T) {
	m := newManager(t)
	page := newStubPage("/pages/counter.pyw")

	sess, err := m.Create(page)
	require.NoError(t, err)
	assert.NotEmpty(t, sess.ID)

	got, ok := m.Get(sess.ID)
	require.True(t, ok)
	assert.Same(t, sess, got)
}

func TestManagerRemove(t *testing.T) {
	m := newManager(t)
	sess, err := m.Create(newStubPage("/pages/a.pyw"))
	require.NoError(t, err)

	m.Remove(sess.ID)

	_, ok := m.Get(sess.ID)
	assert.False(t, ok)
}

type capturingSender struct {
	mu     sync.Mutex
	frames [][]byte
}

func (c *capturingSender) send(env []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, env)
	return nil
}

func (c *capturingSender) last(t *testing.T) wire.Envelope {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.frames)
	env, err := wire.Decode(c.frames[len(c.frames)-1])
	require.NoError(t, err)
	return env
}

func TestSessionHandleEventSendsUpdateFrame(t *testing.T) {
	m := newManager(t)
	page := newStubPage("/pages/counter.pyw")
	sess, err := m.Create(page)
	require.NoError(t, err)

	sender := &capturingSender{}
	sess.SetSender(sender.send)

	require.NoError(t, sess.HandleEvent(context.Background(), "increment", map[string]interface{}{"argN": float64(1)}))

	assert.Equal(t, "increment", page.lastHandled)
	env := sender.last(t)
	assert.Equal(t, wire.TypeUpdate, env.Type)

	var payload wire.UpdatePayload
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.Contains(t, payload.HTML, "render-")
}

func TestSessionHandleEventSendsErrorTraceOnHandlerError(t *testing.T) {
	m := newManager(t)
	page := newStubPage("/pages/broken.pyw")
	page.handleErr = &pywire.HandlerError{Handler: "boom", Cause: errors.New("kaboom")}
	sess, err := m.Create(page)
	require.NoError(t, err)

	sender := &capturingSender{}
	sess.SetSender(sender.send)

	require.NoError(t, sess.HandleEvent(context.Background(), "boom", nil))

	env := sender.last(t)
	assert.Equal(t, wire.TypeErrorTrace, env.Type)
}

func TestSessionSendWithoutTransportQueuesForPoll(t *testing.T) {
	m := newManager(t)
	sess, err := m.Create(newStubPage("/pages/a.pyw"))
	require.NoError(t, err)

	require.NoError(t, sess.Send([]byte(`{"type":"update"}`)))

	frames := sess.Poll(context.Background(), time.Second)
	require.Len(t, frames, 1)
	assert.JSONEq(t, `{"type":"update"}`, string(frames[0]))
}

func TestSessionPollReturnsImmediatelyWhenQueueNonEmpty(t *testing.T) {
	m := newManager(t)
	sess, err := m.Create(newStubPage("/pages/a.pyw"))
	require.NoError(t, err)

	require.NoError(t, sess.Send([]byte(`{"type":"a"}`)))
	require.NoError(t, sess.Send([]byte(`{"type":"b"}`)))

	start := time.Now()
	frames := sess.Poll(context.Background(), time.Minute)
	assert.Less(t, time.Since(start), time.Second)
	require.Len(t, frames, 2)
}

func TestSessionPollTimesOutWithEmptyQueue(t *testing.T) {
	m := newManager(t)
	sess, err := m.Create(newStubPage("/pages/a.pyw"))
	require.NoError(t, err)

	frames := sess.Poll(context.Background(), 10*time.Millisecond)
	assert.Empty(t, frames)
}

func TestSessionPollWakesOnSend(t *testing.T) {
	m := newManager(t)
	sess, err := m.Create(newStubPage("/pages/a.pyw"))
	require.NoError(t, err)

	go func() {
		time.Sleep(10 * time.Millisecond)
		sess.Send([]byte(`{"type":"update"}`))
	}()

	start := time.Now()
	frames := sess.Poll(context.Background(), time.Minute)
	assert.Less(t, time.Since(start), time.Second)
	require.Len(t, frames, 1)
}

func TestSessionMigrateQueuesUpdateForIdleLongPollSession(t *testing.T) {
	m := newManager(t)
	oldPage := newStubPage("/pages/counter.pyw")
	oldPage.State().Set("counter", 5)
	sess, err := m.Create(oldPage)
	require.NoError(t, err)

	newPage := newStubPage("/pages/counter.pyw")
	require.NoError(t, sess.Migrate(context.Background(), newPage))

	frames := sess.Poll(context.Background(), time.Second)
	require.Len(t, frames, 1)
	env, err := wire.Decode(frames[0])
	require.NoError(t, err)
	assert.Equal(t, wire.TypeUpdate, env.Type)
}

func TestSessionApplyTransform(t *testing.T) {
	m := newManager(t)
	m.SetHTMLTransform(func(s string) string { return "MINIFIED:" + s })

	sess, err := m.Create(newStubPage("/pages/a.pyw"))
	require.NoError(t, err)

	sender := &capturingSender{}
	sess.SetSender(sender.send)

	require.NoError(t, sess.HandleEvent(context.Background(), "noop", nil))

	env := sender.last(t)
	var payload wire.UpdatePayload
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.Contains(t, payload.HTML, "MINIFIED:")
}

func TestSessionMigrateCopiesState(t *testing.T) {
	m := newManager(t)
	oldPage := newStubPage("/pages/counter.pyw")
	oldPage.State().Set("counter", 5)

	sess, err := m.Create(oldPage)
	require.NoError(t, err)

	sender := &capturingSender{}
	sess.SetSender(sender.send)

	newPage := newStubPage("/pages/counter.pyw")
	require.NoError(t, sess.Migrate(context.Background(), newPage))

	assert.Equal(t, 5, newPage.State().Get("counter"))
	assert.Same(t, newPage, sess.Page())

	env := sender.last(t)
	assert.Equal(t, wire.TypeUpdate, env.Type)
}

func TestSessionMigrateFallsBackToReloadOnRenderError(t *testing.T) {
	m := newManager(t)
	oldPage := newStubPage("/pages/counter.pyw")
	sess, err := m.Create(oldPage)
	require.NoError(t, err)

	sender := &capturingSender{}
	sess.SetSender(sender.send)

	newPage := newStubPage("/pages/counter.pyw")
	newPage.renderErr = errors.New("render exploded")

	require.NoError(t, sess.Migrate(context.Background(), newPage))

	env := sender.last(t)
	assert.Equal(t, wire.TypeReload, env.Type)
	assert.Same(t, newPage, sess.Page())
}

func TestManagerBroadcastMigratesMatchingSessions(t *testing.T) {
	m := newManager(t)

	matching := newStubPage("/pages/counter.pyw")
	other := newStubPage("/pages/other.pyw")

	matchSess, err := m.Create(matching)
	require.NoError(t, err)
	otherSess, err := m.Create(other)
	require.NoError(t, err)

	matchSender := &capturingSender{}
	matchSess.SetSender(matchSender.send)
	otherSender := &capturingSender{}
	otherSess.SetSender(otherSender.send)

	next := newStubPage("/pages/counter.pyw")
	m.Broadcast(context.Background(), []string{"/pages/counter.pyw"}, func() runtime.PageClass { return next })

	assert.NotEmpty(t, matchSender.frames)
	assert.Empty(t, otherSender.frames)
	assert.Same(t, next, matchSess.Page())
}

func TestManagerBroadcastMatchesDependents(t *testing.T) {
	m := newManager(t)

	page := newStubPage("/pages/child.pyw")
	page.deps = []string{"/pages/__layout__.pyw"}

	sess, err := m.Create(page)
	require.NoError(t, err)

	sender := &capturingSender{}
	sess.SetSender(sender.send)

	next := newStubPage("/pages/child.pyw")
	m.Broadcast(context.Background(), []string{"/pages/__layout__.pyw"}, func() runtime.PageClass { return next })

	assert.NotEmpty(t, sender.frames)
	assert.Same(t, next, sess.Page())
}

func TestManagerSweepEvictsIdleSessions(t *testing.T) {
	m := NewManager(10*time.Millisecond, time.Hour)
	defer m.Close()

	sess, err := m.Create(newStubPage("/pages/a.pyw"))
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	m.sweep()

	_, ok := m.Get(sess.ID)
	assert.False(t, ok)
}
