package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"coopadventure/internal/game"
)

var (
	errOutletClosed = errors.New("outlet closed")
	errSendFailed   = errors.New("send failed")
)

type fakeOutlet struct {
	mu     sync.Mutex
	lines  []string
	closed bool
	fail   bool
	mark   int
}

func (f *fakeOutlet) Send(line string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errOutletClosed
	}
	if f.fail {
		return errSendFailed
	}
	f.lines = append(f.lines, line)
	return nil
}

func (f *fakeOutlet) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeOutlet) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeOutlet) setFail() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = true
}

// take returns the lines received since the previous call.
func (f *fakeOutlet) take() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]string(nil), f.lines[f.mark:]...)
	f.mark = len(f.lines)
	return out
}

type fakeTimer struct {
	fire    func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (c *fakeClock) AfterFunc(_ time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{fire: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) last(t *testing.T) *fakeTimer {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.timers) == 0 {
		t.Fatal("Expected a vote timer to be armed")
	}
	return c.timers[len(c.timers)-1]
}

func loadStory(t *testing.T, doc string) *game.Story {
	t.Helper()
	st, err := game.Load([]byte(doc))
	if err != nil {
		t.Fatalf("Failed to load story: %v", err)
	}
	return st
}

func newTestSession(t *testing.T, doc string) (*Session, *fakeClock) {
	t.Helper()
	clock := &fakeClock{}
	s := New(loadStory(t, doc), Options{
		VoteTimeout: 30 * time.Second,
		AfterFunc:   clock.AfterFunc,
	})
	return s, clock
}

// join admits a connection per role and claims the roles in order.
func join(t *testing.T, s *Session, roles ...string) map[string]*fakeOutlet {
	t.Helper()
	ctx := context.Background()
	outs := map[string]*fakeOutlet{}
	temps := map[string]string{}
	for _, r := range roles {
		out := &fakeOutlet{}
		id, err := s.Admit(ctx, out)
		if err != nil {
			t.Fatalf("Admit: %v", err)
		}
		outs[r] = out
		temps[r] = id
	}
	for _, r := range roles {
		if _, err := s.ClaimRole(ctx, temps[r], r); err != nil {
			t.Fatalf("ClaimRole %s: %v", r, err)
		}
	}
	return outs
}

func tags(lines []string) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		tag, _, _ := strings.Cut(l, ":")
		out[i] = tag
	}
	return out
}

func hasLine(lines []string, want string) bool {
	for _, l := range lines {
		if l == want {
			return true
		}
	}
	return false
}

func hasPrefix(lines []string, prefix string) bool {
	for _, l := range lines {
		if strings.HasPrefix(l, prefix) {
			return true
		}
	}
	return false
}
