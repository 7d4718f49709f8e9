package playback

import (
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"navguard/internal/policy"
)

var testNow = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

type fakeTimer struct {
	d       time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// fakeScheduler records timers; tests fire them explicitly.
type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{d: d, f: f}
	s.timers = append(s.timers, t)
	return t
}

func (s *fakeScheduler) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

func (s *fakeScheduler) last(t *testing.T) *fakeTimer {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.timers, "no timer scheduled")
	return s.timers[len(s.timers)-1]
}

// fire runs the callback of tm the way an expired timer would, even if it
// was stopped; stale callbacks must be harmless.
func (s *fakeScheduler) fire(tm *fakeTimer) {
	s.mu.Lock()
	tm.fired = true
	s.mu.Unlock()
	tm.f()
}

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingSink) Publish(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingSink) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *recordingSink) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

func (r *recordingSink) navigations() []string {
	var out []string
	for _, ev := range r.all() {
		if ev.Type == EventNavigate {
			out = append(out, ev.URL)
		}
	}
	return out
}

func (r *recordingSink) ofType(typ EventType) []Event {
	var out []Event
	for _, ev := range r.all() {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

type countingRecorder struct {
	mu         sync.Mutex
	allowed    int
	denied     int
	drifts     int
	recoveries map[string]int
	failures   int
	dropped    int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{recoveries: make(map[string]int)}
}

func (c *countingRecorder) GateDecision(allowed bool, _ string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if allowed {
		c.allowed++
	} else {
		c.denied++
	}
}

func (c *countingRecorder) Drift() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.drifts++
}

func (c *countingRecorder) Recovery(outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recoveries[outcome]++
}

func (c *countingRecorder) LoadFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures++
}

func (c *countingRecorder) EventDropped() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropped++
}

type testEnv struct {
	svc   *Service
	sched *fakeScheduler
	sink  *recordingSink
	rec   *countingRecorder
}

func newTestRules(t *testing.T) *policy.RuleSet {
	t.Helper()
	rs, err := policy.NewRuleSet(policy.Rules{}.WithDefaults())
	require.NoError(t, err)
	return rs
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	env := &testEnv{
		sched: &fakeScheduler{},
		sink:  &recordingSink{},
		rec:   newCountingRecorder(),
	}
	if opts.Scheduler == nil {
		opts.Scheduler = env.sched
	}
	opts.Sink = env.sink
	opts.Recorder = env.rec
	if opts.Now == nil {
		opts.Now = func() time.Time { return testNow }
	}
	if opts.NewID == nil {
		n := 0
		opts.NewID = func() string {
			n++
			return "sess-" + strconv.Itoa(n)
		}
	}
	env.svc = NewService(NewInMemoryRepository(), newTestRules(t), opts)
	return env
}
