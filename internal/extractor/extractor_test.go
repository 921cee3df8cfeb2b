package extractor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"rpcextractor/internal/catalog"
	"rpcextractor/internal/config"
	"rpcextractor/internal/rpc"
	logx "rpcextractor/pkg/logx"
)

// onlyMethods builds a catalog with everything but the given methods disabled.
func onlyMethods(names ...string) *catalog.Catalog {
	keep := map[string]bool{}
	for _, n := range names {
		keep[n] = true
	}
	cfg := config.ExtractorConfig{
		DisableGetpeerinfo:       !keep["getpeerinfo"],
		DisableGetmempoolinfo:    !keep["getmempoolinfo"],
		DisableUptime:            !keep["uptime"],
		DisableGetnettotals:      !keep["getnettotals"],
		DisableGetmemoryinfo:     !keep["getmemoryinfo"],
		DisableGetaddrmaninfo:    !keep["getaddrmaninfo"],
		DisableGetchaintxstats:   !keep["getchaintxstats"],
		DisableGetnetworkinfo:    !keep["getnetworkinfo"],
		DisableGetblockchaininfo: !keep["getblockchaininfo"],
	}
	return catalog.New(cfg)
}

type fakeFetcher struct {
	mu      sync.Mutex
	calls   map[string]int
	fail    map[string]bool
	started chan string
	release chan struct{} // when non-nil, Fetch blocks until it is closed
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{calls: map[string]int{}, fail: map[string]bool{}, started: make(chan string, 16)}
}

func (f *fakeFetcher) Fetch(_ context.Context, method string) rpc.Outcome {
	f.mu.Lock()
	f.calls[method]++
	fail := f.fail[method]
	release := f.release
	f.mu.Unlock()

	select {
	case f.started <- method:
	default:
	}
	if release != nil {
		<-release
	}

	if fail {
		return rpc.Outcome{Method: method, Elapsed: time.Millisecond, Kind: rpc.FailNetwork, Err: errors.New("connection refused")}
	}
	return rpc.Outcome{Method: method, Elapsed: time.Millisecond, Payload: []byte(`{"ok":true}`)}
}

func (f *fakeFetcher) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

type fakePublisher struct {
	mu     sync.Mutex
	events map[string]int
	err    error
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{events: map[string]int{}}
}

func (p *fakePublisher) Publish(method string, _ []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events[method]++
	return nil
}

func (p *fakePublisher) count(method string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.events[method]
}

type fakeRecorder struct {
	mu        sync.Mutex
	durations map[string]int
	fetchErrs map[string]int
	pubErrs   map[string]int
	resolved  chan string
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{
		durations: map[string]int{},
		fetchErrs: map[string]int{},
		pubErrs:   map[string]int{},
		resolved:  make(chan string, 16),
	}
}

func (r *fakeRecorder) ObserveFetch(method string, _ time.Duration) {
	r.mu.Lock()
	r.durations[method]++
	r.mu.Unlock()
	select {
	case r.resolved <- method:
	default:
	}
}

func (r *fakeRecorder) IncFetchError(method string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetchErrs[method]++
}

func (r *fakeRecorder) IncPublishError(method string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pubErrs[method]++
}

func (r *fakeRecorder) counts(method string) (durations, fetchErrs, pubErrs int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.durations[method], r.fetchErrs[method], r.pubErrs[method]
}

func waitResolved(t *testing.T, rec *fakeRecorder, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-rec.resolved:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for outcome %d of %d", i+1, n)
		}
	}
}

func newService(cat *catalog.Catalog, f Fetcher, p Publisher, r Recorder) *Service {
	// A huge interval keeps the cron trigger quiet; tests drive ticks manually.
	return New(cat, f, p, r, time.Hour, logx.Nop())
}

// --- due-set logic (single-threaded, driven directly) ---

func TestDueSetCadence(t *testing.T) {
	t.Parallel()
	cat := onlyMethods("uptime", "getchaintxstats")
	s := newService(cat, newFakeFetcher(), newFakePublisher(), newFakeRecorder())

	fired := map[string]int{}
	for tick := 1; tick <= 20; tick++ {
		for _, name := range s.dueSet() {
			fired[name]++
			// pretend the call resolved immediately
			s.state[s.index[name]].inFlight = false
		}
		if tick == 9 && fired["getchaintxstats"] != 0 {
			t.Fatalf("getchaintxstats fired before tick 10")
		}
		if tick == 10 && fired["getchaintxstats"] != 1 {
			t.Fatalf("getchaintxstats did not fire exactly once at tick 10, got %d", fired["getchaintxstats"])
		}
	}

	if fired["uptime"] != 20 {
		t.Fatalf("uptime fired %d times in 20 ticks, want 20", fired["uptime"])
	}
	if fired["getchaintxstats"] != 2 {
		t.Fatalf("getchaintxstats fired %d times in 20 ticks, want 2", fired["getchaintxstats"])
	}
}

func TestDueSetSkipsDisabled(t *testing.T) {
	t.Parallel()
	cat := onlyMethods("uptime")
	s := newService(cat, newFakeFetcher(), newFakePublisher(), newFakeRecorder())

	for tick := 0; tick < 5; tick++ {
		for _, name := range s.dueSet() {
			if name != "uptime" {
				t.Fatalf("disabled method %q fired", name)
			}
			s.state[s.index[name]].inFlight = false
		}
	}
}

func TestDueSetNoOverlap(t *testing.T) {
	t.Parallel()
	cat := onlyMethods("uptime")
	s := newService(cat, newFakeFetcher(), newFakePublisher(), newFakeRecorder())

	due := s.dueSet()
	if len(due) != 1 || due[0] != "uptime" {
		t.Fatalf("unexpected due set %v", due)
	}

	// Previous call still in flight: the next ticks must not dispatch again.
	for tick := 0; tick < 3; tick++ {
		if due := s.dueSet(); len(due) != 0 {
			t.Fatalf("dispatched %v while in flight", due)
		}
	}

	// Once free it fires on the next tick.
	s.state[s.index["uptime"]].inFlight = false
	if due := s.dueSet(); len(due) != 1 {
		t.Fatalf("expected refire after resolve, got %v", due)
	}
}

// --- outcome routing ---

func TestResolveSuccessPublishes(t *testing.T) {
	t.Parallel()
	cat := onlyMethods("uptime")
	pub := newFakePublisher()
	rec := newFakeRecorder()
	s := newService(cat, newFakeFetcher(), pub, rec)

	s.resolve(rpc.Outcome{Method: "uptime", Elapsed: time.Millisecond, Payload: []byte(`42`)})

	d, fe, pe := rec.counts("uptime")
	if d != 1 || fe != 0 || pe != 0 {
		t.Fatalf("counts = (%d,%d,%d), want (1,0,0)", d, fe, pe)
	}
	if pub.count("uptime") != 1 {
		t.Fatalf("published %d events, want 1", pub.count("uptime"))
	}
}

func TestResolveFailureCountsNoPublish(t *testing.T) {
	t.Parallel()
	cat := onlyMethods("uptime")
	pub := newFakePublisher()
	rec := newFakeRecorder()
	s := newService(cat, newFakeFetcher(), pub, rec)

	s.resolve(rpc.Outcome{Method: "uptime", Elapsed: time.Millisecond, Kind: rpc.FailTimeout, Err: errors.New("deadline exceeded")})

	d, fe, pe := rec.counts("uptime")
	if d != 1 || fe != 1 || pe != 0 {
		t.Fatalf("counts = (%d,%d,%d), want (1,1,0)", d, fe, pe)
	}
	if pub.count("uptime") != 0 {
		t.Fatalf("published %d events for a failed fetch", pub.count("uptime"))
	}
}

func TestResolvePublishErrorIsNonFatal(t *testing.T) {
	t.Parallel()
	cat := onlyMethods("uptime")
	pub := newFakePublisher()
	pub.err = errors.New("broker gone")
	rec := newFakeRecorder()
	s := newService(cat, newFakeFetcher(), pub, rec)

	s.resolve(rpc.Outcome{Method: "uptime", Elapsed: time.Millisecond, Payload: []byte(`42`)})

	d, fe, pe := rec.counts("uptime")
	if d != 1 || fe != 0 || pe != 1 {
		t.Fatalf("counts = (%d,%d,%d), want (1,0,1)", d, fe, pe)
	}
}

// --- full loop ---

func TestRunSuccessCycle(t *testing.T) {
	t.Parallel()
	cat := onlyMethods("uptime")
	fetch := newFakeFetcher()
	pub := newFakePublisher()
	rec := newFakeRecorder()
	s := newService(cat, fetch, pub, rec)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	for i := 0; i < 3; i++ {
		s.ticks <- struct{}{}
		waitResolved(t, rec, 1)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}

	if got := fetch.count("uptime"); got != 3 {
		t.Fatalf("fetched %d times, want 3", got)
	}
	if got := pub.count("uptime"); got != 3 {
		t.Fatalf("published %d events, want 3", got)
	}
	d, fe, _ := rec.counts("uptime")
	if d != 3 || fe != 0 {
		t.Fatalf("durations=%d fetchErrs=%d, want 3 and 0", d, fe)
	}
}

func TestRunFailureIsolation(t *testing.T) {
	t.Parallel()
	cat := onlyMethods("uptime", "getpeerinfo")
	fetch := newFakeFetcher()
	fetch.fail["getpeerinfo"] = true
	pub := newFakePublisher()
	rec := newFakeRecorder()
	s := newService(cat, fetch, pub, rec)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	for i := 0; i < 2; i++ {
		s.ticks <- struct{}{}
		waitResolved(t, rec, 2)
	}

	cancel()
	<-done

	if got := pub.count("uptime"); got != 2 {
		t.Fatalf("healthy method published %d events, want 2", got)
	}
	if got := pub.count("getpeerinfo"); got != 0 {
		t.Fatalf("failing method published %d events, want 0", got)
	}
	_, fe, _ := rec.counts("getpeerinfo")
	if fe != 2 {
		t.Fatalf("failing method recorded %d errors, want 2", fe)
	}
	_, fe, _ = rec.counts("uptime")
	if fe != 0 {
		t.Fatalf("healthy method recorded %d errors, want 0", fe)
	}
}

func TestRunDrainsInFlightOnShutdown(t *testing.T) {
	t.Parallel()
	cat := onlyMethods("uptime")
	fetch := newFakeFetcher()
	fetch.release = make(chan struct{})
	pub := newFakePublisher()
	rec := newFakeRecorder()
	s := newService(cat, fetch, pub, rec)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	s.ticks <- struct{}{}
	select {
	case <-fetch.started:
	case <-time.After(2 * time.Second):
		t.Fatal("fetch never started")
	}

	// Shutdown with the call still in flight: Run must wait for it.
	cancel()
	select {
	case <-done:
		t.Fatal("Run returned before the in-flight call resolved")
	case <-time.After(100 * time.Millisecond):
	}

	close(fetch.release)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not finish draining")
	}

	// The drained outcome still got its metrics and event.
	d, _, _ := rec.counts("uptime")
	if d != 1 {
		t.Fatalf("drained call recorded %d durations, want 1", d)
	}
	if pub.count("uptime") != 1 {
		t.Fatalf("drained call published %d events, want 1", pub.count("uptime"))
	}
}

func TestRunNoDispatchAfterShutdown(t *testing.T) {
	t.Parallel()
	cat := onlyMethods("uptime")
	fetch := newFakeFetcher()
	pub := newFakePublisher()
	rec := newFakeRecorder()
	s := newService(cat, fetch, pub, rec)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}

	if got := fetch.count("uptime"); got != 0 {
		t.Fatalf("fetched %d times after shutdown, want 0", got)
	}
}
