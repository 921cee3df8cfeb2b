// Package extractor drives the query loop: on every base tick it decides
// which catalog methods are due, fetches them concurrently, records metrics
// for every resolved call, and publishes successful results to the bus.
//
// Failure isolation is the point of the design. A method that hangs, times
// out, or always errors never stops the loop, never blocks another method,
// and never gets a second in-flight call racing its first.
package extractor

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"rpcextractor/internal/catalog"
	"rpcextractor/internal/rpc"
	logx "rpcextractor/pkg/logx"
)

// Fetcher resolves one RPC method into a classified outcome. It must not
// block past its own timeout and must never panic.
type Fetcher interface {
	Fetch(ctx context.Context, method string) rpc.Outcome
}

// Publisher forwards one successful result to the bus.
type Publisher interface {
	Publish(method string, payload []byte) error
}

// Recorder receives exactly one duration observation per resolved call and
// one error increment per failure.
type Recorder interface {
	ObserveFetch(method string, elapsed time.Duration)
	IncFetchError(method string)
	IncPublishError(method string)
}

// warnEvery throttles repeated per-method failure logs; between warns the
// failures still count in metrics and log at debug.
const warnEvery = 30 * time.Second

// methodState is the per-method scheduling state, indexed by catalog
// position and touched only by the run loop goroutine.
type methodState struct {
	ticks    uint
	inFlight bool
}

type Service struct {
	cat      *catalog.Catalog
	fetch    Fetcher
	pub      Publisher
	rec      Recorder
	interval time.Duration
	log      logx.Logger

	ticks    chan struct{}
	outcomes chan rpc.Outcome

	state     []methodState
	index     map[string]int
	warnLimit []*rate.Limiter
}

func New(cat *catalog.Catalog, fetch Fetcher, pub Publisher, rec Recorder, interval time.Duration, log logx.Logger) *Service {
	n := cat.Len()
	s := &Service{
		cat:      cat,
		fetch:    fetch,
		pub:      pub,
		rec:      rec,
		interval: interval,
		log:      log,
		ticks:    make(chan struct{}, 1),
		// Buffered to the catalog size so a dispatched fetch never blocks
		// on delivering its outcome.
		outcomes:  make(chan rpc.Outcome, n),
		state:     make([]methodState, n),
		index:     make(map[string]int, n),
		warnLimit: make([]*rate.Limiter, n),
	}
	for i, m := range cat.Methods() {
		s.index[m.Name] = i
		s.warnLimit[i] = rate.NewLimiter(rate.Every(warnEvery), 1)
	}
	return s
}

// Run executes the loop until ctx is cancelled, then drains in-flight
// fetches (bounded by the fetcher's own timeout) before returning.
func (s *Service) Run(ctx context.Context) error {
	trigger := cron.New()
	_, err := trigger.AddFunc("@every "+s.interval.String(), func() {
		// Non-blocking: if the loop is mid-cycle the tick is absorbed and
		// the cycle simply runs on the next one.
		select {
		case s.ticks <- struct{}{}:
		default:
		}
	})
	if err != nil {
		return err
	}
	trigger.Start()
	defer func() { <-trigger.Stop().Done() }()

	s.log.Info("extractor started",
		logx.Duration("interval", s.interval),
		logx.Int("methods", s.cat.EnabledCount()),
	)

	inFlight := 0
	for {
		select {
		case <-ctx.Done():
			if inFlight > 0 {
				s.log.Info("draining in-flight calls", logx.Int("in_flight", inFlight))
			}
			for inFlight > 0 {
				out := <-s.outcomes
				inFlight--
				s.resolve(out)
			}
			s.log.Info("extractor stopped")
			return nil

		case out := <-s.outcomes:
			inFlight--
			s.resolve(out)

		case <-s.ticks:
			for _, name := range s.dueSet() {
				inFlight++
				// Detached from ctx: shutdown lets in-flight calls run to
				// completion or their own timeout instead of aborting them.
				callCtx := context.WithoutCancel(ctx)
				go func(method string) {
					s.outcomes <- s.fetch.Fetch(callCtx, method)
				}(name)
			}
		}
	}
}

// dueSet advances every enabled method's tick counter and returns the
// methods firing this tick. A method whose previous call is still in flight
// is skipped, not double-dispatched; its counter keeps running so it fires
// on a later cadence-aligned tick once free.
func (s *Service) dueSet() []string {
	var due []string
	for i, m := range s.cat.Methods() {
		if !m.Enabled {
			continue
		}
		st := &s.state[i]
		st.ticks++
		if st.ticks%m.Cadence != 0 {
			continue
		}
		if st.inFlight {
			s.log.Debug("previous call still in flight; skipping", logx.String("method", m.Name))
			continue
		}
		st.ticks = 0
		st.inFlight = true
		due = append(due, m.Name)
	}
	return due
}

// resolve routes one outcome: duration is always observed, failures count
// once, successes publish once. A publish failure is counted and logged but
// never aborts anything.
func (s *Service) resolve(out rpc.Outcome) {
	if i, ok := s.index[out.Method]; ok {
		s.state[i].inFlight = false
	}

	s.rec.ObserveFetch(out.Method, out.Elapsed)

	if !out.OK() {
		s.rec.IncFetchError(out.Method)
		s.warnFetch(out)
		return
	}

	if err := s.pub.Publish(out.Method, out.Payload); err != nil {
		s.rec.IncPublishError(out.Method)
		s.log.Warn("publish failed",
			logx.String("method", out.Method),
			logx.Err(err),
		)
	}
}

func (s *Service) warnFetch(out rpc.Outcome) {
	fields := []logx.Field{
		logx.String("method", out.Method),
		logx.String("kind", out.Kind.String()),
		logx.Duration("elapsed", out.Elapsed),
		logx.Err(out.Err),
	}
	if i, ok := s.index[out.Method]; ok && !s.warnLimit[i].Allow() {
		s.log.Debug("fetch failed", fields...)
		return
	}
	s.log.Warn("fetch failed", fields...)
}
