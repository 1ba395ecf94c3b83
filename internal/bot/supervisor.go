package bot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"

	"github.com/caixaflow/caixabot/internal/platform"
)

// Phase is the polling supervisor's lifecycle state.
type Phase int32

const (
	// PhaseStopped is the initial state and the terminal state after an
	// explicit Stop.
	PhaseStopped Phase = iota
	// PhasePolling means the fetch timer is active and updates are flowing.
	PhasePolling
	// PhaseDegraded means consecutive fetch failures below the threshold;
	// the supervisor keeps retrying on the normal schedule.
	PhaseDegraded
	// PhaseRestarting is transient: timers are being torn down and
	// re-established. It always resolves to Polling or Stopped.
	PhaseRestarting
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseStopped:
		return "stopped"
	case PhasePolling:
		return "polling"
	case PhaseDegraded:
		return "degraded"
	case PhaseRestarting:
		return "restarting"
	default:
		return "unknown"
	}
}

// Handler processes one inbound update. A non-nil error keeps the update's
// offset unacknowledged so it is refetched on a later poll.
type Handler func(ctx context.Context, u platform.Update) error

// SupervisorOptions tunes the polling supervisor.
type SupervisorOptions struct {
	// Interval between fetch calls.
	Interval time.Duration
	// FailureThreshold is the consecutive-failure count that forces a
	// restart. Defaults to 3.
	FailureThreshold int
	// RestartBackoff is the wait between tearing timers down and
	// re-establishing them.
	RestartBackoff time.Duration
	// QueueSize bounds the in-flight update queue. Defaults to 256.
	QueueSize int
	// Clock is injectable for tests. Defaults to the real clock.
	Clock clockwork.Clock
}

// Supervisor owns the repeating fetch timer, an independent watchdog timer,
// and the failure-count state machine described by its Phase. The watchdog
// fires on a longer period and compares time-since-last-successful-poll
// against twice the fetch interval; exceeding that while the supervisor
// believes itself to be polling forces a restart, guarding against a wedged
// timer that stopped firing without raising an error.
//
// The two timers never block each other: the fetch job only fetches and
// enqueues, and a single worker goroutine runs the downstream handler, so a
// slow handler cannot delay the next poll tick.
type Supervisor struct {
	log     *slog.Logger
	client  platform.Client
	seq     *Sequencer
	handler Handler

	interval  time.Duration
	threshold int
	backoff   time.Duration
	queueSize int
	clock     clockwork.Clock

	mu          sync.Mutex
	phase       Phase
	failures    int
	lastSuccess time.Time

	restartCh chan struct{}
	stopCh    chan struct{}
	stopOnce  *sync.Once
	queue     chan platform.Update
	wg        sync.WaitGroup
}

// NewSupervisor creates a supervisor. Start must be called to begin polling.
func NewSupervisor(log *slog.Logger, client platform.Client, seq *Sequencer, handler Handler, opts SupervisorOptions) *Supervisor {
	if opts.Interval <= 0 {
		opts.Interval = 3 * time.Second
	}
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = 3
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}

	return &Supervisor{
		log:       log.With("component", "poll_supervisor"),
		client:    client,
		seq:       seq,
		handler:   handler,
		interval:  opts.Interval,
		threshold: opts.FailureThreshold,
		backoff:   opts.RestartBackoff,
		queueSize: opts.QueueSize,
		clock:     opts.Clock,
		phase:     PhaseStopped,
	}
}

// Start transitions Stopped -> Polling and launches the fetch and watchdog
// timers plus the handling worker. It returns an error if the supervisor is
// already running.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.phase != PhaseStopped {
		s.mu.Unlock()
		return fmt.Errorf("supervisor is already running (phase %s)", s.phase)
	}
	s.phase = PhasePolling
	s.failures = 0
	s.lastSuccess = s.clock.Now()
	s.restartCh = make(chan struct{}, 1)
	s.stopCh = make(chan struct{})
	s.stopOnce = &sync.Once{}
	s.queue = make(chan platform.Update, s.queueSize)
	s.mu.Unlock()

	s.wg.Add(2)
	go s.manage(ctx)
	go s.work(ctx)

	s.log.Info("Polling supervisor started", "interval", s.interval, "failure_threshold", s.threshold)
	return nil
}

// Stop cancels both timers and returns once no further fetch can start.
// Safe to call from any phase; idempotent.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	stopOnce := s.stopOnce
	s.mu.Unlock()
	if stopOnce == nil {
		return
	}

	stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
	s.log.Info("Polling supervisor stopped")
}

// Phase returns the current supervisor phase.
func (s *Supervisor) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.phase
}

// manage owns scheduler lifecycle: it builds a scheduler generation, waits
// for a restart request or a stop, and tears the generation down. Restarting
// from inside a timer callback would deadlock the scheduler's shutdown, so
// callbacks only signal restartCh.
func (s *Supervisor) manage(ctx context.Context) {
	defer s.wg.Done()

	for {
		genCtx, cancel := context.WithCancel(ctx)
		sched, err := s.buildScheduler(genCtx)
		if err != nil {
			cancel()
			s.log.Error("Failed to build poll scheduler", "error", err)
			s.setPhase(PhaseStopped)
			return
		}

		select {
		case <-ctx.Done():
			s.teardown(cancel, sched)
			s.setPhase(PhaseStopped)
			return

		case <-s.stopCh:
			s.teardown(cancel, sched)
			s.setPhase(PhaseStopped)
			return

		case <-s.restartCh:
			s.setPhase(PhaseRestarting)
			s.teardown(cancel, sched)
			s.drainQueue()
			s.seq.Rewind()
			s.log.Warn("Restarting poll loop", "backoff", s.backoff)

			select {
			case <-s.clock.After(s.backoff):
			case <-ctx.Done():
				s.setPhase(PhaseStopped)
				return
			case <-s.stopCh:
				s.setPhase(PhaseStopped)
				return
			}

			s.mu.Lock()
			s.failures = 0
			s.lastSuccess = s.clock.Now()
			s.phase = PhasePolling
			s.mu.Unlock()
			s.log.Info("Poll loop re-established")
		}
	}
}

// teardown cancels the generation context first so a wedged fetch unblocks,
// then shuts the scheduler down (which waits for running jobs). Both timers
// go down together; leaking one would be a defect.
func (s *Supervisor) teardown(cancel context.CancelFunc, sched gocron.Scheduler) {
	cancel()
	if err := sched.Shutdown(); err != nil {
		s.log.Error("Error shutting down poll scheduler", "error", err)
	}
}

// buildScheduler creates and starts one scheduler generation carrying the
// fetch job and the watchdog job.
func (s *Supervisor) buildScheduler(ctx context.Context) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler(gocron.WithClock(s.clock))
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	if _, err := sched.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(s.pollOnce, ctx),
		gocron.WithName("fetch_updates"),
	); err != nil {
		return nil, fmt.Errorf("failed to schedule fetch job: %w", err)
	}

	if _, err := sched.NewJob(
		gocron.DurationJob(2*s.interval),
		gocron.NewTask(s.checkHealth),
		gocron.WithName("watchdog"),
	); err != nil {
		return nil, fmt.Errorf("failed to schedule watchdog job: %w", err)
	}

	sched.Start()
	return sched, nil
}

// pollOnce performs one fetch and enqueues fresh updates for the worker.
func (s *Supervisor) pollOnce(ctx context.Context) {
	updates, err := s.client.FetchUpdates(ctx, s.seq.FetchOffset())
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.onFetchFailure(err)
		return
	}
	s.onFetchSuccess()

	for _, u := range s.seq.Filter(updates) {
		select {
		case s.queue <- u:
		default:
			// Queue full: leave the rest for a refetch.
			s.log.WarnContext(ctx, "Update queue full, deferring batch remainder", "update_id", u.ID)
			s.seq.Rewind()
			return
		}
	}
}

// onFetchFailure advances the failure state machine: Polling -> Degraded on
// the first failure, Degraded -> Restarting when the consecutive-failure
// count reaches the threshold.
func (s *Supervisor) onFetchFailure(err error) {
	s.mu.Lock()
	if s.phase != PhasePolling && s.phase != PhaseDegraded {
		s.mu.Unlock()
		return
	}

	s.failures++
	failures := s.failures
	s.phase = PhaseDegraded

	if failures >= s.threshold {
		s.phase = PhaseRestarting
		s.mu.Unlock()
		s.log.Error("Fetch failure threshold reached, forcing restart", "failures", failures, "error", err)
		s.requestRestart()
		return
	}
	s.mu.Unlock()

	s.log.Warn("Fetch failed", "failures", failures, "error", err)
}

// onFetchSuccess resets the failure counter and resolves Degraded back to
// Polling.
func (s *Supervisor) onFetchSuccess() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failures = 0
	s.lastSuccess = s.clock.Now()
	if s.phase == PhaseDegraded {
		s.phase = PhasePolling
		s.log.Info("Fetch recovered")
	}
}

// checkHealth is the watchdog: if the supervisor believes itself to be
// polling but no fetch has succeeded for more than twice the poll interval,
// the fetch timer is presumed wedged and a restart is forced.
func (s *Supervisor) checkHealth() {
	s.mu.Lock()
	phase := s.phase
	elapsed := s.clock.Since(s.lastSuccess)
	if phase == PhasePolling && elapsed > 2*s.interval {
		s.phase = PhaseRestarting
		s.mu.Unlock()
		s.log.Warn("Watchdog detected stalled poll loop", "since_last_success", elapsed)
		s.requestRestart()
		return
	}
	s.mu.Unlock()
}

// drainQueue discards everything currently queued. A rewind revokes the
// unacknowledged tail, so queued entries at that point are stale copies the
// refetch will re-emit.
func (s *Supervisor) drainQueue() {
	for {
		select {
		case u := <-s.queue:
			s.log.Debug("Discarding revoked queued update", "update_id", u.ID)
		default:
			return
		}
	}
}

func (s *Supervisor) requestRestart() {
	select {
	case s.restartCh <- struct{}{}:
	default:
	}
}

func (s *Supervisor) setPhase(p Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.phase = p
}

// work drains the update queue sequentially so batch order is preserved. A
// handler failure leaves the offset unacknowledged and rewinds the emitted
// watermark so the failed update and everything queued behind it are
// refetched; the stale queue entries are skipped via the pending check so
// their acks can never advance the offset past the failed update.
func (s *Supervisor) work(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case u := <-s.queue:
			if !s.seq.Pending(u.ID) {
				// Revoked by a rewind; the refetch re-emits it.
				continue
			}
			if err := s.handler(ctx, u); err != nil {
				s.log.Error("Update handling failed, will refetch", "update_id", u.ID, "error", err)
				// Drain before rewinding: entries enqueued after the
				// rewind are fresh re-emissions and must survive.
				s.drainQueue()
				s.seq.Rewind()
				continue
			}
			s.seq.Ack(u.ID)
		}
	}
}
