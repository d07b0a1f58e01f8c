package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/smazurov/watchnode/internal/logging"
)

// HandlerFunc is the body run when a subject's job fires or is triggered.
type HandlerFunc func(ctx context.Context, s Subject) (any, error)

// FireInfo describes one completed job body run.
type FireInfo struct {
	JobID    string
	Kind     Kind
	Manual   bool
	Duration time.Duration
	Err      error
}

// Options configures a Coordinator.
type Options struct {
	Clock    Clock
	Location *time.Location
	Logger   *slog.Logger
	// StopTimeout bounds how long Stop waits for running job bodies.
	StopTimeout time.Duration
	// OnFire is called after every job body returns.
	OnFire func(FireInfo)
}

// JobInfo describes an installed schedule entry.
type JobInfo struct {
	ID      string    `json:"id"`
	Kind    Kind      `json:"kind"`
	Subject string    `json:"subject,omitempty"`
	Trigger string    `json:"trigger"`
	NextRun time.Time `json:"next_run"`
}

type entry struct {
	id          string
	subject     Subject
	nexter      nexter
	fingerprint string
	next        time.Time
}

// Coordinator owns the table of recurring jobs, keyed by job id.
// Installing a job with an existing id replaces the old entry atomically.
type Coordinator struct {
	clock       Clock
	loc         *time.Location
	logger      *slog.Logger
	stopTimeout time.Duration
	onFire      func(FireInfo)

	mu       sync.Mutex
	handlers map[Kind]HandlerFunc
	entries  map[string]*entry

	wake     chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	started  bool
	inflight sync.WaitGroup
}

// New creates a coordinator. Register handlers, then Sync and Start.
func New(opts Options) *Coordinator {
	if opts.Clock == nil {
		opts.Clock = RealClock()
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Logger == nil {
		opts.Logger = logging.GetLogger("scheduler")
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = 30 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		clock:       opts.Clock,
		loc:         opts.Location,
		logger:      opts.Logger,
		stopTimeout: opts.StopTimeout,
		onFire:      opts.OnFire,
		handlers:    make(map[Kind]HandlerFunc),
		entries:     make(map[string]*entry),
		wake:        make(chan struct{}, 1),
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
}

// Register sets the body for a subject kind.
func (c *Coordinator) Register(kind Kind, handler HandlerFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[kind] = handler
}

// Sync makes the job table match subjects exactly. Enabled subjects are
// installed or replaced by job id; every other job id is removed. Entries
// whose trigger and arguments are unchanged keep their next fire time.
func (c *Coordinator) Sync(subjects []Subject) {
	now := c.clock.Now()

	c.mu.Lock()
	wanted := make(map[string]bool, len(subjects))
	for _, s := range subjects {
		if !s.Enabled {
			continue
		}
		id := s.JobID()
		if wanted[id] {
			c.logger.Warn("Duplicate subject in sync, keeping first", "job_id", id)
			continue
		}
		wanted[id] = true

		n, err := s.Schedule.resolve(c.loc)
		if err != nil {
			c.logger.Warn("Invalid schedule, falling back to hourly", "job_id", id, "error", err)
		}
		fp := s.fingerprint(n.String())

		if existing, ok := c.entries[id]; ok && existing.fingerprint == fp {
			continue
		}

		_, replaced := c.entries[id]
		c.entries[id] = &entry{
			id:          id,
			subject:     s,
			nexter:      n,
			fingerprint: fp,
			next:        n.next(now),
		}
		if replaced {
			c.logger.Info("Job replaced", "job_id", id, "trigger", n.String())
		} else {
			c.logger.Info("Job installed", "job_id", id, "trigger", n.String())
		}
	}

	for id := range c.entries {
		if !wanted[id] {
			delete(c.entries, id)
			c.logger.Info("Job removed", "job_id", id)
		}
	}
	c.mu.Unlock()

	c.notify()
}

// RunDue dispatches every entry due at now and advances it past now.
// Missed ticks are coalesced into one firing. Returns the number dispatched.
func (c *Coordinator) RunDue(now time.Time) int {
	c.mu.Lock()
	var due []*entry
	for _, e := range c.entries {
		if e.next.After(now) {
			continue
		}
		due = append(due, e)
		next := e.nexter.next(e.next)
		for !next.After(now) {
			next = e.nexter.next(next)
		}
		e.next = next
	}
	c.mu.Unlock()

	for _, e := range due {
		c.dispatch(e)
	}
	return len(due)
}

// Start launches the timing loop.
func (c *Coordinator) Start() {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	go c.loop()
}

// Stop cancels the timing loop and waits for running bodies up to StopTimeout.
func (c *Coordinator) Stop() {
	c.cancel()

	c.mu.Lock()
	started := c.started
	c.mu.Unlock()
	if started {
		<-c.done
	}

	finished := make(chan struct{})
	go func() {
		c.inflight.Wait()
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(c.stopTimeout):
		c.logger.Warn("Timed out waiting for running jobs", "timeout", c.stopTimeout)
	}
}

// TriggerNow runs the subject's body on the caller's goroutine. No schedule
// entry is needed.
func (c *Coordinator) TriggerNow(ctx context.Context, s Subject) (any, error) {
	handler, err := c.handler(s.Kind)
	if err != nil {
		return nil, err
	}
	return c.run(ctx, handler, s, true)
}

// TriggerAsync runs the subject's body on its own goroutine and logs the outcome.
// Returns an error only when the kind has no handler.
func (c *Coordinator) TriggerAsync(s Subject) error {
	handler, err := c.handler(s.Kind)
	if err != nil {
		return err
	}

	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		_, _ = c.run(c.ctx, handler, s, true)
	}()
	return nil
}

// Jobs returns the installed entries sorted by id.
func (c *Coordinator) Jobs() []JobInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	jobs := make([]JobInfo, 0, len(c.entries))
	for _, e := range c.entries {
		jobs = append(jobs, JobInfo{
			ID:      e.id,
			Kind:    e.subject.Kind,
			Subject: e.subject.ID,
			Trigger: e.nexter.String(),
			NextRun: e.next,
		})
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].ID < jobs[j].ID })
	return jobs
}

// NextRun returns the next fire time of a job id.
func (c *Coordinator) NextRun(id string) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	if !ok {
		return time.Time{}, false
	}
	return e.next, true
}

func (c *Coordinator) handler(kind Kind) (HandlerFunc, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.handlers[kind]
	if !ok {
		return nil, &SchedulerError{Code: ErrCodeUnknownSubject, Message: fmt.Sprintf("no handler for %q", kind)}
	}
	return h, nil
}

func (c *Coordinator) notify() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Coordinator) loop() {
	defer close(c.done)

	for {
		earliest, ok := c.earliest()
		if !ok {
			select {
			case <-c.ctx.Done():
				return
			case <-c.wake:
				continue
			}
		}

		timer := c.clock.NewTimer(max(earliest.Sub(c.clock.Now()), 0))
		select {
		case <-c.ctx.Done():
			timer.Stop()
			return
		case <-c.wake:
			timer.Stop()
		case <-timer.C():
			c.RunDue(c.clock.Now())
		}
	}
}

func (c *Coordinator) earliest() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var earliest time.Time
	for _, e := range c.entries {
		if earliest.IsZero() || e.next.Before(earliest) {
			earliest = e.next
		}
	}
	return earliest, !earliest.IsZero()
}

// dispatch runs a scheduled body on its own goroutine. The body starts only
// if e is still the installed entry for its job id, so a Sync that replaced
// or removed it wins over a firing collected just before.
func (c *Coordinator) dispatch(e *entry) {
	s := e.subject
	handler, err := c.handler(s.Kind)
	if err != nil {
		c.logger.Error("Scheduled job has no handler", "job_id", e.id, "error", err)
		return
	}

	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		if !c.installed(e) {
			c.logger.Debug("Skipping firing of replaced job", "job_id", e.id)
			return
		}
		_, _ = c.run(c.ctx, handler, s, false)
	}()
}

func (c *Coordinator) installed(e *entry) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries[e.id] == e
}

func (c *Coordinator) run(ctx context.Context, handler HandlerFunc, s Subject, manual bool) (result any, err error) {
	id := s.JobID()
	start := time.Now()
	c.logger.Debug("Job started", "job_id", id, "manual", manual)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", id, r)
		}

		info := FireInfo{JobID: id, Kind: s.Kind, Manual: manual, Duration: time.Since(start), Err: err}
		if err != nil {
			c.logger.Error("Job failed", "job_id", id, "manual", manual, "duration", info.Duration, "error", err)
		} else {
			c.logger.Info("Job finished", "job_id", id, "manual", manual, "duration", info.Duration)
		}
		if c.onFire != nil {
			c.onFire(info)
		}
	}()

	return handler(ctx, s)
}
