package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// CronExpression represents a parsed cron expression.
// Supports standard 5-field format: minute hour day-of-month month day-of-week
// Examples:
//   - "*/5 * * * *"  - every 5 minutes
//   - "5 0 * * *"    - every day at 00:05
//   - "0 0 * * 0"    - every Sunday at midnight
type CronExpression struct {
	raw      string
	minutes  []int // 0-59
	hours    []int // 0-23
	days     []int // 1-31
	months   []int // 1-12
	weekdays []int // 0-6 (0 = Sunday)
}

// DailyRollupAt is the default schedule of the nightly roll-up, which closes
// the day that just ended.
const DailyRollupAt = "5 0 * * *"

// ParseCronExpression parses a cron expression string.
// Format: minute hour day-of-month month day-of-week
// Supports: *, */n, n, n-m, n-m/s, n,m,o
func ParseCronExpression(expr string) (*CronExpression, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, fmt.Errorf("invalid cron expression: expected 5 fields, got %d", len(fields))
	}

	ce := &CronExpression{raw: expr}
	var err error

	ce.minutes, err = parseField(fields[0], 0, 59)
	if err != nil {
		return nil, fmt.Errorf("invalid minute field: %w", err)
	}

	ce.hours, err = parseField(fields[1], 0, 23)
	if err != nil {
		return nil, fmt.Errorf("invalid hour field: %w", err)
	}

	ce.days, err = parseField(fields[2], 1, 31)
	if err != nil {
		return nil, fmt.Errorf("invalid day field: %w", err)
	}

	ce.months, err = parseField(fields[3], 1, 12)
	if err != nil {
		return nil, fmt.Errorf("invalid month field: %w", err)
	}

	ce.weekdays, err = parseField(fields[4], 0, 6)
	if err != nil {
		return nil, fmt.Errorf("invalid weekday field: %w", err)
	}

	return ce, nil
}

// MustParseCronExpression parses a cron expression or panics.
// Use only for compile-time constants.
func MustParseCronExpression(expr string) *CronExpression {
	ce, err := ParseCronExpression(expr)
	if err != nil {
		panic(fmt.Sprintf("invalid cron expression %q: %v", expr, err))
	}
	return ce
}

// parseField parses a single cron field.
func parseField(field string, min, max int) ([]int, error) {
	var result []int

	// Lists are unions of the other forms.
	if strings.Contains(field, ",") {
		seen := make(map[int]bool)
		for _, part := range strings.Split(field, ",") {
			values, err := parseField(strings.TrimSpace(part), min, max)
			if err != nil {
				return nil, err
			}
			for _, v := range values {
				if !seen[v] {
					seen[v] = true
					result = append(result, v)
				}
			}
		}
		sort.Ints(result)
		return result, nil
	}

	if field == "*" {
		for i := min; i <= max; i++ {
			result = append(result, i)
		}
		return result, nil
	}

	// Step values (*/n, n/s or n-m/s)
	if strings.Contains(field, "/") {
		parts := strings.Split(field, "/")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid step format: %s", field)
		}

		step, err := strconv.Atoi(parts[1])
		if err != nil || step <= 0 {
			return nil, fmt.Errorf("invalid step value: %s", parts[1])
		}

		start, end := min, max
		switch {
		case parts[0] == "*":
		case strings.Contains(parts[0], "-"):
			start, end, err = parseRange(parts[0], min, max)
			if err != nil {
				return nil, err
			}
		default:
			start, err = parseValue(parts[0], min, max)
			if err != nil {
				return nil, err
			}
		}

		for i := start; i <= end; i += step {
			result = append(result, i)
		}
		return result, nil
	}

	if strings.Contains(field, "-") {
		start, end, err := parseRange(field, min, max)
		if err != nil {
			return nil, err
		}
		for i := start; i <= end; i++ {
			result = append(result, i)
		}
		return result, nil
	}

	v, err := parseValue(field, min, max)
	if err != nil {
		return nil, err
	}
	return []int{v}, nil
}

func parseRange(field string, min, max int) (int, int, error) {
	parts := strings.Split(field, "-")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid range format: %s", field)
	}
	start, err := parseValue(parts[0], min, max)
	if err != nil {
		return 0, 0, err
	}
	end, err := parseValue(parts[1], min, max)
	if err != nil {
		return 0, 0, err
	}
	if start > end {
		return 0, 0, fmt.Errorf("invalid range %s: start after end", field)
	}
	return start, end, nil
}

func parseValue(s string, min, max int) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid value: %s", s)
	}
	if v < min || v > max {
		return 0, fmt.Errorf("value out of range [%d-%d]: %d", min, max, v)
	}
	return v, nil
}

// String returns the original cron expression.
func (ce *CronExpression) String() string {
	return ce.raw
}

// Next calculates the next time the cron expression matches after the given time.
// The result is in after's location. A zero time means no match within a year.
func (ce *CronExpression) Next(after time.Time) time.Time {
	t := after.Add(time.Minute).Truncate(time.Minute)

	const maxIterations = 366 * 24 * 60 // One year in minutes

	for i := 0; i < maxIterations; i++ {
		if ce.matches(t) {
			return t
		}
		t = t.Add(time.Minute)
	}

	return time.Time{}
}

// matches checks if the given time matches the cron expression.
func (ce *CronExpression) matches(t time.Time) bool {
	return contains(ce.minutes, t.Minute()) &&
		contains(ce.hours, t.Hour()) &&
		contains(ce.days, t.Day()) &&
		contains(ce.months, int(t.Month())) &&
		contains(ce.weekdays, int(t.Weekday()))
}

func contains(slice []int, val int) bool {
	for _, v := range slice {
		if v == val {
			return true
		}
	}
	return false
}

// ══════════════════════════════════════════════════════════════════════════════
// CRON SCHEDULER
// ══════════════════════════════════════════════════════════════════════════════

// CronJob represents a scheduled job with its cron expression.
type CronJob struct {
	Name       string
	Expression *CronExpression
	Job        Job
	LastRun    time.Time
	NextRun    time.Time
	RunCount   int64
	FailCount  int64
	LastError  string
	Running    bool
}

// CronScheduler manages cron-based job scheduling.
type CronScheduler struct {
	jobs       map[string]*CronJob
	mu         sync.RWMutex
	logger     *slog.Logger
	location   *time.Location
	jobTimeout time.Duration
	now        func() time.Time
	running    bool
	stopCh     chan struct{}
	wg         sync.WaitGroup
}

// CronOption configures the CronScheduler.
type CronOption func(*CronScheduler)

// WithLocation sets the timezone for cron expressions.
func WithLocation(loc *time.Location) CronOption {
	return func(cs *CronScheduler) {
		if loc != nil {
			cs.location = loc
		}
	}
}

// WithCronLogger sets the logger for the cron scheduler.
func WithCronLogger(logger *slog.Logger) CronOption {
	return func(cs *CronScheduler) {
		if logger != nil {
			cs.logger = logger
		}
	}
}

// WithJobTimeout bounds every run of every job.
func WithJobTimeout(d time.Duration) CronOption {
	return func(cs *CronScheduler) {
		cs.jobTimeout = d
	}
}

// NewCronScheduler creates a new cron-based scheduler.
func NewCronScheduler(opts ...CronOption) *CronScheduler {
	cs := &CronScheduler{
		jobs:     make(map[string]*CronJob),
		logger:   slog.Default(),
		location: time.UTC,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}

	for _, opt := range opts {
		opt(cs)
	}

	return cs
}

// ErrJobNotFound is returned for an unknown job name.
var ErrJobNotFound = errors.New("job not found")

// AddJob adds a job with a cron expression. The job's Name is its key.
func (cs *CronScheduler) AddJob(cronExpr string, job Job) error {
	expr, err := ParseCronExpression(cronExpr)
	if err != nil {
		return fmt.Errorf("failed to parse cron expression: %w", err)
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()

	name := job.Name()
	if _, exists := cs.jobs[name]; exists {
		return fmt.Errorf("job %s already registered", name)
	}

	cs.jobs[name] = &CronJob{
		Name:       name,
		Expression: expr,
		Job:        job,
		NextRun:    expr.Next(cs.now().In(cs.location)),
	}

	cs.logger.Info("cron job added",
		"job", name,
		"expression", cronExpr,
		"next_run", cs.jobs[name].NextRun.Format(time.RFC3339),
	)

	return nil
}

// GetJobStatus returns a copy of a job's state.
func (cs *CronScheduler) GetJobStatus(name string) (*CronJob, bool) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	job, exists := cs.jobs[name]
	if !exists {
		return nil, false
	}

	jobCopy := *job
	return &jobCopy, true
}

// ListJobs returns all registered jobs ordered by next run.
func (cs *CronScheduler) ListJobs() []*CronJob {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	jobs := make([]*CronJob, 0, len(cs.jobs))
	for _, job := range cs.jobs {
		jobCopy := *job
		jobs = append(jobs, &jobCopy)
	}

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].NextRun.Before(jobs[j].NextRun)
	})

	return jobs
}

// RunNow triggers a job outside its schedule and waits for it.
func (cs *CronScheduler) RunNow(ctx context.Context, name string) error {
	cs.mu.RLock()
	job, exists := cs.jobs[name]
	cs.mu.RUnlock()
	if !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	return cs.execute(ctx, job)
}

// Start begins the cron scheduler loop.
func (cs *CronScheduler) Start(ctx context.Context) error {
	cs.mu.Lock()
	if cs.running {
		cs.mu.Unlock()
		return fmt.Errorf("cron scheduler already running")
	}
	cs.running = true
	cs.stopCh = make(chan struct{})
	cs.mu.Unlock()

	cs.logger.Info("cron scheduler started", "timezone", cs.location.String())

	cs.wg.Add(1)
	go cs.run(ctx)

	return nil
}

// Stop stops the loop and waits for running jobs to return.
func (cs *CronScheduler) Stop() {
	cs.mu.Lock()
	if !cs.running {
		cs.mu.Unlock()
		return
	}
	cs.running = false
	close(cs.stopCh)
	cs.mu.Unlock()

	cs.wg.Wait()
	cs.logger.Info("cron scheduler stopped")
}

// run is the main scheduler loop.
func (cs *CronScheduler) run(ctx context.Context) {
	defer cs.wg.Done()

	// Jobs get a context that also ends on Stop.
	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	timer := time.NewTimer(cs.timeUntilNextMinute())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			cs.logger.Info("cron scheduler context cancelled")
			return

		case <-cs.stopCh:
			return

		case <-timer.C:
			timer.Reset(cs.timeUntilNextMinute())
			cs.checkAndRunJobs(jobCtx)
		}
	}
}

// timeUntilNextMinute returns the duration until the start of the next minute.
func (cs *CronScheduler) timeUntilNextMinute() time.Duration {
	now := cs.now().In(cs.location)
	return now.Truncate(time.Minute).Add(time.Minute).Sub(now)
}

// checkAndRunJobs starts every due job that is not still running.
func (cs *CronScheduler) checkAndRunJobs(ctx context.Context) {
	now := cs.now().In(cs.location)

	cs.mu.Lock()
	var due []*CronJob
	for _, job := range cs.jobs {
		if job.NextRun.IsZero() || job.NextRun.After(now) {
			continue
		}
		job.NextRun = job.Expression.Next(now)
		if job.Running {
			cs.logger.Warn("skipping cron job, previous run still active", "job", job.Name)
			continue
		}
		due = append(due, job)
	}
	cs.mu.Unlock()

	for _, job := range due {
		cs.wg.Add(1)
		go func(j *CronJob) {
			defer cs.wg.Done()
			_ = cs.execute(ctx, j)
		}(job)
	}
}

// execute runs one job and records the result.
func (cs *CronScheduler) execute(ctx context.Context, job *CronJob) error {
	cs.mu.Lock()
	if job.Running {
		cs.mu.Unlock()
		return fmt.Errorf("job %s is already running", job.Name)
	}
	job.Running = true
	job.LastRun = cs.now().In(cs.location)
	job.RunCount++
	runCount := job.RunCount
	cs.mu.Unlock()

	if cs.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cs.jobTimeout)
		defer cancel()
	}

	cs.logger.Info("running cron job", "job", job.Name, "run_count", runCount)

	startTime := time.Now()
	err := cs.safeRun(ctx, job.Job)
	duration := time.Since(startTime)

	cs.mu.Lock()
	job.Running = false
	if err != nil {
		job.FailCount++
		job.LastError = err.Error()
	} else {
		job.LastError = ""
	}
	cs.mu.Unlock()

	if err != nil {
		cs.logger.Error("cron job failed",
			"job", job.Name,
			"duration", duration,
			"error", err,
		)
		return err
	}

	cs.logger.Info("cron job completed",
		"job", job.Name,
		"duration", duration,
	)
	return nil
}

// safeRun turns a panicking job into an error.
func (cs *CronScheduler) safeRun(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.Name(), r)
		}
	}()
	return job.Run(ctx)
}
