package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"snipper/internal/db"
	"snipper/internal/digest"
	"snipper/internal/types"
	"snipper/internal/window"
)

// batchOffset is the window a batch step reports on: the week that just
// completed.
const batchOffset = 1

// ScheduleSource is the schedule store as seen by the fan-out.
type ScheduleSource interface {
	Get(ctx context.Context, userID string) (*types.UserSchedule, error)
	GetByEmail(ctx context.Context, email string) (*types.UserSchedule, error)

	// NextDue returns the first schedule after cursor matching f and the
	// cursor positioned on it, or (nil, "", nil) once the set is exhausted.
	NextDue(ctx context.Context, cursor string, f db.DueFilter) (*types.UserSchedule, string, error)

	UpdateUTC(ctx context.Context, userID string, day time.Weekday, hour int) error
}

// RecordFetcher is the window-to-query adapter.
type RecordFetcher interface {
	FetchRecordsInWindow(ctx context.Context, s *types.UserSchedule, offset, limit int) ([]types.Record, types.Window, error)
	FetchSince(ctx context.Context, userID string, since time.Time, limit int) ([]types.Record, error)
	Invalidate(ctx context.Context, userID string, offsets ...int)
}

// StepPublisher enqueues chain steps and mail tasks. Implemented by
// queue.SQSPublisher and queue.AsynqPublisher.
type StepPublisher interface {
	PublishStep(ctx context.Context, step types.FetchStep, delay time.Duration) error
	PublishMail(ctx context.Context, task types.MailTask) error
}

// StepRecorder observes per-user outcomes. Optional.
type StepRecorder interface {
	RecordUserProcessed(ctx context.Context, outcome string)
}

// Per-user outcomes reported to the StepRecorder.
const (
	OutcomeQueued  = "queued"
	OutcomeEmpty   = "empty"
	OutcomeFailed  = "failed"
	OutcomeMissing = "missing"
)

// TriggerRequest is an incoming request to start a run.
type TriggerRequest struct {
	Offset int
	// Force is honored only when Admin is set.
	Force bool
	Admin bool
	// Cron marks the recurring hourly trigger.
	Cron bool

	RecipientID    string
	RecipientEmail string

	// At overrides the clock for the UTC filter. Zero means now.
	At time.Time
}

// FanoutConfig tunes the chain.
type FanoutConfig struct {
	RecordLimit int
	// Lookback is the fixed range a batch step reports on, ending now.
	Lookback time.Duration
	// StepDelay spaces chained steps.
	StepDelay time.Duration
}

// StepResult describes what one step did.
type StepResult struct {
	UserID string
	// Queued is set when a mail task was enqueued for UserID.
	Queued bool
	// Next is the step re-enqueued to continue the chain; nil when the chain
	// ended.
	Next *types.FetchStep
}

// Fanout runs the digest chain. It holds no state between steps; everything
// a step needs arrives in its types.FetchStep.
type Fanout struct {
	schedules ScheduleSource
	fetcher   RecordFetcher
	publisher StepPublisher
	recorder  StepRecorder
	cfg       FanoutConfig
	clock     types.Clock
	logger    *slog.Logger
}

// NewFanout creates a Fanout. recorder may be nil.
func NewFanout(schedules ScheduleSource, fetcher RecordFetcher, publisher StepPublisher, recorder StepRecorder, cfg FanoutConfig, clock types.Clock, logger *slog.Logger) *Fanout {
	if cfg.Lookback <= 0 {
		cfg.Lookback = 7 * 24 * time.Hour
	}
	if cfg.RecordLimit <= 0 {
		cfg.RecordLimit = types.MaxRecordsPerWindow
	}
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fanout{
		schedules: schedules,
		fetcher:   fetcher,
		publisher: publisher,
		recorder:  recorder,
		cfg:       cfg,
		clock:     clock,
		logger:    logger,
	}
}

// Start validates req and enqueues the first step of a run. Cron and forced
// requests start a batch chain filtered on the current UTC weekday and hour;
// anything else is a one-shot run for the named recipient.
func (f *Fanout) Start(ctx context.Context, req TriggerRequest) (types.FetchStep, error) {
	if req.Force && !req.Admin {
		f.logger.WarnContext(ctx, "force requested by non-admin caller, ignoring",
			"recipient_id", req.RecipientID,
		)
		req.Force = false
	}

	now := req.At
	if now.IsZero() {
		now = f.clock.Now()
	}
	now = now.UTC()

	step := types.FetchStep{
		Offset:         max(req.Offset, 0),
		Cron:           req.Cron,
		Force:          req.Force,
		UTCResetDay:    now.Weekday(),
		UTCResetHour:   now.Hour(),
		RecipientID:    req.RecipientID,
		RecipientEmail: req.RecipientEmail,
		TraceID:        uuid.NewString(),
	}
	if step.IsBatch() {
		step.Offset = batchOffset
		step.RecipientID = ""
		step.RecipientEmail = ""
	} else if step.RecipientID == "" && step.RecipientEmail == "" {
		return types.FetchStep{}, types.NewAppError(types.ErrCodeValidationMissingField, "recipient is required outside batch mode", nil)
	}

	if err := f.publisher.PublishStep(ctx, step, 0); err != nil {
		return types.FetchStep{}, fmt.Errorf("starting digest run: %w", err)
	}

	f.logger.InfoContext(ctx, "digest run started",
		"trace_id", step.TraceID,
		"batch", step.IsBatch(),
		"force", step.Force,
		"utc_reset_day", int(step.UTCResetDay),
		"utc_reset_hour", step.UTCResetHour,
		"offset", step.Offset,
	)
	return step, nil
}

// Handle executes one step. A returned error means the step made no progress
// and may be redelivered; per-user failures are logged and never returned.
func (f *Fanout) Handle(ctx context.Context, step types.FetchStep) (*StepResult, error) {
	if step.IsBatch() {
		return f.batchStep(ctx, step)
	}
	return f.singleUser(ctx, step)
}

func (f *Fanout) batchStep(ctx context.Context, step types.FetchStep) (*StepResult, error) {
	logger := f.logger.With("trace_id", step.TraceID, "sequence", step.Sequence)

	// A cursor without the cron flag can only belong to a forced chain.
	if step.Cursor != "" && !step.Cron {
		step.Force = true
	}

	s, next, err := f.schedules.NextDue(ctx, step.Cursor, db.DueFilter{
		UTCResetDay:  step.UTCResetDay,
		UTCResetHour: step.UTCResetHour,
		Force:        step.Force,
	})
	if err != nil {
		if types.HasCode(err, types.ErrCodeValidationInvalidCursor) {
			logger.ErrorContext(ctx, "discarding chain with unusable cursor", "cursor", step.Cursor, "error", err)
			return &StepResult{}, nil
		}
		return nil, fmt.Errorf("fetching next due user: %w", err)
	}
	if s == nil {
		logger.InfoContext(ctx, "no more due users, chain complete",
			"utc_reset_day", int(step.UTCResetDay),
			"utc_reset_hour", step.UTCResetHour,
			"steps", step.Sequence,
		)
		return &StepResult{}, nil
	}

	logger = logger.With("user_id", s.UserID)
	res := &StepResult{UserID: s.UserID}
	now := f.clock.Now()

	queued, err := f.batchUser(ctx, s, now, step.TraceID)
	switch {
	case err != nil:
		logger.ErrorContext(ctx, "digest failed for user, advancing", "error", err)
		f.record(ctx, OutcomeFailed)
	case queued:
		res.Queued = true
		f.record(ctx, OutcomeQueued)
	default:
		f.record(ctx, OutcomeEmpty)
	}

	f.resyncUTC(ctx, s, now)

	nextStep := step
	nextStep.Cursor = next
	nextStep.Offset = batchOffset
	nextStep.Sequence++
	if err := f.publisher.PublishStep(ctx, nextStep, f.cfg.StepDelay); err != nil {
		return res, fmt.Errorf("re-enqueueing chain after %s: %w", s.UserID, err)
	}
	res.Next = &nextStep
	return res, nil
}

// batchUser reports on the fixed lookback ending now rather than the
// resolver's window, so a schedule edit during the week cannot shift the
// reported range.
func (f *Fanout) batchUser(ctx context.Context, s *types.UserSchedule, now time.Time, traceID string) (bool, error) {
	f.fetcher.Invalidate(ctx, s.UserID, 0, 1)

	since := now.UTC().Truncate(time.Minute).Add(-f.cfg.Lookback)
	recs, err := f.fetcher.FetchSince(ctx, s.UserID, since, f.cfg.RecordLimit)
	if err != nil {
		return false, err
	}

	sched, err := window.ForUser(s)
	if err != nil {
		return false, err
	}
	return f.enqueueDigest(ctx, s, recs, sched.Previous(batchOffset, slotEnd(now)), traceID)
}

// slotEnd is the last instant of now's UTC hour. The stored UTC hour drops
// any half-hour zone offset, so a reset at :30 local is due before it
// happens and the label must be resolved as if the slot had passed.
func slotEnd(now time.Time) time.Time {
	return now.UTC().Truncate(time.Hour).Add(time.Hour - time.Nanosecond)
}

func (f *Fanout) singleUser(ctx context.Context, step types.FetchStep) (*StepResult, error) {
	logger := f.logger.With("trace_id", step.TraceID, "recipient_id", step.RecipientID)

	s, err := f.lookupRecipient(ctx, step)
	if err != nil {
		if types.HasCode(err, types.ErrCodeNotFoundUser) {
			logger.WarnContext(ctx, "recipient has no schedule, nothing to send", "recipient_email", types.RedactEmail(step.RecipientEmail))
			f.record(ctx, OutcomeMissing)
			return &StepResult{}, nil
		}
		return nil, err
	}

	f.fetcher.Invalidate(ctx, s.UserID, 0, 1)
	recs, w, err := f.fetcher.FetchRecordsInWindow(ctx, s, step.Offset, f.cfg.RecordLimit)
	if err != nil {
		f.record(ctx, OutcomeFailed)
		return nil, fmt.Errorf("fetching window for %s: %w", s.UserID, err)
	}

	loc, err := s.Location()
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidTimezone, "unknown timezone "+s.Timezone, err)
	}
	queued, err := f.enqueueDigest(ctx, s, recs, w.Start.In(loc), step.TraceID)
	if err != nil {
		f.record(ctx, OutcomeFailed)
		return nil, err
	}
	if queued {
		f.record(ctx, OutcomeQueued)
	} else {
		f.record(ctx, OutcomeEmpty)
	}
	return &StepResult{UserID: s.UserID, Queued: queued}, nil
}

func (f *Fanout) lookupRecipient(ctx context.Context, step types.FetchStep) (*types.UserSchedule, error) {
	if step.RecipientID != "" {
		return f.schedules.Get(ctx, step.RecipientID)
	}
	return f.schedules.GetByEmail(ctx, step.RecipientEmail)
}

// enqueueDigest formats recs and hands a non-empty digest to the mail queue.
func (f *Fanout) enqueueDigest(ctx context.Context, s *types.UserSchedule, recs []types.Record, label time.Time, traceID string) (bool, error) {
	d, err := digest.FormatDigest(recs, s.RecordFormat, s.DateFormat, label)
	if errors.Is(err, digest.ErrNothingToReport) {
		f.logger.DebugContext(ctx, "nothing to report", "user_id", s.UserID)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if d.FellBack {
		f.logger.WarnContext(ctx, "invalid record format, used default",
			"user_id", s.UserID,
			"record_format", s.RecordFormat,
		)
	}

	name := s.DisplayName()
	task := types.MailTask{
		UserID:    s.UserID,
		UserName:  name,
		Recipient: s.Email,
		Subject:   digest.Subject(name, d.DateLabel),
		Body:      digest.MailBody(d.DateLabel, d.Body),
		DateLabel: d.DateLabel,
		TraceID:   traceID,
	}
	if err := f.publisher.PublishMail(ctx, task); err != nil {
		return false, err
	}
	f.logger.InfoContext(ctx, "digest queued", "user_id", s.UserID, "records", d.Count)
	return true, nil
}

// resyncUTC persists the UTC pair of the user's upcoming reset when it no
// longer matches the stored one. Failures are logged only.
func (f *Fanout) resyncUTC(ctx context.Context, s *types.UserSchedule, now time.Time) {
	day, hour, changed, err := upcomingUTC(s, now)
	if err != nil {
		f.logger.WarnContext(ctx, "cannot resolve schedule for utc resync", "user_id", s.UserID, "error", err)
		return
	}
	if !changed {
		return
	}
	if err := f.schedules.UpdateUTC(ctx, s.UserID, day, hour); err != nil {
		f.logger.ErrorContext(ctx, "failed to persist utc reset", "user_id", s.UserID, "error", err)
		return
	}
	f.logger.InfoContext(ctx, "utc reset moved",
		"user_id", s.UserID,
		"utc_reset_day", int(day),
		"utc_reset_hour", hour,
	)
}

// upcomingUTC returns the UTC weekday and hour of the first reset after now
// and whether it differs from the stored pair.
func upcomingUTC(s *types.UserSchedule, now time.Time) (time.Weekday, int, bool, error) {
	sched, err := window.ForUser(s)
	if err != nil {
		return 0, 0, false, err
	}
	next := window.ResolveNextReset(sched.Weekday, sched.Hour, sched.Loc, 0, now).UTC()
	day, hour := next.Weekday(), next.Hour()
	return day, hour, day != s.UTCResetDay || hour != s.UTCResetHour, nil
}

func (f *Fanout) record(ctx context.Context, outcome string) {
	if f.recorder != nil {
		f.recorder.RecordUserProcessed(ctx, outcome)
	}
}
