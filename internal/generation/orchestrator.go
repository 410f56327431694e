package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/reelforge/reelforge-api/internal/ledger"
	"github.com/reelforge/reelforge-api/internal/media"
	"github.com/reelforge/reelforge-api/internal/project"
	"github.com/reelforge/reelforge-api/internal/provider"
)

// Processor is the media processing port the orchestrator invokes on
// provider completion. *media.Pipeline implements it.
type Processor interface {
	Process(ctx context.Context, in media.Input) (media.Result, error)
}

// Config holds orchestrator tuning parameters.
type Config struct {
	// Cost is the token price of one completed generation.
	Cost int64
	// PollInterval is the fixed delay between provider polls.
	PollInterval time.Duration
	// MaxPollAttempts bounds the polling loop; exhausting it fails the
	// generation with a timeout message.
	MaxPollAttempts int
}

// DefaultConfig returns the default orchestrator configuration:
// 10 tokens per generation, polling every 5s for up to 60 attempts.
func DefaultConfig() Config {
	return Config{
		Cost:            10,
		PollInterval:    5 * time.Second,
		MaxPollAttempts: 60,
	}
}

// Orchestrator owns the generation lifecycle: creation, asynchronous
// provider submission, the polling loop, media processing on completion and
// the single token debit per completed generation.
//
// All record mutation flows through the updateStatus gate, which re-reads
// the persisted status under a per-generation lock so that two racing
// drivers (polling tick, webhook callback) cannot both apply the same
// transition.
type Orchestrator struct {
	repo     Repository
	projects project.Store
	provider provider.Client
	pipeline Processor
	tokens   ledger.Ledger
	events   *Events
	logger   *slog.Logger
	cfg      Config

	mu      sync.Mutex
	locks   map[string]*sync.Mutex
	pollers map[string]*poller
	closed  bool

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithConfig overrides the default configuration.
func WithConfig(cfg Config) OrchestratorOption {
	return func(o *Orchestrator) {
		if cfg.Cost > 0 {
			o.cfg.Cost = cfg.Cost
		}
		if cfg.PollInterval > 0 {
			o.cfg.PollInterval = cfg.PollInterval
		}
		if cfg.MaxPollAttempts > 0 {
			o.cfg.MaxPollAttempts = cfg.MaxPollAttempts
		}
	}
}

// WithEvents supplies an externally owned event hub.
func WithEvents(e *Events) OrchestratorOption {
	return func(o *Orchestrator) {
		o.events = e
	}
}

// NewOrchestrator creates a generation orchestrator.
func NewOrchestrator(
	repo Repository,
	projects project.Store,
	providerClient provider.Client,
	pipeline Processor,
	tokens ledger.Ledger,
	logger *slog.Logger,
	opts ...OrchestratorOption,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		repo:     repo,
		projects: projects,
		provider: providerClient,
		pipeline: pipeline,
		tokens:   tokens,
		logger:   logger,
		cfg:      DefaultConfig(),
		locks:    make(map[string]*sync.Mutex),
		pollers:  make(map[string]*poller),
		baseCtx:  ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.events == nil {
		o.events = NewEvents(64)
	}
	return o
}

// Events returns the status-change event hub for observers to subscribe to.
func (o *Orchestrator) Events() *Events {
	return o.events
}

// Start validates the request, persists a new generation in QUEUED and kicks
// off the background lifecycle. It returns the generation ID without waiting
// for any provider work.
//
// The balance check here is advisory: it prevents obviously doomed
// submissions but the charging event happens only on completion.
func (o *Orchestrator) Start(ctx context.Context, userID, prompt, projectID string) (string, error) {
	if userID == "" {
		return "", NewError(KindValidation, "user id is required")
	}
	if prompt == "" {
		return "", NewError(KindValidation, "prompt is required")
	}
	if projectID == "" {
		return "", NewError(KindValidation, "project id is required")
	}

	balance, err := o.tokens.GetBalance(ctx, userID)
	if err != nil && !errors.Is(err, ledger.ErrUserNotFound) {
		return "", fmt.Errorf("check balance: %w", err)
	}
	if balance < o.cfg.Cost {
		return "", NewError(KindInsufficientTokens,
			fmt.Sprintf("balance %d is below the generation cost %d", balance, o.cfg.Cost))
	}

	proj, err := o.projects.GetProject(ctx, projectID, userID)
	if err != nil {
		switch {
		case errors.Is(err, project.ErrNotFound):
			return "", WrapError(KindNotFound, "project not found", err)
		case errors.Is(err, project.ErrForbidden):
			return "", WrapError(KindForbidden, "project is not owned by user", err)
		default:
			return "", fmt.Errorf("resolve project: %w", err)
		}
	}
	if proj.ImageURL == "" {
		return "", NewError(KindValidation, "project has no source image")
	}

	// Claim the lifecycle slot before persisting anything so a Start racing
	// Close cannot leave behind a QUEUED record nobody will ever drive.
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return "", errors.New("orchestrator is closed")
	}
	o.wg.Add(1)
	o.mu.Unlock()

	gen := New(userID, projectID, prompt)
	gen.Metadata["image_url"] = proj.ImageURL
	if err := o.repo.Create(ctx, gen); err != nil {
		o.wg.Done()
		return "", fmt.Errorf("create generation: %w", err)
	}

	o.logger.Info("generation created",
		slog.String("generation_id", gen.ID),
		slog.String("user_id", userID),
		slog.String("project_id", projectID),
	)

	go o.runLifecycle(o.baseCtx, gen.ID, proj.ImageURL, prompt)

	return gen.ID, nil
}

// GetStatus returns the generation's current state for its owner.
func (o *Orchestrator) GetStatus(ctx context.Context, generationID, userID string) (*Generation, error) {
	gen, err := o.repo.Get(ctx, generationID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, WrapError(KindNotFound, "generation not found", err)
		}
		return nil, fmt.Errorf("get generation: %w", err)
	}
	if gen.UserID != userID {
		return nil, NewError(KindForbidden, "generation is not owned by user")
	}
	return gen, nil
}

// HandleComplete is the idempotent external completion hook for alternative
// drivers such as a webhook-based provider. The outputURL is the provider's
// output; the media pipeline still runs before the record reaches COMPLETED.
// Invoking it on an already-terminal generation is a no-op.
func (o *Orchestrator) HandleComplete(ctx context.Context, generationID, outputURL string, metadata map[string]string) error {
	gen, err := o.repo.Get(ctx, generationID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return WrapError(KindNotFound, "generation not found", err)
		}
		return fmt.Errorf("get generation: %w", err)
	}
	if gen.IsTerminal() {
		o.logger.Info("completion hook on terminal generation ignored",
			slog.String("generation_id", generationID),
			slog.String("status", string(gen.Status)),
		)
		return nil
	}
	if outputURL == "" {
		o.fail(ctx, generationID, "completion hook called without an output URL")
		return nil
	}
	o.completeFromOutput(ctx, generationID, outputURL, metadata)
	return nil
}

// HandleFailure is the idempotent external failure hook.
// Invoking it on an already-terminal generation is a no-op.
func (o *Orchestrator) HandleFailure(ctx context.Context, generationID, errorMessage string, metadata map[string]string) error {
	gen, err := o.repo.Get(ctx, generationID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return WrapError(KindNotFound, "generation not found", err)
		}
		return fmt.Errorf("get generation: %w", err)
	}
	if gen.IsTerminal() {
		o.logger.Info("failure hook on terminal generation ignored",
			slog.String("generation_id", generationID),
			slog.String("status", string(gen.Status)),
		)
		return nil
	}
	if errorMessage == "" {
		errorMessage = "generation failed"
	}
	o.updateToFailed(ctx, generationID, errorMessage, metadata)
	return nil
}

// Close stops all live pollers, waits for background lifecycles to exit and
// closes the event hub. In-flight generations are left in their current
// persisted state.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	for _, p := range o.pollers {
		p.stop()
	}
	o.mu.Unlock()

	o.cancel()
	o.wg.Wait()
	o.events.Close()
}

// runLifecycle drives a generation from QUEUED through submission and the
// polling loop. Any failure transitions the record to FAILED and stops; a
// generation is never left in a non-terminal state without an active poller.
func (o *Orchestrator) runLifecycle(ctx context.Context, id, imageURL, prompt string) {
	defer o.wg.Done()

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("generation lifecycle panicked",
				slog.String("generation_id", id),
				slog.Any("panic", r),
			)
			o.fail(ctx, id, fmt.Sprintf("internal error: %v", r))
		}
	}()

	updated, err := o.updateStatus(ctx, id, statusPtr(StatusQueued), StatusPreparing, Update{})
	if err != nil {
		o.fail(ctx, id, fmt.Sprintf("prepare: %v", err))
		return
	}
	if updated == nil {
		// Another driver already moved the record on.
		return
	}

	jobID, err := o.provider.Submit(ctx, imageURL, prompt)
	if err != nil {
		o.fail(ctx, id, fmt.Sprintf("provider submit failed: %v", err))
		return
	}

	updated, err = o.updateStatus(ctx, id, statusPtr(StatusPreparing), StatusGenerating, Update{
		ProviderJobID: &jobID,
	})
	if err != nil {
		o.fail(ctx, id, fmt.Sprintf("record provider job: %v", err))
		return
	}
	if updated == nil {
		return
	}

	o.logger.Info("provider accepted generation",
		slog.String("generation_id", id),
		slog.String("provider_job_id", jobID),
	)

	o.runPoller(ctx, id, jobID)
}

// completeFromOutput drives GENERATING -> PROCESSING -> pipeline ->
// COMPLETED -> debit. It is shared by the polling path and HandleComplete;
// the updateStatus gate guarantees a single winner when both race the final
// transition, so the debit happens at most once.
func (o *Orchestrator) completeFromOutput(ctx context.Context, id, outputURL string, extra map[string]string) {
	meta := map[string]string{"provider_output_url": outputURL}
	for k, v := range extra {
		meta[k] = v
	}

	gen, err := o.repo.Get(ctx, id)
	if err != nil {
		o.logger.Error("read generation for completion failed",
			slog.String("generation_id", id),
			slog.String("error", err.Error()),
		)
		return
	}

	switch gen.Status {
	case StatusGenerating:
		updated, err := o.updateStatus(ctx, id, statusPtr(StatusGenerating), StatusProcessing, Update{Metadata: meta})
		if err != nil {
			o.fail(ctx, id, fmt.Sprintf("enter processing: %v", err))
			return
		}
		if updated == nil {
			// Lost the race; the other driver owns completion now.
			return
		}
		gen = updated
	case StatusProcessing:
		// Another driver is mid-pipeline; let it finish.
		return
	default:
		o.logger.Warn("completion signal in unexpected status ignored",
			slog.String("generation_id", id),
			slog.String("status", string(gen.Status)),
		)
		return
	}

	result, err := o.pipeline.Process(ctx, media.Input{
		GenerationID: id,
		UserID:       gen.UserID,
		ProjectID:    gen.ProjectID,
		SourceURL:    outputURL,
	})
	if err != nil {
		o.fail(ctx, id, fmt.Sprintf("media processing failed: %v", err))
		return
	}

	updated, err := o.updateStatus(ctx, id, statusPtr(StatusProcessing), StatusCompleted, Update{
		VideoURL: &result.VideoURL,
		Metadata: result.Metadata,
	})
	if err != nil {
		o.fail(ctx, id, fmt.Sprintf("complete: %v", err))
		return
	}
	if updated == nil {
		// Lost the final gate; the winner performs the debit.
		return
	}

	o.logger.Info("generation completed",
		slog.String("generation_id", id),
		slog.String("video_url", result.VideoURL),
	)

	o.debitForCompletion(ctx, updated)
}

// debitForCompletion performs the single charging event. A debit failure is
// logged only: the video was produced and is never clawed back, and the
// ledger's own durability concerns are out of this core's scope.
func (o *Orchestrator) debitForCompletion(ctx context.Context, gen *Generation) {
	reason := fmt.Sprintf("video generation %s", gen.ID)
	if _, err := o.tokens.Debit(ctx, gen.UserID, o.cfg.Cost, reason); err != nil {
		o.logger.Error("token debit failed, generation stays completed",
			slog.String("generation_id", gen.ID),
			slog.String("user_id", gen.UserID),
			slog.Int64("cost", o.cfg.Cost),
			slog.String("error", err.Error()),
		)
	}
}

// fail transitions the generation to FAILED with the given message.
// Failures of the transition itself (typically: the record is already
// terminal) are logged and swallowed.
func (o *Orchestrator) fail(ctx context.Context, id, message string) {
	o.updateToFailed(ctx, id, message, nil)
}

func (o *Orchestrator) updateToFailed(ctx context.Context, id, message string, meta map[string]string) {
	_, err := o.updateStatus(ctx, id, nil, StatusFailed, Update{
		ErrorMessage: &message,
		Metadata:     meta,
	})
	if err != nil {
		o.logger.Warn("failure transition skipped",
			slog.String("generation_id", id),
			slog.String("reason", message),
			slog.String("error", err.Error()),
		)
		return
	}
	o.logger.Info("generation failed",
		slog.String("generation_id", id),
		slog.String("reason", message),
	)
}

// updateStatus is the single mutation gate. It re-reads the persisted status
// under the generation's lock; if expectedFrom is non-nil and does not match,
// the stale transition is logged and discarded (nil, nil). Otherwise the
// state machine validates the transition, the record is persisted inside the
// BeforeTransition hook, and the status-change event is published in the
// AfterTransition hook.
func (o *Orchestrator) updateStatus(ctx context.Context, id string, expectedFrom *Status, to Status, upd Update) (*Generation, error) {
	lock := o.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	gen, err := o.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("read current status: %w", err)
	}

	if expectedFrom != nil && gen.Status != *expectedFrom {
		o.logger.Info("stale transition discarded",
			slog.String("generation_id", id),
			slog.String("expected", string(*expectedFrom)),
			slog.String("current", string(gen.Status)),
			slog.String("target", string(to)),
		)
		return nil, nil
	}

	var updated *Generation
	machine := NewMachine(gen.Status, Hooks{
		BeforeTransition: func(_, target Status) error {
			upd.Status = &target
			u, uerr := o.repo.Update(ctx, id, upd)
			if uerr != nil {
				return fmt.Errorf("persist transition: %w", uerr)
			}
			updated = u
			return nil
		},
		AfterTransition: func(from, target Status) error {
			o.events.Publish(Event{
				GenerationID: id,
				From:         from,
				To:           target,
				Timestamp:    time.Now(),
				Metadata:     eventMetadata(upd),
			})
			return nil
		},
		OnError: func(hookErr error, from, target Status) {
			o.logger.Error("transition hook failed",
				slog.String("generation_id", id),
				slog.String("from", string(from)),
				slog.String("to", string(target)),
				slog.String("error", hookErr.Error()),
			)
		},
	})

	if err := machine.TransitionTo(to); err != nil {
		if IsKind(err, KindInvalidTransition) {
			o.logger.Warn("invalid status transition rejected",
				slog.String("generation_id", id),
				slog.String("from", string(gen.Status)),
				slog.String("to", string(to)),
			)
		}
		return nil, err
	}

	if to.IsTerminal() {
		o.releaseLifecycle(id)
	}

	return updated, nil
}

// releaseLifecycle tears down a generation's runtime resources once its
// record is terminal: the poller (so an externally driven FAILED or COMPLETED
// does not leave the loop hitting the provider until its budget runs out) and
// the per-generation lock entry. Late waiters on the old lock re-read a
// terminal status and are rejected by the transition table, so a fresh lock
// for the same id cannot admit a conflicting write.
func (o *Orchestrator) releaseLifecycle(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if p, ok := o.pollers[id]; ok {
		p.stop()
	}
	delete(o.locks, id)
}

// eventMetadata extracts observer-relevant fields from an update.
func eventMetadata(upd Update) map[string]string {
	meta := make(map[string]string, len(upd.Metadata)+2)
	for k, v := range upd.Metadata {
		meta[k] = v
	}
	if upd.VideoURL != nil {
		meta["video_url"] = *upd.VideoURL
	}
	if upd.ErrorMessage != nil {
		meta["error"] = *upd.ErrorMessage
	}
	return meta
}

// lockFor returns the per-generation mutex, creating it on first use.
func (o *Orchestrator) lockFor(id string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	lock, ok := o.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		o.locks[id] = lock
	}
	return lock
}

func statusPtr(s Status) *Status {
	return &s
}
