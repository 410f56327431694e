// Package media provides the post-generation processing pipeline: it turns a
// provider output URL into a durably stored, publicly addressable asset plus
// verified metadata.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/reelforge/reelforge-api/internal/storage"
)

// Static errors for pipeline validation.
var (
	// ErrDownloadTimeout is returned when the download deadline elapses.
	ErrDownloadTimeout = errors.New("media: download timed out")
	// ErrEmptyPayload is returned when the downloaded asset has zero bytes.
	ErrEmptyPayload = errors.New("media: downloaded asset is empty")
	// ErrMaxSizeExceeded is returned when the asset exceeds the byte limit.
	ErrMaxSizeExceeded = errors.New("media: asset exceeds maximum size")
	// ErrDurationExceeded is returned when the probed duration exceeds the limit.
	ErrDurationExceeded = errors.New("media: video exceeds maximum duration")
	// ErrDimensionsExceeded is returned when probed dimensions exceed the limit.
	ErrDimensionsExceeded = errors.New("media: video exceeds maximum dimensions")
)

// Phase identifies the stage of the pipeline an error originated in.
type Phase string

const (
	// PhaseDownload covers fetching the provider output.
	PhaseDownload Phase = "download"
	// PhaseValidate covers size and metadata constraint checks.
	PhaseValidate Phase = "validate"
	// PhaseUpload covers persisting the asset to storage.
	PhaseUpload Phase = "upload"
)

// Error is the single typed processing error the pipeline surfaces.
type Error struct {
	Phase Phase
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("media %s: %v", e.Phase, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Constraints bound the accepted output asset. Zero values disable a check,
// except MaxBytes which always applies.
type Constraints struct {
	// MaxBytes is the maximum accepted asset size.
	MaxBytes int64
	// MaxDurationSec caps the probed duration, when metadata is available.
	MaxDurationSec float64
	// MaxWidth and MaxHeight cap the probed dimensions, when available.
	MaxWidth  int
	MaxHeight int
}

// Metadata describes the probed properties of a video asset.
type Metadata struct {
	DurationSec float64
	Width       int
	Height      int
	Codec       string
}

// Prober extracts metadata from raw video bytes. Implementations are
// best-effort: probe failures skip metadata-based validation rather than
// failing the pipeline.
type Prober interface {
	Probe(ctx context.Context, data []byte) (Metadata, error)
}

// Input identifies the generation whose output is being processed.
type Input struct {
	GenerationID string
	UserID       string
	ProjectID    string
	// SourceURL is the provider's output URL.
	SourceURL string
}

// Result is the pipeline's successful outcome.
type Result struct {
	// VideoURL is the canonical public URL of the stored asset.
	VideoURL string
	// Metadata holds extracted asset properties for the generation record.
	Metadata map[string]string
}

// Pipeline downloads, validates and persists provider output.
// Download and upload are retried independently with a fixed backoff
// sequence; validation is never retried.
type Pipeline struct {
	httpClient      *http.Client
	store           storage.Storage
	prober          Prober
	bucket          string
	constraints     Constraints
	downloadTimeout time.Duration
	backoff         []time.Duration
	logger          *slog.Logger
}

// Option is a function that configures a Pipeline.
type Option func(*Pipeline)

// WithHTTPClient sets a custom HTTP client for downloads.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Pipeline) {
		p.httpClient = c
	}
}

// WithProber sets the metadata prober.
func WithProber(pr Prober) Option {
	return func(p *Pipeline) {
		p.prober = pr
	}
}

// WithConstraints sets the validation constraints.
func WithConstraints(c Constraints) Option {
	return func(p *Pipeline) {
		p.constraints = c
	}
}

// WithDownloadTimeout sets the per-attempt download deadline.
func WithDownloadTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		p.downloadTimeout = d
	}
}

// WithBackoff sets the retry backoff sequence for download and upload.
// The number of retries equals the length of the sequence.
func WithBackoff(seq []time.Duration) Option {
	return func(p *Pipeline) {
		p.backoff = seq
	}
}

// WithLogger sets the pipeline logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = l
	}
}

// NewPipeline creates a media processing pipeline persisting to the given
// storage bucket.
func NewPipeline(store storage.Storage, bucket string, opts ...Option) *Pipeline {
	p := &Pipeline{
		httpClient: &http.Client{},
		store:      store,
		bucket:     bucket,
		constraints: Constraints{
			MaxBytes: 200 << 20, // 200 MiB
		},
		downloadTimeout: 60 * time.Second,
		backoff:         []time.Duration{1 * time.Second, 2 * time.Second, 5 * time.Second},
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ObjectKey returns the deterministic storage key for a generation's video.
// Repeated uploads for the same generation overwrite rather than accumulate.
func ObjectKey(userID, projectID, generationID string) string {
	return fmt.Sprintf("users/%s/projects/%s/generations/%s.mp4", userID, projectID, generationID)
}

// Process runs download, validation and upload, returning the canonical URL
// and extracted metadata. Any failure is surfaced as a single *Error carrying
// the phase and the last underlying error.
func (p *Pipeline) Process(ctx context.Context, in Input) (Result, error) {
	data, err := p.downloadWithRetry(ctx, in.SourceURL)
	if err != nil {
		return Result{}, &Error{Phase: PhaseDownload, Err: err}
	}

	meta, err := p.validate(ctx, data)
	if err != nil {
		return Result{}, &Error{Phase: PhaseValidate, Err: err}
	}

	key := ObjectKey(in.UserID, in.ProjectID, in.GenerationID)
	uploaded, err := p.uploadWithRetry(ctx, data, key)
	if err != nil {
		return Result{}, &Error{Phase: PhaseUpload, Err: err}
	}

	meta["storage_path"] = uploaded.Path
	return Result{VideoURL: uploaded.URL, Metadata: meta}, nil
}

// downloadWithRetry fetches the asset, retrying with the fixed backoff
// sequence. Each attempt has its own deadline; a deadline hit is reported as
// ErrDownloadTimeout, distinct from other transport errors.
func (p *Pipeline) downloadWithRetry(ctx context.Context, url string) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt <= len(p.backoff); attempt++ {
		if attempt > 0 {
			delay := p.backoff[attempt-1]
			p.logger.Warn("download failed, retrying",
				slog.String("url", url),
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
				slog.String("error", lastErr.Error()),
			)
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("download cancelled: %w", ctx.Err())
			case <-time.After(delay):
			}
		}

		data, err := p.download(ctx, url)
		if err == nil {
			return data, nil
		}
		lastErr = err
	}

	return nil, lastErr
}

// download performs a single download attempt with a timeout.
func (p *Pipeline) download(ctx context.Context, url string) ([]byte, error) {
	dlCtx, cancel := context.WithTimeout(ctx, p.downloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(dlCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || dlCtx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%w after %s: %w", ErrDownloadTimeout, p.downloadTimeout, err)
		}
		return nil, fmt.Errorf("fetch output: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch output: unexpected status %d", resp.StatusCode)
	}

	// Read one byte past the limit so validation can detect oversize payloads
	// without buffering arbitrarily large bodies.
	limit := p.constraints.MaxBytes + 1
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || dlCtx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%w after %s: %w", ErrDownloadTimeout, p.downloadTimeout, err)
		}
		return nil, fmt.Errorf("read output: %w", err)
	}

	return data, nil
}

// validate enforces the byte-size constraint and, when a prober is available,
// duration and dimension constraints against extracted metadata.
func (p *Pipeline) validate(ctx context.Context, data []byte) (map[string]string, error) {
	size := int64(len(data))
	if size == 0 {
		return nil, ErrEmptyPayload
	}
	if size > p.constraints.MaxBytes {
		return nil, fmt.Errorf("%w: %d bytes > %d bytes", ErrMaxSizeExceeded, size, p.constraints.MaxBytes)
	}

	meta := map[string]string{
		"size_bytes": strconv.FormatInt(size, 10),
	}

	if p.prober == nil {
		return meta, nil
	}

	probed, err := p.prober.Probe(ctx, data)
	if err != nil {
		// Metadata extraction is best-effort: skip metadata checks rather
		// than failing an otherwise valid asset.
		p.logger.Warn("metadata probe failed, skipping metadata validation",
			slog.String("error", err.Error()),
		)
		return meta, nil
	}

	if probed.DurationSec > 0 {
		meta["duration_sec"] = strconv.FormatFloat(probed.DurationSec, 'f', 2, 64)
	}
	if probed.Width > 0 && probed.Height > 0 {
		meta["width"] = strconv.Itoa(probed.Width)
		meta["height"] = strconv.Itoa(probed.Height)
	}
	if probed.Codec != "" {
		meta["codec"] = probed.Codec
	}

	if p.constraints.MaxDurationSec > 0 && probed.DurationSec > p.constraints.MaxDurationSec {
		return nil, fmt.Errorf("%w: %.2fs > %.2fs", ErrDurationExceeded, probed.DurationSec, p.constraints.MaxDurationSec)
	}
	if p.constraints.MaxWidth > 0 && probed.Width > p.constraints.MaxWidth {
		return nil, fmt.Errorf("%w: width %d > %d", ErrDimensionsExceeded, probed.Width, p.constraints.MaxWidth)
	}
	if p.constraints.MaxHeight > 0 && probed.Height > p.constraints.MaxHeight {
		return nil, fmt.Errorf("%w: height %d > %d", ErrDimensionsExceeded, probed.Height, p.constraints.MaxHeight)
	}

	return meta, nil
}

// uploadWithRetry persists the asset, retrying with the fixed backoff sequence.
func (p *Pipeline) uploadWithRetry(ctx context.Context, data []byte, key string) (storage.UploadResult, error) {
	var lastErr error

	for attempt := 0; attempt <= len(p.backoff); attempt++ {
		if attempt > 0 {
			delay := p.backoff[attempt-1]
			p.logger.Warn("upload failed, retrying",
				slog.String("key", key),
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
				slog.String("error", lastErr.Error()),
			)
			select {
			case <-ctx.Done():
				return storage.UploadResult{}, fmt.Errorf("upload cancelled: %w", ctx.Err())
			case <-time.After(delay):
			}
		}

		res, err := p.store.Upload(ctx, data, p.bucket, key, "video/mp4")
		if err == nil {
			return res, nil
		}
		lastErr = err
	}

	return storage.UploadResult{}, lastErr
}
