package media

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelforge/reelforge-api/internal/storage"
)

// fakeStore records uploads and can fail a scripted number of attempts.
type fakeStore struct {
	mu         sync.Mutex
	uploads    []fakeUpload
	failsLeft  int
	failAlways bool
}

type fakeUpload struct {
	bucket      string
	path        string
	contentType string
	size        int
}

func (s *fakeStore) Upload(_ context.Context, data []byte, bucket, path, contentType string) (storage.UploadResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAlways || s.failsLeft > 0 {
		if s.failsLeft > 0 {
			s.failsLeft--
		}
		return storage.UploadResult{}, errors.New("upload rejected")
	}
	s.uploads = append(s.uploads, fakeUpload{bucket: bucket, path: path, contentType: contentType, size: len(data)})
	return storage.UploadResult{
		URL:  fmt.Sprintf("https://cdn.example.com/%s/%s", bucket, path),
		Path: path,
	}, nil
}

func (s *fakeStore) uploadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.uploads)
}

type fakeProber struct {
	meta Metadata
	err  error
}

func (p *fakeProber) Probe(_ context.Context, _ []byte) (Metadata, error) {
	if p.err != nil {
		return Metadata{}, p.err
	}
	return p.meta, nil
}

// fastBackoff keeps retry tests quick.
var fastBackoff = []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond}

func testInput() Input {
	return Input{
		GenerationID: "gen-1",
		UserID:       "user-1",
		ProjectID:    "proj-1",
	}
}

func TestObjectKey(t *testing.T) {
	key := ObjectKey("u1", "p1", "g1")
	assert.Equal(t, "users/u1/projects/p1/generations/g1.mp4", key)
	// Deterministic: same inputs, same key.
	assert.Equal(t, key, ObjectKey("u1", "p1", "g1"))
}

func TestPipeline_ProcessSuccess(t *testing.T) {
	payload := []byte("fake mp4 payload")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(payload)
	}))
	defer server.Close()

	store := &fakeStore{}
	p := NewPipeline(store, "videos", WithBackoff(fastBackoff))

	in := testInput()
	in.SourceURL = server.URL

	res, err := p.Process(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/videos/users/user-1/projects/proj-1/generations/gen-1.mp4", res.VideoURL)
	assert.Equal(t, "16", res.Metadata["size_bytes"])
	assert.Equal(t, "users/user-1/projects/proj-1/generations/gen-1.mp4", res.Metadata["storage_path"])

	require.Len(t, store.uploads, 1)
	assert.Equal(t, "videos", store.uploads[0].bucket)
	assert.Equal(t, "video/mp4", store.uploads[0].contentType)
	assert.Equal(t, len(payload), store.uploads[0].size)
}

func TestPipeline_ProbedMetadata(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("payload"))
	}))
	defer server.Close()

	store := &fakeStore{}
	p := NewPipeline(store, "videos",
		WithBackoff(fastBackoff),
		WithProber(&fakeProber{meta: Metadata{DurationSec: 4.5, Width: 1280, Height: 720, Codec: "h264"}}),
	)

	in := testInput()
	in.SourceURL = server.URL

	res, err := p.Process(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "4.50", res.Metadata["duration_sec"])
	assert.Equal(t, "1280", res.Metadata["width"])
	assert.Equal(t, "720", res.Metadata["height"])
	assert.Equal(t, "h264", res.Metadata["codec"])
}

func TestPipeline_ProbeFailureIsNonFatal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("payload"))
	}))
	defer server.Close()

	store := &fakeStore{}
	p := NewPipeline(store, "videos",
		WithBackoff(fastBackoff),
		WithProber(&fakeProber{err: errors.New("ffprobe not found")}),
		WithConstraints(Constraints{MaxBytes: 1 << 20, MaxDurationSec: 1}),
	)

	in := testInput()
	in.SourceURL = server.URL

	res, err := p.Process(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "7", res.Metadata["size_bytes"])
	assert.NotContains(t, res.Metadata, "duration_sec")
}

func TestPipeline_OversizePayloadRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(make([]byte, 64))
	}))
	defer server.Close()

	store := &fakeStore{}
	p := NewPipeline(store, "videos",
		WithBackoff(fastBackoff),
		WithConstraints(Constraints{MaxBytes: 32}),
	)

	in := testInput()
	in.SourceURL = server.URL

	_, err := p.Process(context.Background(), in)
	require.Error(t, err)

	var mediaErr *Error
	require.ErrorAs(t, err, &mediaErr)
	assert.Equal(t, PhaseValidate, mediaErr.Phase)
	assert.ErrorIs(t, err, ErrMaxSizeExceeded)
	assert.Zero(t, store.uploadCount(), "oversize assets must never be uploaded")
}

func TestPipeline_EmptyPayloadRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	store := &fakeStore{}
	p := NewPipeline(store, "videos", WithBackoff(fastBackoff))

	in := testInput()
	in.SourceURL = server.URL

	_, err := p.Process(context.Background(), in)
	var mediaErr *Error
	require.ErrorAs(t, err, &mediaErr)
	assert.Equal(t, PhaseValidate, mediaErr.Phase)
	assert.ErrorIs(t, err, ErrEmptyPayload)
}

func TestPipeline_DurationConstraint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("payload"))
	}))
	defer server.Close()

	store := &fakeStore{}
	p := NewPipeline(store, "videos",
		WithBackoff(fastBackoff),
		WithProber(&fakeProber{meta: Metadata{DurationSec: 12.0}}),
		WithConstraints(Constraints{MaxBytes: 1 << 20, MaxDurationSec: 10}),
	)

	in := testInput()
	in.SourceURL = server.URL

	_, err := p.Process(context.Background(), in)
	var mediaErr *Error
	require.ErrorAs(t, err, &mediaErr)
	assert.Equal(t, PhaseValidate, mediaErr.Phase)
	assert.ErrorIs(t, err, ErrDurationExceeded)
	assert.Zero(t, store.uploadCount())
}

func TestPipeline_DownloadRetriesThenSucceeds(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("payload"))
	}))
	defer server.Close()

	store := &fakeStore{}
	p := NewPipeline(store, "videos", WithBackoff(fastBackoff))

	in := testInput()
	in.SourceURL = server.URL

	res, err := p.Process(context.Background(), in)
	require.NoError(t, err)
	assert.NotEmpty(t, res.VideoURL)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, attempts)
}

func TestPipeline_DownloadRetriesExhausted(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		attempts++
		mu.Unlock()
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	store := &fakeStore{}
	p := NewPipeline(store, "videos", WithBackoff(fastBackoff))

	in := testInput()
	in.SourceURL = server.URL

	_, err := p.Process(context.Background(), in)
	var mediaErr *Error
	require.ErrorAs(t, err, &mediaErr)
	assert.Equal(t, PhaseDownload, mediaErr.Phase)

	mu.Lock()
	defer mu.Unlock()
	// Initial attempt plus one retry per backoff step.
	assert.Equal(t, 1+len(fastBackoff), attempts)
	assert.Zero(t, store.uploadCount())
}

func TestPipeline_DownloadTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	store := &fakeStore{}
	p := NewPipeline(store, "videos",
		WithBackoff([]time.Duration{time.Millisecond}),
		WithDownloadTimeout(20*time.Millisecond),
	)

	in := testInput()
	in.SourceURL = server.URL

	_, err := p.Process(context.Background(), in)
	var mediaErr *Error
	require.ErrorAs(t, err, &mediaErr)
	assert.Equal(t, PhaseDownload, mediaErr.Phase)
	assert.ErrorIs(t, err, ErrDownloadTimeout)
}

func TestPipeline_UploadRetriesThenSucceeds(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("payload"))
	}))
	defer server.Close()

	store := &fakeStore{failsLeft: 2}
	p := NewPipeline(store, "videos", WithBackoff(fastBackoff))

	in := testInput()
	in.SourceURL = server.URL

	res, err := p.Process(context.Background(), in)
	require.NoError(t, err)
	assert.NotEmpty(t, res.VideoURL)
	assert.Equal(t, 1, store.uploadCount())
}

func TestPipeline_UploadRetriesExhausted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("payload"))
	}))
	defer server.Close()

	store := &fakeStore{failAlways: true}
	p := NewPipeline(store, "videos", WithBackoff(fastBackoff))

	in := testInput()
	in.SourceURL = server.URL

	_, err := p.Process(context.Background(), in)
	var mediaErr *Error
	require.ErrorAs(t, err, &mediaErr)
	assert.Equal(t, PhaseUpload, mediaErr.Phase)
	assert.Zero(t, store.uploadCount())
}

func TestPipeline_ErrorStringCarriesPhase(t *testing.T) {
	err := &Error{Phase: PhaseValidate, Err: ErrEmptyPayload}
	assert.Contains(t, err.Error(), "validate")
	assert.ErrorIs(t, err, ErrEmptyPayload)
}
