package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
)

// ErrFFprobeExecution is returned when the ffprobe command fails.
var ErrFFprobeExecution = errors.New("ffprobe execution failed")

// Compile-time check that FFprobeProber implements Prober.
var _ Prober = (*FFprobeProber)(nil)

// FFprobeProber extracts video metadata using the ffprobe CLI.
type FFprobeProber struct {
	// ffprobePath is the path to the ffprobe binary. Defaults to "ffprobe".
	ffprobePath string
}

// NewFFprobeProber creates a new FFprobeProber.
// If ffprobePath is empty, it defaults to "ffprobe" (found via PATH).
func NewFFprobeProber(ffprobePath string) *FFprobeProber {
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFprobeProber{ffprobePath: ffprobePath}
}

// Available reports whether the ffprobe binary can be found.
func (p *FFprobeProber) Available() bool {
	_, err := exec.LookPath(p.ffprobePath)
	return err == nil
}

// probeOutput mirrors the subset of ffprobe's JSON output we read.
type probeOutput struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe writes data to a temporary file and extracts duration, dimensions
// and codec via ffprobe.
func (p *FFprobeProber) Probe(ctx context.Context, data []byte) (Metadata, error) {
	f, err := os.CreateTemp("", "reelforge-probe-*.mp4")
	if err != nil {
		return Metadata{}, fmt.Errorf("create temp file: %w", err)
	}
	path := f.Name()
	defer func() { _ = os.Remove(path) }()

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return Metadata{}, fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return Metadata{}, fmt.Errorf("close temp file: %w", err)
	}

	// #nosec G204 - ffprobePath is set by the application, not user input
	cmd := exec.CommandContext(ctx, p.ffprobePath,
		"-v", "error",
		"-show_entries", "stream=codec_type,codec_name,width,height",
		"-show_entries", "format=duration",
		"-of", "json",
		path,
	)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return Metadata{}, fmt.Errorf("ffprobe cancelled: %w", ctx.Err())
		}
		return Metadata{}, fmt.Errorf("%w: %w, stderr: %s", ErrFFprobeExecution, err, stderr.String())
	}

	var out probeOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return Metadata{}, fmt.Errorf("parse ffprobe output: %w", err)
	}

	meta := Metadata{}
	if out.Format.Duration != "" {
		if d, err := strconv.ParseFloat(out.Format.Duration, 64); err == nil {
			meta.DurationSec = d
		}
	}
	for _, s := range out.Streams {
		if s.CodecType == "video" {
			meta.Width = s.Width
			meta.Height = s.Height
			meta.Codec = s.CodecName
			break
		}
	}

	return meta, nil
}
