// Package stitch turns an ordered batch of raw audio fragments into a
// single decodable MP3 payload.
//
// Browser recorders emit fragmented container streams: for WebM-Opus the
// EBML header and cluster information only appear in the first fragment,
// so naive byte concatenation of later fragments is undecodable. The
// stitcher therefore carries three strategies and walks down a failure
// ladder:
//
//  1. Filter-graph concat — one ffmpeg invocation with each fragment as a
//     separate input and a concat filter graph. Preferred for
//     multi-fragment WebM batches.
//  2. Transcode-then-concat — each fragment is transcoded to an
//     intermediate MP3 individually (per-fragment failures are skipped,
//     not fatal), then the intermediates are joined with the concat
//     demuxer using stream copy.
//  3. Streaming pipe — the combined bytes are fed to a single ffmpeg
//     process on stdin. Used directly for single-fragment or non-WebM
//     batches.
//
// If every strategy fails the original combined bytes are forwarded with
// their original container hint; the transcriber may still reject them,
// which is reported rather than retried here.
package stitch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/agnij-dutta/attack-capital/internal/fragstore"
)

// Target encoding for stitched audio: speech-optimised mono MP3.
const (
	targetSampleRate = "16000"
	targetBitrate    = "64k"
	mp3MIMEType      = "audio/mpeg"
)

// ErrNoFragments is returned when the batch carries no payloads.
var ErrNoFragments = errors.New("stitch: no fragments in batch")

// errEmptyOutput marks a tool run that exited zero but produced no bytes.
var errEmptyOutput = errors.New("stitch: tool produced empty output")

// Batch is an ordered set of fragments drawn from one session's buffer.
// Payloads, Paths, and MIMETypes are parallel slices in arrival order.
type Batch struct {
	SessionID string
	Payloads  [][]byte
	Paths     []string
	MIMETypes []string
}

// CombinedSize returns the total byte length of the batch payloads.
func (b Batch) CombinedSize() int {
	n := 0
	for _, p := range b.Payloads {
		n += len(p)
	}
	return n
}

// combined concatenates the batch payloads.
func (b Batch) combined() []byte {
	out := make([]byte, 0, b.CombinedSize())
	for _, p := range b.Payloads {
		out = append(out, p...)
	}
	return out
}

// allWebM reports whether every fragment in the batch carries a WebM hint.
func (b Batch) allWebM() bool {
	for _, m := range b.MIMETypes {
		if !fragstore.IsWebM(m) {
			return false
		}
	}
	return len(b.MIMETypes) > 0
}

// CombinedHash returns the hex sha256 of the concatenated payloads. The
// scheduler compares it against the last transcribed hash to suppress
// duplicate fragment batches before any tool is spawned.
func CombinedHash(payloads [][]byte) string {
	h := sha256.New()
	for _, p := range payloads {
		h.Write(p)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Result is the stitched audio handed to the transcription gateway.
type Result struct {
	// Audio is the stitched payload, MP3 except on total strategy failure.
	Audio []byte

	// MIMEType is "audio/mpeg", or the original container hint when all
	// strategies failed and the raw bytes were forwarded.
	MIMEType string

	// Strategy names the strategy that produced the audio, for logs.
	Strategy string
}

// Options configures a Stitcher.
type Options struct {
	// FFmpegPath is the ffmpeg binary. Required.
	FFmpegPath string

	// FFprobePath enables duration verification when non-empty.
	FFprobePath string

	// ToolTimeout bounds a single-input invocation.
	ToolTimeout time.Duration

	// FilterToolTimeout bounds a filter-graph invocation.
	FilterToolTimeout time.Duration

	// StdoutMax caps the bytes read from the tool's stdout.
	StdoutMax int64

	// ExpectedDuration is the nominal chunk length used by verification.
	ExpectedDuration time.Duration

	// DebugDirFor, when non-nil, names the directory stitched MP3s are
	// copied to for diagnostics.
	DebugDirFor func(sessionID string) string
}

// Stitcher runs the external audio tool. Safe for concurrent use; each
// Stitch call spawns its own processes.
type Stitcher struct {
	opts Options
	run  runner
}

// New creates a Stitcher with the given options.
func New(opts Options) *Stitcher {
	return &Stitcher{
		opts: opts,
		run:  &execRunner{stdoutMax: opts.StdoutMax},
	}
}

// Stitch converts the batch into a single decodable audio payload,
// walking the strategy ladder described in the package comment.
func (s *Stitcher) Stitch(ctx context.Context, batch Batch) (Result, error) {
	if len(batch.Payloads) == 0 {
		return Result{}, ErrNoFragments
	}

	multiWebM := len(batch.Payloads) > 1 && batch.allWebM() && len(batch.Paths) == len(batch.Payloads)

	var (
		audio []byte
		strat string
		err   error
	)

	if multiWebM {
		audio, err = s.concatFilter(ctx, batch.Paths)
		strat = "filter-graph"
		if err != nil {
			slog.Warn("stitch: filter-graph concat failed, falling back",
				"session_id", batch.SessionID, "fragments", len(batch.Paths), "err", err)
			audio, err = s.transcodeConcat(ctx, batch.Paths)
			strat = "transcode-concat"
		}
		if err != nil {
			slog.Warn("stitch: transcode-then-concat failed, falling back",
				"session_id", batch.SessionID, "err", err)
			audio, err = s.streamPipe(ctx, batch.combined())
			strat = "stream-pipe"
		}
	} else {
		audio, err = s.streamPipe(ctx, batch.combined())
		strat = "stream-pipe"
	}

	if err != nil {
		// Last resort: forward the raw bytes with their original hint.
		// The transcriber may reject them; that is reported, not retried.
		slog.Error("stitch: all strategies failed, forwarding raw bytes",
			"session_id", batch.SessionID, "err", err)
		mime := "application/octet-stream"
		if len(batch.MIMETypes) > 0 {
			mime = batch.MIMETypes[0]
		}
		return Result{Audio: batch.combined(), MIMEType: mime, Strategy: "raw"}, nil
	}

	s.verify(ctx, batch.SessionID, audio)
	s.saveDebugArtifact(batch.SessionID, audio)

	return Result{Audio: audio, MIMEType: mp3MIMEType, Strategy: strat}, nil
}

// concatFilter runs ffmpeg once with every fragment as a separate input
// and a concat filter graph of the shape
// [0:a][1:a]…[n-1:a] concat=n=N:v=0:a=1 [out].
func (s *Stitcher) concatFilter(ctx context.Context, paths []string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.FilterToolTimeout)
	defer cancel()

	args := []string{"-hide_banner", "-loglevel", "error", "-nostdin"}
	for _, p := range paths {
		// Fragments past the first lack their own EBML header; force the
		// demuxer, ignore decode errors, and regenerate timestamps.
		args = append(args,
			"-err_detect", "ignore_err",
			"-fflags", "+genpts",
			"-f", "webm",
			"-i", p,
		)
	}

	var graph strings.Builder
	for i := range paths {
		fmt.Fprintf(&graph, "[%d:a]", i)
	}
	fmt.Fprintf(&graph, "concat=n=%d:v=0:a=1[out]", len(paths))

	args = append(args,
		"-filter_complex", graph.String(),
		"-map", "[out]",
		"-ar", targetSampleRate,
		"-ac", "1",
		"-b:a", targetBitrate,
		"-f", "mp3", "pipe:1",
	)

	out, err := s.run.run(ctx, nil, s.opts.FFmpegPath, args...)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, errEmptyOutput
	}
	return out, nil
}

// transcodeConcat transcodes each fragment to an intermediate MP3 and then
// joins the survivors with the concat demuxer using stream copy.
// Per-fragment failures are skipped; the strategy fails only when no
// fragment survives.
func (s *Stitcher) transcodeConcat(ctx context.Context, paths []string) ([]byte, error) {
	tmpDir, err := os.MkdirTemp("", "stitch-*")
	if err != nil {
		return nil, fmt.Errorf("stitch: create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	var intermediates []string
	for i, p := range paths {
		dst := filepath.Join(tmpDir, fmt.Sprintf("frag-%03d.mp3", i))
		tctx, cancel := context.WithTimeout(ctx, s.opts.ToolTimeout)
		_, err := s.run.run(tctx, nil, s.opts.FFmpegPath,
			"-hide_banner", "-loglevel", "error", "-nostdin",
			"-err_detect", "ignore_err",
			"-i", p,
			"-ar", targetSampleRate,
			"-ac", "1",
			"-b:a", targetBitrate,
			"-y", dst,
		)
		cancel()
		if err != nil {
			slog.Warn("stitch: fragment transcode failed, skipping", "path", p, "err", err)
			continue
		}
		if info, statErr := os.Stat(dst); statErr != nil || info.Size() == 0 {
			slog.Warn("stitch: fragment transcode produced no output, skipping", "path", p)
			continue
		}
		intermediates = append(intermediates, dst)
	}
	if len(intermediates) == 0 {
		return nil, errors.New("stitch: no fragment survived individual transcode")
	}

	listPath := filepath.Join(tmpDir, "concat.txt")
	var list strings.Builder
	for _, p := range intermediates {
		fmt.Fprintf(&list, "file '%s'\n", p)
	}
	if err := os.WriteFile(listPath, []byte(list.String()), 0o644); err != nil {
		return nil, fmt.Errorf("stitch: write concat list: %w", err)
	}

	cctx, cancel := context.WithTimeout(ctx, s.opts.ToolTimeout)
	defer cancel()
	out, err := s.run.run(cctx, nil, s.opts.FFmpegPath,
		"-hide_banner", "-loglevel", "error", "-nostdin",
		"-f", "concat", "-safe", "0",
		"-i", listPath,
		"-c", "copy",
		"-f", "mp3", "pipe:1",
	)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, errEmptyOutput
	}
	return out, nil
}

// streamPipe feeds the combined bytes to one ffmpeg process on stdin and
// reads MP3 from stdout. Broken-pipe on early tool exit is tolerated by
// the runner.
func (s *Stitcher) streamPipe(ctx context.Context, combined []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.ToolTimeout)
	defer cancel()

	out, err := s.run.run(ctx, newByteReader(combined), s.opts.FFmpegPath,
		"-hide_banner", "-loglevel", "error",
		"-err_detect", "ignore_err",
		"-i", "pipe:0",
		"-ar", targetSampleRate,
		"-ac", "1",
		"-b:a", targetBitrate,
		"-f", "mp3", "pipe:1",
	)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, errEmptyOutput
	}
	return out, nil
}

// verify probes the stitched audio's duration when ffprobe is configured.
// Deviations are logged, never fatal: short audio is still forwarded.
func (s *Stitcher) verify(ctx context.Context, sessionID string, audio []byte) {
	if s.opts.FFprobePath == "" || s.opts.ExpectedDuration <= 0 {
		return
	}

	tmp, err := os.CreateTemp("", "stitched-*.mp3")
	if err != nil {
		return
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(audio); err != nil {
		tmp.Close()
		return
	}
	tmp.Close()

	pctx, cancel := context.WithTimeout(ctx, s.opts.ToolTimeout)
	defer cancel()
	out, err := s.run.run(pctx, nil, s.opts.FFprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		tmp.Name(),
	)
	if err != nil {
		slog.Warn("stitch: duration probe failed", "session_id", sessionID, "err", err)
		return
	}

	secs, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return
	}
	got := time.Duration(secs * float64(time.Second))

	if got < 5*time.Second {
		slog.Warn("stitch: stitched audio unexpectedly short",
			"session_id", sessionID, "duration", got.Round(time.Millisecond))
		return
	}
	want := s.opts.ExpectedDuration
	if got < want-5*time.Second || got > want+5*time.Second {
		slog.Warn("stitch: stitched duration outside expected window",
			"session_id", sessionID,
			"duration", got.Round(time.Millisecond),
			"expected", want,
		)
	}
}

// saveDebugArtifact writes the stitched MP3 next to the session's
// fragments for diagnostics. Best-effort.
func (s *Stitcher) saveDebugArtifact(sessionID string, audio []byte) {
	if s.opts.DebugDirFor == nil {
		return
	}
	dir := s.opts.DebugDirFor(sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		slog.Warn("stitch: create debug dir failed", "session_id", sessionID, "err", err)
		return
	}
	path := filepath.Join(dir, fmt.Sprintf("combined-%d.mp3", time.Now().UnixMilli()))
	if err := os.WriteFile(path, audio, 0o644); err != nil {
		slog.Warn("stitch: write debug artifact failed", "session_id", sessionID, "err", err)
	}
}
