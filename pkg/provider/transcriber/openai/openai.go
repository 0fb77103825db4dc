// Package openai provides a transcriber backed by the OpenAI audio
// transcriptions API.
package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/agnij-dutta/attack-capital/pkg/provider/transcriber"
)

// Compile-time interface check.
var _ transcriber.Provider = (*Provider)(nil)

const defaultModel = oai.AudioModelWhisper1

// Provider implements [transcriber.Provider] using the OpenAI API.
type Provider struct {
	client oai.Client
	model  oai.AudioModel
}

// config holds optional configuration for the provider.
type config struct {
	baseURL string
	timeout time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL. Primarily used in
// tests to point at a local mock server.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// New constructs an OpenAI transcriber. model selects the transcription
// model; empty means whisper-1.
func New(apiKey string, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		// The gateway owns the retry schedule; do not stack SDK retries
		// on top of it.
		option.WithMaxRetries(0),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	m := oai.AudioModel(model)
	if m == "" {
		m = defaultModel
	}

	return &Provider{client: oai.NewClient(reqOpts...), model: m}, nil
}

// Transcribe implements [transcriber.Provider]. It decodes the base64
// payload, uploads it as a multipart file, and returns the transcription
// text. Failures are classified into [*transcriber.Error].
func (p *Provider) Transcribe(ctx context.Context, req transcriber.Request) (string, error) {
	audio, err := base64.StdEncoding.DecodeString(req.AudioBase64)
	if err != nil {
		return "", &transcriber.Error{Message: "decode audio payload", Err: err}
	}

	params := oai.AudioTranscriptionNewParams{
		Model: p.model,
		File:  oai.File(bytes.NewReader(audio), fileName(req.MIMEType), req.MIMEType),
	}
	if req.Prompt != "" {
		params.Prompt = param.NewOpt(req.Prompt)
	}

	resp, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", classify(err)
	}
	return resp.Text, nil
}

// classify converts an SDK error into a [*transcriber.Error] with the
// predicates the gateway's retry loop depends on.
func classify(err error) error {
	te := &transcriber.Error{Message: "transcription request", Err: err}

	if errors.Is(err, context.DeadlineExceeded) {
		te.Timeout = true
		return te
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		te.Timeout = true
		return te
	}

	var apiErr *oai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			te.RateLimited = true
			te.RetryAfter = retryAfter(apiErr)
		case apiErr.StatusCode >= 500:
			te.ServerError = true
			te.RetryAfter = retryAfter(apiErr)
		}
	}
	return te
}

// retryAfter extracts the server-suggested delay from a Retry-After header,
// if present. The header may be an integer number of seconds.
func retryAfter(apiErr *oai.Error) time.Duration {
	if apiErr.Response == nil {
		return 0
	}
	v := apiErr.Response.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

// fileName picks a multipart file name matching the MIME type. The API
// rejects uploads whose extension disagrees with the container.
func fileName(mimeType string) string {
	switch mimeType {
	case "audio/mpeg", "audio/mp3":
		return "chunk.mp3"
	case "audio/webm":
		return "chunk.webm"
	case "audio/ogg":
		return "chunk.ogg"
	case "audio/wav", "audio/x-wav":
		return "chunk.wav"
	case "audio/mp4", "audio/m4a", "audio/x-m4a":
		return "chunk.m4a"
	case "audio/flac":
		return "chunk.flac"
	default:
		return "chunk.bin"
	}
}
