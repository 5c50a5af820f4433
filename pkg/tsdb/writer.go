package tsdb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// ErrDisabled is reported for writes when no endpoint URL is configured.
var ErrDisabled = errors.New("time-series sink disabled: no endpoint configured")

// Result is the outcome of a single write. Writes never return an error to the
// caller; the caller decides whether to count, log or ignore a failure.
type Result struct {
	OK         bool
	StatusCode int
	Err        error
}

// LineWriter pushes single points to a line-protocol HTTP endpoint. Each call
// is fire-and-forget: there are no retries and the only statistic kept is the
// number of successful writes.
type LineWriter struct {
	cfg      Config
	endpoint string
	client   *http.Client
	logger   zerolog.Logger

	successes atomic.Int64
}

// NewLineWriter creates a writer for cfg. A nil httpClient gets a client whose
// timeout is cfg.Timeout.
func NewLineWriter(cfg Config, httpClient *http.Client, logger zerolog.Logger) (*LineWriter, error) {
	cfg.applyDefaults()
	logger = logger.With().Str("component", "LineWriter").Logger()

	w := &LineWriter{cfg: cfg, logger: logger}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	w.client = httpClient

	if cfg.URL == "" {
		logger.Warn().Msg("INFLUX_URL not set, time-series writes will be reported as failed.")
		return w, nil
	}

	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid time-series URL %q: %w", cfg.URL, err)
	}
	q := u.Query()
	q.Set("org", cfg.Org)
	q.Set("bucket", cfg.Bucket)
	q.Set("precision", cfg.Precision)
	u.RawQuery = q.Encode()
	w.endpoint = u.String()

	logger.Info().Str("url", cfg.URL).Str("bucket", cfg.Bucket).Str("precision", cfg.Precision).Dur("timeout", cfg.Timeout).Msg("Time-series writer configured.")
	return w, nil
}

// WriteReading sends one line for measurement with the given tags and value.
func (w *LineWriter) WriteReading(ctx context.Context, measurement string, tags []Tag, value float64) Result {
	return w.Write(ctx, Point{Measurement: measurement, Tags: tags, Value: value})
}

// Write sends p to the endpoint. Any 2xx response is a success; a non-2xx
// status, a timeout or a transport error is a failure. Failures are logged.
func (w *LineWriter) Write(ctx context.Context, p Point) Result {
	line := p.Line()
	log := w.logger.With().Str("measurement", p.Measurement).Float64("value", p.Value).Logger()

	if w.endpoint == "" {
		return Result{Err: ErrDisabled}
	}

	ctx, cancel := context.WithTimeout(ctx, w.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, strings.NewReader(line))
	if err != nil {
		log.Error().Err(err).Msg("Failed to build time-series request")
		return Result{Err: err}
	}
	req.Header.Set("Authorization", "Token "+w.cfg.Token)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")

	resp, err := w.client.Do(req)
	if err != nil {
		log.Warn().Err(err).Msg("Time-series write failed")
		return Result{Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := fmt.Errorf("unexpected status %d", resp.StatusCode)
		log.Warn().Int("status_code", resp.StatusCode).Msg("Time-series write rejected")
		return Result{StatusCode: resp.StatusCode, Err: err}
	}

	w.successes.Add(1)
	log.Debug().Int("status_code", resp.StatusCode).Str("line", line).Msg("Time-series write succeeded")
	return Result{OK: true, StatusCode: resp.StatusCode}
}

// SuccessCount returns the number of successful writes since creation.
func (w *LineWriter) SuccessCount() int64 {
	return w.successes.Load()
}
