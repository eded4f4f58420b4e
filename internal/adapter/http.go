package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/kenjobs/jobsync/internal/model"
)

// maxBodyBytes caps provider response bodies.
const maxBodyBytes = 8 << 20

// parseRetryAfter parses the Retry-After header value into a duration.
// Supports seconds format (e.g. "120"). Returns zero if absent or unparseable.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	seconds, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

// getJSON performs req and decodes a 200 response body into dst. Failures are
// returned as *model.SourceError classified as timeout, HTTP or malformed.
func getJSON(client *http.Client, source string, req *http.Request, dst any) error {
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return classifyTransport(req.Context(), source, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &model.SourceError{
			Source:     source,
			Kind:       model.KindHTTP,
			StatusCode: resp.StatusCode,
			Err: &model.HTTPError{
				StatusCode: resp.StatusCode,
				RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
				Err:        fmt.Errorf("unexpected status %d: %s", resp.StatusCode, snippet),
			},
		}
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(dst); err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return classifyTransport(req.Context(), source, ctxErr)
		}
		return &model.SourceError{Source: source, Kind: model.KindMalformed, Err: err}
	}
	return nil
}

func classifyTransport(ctx context.Context, source string, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &model.SourceError{Source: source, Kind: model.KindTimeout, Err: err}
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return &model.SourceError{Source: source, Kind: model.KindTransport, Err: ctx.Err()}
	}
	return &model.SourceError{Source: source, Kind: model.KindTransport, Err: err}
}

func newGet(ctx context.Context, source, rawURL string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &model.SourceError{Source: source, Kind: model.KindTransport, Err: err}
	}
	return req, nil
}
