package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"persona-gateway/internal/domain"
)

const maxErrorBody = 4 << 10

// classify maps transport failures onto the upstream error classes.
// Cancellation by the caller is passed through untouched.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrUpstreamUnavailable),
		errors.Is(err, domain.ErrUpstreamTimeout),
		errors.Is(err, domain.ErrUpstreamError),
		errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", domain.ErrUpstreamTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", domain.ErrUpstreamTimeout, err)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) || errors.Is(err, syscall.ECONNREFUSED) {
		return fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}
	return fmt.Errorf("%w: %v", domain.ErrUpstreamError, err)
}

// truncateAtStop cuts text at the first stop marker. The bool reports
// whether the marker was found.
func truncateAtStop(text, marker string) (string, bool) {
	if marker == "" {
		return text, false
	}
	if i := strings.Index(text, marker); i >= 0 {
		return text[:i], true
	}
	return text, false
}

// stableAtStop is truncateAtStop for a stream still in progress: when no
// marker is present it also holds back the longest suffix that could be
// the start of one, so emitted snapshots never have to shrink.
func stableAtStop(text, marker string) (string, bool) {
	if cut, stopped := truncateAtStop(text, marker); stopped || marker == "" {
		return cut, stopped
	}
	for k := min(len(marker)-1, len(text)); k > 0; k-- {
		if strings.HasSuffix(text, marker[:k]) {
			return text[:len(text)-k], false
		}
	}
	return text, false
}

type httpTransport struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func newHTTPTransport(baseURL, apiKey string, timeout time.Duration) *httpTransport {
	return &httpTransport{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// do sends the request and returns the open response for 2xx statuses.
// The caller closes the body.
func (t *httpTransport) do(ctx context.Context, method, path string, payload any) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if t.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.apiKey)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, classify(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("%w: %s %s returned %d: %s",
			domain.ErrUpstreamError, method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return resp, nil
}

// call issues a request and decodes the JSON body into out.
func (t *httpTransport) call(ctx context.Context, method, path string, payload, out any) error {
	resp, err := t.do(ctx, method, path, payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if cerr := classify(err); !errors.Is(cerr, domain.ErrUpstreamError) {
			return cerr
		}
		return fmt.Errorf("%w: decode %s: %v", domain.ErrUpstreamError, path, err)
	}
	return nil
}

// emit delivers a snapshot unless ctx is done first.
func emit(ctx context.Context, out chan<- domain.Snapshot, snap domain.Snapshot) bool {
	select {
	case out <- snap:
		return true
	case <-ctx.Done():
		return false
	}
}
