// Package cadvisor relays the text exposition of an external container
// resource exporter. The exporter is opaque: its body is returned verbatim.
package cadvisor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fllarpy/apm-greeter/domain/metrics"
)

// maxBodyBytes caps how much of the collaborator's response is relayed.
const maxBodyBytes = 16 << 20

// Fetcher performs single, bounded fetches from the collaborator. No retries.
type Fetcher struct {
	client  *http.Client
	url     string
	timeout time.Duration
}

// NewFetcher returns a Fetcher for url. A nil client selects http.DefaultClient.
func NewFetcher(client *http.Client, url string, timeout time.Duration) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &Fetcher{client: client, url: url, timeout: timeout}
}

// Fetch returns the collaborator's body. Network errors, timeouts and non-2xx
// responses all wrap metrics.ErrCollaboratorUnavailable.
func (f *Fetcher) Fetch(ctx context.Context) ([]byte, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", metrics.ErrCollaboratorUnavailable, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", metrics.ErrCollaboratorUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: unexpected status %d", metrics.ErrCollaboratorUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", metrics.ErrCollaboratorUnavailable, err)
	}
	return body, nil
}
