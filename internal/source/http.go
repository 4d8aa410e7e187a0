package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ratefeed/internal/query"
)

var _ Source = (*HTTPSource)(nil)

// DefaultMaxBodyBytes caps a response body when no limit is configured.
const DefaultMaxBodyBytes int64 = 8 << 20

// ErrResponseTooLarge is returned when a response body exceeds the configured limit.
var ErrResponseTooLarge = errors.New("rates source response too large")

// HTTPSource fetches rows from an HTTP endpoint that mirrors the provider's query contract.
// The endpoint answers with a JSON array of rows, or an object with a "rows" array.
type HTTPSource struct {
	baseURL string
	path    string
	maxBody int64
	client  *http.Client
}

// NewHTTPSource creates a new HTTPSource. A non-positive maxBodyBytes selects DefaultMaxBodyBytes.
func NewHTTPSource(baseURL, path string, timeoutSec int, maxBodyBytes int64) *HTTPSource {
	if path == "" {
		path = "/exchange_rates"
	}
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	return &HTTPSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		path:    path,
		maxBody: maxBodyBytes,
		client:  &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
	}
}

type rowsEnvelope struct {
	Rows []Row `json:"rows"`
}

// Query issues a single GET with the request params; there is no retry.
func (s *HTTPSource) Query(ctx context.Context, req query.Request) (Cursor, error) {
	reqURL := s.baseURL + s.path + "?" + req.Encode()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("rates source request creation failed: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("rates source request failed: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("rates source returned status %d: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("read rates source response: %w", err)
	}
	if int64(len(body)) > s.maxBody {
		return nil, fmt.Errorf("%w: over %d bytes", ErrResponseTooLarge, s.maxBody)
	}

	rows, err := decodeRows(body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode rates source response: %w", err)
	}
	return NewSliceCursor(rows), nil
}

func decodeRows(body []byte) ([]Row, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()

	if trimmed[0] == '[' {
		var rows []Row
		if err := dec.Decode(&rows); err != nil {
			return nil, err
		}
		return rows, nil
	}

	var env rowsEnvelope
	if err := dec.Decode(&env); err != nil {
		return nil, err
	}
	return env.Rows, nil
}
