package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/spacesedan/sentiboard/internal/models"
)

// httpResult is a completed exchange: the status and the raw body.
type httpResult struct {
	status int
	body   []byte
}

func (r httpResult) ok() bool {
	return r.status >= 200 && r.status < 300
}

// serverError extracts the {"error": "..."} message the oracle and store use.
func (r httpResult) serverError() string {
	var e models.ErrorResponse
	if err := json.Unmarshal(r.body, &e); err != nil {
		return ""
	}
	return e.Error
}

// doJSON performs a single request, encoding input as JSON when non-nil.
func doJSON(ctx context.Context, client *http.Client, method, endpoint string, input any) (httpResult, error) {
	var body io.Reader
	if input != nil {
		raw, err := json.Marshal(input)
		if err != nil {
			return httpResult{}, fmt.Errorf("failed to marshal input: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return httpResult{}, fmt.Errorf("failed to build request: %w", err)
	}
	if input != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", USER_AGENT)

	resp, err := client.Do(req)
	if err != nil {
		return httpResult{}, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return httpResult{status: resp.StatusCode}, fmt.Errorf("failed to read response: %w", err)
	}
	return httpResult{status: resp.StatusCode, body: respBody}, nil
}

func decodeBody(endpoint string, res httpResult, output any, log *slog.Logger) error {
	if err := json.Unmarshal(res.body, output); err != nil {
		log.Error("[Clients] Failed to unmarshal response",
			slog.String("endpoint", endpoint),
			slog.String("error", err.Error()),
			getPreview(res.body),
			slog.Int("raw_response_length", len(res.body)))
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

func getPreview(respBody []byte) slog.Attr {
	raw := string(respBody)
	if len(raw) > 50 {
		raw = raw[:50]
	}
	return slog.String("raw_response", raw)
}

func errMsg(err error, res httpResult) string {
	if err != nil {
		return err.Error()
	}
	if res.status != 0 {
		return fmt.Sprintf("status code %d", res.status)
	}
	return "unknown error"
}
