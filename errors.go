package wingman

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/casualjim/wingman/auth"
)

// RateLimitError reports an HTTP 429 from the API provider. RetryAfter is
// the provider's hint in seconds, zero when it did not supply one.
type RateLimitError struct {
	RetryAfter int
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited by the API, retry after %d seconds", e.RetryAfter)
	}
	return "rate limited by the API, retry later"
}

// APIError reports any other non-success status from the API provider. The
// raw body is kept for diagnostics.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("api request failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("api request failed with status %d: %s", e.StatusCode, body)
}

// checkResponse classifies a non-success response into the error taxonomy.
// It returns nil for 2xx and consumes up to a few KB of the body otherwise.
func checkResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &auth.Error{Message: "the API rejected the credentials, run `wingman login` again or check your subscription"}
	case http.StatusTooManyRequests:
		retryAfter := 0
		if v := resp.Header.Get("Retry-After"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				retryAfter = n
			}
		}
		return &RateLimitError{RetryAfter: retryAfter}
	default:
		return &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}
}
