package authsdk

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Error codes written by the server.
const (
	ErrorCodeInvalidToken      = "invalid_token"
	ErrorCodeInsufficientScope = "insufficient_scope"
	ErrorCodeRateLimited       = "rate_limit_exceeded"
	ErrorCodeServerError       = "server_error"
)

// APIError is a non-2xx response.
type APIError struct {
	StatusCode  int    `json:"-"`
	Code        string `json:"error"`
	Description string `json:"error_description"`
}

func (e *APIError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("authsdk: %d %s", e.StatusCode, e.Code)
	}
	return fmt.Sprintf("authsdk: %d %s: %s", e.StatusCode, e.Code, e.Description)
}

// parseErrorResponse maps a failed response to an *APIError. Bearer
// challenges carry no JSON body and are read from WWW-Authenticate.
func parseErrorResponse(resp *http.Response, body []byte) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	if err := json.Unmarshal(body, apiErr); err == nil && apiErr.Code != "" {
		return apiErr
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		apiErr.Code = ErrorCodeInvalidToken
		apiErr.Description = resp.Header.Get("WWW-Authenticate")
	case resp.StatusCode == http.StatusForbidden:
		apiErr.Code = ErrorCodeInsufficientScope
		apiErr.Description = resp.Header.Get("WWW-Authenticate")
	case resp.StatusCode == http.StatusTooManyRequests:
		apiErr.Code = ErrorCodeRateLimited
		apiErr.Description = "retry after " + resp.Header.Get("Retry-After") + "s"
	default:
		apiErr.Code = ErrorCodeServerError
		apiErr.Description = fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	return apiErr
}
