package jupiter

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"solana-threshold-trader/internal/retry"
)

// ErrNotTradable is reported when the aggregator has no viable route.
// Callers skip the asset for the cycle instead of retrying.
var ErrNotTradable = errors.New("not tradable")

// Aggregator error codes meaning no route exists.
var notTradableCodes = map[string]bool{
	"COULD_NOT_FIND_ANY_ROUTE": true,
	"NO_ROUTES_FOUND":          true,
	"TOKEN_NOT_TRADABLE":       true,
}

// Phrases matched when the response carries no known code, including unknown codes.
var notTradablePhrases = []string{"no route", "not tradable", "liquidity"}

// RemoteError is a non-success response from the aggregator.
// It unwraps to retry.ErrRateLimited on 429 and to ErrNotTradable when no route exists.
type RemoteError struct {
	Op          string
	StatusCode  int
	Code        string
	Message     string
	NotTradable bool
}

func (e *RemoteError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: status %d", e.Op, e.StatusCode)
	if e.Code != "" {
		fmt.Fprintf(&b, " (%s)", e.Code)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	return b.String()
}

func (e *RemoteError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusTooManyRequests:
		return retry.ErrRateLimited
	case e.NotTradable:
		return ErrNotTradable
	default:
		return nil
	}
}

// errorBody is the aggregator's error payload.
type errorBody struct {
	Error     string `json:"error"`
	ErrorCode string `json:"errorCode"`
	Message   string `json:"message"`
}

func newRemoteError(op string, status int, body []byte) *RemoteError {
	e := &RemoteError{Op: op, StatusCode: status}

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		e.Code = eb.ErrorCode
		e.Message = eb.Error
		if e.Message == "" {
			e.Message = eb.Message
		}
	} else {
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		e.Message = strings.TrimSpace(string(body))
	}

	if status != http.StatusTooManyRequests {
		e.NotTradable = isNotTradable(e.Code, e.Message)
	}
	return e
}

func isNotTradable(code, message string) bool {
	if notTradableCodes[code] {
		return true
	}
	msg := strings.ToLower(message)
	for _, phrase := range notTradablePhrases {
		if strings.Contains(msg, phrase) {
			return true
		}
	}
	return false
}
