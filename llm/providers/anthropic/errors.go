package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/lumik/llmwire/llm"
	"github.com/lumik/llmwire/llm/internal/transport"
)

type errorEnvelope struct {
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (p *Provider) mapError(ctx context.Context, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	var se *transport.HTTPStatusError
	if !errors.As(err, &se) {
		return err
	}

	ae := &llm.APIError{
		Provider:   llm.ProviderAnthropic,
		StatusCode: se.StatusCode,
		RequestID:  se.Header.Get("Request-Id"),
		RetryAfter: parseRetryAfter(se.Header.Get("Retry-After")),
		Raw:        append([]byte(nil), se.Body...),
		Cause:      err,
	}

	var env errorEnvelope
	if jerr := json.Unmarshal(se.Body, &env); jerr == nil && env.Error != nil {
		ae.Message = env.Error.Message
		ae.Type = env.Error.Type
	}
	if ae.Message == "" {
		ae.Message = http.StatusText(se.StatusCode)
	}
	return ae
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
