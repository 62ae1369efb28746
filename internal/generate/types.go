package generate

import (
	"context"
	"errors"
)

// ErrEmptyResponse reports that the model answered without usable text. The
// generated message contract is "non-empty string"; anything else is a
// generation failure.
var ErrEmptyResponse = errors.New("generate: model returned empty or malformed response")

// Generator produces re-engagement text for a single prompt. Implementations
// perform exactly one outbound attempt per call; retry policy lives in the
// retry executor, not here.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// TransientError marks an error as retryable. Only rate limiting (HTTP 429)
// and transport-level failures qualify; other upstream errors propagate
// immediately.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	if e == nil || e.Err == nil {
		return "transient error"
	}
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
