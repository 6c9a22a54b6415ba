package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"makab-backend/internal/log"
	"makab-backend/internal/models"
)

// Completer turns an assembled prompt into the assistant's reply.
type Completer interface {
	Complete(ctx context.Context, messages []models.ChatTurn) (string, error)
}

// CompletionService applies the call policy around a provider: a bounded
// number of in-flight calls, an overall deadline, and retries with
// exponential backoff for transient failures.
type CompletionService struct {
	provider   Completer
	timeout    time.Duration
	maxRetries int
	retryWait  time.Duration
	rateChan   chan struct{} // Token bucket
}

func NewCompletionService(provider Completer, timeout time.Duration, maxRetries, concurrentReqs int) *CompletionService {
	if concurrentReqs <= 0 {
		concurrentReqs = 1
	}
	if maxRetries < 0 {
		maxRetries = 0
	}

	// Token bucket for provider concurrency
	rateChan := make(chan struct{}, concurrentReqs)
	for i := 0; i < concurrentReqs; i++ {
		rateChan <- struct{}{}
	}

	return &CompletionService{
		provider:   provider,
		timeout:    timeout,
		maxRetries: maxRetries,
		retryWait:  500 * time.Millisecond,
		rateChan:   rateChan,
	}
}

// acquireRate blocks until a provider slot is available
func (s *CompletionService) acquireRate(ctx context.Context) error {
	select {
	case <-s.rateChan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *CompletionService) releaseRate() {
	s.rateChan <- struct{}{}
}

func (s *CompletionService) Complete(ctx context.Context, messages []models.ChatTurn) (string, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	if err := s.acquireRate(ctx); err != nil {
		return "", contextError(err)
	}
	defer s.releaseRate()

	var reply string
	attempt := 0
	operation := func() error {
		attempt++
		out, err := s.provider.Complete(ctx, messages)
		if err != nil {
			var perr *ProviderError
			if errors.As(err, &perr) && !perr.Retryable() {
				return backoff.Permanent(err)
			}
			return err
		}
		reply = out
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.retryWait
	policy.MaxElapsedTime = 0

	notify := func(err error, wait time.Duration) {
		log.Warnw("completion attempt failed, retrying", "attempt", attempt, "wait", wait.String(), "error", err)
	}

	err := backoff.RetryNotify(operation, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(s.maxRetries)), ctx), notify)
	if err != nil {
		var perr *ProviderError
		if errors.As(err, &perr) {
			return "", perr
		}
		if ctxErr := contextError(err); ctxErr != err {
			return "", ctxErr
		}
		return "", &ProviderError{Kind: ProviderTransport, Err: fmt.Errorf("after %d attempts: %w", attempt, err)}
	}
	return reply, nil
}

// contextError converts context expiry into a ProviderError and leaves other
// errors untouched.
func contextError(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &ProviderError{Kind: ProviderTimeout, Err: err}
	case errors.Is(err, context.Canceled):
		return &ProviderError{Kind: ProviderCanceled, Err: err}
	}
	return err
}
