package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dukex/wayflow/pkg/models"
	"github.com/dukex/wayflow/pkg/protocol"
)

// invoke calls the handler under the node's runtime policy: each attempt is
// bounded by timeout_ms, and failed attempts are retried retry.max times
// with a constant retry.delay_ms pause. It returns the attempt count.
func (e *Engine) invoke(ctx context.Context, handler protocol.NodeHandler, node *models.WorkflowNode, record *models.ExecutionRecord) (protocol.Outcome, int, error) {
	var (
		outcome  protocol.Outcome
		attempts int
	)

	operation := func() error {
		attempts++

		if attempts > 1 {
			e.metrics.NodeRetried(string(node.Type))
		}

		out, err := e.processOnce(ctx, handler, node, record)
		if err != nil {
			return err
		}

		outcome = out

		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(node.RetryDelay()), uint64(node.MaxRetries())),
		ctx,
	)

	err := backoff.RetryNotify(operation, policy, func(err error, wait time.Duration) {
		e.logger.WarnContext(ctx, "Retrying node",
			"execution_id", record.ID,
			"node_id", node.ID,
			"attempt", attempts,
			"wait", wait,
			"error", err,
		)
	})

	return outcome, attempts, err
}

type processResult struct {
	outcome protocol.Outcome
	err     error
}

// processOnce runs one attempt. With a timeout the handler gets a
// deadline-bearing context and a snapshot of the record, and the engine
// stops waiting at the deadline even if the handler ignores it.
func (e *Engine) processOnce(ctx context.Context, handler protocol.NodeHandler, node *models.WorkflowNode, record *models.ExecutionRecord) (protocol.Outcome, error) {
	timeout := node.Timeout()
	if timeout <= 0 {
		return safeProcess(ctx, handler, node, record)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	snapshot := record.Clone()
	done := make(chan processResult, 1)

	go func() {
		outcome, err := safeProcess(timeoutCtx, handler, node, snapshot)
		done <- processResult{outcome: outcome, err: err}
	}()

	select {
	case result := <-done:
		if result.err != nil && ctx.Err() == nil && errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) {
			return protocol.Outcome{}, fmt.Errorf("%w after %s: %w", ErrHandlerTimeout, timeout, result.err)
		}

		return result.outcome, result.err
	case <-timeoutCtx.Done():
		if ctx.Err() != nil {
			return protocol.Outcome{}, ctx.Err()
		}

		return protocol.Outcome{}, fmt.Errorf("%w after %s", ErrHandlerTimeout, timeout)
	}
}

func safeProcess(ctx context.Context, handler protocol.NodeHandler, node *models.WorkflowNode, record *models.ExecutionRecord) (outcome protocol.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()

	return handler.Process(ctx, node, record)
}
