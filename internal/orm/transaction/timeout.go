package transaction

import (
	"context"
	"fmt"
	"time"

	"github.com/conduit-lang/revstore/internal/orm/conn"
)

// WithTimeout runs fn in a transaction that is rolled back when it does not
// complete within timeout
func (m *Manager) WithTimeout(ctx context.Context, timeout time.Duration, fn func(ctx context.Context, exec conn.Executor) error) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := m.WithTransaction(timeoutCtx, fn)
	if err != nil {
		if timeoutCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("%w: transaction exceeded %v", ErrTransactionTimeout, timeout)
		}
		return err
	}

	return nil
}

// BeginWithTimeout starts a transaction that must be committed or rolled
// back within timeout
func (m *Manager) BeginWithTimeout(ctx context.Context, timeout time.Duration) (*Transaction, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)

	tx, err := m.Begin(timeoutCtx)
	if err != nil {
		cancel()
		return nil, err
	}

	tx.cancelFunc = cancel
	return tx, nil
}

// BeginWithDeadline starts a transaction that must complete before deadline
func (m *Manager) BeginWithDeadline(ctx context.Context, deadline time.Time) (*Transaction, error) {
	deadlineCtx, cancel := context.WithDeadline(ctx, deadline)

	tx, err := m.Begin(deadlineCtx)
	if err != nil {
		cancel()
		return nil, err
	}

	tx.cancelFunc = cancel
	return tx, nil
}
