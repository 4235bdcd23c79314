package docstore

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/xraph/docstore/id"
)

// TxState is the lifecycle state of a transaction.
type TxState int

const (
	TxActive TxState = iota
	TxCommitted
	TxAborted
)

func (s TxState) String() string {
	switch s {
	case TxActive:
		return "active"
	case TxCommitted:
		return "committed"
	case TxAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Tx is a transaction handle shared by pointer across the steps of one
// logical request. Access to the backend session is exclusive and held for
// one backend call at a time (see Use). Exactly one of Commit or Abort
// succeeds; any later call returns ErrTransactionClosed.
type Tx struct {
	id      id.ID
	session Session
	lock    *semaphore.Weighted

	mu    sync.Mutex
	state TxState
}

// NewTx starts the backend transaction on session and wraps it. Backends call
// this from Store.NewTransaction.
func NewTx(ctx context.Context, session Session) (*Tx, error) {
	if err := session.Start(ctx); err != nil {
		return nil, &TransactionError{Op: "start", Cause: err}
	}
	return &Tx{
		id:      id.New("tx"),
		session: session,
		lock:    semaphore.NewWeighted(1),
	}, nil
}

// ID identifies the transaction in logs.
func (t *Tx) ID() id.ID { return t.id }

// State returns the current lifecycle state.
func (t *Tx) State() TxState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Use runs fn with exclusive access to the session. The lock is released as
// soon as fn returns, so fn must be a single backend call. Waiting for the
// lock honours ctx.
func (t *Tx) Use(ctx context.Context, fn func(Session) error) error {
	if err := t.acquire(ctx); err != nil {
		return err
	}
	defer t.lock.Release(1)

	if t.State() != TxActive {
		return ErrTransactionClosed
	}
	return fn(t.session)
}

// Commit commits the transaction. A failed commit still ends the session;
// the handle moves to TxAborted and the error is returned.
func (t *Tx) Commit(ctx context.Context) error {
	return t.finish(ctx, "commit", TxCommitted, Session.Commit)
}

// Abort aborts the transaction.
func (t *Tx) Abort(ctx context.Context) error {
	return t.finish(ctx, "abort", TxAborted, Session.Abort)
}

// Run executes fn inside the transaction and finalises it exactly once:
// commit when fn returns nil and ctx is still live, abort on error,
// cancellation, or panic. A panic is re-raised after the abort.
func (t *Tx) Run(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	done := false
	defer func() {
		if done {
			return
		}
		r := recover()
		abortErr := t.Abort(context.WithoutCancel(ctx))
		if r != nil {
			panic(r)
		}
		if abortErr != nil && !errors.Is(abortErr, ErrTransactionClosed) {
			err = errors.Join(err, abortErr)
		}
	}()

	if err = fn(ContextWithTx(ctx, t)); err != nil {
		return err
	}
	if err = ctx.Err(); err != nil {
		return err
	}
	if err = t.Commit(ctx); err != nil {
		return err
	}
	done = true
	return nil
}

func (t *Tx) acquire(ctx context.Context) error {
	if err := t.lock.Acquire(ctx, 1); err != nil {
		return &TransactionError{Op: "lock", Cause: err}
	}
	return nil
}

func (t *Tx) finish(ctx context.Context, op string, target TxState, call func(Session, context.Context) error) error {
	if err := t.acquire(ctx); err != nil {
		return err
	}
	defer t.lock.Release(1)

	t.mu.Lock()
	if t.state != TxActive {
		t.mu.Unlock()
		return ErrTransactionClosed
	}
	t.mu.Unlock()

	err := call(t.session, ctx)

	t.mu.Lock()
	t.state = target
	if err != nil {
		t.state = TxAborted
	}
	t.mu.Unlock()

	if err != nil {
		return &TransactionError{Op: op, Cause: err}
	}
	return nil
}

// WithTransaction starts a transaction on s and runs fn inside it with
// Tx.Run semantics.
func WithTransaction(ctx context.Context, s Store, fn func(ctx context.Context, tx *Tx) error) error {
	tx, err := s.NewTransaction(ctx)
	if err != nil {
		return err
	}
	return tx.Run(ctx, func(ctx context.Context) error {
		return fn(ctx, tx)
	})
}
