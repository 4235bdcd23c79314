package docstore_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xraph/docstore"
)

// fakeSession records how it was finished.
type fakeSession struct {
	mu        sync.Mutex
	startErr  error
	commitErr error
	commits   int
	aborts    int
}

func (f *fakeSession) Start(context.Context) error { return f.startErr }

func (f *fakeSession) Commit(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commits++
	return f.commitErr
}

func (f *fakeSession) Abort(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aborts++
	return nil
}

func (f *fakeSession) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.commits, f.aborts
}

func newTx(t *testing.T, sess *fakeSession) *docstore.Tx {
	t.Helper()
	tx, err := docstore.NewTx(context.Background(), sess)
	if err != nil {
		t.Fatalf("NewTx: %v", err)
	}
	return tx
}

func TestTxStartFailure(t *testing.T) {
	t.Parallel()
	cause := errors.New("standalone server")

	_, err := docstore.NewTx(context.Background(), &fakeSession{startErr: cause})
	if !errors.Is(err, docstore.ErrTransaction) || !errors.Is(err, cause) {
		t.Fatalf("NewTx error = %v, want transaction error wrapping %v", err, cause)
	}
}

func TestTxTerminal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		first  func(*docstore.Tx, context.Context) error
		second func(*docstore.Tx, context.Context) error
		want   docstore.TxState
	}{
		{"commit then abort", (*docstore.Tx).Commit, (*docstore.Tx).Abort, docstore.TxCommitted},
		{"commit then commit", (*docstore.Tx).Commit, (*docstore.Tx).Commit, docstore.TxCommitted},
		{"abort then commit", (*docstore.Tx).Abort, (*docstore.Tx).Commit, docstore.TxAborted},
		{"abort then abort", (*docstore.Tx).Abort, (*docstore.Tx).Abort, docstore.TxAborted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			sess := &fakeSession{}
			tx := newTx(t, sess)
			ctx := context.Background()

			if err := tt.first(tx, ctx); err != nil {
				t.Fatalf("first call: %v", err)
			}
			if err := tt.second(tx, ctx); !errors.Is(err, docstore.ErrTransactionClosed) {
				t.Fatalf("second call = %v, want %v", err, docstore.ErrTransactionClosed)
			}
			if got := tx.State(); got != tt.want {
				t.Errorf("state = %s, want %s", got, tt.want)
			}
			if c, a := sess.counts(); c+a != 1 {
				t.Errorf("backend saw %d commits and %d aborts, want exactly one call", c, a)
			}
		})
	}
}

func TestTxFailedCommitAborts(t *testing.T) {
	t.Parallel()
	cause := errors.New("write conflict")
	tx := newTx(t, &fakeSession{commitErr: cause})

	err := tx.Commit(context.Background())
	var te *docstore.TransactionError
	if !errors.As(err, &te) || te.Op != "commit" || !errors.Is(err, cause) {
		t.Fatalf("Commit error = %v, want commit TransactionError wrapping %v", err, cause)
	}
	if tx.State() != docstore.TxAborted {
		t.Errorf("state = %s, want aborted", tx.State())
	}
}

func TestTxUseAfterFinish(t *testing.T) {
	t.Parallel()
	tx := newTx(t, &fakeSession{})
	ctx := context.Background()

	called := false
	if err := tx.Use(ctx, func(docstore.Session) error { called = true; return nil }); err != nil {
		t.Fatalf("Use: %v", err)
	}
	if !called {
		t.Fatal("Use did not call fn")
	}
	if err := tx.Abort(ctx); err != nil {
		t.Fatalf("Abort: %v", err)
	}
	err := tx.Use(ctx, func(docstore.Session) error {
		t.Error("fn ran on a finished transaction")
		return nil
	})
	if !errors.Is(err, docstore.ErrTransactionClosed) {
		t.Errorf("Use error = %v, want %v", err, docstore.ErrTransactionClosed)
	}
}

func TestTxLockHonoursContext(t *testing.T) {
	t.Parallel()
	tx := newTx(t, &fakeSession{})

	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = tx.Use(context.Background(), func(docstore.Session) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := tx.Use(ctx, func(docstore.Session) error { return nil })
	if !errors.Is(err, docstore.ErrTransaction) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Use error = %v, want transaction error wrapping deadline", err)
	}
}

func TestTxRun(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")

	tests := []struct {
		name        string
		fn          func(ctx context.Context) error
		wantErr     error
		wantCommits int
		wantAborts  int
	}{
		{"success commits", func(context.Context) error { return nil }, nil, 1, 0},
		{"error aborts", func(context.Context) error { return boom }, boom, 0, 1},
		{"fn finishing tx itself", func(ctx context.Context) error {
			return docstore.TxFromContext(ctx).Abort(ctx)
		}, docstore.ErrTransactionClosed, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			sess := &fakeSession{}
			tx := newTx(t, sess)

			err := tx.Run(context.Background(), tt.fn)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("Run: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("Run error = %v, want %v", err, tt.wantErr)
			}
			if c, a := sess.counts(); c != tt.wantCommits || a != tt.wantAborts {
				t.Errorf("commits, aborts = %d, %d; want %d, %d", c, a, tt.wantCommits, tt.wantAborts)
			}
		})
	}
}

func TestTxRunCancelledAborts(t *testing.T) {
	t.Parallel()
	sess := &fakeSession{}
	tx := newTx(t, sess)

	ctx, cancel := context.WithCancel(context.Background())
	err := tx.Run(ctx, func(context.Context) error {
		cancel()
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run error = %v, want %v", err, context.Canceled)
	}
	if c, a := sess.counts(); c != 0 || a != 1 {
		t.Errorf("commits, aborts = %d, %d; want 0, 1", c, a)
	}
}

func TestTxRunPanicAborts(t *testing.T) {
	t.Parallel()
	sess := &fakeSession{}
	tx := newTx(t, sess)

	defer func() {
		if r := recover(); r != "kaboom" {
			t.Fatalf("recovered %v, want kaboom", r)
		}
		if c, a := sess.counts(); c != 0 || a != 1 {
			t.Errorf("commits, aborts = %d, %d; want 0, 1", c, a)
		}
		if tx.State() != docstore.TxAborted {
			t.Errorf("state = %s, want aborted", tx.State())
		}
	}()

	_ = tx.Run(context.Background(), func(context.Context) error {
		panic("kaboom")
	})
}

func TestTxContext(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	if docstore.TxFromContext(ctx) != nil {
		t.Fatal("empty context carries a transaction")
	}
	tx := newTx(t, &fakeSession{})
	if got := docstore.TxFromContext(docstore.ContextWithTx(ctx, tx)); got != tx {
		t.Errorf("TxFromContext = %p, want %p", got, tx)
	}
}
