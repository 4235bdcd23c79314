package memory

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/xraph/docstore"
	"github.com/xraph/docstore/id"
)

// Ensure Store implements docstore.Store at compile time.
var _ docstore.Store = (*Store)(nil)

// DefaultDatabaseName is reported by DatabaseName unless overridden.
const DefaultDatabaseName = "memory"

// Store is a fully in-memory implementation of docstore.Store.
// Safe for concurrent access. Intended for unit testing and development.
//
// Every collection is an ordered slice of encoded documents behind a single
// lock for the whole store. Documents are copied in and out, so callers
// never alias stored state.
//
// Differences from a real backend:
//   - $in uses MembershipExcludes unless WithMembership says otherwise.
//   - InsertMany is not atomic: a failure leaves earlier documents stored.
//   - Transactions are tracked but not isolated; writes made through a Tx
//     are visible immediately and survive Abort.
//   - Aggregate is not implemented.
type Store struct {
	mu          sync.RWMutex
	collections map[string][]bson.Raw

	name    string
	matcher matcher

	committed atomic.Int64
	aborted   atomic.Int64
}

// Option configures the Store.
type Option func(*Store)

// WithMembership selects the $in polarity.
func WithMembership(m Membership) Option {
	return func(s *Store) {
		s.matcher.membership = m
	}
}

// WithDatabaseName sets the name reported by DatabaseName.
func WithDatabaseName(name string) Option {
	return func(s *Store) {
		s.name = name
	}
}

// New returns a new empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		collections: make(map[string][]bson.Raw),
		name:        DefaultDatabaseName,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Connect is a no-op for the memory store.
func (s *Store) Connect(_ context.Context) error { return nil }

// Shutdown is a no-op for the memory store.
func (s *Store) Shutdown(_ context.Context) error { return nil }

// DatabaseName returns the configured name.
func (s *Store) DatabaseName() string { return s.name }

// Membership returns the $in polarity in use.
func (s *Store) Membership() Membership { return s.matcher.membership }

// NewTransaction returns a tracked transaction.
func (s *Store) NewTransaction(ctx context.Context) (*docstore.Tx, error) {
	return docstore.NewTx(ctx, &session{store: s})
}

// Transactions returns how many transactions were committed and aborted.
func (s *Store) Transactions() (committed, aborted int64) {
	return s.committed.Load(), s.aborted.Load()
}

// Snapshot returns copies of the documents stored in collection, in order.
func (s *Store) Snapshot(collection string) []bson.Raw {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := s.collections[collection]
	out := make([]bson.Raw, len(docs))
	for i, d := range docs {
		out[i] = clone(d)
	}
	return out
}

// Reset drops every collection.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections = make(map[string][]bson.Raw)
}

// ──────────────────────────────────────────────────
// Insert
// ──────────────────────────────────────────────────

// InsertOne stores doc with a fresh identity.
func (s *Store) InsertOne(ctx context.Context, collection string, doc bson.D, tx *docstore.Tx) (id.ID, error) {
	var docID id.ID
	err := within(ctx, tx, func() error {
		var err error
		docID, err = s.insert(collection, doc)
		return err
	})
	return docID, err
}

// InsertMany stores docs one at a time. It is not atomic: when a document
// fails, the ones before it stay stored.
func (s *Store) InsertMany(ctx context.Context, collection string, docs []bson.D, tx *docstore.Tx) ([]id.ID, error) {
	ids := make([]id.ID, 0, len(docs))
	err := within(ctx, tx, func() error {
		for _, doc := range docs {
			docID, err := s.insert(collection, doc)
			if err != nil {
				return err
			}
			ids = append(ids, docID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *Store) insert(collection string, doc bson.D) (id.ID, error) {
	for _, e := range doc {
		if e.Key == docstore.IDField {
			return id.Nil, docstore.ErrDocumentHasID
		}
	}

	docID := id.NewFor(collection)
	full := make(bson.D, 0, len(doc)+1)
	full = append(full, bson.E{Key: docstore.IDField, Value: docID})
	full = append(full, doc...)

	raw, err := marshal(full)
	if err != nil {
		return id.Nil, &docstore.DocumentNotValidError{Collection: collection, Cause: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections[collection] = append(s.collections[collection], raw)
	return docID, nil
}

// ──────────────────────────────────────────────────
// Find / Count
// ──────────────────────────────────────────────────

// FindOne returns the first match reduced by projection, or nil.
func (s *Store) FindOne(_ context.Context, collection string, filter docstore.Filter, projection docstore.Projection) (bson.Raw, error) {
	found, err := s.find(collection, filter, projection, 1)
	if err != nil || len(found) == 0 {
		return nil, err
	}
	return found[0], nil
}

// FindMany returns every match reduced by projection.
func (s *Store) FindMany(_ context.Context, collection string, filter docstore.Filter, projection docstore.Projection) ([]bson.Raw, error) {
	return s.find(collection, filter, projection, 0)
}

func (s *Store) find(collection string, filter docstore.Filter, p docstore.Projection, limit int) ([]bson.Raw, error) {
	f, err := compile(filter)
	if err != nil {
		return nil, err
	}
	proj, err := compileProjection(p)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]bson.Raw, 0)
	for _, doc := range s.collections[collection] {
		ok, err := s.matcher.match(doc, f)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		projected, err := proj.apply(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, clone(projected))
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// CountDocuments counts matches with a linear scan.
func (s *Store) CountDocuments(_ context.Context, collection string, filter docstore.Filter) (int64, error) {
	f, err := compile(filter)
	if err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, doc := range s.collections[collection] {
		ok, err := s.matcher.match(doc, f)
		if err != nil {
			return 0, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}

// ──────────────────────────────────────────────────
// Update
// ──────────────────────────────────────────────────

// UpdateOne applies update to the first match.
func (s *Store) UpdateOne(ctx context.Context, collection string, filter docstore.Filter, update docstore.Update, tx *docstore.Tx) error {
	return within(ctx, tx, func() error {
		return s.update(collection, filter, update, false)
	})
}

// UpdateMany applies update to every match.
func (s *Store) UpdateMany(ctx context.Context, collection string, filter docstore.Filter, update docstore.Update, tx *docstore.Tx) error {
	return within(ctx, tx, func() error {
		return s.update(collection, filter, update, true)
	})
}

func (s *Store) update(collection string, filter docstore.Filter, update docstore.Update, many bool) error {
	f, err := compile(filter)
	if err != nil {
		return err
	}
	set, err := compileUpdate(update)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	docs := s.collections[collection]
	// Stage replacements so a failure part-way leaves the collection intact.
	staged := make(map[int]bson.Raw)
	for i, doc := range docs {
		ok, err := s.matcher.match(doc, f)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		updated, err := set.apply(doc)
		if err != nil {
			return err
		}
		staged[i] = updated
		if !many {
			break
		}
	}
	for i, doc := range staged {
		docs[i] = doc
	}
	return nil
}

// ──────────────────────────────────────────────────
// Delete
// ──────────────────────────────────────────────────

// DeleteOne removes the first positional match.
func (s *Store) DeleteOne(ctx context.Context, collection string, filter docstore.Filter, tx *docstore.Tx) error {
	return within(ctx, tx, func() error {
		return s.delete(collection, filter, false)
	})
}

// DeleteMany removes every match; survivors keep their relative order.
func (s *Store) DeleteMany(ctx context.Context, collection string, filter docstore.Filter, tx *docstore.Tx) error {
	return within(ctx, tx, func() error {
		return s.delete(collection, filter, true)
	})
}

func (s *Store) delete(collection string, filter docstore.Filter, many bool) error {
	f, err := compile(filter)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	docs, ok := s.collections[collection]
	if !ok {
		return nil
	}

	kept := make([]bson.Raw, 0, len(docs))
	removed := false
	for _, doc := range docs {
		if removed && !many {
			kept = append(kept, doc)
			continue
		}
		match, err := s.matcher.match(doc, f)
		if err != nil {
			return err
		}
		if match {
			removed = true
			continue
		}
		kept = append(kept, doc)
	}
	s.collections[collection] = slices.Clip(kept)
	return nil
}

// ──────────────────────────────────────────────────
// Aggregate
// ──────────────────────────────────────────────────

// Aggregate is not supported by the memory store.
func (s *Store) Aggregate(_ context.Context, collection string, _ docstore.Pipeline) ([]bson.Raw, error) {
	return nil, fmt.Errorf("%w: memory aggregate on %q", docstore.ErrNotImplemented, collection)
}

// ──────────────────────────────────────────────────
// helpers
// ──────────────────────────────────────────────────

// within runs fn holding tx's session for the duration of the call, so a
// finished transaction is rejected the same way a real backend rejects it.
func within(ctx context.Context, tx *docstore.Tx, fn func() error) error {
	if tx == nil {
		return fn()
	}
	return tx.Use(ctx, func(docstore.Session) error { return fn() })
}

func clone(raw bson.Raw) bson.Raw {
	return bson.Raw(bytes.Clone(raw))
}

// session is the memory side of a transaction: it only counts outcomes.
type session struct {
	store *Store
}

func (s *session) Start(_ context.Context) error { return nil }

func (s *session) Commit(_ context.Context) error {
	s.store.committed.Add(1)
	return nil
}

func (s *session) Abort(_ context.Context) error {
	s.store.aborted.Add(1)
	return nil
}
