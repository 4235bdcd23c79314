package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/xraph/docstore"
	"github.com/xraph/docstore/id"
)

// Ensure Store implements docstore.Store at compile time.
var _ docstore.Store = (*Store)(nil)

const backend = "mongo"

// Store is a docstore.Store backed by one shared MongoDB client.
type Store struct {
	uri    string
	dbName string
	logger *slog.Logger

	mu     sync.RWMutex
	client *mongod.Client
	owned  bool
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithClient uses an already connected client. The caller keeps ownership:
// Shutdown forgets the client without disconnecting it.
func WithClient(client *mongod.Client) Option {
	return func(s *Store) {
		s.client = client
		s.owned = false
	}
}

// New creates a MongoDB store for database dbName. Nothing is dialled until
// Connect.
func New(uri, dbName string, opts ...Option) *Store {
	s := &Store{
		uri:    uri,
		dbName: dbName,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Connect creates the client. It is a no-op when already connected.
func (s *Store) Connect(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		return nil
	}
	client, err := mongod.Connect(options.Client().ApplyURI(s.uri))
	if err != nil {
		return wrap("connect", err)
	}
	s.client = client
	s.owned = true
	s.logger.Info("docstore/mongo: connected", slog.String("database", s.dbName))
	return nil
}

// Shutdown disconnects an owned client. It is a no-op when not connected.
func (s *Store) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		return nil
	}
	client, owned := s.client, s.owned
	s.client = nil
	if !owned {
		return nil
	}
	if err := client.Disconnect(ctx); err != nil {
		return wrap("shutdown", err)
	}
	s.logger.Info("docstore/mongo: disconnected", slog.String("database", s.dbName))
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	client, err := s.connected()
	if err != nil {
		return err
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return wrap("ping", err)
	}
	return nil
}

// DatabaseName returns the configured database name.
func (s *Store) DatabaseName() string { return s.dbName }

// Client returns the underlying client, or nil before Connect.
func (s *Store) Client() *mongod.Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client
}

// EnsureIndexes creates the given indexes, keyed by collection name.
func (s *Store) EnsureIndexes(ctx context.Context, indexes map[string][]mongod.IndexModel) error {
	db, err := s.database()
	if err != nil {
		return err
	}
	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		if _, err := db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("docstore/mongo: ensure %s indexes: %w", col, err)
		}
	}
	return nil
}

// UniqueIndex returns an ascending unique index over fields.
func UniqueIndex(fields ...string) mongod.IndexModel {
	keys := make(bson.D, 0, len(fields))
	for _, f := range fields {
		keys = append(keys, bson.E{Key: f, Value: 1})
	}
	return mongod.IndexModel{Keys: keys, Options: options.Index().SetUnique(true)}
}

// ──────────────────────────────────────────────────
// Transactions
// ──────────────────────────────────────────────────

// NewTransaction starts a session and a transaction on it.
func (s *Store) NewTransaction(ctx context.Context) (*docstore.Tx, error) {
	client, err := s.connected()
	if err != nil {
		return nil, err
	}
	tx, err := docstore.NewTx(ctx, &session{client: client})
	if err != nil {
		return nil, err
	}
	s.logger.Debug("docstore/mongo: transaction started", slog.String("tx", tx.ID().String()))
	return tx, nil
}

// session adapts a driver session to docstore.Session.
type session struct {
	client *mongod.Client
	sess   *mongod.Session
}

func (s *session) Start(ctx context.Context) error {
	sess, err := s.client.StartSession()
	if err != nil {
		return wrap("start session", err)
	}
	if err := sess.StartTransaction(); err != nil {
		sess.EndSession(ctx)
		return wrap("start transaction", err)
	}
	s.sess = sess
	return nil
}

func (s *session) Commit(ctx context.Context) error {
	defer s.sess.EndSession(ctx)
	if err := s.sess.CommitTransaction(ctx); err != nil {
		return wrap("commit", err)
	}
	return nil
}

func (s *session) Abort(ctx context.Context) error {
	defer s.sess.EndSession(ctx)
	if err := s.sess.AbortTransaction(ctx); err != nil {
		return wrap("abort", err)
	}
	return nil
}

// within runs fn inside tx's session when tx is set.
func within(ctx context.Context, tx *docstore.Tx, fn func(ctx context.Context) error) error {
	if tx == nil {
		return fn(ctx)
	}
	return tx.Use(ctx, func(sess docstore.Session) error {
		ms, ok := sess.(*session)
		if !ok {
			return &docstore.TransactionError{Op: "use", Cause: fmt.Errorf("session %T does not belong to the mongo backend", sess)}
		}
		return fn(mongod.NewSessionContext(ctx, ms.sess))
	})
}

// ──────────────────────────────────────────────────
// Insert
// ──────────────────────────────────────────────────

// InsertOne stores doc under a fresh identity.
func (s *Store) InsertOne(ctx context.Context, collection string, doc bson.D, tx *docstore.Tx) (id.ID, error) {
	col, err := s.collection(collection)
	if err != nil {
		return id.Nil, err
	}
	docID, full, err := withIdentity(collection, doc)
	if err != nil {
		return id.Nil, err
	}

	err = within(ctx, tx, func(ctx context.Context) error {
		res, err := col.InsertOne(ctx, full)
		if err != nil {
			return wrap("insert one", err)
		}
		return checkIdentity(res.InsertedID, docID)
	})
	if err != nil {
		return id.Nil, err
	}
	return docID, nil
}

// InsertMany stores docs with an ordered insert. Outside a transaction the
// documents written before a failure stay written.
func (s *Store) InsertMany(ctx context.Context, collection string, docs []bson.D, tx *docstore.Tx) ([]id.ID, error) {
	col, err := s.collection(collection)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return []id.ID{}, nil
	}

	ids := make([]id.ID, 0, len(docs))
	full := make([]bson.D, 0, len(docs))
	for _, doc := range docs {
		docID, d, err := withIdentity(collection, doc)
		if err != nil {
			return nil, err
		}
		ids = append(ids, docID)
		full = append(full, d)
	}

	err = within(ctx, tx, func(ctx context.Context) error {
		res, err := col.InsertMany(ctx, full)
		if err != nil {
			return wrap("insert many", err)
		}
		if len(res.InsertedIDs) != len(ids) {
			return fmt.Errorf("%w: inserted %d of %d documents", docstore.ErrInvalidIdentity, len(res.InsertedIDs), len(ids))
		}
		for i, got := range res.InsertedIDs {
			if err := checkIdentity(got, ids[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// ──────────────────────────────────────────────────
// Find / Count / Aggregate
// ──────────────────────────────────────────────────

// FindOne returns the first match, or nil.
func (s *Store) FindOne(ctx context.Context, collection string, filter docstore.Filter, projection docstore.Projection) (bson.Raw, error) {
	col, err := s.collection(collection)
	if err != nil {
		return nil, err
	}
	opts := options.FindOne()
	if len(projection) > 0 {
		opts.SetProjection(projection)
	}

	raw, err := col.FindOne(ctx, nonNil(filter), opts).Raw()
	if err != nil {
		if isNoDocuments(err) {
			return nil, nil
		}
		return nil, wrap("find one", err)
	}
	return raw, nil
}

// FindMany returns every match in natural order.
func (s *Store) FindMany(ctx context.Context, collection string, filter docstore.Filter, projection docstore.Projection) ([]bson.Raw, error) {
	col, err := s.collection(collection)
	if err != nil {
		return nil, err
	}
	opts := options.Find()
	if len(projection) > 0 {
		opts.SetProjection(projection)
	}

	cur, err := col.Find(ctx, nonNil(filter), opts)
	if err != nil {
		return nil, wrap("find many", err)
	}
	return drain(ctx, cur, "find many")
}

// CountDocuments counts matches.
func (s *Store) CountDocuments(ctx context.Context, collection string, filter docstore.Filter) (int64, error) {
	col, err := s.collection(collection)
	if err != nil {
		return 0, err
	}
	n, err := col.CountDocuments(ctx, nonNil(filter))
	if err != nil {
		return 0, wrap("count documents", err)
	}
	return n, nil
}

// Aggregate runs pipeline on the server.
func (s *Store) Aggregate(ctx context.Context, collection string, pipeline docstore.Pipeline) ([]bson.Raw, error) {
	col, err := s.collection(collection)
	if err != nil {
		return nil, err
	}
	if pipeline == nil {
		pipeline = docstore.Pipeline{}
	}
	cur, err := col.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, wrap("aggregate", err)
	}
	return drain(ctx, cur, "aggregate")
}

// ──────────────────────────────────────────────────
// Update / Delete
// ──────────────────────────────────────────────────

// UpdateOne applies update to the first match.
func (s *Store) UpdateOne(ctx context.Context, collection string, filter docstore.Filter, update docstore.Update, tx *docstore.Tx) error {
	col, err := s.collection(collection)
	if err != nil {
		return err
	}
	return within(ctx, tx, func(ctx context.Context) error {
		if _, err := col.UpdateOne(ctx, nonNil(filter), update); err != nil {
			return wrap("update one", err)
		}
		return nil
	})
}

// UpdateMany applies update to every match.
func (s *Store) UpdateMany(ctx context.Context, collection string, filter docstore.Filter, update docstore.Update, tx *docstore.Tx) error {
	col, err := s.collection(collection)
	if err != nil {
		return err
	}
	return within(ctx, tx, func(ctx context.Context) error {
		if _, err := col.UpdateMany(ctx, nonNil(filter), update); err != nil {
			return wrap("update many", err)
		}
		return nil
	})
}

// DeleteOne removes the first match.
func (s *Store) DeleteOne(ctx context.Context, collection string, filter docstore.Filter, tx *docstore.Tx) error {
	col, err := s.collection(collection)
	if err != nil {
		return err
	}
	return within(ctx, tx, func(ctx context.Context) error {
		if _, err := col.DeleteOne(ctx, nonNil(filter)); err != nil {
			return wrap("delete one", err)
		}
		return nil
	})
}

// DeleteMany removes every match.
func (s *Store) DeleteMany(ctx context.Context, collection string, filter docstore.Filter, tx *docstore.Tx) error {
	col, err := s.collection(collection)
	if err != nil {
		return err
	}
	return within(ctx, tx, func(ctx context.Context) error {
		if _, err := col.DeleteMany(ctx, nonNil(filter)); err != nil {
			return wrap("delete many", err)
		}
		return nil
	})
}

// ── helpers ──────────────────────────────────────────────────────

func (s *Store) connected() (*mongod.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.client == nil {
		return nil, docstore.ErrNotConnected
	}
	return s.client, nil
}

func (s *Store) database() (*mongod.Database, error) {
	client, err := s.connected()
	if err != nil {
		return nil, err
	}
	return client.Database(s.dbName), nil
}

func (s *Store) collection(name string) (*mongod.Collection, error) {
	db, err := s.database()
	if err != nil {
		return nil, err
	}
	return db.Collection(name), nil
}

// withIdentity prepends a fresh identity to doc.
func withIdentity(collection string, doc bson.D) (id.ID, bson.D, error) {
	for _, e := range doc {
		if e.Key == docstore.IDField {
			return id.Nil, nil, docstore.ErrDocumentHasID
		}
	}
	docID := id.NewFor(collection)
	full := make(bson.D, 0, len(doc)+1)
	full = append(full, bson.E{Key: docstore.IDField, Value: docID})
	return docID, append(full, doc...), nil
}

// checkIdentity verifies the server echoed the identity it was given.
func checkIdentity(inserted any, want id.ID) error {
	got, ok := inserted.(string)
	if !ok || got != want.String() {
		return fmt.Errorf("%w: got %v (%T), want %s", docstore.ErrInvalidIdentity, inserted, inserted, want)
	}
	return nil
}

func drain(ctx context.Context, cur *mongod.Cursor, op string) ([]bson.Raw, error) {
	defer cur.Close(ctx)

	out := make([]bson.Raw, 0)
	for cur.Next(ctx) {
		out = append(out, bson.Raw(append([]byte(nil), cur.Current...)))
	}
	if err := cur.Err(); err != nil {
		return nil, wrap(op, err)
	}
	return out, nil
}

func nonNil(filter docstore.Filter) docstore.Filter {
	if filter == nil {
		return docstore.Filter{}
	}
	return filter
}

func wrap(op string, err error) error {
	return &docstore.BackendError{Backend: backend, Op: op, Cause: err}
}

// isNoDocuments returns true when err indicates no MongoDB documents found.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongod.ErrNoDocuments)
}
