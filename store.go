package docstore

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/xraph/docstore/id"
)

// Store is the persistence port. Every operation is keyed by a collection
// name; the generic helpers in this package (InsertOne, FindOne, ...) derive
// it from the entity kind and handle decoding, so application code rarely
// calls a Store method directly.
//
// Mutating operations take an optional *Tx. When it is nil the operation is
// stand-alone and immediately visible; otherwise it runs inside the
// transaction's session.
type Store interface {
	// Connect opens the backend connection. It is a no-op when already
	// connected.
	Connect(ctx context.Context) error

	// Shutdown closes the backend connection. It is a no-op when not
	// connected.
	Shutdown(ctx context.Context) error

	// DatabaseName returns the configured database name.
	DatabaseName() string

	// NewTransaction starts a transaction eagerly.
	NewTransaction(ctx context.Context) (*Tx, error)

	// InsertOne stores doc with a freshly assigned identity and returns it.
	// doc must not contain IDField.
	InsertOne(ctx context.Context, collection string, doc bson.D, tx *Tx) (id.ID, error)

	// InsertMany stores docs and returns their identities in order.
	InsertMany(ctx context.Context, collection string, docs []bson.D, tx *Tx) ([]id.ID, error)

	// FindOne returns the first document matching filter, reduced by
	// projection, or nil when nothing matches.
	FindOne(ctx context.Context, collection string, filter Filter, projection Projection) (bson.Raw, error)

	// FindMany returns every document matching filter, reduced by projection.
	FindMany(ctx context.Context, collection string, filter Filter, projection Projection) ([]bson.Raw, error)

	// CountDocuments returns the number of documents matching filter.
	CountDocuments(ctx context.Context, collection string, filter Filter) (int64, error)

	// UpdateOne applies update to the first match. No match is not an error.
	UpdateOne(ctx context.Context, collection string, filter Filter, update Update, tx *Tx) error

	// UpdateMany applies update to every match.
	UpdateMany(ctx context.Context, collection string, filter Filter, update Update, tx *Tx) error

	// DeleteOne removes the first match. No match is not an error.
	DeleteOne(ctx context.Context, collection string, filter Filter, tx *Tx) error

	// DeleteMany removes every match.
	DeleteMany(ctx context.Context, collection string, filter Filter, tx *Tx) error

	// Aggregate runs a backend-native pipeline.
	Aggregate(ctx context.Context, collection string, pipeline Pipeline) ([]bson.Raw, error)
}

// Session is the backend side of a transaction. Tx serialises access to it.
type Session interface {
	// Start begins the backend transaction.
	Start(ctx context.Context) error

	// Commit makes the transaction's writes durable and ends the session.
	Commit(ctx context.Context) error

	// Abort discards the transaction's writes and ends the session.
	Abort(ctx context.Context) error
}
