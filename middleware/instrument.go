package middleware

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/xraph/docstore"
	"github.com/xraph/docstore/id"
)

// Operation names passed in Op.Name.
const (
	OpConnect        = "connect"
	OpShutdown       = "shutdown"
	OpNewTransaction = "new_transaction"
	OpInsertOne      = "insert_one"
	OpInsertMany     = "insert_many"
	OpFindOne        = "find_one"
	OpFindMany       = "find_many"
	OpCountDocuments = "count_documents"
	OpUpdateOne      = "update_one"
	OpUpdateMany     = "update_many"
	OpDeleteOne      = "delete_one"
	OpDeleteMany     = "delete_many"
	OpAggregate      = "aggregate"
)

// Instrument returns a docstore.Store that runs every call on s through
// Chain(mws...). With no middleware s is returned unchanged.
func Instrument(s docstore.Store, mws ...Middleware) docstore.Store {
	if len(mws) == 0 {
		return s
	}
	return &instrumented{next: s, mw: Chain(mws...)}
}

var _ docstore.Store = (*instrumented)(nil)

type instrumented struct {
	next docstore.Store
	mw   Middleware
}

// Unwrap returns the decorated store.
func (i *instrumented) Unwrap() docstore.Store { return i.next }

func (i *instrumented) run(ctx context.Context, op Op, fn Handler) error {
	return i.mw(ctx, op, fn)
}

func (i *instrumented) Connect(ctx context.Context) error {
	return i.run(ctx, Op{Name: OpConnect}, i.next.Connect)
}

func (i *instrumented) Shutdown(ctx context.Context) error {
	return i.run(ctx, Op{Name: OpShutdown}, i.next.Shutdown)
}

func (i *instrumented) DatabaseName() string { return i.next.DatabaseName() }

func (i *instrumented) NewTransaction(ctx context.Context) (*docstore.Tx, error) {
	var tx *docstore.Tx
	err := i.run(ctx, Op{Name: OpNewTransaction}, func(ctx context.Context) error {
		var err error
		tx, err = i.next.NewTransaction(ctx)
		return err
	})
	return tx, err
}

func (i *instrumented) InsertOne(ctx context.Context, collection string, doc bson.D, tx *docstore.Tx) (id.ID, error) {
	var docID id.ID
	err := i.run(ctx, Op{Name: OpInsertOne, Collection: collection, Tx: tx}, func(ctx context.Context) error {
		var err error
		docID, err = i.next.InsertOne(ctx, collection, doc, tx)
		return err
	})
	return docID, err
}

func (i *instrumented) InsertMany(ctx context.Context, collection string, docs []bson.D, tx *docstore.Tx) ([]id.ID, error) {
	var ids []id.ID
	err := i.run(ctx, Op{Name: OpInsertMany, Collection: collection, Tx: tx}, func(ctx context.Context) error {
		var err error
		ids, err = i.next.InsertMany(ctx, collection, docs, tx)
		return err
	})
	return ids, err
}

func (i *instrumented) FindOne(ctx context.Context, collection string, filter docstore.Filter, projection docstore.Projection) (bson.Raw, error) {
	var raw bson.Raw
	err := i.run(ctx, Op{Name: OpFindOne, Collection: collection}, func(ctx context.Context) error {
		var err error
		raw, err = i.next.FindOne(ctx, collection, filter, projection)
		return err
	})
	return raw, err
}

func (i *instrumented) FindMany(ctx context.Context, collection string, filter docstore.Filter, projection docstore.Projection) ([]bson.Raw, error) {
	var raws []bson.Raw
	err := i.run(ctx, Op{Name: OpFindMany, Collection: collection}, func(ctx context.Context) error {
		var err error
		raws, err = i.next.FindMany(ctx, collection, filter, projection)
		return err
	})
	return raws, err
}

func (i *instrumented) CountDocuments(ctx context.Context, collection string, filter docstore.Filter) (int64, error) {
	var n int64
	err := i.run(ctx, Op{Name: OpCountDocuments, Collection: collection}, func(ctx context.Context) error {
		var err error
		n, err = i.next.CountDocuments(ctx, collection, filter)
		return err
	})
	return n, err
}

func (i *instrumented) UpdateOne(ctx context.Context, collection string, filter docstore.Filter, update docstore.Update, tx *docstore.Tx) error {
	return i.run(ctx, Op{Name: OpUpdateOne, Collection: collection, Tx: tx}, func(ctx context.Context) error {
		return i.next.UpdateOne(ctx, collection, filter, update, tx)
	})
}

func (i *instrumented) UpdateMany(ctx context.Context, collection string, filter docstore.Filter, update docstore.Update, tx *docstore.Tx) error {
	return i.run(ctx, Op{Name: OpUpdateMany, Collection: collection, Tx: tx}, func(ctx context.Context) error {
		return i.next.UpdateMany(ctx, collection, filter, update, tx)
	})
}

func (i *instrumented) DeleteOne(ctx context.Context, collection string, filter docstore.Filter, tx *docstore.Tx) error {
	return i.run(ctx, Op{Name: OpDeleteOne, Collection: collection, Tx: tx}, func(ctx context.Context) error {
		return i.next.DeleteOne(ctx, collection, filter, tx)
	})
}

func (i *instrumented) DeleteMany(ctx context.Context, collection string, filter docstore.Filter, tx *docstore.Tx) error {
	return i.run(ctx, Op{Name: OpDeleteMany, Collection: collection, Tx: tx}, func(ctx context.Context) error {
		return i.next.DeleteMany(ctx, collection, filter, tx)
	})
}

func (i *instrumented) Aggregate(ctx context.Context, collection string, pipeline docstore.Pipeline) ([]bson.Raw, error) {
	var raws []bson.Raw
	err := i.run(ctx, Op{Name: OpAggregate, Collection: collection}, func(ctx context.Context) error {
		var err error
		raws, err = i.next.Aggregate(ctx, collection, pipeline)
		return err
	})
	return raws, err
}
