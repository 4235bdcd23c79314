// Package mongo implements docstore.Store on the official MongoDB driver.
//
// The Store owns its *mongo.Client unless one is supplied with WithClient,
// in which case the caller owns the client lifecycle and Shutdown leaves it
// open:
//
//	import "github.com/xraph/docstore/store/mongo"
//
//	store := mongo.New(uri, "blog")
//	if err := store.Connect(ctx); err != nil { ... }
//	defer store.Shutdown(ctx)
//
// Transactions need a replica set or sharded cluster. NewTransaction fails
// against a standalone server.
package mongo
