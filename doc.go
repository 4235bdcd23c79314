// Package docstore provides a backend-agnostic document store for typed
// entities. It offers a uniform CRUD and aggregate contract, transaction
// handles that can be shared across the steps of a request, lazy document
// references and a validating entity builder.
//
// docstore is designed as a library. Define entities as Go structs with bson
// tags, pick a backend, and use the generic helpers.
//
// # Quick Start
//
//	type User struct {
//	    ID       docstore.ID `bson:"_id"`
//	    Username string      `bson:"username"`
//	}
//
//	func (User) Collection() string      { return "user" }
//	func (u User) DocumentID() docstore.ID { return u.ID }
//
//	s := memory.New()
//	u, err := docstore.NewBuilder[User](s).Set("username", "ada").Build(ctx, nil)
//	found, err := docstore.FindOne[User](ctx, s, docstore.ByID(u.ID))
//
// # Backends
//
// The store/mongo package adapts the official MongoDB driver. The
// store/memory package is an in-process backend with the same equality,
// $in, $set and projection semantics, used as a test double. The store
// package opens either from a Config and wraps it in operation middleware.
//
// All identities are TypeIDs whose prefix is derived from the collection
// name, so an ID names the collection it belongs to.
package docstore
