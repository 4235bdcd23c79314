package docstore

import "github.com/xraph/docstore/id"

// ID is the identity of every stored document.
type ID = id.ID

// Prefix identifies the collection encoded in an ID.
type Prefix = id.Prefix
