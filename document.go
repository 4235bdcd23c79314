package docstore

import (
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/xraph/docstore/id"
)

// IDField is the document key holding the identity.
const IDField = "_id"

// Operator keys understood by every backend.
const (
	OpSet = "$set"
	OpIn  = "$in"
)

// Document is the contract every stored entity satisfies. Collection is a
// property of the entity kind: it is called on the zero value and must not
// depend on field values.
type Document interface {
	Collection() string
	DocumentID() id.ID
}

// CollectionOf returns the collection name of the entity kind T.
func CollectionOf[T Document]() string {
	var zero T
	return zero.Collection()
}

// Filter selects documents. Each element is a clause; all clauses must hold.
// A clause value is either a literal (equality) or an operator document such
// as {"$in": [...]}.
type Filter = bson.D

// Update describes a partial modification, e.g. {"$set": {"title": "x"}}.
type Update = bson.D

// Projection maps field names to inclusion flags. An empty projection
// selects the whole document.
type Projection = bson.D

// Pipeline is a backend-native aggregation pipeline.
type Pipeline = []bson.D

// Eq returns a single equality clause.
func Eq(field string, value any) bson.E {
	return bson.E{Key: field, Value: value}
}

// In returns a membership clause for field. How the candidates are
// interpreted is up to the backend; see the memory package for its polarity.
func In(field string, values ...any) bson.E {
	candidates := make(bson.A, 0, len(values))
	candidates = append(candidates, values...)
	return bson.E{Key: field, Value: bson.D{{Key: OpIn, Value: candidates}}}
}

// ByID returns a filter selecting the document with the given identity.
func ByID(docID id.ID) Filter {
	return Filter{{Key: IDField, Value: docID}}
}

// Set returns an update assigning each field.
func Set(fields ...bson.E) Update {
	return Update{{Key: OpSet, Value: bson.D(fields)}}
}

// Include returns a projection selecting fields.
func Include(fields ...string) Projection {
	p := make(Projection, 0, len(fields))
	for _, f := range fields {
		p = append(p, bson.E{Key: f, Value: true})
	}
	return p
}

// Exclude marks fields as excluded in p. The only exclusion the memory
// backend honours inside an inclusion projection is IDField.
func Exclude(p Projection, fields ...string) Projection {
	for _, f := range fields {
		p = append(p, bson.E{Key: f, Value: false})
	}
	return p
}
