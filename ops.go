package docstore

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/xraph/docstore/id"
)

// InsertOne stores payload in T's collection and returns the assigned
// identity.
func InsertOne[T Document](ctx context.Context, s Store, payload bson.D, tx *Tx) (id.ID, error) {
	return s.InsertOne(ctx, CollectionOf[T](), payload, tx)
}

// InsertMany stores payloads in T's collection. Atomicity of the batch is
// backend-specific; pass a Tx when all-or-nothing matters.
func InsertMany[T Document](ctx context.Context, s Store, payloads []bson.D, tx *Tx) ([]id.ID, error) {
	return s.InsertMany(ctx, CollectionOf[T](), payloads, tx)
}

// FindOne returns the first T matching filter, or nil when nothing matches.
func FindOne[T Document](ctx context.Context, s Store, filter Filter) (*T, error) {
	return FindOneProjection[T, T](ctx, s, filter, nil)
}

// FindMany returns every T matching filter. The result is empty, not nil,
// when nothing matches.
func FindMany[T Document](ctx context.Context, s Store, filter Filter) ([]T, error) {
	return FindManyProjection[T, T](ctx, s, filter, nil)
}

// FindOneProjection matches like FindOne but decodes only the projected
// fields into P.
func FindOneProjection[T Document, P any](ctx context.Context, s Store, filter Filter, projection Projection) (*P, error) {
	col := CollectionOf[T]()
	raw, err := s.FindOne(ctx, col, filter, projection)
	if err != nil || raw == nil {
		return nil, err
	}
	out, err := decode[P](col, raw)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// FindManyProjection matches like FindMany but decodes only the projected
// fields into P.
func FindManyProjection[T Document, P any](ctx context.Context, s Store, filter Filter, projection Projection) ([]P, error) {
	col := CollectionOf[T]()
	raws, err := s.FindMany(ctx, col, filter, projection)
	if err != nil {
		return nil, err
	}
	out := make([]P, 0, len(raws))
	for _, raw := range raws {
		v, err := decode[P](col, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// CountDocuments counts the T documents matching filter.
func CountDocuments[T Document](ctx context.Context, s Store, filter Filter) (int64, error) {
	return s.CountDocuments(ctx, CollectionOf[T](), filter)
}

// UpdateOne applies update to the first T matching filter.
func UpdateOne[T Document](ctx context.Context, s Store, filter Filter, update Update, tx *Tx) error {
	return s.UpdateOne(ctx, CollectionOf[T](), filter, update, tx)
}

// UpdateMany applies update to every T matching filter.
func UpdateMany[T Document](ctx context.Context, s Store, filter Filter, update Update, tx *Tx) error {
	return s.UpdateMany(ctx, CollectionOf[T](), filter, update, tx)
}

// DeleteOne removes the first T matching filter.
func DeleteOne[T Document](ctx context.Context, s Store, filter Filter, tx *Tx) error {
	return s.DeleteOne(ctx, CollectionOf[T](), filter, tx)
}

// DeleteMany removes every T matching filter.
func DeleteMany[T Document](ctx context.Context, s Store, filter Filter, tx *Tx) error {
	return s.DeleteMany(ctx, CollectionOf[T](), filter, tx)
}

// Aggregate runs pipeline over T's collection and returns the raw results.
func Aggregate[T Document](ctx context.Context, s Store, pipeline Pipeline) ([]bson.M, error) {
	col := CollectionOf[T]()
	raws, err := s.Aggregate(ctx, col, pipeline)
	if err != nil {
		return nil, err
	}
	out := make([]bson.M, 0, len(raws))
	for _, raw := range raws {
		m, err := decode[bson.M](col, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func decode[P any](collection string, raw bson.Raw) (P, error) {
	var out P
	if err := bson.Unmarshal(raw, &out); err != nil {
		return out, &DocumentNotValidError{Collection: collection, Cause: err}
	}
	return out, nil
}
