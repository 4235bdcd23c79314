package docstore

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/xraph/docstore/id"
)

// Builder accumulates the fields of a new T and persists it on Build.
//
// The fields of T are read from its bson struct tags: every field except
// IDField and "-" is required, unless tagged omitempty. Build fails on the
// first missing required field without touching the store.
type Builder[T Document] struct {
	store  Store
	order  []string
	values map[string]any
}

// NewBuilder returns an empty builder persisting through s.
func NewBuilder[T Document](s Store) *Builder[T] {
	return &Builder[T]{store: s, values: make(map[string]any)}
}

// Set records value for field. Setting a field twice keeps the last value.
func (b *Builder[T]) Set(field string, value any) *Builder[T] {
	if _, ok := b.values[field]; !ok {
		b.order = append(b.order, field)
	}
	b.values[field] = value
	return b
}

// Has reports whether field has been set.
func (b *Builder[T]) Has(field string) bool {
	_, ok := b.values[field]
	return ok
}

// Build validates the accumulated fields, inserts the document, and returns
// it populated with the assigned identity. Insert errors are returned as the
// store produced them.
func (b *Builder[T]) Build(ctx context.Context, tx *Tx) (T, error) {
	var zero T
	col := CollectionOf[T]()

	payload, err := b.payload(col)
	if err != nil {
		return zero, err
	}

	// Decode before inserting so type mismatches never reach the store.
	if _, err := b.materialize(col, id.Nil, payload); err != nil {
		return zero, err
	}

	docID, err := b.store.InsertOne(ctx, col, payload, tx)
	if err != nil {
		return zero, err
	}
	return b.materialize(col, docID, payload)
}

func (b *Builder[T]) payload(col string) (bson.D, error) {
	fields := fieldsOf(reflect.TypeFor[T]())

	known := make(map[string]struct{}, len(fields))
	payload := make(bson.D, 0, len(fields))
	for _, f := range fields {
		known[f.name] = struct{}{}
		v, ok := b.values[f.name]
		if !ok {
			if f.required {
				return nil, &DocumentNotValidError{Collection: col, Field: f.name}
			}
			continue
		}
		payload = append(payload, bson.E{Key: f.name, Value: v})
	}

	for _, name := range b.order {
		if name == IDField {
			return nil, ErrDocumentHasID
		}
		if _, ok := known[name]; !ok {
			return nil, &DocumentNotValidError{Collection: col, Cause: fmt.Errorf("unknown field `%s`", name)}
		}
	}
	return payload, nil
}

func (b *Builder[T]) materialize(col string, docID id.ID, payload bson.D) (T, error) {
	full := make(bson.D, 0, len(payload)+1)
	full = append(full, bson.E{Key: IDField, Value: docID})
	full = append(full, payload...)

	raw, err := bson.Marshal(full)
	if err != nil {
		var zero T
		return zero, &DocumentNotValidError{Collection: col, Cause: err}
	}
	return decode[T](col, raw)
}

type fieldSpec struct {
	name     string
	required bool
}

var fieldCache sync.Map // reflect.Type -> []fieldSpec

// fieldsOf lists the bson keys of struct type t in declaration order,
// excluding IDField. Fields of structs embedded with the inline option are
// listed in place of the embedding field.
func fieldsOf(key reflect.Type) []fieldSpec {
	if cached, ok := fieldCache.Load(key); ok {
		return cached.([]fieldSpec)
	}

	t := key
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	var fields []fieldSpec
	if t.Kind() == reflect.Struct {
		for i := 0; i < t.NumField(); i++ {
			sf := t.Field(i)
			if !sf.IsExported() {
				continue
			}
			name, opts, _ := strings.Cut(sf.Tag.Get("bson"), ",")
			if name == "-" {
				continue
			}
			if hasOption(opts, "inline") {
				// Inlined maps collect unknown keys and name no field.
				if ft := sf.Type; ft.Kind() == reflect.Struct || ft.Kind() == reflect.Pointer && ft.Elem().Kind() == reflect.Struct {
					fields = append(fields, fieldsOf(ft)...)
				}
				continue
			}
			if name == "" {
				name = strings.ToLower(sf.Name)
			}
			if name == IDField {
				continue
			}
			fields = append(fields, fieldSpec{
				name:     name,
				required: !hasOption(opts, "omitempty"),
			})
		}
	}

	fieldCache.Store(key, fields)
	return fields
}

func hasOption(opts, want string) bool {
	for opt := range strings.SplitSeq(opts, ",") {
		if opt == want {
			return true
		}
	}
	return false
}
