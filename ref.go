package docstore

import (
	"context"

	"github.com/xraph/docstore/id"
)

// Ref is a lazy reference to a document. It holds either an identity or the
// resolved document. The first Resolve/ResolveMut loads the document through
// a Store; afterwards the cached value is returned without I/O, even if the
// stored document has changed since. A Ref is not safe for concurrent use.
//
// In BSON a Ref is stored as the referenced identity, so it can be embedded
// in other documents.
type Ref[T Document] struct {
	id  id.ID
	doc *T
}

// RefID returns an unresolved reference to the document with the given
// identity.
func RefID[T Document](docID id.ID) Ref[T] {
	return Ref[T]{id: docID}
}

// RefTo returns a resolved reference holding doc.
func RefTo[T Document](doc T) Ref[T] {
	return Ref[T]{id: doc.DocumentID(), doc: &doc}
}

// ID returns the referenced identity without querying.
func (r Ref[T]) ID() id.ID {
	if r.doc != nil {
		return (*r.doc).DocumentID()
	}
	return r.id
}

// IsZero reports whether r references nothing. It lets omitempty skip
// unset references.
func (r Ref[T]) IsZero() bool { return r.ID().IsNil() }

// Resolved reports whether the document is cached.
func (r Ref[T]) Resolved() bool { return r.doc != nil }

// Resolve returns a copy of the referenced document, loading it on first use.
func (r *Ref[T]) Resolve(ctx context.Context, s Store) (T, error) {
	doc, err := r.ResolveMut(ctx, s)
	if err != nil {
		var zero T
		return zero, err
	}
	return *doc, nil
}

// ResolveMut returns a pointer to the cached document, loading it on first
// use. Changes made through the pointer stay local to the reference.
func (r *Ref[T]) ResolveMut(ctx context.Context, s Store) (*T, error) {
	if r.doc != nil {
		return r.doc, nil
	}
	doc, err := fetch[T](ctx, s, r.id)
	if err != nil {
		return nil, err
	}
	r.doc = doc
	return r.doc, nil
}

// Owned returns the referenced document, querying only when r is not
// resolved. r itself is left untouched.
func (r Ref[T]) Owned(ctx context.Context, s Store) (T, error) {
	if r.doc != nil {
		return *r.doc, nil
	}
	doc, err := fetch[T](ctx, s, r.id)
	if err != nil {
		var zero T
		return zero, err
	}
	return *doc, nil
}

// MarshalBSONValue implements bson.ValueMarshaler.
func (r Ref[T]) MarshalBSONValue() (byte, []byte, error) {
	return r.ID().MarshalBSONValue()
}

// UnmarshalBSONValue implements bson.ValueUnmarshaler. The result is an
// unresolved reference.
func (r *Ref[T]) UnmarshalBSONValue(typ byte, data []byte) error {
	var docID id.ID
	if err := docID.UnmarshalBSONValue(typ, data); err != nil {
		return err
	}
	*r = Ref[T]{id: docID}
	return nil
}

func fetch[T Document](ctx context.Context, s Store, docID id.ID) (*T, error) {
	doc, err := FindOne[T](ctx, s, ByID(docID))
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, &DocumentNotFoundError{Collection: CollectionOf[T](), ID: docID}
	}
	return doc, nil
}
