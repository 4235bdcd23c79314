package memory

import (
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/xraph/docstore"
)

// assignment is a compiled $set clause: field values in clause order.
type assignment struct {
	keys   []string
	values map[string]bson.RawValue
}

// compileUpdate accepts update documents made of $set clauses only.
func compileUpdate(update docstore.Update) (*assignment, error) {
	if update == nil {
		update = bson.D{}
	}
	raw, err := bson.Marshal(update)
	if err != nil {
		return nil, fmt.Errorf("docstore/memory: encode update: %w", err)
	}
	ops, err := bson.Raw(raw).Elements()
	if err != nil {
		return nil, fmt.Errorf("docstore/memory: decode update: %w", err)
	}

	a := &assignment{values: make(map[string]bson.RawValue)}
	for _, op := range ops {
		if op.Key() != docstore.OpSet {
			return nil, fmt.Errorf("%w: update operator %q", docstore.ErrUnsupportedOperator, op.Key())
		}
		fields, ok := op.Value().DocumentOK()
		if !ok {
			return nil, fmt.Errorf("%w: %s expects a document", docstore.ErrUnsupportedOperator, docstore.OpSet)
		}
		elems, err := fields.Elements()
		if err != nil {
			return nil, fmt.Errorf("docstore/memory: decode %s: %w", docstore.OpSet, err)
		}
		for _, e := range elems {
			key := e.Key()
			if key == docstore.IDField {
				return nil, docstore.ErrImmutableID
			}
			if _, seen := a.values[key]; !seen {
				a.keys = append(a.keys, key)
			}
			a.values[key] = e.Value()
		}
	}
	return a, nil
}

// apply merges the assignment into doc: existing keys are overwritten in
// place, new keys are appended, every other field is untouched.
func (a *assignment) apply(doc bson.Raw) (bson.Raw, error) {
	elems, err := doc.Elements()
	if err != nil {
		return nil, fmt.Errorf("docstore/memory: decode document: %w", err)
	}

	applied := make(map[string]bool, len(a.keys))
	out := make(bson.D, 0, len(elems)+len(a.keys))
	for _, e := range elems {
		key := e.Key()
		if v, ok := a.values[key]; ok {
			out = append(out, bson.E{Key: key, Value: v})
			applied[key] = true
			continue
		}
		out = append(out, bson.E{Key: key, Value: e.Value()})
	}
	for _, key := range a.keys {
		if !applied[key] {
			out = append(out, bson.E{Key: key, Value: a.values[key]})
		}
	}
	return marshal(out)
}

func marshal(d bson.D) (bson.Raw, error) {
	b, err := bson.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("docstore/memory: encode document: %w", err)
	}
	return bson.Raw(b), nil
}
