package memory

import (
	"bytes"
	"fmt"
	"math"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/xraph/docstore"
)

// Membership selects how the $in operator is evaluated.
type Membership int

const (
	// MembershipExcludes matches when the field is present and NOT among the
	// candidates. This is the historical behaviour of this backend and the
	// default; it deliberately differs from MongoDB.
	MembershipExcludes Membership = iota

	// MembershipIncludes matches when the field is present and among the
	// candidates, as MongoDB does.
	MembershipIncludes
)

func (m Membership) String() string {
	if m == MembershipIncludes {
		return "includes"
	}
	return "excludes"
}

// matcher evaluates compiled filters against stored documents.
type matcher struct {
	membership Membership
}

// compile marshals a filter once so every document is matched against raw
// values.
func compile(filter docstore.Filter) (bson.Raw, error) {
	if filter == nil {
		filter = bson.D{}
	}
	raw, err := bson.Marshal(filter)
	if err != nil {
		return nil, fmt.Errorf("docstore/memory: encode filter: %w", err)
	}
	return raw, nil
}

// match reports whether doc satisfies every clause of filter. The first
// failing clause short-circuits. An empty filter matches everything.
func (m matcher) match(doc, filter bson.Raw) (bool, error) {
	clauses, err := filter.Elements()
	if err != nil {
		return false, fmt.Errorf("docstore/memory: decode filter: %w", err)
	}

	for _, clause := range clauses {
		key := clause.Key()
		want := clause.Value()
		field, lookupErr := doc.LookupErr(key)
		present := lookupErr == nil

		if operators, ok := want.DocumentOK(); ok && isOperatorDoc(operators) {
			ok, err := m.matchOperators(field, present, operators)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
			continue
		}

		if !present || !equal(field, want) {
			return false, nil
		}
	}
	return true, nil
}

func (m matcher) matchOperators(field bson.RawValue, present bool, operators bson.Raw) (bool, error) {
	elems, err := operators.Elements()
	if err != nil {
		return false, fmt.Errorf("docstore/memory: decode operator: %w", err)
	}

	for _, elem := range elems {
		switch op := elem.Key(); op {
		case docstore.OpIn:
			candidates, ok := elem.Value().ArrayOK()
			if !ok {
				return false, fmt.Errorf("%w: %s expects an array", docstore.ErrUnsupportedOperator, op)
			}
			if !present {
				return false, nil
			}
			values, err := candidates.Values()
			if err != nil {
				return false, fmt.Errorf("docstore/memory: decode %s: %w", op, err)
			}
			found := false
			for _, c := range values {
				if equal(field, c) {
					found = true
					break
				}
			}
			if found != (m.membership == MembershipIncludes) {
				return false, nil
			}
		default:
			return false, fmt.Errorf("%w: %s", docstore.ErrUnsupportedOperator, op)
		}
	}
	return true, nil
}

// isOperatorDoc reports whether a nested filter document is an operator
// expression ({"$in": ...}) rather than a literal sub-document.
func isOperatorDoc(doc bson.Raw) bool {
	elems, err := doc.Elements()
	if err != nil || len(elems) == 0 {
		return false
	}
	key := elems[0].Key()
	return len(key) > 0 && key[0] == '$'
}

// equal compares two BSON values. Integers compare exactly across int32 and
// int64; an integer equals a double only when the double holds that exact
// integer. Everything else compares by type and encoding.
func equal(a, b bson.RawValue) bool {
	ai, aInt := integer(a)
	bi, bInt := integer(b)
	switch {
	case aInt && bInt:
		return ai == bi
	case aInt:
		f, ok := b.DoubleOK()
		return ok && integral(f, ai)
	case bInt:
		f, ok := a.DoubleOK()
		return ok && integral(f, bi)
	}
	if x, ok := a.DoubleOK(); ok {
		y, ok := b.DoubleOK()
		return ok && (x == y || math.IsNaN(x) && math.IsNaN(y))
	}
	return a.Type == b.Type && bytes.Equal(a.Value, b.Value)
}

func integer(v bson.RawValue) (int64, bool) {
	switch v.Type {
	case bson.TypeInt32:
		return int64(v.Int32()), true
	case bson.TypeInt64:
		return v.Int64(), true
	default:
		return 0, false
	}
}

// integral reports whether f is exactly the integer n.
func integral(f float64, n int64) bool {
	if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return false
	}
	return int64(f) == n
}

func number(v bson.RawValue) (float64, bool) {
	switch v.Type {
	case bson.TypeInt32:
		return float64(v.Int32()), true
	case bson.TypeInt64:
		return float64(v.Int64()), true
	case bson.TypeDouble:
		f := v.Double()
		if math.IsNaN(f) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// truthy reports whether a projection flag selects its field.
func truthy(v bson.RawValue) bool {
	if b, ok := v.BooleanOK(); ok {
		return b
	}
	if n, ok := number(v); ok {
		return n != 0
	}
	return false
}
