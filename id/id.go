// Package id defines the TypeID-based identity used by every stored document.
//
// Identities are K-sortable (UUIDv7-based), globally unique, and URL-safe in
// the format "prefix_suffix". The prefix is derived from the collection the
// document lives in, so an identity read out of a log tells you where the
// document is stored.
package id

import (
	"fmt"
	"strings"

	"go.jetify.com/typeid/v2"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// Prefix identifies the entity kind encoded in a TypeID.
type Prefix string

// PrefixDocument is used when a collection name cannot be turned into a
// valid TypeID prefix.
const PrefixDocument Prefix = "doc"

// maxPrefixLen is the TypeID prefix length limit.
const maxPrefixLen = 63

// ID is the identity of a stored document. The zero value is Nil and is
// distinct from every generated identity.
//
//nolint:recvcheck // Unmarshal methods need pointer receivers.
type ID struct {
	inner typeid.TypeID
	valid bool
}

// Nil is the unset identity.
var Nil ID

// New returns a fresh identity under prefix. An invalid prefix is a
// programming error and panics; use PrefixFor to derive one safely.
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}

	return ID{inner: tid, valid: true}
}

// NewFor generates a new ID for a document stored in collection.
func NewFor(collection string) ID { return New(PrefixFor(collection)) }

// PrefixFor derives a valid TypeID prefix from a collection name: lower-cased,
// characters outside [a-z_] replaced with '_', surrounding underscores trimmed
// and truncated to 63 characters. Names that reduce to nothing map to
// PrefixDocument.
func PrefixFor(collection string) Prefix {
	var b strings.Builder
	for _, r := range strings.ToLower(collection) {
		if (r >= 'a' && r <= 'z') || r == '_' {
			b.WriteRune(r)
			continue
		}
		b.WriteByte('_')
	}

	p := strings.Trim(b.String(), "_")
	if len(p) > maxPrefixLen {
		p = strings.TrimRight(p[:maxPrefixLen], "_")
	}
	if p == "" {
		return PrefixDocument
	}

	return Prefix(p)
}

// Parse reads an identity such as "user_01h2xcejqtf2nbrexx3vqjhp41".
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse %q: empty string", s)
	}

	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}

	return ID{inner: tid, valid: true}, nil
}

// ParseWithPrefix parses s and rejects identities of another collection.
func ParseWithPrefix(s string, expected Prefix) (ID, error) {
	parsed, err := Parse(s)
	if err != nil {
		return Nil, err
	}

	if parsed.Prefix() != expected {
		return Nil, fmt.Errorf("id: expected prefix %q, got %q", expected, parsed.Prefix())
	}

	return parsed, nil
}

// MustParse is Parse for literals known to be valid. It panics on error.
func MustParse(s string) ID {
	parsed, err := Parse(s)
	if err != nil {
		panic(fmt.Sprintf("id: must parse %q: %v", s, err))
	}

	return parsed
}

// ──────────────────────────────────────────────────
// ID methods
// ──────────────────────────────────────────────────

// String returns "prefix_suffix", or "" for Nil.
func (i ID) String() string {
	if !i.valid {
		return ""
	}

	return i.inner.String()
}

// Prefix returns the collection-derived prefix, or "" for Nil.
func (i ID) Prefix() Prefix {
	if !i.valid {
		return ""
	}

	return Prefix(i.inner.Prefix())
}

// IsNil reports whether i is Nil.
func (i ID) IsNil() bool {
	return !i.valid
}

// IsZero is IsNil under the name bson omitempty looks for.
func (i ID) IsZero() bool { return !i.valid }

// MarshalText implements encoding.TextMarshaler. Nil encodes as the empty
// string, which is also how JSON sees it.
func (i ID) MarshalText() ([]byte, error) {
	if !i.valid {
		return []byte{}, nil
	}

	return []byte(i.inner.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Empty input decodes
// to Nil.
func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil

		return nil
	}

	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}

	*i = parsed

	return nil
}

// MarshalBSONValue implements bson.ValueMarshaler. IDs are stored as BSON
// strings; the Nil ID is stored as null.
func (i ID) MarshalBSONValue() (byte, []byte, error) {
	if !i.valid {
		return byte(bson.TypeNull), nil, nil
	}

	typ, data, err := bson.MarshalValue(i.inner.String())

	return byte(typ), data, err
}

// UnmarshalBSONValue implements bson.ValueUnmarshaler.
func (i *ID) UnmarshalBSONValue(typ byte, data []byte) error {
	rv := bson.RawValue{Type: bson.Type(typ), Value: data}
	switch rv.Type {
	case bson.TypeNull, bson.TypeUndefined:
		*i = Nil

		return nil
	case bson.TypeString:
		return i.UnmarshalText([]byte(rv.StringValue()))
	default:
		return fmt.Errorf("id: cannot decode BSON %s into ID", rv.Type)
	}
}
