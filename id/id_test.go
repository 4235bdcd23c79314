package id_test

import (
	"strings"
	"testing"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/xraph/docstore/id"
)

func TestPrefixFor(t *testing.T) {
	tests := []struct {
		collection string
		want       id.Prefix
	}{
		{"user", "user"},
		{"blog_post", "blog_post"},
		{"Blog-Posts", "blog_posts"},
		{"posts.v2", "posts_v"},
		{"__private__", "private"},
		{"2024", id.PrefixDocument},
		{"", id.PrefixDocument},
		{strings.Repeat("a", 70), id.Prefix(strings.Repeat("a", 63))},
	}

	for _, tt := range tests {
		t.Run(tt.collection, func(t *testing.T) {
			if got := id.PrefixFor(tt.collection); got != tt.want {
				t.Errorf("PrefixFor(%q) = %q, want %q", tt.collection, got, tt.want)
			}
		})
	}
}

func TestNewFor(t *testing.T) {
	i := id.NewFor("Blog-Posts")
	if i.IsNil() {
		t.Fatal("expected non-nil ID")
	}
	if !strings.HasPrefix(i.String(), "blog_posts_") {
		t.Errorf("expected prefix %q, got %q", "blog_posts_", i.String())
	}
}

func TestParseWithPrefix(t *testing.T) {
	i := id.New("user")
	parsed, err := id.ParseWithPrefix(i.String(), "user")
	if err != nil {
		t.Fatalf("ParseWithPrefix failed: %v", err)
	}
	if parsed.String() != i.String() {
		t.Errorf("mismatch: %q != %q", parsed.String(), i.String())
	}

	_, err = id.ParseWithPrefix(i.String(), "post")
	if err == nil {
		t.Error("expected error for wrong prefix")
	}
}

func TestParseEmpty(t *testing.T) {
	_, err := id.Parse("")
	if err == nil {
		t.Error("expected error for empty string")
	}
}

func TestNilID(t *testing.T) {
	var i id.ID
	if !i.IsNil() {
		t.Error("zero-value ID should be nil")
	}
	if i.String() != "" {
		t.Errorf("expected empty string, got %q", i.String())
	}
	if i.Prefix() != "" {
		t.Errorf("expected empty prefix, got %q", i.Prefix())
	}
}

func TestBSONStoresString(t *testing.T) {
	original := id.New("post")

	raw, err := bson.Marshal(bson.D{{Key: "_id", Value: original}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	val := bson.Raw(raw).Lookup("_id")
	if val.Type != bson.TypeString {
		t.Fatalf("expected BSON string, got %s", val.Type)
	}
	if val.StringValue() != original.String() {
		t.Errorf("stored %q, want %q", val.StringValue(), original.String())
	}

	var out struct {
		ID id.ID `bson:"_id"`
	}
	if err := bson.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.ID.String() != original.String() {
		t.Errorf("decoded %q, want %q", out.ID.String(), original.String())
	}
}

func TestBSONNil(t *testing.T) {
	raw, err := bson.Marshal(bson.D{{Key: "ref", Value: id.Nil}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if typ := bson.Raw(raw).Lookup("ref").Type; typ != bson.TypeNull {
		t.Fatalf("expected BSON null, got %s", typ)
	}

	out := struct {
		Ref id.ID `bson:"ref"`
	}{Ref: id.New("user")}
	if err := bson.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !out.Ref.IsNil() {
		t.Errorf("expected nil ID, got %q", out.Ref.String())
	}
}

func TestUniqueness(t *testing.T) {
	a := id.New("user")
	b := id.New("user")
	if a.String() == b.String() {
		t.Errorf("two consecutive New() calls returned the same ID: %q", a.String())
	}
}
