package docstore_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/xraph/docstore"
	"github.com/xraph/docstore/id"
	"github.com/xraph/docstore/store/memory"
)

type user struct {
	ID        id.ID  `bson:"_id"`
	FirstName string `bson:"first_name"`
	LastName  string `bson:"last_name"`
	Nickname  string `bson:"nickname,omitempty"`
	Admin     bool   `bson:"admin"`
}

func (user) Collection() string { return "users" }
func (u user) DocumentID() id.ID { return u.ID }

type note struct {
	ID    docstore.ID        `bson:"_id"`
	Text  string             `bson:"text"`
	Owner docstore.Ref[user] `bson:"owner"`
}

func (note) Collection() string { return "notes" }
func (n note) DocumentID() docstore.ID { return n.ID }

// countingStore counts FindOne calls reaching the backend.
type countingStore struct {
	docstore.Store
	finds atomic.Int64
}

func (c *countingStore) FindOne(ctx context.Context, collection string, filter docstore.Filter, projection docstore.Projection) (bson.Raw, error) {
	c.finds.Add(1)
	return c.Store.FindOne(ctx, collection, filter, projection)
}

func seedUser(t *testing.T, s docstore.Store, first string) id.ID {
	t.Helper()
	docID, err := docstore.InsertOne[user](context.Background(), s, bson.D{
		{Key: "first_name", Value: first},
		{Key: "last_name", Value: "Lovelace"},
		{Key: "admin", Value: false},
	}, nil)
	if err != nil {
		t.Fatalf("InsertOne: %v", err)
	}
	return docID
}

func TestRefResolvesOnce(t *testing.T) {
	t.Parallel()
	s := &countingStore{Store: memory.New()}
	ctx := context.Background()
	docID := seedUser(t, s, "Ada")

	ref := docstore.RefID[user](docID)
	for range 3 {
		u, err := ref.Resolve(ctx, s)
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if u.FirstName != "Ada" {
			t.Fatalf("FirstName = %q, want Ada", u.FirstName)
		}
	}
	if n := s.finds.Load(); n != 1 {
		t.Errorf("FindOne called %d times, want 1", n)
	}
}

func TestRefKeepsStaleValue(t *testing.T) {
	t.Parallel()
	s := memory.New()
	ctx := context.Background()
	docID := seedUser(t, s, "Ada")

	ref := docstore.RefID[user](docID)
	if _, err := ref.Resolve(ctx, s); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if err := docstore.UpdateOne[user](ctx, s, docstore.ByID(docID),
		docstore.Set(docstore.Eq("first_name", "Augusta")), nil); err != nil {
		t.Fatalf("UpdateOne: %v", err)
	}

	u, err := ref.Resolve(ctx, s)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if u.FirstName != "Ada" {
		t.Errorf("FirstName = %q, want cached Ada", u.FirstName)
	}
}

func TestRefResolveMutIsLocal(t *testing.T) {
	t.Parallel()
	s := memory.New()
	ctx := context.Background()
	docID := seedUser(t, s, "Ada")

	ref := docstore.RefID[user](docID)
	u, err := ref.ResolveMut(ctx, s)
	if err != nil {
		t.Fatalf("ResolveMut: %v", err)
	}
	u.Admin = true

	cached, err := ref.Resolve(ctx, s)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !cached.Admin {
		t.Error("change through ResolveMut pointer was lost")
	}
	stored, err := docstore.FindOne[user](ctx, s, docstore.ByID(docID))
	if err != nil || stored == nil {
		t.Fatalf("FindOne = %v, %v", stored, err)
	}
	if stored.Admin {
		t.Error("change through ResolveMut pointer reached the store")
	}
}

func TestRefToNeverQueries(t *testing.T) {
	t.Parallel()
	s := &countingStore{Store: memory.New()}
	u := user{ID: id.NewFor("users"), FirstName: "Grace"}

	ref := docstore.RefTo(u)
	if !ref.Resolved() {
		t.Fatal("RefTo is not resolved")
	}
	if ref.ID().String() != u.ID.String() {
		t.Errorf("ID = %s, want %s", ref.ID(), u.ID)
	}
	got, err := ref.Owned(context.Background(), s)
	if err != nil || got.FirstName != "Grace" {
		t.Fatalf("Owned = %+v, %v", got, err)
	}
	if n := s.finds.Load(); n != 0 {
		t.Errorf("FindOne called %d times, want 0", n)
	}
}

func TestRefOwnedDoesNotCache(t *testing.T) {
	t.Parallel()
	s := &countingStore{Store: memory.New()}
	ctx := context.Background()
	ref := docstore.RefID[user](seedUser(t, s, "Ada"))

	for range 2 {
		if _, err := ref.Owned(ctx, s); err != nil {
			t.Fatalf("Owned: %v", err)
		}
	}
	if ref.Resolved() {
		t.Error("Owned resolved the reference")
	}
	if n := s.finds.Load(); n != 2 {
		t.Errorf("FindOne called %d times, want 2", n)
	}
}

func TestRefMissing(t *testing.T) {
	t.Parallel()
	missing := id.NewFor("users")
	ref := docstore.RefID[user](missing)

	_, err := ref.ResolveMut(context.Background(), memory.New())
	var nf *docstore.DocumentNotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("ResolveMut error = %v, want DocumentNotFoundError", err)
	}
	if nf.ID.String() != missing.String() || nf.Collection != "users" {
		t.Errorf("error = %+v", nf)
	}
}

func TestRefEmbedsAsIdentity(t *testing.T) {
	t.Parallel()
	owner := user{ID: id.NewFor("users"), FirstName: "Ada"}
	n := note{ID: id.NewFor("notes"), Text: "hi", Owner: docstore.RefTo(owner)}

	raw, err := bson.Marshal(n)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if got := bson.Raw(raw).Lookup("owner").StringValue(); got != owner.ID.String() {
		t.Errorf("owner = %q, want %q", got, owner.ID)
	}

	var back note
	if err := bson.Unmarshal(raw, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if back.Owner.Resolved() {
		t.Error("decoded reference is resolved")
	}
	if back.Owner.ID().String() != owner.ID.String() {
		t.Errorf("decoded owner = %s, want %s", back.Owner.ID(), owner.ID)
	}
}
