// Package storetest is a conformance suite for docstore.Store
// implementations. A backend test calls Run with a factory returning a fresh,
// connected, empty store per case.
package storetest

import (
	"context"
	"errors"
	"slices"
	"testing"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/xraph/docstore"
	"github.com/xraph/docstore/id"
)

// Suite describes the backend under test.
type Suite struct {
	// New returns a fresh, connected, empty store.
	New func(t *testing.T) docstore.Store

	// MembershipIncludes is true when $in matches values among the
	// candidates (MongoDB semantics) and false when it matches values
	// outside them.
	MembershipIncludes bool

	// Aggregate is true when the backend implements Aggregate.
	Aggregate bool

	// Isolated is true when writes made through an aborted transaction are
	// discarded.
	Isolated bool
}

// Run executes every case against s.
func Run(t *testing.T, s Suite) {
	t.Helper()

	cases := []struct {
		name string
		fn   func(t *testing.T, s Suite)
	}{
		{"InsertAssignsIdentity", testInsertAssignsIdentity},
		{"InsertRejectsIdentity", testInsertRejectsIdentity},
		{"InsertMany", testInsertMany},
		{"FindOneNoMatch", testFindOneNoMatch},
		{"FindManyEmpty", testFindManyEmpty},
		{"FindEquality", testFindEquality},
		{"FindMissingField", testFindMissingField},
		{"Membership", testMembership},
		{"Projection", testProjection},
		{"ProjectionExcludeID", testProjectionExcludeID},
		{"Count", testCount},
		{"UpdateOneMerges", testUpdateOneMerges},
		{"UpdateNoMatch", testUpdateNoMatch},
		{"UpdateMany", testUpdateMany},
		{"DeleteOne", testDeleteOne},
		{"DeleteManyKeepsOrder", testDeleteManyKeepsOrder},
		{"Aggregate", testAggregate},
		{"TransactionCommit", testTransactionCommit},
		{"TransactionAbort", testTransactionAbort},
		{"TransactionClosed", testTransactionClosed},
		{"RefResolve", testRefResolve},
		{"RefNotFound", testRefNotFound},
		{"Builder", testBuilder},
		{"BuilderMissingField", testBuilderMissingField},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, s)
		})
	}
}

func seed(t *testing.T, st docstore.Store, docs ...bson.D) []id.ID {
	t.Helper()
	ids, err := docstore.InsertMany[Post](context.Background(), st, docs, nil)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return ids
}

func titles(posts []Post) []string {
	out := make([]string, 0, len(posts))
	for _, p := range posts {
		out = append(out, p.Title)
	}
	return out
}

// ──────────────────────────────────────────────────
// Insert
// ──────────────────────────────────────────────────

func testInsertAssignsIdentity(t *testing.T, s Suite) {
	st := s.New(t)
	ctx := context.Background()

	docID, err := docstore.InsertOne[Post](ctx, st, PostDoc("first", 1), nil)
	if err != nil {
		t.Fatalf("InsertOne: %v", err)
	}
	if docID.IsNil() {
		t.Fatal("InsertOne returned a nil identity")
	}
	if got, want := docID.Prefix(), id.PrefixFor(PostCollection); got != want {
		t.Errorf("prefix = %q, want %q", got, want)
	}

	got, err := docstore.FindOne[Post](ctx, st, docstore.ByID(docID))
	if err != nil {
		t.Fatalf("FindOne: %v", err)
	}
	if got == nil {
		t.Fatal("FindOne returned nil for an inserted document")
	}
	if got.ID.String() != docID.String() || got.Title != "first" || got.Rank != 1 {
		t.Errorf("FindOne = %+v, want id %s title first rank 1", got, docID)
	}
}

func testInsertRejectsIdentity(t *testing.T, s Suite) {
	st := s.New(t)

	doc := bson.D{{Key: docstore.IDField, Value: id.NewFor(PostCollection)}, {Key: "title", Value: "x"}}
	_, err := docstore.InsertOne[Post](context.Background(), st, doc, nil)
	if !errors.Is(err, docstore.ErrDocumentHasID) {
		t.Fatalf("InsertOne error = %v, want %v", err, docstore.ErrDocumentHasID)
	}
}

func testInsertMany(t *testing.T, s Suite) {
	st := s.New(t)
	ids := seed(t, st, PostDoc("a", 1), PostDoc("b", 2), PostDoc("c", 3))

	if len(ids) != 3 {
		t.Fatalf("InsertMany returned %d ids, want 3", len(ids))
	}
	seen := make(map[string]bool)
	for _, docID := range ids {
		if seen[docID.String()] {
			t.Fatalf("duplicate identity %s", docID)
		}
		seen[docID.String()] = true
	}
}

// ──────────────────────────────────────────────────
// Find
// ──────────────────────────────────────────────────

func testFindOneNoMatch(t *testing.T, s Suite) {
	st := s.New(t)
	seed(t, st, PostDoc("a", 1))

	got, err := docstore.FindOne[Post](context.Background(), st, docstore.Filter{docstore.Eq("title", "zzz")})
	if err != nil {
		t.Fatalf("FindOne: %v", err)
	}
	if got != nil {
		t.Errorf("FindOne = %+v, want nil", got)
	}
}

func testFindManyEmpty(t *testing.T, s Suite) {
	st := s.New(t)

	got, err := docstore.FindMany[Post](context.Background(), st, nil)
	if err != nil {
		t.Fatalf("FindMany: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("FindMany = %#v, want empty non-nil slice", got)
	}
}

func testFindEquality(t *testing.T, s Suite) {
	st := s.New(t)
	seed(t, st, PostDoc("a", 1), PostDoc("b", 2), PostDoc("c", 2))
	ctx := context.Background()

	tests := []struct {
		name   string
		filter docstore.Filter
		want   []string
	}{
		{"empty filter", nil, []string{"a", "b", "c"}},
		{"single clause", docstore.Filter{docstore.Eq("rank", int64(2))}, []string{"b", "c"}},
		{"int32 matches int64", docstore.Filter{docstore.Eq("rank", int32(1))}, []string{"a"}},
		{"conjunction", docstore.Filter{docstore.Eq("rank", int64(2)), docstore.Eq("title", "c")}, []string{"c"}},
		{"conjunction fails", docstore.Filter{docstore.Eq("rank", int64(1)), docstore.Eq("title", "c")}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := docstore.FindMany[Post](ctx, st, tt.filter)
			if err != nil {
				t.Fatalf("FindMany: %v", err)
			}
			if g := titles(got); !slices.Equal(g, tt.want) {
				t.Errorf("titles = %v, want %v", g, tt.want)
			}
		})
	}
}

func testFindMissingField(t *testing.T, s Suite) {
	st := s.New(t)
	seed(t, st, PostDoc("a", 1), append(PostDoc("b", 2), bson.E{Key: "parity", Value: "even"}))

	got, err := docstore.FindMany[Post](context.Background(), st, docstore.Filter{docstore.Eq("parity", "even")})
	if err != nil {
		t.Fatalf("FindMany: %v", err)
	}
	if g := titles(got); !slices.Equal(g, []string{"b"}) {
		t.Errorf("titles = %v, want [b]", g)
	}
}

func testMembership(t *testing.T, s Suite) {
	st := s.New(t)
	seed(t, st, PostDoc("a", 1), PostDoc("b", 2), PostDoc("c", 3))

	got, err := docstore.FindMany[Post](context.Background(), st,
		docstore.Filter{docstore.In("title", "a", "c")})
	if err != nil {
		t.Fatalf("FindMany: %v", err)
	}

	want := []string{"b"}
	if s.MembershipIncludes {
		want = []string{"a", "c"}
	}
	if g := titles(got); !slices.Equal(g, want) {
		t.Errorf("titles = %v, want %v", g, want)
	}
}

func testProjection(t *testing.T, s Suite) {
	st := s.New(t)
	ids := seed(t, st, PostDoc("a", 1))

	got, err := docstore.FindOneProjection[Post, bson.M](context.Background(), st,
		docstore.ByID(ids[0]), docstore.Include("title"))
	if err != nil {
		t.Fatalf("FindOneProjection: %v", err)
	}
	if got == nil {
		t.Fatal("FindOneProjection returned nil")
	}
	m := *got
	if m["title"] != "a" {
		t.Errorf("title = %v, want a", m["title"])
	}
	if _, ok := m["rank"]; ok {
		t.Errorf("rank survived projection: %v", m)
	}
	if _, ok := m[docstore.IDField]; !ok {
		t.Errorf("%s dropped by projection: %v", docstore.IDField, m)
	}
}

func testProjectionExcludeID(t *testing.T, s Suite) {
	st := s.New(t)
	seed(t, st, PostDoc("a", 1), PostDoc("b", 2))

	got, err := docstore.FindManyProjection[Post, PostTitle](context.Background(), st, nil,
		docstore.Exclude(docstore.Include("title"), docstore.IDField))
	if err != nil {
		t.Fatalf("FindManyProjection: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	for _, p := range got {
		if !p.ID.IsNil() {
			t.Errorf("identity survived exclusion: %+v", p)
		}
		if p.Title == "" {
			t.Errorf("title dropped: %+v", p)
		}
	}
}

func testCount(t *testing.T, s Suite) {
	st := s.New(t)
	seed(t, st, PostDoc("a", 1), PostDoc("b", 2), PostDoc("c", 2))
	ctx := context.Background()

	all, err := docstore.CountDocuments[Post](ctx, st, nil)
	if err != nil {
		t.Fatalf("CountDocuments: %v", err)
	}
	if all != 3 {
		t.Errorf("count(all) = %d, want 3", all)
	}
	twos, err := docstore.CountDocuments[Post](ctx, st, docstore.Filter{docstore.Eq("rank", int64(2))})
	if err != nil {
		t.Fatalf("CountDocuments: %v", err)
	}
	if twos != 2 {
		t.Errorf("count(rank=2) = %d, want 2", twos)
	}
}

// ──────────────────────────────────────────────────
// Update / Delete
// ──────────────────────────────────────────────────

func testUpdateOneMerges(t *testing.T, s Suite) {
	st := s.New(t)
	ids := seed(t, st, PostDoc("a", 1))
	ctx := context.Background()

	err := docstore.UpdateOne[Post](ctx, st, docstore.ByID(ids[0]),
		docstore.Set(docstore.Eq("title", "renamed"), docstore.Eq("parity", "odd")), nil)
	if err != nil {
		t.Fatalf("UpdateOne: %v", err)
	}

	got, err := docstore.FindOne[Post](ctx, st, docstore.ByID(ids[0]))
	if err != nil || got == nil {
		t.Fatalf("FindOne = %v, %v", got, err)
	}
	if got.Title != "renamed" || got.Parity != "odd" || got.Rank != 1 {
		t.Errorf("after update = %+v, want title renamed, parity odd, rank 1", got)
	}
}

func testUpdateNoMatch(t *testing.T, s Suite) {
	st := s.New(t)
	seed(t, st, PostDoc("a", 1))
	ctx := context.Background()

	err := docstore.UpdateMany[Post](ctx, st, docstore.Filter{docstore.Eq("title", "zzz")},
		docstore.Set(docstore.Eq("rank", int64(9))), nil)
	if err != nil {
		t.Fatalf("UpdateMany: %v", err)
	}
	n, err := docstore.CountDocuments[Post](ctx, st, docstore.Filter{docstore.Eq("rank", int64(9))})
	if err != nil {
		t.Fatalf("CountDocuments: %v", err)
	}
	if n != 0 {
		t.Errorf("count(rank=9) = %d, want 0", n)
	}
}

func testUpdateMany(t *testing.T, s Suite) {
	st := s.New(t)
	seed(t, st, PostDoc("a", 2), PostDoc("b", 2), PostDoc("c", 3))
	ctx := context.Background()

	err := docstore.UpdateMany[Post](ctx, st, docstore.Filter{docstore.Eq("rank", int64(2))},
		docstore.Set(docstore.Eq("parity", "even")), nil)
	if err != nil {
		t.Fatalf("UpdateMany: %v", err)
	}
	got, err := docstore.FindMany[Post](ctx, st, docstore.Filter{docstore.Eq("parity", "even")})
	if err != nil {
		t.Fatalf("FindMany: %v", err)
	}
	if g := titles(got); !slices.Equal(g, []string{"a", "b"}) {
		t.Errorf("titles = %v, want [a b]", g)
	}
}

func testDeleteOne(t *testing.T, s Suite) {
	st := s.New(t)
	seed(t, st, PostDoc("a", 1), PostDoc("b", 1), PostDoc("c", 2))
	ctx := context.Background()

	if err := docstore.DeleteOne[Post](ctx, st, docstore.Filter{docstore.Eq("rank", int64(1))}, nil); err != nil {
		t.Fatalf("DeleteOne: %v", err)
	}
	got, err := docstore.FindMany[Post](ctx, st, nil)
	if err != nil {
		t.Fatalf("FindMany: %v", err)
	}
	if g := titles(got); !slices.Equal(g, []string{"b", "c"}) {
		t.Errorf("titles = %v, want [b c]", g)
	}

	// No match is not an error.
	if err := docstore.DeleteOne[Post](ctx, st, docstore.Filter{docstore.Eq("rank", int64(7))}, nil); err != nil {
		t.Errorf("DeleteOne(no match): %v", err)
	}
}

func testDeleteManyKeepsOrder(t *testing.T, s Suite) {
	st := s.New(t)
	var docs []bson.D
	for i := int64(1); i <= 5; i++ {
		parity := "odd"
		if i%2 == 0 {
			parity = "even"
		}
		docs = append(docs, append(PostDoc(string(rune('0'+i)), i), bson.E{Key: "parity", Value: parity}))
	}
	seed(t, st, docs...)
	ctx := context.Background()

	if err := docstore.DeleteMany[Post](ctx, st, docstore.Filter{docstore.Eq("parity", "even")}, nil); err != nil {
		t.Fatalf("DeleteMany: %v", err)
	}
	got, err := docstore.FindMany[Post](ctx, st, nil)
	if err != nil {
		t.Fatalf("FindMany: %v", err)
	}
	if g := titles(got); !slices.Equal(g, []string{"1", "3", "5"}) {
		t.Errorf("titles = %v, want [1 3 5]", g)
	}
}

func testAggregate(t *testing.T, s Suite) {
	st := s.New(t)
	seed(t, st, PostDoc("a", 1), PostDoc("b", 2), PostDoc("c", 2))

	pipeline := docstore.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "rank", Value: int64(2)}}}},
		{{Key: "$count", Value: "n"}},
	}
	got, err := docstore.Aggregate[Post](context.Background(), st, pipeline)
	if !s.Aggregate {
		if !errors.Is(err, docstore.ErrNotImplemented) {
			t.Fatalf("Aggregate error = %v, want %v", err, docstore.ErrNotImplemented)
		}
		return
	}
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Aggregate returned %d documents, want 1", len(got))
	}
	if n, ok := got[0]["n"].(int32); !ok || n != 2 {
		t.Errorf("n = %v, want 2", got[0]["n"])
	}
}

// ──────────────────────────────────────────────────
// Transactions
// ──────────────────────────────────────────────────

func testTransactionCommit(t *testing.T, s Suite) {
	st := s.New(t)
	ctx := context.Background()

	err := docstore.WithTransaction(ctx, st, func(ctx context.Context, tx *docstore.Tx) error {
		if _, err := docstore.InsertOne[Post](ctx, st, PostDoc("a", 1), tx); err != nil {
			return err
		}
		_, err := docstore.InsertOne[Post](ctx, st, PostDoc("b", 2), tx)
		return err
	})
	if err != nil {
		t.Fatalf("WithTransaction: %v", err)
	}

	n, err := docstore.CountDocuments[Post](ctx, st, nil)
	if err != nil {
		t.Fatalf("CountDocuments: %v", err)
	}
	if n != 2 {
		t.Errorf("count = %d, want 2", n)
	}
}

func testTransactionAbort(t *testing.T, s Suite) {
	st := s.New(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := docstore.WithTransaction(ctx, st, func(ctx context.Context, tx *docstore.Tx) error {
		if _, err := docstore.InsertOne[Post](ctx, st, PostDoc("a", 1), tx); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithTransaction error = %v, want %v", err, boom)
	}

	n, err := docstore.CountDocuments[Post](ctx, st, nil)
	if err != nil {
		t.Fatalf("CountDocuments: %v", err)
	}
	want := int64(1)
	if s.Isolated {
		want = 0
	}
	if n != want {
		t.Errorf("count after abort = %d, want %d", n, want)
	}
}

func testTransactionClosed(t *testing.T, s Suite) {
	st := s.New(t)
	ctx := context.Background()

	tx, err := st.NewTransaction(ctx)
	if err != nil {
		t.Fatalf("NewTransaction: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := tx.Abort(ctx); !errors.Is(err, docstore.ErrTransactionClosed) {
		t.Errorf("Abort after Commit = %v, want %v", err, docstore.ErrTransactionClosed)
	}
	if tx.State() != docstore.TxCommitted {
		t.Errorf("state = %s, want committed", tx.State())
	}
	_, err = docstore.InsertOne[Post](ctx, st, PostDoc("late", 1), tx)
	if !errors.Is(err, docstore.ErrTransactionClosed) {
		t.Errorf("InsertOne on closed tx = %v, want %v", err, docstore.ErrTransactionClosed)
	}
}

// ──────────────────────────────────────────────────
// Ref / Builder
// ──────────────────────────────────────────────────

func testRefResolve(t *testing.T, s Suite) {
	st := s.New(t)
	ctx := context.Background()

	authorID, err := docstore.InsertOne[Author](ctx, st, AuthorDoc("ada"), nil)
	if err != nil {
		t.Fatalf("InsertOne(author): %v", err)
	}
	postID, err := docstore.InsertOne[Post](ctx, st,
		append(PostDoc("a", 1), bson.E{Key: "author", Value: docstore.RefID[Author](authorID)}), nil)
	if err != nil {
		t.Fatalf("InsertOne(post): %v", err)
	}

	p, err := docstore.FindOne[Post](ctx, st, docstore.ByID(postID))
	if err != nil || p == nil {
		t.Fatalf("FindOne = %v, %v", p, err)
	}
	if p.Author.Resolved() {
		t.Fatal("decoded reference is already resolved")
	}
	if p.Author.ID().String() != authorID.String() {
		t.Fatalf("reference id = %s, want %s", p.Author.ID(), authorID)
	}

	a, err := p.Author.Resolve(ctx, st)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if a.Name != "ada" || !p.Author.Resolved() {
		t.Errorf("Resolve = %+v (resolved %v), want ada", a, p.Author.Resolved())
	}
}

func testRefNotFound(t *testing.T, s Suite) {
	st := s.New(t)
	missing := id.NewFor(AuthorCollection)
	ref := docstore.RefID[Author](missing)

	_, err := ref.Resolve(context.Background(), st)
	if !errors.Is(err, docstore.ErrDocumentNotFound) {
		t.Fatalf("Resolve error = %v, want %v", err, docstore.ErrDocumentNotFound)
	}
	var nf *docstore.DocumentNotFoundError
	if !errors.As(err, &nf) || nf.ID.String() != missing.String() {
		t.Errorf("error = %#v, want DocumentNotFoundError for %s", err, missing)
	}
	if ref.Resolved() {
		t.Error("failed Resolve marked the reference resolved")
	}
}

func testBuilder(t *testing.T, s Suite) {
	st := s.New(t)
	ctx := context.Background()

	a, err := docstore.NewBuilder[Author](st).Set("name", "grace").Build(ctx, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if a.ID.IsNil() || a.Name != "grace" {
		t.Fatalf("Build = %+v", a)
	}

	got, err := docstore.FindOne[Author](ctx, st, docstore.ByID(a.ID))
	if err != nil || got == nil {
		t.Fatalf("FindOne = %v, %v", got, err)
	}
	if got.Name != "grace" {
		t.Errorf("stored name = %q, want grace", got.Name)
	}
}

func testBuilderMissingField(t *testing.T, s Suite) {
	st := s.New(t)
	ctx := context.Background()

	_, err := docstore.NewBuilder[Post](st).Set("title", "untitled").Build(ctx, nil)
	var nv *docstore.DocumentNotValidError
	if !errors.As(err, &nv) || nv.Field != "rank" {
		t.Fatalf("Build error = %v, want missing field rank", err)
	}

	n, err := docstore.CountDocuments[Post](ctx, st, nil)
	if err != nil {
		t.Fatalf("CountDocuments: %v", err)
	}
	if n != 0 {
		t.Errorf("count = %d, want 0 after failed build", n)
	}
}
