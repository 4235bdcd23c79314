package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"go.mongodb.org/mongo-driver/v2/bson"
	"golang.org/x/sync/errgroup"

	"github.com/xraph/docstore"
	"github.com/xraph/docstore/store/storetest"
)

func TestConformance(t *testing.T) {
	t.Parallel()

	t.Run("excludes", func(t *testing.T) {
		storetest.Run(t, storetest.Suite{
			New: func(*testing.T) docstore.Store { return New() },
		})
	})
	t.Run("includes", func(t *testing.T) {
		storetest.Run(t, storetest.Suite{
			New:                func(*testing.T) docstore.Store { return New(WithMembership(MembershipIncludes)) },
			MembershipIncludes: true,
		})
	})
}

// ──────────────────────────────────────────────────
// Lifecycle tests
// ──────────────────────────────────────────────────

func TestLifecycle(t *testing.T) {
	t.Parallel()
	s := New(WithDatabaseName("blog"))
	ctx := context.Background()

	tests := []struct {
		name string
		fn   func() error
	}{
		{"Connect", func() error { return s.Connect(ctx) }},
		{"ConnectAgain", func() error { return s.Connect(ctx) }},
		{"Shutdown", func() error { return s.Shutdown(ctx) }},
		{"ShutdownAgain", func() error { return s.Shutdown(ctx) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(); err != nil {
				t.Fatalf("%s returned error: %v", tt.name, err)
			}
		})
	}

	if got := s.DatabaseName(); got != "blog" {
		t.Errorf("DatabaseName = %q, want blog", got)
	}
	if got := New().DatabaseName(); got != DefaultDatabaseName {
		t.Errorf("default DatabaseName = %q, want %q", got, DefaultDatabaseName)
	}
}

// ──────────────────────────────────────────────────
// Matching tests
// ──────────────────────────────────────────────────

func raw(t *testing.T, d bson.D) bson.Raw {
	t.Helper()
	b, err := bson.Marshal(d)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func TestMatch(t *testing.T) {
	t.Parallel()

	doc := bson.D{
		{Key: "title", Value: "hello"},
		{Key: "rank", Value: int32(3)},
		{Key: "score", Value: 1.5},
		{Key: "meta", Value: bson.D{{Key: "draft", Value: true}}},
		{Key: "big", Value: int64(1<<53 + 1)},
	}

	tests := []struct {
		name       string
		membership Membership
		filter     bson.D
		want       bool
	}{
		{"empty", MembershipExcludes, bson.D{}, true},
		{"equal string", MembershipExcludes, bson.D{{Key: "title", Value: "hello"}}, true},
		{"unequal string", MembershipExcludes, bson.D{{Key: "title", Value: "bye"}}, false},
		{"int64 against int32", MembershipExcludes, bson.D{{Key: "rank", Value: int64(3)}}, true},
		{"double against int32", MembershipExcludes, bson.D{{Key: "rank", Value: 3.0}}, true},
		{"int64 above 2^53 exact", MembershipExcludes, bson.D{{Key: "big", Value: int64(1<<53 + 1)}}, true},
		{"int64 above 2^53 neighbour", MembershipExcludes, bson.D{{Key: "big", Value: int64(1 << 53)}}, false},
		{"double rounding to int64", MembershipExcludes, bson.D{{Key: "big", Value: float64(1 << 53)}}, false},
		{"fractional double against int32", MembershipExcludes, bson.D{{Key: "rank", Value: 3.5}}, false},
		{"int32 against double", MembershipExcludes, bson.D{{Key: "score", Value: int32(1)}}, false},
		{"type mismatch", MembershipExcludes, bson.D{{Key: "rank", Value: "3"}}, false},
		{"missing field", MembershipExcludes, bson.D{{Key: "author", Value: "x"}}, false},
		{"literal sub-document", MembershipExcludes, bson.D{{Key: "meta", Value: bson.D{{Key: "draft", Value: true}}}}, true},
		{"all clauses", MembershipExcludes, bson.D{{Key: "title", Value: "hello"}, {Key: "score", Value: 1.5}}, true},
		{"one failing clause", MembershipExcludes, bson.D{{Key: "title", Value: "hello"}, {Key: "score", Value: 2}}, false},

		{"excludes: value listed", MembershipExcludes, bson.D{docstore.In("title", "hello", "bye")}, false},
		{"excludes: value not listed", MembershipExcludes, bson.D{docstore.In("title", "bye")}, true},
		{"excludes: missing field", MembershipExcludes, bson.D{docstore.In("author", "x")}, false},
		{"excludes: empty list", MembershipExcludes, bson.D{docstore.In("title")}, true},

		{"includes: value listed", MembershipIncludes, bson.D{docstore.In("title", "hello", "bye")}, true},
		{"includes: value not listed", MembershipIncludes, bson.D{docstore.In("title", "bye")}, false},
		{"includes: missing field", MembershipIncludes, bson.D{docstore.In("author", "x")}, false},
		{"includes: numeric", MembershipIncludes, bson.D{docstore.In("rank", int64(1), int64(3))}, true},
		{"includes: int64 neighbour", MembershipIncludes, bson.D{docstore.In("big", int64(1<<53), int64(1<<53+2))}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := matcher{membership: tt.membership}
			got, err := m.match(raw(t, doc), raw(t, tt.filter))
			if err != nil {
				t.Fatalf("match: %v", err)
			}
			if got != tt.want {
				t.Errorf("match = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCountComparesInt64Exactly(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	stamp := int64(1<<53 + 1)
	if _, err := s.InsertOne(ctx, "events", bson.D{{Key: "at", Value: stamp}}, nil); err != nil {
		t.Fatalf("InsertOne: %v", err)
	}

	for _, tt := range []struct {
		at   int64
		want int64
	}{
		{stamp, 1},
		{stamp - 1, 0},
		{stamp + 1, 0},
	} {
		n, err := s.CountDocuments(ctx, "events", docstore.Filter{docstore.Eq("at", tt.at)})
		if err != nil {
			t.Fatalf("CountDocuments: %v", err)
		}
		if n != tt.want {
			t.Errorf("CountDocuments(at=%d) = %d, want %d", tt.at, n, tt.want)
		}
	}
}

func TestUnsupportedOperators(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()
	if _, err := s.InsertOne(ctx, "posts", bson.D{{Key: "rank", Value: 1}}, nil); err != nil {
		t.Fatalf("InsertOne: %v", err)
	}

	tests := []struct {
		name string
		fn   func() error
		want error
	}{
		{"filter $gt", func() error {
			_, err := s.FindMany(ctx, "posts", bson.D{{Key: "rank", Value: bson.D{{Key: "$gt", Value: 0}}}}, nil)
			return err
		}, docstore.ErrUnsupportedOperator},
		{"filter $in scalar", func() error {
			_, err := s.CountDocuments(ctx, "posts", bson.D{{Key: "rank", Value: bson.D{{Key: "$in", Value: 1}}}})
			return err
		}, docstore.ErrUnsupportedOperator},
		{"projection mixing include and exclude", func() error {
			_, err := s.FindOne(ctx, "posts", nil, bson.D{{Key: "rank", Value: 1}, {Key: "title", Value: 0}})
			return err
		}, docstore.ErrUnsupportedOperator},
		{"update $inc", func() error {
			return s.UpdateOne(ctx, "posts", nil, bson.D{{Key: "$inc", Value: bson.D{{Key: "rank", Value: 1}}}}, nil)
		}, docstore.ErrUnsupportedOperator},
		{"update replacement", func() error {
			return s.UpdateMany(ctx, "posts", nil, bson.D{{Key: "rank", Value: 2}}, nil)
		}, docstore.ErrUnsupportedOperator},
		{"update identity", func() error {
			return s.UpdateOne(ctx, "posts", nil, docstore.Set(docstore.Eq(docstore.IDField, "x")), nil)
		}, docstore.ErrImmutableID},
		{"aggregate", func() error {
			_, err := s.Aggregate(ctx, "posts", docstore.Pipeline{})
			return err
		}, docstore.ErrNotImplemented},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(); !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}

	n, err := s.CountDocuments(ctx, "posts", bson.D{{Key: "rank", Value: 1}})
	if err != nil {
		t.Fatalf("CountDocuments: %v", err)
	}
	if n != 1 {
		t.Errorf("rejected updates modified the collection: count(rank=1) = %d", n)
	}
}

// ──────────────────────────────────────────────────
// Projection / update tests
// ──────────────────────────────────────────────────

func TestProjection(t *testing.T) {
	t.Parallel()

	doc := bson.D{
		{Key: "_id", Value: "posts_1"},
		{Key: "title", Value: "hello"},
		{Key: "body", Value: "text"},
		{Key: "rank", Value: int32(3)},
	}

	tests := []struct {
		name string
		p    docstore.Projection
		want []string
	}{
		{"nil", nil, []string{"_id", "title", "body", "rank"}},
		{"include", docstore.Include("rank", "title"), []string{"_id", "title", "rank"}},
		{"include numeric flag", bson.D{{Key: "body", Value: int32(1)}}, []string{"_id", "body"}},
		{"include without id", docstore.Exclude(docstore.Include("title"), "_id"), []string{"title"}},
		{"only id", docstore.Include("_id"), []string{"_id"}},
		{"absent field", docstore.Include("author"), []string{"_id"}},
		{"exclude", docstore.Exclude(nil, "body"), []string{"_id", "title", "rank"}},
		{"exclude numeric flag", bson.D{{Key: "rank", Value: 0}}, []string{"_id", "title", "body"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p, err := compileProjection(tt.p)
			if err != nil {
				t.Fatalf("compileProjection: %v", err)
			}
			out, err := p.apply(raw(t, doc))
			if err != nil {
				t.Fatalf("apply: %v", err)
			}
			elems, err := out.Elements()
			if err != nil {
				t.Fatalf("Elements: %v", err)
			}
			var keys []string
			for _, e := range elems {
				keys = append(keys, e.Key())
			}
			if fmt.Sprint(keys) != fmt.Sprint(tt.want) {
				t.Errorf("keys = %v, want %v", keys, tt.want)
			}
		})
	}
}

func TestUpdateKeepsFieldOrder(t *testing.T) {
	t.Parallel()

	set, err := compileUpdate(docstore.Set(docstore.Eq("added", true), docstore.Eq("title", "new")))
	if err != nil {
		t.Fatalf("compileUpdate: %v", err)
	}
	out, err := set.apply(raw(t, bson.D{{Key: "_id", Value: "x"}, {Key: "title", Value: "old"}, {Key: "rank", Value: 1}}))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	var got bson.D
	if err := bson.Unmarshal(out, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	want := bson.D{
		{Key: "_id", Value: "x"},
		{Key: "title", Value: "new"},
		{Key: "rank", Value: int32(1)},
		{Key: "added", Value: true},
	}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("document = %v, want %v", got, want)
	}
}

// ──────────────────────────────────────────────────
// Store behaviour
// ──────────────────────────────────────────────────

func TestInsertPrependsIdentity(t *testing.T) {
	t.Parallel()
	s := New()

	docID, err := s.InsertOne(context.Background(), "posts", bson.D{{Key: "title", Value: "a"}}, nil)
	if err != nil {
		t.Fatalf("InsertOne: %v", err)
	}

	snap := s.Snapshot("posts")
	if len(snap) != 1 {
		t.Fatalf("snapshot has %d documents, want 1", len(snap))
	}
	elems, err := snap[0].Elements()
	if err != nil {
		t.Fatalf("Elements: %v", err)
	}
	if elems[0].Key() != docstore.IDField {
		t.Fatalf("first key = %q, want %q", elems[0].Key(), docstore.IDField)
	}
	if got := elems[0].Value().StringValue(); got != docID.String() {
		t.Errorf("stored id = %q, want %q", got, docID)
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()
	if _, err := s.InsertOne(ctx, "posts", bson.D{{Key: "title", Value: "a"}}, nil); err != nil {
		t.Fatalf("InsertOne: %v", err)
	}

	snap := s.Snapshot("posts")
	for i := range snap[0] {
		snap[0][i] = 0
	}

	found, err := s.FindOne(ctx, "posts", bson.D{{Key: "title", Value: "a"}}, nil)
	if err != nil {
		t.Fatalf("FindOne: %v", err)
	}
	if found == nil {
		t.Fatal("mutating a snapshot changed the store")
	}

	s.Reset()
	if n := len(s.Snapshot("posts")); n != 0 {
		t.Errorf("after Reset snapshot has %d documents", n)
	}
}

func TestDecodeFailure(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	// title must decode into a string.
	if _, err := s.InsertOne(ctx, storetest.PostCollection, bson.D{{Key: "title", Value: 42}, {Key: "rank", Value: 1}}, nil); err != nil {
		t.Fatalf("InsertOne: %v", err)
	}

	_, err := docstore.FindMany[storetest.Post](ctx, s, nil)
	if !errors.Is(err, docstore.ErrDocumentNotValid) {
		t.Fatalf("FindMany error = %v, want %v", err, docstore.ErrDocumentNotValid)
	}
	var nv *docstore.DocumentNotValidError
	if !errors.As(err, &nv) || nv.Cause == nil || nv.Collection != storetest.PostCollection {
		t.Errorf("error = %#v, want DocumentNotValidError with cause", err)
	}
}

func TestTransactionsAreCounted(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	for _, commit := range []bool{true, true, false} {
		tx, err := s.NewTransaction(ctx)
		if err != nil {
			t.Fatalf("NewTransaction: %v", err)
		}
		if _, err := s.InsertOne(ctx, "posts", bson.D{{Key: "title", Value: "x"}}, tx); err != nil {
			t.Fatalf("InsertOne: %v", err)
		}
		if commit {
			err = tx.Commit(ctx)
		} else {
			err = tx.Abort(ctx)
		}
		if err != nil {
			t.Fatalf("finish: %v", err)
		}
	}

	committed, aborted := s.Transactions()
	if committed != 2 || aborted != 1 {
		t.Errorf("Transactions = (%d, %d), want (2, 1)", committed, aborted)
	}
	// Writes are not isolated: the aborted insert is still visible.
	if n := len(s.Snapshot("posts")); n != 3 {
		t.Errorf("stored %d documents, want 3", n)
	}
}

func TestInsertManyStopsAtFirstFailure(t *testing.T) {
	t.Parallel()
	s := New()

	docs := []bson.D{
		{{Key: "title", Value: "a"}},
		{{Key: docstore.IDField, Value: "x"}},
		{{Key: "title", Value: "c"}},
	}
	ids, err := s.InsertMany(context.Background(), "posts", docs, nil)
	if !errors.Is(err, docstore.ErrDocumentHasID) {
		t.Fatalf("InsertMany error = %v, want %v", err, docstore.ErrDocumentHasID)
	}
	if ids != nil {
		t.Errorf("ids = %v, want nil on failure", ids)
	}
	if n := len(s.Snapshot("posts")); n != 1 {
		t.Errorf("stored %d documents, want 1 (insert is not atomic)", n)
	}
}

func TestConcurrentAccess(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	const writers = 32
	var g errgroup.Group
	for i := range writers {
		g.Go(func() error {
			_, err := s.InsertOne(ctx, "posts", bson.D{{Key: "n", Value: i}, {Key: "kind", Value: "w"}}, nil)
			return err
		})
		g.Go(func() error {
			_, err := s.FindMany(ctx, "posts", bson.D{{Key: "kind", Value: "w"}}, nil)
			return err
		})
		g.Go(func() error {
			return s.UpdateMany(ctx, "posts", bson.D{{Key: "kind", Value: "w"}}, docstore.Set(docstore.Eq("seen", true)), nil)
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent access: %v", err)
	}

	n, err := s.CountDocuments(ctx, "posts", bson.D{{Key: "kind", Value: "w"}})
	if err != nil {
		t.Fatalf("CountDocuments: %v", err)
	}
	if n != writers {
		t.Errorf("count = %d, want %d", n, writers)
	}
}
