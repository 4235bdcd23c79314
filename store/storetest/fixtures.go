package storetest

import (
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/xraph/docstore"
	"github.com/xraph/docstore/id"
)

// Collection names used by the suite.
const (
	PostCollection   = "posts"
	AuthorCollection = "authors"
)

// Post is the entity most cases exercise.
type Post struct {
	ID     id.ID                `bson:"_id"`
	Title  string               `bson:"title"`
	Rank   int64                `bson:"rank"`
	Parity string               `bson:"parity,omitempty"`
	Author docstore.Ref[Author] `bson:"author,omitempty"`
	Tags   []string             `bson:"tags,omitempty"`
}

func (Post) Collection() string { return PostCollection }
func (p Post) DocumentID() id.ID { return p.ID }

// PostTitle is a projection of Post.
type PostTitle struct {
	ID    id.ID  `bson:"_id,omitempty"`
	Title string `bson:"title"`
}

// Author is referenced from Post.
type Author struct {
	ID   id.ID  `bson:"_id"`
	Name string `bson:"name"`
}

func (Author) Collection() string { return AuthorCollection }
func (a Author) DocumentID() id.ID { return a.ID }

// PostDoc returns an insertable Post payload.
func PostDoc(title string, rank int64) bson.D {
	return bson.D{{Key: "title", Value: title}, {Key: "rank", Value: rank}}
}

// AuthorDoc returns an insertable Author payload.
func AuthorDoc(name string) bson.D {
	return bson.D{{Key: "name", Value: name}}
}
