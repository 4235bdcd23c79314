package api

import (
	"time"

	"github.com/xraph/docstore"
	"github.com/xraph/docstore/id"
)

// User is a registered blog account.
type User struct {
	ID           id.ID  `bson:"_id"`
	FirstName    string `bson:"first_name"`
	LastName     string `bson:"last_name"`
	Username     string `bson:"username"`
	PasswordHash string `bson:"password_hash"`
	Admin        bool   `bson:"admin"`
}

// Collection implements docstore.Document.
func (User) Collection() string { return "user" }

// DocumentID implements docstore.Document.
func (u User) DocumentID() id.ID { return u.ID }

// Post is a published blog post. Author references the writing User.
type Post struct {
	ID        id.ID              `bson:"_id"`
	Title     string             `bson:"title"`
	Content   string             `bson:"content"`
	Author    docstore.Ref[User] `bson:"author"`
	CreatedAt time.Time          `bson:"created_at"`
}

// Collection implements docstore.Document.
func (Post) Collection() string { return "blog_post" }

// DocumentID implements docstore.Document.
func (p Post) DocumentID() id.ID { return p.ID }

// userSummary is the projection served by the admin user list.
type userSummary struct {
	ID       id.ID  `bson:"_id"`
	Username string `bson:"username"`
	Admin    bool   `bson:"admin"`
}

// ── Request and response bodies ─────────────────────

// CreateUserRequest is the body of POST /v1/users.
type CreateUserRequest struct {
	FirstName string `json:"firstName" binding:"required"`
	LastName  string `json:"lastName" binding:"required"`
	Username  string `json:"username" binding:"required"`
	Password  string `json:"password" binding:"required"`
	Admin     bool   `json:"admin"`
}

// LoginRequest is the body of POST /v1/login.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// CreatePostRequest is the body of POST /v1/posts.
type CreatePostRequest struct {
	Title    string `json:"title" binding:"required"`
	Content  string `json:"content" binding:"required"`
	AuthorID string `json:"authorId" binding:"required"`
}

// UpdatePostRequest is the body of PATCH /v1/posts/:postId. Empty fields are
// left unchanged.
type UpdatePostRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// UserResponse is the public view of a User.
type UserResponse struct {
	ID        string `json:"userId"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Username  string `json:"username"`
	Admin     bool   `json:"admin"`
}

// PostResponse is the public view of a Post.
type PostResponse struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Content        string    `json:"content"`
	AuthorID       string    `json:"authorId"`
	AuthorUsername string    `json:"authorUsername,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// CreatedResponse carries the identity of a new document.
type CreatedResponse struct {
	ID string `json:"id"`
}

func newUserResponse(u User) UserResponse {
	return UserResponse{
		ID:        u.ID.String(),
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Username:  u.Username,
		Admin:     u.Admin,
	}
}

func newPostResponse(p Post) PostResponse {
	return PostResponse{
		ID:        p.ID.String(),
		Title:     p.Title,
		Content:   p.Content,
		AuthorID:  p.Author.ID().String(),
		CreatedAt: p.CreatedAt,
	}
}
