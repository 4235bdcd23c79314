package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/xraph/docstore"
	"github.com/xraph/docstore/id"
)

var (
	userPrefix = id.PrefixFor(User{}.Collection())
	postPrefix = id.PrefixFor(Post{}.Collection())
)

func (a *API) createPost(c *gin.Context) {
	var req CreatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, err.Error())
		return
	}
	authorID, err := id.ParseWithPrefix(req.AuthorID, userPrefix)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, fmt.Sprintf("invalid author ID: %v", err))
		return
	}
	ctx := c.Request.Context()

	author := docstore.RefID[User](authorID)
	if _, err := author.Resolve(ctx, a.store); err != nil {
		if errors.Is(err, docstore.ErrDocumentNotFound) {
			abortWithError(c, http.StatusBadRequest, err.Error())
			return
		}
		a.writeError(c, err)
		return
	}

	p, err := docstore.NewBuilder[Post](a.store).
		Set("title", req.Title).
		Set("content", req.Content).
		Set("author", author).
		Set("created_at", a.now().UTC().Truncate(time.Millisecond)).
		Build(ctx, TxFrom(c))
	if err != nil {
		a.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, CreatedResponse{ID: p.ID.String()})
}

// listPosts returns every post, or only those of ?author=<userId>. Each
// distinct author is resolved once.
func (a *API) listPosts(c *gin.Context) {
	var filter docstore.Filter
	if raw := c.Query("author"); raw != "" {
		authorID, err := id.ParseWithPrefix(raw, userPrefix)
		if err != nil {
			abortWithError(c, http.StatusBadRequest, fmt.Sprintf("invalid author ID: %v", err))
			return
		}
		filter = docstore.Filter{docstore.Eq("author", authorID)}
	}
	ctx := c.Request.Context()

	posts, err := docstore.FindMany[Post](ctx, a.store, filter)
	if err != nil {
		a.writeError(c, err)
		return
	}

	authors := make(map[string]*docstore.Ref[User])
	out := make([]PostResponse, 0, len(posts))
	for _, p := range posts {
		key := p.Author.ID().String()
		ref, ok := authors[key]
		if !ok {
			ref = &p.Author
			authors[key] = ref
		}
		resp := newPostResponse(p)
		resp.AuthorUsername, err = a.username(c, ref)
		if err != nil {
			a.writeError(c, err)
			return
		}
		out = append(out, resp)
	}
	c.JSON(http.StatusOK, out)
}

func (a *API) getPost(c *gin.Context) {
	p, ok := a.loadPost(c)
	if !ok {
		return
	}
	resp := newPostResponse(*p)
	username, err := a.username(c, &p.Author)
	if err != nil {
		a.writeError(c, err)
		return
	}
	resp.AuthorUsername = username
	c.JSON(http.StatusOK, resp)
}

func (a *API) updatePost(c *gin.Context) {
	var req UpdatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, err.Error())
		return
	}
	var fields []bson.E
	if req.Title != "" {
		fields = append(fields, docstore.Eq("title", req.Title))
	}
	if req.Content != "" {
		fields = append(fields, docstore.Eq("content", req.Content))
	}
	if len(fields) == 0 {
		abortWithError(c, http.StatusBadRequest, "nothing to update")
		return
	}

	p, ok := a.loadPost(c)
	if !ok {
		return
	}
	if err := docstore.UpdateOne[Post](c.Request.Context(), a.store, docstore.ByID(p.ID), docstore.Set(fields...), TxFrom(c)); err != nil {
		a.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *API) deletePost(c *gin.Context) {
	p, ok := a.loadPost(c)
	if !ok {
		return
	}
	if err := docstore.DeleteOne[Post](c.Request.Context(), a.store, docstore.ByID(p.ID), TxFrom(c)); err != nil {
		a.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// loadPost reads the post named by :postId and writes the error response
// itself when it cannot.
func (a *API) loadPost(c *gin.Context) (*Post, bool) {
	postID, err := id.ParseWithPrefix(c.Param("postId"), postPrefix)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, fmt.Sprintf("invalid post ID: %v", err))
		return nil, false
	}
	p, err := docstore.FindOne[Post](c.Request.Context(), a.store, docstore.ByID(postID))
	if err != nil {
		a.writeError(c, err)
		return nil, false
	}
	if p == nil {
		a.writeError(c, &docstore.DocumentNotFoundError{Collection: Post{}.Collection(), ID: postID})
		return nil, false
	}
	return p, true
}

// username resolves the author reference. A deleted author yields an empty
// name rather than an error.
func (a *API) username(c *gin.Context, author *docstore.Ref[User]) (string, error) {
	u, err := author.ResolveMut(c.Request.Context(), a.store)
	if errors.Is(err, docstore.ErrDocumentNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return u.Username, nil
}
