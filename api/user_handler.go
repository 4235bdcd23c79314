package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/xraph/docstore"
	"github.com/xraph/docstore/id"
)

func (a *API) createUser(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, err.Error())
		return
	}
	ctx := c.Request.Context()

	taken, err := docstore.CountDocuments[User](ctx, a.store, docstore.Filter{docstore.Eq("username", req.Username)})
	if err != nil {
		a.writeError(c, err)
		return
	}
	if taken > 0 {
		a.writeError(c, errUsernameTaken)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), a.bcryptCost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		abortWithError(c, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		a.writeError(c, fmt.Errorf("hash password: %w", err))
		return
	}

	u, err := docstore.NewBuilder[User](a.store).
		Set("first_name", req.FirstName).
		Set("last_name", req.LastName).
		Set("username", req.Username).
		Set("password_hash", string(hash)).
		Set("admin", req.Admin).
		Build(ctx, TxFrom(c))
	if err != nil {
		a.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, CreatedResponse{ID: u.ID.String()})
}

// listUsers serves the admin user list. Only the identity, username and
// admin flag are read from the store.
func (a *API) listUsers(c *gin.Context) {
	users, err := docstore.FindManyProjection[User, userSummary](c.Request.Context(), a.store, nil,
		docstore.Include("username", "admin"))
	if err != nil {
		a.writeError(c, err)
		return
	}

	out := make([]UserResponse, 0, len(users))
	for _, u := range users {
		out = append(out, UserResponse{ID: u.ID.String(), Username: u.Username, Admin: u.Admin})
	}
	c.JSON(http.StatusOK, out)
}

func (a *API) getUser(c *gin.Context) {
	userID, err := id.ParseWithPrefix(c.Param("userId"), id.PrefixFor(User{}.Collection()))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, fmt.Sprintf("invalid user ID: %v", err))
		return
	}

	ref := docstore.RefID[User](userID)
	u, err := ref.Resolve(c.Request.Context(), a.store)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newUserResponse(u))
}

func (a *API) login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, err.Error())
		return
	}

	u, err := docstore.FindOne[User](c.Request.Context(), a.store, docstore.Filter{docstore.Eq("username", req.Username)})
	if err != nil {
		a.writeError(c, err)
		return
	}
	if u == nil || bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)) != nil {
		a.writeError(c, errInvalidCredentials)
		return
	}
	c.JSON(http.StatusOK, newUserResponse(*u))
}
