package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/xraph/docstore"
)

var (
	errUsernameTaken      = errors.New("username is already taken")
	errInvalidCredentials = errors.New("invalid username or password")
)

func errorBody(status int, msg string) gin.H {
	return gin.H{"error": msg, "status": status}
}

func abortWithError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, errorBody(status, msg))
}

// writeError maps err to an HTTP status. Unexpected errors are logged and
// answered with a generic 500.
func (a *API) writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		a.logger.Error("api: internal error",
			slog.String("path", c.FullPath()),
			slog.String("error", err.Error()),
		)
		abortWithError(c, status, "internal server error")
		return
	}
	abortWithError(c, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, docstore.ErrDocumentNotValid):
		return http.StatusBadRequest
	case errors.Is(err, docstore.ErrDocumentNotFound):
		return http.StatusNotFound
	case errors.Is(err, errInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, errUsernameTaken), mongod.IsDuplicateKeyError(err):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
