package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/xraph/docstore"
)

// API serves a small blog over a docstore.Store: user registration and
// login, an admin user list, and posts that reference their author.
type API struct {
	store      docstore.Store
	logger     *slog.Logger
	now        func() time.Time
	bcryptCost int
}

// Option configures an API.
type Option func(*API)

// WithLogger sets the logger used for request and transaction logs.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) { a.logger = logger }
}

// WithClock overrides the clock used to stamp new posts.
func WithClock(now func() time.Time) Option {
	return func(a *API) { a.now = now }
}

// WithPasswordCost sets the bcrypt cost for stored password hashes.
func WithPasswordCost(cost int) Option {
	return func(a *API) { a.bcryptCost = cost }
}

// New creates an API backed by s.
func New(s docstore.Store, opts ...Option) *API {
	a := &API{
		store:      s,
		logger:     slog.Default(),
		now:        time.Now,
		bcryptCost: bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Handler returns a gin engine with recovery, request logging, the
// transaction middleware and every route registered.
func (a *API) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(a.logger))
	a.RegisterRoutes(r)
	return r
}

// RegisterRoutes registers the health check and the /v1 routes on router.
// The /v1 group runs inside Transaction.
func (a *API) RegisterRoutes(router gin.IRouter) {
	router.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	g := router.Group("/v1", Transaction(a.store, a.logger))
	a.registerUserRoutes(g)
	a.registerPostRoutes(g)
}

// registerUserRoutes registers account routes.
func (a *API) registerUserRoutes(g gin.IRouter) {
	g.POST("/users", a.createUser)
	g.GET("/users", a.listUsers)
	g.GET("/users/:userId", a.getUser)
	g.POST("/login", a.login)
}

// registerPostRoutes registers blog post routes.
func (a *API) registerPostRoutes(g gin.IRouter) {
	g.POST("/posts", a.createPost)
	g.GET("/posts", a.listPosts)
	g.GET("/posts/:postId", a.getPost)
	g.PATCH("/posts/:postId", a.updatePost)
	g.DELETE("/posts/:postId", a.deletePost)
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("api: request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("elapsed", time.Since(start)),
		)
	}
}
