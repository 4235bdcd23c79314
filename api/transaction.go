package api

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xraph/docstore"
)

// txKey is the gin context key holding the request transaction.
const txKey = "docstore.tx"

// Transaction opens a transaction for every POST, PUT, PATCH and DELETE
// request and makes it available through TxFrom and docstore.TxFromContext.
//
// The response is buffered until the handler chain returns. A 2xx status
// commits the transaction and flushes the response; any other status aborts
// it. If the transaction cannot be started, committed or aborted the client
// receives a 500 instead of the handler's response. A panic aborts the
// transaction and is re-raised for the recovery middleware.
func Transaction(s docstore.Store, logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *gin.Context) {
		if !mutating(c.Request.Method) {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		tx, err := s.NewTransaction(ctx)
		if err != nil {
			logger.Error("api: start transaction",
				slog.String("method", c.Request.Method),
				slog.String("path", c.FullPath()),
				slog.String("error", err.Error()),
			)
			abortWithError(c, http.StatusInternalServerError, "could not start transaction")
			return
		}

		c.Set(txKey, tx)
		c.Request = c.Request.WithContext(docstore.ContextWithTx(ctx, tx))

		buf := newBufferedWriter(c.Writer)
		c.Writer = buf

		defer func() {
			if r := recover(); r != nil {
				c.Writer = buf.ResponseWriter
				if tx.State() == docstore.TxActive {
					if err := tx.Abort(context.WithoutCancel(ctx)); err != nil {
						logger.Error("api: abort transaction after panic",
							slog.String("tx", tx.ID().String()),
							slog.String("error", err.Error()),
						)
					}
				}
				panic(r)
			}
		}()

		c.Next()
		c.Writer = buf.ResponseWriter

		if err := finish(ctx, tx, buf.status); err != nil {
			logger.Error("api: finish transaction",
				slog.String("tx", tx.ID().String()),
				slog.Int("status", buf.status),
				slog.String("error", err.Error()),
			)
			c.Writer.Header().Del("Content-Type")
			c.JSON(http.StatusInternalServerError, errorBody(http.StatusInternalServerError, "transaction failed"))
			return
		}
		buf.flush()
	}
}

// TxFrom returns the transaction opened by Transaction for this request, or
// nil for read-only methods.
func TxFrom(c *gin.Context) *docstore.Tx {
	if v, ok := c.Get(txKey); ok {
		if tx, ok := v.(*docstore.Tx); ok {
			return tx
		}
	}
	return docstore.TxFromContext(c.Request.Context())
}

// finish commits on a 2xx status and aborts otherwise. A handler that
// already finished the transaction itself is left alone.
func finish(ctx context.Context, tx *docstore.Tx, status int) error {
	if tx.State() != docstore.TxActive {
		return nil
	}
	if status >= http.StatusOK && status < http.StatusMultipleChoices {
		return tx.Commit(ctx)
	}
	return tx.Abort(ctx)
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// bufferedWriter holds the status and body back until the transaction
// outcome is known. Headers go straight to the underlying writer's map; they
// are only sent when the buffer is flushed.
type bufferedWriter struct {
	gin.ResponseWriter
	status  int
	written bool
	body    bytes.Buffer
}

func newBufferedWriter(w gin.ResponseWriter) *bufferedWriter {
	return &bufferedWriter{ResponseWriter: w, status: http.StatusOK}
}

func (w *bufferedWriter) WriteHeader(code int) {
	if code > 0 && !w.written {
		w.status = code
	}
}

func (w *bufferedWriter) WriteHeaderNow() { w.written = true }

func (w *bufferedWriter) Write(data []byte) (int, error) {
	w.written = true
	return w.body.Write(data)
}

func (w *bufferedWriter) WriteString(s string) (int, error) {
	w.written = true
	return w.body.WriteString(s)
}

func (w *bufferedWriter) Status() int { return w.status }

func (w *bufferedWriter) Size() int {
	if !w.written {
		return -1
	}
	return w.body.Len()
}

func (w *bufferedWriter) Written() bool { return w.written }

// Flush is a no-op until the transaction has finished.
func (w *bufferedWriter) Flush() {}

func (w *bufferedWriter) flush() {
	w.ResponseWriter.WriteHeader(w.status)
	w.ResponseWriter.WriteHeaderNow()
	if w.body.Len() > 0 {
		_, _ = w.ResponseWriter.Write(w.body.Bytes())
	}
}
