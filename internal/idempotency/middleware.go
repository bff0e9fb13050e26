package idempotency

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	HeaderKey    = "Idempotency-Key"
	HeaderReplay = "Idempotent-Replay"

	maxKeyLength = 255
)

// bodyRecorder дублирует тело ответа, чтобы сохранить его под ключом
type bodyRecorder struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *bodyRecorder) WriteString(s string) (int, error) {
	w.buf.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Middleware повторяет сохранённый ответ для запроса с тем же Idempotency-Key.
// Запросы без ключа и ошибки хранилища пропускаются как обычные.
func Middleware(store Store, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(HeaderKey)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxKeyLength {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid Idempotency-Key"})
			return
		}

		raw, err := c.GetRawData()
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(raw))
		fingerprint := fingerprintOf(raw)

		ctx := c.Request.Context()
		claimed, existing, err := store.Claim(ctx, key, fingerprint)
		if err != nil {
			logger.Warn("Idempotency store unavailable, processing without it",
				zap.String("key", key),
				zap.Error(err))
			c.Next()
			return
		}

		if !claimed {
			if existing != nil && existing.Fingerprint != "" && existing.Fingerprint != fingerprint {
				c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": "Idempotency-Key was used with a different request"})
				return
			}
			if existing == nil || !existing.Done {
				c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "Request with this Idempotency-Key is in progress"})
				return
			}
			c.Header(HeaderReplay, "true")
			c.Data(existing.Status, existing.ContentType, existing.Body)
			c.Abort()
			return
		}

		release := func() {
			if err := store.Release(context.WithoutCancel(ctx), key); err != nil {
				logger.Warn("Failed to release idempotency key", zap.String("key", key), zap.Error(err))
			}
		}

		// паника в обработчике не должна оставить ключ занятым до истечения TTL
		finished := false
		defer func() {
			if !finished {
				release()
			}
		}()

		rec := &bodyRecorder{ResponseWriter: c.Writer}
		c.Writer = rec

		c.Next()
		finished = true

		status := rec.Status()
		if status >= http.StatusInternalServerError {
			release()
			return
		}

		err = store.Complete(context.WithoutCancel(ctx), key, Record{
			Fingerprint: fingerprint,
			Status:      status,
			ContentType: rec.Header().Get("Content-Type"),
			Body:        rec.buf.Bytes(),
		})
		if err != nil {
			logger.Warn("Failed to store idempotent response", zap.String("key", key), zap.Error(err))
		}
	}
}

func fingerprintOf(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
