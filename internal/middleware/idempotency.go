package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	idempotencyHeader = "Idempotency-Key"
	replayedHeader    = "Idempotent-Replayed"
	idempotencyTTL    = 24 * time.Hour

	// inFlightTTL bounds how long a claimed key blocks retries if the process dies
	// before recording the outcome.
	inFlightTTL = 2 * time.Minute
)

// settlementRecord is what a payment key resolves to: the fingerprint of the request
// that claimed it and, once the handler finished, the response it produced.
type settlementRecord struct {
	Fingerprint string          `json:"fingerprint"`
	Done        bool            `json:"done"`
	StatusCode  int             `json:"status_code,omitempty"`
	ContentType string          `json:"content_type,omitempty"`
	Body        json.RawMessage `json:"body,omitempty"`
}

// capturingWriter tees the response body so it can be recorded.
type capturingWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *capturingWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// IdempotencyMiddleware makes reservation, charge and credit POSTs safe to retry.
//
// The first request with a given Idempotency-Key claims the key for its path and
// body. A retry with the same body gets the recorded response back, marked with the
// Idempotent-Replayed header, and never reaches a provider again. Reusing the key with
// a different body (another amount or other instruments) is rejected with 422, and a
// retry that arrives while the first request is still running gets 409. Server errors
// release the key so the payment can be retried. With a nil client the middleware
// does nothing.
func IdempotencyMiddleware(redisClient *redis.Client, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if redisClient == nil || c.Request.Method != http.MethodPost {
			c.Next()
			return
		}

		key := c.GetHeader(idempotencyHeader)
		if key == "" {
			c.Next()
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		ctx := c.Request.Context()
		storeCtx := context.WithoutCancel(ctx)
		recordKey := "idempotency:" + c.Request.URL.Path + ":" + key
		fingerprint := requestFingerprint(body)
		log := logger.With(zap.String("idempotency_key", key), zap.String("path", c.Request.URL.Path))

		claimed, err := claimKey(ctx, redisClient, recordKey, fingerprint)
		if err != nil {
			log.Warn("idempotency claim failed, processing request", zap.Error(err))
			c.Next()
			return
		}

		if !claimed {
			existing, err := loadRecord(ctx, redisClient, recordKey)
			switch {
			case errors.Is(err, redis.Nil):
				// Released between the claim and the read; let the caller retry.
				c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "payment request with this idempotency key is in progress"})
			case err != nil:
				log.Warn("idempotency lookup failed, processing request", zap.Error(err))
				c.Next()
			case existing.Fingerprint != fingerprint:
				log.Warn("idempotency key reused with a different request")
				c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": "idempotency key already used with a different request"})
			case !existing.Done:
				c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "payment request with this idempotency key is in progress"})
			default:
				c.Header(replayedHeader, "true")
				c.Data(existing.StatusCode, existing.ContentType, existing.Body)
				c.Abort()
			}
			return
		}

		w := &capturingWriter{ResponseWriter: c.Writer, body: &bytes.Buffer{}}
		c.Writer = w

		c.Next()

		status := c.Writer.Status()
		if status >= http.StatusInternalServerError {
			if err := redisClient.Del(storeCtx, recordKey).Err(); err != nil {
				log.Warn("failed to release idempotency key", zap.Error(err))
			}
			return
		}

		record := settlementRecord{
			Fingerprint: fingerprint,
			Done:        true,
			StatusCode:  status,
			ContentType: c.Writer.Header().Get("Content-Type"),
			Body:        w.body.Bytes(),
		}
		if err := saveRecord(storeCtx, redisClient, recordKey, &record, idempotencyTTL); err != nil {
			log.Warn("failed to store idempotent response", zap.Error(err))
		}
	}
}

// requestFingerprint hashes the request body. JSON bodies are re-encoded first so
// key order and whitespace do not change the fingerprint.
func requestFingerprint(body []byte) string {
	canonical := body
	var decoded any
	if err := json.Unmarshal(body, &decoded); err == nil {
		if encoded, err := json.Marshal(decoded); err == nil {
			canonical = encoded
		}
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}

// claimKey records an in-flight claim for key. It reports false if the key was
// already claimed or completed.
func claimKey(ctx context.Context, client *redis.Client, key, fingerprint string) (bool, error) {
	data, err := json.Marshal(settlementRecord{Fingerprint: fingerprint})
	if err != nil {
		return false, err
	}
	return client.SetNX(ctx, key, data, inFlightTTL).Result()
}

func loadRecord(ctx context.Context, client *redis.Client, key string) (*settlementRecord, error) {
	data, err := client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, err
	}

	var record settlementRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func saveRecord(ctx context.Context, client *redis.Client, key string, record *settlementRecord, ttl time.Duration) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return client.Set(ctx, key, data, ttl).Err()
}
