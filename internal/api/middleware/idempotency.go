package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/example/ewaste-exchange/internal/api/respond"
	"github.com/example/ewaste-exchange/internal/apperr"
	"github.com/example/ewaste-exchange/internal/logger"
)

const (
	IdempotencyHeader = "Idempotency-Key"

	idempotencyTTL     = 24 * time.Hour
	idempotencyLockTTL = time.Minute
	maxIdempotencyKey  = 255
)

// IdempotencyStore is satisfied by *redis.Client.
type IdempotencyStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

type idempotencyRecord struct {
	Pending     bool   `json:"pending,omitempty"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        string `json:"body,omitempty"`
	RequestHash string `json:"request_hash"`
}

// Idempotency replays the stored response when a request is retried with the
// same Idempotency-Key and body. Requests without the header, or a nil store,
// pass straight through. A key reused with a different body is rejected, as
// is a retry that arrives while the first attempt is still running.
// Server errors are not stored so the client can retry them.
func Idempotency(store IdempotencyStore, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			idemKey := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
			if idemKey == "" {
				next.ServeHTTP(w, r)
				return
			}
			if len(idemKey) > maxIdempotencyKey {
				respond.Error(ctx, log, w, apperr.New(apperr.CodeValidation, "Idempotency-Key is too long"))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				respond.Error(ctx, log, w, apperr.Wrap(apperr.CodeValidation, err, "could not read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			hash := hashBody(body)
			key := store.IdempotencyKey(idempotencyScope(r), idemKey)

			lock, _ := json.Marshal(idempotencyRecord{Pending: true, RequestHash: hash})
			acquired, err := store.SetNX(ctx, key, string(lock), idempotencyLockTTL)
			if err != nil {
				respond.Error(ctx, log, w, apperr.Wrap(apperr.CodeDependency, err, "idempotency store unavailable"))
				return
			}
			if !acquired {
				replayStored(ctx, store, log, w, key, hash)
				return
			}

			rec := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}
			if status >= http.StatusInternalServerError {
				if err := store.Del(ctx, key); err != nil && log != nil {
					log.Error(ctx, "release idempotency key failed", err)
				}
				return
			}

			payload, _ := json.Marshal(idempotencyRecord{
				Status:      status,
				ContentType: rec.Header().Get("Content-Type"),
				Body:        base64.StdEncoding.EncodeToString(rec.body.Bytes()),
				RequestHash: hash,
			})
			if err := store.Set(ctx, key, string(payload), idempotencyTTL); err != nil && log != nil {
				log.Error(ctx, "persist idempotency record failed", err)
			}
		})
	}
}

func replayStored(ctx context.Context, store IdempotencyStore, log *logger.Logger, w http.ResponseWriter, key, hash string) {
	stored, ok, err := store.Get(ctx, key)
	if err != nil {
		respond.Error(ctx, log, w, apperr.Wrap(apperr.CodeDependency, err, "idempotency store unavailable"))
		return
	}
	if !ok {
		// The lock expired between SetNX and Get.
		respond.Error(ctx, log, w, apperr.New(apperr.CodeConflict, "request with this Idempotency-Key is in progress"))
		return
	}

	var record idempotencyRecord
	if err := json.Unmarshal([]byte(stored), &record); err != nil {
		respond.Error(ctx, log, w, apperr.Wrap(apperr.CodeDependency, err, "corrupt idempotency record"))
		return
	}
	if record.RequestHash != hash {
		respond.Error(ctx, log, w, apperr.New(apperr.CodeIdempotency, "Idempotency-Key reused with a different request body"))
		return
	}
	if record.Pending {
		respond.Error(ctx, log, w, apperr.New(apperr.CodeConflict, "request with this Idempotency-Key is in progress"))
		return
	}

	body, err := base64.StdEncoding.DecodeString(record.Body)
	if err != nil {
		respond.Error(ctx, log, w, apperr.Wrap(apperr.CodeDependency, err, "corrupt idempotency record"))
		return
	}
	if record.ContentType != "" {
		w.Header().Set("Content-Type", record.ContentType)
	}
	w.Header().Set("Idempotent-Replayed", "true")
	w.WriteHeader(record.Status)
	_, _ = w.Write(body)
}

// idempotencyScope keeps keys from colliding across callers and endpoints.
func idempotencyScope(r *http.Request) string {
	return strings.Join([]string{ActorID(r.Context()), r.Method, r.URL.Path}, "|")
}

func hashBody(payload []byte) string {
	sum := sha256.Sum256(payload)
	return base64.StdEncoding.EncodeToString(sum[:])
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (r *responseCapture) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseCapture) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
