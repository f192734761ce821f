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
	"path"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/farmlink/farmlink-backend/api/responses"
	pkgerrors "github.com/farmlink/farmlink-backend/pkg/errors"
	"github.com/farmlink/farmlink-backend/pkg/logger"
	pkgredis "github.com/farmlink/farmlink-backend/pkg/redis"
)

const (
	IdempotencyHeader = "Idempotency-Key"

	defaultIdempotencyTTL  = 24 * time.Hour
	criticalIdempotencyTTL = 7 * 24 * time.Hour
	inFlightTTL            = 2 * time.Minute
)

// ResponseStore persists replayable responses keyed by client key.
type ResponseStore interface {
	pkgredis.IdempotencyStore
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

// idempotentRoutes maps "METHOD glob" to how long a response is replayable.
// Globs use path.Match, so "*" covers one path segment.
var idempotentRoutes = map[string]time.Duration{
	"POST /api/v1/orders":                        defaultIdempotencyTTL,
	"PATCH /api/v1/orders/*/status":              defaultIdempotencyTTL,
	"PATCH /api/v1/orders/*/tracking-details":    defaultIdempotencyTTL,
	"POST /api/v1/payments/create-order":         defaultIdempotencyTTL,
	"PATCH /api/v1/orders/*/cancel":              criticalIdempotencyTTL,
	"POST /api/v1/payments/verify":               criticalIdempotencyTTL,
	"POST /api/v1/payments/cod":                  criticalIdempotencyTTL,
	"POST /api/v1/payments/cod/*/collected":      criticalIdempotencyTTL,
	"PATCH /api/v1/admin/payments/*/farmer-paid": criticalIdempotencyTTL,
}

// storedResponse is the Redis value. A record without Status is a claim held
// by a request still running.
type storedResponse struct {
	RequestHash string `json:"request_hash"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

func (s storedResponse) pending() bool { return s.Status == 0 }

// Idempotency replays the first completed response for a repeated
// Idempotency-Key on mutating routes. Keys are scoped to the caller and the
// request path; a changed body under the same key is rejected.
func Idempotency(store ResponseStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ttl, ok := routeTTL(r.Method, routePattern(r))
			if !ok || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			fail := func(err error) { responses.WriteError(ctx, logg, w, err) }

			clientKey := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
			if clientKey == "" {
				fail(pkgerrors.New(pkgerrors.CodeValidation, IdempotencyHeader+" header required"))
				return
			}
			body, err := io.ReadAll(r.Body)
			if err != nil {
				fail(pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			key := store.IdempotencyKey(requestScope(r), clientKey)
			claim := storedResponse{RequestHash: fingerprint(body)}

			prior, found, err := loadResponse(r, store, key)
			if err != nil {
				fail(err)
				return
			}
			if found {
				switch {
				case prior.RequestHash != claim.RequestHash:
					fail(pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
				case prior.pending():
					fail(pkgerrors.New(pkgerrors.CodeConflict, "request with this idempotency key is still in progress"))
				default:
					replay(w, prior)
				}
				return
			}

			claimed, err := store.SetNX(ctx, key, mustJSON(claim), inFlightTTL)
			if err != nil {
				fail(pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim idempotency key"))
				return
			}
			if !claimed {
				fail(pkgerrors.New(pkgerrors.CodeConflict, "request with this idempotency key is still in progress"))
				return
			}

			capture := &responseCapture{ResponseWriter: w}
			completed := false
			defer func() {
				if !completed {
					// handler panicked or bailed; free the key for a retry
					_ = store.Del(ctx, key)
				}
			}()
			next.ServeHTTP(capture, r)
			completed = true

			status := capture.statusCode()
			if retryableStatus(status) {
				if err := store.Del(ctx, key); err != nil && logg != nil {
					logg.Error(ctx, "release idempotency key", err)
				}
				return
			}
			claim.Status = status
			claim.ContentType = capture.Header().Get("Content-Type")
			claim.Body = capture.body.Bytes()
			if err := store.Set(ctx, key, mustJSON(claim), ttl); err != nil && logg != nil {
				logg.Error(logg.WithField(ctx, "idempotency_key", clientKey), "persist idempotency record", err)
			}
		})
	}
}

func loadResponse(r *http.Request, store ResponseStore, key string) (storedResponse, bool, error) {
	var rec storedResponse
	raw, err := store.Get(r.Context(), key)
	switch {
	case errors.Is(err, redis.Nil), err == nil && raw == "":
		return rec, false, nil
	case err != nil:
		return rec, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency")
	}
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return rec, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record")
	}
	return rec, true, nil
}

func replay(w http.ResponseWriter, rec storedResponse) {
	if rec.ContentType != "" {
		w.Header().Set("Content-Type", rec.ContentType)
	}
	w.Header().Set("Idempotent-Replayed", "true")
	w.WriteHeader(rec.Status)
	_, _ = w.Write(rec.Body)
}

func requestScope(r *http.Request) string {
	return strings.Join([]string{
		UserIDFromContext(r.Context()),
		RoleFromContext(r.Context()),
		r.Method,
		r.URL.Path,
	}, "|")
}

func fingerprint(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

func mustJSON(v storedResponse) string {
	// storedResponse has no types json can refuse
	b, _ := json.Marshal(v)
	return string(b)
}

// retryableStatus reports responses a client is expected to retry with the
// same key. They are never cached.
func retryableStatus(status int) bool {
	return status >= http.StatusInternalServerError ||
		status == http.StatusConflict ||
		status == http.StatusTooManyRequests
}

// routePattern prefers the chi pattern and falls back to the raw path while
// mounted sub-routers are still resolving.
func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" && !strings.HasSuffix(pattern, "*") {
			return pattern
		}
	}
	return r.URL.Path
}

func routeTTL(method, pattern string) (time.Duration, bool) {
	pattern = strings.TrimSuffix(pattern, "/")
	if pattern == "" {
		return 0, false
	}
	for route, ttl := range idempotentRoutes {
		routeMethod, glob, _ := strings.Cut(route, " ")
		if routeMethod != method {
			continue
		}
		if matched, _ := path.Match(glob, pattern); matched {
			return ttl, true
		}
	}
	return 0, false
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *responseCapture) statusCode() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}

func (c *responseCapture) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}
