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
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/orderflow/api/responses"
	pkgerrors "github.com/angelmondragon/orderflow/pkg/errors"
	"github.com/angelmondragon/orderflow/pkg/idempotency"
	"github.com/angelmondragon/orderflow/pkg/logger"
	pkgredis "github.com/angelmondragon/orderflow/pkg/redis"
	"github.com/angelmondragon/orderflow/pkg/types"
)

// Replay windows for guarded routes. Order creation and seller transfers move
// money and keep their records longer.
const (
	IdempotencyTTLStandard = 24 * time.Hour
	IdempotencyTTLCritical = 7 * 24 * time.Hour
)

const (
	idempotencyHeader    = "Idempotency-Key"
	replayHeader         = "Idempotent-Replay"
	maxIdempotencyKeyLen = 255
	inFlightTTL          = 30 * time.Second
)

type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body"`
	RequestHash string `json:"request_hash"`
}

// Idempotency replays the stored response when a client repeats an
// Idempotency-Key on a guarded route. A duplicate that arrives while the first
// request is still running is refused. Retryable failures are never stored.
type Idempotency struct {
	store  pkgredis.IdempotencyStore
	claims *idempotency.Manager
	logg   *logger.Logger
}

// NewIdempotency returns a guard backed by store. A nil store yields a guard
// whose routes run unguarded.
func NewIdempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) *Idempotency {
	g := &Idempotency{store: store, logg: logg}
	if store != nil {
		g.claims, _ = idempotency.NewManager(store, inFlightTTL)
	}
	return g
}

// For guards a single route and keeps its response for ttl.
func (g *Idempotency) For(ttl time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if g == nil || g.store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			g.serve(w, r, next, ttl)
		})
	}
}

func (g *Idempotency) serve(w http.ResponseWriter, r *http.Request, next http.Handler, ttl time.Duration) {
	ctx := r.Context()
	clientKey := strings.TrimSpace(r.Header.Get(idempotencyHeader))
	if clientKey == "" || len(clientKey) > maxIdempotencyKeyLen {
		responses.WriteError(ctx, g.logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required (1-255 chars)"))
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		responses.WriteError(ctx, g.logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	scope := idempotencyScope(r)
	key := g.store.IdempotencyKey(scope, clientKey)
	hash := requestHash(body)

	stored, err := g.lookup(ctx, key)
	if err != nil {
		responses.WriteError(ctx, g.logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
		return
	}
	if stored != nil {
		if stored.RequestHash != hash {
			responses.WriteError(ctx, g.logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
			return
		}
		replay(w, stored)
		return
	}

	claimed, err := g.claims.Claim(ctx, scope, clientKey)
	if err != nil {
		responses.WriteError(ctx, g.logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim idempotency key"))
		return
	}
	if !claimed {
		responses.WriteError(ctx, g.logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "request with this idempotency key is in progress"))
		return
	}
	defer func() {
		if err := g.claims.Release(context.WithoutCancel(ctx), scope, clientKey); err != nil && g.logg != nil {
			g.logg.Error(ctx, "idempotency.release_failed", err)
		}
	}()

	rec := &responseCapture{ResponseWriter: w}
	next.ServeHTTP(rec, r)

	status := rec.statusCode()
	if retryableResponse(status, rec.body.Bytes()) {
		return
	}
	g.save(ctx, key, storedResponse{
		Status:      status,
		ContentType: rec.Header().Get("Content-Type"),
		Body:        rec.body.Bytes(),
		RequestHash: hash,
	}, ttl)
}

func (g *Idempotency) lookup(ctx context.Context, key string) (*storedResponse, error) {
	raw, err := g.store.Get(ctx, key)
	if errors.Is(err, redis.Nil) || (err == nil && raw == "") {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var stored storedResponse
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return nil, err
	}
	return &stored, nil
}

func (g *Idempotency) save(ctx context.Context, key string, resp storedResponse, ttl time.Duration) {
	payload, err := json.Marshal(resp)
	if err == nil {
		_, err = g.store.SetNX(ctx, key, string(payload), ttl)
	}
	if err != nil && g.logg != nil {
		g.logg.Error(ctx, "idempotency.persist_failed", err)
	}
}

// idempotencyScope binds a key to the caller and the concrete path, so the
// same key on two orders never collides.
func idempotencyScope(r *http.Request) string {
	path := r.URL.Path
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	return ActorIDFromContext(r.Context()).String() + "|" + r.Method + "|" + path
}

// retryableResponse leaves 5xx and retryable typed errors unstored so a retry
// with the same key reaches the handler again.
func retryableResponse(status int, body []byte) bool {
	switch {
	case status >= http.StatusInternalServerError:
		return true
	case status < http.StatusBadRequest:
		return false
	}
	var envelope types.ErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return false
	}
	return envelope.Error.Retryable
}

func replay(w http.ResponseWriter, stored *storedResponse) {
	if stored.ContentType != "" {
		w.Header().Set("Content-Type", stored.ContentType)
	}
	w.Header().Set(replayHeader, "true")
	w.WriteHeader(stored.Status)
	_, _ = w.Write(stored.Body)
}

func requestHash(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
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

func (r *responseCapture) statusCode() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}
