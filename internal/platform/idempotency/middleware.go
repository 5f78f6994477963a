package idempotency

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/devki-mart/api/internal/platform/auth"
	"github.com/devki-mart/api/internal/platform/httpx"
)

const (
	headerKey    = "Idempotency-Key"
	headerReplay = "X-Idempotent-Replay"
)

// Logger receives persistence failures the middleware cannot surface to the client.
type Logger interface {
	Printf(format string, args ...any)
}

type guard struct {
	store   Store
	ttl     time.Duration
	methods map[string]struct{}
	clock   func() time.Time
	logger  Logger
}

// MiddlewareOption adjusts the middleware.
type MiddlewareOption func(*guard)

// WithTTL sets how long completed responses stay replayable.
func WithTTL(ttl time.Duration) MiddlewareOption {
	return func(g *guard) {
		if ttl > 0 {
			g.ttl = ttl
		}
	}
}

// WithMethods restricts which HTTP methods require an idempotency key.
func WithMethods(methods ...string) MiddlewareOption {
	return func(g *guard) {
		if len(methods) == 0 {
			return
		}
		g.methods = make(map[string]struct{}, len(methods))
		for _, m := range methods {
			m = strings.ToUpper(strings.TrimSpace(m))
			if m != "" {
				g.methods[m] = struct{}{}
			}
		}
	}
}

// WithLogger wires a logger for background store errors.
func WithLogger(logger Logger) MiddlewareOption {
	return func(g *guard) { g.logger = logger }
}

// WithClock overrides the time source in tests.
func WithClock(clock func() time.Time) MiddlewareOption {
	return func(g *guard) {
		if clock != nil {
			g.clock = clock
		}
	}
}

// Middleware guards mutating requests carrying an Idempotency-Key header.
// Requests without the header pass through untouched; a repeated key replays
// the stored response, and a key still being processed gets a 409.
func Middleware(store Store, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	if store == nil {
		return func(next http.Handler) http.Handler { return next }
	}

	g := &guard{
		store: store,
		ttl:   DefaultTTL,
		methods: map[string]struct{}{
			http.MethodPost:   {},
			http.MethodPut:    {},
			http.MethodPatch:  {},
			http.MethodDelete: {},
		},
		clock: time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, guarded := g.methods[r.Method]; !guarded {
				next.ServeHTTP(w, r)
				return
			}
			key := strings.TrimSpace(r.Header.Get(headerKey))
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			g.serve(w, r, key, next)
		})
	}
}

func (g *guard) serve(w http.ResponseWriter, r *http.Request, key string, next http.Handler) {
	ctx := r.Context()

	body, err := bufferBody(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unable to read request body", http.StatusBadRequest))
		return
	}

	caller := "anonymous"
	if identity, ok := auth.IdentityFromContext(ctx); ok && identity != nil && identity.UID != "" {
		caller = identity.UID
	}

	// Keys are scoped per caller so two users may reuse the same key.
	scoped := caller + "\n" + key
	digest := digestBytes(
		[]byte(r.Method),
		[]byte(r.URL.Path),
		[]byte(r.URL.RawQuery),
		[]byte(caller),
		body,
	)
	now := g.clock().UTC()

	outcome, record, err := g.store.Claim(ctx, scoped, digest, now, g.ttl)
	if err != nil {
		g.claimError(ctx, w, key, err)
		return
	}

	switch outcome {
	case OutcomeReplay:
		replay(w, record)
		return
	case OutcomeInFlight:
		httpx.WriteError(ctx, w, httpx.NewError("idempotency_in_progress", "an earlier request with this idempotency key is still processing", http.StatusConflict))
		return
	}

	capture := newCaptureWriter()
	next.ServeHTTP(capture, r)

	stored := StoredResponse{
		StatusCode: capture.statusCode(),
		Header:     capture.header,
		Body:       capture.body.Bytes(),
	}
	if err := g.store.Complete(ctx, scoped, digest, stored, g.clock().UTC(), g.ttl); err != nil {
		g.logf("idempotency: persist response for key %q: %v", key, err)
		if err := g.store.Forget(ctx, scoped, digest); err != nil {
			g.logf("idempotency: release key %q: %v", key, err)
		}
		httpx.WriteError(ctx, w, httpx.NewError("idempotency_store_error", "unable to record idempotency state", http.StatusInternalServerError))
		return
	}

	capture.flush(w)
}

func (g *guard) claimError(ctx context.Context, w http.ResponseWriter, key string, err error) {
	if errors.Is(err, ErrKeyReused) {
		httpx.WriteError(ctx, w, httpx.NewError("idempotency_key_reused", "idempotency key already used for a different request", http.StatusConflict))
		return
	}
	g.logf("idempotency: claim key %q: %v", key, err)
	httpx.WriteError(ctx, w, httpx.NewError("idempotency_store_error", "unable to record idempotency state", http.StatusInternalServerError))
}

func (g *guard) logf(format string, args ...any) {
	if g.logger != nil {
		g.logger.Printf(format, args...)
	}
}

func bufferBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	if err := r.Body.Close(); err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(data))
	return data, nil
}

func replay(w http.ResponseWriter, record Record) {
	header := w.Header()
	for name := range header {
		header.Del(name)
	}
	for name, values := range record.Header {
		for _, value := range values {
			header.Add(name, value)
		}
	}
	header.Set(headerReplay, "true")

	code := record.StatusCode
	if code == 0 {
		code = http.StatusOK
	}
	w.WriteHeader(code)
	if len(record.Body) > 0 {
		_, _ = w.Write(record.Body)
	}
}

// captureWriter buffers the handler's response so it can be persisted before
// the client sees it.
type captureWriter struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func newCaptureWriter() *captureWriter {
	return &captureWriter{header: make(http.Header)}
}

func (c *captureWriter) Header() http.Header { return c.header }

func (c *captureWriter) WriteHeader(status int) {
	if c.status == 0 && status > 0 {
		c.status = status
	}
}

func (c *captureWriter) Write(data []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	return c.body.Write(data)
}

func (c *captureWriter) statusCode() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}

func (c *captureWriter) flush(w http.ResponseWriter) {
	dst := w.Header()
	for name := range dst {
		dst.Del(name)
	}
	for name, values := range c.header {
		for _, value := range values {
			dst.Add(name, value)
		}
	}
	w.WriteHeader(c.statusCode())
	if c.body.Len() > 0 {
		_, _ = w.Write(c.body.Bytes())
	}
}
