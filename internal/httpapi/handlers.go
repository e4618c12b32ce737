package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"meritlog.org/internal/auth"
	"meritlog.org/internal/entity"
	"meritlog.org/internal/obs"
	"meritlog.org/internal/session"
	"meritlog.org/internal/tracker"
)

const serviceName = "meritlog-api"

// ReadyProbe reports readiness: the database answers pings and the first session
// check has completed.
type ReadyProbe struct {
	DB       *sql.DB
	Sessions *session.Manager
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.Sessions != nil && rp.Sessions.Resolving() {
		return errors.New("session check pending")
	}
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Services are the collaborators the HTTP layer drives.
type Services struct {
	Remote   tracker.Remote
	Store    *entity.Store
	Sessions *session.Manager
	Provider *session.TokenProvider
	Verifier *auth.Verifier
}

// API is the HTTP surface of the session engine.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string
	svc        Services
	now        func() time.Time

	rateBurst  int
	ratePerSec int
	maxBody    int64
	signInWait time.Duration
}

// Option tunes API.
type Option func(*API)

// WithRateLimit sets the per-client token bucket.
func WithRateLimit(burst, perSecond int) Option {
	return func(a *API) {
		if burst > 0 && perSecond > 0 {
			a.rateBurst, a.ratePerSec = burst, perSecond
		}
	}
}

// WithMaxBody caps request bodies; uploads travel base64-encoded inside JSON.
func WithMaxBody(n int64) Option {
	return func(a *API) {
		if n > 0 {
			a.maxBody = n
		}
	}
}

func New(rp ReadyProbe, version string, svc Services, opts ...Option) *API {
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: rp,
		version:    version,
		svc:        svc,
		now:        func() time.Time { return time.Now().UTC() },
		rateBurst:  20,
		ratePerSec: 10,
		maxBody:    16 << 20,
		signInWait: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(a)
	}

	// health/ready/info
	a.mux.HandleFunc("GET /healthz", a.Healthz)
	a.mux.HandleFunc("GET /readyz", a.Ready)
	a.mux.HandleFunc("GET /v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("GET /metrics", obs.Handler())

	// session
	a.mux.HandleFunc("POST /v1/session", a.signIn)
	a.mux.HandleFunc("GET /v1/session", a.withUser(a.getSession))
	a.mux.HandleFunc("DELETE /v1/session", a.withSession(a.signOut))
	a.mux.HandleFunc("GET /v1/session/events", a.withUser(a.Stream))

	// records
	a.mux.HandleFunc("GET /v1/achievements", a.withSession(a.listAchievements))
	a.mux.HandleFunc("POST /v1/achievements", a.withSession(a.createAchievement))
	a.mux.HandleFunc("PATCH /v1/achievements/{id}", a.withSession(a.updateAchievement))
	a.mux.HandleFunc("DELETE /v1/achievements/{id}", a.withSession(a.deleteAchievement))
	a.mux.HandleFunc("GET /v1/goals", a.withSession(a.listGoals))
	a.mux.HandleFunc("POST /v1/goals", a.withSession(a.createGoal))
	a.mux.HandleFunc("PATCH /v1/goals/{id}", a.withSession(a.updateGoal))
	a.mux.HandleFunc("POST /v1/goals/{id}/toggle", a.withSession(a.toggleGoal))
	a.mux.HandleFunc("DELETE /v1/goals/{id}", a.withSession(a.deleteGoal))
	a.mux.HandleFunc("GET /v1/files", a.withSession(a.listFiles))
	a.mux.HandleFunc("DELETE /v1/files/{id}", a.withSession(a.deleteFile))
	a.mux.HandleFunc("GET /v1/profile", a.withSession(a.getProfile))
	a.mux.HandleFunc("PATCH /v1/profile", a.withSession(a.updateProfile))
	a.mux.HandleFunc("POST /v1/profile/refresh", a.withSession(a.refreshProfile))
	a.mux.HandleFunc("PUT /v1/profile/avatar", a.withSession(a.uploadAvatar))
	a.mux.HandleFunc("GET /v1/metrics", a.withSession(a.getMetrics))

	// derived views
	a.mux.HandleFunc("GET /v1/insights/streak", a.withSession(a.getStreak))
	a.mux.HandleFunc("GET /v1/insights/gaps", a.withSession(a.getGaps))
	a.mux.HandleFunc("GET /v1/insights/report", a.withSession(a.getReport))
	a.mux.HandleFunc("GET /v1/portfolio/{userId}", a.getPortfolio)

	// public blob URLs
	a.mux.HandleFunc("GET /storage/{bucket}/{path...}", a.serveBlob)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "resource not found")
	})

	return a
}

// Handler wraps the mux in the middleware chain and metrics.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = MaxBodyBytes(h, a.maxBody)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = Logging(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":       serviceName,
		"time":       a.now().Format(time.RFC3339),
		"version":    a.version,
		"categories": tracker.Categories,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

// handleStoreError maps store and remote errors to HTTP statuses.
func handleStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, tracker.ErrInvalidInput), errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, tracker.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not found")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		writeError(w, r, http.StatusGatewayTimeout, "request cancelled")
	default:
		obs.Logger().Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, r, http.StatusBadGateway, "remote store error")
	}
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errors.New("request body too large")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func parseOptionalDate(raw *string) (*time.Time, error) {
	if raw == nil {
		return nil, nil
	}
	if strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	d, err := tracker.ParseDate(*raw)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
