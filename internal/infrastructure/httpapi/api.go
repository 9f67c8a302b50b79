package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"AnnounceRelay/internal/domain"
	"AnnounceRelay/internal/gate"
	"AnnounceRelay/internal/ports"
)

// OperatorHeader carries the acting operator's identity on admin routes.
const OperatorHeader = "X-Operator-ID"

// Pipeline is what the HTTP surface needs from the coordinator.
type Pipeline interface {
	IsOperator(actorID string) bool
	SubmitInbound(ctx context.Context, payload gate.Payload) (domain.Outcome, error)
	Resolve(ctx context.Context, id string, action domain.Action, actorID string) (domain.Resolution, error)
	Pending() []domain.PendingApproval
	Redraft(ctx context.Context, actorID string) (domain.PendingApproval, domain.RecentItem, error)
	Announce(ctx context.Context, actorID, topic string) (domain.PendingApproval, error)
	SetReviewRequired(actorID string, on bool) error
	SetAutonomousMode(actorID string, on bool) error
	SetKillSwitch(actorID string, engaged bool) error
	SetStyle(ctx context.Context, actorID, style string) error
	Status() domain.Status
}

// Pinger reports backing store reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Health describes static facts surfaced by /health.
type Health struct {
	AIKeySet  bool
	AIModel   string
	StoreKind string
	Store     Pinger
}

// Options configures the API.
type Options struct {
	WebhookToken string
	AdminToken   string
	MaxBodyBytes int64
	Health       Health
	Publications ports.PublicationLog
}

// API holds the HTTP handlers.
type API struct {
	pipeline Pipeline
	opts     Options
	validate *validator.Validate
	logger   *slog.Logger
}

func NewAPI(p Pipeline, opts Options, logger *slog.Logger) *API {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	if opts.AdminToken == "" {
		opts.AdminToken = opts.WebhookToken
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &API{
		pipeline: p,
		opts:     opts,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

// Mount registers every route.
func (a *API) Mount(r chi.Router) {
	r.Get("/health", a.health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.With(a.bearer(a.opts.WebhookToken)).Post("/webhook", a.webhook)

	r.Route("/admin", func(r chi.Router) {
		r.Use(a.bearer(a.opts.AdminToken))
		r.Use(a.operator)
		r.Get("/status", a.status)
		r.Get("/approvals", a.listApprovals)
		r.Post("/approvals/{id}", a.resolve)
		r.Get("/publications", a.publications)
		r.Post("/review", a.toggle(a.pipeline.SetReviewRequired))
		r.Post("/autopost", a.toggle(a.pipeline.SetAutonomousMode))
		r.Post("/killswitch", a.toggle(a.pipeline.SetKillSwitch))
		r.Post("/style", a.style)
		r.Post("/draft", a.draft)
		r.Post("/announce", a.announce)
	})
}

type healthResponse struct {
	Status            string `json:"status"`
	AIKeySet          bool   `json:"ai_key_set"`
	AIModel           string `json:"ai_model"`
	WebhookConfigured bool   `json:"webhook_configured"`
	Store             string `json:"store"`
	StoreStatus       string `json:"store_status"`
}

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:            "ok",
		AIKeySet:          a.opts.Health.AIKeySet,
		AIModel:           a.opts.Health.AIModel,
		WebhookConfigured: a.opts.WebhookToken != "",
		Store:             a.opts.Health.StoreKind,
		StoreStatus:       "ok",
	}
	if s := a.opts.Health.Store; s != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.Ping(ctx); err != nil {
			resp.Status, resp.StoreStatus = "degraded", err.Error()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type webhookResponse struct {
	Status         domain.OutcomeStatus `json:"status"`
	ApprovalID     string               `json:"approvalId,omitempty"`
	Preview        string               `json:"preview,omitempty"`
	Rewritten      string               `json:"rewritten,omitempty"`
	ChannelsPosted *int                 `json:"channels_posted,omitempty"`
}

func (a *API) webhook(w http.ResponseWriter, r *http.Request) {
	var payload gate.Payload
	body := http.MaxBytesReader(w, r.Body, a.opts.MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON body"})
		return
	}

	out, err := a.pipeline.SubmitInbound(r.Context(), payload)
	if err != nil {
		a.logger.Info("inbound rejected", "error", err)
		writeError(w, err)
		return
	}

	resp := webhookResponse{Status: out.Status, ApprovalID: out.ApprovalID, Preview: out.Preview}
	if out.Status == domain.StatusPosted {
		resp.Rewritten = out.GeneratedText
		resp.ChannelsPosted = &out.ChannelsPosted
	}
	writeJSON(w, http.StatusOK, resp)
}

type approvalView struct {
	ID            string        `json:"id"`
	Origin        domain.Origin `json:"origin"`
	SourceText    string        `json:"source_text"`
	GeneratedText string        `json:"generated_text"`
	SourceURL     string        `json:"source_url,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}

func viewOf(pa domain.PendingApproval) approvalView {
	return approvalView{
		ID:            pa.ID,
		Origin:        pa.Origin,
		SourceText:    pa.SourceText,
		GeneratedText: pa.GeneratedText,
		SourceURL:     pa.SourceURL,
		CreatedAt:     pa.CreatedAt,
	}
}

func (a *API) listApprovals(w http.ResponseWriter, _ *http.Request) {
	pending := a.pipeline.Pending()
	views := make([]approvalView, 0, len(pending))
	for _, pa := range pending {
		views = append(views, viewOf(pa))
	}
	writeJSON(w, http.StatusOK, views)
}

type resolveRequest struct {
	Action string `json:"action" validate:"required,oneof=publish discard"`
}

func (a *API) resolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if !a.decode(w, r, &req) {
		return
	}
	res, err := a.pipeline.Resolve(r.Context(), chi.URLParam(r, "id"), domain.Action(req.Action), actor(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":              res.ID,
		"action":          res.Action,
		"channels_posted": res.ChannelsPosted,
	})
}

type toggleRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

func (a *API) toggle(set func(actorID string, on bool) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req toggleRequest
		if !a.decode(w, r, &req) {
			return
		}
		if err := set(actor(r), *req.Enabled); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, statusView(a.pipeline.Status()))
	}
}

type styleRequest struct {
	Style string `json:"style" validate:"required"`
}

func (a *API) style(w http.ResponseWriter, r *http.Request) {
	var req styleRequest
	if !a.decode(w, r, &req) {
		return
	}
	if err := a.pipeline.SetStyle(r.Context(), actor(r), req.Style); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusView(a.pipeline.Status()))
}

func (a *API) draft(w http.ResponseWriter, r *http.Request) {
	pa, _, err := a.pipeline.Redraft(r.Context(), actor(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewOf(pa))
}

type announceRequest struct {
	Topic string `json:"topic" validate:"required"`
}

func (a *API) announce(w http.ResponseWriter, r *http.Request) {
	var req announceRequest
	if !a.decode(w, r, &req) {
		return
	}
	pa, err := a.pipeline.Announce(r.Context(), actor(r), req.Topic)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewOf(pa))
}

func (a *API) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statusView(a.pipeline.Status()))
}

type publicationView struct {
	Origin     domain.Origin `json:"origin"`
	ApprovalID string        `json:"approval_id,omitempty"`
	Text       string        `json:"text"`
	SourceURL  string        `json:"source_url,omitempty"`
	Delivered  int           `json:"delivered"`
	Targets    int           `json:"targets"`
	CreatedAt  time.Time     `json:"created_at"`
}

func (a *API) publications(w http.ResponseWriter, r *http.Request) {
	if a.opts.Publications == nil {
		writeJSON(w, http.StatusOK, []publicationView{})
		return
	}
	limit := uint64(20)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || n == 0 || n > 200 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "limit must be 1-200"})
			return
		}
		limit = n
	}
	pubs, err := a.opts.Publications.RecentPublications(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	views := make([]publicationView, 0, len(pubs))
	for _, p := range pubs {
		views = append(views, publicationView(p))
	}
	writeJSON(w, http.StatusOK, views)
}

type statusResponse struct {
	ReviewRequired    bool       `json:"review_required"`
	AutonomousMode    bool       `json:"autonomous_mode"`
	KillSwitchEngaged bool       `json:"kill_switch_engaged"`
	ShadowMode        bool       `json:"shadow_mode"`
	PendingApprovals  int        `json:"pending_approvals"`
	Fingerprints      int        `json:"dedup_fingerprints"`
	Destinations      int        `json:"destinations"`
	ConfiguredTopics  int        `json:"configured_topics"`
	NextTopicCursor   int        `json:"next_topic_cursor"`
	Style             string     `json:"style"`
	LastAcceptedAt    *time.Time `json:"last_accepted_at,omitempty"`
	LastAutoPublishAt *time.Time `json:"last_auto_publish_at,omitempty"`
	LastInboundAt     *time.Time `json:"last_inbound_at,omitempty"`
}

func statusView(st domain.Status) statusResponse {
	return statusResponse{
		ReviewRequired:    st.ReviewRequired,
		AutonomousMode:    st.AutonomousMode,
		KillSwitchEngaged: st.KillSwitchEngaged,
		ShadowMode:        st.ShadowMode,
		PendingApprovals:  st.PendingApprovals,
		Fingerprints:      st.Fingerprints,
		Destinations:      st.Destinations,
		ConfiguredTopics:  st.ConfiguredTopics,
		NextTopicCursor:   st.NextTopicCursor,
		Style:             st.Style,
		LastAcceptedAt:    optionalTime(st.LastAcceptedAt),
		LastAutoPublishAt: optionalTime(st.LastAutoPublishAt),
		LastInboundAt:     optionalTime(st.LastInboundAt),
	}
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// decode reads a JSON body and validates it, writing a 400 on failure.
func (a *API) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, a.opts.MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON body"})
		return false
	}
	if err := a.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid field: " + strings.ToLower(verrs[0].Field())})
			return false
		}
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return false
	}
	return true
}

// bearer guards a route with a shared secret. An empty secret disables the route.
func (a *API) bearer(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "auth token not configured"})
				return
			}
			got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type actorKey struct{}

func (a *API) operator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(OperatorHeader))
		if id == "" || !a.pipeline.IsOperator(id) {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unknown operator"})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorKey{}, id)))
	})
}

func actor(r *http.Request) string {
	id, _ := r.Context().Value(actorKey{}).(string)
	return id
}
