package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Aafimalek/prompt-to-animate/internal/entity"
	"github.com/Aafimalek/prompt-to-animate/internal/service"
)

type Admitter interface {
	CreateJob(ctx context.Context, req service.CreateJobRequest) (service.Admission, error)
}

type ProgressRelay interface {
	Snapshot(ctx context.Context, jobID string) (entity.Progress, error)
	Stream(ctx context.Context, jobID string, emit func(entity.Progress) error) (entity.Progress, error)
	Await(ctx context.Context, jobID string) (entity.Progress, error)
}

type QuotaManager interface {
	Usage(ctx context.Context, userID string) (entity.Usage, error)
	GrantCredits(ctx context.Context, userID string, n int) error
	SetTier(ctx context.Context, userID string, tier entity.Tier, active bool) error
}

type HistoryStore interface {
	List(ctx context.Context, userID string, limit int) ([]entity.Generation, error)
	Get(ctx context.Context, userID, id string) (*entity.Generation, error)
	Delete(ctx context.Context, userID, id string) error
}

// ObjectStore re-signs and deletes stored videos. Optional.
type ObjectStore interface {
	URL(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}

type HealthChecker interface {
	Check(ctx context.Context) service.Health
}

type Deps struct {
	Jobs          Admitter
	Relay         ProgressRelay
	Quota         QuotaManager
	History       HistoryStore
	Objects       ObjectStore
	Health        HealthChecker
	Auth          *Authenticator
	WebhookSecret string
	VideoDir      string
}

type Handler struct {
	d   Deps
	log zerolog.Logger
}

func NewHandler(d Deps, log zerolog.Logger) *Handler {
	if d.Auth == nil {
		d.Auth = NewAuthenticator("")
	}
	return &Handler{d: d, log: log}
}

// userID prefers the token subject. Without token auth the body field or
// the user_id query parameter is trusted.
func (h *Handler) userID(r *http.Request, fromBody string) string {
	if id, ok := UserFromContext(r.Context()); ok {
		return id
	}
	if h.d.Auth.Enforced() {
		return ""
	}
	if id := strings.TrimSpace(fromBody); id != "" {
		return id
	}
	return strings.TrimSpace(r.URL.Query().Get("user_id"))
}

type generateDTO struct {
	Prompt     string `json:"prompt"`
	Length     string `json:"length"`
	Resolution string `json:"resolution"`
	UserID     string `json:"user_id,omitempty"`
}

type createJobResp struct {
	JobID     string      `json:"job_id"`
	Tier      entity.Tier `json:"tier"`
	Remaining int         `json:"remaining"`
	Length    string      `json:"length"`
	Quality   string      `json:"quality"`
}

type generateResp struct {
	JobID    string `json:"job_id"`
	VideoURL string `json:"video_url"`
	Code     string `json:"code"`
	ChatID   string `json:"chat_id,omitempty"`
	Degraded bool   `json:"degraded,omitempty"`
}

func (h *Handler) decodeGenerate(w http.ResponseWriter, r *http.Request) (service.CreateJobRequest, bool) {
	var dto generateDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		respondMessage(w, http.StatusBadRequest, "invalid json")
		return service.CreateJobRequest{}, false
	}
	return service.CreateJobRequest{
		UserID:     h.userID(r, dto.UserID),
		Prompt:     dto.Prompt,
		Length:     dto.Length,
		Resolution: dto.Resolution,
	}, true
}

func deniedErr(adm service.Admission, err error) apiError {
	out := apiError{Message: entity.UserMessage(err)}
	if !adm.Decision.ResetAt.IsZero() {
		t := adm.Decision.ResetAt
		out.ResetAt = &t
	}
	return out
}

// CreateJob godoc
// @Summary Submit a generation job
// @Description Checks the caller's quota and enqueues the job without waiting for it.
// @Tags jobs
// @Accept json
// @Produce json
// @Param request body generateDTO true "prompt, length and resolution"
// @Success 202 {object} createJobResp
// @Failure 400 {object} apiError
// @Failure 401 {object} apiError
// @Failure 403 {object} apiError
// @Failure 503 {object} apiError
// @Router /jobs [post]
func (h *Handler) CreateJob(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeGenerate(w, r)
	if !ok {
		return
	}
	adm, err := h.d.Jobs.CreateJob(r.Context(), req)
	if err != nil {
		if entity.KindOf(err) == entity.KindAdmissionDenied {
			respond(w, http.StatusForbidden, deniedErr(adm, err))
			return
		}
		respondError(w, err)
		return
	}
	respond(w, http.StatusAccepted, createJobResp{
		JobID:     adm.JobID,
		Tier:      adm.Decision.Tier,
		Remaining: adm.Decision.Remaining,
		Length:    string(adm.Length),
		Quality:   string(adm.Quality),
	})
}

// GenerateStream godoc
// @Summary Submit a job and stream its progress
// @Description Server-sent events; each event is a progress record. A quota denial is sent as a single step -1 event.
// @Tags jobs
// @Accept json
// @Produce text/event-stream
// @Param request body generateDTO true "prompt, length and resolution"
// @Success 200 {object} entity.Progress
// @Failure 400 {object} apiError
// @Failure 401 {object} apiError
// @Router /generate/stream [post]
func (h *Handler) GenerateStream(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeGenerate(w, r)
	if !ok {
		return
	}
	if req.UserID == "" {
		respondMessage(w, http.StatusUnauthorized, "Authentication required. Please sign in to generate videos.")
		return
	}

	adm, err := h.d.Jobs.CreateJob(r.Context(), req)
	switch entity.KindOf(err) {
	case entity.KindUnauthenticated, entity.KindInvalidRequest:
		respondError(w, err)
		return
	}

	if adm.JobID != "" {
		w.Header().Set("X-Job-ID", adm.JobID)
	}
	sse, serr := newSSE(w)
	if serr != nil {
		respondMessage(w, http.StatusInternalServerError, serr.Error())
		return
	}
	if err != nil {
		_ = sse.Send(entity.FailedProgress(entity.UserMessage(err)))
		return
	}
	h.stream(r.Context(), sse, adm.JobID)
}

// JobEvents godoc
// @Summary Stream progress of an existing job
// @Tags jobs
// @Produce text/event-stream
// @Param id path string true "job id (uuid)"
// @Success 200 {object} entity.Progress
// @Failure 400 {object} apiError
// @Router /jobs/{id}/events [get]
func (h *Handler) JobEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := jobIDParam(w, r)
	if !ok {
		return
	}
	sse, err := newSSE(w)
	if err != nil {
		respondMessage(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.stream(r.Context(), sse, id)
}

func (h *Handler) stream(ctx context.Context, sse *sseWriter, jobID string) {
	_, err := h.d.Relay.Stream(ctx, jobID, func(p entity.Progress) error {
		return sse.Send(p)
	})
	switch {
	case err == nil, entity.KindOf(err) == entity.KindTimeoutFailure:
	case errors.Is(err, context.Canceled):
		h.log.Info().Str("job_id", jobID).Msg("client disconnected from progress stream")
	default:
		h.log.Warn().Err(err).Str("job_id", jobID).Msg("progress stream ended")
	}
}

// Generate godoc
// @Summary Submit a job and wait for the video
// @Tags jobs
// @Accept json
// @Produce json
// @Param request body generateDTO true "prompt, length and resolution"
// @Success 200 {object} generateResp
// @Failure 400 {object} apiError
// @Failure 401 {object} apiError
// @Failure 403 {object} apiError
// @Failure 500 {object} apiError
// @Failure 504 {object} apiError
// @Router /generate [post]
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeGenerate(w, r)
	if !ok {
		return
	}
	adm, err := h.d.Jobs.CreateJob(r.Context(), req)
	if err != nil {
		if entity.KindOf(err) == entity.KindAdmissionDenied {
			respond(w, http.StatusForbidden, deniedErr(adm, err))
			return
		}
		respondError(w, err)
		return
	}

	p, err := h.d.Relay.Await(r.Context(), adm.JobID)
	if err != nil {
		switch {
		case errors.Is(err, context.Canceled):
			return
		case entity.KindOf(err) == entity.KindTimeoutFailure:
			respondMessage(w, http.StatusGatewayTimeout, "Job timed out")
		default:
			respondMessage(w, http.StatusInternalServerError, entity.UserMessage(err))
		}
		return
	}
	respond(w, http.StatusOK, generateResp{
		JobID:    adm.JobID,
		VideoURL: p.VideoURL,
		Code:     p.Code,
		ChatID:   p.ChatID,
		Degraded: p.Degraded,
	})
}

// JobStatus godoc
// @Summary Poll job progress
// @Description Returns the latest progress record. Unknown or not yet started jobs report step 0.
// @Tags jobs
// @Produce json
// @Param id path string true "job id (uuid)"
// @Success 200 {object} entity.Progress
// @Failure 400 {object} apiError
// @Failure 503 {object} apiError
// @Router /jobs/{id}/status [get]
func (h *Handler) JobStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := jobIDParam(w, r)
	if !ok {
		return
	}
	p, err := h.d.Relay.Snapshot(r.Context(), id)
	if err != nil {
		h.log.Error().Err(err).Str("job_id", id).Msg("read job status")
		respondMessage(w, http.StatusServiceUnavailable, "progress store unavailable")
		return
	}
	respond(w, http.StatusOK, p)
}

func jobIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		respondMessage(w, http.StatusBadRequest, "invalid id")
		return "", false
	}
	return id, true
}

// Usage godoc
// @Summary Quota usage for the caller
// @Tags quota
// @Produce json
// @Success 200 {object} entity.Usage
// @Failure 401 {object} apiError
// @Router /usage [get]
func (h *Handler) Usage(w http.ResponseWriter, r *http.Request) {
	user := h.userID(r, "")
	if user == "" {
		respondMessage(w, http.StatusUnauthorized, "authentication required")
		return
	}
	u, err := h.d.Quota.Usage(r.Context(), user)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", user).Msg("read usage")
		respondMessage(w, http.StatusInternalServerError, "failed to read usage")
		return
	}
	respond(w, http.StatusOK, u)
}

type chatResp struct {
	ID        string    `json:"id"`
	Prompt    string    `json:"prompt"`
	Length    string    `json:"length"`
	VideoURL  string    `json:"video_url"`
	Code      string    `json:"code,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type chatListResp struct {
	Chats []chatResp `json:"chats"`
}

// chatURL re-signs stored objects so old history entries stay playable.
func (h *Handler) chatURL(ctx context.Context, g entity.Generation) string {
	if g.StorageKey == "" || h.d.Objects == nil {
		return g.VideoURL
	}
	u, err := h.d.Objects.URL(ctx, g.StorageKey)
	if err != nil {
		h.log.Warn().Err(err).Str("key", g.StorageKey).Msg("re-sign video url")
		return g.VideoURL
	}
	return u
}

// ListChats godoc
// @Summary List the caller's generations, newest first
// @Tags chats
// @Produce json
// @Success 200 {object} chatListResp
// @Failure 401 {object} apiError
// @Router /chats [get]
func (h *Handler) ListChats(w http.ResponseWriter, r *http.Request) {
	user := h.userID(r, "")
	if user == "" {
		respondMessage(w, http.StatusUnauthorized, "authentication required")
		return
	}
	items, err := h.d.History.List(r.Context(), user, 100)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", user).Msg("list chats")
		respondMessage(w, http.StatusInternalServerError, "failed to list chats")
		return
	}
	resp := chatListResp{Chats: make([]chatResp, 0, len(items))}
	for _, g := range items {
		resp.Chats = append(resp.Chats, chatResp{
			ID:        g.ID,
			Prompt:    g.Prompt,
			Length:    string(g.Length),
			VideoURL:  h.chatURL(r.Context(), g),
			CreatedAt: g.CreatedAt,
		})
	}
	respond(w, http.StatusOK, resp)
}

// GetChat godoc
// @Summary Get one generation with its code
// @Tags chats
// @Produce json
// @Param chatID path string true "chat id"
// @Success 200 {object} chatResp
// @Failure 401 {object} apiError
// @Failure 404 {object} apiError
// @Router /chats/{chatID} [get]
func (h *Handler) GetChat(w http.ResponseWriter, r *http.Request) {
	user := h.userID(r, "")
	if user == "" {
		respondMessage(w, http.StatusUnauthorized, "authentication required")
		return
	}
	g, err := h.d.History.Get(r.Context(), user, chi.URLParam(r, "chatID"))
	if err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			respondMessage(w, http.StatusNotFound, "Chat not found")
			return
		}
		respondMessage(w, http.StatusInternalServerError, "failed to read chat")
		return
	}
	respond(w, http.StatusOK, chatResp{
		ID:        g.ID,
		Prompt:    g.Prompt,
		Length:    string(g.Length),
		VideoURL:  h.chatURL(r.Context(), *g),
		Code:      g.Code,
		CreatedAt: g.CreatedAt,
	})
}

// DeleteChat godoc
// @Summary Delete one of the caller's generations
// @Tags chats
// @Param chatID path string true "chat id"
// @Success 204
// @Failure 401 {object} apiError
// @Failure 404 {object} apiError
// @Router /chats/{chatID} [delete]
func (h *Handler) DeleteChat(w http.ResponseWriter, r *http.Request) {
	user := h.userID(r, "")
	if user == "" {
		respondMessage(w, http.StatusUnauthorized, "authentication required")
		return
	}
	chatID := chi.URLParam(r, "chatID")
	g, err := h.d.History.Get(r.Context(), user, chatID)
	if err == nil {
		err = h.d.History.Delete(r.Context(), user, chatID)
	}
	if err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			respondMessage(w, http.StatusNotFound, "Chat not found or unauthorized")
			return
		}
		respondMessage(w, http.StatusInternalServerError, "failed to delete chat")
		return
	}
	if g.StorageKey != "" && h.d.Objects != nil {
		if err := h.d.Objects.Delete(r.Context(), g.StorageKey); err != nil {
			h.log.Warn().Err(err).Str("key", g.StorageKey).Msg("delete stored video")
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// Health godoc
// @Summary Liveness of the api and its stores
// @Tags system
// @Produce json
// @Success 200 {object} service.Health
// @Failure 503 {object} service.Health
// @Router /health [get]
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	st := h.d.Health.Check(r.Context())
	code := http.StatusOK
	if st.Status == service.HealthUnhealthy {
		code = http.StatusServiceUnavailable
	}
	respond(w, code, st)
}
