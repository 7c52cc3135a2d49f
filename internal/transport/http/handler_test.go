package httptransport_test

import (
	"bufio"
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Aafimalek/prompt-to-animate/internal/entity"
	"github.com/Aafimalek/prompt-to-animate/internal/repository/memory"
	"github.com/Aafimalek/prompt-to-animate/internal/service"
	httptransport "github.com/Aafimalek/prompt-to-animate/internal/transport/http"
)

// ---- fakes ----

type queueStub struct {
	jobs []entity.Job
}

func (q *queueStub) Enqueue(ctx context.Context, job entity.Job) (string, error) {
	q.jobs = append(q.jobs, job)
	return job.ID, nil
}

type relayStub struct {
	events   []entity.Progress
	snapshot entity.Progress
	awaitErr error
}

func (r *relayStub) Snapshot(ctx context.Context, jobID string) (entity.Progress, error) {
	return r.snapshot, nil
}

func (r *relayStub) Stream(ctx context.Context, jobID string, emit func(entity.Progress) error) (entity.Progress, error) {
	var last entity.Progress
	for _, p := range r.events {
		if err := emit(p); err != nil {
			return p, err
		}
		last = p
	}
	return last, nil
}

func (r *relayStub) Await(ctx context.Context, jobID string) (entity.Progress, error) {
	if r.awaitErr != nil {
		return entity.Progress{}, r.awaitErr
	}
	return r.events[len(r.events)-1], nil
}

type healthStub struct{ h service.Health }

func (s healthStub) Check(ctx context.Context) service.Health { return s.h }

type objectsStub struct {
	deleted []string
}

func (o *objectsStub) URL(ctx context.Context, key string) (string, error) {
	return "https://signed/" + key, nil
}

func (o *objectsStub) Delete(ctx context.Context, key string) error {
	o.deleted = append(o.deleted, key)
	return nil
}

type env struct {
	quotaRepo *memory.QuotaRepository
	quota     *service.QuotaService
	queue     *queueStub
	relay     *relayStub
	history   *memory.HistoryRepository
	objects   *objectsStub
	handler   http.Handler
}

type envOpt func(*httptransport.Deps)

func withJWT(secret string) envOpt {
	return func(d *httptransport.Deps) { d.Auth = httptransport.NewAuthenticator(secret) }
}

func withWebhookSecret(secret string) envOpt {
	return func(d *httptransport.Deps) { d.WebhookSecret = secret }
}

func withHealth(h service.Health) envOpt {
	return func(d *httptransport.Deps) { d.Health = healthStub{h} }
}

func newEnv(t *testing.T, opts ...envOpt) *env {
	t.Helper()
	e := &env{
		quotaRepo: memory.NewQuotaRepository(),
		queue:     &queueStub{},
		relay:     &relayStub{},
		history:   memory.NewHistoryRepository(),
		objects:   &objectsStub{},
	}
	e.quota = service.NewQuotaService(e.quotaRepo, zerolog.Nop())
	jobs := service.NewJobService(e.quota, e.queue, time.Minute, time.Hour, zerolog.Nop())

	d := httptransport.Deps{
		Jobs:    jobs,
		Relay:   e.relay,
		Quota:   e.quota,
		History: e.history,
		Objects: e.objects,
		Health:  healthStub{service.Health{Status: "healthy", Redis: "connected", Postgres: "disabled"}},
	}
	for _, o := range opts {
		o(&d)
	}
	e.handler = httptransport.Routes(httptransport.NewHandler(d, zerolog.Nop()), zerolog.Nop())
	return e
}

func (e *env) do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func postJSON(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func sseEvents(t *testing.T, body string) []entity.Progress {
	t.Helper()
	var out []entity.Progress
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var p entity.Progress
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &p); err != nil {
			t.Fatalf("bad event %q: %v", line, err)
		}
		out = append(out, p)
	}
	return out
}

// ---- tests ----

func TestHTTP_CreateJob_202(t *testing.T) {
	e := newEnv(t)

	rr := e.do(postJSON("/jobs", `{"prompt":"draw a circle","length":"Short (5s)","resolution":"4k","user_id":"u1"}`))
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d body=%s", rr.Code, rr.Body.String())
	}

	var resp struct {
		JobID     string `json:"job_id"`
		Tier      string `json:"tier"`
		Remaining int    `json:"remaining"`
		Quality   string `json:"quality"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, err := uuid.Parse(resp.JobID); err != nil {
		t.Fatalf("expected uuid job id, got %q", resp.JobID)
	}
	if resp.Tier != "free" || resp.Remaining != 5 || resp.Quality != "720p30" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if len(e.queue.jobs) != 1 || e.queue.jobs[0].UserID != "u1" {
		t.Fatalf("expected one job for u1, got %+v", e.queue.jobs)
	}
}

func TestHTTP_CreateJob_401_WithoutUser(t *testing.T) {
	e := newEnv(t)

	rr := e.do(postJSON("/jobs", `{"prompt":"draw a circle"}`))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if len(e.queue.jobs) != 0 {
		t.Fatalf("expected nothing enqueued")
	}
}

func TestHTTP_CreateJob_400(t *testing.T) {
	e := newEnv(t)

	cases := map[string]string{
		"bad_json":   `{`,
		"no_prompt":  `{"user_id":"u1","prompt":""}`,
		"bad_length": `{"user_id":"u1","prompt":"x","length":"forever"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rr := e.do(postJSON("/jobs", body))
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d body=%s", rr.Code, rr.Body.String())
			}
		})
	}
}

func TestHTTP_CreateJob_403_CarriesResetAt(t *testing.T) {
	e := newEnv(t)
	resetAt := entity.NextMonthStart(time.Now())
	e.quotaRepo.Put(entity.QuotaState{
		UserID:       "u1",
		Tier:         entity.TierFree,
		MonthlyCount: 5,
		ResetAt:      resetAt,
	})

	rr := e.do(postJSON("/jobs", `{"prompt":"x","user_id":"u1"}`))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
	var resp struct {
		Message string    `json:"message"`
		ResetAt time.Time `json:"reset_at"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Message == "" || !resp.ResetAt.Equal(resetAt) {
		t.Fatalf("unexpected denial %+v", resp)
	}
	if len(e.queue.jobs) != 0 {
		t.Fatalf("denied request must not enqueue")
	}
}

func TestHTTP_JobStatus(t *testing.T) {
	e := newEnv(t)
	e.relay.snapshot = entity.Progress{Step: 4, Status: "rendering", Message: "Rendering animation frames..."}

	rr := e.do(httptest.NewRequest(http.MethodGet, "/jobs/not-a-uuid/status", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad id, got %d", rr.Code)
	}

	rr = e.do(httptest.NewRequest(http.MethodGet, "/jobs/"+uuid.NewString()+"/status", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var p entity.Progress
	if err := json.Unmarshal(rr.Body.Bytes(), &p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Step != 4 {
		t.Fatalf("expected step 4, got %+v", p)
	}
}

func TestHTTP_GenerateStream(t *testing.T) {
	e := newEnv(t)
	e.relay.events = []entity.Progress{
		{Step: 1, Status: "analyzing"},
		{Step: 3, Status: "code_ready"},
		{Step: 6, Status: "complete", VideoURL: "https://cdn/v.mp4"},
	}

	rr := e.do(postJSON("/generate/stream", `{"prompt":"x","user_id":"u1"}`))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected event stream, got %q", ct)
	}
	if rr.Header().Get("X-Job-ID") == "" {
		t.Fatalf("expected X-Job-ID header")
	}
	events := sseEvents(t, rr.Body.String())
	if len(events) != 3 || events[2].VideoURL == "" {
		t.Fatalf("unexpected events %+v", events)
	}
}

func TestHTTP_GenerateStream_DenialIsEvent(t *testing.T) {
	e := newEnv(t)
	e.quotaRepo.Put(entity.QuotaState{
		UserID:       "u1",
		Tier:         entity.TierFree,
		MonthlyCount: 5,
		ResetAt:      entity.NextMonthStart(time.Now()),
	})

	rr := e.do(postJSON("/generate/stream", `{"prompt":"x","user_id":"u1"}`))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 stream, got %d", rr.Code)
	}
	events := sseEvents(t, rr.Body.String())
	if len(events) != 1 || events[0].Step != entity.StepFailed || events[0].Message == "" {
		t.Fatalf("expected single failure event, got %+v", events)
	}
	if len(e.queue.jobs) != 0 {
		t.Fatalf("denied request must not enqueue")
	}
}

func TestHTTP_GenerateStream_401(t *testing.T) {
	e := newEnv(t)

	rr := e.do(postJSON("/generate/stream", `{"prompt":"x"}`))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestHTTP_Generate(t *testing.T) {
	t.Run("complete", func(t *testing.T) {
		e := newEnv(t)
		e.relay.events = []entity.Progress{{Step: 6, Status: "complete", VideoURL: "https://cdn/v.mp4", Code: "code", ChatID: "c1"}}

		rr := e.do(postJSON("/generate", `{"prompt":"x","user_id":"u1"}`))
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
		var resp struct {
			VideoURL string `json:"video_url"`
			ChatID   string `json:"chat_id"`
		}
		_ = json.Unmarshal(rr.Body.Bytes(), &resp)
		if resp.VideoURL != "https://cdn/v.mp4" || resp.ChatID != "c1" {
			t.Fatalf("unexpected response %+v", resp)
		}
	})

	t.Run("failed", func(t *testing.T) {
		e := newEnv(t)
		e.relay.awaitErr = entity.NewError(entity.KindCollaboratorFailure, "manim execution failed")

		rr := e.do(postJSON("/generate", `{"prompt":"x","user_id":"u1"}`))
		if rr.Code != http.StatusInternalServerError {
			t.Fatalf("expected 500, got %d", rr.Code)
		}
	})

	t.Run("timeout", func(t *testing.T) {
		e := newEnv(t)
		e.relay.awaitErr = entity.NewError(entity.KindTimeoutFailure, "Job timed out. Please try again.")

		rr := e.do(postJSON("/generate", `{"prompt":"x","user_id":"u1"}`))
		if rr.Code != http.StatusGatewayTimeout {
			t.Fatalf("expected 504, got %d", rr.Code)
		}
	})
}

func TestHTTP_JWTIdentity(t *testing.T) {
	const secret = "test-secret"
	e := newEnv(t, withJWT(secret))

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "jwt-user",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	// body user_id is ignored once tokens are enforced
	req := postJSON("/jobs", `{"prompt":"x","user_id":"spoofed"}`)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := e.do(req)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d body=%s", rr.Code, rr.Body.String())
	}
	if e.queue.jobs[0].UserID != "jwt-user" {
		t.Fatalf("expected token subject, got %q", e.queue.jobs[0].UserID)
	}

	rr = e.do(postJSON("/jobs", `{"prompt":"x","user_id":"spoofed"}`))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rr.Code)
	}

	req = postJSON("/jobs", `{"prompt":"x"}`)
	req.Header.Set("Authorization", "Bearer not-a-token")
	if rr := e.do(req); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", rr.Code)
	}
}

func TestHTTP_Usage(t *testing.T) {
	e := newEnv(t)

	rr := e.do(httptest.NewRequest(http.MethodGet, "/usage", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}

	rr = e.do(httptest.NewRequest(http.MethodGet, "/usage?user_id=u1", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var u entity.Usage
	if err := json.Unmarshal(rr.Body.Bytes(), &u); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if u.Tier != entity.TierFree || u.Limit != 5 || u.Remaining != 5 {
		t.Fatalf("unexpected usage %+v", u)
	}
}

func TestHTTP_Chats(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id, err := e.history.Save(ctx, entity.Generation{
		UserID:     "u1",
		JobID:      uuid.NewString(),
		Prompt:     "draw a circle",
		Length:     entity.LengthShort,
		VideoURL:   "https://old-signature",
		StorageKey: "videos/a.mp4",
		Code:       "code",
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	rr := e.do(httptest.NewRequest(http.MethodGet, "/chats?user_id=u1", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var list struct {
		Chats []struct {
			ID       string `json:"id"`
			VideoURL string `json:"video_url"`
		} `json:"chats"`
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &list)
	if len(list.Chats) != 1 || list.Chats[0].VideoURL != "https://signed/videos/a.mp4" {
		t.Fatalf("expected re-signed chat, got %+v", list)
	}

	rr = e.do(httptest.NewRequest(http.MethodGet, "/chats/"+id+"?user_id=other", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for other user, got %d", rr.Code)
	}

	rr = e.do(httptest.NewRequest(http.MethodDelete, "/chats/"+id+"?user_id=u1", nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if len(e.objects.deleted) != 1 || e.objects.deleted[0] != "videos/a.mp4" {
		t.Fatalf("expected stored video deleted, got %v", e.objects.deleted)
	}
	rr = e.do(httptest.NewRequest(http.MethodGet, "/chats/"+id+"?user_id=u1", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rr.Code)
	}
}

func sign(body, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestHTTP_PaymentWebhook(t *testing.T) {
	const secret = "whsec"
	e := newEnv(t, withWebhookSecret(secret))

	body := `{"event_type":"payment_succeeded","user_id":"u1","product_id":"prod_basic_pack"}`

	req := postJSON("/webhook/payment", body)
	req.Header.Set("X-Signature", "deadbeef")
	if rr := e.do(req); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad signature, got %d", rr.Code)
	}

	req = postJSON("/webhook/payment", body)
	req.Header.Set("X-Signature", "sha256="+sign(body, secret))
	if rr := e.do(req); rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	u, _ := e.quota.Usage(context.Background(), "u1")
	if u.BasicCredits != 5 {
		t.Fatalf("expected 5 credits, got %+v", u)
	}

	body = `{"event_type":"subscription_active","user_id":"u1"}`
	req = postJSON("/webhook/payment", body)
	req.Header.Set("X-Signature", sign(body, secret))
	if rr := e.do(req); rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	u, _ = e.quota.Usage(context.Background(), "u1")
	if u.Tier != entity.TierPro {
		t.Fatalf("expected pro, got %+v", u)
	}
}

func TestHTTP_Health(t *testing.T) {
	e := newEnv(t)
	if rr := e.do(httptest.NewRequest(http.MethodGet, "/health", nil)); rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	e = newEnv(t, withHealth(service.Health{Status: "unhealthy", Redis: "disconnected", Postgres: "disabled"}))
	if rr := e.do(httptest.NewRequest(http.MethodGet, "/health", nil)); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}
