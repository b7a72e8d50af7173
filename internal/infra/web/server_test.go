package web_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"dq-agent/internal/domain"
	"dq-agent/internal/domain/model"
	"dq-agent/internal/domain/ports/adapter"
	"dq-agent/internal/infra/auth"
	"dq-agent/internal/infra/web"
	"dq-agent/internal/infra/ws"
	"dq-agent/internal/usecase"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

type fakeDispatchUC struct {
	result   *usecase.DispatchResult
	session  *model.TaskSession
	err      error
	lastText string
	lastUser adapter.Identity
	lastIP   string
}

func (f *fakeDispatchUC) Handle(ctx context.Context, user adapter.Identity, text, sourceIP, websocketURL string) (*usecase.DispatchResult, error) {
	f.lastText = text
	f.lastUser = user
	f.lastIP = sourceIP
	return f.result, f.err
}

func (f *fakeDispatchUC) TaskStatus(ctx context.Context, user adapter.Identity, taskID string) (*model.TaskSession, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.session, nil
}

type fakeResultUC struct {
	reply     string
	err       error
	lastEvent model.JobEvent
	progress  int
}

func (f *fakeResultUC) HandleResult(ctx context.Context, ev model.JobEvent) (string, error) {
	f.lastEvent = ev
	return f.reply, f.err
}

func (f *fakeResultUC) HandleProgress(ctx context.Context, ev model.JobEvent) {
	f.lastEvent = ev
	f.progress++
}

type stubChannel struct{ frames []interface{} }

func (s *stubChannel) WriteJSON(v interface{}) error {
	s.frames = append(s.frames, v)
	return nil
}
func (s *stubChannel) Close() error { return nil }

type serverFixture struct {
	srv      *httptest.Server
	dispatch *fakeDispatchUC
	result   *fakeResultUC
	registry *ws.ConnectionRegistry
}

func newServerFixture(t *testing.T, secret string) *serverFixture {
	t.Helper()
	logger := zerolog.Nop()
	registry := ws.NewConnectionRegistry()
	hub := ws.NewHub(registry, &logger)
	dispatch := &fakeDispatchUC{}
	result := &fakeResultUC{reply: "processed reply"}

	s := web.NewServer(dispatch, result, auth.NewVerifier(secret), hub, &logger)
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return &serverFixture{srv: srv, dispatch: dispatch, result: result, registry: registry}
}

func postJSON(t *testing.T, url, body string, headers map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	var m map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return m
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()
	f := newServerFixture(t, "")

	resp, err := http.Get(f.srv.URL + "/health")
	if err != nil {
		t.Fatalf("get health: %v", err)
	}
	body := decodeBody(t, resp)
	if resp.StatusCode != http.StatusOK || body["status"] != "healthy" {
		t.Fatalf("unexpected health response: %d %v", resp.StatusCode, body)
	}
}

func TestAgentSyncResponse(t *testing.T) {
	t.Parallel()
	f := newServerFixture(t, "")
	f.dispatch.result = &usecase.DispatchResult{Path: usecase.PathSync, Text: "hello back"}

	resp := postJSON(t, f.srv.URL+"/agent", `{"text":"hello"}`, map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"})
	body := decodeBody(t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %v", resp.StatusCode, body)
	}
	if body["text"] != "hello back" || body["processing_type"] != "sync" {
		t.Fatalf("unexpected sync body: %v", body)
	}
	if f.dispatch.lastIP != "203.0.113.7" {
		t.Fatalf("expected first forwarded hop as client ip, got %q", f.dispatch.lastIP)
	}
	if f.dispatch.lastUser.ID != "test-user" {
		t.Fatalf("dev identity expected with empty secret, got %+v", f.dispatch.lastUser)
	}
}

func TestAgentAsyncResponse(t *testing.T) {
	t.Parallel()
	f := newServerFixture(t, "")
	f.dispatch.result = &usecase.DispatchResult{
		Path:    usecase.PathAsync,
		TaskID:  "task-1",
		Status:  model.TaskStatusStarted,
		Message: "Your request is being processed. You'll receive updates in short.",
	}

	resp := postJSON(t, f.srv.URL+"/agent", `{"text":"analyze data"}`, nil)
	body := decodeBody(t, resp)
	if body["task_id"] != "task-1" || body["processing_type"] != "async" || body["status"] != string(model.TaskStatusStarted) {
		t.Fatalf("unexpected async body: %v", body)
	}
}

func TestAgentRejectsMissingText(t *testing.T) {
	t.Parallel()
	f := newServerFixture(t, "")

	resp := postJSON(t, f.srv.URL+"/agent", `{}`, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing text, got %d", resp.StatusCode)
	}
}

func TestAgentRequiresValidToken(t *testing.T) {
	t.Parallel()
	f := newServerFixture(t, "sekrit")

	resp := postJSON(t, f.srv.URL+"/agent", `{"text":"hello"}`, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":      "u-1",
		"username": "alice",
		"exp":      time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("sekrit"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	f.dispatch.result = &usecase.DispatchResult{Path: usecase.PathSync, Text: "ok"}

	resp = postJSON(t, f.srv.URL+"/agent", `{"text":"hello"}`, map[string]string{"Authorization": "Bearer " + token})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with valid token, got %d", resp.StatusCode)
	}
	if f.dispatch.lastUser.ID != "u-1" || f.dispatch.lastUser.Name != "alice" {
		t.Fatalf("token claims not mapped to identity: %+v", f.dispatch.lastUser)
	}
}

func TestTaskStatusErrorMapping(t *testing.T) {
	t.Parallel()
	f := newServerFixture(t, "")

	for err, want := range map[error]int{
		domain.ErrNotFound:         http.StatusNotFound,
		domain.ErrForbidden:        http.StatusForbidden,
		domain.ErrStoreUnavailable: http.StatusServiceUnavailable,
	} {
		f.dispatch.err = err
		resp, gerr := http.Get(f.srv.URL + "/task/task-1")
		if gerr != nil {
			t.Fatalf("get task: %v", gerr)
		}
		resp.Body.Close()
		if resp.StatusCode != want {
			t.Fatalf("%v: expected %d, got %d", err, want, resp.StatusCode)
		}
	}
}

func TestTaskStatusReturnsSession(t *testing.T) {
	t.Parallel()
	f := newServerFixture(t, "")
	f.dispatch.session = model.NewTaskSession("task-1", "test-user", "Test User", "count orders")

	resp, err := http.Get(f.srv.URL + "/task/task-1")
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	body := decodeBody(t, resp)
	if body["task_id"] != "task-1" || body["status"] != string(model.TaskStatusStarted) {
		t.Fatalf("unexpected session body: %v", body)
	}
}

func TestNotifyAcksOnlyRealDelivery(t *testing.T) {
	t.Parallel()
	f := newServerFixture(t, "")

	resp := postJSON(t, f.srv.URL+"/notify", `{"username":"alice","message":"done"}`, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("no channel must not be acked with 200, got %d", resp.StatusCode)
	}

	ch := &stubChannel{}
	f.registry.Register("chan-1", ch)
	f.registry.Bind("chan-1", "alice")

	resp = postJSON(t, f.srv.URL+"/notify", `{"username":"alice","message":"done"}`, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delivered push must be acked, got %d", resp.StatusCode)
	}
	if len(ch.frames) != 1 {
		t.Fatalf("expected one frame on the channel, got %d", len(ch.frames))
	}

	resp = postJSON(t, f.srv.URL+"/notify", `{"message":"done"}`, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing username must be rejected, got %d", resp.StatusCode)
	}
}

func TestJobResultIngress(t *testing.T) {
	t.Parallel()
	f := newServerFixture(t, "")

	ev := `{"type":"glue_job_result","session_id":"sess-1","job_name":"dq-analysis","run_id":"jr_1","status":"SUCCEEDED","user_context":{"user_id":"u-1","username":"alice"}}`
	resp := postJSON(t, f.srv.URL+"/system/glue-result", ev, nil)
	body := decodeBody(t, resp)
	if resp.StatusCode != http.StatusOK || body["status"] != "processed" || body["response"] != "processed reply" {
		t.Fatalf("unexpected ingress response: %d %v", resp.StatusCode, body)
	}
	if f.result.lastEvent.SessionID != "sess-1" || f.result.lastEvent.Status != model.RunStateSucceeded {
		t.Fatalf("event not decoded: %+v", f.result.lastEvent)
	}

	resp = postJSON(t, f.srv.URL+"/system/glue-result", `{not json`, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("malformed event must be rejected, got %d", resp.StatusCode)
	}
}

func TestJobProgressIngress(t *testing.T) {
	t.Parallel()
	f := newServerFixture(t, "")

	ev := `{"type":"glue_job_progress","session_id":"sess-1","progress_message":"Job is running... (running for 3.0 minutes)","user_context":{"username":"alice"}}`
	resp := postJSON(t, f.srv.URL+"/system/glue-progress", ev, nil)
	body := decodeBody(t, resp)
	if resp.StatusCode != http.StatusOK || body["status"] != "progress_processed" {
		t.Fatalf("unexpected progress response: %d %v", resp.StatusCode, body)
	}
	if f.result.progress != 1 {
		t.Fatalf("progress handler not invoked, count=%d", f.result.progress)
	}
}
