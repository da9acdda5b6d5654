package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"horse.fit/techwatch/internal/db"
	"horse.fit/techwatch/internal/engine"
)

type processCall struct {
	topic    string
	maxItems int
}

type fakeProcessor struct {
	processCalls []processCall
	forgetCalls  [][]int64
	processErr   error
}

func (p *fakeProcessor) ProcessBatch(_ context.Context, topic string, maxItems int) (engine.BatchResult, error) {
	p.processCalls = append(p.processCalls, processCall{topic: topic, maxItems: maxItems})
	if p.processErr != nil {
		return engine.BatchResult{}, p.processErr
	}
	return engine.BatchResult{Topic: topic, Selected: 2, Processed: 2, Novel: 1, Echoes: 1}, nil
}

func (p *fakeProcessor) Forget(_ context.Context, itemIDs []int64) (engine.ForgetResult, error) {
	p.forgetCalls = append(p.forgetCalls, append([]int64(nil), itemIDs...))
	return engine.ForgetResult{Requested: len(itemIDs), VectorsDeleted: 1, Reset: int64(len(itemIDs))}, nil
}

type fakeStats struct {
	pingErr error
}

func (s *fakeStats) QueryStats(context.Context) (*db.Stats, error) {
	return &db.Stats{
		Topics:    []db.TopicStats{{Topic: "ai", Statuses: map[string]int64{"evaluated": 3}, Representatives: 3}},
		Vectors:   3,
		Relations: map[string]int64{"novel": 3},
	}, nil
}

func (s *fakeStats) Ping(context.Context) error {
	return s.pingErr
}

func newTestServer(processor *fakeProcessor, stats *fakeStats) *Server {
	return NewServer(processor, stats, zerolog.Nop(), Options{Topics: []string{"ai", "Django"}, MaxItems: 50})
}

func serve(t *testing.T, s *Server, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, req)

	var resp envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return rec, resp
}

func TestHealthReportsDatabaseState(t *testing.T) {
	t.Parallel()

	s := newTestServer(&fakeProcessor{}, &fakeStats{})
	rec, resp := serve(t, s, http.MethodGet, "/api/v1/health", "")
	if rec.Code != http.StatusOK || resp.Status != "success" {
		t.Fatalf("expected healthy response, got %d %+v", rec.Code, resp)
	}

	down := newTestServer(&fakeProcessor{}, &fakeStats{pingErr: errors.New("connection refused")})
	rec, resp = serve(t, down, http.MethodGet, "/api/v1/health", "")
	if rec.Code != http.StatusServiceUnavailable || resp.Status != "error" {
		t.Fatalf("expected 503 when database is down, got %d %+v", rec.Code, resp)
	}
}

func TestStatsReturnsTopicBreakdown(t *testing.T) {
	t.Parallel()

	s := newTestServer(&fakeProcessor{}, &fakeStats{})
	rec, resp := serve(t, s, http.MethodGet, "/api/v1/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	data, _ := json.Marshal(resp.Data)
	if !strings.Contains(string(data), `"vectors":3`) {
		t.Fatalf("unexpected stats payload %s", data)
	}
}

func TestProcessUsesDefaultAndExplicitLimits(t *testing.T) {
	t.Parallel()

	processor := &fakeProcessor{}
	s := newTestServer(processor, &fakeStats{})

	rec, _ := serve(t, s, http.MethodPost, "/api/v1/topics/AI/process", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	rec, _ = serve(t, s, http.MethodPost, "/api/v1/topics/django/process", `{"limit": 5}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	want := []processCall{{topic: "ai", maxItems: 50}, {topic: "django", maxItems: 5}}
	if len(processor.processCalls) != len(want) {
		t.Fatalf("unexpected calls %+v", processor.processCalls)
	}
	for i := range want {
		if processor.processCalls[i] != want[i] {
			t.Fatalf("call %d: got %+v want %+v", i, processor.processCalls[i], want[i])
		}
	}
}

func TestProcessRejectsUnknownTopicAndBadLimit(t *testing.T) {
	t.Parallel()

	processor := &fakeProcessor{}
	s := newTestServer(processor, &fakeStats{})

	rec, resp := serve(t, s, http.MethodPost, "/api/v1/topics/plone/process", "")
	if rec.Code != http.StatusNotFound || resp.Status != "fail" {
		t.Fatalf("expected 404 for unconfigured topic, got %d %+v", rec.Code, resp)
	}
	rec, _ = serve(t, s, http.MethodPost, "/api/v1/topics/ai/process", `{"limit": 500}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for limit above max, got %d", rec.Code)
	}
	rec, _ = serve(t, s, http.MethodPost, "/api/v1/topics/ai/process", `{"limits": 5}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", rec.Code)
	}
	if len(processor.processCalls) != 0 {
		t.Fatalf("expected no engine calls, got %+v", processor.processCalls)
	}
}

func TestProcessFailureIsInternalError(t *testing.T) {
	t.Parallel()

	s := newTestServer(&fakeProcessor{processErr: errors.New("select pending: boom")}, &fakeStats{})
	rec, resp := serve(t, s, http.MethodPost, "/api/v1/topics/ai/process", "")
	if rec.Code != http.StatusInternalServerError || resp.Status != "error" {
		t.Fatalf("expected 500, got %d %+v", rec.Code, resp)
	}
	if strings.Contains(resp.Message, "boom") {
		t.Fatalf("expected internal detail to stay out of the response, got %q", resp.Message)
	}
}

func TestForgetValidatesIDs(t *testing.T) {
	t.Parallel()

	processor := &fakeProcessor{}
	s := newTestServer(processor, &fakeStats{})

	for _, body := range []string{"", `{"item_ids": []}`, `{"item_ids": [3, -1]}`} {
		rec, _ := serve(t, s, http.MethodPost, "/api/v1/forget", body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %q: expected 400, got %d", body, rec.Code)
		}
	}

	rec, resp := serve(t, s, http.MethodPost, "/api/v1/forget", `{"item_ids": [3, 4]}`)
	if rec.Code != http.StatusOK || resp.Status != "success" {
		t.Fatalf("expected success, got %d %+v", rec.Code, resp)
	}
	if len(processor.forgetCalls) != 1 || len(processor.forgetCalls[0]) != 2 {
		t.Fatalf("unexpected forget calls %+v", processor.forgetCalls)
	}
}

func TestUnknownRouteUsesJSendEnvelope(t *testing.T) {
	t.Parallel()

	s := newTestServer(&fakeProcessor{}, &fakeStats{})
	rec, resp := serve(t, s, http.MethodGet, "/api/v1/nope", "")
	if rec.Code != http.StatusNotFound || resp.Status != "fail" {
		t.Fatalf("expected jsend 404, got %d %+v", rec.Code, resp)
	}
}
