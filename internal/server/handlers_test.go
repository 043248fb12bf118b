package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/altiplano/parasearch/internal/backendstub"
	"github.com/altiplano/parasearch/internal/cli"
	"github.com/altiplano/parasearch/internal/client"
	"github.com/altiplano/parasearch/internal/config"
	"github.com/altiplano/parasearch/internal/session"
)

type fixture struct {
	stub *backendstub.Stub
	ctrl *session.Controller
	h    http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	stub := backendstub.New()
	backend := httptest.NewServer(stub.Handler())
	t.Cleanup(backend.Close)

	ctrl := session.New(client.New(backend.URL),
		session.WithExamples([]string{"What is quantum mechanics?", "History of ancient Rome"}))
	ctrl.Start(context.Background())
	t.Cleanup(ctrl.Stop)

	srv := NewServer(ctrl, &config.ServerConfig{Host: "localhost", Port: 0}, nil)
	return &fixture{stub: stub, ctrl: ctrl, h: srv.Handler()}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != "" {
		rd = bytes.NewReader([]byte(body))
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)
	return rec
}

func decodeView(t *testing.T, rec *httptest.ResponseRecorder) cli.SessionView {
	t.Helper()
	var v cli.SessionView
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	return v
}

func (f *fixture) search(t *testing.T, body string) uint64 {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/v1/session/search", body)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("search status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Seq uint64 `json:"seq"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := f.ctrl.Await(ctx, resp.Seq); err != nil {
		t.Fatal(err)
	}
	return resp.Seq
}

func TestHandleSearchAndSession(t *testing.T) {
	f := newFixture(t)
	seq := f.search(t, `{"query":"quantum"}`)
	if seq != 1 {
		t.Errorf("seq = %d, want 1", seq)
	}

	v := decodeView(t, f.do(t, http.MethodGet, "/api/v1/session", ""))
	if v.Phase != session.PhaseSuccess || len(v.Results) != 3 {
		t.Fatalf("unexpected view: phase %s, %d results", v.Phase, len(v.Results))
	}
	if v.Results[0].ConfidenceTier != "high" {
		t.Errorf("tier = %s", v.Results[0].ConfidenceTier)
	}
	if v.Info == nil || v.Info.KnowledgeCutoff != backendstub.KnowledgeCutoff {
		t.Errorf("info = %+v", v.Info)
	}
}

func TestHandleSearch_usesQueryBuffer(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPut, "/api/v1/session/query", `{"query":"History of ancient Rome"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("set query status = %d", rec.Code)
	}
	f.search(t, "")
	reqs := f.stub.Requests()
	if len(reqs) != 1 || reqs[0].Request.Query != "History of ancient Rome" {
		t.Fatalf("backend requests = %+v", reqs)
	}
}

func TestHandleSearch_rejections(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"empty query", `{"query":"   "}`, http.StatusBadRequest},
		{"empty buffer", ``, http.StatusBadRequest},
		{"bad json", `{`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			rec := f.do(t, http.MethodPost, "/api/v1/session/search", tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
			if s := f.ctrl.Snapshot(); s.Phase != session.PhaseIdle || s.Seq != 0 {
				t.Errorf("state changed: %+v", s)
			}
		})
	}
}

func TestHandleSearch_conflictWhileLoading(t *testing.T) {
	f := newFixture(t)
	f.stub.SetDelay(300 * time.Millisecond)
	rec := f.do(t, http.MethodPost, "/api/v1/session/search", `{"query":"quantum"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("first search status = %d", rec.Code)
	}
	rec = f.do(t, http.MethodPost, "/api/v1/session/search", `{"query":"rome"}`)
	if rec.Code != http.StatusConflict {
		t.Errorf("second search status = %d, want 409", rec.Code)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := f.ctrl.Await(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if s.Submitted != "quantum" {
		t.Errorf("submitted = %q", s.Submitted)
	}
}

func TestHandleSearch_concurrentPostsAcceptOne(t *testing.T) {
	f := newFixture(t)
	f.stub.SetDelay(300 * time.Millisecond)

	const n = 8
	codes := make([]int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			codes[i] = f.do(t, http.MethodPost, "/api/v1/session/search", `{"query":"quantum"}`).Code
		}(i)
	}
	wg.Wait()

	accepted := 0
	for _, code := range codes {
		switch code {
		case http.StatusAccepted:
			accepted++
		case http.StatusConflict:
		default:
			t.Errorf("unexpected status %d", code)
		}
	}
	if accepted != 1 {
		t.Errorf("accepted %d searches, want exactly 1", accepted)
	}
	if s := f.ctrl.Snapshot(); s.Seq != 1 {
		t.Errorf("seq = %d, want 1", s.Seq)
	}
}

func TestServer_StopBeforeStart(t *testing.T) {
	f := newFixture(t)
	srv := NewServer(f.ctrl, &config.ServerConfig{Host: "127.0.0.1", Port: 0}, nil)
	if err := srv.Stop(context.Background()); err != nil {
		t.Errorf("Stop before Start: %v", err)
	}
	if err := srv.Start(); err != http.ErrServerClosed {
		t.Errorf("Start after Stop = %v, want ErrServerClosed", err)
	}
}

func TestHandleToggle(t *testing.T) {
	f := newFixture(t)
	f.search(t, `{"query":"quantum"}`)

	rec := f.do(t, http.MethodPost, "/api/v1/session/results/0/toggle", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("toggle status = %d", rec.Code)
	}
	v := decodeView(t, rec)
	if !v.Results[0].Expanded || v.Results[0].ExpandedContent == nil {
		t.Error("result 0 should be expanded")
	}

	for _, path := range []string{
		"/api/v1/session/results/1/toggle",
		"/api/v1/session/results/42/toggle",
	} {
		if rec := f.do(t, http.MethodPost, path, ""); rec.Code != http.StatusNotFound {
			t.Errorf("%s status = %d, want 404", path, rec.Code)
		}
	}
	if rec := f.do(t, http.MethodPost, "/api/v1/session/results/x/toggle", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("non-numeric index status = %d", rec.Code)
	}
}

func TestHandleExamples(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/v1/examples", "")
	var resp struct {
		Examples []string `json:"examples"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Examples) != 2 {
		t.Fatalf("examples = %v", resp.Examples)
	}

	rec = f.do(t, http.MethodPost, "/api/v1/examples/1/use", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("use status = %d", rec.Code)
	}
	if v := decodeView(t, rec); v.Query != "History of ancient Rome" || v.Phase != session.PhaseIdle {
		t.Errorf("view after use = %+v", v)
	}
	if rec := f.do(t, http.MethodPost, "/api/v1/examples/5/use", ""); rec.Code != http.StatusNotFound {
		t.Errorf("missing example status = %d", rec.Code)
	}
	if len(f.stub.Requests()) != 0 {
		t.Error("using an example must not search")
	}
}

func TestHealthAndCORS(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}
