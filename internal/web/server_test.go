package web

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/zulandar/intake/internal/db"
	"github.com/zulandar/intake/internal/gateway"
	"github.com/zulandar/intake/internal/intake"
	"github.com/zulandar/intake/internal/metrics"
	"github.com/zulandar/intake/internal/models"
	"github.com/zulandar/intake/internal/question"
	"github.com/zulandar/intake/internal/store"
)

// --- Fakes ---

// scriptGateway answers every call with the next scripted response.
type scriptGateway struct {
	mu      sync.Mutex
	replies []*gateway.Response
	calls   []string
	gate    chan struct{}
	// ctxErrs holds ctx.Err() as each call saw it once released.
	ctxErrs []error
}

func (g *scriptGateway) next(ctx context.Context, endpoint string) (*gateway.Response, error) {
	g.mu.Lock()
	g.calls = append(g.calls, endpoint)
	gate := g.gate
	g.mu.Unlock()
	if gate != nil {
		<-gate
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ctxErrs = append(g.ctxErrs, ctx.Err())
	if len(g.replies) == 0 {
		return &gateway.Response{}, nil
	}
	r := g.replies[0]
	g.replies = g.replies[1:]
	return r, nil
}

func (g *scriptGateway) Start(ctx context.Context, req gateway.StartRequest) (*gateway.Response, error) {
	return g.next(ctx, gateway.EndpointStart)
}

func (g *scriptGateway) Advance(ctx context.Context, sessionID, answer string) (*gateway.Response, error) {
	return g.next(ctx, gateway.EndpointAdvance)
}

func (g *scriptGateway) Clarify(ctx context.Context, sessionID, questionText, answer string) (*gateway.Response, error) {
	return g.next(ctx, gateway.EndpointClarify)
}

func willScript() *scriptGateway {
	return &scriptGateway{replies: []*gateway.Response{
		{SessionID: "s1", Phase: "intake", NextQuestion: &question.Question{Text: "Your full name?", Type: question.TypeName}},
		{Summary: "All done."},
	}}
}

// --- Helpers ---

func newTestServer(t *testing.T, opts Opts) *Server {
	t.Helper()
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.NewRegistry()
	}
	srv, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return srv
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return v
}

func create(t *testing.T, h http.Handler) sessionView {
	t.Helper()
	w := do(t, h, http.MethodPost, "/api/sessions", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, want 201: %s", w.Code, w.Body.String())
	}
	return decode[sessionView](t, w)
}

// --- Construction ---

func TestNew_RequiresGateway(t *testing.T) {
	if _, err := New(Opts{}); err == nil || !strings.Contains(err.Error(), "gateway is required") {
		t.Errorf("error = %v, want gateway is required", err)
	}
}

func TestNew_Defaults(t *testing.T) {
	srv := newTestServer(t, Opts{Gateway: willScript()})
	if srv.opts.Port != 8080 {
		t.Errorf("Port = %d, want 8080", srv.opts.Port)
	}
	if srv.opts.Heartbeat != 15*time.Second {
		t.Errorf("Heartbeat = %v, want 15s", srv.opts.Heartbeat)
	}
}

// --- Pages ---

func TestIndexAndHealth(t *testing.T) {
	h := newTestServer(t, Opts{Gateway: willScript(), SignatureMode: question.SignatureImage}).Handler()

	w := do(t, h, http.MethodGet, "/", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET / status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"image"`) {
		t.Error("index page does not carry the signature mode")
	}

	w = do(t, h, http.MethodGet, "/healthz", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "ok") {
		t.Errorf("GET /healthz = %d %s", w.Code, w.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	h := newTestServer(t, Opts{Gateway: willScript(), Metrics: m, Gatherer: reg}).Handler()

	s := create(t, h)
	do(t, h, http.MethodPost, "/api/sessions/"+s.Handle+"/answer", map[string]any{"text": "I need a will"})

	w := do(t, h, http.MethodGet, "/metrics", nil)
	if !strings.Contains(w.Body.String(), "intake_sessions_active 1") {
		t.Errorf("/metrics missing active session gauge:\n%s", w.Body.String())
	}
}

// --- Session API ---

func TestConversationFlow(t *testing.T) {
	h := newTestServer(t, Opts{Gateway: willScript()}).Handler()

	s := create(t, h)
	if s.Handle == "" {
		t.Fatal("empty handle")
	}
	if s.State.Status != intake.StatusUnstarted {
		t.Errorf("Status = %q, want %q", s.State.Status, intake.StatusUnstarted)
	}
	base := "/api/sessions/" + s.Handle

	w := do(t, h, http.MethodPost, base+"/answer", map[string]any{"text": "I need a will"})
	if w.Code != http.StatusOK {
		t.Fatalf("start status = %d: %s", w.Code, w.Body.String())
	}
	tv := decode[turnView](t, w)
	if tv.Turn != intake.TurnQuestion || tv.Endpoint != gateway.EndpointStart {
		t.Errorf("turn = %q via %q, want question via /load-form", tv.Turn, tv.Endpoint)
	}
	if tv.State.Control != question.ControlText || tv.State.SessionID != "s1" {
		t.Errorf("state = %+v", tv.State)
	}
	if len(tv.Messages) != 2 {
		t.Errorf("messages = %d, want 2", len(tv.Messages))
	}

	w = do(t, h, http.MethodPost, base+"/answer", map[string]any{"text": "Jane Doe"})
	tv = decode[turnView](t, w)
	if tv.Turn != intake.TurnComplete || tv.State.Status != intake.StatusComplete {
		t.Errorf("turn = %q status = %q, want complete", tv.Turn, tv.State.Status)
	}

	w = do(t, h, http.MethodPost, base+"/answer", map[string]any{"text": "again"})
	if w.Code != http.StatusGone {
		t.Errorf("answer after summary status = %d, want 410", w.Code)
	}

	w = do(t, h, http.MethodGet, base, nil)
	got := decode[sessionView](t, w)
	if len(got.Messages) != 4 {
		t.Errorf("GET messages = %d, want 4", len(got.Messages))
	}
}

func TestAnswer_ValidationRejected(t *testing.T) {
	gw := willScript()
	h := newTestServer(t, Opts{Gateway: gw}).Handler()
	s := create(t, h)

	w := do(t, h, http.MethodPost, "/api/sessions/"+s.Handle+"/answer", map[string]any{"text": "   "})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	tv := decode[turnView](t, w)
	if tv.Turn != intake.TurnRejected || tv.Validation == nil || tv.Validation.Field != question.FieldInput {
		t.Errorf("turn = %q validation = %+v, want rejected input", tv.Turn, tv.Validation)
	}
	if tv.State.Errors[question.FieldInput] == "" {
		t.Error("state errors missing input message")
	}
	if len(gw.calls) != 0 {
		t.Errorf("gateway calls = %v, want none", gw.calls)
	}

	w = do(t, h, http.MethodDelete, "/api/sessions/"+s.Handle+"/errors/input", nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("DELETE errors status = %d, want 204", w.Code)
	}
	got := decode[sessionView](t, do(t, h, http.MethodGet, "/api/sessions/"+s.Handle, nil))
	if len(got.State.Errors) != 0 {
		t.Errorf("errors after clear = %v", got.State.Errors)
	}
}

func TestAnswer_BadBody(t *testing.T) {
	h := newTestServer(t, Opts{Gateway: willScript()}).Handler()
	s := create(t, h)
	base := "/api/sessions/" + s.Handle + "/answer"

	if w := do(t, h, http.MethodPost, base, map[string]any{"audio": "not base64!"}); w.Code != http.StatusBadRequest {
		t.Errorf("bad audio status = %d, want 400", w.Code)
	}
	if w := do(t, h, http.MethodPost, base, map[string]any{"signature": "data:image/png,raw"}); w.Code != http.StatusBadRequest {
		t.Errorf("bad signature status = %d, want 400", w.Code)
	}
	req := httptest.NewRequest(http.MethodPost, base, strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("malformed json status = %d, want 400", w.Code)
	}
}

func TestUnknownHandle(t *testing.T) {
	h := newTestServer(t, Opts{Gateway: willScript()}).Handler()
	for _, path := range []string{"/api/sessions/nope", "/api/sessions/nope/events"} {
		if w := do(t, h, http.MethodGet, path, nil); w.Code != http.StatusNotFound {
			t.Errorf("GET %s status = %d, want 404", path, w.Code)
		}
	}
	if w := do(t, h, http.MethodPost, "/api/sessions/nope/answer", map[string]any{"text": "hi"}); w.Code != http.StatusNotFound {
		t.Errorf("POST answer status = %d, want 404", w.Code)
	}
}

func TestAnswer_BusyIsConflict(t *testing.T) {
	gw := willScript()
	gw.gate = make(chan struct{})
	srv := newTestServer(t, Opts{Gateway: gw})
	h := srv.Handler()
	s := create(t, h)
	base := "/api/sessions/" + s.Handle

	done := make(chan int)
	go func() {
		done <- do(t, h, http.MethodPost, base+"/answer", map[string]any{"text": "I need a will"}).Code
	}()

	e, _ := srv.lookup(s.Handle)
	deadline := time.Now().Add(2 * time.Second)
	for !e.ctrl.State().Typing {
		if time.Now().After(deadline) {
			t.Fatal("controller never became busy")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if w := do(t, h, http.MethodPost, base+"/answer", map[string]any{"text": "another"}); w.Code != http.StatusConflict {
		t.Errorf("concurrent answer status = %d, want 409", w.Code)
	}
	close(gw.gate)
	if code := <-done; code != http.StatusOK {
		t.Errorf("first answer status = %d, want 200", code)
	}
}

func TestResetAndDismiss(t *testing.T) {
	gw := &scriptGateway{replies: []*gateway.Response{
		{SessionID: "s1", NextQuestion: &question.Question{Text: "Name?", Type: question.TypeName}},
		{Error: "Service busy"},
	}}
	h := newTestServer(t, Opts{Gateway: gw}).Handler()
	s := create(t, h)
	base := "/api/sessions/" + s.Handle

	do(t, h, http.MethodPost, base+"/answer", map[string]any{"text": "I need a will"})
	tv := decode[turnView](t, do(t, h, http.MethodPost, base+"/answer", map[string]any{"text": "Jane Doe"}))
	if tv.Turn != intake.TurnNotice || tv.State.Notice != "Service busy" {
		t.Fatalf("turn = %q notice = %q", tv.Turn, tv.State.Notice)
	}

	got := decode[sessionView](t, do(t, h, http.MethodPost, base+"/notice/dismiss", nil))
	if got.State.Notice != "" {
		t.Errorf("notice after dismiss = %q", got.State.Notice)
	}

	got = decode[sessionView](t, do(t, h, http.MethodPost, base+"/reset", nil))
	if got.State.Status != intake.StatusUnstarted || got.State.SessionID != "" {
		t.Errorf("state after reset = %+v", got.State)
	}
	if len(got.Messages) != 3 {
		t.Errorf("messages after reset = %d, want log kept (3)", len(got.Messages))
	}
}

func TestSignatureImage(t *testing.T) {
	gw := &scriptGateway{replies: []*gateway.Response{
		{SessionID: "s1", NextQuestion: &question.Question{Text: "Sign here", Type: question.TypeSignature}},
		{Summary: "Signed."},
	}}
	h := newTestServer(t, Opts{Gateway: gw, SignatureMode: question.SignatureImage}).Handler()
	s := create(t, h)
	base := "/api/sessions/" + s.Handle

	tv := decode[turnView](t, do(t, h, http.MethodPost, base+"/answer", map[string]any{"text": "I need a will"}))
	if !tv.State.SignatureVisible {
		t.Fatal("signature pad not visible")
	}

	tv = decode[turnView](t, do(t, h, http.MethodPost, base+"/answer", map[string]any{}))
	if tv.Turn != intake.TurnRejected {
		t.Errorf("unsigned turn = %q, want rejected", tv.Turn)
	}

	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	url := "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
	tv = decode[turnView](t, do(t, h, http.MethodPost, base+"/answer", map[string]any{"signature": url}))
	if tv.Turn != intake.TurnComplete {
		t.Fatalf("signed turn = %q, want complete", tv.Turn)
	}
	var found bool
	for _, m := range tv.Messages {
		if m.Kind == intake.KindImage && m.Payload == url {
			found = true
		}
	}
	if !found {
		t.Error("log missing image-ref echo")
	}
}

func TestDecodeImage(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	bare := base64.StdEncoding.EncodeToString(png)

	art, err := decodeImage(bare)
	if err != nil || art.MIME != "image/png" {
		t.Errorf("decodeImage(bare) = %+v, %v", art, err)
	}
	if _, err := decodeImage(base64.StdEncoding.EncodeToString([]byte("plain text"))); err == nil {
		t.Error("expected error for non-image")
	}
	if _, err := decodeImage("data:image/png,abc"); err == nil {
		t.Error("expected error for non-base64 data URL")
	}
}

// --- Store-backed sessions ---

func TestStoreBackedSession(t *testing.T) {
	gdb, err := db.Connect(db.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := db.AutoMigrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	st, err := store.New(store.Opts{DB: gdb})
	if err != nil {
		t.Fatal(err)
	}

	h := newTestServer(t, Opts{Gateway: willScript(), Store: st}).Handler()
	s := create(t, h)
	row, err := st.Get(s.Handle)
	if err != nil {
		t.Fatalf("session row for handle %q: %v", s.Handle, err)
	}
	if row.Source != Source {
		t.Errorf("Source = %q, want %q", row.Source, Source)
	}

	do(t, h, http.MethodPost, "/api/sessions/"+s.Handle+"/answer", map[string]any{"text": "I need a will"})

	if id, ok, _ := st.RemoteID(row.ID); !ok || id != "s1" {
		t.Errorf("RemoteID = %q, %v, want s1", id, ok)
	}
	hist, err := st.History(row.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 2 {
		t.Errorf("history = %d messages, want 2", len(hist))
	}
	row, _ = st.Get(s.Handle)
	if row.Phase != "intake" {
		t.Errorf("Phase = %q, want intake", row.Phase)
	}
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	gdb, err := db.Connect(db.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := db.AutoMigrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	st, err := store.New(store.Opts{DB: gdb})
	if err != nil {
		t.Fatal(err)
	}
	return st
}

func TestStoreBackedReset_OpensFreshRow(t *testing.T) {
	st := newTestStore(t)
	gw := &scriptGateway{replies: []*gateway.Response{
		{SessionID: "s1", NextQuestion: &question.Question{Text: "Name?", Type: question.TypeName}},
		{Summary: "First matter done."},
		{SessionID: "s2", NextQuestion: &question.Question{Text: "Name?", Type: question.TypeName}},
		{Summary: "Second matter done."},
	}}
	h := newTestServer(t, Opts{Gateway: gw, Store: st}).Handler()
	first := create(t, h).Handle

	do(t, h, http.MethodPost, "/api/sessions/"+first+"/answer", map[string]any{"text": "I need a will"})
	tv := decode[turnView](t, do(t, h, http.MethodPost, "/api/sessions/"+first+"/answer", map[string]any{"text": "Jane Doe"}))
	if tv.Turn != intake.TurnComplete {
		t.Fatalf("turn = %q, want complete", tv.Turn)
	}

	reset := decode[sessionView](t, do(t, h, http.MethodPost, "/api/sessions/"+first+"/reset", nil))
	second := reset.Handle
	if second == "" || second == first {
		t.Fatalf("handle after reset = %q, want a new handle", second)
	}
	if w := do(t, h, http.MethodGet, "/api/sessions/"+first, nil); w.Code != http.StatusOK {
		t.Errorf("old handle status = %d, want 200", w.Code)
	}

	do(t, h, http.MethodPost, "/api/sessions/"+second+"/answer", map[string]any{"text": "Another matter"})
	tv = decode[turnView](t, do(t, h, http.MethodPost, "/api/sessions/"+second+"/answer", map[string]any{"text": "John Doe"}))
	if tv.Turn != intake.TurnComplete {
		t.Fatalf("second turn = %q, want complete", tv.Turn)
	}

	for _, tt := range []struct {
		handle string
		want   int
	}{{first, 4}, {second, 4}} {
		row, err := st.Get(tt.handle)
		if err != nil {
			t.Fatalf("Get(%s): %v", tt.handle, err)
		}
		if row.Status != models.StatusCompleted {
			t.Errorf("%s: Status = %q, want completed", tt.handle, row.Status)
		}
		hist, err := st.History(row.ID)
		if err != nil {
			t.Fatal(err)
		}
		if len(hist) != tt.want {
			t.Errorf("%s: history = %d messages, want %d", tt.handle, len(hist), tt.want)
		}
		if hist[0].Sequence != 1 {
			t.Errorf("%s: first sequence = %d, want 1", tt.handle, hist[0].Sequence)
		}
	}
}

// --- Eviction ---

func TestSweep_DropsIdleSessions(t *testing.T) {
	clock := time.Date(2026, time.October, 18, 12, 0, 0, 0, time.UTC)
	srv := newTestServer(t, Opts{Gateway: willScript(), IdleTimeout: time.Minute})
	srv.now = func() time.Time { return clock }
	h := srv.Handler()

	idle := create(t, h).Handle
	active := create(t, h).Handle
	e, _ := srv.lookup(idle)
	events, _ := e.hub.subscribe()

	clock = clock.Add(30 * time.Second)
	do(t, h, http.MethodGet, "/api/sessions/"+active, nil)

	clock = clock.Add(40 * time.Second)
	if n := srv.sweep(clock); n != 1 {
		t.Errorf("sweep dropped %d, want 1", n)
	}
	if w := do(t, h, http.MethodGet, "/api/sessions/"+idle, nil); w.Code != http.StatusNotFound {
		t.Errorf("idle session status = %d, want 404", w.Code)
	}
	if w := do(t, h, http.MethodGet, "/api/sessions/"+active, nil); w.Code != http.StatusOK {
		t.Errorf("active session status = %d, want 200", w.Code)
	}
	if _, ok := <-events; ok {
		t.Error("subscriber of dropped session still open")
	}
}

func TestSweep_DropsFinishedSessionsAndAbandonsUnfinished(t *testing.T) {
	clock := time.Date(2026, time.October, 18, 12, 0, 0, 0, time.UTC)
	st := newTestStore(t)
	gw := &scriptGateway{replies: []*gateway.Response{
		{SessionID: "s1", NextQuestion: &question.Question{Text: "Name?", Type: question.TypeName}},
		{Summary: "Done."},
	}}
	srv := newTestServer(t, Opts{Gateway: gw, Store: st, IdleTimeout: time.Hour})
	srv.now = func() time.Time { return clock }
	h := srv.Handler()

	done := create(t, h).Handle
	do(t, h, http.MethodPost, "/api/sessions/"+done+"/answer", map[string]any{"text": "I need a will"})
	do(t, h, http.MethodPost, "/api/sessions/"+done+"/answer", map[string]any{"text": "Jane Doe"})
	open := create(t, h).Handle

	clock = clock.Add(completedLinger + time.Second)
	if n := srv.sweep(clock); n != 1 {
		t.Errorf("sweep dropped %d, want the finished session only", n)
	}
	if _, ok := srv.lookup(done); ok {
		t.Error("finished session still registered")
	}

	clock = clock.Add(time.Hour)
	if n := srv.sweep(clock); n != 1 {
		t.Errorf("sweep dropped %d, want the idle session", n)
	}
	row, err := st.Get(open)
	if err != nil {
		t.Fatal(err)
	}
	if row.Status != models.StatusAbandoned {
		t.Errorf("idle row Status = %q, want abandoned", row.Status)
	}
	row, _ = st.Get(done)
	if row.Status != models.StatusCompleted {
		t.Errorf("finished row Status = %q, want completed", row.Status)
	}
}

// --- Cancellation ---

func TestAnswer_ClientGoneDoesNotAbortCall(t *testing.T) {
	gw := willScript()
	gw.gate = make(chan struct{})
	srv := newTestServer(t, Opts{Gateway: gw})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	s := create(t, srv.Handler())

	client := &http.Client{Timeout: 50 * time.Millisecond}
	_, err := client.Post(ts.URL+"/api/sessions/"+s.Handle+"/answer", "application/json",
		strings.NewReader(`{"text":"I need a will"}`))
	if err == nil {
		t.Fatal("expected client timeout")
	}
	close(gw.gate)

	e, _ := srv.lookup(s.Handle)
	deadline := time.Now().Add(2 * time.Second)
	for e.ctrl.State().Question == nil {
		if time.Now().After(deadline) {
			t.Fatalf("question never arrived: state = %+v", e.ctrl.State())
		}
		time.Sleep(5 * time.Millisecond)
	}

	gw.mu.Lock()
	seen := gw.ctxErrs[0]
	gw.mu.Unlock()
	if seen != nil {
		t.Errorf("gateway saw ctx err = %v, want nil", seen)
	}
	for _, m := range e.ctrl.Log().All() {
		if m.Payload == intake.StartFailedMessage {
			t.Error("log gained a connection apology")
		}
	}
	if st := e.ctrl.State(); st.SessionID != "s1" {
		t.Errorf("SessionID = %q, want s1", st.SessionID)
	}
}

// --- SSE ---

func TestEvents_StreamsControllerEvents(t *testing.T) {
	srv := newTestServer(t, Opts{Gateway: willScript(), Heartbeat: time.Hour})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	s := create(t, srv.Handler())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/sessions/"+s.Handle+"/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET events: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	lines := bufio.NewScanner(resp.Body)
	readEvent := func() string {
		for lines.Scan() {
			if name, ok := strings.CutPrefix(lines.Text(), "event: "); ok {
				return name
			}
		}
		return ""
	}

	if got := readEvent(); got != "connected" {
		t.Fatalf("first event = %q, want connected", got)
	}

	e, _ := srv.lookup(s.Handle)
	e.ctrl.NewSession()
	if got := readEvent(); got != string(intake.EventReset) {
		t.Errorf("event = %q, want %q", got, intake.EventReset)
	}
}

func TestHub_PublishDoesNotBlock(t *testing.T) {
	h := newHub()
	ch, unsubscribe := h.subscribe()
	for i := 0; i < subscriberBuffer+5; i++ {
		h.publish(intake.Event{Kind: intake.EventTyping})
	}
	if len(ch) != subscriberBuffer {
		t.Errorf("buffered = %d, want %d", len(ch), subscriberBuffer)
	}
	unsubscribe()
	h.publish(intake.Event{Kind: intake.EventTyping})
	if len(h.subs) != 0 {
		t.Errorf("subscribers after unsubscribe = %d", len(h.subs))
	}
}

func TestWriteSSE(t *testing.T) {
	var buf bytes.Buffer
	writeSSE(&buf, "typing", map[string]bool{"typing": true})
	want := "event: typing\ndata: {\"typing\":true}\n\n"
	if buf.String() != want {
		t.Errorf("writeSSE = %q, want %q", buf.String(), want)
	}
}
