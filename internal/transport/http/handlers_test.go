package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"csvmail/internal/artifacts"
	apierrors "csvmail/internal/errors"
	"csvmail/internal/middleware"
	"csvmail/internal/operations"
	"csvmail/internal/services"
	"csvmail/internal/shared/testutil"
	"csvmail/internal/stats"
	"csvmail/internal/validation"
	ws "csvmail/internal/websocket"
)

// stubChecker treats example.org as a dead domain and every other domain as
// valid. Checks block until the gate is open.
type stubChecker struct {
	gate chan struct{}
	once sync.Once
}

func newStubChecker(open bool) *stubChecker {
	c := &stubChecker{gate: make(chan struct{})}
	if open {
		c.open()
	}
	return c
}

func (c *stubChecker) open() { c.once.Do(func() { close(c.gate) }) }

func (c *stubChecker) Check(ctx context.Context, domain string) validation.DomainVerdict {
	select {
	case <-c.gate:
	case <-ctx.Done():
		return validation.DomainVerdict{Classification: validation.Unknown, Attempts: 1, Reason: "cancelled"}
	}
	if domain == "example.org" {
		return validation.DomainVerdict{Classification: validation.InvalidDomain, Attempts: 1, Reason: "no mail exchanger"}
	}
	return validation.DomainVerdict{Classification: validation.Valid, Attempts: 1}
}

type handlerFixture struct {
	router  chi.Router
	store   *artifacts.FileStore
	queue   *operations.JobQueue
	hub     *ws.Hub
	checker *stubChecker
	logs    *testutil.BufferedSlogHandler
}

func newHandlerFixture(t *testing.T, checkerOpen bool) *handlerFixture {
	t.Helper()
	logger, logs := testutil.NewTestLogger(t)

	store, err := artifacts.NewFileStore(t.TempDir(), time.Hour, time.Minute, 0, logger)
	require.NoError(t, err)

	hub := ws.NewHub(logger)
	hub.Start()
	t.Cleanup(hub.Stop)

	checker := newStubChecker(checkerOpen)
	pipeline := validation.NewPipeline(store, checker, validation.PipelineConfig{Workers: 2}, nil, logger)
	queue := operations.NewJobQueue(pipeline, operations.NewMemoryJobStore(), hub, nil,
		operations.QueueConfig{Workers: 1, QueueSize: 4}, logger)
	queue.Start(context.Background())
	t.Cleanup(func() { _ = queue.Stop(5 * time.Second) })
	t.Cleanup(checker.open)

	errorHandler := apierrors.NewErrorHandler(logger, false)
	csvSvc := services.NewCSVService(store, stats.DedupExact, nil, logger)
	validationSvc := services.NewValidationService(store, queue, 5*time.Second, logger)
	healthSvc := services.NewHealthService("test", store, queue, hub, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.NotFound(errorHandler.NotFound)
	r.MethodNotAllowed(errorHandler.MethodNotAllowed)
	r.Mount("/csv-processor", NewCSVHandler(csvSvc, errorHandler, logger).Routes())
	r.Mount("/email-validator", NewValidationHandler(validationSvc, errorHandler, logger).Routes())
	r.Mount("/ws", NewWebSocketHandler(hub, validationSvc, WebSocketConfig{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		AllowedOrigins:  []string{"http://app.example.com"},
	}, errorHandler, logger).Routes())
	r.Mount("/api", NewHealthHandler(healthSvc, logger).Routes())

	return &handlerFixture{
		router:  r,
		store:   store,
		queue:   queue,
		hub:     hub,
		checker: checker,
		logs:    logs,
	}
}

func (f *handlerFixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *handlerFixture) upload(t *testing.T, path string, content []byte, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := testutil.MultipartUpload(t, "contacts.csv", content, fields)
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", contentType)
	return f.do(req)
}

func (f *handlerFixture) validate(t *testing.T, filename, body, query string) *httptest.ResponseRecorder {
	t.Helper()
	target := "/email-validator/validate/" + filename
	if query != "" {
		target += "?" + query
	}
	req := httptest.NewRequest(http.MethodPost, target, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	return f.do(req)
}

// process stores ContactsCSV and returns its token.
func (f *handlerFixture) process(t *testing.T) string {
	t.Helper()
	rec := f.upload(t, "/csv-processor/process", testutil.ContactsCSV(t), map[string]string{
		"emailColumnIndex":  "1",
		"removeEmptyEmails": "false",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		Filename string `json:"filename"`
	}
	decode(t, rec.Body, &resp)
	require.NotEmpty(t, resp.Filename)
	return resp.Filename
}

func decode(t *testing.T, r io.Reader, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(r).Decode(v))
}

func problem(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	require.Equal(t, apierrors.ContentTypeProblem, rec.Header().Get("Content-Type"))
	var body map[string]interface{}
	decode(t, rec.Body, &body)
	return body
}
