package httpmw

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/keithlinneman/httppipe/internal/log"
	"github.com/keithlinneman/httppipe/internal/pipeline"
)

type capturedLog struct {
	level  string
	msg    string
	err    error
	fields []any
}

// recLogger captures every call. With() records its fields and returns the
// same logger so all output lands in one place.
type recLogger struct {
	mu    sync.Mutex
	logs  []capturedLog
	withs [][]any
}

func newRecLogger() *recLogger { return &recLogger{} }

func (l *recLogger) add(level, msg string, err error, kv []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logs = append(l.logs, capturedLog{level: level, msg: msg, err: err, fields: kv})
}

func (l *recLogger) With(kv ...any) log.Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.withs = append(l.withs, kv)
	return l
}

func (l *recLogger) Debug(_ context.Context, msg string, kv ...any) { l.add("debug", msg, nil, kv) }
func (l *recLogger) Info(_ context.Context, msg string, kv ...any)  { l.add("info", msg, nil, kv) }
func (l *recLogger) Warn(_ context.Context, msg string, kv ...any)  { l.add("warn", msg, nil, kv) }
func (l *recLogger) Error(_ context.Context, err error, msg string, kv ...any) {
	l.add("error", msg, err, kv)
}
func (l *recLogger) Sync() error { return nil }

func (l *recLogger) find(level, msg string) (capturedLog, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.logs) - 1; i >= 0; i-- {
		if l.logs[i].level == level && l.logs[i].msg == msg {
			return l.logs[i], true
		}
	}
	return capturedLog{}, false
}

func (l *recLogger) count(level string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, c := range l.logs {
		if c.level == level {
			n++
		}
	}
	return n
}

func fieldValue(fields []any, key string) (any, bool) {
	for i := 0; i+1 < len(fields); i += 2 {
		if k, ok := fields[i].(string); ok && k == key {
			return fields[i+1], true
		}
	}
	return nil, false
}

func newExchange(method, target string) *pipeline.Context {
	return pipeline.NewContext(httptest.NewRequest(method, target, http.NoBody))
}

// serve runs p for req and returns what the client would receive.
func serve(p *pipeline.Pipeline, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, req)
	return rec
}

func ok(body string) pipeline.Handler {
	return func(c *pipeline.Context) error {
		return c.Response.WriteString(http.StatusOK, body)
	}
}

func mustInvoke(t *testing.T, p *pipeline.Pipeline, c *pipeline.Context) {
	t.Helper()
	if err := p.Invoke(c); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
}
