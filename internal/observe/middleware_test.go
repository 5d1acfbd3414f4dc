package observe

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// serve runs one request through Middleware wrapped around a mux with the
// voxclone-shaped routes, recording spans in memory.
func serve(t *testing.T, m *Metrics, req *http.Request) (*httptest.ResponseRecorder, *tracetest.InMemoryExporter) {
	t.Helper()

	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(orig) })

	mux := http.NewServeMux()
	mux.HandleFunc("GET /voices", func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, `{"count":0}`)
	})
	mux.HandleFunc("GET /voices/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("POST /tts", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	Middleware(m)(mux).ServeHTTP(rec, req)
	return rec, exp
}

func spanAttr(s sdktrace.ReadOnlySpan, key string) (string, bool) {
	for _, a := range s.Attributes() {
		if string(a.Key) == key {
			return a.Value.Emit(), true
		}
	}
	return "", false
}

func TestMiddleware_CorrelationID(t *testing.T) {
	m, _ := newTestMetrics(t)

	rec, exp := serve(t, m, httptest.NewRequest(http.MethodGet, "/voices", nil))
	cid := rec.Header().Get(CorrelationHeader)
	if len(cid) != 32 {
		t.Fatalf("%s = %q, want a 32 hex digit trace id", CorrelationHeader, cid)
	}
	spans := exp.GetSpans().Snapshots()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	if got := spans[0].SpanContext().TraceID().String(); got != cid {
		t.Errorf("span trace id = %s, want %s", got, cid)
	}
}

func TestMiddleware_HonoursTraceparent(t *testing.T) {
	m, _ := newTestMetrics(t)

	req := httptest.NewRequest(http.MethodGet, "/voices", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	rec, _ := serve(t, m, req)

	if got := rec.Header().Get(CorrelationHeader); got != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("%s = %q, want the incoming trace id", CorrelationHeader, got)
	}
	if !strings.HasPrefix(rec.Header().Get("traceparent"), "00-4bf92f3577b34da6a3ce929d0e0e4736-") {
		t.Errorf("traceparent = %q, want it injected into the response", rec.Header().Get("traceparent"))
	}
}

func TestMiddleware_NamesSpanByRoute(t *testing.T) {
	m, _ := newTestMetrics(t)

	tests := []struct {
		method, path string
		wantName     string
		wantStatus   string
		wantError    bool
	}{
		{http.MethodGet, "/voices/ana", "HTTP GET /voices/{id}", "404", false},
		{http.MethodPost, "/tts", "HTTP POST /tts", "500", true},
		{http.MethodGet, "/missing", "HTTP GET /missing", "404", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			_, exp := serve(t, m, httptest.NewRequest(tt.method, tt.path, nil))
			spans := exp.GetSpans().Snapshots()
			if len(spans) != 1 {
				t.Fatalf("spans = %d, want 1", len(spans))
			}
			s := spans[0]
			if s.Name() != tt.wantName {
				t.Errorf("span name = %q, want %q", s.Name(), tt.wantName)
			}
			if got, _ := spanAttr(s, "http.response.status_code"); got != tt.wantStatus {
				t.Errorf("status attribute = %q, want %q", got, tt.wantStatus)
			}
			if isErr := s.Status().Code == codes.Error; isErr != tt.wantError {
				t.Errorf("span error = %v, want %v", isErr, tt.wantError)
			}
		})
	}
}

func TestMiddleware_RecordsDurationByRoute(t *testing.T) {
	m, reader := newTestMetrics(t)

	serve(t, m, httptest.NewRequest(http.MethodGet, "/voices/ana", nil))
	serve(t, m, httptest.NewRequest(http.MethodGet, "/voices/pedro", nil))
	serve(t, m, httptest.NewRequest(http.MethodGet, "/voices", nil))

	met := findMetric(collect(t, reader), "voxclone.http.request.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist := met.Data.(metricdata.Histogram[float64])

	counts := map[string]uint64{}
	for _, dp := range hist.DataPoints {
		path, _ := dp.Attributes.Value("path")
		status, _ := dp.Attributes.Value("status")
		counts[path.AsString()+" "+status.AsString()] += dp.Count
	}
	want := map[string]uint64{
		"GET /voices/{id} 4xx": 2,
		"GET /voices 2xx":      1,
	}
	for k, n := range want {
		if counts[k] != n {
			t.Errorf("count[%s] = %d, want %d (all: %v)", k, counts[k], n, counts)
		}
	}
}

func TestMiddleware_ProbesLoggedAtDebug(t *testing.T) {
	m, _ := newTestMetrics(t)

	var buf bytes.Buffer
	orig := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))
	t.Cleanup(func() { slog.SetDefault(orig) })

	serve(t, m, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if buf.Len() != 0 {
		t.Errorf("probe logged at info: %s", buf.String())
	}

	serve(t, m, httptest.NewRequest(http.MethodGet, "/voices", nil))
	logged := buf.String()
	for _, want := range []string{`route="GET /voices"`, "status=200", "bytes=11"} {
		if !strings.Contains(logged, want) {
			t.Errorf("log missing %s: %s", want, logged)
		}
	}
}
