package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/last-minute-learner/reviewer-api/internal/config"
	"github.com/last-minute-learner/reviewer-api/internal/errorlog"
	"github.com/last-minute-learner/reviewer-api/internal/reviewer"
	"github.com/last-minute-learner/reviewer-api/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	cfg       *config.Config
	extractor *testutils.StubExtractor
	generator *testutils.StubGenerator
	errorLog  *errorlog.Logger
	handler   http.Handler
}

func newFixture(t *testing.T, mutate func(*config.Config)) *fixture {
	t.Helper()

	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}

	logger := testutils.CreateTestLogger()
	errLog, err := errorlog.New(logger, true, t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = errLog.Close() })

	f := &fixture{
		cfg:       cfg,
		extractor: &testutils.StubExtractor{Text: "extracted pdf text"},
		generator: &testutils.StubGenerator{Doc: testutils.ValidDocument()},
		errorLog:  errLog,
	}
	service := reviewer.NewService(f.extractor, f.generator, logger)
	f.handler = New(cfg, service, errLog, logger).Handler()
	return f
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func multipartRequest(t *testing.T, prompt *string, file *testutils.MultipartFile) *http.Request {
	t.Helper()
	body, contentType, err := testutils.NewMultipartBody(prompt, file)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, RouteGenerateReviewer, body)
	req.Header.Set("Content-Type", contentType)
	return req
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func pdfFile(data []byte) *testutils.MultipartFile {
	return &testutils.MultipartFile{Filename: "notes.pdf", ContentType: reviewer.PDFContentType, Data: data}
}

func ptr(s string) *string { return &s }

func TestCustom(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(httptest.NewRequest(http.MethodGet, RouteCustom, nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"message":"Hello from Express API"}`, rec.Body.String())
}

func TestGenerate_PromptOnly(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(multipartRequest(t, ptr("Explain photosynthesis"), nil))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var doc reviewer.ReviewerDocument
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.NotEmpty(t, doc.Field)
	assert.Len(t, doc.Terminologies, reviewer.MinTerminologies)

	assert.Equal(t, []string{"Explain photosynthesis"}, f.generator.Contents())
	assert.Zero(t, f.extractor.Calls())
}

func TestGenerate_PromptAndPDF(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(multipartRequest(t, ptr("Focus on chapter 2"), pdfFile([]byte("%PDF-1.4 stub"))))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"Focus on chapter 2\n\nextracted pdf text"}, f.generator.Contents())
	assert.Equal(t, 1, f.extractor.Calls())
}

func TestGenerate_URLEncodedPrompt(t *testing.T) {
	f := newFixture(t, nil)

	form := url.Values{"prompt": {"Cell biology"}}
	req := httptest.NewRequest(http.MethodPost, RouteGenerateReviewer, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rec := f.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"Cell biology"}, f.generator.Contents())
}

func TestGenerate_MissingInput(t *testing.T) {
	tests := []struct {
		name string
		req  func(t *testing.T) *http.Request
	}{
		{
			name: "empty multipart form",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, nil, nil)
			},
		},
		{
			name: "empty prompt field",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, ptr(""), nil)
			},
		},
		{
			name: "zero byte file",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, nil, pdfFile(nil))
			},
		},
		{
			name: "no body",
			req: func(t *testing.T) *http.Request {
				return httptest.NewRequest(http.MethodPost, RouteGenerateReviewer, nil)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)

			rec := f.do(tt.req(t))

			require.Equal(t, http.StatusBadRequest, rec.Code)
			body := decodeBody(t, rec)
			issues, ok := body["error"].([]any)
			require.True(t, ok, "error is an issue list: %s", rec.Body.String())
			require.Len(t, issues, 1)

			issue := issues[0].(map[string]any)
			assert.Equal(t, reviewer.MsgMissingInput, issue["message"])
			assert.Equal(t, "custom", issue["code"])
			assert.Empty(t, f.generator.Contents())
		})
	}
}

func TestGenerate_NonPDF(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{name: "text file", data: []byte("hello")},
		{name: "zero byte text file", data: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)

			file := &testutils.MultipartFile{Filename: "notes.txt", ContentType: "text/plain", Data: tt.data}
			rec := f.do(multipartRequest(t, ptr("summarise"), file))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.JSONEq(t, `{"error":"Only PDF files are allowed"}`, rec.Body.String())
			assert.Empty(t, f.generator.Contents())
			assert.Zero(t, f.extractor.Calls())
		})
	}
}

func TestGenerate_Failures(t *testing.T) {
	outOfBounds := testutils.ValidDocument()
	outOfBounds.Terminologies = outOfBounds.Terminologies[:3]

	tests := []struct {
		name      string
		setup     func(f *fixture)
		withFile  bool
		wantStage string
	}{
		{
			name:      "generator error",
			setup:     func(f *fixture) { f.generator.Err = errors.New("quota exceeded") },
			wantStage: "generation",
		},
		{
			name:      "document out of bounds",
			setup:     func(f *fixture) { f.generator.Doc = outOfBounds },
			wantStage: "generation",
		},
		{
			name:      "extraction error",
			setup:     func(f *fixture) { f.extractor.Err = errors.New("corrupt xref") },
			withFile:  true,
			wantStage: "extraction",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			tt.setup(f)

			var file *testutils.MultipartFile
			if tt.withFile {
				file = pdfFile([]byte("%PDF-1.4 stub"))
			}
			rec := f.do(multipartRequest(t, ptr("topic"), file))

			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			assert.JSONEq(t, `{"error":"Something went wrong"}`, rec.Body.String())

			data, err := os.ReadFile(f.errorLog.FilePath())
			require.NoError(t, err)
			assert.Contains(t, string(data), fmt.Sprintf(`"stage":%q`, tt.wantStage))
			assert.Contains(t, string(data), `"transport":"http"`)
			assert.Contains(t, string(data), rec.Header().Get(HeaderRequestID))
		})
	}
}

func TestGenerate_FileTooLarge(t *testing.T) {
	t.Run("file over limit", func(t *testing.T) {
		f := newFixture(t, func(c *config.Config) { c.MaxUploadBytes = 1024 })

		rec := f.do(multipartRequest(t, nil, pdfFile(bytes.Repeat([]byte("a"), 4096))))

		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
		assert.JSONEq(t, `{"error":"File too large"}`, rec.Body.String())
		assert.Zero(t, f.extractor.Calls())
	})

	t.Run("body over limit", func(t *testing.T) {
		f := newFixture(t, func(c *config.Config) { c.MaxUploadBytes = 1024 })

		big := bytes.Repeat([]byte("a"), formOverheadBytes+4096)
		rec := f.do(multipartRequest(t, nil, pdfFile(big)))

		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
		assert.JSONEq(t, `{"error":"File too large"}`, rec.Body.String())
	})
}

func TestGenerate_MalformedMultipart(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest(http.MethodPost, RouteGenerateReviewer, strings.NewReader("--nope\r\nbroken"))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=xyz")

	rec := f.do(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Malformed request body"}`, rec.Body.String())
}

func TestCORS(t *testing.T) {
	f := newFixture(t, nil)

	t.Run("preflight from allowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, RouteGenerateReviewer, nil)
		req.Header.Set("Origin", "http://localhost:3000")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		req.Header.Set("Access-Control-Request-Headers", "content-type")

		rec := f.do(req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
		assert.Equal(t, "content-type", rec.Header().Get("Access-Control-Allow-Headers"))
	})

	t.Run("preflight from other origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, RouteGenerateReviewer, nil)
		req.Header.Set("Origin", "https://evil.example.com")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)

		rec := f.do(req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Methods"))
	})

	t.Run("simple request", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, RouteCustom, nil)
		req.Header.Set("Origin", "https://last-minute-learner.vercel.app")

		rec := f.do(req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "https://last-minute-learner.vercel.app", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, rec.Header().Values("Vary"), "Origin")
	})

	t.Run("configured origins replace defaults", func(t *testing.T) {
		custom := newFixture(t, func(c *config.Config) { c.AllowedOrigins = []string{"https://study.example.org"} })

		req := httptest.NewRequest(http.MethodGet, RouteCustom, nil)
		req.Header.Set("Origin", "http://localhost:3000")
		assert.Empty(t, custom.do(req).Header().Get("Access-Control-Allow-Origin"))

		req.Header.Set("Origin", "https://study.example.org")
		assert.Equal(t, "https://study.example.org", custom.do(req).Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestRequestID(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(httptest.NewRequest(http.MethodGet, RouteCustom, nil))
	assert.Len(t, rec.Header().Get(HeaderRequestID), 36)

	req := httptest.NewRequest(http.MethodGet, RouteCustom, nil)
	req.Header.Set(HeaderRequestID, "client-supplied-id")
	rec = f.do(req)
	assert.Equal(t, "client-supplied-id", rec.Header().Get(HeaderRequestID))
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t, func(c *config.Config) {
		c.RateLimit = config.RateLimitConfig{RequestsPerMinute: 60, Burst: 1}
	})

	rec := f.do(multipartRequest(t, ptr("first"), nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(multipartRequest(t, ptr("second"), nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.JSONEq(t, `{"error":"Too many requests"}`, rec.Body.String())
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	// Other clients and other routes are unaffected
	other := multipartRequest(t, ptr("third"), nil)
	other.RemoteAddr = "198.51.100.7:4000"
	assert.Equal(t, http.StatusOK, f.do(other).Code)
	assert.Equal(t, http.StatusOK, f.do(httptest.NewRequest(http.MethodGet, RouteCustom, nil)).Code)

	assert.Equal(t, []string{"first", "third"}, f.generator.Contents())
}

func TestRateLimit_DisabledByDefault(t *testing.T) {
	f := newFixture(t, nil)
	for range 5 {
		assert.Equal(t, http.StatusOK, f.do(multipartRequest(t, ptr("again"), nil)).Code)
	}
}

func TestServe_GracefulShutdown(t *testing.T) {
	cfg := config.Default()
	logger := testutils.CreateTestLogger()
	service := reviewer.NewService(&testutils.StubExtractor{}, &testutils.StubGenerator{Doc: testutils.ValidDocument()}, logger)
	srv := New(cfg, service, nil, logger)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://" + ln.Addr().String() + RouteCustom)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
}
