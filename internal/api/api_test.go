package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/storefront-sku-lookup/internal/api/middleware"
	"github.com/maltedev/storefront-sku-lookup/internal/models"
	"github.com/maltedev/storefront-sku-lookup/internal/scraper"
)

type fakeScraper struct {
	mu      sync.Mutex
	calls   [][]string
	batchID string
	err     error
	panic   bool
	// block waits for the request context to end before answering.
	block bool
}

func (f *fakeScraper) LookupBatch(ctx context.Context, ids []string) ([]models.Outcome, error) {
	f.mu.Lock()
	f.calls = append(f.calls, ids)
	f.batchID = scraper.BatchID(ctx)
	f.mu.Unlock()

	if f.panic {
		panic("engine exploded")
	}
	if f.block {
		<-ctx.Done()
		out := make([]models.Outcome, len(ids))
		for i, id := range ids {
			out[i] = models.Failed(id, ctx.Err())
		}
		return out, nil
	}
	if f.err != nil {
		return nil, f.err
	}

	out := make([]models.Outcome, len(ids))
	for i, id := range ids {
		switch {
		case strings.HasPrefix(id, "M"):
			out[i] = models.Matched(id, &models.ProductRecord{SourceURL: "https://store.test/products/" + id, SKU: id, Matched: true})
		case strings.HasPrefix(id, "X"):
			out[i] = models.Failed(id, errors.New("navigation timeout"))
		default:
			out[i] = models.NoResults(id, "Sin resultados")
		}
	}
	return out, nil
}

func newTestRouter(s scraper.Scraper, cfg RouterConfig) http.Handler {
	return NewRouter(Dependencies{Logger: slog.Default(), Scraper: s}, cfg)
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeArray(t *testing.T, rec *httptest.ResponseRecorder) []map[string]any {
	t.Helper()
	var out []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var out map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out["error"]
}

func TestHealthAndIndex(t *testing.T) {
	h := newTestRouter(&fakeScraper{}, DefaultRouterConfig())

	rec := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "storefront-sku-lookup")
}

func TestSearchQueryPreservesOrder(t *testing.T) {
	fake := &fakeScraper{}
	h := newTestRouter(fake, DefaultRouterConfig())

	rec := do(t, h, http.MethodGet, "/search?id=A1&id=M2&id=X3", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	out := decodeArray(t, rec)
	require.Len(t, out, 3)
	assert.Equal(t, "A1", out[0]["sku"])
	assert.Equal(t, "Sin resultados", out[0]["message"])
	assert.Equal(t, true, out[1]["found"])
	assert.Equal(t, true, out[1]["match"])
	assert.Equal(t, "navigation timeout", out[2]["error"])
	assert.Equal(t, false, out[2]["found"])

	batchID := rec.Header().Get("X-Batch-ID")
	_, err := uuid.Parse(batchID)
	assert.NoError(t, err)
	assert.Equal(t, batchID, fake.batchID)
}

func TestBuscarLegacyEndpoint(t *testing.T) {
	fake := &fakeScraper{}
	h := newTestRouter(fake, DefaultRouterConfig())

	rec := do(t, h, http.MethodGet, "/buscar?skus=N55028&skus=M1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeArray(t, rec), 2)
	assert.Equal(t, [][]string{{"N55028", "M1"}}, fake.calls)
}

func TestSearchBody(t *testing.T) {
	fake := &fakeScraper{}
	h := newTestRouter(fake, DefaultRouterConfig())

	rec := do(t, h, http.MethodPost, "/search", `{"ids":[" M1 ","B2"]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	out := decodeArray(t, rec)
	require.Len(t, out, 2)
	assert.Equal(t, " M1 ", out[0]["sku"])
	assert.Equal(t, [][]string{{" M1 ", "B2"}}, fake.calls)
}

func TestBlankIdentifierGetsItsOwnOutcome(t *testing.T) {
	tests := []struct {
		name   string
		method string
		target string
		body   string
		want   []string
	}{
		{"query", http.MethodGet, "/search?id=&id=M55028&id=%20N%2055028", "", []string{"", "M55028", " N 55028"}},
		{"body", http.MethodPost, "/search", `{"ids":["A","","M1"]}`, []string{"A", "", "M1"}},
		{"legacy", http.MethodGet, "/buscar?skus=%20&skus=M2", "", []string{" ", "M2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeScraper{}
			rec := do(t, newTestRouter(fake, DefaultRouterConfig()), tt.method, tt.target, tt.body)
			require.Equal(t, http.StatusOK, rec.Code)

			assert.Equal(t, [][]string{tt.want}, fake.calls)

			out := decodeArray(t, rec)
			require.Len(t, out, len(tt.want))
			for i, id := range tt.want {
				assert.Equal(t, id, out[i]["sku"], "position %d", i)
			}
		})
	}
}

func TestSearchTimeout(t *testing.T) {
	cfg := DefaultRouterConfig()
	cfg.RequestTimeout = 20 * time.Millisecond

	rec := do(t, newTestRouter(&fakeScraper{block: true}, cfg), http.MethodGet, "/search?id=A&id=B", "")

	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.Equal(t, "lookup timed out", decodeError(t, rec))
}

func TestSearchValidation(t *testing.T) {
	cfg := DefaultRouterConfig()
	cfg.MaxBatchSize = 2

	tests := []struct {
		name    string
		method  string
		target  string
		body    string
		message string
	}{
		{"missing query", http.MethodGet, "/search", "", "at least one identifier is required"},
		{"legacy without skus", http.MethodGet, "/buscar", "", "at least one identifier is required"},
		{"malformed body", http.MethodPost, "/search", `{"ids":`, "invalid request body"},
		{"empty ids", http.MethodPost, "/search", `{"ids":[]}`, "at least one identifier is required"},
		{"missing ids", http.MethodPost, "/search", `{}`, "at least one identifier is required"},
		{"too many", http.MethodGet, "/search?id=A&id=B&id=C", "", "too many identifiers: 3 (max 2)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeScraper{}
			rec := do(t, newTestRouter(fake, cfg), tt.method, tt.target, tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.message, decodeError(t, rec))
			assert.Empty(t, fake.calls)
		})
	}
}

func TestSearchErrors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"session unavailable", scraper.ErrSessionUnavailable, http.StatusServiceUnavailable, "browser unavailable"},
		{"wrapped session unavailable", errors.Join(errors.New("launch"), scraper.ErrSessionUnavailable), http.StatusServiceUnavailable, "browser unavailable"},
		{"other failure", errors.New("boom"), http.StatusInternalServerError, "lookup failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, newTestRouter(&fakeScraper{err: tt.err}, DefaultRouterConfig()), http.MethodGet, "/search?id=A", "")
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.message, decodeError(t, rec))
		})
	}
}

func TestPanicBecomesJSONError(t *testing.T) {
	rec := do(t, newTestRouter(&fakeScraper{panic: true}, DefaultRouterConfig()), http.MethodGet, "/search?id=A", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal server error", decodeError(t, rec))
	assert.NotContains(t, rec.Body.String(), "engine exploded")
}

func TestNotFound(t *testing.T) {
	rec := do(t, newTestRouter(&fakeScraper{}, DefaultRouterConfig()), http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not found", decodeError(t, rec))
}

func TestRateLimit(t *testing.T) {
	cfg := DefaultRouterConfig()
	cfg.RateLimit = middleware.Limit{Requests: 2, Window: time.Minute}
	h := newTestRouter(&fakeScraper{}, cfg)

	for i := 0; i < 2; i++ {
		rec := do(t, h, http.MethodGet, "/search?id=A", "")
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := do(t, h, http.MethodGet, "/search?id=A", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.NotEmpty(t, decodeError(t, rec))

	health := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, health.Code, "health is not rate limited")
}

func TestRateLimitDisabled(t *testing.T) {
	cfg := DefaultRouterConfig()
	cfg.EnableRateLimiting = false
	cfg.RateLimit = middleware.Limit{Requests: 1, Window: time.Minute}
	h := newTestRouter(&fakeScraper{}, cfg)

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/search?id=A", "").Code)
	}
}
