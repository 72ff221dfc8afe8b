package router

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"pos_report/internal/middleware"
	"pos_report/internal/money"
	"pos_report/internal/sales"
	"pos_report/internal/store/storetest"
	rediskey "pos_report/pkg/redis"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testNow = time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)

type envelope[T any] struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data T      `json:"data"`
}

func newTestRouter(t *testing.T, withRedis bool, limiter *middleware.RateLimiter) (*gin.Engine, *miniredis.Miniredis) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	var (
		mr   *miniredis.Miniredis
		idem *rediskey.Idempotency
	)
	p := sales.Params{
		Store:    storetest.Store(t),
		Log:      zap.NewNop(),
		Clock:    func() time.Time { return testNow },
		Calendar: sales.Calendar{Location: time.UTC, WeekStart: time.Sunday},
	}
	if withRedis {
		mr = miniredis.RunT(t)
		rdb := rd.NewClient(&rd.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = rdb.Close() })
		p.Cache = rediskey.NewSummaryCache(rdb, time.Minute)
		idem = rediskey.NewIdempotency(rdb, time.Hour)
	}

	r := gin.New()
	Setup(r, Deps{
		Engine:       sales.NewEngine(p),
		Log:          zap.NewNop(),
		Idempotency:  idem,
		WriteLimiter: limiter,
	})
	return r, mr
}

func do(r *gin.Engine, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) envelope[T] {
	t.Helper()
	var out envelope[T]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

// seed 登记平台 A 与商品 Latte(5.00)。
func seed(t *testing.T, r *gin.Engine) (platformID, productID uint) {
	t.Helper()
	w := do(r, http.MethodPost, "/api/platforms", gin.H{"name": "A"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	platformID = decode[struct {
		ID uint `json:"id"`
	}](t, w).Data.ID

	w = do(r, http.MethodPost, "/api/products", gin.H{"name": "Latte", "unit_price": 5.00})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	productID = decode[struct {
		ID uint `json:"id"`
	}](t, w).Data.ID
	return platformID, productID
}

func TestPing(t *testing.T) {
	r, _ := newTestRouter(t, false, nil)
	w := do(r, http.MethodGet, "/ping", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "pong")
}

func TestCreateOrderAndSummary(t *testing.T) {
	r, _ := newTestRouter(t, false, nil)
	platformID, productID := seed(t, r)

	w := do(r, http.MethodPost, "/api/orders", gin.H{
		"platform_id": platformID,
		"items":       []gin.H{{"product_id": productID, "quantity": 2, "discount": 1}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	order := decode[sales.OrderDetail](t, w).Data
	assert.Equal(t, money.Amount(900), order.Total)
	assert.Equal(t, "A", order.PlatformName)
	require.Len(t, order.Items, 1)
	assert.Equal(t, "Latte", order.Items[0].ProductName)

	w = do(r, http.MethodGet, "/api/summary/today", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	s := decode[sales.Summary](t, w).Data
	assert.Equal(t, 1, s.OrderCount)
	assert.Equal(t, 2, s.TotalQuantity)
	assert.Equal(t, money.Amount(900), s.TotalAmount)
	assert.Contains(t, w.Body.String(), `"total_amount":9.00`)

	w = do(r, http.MethodGet, fmt.Sprintf("/api/orders/%d", order.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, order.ID, decode[sales.OrderDetail](t, w).Data.ID)

	w = do(r, http.MethodGet, "/api/orders?start=2024-06-15&end=2024-06-15", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]sales.OrderDetail](t, w).Data, 1)

	w = do(r, http.MethodGet, "/api/summary?start=2024-06-01&end=2024-06-14", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, decode[sales.Summary](t, w).Data.OrderCount)
}

func TestEmptySummaryShape(t *testing.T) {
	r, _ := newTestRouter(t, false, nil)
	w := do(r, http.MethodGet, "/api/summary/week", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `"order_count":0`)
	assert.Contains(t, body, `"product_summary":[]`)
	assert.Contains(t, body, `"orders":[]`)
}

func TestErrorMapping(t *testing.T) {
	r, _ := newTestRouter(t, false, nil)
	_, productID := seed(t, r)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{"empty items", http.MethodPost, "/api/orders", gin.H{"items": []gin.H{}}, http.StatusBadRequest},
		{"zero quantity", http.MethodPost, "/api/orders", gin.H{"items": []gin.H{{"product_id": productID, "quantity": 0}}}, http.StatusBadRequest},
		{"unknown platform", http.MethodPost, "/api/orders", gin.H{"platform_id": 99, "items": []gin.H{{"product_id": productID, "quantity": 1}}}, http.StatusNotFound},
		{"unknown product", http.MethodPost, "/api/orders", gin.H{"items": []gin.H{{"product_id": 99, "quantity": 1}}}, http.StatusNotFound},
		{"malformed json", http.MethodPost, "/api/orders", "not-an-object", http.StatusBadRequest},
		{"missing order", http.MethodGet, "/api/orders/42", nil, http.StatusNotFound},
		{"bad order id", http.MethodGet, "/api/orders/abc", nil, http.StatusBadRequest},
		{"reversed range", http.MethodGet, "/api/summary?start=2024-06-10&end=2024-06-01", nil, http.StatusBadRequest},
		{"bad date", http.MethodGet, "/api/summary?start=2024/06/10&end=2024-06-11", nil, http.StatusBadRequest},
		{"bad window", http.MethodGet, "/api/export?window=month", nil, http.StatusBadRequest},
		{"bad format", http.MethodGet, "/api/export?format=pdf", nil, http.StatusBadRequest},
		{"delete missing product", http.MethodDelete, "/api/products/77", nil, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}

func TestUpdateItem(t *testing.T) {
	r, _ := newTestRouter(t, false, nil)
	platformID, productID := seed(t, r)

	w := do(r, http.MethodPost, "/api/orders", gin.H{
		"platform_id": platformID,
		"items":       []gin.H{{"product_id": productID, "quantity": 1}},
	})
	require.Equal(t, http.StatusOK, w.Code)
	order := decode[sales.OrderDetail](t, w).Data
	itemID := order.Items[0].ID

	w = do(r, http.MethodPatch, fmt.Sprintf("/api/orders/%d/items/%d", order.ID, itemID), gin.H{"quantity": 3, "discount": 0.5})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decode[sales.OrderDetail](t, w).Data
	assert.Equal(t, money.Amount(1450), updated.Total)
	assert.Equal(t, 3, updated.Items[0].Quantity)

	w = do(r, http.MethodPatch, fmt.Sprintf("/api/orders/%d/items/%d", order.ID, itemID), gin.H{"quantity": 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPatch, fmt.Sprintf("/api/orders/%d/items/%d", order.ID, itemID+100), gin.H{"quantity": 1})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateOrderIdempotencyKey(t *testing.T) {
	r, _ := newTestRouter(t, true, nil)
	platformID, productID := seed(t, r)
	body := gin.H{
		"platform_id": platformID,
		"items":       []gin.H{{"product_id": productID, "quantity": 1}},
	}

	first := do(r, http.MethodPost, "/api/orders", body, "Idempotency-Key", "till-1-0001")
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())
	second := do(r, http.MethodPost, "/api/orders", body, "Idempotency-Key", "till-1-0001")
	require.Equal(t, http.StatusOK, second.Code, second.Body.String())

	assert.Equal(t,
		decode[sales.OrderDetail](t, first).Data.ID,
		decode[sales.OrderDetail](t, second).Data.ID)

	w := do(r, http.MethodGet, "/api/summary/today", nil)
	assert.Equal(t, 1, decode[sales.Summary](t, w).Data.OrderCount)
}

func TestCreateOrderIdempotencyReleasedOnFailure(t *testing.T) {
	r, mr := newTestRouter(t, true, nil)
	_, productID := seed(t, r)

	w := do(r, http.MethodPost, "/api/orders", gin.H{
		"platform_id": 99,
		"items":       []gin.H{{"product_id": productID, "quantity": 1}},
	}, "Idempotency-Key", "till-1-0002")
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.False(t, mr.Exists(rediskey.IdempotencyKey("till-1-0002")))

	w = do(r, http.MethodPost, "/api/orders", gin.H{
		"items": []gin.H{{"product_id": productID, "quantity": 1}},
	}, "Idempotency-Key", "till-1-0002")
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestCreateOrderIdempotencyInProgress(t *testing.T) {
	r, mr := newTestRouter(t, true, nil)
	_, productID := seed(t, r)
	require.NoError(t, mr.Set(rediskey.IdempotencyKey("till-1-0003"), "pending"))

	w := do(r, http.MethodPost, "/api/orders", gin.H{
		"items": []gin.H{{"product_id": productID, "quantity": 1}},
	}, "Idempotency-Key", "till-1-0003")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestSummaryServedFromCacheUntilWrite(t *testing.T) {
	r, mr := newTestRouter(t, true, nil)
	_, productID := seed(t, r)

	w := do(r, http.MethodGet, "/api/summary/today", nil)
	require.Equal(t, 0, decode[sales.Summary](t, w).Data.OrderCount)
	assert.NotEmpty(t, mr.Keys())

	w = do(r, http.MethodPost, "/api/orders", gin.H{"items": []gin.H{{"product_id": productID, "quantity": 1}}})
	require.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodGet, "/api/summary/today", nil)
	s := decode[sales.Summary](t, w).Data
	assert.Equal(t, 1, s.OrderCount)
	require.Len(t, s.PlatformProductSummary, 1)
	assert.Equal(t, sales.Unspecified, s.PlatformProductSummary[0].PlatformName)
}

func TestExportCSV(t *testing.T) {
	r, _ := newTestRouter(t, false, nil)
	platformID, productID := seed(t, r)
	w := do(r, http.MethodPost, "/api/orders", gin.H{
		"platform_id": platformID,
		"items":       []gin.H{{"product_id": productID, "quantity": 2}},
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodGet, "/api/export?start=2024-06-15&end=2024-06-15&format=csv", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, `attachment; filename="orders_2024-06-15_2024-06-15.csv"`, w.Header().Get("Content-Disposition"))
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "text/csv"))

	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, strings.Join(sales.ExportColumns, ","), strings.TrimSpace(lines[0]))
	assert.Contains(t, lines[1], "Latte")
	assert.Contains(t, lines[1], "10.00")
}

func TestExportXLSXDefault(t *testing.T) {
	r, _ := newTestRouter(t, false, nil)
	w := do(r, http.MethodGet, "/api/export?window=today", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, `attachment; filename="orders_2024-06-15_2024-06-15.xlsx"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", w.Header().Get("Content-Type"))
	// xlsx 是 zip 容器
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("PK")))
}

func TestWriteRateLimit(t *testing.T) {
	limiter := middleware.NewRateLimiter(nil, "orders", 1, time.Minute)
	r, _ := newTestRouter(t, false, limiter)
	_, productID := seed(t, r)
	body := gin.H{"items": []gin.H{{"product_id": productID, "quantity": 1}}}

	w := do(r, http.MethodPost, "/api/orders", body)
	require.Equal(t, http.StatusOK, w.Code)
	w = do(r, http.MethodPost, "/api/orders", body)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// 读接口不受写限流影响
	w = do(r, http.MethodGet, "/api/summary/today", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCatalogLifecycle(t *testing.T) {
	r, _ := newTestRouter(t, false, nil)
	_, productID := seed(t, r)

	w := do(r, http.MethodPost, "/api/products", gin.H{"name": "Latte", "unit_price": "5.50"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(r, http.MethodGet, "/api/products", nil)
	products := decode[[]struct {
		ID        uint         `json:"id"`
		Name      string       `json:"name"`
		UnitPrice money.Amount `json:"unit_price"`
	}](t, w).Data
	require.Len(t, products, 1)
	assert.Equal(t, money.Amount(550), products[0].UnitPrice)

	w = do(r, http.MethodDelete, fmt.Sprintf("/api/products/%d", productID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = do(r, http.MethodGet, "/api/products", nil)
	assert.Empty(t, decode[[]json.RawMessage](t, w).Data)

	w = do(r, http.MethodPost, "/api/products", gin.H{"name": "Mocha", "unit_price": -1})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
