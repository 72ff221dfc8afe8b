package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"pos_report/internal/money"

	"github.com/google/uuid"
)

// Result 记录单次请求的 HTTP 结果，便于聚合统计。
type Result struct {
	Status int
	Body   string
	Err    error
}

type itemReq struct {
	ProductID uint `json:"product_id"`
	Quantity  int  `json:"quantity"`
}

type orderReq struct {
	PlatformID *uint     `json:"platform_id,omitempty"`
	Items      []itemReq `json:"items"`
}

type summaryResp struct {
	Code int `json:"code"`
	Data struct {
		OrderCount    int          `json:"order_count"`
		TotalQuantity int          `json:"total_quantity"`
		TotalAmount   money.Amount `json:"total_amount"`
	} `json:"data"`
}

func main() {
	baseURL := flag.String("base", "http://localhost:10000", "server base url")
	nOrders := flag.Int("orders", 200, "orders to create")
	concurrency := flag.Int("c", 50, "max concurrency")
	qty := flag.Int("qty", 2, "quantity per order")
	price := flag.String("price", "5.00", "unit price of the load test product")
	retry := flag.Bool("retry", true, "resend every order with the same Idempotency-Key")
	flag.Parse()

	unitPrice, err := money.Parse(*price)
	if err != nil {
		fail("invalid price: %v", err)
	}
	client := &http.Client{Timeout: 5 * time.Second}

	// 0) 准备平台与商品，记录压测前的当日汇总作为基线
	runID := uuid.NewString()[:8]
	var platform struct {
		ID uint `json:"id"`
	}
	if err := doJSON(client, http.MethodPost, *baseURL+"/api/platforms", map[string]any{"name": "loadtest-" + runID}, nil, &platform); err != nil {
		fail("create platform: %v", err)
	}
	var product struct {
		ID uint `json:"id"`
	}
	if err := doJSON(client, http.MethodPost, *baseURL+"/api/products", map[string]any{"name": "loadtest-" + runID, "unit_price": unitPrice}, nil, &product); err != nil {
		fail("create product: %v", err)
	}
	before, err := getSummary(client, *baseURL)
	if err != nil {
		fail("summary before: %v", err)
	}

	// 1) 并发下单，每单使用独立的幂等键
	// 注意：默认写限流是 120 次/分钟，压测前把服务端 WRITE_RATE_LIMIT 调大，否则会出现 429
	fmt.Printf("start create test: orders=%d concurrency=%d\n", *nOrders, *concurrency)
	keys := make([]string, *nOrders)
	for i := range keys {
		keys[i] = fmt.Sprintf("loadtest-%s-%d", runID, i)
	}
	req := orderReq{PlatformID: &platform.ID, Items: []itemReq{{ProductID: product.ID, Quantity: *qty}}}
	created := runOrders(client, *baseURL, req, keys, *concurrency)
	printSummary("create", created)

	// 2) 用相同幂等键重放，订单数不应增加
	if *retry {
		printSummary("retry", runOrders(client, *baseURL, req, keys, *concurrency))
	}

	// 3) 校验当日汇总与成功下单数一致
	after, err := getSummary(client, *baseURL)
	if err != nil {
		fail("summary after: %v", err)
	}
	wantCount, wantAmount := createdTotals(created)
	gotCount := after.Data.OrderCount - before.Data.OrderCount
	gotAmount := after.Data.TotalAmount - before.Data.TotalAmount

	fmt.Printf("orders created: %d (want %d)\n", gotCount, wantCount)
	fmt.Printf("amount added:   %s (want %s)\n", gotAmount, wantAmount)
	if gotCount != wantCount || gotAmount != wantAmount {
		fail("summary mismatch")
	}
	fmt.Println("ok")
}

// createdTotals 统计成功下单数与响应中订单总额之和。
func createdTotals(results []Result) (int, money.Amount) {
	count := 0
	var sum money.Amount
	for _, r := range results {
		if r.Err != nil || r.Status != http.StatusOK {
			continue
		}
		var out struct {
			Data struct {
				Total money.Amount `json:"total"`
			} `json:"data"`
		}
		if err := json.Unmarshal([]byte(r.Body), &out); err != nil {
			continue
		}
		count++
		sum += out.Data.Total
	}
	return count, sum
}

func runOrders(client *http.Client, baseURL string, req orderReq, keys []string, concurrency int) []Result {
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	results := make([]Result, len(keys))

	for i := range keys {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()
			results[idx] = createOnce(client, baseURL, req, keys[idx])
		}(i)
	}

	wg.Wait()
	return results
}

func createOnce(client *http.Client, baseURL string, req orderReq, idemKey string) Result {
	b, _ := json.Marshal(req)
	httpReq, _ := http.NewRequest(http.MethodPost, baseURL+"/api/orders", bytes.NewReader(b))
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", idemKey)

	resp, err := client.Do(httpReq)
	if err != nil {
		return Result{Err: err}
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return Result{Status: resp.StatusCode, Body: string(body)}
}

// printSummary 聚合输出不同状态码分布。
func printSummary(name string, results []Result) {
	count := map[int]int{}
	errCount := 0
	for _, r := range results {
		if r.Err != nil {
			errCount++
			continue
		}
		count[r.Status]++
	}
	fmt.Printf("[%s] http status summary:\n", name)
	for _, code := range []int{200, 400, 404, 409, 429, 500} {
		if count[code] > 0 {
			fmt.Printf("  %d -> %d\n", code, count[code])
		}
	}
	if errCount > 0 {
		fmt.Printf("  errors -> %d\n", errCount)
	}
}

// doJSON 发送请求并解析响应中的 data 字段。
func doJSON(client *http.Client, method, url string, body any, headers map[string]string, out any) error {
	var r io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		r = bytes.NewReader(b)
	}
	req, _ := http.NewRequest(method, url, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("status=%d body=%s", resp.StatusCode, string(b))
	}
	if out == nil {
		return nil
	}
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(b, &env); err != nil {
		return err
	}
	return json.Unmarshal(env.Data, out)
}

// getSummary 查询当日汇总。
func getSummary(client *http.Client, baseURL string) (summaryResp, error) {
	var out summaryResp
	resp, err := client.Get(baseURL + "/api/summary/today")
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return out, fmt.Errorf("status=%d body=%s", resp.StatusCode, string(b))
	}
	err = json.Unmarshal(b, &out)
	return out, err
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
