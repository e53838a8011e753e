package benchmark

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// Runner 对单个HTTP接口做并发压测
type Runner struct {
	BaseURL     string
	Concurrency int
	Requests    int
	AuthToken   string
	Headers     map[string]string // 额外请求头，设备接口用它携带UUID/MAC凭证
	Client      *http.Client
}

// Result 汇总一轮压测的统计数据
type Result struct {
	URL            string        `json:"url"`
	Method         string        `json:"method"`
	Concurrency    int           `json:"concurrency"`
	TotalRequests  int           `json:"total_requests"`
	SuccessCount   int           `json:"success_count"`
	FailureCount   int           `json:"failure_count"`
	TotalTime      time.Duration `json:"total_time"`
	AverageTime    time.Duration `json:"average_time"`
	MinTime        time.Duration `json:"min_time"`
	MaxTime        time.Duration `json:"max_time"`
	RequestsPerSec float64       `json:"requests_per_sec"`
	StatusCodes    map[int]int   `json:"status_codes"`
	Errors         []string      `json:"errors"`
}

type sample struct {
	duration   time.Duration
	statusCode int
	err        error
}

// NewRunner 创建一个压测执行器
func NewRunner(baseURL string, concurrency, requests int, authToken string) *Runner {
	return &Runner{
		BaseURL:     baseURL,
		Concurrency: concurrency,
		Requests:    requests,
		AuthToken:   authToken,
		Client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// RunGET 压测GET接口
func (r *Runner) RunGET(path string) *Result {
	return r.run(http.MethodGet, r.BaseURL+path, nil)
}

// RunPOST 压测POST接口
func (r *Runner) RunPOST(path string, payload interface{}) *Result {
	url := r.BaseURL + path
	body, err := json.Marshal(payload)
	if err != nil {
		return &Result{
			URL:    url,
			Method: http.MethodPost,
			Errors: []string{fmt.Sprintf("JSON编码错误: %v", err)},
		}
	}
	return r.run(http.MethodPost, url, body)
}

func (r *Runner) run(method, url string, payload []byte) *Result {
	samples := make(chan sample, r.Requests)
	var wg sync.WaitGroup
	limiter := make(chan struct{}, r.Concurrency)

	startTime := time.Now()

	for i := 0; i < r.Requests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			limiter <- struct{}{}
			defer func() { <-limiter }()
			samples <- r.doRequest(method, url, payload)
		}()
	}

	go func() {
		wg.Wait()
		close(samples)
	}()

	result := &Result{
		URL:           url,
		Method:        method,
		Concurrency:   r.Concurrency,
		TotalRequests: r.Requests,
		StatusCodes:   make(map[int]int),
	}

	var totalTime time.Duration
	for s := range samples {
		if s.err != nil {
			result.FailureCount++
			result.Errors = append(result.Errors, s.err.Error())
			continue
		}

		totalTime += s.duration
		if result.MinTime == 0 || s.duration < result.MinTime {
			result.MinTime = s.duration
		}
		if s.duration > result.MaxTime {
			result.MaxTime = s.duration
		}

		result.StatusCodes[s.statusCode]++
		if s.statusCode >= 200 && s.statusCode < 300 {
			result.SuccessCount++
		} else {
			result.FailureCount++
		}
	}

	result.TotalTime = time.Since(startTime)
	result.RequestsPerSec = float64(r.Requests) / result.TotalTime.Seconds()
	if completed := result.SuccessCount + result.FailureCount - len(result.Errors); completed > 0 {
		result.AverageTime = totalTime / time.Duration(completed)
	}
	return result
}

func (r *Runner) doRequest(method, url string, payload []byte) sample {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	start := time.Now()
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return sample{err: err}
	}

	req.Header.Set("Content-Type", "application/json")
	if r.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+r.AuthToken)
	}
	for key, value := range r.Headers {
		req.Header.Set(key, value)
	}

	resp, err := r.Client.Do(req)
	if err != nil {
		return sample{err: err}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return sample{
		duration:   time.Since(start),
		statusCode: resp.StatusCode,
	}
}

// PrintResult 打印压测结果
func (r *Result) PrintResult() {
	fmt.Printf("压测结果:\n")
	fmt.Printf("URL: %s\n", r.URL)
	fmt.Printf("方法: %s\n", r.Method)
	fmt.Printf("并发数: %d\n", r.Concurrency)
	fmt.Printf("总请求数: %d\n", r.TotalRequests)
	fmt.Printf("成功请求数: %d\n", r.SuccessCount)
	fmt.Printf("失败请求数: %d\n", r.FailureCount)
	fmt.Printf("总耗时: %s\n", r.TotalTime)
	fmt.Printf("平均耗时: %s\n", r.AverageTime)
	fmt.Printf("最小耗时: %s\n", r.MinTime)
	fmt.Printf("最大耗时: %s\n", r.MaxTime)
	fmt.Printf("每秒请求数: %.2f\n", r.RequestsPerSec)
	fmt.Printf("状态码分布:\n")
	for code, count := range r.StatusCodes {
		fmt.Printf("  %d: %d\n", code, count)
	}
	if len(r.Errors) > 0 {
		fmt.Printf("错误信息 (最多显示5个):\n")
		for i, err := range r.Errors {
			if i >= 5 {
				fmt.Printf("  ... 还有 %d 个错误\n", len(r.Errors)-5)
				break
			}
			fmt.Printf("  %s\n", err)
		}
	}
}
