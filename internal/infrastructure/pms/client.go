package pms

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"roomcast-http-service/internal/domain/services"
	"roomcast-http-service/internal/infrastructure/config"
	"roomcast-http-service/pkg/logger"
)

// Client 酒店PMS(物业管理系统)的HTTP客户端。
// 采用轮询而非webhook：部署现场的PMS普遍不具备对外推送能力。
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client

	mu        sync.RWMutex
	connected bool
	lastCheck time.Time
}

// healthCacheTTL 健康探测结果的缓存时间，避免每个房间查询前都打一次健康接口
const healthCacheTTL = 30 * time.Second

// NewClient 创建一个新的PMS客户端
func NewClient(cfg *config.Config) *Client {
	return &Client{
		baseURL: cfg.PMSBaseURL,
		apiKey:  cfg.PMSAPIKey,
		httpClient: &http.Client{
			Timeout: cfg.PMSTimeout(),
		},
	}
}

// reservationResponse PMS预订查询接口的响应体
type reservationResponse struct {
	RoomNumber   string     `json:"room_number"`
	GuestName    string     `json:"guest_name"`
	CheckInTime  *time.Time `json:"check_in_time"`
	CheckOutTime *time.Time `json:"check_out_time"`
}

// 1 GetReservationState 查询指定房间的当前预订。
// 404表示房间无预订，返回nil而非错误。
func (c *Client) GetReservationState(roomNumber string) (*services.ReservationState, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("PMS未配置")
	}

	endpoint := fmt.Sprintf("%s/api/reservations/%s", c.baseURL, url.PathEscape(roomNumber))
	req, err := http.NewRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.setConnected(false)
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// fallthrough to decode
	case http.StatusNotFound:
		c.setConnected(true)
		return nil, nil
	default:
		return nil, fmt.Errorf("PMS返回状态码 %d", resp.StatusCode)
	}

	var body reservationResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	c.setConnected(true)

	if body.CheckInTime == nil || body.CheckOutTime == nil {
		return nil, nil
	}
	return &services.ReservationState{
		GuestName:    body.GuestName,
		CheckInTime:  *body.CheckInTime,
		CheckOutTime: *body.CheckOutTime,
	}, nil
}

// 2 IsConnected 探测PMS是否可达，结果缓存一段时间
func (c *Client) IsConnected() bool {
	if c.baseURL == "" {
		return false
	}

	c.mu.RLock()
	if time.Since(c.lastCheck) < healthCacheTTL {
		connected := c.connected
		c.mu.RUnlock()
		return connected
	}
	c.mu.RUnlock()

	req, err := http.NewRequest(http.MethodGet, c.baseURL+"/api/health", nil)
	if err != nil {
		c.setConnected(false)
		return false
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Warning("[PMS] 健康探测失败: %v", err)
		c.setConnected(false)
		return false
	}
	defer resp.Body.Close()

	ok := resp.StatusCode == http.StatusOK
	c.setConnected(ok)
	return ok
}

func (c *Client) setConnected(connected bool) {
	c.mu.Lock()
	c.connected = connected
	c.lastCheck = time.Now()
	c.mu.Unlock()
}
