package services

import (
	"errors"
	"sync"
	"time"

	"roomcast-http-service/internal/infrastructure/config"
)

// fakePublisher 记录发布调用的测试替身
type fakePublisher struct {
	mu        sync.Mutex
	published []publishedMessage
	connected bool
	failNext  bool
}

type publishedMessage struct {
	Topic   string
	Payload []byte
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{connected: true}
}

func (p *fakePublisher) Publish(topic string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.failNext {
		p.failNext = false
		return errors.New("publish failed")
	}
	p.published = append(p.published, publishedMessage{Topic: topic, Payload: payload})
	return nil
}

func (p *fakePublisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

func (p *fakePublisher) messages() []publishedMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]publishedMessage, len(p.published))
	copy(out, p.published)
	return out
}

func (p *fakePublisher) messagesTo(topic string) []publishedMessage {
	var out []publishedMessage
	for _, m := range p.messages() {
		if m.Topic == topic {
			out = append(out, m)
		}
	}
	return out
}

// fakeReservationSource 固定应答的PMS测试替身
type fakeReservationSource struct {
	mu           sync.Mutex
	connected    bool
	reservations map[string]*ReservationState
	queryErr     error
	queries      []string
}

func newFakeReservationSource() *fakeReservationSource {
	return &fakeReservationSource{
		connected:    true,
		reservations: make(map[string]*ReservationState),
	}
}

func (f *fakeReservationSource) GetReservationState(roomNumber string) (*ReservationState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.queries = append(f.queries, roomNumber)
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.reservations[roomNumber], nil
}

func (f *fakeReservationSource) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

// testConfig 测试用配置
func testConfig() *config.Config {
	return &config.Config{
		HeartbeatTimeoutSec: 300,
		SessionSweepSec:     60,
		GuestSweepSec:       300,
		PanelName:           "RoomCast",
		PanelLogoURL:        "https://cdn.example.com/logo.png",
		WelcomeTemplate:     config.DefaultWelcomeTemplate,
		FarewellTemplate:    config.DefaultFarewellTemplate,
		JWTSecretKey:        "test-secret",
	}
}

// newTestSessions 创建不启动后台任务的会话服务
func newTestSessions() *SessionService {
	return NewSessionService(300*time.Second, 60*time.Second)
}
