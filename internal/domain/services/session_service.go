package services

import (
	"sync"
	"time"

	"roomcast-http-service/pkg/logger"
)

// ConnectionSession 设备的一次实时连接。
// 只存在于内存中，进程重启后由设备重新announce重建。
type ConnectionSession struct {
	DeviceUUID  string    `json:"device_uuid"`
	ConnectedAt time.Time `json:"connected_at"`
	LastSeen    time.Time `json:"last_seen"`
}

// InterfaceSessionService 定义连接会话表接口
type InterfaceSessionService interface {
	Connect(uuid string)
	Touch(uuid string)
	Disconnect(uuid string)
	Get(uuid string) (ConnectionSession, bool)
	Count() int
	ActiveUUIDs() []string
	EvictStale(now time.Time) int
	StartEvictionSweep()
	Stop()
}

// SessionService 维护设备UUID到实时连接的内存映射。
// 该表不是审批状态的权威来源，只用于推送寻址和内存回收。
type SessionService struct {
	mu       sync.RWMutex
	sessions map[string]*ConnectionSession

	timeout       time.Duration // 超过该时长未见活动即被清理
	sweepInterval time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewSessionService 创建一个新的连接会话服务
func NewSessionService(timeout, sweepInterval time.Duration) *SessionService {
	return &SessionService{
		sessions:      make(map[string]*ConnectionSession),
		timeout:       timeout,
		sweepInterval: sweepInterval,
		stopCh:        make(chan struct{}),
	}
}

// 1 Connect 插入或刷新设备会话
func (s *SessionService) Connect(uuid string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if session, ok := s.sessions[uuid]; ok {
		session.LastSeen = now
		return
	}
	s.sessions[uuid] = &ConnectionSession{
		DeviceUUID:  uuid,
		ConnectedAt: now,
		LastSeen:    now,
	}
}

// 2 Touch 刷新已有会话的最后活动时间，会话不存在时不做任何事
func (s *SessionService) Touch(uuid string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if session, ok := s.sessions[uuid]; ok {
		session.LastSeen = time.Now()
	}
}

// 3 Disconnect 移除设备会话
func (s *SessionService) Disconnect(uuid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, uuid)
}

// 4 Get 查询设备会话
func (s *SessionService) Get(uuid string) (ConnectionSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[uuid]
	if !ok {
		return ConnectionSession{}, false
	}
	return *session, true
}

// 5 Count 返回当前会话数量
func (s *SessionService) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// 6 ActiveUUIDs 返回当前所有在线设备的UUID
func (s *SessionService) ActiveUUIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	uuids := make([]string, 0, len(s.sessions))
	for uuid := range s.sessions {
		uuids = append(uuids, uuid)
	}
	return uuids
}

// 7 EvictStale 清理超时会话，返回清理数量。
// 独立于注册表的连接状态推导运行，用于限制未正常断开的设备造成的内存增长。
func (s *SessionService) EvictStale(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for uuid, session := range s.sessions {
		if now.Sub(session.LastSeen) > s.timeout {
			delete(s.sessions, uuid)
			evicted++
		}
	}
	return evicted
}

// 8 StartEvictionSweep 启动周期性会话清理任务
func (s *SessionService) StartEvictionSweep() {
	go func() {
		ticker := time.NewTicker(s.sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if evicted := s.EvictStale(time.Now()); evicted > 0 {
					logger.Info("[Session] 已清理 %d 个超时会话，当前会话数: %d", evicted, s.Count())
				}
			case <-s.stopCh:
				return
			}
		}
	}()
}

// 9 Stop 停止清理任务
func (s *SessionService) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
}
