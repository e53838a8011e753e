package services

import (
	"strings"
	"sync"
	"time"

	"roomcast-http-service/internal/domain/models"
	"roomcast-http-service/internal/domain/store"
	"roomcast-http-service/internal/infrastructure/config"
	"roomcast-http-service/pkg/logger"
)

// 触发窗口和去重窗口
const (
	// CheckInWindow 入住发生在该窗口内才触发欢迎消息
	CheckInWindow = 15 * time.Minute
	// CheckOutWindow 退房在该窗口内到期才触发离店消息
	CheckOutWindow = 15 * time.Minute
	// WelcomeDedupWindow 同一设备两次欢迎消息的最小间隔
	WelcomeDedupWindow = 24 * time.Hour
	// FarewellDedupWindow 同一设备两次离店消息的最小间隔
	FarewellDedupWindow = 6 * time.Hour
)

// ReservationState 房间当前的预订状态
type ReservationState struct {
	GuestName    string    `json:"guest_name"`
	CheckInTime  time.Time `json:"check_in_time"`
	CheckOutTime time.Time `json:"check_out_time"`
}

// InterfaceReservationSource 外部预订数据源(PMS)的查询接口。
// 返回nil表示该房间当前没有预订。
type InterfaceReservationSource interface {
	GetReservationState(roomNumber string) (*ReservationState, error)
	IsConnected() bool
}

// SweepSummary 一轮自动消息扫描的统计
type SweepSummary struct {
	Checked       int `json:"checked"`
	WelcomesSent  int `json:"welcomes_sent"`
	FarewellsSent int `json:"farewells_sent"`
	Skipped       int `json:"skipped"`
}

// InterfaceGuestAutomationService 定义客房自动消息服务接口
type InterfaceGuestAutomationService interface {
	Start()
	Stop()
	RunSweep(now time.Time) SweepSummary
}

// GuestAutomationService 周期性轮询PMS并触发入住欢迎/离店提醒消息。
// 采用固定间隔轮询而非PMS webhook，因为部署时无法假设预订系统具备推送能力。
type GuestAutomationService struct {
	Store  store.DeviceStore
	Source InterfaceReservationSource
	Push   InterfacePushService
	Config *config.Config

	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewGuestAutomationService 创建一个新的客房自动消息服务
func NewGuestAutomationService(deviceStore store.DeviceStore, source InterfaceReservationSource, push InterfacePushService, cfg *config.Config) *GuestAutomationService {
	return &GuestAutomationService{
		Store:    deviceStore,
		Source:   source,
		Push:     push,
		Config:   cfg,
		interval: cfg.GuestSweepInterval(),
		stopCh:   make(chan struct{}),
	}
}

// 1 Start 启动周期性扫描任务
func (s *GuestAutomationService) Start() {
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				summary := s.RunSweep(time.Now())
				if summary.WelcomesSent > 0 || summary.FarewellsSent > 0 {
					logger.Info("[GuestAutomation] 扫描完成: 检查=%d 欢迎=%d 离店=%d 跳过=%d",
						summary.Checked, summary.WelcomesSent, summary.FarewellsSent, summary.Skipped)
				}
			case <-s.stopCh:
				return
			}
		}
	}()
}

// 2 Stop 停止扫描任务，正在进行的扫描会执行完毕
func (s *GuestAutomationService) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
}

// 3 RunSweep 对所有已批准且分配了房间的设备执行一轮扫描。
// 设备按顺序处理以限制对PMS的并发压力；单个设备的失败只记录日志，
// 不影响其余设备。PMS断连时整轮扫描直接跳过。
func (s *GuestAutomationService) RunSweep(now time.Time) SweepSummary {
	var summary SweepSummary

	if !s.Source.IsConnected() {
		logger.Warning("[GuestAutomation] PMS未连接，本轮扫描跳过")
		return summary
	}

	devices, err := s.Store.ListApprovedWithRoom()
	if err != nil {
		logger.Error("[GuestAutomation] 无法读取设备列表: %v", err)
		return summary
	}

	for i := range devices {
		device := &devices[i]
		summary.Checked++

		reservation, err := s.Source.GetReservationState(*device.RoomNumber)
		if err != nil {
			logger.Warning("[GuestAutomation] 查询房间 %s 预订失败: %v", *device.RoomNumber, err)
			summary.Skipped++
			continue
		}
		if reservation == nil {
			continue
		}

		if s.tryWelcome(device, reservation, now) {
			summary.WelcomesSent++
		}
		if s.tryFarewell(device, reservation, now) {
			summary.FarewellsSent++
		}
	}

	return summary
}

// tryWelcome 在入住后的触发窗口内发送欢迎消息，按去重窗口去重
func (s *GuestAutomationService) tryWelcome(device *models.Device, reservation *ReservationState, now time.Time) bool {
	sinceCheckIn := now.Sub(reservation.CheckInTime)
	if sinceCheckIn < 0 || sinceCheckIn >= CheckInWindow {
		return false
	}
	if !dedupExpired(device.Statistics.LastWelcomeMessage, now, WelcomeDedupWindow) {
		return false
	}

	text := renderTemplate(s.Config.WelcomeTemplate, *device.RoomNumber, reservation)
	if !s.deliverGuestMessage(device, "welcome", text, now) {
		return false
	}

	stats := device.Statistics
	stats.LastWelcomeMessage = &now
	stats.MessagesReceived++
	if err := s.Store.Updates(device.ID, map[string]interface{}{"statistics": stats}); err != nil {
		logger.Warning("[GuestAutomation] 更新欢迎消息时间戳失败: id=%d err=%v", device.ID, err)
	}
	return true
}

// tryFarewell 在退房前的触发窗口内发送离店消息，按去重窗口去重
func (s *GuestAutomationService) tryFarewell(device *models.Device, reservation *ReservationState, now time.Time) bool {
	untilCheckOut := reservation.CheckOutTime.Sub(now)
	if untilCheckOut <= 0 || untilCheckOut > CheckOutWindow {
		return false
	}
	if !dedupExpired(device.Statistics.LastFarewellMessage, now, FarewellDedupWindow) {
		return false
	}

	text := renderTemplate(s.Config.FarewellTemplate, *device.RoomNumber, reservation)
	if !s.deliverGuestMessage(device, "farewell", text, now) {
		return false
	}

	stats := device.Statistics
	stats.LastFarewellMessage = &now
	stats.MessagesReceived++
	if err := s.Store.Updates(device.ID, map[string]interface{}{"statistics": stats}); err != nil {
		logger.Warning("[GuestAutomation] 更新离店消息时间戳失败: id=%d err=%v", device.ID, err)
	}
	return true
}

// deliverGuestMessage 通过推送通道投递消息，只有投递成功才算发送
func (s *GuestAutomationService) deliverGuestMessage(device *models.Device, kind, text string, now time.Time) bool {
	result := s.Push.Dispatch(device.UUID, MessageTypeGuestMessage, map[string]interface{}{
		"kind": kind,
		"text": text,
	})
	if result != DeliveryDelivered {
		logger.Info("[GuestAutomation] %s消息未投递: uuid=%s 结果=%s", kind, device.UUID, result)
		return false
	}
	return true
}

// dedupExpired 判断上次发送时间是否已超出去重窗口
func dedupExpired(last *time.Time, now time.Time, window time.Duration) bool {
	return last == nil || now.Sub(*last) >= window
}

// renderTemplate 替换消息模板中的占位符
func renderTemplate(template, roomNumber string, reservation *ReservationState) string {
	replacer := strings.NewReplacer(
		"{{guest_name}}", reservation.GuestName,
		"{{room_number}}", roomNumber,
		"{{check_in_time}}", reservation.CheckInTime.Format("2006-01-02 15:04"),
		"{{check_out_time}}", reservation.CheckOutTime.Format("2006-01-02 15:04"),
	)
	return replacer.Replace(template)
}
