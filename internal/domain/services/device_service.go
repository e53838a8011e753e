package services

import (
	"errors"
	"strings"
	"time"

	"roomcast-http-service/internal/domain/models"
	"roomcast-http-service/internal/domain/store"
	"roomcast-http-service/internal/infrastructure/config"
	"roomcast-http-service/pkg/logger"
)

// UpdateDeviceInput 管理员更新设备的输入，nil字段表示不修改
type UpdateDeviceInput struct {
	Name          *string
	Notes         *string
	RoomNumber    *string
	ClearRoom     bool
	Configuration *models.DeviceConfiguration
}

// FleetStats 机群统计摘要。
// 在线数量基于最后心跳的纯推导计算，不信任存储的连接状态字段。
type FleetStats struct {
	Total          int64     `json:"total"`
	Pending        int64     `json:"pending"`
	Approved       int64     `json:"approved"`
	Rejected       int64     `json:"rejected"`
	Inactive       int64     `json:"inactive"`
	Online         int       `json:"online"`
	Idle           int       `json:"idle"`
	Offline        int       `json:"offline"`
	ActiveSessions int       `json:"active_sessions"`
	GeneratedAt    time.Time `json:"generated_at"`
}

// fleetStatsCacheKey Redis中机群统计的缓存键
const fleetStatsCacheKey = "roomcast:fleet_stats"

// InterfaceDeviceService 定义管理端设备服务接口
type InterfaceDeviceService interface {
	GetAllDevices(status string) ([]models.Device, error)
	GetDeviceByID(id uint) (*models.Device, error)
	UpdateDevice(id uint, input UpdateDeviceInput) (*models.Device, error)
	DeleteDevice(id uint) error
	PushConfiguration(id uint) (DeliveryResult, error)
	RebootDevice(id uint) (DeliveryResult, error)
	SendMessage(id uint, text string) (DeliveryResult, error)
	GetFleetStats() (*FleetStats, error)
}

// DeviceService 提供管理端的设备机群操作
type DeviceService struct {
	Store    store.DeviceStore
	Config   *config.Config
	Sessions InterfaceSessionService
	Push     InterfacePushService
	Redis    InterfaceRedisService // 可为nil，此时统计不走缓存
}

// NewDeviceService 创建一个新的设备服务
func NewDeviceService(deviceStore store.DeviceStore, cfg *config.Config, sessions InterfaceSessionService, push InterfacePushService, redis InterfaceRedisService) InterfaceDeviceService {
	return &DeviceService{
		Store:    deviceStore,
		Config:   cfg,
		Sessions: sessions,
		Push:     push,
		Redis:    redis,
	}
}

// 1 GetAllDevices 按状态列出设备。
// 返回前用纯推导覆盖连接状态，避免管理端看到过期的online。
func (s *DeviceService) GetAllDevices(status string) ([]models.Device, error) {
	devices, err := s.Store.List(models.DeviceStatus(status))
	if err != nil {
		return nil, err
	}

	now := time.Now()
	timeout := s.Config.HeartbeatTimeout()
	for i := range devices {
		devices[i].ConnectionStatus = devices[i].EffectiveConnectionStatus(now, timeout)
	}
	return devices, nil
}

// 2 GetDeviceByID 根据ID获取设备
func (s *DeviceService) GetDeviceByID(id uint) (*models.Device, error) {
	device, err := s.Store.FindByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrDeviceNotFound
		}
		return nil, err
	}
	device.ConnectionStatus = device.EffectiveConnectionStatus(time.Now(), s.Config.HeartbeatTimeout())
	return device, nil
}

// 3 UpdateDevice 更新设备信息。
// 给已批准设备换房间时执行与审批相同的冲突检查。
func (s *DeviceService) UpdateDevice(id uint, input UpdateDeviceInput) (*models.Device, error) {
	device, err := s.Store.FindByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrDeviceNotFound
		}
		return nil, err
	}

	fields := make(map[string]interface{})
	if input.Name != nil {
		fields["name"] = *input.Name
	}
	if input.Notes != nil {
		fields["notes"] = *input.Notes
	}
	if input.ClearRoom {
		fields["room_number"] = nil
	} else if input.RoomNumber != nil {
		trimmed := strings.TrimSpace(*input.RoomNumber)
		if trimmed == "" {
			fields["room_number"] = nil
		} else {
			if device.Status == models.DeviceStatusApproved {
				if occupant, err := s.Store.FindApprovedByRoom(trimmed); err == nil && occupant.ID != id {
					return nil, ErrRoomConflict
				} else if err != nil && !errors.Is(err, store.ErrNotFound) {
					return nil, err
				}
			}
			fields["room_number"] = &trimmed
		}
	}
	if input.Configuration != nil {
		fields["configuration"] = *input.Configuration
	}

	if len(fields) > 0 {
		if err := s.Store.Updates(id, fields); err != nil {
			return nil, err
		}
	}

	// 配置变更后尽力推送给设备
	if input.Configuration != nil {
		if result, err := s.PushConfiguration(id); err == nil {
			logger.Info("[Device] 配置更新推送: id=%d 结果=%s", id, result)
		}
	}

	return s.Store.FindByID(id)
}

// 4 DeleteDevice 硬删除设备。
// 没有墓碑记录，但当前连接会话必须同步清除。
func (s *DeviceService) DeleteDevice(id uint) error {
	device, err := s.Store.FindByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrDeviceNotFound
		}
		return err
	}

	// 先尽力通知设备，再删除记录
	s.Push.Dispatch(device.UUID, MessageTypeDeleted, map[string]interface{}{"device_id": id})

	if err := s.Store.Delete(id); err != nil {
		return err
	}

	s.Sessions.Disconnect(device.UUID)

	s.Push.NotifyAdmins(EventStatusAlert, map[string]interface{}{
		"type":      "deleted",
		"device_id": id,
		"uuid":      device.UUID,
	})

	logger.Info("[Device] 设备已删除: id=%d uuid=%s", id, device.UUID)
	return nil
}

// 5 PushConfiguration 向设备推送当前配置快照
func (s *DeviceService) PushConfiguration(id uint) (DeliveryResult, error) {
	device, err := s.Store.FindByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return DeliveryNotConnected, ErrDeviceNotFound
		}
		return DeliveryNotConnected, err
	}
	if device.Status != models.DeviceStatusApproved {
		return DeliveryNotConnected, ErrDeviceNotApproved
	}

	payload := map[string]interface{}{
		"configuration":  device.Configuration,
		"room_number":    device.RoomNumber,
		"panel_name":     s.Config.PanelName,
		"panel_logo_url": s.Config.PanelLogoURL,
	}
	result := s.Push.Dispatch(device.UUID, MessageTypeConfigUpdate, payload)

	// 只有投递成功才计入推送统计
	if result == DeliveryDelivered {
		now := time.Now()
		stats := device.Statistics
		stats.ConfigPushCount++
		stats.LastConfigPush = &now
		if err := s.Store.Updates(id, map[string]interface{}{"statistics": stats}); err != nil {
			logger.Warning("[Device] 更新推送统计失败: id=%d err=%v", id, err)
		}
	}
	return result, nil
}

// 6 RebootDevice 向设备下发重启指令
func (s *DeviceService) RebootDevice(id uint) (DeliveryResult, error) {
	device, err := s.Store.FindByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return DeliveryNotConnected, ErrDeviceNotFound
		}
		return DeliveryNotConnected, err
	}
	return s.Push.Dispatch(device.UUID, MessageTypeReboot, nil), nil
}

// 7 SendMessage 向设备下发一条管理员消息
func (s *DeviceService) SendMessage(id uint, text string) (DeliveryResult, error) {
	device, err := s.Store.FindByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return DeliveryNotConnected, ErrDeviceNotFound
		}
		return DeliveryNotConnected, err
	}
	return s.Push.Dispatch(device.UUID, MessageTypeGuestMessage, map[string]interface{}{
		"kind": "admin",
		"text": text,
	}), nil
}

// 8 GetFleetStats 统计机群状态，结果缓存30秒
func (s *DeviceService) GetFleetStats() (*FleetStats, error) {
	if s.Redis != nil {
		var cached FleetStats
		if err := s.Redis.Get(fleetStatsCacheKey, &cached); err == nil {
			return &cached, nil
		}
	}

	devices, err := s.Store.List("")
	if err != nil {
		return nil, err
	}

	now := time.Now()
	timeout := s.Config.HeartbeatTimeout()
	stats := &FleetStats{
		Total:          int64(len(devices)),
		ActiveSessions: s.Sessions.Count(),
		GeneratedAt:    now,
	}
	for i := range devices {
		switch devices[i].Status {
		case models.DeviceStatusPending:
			stats.Pending++
		case models.DeviceStatusApproved:
			stats.Approved++
		case models.DeviceStatusRejected:
			stats.Rejected++
		case models.DeviceStatusInactive:
			stats.Inactive++
		}
		switch devices[i].EffectiveConnectionStatus(now, timeout) {
		case models.ConnectionStatusOnline:
			stats.Online++
		case models.ConnectionStatusIdle:
			stats.Idle++
		default:
			stats.Offline++
		}
	}

	if s.Redis != nil {
		if err := s.Redis.Set(fleetStatsCacheKey, stats, 30*time.Second); err != nil {
			logger.Warning("[Device] 缓存机群统计失败: %v", err)
		}
	}
	return stats, nil
}
