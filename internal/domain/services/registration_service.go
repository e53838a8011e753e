package services

import (
	"errors"
	"time"

	"roomcast-http-service/internal/domain/models"
	"roomcast-http-service/internal/domain/store"
	"roomcast-http-service/internal/infrastructure/config"
	"roomcast-http-service/pkg/logger"
)

// RegisterResult 注册请求的处理结果
type RegisterResult struct {
	DeviceID         uint                `json:"device_id"`
	Status           models.DeviceStatus `json:"status"`
	RoomNumber       *string             `json:"room_number"`
	RequiresApproval bool                `json:"requires_approval"`
	Created          bool                `json:"-"` // 是否新建了设备记录
}

// HeartbeatResult 心跳请求的处理结果，携带当前状态供设备检测撤销
type HeartbeatResult struct {
	ServerTime time.Time           `json:"server_time"`
	Status     models.DeviceStatus `json:"status"`
	RoomNumber *string             `json:"room_number"`
}

// ConfigPayload 配置拉取接口返回的完整负载
type ConfigPayload struct {
	Configuration    models.DeviceConfiguration `json:"configuration"`
	RoomNumber       *string                    `json:"room_number"`
	PanelName        string                     `json:"panel_name"`
	PanelLogoURL     string                     `json:"panel_logo_url"`
	WelcomeTemplate  string                     `json:"welcome_template"`
	FarewellTemplate string                     `json:"farewell_template"`
	ServerTime       time.Time                  `json:"server_time"`
}

// InterfaceRegistrationService 定义设备注册与心跳协议服务接口
type InterfaceRegistrationService interface {
	Register(deviceUUID, macAddress string, deviceInfo map[string]interface{}, version string) (*RegisterResult, error)
	Heartbeat(deviceUUID, macAddress, reportedStatus string, uptimeSec int64) (*HeartbeatResult, error)
	PullConfiguration(deviceUUID, macAddress string) (*ConfigPayload, error)
	MarkOffline(deviceUUID string)
}

// RegistrationService 实现设备侧的注册、心跳和配置拉取协议
type RegistrationService struct {
	Store    store.DeviceStore
	Config   *config.Config
	Sessions InterfaceSessionService
	Push     InterfacePushService
}

// NewRegistrationService 创建一个新的注册协议服务
func NewRegistrationService(deviceStore store.DeviceStore, cfg *config.Config, sessions InterfaceSessionService, push InterfacePushService) InterfaceRegistrationService {
	return &RegistrationService{
		Store:    deviceStore,
		Config:   cfg,
		Sessions: sessions,
		Push:     push,
	}
}

// 1 Register 处理设备注册请求。
// 同一UUID的重复注册是幂等的重连：只刷新心跳并合并设备信息；
// 新UUID携带已被占用的MAC时拒绝注册，不创建任何记录。
func (s *RegistrationService) Register(deviceUUID, macAddress string, deviceInfo map[string]interface{}, version string) (*RegisterResult, error) {
	mac, err := models.NormalizeMACAddress(macAddress)
	if err != nil {
		return nil, ErrInvalidMacAddress
	}

	now := time.Now()

	// 已存在的UUID：幂等重连
	if device, err := s.Store.FindByUUID(deviceUUID); err == nil {
		fields := map[string]interface{}{
			"last_heartbeat":    &now,
			"connection_status": models.ConnectionStatusOnline,
		}
		if deviceInfo != nil {
			// 合并到新map，不原地修改已有记录的map
			merged := make(map[string]interface{}, len(device.DeviceInfo)+len(deviceInfo))
			for k, v := range device.DeviceInfo {
				merged[k] = v
			}
			for k, v := range deviceInfo {
				merged[k] = v
			}
			fields["device_info"] = merged
		}
		if version != "" {
			fields["version"] = version
		}
		if err := s.Store.Updates(device.ID, fields); err != nil {
			return nil, err
		}

		s.Sessions.Connect(deviceUUID)

		return &RegisterResult{
			DeviceID:         device.ID,
			Status:           device.Status,
			RoomNumber:       device.RoomNumber,
			RequiresApproval: device.Status == models.DeviceStatusPending,
			Created:          false,
		}, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	// MAC已绑定到其他UUID
	if existing, err := s.Store.FindByMAC(mac); err == nil && existing.UUID != deviceUUID {
		return nil, ErrMacAddressConflict
	} else if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	// 创建新的待审批设备
	device := &models.Device{
		UUID:             deviceUUID,
		MACAddress:       mac,
		Status:           models.DeviceStatusPending,
		ConnectionStatus: models.ConnectionStatusOnline,
		DeviceInfo:       deviceInfo,
		Version:          version,
		LastHeartbeat:    &now,
		FirstContact:     now,
		Configuration:    models.DefaultConfiguration(),
	}
	if err := s.Store.Create(device); err != nil {
		return nil, err
	}

	s.Sessions.Connect(deviceUUID)

	// 通知管理端有新设备等待审批
	s.Push.NotifyAdmins(EventNewRegistration, map[string]interface{}{
		"device_id":   device.ID,
		"uuid":        device.UUID,
		"mac_address": device.MACAddress,
		"version":     device.Version,
	})

	logger.Info("[Registry] 新设备注册: uuid=%s mac=%s", device.UUID, device.MACAddress)

	return &RegisterResult{
		DeviceID:         device.ID,
		Status:           models.DeviceStatusPending,
		RoomNumber:       nil,
		RequiresApproval: true,
		Created:          true,
	}, nil
}

// 2 Heartbeat 处理设备心跳。
// 心跳本身不要求设备已获批准，只更新活跃字段；
// 返回当前状态和房间号，设备据此检测审批撤销。
func (s *RegistrationService) Heartbeat(deviceUUID, macAddress, reportedStatus string, uptimeSec int64) (*HeartbeatResult, error) {
	device, err := s.authenticate(deviceUUID, macAddress)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	connStatus := models.ConnectionStatusOnline
	if reportedStatus == string(models.ConnectionStatusIdle) {
		connStatus = models.ConnectionStatusIdle
	}

	fields := map[string]interface{}{
		"last_heartbeat":    &now,
		"connection_status": connStatus,
	}
	if uptimeSec > 0 {
		stats := device.Statistics
		stats.TotalUptime += uptimeSec
		fields["statistics"] = stats
	}
	if err := s.Store.Updates(device.ID, fields); err != nil {
		return nil, err
	}

	s.Sessions.Touch(deviceUUID)

	return &HeartbeatResult{
		ServerTime: now,
		Status:     device.Status,
		RoomNumber: device.RoomNumber,
	}, nil
}

// 3 PullConfiguration 处理设备的配置拉取。
// 推送通道是尽力而为的，离线期间错过推送的设备通过该接口恢复配置。
func (s *RegistrationService) PullConfiguration(deviceUUID, macAddress string) (*ConfigPayload, error) {
	device, err := s.authenticate(deviceUUID, macAddress)
	if err != nil {
		return nil, err
	}

	if device.Status != models.DeviceStatusApproved {
		return nil, ErrDeviceNotApproved
	}

	now := time.Now()
	stats := device.Statistics
	stats.ConfigPushCount++
	stats.LastConfigPush = &now
	if err := s.Store.Updates(device.ID, map[string]interface{}{"statistics": stats}); err != nil {
		return nil, err
	}

	return &ConfigPayload{
		Configuration:    device.Configuration,
		RoomNumber:       device.RoomNumber,
		PanelName:        s.Config.PanelName,
		PanelLogoURL:     s.Config.PanelLogoURL,
		WelcomeTemplate:  s.Config.WelcomeTemplate,
		FarewellTemplate: s.Config.FarewellTemplate,
		ServerTime:       now,
	}, nil
}

// 4 MarkOffline 在设备断开实时连接时显式覆盖连接状态
func (s *RegistrationService) MarkOffline(deviceUUID string) {
	device, err := s.Store.FindByUUID(deviceUUID)
	if err != nil {
		return
	}
	if err := s.Store.Updates(device.ID, map[string]interface{}{
		"connection_status": models.ConnectionStatusOffline,
	}); err != nil {
		logger.Warning("[Registry] 标记设备离线失败: uuid=%s err=%v", deviceUUID, err)
	}
}

// authenticate 校验设备凭证(UUID+MAC)，二者必须与注册记录完全一致
func (s *RegistrationService) authenticate(deviceUUID, macAddress string) (*models.Device, error) {
	device, err := s.Store.FindByUUID(deviceUUID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrDeviceNotRegistered
		}
		return nil, err
	}

	mac, err := models.NormalizeMACAddress(macAddress)
	if err != nil || mac != device.MACAddress {
		return nil, ErrCredentialMismatch
	}

	return device, nil
}
