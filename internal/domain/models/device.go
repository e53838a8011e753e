package models

import (
	"fmt"
	"strings"
	"time"
)

// DeviceStatus represents the administrative lifecycle of a set-top box
type DeviceStatus string

const (
	DeviceStatusPending  DeviceStatus = "pending"
	DeviceStatusApproved DeviceStatus = "approved"
	DeviceStatusRejected DeviceStatus = "rejected"
	DeviceStatusInactive DeviceStatus = "inactive"
)

// ConnectionStatus represents the liveness of a set-top box
type ConnectionStatus string

const (
	ConnectionStatusOnline  ConnectionStatus = "online"
	ConnectionStatusIdle    ConnectionStatus = "idle"
	ConnectionStatusOffline ConnectionStatus = "offline"
)

// AppLayoutItem 设备首页的单个应用位置
type AppLayoutItem struct {
	AppID     uint `json:"app_id"`
	Position  int  `json:"position"`
	IsVisible bool `json:"is_visible"`
}

// DeviceSettings 设备本地设置
type DeviceSettings struct {
	Volume       int  `json:"volume"`
	Brightness   int  `json:"brightness"`
	SleepTimeout int  `json:"sleep_timeout"` // 分钟，0表示不休眠
	AutoStart    bool `json:"auto_start"`
}

// DeviceConfiguration 下发给设备的配置快照
type DeviceConfiguration struct {
	AppLayout        []AppLayoutItem `json:"app_layout"`
	BackgroundBundle *uint           `json:"background_bundle"`
	Settings         DeviceSettings  `json:"settings"`
}

// DeviceStatistics 设备运行统计
type DeviceStatistics struct {
	TotalUptime         int64      `json:"total_uptime"` // 秒
	ConfigPushCount     int64      `json:"config_push_count"`
	LastConfigPush      *time.Time `json:"last_config_push"`
	MessagesReceived    int64      `json:"messages_received"`
	LastWelcomeMessage  *time.Time `json:"last_welcome_message"`
	LastFarewellMessage *time.Time `json:"last_farewell_message"`
}

// DefaultConfiguration 新注册设备的默认配置
func DefaultConfiguration() DeviceConfiguration {
	return DeviceConfiguration{
		AppLayout:        []AppLayoutItem{},
		BackgroundBundle: nil,
		Settings: DeviceSettings{
			Volume:       50,
			Brightness:   80,
			SleepTimeout: 30,
			AutoStart:    true,
		},
	}
}

// Device represents hotel-room set-top boxes
type Device struct {
	ID               uint                   `gorm:"primaryKey" json:"id"`
	UUID             string                 `gorm:"type:varchar(64);uniqueIndex;not null" json:"uuid"`
	MACAddress       string                 `gorm:"type:varchar(17);uniqueIndex;not null" json:"mac_address"`
	Name             string                 `gorm:"type:varchar(50)" json:"name"`
	Status           DeviceStatus           `gorm:"type:varchar(20);default:'pending';index" json:"status"`
	ConnectionStatus ConnectionStatus       `gorm:"type:varchar(20);default:'offline'" json:"connection_status"`
	RoomNumber       *string                `gorm:"type:varchar(20);index" json:"room_number"`
	DeviceInfo       map[string]interface{} `gorm:"serializer:json" json:"device_info,omitempty"`
	Version          string                 `gorm:"type:varchar(32)" json:"version"`
	Notes            string                 `gorm:"type:varchar(255)" json:"notes"`
	ApprovedBy       string                 `gorm:"type:varchar(50)" json:"approved_by,omitempty"`
	ApprovedAt       *time.Time             `json:"approved_at,omitempty"`
	LastHeartbeat    *time.Time             `json:"last_heartbeat"`
	FirstContact     time.Time              `json:"first_contact"`
	Configuration    DeviceConfiguration    `gorm:"serializer:json" json:"configuration"`
	Statistics       DeviceStatistics       `gorm:"serializer:json" json:"statistics"`
	CreatedAt        time.Time              `json:"created_at"`
	UpdatedAt        time.Time              `json:"updated_at"`
}

// Clone 返回设备记录的深拷贝。
// DeviceInfo和AppLayout是引用类型，浅拷贝会让副本与原记录共享底层
// 存储，并发读写时触发map竞争，返回副本前必须切断。
func (d *Device) Clone() *Device {
	copied := *d
	if d.DeviceInfo != nil {
		copied.DeviceInfo = make(map[string]interface{}, len(d.DeviceInfo))
		for k, v := range d.DeviceInfo {
			copied.DeviceInfo[k] = v
		}
	}
	if d.Configuration.AppLayout != nil {
		copied.Configuration.AppLayout = make([]AppLayoutItem, len(d.Configuration.AppLayout))
		copy(copied.Configuration.AppLayout, d.Configuration.AppLayout)
	}
	return &copied
}

// IsOnline 根据最后心跳时间判断设备是否在线。
// 统计类读取路径必须使用该推导，不能信任存储的ConnectionStatus字段，
// 因为后者只在事件发生时更新。
func (d *Device) IsOnline(now time.Time, timeout time.Duration) bool {
	return d.LastHeartbeat != nil && now.Sub(*d.LastHeartbeat) < timeout
}

// EffectiveConnectionStatus 返回推导后的连接状态。
// 心跳超时则为offline；未超时时保留存储的online/idle区分。
func (d *Device) EffectiveConnectionStatus(now time.Time, timeout time.Duration) ConnectionStatus {
	if !d.IsOnline(now, timeout) {
		return ConnectionStatusOffline
	}
	if d.ConnectionStatus == ConnectionStatusIdle {
		return ConnectionStatusIdle
	}
	return ConnectionStatusOnline
}

// NormalizeMACAddress 将MAC地址规整为大写冒号分隔的十六进制格式。
// 接受 AA:BB:CC:DD:EE:FF / aa-bb-cc-dd-ee-ff / aabb.ccdd.eeff / aabbccddeeff。
func NormalizeMACAddress(mac string) (string, error) {
	cleaned := strings.ToUpper(strings.NewReplacer(":", "", "-", "", ".", "").Replace(strings.TrimSpace(mac)))
	if len(cleaned) != 12 {
		return "", fmt.Errorf("invalid mac address: %q", mac)
	}
	for _, r := range cleaned {
		if (r < '0' || r > '9') && (r < 'A' || r > 'F') {
			return "", fmt.Errorf("invalid mac address: %q", mac)
		}
	}
	var parts []string
	for i := 0; i < 12; i += 2 {
		parts = append(parts, cleaned[i:i+2])
	}
	return strings.Join(parts, ":"), nil
}
