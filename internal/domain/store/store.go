package store

import (
	"errors"

	"roomcast-http-service/internal/domain/models"
)

// ErrNotFound 设备记录不存在
var ErrNotFound = errors.New("store: device not found")

// DeviceStore 设备注册表的存储接口。
// 注册表组件只依赖该接口，不感知底层存储技术；
// 具体实现由 DB_DRIVER 配置在启动时选择。
type DeviceStore interface {
	// Create 创建新设备记录
	Create(device *models.Device) error
	// Save 整体保存设备记录
	Save(device *models.Device) error
	// Updates 按字段部分更新，底层为单文档级last-writer-wins。
	// 心跳只更新活跃字段、审批只更新状态字段，二者并发时互不覆盖。
	Updates(id uint, fields map[string]interface{}) error
	// FindByID 根据ID查找设备
	FindByID(id uint) (*models.Device, error)
	// FindByUUID 根据UUID查找设备
	FindByUUID(uuid string) (*models.Device, error)
	// FindByMAC 根据MAC地址查找设备
	FindByMAC(mac string) (*models.Device, error)
	// FindApprovedByRoom 查找占用指定房间号的已批准设备
	FindApprovedByRoom(roomNumber string) (*models.Device, error)
	// List 按状态列出设备，status为空时列出全部
	List(status models.DeviceStatus) ([]models.Device, error)
	// ListApprovedWithRoom 列出所有已批准且分配了房间号的设备
	ListApprovedWithRoom() ([]models.Device, error)
	// Count 按状态统计设备数量，status为空时统计全部
	Count(status models.DeviceStatus) (int64, error)
	// Delete 硬删除设备记录
	Delete(id uint) error
}
