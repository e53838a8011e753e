package store

import (
	"sort"
	"sync"
	"time"

	"roomcast-http-service/internal/domain/models"
)

// MemoryDeviceStore 进程内的设备存储实现。
// 供开发环境(DB_DRIVER=memory)和测试使用，进程重启后数据丢失。
type MemoryDeviceStore struct {
	mu      sync.RWMutex
	nextID  uint
	devices map[uint]*models.Device
}

// NewMemoryDeviceStore 创建一个新的内存设备存储
func NewMemoryDeviceStore() *MemoryDeviceStore {
	return &MemoryDeviceStore{
		nextID:  1,
		devices: make(map[uint]*models.Device),
	}
}

func (s *MemoryDeviceStore) Create(device *models.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	device.ID = s.nextID
	s.nextID++
	now := time.Now()
	device.CreatedAt = now
	device.UpdatedAt = now

	s.devices[device.ID] = device.Clone()
	return nil
}

func (s *MemoryDeviceStore) Save(device *models.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.devices[device.ID]; !ok {
		return ErrNotFound
	}
	device.UpdatedAt = time.Now()
	s.devices[device.ID] = device.Clone()
	return nil
}

// Updates 按列名部分更新，与GORM实现保持相同的键约定
func (s *MemoryDeviceStore) Updates(id uint, fields map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	device, ok := s.devices[id]
	if !ok {
		return ErrNotFound
	}

	for column, value := range fields {
		switch column {
		case "name":
			device.Name = value.(string)
		case "status":
			device.Status = value.(models.DeviceStatus)
		case "connection_status":
			device.ConnectionStatus = value.(models.ConnectionStatus)
		case "room_number":
			if value == nil {
				device.RoomNumber = nil
			} else {
				device.RoomNumber = value.(*string)
			}
		case "device_info":
			// 不保留调用方的map，避免与存储记录共享底层存储
			info := value.(map[string]interface{})
			device.DeviceInfo = make(map[string]interface{}, len(info))
			for k, v := range info {
				device.DeviceInfo[k] = v
			}
		case "version":
			device.Version = value.(string)
		case "notes":
			device.Notes = value.(string)
		case "approved_by":
			device.ApprovedBy = value.(string)
		case "approved_at":
			device.ApprovedAt = value.(*time.Time)
		case "last_heartbeat":
			device.LastHeartbeat = value.(*time.Time)
		case "configuration":
			cfg := value.(models.DeviceConfiguration)
			if cfg.AppLayout != nil {
				layout := make([]models.AppLayoutItem, len(cfg.AppLayout))
				copy(layout, cfg.AppLayout)
				cfg.AppLayout = layout
			}
			device.Configuration = cfg
		case "statistics":
			device.Statistics = value.(models.DeviceStatistics)
		}
	}
	device.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryDeviceStore) FindByID(id uint) (*models.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	device, ok := s.devices[id]
	if !ok {
		return nil, ErrNotFound
	}
	return device.Clone(), nil
}

func (s *MemoryDeviceStore) FindByUUID(uuid string) (*models.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, device := range s.devices {
		if device.UUID == uuid {
			return device.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryDeviceStore) FindByMAC(mac string) (*models.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, device := range s.devices {
		if device.MACAddress == mac {
			return device.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryDeviceStore) FindApprovedByRoom(roomNumber string) (*models.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, device := range s.devices {
		if device.Status == models.DeviceStatusApproved &&
			device.RoomNumber != nil && *device.RoomNumber == roomNumber {
			return device.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryDeviceStore) List(status models.DeviceStatus) ([]models.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var devices []models.Device
	for _, device := range s.devices {
		if status == "" || device.Status == status {
			devices = append(devices, *device.Clone())
		}
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].ID < devices[j].ID })
	return devices, nil
}

func (s *MemoryDeviceStore) ListApprovedWithRoom() ([]models.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var devices []models.Device
	for _, device := range s.devices {
		if device.Status == models.DeviceStatusApproved && device.RoomNumber != nil {
			devices = append(devices, *device.Clone())
		}
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].ID < devices[j].ID })
	return devices, nil
}

func (s *MemoryDeviceStore) Count(status models.DeviceStatus) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, device := range s.devices {
		if status == "" || device.Status == status {
			count++
		}
	}
	return count, nil
}

func (s *MemoryDeviceStore) Delete(id uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.devices[id]; !ok {
		return ErrNotFound
	}
	delete(s.devices, id)
	return nil
}
