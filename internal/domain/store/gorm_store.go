package store

import (
	"errors"

	"gorm.io/gorm"

	"roomcast-http-service/internal/domain/models"
)

// GormDeviceStore 基于GORM/MySQL的设备存储实现
type GormDeviceStore struct {
	DB *gorm.DB
}

// NewGormDeviceStore 创建一个新的GORM设备存储
func NewGormDeviceStore(db *gorm.DB) DeviceStore {
	return &GormDeviceStore{DB: db}
}

func (s *GormDeviceStore) Create(device *models.Device) error {
	return s.DB.Create(device).Error
}

func (s *GormDeviceStore) Save(device *models.Device) error {
	return s.DB.Save(device).Error
}

func (s *GormDeviceStore) Updates(id uint, fields map[string]interface{}) error {
	result := s.DB.Model(&models.Device{}).Where("id = ?", id).Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormDeviceStore) FindByID(id uint) (*models.Device, error) {
	var device models.Device
	if err := s.DB.First(&device, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &device, nil
}

func (s *GormDeviceStore) FindByUUID(uuid string) (*models.Device, error) {
	var device models.Device
	if err := s.DB.Where("uuid = ?", uuid).First(&device).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &device, nil
}

func (s *GormDeviceStore) FindByMAC(mac string) (*models.Device, error) {
	var device models.Device
	if err := s.DB.Where("mac_address = ?", mac).First(&device).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &device, nil
}

func (s *GormDeviceStore) FindApprovedByRoom(roomNumber string) (*models.Device, error) {
	var device models.Device
	err := s.DB.Where("room_number = ? AND status = ?", roomNumber, models.DeviceStatusApproved).
		First(&device).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &device, nil
}

func (s *GormDeviceStore) List(status models.DeviceStatus) ([]models.Device, error) {
	var devices []models.Device
	query := s.DB.Model(&models.Device{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if err := query.Order("id").Find(&devices).Error; err != nil {
		return nil, err
	}
	return devices, nil
}

func (s *GormDeviceStore) ListApprovedWithRoom() ([]models.Device, error) {
	var devices []models.Device
	err := s.DB.Where("status = ? AND room_number IS NOT NULL", models.DeviceStatusApproved).
		Order("id").Find(&devices).Error
	if err != nil {
		return nil, err
	}
	return devices, nil
}

func (s *GormDeviceStore) Count(status models.DeviceStatus) (int64, error) {
	var count int64
	query := s.DB.Model(&models.Device{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (s *GormDeviceStore) Delete(id uint) error {
	result := s.DB.Delete(&models.Device{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
