package services

import (
	"errors"
	"strings"
	"time"

	"roomcast-http-service/internal/domain/models"
	"roomcast-http-service/internal/domain/store"
	"roomcast-http-service/pkg/logger"
)

// BulkApproveOutcome 批量审批中单个设备的处理结果
type BulkApproveOutcome struct {
	DeviceID uint   `json:"device_id"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
}

// InterfaceApprovalService 定义设备审批服务接口
type InterfaceApprovalService interface {
	Approve(deviceID uint, roomNumber *string, approvedBy string) (*models.Device, error)
	Reject(deviceID uint) (*models.Device, error)
	BulkApprove(deviceIDs []uint, approvedBy string) []BulkApproveOutcome
}

// ApprovalService 实现管理员驱动的设备审批流程
type ApprovalService struct {
	Store store.DeviceStore
	Push  InterfacePushService
}

// NewApprovalService 创建一个新的审批服务
func NewApprovalService(deviceStore store.DeviceStore, push InterfacePushService) InterfaceApprovalService {
	return &ApprovalService{
		Store: deviceStore,
		Push:  push,
	}
}

// 1 Approve 批准设备并可选分配房间号。
// 允许从rejected状态重新批准（管理员显式操作可以复活被拒绝的设备）。
// 房间冲突检查是先读后写，两个并发审批抢同一空闲房间存在竞争窗口，
// 属于已知接受的缺口，由存储层的唯一约束兜底（见DESIGN.md）。
func (s *ApprovalService) Approve(deviceID uint, roomNumber *string, approvedBy string) (*models.Device, error) {
	device, err := s.Store.FindByID(deviceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrDeviceNotFound
		}
		return nil, err
	}

	if device.Status != models.DeviceStatusPending && device.Status != models.DeviceStatusRejected {
		return nil, ErrNotPending
	}

	// 规整房间号并检查冲突
	if roomNumber != nil {
		trimmed := strings.TrimSpace(*roomNumber)
		if trimmed == "" {
			roomNumber = nil
		} else {
			roomNumber = &trimmed
			if occupant, err := s.Store.FindApprovedByRoom(trimmed); err == nil && occupant.ID != deviceID {
				return nil, ErrRoomConflict
			} else if err != nil && !errors.Is(err, store.ErrNotFound) {
				return nil, err
			}
		}
	}

	now := time.Now()
	fields := map[string]interface{}{
		"status":      models.DeviceStatusApproved,
		"approved_by": approvedBy,
		"approved_at": &now,
	}
	if roomNumber != nil {
		fields["room_number"] = roomNumber
	}
	if err := s.Store.Updates(deviceID, fields); err != nil {
		return nil, err
	}

	// 尽力而为地通知设备，离线设备通过配置拉取接口发现状态变化
	payload := map[string]interface{}{"device_id": deviceID}
	if roomNumber != nil {
		payload["room_number"] = *roomNumber
	}
	result := s.Push.Dispatch(device.UUID, MessageTypeApproved, payload)
	logger.Info("[Approval] 设备已批准: id=%d uuid=%s 推送结果=%s", deviceID, device.UUID, result)

	s.Push.NotifyAdmins(EventApproved, map[string]interface{}{
		"device_id":   deviceID,
		"uuid":        device.UUID,
		"room_number": roomNumber,
		"approved_by": approvedBy,
	})

	return s.Store.FindByID(deviceID)
}

// 2 Reject 拒绝待审批设备。
// rejected不会被同UUID的重新注册自动复活，需要管理员再次操作。
func (s *ApprovalService) Reject(deviceID uint) (*models.Device, error) {
	device, err := s.Store.FindByID(deviceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrDeviceNotFound
		}
		return nil, err
	}

	if device.Status != models.DeviceStatusPending {
		return nil, ErrNotPending
	}

	if err := s.Store.Updates(deviceID, map[string]interface{}{
		"status": models.DeviceStatusRejected,
	}); err != nil {
		return nil, err
	}

	result := s.Push.Dispatch(device.UUID, MessageTypeRejected, map[string]interface{}{"device_id": deviceID})
	logger.Info("[Approval] 设备已拒绝: id=%d uuid=%s 推送结果=%s", deviceID, device.UUID, result)

	s.Push.NotifyAdmins(EventRejected, map[string]interface{}{
		"device_id": deviceID,
		"uuid":      device.UUID,
	})

	return s.Store.FindByID(deviceID)
}

// 3 BulkApprove 批量批准设备。
// 每个ID独立处理并独立报告结果，批次之间没有原子性，
// 避免单个坏ID阻塞其余设备的审批。
func (s *ApprovalService) BulkApprove(deviceIDs []uint, approvedBy string) []BulkApproveOutcome {
	outcomes := make([]BulkApproveOutcome, 0, len(deviceIDs))
	for _, id := range deviceIDs {
		outcome := BulkApproveOutcome{DeviceID: id, Success: true}
		if _, err := s.Approve(id, nil, approvedBy); err != nil {
			outcome.Success = false
			outcome.Error = err.Error()
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}
