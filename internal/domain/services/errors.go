package services

import "errors"

// 设备机群核心的业务错误。
// 控制器通过 errors.Is 将其映射到 internal/error/code 中的错误码。
var (
	// ErrDeviceNotFound 设备不存在
	ErrDeviceNotFound = errors.New("设备不存在")
	// ErrInvalidMacAddress MAC地址格式无效
	ErrInvalidMacAddress = errors.New("MAC地址格式无效")
	// ErrMacAddressConflict MAC地址已绑定到其他UUID的设备
	ErrMacAddressConflict = errors.New("MAC地址已绑定到其他设备")
	// ErrDeviceNotRegistered 凭证中的UUID没有对应的注册记录
	ErrDeviceNotRegistered = errors.New("设备未注册")
	// ErrCredentialMismatch 凭证中的MAC与注册记录不一致
	ErrCredentialMismatch = errors.New("设备凭证不匹配")
	// ErrDeviceNotApproved 操作要求设备处于已批准状态
	ErrDeviceNotApproved = errors.New("设备未获批准")
	// ErrNotPending 审批操作要求设备处于待审批状态
	ErrNotPending = errors.New("设备不处于待审批状态")
	// ErrRoomConflict 房间号已被其他已批准设备占用
	ErrRoomConflict = errors.New("房间号已被其他已批准设备占用")
)
