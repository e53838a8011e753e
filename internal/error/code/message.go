package code

// 错误码消息映射
var codeMessageMap = map[int]string{
	// 通用错误码
	ErrSuccess:          "成功",
	ErrUnknown:          "未知错误",
	ErrBind:             "请求参数绑定错误",
	ErrValidation:       "请求参数验证错误",
	ErrTokenInvalid:     "无效的认证令牌",
	ErrTooManyRequests:  "请求频率过高，请稍后再试",
	ErrPermissionDenied: "权限不足",

	// 用户相关错误码
	ErrUserNotFound:          "用户不存在",
	ErrUserAlreadyExist:      "用户已存在",
	ErrUserPasswordIncorrect: "用户密码错误",

	// 设备相关错误码
	ErrDeviceNotFound:      "设备不存在",
	ErrMacAddressConflict:  "MAC地址已绑定到其他设备",
	ErrDeviceNotRegistered: "设备未注册",
	ErrCredentialMismatch:  "设备凭证不匹配",
	ErrDeviceNotApproved:   "设备未获批准",
	ErrDeviceNotConnected:  "设备当前未连接",
	ErrInvalidMacAddress:   "MAC地址格式无效",

	// 审批相关错误码
	ErrNotPending:   "设备不处于待审批状态",
	ErrRoomConflict: "房间号已被其他已批准设备占用",

	// 数据库相关错误码
	ErrDatabase:       "数据库错误",
	ErrRecordNotFound: "记录不存在",
}

// 错误码HTTP状态码映射
var codeStatusMap = map[int]int{
	// 通用错误码
	ErrSuccess:          StatusOK,
	ErrUnknown:          StatusInternalServerError,
	ErrBind:             StatusBadRequest,
	ErrValidation:       StatusBadRequest,
	ErrTokenInvalid:     StatusUnauthorized,
	ErrTooManyRequests:  StatusTooManyRequests,
	ErrPermissionDenied: StatusForbidden,

	// 用户相关错误码
	ErrUserNotFound:          StatusNotFound,
	ErrUserAlreadyExist:      StatusBadRequest,
	ErrUserPasswordIncorrect: StatusUnauthorized,

	// 设备相关错误码
	ErrDeviceNotFound:      StatusNotFound,
	ErrMacAddressConflict:  StatusConflict,
	ErrDeviceNotRegistered: StatusUnauthorized,
	ErrCredentialMismatch:  StatusUnauthorized,
	ErrDeviceNotApproved:   StatusForbidden,
	ErrDeviceNotConnected:  StatusBadRequest,
	ErrInvalidMacAddress:   StatusBadRequest,

	// 审批相关错误码
	ErrNotPending:   StatusBadRequest,
	ErrRoomConflict: StatusConflict,

	// 数据库相关错误码
	ErrDatabase:       StatusInternalServerError,
	ErrRecordNotFound: StatusNotFound,
}

// GetMessage 获取错误码对应的消息
func GetMessage(code int) string {
	if msg, ok := codeMessageMap[code]; ok {
		return msg
	}
	return "未知错误"
}

// GetStatus 获取错误码对应的HTTP状态码
func GetStatus(code int) int {
	if status, ok := codeStatusMap[code]; ok {
		return status
	}
	return StatusInternalServerError
}
