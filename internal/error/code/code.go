package code

// HTTP状态码.
const (
	// StatusOK - 200: 成功.
	StatusOK = 200
	// StatusBadRequest - 400: 请求参数错误.
	StatusBadRequest = 400
	// StatusUnauthorized - 401: 未授权.
	StatusUnauthorized = 401
	// StatusForbidden - 403: 禁止访问.
	StatusForbidden = 403
	// StatusNotFound - 404: 资源不存在.
	StatusNotFound = 404
	// StatusConflict - 409: 资源冲突.
	StatusConflict = 409
	// StatusTooManyRequests - 429: 请求过多.
	StatusTooManyRequests = 429
	// StatusInternalServerError - 500: 服务器内部错误.
	StatusInternalServerError = 500
)

// 通用错误码 (100xxx).
const (
	// ErrSuccess - 200: 成功.
	ErrSuccess int = iota + 100000
	// ErrUnknown - 500: 未知错误.
	ErrUnknown
	// ErrBind - 400: 请求参数绑定错误.
	ErrBind
	// ErrValidation - 400: 请求参数验证错误.
	ErrValidation
	// ErrTokenInvalid - 401: 令牌无效.
	ErrTokenInvalid
	// ErrTooManyRequests - 429: 请求频率过高.
	ErrTooManyRequests
	// ErrPermissionDenied - 403: 权限不足.
	ErrPermissionDenied
)

// 用户相关错误码 (101xxx).
const (
	// ErrUserNotFound - 404: 用户不存在.
	ErrUserNotFound int = iota + 101000
	// ErrUserAlreadyExist - 400: 用户已存在.
	ErrUserAlreadyExist
	// ErrUserPasswordIncorrect - 401: 用户密码错误.
	ErrUserPasswordIncorrect
)

// 设备相关错误码 (102xxx).
const (
	// ErrDeviceNotFound - 404: 设备不存在.
	ErrDeviceNotFound int = iota + 102000
	// ErrMacAddressConflict - 409: MAC地址已绑定到其他设备.
	ErrMacAddressConflict
	// ErrDeviceNotRegistered - 401: 设备未注册.
	ErrDeviceNotRegistered
	// ErrCredentialMismatch - 401: 设备凭证不匹配.
	ErrCredentialMismatch
	// ErrDeviceNotApproved - 403: 设备未获批准.
	ErrDeviceNotApproved
	// ErrDeviceNotConnected - 400: 设备当前未连接.
	ErrDeviceNotConnected
	// ErrInvalidMacAddress - 400: MAC地址格式无效.
	ErrInvalidMacAddress
)

// 审批相关错误码 (103xxx).
const (
	// ErrNotPending - 400: 设备不处于待审批状态.
	ErrNotPending int = iota + 103000
	// ErrRoomConflict - 409: 房间号已被其他已批准设备占用.
	ErrRoomConflict
)

// 数据库相关错误码 (105xxx).
const (
	// ErrDatabase - 500: 数据库错误.
	ErrDatabase int = iota + 105000
	// ErrRecordNotFound - 404: 记录不存在.
	ErrRecordNotFound
)
