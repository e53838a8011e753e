package controllers

import (
	"errors"
	"net/http"

	"roomcast-http-service/internal/domain/services"
	"roomcast-http-service/internal/domain/services/container"
	"roomcast-http-service/internal/error/code"
	"roomcast-http-service/internal/error/response"

	"github.com/gin-gonic/gin"
)

// InterfaceDeviceProtocolController 定义设备协议控制器接口
type InterfaceDeviceProtocolController interface {
	Register()
	Heartbeat()
	PullConfiguration()
}

// DeviceProtocolController 处理设备侧的注册、心跳和配置拉取请求。
// 这些接口不走JWT，凭证是注册时绑定的UUID+MAC。
type DeviceProtocolController struct {
	Ctx       *gin.Context
	Container *container.ServiceContainer
}

// NewDeviceProtocolController 创建一个新的设备协议控制器
func NewDeviceProtocolController(ctx *gin.Context, container *container.ServiceContainer) *DeviceProtocolController {
	return &DeviceProtocolController{
		Ctx:       ctx,
		Container: container,
	}
}

// RegisterRequest 设备注册请求
type RegisterRequest struct {
	UUID       string                 `json:"uuid" binding:"required" example:"f47ac10b-58cc-4372-a567-0e02b2c3d479"`
	MACAddress string                 `json:"mac_address" binding:"required" example:"AA:BB:CC:DD:EE:FF"`
	DeviceInfo map[string]interface{} `json:"device_info"`
	Version    string                 `json:"version" example:"2.4.1"`
}

// HeartbeatRequest 设备心跳请求
type HeartbeatRequest struct {
	Status    string `json:"status" example:"online"`
	UptimeSec int64  `json:"uptime_sec" example:"3600"`
}

// HandleDeviceProtocolFunc 返回一个处理设备协议请求的Gin处理函数
func HandleDeviceProtocolFunc(container *container.ServiceContainer, method string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		controller := NewDeviceProtocolController(ctx, container)

		switch method {
		case "register":
			controller.Register()
		case "heartbeat":
			controller.Heartbeat()
		case "pull_config":
			controller.PullConfiguration()
		default:
			response.FailWithMessage(ctx, code.ErrBind, "无效的方法", nil)
		}
	}
}

// 1 Register 处理设备注册
// @Summary      Register Device
// @Description  Register a new device or reconnect an existing one. New devices enter the pending approval queue.
// @Tags         Device Protocol
// @Accept       json
// @Produce      json
// @Param        request body RegisterRequest true "Registration parameters"
// @Success      200  {object}  response.Response  "Existing device reconnected"
// @Success      201  {object}  response.Response  "New device registered, awaiting approval"
// @Failure      400  {object}  ErrorResponse  "Invalid MAC address"
// @Failure      409  {object}  ErrorResponse  "MAC address bound to another device"
// @Router       /devices/register [post]
func (c *DeviceProtocolController) Register() {
	var req RegisterRequest
	if err := c.Ctx.ShouldBindJSON(&req); err != nil {
		response.FailWithMessage(c.Ctx, code.ErrBind, "无效的请求参数", nil)
		return
	}

	registration := c.Container.GetService("registration").(services.InterfaceRegistrationService)
	result, err := registration.Register(req.UUID, req.MACAddress, req.DeviceInfo, req.Version)
	if err != nil {
		c.failWithServiceError(err)
		return
	}

	if result.Created {
		response.SuccessWithStatus(c.Ctx, http.StatusCreated, result)
		return
	}
	response.Success(c.Ctx, result)
}

// 2 Heartbeat 处理设备心跳
// @Summary      Device Heartbeat
// @Description  Record a liveness heartbeat. The response carries the current approval status so devices can detect revocation.
// @Tags         Device Protocol
// @Accept       json
// @Produce      json
// @Param        X-Device-UUID header string true "Device UUID"
// @Param        X-Device-MAC header string true "Device MAC address"
// @Param        request body HeartbeatRequest false "Heartbeat parameters"
// @Success      200  {object}  response.Response  "Heartbeat recorded"
// @Failure      401  {object}  ErrorResponse  "Unknown device or credential mismatch"
// @Router       /devices/heartbeat [post]
func (c *DeviceProtocolController) Heartbeat() {
	deviceUUID, macAddress, ok := c.deviceCredentials()
	if !ok {
		return
	}

	var req HeartbeatRequest
	// 心跳体可以为空
	_ = c.Ctx.ShouldBindJSON(&req)

	registration := c.Container.GetService("registration").(services.InterfaceRegistrationService)
	result, err := registration.Heartbeat(deviceUUID, macAddress, req.Status, req.UptimeSec)
	if err != nil {
		c.failWithServiceError(err)
		return
	}

	response.Success(c.Ctx, result)
}

// 3 PullConfiguration 处理设备的配置拉取
// @Summary      Pull Configuration
// @Description  Return the full configuration snapshot for an approved device. Recovery path for pushes missed while offline.
// @Tags         Device Protocol
// @Produce      json
// @Param        X-Device-UUID header string true "Device UUID"
// @Param        X-Device-MAC header string true "Device MAC address"
// @Success      200  {object}  response.Response  "Configuration payload"
// @Failure      401  {object}  ErrorResponse  "Unknown device or credential mismatch"
// @Failure      403  {object}  ErrorResponse  "Device not approved"
// @Router       /devices/config [get]
func (c *DeviceProtocolController) PullConfiguration() {
	deviceUUID, macAddress, ok := c.deviceCredentials()
	if !ok {
		return
	}

	registration := c.Container.GetService("registration").(services.InterfaceRegistrationService)
	payload, err := registration.PullConfiguration(deviceUUID, macAddress)
	if err != nil {
		c.failWithServiceError(err)
		return
	}

	response.Success(c.Ctx, payload)
}

// deviceCredentials 从请求头中提取设备凭证
func (c *DeviceProtocolController) deviceCredentials() (deviceUUID, macAddress string, ok bool) {
	deviceUUID = c.Ctx.GetHeader("X-Device-UUID")
	macAddress = c.Ctx.GetHeader("X-Device-MAC")
	if deviceUUID == "" || macAddress == "" {
		response.FailWithMessage(c.Ctx, code.ErrBind, "缺少设备凭证请求头", nil)
		return "", "", false
	}
	return deviceUUID, macAddress, true
}

// failWithServiceError 把服务层错误映射为错误码响应
func (c *DeviceProtocolController) failWithServiceError(err error) {
	response.Fail(c.Ctx, serviceErrorCode(err), nil)
}

// serviceErrorCode 服务层错误到错误码的映射
func serviceErrorCode(err error) int {
	switch {
	case errors.Is(err, services.ErrDeviceNotFound):
		return code.ErrDeviceNotFound
	case errors.Is(err, services.ErrInvalidMacAddress):
		return code.ErrInvalidMacAddress
	case errors.Is(err, services.ErrMacAddressConflict):
		return code.ErrMacAddressConflict
	case errors.Is(err, services.ErrDeviceNotRegistered):
		return code.ErrDeviceNotRegistered
	case errors.Is(err, services.ErrCredentialMismatch):
		return code.ErrCredentialMismatch
	case errors.Is(err, services.ErrDeviceNotApproved):
		return code.ErrDeviceNotApproved
	case errors.Is(err, services.ErrNotPending):
		return code.ErrNotPending
	case errors.Is(err, services.ErrRoomConflict):
		return code.ErrRoomConflict
	default:
		return code.ErrDatabase
	}
}
