package controllers

import (
	"strconv"

	"roomcast-http-service/internal/app/middleware"
	"roomcast-http-service/internal/domain/models"
	"roomcast-http-service/internal/domain/services"
	"roomcast-http-service/internal/domain/services/container"
	"roomcast-http-service/internal/error/code"
	"roomcast-http-service/internal/error/response"

	"github.com/gin-gonic/gin"
)

// InterfaceDeviceController 定义管理端设备控制器接口
type InterfaceDeviceController interface {
	GetAllDevices()
	GetDevice()
	UpdateDevice()
	DeleteDevice()
	ApproveDevice()
	RejectDevice()
	BulkApproveDevices()
	PushConfiguration()
	RebootDevice()
	SendMessage()
	GetFleetStats()
}

// DeviceController 处理管理端的设备机群请求
type DeviceController struct {
	Ctx       *gin.Context
	Container *container.ServiceContainer
}

// NewDeviceController 创建一个新的设备控制器
func NewDeviceController(ctx *gin.Context, container *container.ServiceContainer) *DeviceController {
	return &DeviceController{
		Ctx:       ctx,
		Container: container,
	}
}

// UpdateDeviceRequest 更新设备请求
type UpdateDeviceRequest struct {
	Name          *string                     `json:"name"`
	Notes         *string                     `json:"notes"`
	RoomNumber    *string                     `json:"room_number"`
	ClearRoom     bool                        `json:"clear_room"`
	Configuration *models.DeviceConfiguration `json:"configuration"`
}

// ApproveDeviceRequest 审批设备请求
type ApproveDeviceRequest struct {
	RoomNumber *string `json:"room_number" example:"1204"`
}

// BulkApproveRequest 批量审批请求
type BulkApproveRequest struct {
	DeviceIDs []uint `json:"device_ids" binding:"required"`
}

// SendMessageRequest 向设备发送消息的请求
type SendMessageRequest struct {
	Text string `json:"text" binding:"required"`
}

// HandleDeviceFunc 返回一个处理设备管理请求的Gin处理函数
func HandleDeviceFunc(container *container.ServiceContainer, method string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		controller := NewDeviceController(ctx, container)

		switch method {
		case "getAllDevices":
			controller.GetAllDevices()
		case "getDevice":
			controller.GetDevice()
		case "updateDevice":
			controller.UpdateDevice()
		case "deleteDevice":
			controller.DeleteDevice()
		case "approveDevice":
			controller.ApproveDevice()
		case "rejectDevice":
			controller.RejectDevice()
		case "bulkApproveDevices":
			controller.BulkApproveDevices()
		case "pushConfiguration":
			controller.PushConfiguration()
		case "rebootDevice":
			controller.RebootDevice()
		case "sendMessage":
			controller.SendMessage()
		case "getFleetStats":
			controller.GetFleetStats()
		default:
			response.FailWithMessage(ctx, code.ErrBind, "无效的方法", nil)
		}
	}
}

// pathID 从路径参数中解析设备ID
func (c *DeviceController) pathID() (uint, bool) {
	id, err := strconv.ParseUint(c.Ctx.Param("id"), 10, 32)
	if err != nil {
		response.FailWithMessage(c.Ctx, code.ErrBind, "无效的设备ID", nil)
		return 0, false
	}
	return uint(id), true
}

// 1 GetAllDevices 获取设备列表
// @Summary      List Devices
// @Description  List all devices, optionally filtered by approval status. Connection status is derived from last heartbeat.
// @Tags         Devices
// @Produce      json
// @Param        status query string false "Filter by status (pending/approved/rejected/inactive)"
// @Success      200  {object}  response.Response{data=[]models.Device}
// @Router       /devices [get]
func (c *DeviceController) GetAllDevices() {
	deviceService := c.Container.GetService("device").(services.InterfaceDeviceService)
	devices, err := deviceService.GetAllDevices(c.Ctx.Query("status"))
	if err != nil {
		response.Fail(c.Ctx, code.ErrDatabase, nil)
		return
	}
	response.Success(c.Ctx, devices)
}

// 2 GetDevice 获取单个设备
// @Summary      Get Device
// @Tags         Devices
// @Produce      json
// @Param        id path int true "Device ID"
// @Success      200  {object}  response.Response{data=models.Device}
// @Failure      404  {object}  ErrorResponse
// @Router       /devices/{id} [get]
func (c *DeviceController) GetDevice() {
	id, ok := c.pathID()
	if !ok {
		return
	}

	deviceService := c.Container.GetService("device").(services.InterfaceDeviceService)
	device, err := deviceService.GetDeviceByID(id)
	if err != nil {
		response.Fail(c.Ctx, serviceErrorCode(err), nil)
		return
	}
	response.Success(c.Ctx, device)
}

// 3 UpdateDevice 更新设备
// @Summary      Update Device
// @Description  Update device name, notes, room assignment or configuration. Room changes on approved devices run the same conflict check as approval.
// @Tags         Devices
// @Accept       json
// @Produce      json
// @Param        id path int true "Device ID"
// @Param        request body UpdateDeviceRequest true "Fields to update"
// @Success      200  {object}  response.Response{data=models.Device}
// @Failure      404  {object}  ErrorResponse
// @Failure      409  {object}  ErrorResponse  "Room already occupied"
// @Router       /devices/{id} [put]
func (c *DeviceController) UpdateDevice() {
	id, ok := c.pathID()
	if !ok {
		return
	}

	var req UpdateDeviceRequest
	if err := c.Ctx.ShouldBindJSON(&req); err != nil {
		response.FailWithMessage(c.Ctx, code.ErrBind, "无效的请求参数", nil)
		return
	}

	deviceService := c.Container.GetService("device").(services.InterfaceDeviceService)
	device, err := deviceService.UpdateDevice(id, services.UpdateDeviceInput{
		Name:          req.Name,
		Notes:         req.Notes,
		RoomNumber:    req.RoomNumber,
		ClearRoom:     req.ClearRoom,
		Configuration: req.Configuration,
	})
	if err != nil {
		response.Fail(c.Ctx, serviceErrorCode(err), nil)
		return
	}

	middleware.PurgeCache()
	response.Success(c.Ctx, device)
}

// 4 DeleteDevice 删除设备
// @Summary      Delete Device
// @Description  Hard-delete a device and evict its connection session.
// @Tags         Devices
// @Produce      json
// @Param        id path int true "Device ID"
// @Success      200  {object}  response.Response
// @Failure      404  {object}  ErrorResponse
// @Router       /devices/{id} [delete]
func (c *DeviceController) DeleteDevice() {
	id, ok := c.pathID()
	if !ok {
		return
	}

	deviceService := c.Container.GetService("device").(services.InterfaceDeviceService)
	if err := deviceService.DeleteDevice(id); err != nil {
		response.Fail(c.Ctx, serviceErrorCode(err), nil)
		return
	}

	middleware.PurgeCache()
	response.Success(c.Ctx, nil)
}

// 5 ApproveDevice 批准设备
// @Summary      Approve Device
// @Description  Approve a pending or rejected device and optionally assign a room. Rooms are exclusive among approved devices.
// @Tags         Approval
// @Accept       json
// @Produce      json
// @Param        id path int true "Device ID"
// @Param        request body ApproveDeviceRequest false "Approval parameters"
// @Success      200  {object}  response.Response{data=models.Device}
// @Failure      400  {object}  ErrorResponse  "Device not awaiting approval"
// @Failure      409  {object}  ErrorResponse  "Room already occupied"
// @Router       /devices/{id}/approve [post]
func (c *DeviceController) ApproveDevice() {
	id, ok := c.pathID()
	if !ok {
		return
	}

	var req ApproveDeviceRequest
	_ = c.Ctx.ShouldBindJSON(&req)

	approval := c.Container.GetService("approval").(services.InterfaceApprovalService)
	device, err := approval.Approve(id, req.RoomNumber, c.adminName())
	if err != nil {
		response.Fail(c.Ctx, serviceErrorCode(err), nil)
		return
	}

	middleware.PurgeCache()
	response.Success(c.Ctx, device)
}

// 6 RejectDevice 拒绝设备
// @Summary      Reject Device
// @Tags         Approval
// @Produce      json
// @Param        id path int true "Device ID"
// @Success      200  {object}  response.Response{data=models.Device}
// @Failure      400  {object}  ErrorResponse  "Device not awaiting approval"
// @Router       /devices/{id}/reject [post]
func (c *DeviceController) RejectDevice() {
	id, ok := c.pathID()
	if !ok {
		return
	}

	approval := c.Container.GetService("approval").(services.InterfaceApprovalService)
	device, err := approval.Reject(id)
	if err != nil {
		response.Fail(c.Ctx, serviceErrorCode(err), nil)
		return
	}

	middleware.PurgeCache()
	response.Success(c.Ctx, device)
}

// 7 BulkApproveDevices 批量批准设备
// @Summary      Bulk Approve Devices
// @Description  Approve multiple devices in one request. Each ID is processed independently and reported separately.
// @Tags         Approval
// @Accept       json
// @Produce      json
// @Param        request body BulkApproveRequest true "Device IDs"
// @Success      200  {object}  response.Response{data=[]services.BulkApproveOutcome}
// @Router       /devices/bulk-approve [post]
func (c *DeviceController) BulkApproveDevices() {
	var req BulkApproveRequest
	if err := c.Ctx.ShouldBindJSON(&req); err != nil {
		response.FailWithMessage(c.Ctx, code.ErrBind, "无效的请求参数", nil)
		return
	}

	approval := c.Container.GetService("approval").(services.InterfaceApprovalService)
	outcomes := approval.BulkApprove(req.DeviceIDs, c.adminName())

	middleware.PurgeCache()
	response.Success(c.Ctx, outcomes)
}

// 8 PushConfiguration 推送配置到设备
// @Summary      Push Configuration
// @Description  Push the current configuration snapshot to a connected device. Delivery is at-most-once.
// @Tags         Devices
// @Produce      json
// @Param        id path int true "Device ID"
// @Success      200  {object}  response.Response
// @Failure      403  {object}  ErrorResponse  "Device not approved"
// @Failure      404  {object}  ErrorResponse
// @Router       /devices/{id}/push-config [post]
func (c *DeviceController) PushConfiguration() {
	id, ok := c.pathID()
	if !ok {
		return
	}

	deviceService := c.Container.GetService("device").(services.InterfaceDeviceService)
	result, err := deviceService.PushConfiguration(id)
	if err != nil {
		response.Fail(c.Ctx, serviceErrorCode(err), nil)
		return
	}
	response.Success(c.Ctx, gin.H{"delivery": result})
}

// 9 RebootDevice 重启设备
// @Summary      Reboot Device
// @Tags         Devices
// @Produce      json
// @Param        id path int true "Device ID"
// @Success      200  {object}  response.Response
// @Failure      404  {object}  ErrorResponse
// @Router       /devices/{id}/reboot [post]
func (c *DeviceController) RebootDevice() {
	id, ok := c.pathID()
	if !ok {
		return
	}

	deviceService := c.Container.GetService("device").(services.InterfaceDeviceService)
	result, err := deviceService.RebootDevice(id)
	if err != nil {
		response.Fail(c.Ctx, serviceErrorCode(err), nil)
		return
	}
	response.Success(c.Ctx, gin.H{"delivery": result})
}

// 10 SendMessage 向设备发送管理员消息
// @Summary      Send Message
// @Tags         Devices
// @Accept       json
// @Produce      json
// @Param        id path int true "Device ID"
// @Param        request body SendMessageRequest true "Message text"
// @Success      200  {object}  response.Response
// @Failure      404  {object}  ErrorResponse
// @Router       /devices/{id}/message [post]
func (c *DeviceController) SendMessage() {
	id, ok := c.pathID()
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := c.Ctx.ShouldBindJSON(&req); err != nil {
		response.FailWithMessage(c.Ctx, code.ErrBind, "无效的请求参数", nil)
		return
	}

	deviceService := c.Container.GetService("device").(services.InterfaceDeviceService)
	result, err := deviceService.SendMessage(id, req.Text)
	if err != nil {
		response.Fail(c.Ctx, serviceErrorCode(err), nil)
		return
	}
	response.Success(c.Ctx, gin.H{"delivery": result})
}

// 11 GetFleetStats 获取机群统计
// @Summary      Fleet Statistics
// @Description  Aggregate counts by approval status and derived connection status.
// @Tags         Devices
// @Produce      json
// @Success      200  {object}  response.Response{data=services.FleetStats}
// @Router       /devices/stats [get]
func (c *DeviceController) GetFleetStats() {
	deviceService := c.Container.GetService("device").(services.InterfaceDeviceService)
	stats, err := deviceService.GetFleetStats()
	if err != nil {
		response.Fail(c.Ctx, code.ErrDatabase, nil)
		return
	}
	response.Success(c.Ctx, stats)
}

// adminName 从JWT上下文中取当前管理员标识
func (c *DeviceController) adminName() string {
	if v, exists := c.Ctx.Get("userID"); exists {
		if f, ok := v.(float64); ok {
			return "admin:" + strconv.FormatUint(uint64(f), 10)
		}
	}
	return "admin"
}
