package controllers

import (
	"strconv"

	"roomcast-http-service/internal/domain/models"
	"roomcast-http-service/internal/domain/services"
	"roomcast-http-service/internal/domain/services/container"
	"roomcast-http-service/internal/error/code"
	"roomcast-http-service/internal/error/response"

	"github.com/gin-gonic/gin"
)

// InterfaceAdminController 定义管理员账号控制器接口
type InterfaceAdminController interface {
	GetAdmins()
	GetAdmin()
	CreateAdmin()
	UpdateAdmin()
	DeleteAdmin()
}

// AdminController 处理管理员账号相关的请求
type AdminController struct {
	Ctx       *gin.Context
	Container *container.ServiceContainer
}

// NewAdminController 创建一个新的管理员控制器
func NewAdminController(ctx *gin.Context, container *container.ServiceContainer) *AdminController {
	return &AdminController{
		Ctx:       ctx,
		Container: container,
	}
}

// CreateAdminRequest 创建管理员的请求
type CreateAdminRequest struct {
	Username string `json:"username" binding:"required" example:"operator"`
	Password string `json:"password" binding:"required,min=6" example:"secret123"`
	Email    string `json:"email" example:"ops@hotel.example"`
	Phone    string `json:"phone" example:"13800138000"`
}

// UpdateAdminRequest 更新管理员的请求
type UpdateAdminRequest struct {
	Password string `json:"password"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
}

// HandleAdminFunc 返回一个处理管理员账号请求的Gin处理函数
func HandleAdminFunc(container *container.ServiceContainer, method string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		controller := NewAdminController(ctx, container)

		switch method {
		case "getAdmins":
			controller.GetAdmins()
		case "getAdmin":
			controller.GetAdmin()
		case "createAdmin":
			controller.CreateAdmin()
		case "updateAdmin":
			controller.UpdateAdmin()
		case "deleteAdmin":
			controller.DeleteAdmin()
		default:
			response.FailWithMessage(ctx, code.ErrBind, "无效的方法", nil)
		}
	}
}

// adminService 获取管理员服务，内存模式下不可用
func (c *AdminController) adminService() (services.InterfaceAdminService, bool) {
	if c.Container.GetDB() == nil {
		response.FailWithMessage(c.Ctx, code.ErrDatabase, "内存存储模式下不支持管理员账号管理", nil)
		return nil, false
	}
	return c.Container.GetService("admin").(services.InterfaceAdminService), true
}

// 1 GetAdmins 获取管理员列表
// @Summary      List Admins
// @Tags         Admins
// @Produce      json
// @Param        page query int false "Page number"
// @Param        page_size query int false "Page size"
// @Param        search query string false "Search by username/email/phone"
// @Success      200  {object}  response.Response
// @Router       /admins [get]
func (c *AdminController) GetAdmins() {
	adminService, ok := c.adminService()
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.Ctx.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.Ctx.DefaultQuery("page_size", "10"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 10
	}

	admins, total, err := adminService.GetAllAdmins(page, pageSize, c.Ctx.Query("search"))
	if err != nil {
		response.Fail(c.Ctx, code.ErrDatabase, nil)
		return
	}

	// 不回传密码哈希
	for i := range admins {
		admins[i].Password = ""
	}

	response.Success(c.Ctx, gin.H{
		"pagination": models.NewPaginationResult(int(total), page, pageSize),
		"admins":     admins,
	})
}

// 2 GetAdmin 获取单个管理员
// @Summary      Get Admin
// @Tags         Admins
// @Produce      json
// @Param        id path int true "Admin ID"
// @Success      200  {object}  response.Response{data=models.Admin}
// @Failure      404  {object}  ErrorResponse
// @Router       /admins/{id} [get]
func (c *AdminController) GetAdmin() {
	adminService, ok := c.adminService()
	if !ok {
		return
	}

	id, err := strconv.ParseUint(c.Ctx.Param("id"), 10, 32)
	if err != nil {
		response.FailWithMessage(c.Ctx, code.ErrBind, "无效的管理员ID", nil)
		return
	}

	admin, err := adminService.GetAdminByID(uint(id))
	if err != nil {
		response.Fail(c.Ctx, code.ErrUserNotFound, nil)
		return
	}

	admin.Password = ""
	response.Success(c.Ctx, admin)
}

// 3 CreateAdmin 创建管理员
// @Summary      Create Admin
// @Tags         Admins
// @Accept       json
// @Produce      json
// @Param        request body CreateAdminRequest true "Admin parameters"
// @Success      200  {object}  response.Response{data=models.Admin}
// @Failure      400  {object}  ErrorResponse  "Username already exists"
// @Router       /admins [post]
func (c *AdminController) CreateAdmin() {
	adminService, ok := c.adminService()
	if !ok {
		return
	}

	var req CreateAdminRequest
	if err := c.Ctx.ShouldBindJSON(&req); err != nil {
		response.FailWithMessage(c.Ctx, code.ErrBind, "无效的请求参数", nil)
		return
	}

	admin := &models.Admin{
		Username: req.Username,
		Password: req.Password,
		Email:    req.Email,
		Phone:    req.Phone,
	}
	if err := adminService.CreateAdmin(admin); err != nil {
		response.FailWithMessage(c.Ctx, code.ErrUserAlreadyExist, err.Error(), nil)
		return
	}

	admin.Password = ""
	response.Success(c.Ctx, admin)
}

// 4 UpdateAdmin 更新管理员
// @Summary      Update Admin
// @Tags         Admins
// @Accept       json
// @Produce      json
// @Param        id path int true "Admin ID"
// @Param        request body UpdateAdminRequest true "Fields to update"
// @Success      200  {object}  response.Response{data=models.Admin}
// @Failure      404  {object}  ErrorResponse
// @Router       /admins/{id} [put]
func (c *AdminController) UpdateAdmin() {
	adminService, ok := c.adminService()
	if !ok {
		return
	}

	id, err := strconv.ParseUint(c.Ctx.Param("id"), 10, 32)
	if err != nil {
		response.FailWithMessage(c.Ctx, code.ErrBind, "无效的管理员ID", nil)
		return
	}

	var req UpdateAdminRequest
	if err := c.Ctx.ShouldBindJSON(&req); err != nil {
		response.FailWithMessage(c.Ctx, code.ErrBind, "无效的请求参数", nil)
		return
	}

	updates := make(map[string]interface{})
	if req.Password != "" {
		updates["password"] = req.Password
	}
	if req.Email != "" {
		updates["email"] = req.Email
	}
	if req.Phone != "" {
		updates["phone"] = req.Phone
	}

	admin, err := adminService.UpdateAdmin(uint(id), updates)
	if err != nil {
		response.FailWithMessage(c.Ctx, code.ErrUserNotFound, err.Error(), nil)
		return
	}

	admin.Password = ""
	response.Success(c.Ctx, admin)
}

// 5 DeleteAdmin 删除管理员
// @Summary      Delete Admin
// @Description  Delete an administrator account. The last remaining admin cannot be deleted.
// @Tags         Admins
// @Produce      json
// @Param        id path int true "Admin ID"
// @Success      200  {object}  response.Response
// @Failure      400  {object}  ErrorResponse  "Last admin cannot be deleted"
// @Router       /admins/{id} [delete]
func (c *AdminController) DeleteAdmin() {
	adminService, ok := c.adminService()
	if !ok {
		return
	}

	id, err := strconv.ParseUint(c.Ctx.Param("id"), 10, 32)
	if err != nil {
		response.FailWithMessage(c.Ctx, code.ErrBind, "无效的管理员ID", nil)
		return
	}

	if err := adminService.DeleteAdmin(uint(id)); err != nil {
		response.FailWithMessage(c.Ctx, code.ErrValidation, err.Error(), nil)
		return
	}

	response.Success(c.Ctx, nil)
}
