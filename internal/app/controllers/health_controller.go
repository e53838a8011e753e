package controllers

import (
	"roomcast-http-service/internal/domain/services"
	"roomcast-http-service/internal/domain/services/container"
	"roomcast-http-service/internal/error/response"
	"roomcast-http-service/internal/infrastructure/pms"

	"github.com/gin-gonic/gin"
)

// HealthCheckController 健康检查控制器
type HealthCheckController struct {
	Container *container.ServiceContainer
}

// NewHealthCheckController 创建健康检查控制器实例
func NewHealthCheckController(container *container.ServiceContainer) *HealthCheckController {
	return &HealthCheckController{Container: container}
}

// Ping 存活检查端点
func (h *HealthCheckController) Ping(c *gin.Context) {
	response.Success(c, gin.H{
		"status":  "healthy",
		"message": "pong",
	})
}

// Status 依赖状态检查端点，汇报各外部依赖的连接情况
func (h *HealthCheckController) Status(c *gin.Context) {
	storage := "memory"
	if h.Container.GetDB() != nil {
		storage = "mysql"
	}

	redisOK := false
	if redisService, ok := h.Container.GetService("redis").(services.InterfaceRedisService); ok && redisService != nil {
		redisOK = redisService.Ping() == nil
	}

	mqttOK := false
	if publisher, ok := h.Container.GetService("publisher").(services.InterfacePublisher); ok && publisher != nil {
		mqttOK = publisher.IsConnected()
	}

	pmsOK := false
	if client, ok := h.Container.GetService("pms").(*pms.Client); ok && client != nil {
		pmsOK = client.IsConnected()
	}

	sessions := h.Container.GetService("sessions").(services.InterfaceSessionService)

	response.Success(c, gin.H{
		"storage":         storage,
		"redis":           redisOK,
		"mqtt":            mqttOK,
		"pms":             pmsOK,
		"active_sessions": sessions.Count(),
	})
}
