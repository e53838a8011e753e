package routes

import (
	"time"

	_ "roomcast-http-service/docs"
	"roomcast-http-service/internal/app/controllers"
	"roomcast-http-service/internal/app/middleware"
	"roomcast-http-service/internal/domain/services/container"
	"roomcast-http-service/internal/infrastructure/config"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// SetupRouter 初始化并返回配置好的路由
func SetupRouter(serviceContainer *container.ServiceContainer, cfg *config.Config) *gin.Engine {
	r := gin.Default()

	// CORS 中间件
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, Accept, Origin, Cache-Control, X-Requested-With, X-Device-UUID, X-Device-MAC")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, PATCH")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})
	// 设置正确的Content-Type，确保UTF-8编码
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", "application/json; charset=utf-8")
		c.Next()
	})

	// 初始化认证中间件
	middleware.InitAuthMiddleware(cfg, serviceContainer.GetDB())

	// Swagger 文档路由
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	registerRoutes(r, serviceContainer)
	return r
}

// registerRoutes 配置所有API路由
func registerRoutes(r *gin.Engine, container *container.ServiceContainer) {
	api := r.Group("/api")
	registerPublicRoutes(api, container)
	registerAuthenticatedRoutes(api, container)
}

// registerPublicRoutes 注册公共路由：健康检查、登录和设备协议接口
func registerPublicRoutes(api *gin.RouterGroup, container *container.ServiceContainer) {
	healthController := controllers.NewHealthCheckController(container)

	// 健康检查路由
	api.GET("/ping", healthController.Ping)
	api.GET("/health", healthController.Ping) // Docker健康检查
	api.GET("/health/status", healthController.Status)

	// 认证路由 - 登录接口限流防爆破
	authGroup := api.Group("/auth")
	authGroup.Use(middleware.IPRateLimiter(5, 10))
	authGroup.POST("/login", controllers.HandleJWTFunc(container, "login"))

	// 设备协议路由 - 设备用UUID+MAC凭证，不走JWT
	deviceProtocol := api.Group("/devices")
	deviceProtocol.Use(middleware.DeviceRateLimiter(5, 10))
	deviceProtocol.POST("/register", controllers.HandleDeviceProtocolFunc(container, "register"))
	deviceProtocol.POST("/heartbeat", controllers.HandleDeviceProtocolFunc(container, "heartbeat"))
	deviceProtocol.GET("/config", controllers.HandleDeviceProtocolFunc(container, "pull_config"))
}

// registerAuthenticatedRoutes 注册需要管理员认证的路由
func registerAuthenticatedRoutes(api *gin.RouterGroup, container *container.ServiceContainer) {
	auth := api.Group("/admin")
	auth.Use(middleware.AuthenticateAdmin())
	auth.Use(middleware.IPRateLimiter(30, 50))

	// 设备机群路由
	devicesGroup := auth.Group("/devices")
	{
		devicesGroup.GET("", middleware.Cache(15*time.Second), controllers.HandleDeviceFunc(container, "getAllDevices"))
		devicesGroup.GET("/stats", middleware.Cache(15*time.Second), controllers.HandleDeviceFunc(container, "getFleetStats"))
		devicesGroup.POST("/bulk-approve", controllers.HandleDeviceFunc(container, "bulkApproveDevices"))
		devicesGroup.GET("/:id", controllers.HandleDeviceFunc(container, "getDevice"))
		devicesGroup.PUT("/:id", controllers.HandleDeviceFunc(container, "updateDevice"))
		devicesGroup.DELETE("/:id", controllers.HandleDeviceFunc(container, "deleteDevice"))
		devicesGroup.POST("/:id/approve", controllers.HandleDeviceFunc(container, "approveDevice"))
		devicesGroup.POST("/:id/reject", controllers.HandleDeviceFunc(container, "rejectDevice"))
		devicesGroup.POST("/:id/push-config", controllers.HandleDeviceFunc(container, "pushConfiguration"))
		devicesGroup.POST("/:id/reboot", controllers.HandleDeviceFunc(container, "rebootDevice"))
		devicesGroup.POST("/:id/message", controllers.HandleDeviceFunc(container, "sendMessage"))
	}

	// 管理员账号路由
	adminGroup := auth.Group("/accounts")
	adminGroup.GET("", middleware.Cache(1*time.Minute), controllers.HandleAdminFunc(container, "getAdmins"))
	adminGroup.GET("/:id", controllers.HandleAdminFunc(container, "getAdmin"))
	adminGroup.POST("", controllers.HandleAdminFunc(container, "createAdmin"))
	adminGroup.PUT("/:id", controllers.HandleAdminFunc(container, "updateAdmin"))
	adminGroup.DELETE("/:id", controllers.HandleAdminFunc(container, "deleteAdmin"))
}
