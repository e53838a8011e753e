package container

import (
	"sync"

	"roomcast-http-service/internal/domain/services"
	"roomcast-http-service/internal/domain/store"
	"roomcast-http-service/internal/infrastructure/config"
	"roomcast-http-service/internal/infrastructure/pms"
	"roomcast-http-service/pkg/logger"

	"gorm.io/gorm"
)

// ServiceContainer 管理所有服务的依赖注入
type ServiceContainer struct {
	db          *gorm.DB
	config      *config.Config
	deviceStore store.DeviceStore

	// 基础服务
	jwtService   services.InterfaceJWTService
	redisService services.InterfaceRedisService

	// 实时通道
	publisher   *services.MQTTPublisher
	sessions    services.InterfaceSessionService
	pushService services.InterfacePushService
	pmsClient   *pms.Client

	// 业务服务
	registrationService services.InterfaceRegistrationService
	approvalService     services.InterfaceApprovalService
	deviceService       services.InterfaceDeviceService
	adminService        services.InterfaceAdminService
	guestAutomation     services.InterfaceGuestAutomationService

	mu sync.RWMutex
}

// presenceBridge 把MQTT上下线通知接到会话表和设备状态上
type presenceBridge struct {
	sessions     services.InterfaceSessionService
	registration services.InterfaceRegistrationService
}

func (b *presenceBridge) HandleDeviceConnect(deviceUUID string) {
	b.sessions.Connect(deviceUUID)
}

func (b *presenceBridge) HandleDeviceDisconnect(deviceUUID string) {
	b.sessions.Disconnect(deviceUUID)
	b.registration.MarkOffline(deviceUUID)
}

// NewServiceContainer 创建新的服务容器。
// db在内存模式下为nil，此时设备存储使用进程内实现，
// 管理员登录回退到配置中的默认口令。
func NewServiceContainer(db *gorm.DB, cfg *config.Config) *ServiceContainer {
	if cfg == nil {
		panic("配置为空")
	}

	container := &ServiceContainer{
		db:     db,
		config: cfg,
	}
	container.initializeServices()
	return container
}

// initializeServices 初始化所有服务
func (c *ServiceContainer) initializeServices() {
	c.mu.Lock()
	defer c.mu.Unlock()

	// 按配置选择设备存储后端
	if c.db != nil {
		c.deviceStore = store.NewGormDeviceStore(c.db)
	} else {
		c.deviceStore = store.NewMemoryDeviceStore()
		logger.Warning("[Container] 使用内存设备存储，重启后数据丢失")
	}

	// 初始化基础服务
	c.jwtService = services.NewJWTService(c.config, c.db)

	if c.config.RedisHost != "" {
		redisService := services.NewRedisService(c.config)
		if err := redisService.Ping(); err != nil {
			logger.Warning("[Container] Redis连接测试失败: %v，统计缓存停用", err)
		} else {
			c.redisService = redisService
		}
	}

	// 会话表与实时通道
	c.sessions = services.NewSessionService(c.config.HeartbeatTimeout(), c.config.SessionSweepInterval())
	c.publisher = services.NewMQTTPublisher(c.config)
	c.pushService = services.NewPushService(c.publisher, c.sessions)

	// 业务服务
	c.registrationService = services.NewRegistrationService(c.deviceStore, c.config, c.sessions, c.pushService)
	c.approvalService = services.NewApprovalService(c.deviceStore, c.pushService)
	c.deviceService = services.NewDeviceService(c.deviceStore, c.config, c.sessions, c.pushService, c.redisService)
	c.adminService = services.NewAdminService(c.db, c.config)

	c.pmsClient = pms.NewClient(c.config)
	c.guestAutomation = services.NewGuestAutomationService(c.deviceStore, c.pmsClient, c.pushService, c.config)

	// 上下线通知必须在Connect之前接好，否则会丢首批presence消息
	c.publisher.SetPresenceHandler(&presenceBridge{
		sessions:     c.sessions,
		registration: c.registrationService,
	})
	if err := c.publisher.Connect(); err != nil {
		logger.Error("[Container] MQTT连接失败: %v，推送降级为不可投递", err)
	}
}

// StartBackgroundTasks 启动会话清理和客房自动消息的周期任务
func (c *ServiceContainer) StartBackgroundTasks() {
	c.sessions.StartEvictionSweep()
	c.guestAutomation.Start()
	logger.Info("[Container] 后台任务已启动")
}

// Shutdown 停止后台任务并断开外部连接
func (c *ServiceContainer) Shutdown() {
	c.guestAutomation.Stop()
	c.sessions.Stop()
	c.publisher.Disconnect()
	logger.Info("[Container] 服务已关闭")
}

// GetService 获取指定名称的服务
func (c *ServiceContainer) GetService(name string) interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	switch name {
	case "config":
		return c.config
	case "db":
		return c.db
	case "store":
		return c.deviceStore
	case "jwt":
		return c.jwtService
	case "redis":
		return c.redisService
	case "sessions":
		return c.sessions
	case "push":
		return c.pushService
	case "publisher":
		return c.publisher
	case "pms":
		return c.pmsClient
	case "registration":
		return c.registrationService
	case "approval":
		return c.approvalService
	case "device":
		return c.deviceService
	case "admin":
		return c.adminService
	case "guest_automation":
		return c.guestAutomation
	default:
		return nil
	}
}

// GetDB 获取数据库连接
func (c *ServiceContainer) GetDB() *gorm.DB {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.db
}
