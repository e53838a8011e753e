// @title           RoomCast HTTP Service API
// @version         1.0
// @description     Hotel room set-top box fleet management: registration, approval, liveness, push dispatch and guest automation

// @contact.name   API Support

// @host      localhost:8080
// @BasePath  /api

// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
// @description                 Enter the token with the `Bearer: ` prefix
package main

import (
	"fmt"
	"log"
	"os"
	"runtime"

	"roomcast-http-service/internal/app/routes"
	"roomcast-http-service/internal/domain/models"
	"roomcast-http-service/internal/domain/services/container"
	"roomcast-http-service/internal/infrastructure/config"
	"roomcast-http-service/internal/infrastructure/database"
	Logger "roomcast-http-service/pkg/logger"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func main() {
	runtime.GOMAXPROCS(runtime.NumCPU())

	// 初始化日志配置
	if err := Logger.SetupLogger(); err != nil {
		fmt.Printf("初始化日志配置失败: %v\n", err)
		os.Exit(1)
	}

	// 加载.env文件
	if err := godotenv.Load(); err != nil {
		Logger.Warning("无法加载.env文件: %v", err)
		// 即使加载失败也继续执行，环境变量可能已通过其他方式设置
	} else {
		Logger.Info("成功加载.env文件")
	}

	cfg := config.GetConfig()

	// 按驱动选择存储后端，内存模式不建数据库连接
	var db *gorm.DB
	var pool *database.ConnectionPool
	if cfg.DBDriver == "memory" {
		Logger.Warning("以内存存储模式运行，设备数据不持久化")
	} else {
		var err error
		pool, err = database.NewConnectionPool(cfg)
		if err != nil {
			log.Fatalf("无法创建数据库连接池: %v", err)
		}
		db = pool.GetDB()

		if err := migrate(db, cfg); err != nil {
			log.Fatalf("数据库迁移失败: %v", err)
		}

		ensureAdminExists(db, cfg)
	}

	// 创建服务容器并启动后台任务
	serviceContainer := container.NewServiceContainer(db, cfg)
	serviceContainer.StartBackgroundTasks()
	defer serviceContainer.Shutdown()

	r := routes.SetupRouter(serviceContainer, cfg)

	printSystemInfo(pool)

	port := cfg.ServerPort
	Logger.Info("服务器启动在: http://0.0.0.0:%s", port)
	if err := r.Run("0.0.0.0:" + port); err != nil {
		Logger.Error("启动服务器失败: %v", err)
		os.Exit(1)
	}
}

// migrate 按配置的迁移模式执行数据库迁移
func migrate(db *gorm.DB, cfg *config.Config) error {
	switch cfg.DBMigrationMode {
	case "drop":
		log.Println("警告: 在drop模式下运行，将删除并重建所有表")
		return dropAndRecreateTables(db)
	default:
		// AutoMigrate只添加新列和新表，不会删除或修改列
		return autoMigrate(db)
	}
}

// autoMigrate 自动迁移所有模型
func autoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Admin{},
		&models.Device{},
	); err != nil {
		return err
	}

	log.Println("数据库迁移完成")
	return nil
}

// dropAndRecreateTables 删除并重建所有表
func dropAndRecreateTables(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get DB connection: %w", err)
	}

	_, err = sqlDB.Exec("SET FOREIGN_KEY_CHECKS = 0")
	if err != nil {
		log.Printf("禁用外键约束检查失败: %v", err)
	}
	defer sqlDB.Exec("SET FOREIGN_KEY_CHECKS = 1")

	for _, table := range []string{"admins", "devices"} {
		log.Printf("删除表: %s", table)
		if _, err := sqlDB.Exec("DROP TABLE IF EXISTS " + table); err != nil {
			log.Printf("删除表失败: %v", err)
		}
	}

	return autoMigrate(db)
}

// ensureAdminExists 确保系统中有管理员账户
func ensureAdminExists(db *gorm.DB, cfg *config.Config) {
	var count int64
	db.Model(&models.Admin{}).Count(&count)

	if count == 0 {
		hashedPassword, err := bcrypt.GenerateFromPassword([]byte(cfg.DefaultAdminPassword), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("生成密码哈希失败: %v", err)
		}

		admin := models.Admin{
			Username: "admin",
			Password: string(hashedPassword),
			Role:     "system_admin",
			Status:   "active",
		}

		if err := db.Create(&admin).Error; err != nil {
			log.Fatalf("创建默认管理员失败: %v", err)
		}

		log.Println("已创建默认管理员账户")
	}
}

// printSystemInfo 打印系统信息
func printSystemInfo(pool *database.ConnectionPool) {
	if pool != nil {
		if stats, err := pool.Stats(); err == nil {
			log.Printf("数据库连接池状态: %+v", stats)
		}
	}

	log.Printf("系统CPU核心数: %d", runtime.NumCPU())
	log.Printf("当前Go协程数: %d", runtime.NumGoroutine())
}
