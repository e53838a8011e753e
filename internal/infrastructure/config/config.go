package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

var (
	config     *Config
	configOnce sync.Once
)

// Config stores all configuration of the application
type Config struct {
	// Environment type
	EnvType string

	// Database
	DBDriver        string // 数据存储驱动: "mysql"(默认), "memory"(进程内存储，供开发和测试使用)
	DBHost          string
	DBUser          string
	DBPassword      string
	DBName          string
	DBPort          string
	DBMigrationMode string // 数据库迁移模式: "auto"(默认), "alter"(修改), "drop"(删除重建)

	// Server
	ServerPort string

	// Redis
	RedisHost string
	RedisPort string
	RedisDB   int

	// MQTT配置
	MQTTBrokerURL  string // MQTT服务器地址，如 tcp://broker.example.com:1883
	MQTTClientID   string // MQTT客户端ID
	MQTTUsername   string // MQTT用户名
	MQTTPassword   string // MQTT密码
	MQTTQoS        int    // 服务质量 (0, 1, 2)
	MQTTRetained   bool   // 是否保留消息
	MQTTSSLEnabled bool   // 是否启用SSL/TLS
	MQTTCACertPath string // CA证书路径，用于SSL/TLS验证

	// 设备机群配置
	HeartbeatTimeoutSec int // 心跳超时(秒)，超过该时间未收到心跳视为离线
	SessionSweepSec     int // 连接会话清理任务的运行间隔(秒)
	GuestSweepSec       int // 客房自动消息任务的运行间隔(秒)

	// PMS (酒店管理系统) 配置
	PMSBaseURL    string // PMS查询接口地址
	PMSAPIKey     string // PMS接口密钥
	PMSTimeoutSec int    // 单次PMS查询超时(秒)

	// 面板展示配置
	PanelName        string // 面板名称，下发给设备展示
	PanelLogoURL     string // 面板Logo地址
	WelcomeTemplate  string // 欢迎消息模板
	FarewellTemplate string // 离店消息模板

	// JWT Authentication
	JWTSecretKey string

	// Admin
	DefaultAdminPassword string
}

// 消息模板默认值，占位符在下发前由自动消息任务替换
const (
	DefaultWelcomeTemplate  = "尊敬的{{guest_name}}，欢迎入住{{room_number}}房间！祝您入住愉快。"
	DefaultFarewellTemplate = "尊敬的{{guest_name}}，您的退房时间为{{check_out_time}}，感谢您的入住！"
)

// LoadConfig loads config from environment variables based on ENV_TYPE
func LoadConfig() *Config {
	// Get environment type (default to LOCAL if not set)
	envType := getEnv("ENV_TYPE", "LOCAL")
	prefix := ""

	// Set prefix based on environment type
	if strings.ToUpper(envType) == "LOCAL" {
		prefix = "LOCAL_"
	} else if strings.ToUpper(envType) == "SERVER" {
		prefix = "SERVER_"
	} else {
		fmt.Printf("Warning: Unknown ENV_TYPE '%s', defaulting to LOCAL environment\n", envType)
		prefix = "LOCAL_"
		envType = "LOCAL"
	}

	fmt.Printf("Loading configuration for environment: %s\n", envType)

	return &Config{
		// Environment type
		EnvType: envType,

		// Database config - use environment-specific variables if available
		DBDriver:        getEnv("DB_DRIVER", "mysql"),
		DBHost:          getEnv(prefix+"DB_HOST", getEnv("DB_HOST", "localhost")),
		DBUser:          getEnv(prefix+"DB_USER", getEnv("DB_USER", "root")),
		DBPassword:      getEnv(prefix+"DB_PASSWORD", getEnv("DB_PASSWORD", "")),
		DBName:          getEnv(prefix+"DB_NAME", getEnv("DB_NAME", "roomcast_db")),
		DBPort:          getEnv(prefix+"DB_PORT", getEnv("DB_PORT", "3306")),
		DBMigrationMode: getEnv(prefix+"DB_MIGRATION_MODE", getEnv("DB_MIGRATION_MODE", "auto")),

		// Server config
		ServerPort: getEnv(prefix+"SERVER_PORT", getEnv("SERVER_PORT", "8080")),

		// Redis config
		RedisHost: getEnv(prefix+"REDIS_HOST", getEnv("REDIS_HOST", "localhost")),
		RedisPort: getEnv(prefix+"REDIS_PORT", getEnv("REDIS_PORT", "6379")),
		RedisDB:   getEnvAsInt("REDIS_DB", 0),

		// MQTT配置
		MQTTBrokerURL:  getEnv("MQTT_BROKER_URL", "tcp://localhost:1883"),
		MQTTClientID:   getEnv("MQTT_CLIENT_ID", "roomcast_server"),
		MQTTUsername:   getEnv("MQTT_USERNAME", ""),
		MQTTPassword:   getEnv("MQTT_PASSWORD", ""),
		MQTTQoS:        getEnvAsInt("MQTT_QOS", 1),
		MQTTRetained:   getEnvAsBool("MQTT_RETAINED", false),
		MQTTSSLEnabled: getEnvAsBool("MQTT_SSL_ENABLED", false),
		MQTTCACertPath: getEnv("MQTT_CA_CERT_PATH", ""),

		// 设备机群配置
		HeartbeatTimeoutSec: getEnvAsInt("HEARTBEAT_TIMEOUT_SEC", 300),
		SessionSweepSec:     getEnvAsInt("SESSION_SWEEP_SEC", 60),
		GuestSweepSec:       getEnvAsInt("GUEST_SWEEP_SEC", 300),

		// PMS配置
		PMSBaseURL:    getEnv("PMS_BASE_URL", "http://localhost:9090"),
		PMSAPIKey:     getEnv("PMS_API_KEY", ""),
		PMSTimeoutSec: getEnvAsInt("PMS_TIMEOUT_SEC", 5),

		// 面板展示配置
		PanelName:        getEnv("PANEL_NAME", "RoomCast"),
		PanelLogoURL:     getEnv("PANEL_LOGO_URL", ""),
		WelcomeTemplate:  getEnv("WELCOME_TEMPLATE", DefaultWelcomeTemplate),
		FarewellTemplate: getEnv("FAREWELL_TEMPLATE", DefaultFarewellTemplate),

		// JWT Config
		JWTSecretKey: getEnv("JWT_SECRET_KEY", "roomcast-secret-key-change-in-production"),

		// Admin Config
		DefaultAdminPassword: getEnv("DEFAULT_ADMIN_PASSWORD", "admin123"),
	}
}

// GetConfig returns the application configuration as a singleton
func GetConfig() *Config {
	configOnce.Do(func() {
		config = LoadConfig()
	})
	return config
}

// GetDSN returns the database connection string
func (c *Config) GetDSN() string {
	return c.DBUser + ":" + c.DBPassword + "@tcp(" + c.DBHost + ":" + c.DBPort + ")/" + c.DBName + "?charset=utf8mb4&parseTime=True&loc=Local&allowNativePasswords=true&multiStatements=true"
}

// GetRedisAddr returns the Redis address
func (c *Config) GetRedisAddr() string {
	return c.RedisHost + ":" + c.RedisPort
}

// HeartbeatTimeout 返回心跳超时时长
func (c *Config) HeartbeatTimeout() time.Duration {
	return time.Duration(c.HeartbeatTimeoutSec) * time.Second
}

// SessionSweepInterval 返回连接会话清理任务的运行间隔
func (c *Config) SessionSweepInterval() time.Duration {
	return time.Duration(c.SessionSweepSec) * time.Second
}

// GuestSweepInterval 返回客房自动消息任务的运行间隔
func (c *Config) GuestSweepInterval() time.Duration {
	return time.Duration(c.GuestSweepSec) * time.Second
}

// PMSTimeout 返回单次PMS查询超时时长
func (c *Config) PMSTimeout() time.Duration {
	return time.Duration(c.PMSTimeoutSec) * time.Second
}

// Helper function to get environment variable with default value
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// Helper function to get environment variable as integer with default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// Helper function to get environment variable as boolean with default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}
