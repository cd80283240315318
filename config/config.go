package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config 应用程序配置
type Config struct {
	APIPort  int
	APIToken string // 内部接口（节点/中转机）调用凭证
	LogLevel string
	LogFile  LogFileConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Checkin  CheckinConfig
}

// DatabaseConfig MySQL数据库配置
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
}

// RedisConfig Redis配置
type RedisConfig struct {
	Host     string
	Port     int
	Password string
}

// LogFileConfig 日志文件配置
type LogFileConfig struct {
	Enabled    bool
	Path       string
	MaxSize    int // 单个文件最大大小，单位MB
	MaxBackups int // 最大保留旧文件数量
	MaxAge     int // 最大保留天数
	Compress   bool
}

// CheckinConfig 签到奖励配置
type CheckinConfig struct {
	MinTraffic int64 // 单次签到最小奖励流量（字节）
	MaxTraffic int64 // 单次签到最大奖励流量（字节）
}

// Load 从环境变量加载配置
func Load() (*Config, error) {
	// 加载.env文件
	err := godotenv.Load()
	if err != nil {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	// 解析数据库配置
	dbPort, err := strconv.Atoi(os.Getenv("DB_PORT"))
	if err != nil {
		dbPort = 3306 // 默认端口
	}

	// 解析Redis配置
	redisPort, err := strconv.Atoi(os.Getenv("REDIS_PORT"))
	if err != nil {
		redisPort = 6379 // 默认端口
	}

	// 解析API端口
	apiPort, err := strconv.Atoi(os.Getenv("API_PORT"))
	if err != nil {
		apiPort = 8080 // 默认端口
	}

	return &Config{
		APIPort:  apiPort,
		APIToken: os.Getenv("API_TOKEN"),
		LogLevel: os.Getenv("LOG_LEVEL"),
		LogFile: LogFileConfig{
			Enabled:    os.Getenv("LOG_FILE_PATH") != "",
			Path:       os.Getenv("LOG_FILE_PATH"),
			MaxSize:    envInt("LOG_FILE_MAX_SIZE", 100),
			MaxBackups: envInt("LOG_FILE_MAX_BACKUPS", 30),
			MaxAge:     envInt("LOG_FILE_MAX_AGE", 30),
			Compress:   os.Getenv("LOG_FILE_COMPRESS") == "true",
		},
		Database: DatabaseConfig{
			Host:     os.Getenv("DB_HOST"),
			Port:     dbPort,
			User:     os.Getenv("DB_USER"),
			Password: os.Getenv("DB_PASSWORD"),
			DBName:   os.Getenv("DB_NAME"),
		},
		Redis: RedisConfig{
			Host:     os.Getenv("REDIS_HOST"),
			Port:     redisPort,
			Password: os.Getenv("REDIS_PASSWORD"),
		},
		Checkin: CheckinConfig{
			MinTraffic: envInt64("CHECKIN_MIN_TRAFFIC", 1073741824),   // 默认最小1GB
			MaxTraffic: envInt64("CHECKIN_MAX_TRAFFIC", 3*1073741824), // 默认最大3GB
		},
	}, nil
}

func envInt(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}

func envInt64(key string, def int64) int64 {
	v, err := strconv.ParseInt(os.Getenv(key), 10, 64)
	if err != nil {
		return def
	}
	return v
}
