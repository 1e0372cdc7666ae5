// Package config 统一配置管理
//
// 配置加载策略：
//  1. 从 .env 加载敏感信息（密钥、密码）和 APP_ENV
//  2. 根据 APP_ENV 加载对应的 configs/{env}.yaml 配置文件
//  3. 环境变量可覆盖 YAML 配置
//
// 使用方式：
//   - 开发环境: APP_ENV=dev (默认)
//   - 测试环境: APP_ENV=test
//   - 生产环境: APP_ENV=prod
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"jobshield/internal/apiserver/auth"
	"jobshield/internal/apiserver/ratelimit"
	"jobshield/internal/apiserver/submission"
	"jobshield/internal/shared/mail"
	"jobshield/internal/shared/objstore"
)

// Environment 环境类型
type Environment string

const (
	EnvProduction  Environment = "prod"
	EnvTest        Environment = "test"
	EnvDevelopment Environment = "dev"
)

// YAMLConfig YAML 配置文件结构
type YAMLConfig struct {
	Server    ServerConfig            `yaml:"server"`
	Database  DatabaseConfig          `yaml:"database"`
	Redis     RedisConfig             `yaml:"redis"`
	Minio     objstore.Config         `yaml:"minio"`
	Auth      auth.Config             `yaml:"auth"`
	SMTP      mail.Config             `yaml:"smtp"`
	Upload    submission.UploadConfig `yaml:"upload"`
	RateLimit ratelimit.Config        `yaml:"ratelimit"`
	Admin     AdminConfig             `yaml:"admin"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
}

// DatabaseConfig 数据库连接
//
// URL 决定存储引擎：mongodb:// → MongoDB，postgres:// → PostgreSQL，
// 其余按 SQLite 文件路径处理。Name 仅 MongoDB 使用。
type DatabaseConfig struct {
	URL  string `yaml:"url"`
	Name string `yaml:"name"`
}

// RedisConfig 限流计数后端；URL 为空时使用进程内计数
type RedisConfig struct {
	URL string `yaml:"url"`
}

// AdminConfig 启动时引导的管理员账户
type AdminConfig struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

// Config 应用配置（最终使用的配置）
type Config struct {
	Env          Environment
	APIPort      string
	DatabaseURL  string
	DatabaseName string
	RedisURL     string
	Minio        objstore.Config
	Auth         auth.Config
	SMTP         mail.Config
	Upload       submission.UploadConfig
	RateLimit    ratelimit.Config
	Admin        AdminConfig
}

var configPaths = []string{
	"configs",
	"../configs",
	"../../configs",
	"../../../configs",
}

var envPaths = []string{
	".env",
	"../.env",
	"../../.env",
	"../../../.env",
}

// Load 加载配置
// 1. 加载 .env（敏感信息 + APP_ENV）
// 2. 根据 APP_ENV 加载 configs/{env}.yaml
// 3. 环境变量覆盖敏感字段
func Load() *Config {
	// 加载 .env
	for _, p := range envPaths {
		if err := godotenv.Load(p); err == nil {
			break
		}
	}

	env := parseEnv(getEnv("APP_ENV", "dev"))
	yamlCfg := loadYAMLConfig(env)

	cfg := &Config{
		Env:          env,
		APIPort:      yamlCfg.Server.Port,
		DatabaseURL:  yamlCfg.Database.URL,
		DatabaseName: yamlCfg.Database.Name,
		RedisURL:     yamlCfg.Redis.URL,
		Minio:        yamlCfg.Minio,
		Auth:         yamlCfg.Auth,
		SMTP:         yamlCfg.SMTP,
		Upload:       yamlCfg.Upload,
		RateLimit:    yamlCfg.RateLimit,
		Admin:        yamlCfg.Admin,
	}
	cfg.applyEnvOverrides()

	return cfg
}

// applyEnvOverrides 环境变量覆盖敏感字段，YAML 不落盘密钥
func (c *Config) applyEnvOverrides() {
	c.APIPort = getEnv("API_PORT", c.APIPort)
	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)
	c.DatabaseName = getEnv("DATABASE_NAME", c.DatabaseName)
	c.RedisURL = getEnv("REDIS_URL", c.RedisURL)

	c.Auth.JWTSecret = getEnv("JWT_SECRET", c.Auth.JWTSecret)
	c.Auth.ResetURLBase = getEnv("RESET_URL_BASE", c.Auth.ResetURLBase)

	c.Minio.Endpoint = getEnv("MINIO_ENDPOINT", c.Minio.Endpoint)
	c.Minio.AccessKey = getEnv("MINIO_ACCESS_KEY", c.Minio.AccessKey)
	c.Minio.SecretKey = getEnv("MINIO_SECRET_KEY", c.Minio.SecretKey)

	c.SMTP.Host = getEnv("SMTP_HOST", c.SMTP.Host)
	c.SMTP.Username = getEnv("SMTP_USERNAME", c.SMTP.Username)
	c.SMTP.Password = getEnv("SMTP_PASSWORD", c.SMTP.Password)

	c.Admin.Email = getEnv("ADMIN_EMAIL", c.Admin.Email)
	c.Admin.Password = getEnv("ADMIN_PASSWORD", c.Admin.Password)
}

// loadYAMLConfig 加载 YAML 配置文件
// 加载顺序：默认值 → common.yaml → {env}.yaml
func loadYAMLConfig(env Environment) *YAMLConfig {
	// 1. 初始化默认值
	cfg := &YAMLConfig{
		Server:    ServerConfig{Port: "8080"},
		Database:  DatabaseConfig{URL: "jobshield.db", Name: "jobshield"},
		Auth:      auth.DefaultConfig(),
		Upload:    submission.DefaultUploadConfig(),
		RateLimit: ratelimit.DefaultConfig(),
	}

	// 2. 加载 common.yaml（公共配置）
	for _, base := range configPaths {
		path := filepath.Join(base, "common.yaml")
		if data, err := os.ReadFile(path); err == nil {
			yaml.Unmarshal(data, cfg)
			break
		}
	}

	// 3. 加载 {env}.yaml（环境特定配置，覆盖公共配置）
	filename := fmt.Sprintf("%s.yaml", env)
	for _, base := range configPaths {
		path := filepath.Join(base, filename)
		if data, err := os.ReadFile(path); err == nil {
			yaml.Unmarshal(data, cfg)
			break
		}
	}

	return cfg
}

func parseEnv(env string) Environment {
	switch strings.ToLower(env) {
	case "test":
		return EnvTest
	case "prod", "production":
		return EnvProduction
	default:
		return EnvDevelopment
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// IsTest 是否为测试环境
func (c *Config) IsTest() bool {
	return c.Env == EnvTest
}

// String 返回配置摘要（隐藏密码与密钥）
func (c *Config) String() string {
	return fmt.Sprintf("Config{Env: %s, Port: %s, DB: %s, Redis: %s, Minio: %s}",
		c.Env, c.APIPort, maskPassword(c.DatabaseURL), maskPassword(c.RedisURL), c.Minio.Endpoint)
}

// maskPassword 隐藏连接串里的密码；用户名允许为空（redis://:pass@host）
func maskPassword(url string) string {
	re := regexp.MustCompile(`(://[^:@/]*:)([^@]+)(@)`)
	return re.ReplaceAllString(url, "${1}***${3}")
}
