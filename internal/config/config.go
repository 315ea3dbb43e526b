package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bitfantasy/amb-mes/internal/mes/golden"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	MinIO      MinIOConfig      `mapstructure:"minio"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	Feishu     FeishuConfig     `mapstructure:"feishu"`
	ERPNext    ERPNextConfig    `mapstructure:"erpnext"`
	Log        LogConfig        `mapstructure:"log"`
	Golden     golden.Defaults  `mapstructure:"golden"`
	Naming     NamingConfig     `mapstructure:"naming"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Sequence   SequenceConfig   `mapstructure:"sequence"`
	Catalog    CatalogConfig    `mapstructure:"catalog"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// DSN postgres 连接串
func (d DatabaseConfig) DSN() string {
	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=Asia/Shanghai",
		d.Host, d.Port, d.User, d.Password, d.DBName, sslMode)
}

// Redis 未配置 host 时不启用
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// MinIO 用于存放导出的COA报告，endpoint 为空时不上传
type MinIOConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

// Feishu 通知机器人，app_id 为空时不发送
type FeishuConfig struct {
	AppID     string `mapstructure:"app_id"`
	AppSecret string `mapstructure:"app_secret"`
	BaseURL   string `mapstructure:"base_url"`
	ChatID    string `mapstructure:"chat_id"`
}

type ERPNextConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	APIKey    string `mapstructure:"api_key"`
	APISecret string `mapstructure:"api_secret"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

type NamingConfig struct {
	MaxLength int `mapstructure:"max_length"`
}

type ClassifierConfig struct {
	RulesFile string `mapstructure:"rules_file"` // 为空时使用内置规则
}

// 序号分配后端
const (
	SequenceMemory = "memory"
	SequenceRedis  = "redis"
	SequenceDB     = "db"
)

type SequenceConfig struct {
	Backend   string `mapstructure:"backend"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// 物料目录来源
const (
	CatalogDB      = "db"
	CatalogERPNext = "erpnext"
)

type CatalogConfig struct {
	Source   string        `mapstructure:"source"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"` // 0 表示不缓存
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", time.Hour)

	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.pool_size", 20)

	v.SetDefault("jwt.issuer", "amb-mes")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")

	d := golden.DefaultDefaults()
	v.SetDefault("golden.product_code", d.ProductCode)
	v.SetDefault("golden.consecutive", d.Consecutive)
	v.SetDefault("golden.plant", d.Plant)

	v.SetDefault("naming.max_length", 140)
	v.SetDefault("sequence.backend", SequenceDB)
	v.SetDefault("sequence.key_prefix", "mes:seq:")
	v.SetDefault("catalog.source", CatalogDB)
	v.SetDefault("catalog.cache_ttl", 10*time.Minute)
}

// Load 读取 configs/config.yaml，环境变量优先
func Load(paths ...string) (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// 配置文件不存在，使用环境变量
	}

	bindEnvVariables(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 校验枚举类配置
func (c *Config) Validate() error {
	switch c.Sequence.Backend {
	case SequenceMemory, SequenceDB:
	case SequenceRedis:
		if c.Redis.Host == "" {
			return fmt.Errorf("sequence.backend=redis 需要配置 redis.host")
		}
	default:
		return fmt.Errorf("未知的 sequence.backend: %q", c.Sequence.Backend)
	}
	switch c.Catalog.Source {
	case CatalogDB:
	case CatalogERPNext:
		if c.ERPNext.BaseURL == "" {
			return fmt.Errorf("catalog.source=erpnext 需要配置 erpnext.base_url")
		}
	default:
		return fmt.Errorf("未知的 catalog.source: %q", c.Catalog.Source)
	}
	if c.Naming.MaxLength < 0 {
		return fmt.Errorf("naming.max_length 不能为负数")
	}
	return nil
}

func bindEnvVariables(v *viper.Viper) {
	// Server
	v.BindEnv("server.port", "SERVER_PORT")
	v.BindEnv("server.mode", "SERVER_MODE")

	// Database
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.port", "DB_PORT")
	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("database.dbname", "DB_NAME")

	// Redis
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.password", "REDIS_PASSWORD")

	// MinIO
	v.BindEnv("minio.endpoint", "MINIO_ENDPOINT")
	v.BindEnv("minio.access_key", "MINIO_ACCESS_KEY")
	v.BindEnv("minio.secret_key", "MINIO_SECRET_KEY")
	v.BindEnv("minio.bucket", "MINIO_BUCKET")

	// JWT
	v.BindEnv("jwt.secret", "JWT_SECRET")

	// Feishu
	v.BindEnv("feishu.app_id", "FEISHU_APP_ID")
	v.BindEnv("feishu.app_secret", "FEISHU_APP_SECRET")
	v.BindEnv("feishu.chat_id", "FEISHU_CHAT_ID")

	// ERPNext
	v.BindEnv("erpnext.base_url", "ERPNEXT_BASE_URL")
	v.BindEnv("erpnext.api_key", "ERPNEXT_API_KEY")
	v.BindEnv("erpnext.api_secret", "ERPNEXT_API_SECRET")

	// 业务参数
	v.BindEnv("golden.plant", "MES_DEFAULT_PLANT")
	v.BindEnv("sequence.backend", "MES_SEQUENCE_BACKEND")
	v.BindEnv("catalog.source", "MES_CATALOG_SOURCE")
}

// GetEnvOrDefault 获取环境变量，如果不存在则返回默认值
func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
