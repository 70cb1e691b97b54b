package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/spf13/viper"
)

const (
	envPrefix = "HERMES"

	// DefaultListLimit 市场每个子分类最多抓取的应用数
	DefaultListLimit = 500
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Market   MarketConfig   `mapstructure:"market"`
	Analyzer AnalyzerConfig `mapstructure:"analyzer"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	RabbitMQ RabbitMQConfig `mapstructure:"rabbitmq"`
	Log      LogConfig      `mapstructure:"log"`
	Report   ReportConfig   `mapstructure:"report"`
	Watcher  WatcherConfig  `mapstructure:"watcher"`
	AppDir   string         `mapstructure:"app_dir"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release
	// Token 非空时 /api 接口需要 Bearer 认证（/api/health 除外）
	Token string `mapstructure:"token"`
}

type DatabaseConfig struct {
	Type         string `mapstructure:"type"` // mysql, sqlite
	Path         string `mapstructure:"path"` // sqlite 文件路径
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	DBName       string `mapstructure:"db_name"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

// MarketConfig 应用市场网关配置
type MarketConfig struct {
	BaseURL     string `mapstructure:"base_url"`
	AndroidID   string `mapstructure:"android_id"`
	Email       string `mapstructure:"email"`
	Password    string `mapstructure:"password"`
	Token       string `mapstructure:"token"`
	Timeout     int    `mapstructure:"timeout"` // seconds
	Category    string `mapstructure:"category"`
	Subcategory string `mapstructure:"subcategory"`
	Limit       int    `mapstructure:"limit"`
	Offset      int    `mapstructure:"offset"`
}

// AnalyzerConfig 外部 TLS 检查脚本配置
type AnalyzerConfig struct {
	PythonPath string `mapstructure:"python_path"`
	ScriptPath string `mapstructure:"script_path"`
	Timeout    int    `mapstructure:"timeout"` // seconds
}

type WorkerConfig struct {
	Concurrency int `mapstructure:"concurrency"`  // Worker 数量
	QueueSize   int `mapstructure:"queue_size"`   // 任务队列大小
	RestoreFreq int `mapstructure:"restore_freq"` // 每处理多少个应用保存一次恢复点，0 表示不保存
	MaxRetries  int `mapstructure:"max_retries"`  // 下载重试次数
}

type RabbitMQConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	VHost    string `mapstructure:"vhost"`
	Queue    string `mapstructure:"queue"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
	Caller bool   `mapstructure:"caller"` // 是否输出调用位置
}

// ReportConfig 报表输出配置
type ReportConfig struct {
	TexDir          string `mapstructure:"tex_dir"`
	StatsFile       string `mapstructure:"stats_file"`
	TopSize         int    `mapstructure:"top_size"`
	CategoryTopSize int    `mapstructure:"category_top_size"`
}

// WatcherConfig 收件箱目录监听配置
type WatcherConfig struct {
	InboxDir   string `mapstructure:"inbox_dir"`
	DebounceMs int    `mapstructure:"debounce_ms"`
}

// NewViper 创建带默认值和环境变量绑定的 viper 实例，命令行参数可以在 Load 之前绑定上去
func NewViper() *viper.Viper {
	v := viper.New()
	applyDefaults(v)

	// 环境变量覆盖（HERMES_DATABASE_HOST 对应 database.host）
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 兼容部署环境中已有的变量名
	_ = v.BindEnv("rabbitmq.host", "HERMES_RABBITMQ_HOST", "RABBITMQ_HOST")
	_ = v.BindEnv("rabbitmq.port", "HERMES_RABBITMQ_PORT", "RABBITMQ_PORT")
	_ = v.BindEnv("rabbitmq.user", "HERMES_RABBITMQ_USER", "RABBITMQ_USER")
	_ = v.BindEnv("rabbitmq.password", "HERMES_RABBITMQ_PASSWORD", "RABBITMQ_PASS")

	_ = v.BindEnv("database.host", "HERMES_DATABASE_HOST", "MYSQL_HOST")
	_ = v.BindEnv("database.port", "HERMES_DATABASE_PORT", "MYSQL_PORT")
	_ = v.BindEnv("database.user", "HERMES_DATABASE_USER", "MYSQL_USER")
	_ = v.BindEnv("database.password", "HERMES_DATABASE_PASSWORD", "MYSQL_PASS")
	_ = v.BindEnv("database.db_name", "HERMES_DATABASE_DB_NAME", "MYSQL_DB")

	return v
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.token", "")

	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.path", "./data/hermes.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.user", "root")
	v.SetDefault("database.password", "")
	v.SetDefault("database.db_name", "hermes")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)

	v.SetDefault("market.base_url", "http://localhost:3000")
	v.SetDefault("market.android_id", "")
	v.SetDefault("market.email", "")
	v.SetDefault("market.password", "")
	v.SetDefault("market.token", "")
	v.SetDefault("market.timeout", 60)
	v.SetDefault("market.category", "all")
	v.SetDefault("market.subcategory", "all")
	v.SetDefault("market.limit", DefaultListLimit)
	v.SetDefault("market.offset", 0)

	v.SetDefault("analyzer.python_path", "python")
	v.SetDefault("analyzer.script_path", "scripts/tls_checker.py")
	v.SetDefault("analyzer.timeout", 300)

	v.SetDefault("worker.concurrency", 4)
	v.SetDefault("worker.queue_size", 100)
	v.SetDefault("worker.restore_freq", 10)
	v.SetDefault("worker.max_retries", 3)

	v.SetDefault("rabbitmq.host", "localhost")
	v.SetDefault("rabbitmq.port", 5672)
	v.SetDefault("rabbitmq.user", "guest")
	v.SetDefault("rabbitmq.password", "guest")
	v.SetDefault("rabbitmq.vhost", "/")
	v.SetDefault("rabbitmq.queue", "hermes_apps")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.caller", false)

	v.SetDefault("report.tex_dir", "tex/")
	v.SetDefault("report.stats_file", "stats.json")
	v.SetDefault("report.top_size", 50)
	v.SetDefault("report.category_top_size", 10)

	v.SetDefault("watcher.inbox_dir", "inbox/")
	v.SetDefault("watcher.debounce_ms", 2000)

	v.SetDefault("app_dir", "apps/")
}

// Load 从文件、环境变量和默认值加载配置
func Load(path string) (*Config, error) {
	return LoadFrom(NewViper(), path)
}

// LoadFrom 使用已绑定命令行参数的 viper 实例加载配置；path 为空或文件不存在时只使用默认值
func LoadFrom(v *viper.Viper, path string) (*Config, error) {
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// Validate 检查配置的取值范围
func (c *Config) Validate() error {
	switch c.Database.Type {
	case "mysql", "sqlite":
	default:
		return fmt.Errorf("unsupported database type %q", c.Database.Type)
	}
	if c.Worker.Concurrency < 1 {
		return errors.New("worker.concurrency must be at least 1")
	}
	if c.Worker.RestoreFreq < 0 {
		return errors.New("worker.restore_freq cannot be negative")
	}
	if c.Market.Limit < 1 {
		return errors.New("market.limit cannot be less than one")
	}
	if c.Market.Offset < 0 {
		return errors.New("market.offset cannot be less than zero")
	}
	if c.Report.TopSize < 0 || c.Report.CategoryTopSize < 0 {
		return errors.New("report top sizes cannot be negative")
	}
	return nil
}

// ValidateCredentials 下载应用前检查登录信息：token 或 邮箱+密码，以及 android id
func (c *MarketConfig) ValidateCredentials() error {
	if c.Token == "" && (c.Email == "" || c.Password == "") {
		return errors.New("you need to specify user/pass or token")
	}
	if c.AndroidID == "" {
		return errors.New("you need to specify your android id")
	}
	return nil
}

// GetDSN MySQL 连接串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.User, c.Password, c.Host, c.Port, c.DBName)
}

// GetURL RabbitMQ 连接地址
func (c *RabbitMQConfig) GetURL() string {
	vhost := strings.TrimPrefix(c.VHost, "/")
	return fmt.Sprintf("amqp://%s:%s@%s:%d/%s", c.User, c.Password, c.Host, c.Port, vhost)
}
