package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DefaultFile is read when present and no other file is given.
const DefaultFile = "config.yaml"

type Config struct {
	Application ApplicationConfig `mapstructure:"application"`
	AI          AIConfig          `mapstructure:"ai"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Watch       WatchConfig       `mapstructure:"watch"`
}

type ApplicationConfig struct {
	Name            string `mapstructure:"name"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	TemplateDir     string `mapstructure:"template_dir"`
	FontDir         string `mapstructure:"font_dir"`
	AssetDir        string `mapstructure:"asset_dir"`
	DefaultTemplate string `mapstructure:"default_template"`
	DefaultFormat   string `mapstructure:"default_format"`
	MaxUploadMB     int    `mapstructure:"max_upload_mb"`
	ImagePolicy     string `mapstructure:"image_policy"` // fail, skip
}

// Addr returns host:port for the HTTP server.
func (c ApplicationConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type AIConfig struct {
	ActiveProvider string                      `mapstructure:"active_provider"`
	Providers      map[string]ProviderSettings `mapstructure:"providers"`
}

type ProviderSettings struct {
	Driver          string  `mapstructure:"driver"` // gemini, mock, none
	Key             string  `mapstructure:"key"`
	Endpoint        string  `mapstructure:"endpoint"`
	Model           string  `mapstructure:"model"`
	Temperature     float64 `mapstructure:"temperature"`
	MaxTokens       int     `mapstructure:"max_tokens"`
	InputCostPer1K  float64 `mapstructure:"input_cost_per_1k"`
	OutputCostPer1K float64 `mapstructure:"output_cost_per_1k"`
}

// Active returns the settings of the active provider. A provider without an
// explicit driver uses its name as the driver.
func (c AIConfig) Active() (string, ProviderSettings) {
	name := strings.ToLower(c.ActiveProvider)
	settings := c.Providers[name]
	if settings.Driver == "" {
		settings.Driver = name
	}
	return name, settings
}

type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	Options  string `mapstructure:"options"`
}

// Enabled reports whether a database has been configured at all.
func (c *DatabaseConfig) Enabled() bool {
	return c.URL != "" || c.Host != ""
}

func (c *DatabaseConfig) GetConnectStr() string {
	if c.URL != "" {
		return c.URL
	}
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	port := c.Port
	if port == "" {
		port = "5432"
	}

	connStr := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, port, c.DBName, sslmode)

	if c.Options != "" {
		// Basic URL encoding for the options value: space -> %20
		encodedOptions := strings.ReplaceAll(c.Options, " ", "%20")
		connStr += fmt.Sprintf("&options=%s", encodedOptions)
	}

	return connStr
}

type WatchConfig struct {
	Inbox    string        `mapstructure:"inbox"`
	Outbox   string        `mapstructure:"outbox"`
	Archive  string        `mapstructure:"archive"`
	Debounce time.Duration `mapstructure:"debounce"`
	Template string        `mapstructure:"template"`
	Format   string        `mapstructure:"format"`
}

// Load reads .env, then the given YAML file (DefaultFile when empty, which
// may be missing), then environment variables, which win.
func Load(file string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: .env file not found, using system environment variables")
	}

	v := viper.New()
	optional := file == ""
	if optional {
		file = DefaultFile
	}
	v.SetConfigFile(file)
	v.AutomaticEnv()

	// Environment variable mappings
	mappings := []struct {
		key, env string
	}{
		{"application.host", "HOST"},
		{"application.port", "PORT"},
		{"application.template_dir", "INFOGRAPH_TEMPLATE_DIR"},
		{"application.font_dir", "INFOGRAPH_FONT_DIR"},
		{"application.asset_dir", "INFOGRAPH_ASSET_DIR"},
		{"application.default_template", "INFOGRAPH_TEMPLATE"},
		{"application.default_format", "INFOGRAPH_FORMAT"},
		{"application.max_upload_mb", "INFOGRAPH_MAX_UPLOAD_MB"},
		{"application.image_policy", "INFOGRAPH_IMAGE_POLICY"},

		{"database.url", "DB_URL"},
		{"database.host", "PG_HOST"},
		{"database.port", "PG_PORT"},
		{"database.user", "PG_USER"},
		{"database.password", "PG_PASSWORD"},
		{"database.dbname", "PG_DB"},
		{"database.sslmode", "PG_SSLMODE"},
		{"database.options", "PG_OPTIONS"},

		{"ai.active_provider", "AI_PROVIDER"},
		{"ai.providers.gemini.key", "GEMINI_KEY"},
		{"ai.providers.gemini.model", "GEMINI_MODEL"},

		{"watch.inbox", "WATCH_INBOX"},
		{"watch.outbox", "WATCH_OUTBOX"},
		{"watch.archive", "WATCH_ARCHIVE"},
		{"watch.debounce", "WATCH_DEBOUNCE"},
	}
	for _, m := range mappings {
		if err := v.BindEnv(m.key, m.env); err != nil {
			return nil, fmt.Errorf("绑定环境变量 %s 失败: %w", m.env, err)
		}
	}

	// Defaults
	v.SetDefault("application.name", "infograph")
	v.SetDefault("application.host", "localhost")
	v.SetDefault("application.port", 8080)
	v.SetDefault("application.default_template", "sections")
	v.SetDefault("application.default_format", "png")
	v.SetDefault("application.max_upload_mb", 10)
	v.SetDefault("application.image_policy", "fail")
	v.SetDefault("ai.providers.gemini.driver", "gemini")
	v.SetDefault("ai.providers.gemini.model", "gemini-2.5-flash")
	v.SetDefault("ai.providers.gemini.temperature", 0.4)
	v.SetDefault("ai.providers.gemini.max_tokens", 2048)
	v.SetDefault("ai.providers.gemini.input_cost_per_1k", 0.0003)
	v.SetDefault("ai.providers.gemini.output_cost_per_1k", 0.0025)
	v.SetDefault("ai.providers.mock.driver", "mock")
	v.SetDefault("watch.inbox", "inbox")
	v.SetDefault("watch.outbox", "outbox")
	v.SetDefault("watch.archive", "archive")
	v.SetDefault("watch.debounce", "500ms")

	if err := v.ReadInConfig(); err != nil {
		// 默认配置文件可以不存在
		var notFound viper.ConfigFileNotFoundError
		missing := errors.Is(err, fs.ErrNotExist) || errors.As(err, &notFound)
		if !optional || !missing {
			return nil, fmt.Errorf("读取配置文件 %s 失败: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if cfg.AI.ActiveProvider == "" {
		// 没有配置密钥时不调用模型，直接使用原文
		cfg.AI.ActiveProvider = "none"
		if cfg.AI.Providers["gemini"].Key != "" {
			cfg.AI.ActiveProvider = "gemini"
		}
	}
	return &cfg, nil
}
