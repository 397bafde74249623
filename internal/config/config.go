package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Logging    LoggingConfig    `yaml:"logging"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	HTTP       HTTPConfig       `yaml:"http"`
	Misa       MisaConfig       `yaml:"misa"`
	Odoo       OdooConfig       `yaml:"odoo"`
	Redis      RedisConfig      `yaml:"redis"`
	Exports    ExportsConfig    `yaml:"exports"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type HTTPConfig struct {
	Port int `yaml:"port"`
}

// MisaConfig covers the export-service side: credentials forwarded on every
// call, the scope-context file, and poll loop tuning. DatabaseID/BranchID/
// UserID override the values from the context file when set.
type MisaConfig struct {
	BaseURL        string `yaml:"base_url"`
	Token          string `yaml:"token"`
	Device         string `yaml:"device"`
	Cookie         string `yaml:"cookie"`
	ContextPath    string `yaml:"context_path"`
	DatabaseID     string `yaml:"database_id"`
	BranchID       string `yaml:"branch_id"`
	UserID         string `yaml:"user_id"`
	FileName       string `yaml:"file_name"`
	FileType       string `yaml:"file_type"`
	PollMax        int    `yaml:"poll_max"`
	PollIntervalMs int    `yaml:"poll_interval_ms"`
}

func (c MisaConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// OdooConfig covers the CRM RPC side.
type OdooConfig struct {
	BaseURL    string  `yaml:"base_url"`
	Cookie     string  `yaml:"cookie"`
	Limit      int     `yaml:"limit"`
	Offset     int     `yaml:"offset"`
	CountLimit int     `yaml:"count_limit"`
	Order      string  `yaml:"order"`
	RequestID  int     `yaml:"request_id"`
	Domain     string  `yaml:"domain"`
	OnlyActive bool    `yaml:"only_active"`
	CompanyIDs []int64 `yaml:"company_ids"`
	CompanyID  int64   `yaml:"company_id"`
	UID        int64   `yaml:"uid"`
	Lang       string  `yaml:"lang"`
	TZ         string  `yaml:"tz"`
}

type RedisConfig struct {
	Address          string `yaml:"address"`
	Password         string `yaml:"password"`
	DB               int    `yaml:"db"`
	PoolSize         int    `yaml:"pool_size"`
	SnapshotTTLHours int    `yaml:"snapshot_ttl_hours"`
}

type ExportsConfig struct {
	Retain bool   `yaml:"retain"`
	Path   string `yaml:"path"`
}

func Load(configPath string) (*Config, error) {
	// .env feeds the ${VAR} expansion below; absence is fine.
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Misa.BaseURL == "" {
		return errors.New("misa base_url is required")
	}
	if c.Misa.PollMax <= 0 {
		return errors.New("misa poll_max must be positive")
	}
	if c.Exports.Retain && c.Exports.Path == "" {
		return errors.New("exports.retain requires exports.path")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "customer-export"
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}

	if c.Misa.BaseURL == "" {
		c.Misa.BaseURL = "https://actapp.misa.vn"
	}
	c.Misa.BaseURL = strings.TrimRight(c.Misa.BaseURL, "/")
	if c.Misa.ContextPath == "" {
		c.Misa.ContextPath = "context.json"
	}
	if c.Misa.FileName == "" {
		c.Misa.FileName = "customer_list"
	}
	if c.Misa.FileType == "" {
		c.Misa.FileType = "xlsx"
	}
	if c.Misa.PollMax == 0 {
		c.Misa.PollMax = 20
	}
	if c.Misa.PollIntervalMs == 0 {
		c.Misa.PollIntervalMs = 2000
	}

	if c.Odoo.BaseURL == "" {
		c.Odoo.BaseURL = "http://localhost:8069"
	}
	c.Odoo.BaseURL = strings.TrimRight(c.Odoo.BaseURL, "/")
	if c.Odoo.Limit == 0 {
		c.Odoo.Limit = 80
	}
	if c.Odoo.CountLimit == 0 {
		c.Odoo.CountLimit = 10001
	}
	if c.Odoo.RequestID == 0 {
		c.Odoo.RequestID = 105
	}
	if c.Odoo.UID == 0 {
		c.Odoo.UID = 2
	}
	if c.Odoo.CompanyID == 0 {
		if len(c.Odoo.CompanyIDs) > 0 {
			c.Odoo.CompanyID = c.Odoo.CompanyIDs[0]
		} else {
			c.Odoo.CompanyID = 1
		}
	}
	if len(c.Odoo.CompanyIDs) == 0 {
		c.Odoo.CompanyIDs = []int64{c.Odoo.CompanyID}
	}
	if c.Odoo.Lang == "" {
		c.Odoo.Lang = "en_US"
	}
	if c.Odoo.TZ == "" {
		c.Odoo.TZ = "UTC"
	}

	if c.Redis.SnapshotTTLHours == 0 {
		c.Redis.SnapshotTTLHours = 24
	}
}

// Required names a configuration value that must be non-empty before any
// network call is made.
type Required struct {
	Name  string
	Value string
}

// EnsureRequired fails fast listing every missing value by name, so an
// operator sees all the gaps at once instead of one per run.
func EnsureRequired(values []Required) error {
	var missing []string
	for _, v := range values {
		if strings.TrimSpace(v.Value) == "" {
			missing = append(missing, v.Name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration values: %s; update config, .env or context.json", strings.Join(missing, ", "))
	}
	return nil
}
