package clconfig

import (
	"fmt"
	"log/syslog"
	"os"
	"strings"
	"time"

	"github.com/andskur/argon2-hashing"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

type Config struct {
	TrustedProxies  []string          `yaml:"trustedproxies"`
	TrustedPlatform string            `yaml:"trustedplatform"`
	Database        DatabaseConfig    `yaml:"database"`
	Redis           RedisConfig       `yaml:"redis"`
	User            UserConfig        `yaml:"user"`
	Production      bool              `yaml:"production"`
	Listen          ListenConfig      `yaml:"listen"`
	Logger          LoggerConfig      `yaml:"logger"`
	Tracking        TrackingConfig    `yaml:"tracking"`
	Geoip           GeoipConfig       `yaml:"geoip"`
	Alerts          AlertsConfig      `yaml:"alerts"`
	Competitors     CompetitorsConfig `yaml:"competitors"`
}

// TrackingConfig regroupe les réglages d'ingestion et de classification
type TrackingConfig struct {
	ActiveWindow   time.Duration `yaml:"active_window"`
	DefaultWindow  time.Duration `yaml:"default_window"`
	VpnThreshold   int           `yaml:"vpn_threshold"`
	ProxyThreshold int           `yaml:"proxy_threshold"`
	FraudThreshold int           `yaml:"fraud_threshold"`
	LookupTimeout  time.Duration `yaml:"lookup_timeout"`
	RateLimit      string        `yaml:"rate_limit"`
	SearchDomains  []string      `yaml:"search_domains"`
	SocialDomains  []string      `yaml:"social_domains"`
	RetentionDays  int           `yaml:"retention_days"`
	CleanupCron    string        `yaml:"cleanup_cron"`
}

type GeoipConfig struct {
	CityDb          string        `yaml:"city_db"`
	AnonymousDb     string        `yaml:"anonymous_db"`
	BreakerFailures uint32        `yaml:"breaker_failures"`
	BreakerTimeout  time.Duration `yaml:"breaker_timeout"`
}

type AlertsConfig struct {
	Schedule        string            `yaml:"schedule"`
	DispatchTimeout time.Duration     `yaml:"dispatch_timeout"`
	RedisChannel    string            `yaml:"redis_channel"`
	RedisChannels   []string          `yaml:"redis_channels"`
	Webhooks        map[string]string `yaml:"webhooks"`
}

// CompetitorsConfig règle la relecture des plages écrites par les autres instances
type CompetitorsConfig struct {
	ReloadCron string `yaml:"reload_cron"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Db       int    `yaml:"db"`
	Password string `yaml:"password"`
}

type LoggerConfig struct {
	Level  string             `yaml:"level"`
	File   LoggerFileConfig   `yaml:"file"`
	Syslog LoggerSyslogConfig `yaml:"syslog"`
}

type LoggerFileConfig struct {
	Enable     bool   `yaml:"enable"`
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"maxsize"`
	MaxBackups int    `yaml:"maxbackups"`
	MaxAge     int    `yaml:"maxage"`
	Compress   bool   `yaml:"compress"`
}

type LoggerSyslogConfig struct {
	Enable   bool            `yaml:"enable"`
	Protocol string          `yaml:"protocol"`
	Address  string          `yaml:"address"`
	Tag      string          `yaml:"tag"`
	Priority syslog.Priority `yaml:"priority"`
}

type ListenConfig struct {
	Website string `yaml:"website"`
	Metrics string `yaml:"metrics"`
}

type UserConfig struct {
	Login string `yaml:"login"`
	Pass  string `yaml:"pass"`
	Hash  string `yaml:"hash"`
}

type DatabaseConfig struct {
	Db   string `yaml:"db"`
	Path string `yaml:"path"`
	Dsn  string `yaml:"dsn"`
}

// ApplyDefaults complète les valeurs absentes du fichier
func (c *Config) ApplyDefaults() {
	t := &c.Tracking
	if t.ActiveWindow <= 0 {
		t.ActiveWindow = 5 * time.Minute
	}
	if t.DefaultWindow <= 0 {
		t.DefaultWindow = 24 * time.Hour
	}
	if t.VpnThreshold <= 0 {
		t.VpnThreshold = 75
	}
	if t.ProxyThreshold <= 0 {
		t.ProxyThreshold = 75
	}
	if t.FraudThreshold <= 0 {
		t.FraudThreshold = 80
	}
	if t.LookupTimeout <= 0 {
		t.LookupTimeout = 500 * time.Millisecond
	}
	if t.RateLimit == "" {
		t.RateLimit = "120-M"
	}
	if t.RetentionDays <= 0 {
		t.RetentionDays = 90
	}
	if t.CleanupCron == "" {
		t.CleanupCron = "0 2 * * *"
	}

	if c.Geoip.BreakerFailures == 0 {
		c.Geoip.BreakerFailures = 5
	}
	if c.Geoip.BreakerTimeout <= 0 {
		c.Geoip.BreakerTimeout = 30 * time.Second
	}

	if c.Alerts.Schedule == "" {
		c.Alerts.Schedule = "@every 1m"
	}
	if c.Alerts.DispatchTimeout <= 0 {
		c.Alerts.DispatchTimeout = 10 * time.Second
	}
	if c.Alerts.RedisChannel == "" {
		c.Alerts.RedisChannel = "haultrack:alerts"
	}

	if c.Competitors.ReloadCron == "" {
		c.Competitors.ReloadCron = "@every 1m"
	}

	if c.Database.Db == "" {
		c.Database.Db = "sqlite"
	}
	if c.Listen.Website == "" {
		c.Listen.Website = "0.0.0.0:8080"
	}
	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
}

func CreateExampleConfig(filename string) (string, error) {
	example := &Config{
		Database: DatabaseConfig{
			Db:   "sqlite",
			Path: "./haultrack.db",
		},
		User: UserConfig{
			Login: "admin",
			Pass:  "admin1234",
		},
		Production: false,
		Logger: LoggerConfig{
			Level: "info",
			File: LoggerFileConfig{
				Enable: false,
			},
			Syslog: LoggerSyslogConfig{
				Enable: false,
			},
		},
		Listen: ListenConfig{
			Website: "0.0.0.0:8080",
		},
		Tracking: TrackingConfig{
			SocialDomains: []string{"nextdoor"},
		},
		Alerts: AlertsConfig{
			RedisChannels: []string{"email", "sms", "slack"},
			Webhooks: map[string]string{
				"ops": "http://127.0.0.1:9000/hooks/haultrack",
			},
		},
	}
	example.ApplyDefaults()

	if filename == "/etc/" {
		example.Listen.Website = "127.0.0.1:8000"
		example.Listen.Metrics = "127.0.0.1:8090"
		example.Production = true
		example.Database.Path = "/var/lib/haultrack/haultrack.db"
		example.Redis.Addr = "127.0.0.1:6379"
		example.Geoip = GeoipConfig{
			CityDb:          "/var/lib/GeoIP/GeoLite2-City.mmdb",
			AnonymousDb:     "/var/lib/GeoIP/GeoIP2-Anonymous-IP.mmdb",
			BreakerFailures: 5,
			BreakerTimeout:  30 * time.Second,
		}
		example.Logger.File = LoggerFileConfig{
			Enable:     true,
			Path:       "/var/log/haultrack/haultrack.log",
			MaxSize:    100,
			MaxBackups: 30,
			MaxAge:     7,
			Compress:   true,
		}
		filename = "/etc/haultrack/config.yaml"
	}

	return filename, WriteConfigYaml(filename, example)
}

func WriteConfigYaml(filename string, conf *Config) error {
	data, err := yaml.Marshal(conf)
	if err != nil {
		return err
	}

	return os.WriteFile(filename, data, 0644)
}

// Charger la configuration YAML
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", filename, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("yaml parsing: %w", err)
	}
	config.ApplyDefaults()

	switch config.Database.Db {
	case "sqlite":
		if config.Database.Path == "" {
			return nil, fmt.Errorf("database.path cannot be empty")
		}
	case "mysql":
		if config.Database.Dsn == "" {
			return nil, fmt.Errorf("database.dsn cannot be empty")
		}
	default:
		return nil, fmt.Errorf("database.db must be sqlite or mysql, got %q", config.Database.Db)
	}
	if strings.HasPrefix(config.Listen.Website, ":") {
		config.Listen.Website = "localhost" + config.Listen.Website
	}

	return &config, nil
}

// HashPassword remplace user.pass par son hash argon2 et réécrit le fichier
func HashPassword(filename string, config *Config) error {
	if config.User.Pass == "" {
		if config.User.Hash == "" {
			return fmt.Errorf("user.pass or user.hash is required")
		}
		return nil
	}
	if len(config.User.Pass) < 8 {
		return fmt.Errorf("password must be at least 8 characters")
	}

	hash, err := argon2.GenerateFromPassword([]byte(config.User.Pass), argon2.DefaultParams)
	if err != nil {
		return err
	}
	config.User.Hash = string(hash)
	config.User.Pass = ""
	return WriteConfigYaml(filename, config)
}

func CreateExample(shouldCreateExample bool, configFile string) {
	if shouldCreateExample {
		if err := handleExampleCreation(configFile); err != nil {
			fmt.Printf("❌ %v\n", err)
		}
		os.Exit(1)
	}

	_, err := os.Stat(configFile)
	if err != nil && os.IsNotExist(err) {
		if err := handleExampleCreation(configFile); err != nil {
			fmt.Printf("❌ %v\n", err)
			os.Exit(1)
		}
	}
}

func handleExampleCreation(filename string) error {
	if filename == "" {
		filename = "haultrack.yaml"
	}
	filename, err := CreateExampleConfig(filename)
	if err != nil {
		return fmt.Errorf("example creation: %w", err)
	}

	fmt.Printf("✅ Example file created: %s\n", filename)
	fmt.Println("⚠️  user.pass is hashed with argon2 into user.hash on first start")
	return nil
}

func DisplayConfiguration(config *Config, version string) {
	logPrintf("Haultrack version %s", version)

	logPrintf("Mode Production %v", config.Production)
	logPrintf("Administrateur login %s", config.User.Login)

	logPrintf("Database")
	switch config.Database.Db {
	case "sqlite":
		logPrintf("  • Type sqlite")
		logPrintf("  • Path %s", config.Database.Path)
	case "mysql":
		logPrintf("  • Type mysql")
		logPrintf("  • DSN %s", config.Database.Dsn)
	}
	if config.Redis.Addr != "" {
		logPrintf("  • Redis %s (db %d)", config.Redis.Addr, config.Redis.Db)
	} else {
		logPrintf("  • Redis désactivé, cache et limiteur en mémoire")
	}

	logPrintf("Tracking")
	logPrintf("  • Fenêtre active %s, fenêtre par défaut %s", config.Tracking.ActiveWindow, config.Tracking.DefaultWindow)
	logPrintf("  • Seuils vpn %d / proxy %d / fraude %d", config.Tracking.VpnThreshold, config.Tracking.ProxyThreshold, config.Tracking.FraudThreshold)
	logPrintf("  • Rétention %d jours (%s)", config.Tracking.RetentionDays, config.Tracking.CleanupCron)

	if config.Geoip.CityDb != "" || config.Geoip.AnonymousDb != "" {
		logPrintf("GeoIP")
		logPrintf("  • City %s", config.Geoip.CityDb)
		logPrintf("  • Anonymous IP %s", config.Geoip.AnonymousDb)
	} else {
		logPrintf("GeoIP désactivé")
	}

	logPrintf("Alertes toutes les %s", config.Alerts.Schedule)
	for name, url := range config.Alerts.Webhooks {
		logPrintf("  • webhook %s -> %s", name, url)
	}
	for _, name := range config.Alerts.RedisChannels {
		logPrintf("  • canal redis %s", name)
	}

	logPrintf("Plages concurrentes relues %s", config.Competitors.ReloadCron)

	logPrintf("Logger en level %s", config.Logger.Level)
	if config.Logger.File.Enable {
		logPrintf("  Log en fichier activé")
		logPrintf("  • Path %s", config.Logger.File.Path)
		logPrintf("  • Max size %d", config.Logger.File.MaxSize)
		logPrintf("  • Max age %d", config.Logger.File.MaxAge)
		logPrintf("  • Max backup %d", config.Logger.File.MaxBackups)
		logPrintf("  • Compression %v", config.Logger.File.Compress)
	}
	if config.Logger.Syslog.Enable {
		logPrintf("  Log en syslog activé")
		logPrintf("  • Protocol %s", config.Logger.Syslog.Protocol)
		logPrintf("  • Address %s", config.Logger.Syslog.Address)
		logPrintf("  • Tag %s", config.Logger.Syslog.Tag)
	}
}

func logPrintf(format string, a ...any) {
	log.Info().Msg(fmt.Sprintf(format, a...))
}
