// Package config loads arclient.cfg.json through viper and exposes typed
// views of its sections.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// FileName is the config file looked up in the config directory.
const FileName = "arclient.cfg.json"

// ClientConfig is the identity reported to the layer service.
type ClientConfig struct {
	Variant            string `json:"variant" mapstructure:"variant"`
	OS                 string `json:"os" mapstructure:"os"`
	Bundle             string `json:"bundle" mapstructure:"bundle"`
	Build              string `json:"build" mapstructure:"build"`
	UserID             string `json:"userId" mapstructure:"userId"`
	DeviceIDFile       string `json:"deviceIdFile" mapstructure:"deviceIdFile"`
	InsecureSkipVerify bool   `json:"insecureSkipVerify" mapstructure:"insecureSkipVerify"`
}

// DirectoryConfig locates the layer directory the loop starts with.
type DirectoryConfig struct {
	URL           string `json:"url" mapstructure:"url"`
	Layer         string `json:"layer" mapstructure:"layer"`
	IconBundleURL string `json:"iconBundleUrl" mapstructure:"iconBundleUrl"`
}

// SyncConfig holds the poll intervals of the sync loop.
type SyncConfig struct {
	PositionPoll time.Duration `json:"positionPoll" mapstructure:"positionPoll"`
	RefreshPoll  time.Duration `json:"refreshPoll" mapstructure:"refreshPoll"`
	EventBuffer  int           `json:"eventBuffer" mapstructure:"eventBuffer"`
	// Latitude and Longitude seed the position source until a device
	// position arrives.
	Latitude  float64 `json:"latitude" mapstructure:"latitude"`
	Longitude float64 `json:"longitude" mapstructure:"longitude"`
}

// HTTPConfig holds the wait budgets of the fetch pipeline. MaxWait values
// count PollInterval periods.
type HTTPConfig struct {
	PollInterval  time.Duration `json:"pollInterval" mapstructure:"pollInterval"`
	LayerMaxWait  int           `json:"layerMaxWait" mapstructure:"layerMaxWait"`
	BundleMaxWait int           `json:"bundleMaxWait" mapstructure:"bundleMaxWait"`
	ImageMaxWait  int           `json:"imageMaxWait" mapstructure:"imageMaxWait"`
	LayerTimeout  time.Duration `json:"layerTimeout" mapstructure:"layerTimeout"`
	BundleTimeout time.Duration `json:"bundleTimeout" mapstructure:"bundleTimeout"`
}

// JournalConfig selects the cycle journal backend.
type JournalConfig struct {
	Type         string        `json:"type" mapstructure:"type"`
	SQLitePath   string        `json:"sqlitePath" mapstructure:"sqlitePath"`
	DumpPath     string        `json:"dumpPath" mapstructure:"dumpPath"`
	DumpInterval time.Duration `json:"dumpInterval" mapstructure:"dumpInterval"`
}

// DBConfig holds the postgres connection settings.
type DBConfig struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	Database string `json:"database" mapstructure:"database"`
}

// InfluxConfig holds the InfluxDB connection settings.
type InfluxConfig struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Protocol string `json:"protocol" mapstructure:"protocol"`
	Token    string `json:"token" mapstructure:"token"`
	Org      string `json:"org" mapstructure:"org"`
	Bucket   string `json:"bucket" mapstructure:"bucket"`
}

// GraylogConfig enables GELF log shipping.
type GraylogConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Address string `json:"address" mapstructure:"address"`
}

// OTelConfig holds OpenTelemetry settings.
type OTelConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName  string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	Endpoint     string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure     bool          `json:"insecure" mapstructure:"insecure"`
}

// SceneLinkConfig points at an external renderer.
type SceneLinkConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	URL     string `json:"url" mapstructure:"url"`
	Secret  string `json:"secret" mapstructure:"secret"`
}

// MonitorConfig controls the status file.
type MonitorConfig struct {
	Enabled    bool          `json:"enabled" mapstructure:"enabled"`
	StatusFile string        `json:"statusFile" mapstructure:"statusFile"`
	Interval   time.Duration `json:"interval" mapstructure:"interval"`
}

func setDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./arlogs")

	viper.SetDefault("client.variant", "arpoise")
	viper.SetDefault("client.os", "Android")
	viper.SetDefault("client.bundle", "191008")
	viper.SetDefault("client.build", "rel")
	viper.SetDefault("client.userId", "")
	viper.SetDefault("client.deviceIdFile", "./arclient.device")
	viper.SetDefault("client.insecureSkipVerify", false)

	viper.SetDefault("directory.url", "http://www.arpoise.com/cgi-bin/ArpoiseDirectory.cgi")
	viper.SetDefault("directory.layer", "Arpoise-Directory")
	viper.SetDefault("directory.iconBundleUrl", "www.arpoise.com/AB/arpoiseicons.ace")

	viper.SetDefault("sync.positionPoll", "10ms")
	viper.SetDefault("sync.refreshPoll", "100ms")
	viper.SetDefault("sync.eventBuffer", 64)
	viper.SetDefault("sync.latitude", 0.0)
	viper.SetDefault("sync.longitude", 0.0)

	viper.SetDefault("http.pollInterval", "10ms")
	viper.SetDefault("http.layerMaxWait", 3000)
	viper.SetDefault("http.bundleMaxWait", 6000)
	viper.SetDefault("http.imageMaxWait", 3000)
	viper.SetDefault("http.layerTimeout", "30s")
	viper.SetDefault("http.bundleTimeout", "60s")

	viper.SetDefault("journal.type", "none")
	viper.SetDefault("journal.sqlitePath", "")
	viper.SetDefault("journal.dumpPath", "")
	viper.SetDefault("journal.dumpInterval", "3m")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "arclient")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "")
	viper.SetDefault("influx.org", "arpoise")
	viper.SetDefault("influx.bucket", "arclient")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "arclient")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetDefault("sceneLink.enabled", false)
	viper.SetDefault("sceneLink.url", "")
	viper.SetDefault("sceneLink.secret", "")

	viper.SetDefault("monitor.enabled", false)
	viper.SetDefault("monitor.statusFile", "./arclient.status.json")
	viper.SetDefault("monitor.interval", "1s")
}

// Load reads the config file from configDir and sets default values.
// A missing file is an error; use LoadDefaults to run without one.
func Load(configDir string) error {
	setDefaults()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	return nil
}

// LoadDefaults sets the default values only.
func LoadDefaults() {
	setDefaults()
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// Set overrides a value, typically from a command line flag.
func Set(key string, value any) {
	viper.Set(key, value)
}

type settings struct {
	Client    ClientConfig    `mapstructure:"client"`
	Directory DirectoryConfig `mapstructure:"directory"`
	Sync      SyncConfig      `mapstructure:"sync"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Journal   JournalConfig   `mapstructure:"journal"`
	DB        DBConfig        `mapstructure:"db"`
	Influx    InfluxConfig    `mapstructure:"influx"`
	Graylog   GraylogConfig   `mapstructure:"graylog"`
	OTel      OTelConfig      `mapstructure:"otel"`
	SceneLink SceneLinkConfig `mapstructure:"scenelink"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
}

// all decodes every section at once. viper.Unmarshal merges defaults key
// by key, so a partially configured section keeps its other defaults.
func all() settings {
	var s settings
	_ = viper.Unmarshal(&s)
	return s
}

func GetClientConfig() ClientConfig       { return all().Client }
func GetDirectoryConfig() DirectoryConfig { return all().Directory }
func GetSyncConfig() SyncConfig           { return all().Sync }
func GetHTTPConfig() HTTPConfig           { return all().HTTP }
func GetJournalConfig() JournalConfig     { return all().Journal }
func GetDBConfig() DBConfig               { return all().DB }
func GetInfluxConfig() InfluxConfig       { return all().Influx }
func GetGraylogConfig() GraylogConfig     { return all().Graylog }
func GetOTelConfig() OTelConfig           { return all().OTel }
func GetSceneLinkConfig() SceneLinkConfig { return all().SceneLink }
func GetMonitorConfig() MonitorConfig     { return all().Monitor }
