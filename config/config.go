// services/fleet/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config holds the complete configuration for the service.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	ServiceBus ServiceBusConfig `mapstructure:"service_bus"`
	MQTT       *MQTTConfig      `mapstructure:"mqtt"`
	Simulation SimulationConfig `mapstructure:"simulation"`
	Scheduling SchedulingConfig `mapstructure:"scheduling"`
	Sensors    SensorRanges     `mapstructure:"sensor_ranges"`
	Battery    BatteryConfig    `mapstructure:"battery"`
	Locations  LocationConfig   `mapstructure:"locations"`
	Stats      StatsConfig      `mapstructure:"stats"`
	Alerts     AlertConfig      `mapstructure:"alerts"`
	Retention  RetentionConfig  `mapstructure:"retention"`
	Logger     *logrus.Logger
}

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds the PostgreSQL connection settings.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// RedisConfig holds the Redis connection settings.
type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
}

// ServiceBusConfig holds the Azure Service Bus settings.
type ServiceBusConfig struct {
	ConnectionString string        `mapstructure:"connection_string"`
	QueueName        string        `mapstructure:"queue_name"`
	MaxRetries       int           `mapstructure:"max_retries"`
	RetryDelay       time.Duration `mapstructure:"retry_delay"`
}

// MQTTConfig holds MQTT broker settings for publishing fleet events.
type MQTTConfig struct {
	BrokerURL         string        `mapstructure:"broker_url"`
	ClientID          string        `mapstructure:"client_id"`
	Username          string        `mapstructure:"username"`
	Password          string        `mapstructure:"password"`
	QoS               byte          `mapstructure:"qos"`
	TopicPrefix       string        `mapstructure:"topic_prefix"`
	KeepAlive         time.Duration `mapstructure:"keep_alive"`
	ConnectTimeout    time.Duration `mapstructure:"connect_timeout"`
	MaxReconnectDelay time.Duration `mapstructure:"max_reconnect_delay"`
}

// SimulationConfig controls the synthetic fleet.
type SimulationConfig struct {
	RobotCount         int   `mapstructure:"robot_count"`
	DataPointsMin      int   `mapstructure:"data_points_min"`
	DataPointsMax      int   `mapstructure:"data_points_max"`
	MissionDurationMin int   `mapstructure:"mission_duration_min"` // minutes
	MissionDurationMax int   `mapstructure:"mission_duration_max"` // minutes
	TimeGridMinutes    int   `mapstructure:"time_grid_minutes"`
	StrictMode         bool  `mapstructure:"strict_mode"`
	NormalizedStorage  bool  `mapstructure:"normalized_storage"`
	RandomSeed         int64 `mapstructure:"random_seed"` // 0 = unseeded
}

// SchedulingConfig controls the per-robot cycle interval.
type SchedulingConfig struct {
	MissionIntervalMinutes int `mapstructure:"mission_interval_minutes"`
}

// SensorRanges holds [min, max] pairs for every generated reading.
type SensorRanges struct {
	PosX              []int     `mapstructure:"pos_x"`
	PosY              []int     `mapstructure:"pos_y"`
	Theta             []int     `mapstructure:"theta"`
	LocalizationScore []float64 `mapstructure:"localization_score"`
	TiltX             []float64 `mapstructure:"tilt_x"`
	TiltY             []float64 `mapstructure:"tilt_y"`
	NH3               []float64 `mapstructure:"nh3"`
	H2S               []float64 `mapstructure:"h2s"`
	VOCs              []float64 `mapstructure:"vocs"`
	F2                []float64 `mapstructure:"f2"`
	HF                []float64 `mapstructure:"hf"`
	Temperature       []float64 `mapstructure:"temperature"`
	Humidity          []float64 `mapstructure:"humidity"`
	Illuminance       []float64 `mapstructure:"illuminance"`
	Noise             []float64 `mapstructure:"noise"`
}

// BatteryConfig holds the battery simulation ranges, in percent.
type BatteryConfig struct {
	StartMin int `mapstructure:"start_min"`
	StartMax int `mapstructure:"start_max"`
	DrainMin int `mapstructure:"drain_min"`
	DrainMax int `mapstructure:"drain_max"`
}

// LocationConfig holds the site layout used for mission locations.
type LocationConfig struct {
	Sites  []string `mapstructure:"sites"`
	Lines  []string `mapstructure:"lines"`
	Floors []string `mapstructure:"floors"`
	Area   string   `mapstructure:"area"`
}

// StatsConfig controls the aggregation layer.
type StatsConfig struct {
	CacheTTL        time.Duration `mapstructure:"cache_ttl"`
	HourlyTarget    int           `mapstructure:"hourly_target"`
	QueryTimeout    time.Duration `mapstructure:"query_timeout"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

// AlertConfig holds the alert evaluation thresholds.
type AlertConfig struct {
	LowBatteryThreshold      int           `mapstructure:"low_battery_threshold"`
	CriticalBatteryThreshold int           `mapstructure:"critical_battery_threshold"`
	ConnectionStaleAfter     time.Duration `mapstructure:"connection_stale_after"`
	MaintenanceGrace         time.Duration `mapstructure:"maintenance_grace"`
}

// RetentionConfig controls archival and cleanup of historical data.
type RetentionConfig struct {
	Enabled     bool `mapstructure:"enabled"`
	MaxAgeDays  int  `mapstructure:"max_age_days"`
	ArchiveHour int  `mapstructure:"archive_hour"`
}

// Load reads configuration from a file and environment variables.
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("FLEET")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; ignore error if using env vars
		} else {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "15s")
	viper.SetDefault("server.write_timeout", "15s")

	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 10)
	viper.SetDefault("database.conn_max_lifetime", "5m")
	viper.SetDefault("database.conn_max_idle_time", "10m")

	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.pool_size", 10)
	viper.SetDefault("redis.min_idle_conns", 5)
	viper.SetDefault("redis.dial_timeout", "5s")

	viper.SetDefault("service_bus.max_retries", 3)
	viper.SetDefault("service_bus.retry_delay", "1s")

	viper.SetDefault("mqtt.qos", 1)
	viper.SetDefault("mqtt.topic_prefix", "fleet")
	viper.SetDefault("mqtt.keep_alive", "30s")
	viper.SetDefault("mqtt.connect_timeout", "10s")
	viper.SetDefault("mqtt.max_reconnect_delay", "2m")

	viper.SetDefault("simulation.robot_count", 30)
	viper.SetDefault("simulation.data_points_min", 50)
	viper.SetDefault("simulation.data_points_max", 100)
	viper.SetDefault("simulation.mission_duration_min", 4)
	viper.SetDefault("simulation.mission_duration_max", 10)
	viper.SetDefault("simulation.time_grid_minutes", 10)
	viper.SetDefault("simulation.strict_mode", false)
	viper.SetDefault("simulation.normalized_storage", false)
	viper.SetDefault("simulation.random_seed", 0)

	viper.SetDefault("scheduling.mission_interval_minutes", 10)

	viper.SetDefault("sensor_ranges.pos_x", []int{0, 50000})
	viper.SetDefault("sensor_ranges.pos_y", []int{0, 30000})
	viper.SetDefault("sensor_ranges.theta", []int{0, 360})
	viper.SetDefault("sensor_ranges.localization_score", []float64{85, 100})
	viper.SetDefault("sensor_ranges.tilt_x", []float64{-5, 5})
	viper.SetDefault("sensor_ranges.tilt_y", []float64{-5, 5})
	viper.SetDefault("sensor_ranges.nh3", []float64{0, 25})
	viper.SetDefault("sensor_ranges.h2s", []float64{0, 10})
	viper.SetDefault("sensor_ranges.vocs", []float64{0, 3})
	viper.SetDefault("sensor_ranges.f2", []float64{0, 1})
	viper.SetDefault("sensor_ranges.hf", []float64{0, 3})
	viper.SetDefault("sensor_ranges.temperature", []float64{18, 28})
	viper.SetDefault("sensor_ranges.humidity", []float64{30, 70})
	viper.SetDefault("sensor_ranges.illuminance", []float64{150, 1200})
	viper.SetDefault("sensor_ranges.noise", []float64{40, 80})

	viper.SetDefault("battery.start_min", 60)
	viper.SetDefault("battery.start_max", 100)
	viper.SetDefault("battery.drain_min", 5)
	viper.SetDefault("battery.drain_max", 15)

	viper.SetDefault("locations.sites", []string{"A", "B", "C"})
	viper.SetDefault("locations.lines", []string{"L1", "L2", "L3"})
	viper.SetDefault("locations.floors", []string{"1F", "2F", "4F"})
	viper.SetDefault("locations.area", "FAB")

	viper.SetDefault("stats.cache_ttl", "5s")
	viper.SetDefault("stats.hourly_target", 6)
	viper.SetDefault("stats.query_timeout", "10s")
	viper.SetDefault("stats.refresh_interval", "30s")

	viper.SetDefault("alerts.low_battery_threshold", 25)
	viper.SetDefault("alerts.critical_battery_threshold", 15)
	viper.SetDefault("alerts.connection_stale_after", "1h")
	viper.SetDefault("alerts.maintenance_grace", "30m")

	viper.SetDefault("retention.enabled", true)
	viper.SetDefault("retention.max_age_days", 30)
	viper.SetDefault("retention.archive_hour", 0)
}

// Validate checks the configuration for values the simulator cannot run with.
func (c *Config) Validate() error {
	if c.Simulation.RobotCount <= 0 {
		return fmt.Errorf("simulation.robot_count must be positive, got %d", c.Simulation.RobotCount)
	}
	if c.Simulation.DataPointsMin <= 0 || c.Simulation.DataPointsMax < c.Simulation.DataPointsMin {
		return fmt.Errorf("invalid data point count range [%d, %d]",
			c.Simulation.DataPointsMin, c.Simulation.DataPointsMax)
	}
	if c.Simulation.MissionDurationMin <= 0 || c.Simulation.MissionDurationMax < c.Simulation.MissionDurationMin {
		return fmt.Errorf("invalid mission duration range [%d, %d]",
			c.Simulation.MissionDurationMin, c.Simulation.MissionDurationMax)
	}
	if c.Simulation.TimeGridMinutes <= 0 {
		return fmt.Errorf("simulation.time_grid_minutes must be positive, got %d", c.Simulation.TimeGridMinutes)
	}
	if c.Scheduling.MissionIntervalMinutes <= 0 {
		return fmt.Errorf("scheduling.mission_interval_minutes must be positive, got %d",
			c.Scheduling.MissionIntervalMinutes)
	}
	if c.Battery.StartMin < 0 || c.Battery.StartMax > 100 || c.Battery.StartMax < c.Battery.StartMin {
		return fmt.Errorf("invalid battery start range [%d, %d]", c.Battery.StartMin, c.Battery.StartMax)
	}
	if c.Battery.DrainMin < 0 || c.Battery.DrainMax < c.Battery.DrainMin {
		return fmt.Errorf("invalid battery drain range [%d, %d]", c.Battery.DrainMin, c.Battery.DrainMax)
	}
	if c.Stats.CacheTTL <= 0 {
		return fmt.Errorf("stats.cache_ttl must be positive, got %s", c.Stats.CacheTTL)
	}
	if c.Alerts.LowBatteryThreshold <= 0 || c.Alerts.LowBatteryThreshold > 100 {
		return fmt.Errorf("alerts.low_battery_threshold out of range: %d", c.Alerts.LowBatteryThreshold)
	}
	if c.Alerts.ConnectionStaleAfter <= 0 {
		return fmt.Errorf("alerts.connection_stale_after must be positive, got %s", c.Alerts.ConnectionStaleAfter)
	}
	if c.Retention.MaxAgeDays <= 0 {
		return fmt.Errorf("retention.max_age_days must be positive, got %d", c.Retention.MaxAgeDays)
	}
	if c.Retention.ArchiveHour < 0 || c.Retention.ArchiveHour > 23 {
		return fmt.Errorf("retention.archive_hour out of range: %d", c.Retention.ArchiveHour)
	}

	for name, r := range map[string][]int{
		"pos_x": c.Sensors.PosX,
		"pos_y": c.Sensors.PosY,
		"theta": c.Sensors.Theta,
	} {
		if len(r) != 2 || r[1] < r[0] {
			return fmt.Errorf("sensor_ranges.%s must be [min, max], got %v", name, r)
		}
	}
	for name, r := range map[string][]float64{
		"localization_score": c.Sensors.LocalizationScore,
		"tilt_x":             c.Sensors.TiltX,
		"tilt_y":             c.Sensors.TiltY,
		"nh3":                c.Sensors.NH3,
		"h2s":                c.Sensors.H2S,
		"vocs":               c.Sensors.VOCs,
		"f2":                 c.Sensors.F2,
		"hf":                 c.Sensors.HF,
		"temperature":        c.Sensors.Temperature,
		"humidity":           c.Sensors.Humidity,
		"illuminance":        c.Sensors.Illuminance,
		"noise":              c.Sensors.Noise,
	} {
		if len(r) != 2 || r[1] < r[0] {
			return fmt.Errorf("sensor_ranges.%s must be [min, max], got %v", name, r)
		}
	}

	if len(c.Locations.Sites) == 0 || len(c.Locations.Lines) == 0 || len(c.Locations.Floors) == 0 {
		return fmt.Errorf("locations must define at least one site, line and floor")
	}

	return nil
}
