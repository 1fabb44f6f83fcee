package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config contains all of the configuration options available to the client and
// server components.
type Config struct {
	// Directory in which save files (manual and automatic) are kept.
	SaveDir string `mapstructure:"save_dir"`
	// Directory containing game content passed to spawned servers.
	ResourceDir string `mapstructure:"resource_dir"`
	// Identifies the build; compared against the server's in SERVER_STATUS.
	SourceVersion string `mapstructure:"source_version"`
	// Identifies the rule settings; compared against the server's in SERVER_STATUS.
	SettingsVersion string `mapstructure:"settings_version"`

	Logging struct {
		// Full path to file to which logs will be written. Blank will write to stdout.
		LogFilePath string `mapstructure:"log_file_path"`
		// Minimum level of a log required to be written. Options: debug, info, warn, error
		LogLevel string `mapstructure:"log_level"`
	} `mapstructure:"logging"`

	Database struct {
		// Either sqlite or postgres.
		Engine string `mapstructure:"engine"`
		// Database file used by the sqlite engine.
		Filename string `mapstructure:"filename"`
		// Hostname of the Postgres database instance.
		Host string `mapstructure:"host"`
		// Port on db_host on which the Postgres instance is accepting connections.
		Port int `mapstructure:"port"`
		// Name of the database in Postgres.
		Name string `mapstructure:"name"`
		// Username and password of a user with full RW privileges to ${db_name}.
		Username string `mapstructure:"username"`
		Password string `mapstructure:"password"`
		// Set to verify-full if the Postgres instance supports SSL.
		SSLMode string `mapstructure:"sslmode"`
	} `mapstructure:"database"`

	Server struct {
		// Hostname or IP address on which the server will listen for connections.
		Hostname string `mapstructure:"hostname"`
		Port     int    `mapstructure:"port"`
		// Maximum number of concurrent connections the server will allow.
		MaxConnections int `mapstructure:"max_connections"`
		// How long a player name to id mapping stays cached.
		PlayerCacheTTL time.Duration `mapstructure:"player_cache_ttl"`
	} `mapstructure:"server"`

	Client struct {
		// Address of the server used for multiplayer games.
		ServerAddress string `mapstructure:"server_address"`
		// Never spawn a local server; assume one is already running.
		ExternalServer bool `mapstructure:"external_server"`
		// Server executable spawned for single player and hosted games.
		ServerBinary string `mapstructure:"server_binary"`
		// Bounds the initial connection attempt, not steady-state messaging.
		ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
		// Frames per second of the client loop.
		FrameRate  int    `mapstructure:"frame_rate"`
		PlayerName string `mapstructure:"player_name"`
		EmpireName string `mapstructure:"empire_name"`
	} `mapstructure:"client"`

	Autosave AutosaveConfig `mapstructure:"autosave"`

	Metrics struct {
		// Port of the prometheus /metrics endpoint. Zero disables it.
		Port int `mapstructure:"port"`
	} `mapstructure:"metrics"`

	Debugging struct {
		// Enable extra info-providing mechanisms for the server.
		Enabled bool `mapstructure:"enabled"`
		// Port on which a pprof server will be started if debug mode is enabled.
		PprofPort int `mapstructure:"pprof_port"`
		// Dump every message to the log.
		PacketLoggingEnabled bool `mapstructure:"packet_logging_enabled"`
		// Enable database-level query logging.
		DatabaseLoggingEnabled bool `mapstructure:"database_logging_enabled"`
	} `mapstructure:"debugging"`
}

// AutosaveConfig controls when autosaves are written and how many are kept.
type AutosaveConfig struct {
	SinglePlayer bool `mapstructure:"single_player"`
	Multiplayer  bool `mapstructure:"multiplayer"`
	// Autosave every Nth turn.
	Turns int `mapstructure:"turns"`
	// Number of autosave files kept per match.
	MaxAutosaves int `mapstructure:"max_autosaves"`
	// Filename prefix distinguishing autosaves from manual saves.
	Prefix string `mapstructure:"prefix"`
}

const envVarPrefix = "ORION"

// SetDefaults registers the default value of every option with v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("save_dir", "save")
	v.SetDefault("resource_dir", "default")
	v.SetDefault("source_version", "dev")
	v.SetDefault("settings_version", "1")
	v.SetDefault("logging.log_level", "info")
	v.SetDefault("database.engine", "sqlite")
	v.SetDefault("database.filename", "orion.db")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("server.hostname", "0.0.0.0")
	v.SetDefault("server.port", 12346)
	v.SetDefault("server.max_connections", 64)
	v.SetDefault("server.player_cache_ttl", 10*time.Minute)
	v.SetDefault("client.server_address", "localhost:12346")
	v.SetDefault("client.server_binary", "orion")
	v.SetDefault("client.connect_timeout", 10*time.Second)
	v.SetDefault("client.frame_rate", 60)
	v.SetDefault("client.player_name", "Player")
	v.SetDefault("client.empire_name", "Empire")
	v.SetDefault("autosave.single_player", true)
	v.SetDefault("autosave.multiplayer", false)
	v.SetDefault("autosave.turns", 1)
	v.SetDefault("autosave.max_autosaves", 10)
	v.SetDefault("autosave.prefix", "AS")
}

// LoadConfig initializes Viper with the contents of the config file under configPath.
// A missing config file is not an error; defaults and environment variables apply.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	v.AddConfigPath(configPath)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix(envVarPrefix)
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// This allows us to set nested yaml config options through environment
	// variables. For example, autosave.turns can be set using: <envVarPrefix>_AUTOSAVE_TURNS
	for _, k := range v.AllKeys() {
		envVar := strings.ReplaceAll(strings.ToUpper(k), ".", "_")
		if err := v.BindEnv(k, envVarPrefix+"_"+envVar); err != nil {
			return nil, fmt.Errorf("error binding %s to %s: %w", k, envVarPrefix+"_"+envVar, err)
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config object: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks ranges that the rest of the code relies on.
func (c *Config) Validate() error {
	if c.Autosave.Turns < 1 || c.Autosave.Turns > 50 {
		return fmt.Errorf("autosave.turns must be between 1 and 50, got %d", c.Autosave.Turns)
	}
	if c.Autosave.MaxAutosaves < 1 {
		return fmt.Errorf("autosave.max_autosaves must be at least 1, got %d", c.Autosave.MaxAutosaves)
	}
	if c.Client.ConnectTimeout <= 0 {
		return fmt.Errorf("client.connect_timeout must be positive")
	}
	return nil
}

const databaseURITemplate = "host=%s port=%d dbname=%s user=%s password=%s sslmode=%s"

// DatabaseURL returns a database URL generated from the provided config values.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		databaseURITemplate,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.Username,
		c.Database.Password,
		c.Database.SSLMode,
	)
}

// ServerAddress returns the address the server listens on.
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Hostname, c.Server.Port)
}
