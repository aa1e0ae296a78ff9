// Package config loads the settings of the video backend and the desktop
// player.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

// DefaultPort is used when PORT is unset or is not a valid port number.
const DefaultPort = 3000

// Backend holds the video backend settings, read from the environment.
type Backend struct {
	MediaStoragePath  string        `envconfig:"MEDIA_STORAGE_PATH" default:"./media_files"`
	RawPort           string        `envconfig:"PORT" default:"3000"`
	ProcessingWorkers int           `envconfig:"PROCESSING_WORKERS" default:"2"`
	ProcessingQueue   int           `envconfig:"PROCESSING_QUEUE_SIZE" default:"16"`
	ProcessingTimeout time.Duration `envconfig:"PROCESSING_TIMEOUT" default:"10m"`
	RawMaxUploadSize  string        `envconfig:"MAX_UPLOAD_SIZE" default:"2GB"`
	LogLevel          string        `envconfig:"LOG_LEVEL" default:"info"`

	// Port and MaxUploadSize are parsed from their raw forms by LoadBackend.
	Port          uint16 `ignored:"true"`
	MaxUploadSize int64  `ignored:"true"`
}

// LoadBackend reads the backend settings from the environment, after loading
// a .env file from the working directory if there is one.
func LoadBackend() (Backend, error) {
	_ = godotenv.Load()

	var cfg Backend
	if err := envconfig.Process("", &cfg); err != nil {
		return Backend{}, err
	}

	cfg.Port = parsePort(cfg.RawPort)

	size, err := humanize.ParseBytes(cfg.RawMaxUploadSize)
	if err != nil {
		return Backend{}, fmt.Errorf("parsing MAX_UPLOAD_SIZE: %w", err)
	}
	cfg.MaxUploadSize = int64(size)

	if cfg.ProcessingWorkers < 1 {
		return Backend{}, errors.New("PROCESSING_WORKERS must be at least 1")
	}
	if cfg.ProcessingQueue < 0 {
		return Backend{}, errors.New("PROCESSING_QUEUE_SIZE must not be negative")
	}
	return cfg, nil
}

// parsePort falls back to DefaultPort for values that are not port numbers.
func parsePort(s string) uint16 {
	port, err := strconv.ParseUint(strings.TrimSpace(s), 10, 16)
	if err != nil {
		return DefaultPort
	}
	return uint16(port)
}

// Addr returns the listen address for the backend on all interfaces.
func (b Backend) Addr() string {
	return fmt.Sprintf("0.0.0.0:%d", b.Port)
}

// Player holds the desktop player settings.
type Player struct {
	Volume       float64       `mapstructure:"volume"`
	SeekStep     time.Duration `mapstructure:"seek_step"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	ControlAddr  string        `mapstructure:"control_addr"`
	LogLevel     string        `mapstructure:"log_level"`
}

// NewPlayerViper returns a viper instance with the player defaults, searching
// for config.yaml in the augplayer directory of the XDG config home and
// reading AUGPLAYER_ environment variables. Callers may bind command line flags
// before passing it to LoadPlayer.
func NewPlayerViper() *viper.Viper {
	v := viper.New()

	v.SetDefault("volume", 0.5)
	v.SetDefault("seek_step", 10*time.Second)
	v.SetDefault("poll_interval", time.Second)
	v.SetDefault("control_addr", "")
	v.SetDefault("log_level", "info")

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		if home, err := os.UserHomeDir(); err == nil {
			configHome = filepath.Join(home, ".config")
		}
	}
	if configHome != "" {
		v.AddConfigPath(filepath.Join(configHome, "augplayer"))
	}

	v.SetEnvPrefix("AUGPLAYER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// LoadPlayer reads the player settings from v. A missing config file is not
// an error.
func LoadPlayer(v *viper.Viper) (Player, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Player{}, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Player
	if err := v.Unmarshal(&cfg); err != nil {
		return Player{}, fmt.Errorf("parsing config: %w", err)
	}

	switch {
	case cfg.Volume < 0 || cfg.Volume > 1:
		return Player{}, fmt.Errorf("volume %v is outside of the range [0, 1]", cfg.Volume)
	case cfg.SeekStep <= 0:
		return Player{}, errors.New("seek_step must be positive")
	case cfg.PollInterval <= 0:
		return Player{}, errors.New("poll_interval must be positive")
	}
	return cfg, nil
}
