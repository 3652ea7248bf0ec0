// Package conf loads and validates the application configuration.
package conf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Settings holds the complete application configuration, populated from the
// YAML config file, environment and command line flags.
type Settings struct {
	Debug bool // true to enable debug mode

	// Runtime values, not stored in config file
	Version   string `yaml:"-"` // Version from build
	BuildDate string `yaml:"-"` // Build date from build

	Main struct {
		Name string    // instance name, used to identify this node in logs and MQTT
		Log  LogConfig // logging configuration
	}

	Database DatabaseConfig // persisted store configuration

	Camera  CameraConfig  // video source configuration
	Detect  DetectConfig  // occupancy detector configuration
	Monitor MonitorConfig // camera scheduler configuration
	Cleanup CleanupConfig // slot expiry sweep configuration

	TCP  TCPConfig  // wire adapters for downstream consumers
	HTTP HTTPConfig // control API
	MQTT MQTTConfig // optional outward notifications
}

// LogConfig defines the configuration for a log file
type LogConfig struct {
	Enabled bool   // true to enable this log
	Path    string // path to the log file
}

// DatabaseConfig selects and configures the backing store. Exactly one of
// SQLite or MySQL must be enabled.
type DatabaseConfig struct {
	SQLite struct {
		Enabled bool   // true to use sqlite
		Path    string // path to sqlite database file
	}
	MySQL struct {
		Enabled  bool   // true to use mysql
		Username string // mysql username
		Password string // mysql password
		Database string // mysql database name
		Host     string // mysql server host
		Port     string // mysql server port
	}
}

// CameraConfig holds the video source settings. The connection URI for a
// binding is assembled as UriPrefix + camera address fields + UriSuffix.
type CameraConfig struct {
	FFmpegPath     string        // path to the ffmpeg binary
	UriPrefix      string        // e.g. "rtsp://"; credentials come from the binding
	UriSuffix      string        // e.g. "/Streaming/Channels/101/"
	Transport      string        // rtsp transport, tcp or udp
	ConnectTimeout time.Duration // bound on stream open
	DrainBudget    time.Duration // time budget for drain-to-latest
}

// DetectConfig holds the occupancy detector settings.
type DetectConfig struct {
	ModelPath   string  // path to the ONNX model file
	InputSize   int     // square model input size in pixels
	Confidence  float32 // minimum detection confidence
	Overlap     float32 // IoU threshold for overlap suppression
	TargetClass int     // class index to count, 0 = person in COCO ordering
	TryGPU      bool    // attempt CUDA backend, fall back to CPU on failure
}

// MonitorConfig holds the camera scheduler settings.
type MonitorConfig struct {
	SampleWindow   time.Duration // wall-clock sampling window per camera
	StepDelay      time.Duration // pause between cameras
	EmptyListDelay time.Duration // park delay when no bindings are configured
	LastKnownTTL   time.Duration // how long a stale busy state may be reused on camera failure
	EventBuffer    int           // capacity of the cycle event channel
}

// CleanupConfig holds the expired slot sweep settings.
type CleanupConfig struct {
	Interval time.Duration // period between sweeps
}

// TCPConfig configures the downstream wire adapters.
type TCPConfig struct {
	JSON struct {
		Enabled bool   // true to serve the length-prefixed JSON adapter
		Port    string // listen port
	}
	Binary struct {
		Enabled bool   // true to serve the fixed binary record adapter
		Port    string // listen port
	}
}

// HTTPConfig configures the control API server.
type HTTPConfig struct {
	Enabled bool   // true to enable the control API
	Port    string // listen port
}

// MQTTConfig configures the optional MQTT notifier.
type MQTTConfig struct {
	Enabled  bool   // true to publish occupancy and reservation events
	Broker   string // broker URL, e.g. tcp://localhost:1883
	Topic    string // topic prefix
	Username string // broker username
	Password string // broker password
	Retain   bool   // true to retain the last message at the broker
}

// Load reads the configuration file and environment variables into Settings.
func Load() (*Settings, error) {
	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	return settings, nil
}

// initViper initializes viper with default values and reads the configuration file.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	setDefaultConfig()

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("fatal error reading config file: %w", err)
		}
		// No config file is fine, defaults plus flags apply.
	}

	return nil
}

// GetDefaultConfigPaths returns the search paths for the config file: the
// working directory first, then the user config directory, then the system
// wide /etc/roomwatch.
func GetDefaultConfigPaths() ([]string, error) {
	paths := []string{"."}
	if configDir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(configDir, "roomwatch"))
	}
	return append(paths, "/etc/roomwatch"), nil
}
