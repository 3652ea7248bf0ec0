package conf

import (
	"fmt"
	"strconv"
)

// ValidateSettings checks the loaded configuration for values that would make
// the service misbehave at runtime. It returns the first problem found.
func ValidateSettings(settings *Settings) error {
	if settings.Database.SQLite.Enabled && settings.Database.MySQL.Enabled {
		return fmt.Errorf("only one database backend may be enabled, both sqlite and mysql are")
	}
	if !settings.Database.SQLite.Enabled && !settings.Database.MySQL.Enabled {
		return fmt.Errorf("no database backend enabled")
	}
	if settings.Database.SQLite.Enabled && settings.Database.SQLite.Path == "" {
		return fmt.Errorf("database.sqlite.path must not be empty")
	}

	if settings.Camera.Transport != "tcp" && settings.Camera.Transport != "udp" {
		return fmt.Errorf("camera.transport must be tcp or udp, got %q", settings.Camera.Transport)
	}
	if settings.Camera.ConnectTimeout <= 0 {
		return fmt.Errorf("camera.connecttimeout must be positive")
	}
	if settings.Camera.DrainBudget <= 0 {
		return fmt.Errorf("camera.drainbudget must be positive")
	}

	if settings.Detect.InputSize <= 0 {
		return fmt.Errorf("detect.inputsize must be positive")
	}
	if settings.Detect.Confidence <= 0 || settings.Detect.Confidence >= 1 {
		return fmt.Errorf("detect.confidence must be in (0, 1), got %v", settings.Detect.Confidence)
	}
	if settings.Detect.Overlap <= 0 || settings.Detect.Overlap >= 1 {
		return fmt.Errorf("detect.overlap must be in (0, 1), got %v", settings.Detect.Overlap)
	}

	if settings.Monitor.SampleWindow <= 0 {
		return fmt.Errorf("monitor.samplewindow must be positive")
	}
	if settings.Monitor.EventBuffer <= 0 {
		return fmt.Errorf("monitor.eventbuffer must be positive")
	}

	if settings.Cleanup.Interval <= 0 {
		return fmt.Errorf("cleanup.interval must be positive")
	}

	for name, port := range map[string]string{
		"tcp.json.port":   settings.TCP.JSON.Port,
		"tcp.binary.port": settings.TCP.Binary.Port,
		"http.port":       settings.HTTP.Port,
	} {
		if port == "" {
			continue
		}
		p, err := strconv.Atoi(port)
		if err != nil || p < 1 || p > 65535 {
			return fmt.Errorf("%s is not a valid port: %q", name, port)
		}
	}

	if settings.MQTT.Enabled && settings.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker must be set when mqtt is enabled")
	}

	return nil
}
