// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "roomwatch")
	viper.SetDefault("main.log.enabled", true)
	viper.SetDefault("main.log.path", "logs/roomwatch.log")

	viper.SetDefault("database.sqlite.enabled", true)
	viper.SetDefault("database.sqlite.path", "roomwatch.db")
	viper.SetDefault("database.mysql.enabled", false)
	viper.SetDefault("database.mysql.username", "roomwatch")
	viper.SetDefault("database.mysql.password", "")
	viper.SetDefault("database.mysql.database", "roomwatch")
	viper.SetDefault("database.mysql.host", "localhost")
	viper.SetDefault("database.mysql.port", "3306")

	viper.SetDefault("camera.ffmpegpath", "ffmpeg")
	viper.SetDefault("camera.uriprefix", "rtsp://")
	viper.SetDefault("camera.urisuffix", "")
	viper.SetDefault("camera.transport", "tcp")
	viper.SetDefault("camera.connecttimeout", 3*time.Second)
	viper.SetDefault("camera.drainbudget", 6*time.Millisecond)

	viper.SetDefault("detect.modelpath", "models/person.onnx")
	viper.SetDefault("detect.inputsize", 640)
	viper.SetDefault("detect.confidence", 0.45)
	viper.SetDefault("detect.overlap", 0.50)
	viper.SetDefault("detect.targetclass", 0)
	viper.SetDefault("detect.trygpu", true)

	viper.SetDefault("monitor.samplewindow", 5*time.Second)
	viper.SetDefault("monitor.stepdelay", 3*time.Second)
	viper.SetDefault("monitor.emptylistdelay", 5*time.Second)
	viper.SetDefault("monitor.lastknownttl", 10*time.Minute)
	viper.SetDefault("monitor.eventbuffer", 64)

	viper.SetDefault("cleanup.interval", 5*time.Minute)

	viper.SetDefault("tcp.json.enabled", true)
	viper.SetDefault("tcp.json.port", "5600")
	viper.SetDefault("tcp.binary.enabled", false)
	viper.SetDefault("tcp.binary.port", "5601")

	viper.SetDefault("http.enabled", true)
	viper.SetDefault("http.port", "8090")

	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("mqtt.topic", "roomwatch")
	viper.SetDefault("mqtt.username", "")
	viper.SetDefault("mqtt.password", "")
	viper.SetDefault("mqtt.retain", false)
}
