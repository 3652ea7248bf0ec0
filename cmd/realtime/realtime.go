// Package realtime starts the full service.
package realtime

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"roomwatch/internal/conf"
	"roomwatch/internal/runtime"
)

// Command creates the realtime monitoring and booking command.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "realtime",
		Short: "Run the camera monitor and booking service",
		Long: "Start the round-robin camera occupancy loop, the reservation " +
			"adapters, the cleanup worker and the control API.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runtime.Run(cmd.Context(), settings)
		},
	}
	setupFlags(cmd, settings)
	return cmd
}

func setupFlags(cmd *cobra.Command, settings *conf.Settings) {
	cmd.Flags().StringVar(&settings.Detect.ModelPath, "model", viper.GetString("detect.modelpath"), "Path to the ONNX detection model")
	cmd.Flags().BoolVar(&settings.Detect.TryGPU, "gpu", viper.GetBool("detect.trygpu"), "Attempt CUDA inference, fall back to CPU")
	cmd.Flags().StringVar(&settings.Camera.FFmpegPath, "ffmpeg", viper.GetString("camera.ffmpegpath"), "Path to the ffmpeg binary")
	cmd.Flags().DurationVar(&settings.Monitor.SampleWindow, "window", viper.GetDuration("monitor.samplewindow"), "Sampling window per camera")
	cmd.Flags().StringVar(&settings.HTTP.Port, "port", viper.GetString("http.port"), "Control API port")
	_ = viper.BindPFlags(cmd.Flags())
}
