// Package detect counts people in video frames with an ONNX object detection
// model run through the OpenCV DNN module.
package detect

import (
	"image"
	"log/slog"
	"sync"

	"roomwatch/internal/conf"
	"roomwatch/internal/errors"
	"roomwatch/internal/logging"
	"roomwatch/internal/videosource"

	"gocv.io/x/gocv"
)

var detectLogger *slog.Logger

func init() {
	detectLogger = logging.ForService("detect")
	if detectLogger == nil {
		detectLogger = slog.Default().With("service", "detect")
	}
}

// Detector counts people in a frame.
type Detector interface {
	CountPeople(frame *videosource.Frame) (int, error)
	Close() error
}

// ONNXDetector implements Detector with a YOLO-family ONNX model. The network
// is not safe for concurrent forward passes, so calls are serialized.
type ONNXDetector struct {
	mu  sync.Mutex
	net gocv.Net
	cfg *conf.DetectConfig
	gpu bool
}

// New loads the model and prepares the inference backend. When TryGPU is set
// the CUDA backend is attempted first; any failure falls back to the default
// CPU backend rather than erroring.
func New(cfg *conf.DetectConfig) (*ONNXDetector, error) {
	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		return nil, errors.Newf("failed to load detection model").
			Component("detect").
			Category(errors.CategoryModelInit).
			Context("model_path", cfg.ModelPath).
			Build()
	}

	d := &ONNXDetector{net: net, cfg: cfg}
	if cfg.TryGPU {
		if err := net.SetPreferableBackend(gocv.NetBackendCUDA); err == nil {
			if err := net.SetPreferableTarget(gocv.NetTargetCUDA); err == nil {
				d.gpu = true
			}
		}
		if !d.gpu {
			// Reset to defaults; a half-configured CUDA backend would
			// fail at the first forward pass.
			_ = net.SetPreferableBackend(gocv.NetBackendDefault)
			_ = net.SetPreferableTarget(gocv.NetTargetCPU)
			detectLogger.Warn("CUDA backend unavailable, using CPU",
				"model_path", cfg.ModelPath)
		}
	}

	detectLogger.Info("detection model loaded",
		"model_path", cfg.ModelPath,
		"input_size", cfg.InputSize,
		"gpu", d.gpu)
	return d, nil
}

// CountPeople runs one forward pass and returns the number of people left
// after confidence filtering and overlap suppression. An empty frame counts
// as zero people without touching the network.
func (d *ONNXDetector) CountPeople(frame *videosource.Frame) (int, error) {
	if frame == nil || len(frame.Pixels) == 0 {
		return 0, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	src, err := gocv.NewMatFromBytes(frame.Height, frame.Width, gocv.MatTypeCV8UC3, frame.Pixels)
	if err != nil {
		return 0, errors.New(err).
			Component("detect").
			Category(errors.CategoryDetection).
			Build()
	}
	defer src.Close()

	input := d.cfg.InputSize
	lb := fitLetterbox(frame.Width, frame.Height, input)

	scaledW := int(lb.scale * float32(frame.Width))
	scaledH := int(lb.scale * float32(frame.Height))
	scaled := gocv.NewMat()
	defer scaled.Close()
	gocv.Resize(src, &scaled, image.Pt(scaledW, scaledH), 0, 0, gocv.InterpolationLinear)

	top := int(lb.padY)
	left := int(lb.padX)
	padded := gocv.NewMat()
	defer padded.Close()
	gocv.CopyMakeBorder(scaled, &padded,
		top, input-scaledH-top, left, input-scaledW-left,
		gocv.BorderConstant, color114())

	blob := gocv.BlobFromImage(padded, 1.0/255.0, image.Pt(input, input),
		gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer output.Close()

	dims := output.Size()
	if len(dims) != 3 {
		return 0, errors.Newf("unexpected model output rank %d", len(dims)).
			Component("detect").
			Category(errors.CategoryDetection).
			Build()
	}
	channels, anchors := dims[1], dims[2]
	data, err := output.DataPtrFloat32()
	if err != nil {
		return 0, errors.New(err).
			Component("detect").
			Category(errors.CategoryDetection).
			Build()
	}

	dets := decodeOutput(data, channels-4, anchors, d.cfg.Confidence, d.cfg.TargetClass)
	dets = suppressOverlaps(dets, d.cfg.Overlap)
	for i := range dets {
		lb.toSource(&dets[i])
	}
	return len(dets), nil
}

// Close releases the network.
func (d *ONNXDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}

// color114 is the conventional letterbox fill, mid-gray.
func color114() gocv.Scalar {
	return gocv.NewScalar(114, 114, 114, 0)
}

var _ Detector = (*ONNXDetector)(nil)
