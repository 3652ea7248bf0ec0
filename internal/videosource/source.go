// source.go: ffmpeg child process decoding one RTSP feed to MJPEG on stdout.
package videosource

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"roomwatch/internal/conf"
	"roomwatch/internal/errors"
	"roomwatch/internal/logging"
)

var sourceLogger *slog.Logger

func init() {
	sourceLogger = logging.ForService("videosource")
	if sourceLogger == nil {
		sourceLogger = slog.Default().With("service", "videosource")
	}
}

// ErrStreamBroken is returned by ReadLatest once the ffmpeg pipe has ended.
// The source is unusable afterwards; the caller must Close and reopen.
var ErrStreamBroken = errors.Newf("video stream broken").
	Component("videosource").
	Category(errors.CategoryConnection).
	Build()

// maxDrainFrames bounds how many buffered frames ReadLatest discards per call
// even when the drain budget has not elapsed.
const maxDrainFrames = 12

// frameQueueSize is the raw record buffer between the pipe reader and
// ReadLatest. When full the oldest record is dropped.
const frameQueueSize = 8

// Source produces decoded frames from one camera feed.
type Source interface {
	// ReadLatest blocks for one complete frame, then discards any frames
	// that accumulated while the caller was busy and returns the newest.
	ReadLatest(ctx context.Context) (*Frame, error)
	Close() error
}

// FFmpegSource implements Source by running ffmpeg as a child process with
// the feed decoded to an MJPEG stream on stdout.
type FFmpegSource struct {
	url    string
	cfg    *conf.CameraConfig
	cmd    *exec.Cmd
	cancel context.CancelFunc
	stdout io.ReadCloser
	stderr *boundedBuffer
	done   chan error

	frames  chan []byte
	pending []byte // first record, captured while waiting for the connect

	plan      planner
	closeOnce sync.Once
}

// Open starts ffmpeg for the given URL and waits for the first complete frame
// within the configured connect timeout. The returned source is ready for
// ReadLatest immediately.
func Open(ctx context.Context, cfg *conf.CameraConfig, url string) (*FFmpegSource, error) {
	procCtx, cancel := context.WithCancel(context.Background())

	s := &FFmpegSource{
		url:    url,
		cfg:    cfg,
		cancel: cancel,
		stderr: newBoundedBuffer(4096),
		done:   make(chan error, 1),
		frames: make(chan []byte, frameQueueSize),
	}

	// -rw_timeout bounds ffmpeg's own socket reads so a dead camera cannot
	// stall the child forever.
	rwTimeoutUS := fmt.Sprintf("%d", cfg.ConnectTimeout.Microseconds())
	s.cmd = exec.CommandContext(procCtx, cfg.FFmpegPath,
		"-rtsp_transport", cfg.Transport,
		"-rw_timeout", rwTimeoutUS,
		"-i", url,
		"-f", "image2pipe",
		"-c:v", "mjpeg",
		"-q:v", "5",
		"-loglevel", "error",
		"pipe:1",
	)
	s.cmd.Stderr = s.stderr

	var err error
	s.stdout, err = s.cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, errors.New(err).
			Component("videosource").
			Category(errors.CategoryConnection).
			Context("url", url).
			Build()
	}
	if err := s.cmd.Start(); err != nil {
		cancel()
		return nil, errors.New(err).
			Component("videosource").
			Category(errors.CategoryConnection).
			Context("url", url).
			Build()
	}

	go s.readPipe()
	go func() { s.done <- s.cmd.Wait() }()

	// First-frame deadline. ffmpeg printing errors and exiting also lands
	// here as a closed frames channel.
	started := time.Now()
	connectCtx, connectCancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer connectCancel()
	select {
	case record, ok := <-s.frames:
		if !ok {
			stderr := s.stderr.String()
			_ = s.Close()
			return nil, errors.Newf("stream ended before first frame: %s", stderr).
				Component("videosource").
				Category(errors.CategoryConnection).
				Context("url", url).
				Build()
		}
		s.pending = record
	case <-connectCtx.Done():
		_ = s.Close()
		return nil, errors.Newf("no frame within connect timeout").
			Component("videosource").
			Category(errors.CategoryTimeout).
			Context("url", url).
			Timing("connect", time.Since(started)).
			Build()
	}

	sourceLogger.Debug("stream opened", "url", url)
	return s, nil
}

// readPipe scans stdout into JPEG records and feeds the frame queue, dropping
// the oldest record when the consumer lags. It closes the queue on any pipe
// error, which ReadLatest surfaces as ErrStreamBroken.
func (s *FFmpegSource) readPipe() {
	defer close(s.frames)
	scanner := newJPEGScanner(s.stdout)
	for {
		record, err := scanner.Next()
		if err != nil {
			if err != io.EOF {
				sourceLogger.Debug("pipe read failed", "url", s.url, "error", err)
			}
			return
		}
		select {
		case s.frames <- record:
		default:
			select {
			case <-s.frames:
			default:
			}
			s.frames <- record
		}
	}
}

// ReadLatest blocks for a frame, drains newer buffered frames within the
// drain budget, and decodes the newest record that parses. Records that fail
// to decode are skipped.
func (s *FFmpegSource) ReadLatest(ctx context.Context) (*Frame, error) {
	for {
		records, err := s.nextRecords(ctx)
		if err != nil {
			return nil, err
		}
		// Newest first. A corrupt record falls back to the previous one.
		for i := len(records) - 1; i >= 0; i-- {
			frame, err := s.decode(records[i])
			if err != nil {
				sourceLogger.Debug("skipping undecodable frame", "url", s.url, "error", err)
				continue
			}
			return frame, nil
		}
	}
}

// nextRecords blocks for one record, then collects already-buffered records
// until the queue is empty, the drain budget elapses, or the drain cap is hit.
func (s *FFmpegSource) nextRecords(ctx context.Context) ([][]byte, error) {
	var records [][]byte

	if s.pending != nil {
		records = append(records, s.pending)
		s.pending = nil
	} else {
		select {
		case record, ok := <-s.frames:
			if !ok {
				return nil, ErrStreamBroken
			}
			records = append(records, record)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	deadline := time.Now().Add(s.cfg.DrainBudget)
	for len(records) < maxDrainFrames && time.Now().Before(deadline) {
		select {
		case record, ok := <-s.frames:
			if !ok {
				// The pipe just died but we still hold valid records.
				return records, nil
			}
			records = append(records, record)
		default:
			return records, nil
		}
	}
	return records, nil
}

func (s *FFmpegSource) decode(record []byte) (*Frame, error) {
	img, err := jpeg.Decode(bytes.NewReader(record))
	if err != nil {
		return nil, fmt.Errorf("jpeg decode: %w", err)
	}
	switch im := img.(type) {
	case *image.YCbCr:
		// image/jpeg always yields full-range JFIF samples.
		return s.plan.Convert(im, true), nil
	case *image.Gray:
		return convertGray(im), nil
	default:
		return nil, fmt.Errorf("unsupported pixel layout %T", img)
	}
}

// Close terminates the ffmpeg process and releases the pipe. Safe to call
// more than once.
func (s *FFmpegSource) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		if s.stdout != nil {
			_ = s.stdout.Close()
		}
		select {
		case <-s.done:
		case <-time.After(5 * time.Second):
			if s.cmd.Process != nil {
				_ = s.cmd.Process.Kill()
			}
		}
		sourceLogger.Debug("stream closed", "url", s.url)
	})
	return nil
}

// boundedBuffer keeps the tail of ffmpeg's stderr for error reporting.
type boundedBuffer struct {
	mu   sync.Mutex
	buf  bytes.Buffer
	size int
}

func newBoundedBuffer(size int) *boundedBuffer {
	return &boundedBuffer{size: size}
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.buf.Len()+len(p) > b.size {
		b.buf.Reset()
		if len(p) > b.size {
			p = p[len(p)-b.size:]
		}
	}
	return b.buf.Write(p)
}

func (b *boundedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
