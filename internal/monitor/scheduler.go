// Package monitor drives the round-robin camera loop: open one feed, sample
// it for a window, aggregate, write the busy bit, move to the next binding.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"roomwatch/internal/conf"
	"roomwatch/internal/datastore"
	"roomwatch/internal/detect"
	"roomwatch/internal/logging"
	"roomwatch/internal/videosource"

	"github.com/patrickmn/go-cache"
)

var monitorLogger *slog.Logger

func init() {
	monitorLogger = logging.ForService("monitor")
	if monitorLogger == nil {
		monitorLogger = slog.Default().With("service", "monitor")
	}
}

// CycleEvent describes one completed sampling window.
type CycleEvent struct {
	BindingID uint
	RoomID    uint
	Busy      bool
	Samples   int
}

// SourceOpener abstracts videosource.Open so tests can substitute fakes.
type SourceOpener func(ctx context.Context, cfg *conf.CameraConfig, url string) (videosource.Source, error)

// Scheduler walks the camera bindings round-robin, samples each for the
// configured window, and persists a max-over-window busy aggregate. It runs
// on its own goroutine; reservation calls never wait on it.
type Scheduler struct {
	ds       datastore.Interface
	detector detect.Detector
	settings *conf.Settings
	open     SourceOpener

	// lastKnown caches the most recent aggregate per binding so a camera
	// failure reports stale-but-recent state instead of flapping to free.
	lastKnown *cache.Cache
	events    chan CycleEvent

	// WriteFailureHook, when set before Run, is called for every failed
	// busy bit write.
	WriteFailureHook func()
}

// New creates a scheduler over the given store and detector.
func New(settings *conf.Settings, ds datastore.Interface, detector detect.Detector) *Scheduler {
	return &Scheduler{
		ds:       ds,
		detector: detector,
		settings: settings,
		open: func(ctx context.Context, cfg *conf.CameraConfig, url string) (videosource.Source, error) {
			return videosource.Open(ctx, cfg, url)
		},
		lastKnown: cache.New(settings.Monitor.LastKnownTTL, settings.Monitor.LastKnownTTL),
		events:    make(chan CycleEvent, settings.Monitor.EventBuffer),
	}
}

// Events exposes the per-window event stream. Events are dropped, never
// blocked on, when no consumer keeps up.
func (s *Scheduler) Events() <-chan CycleEvent {
	return s.events
}

// Run executes the monitoring loop until the context is canceled. The binding
// list is refreshed from the store each time the round-robin index wraps, so
// provisioning changes take effect once per full cycle.
func (s *Scheduler) Run(ctx context.Context) error {
	monitorLogger.Info("camera scheduler started",
		"sample_window", s.settings.Monitor.SampleWindow.String(),
		"step_delay", s.settings.Monitor.StepDelay.String())

	bindings := s.refreshBindings()
	i := 0
	for {
		if ctx.Err() != nil {
			monitorLogger.Info("camera scheduler stopped")
			return ctx.Err()
		}

		if len(bindings) == 0 {
			if !sleepCtx(ctx, s.settings.Monitor.EmptyListDelay) {
				continue
			}
			bindings = s.refreshBindings()
			continue
		}

		binding := bindings[i]
		busy, samples := s.sampleBinding(ctx, &binding)
		if ctx.Err() != nil {
			continue
		}

		if err := s.ds.SetBindingBusy(binding.ID, busy); err != nil {
			monitorLogger.Error("busy bit write failed",
				"binding_id", binding.ID, "error", err)
			if s.WriteFailureHook != nil {
				s.WriteFailureHook()
			}
		} else {
			// Only a window with fresh samples refreshes the cache. A value
			// that came out of the cache must not restart its own TTL, or a
			// dead camera would report its stale state forever.
			if samples > 0 {
				s.lastKnown.SetDefault(bindingKey(binding.ID), busy)
			}
			s.emit(CycleEvent{
				BindingID: binding.ID,
				RoomID:    binding.RoomID,
				Busy:      busy,
				Samples:   samples,
			})
		}

		sleepCtx(ctx, s.settings.Monitor.StepDelay)

		i++
		if i >= len(bindings) {
			i = 0
			bindings = s.refreshBindings()
		}
	}
}

// sampleBinding opens the binding's feed and pulls frames through the
// detector until the sampling window expires. The aggregate is busy as soon
// as any sample in the window saw a person. A feed that cannot be opened or
// dies before producing a sample reports the cached last-known state.
func (s *Scheduler) sampleBinding(ctx context.Context, binding *datastore.CameraBinding) (busy bool, samples int) {
	url := s.streamURL(binding)

	src, err := s.open(ctx, &s.settings.Camera, url)
	if err != nil {
		monitorLogger.Warn("camera unreachable, using last-known state",
			"binding_id", binding.ID, "camera_ip", binding.CameraIP, "error", err)
		return s.lastKnownBusy(binding.ID), 0
	}
	defer func() { _ = src.Close() }()

	windowCtx, cancel := context.WithTimeout(ctx, s.settings.Monitor.SampleWindow)
	defer cancel()

	for {
		frame, err := src.ReadLatest(windowCtx)
		if err != nil {
			if windowCtx.Err() != nil {
				break // window over, or shutdown
			}
			// Stream died mid-window. Advance early with what we have.
			monitorLogger.Warn("stream failed mid-window",
				"binding_id", binding.ID, "samples", samples, "error", err)
			if samples == 0 {
				return s.lastKnownBusy(binding.ID), 0
			}
			break
		}

		count, err := s.detector.CountPeople(frame)
		if err != nil {
			monitorLogger.Debug("detection failed, sample skipped",
				"binding_id", binding.ID, "error", err)
			continue
		}
		samples++
		if count >= 1 {
			busy = true
		}
	}
	return busy, samples
}

// refreshBindings reloads the binding list. A store error keeps an empty list
// so the loop parks instead of hammering a broken database.
func (s *Scheduler) refreshBindings() []datastore.CameraBinding {
	bindings, err := s.ds.GetCameraBindings()
	if err != nil {
		monitorLogger.Error("failed to load camera bindings", "error", err)
		return nil
	}
	return bindings
}

// streamURL assembles the feed address from the configured prefix/suffix and
// the binding's address fields.
func (s *Scheduler) streamURL(binding *datastore.CameraBinding) string {
	creds := ""
	if binding.Login != "" {
		creds = binding.Login + ":" + binding.Password + "@"
	}
	host := binding.CameraIP
	if binding.Port != "" {
		host += ":" + binding.Port
	}
	return s.settings.Camera.UriPrefix + creds + host + s.settings.Camera.UriSuffix
}

func (s *Scheduler) lastKnownBusy(bindingID uint) bool {
	if v, ok := s.lastKnown.Get(bindingKey(bindingID)); ok {
		return v.(bool)
	}
	return false
}

func (s *Scheduler) emit(ev CycleEvent) {
	select {
	case s.events <- ev:
	default:
		monitorLogger.Debug("event buffer full, cycle event dropped",
			"binding_id", ev.BindingID)
	}
}

func bindingKey(id uint) string {
	return fmt.Sprintf("binding:%d", id)
}

// sleepCtx sleeps for d unless the context ends first. It reports whether the
// full duration elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
