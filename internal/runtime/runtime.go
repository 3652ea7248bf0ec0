// Package runtime assembles and supervises the long-running services: the
// camera scheduler, the cleanup worker, the wire adapters and the control API.
package runtime

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shirou/gopsutil/v3/host"

	"roomwatch/internal/booking"
	"roomwatch/internal/conf"
	"roomwatch/internal/datastore"
	"roomwatch/internal/detect"
	"roomwatch/internal/gateway"
	"roomwatch/internal/httpctl"
	"roomwatch/internal/logging"
	"roomwatch/internal/monitor"
	"roomwatch/internal/notify"
	"roomwatch/internal/observability"
)

var runtimeLogger *slog.Logger

func init() {
	runtimeLogger = logging.ForService("runtime")
	if runtimeLogger == nil {
		runtimeLogger = slog.Default().With("service", "runtime")
	}
}

// Run starts every configured service and blocks until the context is
// canceled or one of them fails. A clean shutdown returns nil.
func Run(ctx context.Context, settings *conf.Settings) error {
	logHostInfo()

	ds, err := datastore.New(settings)
	if err != nil {
		return err
	}
	if err := ds.Open(); err != nil {
		return err
	}
	defer func() { _ = ds.Close() }()

	detector, err := detect.New(&settings.Detect)
	if err != nil {
		return err
	}
	defer func() { _ = detector.Close() }()

	metrics, err := observability.New()
	if err != nil {
		return err
	}

	scheduler := monitor.New(settings, ds, detector)
	scheduler.WriteFailureHook = metrics.BusyWriteFails.Inc
	gw := gateway.New(ds, settings.Monitor.EventBuffer)
	cleanup := booking.NewCleanupWorker(settings, ds)
	cleanup.DeletedHook = func(count int64) { metrics.ExpiredSlots.Add(float64(count)) }
	binarySrv := gateway.NewBinaryServer(ds)

	var publisher *notify.Publisher
	if settings.MQTT.Enabled {
		publisher, err = notify.NewPublisher(settings)
		if err != nil {
			return err
		}
		if err := publisher.Connect(ctx); err != nil {
			// The broker may come up later; auto-reconnect handles it.
			runtimeLogger.Warn("broker connect failed, continuing", "error", err)
		}
		defer publisher.Close()
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return scheduler.Run(ctx) })
	g.Go(func() error { return cleanup.Run(ctx) })

	if settings.TCP.JSON.Enabled {
		g.Go(func() error {
			return gateway.NewJSONServer(gw).ListenAndServe(ctx, settings.TCP.JSON.Port)
		})
	}
	if settings.TCP.Binary.Enabled {
		g.Go(func() error {
			return binarySrv.ListenAndServe(ctx, settings.TCP.Binary.Port)
		})
	}
	if settings.HTTP.Enabled {
		g.Go(func() error {
			return httpctl.New(ds, cleanup, gw, metrics).Run(ctx, settings.HTTP.Port)
		})
	}

	g.Go(func() error {
		pumpEvents(ctx, scheduler, gw, binarySrv, publisher, metrics, settings)
		return nil
	})

	runtimeLogger.Info("all services started", "instance", settings.Main.Name)
	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		runtimeLogger.Info("shutdown complete")
		return nil
	}
	return err
}

// pumpEvents funnels scheduler and gateway events into metrics, the binary
// push feed, and the optional MQTT publisher.
func pumpEvents(ctx context.Context, scheduler *monitor.Scheduler, gw *gateway.Gateway,
	binarySrv *gateway.BinaryServer, publisher *notify.Publisher,
	metrics *observability.Metrics, settings *conf.Settings) {

	for {
		select {
		case <-ctx.Done():
			return

		case ev := <-scheduler.Events():
			metrics.RecordCycle(ev.Busy, ev.Samples)
			if settings.TCP.Binary.Enabled {
				binarySrv.Broadcast()
			}
			if publisher != nil {
				err := publisher.PublishOccupancy(&notify.OccupancyMessage{
					RoomID:    ev.RoomID,
					BindingID: ev.BindingID,
					Busy:      ev.Busy,
					Samples:   ev.Samples,
					Timestamp: time.Now(),
				})
				if err != nil {
					runtimeLogger.Debug("occupancy publish failed", "error", err)
				}
			}

		case ev := <-gw.Events():
			outcome := "found"
			msg := notify.ReservationMessage{
				Outcome:       outcome,
				CorrelationID: ev.CorrelationID,
				Timestamp:     time.Now(),
			}
			if ev.Kind == gateway.ReservationNotFound {
				outcome = "not_found"
				msg.Outcome = outcome
			} else if ev.Room != nil {
				msg.RoomName = ev.Room.Name
				msg.RoomNumber = ev.Room.Number
			}
			metrics.RecordReservation(outcome)
			if publisher != nil {
				if err := publisher.PublishReservation(&msg); err != nil {
					runtimeLogger.Debug("reservation publish failed", "error", err)
				}
			}
		}
	}
}

// logHostInfo records the host details once at startup.
func logHostInfo() {
	info, err := host.Info()
	if err != nil {
		runtimeLogger.Debug("host info unavailable", "error", err)
		return
	}
	runtimeLogger.Info("host",
		"hostname", info.Hostname,
		"os", info.OS,
		"platform", info.Platform,
		"platform_version", info.PlatformVersion,
		"kernel", info.KernelVersion,
		"uptime_hours", info.Uptime/3600)
}
