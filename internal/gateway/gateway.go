// Package gateway is the request-side surface of the booking engine: it
// normalizes incoming reservation calls and forwards them to the ledger.
package gateway

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"roomwatch/internal/datastore"
	"roomwatch/internal/errors"
	"roomwatch/internal/logging"

	"github.com/google/uuid"
)

var gatewayLogger *slog.Logger

func init() {
	gatewayLogger = logging.ForService("gateway")
	if gatewayLogger == nil {
		gatewayLogger = slog.Default().With("service", "gateway")
	}
}

// ErrBusy is returned when a FindAndReserve arrives while another one is
// still executing. The guard is a single-instance safety margin on top of
// the ledger transaction, not a correctness mechanism.
var ErrBusy = errors.Newf("a reservation request is already in flight").
	Component("gateway").
	Category(errors.CategoryState).
	Build()

// EventKind discriminates gateway events.
type EventKind string

const (
	ReservationFound    EventKind = "reservation_found"
	ReservationNotFound EventKind = "reservation_not_found"
)

// Event is published after each reservation attempt.
type Event struct {
	Kind          EventKind
	CorrelationID string
	Room          *datastore.Room // set for ReservationFound
	Reason        string          // set for ReservationNotFound
}

// ReservationRequest is one normalized find-and-hold call. StartTime accepts
// "HH:MM" or "HH:MM:SS"; Duration is minutes.
type ReservationRequest struct {
	Zone      string
	StartTime string
	Duration  int
}

// Gateway validates reservation calls and drives the ledger.
type Gateway struct {
	ds       datastore.Interface
	inFlight atomic.Bool
	events   chan Event

	now func() time.Time
}

// New creates a gateway over the store.
func New(ds datastore.Interface, eventBuffer int) *Gateway {
	if eventBuffer <= 0 {
		eventBuffer = 16
	}
	return &Gateway{
		ds:     ds,
		events: make(chan Event, eventBuffer),
		now:    time.Now,
	}
}

// Events exposes the reservation event stream. Drop-on-full.
func (g *Gateway) Events() <-chan Event {
	return g.events
}

// FindAndReserve finds the best free room for the request on the current day
// of week and holds it with a pending slot. No eligible room returns
// datastore.ErrNoRoomAvailable; an overlapping call returns ErrBusy.
func (g *Gateway) FindAndReserve(ctx context.Context, req *ReservationRequest) (*datastore.Room, error) {
	if !g.inFlight.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer g.inFlight.Store(false)

	correlationID := uuid.New().String()
	log := gatewayLogger.With("correlation_id", correlationID)

	start, err := NormalizeTime(req.StartTime)
	if err != nil {
		return nil, err
	}
	end, err := AddMinutes(start, req.Duration)
	if err != nil {
		return nil, err
	}

	now := g.now()
	query := datastore.FindQuery{
		Zone:      req.Zone,
		StartTime: start,
		EndTime:   end,
		Duration:  req.Duration,
		DayOfWeek: datastore.Weekday1to7(now.Weekday()),
	}

	log.Info("reservation request",
		"zone", req.Zone, "start", start, "end", end, "duration_min", req.Duration)

	room, err := g.ds.ReserveRoom(ctx, query)
	if err != nil {
		if errors.Is(err, datastore.ErrNoRoomAvailable) {
			log.Info("no room available", "zone", req.Zone, "start", start)
			g.emit(Event{
				Kind:          ReservationNotFound,
				CorrelationID: correlationID,
				Reason:        "no eligible room",
			})
			return nil, err
		}
		log.Error("reservation failed", "error", err)
		return nil, err
	}

	log.Info("room reserved", "room", room.Name, "number", room.Number)
	g.emit(Event{
		Kind:          ReservationFound,
		CorrelationID: correlationID,
		Room:          room,
	})
	return room, nil
}

// CompleteReservation confirms the pending slot matching the exact key on the
// given day of week. A key matching nothing is a silent no-op.
func (g *Gateway) CompleteReservation(ctx context.Context, roomID uint, startTime, endTime string, dayOfWeek int) error {
	start, err := NormalizeTime(startTime)
	if err != nil {
		return err
	}
	end, err := NormalizeTime(endTime)
	if err != nil {
		return err
	}
	if dayOfWeek < 1 || dayOfWeek > 7 {
		return errors.ValidationError("day of week %d out of range 1..7", dayOfWeek)
	}
	return g.ds.ConfirmSlot(ctx, roomID, dayOfWeek, start, end)
}

// ClearPending deletes every pending slot and returns the count.
func (g *Gateway) ClearPending(ctx context.Context) (int64, error) {
	deleted, err := g.ds.ClearPendingSlots(ctx)
	if err != nil {
		return 0, err
	}
	gatewayLogger.Info("pending slots cleared", "count", deleted)
	return deleted, nil
}

func (g *Gateway) emit(ev Event) {
	select {
	case g.events <- ev:
	default:
	}
}

// NormalizeTime parses "HH:MM" or "HH:MM:SS" into the canonical "HH:MM:SS"
// form the slot table stores.
func NormalizeTime(s string) (string, error) {
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("15:04:05"), nil
		}
	}
	return "", errors.ValidationError("invalid time of day %q", s)
}

// AddMinutes advances a canonical time of day by a positive number of
// minutes. Intervals never span midnight; a sum past end of day is rejected.
func AddMinutes(timeOfDay string, minutes int) (string, error) {
	if minutes <= 0 {
		return "", errors.ValidationError("duration %d must be positive", minutes)
	}
	t, err := time.Parse("15:04:05", timeOfDay)
	if err != nil {
		return "", errors.ValidationError("invalid time of day %q", timeOfDay)
	}
	end := t.Add(time.Duration(minutes) * time.Minute)
	if end.Day() != t.Day() {
		return "", errors.ValidationError("interval starting %s with %d minutes crosses midnight", timeOfDay, minutes)
	}
	return end.Format("15:04:05"), nil
}
