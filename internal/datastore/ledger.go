// ledger.go: transactional reservation operations on the slot table.
package datastore

import (
	"context"
	"fmt"
	"log/slog"

	"roomwatch/internal/errors"
	"roomwatch/internal/logging"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ledgerLogger *slog.Logger

func init() {
	ledgerLogger = logging.ForService("datastore")
	if ledgerLogger == nil {
		ledgerLogger = slog.Default().With("service", "datastore")
	}
}

// ErrNoRoomAvailable is returned by ReserveRoom when no room satisfies the
// request. This is an expected outcome, not a failure.
var ErrNoRoomAvailable = errors.NotFoundError("no eligible room available")

// FindQuery describes one find-and-hold request. All times are "HH:MM:SS"
// strings; DayOfWeek uses Monday=1..Sunday=7.
type FindQuery struct {
	Zone      string
	StartTime string
	EndTime   string
	Duration  int // minutes
	DayOfWeek int
}

// ReserveRoom finds the best free room for the query and inserts a pending
// slot for it, all inside one transaction. Candidate selection excludes rooms
// whose camera binding currently reports busy and rooms with an overlapping
// pending or confirmed slot on the same day. Remaining candidates are ordered
// by zone match first, then ascending room number.
//
// The candidate read and the slot insert commit or roll back together; that is
// the only thing preventing two concurrent callers from holding the same room.
// On MySQL the candidate rows are additionally locked with FOR UPDATE; SQLite
// serializes writing transactions at the database level, so no explicit clause
// is needed there.
func (ds *DataStore) ReserveRoom(ctx context.Context, q FindQuery) (*Room, error) {
	if q.StartTime >= q.EndTime {
		return nil, errors.ValidationError("start time %q is not before end time %q", q.StartTime, q.EndTime)
	}
	if q.DayOfWeek < 1 || q.DayOfWeek > 7 {
		return nil, errors.ValidationError("day of week %d out of range 1..7", q.DayOfWeek)
	}

	var room Room
	err := ds.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		overlap := tx.Model(&Slot{}).Select("1").
			Where("slots.room_id = rooms.id").
			Where("slots.day_of_week = ?", q.DayOfWeek).
			Where("slots.start_time < ?", q.EndTime).
			Where("slots.end_time > ?", q.StartTime).
			Where("slots.status IN ?", []SlotStatus{SlotPending, SlotConfirmed})

		candidates := tx.Model(&Room{}).
			Joins("LEFT JOIN camera_bindings ON camera_bindings.room_id = rooms.id").
			Where("camera_bindings.busy = ? OR camera_bindings.busy IS NULL", false).
			Where("NOT EXISTS (?)", overlap).
			Order(clause.OrderBy{Expression: clause.Expr{
				SQL:                "CASE WHEN rooms.zone = ? THEN 0 ELSE 1 END, rooms.number ASC",
				Vars:               []any{q.Zone},
				WithoutParentheses: true,
			}}).
			Limit(1)

		if tx.Dialector.Name() == "mysql" {
			candidates = candidates.Clauses(clause.Locking{Strength: "UPDATE"})
		}

		var found []Room
		if err := candidates.Find(&found).Error; err != nil {
			return fmt.Errorf("candidate query failed: %w", err)
		}
		if len(found) == 0 {
			return ErrNoRoomAvailable
		}
		room = found[0]

		slot := Slot{
			RoomID:    room.ID,
			DayOfWeek: q.DayOfWeek,
			StartTime: q.StartTime,
			EndTime:   q.EndTime,
			Duration:  q.Duration,
			Status:    SlotPending,
		}
		if err := tx.Create(&slot).Error; err != nil {
			return fmt.Errorf("slot insert failed: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNoRoomAvailable) {
			return nil, ErrNoRoomAvailable
		}
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("zone", q.Zone).
			Context("day_of_week", q.DayOfWeek).
			Build()
	}

	ledgerLogger.Debug("room reserved",
		"room_id", room.ID,
		"number", room.Number,
		"zone", room.Zone,
		"day_of_week", q.DayOfWeek,
		"start", q.StartTime,
		"end", q.EndTime)
	return &room, nil
}

// ConfirmSlot promotes the pending slot matching the exact key to confirmed.
// A key that matches nothing (already confirmed, expired, or never created)
// is a silent no-op: retries must not fail.
func (ds *DataStore) ConfirmSlot(ctx context.Context, roomID uint, dayOfWeek int, startTime, endTime string) error {
	res := ds.DB.WithContext(ctx).Model(&Slot{}).
		Where("room_id = ? AND day_of_week = ? AND start_time = ? AND end_time = ? AND status = ?",
			roomID, dayOfWeek, startTime, endTime, SlotPending).
		Update("status", SlotConfirmed)
	if res.Error != nil {
		return errors.New(res.Error).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("room_id", roomID).
			Build()
	}
	if res.RowsAffected == 0 {
		ledgerLogger.Debug("confirm matched no pending slot",
			"room_id", roomID, "day_of_week", dayOfWeek, "start", startTime, "end", endTime)
	}
	return nil
}

// ClearPendingSlots deletes every pending slot. Confirmed slots are untouched;
// they only ever leave the table through the expiry sweep.
func (ds *DataStore) ClearPendingSlots(ctx context.Context) (int64, error) {
	res := ds.DB.WithContext(ctx).
		Where("status = ?", SlotPending).
		Delete(&Slot{})
	if res.Error != nil {
		return 0, errors.New(res.Error).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	return res.RowsAffected, nil
}

// DeleteExpiredSlots deletes every slot, pending or confirmed, on the given
// day-of-week whose end time is already behind timeOfDay. Slots on other days
// are never touched.
func (ds *DataStore) DeleteExpiredSlots(ctx context.Context, dayOfWeek int, timeOfDay string) (int64, error) {
	res := ds.DB.WithContext(ctx).
		Where("status IN ?", []SlotStatus{SlotPending, SlotConfirmed}).
		Where("day_of_week = ?", dayOfWeek).
		Where("end_time < ?", timeOfDay).
		Delete(&Slot{})
	if res.Error != nil {
		return 0, errors.New(res.Error).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("day_of_week", dayOfWeek).
			Build()
	}
	return res.RowsAffected, nil
}
