// interfaces.go: this code defines the interface for the database operations
package datastore

import (
	"context"
	"fmt"

	"roomwatch/internal/conf"

	"gorm.io/gorm"
)

// Interface abstracts the underlying database implementation and defines the
// operations the booking and monitoring services need.
type Interface interface {
	Open() error
	Close() error

	// Reference data
	GetRooms() ([]Room, error)
	GetRoom(id uint) (Room, error)

	// Occupancy store
	GetCameraBindings() ([]CameraBinding, error)
	SetBindingBusy(id uint, busy bool) error
	Occupancy() ([]RoomOccupancy, error)

	// Reservation ledger
	ReserveRoom(ctx context.Context, q FindQuery) (*Room, error)
	ConfirmSlot(ctx context.Context, roomID uint, dayOfWeek int, startTime, endTime string) error
	ClearPendingSlots(ctx context.Context) (int64, error)
	DeleteExpiredSlots(ctx context.Context, dayOfWeek int, timeOfDay string) (int64, error)
	SlotsForRoom(roomID uint, dayOfWeek int) ([]Slot, error)

	CountEntities(kind EntityKind) (int64, error)
}

// DataStore implements Interface using a GORM database.
type DataStore struct {
	DB *gorm.DB // GORM database instance
}

// New creates a new store instance based on the provided configuration.
func New(settings *conf.Settings) (Interface, error) {
	switch {
	case settings.Database.SQLite.Enabled:
		return &SQLiteStore{Settings: settings}, nil
	case settings.Database.MySQL.Enabled:
		return &MySQLStore{Settings: settings}, nil
	default:
		return nil, fmt.Errorf("no database backend enabled in configuration")
	}
}

// Close closes the underlying sql.DB connection pool.
func (ds *DataStore) Close() error {
	if ds.DB == nil {
		return nil
	}
	sqlDB, err := ds.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to access underlying connection: %w", err)
	}
	return sqlDB.Close()
}

// GetRooms returns all rooms ordered by number.
func (ds *DataStore) GetRooms() ([]Room, error) {
	var rooms []Room
	if err := ds.DB.Order("number ASC").Find(&rooms).Error; err != nil {
		return nil, fmt.Errorf("failed to load rooms: %w", err)
	}
	return rooms, nil
}

// GetRoom returns one room by id.
func (ds *DataStore) GetRoom(id uint) (Room, error) {
	var room Room
	if err := ds.DB.First(&room, id).Error; err != nil {
		return Room{}, fmt.Errorf("failed to load room %d: %w", id, err)
	}
	return room, nil
}

// SlotsForRoom returns the slots for a room on a day ordered by start time.
func (ds *DataStore) SlotsForRoom(roomID uint, dayOfWeek int) ([]Slot, error) {
	var slots []Slot
	err := ds.DB.
		Where("room_id = ? AND day_of_week = ?", roomID, dayOfWeek).
		Order("start_time ASC").
		Find(&slots).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load slots for room %d: %w", roomID, err)
	}
	return slots, nil
}
