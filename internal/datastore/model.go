// model.go this code defines the data model for the application
package datastore

import "time"

// SlotStatus is the lifecycle state of a reservation slot.
type SlotStatus string

const (
	// SlotPending marks a slot held by FindAndReserve but not yet confirmed.
	SlotPending SlotStatus = "pending"
	// SlotConfirmed marks a slot explicitly completed by the caller.
	SlotConfirmed SlotStatus = "confirmed"
)

// Room is immutable reference data describing one bookable space. Rooms are
// seeded by provisioning and read-only to this service.
type Room struct {
	ID       uint   `gorm:"primaryKey"`
	Name     string `gorm:"index:idx_rooms_name"`
	Number   int    `gorm:"index:idx_rooms_number"`
	Zone     string `gorm:"index:idx_rooms_zone"` // building section, "corpus" in provisioning data
	Category string
}

// Slot is one reservation record. Slots recur weekly: they are keyed by
// day-of-week plus a time-of-day interval, never by calendar date. Absence of
// a row for a given room/day/interval means free.
//
// StartTime and EndTime are stored as "HH:MM:SS" strings so that string
// comparison orders the same way as time-of-day comparison; the interval is
// half-open [start, end).
type Slot struct {
	ID        uint       `gorm:"primaryKey"`
	RoomID    uint       `gorm:"index:idx_slots_room_day,priority:1;not null"`
	DayOfWeek int        `gorm:"index:idx_slots_room_day,priority:2;not null"` // Monday=1 .. Sunday=7
	StartTime string     `gorm:"type:varchar(8);not null"`
	EndTime   string     `gorm:"type:varchar(8);not null"`
	Duration  int        // minutes
	Status    SlotStatus `gorm:"type:varchar(16);index:idx_slots_status;not null"`
	CreatedAt time.Time
}

// CameraBinding associates one camera feed with a room. Only the Busy bit is
// mutated by this service; the address fields are seeded by provisioning.
// Busy reflects the most recently completed sampling window only.
type CameraBinding struct {
	ID       uint   `gorm:"primaryKey"`
	RoomID   uint   `gorm:"index:idx_bindings_room;not null"`
	CameraIP string `gorm:"type:varchar(64)"`
	Port     string `gorm:"type:varchar(8)"`
	Login    string `gorm:"type:varchar(64)"`
	Password string `gorm:"type:varchar(64)"`
	Busy     bool   `gorm:"not null;default:false"`
}

// RoomOccupancy is a read model joining a binding with its room, used by the
// control API and the binary adapter.
type RoomOccupancy struct {
	RoomID     uint   `json:"room_id"`
	RoomName   string `json:"room_name"`
	RoomNumber int    `json:"room_number"`
	Zone       string `json:"zone"`
	Busy       bool   `json:"busy"`
}

// TimeOfDay formats a wall-clock instant as the canonical "HH:MM:SS" form
// used throughout the slot table.
func TimeOfDay(t time.Time) string {
	return t.Format("15:04:05")
}

// Weekday1to7 converts Go's Sunday-based weekday to the Monday=1..Sunday=7
// numbering the slot table uses.
func Weekday1to7(d time.Weekday) int {
	if d == time.Sunday {
		return 7
	}
	return int(d)
}
