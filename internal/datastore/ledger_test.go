package datastore

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"roomwatch/internal/conf"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestStore opens a fresh SQLite store in a temp directory.
func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	settings := &conf.Settings{}
	settings.Database.SQLite.Enabled = true
	settings.Database.SQLite.Path = filepath.Join(t.TempDir(), "test.db")

	store := &SQLiteStore{Settings: settings}
	require.NoError(t, store.Open())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// seedRooms inserts the standard fixture: three rooms in two zones, the first
// two with camera bindings.
func seedRooms(t *testing.T, store *SQLiteStore) []Room {
	t.Helper()

	rooms := []Room{
		{Name: "N101", Number: 101, Zone: "North", Category: "lecture"},
		{Name: "N102", Number: 102, Zone: "North", Category: "lab"},
		{Name: "S201", Number: 201, Zone: "South", Category: "lecture"},
	}
	require.NoError(t, store.DB.Create(&rooms).Error)

	bindings := []CameraBinding{
		{RoomID: rooms[0].ID, CameraIP: "192.168.1.10", Port: "554"},
		{RoomID: rooms[1].ID, CameraIP: "192.168.1.11", Port: "554"},
	}
	require.NoError(t, store.DB.Create(&bindings).Error)
	return rooms
}

func mondayQuery(zone string) FindQuery {
	return FindQuery{
		Zone:      zone,
		StartTime: "09:00:00",
		EndTime:   "10:00:00",
		Duration:  60,
		DayOfWeek: 1,
	}
}

func TestReserveRoomPrefersRequestedZone(t *testing.T) {
	store := newTestStore(t)
	seedRooms(t, store)

	room, err := store.ReserveRoom(context.Background(), mondayQuery("South"))
	require.NoError(t, err)
	assert.Equal(t, "S201", room.Name, "exact zone match should win over lower room number")

	var slot Slot
	require.NoError(t, store.DB.Where("room_id = ?", room.ID).First(&slot).Error)
	assert.Equal(t, SlotPending, slot.Status)
	assert.Equal(t, "09:00:00", slot.StartTime)
	assert.Equal(t, "10:00:00", slot.EndTime)
}

func TestReserveRoomFallsBackToOtherZones(t *testing.T) {
	store := newTestStore(t)
	seedRooms(t, store)

	// No rooms exist in zone East; the lowest-numbered room anywhere wins.
	room, err := store.ReserveRoom(context.Background(), mondayQuery("East"))
	require.NoError(t, err)
	assert.Equal(t, 101, room.Number)
}

func TestReserveRoomSkipsBusyRooms(t *testing.T) {
	store := newTestStore(t)
	rooms := seedRooms(t, store)

	var binding CameraBinding
	require.NoError(t, store.DB.Where("room_id = ?", rooms[0].ID).First(&binding).Error)
	require.NoError(t, store.SetBindingBusy(binding.ID, true))

	room, err := store.ReserveRoom(context.Background(), mondayQuery("North"))
	require.NoError(t, err)
	assert.Equal(t, "N102", room.Name, "room with busy camera must never be selected")
}

func TestReserveRoomSkipsOverlappingSlots(t *testing.T) {
	store := newTestStore(t)
	rooms := seedRooms(t, store)

	held := Slot{
		RoomID: rooms[0].ID, DayOfWeek: 1,
		StartTime: "09:30:00", EndTime: "10:30:00", Duration: 60,
		Status: SlotConfirmed,
	}
	require.NoError(t, store.DB.Create(&held).Error)

	room, err := store.ReserveRoom(context.Background(), mondayQuery("North"))
	require.NoError(t, err)
	assert.Equal(t, "N102", room.Name)

	// The same interval on another day does not block.
	tuesday := mondayQuery("North")
	tuesday.DayOfWeek = 2
	room, err = store.ReserveRoom(context.Background(), tuesday)
	require.NoError(t, err)
	assert.Equal(t, "N101", room.Name)
}

func TestReserveRoomAdjacentIntervalsDoNotOverlap(t *testing.T) {
	store := newTestStore(t)
	rooms := seedRooms(t, store)

	held := Slot{
		RoomID: rooms[0].ID, DayOfWeek: 1,
		StartTime: "08:00:00", EndTime: "09:00:00", Duration: 60,
		Status: SlotConfirmed,
	}
	require.NoError(t, store.DB.Create(&held).Error)

	// [08:00,09:00) and [09:00,10:00) share only the boundary instant.
	room, err := store.ReserveRoom(context.Background(), mondayQuery("North"))
	require.NoError(t, err)
	assert.Equal(t, "N101", room.Name)
}

func TestReserveRoomNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.ReserveRoom(context.Background(), mondayQuery("North"))
	assert.ErrorIs(t, err, ErrNoRoomAvailable)
}

func TestReserveRoomRejectsInvalidQuery(t *testing.T) {
	store := newTestStore(t)
	seedRooms(t, store)

	q := mondayQuery("North")
	q.EndTime = q.StartTime
	_, err := store.ReserveRoom(context.Background(), q)
	assert.Error(t, err)

	q = mondayQuery("North")
	q.DayOfWeek = 8
	_, err = store.ReserveRoom(context.Background(), q)
	assert.Error(t, err)
}

// TestReserveRoomConcurrent drives parallel reservations for the same
// interval; each room may be granted at most once.
func TestReserveRoomConcurrent(t *testing.T) {
	store := newTestStore(t)
	rooms := seedRooms(t, store)

	const callers = 12
	var wg sync.WaitGroup
	results := make(chan *Room, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			room, err := store.ReserveRoom(context.Background(), mondayQuery("North"))
			if err != nil {
				assert.ErrorIs(t, err, ErrNoRoomAvailable)
				return
			}
			results <- room
		}()
	}
	wg.Wait()
	close(results)

	granted := map[uint]int{}
	for room := range results {
		granted[room.ID]++
	}
	assert.Len(t, granted, len(rooms), "every room should be granted exactly once")
	for id, n := range granted {
		assert.Equal(t, 1, n, "room %d granted more than once", id)
	}
}

func TestConfirmSlotIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	seedRooms(t, store)

	room, err := store.ReserveRoom(context.Background(), mondayQuery("North"))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.ConfirmSlot(ctx, room.ID, 1, "09:00:00", "10:00:00"))

	var slot Slot
	require.NoError(t, store.DB.Where("room_id = ?", room.ID).First(&slot).Error)
	assert.Equal(t, SlotConfirmed, slot.Status)

	// Second call matches nothing and must not error.
	require.NoError(t, store.ConfirmSlot(ctx, room.ID, 1, "09:00:00", "10:00:00"))

	// A key that never existed is also a silent no-op.
	require.NoError(t, store.ConfirmSlot(ctx, room.ID, 3, "11:00:00", "12:00:00"))
}

func TestClearPendingSlots(t *testing.T) {
	store := newTestStore(t)
	rooms := seedRooms(t, store)

	slots := []Slot{
		{RoomID: rooms[0].ID, DayOfWeek: 1, StartTime: "09:00:00", EndTime: "10:00:00", Status: SlotPending},
		{RoomID: rooms[1].ID, DayOfWeek: 1, StartTime: "09:00:00", EndTime: "10:00:00", Status: SlotPending},
		{RoomID: rooms[2].ID, DayOfWeek: 1, StartTime: "09:00:00", EndTime: "10:00:00", Status: SlotConfirmed},
	}
	require.NoError(t, store.DB.Create(&slots).Error)

	deleted, err := store.ClearPendingSlots(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, deleted)

	var remaining []Slot
	require.NoError(t, store.DB.Find(&remaining).Error)
	require.Len(t, remaining, 1)
	assert.Equal(t, SlotConfirmed, remaining[0].Status)
}

func TestDeleteExpiredSlotsTouchesOnlyCurrentDay(t *testing.T) {
	store := newTestStore(t)
	rooms := seedRooms(t, store)

	slots := []Slot{
		{RoomID: rooms[0].ID, DayOfWeek: 1, StartTime: "07:00:00", EndTime: "08:00:00", Status: SlotPending},
		{RoomID: rooms[1].ID, DayOfWeek: 2, StartTime: "07:00:00", EndTime: "08:00:00", Status: SlotConfirmed},
		{RoomID: rooms[2].ID, DayOfWeek: 1, StartTime: "09:30:00", EndTime: "10:30:00", Status: SlotConfirmed},
	}
	require.NoError(t, store.DB.Create(&slots).Error)

	// Monday 09:00: only the Monday slot already ended is swept.
	deleted, err := store.DeleteExpiredSlots(context.Background(), 1, "09:00:00")
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	var remaining []Slot
	require.NoError(t, store.DB.Order("day_of_week ASC").Find(&remaining).Error)
	require.Len(t, remaining, 2)
	assert.Equal(t, 1, remaining[0].DayOfWeek)
	assert.Equal(t, "10:30:00", remaining[0].EndTime)
	assert.Equal(t, 2, remaining[1].DayOfWeek)
}

func TestOccupancyView(t *testing.T) {
	store := newTestStore(t)
	rooms := seedRooms(t, store)

	var binding CameraBinding
	require.NoError(t, store.DB.Where("room_id = ?", rooms[1].ID).First(&binding).Error)
	require.NoError(t, store.SetBindingBusy(binding.ID, true))

	view, err := store.Occupancy()
	require.NoError(t, err)
	require.Len(t, view, 2, "only rooms with bindings appear in the occupancy view")
	assert.False(t, view[0].Busy)
	assert.True(t, view[1].Busy)
	assert.Equal(t, "N102", view[1].RoomName)
}

func TestSetBindingBusyUnknownBinding(t *testing.T) {
	store := newTestStore(t)
	err := store.SetBindingBusy(999, true)
	assert.Error(t, err)
}

func TestCountEntities(t *testing.T) {
	store := newTestStore(t)
	seedRooms(t, store)

	n, err := store.CountEntities(KindRoom)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	n, err = store.CountEntities(KindCameraBinding)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	_, err = store.CountEntities(EntityKind(42))
	assert.Error(t, err)
}
