package httpctl

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"roomwatch/internal/booking"
	"roomwatch/internal/conf"
	"roomwatch/internal/datastore"
	"roomwatch/internal/gateway"
	"roomwatch/internal/observability"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testServer builds the controller against a real SQLite store with a running
// cleanup worker.
func testServer(t *testing.T) (*Server, datastore.Interface) {
	t.Helper()

	settings := &conf.Settings{}
	settings.Database.SQLite.Enabled = true
	settings.Database.SQLite.Path = filepath.Join(t.TempDir(), "ctl.db")
	settings.Cleanup.Interval = time.Hour

	ds, err := datastore.New(settings)
	require.NoError(t, err)
	require.NoError(t, ds.Open())
	t.Cleanup(func() { _ = ds.Close() })

	worker := booking.NewCleanupWorker(settings, ds)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	metrics, err := observability.New()
	require.NoError(t, err)

	return New(ds, worker, gateway.New(ds, 16), metrics), ds
}

func seed(t *testing.T, ds datastore.Interface) datastore.Room {
	t.Helper()
	store := ds.(*datastore.SQLiteStore)

	room := datastore.Room{Name: "N101", Number: 101, Zone: "North"}
	require.NoError(t, store.DB.Create(&room).Error)
	binding := datastore.CameraBinding{RoomID: room.ID, CameraIP: "10.0.0.1", Busy: true}
	require.NoError(t, store.DB.Create(&binding).Error)
	return room
}

func doRequest(s *Server, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, http.NoBody)
	rec := httptest.NewRecorder()
	s.Echo.ServeHTTP(rec, req)
	return rec
}

func TestOccupancyEndpoint(t *testing.T) {
	s, ds := testServer(t)
	room := seed(t, ds)

	rec := doRequest(s, http.MethodGet, "/api/v1/occupancy")
	require.Equal(t, http.StatusOK, rec.Code)

	var view []datastore.RoomOccupancy
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	require.Len(t, view, 1)
	assert.Equal(t, room.ID, view[0].RoomID)
	assert.True(t, view[0].Busy)
}

func TestOccupancyEndpointEmpty(t *testing.T) {
	s, _ := testServer(t)

	rec := doRequest(s, http.MethodGet, "/api/v1/occupancy")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestCleanupRunEndpoint(t *testing.T) {
	s, ds := testServer(t)
	room := seed(t, ds)
	store := ds.(*datastore.SQLiteStore)

	// One slot already ended today, one on another day.
	today := datastore.Weekday1to7(time.Now().Weekday())
	otherDay := today%7 + 1
	slots := []datastore.Slot{
		{RoomID: room.ID, DayOfWeek: today, StartTime: "00:00:01", EndTime: "00:00:02", Status: datastore.SlotConfirmed},
		{RoomID: room.ID, DayOfWeek: otherDay, StartTime: "00:00:01", EndTime: "00:00:02", Status: datastore.SlotConfirmed},
	}
	require.NoError(t, store.DB.Create(&slots).Error)

	rec := doRequest(s, http.MethodPost, "/api/v1/cleanup/run")
	require.Equal(t, http.StatusOK, rec.Code)

	var remaining []datastore.Slot
	require.NoError(t, store.DB.Find(&remaining).Error)
	require.Len(t, remaining, 1)
	assert.Equal(t, otherDay, remaining[0].DayOfWeek)
}

func TestRoomsEndpoint(t *testing.T) {
	s, ds := testServer(t)
	room := seed(t, ds)

	rec := doRequest(s, http.MethodGet, "/api/v1/rooms")
	require.Equal(t, http.StatusOK, rec.Code)

	var rooms []datastore.Room
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rooms))
	require.Len(t, rooms, 1)
	assert.Equal(t, room.ID, rooms[0].ID)
	assert.Equal(t, "N101", rooms[0].Name)
}

func TestRoomSlotsEndpoint(t *testing.T) {
	s, ds := testServer(t)
	room := seed(t, ds)
	store := ds.(*datastore.SQLiteStore)

	slots := []datastore.Slot{
		{RoomID: room.ID, DayOfWeek: 2, StartTime: "11:00:00", EndTime: "12:00:00", Status: datastore.SlotPending},
		{RoomID: room.ID, DayOfWeek: 2, StartTime: "09:00:00", EndTime: "10:00:00", Status: datastore.SlotConfirmed},
		{RoomID: room.ID, DayOfWeek: 3, StartTime: "09:00:00", EndTime: "10:00:00", Status: datastore.SlotConfirmed},
	}
	require.NoError(t, store.DB.Create(&slots).Error)

	rec := doRequest(s, http.MethodGet, fmt.Sprintf("/api/v1/rooms/%d/slots?day=2", room.ID))
	require.Equal(t, http.StatusOK, rec.Code)

	var listed []datastore.Slot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed, 2)
	assert.Equal(t, "09:00:00", listed[0].StartTime, "slots come back ordered by start time")
	assert.Equal(t, "11:00:00", listed[1].StartTime)
}

func TestRoomSlotsEndpointRejectsBadInput(t *testing.T) {
	s, ds := testServer(t)
	room := seed(t, ds)

	rec := doRequest(s, http.MethodGet, "/api/v1/rooms/notanumber/slots")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(s, http.MethodGet, fmt.Sprintf("/api/v1/rooms/%d/slots?day=8", room.ID))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(s, http.MethodGet, "/api/v1/rooms/99999/slots?day=2")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func doJSONRequest(s *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	s.Echo.ServeHTTP(rec, req)
	return rec
}

func TestCompleteSlotEndpoint(t *testing.T) {
	s, ds := testServer(t)
	room := seed(t, ds)
	store := ds.(*datastore.SQLiteStore)

	slot := datastore.Slot{
		RoomID: room.ID, DayOfWeek: 2,
		StartTime: "09:00:00", EndTime: "10:00:00", Status: datastore.SlotPending,
	}
	require.NoError(t, store.DB.Create(&slot).Error)

	body := fmt.Sprintf(
		`{"room_id":%d,"day_of_week":2,"start_time":"09:00","end_time":"10:00"}`, room.ID)
	rec := doJSONRequest(s, http.MethodPost, "/api/v1/slots/complete", body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	var confirmed datastore.Slot
	require.NoError(t, store.DB.First(&confirmed, slot.ID).Error)
	assert.Equal(t, datastore.SlotConfirmed, confirmed.Status)
}

func TestCompleteSlotEndpointRejectsBadInput(t *testing.T) {
	s, _ := testServer(t)

	rec := doJSONRequest(s, http.MethodPost, "/api/v1/slots/complete",
		`{"room_id":1,"day_of_week":9,"start_time":"09:00","end_time":"10:00"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSONRequest(s, http.MethodPost, "/api/v1/slots/complete",
		`{"room_id":1,"day_of_week":2,"start_time":"25:99","end_time":"10:00"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestClearPendingEndpoint(t *testing.T) {
	s, ds := testServer(t)
	room := seed(t, ds)
	store := ds.(*datastore.SQLiteStore)

	slots := []datastore.Slot{
		{RoomID: room.ID, DayOfWeek: 1, StartTime: "09:00:00", EndTime: "10:00:00", Status: datastore.SlotPending},
		{RoomID: room.ID, DayOfWeek: 1, StartTime: "11:00:00", EndTime: "12:00:00", Status: datastore.SlotConfirmed},
	}
	require.NoError(t, store.DB.Create(&slots).Error)

	rec := doRequest(s, http.MethodPost, "/api/v1/slots/clear-pending")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"deleted":1}`, rec.Body.String())
}

func TestHealthzEndpoint(t *testing.T) {
	s, _ := testServer(t)
	rec := doRequest(s, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := testServer(t)
	rec := doRequest(s, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
