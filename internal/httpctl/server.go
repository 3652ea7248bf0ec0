// Package httpctl is the small operational HTTP surface: occupancy listing,
// administrative triggers, health, and metrics.
package httpctl

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"roomwatch/internal/booking"
	"roomwatch/internal/datastore"
	rwerrors "roomwatch/internal/errors"
	"roomwatch/internal/gateway"
	"roomwatch/internal/logging"
	"roomwatch/internal/observability"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

var httpLogger *slog.Logger

func init() {
	httpLogger = logging.ForService("httpctl")
	if httpLogger == nil {
		httpLogger = slog.Default().With("service", "httpctl")
	}
}

// Server wires the control routes onto an echo instance.
type Server struct {
	Echo    *echo.Echo
	ds      datastore.Interface
	cleanup *booking.CleanupWorker
	gw      *gateway.Gateway
}

// New builds the server and registers all routes.
func New(ds datastore.Interface, cleanup *booking.CleanupWorker, gw *gateway.Gateway, metrics *observability.Metrics) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{Echo: e, ds: ds, cleanup: cleanup, gw: gw}

	e.GET("/api/v1/occupancy", s.handleOccupancy)
	e.GET("/api/v1/rooms", s.handleRooms)
	e.GET("/api/v1/rooms/:id/slots", s.handleRoomSlots)
	e.POST("/api/v1/cleanup/run", s.handleCleanupRun)
	e.POST("/api/v1/slots/complete", s.handleCompleteSlot)
	e.POST("/api/v1/slots/clear-pending", s.handleClearPending)
	e.GET("/healthz", s.handleHealthz)
	if metrics != nil {
		e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
	}
	return s
}

// Run serves until the context is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, port string) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Echo.Start(":" + port)
	}()
	httpLogger.Info("control api listening", "port", port)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Echo.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	}
}

func (s *Server) handleOccupancy(c echo.Context) error {
	view, err := s.ds.Occupancy()
	if err != nil {
		httpLogger.Error("occupancy query failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "occupancy query failed")
	}
	if view == nil {
		view = []datastore.RoomOccupancy{}
	}
	return c.JSON(http.StatusOK, view)
}

func (s *Server) handleCleanupRun(c echo.Context) error {
	if err := s.cleanup.TriggerNow(c.Request().Context()); err != nil {
		httpLogger.Error("on-demand sweep failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "sweep failed")
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRooms(c echo.Context) error {
	rooms, err := s.ds.GetRooms()
	if err != nil {
		httpLogger.Error("room listing failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "room listing failed")
	}
	if rooms == nil {
		rooms = []datastore.Room{}
	}
	return c.JSON(http.StatusOK, rooms)
}

// handleRoomSlots lists one room's slots on a day of week (default today).
func (s *Server) handleRoomSlots(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid room id")
	}

	day := datastore.Weekday1to7(time.Now().Weekday())
	if d := c.QueryParam("day"); d != "" {
		day, err = strconv.Atoi(d)
		if err != nil || day < 1 || day > 7 {
			return echo.NewHTTPError(http.StatusBadRequest, "day must be 1..7")
		}
	}

	room, err := s.ds.GetRoom(uint(id))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "unknown room")
	}
	slots, err := s.ds.SlotsForRoom(room.ID, day)
	if err != nil {
		httpLogger.Error("slot listing failed", "room_id", room.ID, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "slot listing failed")
	}
	if slots == nil {
		slots = []datastore.Slot{}
	}
	return c.JSON(http.StatusOK, slots)
}

// completeSlotRequest is the admin confirmation of a previously held slot.
type completeSlotRequest struct {
	RoomID    uint   `json:"room_id"`
	DayOfWeek int    `json:"day_of_week"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

func (s *Server) handleCompleteSlot(c echo.Context) error {
	var req completeSlotRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}

	err := s.gw.CompleteReservation(c.Request().Context(), req.RoomID, req.StartTime, req.EndTime, req.DayOfWeek)
	if err != nil {
		var ee *rwerrors.EnhancedError
		if rwerrors.As(err, &ee) && ee.Category == rwerrors.CategoryValidation {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		httpLogger.Error("slot completion failed", "room_id", req.RoomID, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "slot completion failed")
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleClearPending(c echo.Context) error {
	deleted, err := s.gw.ClearPending(c.Request().Context())
	if err != nil {
		httpLogger.Error("clear-pending failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "clear-pending failed")
	}
	return c.JSON(http.StatusOK, map[string]int64{"deleted": deleted})
}

func (s *Server) handleHealthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
