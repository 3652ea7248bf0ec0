// tcpjson.go: the length-prefixed JSON reservation protocol. Each message is
// a 4-byte big-endian payload length followed by a JSON document, in both
// directions.
package gateway

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"roomwatch/internal/datastore"
	rwerrors "roomwatch/internal/errors"
)

// maxJSONPayload caps one request document. Anything larger is a protocol
// violation and the connection is dropped.
const maxJSONPayload = 64 << 10

// wireRequest is the on-the-wire reservation request. Field names match the
// historical protocol: "corpus" is the requested zone, "cabinet" the granted
// room number.
type wireRequest struct {
	ID        int    `json:"id"`
	Corpus    string `json:"corpus"`
	StartTime string `json:"start_time"`
	Duration  int    `json:"duration"`
}

// wireResponse is the on-the-wire answer. Cabinet is 0 when no room was
// granted; Status tells the caller why.
type wireResponse struct {
	ID      int    `json:"id"`
	Cabinet int    `json:"cabinet"`
	Status  string `json:"status"`
}

const (
	statusAnswer  = "answer"
	statusNoRoom  = "no_room"
	statusBusy    = "busy"
	statusInvalid = "invalid"
	statusError   = "error"
)

// JSONServer serves reservation requests over TCP.
type JSONServer struct {
	gw *Gateway

	mu  sync.Mutex
	lis net.Listener
}

// NewJSONServer creates the adapter over a gateway.
func NewJSONServer(gw *Gateway) *JSONServer {
	return &JSONServer{gw: gw}
}

// ListenAndServe binds the port and serves until the context is canceled.
func (s *JSONServer) ListenAndServe(ctx context.Context, port string) error {
	lis, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return fmt.Errorf("json adapter listen failed: %w", err)
	}
	return s.Serve(ctx, lis)
}

// Serve accepts connections on the listener until the context is canceled.
func (s *JSONServer) Serve(ctx context.Context, lis net.Listener) error {
	s.mu.Lock()
	s.lis = lis
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		_ = lis.Close()
	}()

	gatewayLogger.Info("json adapter listening", "addr", lis.Addr().String())
	for {
		conn, err := lis.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("json adapter accept failed: %w", err)
		}
		go s.handle(ctx, conn)
	}
}

// Addr returns the bound address, for tests that listen on an ephemeral port.
func (s *JSONServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lis == nil {
		return nil
	}
	return s.lis.Addr()
}

// handle serves one connection. Requests are processed in order; a framing
// error ends the connection, a reservation error does not.
func (s *JSONServer) handle(ctx context.Context, conn net.Conn) {
	defer func() { _ = conn.Close() }()
	remote := conn.RemoteAddr().String()
	gatewayLogger.Debug("json client connected", "remote", remote)

	for {
		payload, err := readFrame(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				gatewayLogger.Debug("json client read failed", "remote", remote, "error", err)
			}
			return
		}

		resp := s.serveRequest(ctx, payload)
		if err := writeFrame(conn, resp); err != nil {
			gatewayLogger.Debug("json client write failed", "remote", remote, "error", err)
			return
		}
	}
}

// serveRequest decodes one request and produces the response document.
func (s *JSONServer) serveRequest(ctx context.Context, payload []byte) wireResponse {
	var req wireRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		gatewayLogger.Debug("malformed reservation request", "error", err)
		return wireResponse{Status: statusInvalid}
	}

	room, err := s.gw.FindAndReserve(ctx, &ReservationRequest{
		Zone:      req.Corpus,
		StartTime: req.StartTime,
		Duration:  req.Duration,
	})
	switch {
	case err == nil:
		return wireResponse{ID: req.ID, Cabinet: room.Number, Status: statusAnswer}
	case errors.Is(err, datastore.ErrNoRoomAvailable):
		return wireResponse{ID: req.ID, Status: statusNoRoom}
	case errors.Is(err, ErrBusy):
		return wireResponse{ID: req.ID, Status: statusBusy}
	default:
		var ee *rwerrors.EnhancedError
		if errors.As(err, &ee) && ee.Category == rwerrors.CategoryValidation {
			return wireResponse{ID: req.ID, Status: statusInvalid}
		}
		return wireResponse{ID: req.ID, Status: statusError}
	}
}

// readFrame reads one length-prefixed payload.
func readFrame(r io.Reader) ([]byte, error) {
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return nil, err
	}
	if length == 0 || length > maxJSONPayload {
		return nil, fmt.Errorf("frame length %d out of range", length)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// writeFrame sends one length-prefixed JSON document.
func writeFrame(w io.Writer, resp wireResponse) error {
	payload, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	buf := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[4:], payload)
	_, err = w.Write(buf)
	return err
}
