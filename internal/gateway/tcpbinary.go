// tcpbinary.go: the fixed-record occupancy push feed. Each record is nine
// bytes: big-endian room id, big-endian room number, one busy byte. Clients
// receive a full snapshot on connect and after every completed sampling
// window.
package gateway

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"time"

	"roomwatch/internal/datastore"
)

const occupancyRecordSize = 9

// writeDeadline bounds one snapshot write so a stalled client cannot hold
// the broadcast lock.
const writeDeadline = 5 * time.Second

// BinaryServer pushes occupancy snapshots to every connected client.
type BinaryServer struct {
	ds datastore.Interface

	mu      sync.Mutex
	lis     net.Listener
	clients map[net.Conn]struct{}
}

// NewBinaryServer creates the push adapter over the store.
func NewBinaryServer(ds datastore.Interface) *BinaryServer {
	return &BinaryServer{
		ds:      ds,
		clients: make(map[net.Conn]struct{}),
	}
}

// ListenAndServe binds the port and serves until the context is canceled.
func (s *BinaryServer) ListenAndServe(ctx context.Context, port string) error {
	lis, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return fmt.Errorf("binary adapter listen failed: %w", err)
	}
	return s.Serve(ctx, lis)
}

// Serve accepts clients until the context is canceled.
func (s *BinaryServer) Serve(ctx context.Context, lis net.Listener) error {
	s.mu.Lock()
	s.lis = lis
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		_ = lis.Close()
		s.closeAll()
	}()

	gatewayLogger.Info("binary adapter listening", "addr", lis.Addr().String())
	for {
		conn, err := lis.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("binary adapter accept failed: %w", err)
		}
		s.register(conn)
	}
}

// Addr returns the bound address, for tests that listen on an ephemeral port.
func (s *BinaryServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lis == nil {
		return nil
	}
	return s.lis.Addr()
}

// register adds the client and sends it the current snapshot immediately.
func (s *BinaryServer) register(conn net.Conn) {
	s.mu.Lock()
	s.clients[conn] = struct{}{}
	s.mu.Unlock()
	gatewayLogger.Debug("binary client connected", "remote", conn.RemoteAddr().String())

	view, err := s.ds.Occupancy()
	if err != nil {
		gatewayLogger.Error("occupancy snapshot failed", "error", err)
		return
	}
	s.sendTo(conn, encodeOccupancy(view))
}

// Broadcast pushes the current occupancy snapshot to every connected client.
// Clients that fail to take the write are dropped.
func (s *BinaryServer) Broadcast() {
	view, err := s.ds.Occupancy()
	if err != nil {
		gatewayLogger.Error("occupancy snapshot failed", "error", err)
		return
	}
	payload := encodeOccupancy(view)

	s.mu.Lock()
	conns := make([]net.Conn, 0, len(s.clients))
	for conn := range s.clients {
		conns = append(conns, conn)
	}
	s.mu.Unlock()

	for _, conn := range conns {
		s.sendTo(conn, payload)
	}
}

func (s *BinaryServer) sendTo(conn net.Conn, payload []byte) {
	_ = conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	if _, err := conn.Write(payload); err != nil {
		gatewayLogger.Debug("binary client dropped",
			"remote", conn.RemoteAddr().String(), "error", err)
		s.drop(conn)
	}
}

func (s *BinaryServer) drop(conn net.Conn) {
	s.mu.Lock()
	delete(s.clients, conn)
	s.mu.Unlock()
	_ = conn.Close()
}

func (s *BinaryServer) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.clients {
		_ = conn.Close()
	}
	s.clients = make(map[net.Conn]struct{})
}

// encodeOccupancy packs the whole view into consecutive 9-byte records.
func encodeOccupancy(view []datastore.RoomOccupancy) []byte {
	buf := make([]byte, 0, len(view)*occupancyRecordSize)
	for i := range view {
		buf = appendOccupancyRecord(buf, &view[i])
	}
	return buf
}

func appendOccupancyRecord(buf []byte, ro *datastore.RoomOccupancy) []byte {
	var rec [occupancyRecordSize]byte
	binary.BigEndian.PutUint32(rec[0:4], uint32(ro.RoomID))
	binary.BigEndian.PutUint32(rec[4:8], uint32(ro.RoomNumber))
	if ro.Busy {
		rec[8] = 1
	}
	return append(buf, rec[:]...)
}
