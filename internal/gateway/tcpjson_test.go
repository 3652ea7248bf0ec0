package gateway

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"net"
	"testing"
	"time"

	"roomwatch/internal/datastore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startJSONServer(t *testing.T, store *ledgerStore) (*JSONServer, net.Conn) {
	t.Helper()

	srv := NewJSONServer(newTestGateway(store))
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, lis) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	conn, err := net.DialTimeout("tcp", lis.Addr().String(), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return srv, conn
}

func sendRequest(t *testing.T, conn net.Conn, req wireRequest) wireResponse {
	t.Helper()

	payload, err := json.Marshal(req)
	require.NoError(t, err)
	frame := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(frame, uint32(len(payload)))
	copy(frame[4:], payload)
	_, err = conn.Write(frame)
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var length uint32
	require.NoError(t, binary.Read(conn, binary.BigEndian, &length))
	body := make([]byte, length)
	_, err = conn.Read(body)
	require.NoError(t, err)

	var resp wireResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	return resp
}

func TestJSONServerGrantsRoom(t *testing.T) {
	store := &ledgerStore{reserveRoom: &datastore.Room{ID: 1, Name: "N101", Number: 101, Zone: "North"}}
	_, conn := startJSONServer(t, store)

	resp := sendRequest(t, conn, wireRequest{
		ID: 42, Corpus: "North", StartTime: "09:30", Duration: 60,
	})
	assert.Equal(t, 42, resp.ID)
	assert.Equal(t, 101, resp.Cabinet)
	assert.Equal(t, statusAnswer, resp.Status)

	q := store.lastQuery()
	assert.Equal(t, "North", q.Zone)
	assert.Equal(t, "09:30:00", q.StartTime)
	assert.Equal(t, "10:30:00", q.EndTime)
}

func TestJSONServerNoRoom(t *testing.T) {
	store := &ledgerStore{reserveErr: datastore.ErrNoRoomAvailable}
	_, conn := startJSONServer(t, store)

	resp := sendRequest(t, conn, wireRequest{ID: 7, Corpus: "North", StartTime: "09:00", Duration: 30})
	assert.Equal(t, 7, resp.ID)
	assert.Zero(t, resp.Cabinet)
	assert.Equal(t, statusNoRoom, resp.Status)
}

func TestJSONServerInvalidRequest(t *testing.T) {
	_, conn := startJSONServer(t, &ledgerStore{})

	resp := sendRequest(t, conn, wireRequest{ID: 9, Corpus: "North", StartTime: "nonsense", Duration: 30})
	assert.Equal(t, statusInvalid, resp.Status)
}

func TestJSONServerMultipleRequestsPerConnection(t *testing.T) {
	store := &ledgerStore{reserveRoom: &datastore.Room{ID: 2, Number: 202}}
	_, conn := startJSONServer(t, store)

	for i := 0; i < 3; i++ {
		resp := sendRequest(t, conn, wireRequest{
			ID: i, Corpus: "South", StartTime: "10:00", Duration: 45,
		})
		assert.Equal(t, i, resp.ID)
		assert.Equal(t, 202, resp.Cabinet)
	}
}

func TestReadFrameRejectsOversizedLength(t *testing.T) {
	var frame bytes.Buffer
	require.NoError(t, binary.Write(&frame, binary.BigEndian, uint32(maxJSONPayload+1)))
	frame.WriteString("ignored")

	_, err := readFrame(&frame)
	assert.ErrorContains(t, err, "out of range")
}

func TestReadFrameRejectsZeroLength(t *testing.T) {
	_, err := readFrame(bytes.NewReader([]byte{0, 0, 0, 0}))
	assert.Error(t, err)
}

func TestWriteFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeFrame(&buf, wireResponse{ID: 1, Cabinet: 303, Status: statusAnswer}))

	payload, err := readFrame(&buf)
	require.NoError(t, err)

	var resp wireResponse
	require.NoError(t, json.Unmarshal(payload, &resp))
	assert.Equal(t, 303, resp.Cabinet)
}

func TestJSONServerMalformedPayloadGetsInvalidStatus(t *testing.T) {
	_, conn := startJSONServer(t, &ledgerStore{})

	payload := []byte("{not json")
	frame := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(frame, uint32(len(payload)))
	copy(frame[4:], payload)
	_, err := conn.Write(frame)
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var length uint32
	require.NoError(t, binary.Read(conn, binary.BigEndian, &length))
	body := make([]byte, length)
	_, err = conn.Read(body)
	require.NoError(t, err)

	var resp wireResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	assert.Equal(t, statusInvalid, resp.Status)
}
