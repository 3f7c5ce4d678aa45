package notify

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	logger "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Logger"
	mqtmodels "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Models"
)

type recordingNotifier struct {
	mu      sync.Mutex
	name    string
	err     error
	changes []mqtmodels.StateChange
}

func (r *recordingNotifier) Name() string { return r.name }

func (r *recordingNotifier) Publish(_ context.Context, change mqtmodels.StateChange) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, change)
	return r.err
}

func TestFanout_FailingNotifierDoesNotStopOthers(t *testing.T) {
	broken := &recordingNotifier{name: "broken", err: errors.New("broker down")}
	healthy := &recordingNotifier{name: "healthy"}
	f := NewFanout(logger.Nop(), broken)
	f.Add(healthy)

	err := f.Publish(context.Background(), mqtmodels.StateChange{DeviceID: "d1", Bitmask: 0x0008})
	require.NoError(t, err)
	assert.Len(t, broken.changes, 1)
	require.Len(t, healthy.changes, 1)
	assert.Equal(t, uint16(0x0008), healthy.changes[0].Bitmask)
}

type fakeToken struct {
	err  error
	done chan struct{}
}

func newFakeToken(err error) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeMQTT struct {
	connected bool
	err       error
	sent      []published
}

func (f *fakeMQTT) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	f.sent = append(f.sent, published{topic, qos, retained, payload.([]byte)})
	return newFakeToken(f.err)
}
func (f *fakeMQTT) IsConnected() bool { return f.connected }
func (f *fakeMQTT) Disconnect(uint)   { f.connected = false }

func TestMQTTPublisher_RetainedTwoBytePayload(t *testing.T) {
	client := &fakeMQTT{connected: true}
	p := newMQTTPublisher(client, "devices", logger.Nop())

	require.NoError(t, p.Publish(context.Background(), mqtmodels.StateChange{DeviceID: "esp32-01", Bitmask: 0x0102, Version: 1}))
	require.Len(t, client.sent, 1)
	assert.Equal(t, "devices/esp32-01/state", client.sent[0].topic)
	assert.Equal(t, byte(1), client.sent[0].qos)
	assert.True(t, client.sent[0].retained)
	assert.Equal(t, []byte{0x01, 0x02}, client.sent[0].payload)
}

func TestMQTTPublisher_Errors(t *testing.T) {
	p := newMQTTPublisher(&fakeMQTT{connected: false}, "devices", logger.Nop())
	assert.Error(t, p.Publish(context.Background(), mqtmodels.StateChange{DeviceID: "d1"}))

	p = newMQTTPublisher(&fakeMQTT{connected: true, err: errors.New("not authorized")}, "devices", logger.Nop())
	err := p.Publish(context.Background(), mqtmodels.StateChange{DeviceID: "d1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "devices/d1/state")
}

type fakeNATS struct {
	subjects []string
	payloads [][]byte
	closed   bool
}

func (f *fakeNATS) Publish(subj string, data []byte) error {
	f.subjects = append(f.subjects, subj)
	f.payloads = append(f.payloads, data)
	return nil
}
func (f *fakeNATS) Close() { f.closed = true }

func TestNATSPublisher_Subject(t *testing.T) {
	conn := &fakeNATS{}
	p := &NATSPublisher{conn: conn, prefix: "devices", logger: logger.Nop()}

	require.NoError(t, p.Publish(context.Background(), mqtmodels.StateChange{DeviceID: "relay_2", Bitmask: 0x8000}))
	assert.Equal(t, []string{"devices.relay_2.state"}, conn.subjects)
	assert.Equal(t, []byte{0x80, 0x00}, conn.payloads[0])

	require.NoError(t, p.Close())
	assert.True(t, conn.closed)
}

func TestHub_StreamsInitialAndDeviceChanges(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(logger.Nop(), nil)
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deviceID := r.URL.Query().Get("device")
		_ = hub.ServeWS(w, r, deviceID, func(context.Context) (*mqtmodels.DeviceState, error) {
			return &mqtmodels.DeviceState{DeviceID: deviceID, Bitmask: 0x0001, Version: 1}, nil
		})
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?device=d1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	kind, frame, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, kind)
	assert.Equal(t, []byte{0x00, 0x01}, frame)

	// another device's change must not reach this stream
	require.NoError(t, hub.Publish(ctx, mqtmodels.StateChange{DeviceID: "d2", Bitmask: 0xFFFF, Version: 7}))
	require.NoError(t, hub.Publish(ctx, mqtmodels.StateChange{DeviceID: "d1", Bitmask: 0x0009, Version: 2}))

	_, frame, err = conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x09}, frame)
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://ui.example"})

	req := httptest.NewRequest(http.MethodGet, "http://api.example/ws", nil)
	assert.True(t, check(req))

	req.Header.Set("Origin", "https://ui.example")
	assert.True(t, check(req))

	req.Header.Set("Origin", "https://evil.example")
	assert.False(t, check(req))
}

func TestMQTTPublisher_DropsOutOfOrderChanges(t *testing.T) {
	client := &fakeMQTT{connected: true}
	p := newMQTTPublisher(client, "devices", logger.Nop())
	ctx := context.Background()

	// v3 reaches the publisher before v2 although v2 committed first
	require.NoError(t, p.Publish(ctx, mqtmodels.StateChange{DeviceID: "d1", Bitmask: 0x0003, Version: 3}))
	require.NoError(t, p.Publish(ctx, mqtmodels.StateChange{DeviceID: "d1", Bitmask: 0x0001, Version: 2}))
	require.NoError(t, p.Publish(ctx, mqtmodels.StateChange{DeviceID: "d2", Bitmask: 0x0010, Version: 1}))
	require.NoError(t, p.Publish(ctx, mqtmodels.StateChange{DeviceID: "d1", Bitmask: 0x0007, Version: 4}))

	require.Len(t, client.sent, 3)
	assert.Equal(t, []byte{0x00, 0x03}, client.sent[0].payload)
	assert.Equal(t, "devices/d2/state", client.sent[1].topic)
	assert.Equal(t, []byte{0x00, 0x07}, client.sent[2].payload)
}

func TestNATSPublisher_DropsOutOfOrderChanges(t *testing.T) {
	conn := &fakeNATS{}
	p := &NATSPublisher{conn: conn, prefix: "devices", logger: logger.Nop()}
	ctx := context.Background()

	require.NoError(t, p.Publish(ctx, mqtmodels.StateChange{DeviceID: "d1", Bitmask: 0x0002, Version: 5}))
	require.NoError(t, p.Publish(ctx, mqtmodels.StateChange{DeviceID: "d1", Bitmask: 0x0001, Version: 5}))
	require.NoError(t, p.Publish(ctx, mqtmodels.StateChange{DeviceID: "d1", Bitmask: 0x0004, Version: 4}))

	assert.Equal(t, [][]byte{{0x00, 0x02}}, conn.payloads)
}

func TestHub_ChangeDuringInitialLoadIsStreamed(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(logger.Nop(), nil)
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = hub.ServeWS(w, r, "d1", func(context.Context) (*mqtmodels.DeviceState, error) {
			// a write commits as v2 while v1 is being read
			_ = hub.Publish(ctx, mqtmodels.StateChange{DeviceID: "d1", Bitmask: 0x0003, Version: 2})
			return &mqtmodels.DeviceState{DeviceID: "d1", Bitmask: 0x0001, Version: 1}, nil
		})
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	_, frame, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x01}, frame)

	_, frame, err = conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x03}, frame)

	// stale versions never reach the stream
	require.NoError(t, hub.Publish(ctx, mqtmodels.StateChange{DeviceID: "d1", Bitmask: 0x00FF, Version: 2}))
	require.NoError(t, hub.Publish(ctx, mqtmodels.StateChange{DeviceID: "d1", Bitmask: 0x0007, Version: 3}))

	_, frame, err = conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x07}, frame)
}

func TestHub_LoadFailureClosesStream(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(logger.Nop(), nil)
	go hub.Run(ctx)

	served := make(chan error, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		served <- hub.ServeWS(w, r, "d1", func(context.Context) (*mqtmodels.DeviceState, error) {
			return nil, errors.New("store unavailable")
		})
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseInternalServerErr), "got %v", err)
	assert.EqualError(t, <-served, "store unavailable")
}
