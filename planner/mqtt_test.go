package planner

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// mockTelemetryHandler records telemetry deliveries
type mockTelemetryHandler struct {
	mock.Mock
}

func (m *mockTelemetryHandler) Handle(text string) {
	m.Called(text)
}

func TestInitMQTT_Disabled(t *testing.T) {
	t.Setenv("MQTT_BROKER", "")

	client, err := InitMQTT(DefaultConfig(), nil)
	assert.NoError(t, err)
	assert.Nil(t, client)
}

func TestInitMQTT_ReturnsImmediately(t *testing.T) {
	t.Setenv("MQTT_BROKER", "tcp://127.0.0.1:1")

	start := time.Now()
	client, err := InitMQTT(DefaultConfig(), nil)
	duration := time.Since(start)

	require.NoError(t, err)
	require.NotNil(t, client)
	assert.Less(t, duration, 100*time.Millisecond, "InitMQTT should connect in the background")
	assert.Equal(t, "fllplanner/telemetry/set", client.CommandTopic())
	client.Disconnect()
}

func TestTopicPrefix(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MQTT.PublishPrefix = "from-config"

	t.Setenv("MQTT_PUBLISH_PREFIX", "")
	assert.Equal(t, "from-config", TopicPrefix(cfg))
	assert.Equal(t, "fllplanner", TopicPrefix(&Config{}))
	assert.Equal(t, "fllplanner", TopicPrefix(nil))

	t.Setenv("MQTT_PUBLISH_PREFIX", "from-env")
	assert.Equal(t, "from-env", TopicPrefix(cfg))
}

func TestMQTTClient_IsConnected(t *testing.T) {
	client := &MQTTClient{}
	assert.False(t, client.IsConnected())

	client.setConnected(true)
	assert.True(t, client.IsConnected())

	client.setConnected(false)
	assert.False(t, client.IsConnected())
}

func TestMQTTClient_OnConnectSubscribes(t *testing.T) {
	mc := NewMockClient()
	mc.SetConnected(true)

	handler := &mockTelemetryHandler{}
	handler.On("Handle", "Drive 1.00\"").Once()

	c := newMQTTClientWithMock(mc, "fll", handler.Handle)
	c.onConnect(mc)
	assert.True(t, c.IsConnected())

	mc.SimulateMessage("fll/telemetry/set", []byte("Drive 1.00\""))
	mc.SimulateMessage("fll/telemetry", []byte("ignored"))

	handler.AssertExpectations(t)
}

func TestMQTTClient_OnConnected(t *testing.T) {
	mc := NewMockClient()
	mc.SetConnected(true)
	c := newMQTTClientWithMock(mc, "fll", nil)

	calls := 0
	c.OnConnected(func() { calls++ })
	assert.Equal(t, 0, calls, "not connected yet")

	c.onConnect(mc)
	assert.Equal(t, 1, calls)

	// registering while connected runs immediately
	late := 0
	c.OnConnected(func() { late++ })
	assert.Equal(t, 1, late)

	c.onConnect(mc)
	assert.Equal(t, 2, late, "runs again on reconnect")
}

func TestMQTTClient_SubscribeError(t *testing.T) {
	mc := NewMockClient()
	mc.SetConnected(true)
	mc.SetSubscribeError(errors.New("denied"))

	handler := &mockTelemetryHandler{}
	c := newMQTTClientWithMock(mc, "fll", handler.Handle)
	c.onConnect(mc)

	mc.SimulateMessage("fll/telemetry/set", []byte("Drive 1.00\""))
	handler.AssertNotCalled(t, "Handle", mock.Anything)
}

func TestMQTTClient_ConnectWithRetry(t *testing.T) {
	mc := NewMockClient()
	handler := &mockTelemetryHandler{}
	handler.On("Handle", mock.AnythingOfType("string")).Return()

	c := newMQTTClientWithMock(mc, "fll", handler.Handle)
	mc.SetOnConnectHandler(c.onConnect)

	c.connectWithRetry()

	assert.True(t, c.IsConnected())
	mc.SimulateMessage(c.CommandTopic(), []byte("Rotate 5.0°"))
	handler.AssertCalled(t, "Handle", "Rotate 5.0°")
}

func TestMQTTClient_DisconnectStopsRetry(t *testing.T) {
	mc := NewMockClient()
	mc.SetConnectError(errors.New("broker down"))
	c := newMQTTClientWithMock(mc, "fll", nil)

	done := make(chan struct{})
	go func() {
		c.connectWithRetry()
		close(done)
	}()

	c.Disconnect()
	c.Disconnect() // idempotent

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("connectWithRetry did not stop after Disconnect")
	}
	assert.False(t, c.IsConnected())
}

func TestMQTTClient_Disconnect(t *testing.T) {
	mc := NewMockClient()
	mc.SetConnected(true)
	c := newMQTTClientWithMock(mc, "fll", nil)
	c.setConnected(true)

	c.Disconnect()

	assert.False(t, mc.IsConnected())
	assert.False(t, c.IsConnected())
	assert.Same(t, mc, c.GetClient())
}

func TestMQTT_SessionEndToEnd(t *testing.T) {
	mc := NewMockClient()
	mc.SetConnected(true)

	session := NewSession(DefaultConfig())
	publisher := NewPublisher(mc, "fll", DefaultPixelsPerUnit)
	session.OnChange(publisher.Listener())

	c := newMQTTClientWithMock(mc, "fll", func(text string) {
		session.LoadTelemetry(text)
	})
	c.onConnect(mc)

	mc.SimulateMessage("fll/telemetry/set", []byte("Rotate -90.0°\nDrive 5.00\"\nMARKER 2 at (10.00, 5.00)\n"))

	telemetry, ok := mc.Retained("fll/telemetry")
	require.True(t, ok)
	assert.Equal(t, "Rotate -90.0°\nDrive 5.00\"\nMARKER 2 at (10.00, 5.00)", string(telemetry))

	raw, ok := mc.Retained("fll/pose")
	require.True(t, ok)
	var pose PoseMessage
	require.NoError(t, json.Unmarshal(raw, &pose))
	assert.Equal(t, session.ID(), pose.SessionID)
	assert.InDelta(t, 10, pose.X, 1e-6)
	assert.InDelta(t, 5, pose.Y, 1e-6)
	assert.InDelta(t, 90, pose.UserAngle, 1e-6)
	assert.Equal(t, 2, pose.Steps)
}
