package planner

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPublisher(t *testing.T) {
	p := NewPublisher(nil, "", 0)

	assert.Equal(t, "fllplanner/telemetry", p.TelemetryTopic())
	assert.Equal(t, "fllplanner/pose", p.PoseTopic())
	assert.Equal(t, DefaultPixelsPerUnit, p.scale)
	assert.Equal(t, byte(0), p.qos)
	assert.True(t, p.retain, "plans are retained by default")
}

func TestPublisher_PublishWithNilClient(t *testing.T) {
	p := NewPublisher(nil, "fll", 16)
	assert.Error(t, p.PublishSnapshot("id", Snapshot{}))
}

func TestPublisher_NotConnected(t *testing.T) {
	mc := NewMockClient()
	p := NewPublisher(mc, "fll", 16)
	assert.Error(t, p.PublishSnapshot("id", Snapshot{}))
	assert.Empty(t, mc.GetPublishedMessages())
}

func TestPublisher_PublishSnapshot(t *testing.T) {
	mc := NewMockClient()
	mc.SetConnected(true)
	p := NewPublisher(mc, "fll", 16)

	s := mustClick(t, startedState(), 80, 240)
	require.NoError(t, p.PublishSnapshot("session-1", s.Snapshot()))

	msgs := mc.GetPublishedMessages()
	require.Len(t, msgs, 2)

	assert.Equal(t, "fll/telemetry", msgs[0].Topic)
	assert.Equal(t, "Rotate 0.0°\nDrive 10.00\"", string(msgs[0].Payload))
	assert.True(t, msgs[0].Retain)

	assert.Equal(t, "fll/pose", msgs[1].Topic)
	var pose PoseMessage
	require.NoError(t, json.Unmarshal(msgs[1].Payload, &pose))
	assert.Equal(t, "session-1", pose.SessionID)
	assert.True(t, pose.HasPose)
	assert.InDelta(t, 5, pose.X, 1e-9)
	assert.InDelta(t, 15, pose.Y, 1e-9)
	assert.InDelta(t, 90, pose.Heading, 1e-9)
	assert.InDelta(t, 0, pose.UserAngle, 1e-9)
	assert.Equal(t, 1, pose.Steps)
	assert.NotZero(t, pose.Timestamp)
}

func TestPublisher_PublishCurrent(t *testing.T) {
	mc := NewMockClient()
	mc.SetConnected(true)
	p := NewPublisher(mc, "fll", 16)

	s := NewSession(DefaultConfig())
	applied, _ := s.LoadTelemetry("Rotate 0.0°\nDrive 10.00\"")
	require.True(t, applied)

	require.NoError(t, p.PublishCurrent(s))

	text, ok := mc.Retained("fll/telemetry")
	require.True(t, ok)
	assert.Equal(t, "Rotate 0.0°\nDrive 10.00\"", string(text))

	raw, ok := mc.Retained("fll/pose")
	require.True(t, ok)
	var pose PoseMessage
	require.NoError(t, json.Unmarshal(raw, &pose))
	assert.Equal(t, s.ID(), pose.SessionID)
	assert.Equal(t, 1, pose.Steps)
}

func TestPublisher_PublishError(t *testing.T) {
	mc := NewMockClient()
	mc.SetConnected(true)
	mc.SetPublishError(errors.New("quota"))
	p := NewPublisher(mc, "fll", 16)

	err := p.PublishSnapshot("id", startedState().Snapshot())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fll/telemetry")

	// the listener form logs instead of failing
	assert.NotPanics(t, func() { p.Listener()("id", Snapshot{}) })
}

func TestPublisher_SetQoS(t *testing.T) {
	p := NewPublisher(nil, "fll", 16)
	p.SetQoS(2)
	assert.Equal(t, byte(2), p.qos)
	p.SetQoS(3)
	assert.Equal(t, byte(2), p.qos, "invalid QoS is ignored")
}

func TestPublisher_SetRetain(t *testing.T) {
	mc := NewMockClient()
	mc.SetConnected(true)
	p := NewPublisher(mc, "fll", 16)
	p.SetRetain(false)

	require.NoError(t, p.PublishSnapshot("id", startedState().Snapshot()))
	for _, m := range mc.GetPublishedMessages() {
		assert.False(t, m.Retain)
	}
	_, ok := mc.Retained("fll/telemetry")
	assert.False(t, ok)
}
