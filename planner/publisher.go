package planner

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// PoseMessage is the JSON payload published on the pose topic
type PoseMessage struct {
	SessionID string  `json:"sessionId"`
	HasPose   bool    `json:"hasPose"`
	X         float64 `json:"x"` // user units
	Y         float64 `json:"y"`
	Heading   float64 `json:"heading"`
	UserAngle float64 `json:"userAngle"`
	Steps     int     `json:"steps"`
	Timestamp int64   `json:"timestamp"`
}

// Publisher publishes session snapshots to MQTT
type Publisher struct {
	client mqtt.Client
	prefix string
	scale  float64
	qos    byte
	retain bool
}

// NewPublisher creates a snapshot publisher. If client is nil, publishing
// is disabled and PublishSnapshot returns an error.
func NewPublisher(client mqtt.Client, prefix string, scale float64) *Publisher {
	if prefix == "" {
		prefix = "fllplanner"
	}
	if scale <= 0 {
		scale = DefaultPixelsPerUnit
	}
	return &Publisher{
		client: client,
		prefix: prefix,
		scale:  scale,
		qos:    0,
		retain: true, // late subscribers get the current plan
	}
}

// TelemetryTopic is the topic carrying the plan's telemetry text
func (p *Publisher) TelemetryTopic() string {
	return p.prefix + "/telemetry"
}

// PoseTopic is the topic carrying the current pose as JSON
func (p *Publisher) PoseTopic() string {
	return p.prefix + "/pose"
}

// PublishCurrent publishes the session's current plan, e.g. after connecting
// so the retained topics hold the plan loaded at startup
func (p *Publisher) PublishCurrent(session *Session) error {
	id, snap := session.Current()
	return p.PublishSnapshot(id, snap)
}

// PublishSnapshot publishes the telemetry text and pose of a snapshot.
// It has the ChangeListener shape so it can be registered on a Session
// through a small wrapper that logs the error.
func (p *Publisher) PublishSnapshot(sessionID string, snap Snapshot) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}

	if err := p.publish(p.TelemetryTopic(), []byte(snap.Telemetry)); err != nil {
		return err
	}

	msg := PoseMessage{
		SessionID: sessionID,
		HasPose:   snap.HasPose,
		X:         snap.Pose.X / p.scale,
		Y:         snap.Pose.Y / p.scale,
		Heading:   snap.Pose.Heading,
		UserAngle: snap.UserAngle,
		Steps:     snap.StepCount,
		Timestamp: time.Now().Unix(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshaling pose: %w", err)
	}
	if err := p.publish(p.PoseTopic(), payload); err != nil {
		return err
	}

	log.Printf("[MQTT] published plan %s: %d steps, pose (%.2f, %.2f) angle=%.1f°",
		sessionID, snap.StepCount, msg.X, msg.Y, msg.UserAngle)
	return nil
}

// Listener adapts PublishSnapshot to a ChangeListener that logs failures
func (p *Publisher) Listener() ChangeListener {
	return func(sessionID string, snap Snapshot) {
		if err := p.PublishSnapshot(sessionID, snap); err != nil {
			log.Printf("[MQTT] error publishing plan: %v", err)
		}
	}
}

func (p *Publisher) publish(topic string, payload []byte) error {
	token := p.client.Publish(topic, p.qos, p.retain, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}
	return nil
}

// SetQoS sets the Quality of Service level for publishing (0, 1, or 2)
func (p *Publisher) SetQoS(qos byte) {
	if qos <= 2 {
		p.qos = qos
	}
}

// SetRetain sets whether published messages should be retained by the broker
func (p *Publisher) SetRetain(retain bool) {
	p.retain = retain
}
