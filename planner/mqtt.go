package planner

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// TelemetryHandler is called with the text of every telemetry command message
type TelemetryHandler func(text string)

// MQTTClient manages the broker connection and the telemetry command subscription
type MQTTClient struct {
	client      mqtt.Client
	prefix      string
	handler     TelemetryHandler
	connected   func()
	isConnected bool
	done        chan struct{}
	closeOnce   sync.Once
	mu          sync.RWMutex
}

// InitMQTT creates the MQTT client and starts connecting in the background.
// If no broker is configured (MQTT_BROKER or config), MQTT is disabled and
// this returns nil, nil.
func InitMQTT(config *Config, handler TelemetryHandler) (*MQTTClient, error) {
	broker := os.Getenv("MQTT_BROKER")
	if broker == "" && config != nil {
		broker = config.MQTT.Broker
	}
	if broker == "" {
		log.Println("[MQTT] disabled: MQTT_BROKER not set")
		return nil, nil
	}
	if config == nil {
		return nil, fmt.Errorf("MQTT enabled but no configuration provided")
	}

	client := &MQTTClient{
		prefix:  TopicPrefix(config),
		handler: handler,
		done:    make(chan struct{}),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)

	clientID := os.Getenv("MQTT_CLIENT_ID")
	if clientID == "" {
		clientID = config.MQTT.ClientID
	}
	if clientID == "" {
		clientID = "fllplanner"
	}
	opts.SetClientID(clientID)

	username := os.Getenv("MQTT_USERNAME")
	if username == "" {
		username = config.MQTT.Username
	}
	if username != "" {
		opts.SetUsername(username)
		password := os.Getenv("MQTT_PASSWORD")
		if password == "" {
			password = config.MQTT.Password
		}
		opts.SetPassword(password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetCleanSession(false)
	opts.SetOrderMatters(true) // telemetry commands replace each other; keep arrival order

	opts.SetOnConnectHandler(client.onConnect)
	opts.SetConnectionLostHandler(client.onConnectionLost)
	opts.SetReconnectingHandler(client.onReconnecting)

	client.client = mqtt.NewClient(opts)

	go client.connectWithRetry()

	return client, nil
}

// TopicPrefix resolves the topic prefix: MQTT_PUBLISH_PREFIX, then config, then "fllplanner"
func TopicPrefix(config *Config) string {
	if prefix := os.Getenv("MQTT_PUBLISH_PREFIX"); prefix != "" {
		return prefix
	}
	if config != nil && config.MQTT.PublishPrefix != "" {
		return config.MQTT.PublishPrefix
	}
	return "fllplanner"
}

// CommandTopic is the topic on which replacement telemetry is received
func (c *MQTTClient) CommandTopic() string {
	return c.prefix + "/telemetry/set"
}

// connectWithRetry attempts to connect to the broker with exponential backoff
// until it succeeds or the client is disconnected.
func (c *MQTTClient) connectWithRetry() {
	retryDelay := 1 * time.Second
	maxRetryDelay := 60 * time.Second

	for {
		log.Println("[MQTT] connecting to broker...")

		token := c.client.Connect()
		if token.WaitTimeout(10 * time.Second) {
			if token.Error() == nil {
				log.Println("[MQTT] connected to broker")
				c.setConnected(true)
				return
			}
			log.Printf("[MQTT] connection failed: %v", token.Error())
		} else {
			log.Println("[MQTT] connection timeout")
		}

		log.Printf("[MQTT] retrying connection in %v...", retryDelay)
		select {
		case <-c.done:
			return
		case <-time.After(retryDelay):
		}
		retryDelay *= 2
		if retryDelay > maxRetryDelay {
			retryDelay = maxRetryDelay
		}
	}
}

// onConnect subscribes to the command topic; it runs again after every reconnect
func (c *MQTTClient) onConnect(client mqtt.Client) {
	c.setConnected(true)

	topic := c.CommandTopic()
	log.Printf("[MQTT] subscribing to %s", topic)
	token := client.Subscribe(topic, 1, c.handleTelemetry)
	if token.WaitTimeout(5*time.Second) && token.Error() != nil {
		log.Printf("[MQTT] error subscribing to %s: %v", topic, token.Error())
	} else {
		log.Printf("[MQTT] subscribed to %s", topic)
	}

	c.mu.RLock()
	fn := c.connected
	c.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

// OnConnected registers fn to run after every (re)connect. If the client
// is already connected fn also runs once immediately.
func (c *MQTTClient) OnConnected(fn func()) {
	c.mu.Lock()
	c.connected = fn
	connected := c.isConnected
	c.mu.Unlock()
	if connected {
		fn()
	}
}

// onConnectionLost is called when the connection drops; auto-reconnect will retry
func (c *MQTTClient) onConnectionLost(client mqtt.Client, err error) {
	log.Printf("[MQTT] connection interrupted (%v), auto-reconnect will retry", err)
	c.setConnected(false)
}

func (c *MQTTClient) onReconnecting(client mqtt.Client, opts *mqtt.ClientOptions) {
	log.Println("[MQTT] reconnecting...")
}

func (c *MQTTClient) handleTelemetry(client mqtt.Client, msg mqtt.Message) {
	payload := msg.Payload()
	log.Printf("[MQTT] received telemetry (topic: %s, size: %d bytes)", msg.Topic(), len(payload))
	if c.handler != nil {
		c.handler(string(payload))
	}
}

// IsConnected returns true if the MQTT client is connected
func (c *MQTTClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isConnected
}

func (c *MQTTClient) setConnected(connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isConnected = connected
}

// Disconnect stops any pending connection retry and closes the connection
func (c *MQTTClient) Disconnect() {
	c.closeOnce.Do(func() { close(c.done) })
	if c.client != nil && c.client.IsConnected() {
		log.Println("[MQTT] disconnecting from broker...")
		c.client.Disconnect(250)
		c.setConnected(false)
	}
}

// GetClient returns the underlying MQTT client for publishing
func (c *MQTTClient) GetClient() mqtt.Client {
	return c.client
}

// newMQTTClientWithMock creates an MQTTClient around a provided mqtt.Client
func newMQTTClientWithMock(client mqtt.Client, prefix string, handler TelemetryHandler) *MQTTClient {
	return &MQTTClient{
		client:  client,
		prefix:  prefix,
		handler: handler,
		done:    make(chan struct{}),
	}
}
