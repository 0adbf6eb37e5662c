package tagio

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type MQTTConfig struct {
	// Prefix is the topic root; tag T lives on <Prefix>/T.
	Prefix   string `yaml:"prefix" json:"prefix"`
	ClientID string `yaml:"client_id" json:"client_id"`
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
	QoS      byte   `yaml:"qos" json:"qos"`
}

func DefaultMQTTConfig() MQTTConfig {
	return MQTTConfig{Prefix: "fopdtsim", ClientID: "fopdtsim", QoS: 1}
}

type payload struct {
	Value float64 `json:"value"`
	TS    int64   `json:"ts,omitempty"`
}

// MQTT serves tag reads from the latest retained sample on each tag's
// topic and publishes writes as retained messages.
type MQTT struct {
	cfg    MQTTConfig
	mu     sync.RWMutex
	client mqtt.Client
	cache  map[string]float64
}

func NewMQTT(cfg MQTTConfig) *MQTT {
	if cfg.Prefix == "" {
		cfg.Prefix = "fopdtsim"
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "fopdtsim"
	}
	return &MQTT{cfg: cfg, cache: make(map[string]float64)}
}

// BrokerURL turns a host[:port] address into a paho broker URL.
func BrokerURL(address string) string {
	if strings.Contains(address, "://") {
		return address
	}
	if _, _, err := net.SplitHostPort(address); err != nil {
		address = net.JoinHostPort(address, "1883")
	}
	return "tcp://" + address
}

func (m *MQTT) Topic(tag string) string {
	return m.cfg.Prefix + "/" + tag
}

func (m *MQTT) Connect(ctx context.Context, address, unit string, timeout time.Duration) error {
	clientID := m.cfg.ClientID
	if unit != "" {
		clientID += "-" + unit
	}
	opts := mqtt.NewClientOptions().
		AddBroker(BrokerURL(address)).
		SetClientID(clientID).
		SetConnectTimeout(timeout).
		SetAutoReconnect(true)
	if m.cfg.Username != "" {
		opts.SetUsername(m.cfg.Username)
		opts.SetPassword(m.cfg.Password)
	}

	c := mqtt.NewClient(opts)
	if err := wait(ctx, c.Connect(), timeout); err != nil {
		return fmt.Errorf("mqtt connect %s: %w", address, err)
	}

	sub := c.Subscribe(m.cfg.Prefix+"/+", m.cfg.QoS, func(_ mqtt.Client, msg mqtt.Message) {
		m.handle(msg.Topic(), msg.Payload())
	})
	if err := wait(ctx, sub, timeout); err != nil {
		c.Disconnect(0)
		return fmt.Errorf("mqtt subscribe: %w", err)
	}

	m.mu.Lock()
	m.client = c
	m.mu.Unlock()
	return nil
}

func wait(ctx context.Context, tok mqtt.Token, timeout time.Duration) error {
	if dl, ok := ctx.Deadline(); ok {
		if d := time.Until(dl); d < timeout || timeout <= 0 {
			timeout = d
		}
	}
	if timeout <= 0 {
		tok.Wait()
	} else if !tok.WaitTimeout(timeout) {
		return fmt.Errorf("timed out after %s", timeout)
	}
	return tok.Error()
}

func (m *MQTT) handle(topic string, raw []byte) {
	tag, ok := strings.CutPrefix(topic, m.cfg.Prefix+"/")
	if !ok || tag == "" {
		return
	}
	v, err := decode(raw)
	if err != nil {
		return
	}
	m.mu.Lock()
	m.cache[tag] = v
	m.mu.Unlock()
}

// decode accepts either {"value": x} or a bare number.
func decode(raw []byte) (float64, error) {
	var p payload
	if err := json.Unmarshal(raw, &p); err == nil {
		return p.Value, nil
	}
	return strconv.ParseFloat(strings.TrimSpace(string(raw)), 64)
}

func (m *MQTT) connected() bool {
	return m.client != nil && m.client.IsConnected()
}

func (m *MQTT) Read(ctx context.Context, tags []string) ([]Value, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Value, len(tags))
	for i, tag := range tags {
		switch v, ok := m.cache[tag]; {
		case !m.connected():
			out[i] = Failed(StatusOffline)
		case !ok:
			out[i] = Failed(StatusNoData)
		default:
			out[i] = Success(v)
		}
	}
	return out, nil
}

func (m *MQTT) Write(ctx context.Context, tag string, v float64) (Value, error) {
	m.mu.RLock()
	c := m.client
	ok := m.connected()
	m.mu.RUnlock()
	if !ok {
		return Failed(StatusOffline), nil
	}

	body, err := json.Marshal(payload{Value: v, TS: time.Now().UnixMilli()})
	if err != nil {
		return Value{}, err
	}
	if err := wait(ctx, c.Publish(m.Topic(tag), m.cfg.QoS, true, body), 0); err != nil {
		return Value{}, fmt.Errorf("mqtt publish %s: %w", tag, err)
	}

	m.mu.Lock()
	m.cache[tag] = v
	m.mu.Unlock()
	return Success(v), nil
}

func (m *MQTT) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client != nil {
		m.client.Disconnect(250)
		m.client = nil
	}
	return nil
}
