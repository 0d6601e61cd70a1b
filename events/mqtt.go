package events

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/thinkhire/interview-pipeline/orchestrator"
)

const DefaultWindowTopic = "thinkhire/{session}/windows"

type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	// Topic may contain {session}, replaced by the interview session id.
	Topic string
}

// publisher is the part of mqtt.Client the sink uses.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTSink publishes every feature window as JSON.
type MQTTSink struct {
	pub     publisher
	topic   string
	log     logrus.FieldLogger
	timeout time.Duration
	closer  func()
}

// DialMQTT connects to the broker and returns a sink publishing to it.
func DialMQTT(cfg MQTTConfig, log logrus.FieldLogger) (*MQTTSink, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("component", "mqtt")

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.WithField("broker", cfg.Broker).Info("connected")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.WithError(err).Warn("connection lost")
	})

	c := mqtt.NewClient(opts)
	if tok := c.Connect(); tok.Wait() && tok.Error() != nil {
		return nil, fmt.Errorf("connect to MQTT broker %s: %w", cfg.Broker, tok.Error())
	}
	s := newMQTTSink(c, cfg.Topic, log)
	s.closer = func() { c.Disconnect(250) }
	return s, nil
}

func newMQTTSink(pub publisher, topic string, log logrus.FieldLogger) *MQTTSink {
	if topic == "" {
		topic = DefaultWindowTopic
	}
	return &MQTTSink{pub: pub, topic: topic, log: log, timeout: 5 * time.Second}
}

func (s *MQTTSink) Topic(session string) string {
	return strings.ReplaceAll(s.topic, "{session}", session)
}

// Observe publishes window events and ignores the rest. Delivery is checked
// in the background so the caller is never held up by the broker.
func (s *MQTTSink) Observe(ev orchestrator.Event) {
	if ev.Kind != orchestrator.EventWindow || ev.Window == nil {
		return
	}
	payload, err := json.Marshal(ev.Window)
	if err != nil {
		s.log.WithError(err).Warn("encode window")
		return
	}
	topic := s.Topic(ev.Session)
	tok := s.pub.Publish(topic, 0, false, payload)
	go func() {
		if !tok.WaitTimeout(s.timeout) {
			s.log.WithField("topic", topic).Warn("publish timed out")
			return
		}
		if err := tok.Error(); err != nil {
			s.log.WithError(err).WithField("topic", topic).Warn("publish failed")
		}
	}()
}

func (s *MQTTSink) Close() {
	if s.closer != nil {
		s.closer()
	}
}
