package mqtt

import (
	"fmt"
	"log"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Publisher is the part of MQTTManager the handlers need.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) error
}

// MQTTManager manages the MQTT connection and message routing.
type MQTTManager struct {
	client mqtt.Client
}

// New creates and connects a new MQTTManager.
func New(broker, clientID string) (*MQTTManager, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Printf("[mqtt] Connection lost: %v", err)
		})
	// Messages on topics without a dedicated handler are only logged.
	opts.SetDefaultPublishHandler(func(client mqtt.Client, msg mqtt.Message) {
		log.Printf("[mqtt] Unhandled message on topic %s: %s", msg.Topic(), msg.Payload())
	})

	manager := &MQTTManager{client: mqtt.NewClient(opts)}
	if token := manager.client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", broker, token.Error())
	}
	log.Printf("[mqtt] Connected to %s as %s", broker, clientID)
	return manager, nil
}

// Subscribe subscribes to a specific topic with the desired QoS.
func (m *MQTTManager) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) error {
	token := m.client.Subscribe(topic, qos, callback)
	token.Wait()
	return token.Error()
}

// Publish publishes a message to the given topic.
func (m *MQTTManager) Publish(topic string, qos byte, retained bool, payload interface{}) error {
	token := m.client.Publish(topic, qos, retained, payload)
	token.Wait()
	return token.Error()
}

// Disconnect performs a clean disconnect from the MQTT broker.
func (m *MQTTManager) Disconnect() {
	m.client.Disconnect(250)
}
