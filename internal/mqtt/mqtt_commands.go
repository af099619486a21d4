package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"signal-testbed/internal/commands"
	"signal-testbed/internal/eventBus"
	"signal-testbed/internal/mesh"
	"signal-testbed/internal/node"
	"signal-testbed/internal/sim"

	"github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// commandTimeout bounds how long a message handler waits for the runner.
const commandTimeout = 5 * time.Second

// ProcessMqttNodeMessage handles messages coming from the
// "simulation/register" topic. When a payload names a status topic the
// outcome is acknowledged there through pub, which may be nil.
func ProcessMqttNodeMessage(runner *sim.Runner, pub Publisher) func(mqtt.Client, mqtt.Message) {
	return func(client mqtt.Client, msg mqtt.Message) {
		var payload MqttNodePayload
		if err := json.Unmarshal(msg.Payload(), &payload); err != nil {
			log.Printf("[mqtt] Error parsing payload on %s: %v", msg.Topic(), err)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		err := runner.Do(ctx, func(world *sim.World) error {
			return apply(world, payload)
		})
		if err != nil {
			log.Printf("[mqtt] %s %s failed: %v", payload.Event, payload.NodeID, err)
		} else {
			log.Printf("[mqtt] %s %s done", payload.Event, payload.NodeID)
		}
		ack(pub, payload, err)
	}
}

func apply(world *sim.World, payload MqttNodePayload) error {
	key, err := uuid.Parse(payload.NodeID)
	if err != nil {
		return fmt.Errorf("invalid node_id %q: %w", payload.NodeID, err)
	}

	if payload.Event == "register" {
		_, err := commands.Create(world, commands.CreateNodePayload{
			NodeID:      payload.NodeID,
			X:           payload.X,
			Y:           payload.Y,
			Z:           payload.Z,
			Repeater:    payload.Repeater,
			Broadcaster: payload.Broadcaster,
		}, node.WithKey(key))
		return err
	}

	n, ok := world.LookupKey(key)
	if !ok {
		return fmt.Errorf("%w: %s", sim.ErrUnknownNode, key)
	}
	switch payload.Event {
	case "remove":
		return world.RemoveNode(n.ID())
	case "move":
		return world.MoveNode(n.ID(), mesh.CreateCoordinates(payload.X, payload.Y, payload.Z))
	case "activate":
		return world.SetActive(n.ID(), true)
	case "deactivate":
		return world.SetActive(n.ID(), false)
	default:
		return fmt.Errorf("unknown event type %q", payload.Event)
	}
}

func ack(pub Publisher, payload MqttNodePayload, err error) {
	if pub == nil || payload.StatusTopic == "" {
		return
	}
	status := MqttStatus{NodeID: payload.NodeID, Event: payload.Event, OK: err == nil}
	if err != nil {
		status.Error = err.Error()
	}
	body, _ := json.Marshal(status)
	if err := pub.Publish(payload.StatusTopic, 1, false, body); err != nil {
		log.Printf("[mqtt] Status publish to %s failed: %v", payload.StatusTopic, err)
	}
}

// RelayEvents republishes bus events as JSON on "<prefix>/<event type>"
// until ctx is done or the bus is closed. An empty types set relays
// everything.
func RelayEvents(ctx context.Context, bus *eventBus.EventBus, pub Publisher, prefix string, types ...eventBus.EventType) {
	only := make(map[eventBus.EventType]bool, len(types))
	for _, t := range types {
		only[t] = true
	}
	ch := bus.Subscribe()
	defer bus.Unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if len(only) > 0 && !only[ev.Type] {
				continue
			}
			body, err := json.Marshal(ev)
			if err != nil {
				log.Printf("[mqtt] Encode %s: %v", ev.Type, err)
				continue
			}
			if err := pub.Publish(prefix+"/"+string(ev.Type), 0, false, body); err != nil {
				log.Printf("[mqtt] Relay %s failed: %v", ev.Type, err)
			}
		}
	}
}
