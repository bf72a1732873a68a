// Package door bridges the relay controller onto MQTT.
//
// The bridge mirrors door activity onto the broker and accepts commands
// from it, so home-automation systems and wall panels can drive the door
// without speaking HTTP:
//
//	┌─────────────────┐          ┌─────────────────┐
//	│   Latch Core    │  events  │   Door Bridge   │   MQTT
//	│   (controller)  │─────────►│   (this pkg)    │◄────────► Broker
//	└─────────────────┘          └─────────────────┘
//
// # Key Responsibilities
//
//   - Forward relay events to the event topic
//   - Maintain retained door state and availability topics
//   - Translate inbound {"action":"unlock"} / {"action":"lock"} messages
//     to controller calls
//
// Command outcomes are not acknowledged on a dedicated topic. A failed
// command produces a command_failed event on the event topic; a successful
// one produces unlocked/locked events and a retained state update, which
// is all a subscriber needs to track the door.
//
// # Thread Safety
//
// All exported methods are safe for concurrent use from multiple goroutines.
package door
