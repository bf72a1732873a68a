package mqtt

import "fmt"

// DefaultTopicPrefix is the base for all Latch topics when no prefix is
// configured.
const DefaultTopicPrefix = "latch"

// Topics provides builders for Latch MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
// The topic tree is small and flat:
//
//	latch/system/status      service availability (retained, LWT)
//	latch/door/state         door state: locked/unlocked/unknown (retained)
//	latch/door/availability  relay link state: online/offline (retained)
//	latch/door/event         event stream (not retained)
//	latch/door/command       inbound unlock/lock requests
//
// Example:
//
//	topics := mqtt.NewTopics(cfg.MQTT.TopicPrefix)
//	stateTopic := topics.DoorState()
//	// Returns: "latch/door/state"
type Topics struct {
	prefix string
}

// NewTopics creates a topic builder with the given prefix.
// An empty prefix falls back to DefaultTopicPrefix.
func NewTopics(prefix string) Topics {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{prefix: prefix}
}

// SystemStatus returns the service status topic.
// Carries online/offline payloads and the Last Will message.
//
// Example: latch/system/status
func (t Topics) SystemStatus() string {
	return fmt.Sprintf("%s/system/status", t.prefix)
}

// DoorState returns the retained door state topic.
//
// Example: latch/door/state
func (t Topics) DoorState() string {
	return fmt.Sprintf("%s/door/state", t.prefix)
}

// DoorAvailability returns the retained relay availability topic.
//
// Example: latch/door/availability
func (t Topics) DoorAvailability() string {
	return fmt.Sprintf("%s/door/availability", t.prefix)
}

// DoorEvent returns the event stream topic.
//
// Example: latch/door/event
func (t Topics) DoorEvent() string {
	return fmt.Sprintf("%s/door/event", t.prefix)
}

// DoorCommand returns the inbound command topic.
// External systems publish unlock/lock requests here.
//
// Example: latch/door/command
func (t Topics) DoorCommand() string {
	return fmt.Sprintf("%s/door/command", t.prefix)
}
