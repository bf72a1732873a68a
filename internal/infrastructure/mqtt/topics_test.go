package mqtt

import "testing"

func TestTopicBuilders(t *testing.T) {
	topics := NewTopics("latch")

	tests := []struct {
		name     string
		builder  func() string
		expected string
	}{
		{
			name:     "SystemStatus",
			builder:  topics.SystemStatus,
			expected: "latch/system/status",
		},
		{
			name:     "DoorState",
			builder:  topics.DoorState,
			expected: "latch/door/state",
		},
		{
			name:     "DoorAvailability",
			builder:  topics.DoorAvailability,
			expected: "latch/door/availability",
		},
		{
			name:     "DoorEvent",
			builder:  topics.DoorEvent,
			expected: "latch/door/event",
		},
		{
			name:     "DoorCommand",
			builder:  topics.DoorCommand,
			expected: "latch/door/command",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.builder()
			if result != tt.expected {
				t.Errorf("%s() = %q, want %q", tt.name, result, tt.expected)
			}
		})
	}
}

func TestNewTopicsCustomPrefix(t *testing.T) {
	topics := NewTopics("home/frontdoor")

	if got := topics.DoorState(); got != "home/frontdoor/door/state" {
		t.Errorf("DoorState() = %q, want home/frontdoor/door/state", got)
	}
	if got := topics.SystemStatus(); got != "home/frontdoor/system/status" {
		t.Errorf("SystemStatus() = %q, want home/frontdoor/system/status", got)
	}
}

func TestNewTopicsEmptyPrefix(t *testing.T) {
	topics := NewTopics("")

	if got := topics.DoorCommand(); got != "latch/door/command" {
		t.Errorf("DoorCommand() = %q, want default prefix fallback", got)
	}
}
