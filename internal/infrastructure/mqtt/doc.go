// Package mqtt provides MQTT client connectivity for Latch Core.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// MQTT is an optional integration surface. When enabled, Latch mirrors door
// state and events onto the broker and accepts unlock/lock commands from it,
// so home-automation systems and wall panels can drive the door without
// speaking HTTP.
//
//	Latch Core ↔ MQTT Broker ↔ Home Automation / Panels
//
// Topic tree (prefix configurable, default "latch"):
//
//	latch/system/status      service availability (retained, LWT)
//	latch/door/state         locked/unlocked/unknown (retained)
//	latch/door/availability  relay link online/offline (retained)
//	latch/door/event         event stream (not retained)
//	latch/door/command       inbound unlock/lock requests
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Anyone who can publish to the command topic can open the door;
//     lock down broker ACLs accordingly
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Subscribe to inbound door commands
//	err = client.Subscribe(client.Topics().DoorCommand(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	// Publish door state
//	client.Publish(client.Topics().DoorState(), []byte(`{"state":"locked"}`), 1, true)
package mqtt
