// Package relay implements the connection and command core for the door
// relay: a persistent session to the relay gateway, a supervisor that keeps
// that session alive, and a command gate that serialises unlock/lock
// operations and guarantees the door re-locks after a bounded window.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────────┐
//	│                        relay package                             │
//	│                                                                  │
//	│  ┌──────────────┐      ┌──────────────┐      ┌───────────────┐   │
//	│  │  Controller  │─────▶│  Supervisor  │─────▶│   NetSession  │   │
//	│  │(controller.go)│      │(supervisor.go)│     │(netsession.go)│   │
//	│  │              │      │              │      │               │   │
//	│  │ • command    │      │ • connect    │      │ • TCP + JSON  │   │
//	│  │   gate (busy)│      │   loop       │      │   lines       │   │
//	│  │ • auto-lock  │      │ • fixed-delay│      │ • handshake   │   │
//	│  │   timer      │      │   retry      │      │ • heartbeat   │   │
//	│  └──────┬───────┘      │ • rebind     │      │ • seq matching│   │
//	│         │              └──────────────┘      └───────────────┘   │
//	└─────────│────────────────────────────────────────────────────────┘
//	          ▼
//	   EventSink (audit log, MQTT, WebSocket, InfluxDB; wired in main)
//
// # Command Gate
//
// Exactly one mutating command may be in flight against the relay at a
// time. Unlock acquires the gate, sends the unlock command, and arms a
// one-shot auto-lock timer; the gate stays held until the timer fires (or
// a manual Lock preempts it). A second Unlock during that window fails
// with ErrBusy without touching the device. Status is a plain read and
// never takes the gate.
//
// Every armed timer carries a generation token. Cancelling an auto-lock
// (new unlock, manual lock) bumps the generation, so a timer that already
// fired can never release a gate acquired by a later command.
//
// # Connection Supervisor
//
// The supervisor owns the session lifecycle: it dials, hands the live
// session to the controller, and on any drop retries forever at a fixed
// interval. Connection failures are never surfaced to callers; they only
// observe IsOnline() == false. Replacing the relay identity tears down the
// current session and restarts the loop after a short settle delay.
//
// # Usage
//
//	sup := relay.NewSupervisor(identity, relay.NewNetSession, cfg)
//	sup.SetLogger(log)
//	sup.Start(ctx)
//	defer sup.Stop()
//
//	ctrl := relay.NewController(sup, cfg)
//	res, err := ctrl.Unlock(ctx, relay.Origin{Source: relay.SourceAPI})
//
// # Thread Safety
//
// All exported methods on Controller, Supervisor and NetSession are safe
// for concurrent use.
package relay
