// Package api implements the HTTP REST API and WebSocket server for Latch Core.
//
// This package provides:
//   - REST endpoints for door commands (unlock, lock, status) and the event log
//   - Admin endpoints for relay identity management (inspect, rebind)
//   - WebSocket hub for real-time door event broadcasts
//   - JWT authentication with ticket-based WebSocket auth
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//   - TLS support for production deployments
//
// # Architecture
//
// The API server sits between clients (intercom integrations, reception
// desks, wall panels) and the relay controller. Commands flow through the
// controller's single-flight gate; door events flow back through the hub
// to WebSocket subscribers.
//
// # Security
//
// POST /auth/token exchanges a configured operator key (Argon2id-verified)
// for a short-lived JWT. All door and event routes require a Bearer token;
// relay identity routes additionally require the admin role. WebSocket
// connections use single-use tickets to keep tokens out of URLs.
//
// # Graceful Degradation
//
// The server keeps answering while the relay is offline: GET /door reports
// online=false, commands return 503, and /health stays reachable so
// monitoring can tell a dead process from a dead door.
package api
