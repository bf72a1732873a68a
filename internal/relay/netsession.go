package relay

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// maxLineBytes bounds a single gateway frame. Anything larger is a
	// protocol desync and kills the session.
	maxLineBytes = 4096

	// stateQueueSize bounds buffered unsolicited state pushes.
	stateQueueSize = 16
)

// Gateway frame types.
const (
	frameHello = "hello"
	frameSet   = "set"
	frameGet   = "get"
	frameAck   = "ack"
	frameState = "state"
	framePing  = "ping"
	framePong  = "pong"
)

// frame is a single newline-delimited JSON message on the gateway link.
// The gateway firmware speaks this framing on its TCP side and handles
// the relay's native encrypted protocol itself.
//
// Requests carry a non-zero Seq which the gateway echoes in its reply;
// frames with Seq 0 are unsolicited (state pushes, keepalive).
type frame struct {
	Type    string `json:"t"`
	Seq     uint64 `json:"seq,omitempty"`
	ID      string `json:"id,omitempty"`
	Key     string `json:"key,omitempty"`
	Version string `json:"v,omitempty"`
	On      *bool  `json:"on,omitempty"`
	OK      *bool  `json:"ok,omitempty"`
	Err     string `json:"err,omitempty"`
}

var _ Session = (*NetSession)(nil)

// NetSession is a live TCP connection to the relay gateway.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - State push callbacks run on a dedicated goroutine.
//
// Lifecycle:
//   - One-shot: Connect once; after Disconnect or an I/O failure the
//     session is dead. The supervisor builds a new one per attempt and
//     owns all retry policy.
type NetSession struct {
	id  Identity
	cfg Config

	// Connection state
	connMu    sync.RWMutex
	conn      net.Conn
	connected bool

	started atomic.Bool

	// In-flight requests awaiting a seq-matched reply
	seq     atomic.Uint64
	pendMu  sync.Mutex
	pending map[uint64]chan frame

	// Owner callbacks
	callbackMu sync.RWMutex
	onClosed   func(error)
	onState    func(bool)
	notifyOnce sync.Once

	// Unsolicited state pushes, drained by stateWorker
	stateQueue chan bool

	// Shutdown coordination
	done *closeOnce
	wg   sync.WaitGroup

	// Logger (optional)
	logger   Logger
	loggerMu sync.RWMutex

	// Statistics
	framesTx      atomic.Uint64
	framesRx      atomic.Uint64
	framesDropped atomic.Uint64
	errorsTotal   atomic.Uint64
	lastActivity  atomic.Int64 // Unix timestamp
}

// NewNetSession builds an unconnected session for the given identity.
// Zero config fields are filled with defaults.
func NewNetSession(id Identity, cfg Config) *NetSession {
	return &NetSession{
		id:         id,
		cfg:        cfg.withDefaults(),
		pending:    make(map[uint64]chan frame),
		stateQueue: make(chan bool, stateQueueSize),
		done:       newCloseOnce(),
	}
}

// Connect dials the gateway, performs the hello handshake and starts the
// read, heartbeat and state-push goroutines.
//
// Parameters:
//   - ctx: Context for cancellation; capped by ConnectTimeout.
//
// Returns:
//   - error: ErrConnectFailed on dial errors, ErrHandshakeFailed when
//     the gateway rejects the device credentials.
func (s *NetSession) Connect(ctx context.Context) error {
	if s.done.IsClosed() {
		return ErrSessionClosed
	}
	if !s.started.CompareAndSwap(false, true) {
		return fmt.Errorf("connect: session already started")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", s.id.Addr)
	if err != nil {
		return fmt.Errorf("%w: dial %s: %w", ErrConnectFailed, s.id.Addr, err)
	}

	// The handshake and the read loop share one scanner so no bytes are
	// lost between them.
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 256), maxLineBytes)

	if err := s.handshake(ctx, conn, scanner); err != nil {
		conn.Close()
		return err
	}

	s.connMu.Lock()
	s.conn = conn
	s.connected = true
	s.connMu.Unlock()
	s.lastActivity.Store(time.Now().Unix())

	s.wg.Add(3)
	go s.readLoop(scanner)
	go s.heartbeatLoop()
	go s.stateWorker()

	s.logInfo("gateway session established", "addr", s.id.Addr, "device_id", s.id.DeviceID)
	return nil
}

// handshake sends the hello frame and validates the gateway's reply.
func (s *NetSession) handshake(ctx context.Context, conn net.Conn, scanner *bufio.Scanner) error {
	deadline := time.Now().Add(s.cfg.ConnectTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	hello := frame{Type: frameHello, ID: s.id.DeviceID, Key: s.id.Key, Version: s.id.Version}
	data, err := json.Marshal(hello)
	if err != nil {
		return fmt.Errorf("%w: encode hello: %w", ErrHandshakeFailed, err)
	}
	data = append(data, '\n')

	if err := conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("%w: set write deadline: %w", ErrHandshakeFailed, err)
	}
	if _, err := conn.Write(data); err != nil {
		return fmt.Errorf("%w: send hello: %w", ErrHandshakeFailed, err)
	}

	if err := conn.SetReadDeadline(deadline); err != nil {
		return fmt.Errorf("%w: set read deadline: %w", ErrHandshakeFailed, err)
	}
	if !scanner.Scan() {
		err := scanner.Err()
		if err == nil {
			err = errors.New("gateway closed the connection")
		}
		return fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
	}

	var reply frame
	if err := json.Unmarshal(scanner.Bytes(), &reply); err != nil {
		return fmt.Errorf("%w: malformed reply: %w", ErrHandshakeFailed, err)
	}
	if reply.Type != frameHello || reply.OK == nil || !*reply.OK {
		reason := reply.Err
		if reason == "" {
			reason = "rejected"
		}
		return fmt.Errorf("%w: %s", ErrHandshakeFailed, reason)
	}
	return nil
}

// readLoop consumes frames until the session dies. The heartbeat keeps a
// healthy link inside the read deadline, so any read failure, timeouts
// included, means the connection is gone.
func (s *NetSession) readLoop(scanner *bufio.Scanner) {
	defer s.wg.Done()

	for {
		select {
		case <-s.done.Done():
			return
		default:
		}

		conn := s.currentConn()
		if conn == nil {
			return
		}
		if err := conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout)); err != nil {
			s.fail(fmt.Errorf("set read deadline: %w", err))
			return
		}

		if !scanner.Scan() {
			if s.done.IsClosed() {
				return // Explicit disconnect, exit cleanly
			}
			err := scanner.Err()
			if err == nil {
				err = errors.New("gateway closed the connection")
			}
			s.errorsTotal.Add(1)
			s.fail(fmt.Errorf("read: %w", err))
			return
		}

		s.handleLine(scanner.Bytes())
	}
}

// handleLine decodes one frame and routes it.
func (s *NetSession) handleLine(line []byte) {
	var fr frame
	if err := json.Unmarshal(line, &fr); err != nil {
		s.logError("malformed frame from gateway", err)
		s.errorsTotal.Add(1)
		return
	}

	s.framesRx.Add(1)
	s.lastActivity.Store(time.Now().Unix())

	// Seq-matched replies go back to their waiting caller.
	if fr.Seq != 0 {
		s.resolvePending(fr)
		return
	}

	switch fr.Type {
	case frameState:
		if fr.On == nil {
			s.errorsTotal.Add(1)
			return
		}
		// Unsolicited push: the relay changed outside our control.
		select {
		case s.stateQueue <- *fr.On:
		default:
			// Queue full, drop to keep the read loop moving.
			s.framesDropped.Add(1)
		}
	case framePong:
		// Activity timestamp already updated.
	default:
		s.logDebug("unexpected frame from gateway", "type", fr.Type)
	}
}

// resolvePending hands a reply to the caller registered for its seq.
func (s *NetSession) resolvePending(fr frame) {
	s.pendMu.Lock()
	ch, ok := s.pending[fr.Seq]
	if ok {
		delete(s.pending, fr.Seq)
	}
	s.pendMu.Unlock()

	if !ok {
		// Late reply for a call that already timed out.
		s.framesDropped.Add(1)
		return
	}
	ch <- fr
}

// stateWorker invokes the state push callback off the read loop so a slow
// consumer cannot stall frame dispatch.
func (s *NetSession) stateWorker() {
	defer s.wg.Done()

	for {
		select {
		case <-s.done.Done():
			return
		case on := <-s.stateQueue:
			s.callbackMu.RLock()
			callback := s.onState
			s.callbackMu.RUnlock()

			if callback != nil {
				func() {
					defer func() {
						if r := recover(); r != nil {
							s.logError("state callback panic", fmt.Errorf("%v", r))
						}
					}()
					callback(on)
				}()
			}
		}
	}
}

// heartbeatLoop pings the gateway so silence is detectable. A failed ping
// kills the session; the supervisor handles the redial.
func (s *NetSession) heartbeatLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done.Done():
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.cfg.WriteTimeout)
			_, err := s.call(ctx, frame{Type: framePing})
			cancel()

			if err != nil {
				if s.done.IsClosed() {
					return
				}
				s.errorsTotal.Add(1)
				s.fail(fmt.Errorf("heartbeat: %w", err))
				return
			}
		}
	}
}

// SendCommand drives the relay output. true releases the door, false
// locks it. The gateway must acknowledge within the context deadline.
func (s *NetSession) SendCommand(ctx context.Context, on bool) error {
	reply, err := s.call(ctx, frame{Type: frameSet, On: &on})
	if err != nil {
		return err
	}
	if reply.Type != frameAck {
		s.errorsTotal.Add(1)
		return fmt.Errorf("unexpected reply type %q to set", reply.Type)
	}
	return nil
}

// QueryState reads the current relay output without changing it.
func (s *NetSession) QueryState(ctx context.Context) (bool, error) {
	reply, err := s.call(ctx, frame{Type: frameGet})
	if err != nil {
		return false, err
	}
	if reply.Type != frameState || reply.On == nil {
		s.errorsTotal.Add(1)
		return false, fmt.Errorf("unexpected reply type %q to get", reply.Type)
	}
	return *reply.On, nil
}

// call sends a request frame and waits for its seq-matched reply.
func (s *NetSession) call(ctx context.Context, fr frame) (frame, error) {
	if !s.IsConnected() {
		return frame{}, ErrNotConnected
	}

	fr.Seq = s.seq.Add(1)
	ch := make(chan frame, 1)

	s.pendMu.Lock()
	s.pending[fr.Seq] = ch
	s.pendMu.Unlock()

	if err := s.writeFrame(ctx, fr); err != nil {
		s.pendMu.Lock()
		delete(s.pending, fr.Seq)
		s.pendMu.Unlock()
		return frame{}, err
	}

	select {
	case reply, ok := <-ch:
		if !ok {
			return frame{}, ErrSessionClosed
		}
		if reply.Err != "" {
			return frame{}, fmt.Errorf("gateway error: %s", reply.Err)
		}
		return reply, nil
	case <-ctx.Done():
		s.pendMu.Lock()
		delete(s.pending, fr.Seq)
		s.pendMu.Unlock()
		return frame{}, fmt.Errorf("await reply: %w", ctx.Err())
	case <-s.done.Done():
		return frame{}, ErrSessionClosed
	}
}

// writeFrame encodes and sends one frame with a write deadline.
func (s *NetSession) writeFrame(ctx context.Context, fr frame) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("write: %w", ctx.Err())
	default:
	}

	data, err := json.Marshal(fr)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	data = append(data, '\n')

	deadline := time.Now().Add(s.cfg.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	conn := s.currentConn()
	if conn == nil {
		return ErrNotConnected
	}

	if err := conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if _, err := conn.Write(data); err != nil {
		s.errorsTotal.Add(1)
		return fmt.Errorf("write: %w", err)
	}

	s.framesTx.Add(1)
	s.lastActivity.Store(time.Now().Unix())
	return nil
}

// fail tears the session down after an unrecoverable error and notifies
// the owner. Safe to call from any goroutine.
func (s *NetSession) fail(err error) {
	if s.done.IsClosed() {
		return
	}
	s.done.Close()

	s.connMu.Lock()
	s.connected = false
	conn := s.conn
	s.connMu.Unlock()
	if conn != nil {
		conn.Close()
	}

	s.failPending()

	s.logError("gateway session lost", err)

	s.callbackMu.RLock()
	callback := s.onClosed
	s.callbackMu.RUnlock()
	if callback != nil {
		s.notifyOnce.Do(func() { callback(err) })
	}
}

// failPending wakes every in-flight call so none waits out its full
// context deadline against a dead connection.
func (s *NetSession) failPending() {
	s.pendMu.Lock()
	for seq, ch := range s.pending {
		delete(s.pending, seq)
		close(ch)
	}
	s.pendMu.Unlock()
}

// Disconnect tears the session down and waits for its goroutines to exit.
// Safe to call multiple times. The OnClosed callback is suppressed: this
// teardown is deliberate.
func (s *NetSession) Disconnect() error {
	s.notifyOnce.Do(func() {})

	s.done.Close()

	s.connMu.Lock()
	s.connected = false
	conn := s.conn
	s.connMu.Unlock()
	if conn != nil {
		conn.Close()
	}

	s.failPending()
	s.wg.Wait()

	s.logInfo("gateway session closed", "device_id", s.id.DeviceID)
	return nil
}

// SetOnClosed registers the unexpected-close callback. Must be set before
// Connect.
func (s *NetSession) SetOnClosed(fn func(err error)) {
	s.callbackMu.Lock()
	s.onClosed = fn
	s.callbackMu.Unlock()
}

// SetOnState registers the unsolicited state push callback. Must be set
// before Connect. Panics in the callback are recovered and logged.
func (s *NetSession) SetOnState(fn func(on bool)) {
	s.callbackMu.Lock()
	s.onState = fn
	s.callbackMu.Unlock()
}

// SetLogger sets the logger for this session.
func (s *NetSession) SetLogger(logger Logger) {
	s.loggerMu.Lock()
	s.logger = logger
	s.loggerMu.Unlock()
}

// IsConnected returns true while the session holds a live connection.
func (s *NetSession) IsConnected() bool {
	s.connMu.RLock()
	defer s.connMu.RUnlock()
	return s.connected
}

// Stats returns current session counters.
func (s *NetSession) Stats() SessionStats {
	return SessionStats{
		Connected:     s.IsConnected(),
		FramesTx:      s.framesTx.Load(),
		FramesRx:      s.framesRx.Load(),
		FramesDropped: s.framesDropped.Load(),
		ErrorsTotal:   s.errorsTotal.Load(),
		LastActivity:  time.Unix(s.lastActivity.Load(), 0),
	}
}

func (s *NetSession) currentConn() net.Conn {
	s.connMu.RLock()
	defer s.connMu.RUnlock()
	return s.conn
}

func (s *NetSession) logDebug(msg string, keysAndValues ...any) {
	s.loggerMu.RLock()
	logger := s.logger
	s.loggerMu.RUnlock()

	if logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

func (s *NetSession) logInfo(msg string, keysAndValues ...any) {
	s.loggerMu.RLock()
	logger := s.logger
	s.loggerMu.RUnlock()

	if logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (s *NetSession) logError(msg string, err error) {
	s.loggerMu.RLock()
	logger := s.logger
	s.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
