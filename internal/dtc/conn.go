package dtc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State is the session lifecycle state.
type State int32

const (
	StateConnecting State = iota
	StateEncodingNegotiating
	StateLoggingOn
	StateReady
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateEncodingNegotiating:
		return "encoding_negotiating"
	case StateLoggingOn:
		return "logging_on"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Config holds per-connection settings.
type Config struct {
	// Addr is the DTC server in host:port form.
	Addr string

	// Username and Password may both be empty for anonymous logon.
	Username string
	Password string

	// ClientName identifies this client in the logon request. Also sent as
	// GeneralTextData unless that is set separately.
	ClientName      string
	GeneralTextData string

	// PreferBinary proposes binary encoding in the negotiation instead of
	// JSON. Market data is unavailable over binary, so this only suits
	// connectivity checks.
	PreferBinary bool

	// HeartbeatInterval between outbound keep-alives once ready. Default 30s.
	HeartbeatInterval time.Duration

	// ConnectTimeout bounds TCP connect plus the full handshake. Default 15s.
	ConnectTimeout time.Duration

	// StrictLogonResult makes LogonResponse Result=0 a failure. By default
	// it is treated as success, matching observed server behavior.
	StrictLogonResult bool

	// EventBuffer is the event channel capacity. Default 256.
	EventBuffer int
}

func (cfg Config) preferredEncoding() Encoding {
	if cfg.PreferBinary {
		return EncodingBinary
	}
	return EncodingJSON
}

func (cfg Config) withDefaults() Config {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 15 * time.Second
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 256
	}
	if cfg.ClientName == "" {
		cfg.ClientName = "dtc-feed"
	}
	if cfg.GeneralTextData == "" {
		cfg.GeneralTextData = cfg.ClientName
	}
	return cfg
}

// Conn is one TCP session to a DTC server. A Conn is not reusable: after it
// closes or fails, a new one must be dialed. Reconnection policy belongs to
// the caller.
type Conn struct {
	cfg    Config
	logger *zap.Logger

	tcp    net.Conn
	framer *Framer

	writeMu sync.Mutex

	mu      sync.Mutex
	state   State
	failErr error
	hbSeen  int

	subs   *subscriptionTable
	events chan Event

	readyCh  chan struct{}
	doneCh   chan struct{}
	readDone chan struct{}
	downOnce sync.Once
}

// Dial connects, negotiates encoding, logs on, and blocks until the session
// is Ready or has failed. The whole sequence is bounded by
// cfg.ConnectTimeout.
func Dial(ctx context.Context, cfg Config, logger *zap.Logger) (*Conn, error) {
	cfg = cfg.withDefaults()
	deadline := time.Now().Add(cfg.ConnectTimeout)

	tcp, err := net.DialTimeout("tcp", cfg.Addr, cfg.ConnectTimeout)
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: %v", ErrConnectTimeout, err)
		}
		return nil, fmt.Errorf("dial %s: %w", cfg.Addr, err)
	}

	c := &Conn{
		cfg:      cfg,
		logger:   logger.With(zap.String("remote", cfg.Addr)),
		tcp:      tcp,
		framer:   NewFramer(cfg.preferredEncoding()),
		state:    StateConnecting,
		subs:     newSubscriptionTable(),
		events:   make(chan Event, cfg.EventBuffer),
		readyCh:  make(chan struct{}),
		doneCh:   make(chan struct{}),
		readDone: make(chan struct{}),
	}

	c.logger.Info("connected, negotiating encoding",
		zap.String("encoding", cfg.preferredEncoding().String()),
	)
	c.emit(ConnectedEvent{RemoteAddr: tcp.RemoteAddr().String()})

	// The read loop starts before the first send so that it always exists to
	// deliver the terminal event, whichever step fails.
	c.setState(StateEncodingNegotiating)
	go c.readLoop()

	if err := c.send(&EncodingRequest{
		ProtocolVersion: ProtocolVersion,
		Encoding:        cfg.preferredEncoding(),
		ProtocolType:    "DTC",
	}); err != nil {
		c.fail(err)
		return nil, err
	}

	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	select {
	case <-c.readyCh:
		return c, nil
	case <-c.doneCh:
		return nil, c.Err()
	case <-timer.C:
		c.fail(ErrConnectTimeout)
		return nil, ErrConnectTimeout
	case <-ctx.Done():
		c.fail(ctx.Err())
		return nil, ctx.Err()
	}
}

// Events returns the typed event stream. The channel closes after the
// terminal DisconnectedEvent. Consumers should drain it promptly; the
// buffer absorbs bursts but a stalled consumer stalls the read loop.
func (c *Conn) Events() <-chan Event { return c.events }

// State returns the current session state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the failure cause once the connection has failed.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failErr != nil {
		return c.failErr
	}
	if c.state == StateClosed {
		return ErrClosed
	}
	return nil
}

// Subscribe registers interest in a symbol's market data and sends the
// subscribe request. It returns immediately; the subscription turns Active
// on its first data message, or Rejected on a server reject.
func (c *Conn) Subscribe(symbol, exchange string) (*Subscription, error) {
	c.mu.Lock()
	if c.state != StateReady {
		c.mu.Unlock()
		return nil, ErrNotReady
	}
	c.mu.Unlock()

	if c.framer.Encoding() == EncodingBinary {
		return nil, ErrBinaryMarketData
	}

	sub, err := c.subs.create(symbol, exchange)
	if err != nil {
		return nil, err
	}

	if err := c.send(&MarketDataRequest{
		RequestAction: RequestActionSubscribe,
		SymbolID:      sub.id,
		Symbol:        symbol,
		Exchange:      exchange,
	}); err != nil {
		c.fail(err)
		return nil, err
	}

	c.logger.Info("subscribed",
		zap.String("symbol", symbol),
		zap.Uint32("symbol_id", sub.id),
	)
	return sub, nil
}

// Unsubscribe closes a subscription and sends the unsubscribe request.
// Later inbound messages for its SymbolID are dropped silently; the ID is
// never reused.
func (c *Conn) Unsubscribe(sub *Subscription) error {
	c.mu.Lock()
	ready := c.state == StateReady
	c.mu.Unlock()
	if !ready {
		// leave the subscription alone; session teardown closes it
		return ErrNotReady
	}

	c.subs.close(sub)
	return c.send(&MarketDataRequest{
		RequestAction: RequestActionUnsubscribe,
		SymbolID:      sub.id,
		Symbol:        sub.symbol,
		Exchange:      sub.exchange,
	})
}

// Close sends a best-effort Logoff and tears the connection down. It
// returns after the read loop has delivered the terminal DisconnectedEvent
// and closed the event channel. Safe to call more than once.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.state == StateClosed || c.state == StateFailed {
		c.mu.Unlock()
		<-c.readDone
		return nil
	}
	wasReady := c.state == StateReady
	c.state = StateClosed
	c.mu.Unlock()

	if wasReady {
		// best effort; do not block shutdown on a dead peer
		_ = c.tcp.SetWriteDeadline(time.Now().Add(500 * time.Millisecond))
		_ = c.send(&Logoff{Reason: "client disconnect"})
	}

	c.subs.closeAll()
	err := c.tcp.Close()
	c.beginShutdown()
	<-c.readDone
	c.logger.Info("connection closed")
	return err
}

func (c *Conn) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// fail moves the session to Failed from any live state and records the
// cause. The read loop exits via the closed socket.
func (c *Conn) fail(err error) {
	c.mu.Lock()
	if c.state == StateClosed || c.state == StateFailed {
		c.mu.Unlock()
		return
	}
	c.state = StateFailed
	c.failErr = err
	c.mu.Unlock()

	c.logger.Warn("connection failed", zap.Error(err))
	c.subs.closeAll()
	_ = c.tcp.Close()
	c.beginShutdown()
}

// beginShutdown unblocks everything waiting on the session. Event delivery
// stays with the read loop: once started it is the only goroutine sending
// on c.events, so it alone may close the channel, after its last frame.
func (c *Conn) beginShutdown() {
	c.downOnce.Do(func() { close(c.doneCh) })
}

// finish runs on the read-loop goroutine after its final frame. It delivers
// the terminal event sequence and closes the stream; the send blocks rather
// than drop, so a draining consumer always observes the disconnect.
func (c *Conn) finish() {
	c.beginShutdown()

	c.mu.Lock()
	err := c.failErr
	c.mu.Unlock()

	if err != nil && errors.Is(err, ErrAuthFailed) {
		c.events <- AuthFailedEvent{Reason: err.Error()}
	}
	c.events <- DisconnectedEvent{Err: err}
	close(c.events)
	close(c.readDone)
}

// emit delivers a non-terminal event from the read loop. Once shutdown has
// begun the event is dropped; only the terminal sequence follows.
func (c *Conn) emit(ev Event) {
	select {
	case c.events <- ev:
	case <-c.doneCh:
	}
}

// send encodes and writes one message under the write lock. Outbound
// messages go out in the order enqueued.
func (c *Conn) send(m Message) error {
	data, err := Encode(m, c.framer.Encoding())
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.tcp.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", m.MsgType(), err)
	}
	return nil
}

func (c *Conn) readLoop() {
	defer c.finish()

	buf := make([]byte, 4096)
	for {
		n, err := c.tcp.Read(buf)
		if n > 0 {
			frames, ferr := c.framer.Push(buf[:n])
			for _, frame := range frames {
				c.handleFrame(frame)
			}
			if ferr != nil {
				c.fail(ferr)
				return
			}
		}
		if err != nil {
			c.mu.Lock()
			closed := c.state == StateClosed
			c.mu.Unlock()
			if !closed {
				c.fail(fmt.Errorf("read: %w", err))
			}
			return
		}
	}
}

func (c *Conn) handleFrame(frame []byte) {
	m, err := Decode(frame, c.framer.Encoding())
	if err != nil {
		// isolated to this message; the stream stays usable
		c.logger.Warn("dropping malformed message", zap.Error(err))
		return
	}
	c.handleMessage(m)
}

func (c *Conn) handleMessage(m Message) {
	switch v := m.(type) {
	case *EncodingResponse:
		c.handleEncodingResponse(v)
	case *LogonResponse:
		c.handleLogonResponse(v)
	case *Heartbeat:
		c.handleHeartbeat(v)
	case *Logoff:
		c.logger.Warn("server sent logoff", zap.String("reason", v.Reason))
	case *MarketDataSnapshot:
		if symbol, quote, ok := c.subs.applySnapshot(v, time.Now()); ok {
			c.emit(SnapshotEvent{Symbol: symbol, Quote: quote})
		} else {
			c.logger.Debug("dropping snapshot for unknown symbol id", zap.Uint32("symbol_id", v.SymbolID))
		}
	case *MarketDataUpdateTrade:
		if symbol, _, ok := c.subs.applyTrade(v, time.Now()); ok {
			c.emit(TradeEvent{Symbol: symbol, Price: v.Price, Volume: v.Volume})
		} else {
			c.logger.Debug("dropping trade for unknown symbol id", zap.Uint32("symbol_id", v.SymbolID))
		}
	case *MarketDataUpdateBidAsk:
		if symbol, _, ok := c.subs.applyBidAsk(v, time.Now()); ok {
			c.emit(BidAskEvent{Symbol: symbol, Bid: v.BidPrice, Ask: v.AskPrice})
		} else {
			c.logger.Debug("dropping bid/ask for unknown symbol id", zap.Uint32("symbol_id", v.SymbolID))
		}
	case *MarketDataReject:
		if symbol, ok := c.subs.applyReject(v); ok {
			c.logger.Warn("subscription rejected",
				zap.String("symbol", symbol),
				zap.String("reject_text", v.RejectText),
			)
			c.emit(RejectEvent{Symbol: symbol, Reason: v.RejectText})
		} else {
			c.logger.Debug("dropping reject for unknown symbol id", zap.Uint32("symbol_id", v.SymbolID))
		}
	case *RawMessage:
		c.logger.Debug("ignoring unhandled message", zap.Uint16("type", uint16(v.TypeCode)))
	default:
		c.logger.Debug("ignoring unexpected message", zap.String("type", m.MsgType().String()))
	}
}

func (c *Conn) handleEncodingResponse(m *EncodingResponse) {
	c.mu.Lock()
	if c.state != StateEncodingNegotiating {
		c.mu.Unlock()
		c.logger.Debug("ignoring encoding response outside negotiation")
		return
	}
	c.state = StateLoggingOn
	c.mu.Unlock()

	// the server's choice wins; switch framing before the next message
	c.framer.SetEncoding(m.Encoding)
	c.logger.Info("encoding negotiated", zap.String("encoding", m.Encoding.String()))

	if err := c.send(&LogonRequest{
		ProtocolVersion:            ProtocolVersion,
		Username:                   c.cfg.Username,
		Password:                   c.cfg.Password,
		GeneralTextData:            c.cfg.GeneralTextData,
		HeartbeatIntervalInSeconds: int32(c.cfg.HeartbeatInterval / time.Second),
		TradeMode:                  0,
		ClientName:                 c.cfg.ClientName,
	}); err != nil {
		c.fail(err)
	}
}

func (c *Conn) handleLogonResponse(m *LogonResponse) {
	c.mu.Lock()
	if c.state != StateLoggingOn {
		c.mu.Unlock()
		c.logger.Debug("ignoring logon response", zap.String("state", c.state.String()))
		return
	}
	c.mu.Unlock()

	accepted := m.Result == LogonSuccess || (m.Result == 0 && !c.cfg.StrictLogonResult)
	if !accepted {
		reason := m.ResultText
		if reason == "" {
			reason = fmt.Sprintf("logon result %d", m.Result)
		}
		c.fail(fmt.Errorf("%w: %s", ErrAuthFailed, reason))
		return
	}
	c.becomeReady(AcceptLogonResponse, m.ServerName)
}

// handleHeartbeat answers every inbound heartbeat and, while logging on,
// counts them: a second heartbeat after our LogonRequest means the server
// accepted the session without ever sending a LogonResponse.
func (c *Conn) handleHeartbeat(m *Heartbeat) {
	if m.NumDroppedMessages > 0 {
		c.logger.Warn("server reports dropped messages", zap.Uint32("dropped", m.NumDroppedMessages))
	}
	if err := c.send(&Heartbeat{CurrentDateTime: time.Now().Unix()}); err != nil {
		c.fail(err)
		return
	}

	c.mu.Lock()
	implicitAccept := false
	if c.state == StateLoggingOn {
		c.hbSeen++
		implicitAccept = c.hbSeen >= 2
	}
	c.mu.Unlock()

	if implicitAccept {
		c.logger.Info("no logon response; accepting via continued heartbeats")
		c.becomeReady(AcceptHeartbeat, "")
	}
}

func (c *Conn) becomeReady(reason AcceptReason, serverName string) {
	c.mu.Lock()
	if c.state != StateLoggingOn {
		c.mu.Unlock()
		return
	}
	c.state = StateReady
	c.mu.Unlock()

	c.logger.Info("session ready",
		zap.String("accept_reason", reason.String()),
		zap.String("server_name", serverName),
	)
	close(c.readyCh)
	go c.heartbeatLoop()
	c.emit(ReadyEvent{Reason: reason, ServerName: serverName})
}

// heartbeatLoop emits unsolicited keep-alives at the configured interval.
// Both peers heartbeat independently; missed inbound heartbeats are left to
// TCP-level error detection.
func (c *Conn) heartbeatLoop() {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := c.send(&Heartbeat{CurrentDateTime: time.Now().Unix()}); err != nil {
				c.fail(err)
				return
			}
		case <-c.doneCh:
			return
		}
	}
}

func isTimeout(err error) bool {
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}
