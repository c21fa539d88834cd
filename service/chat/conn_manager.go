package chat

import (
	"context"
	"net/http"
	"sync"
	"time"

	"PPClient/logger"
	"PPClient/tools/clock"
	"PPClient/tools/errs"
	"PPClient/tools/safe"
	"PPClient/tools/security"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ===== config =====

// Policy holds the tunables that may change at runtime.
type Policy struct {
	MinConnectInterval time.Duration // minimum spacing between connect attempts
	SettleDelay        time.Duration // wait after open before authenticating
	HeartbeatInterval  time.Duration // e.g. 25s
	HeartbeatTimeout   time.Duration // e.g. 10s
	Backoff            Backoff
	MaxAttempts        int // consecutive failed closes tolerated before giving up

	// Close code and reason the server sends when a newer socket from the
	// same client replaces this one. Both must match; such a close is clean.
	SupersededCode   int
	SupersededReason string
}

type ManagerConf struct {
	URL         string
	Policy      Policy
	DialTimeout time.Duration
	Dialer      Dialer      // nil => WSDialer
	Dispatcher  *Dispatcher // nil => NewDispatcher
	Clock       clock.Clock // nil => system clock
	Logger      *zap.Logger
}

func (c *ManagerConf) norm() {
	c.Clock = clock.Or(c.Clock)
	c.Logger = logger.OrNamed(c.Logger, "conn")
	if c.Dialer == nil {
		c.Dialer = WSDialer{HandshakeTimeout: 10 * time.Second}
	}
	if c.Dispatcher == nil {
		c.Dispatcher = NewDispatcher(c.Logger)
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 15 * time.Second
	}
	c.Policy.norm()
}

func (p *Policy) norm() {
	if p.MinConnectInterval < 0 {
		p.MinConnectInterval = 0
	}
	if p.HeartbeatInterval <= 0 {
		p.HeartbeatInterval = 25 * time.Second
	}
	if p.HeartbeatTimeout <= 0 {
		p.HeartbeatTimeout = 10 * time.Second
	}
	if p.Backoff.Base <= 0 {
		p.Backoff.Base = time.Second
	}
	if p.Backoff.Cap < p.Backoff.Base {
		p.Backoff.Cap = 30 * time.Second
	}
	if p.MaxAttempts < 0 {
		p.MaxAttempts = 0
	}
}

// Identity is what the manager authenticates with.
type Identity struct {
	ClientID string
	UserID   int64
	Token    string
}

// ===== manager =====

// Manager owns at most one socket and drives the connection lifecycle,
// handshake, heartbeat, reconnect policy and outbound queue.
//
// Locking: sendMu serializes socket writes and also spans the
// Authenticated transition plus queue flush; mu guards everything else.
// Order is sendMu then mu. Observers run with neither held.
type Manager struct {
	conf  ManagerConf
	log   *zap.Logger
	clock clock.Clock
	disp  *Dispatcher
	queue *OutboundQueue

	sendMu sync.Mutex

	mu         sync.Mutex
	policy     Policy
	state      ConnState
	identity   *Identity
	sock       Socket
	gen        uint64 // bumped whenever the current socket is detached
	cancelDial context.CancelFunc

	attempts      int
	lastAttemptAt time.Time
	exhausted     bool
	slot          actionSlot
	settle        clock.Timer
	hb            heartbeat

	stateObs  []func(StateChange)
	noticeObs []func(Notice)
	events    []event
	draining  bool
}

func NewManager(conf ManagerConf) *Manager {
	conf.norm()
	return &Manager{
		conf:   conf,
		log:    conf.Logger,
		clock:  conf.Clock,
		disp:   conf.Dispatcher,
		queue:  NewOutboundQueue(),
		policy: conf.Policy,
	}
}

func (m *Manager) Dispatcher() *Dispatcher { return m.disp }

func (m *Manager) State() ConnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// OnStateChange registers an observer of every transition.
func (m *Manager) OnStateChange(fn func(StateChange)) {
	m.mu.Lock()
	m.stateObs = append(m.stateObs, fn)
	m.mu.Unlock()
}

// OnNotice registers an observer of user-visible conditions.
func (m *Manager) OnNotice(fn func(Notice)) {
	m.mu.Lock()
	m.noticeObs = append(m.noticeObs, fn)
	m.mu.Unlock()
}

// ApplyPolicy swaps the tunables. Timers already armed keep their deadline.
func (m *Manager) ApplyPolicy(p Policy) {
	p.norm()
	m.mu.Lock()
	m.policy = p
	if m.exhausted && m.attempts <= p.MaxAttempts {
		m.exhausted = false
	}
	m.mu.Unlock()
	m.log.Info("realtime policy applied",
		zap.Duration("minInterval", p.MinConnectInterval),
		zap.Duration("heartbeat", p.HeartbeatInterval),
		zap.Int("maxAttempts", p.MaxAttempts))
}

func (m *Manager) Snapshot() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := Status{
		State:         m.state,
		Attempts:      m.attempts,
		MaxAttempts:   m.policy.MaxAttempts,
		Exhausted:     m.exhausted,
		Queued:        m.queue.Len(),
		LastAttemptAt: m.lastAttemptAt,
		NextAttemptAt: m.slot.at,

		LastHeartbeatAt:    m.hb.lastSentAt,
		LastHeartbeatAckAt: m.hb.lastAckAt,
	}
	if m.identity != nil {
		st.ClientID = m.identity.ClientID
		st.UserID = m.identity.UserID
	}
	return st
}

// ===== connect / disconnect =====

// Connect starts a connection attempt for id. It is a no-op while an attempt
// is in flight, a connection is up, an attempt is already scheduled, or the
// attempt cap has been reached. Attempts closer together than
// MinConnectInterval are deferred, not rejected.
func (m *Manager) Connect(id Identity) {
	m.mu.Lock()
	if m.state == Disconnected && !m.slot.pending() {
		m.identity = &id
	}
	m.connectLocked("connect")
	m.mu.Unlock()
	m.flushEvents()
}

// Reconnect is the manual recovery action: it resets the attempt counter
// and connects again with the last identity.
func (m *Manager) Reconnect() error {
	m.mu.Lock()
	if m.identity == nil {
		m.mu.Unlock()
		return errs.ErrNotConnected.WrapMsg("no identity to reconnect with")
	}
	m.attempts = 0
	m.exhausted = false
	if m.slot.kind == slotBackoff {
		m.slot.cancel()
	}
	m.connectLocked("manual reconnect")
	m.mu.Unlock()
	m.flushEvents()
	return nil
}

func (m *Manager) connectLocked(reason string) {
	if m.identity == nil {
		return
	}
	if m.state != Disconnected {
		m.log.Debug("connect ignored", zap.Stringer("state", m.state))
		return
	}
	if m.exhausted {
		m.log.Debug("connect ignored: attempts exhausted")
		return
	}
	if m.slot.pending() {
		m.log.Debug("connect ignored: attempt already scheduled", zap.Stringer("slot", m.slot.kind))
		return
	}
	now := m.clock.Now()
	if !m.lastAttemptAt.IsZero() {
		if wait := m.policy.MinConnectInterval - now.Sub(m.lastAttemptAt); wait > 0 {
			m.log.Debug("connect deferred", zap.Duration("wait", wait))
			m.slot.arm(m.clock, slotThrottle, wait, m.fireSlot)
			return
		}
	}
	m.openLocked(now, reason)
}

func (m *Manager) openLocked(now time.Time, reason string) {
	m.lastAttemptAt = now
	if old := m.detachLocked(); old != nil {
		go closeQuiet(old)
	}
	gen := m.gen
	id := *m.identity
	m.setStateLocked(Connecting, reason)

	ctx, cancel := context.WithTimeout(context.Background(), m.conf.DialTimeout)
	m.cancelDial = cancel
	m.log.Info("dialing", zap.String("url", m.conf.URL), zap.String("clientId", id.ClientID), zap.Int("attempts", m.attempts))
	go m.dial(ctx, cancel, gen, id)
}

func (m *Manager) dial(ctx context.Context, cancel context.CancelFunc, gen uint64, id Identity) {
	header := http.Header{}
	if id.Token != "" {
		header.Set("Authorization", "Bearer "+id.Token)
	}
	sock, err := m.conf.Dialer.Dial(ctx, m.conf.URL, header)
	cancel()

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		closeQuiet(sock)
		return
	}
	m.cancelDial = nil
	if err != nil {
		m.log.Warn("dial failed", zap.Error(err))
		m.closedLocked(gen, 0, "dial failed", err)
		m.mu.Unlock()
		m.flushEvents()
		return
	}
	m.sock = sock
	m.setStateLocked(Connected, "socket open")
	m.settle = m.clock.AfterFunc(m.policy.SettleDelay, func() { m.authenticate(gen) })
	m.mu.Unlock()

	m.log.Debug("socket open", zap.String("token", security.HashToken(id.Token)))
	go m.readLoop(gen, sock)
	m.flushEvents()
}

// Disconnect closes the connection for good: timers are cancelled, the
// identity is cleared and the socket is detached before it is closed, so no
// reconnect follows. Queued messages belong to the old identity and are dropped.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.slot.cancel()
	m.stopTimersLocked()
	m.identity = nil
	m.exhausted = false
	m.attempts = 0
	old := m.detachLocked()
	if m.state != Disconnected {
		m.setStateLocked(Disconnected, "disconnect")
	}
	m.mu.Unlock()

	if old != nil {
		_ = old.CloseWith(websocket.CloseNormalClosure, "client disconnect")
	}
	// A write in flight on old fails once it is closed and re-queues its
	// message under sendMu, so drain only after that send has returned.
	m.sendMu.Lock()
	dropped := m.queue.Drain()
	m.sendMu.Unlock()
	if len(dropped) > 0 {
		m.log.Info("dropped queued messages on disconnect", zap.Int("count", len(dropped)))
	}
	m.flushEvents()
}

// detachLocked bumps the generation so callbacks of the current socket
// become no-ops, and returns that socket.
func (m *Manager) detachLocked() Socket {
	m.gen++
	if m.cancelDial != nil {
		m.cancelDial()
		m.cancelDial = nil
	}
	old := m.sock
	m.sock = nil
	return old
}

// ===== close path =====

// closedLocked handles the end of socket generation gen, whatever the cause.
func (m *Manager) closedLocked(gen uint64, code int, reason string, cause error) {
	if gen != m.gen {
		return
	}
	old := m.detachLocked()
	m.stopTimersLocked()
	if old != nil {
		go closeQuiet(old)
	}
	if m.state != Disconnected {
		m.setStateLocked(Disconnected, reason)
	}
	if m.identity == nil {
		return
	}

	p := m.policy
	if p.SupersededReason != "" && code == p.SupersededCode && reason == p.SupersededReason {
		m.log.Info("socket superseded by a newer connection", zap.Int("code", code))
		m.noticeLocked(Notice{Kind: NoticeSuperseded, Message: reason, Attempts: m.attempts})
		return
	}

	n := m.attempts
	m.attempts++
	if m.attempts > p.MaxAttempts {
		m.exhausted = true
		m.slot.cancel()
		m.log.Error("reconnect attempts exhausted", zap.Int("attempts", m.attempts), zap.Error(cause))
		m.noticeLocked(Notice{
			Kind:     NoticeExhausted,
			Message:  "connection lost; reload or reconnect manually",
			Attempts: m.attempts,
			Err:      errs.ErrAttemptsExhausted.WrapMsg("", "attempts", m.attempts),
		})
		return
	}
	delay := p.Backoff.Delay(n)
	m.log.Warn("connection closed, reconnect scheduled",
		zap.Int("code", code), zap.String("reason", reason), zap.Error(cause),
		zap.Int("attempt", m.attempts), zap.Duration("delay", delay))
	m.slot.arm(m.clock, slotBackoff, delay, m.fireSlot)
}

func (m *Manager) fireSlot(seq uint64) {
	m.mu.Lock()
	kind, ok := m.slot.take(seq)
	if ok {
		m.connectLocked(kind.String())
	}
	m.mu.Unlock()
	m.flushEvents()
}

func (m *Manager) stopTimersLocked() {
	if m.settle != nil {
		m.settle.Stop()
		m.settle = nil
	}
	m.stopHeartbeatLocked()
}

// ===== reader =====

func (m *Manager) readLoop(gen uint64, sock Socket) {
	for {
		mt, data, err := sock.ReadMessage()
		if err != nil {
			code, reason := closeInfo(err)
			if reason == "" {
				reason = "read error"
			}
			m.mu.Lock()
			m.closedLocked(gen, code, reason, err)
			m.mu.Unlock()
			m.flushEvents()
			return
		}
		if !m.current(gen) {
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		m.handleFrame(gen, data)
	}
}

func (m *Manager) current(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return gen == m.gen
}

func (m *Manager) handleFrame(gen uint64, data []byte) {
	f, err := ParseFrame(data)
	if err != nil {
		sample := data
		if len(sample) > 256 {
			sample = sample[:256]
		}
		m.log.Warn("drop malformed frame", zap.Error(err), zap.ByteString("sample", sample), zap.Int("len", len(data)))
		return
	}
	if f.Type == TypeHeartbeatAck {
		m.heartbeatAck(gen)
		return
	}
	if !m.current(gen) {
		return
	}
	m.disp.Dispatch(f)
}

// ===== send / queue =====

// Send writes msg when authenticated and reports whether it was written.
// Otherwise, or when the write fails, non-ephemeral messages are queued for
// the next authenticated connection and a write failure starts the
// reconnect path.
func (m *Manager) Send(msg OutboundMessage) bool {
	if msg.EnqueuedAt.IsZero() {
		msg.EnqueuedAt = m.clock.Now()
	}
	m.sendMu.Lock()
	ok := m.sendLocked(msg)
	m.sendMu.Unlock()
	m.flushEvents()
	return ok
}

// sendLocked requires sendMu.
func (m *Manager) sendLocked(msg OutboundMessage) bool {
	m.mu.Lock()
	if m.state != Authenticated || m.sock == nil {
		m.mu.Unlock()
		m.enqueue(msg, "not authenticated")
		return false
	}
	sock, gen := m.sock, m.gen
	m.mu.Unlock()

	data, err := EncodeOutbound(msg)
	if err != nil {
		m.log.Error("drop unencodable message", zap.String("type", msg.Type), zap.Int64("localId", msg.LocalID), zap.Error(err))
		return false
	}
	if err := sock.WriteText(data); err != nil {
		m.enqueue(msg, "write failed")
		m.mu.Lock()
		m.closedLocked(gen, 0, "write failed", err)
		m.mu.Unlock()
		return false
	}
	return true
}

func (m *Manager) enqueue(msg OutboundMessage, why string) {
	if !m.queue.Push(msg) {
		m.log.Debug("drop ephemeral message", zap.String("type", msg.Type), zap.String("why", why))
		return
	}
	m.log.Debug("message queued", zap.String("type", msg.Type), zap.Int64("localId", msg.LocalID),
		zap.String("why", why), zap.Int("queued", m.queue.Len()))
}

// flushQueueLocked requires sendMu. Each message goes through sendLocked,
// so a failure re-queues only that message and the rest follow it in order.
func (m *Manager) flushQueueLocked() {
	pending := m.queue.Drain()
	if len(pending) == 0 {
		return
	}
	sent := 0
	for _, msg := range pending {
		if m.sendLocked(msg) {
			sent++
		}
	}
	m.log.Info("outbound queue flushed", zap.Int("sent", sent), zap.Int("requeued", len(pending)-sent))
}

// Queued returns a copy of the pending outbound messages.
func (m *Manager) Queued() []OutboundMessage { return m.queue.Snapshot() }

// ===== observers =====

type event struct {
	change *StateChange
	notice *Notice
}

func (m *Manager) setStateLocked(to ConnState, reason string) {
	from := m.state
	if !canTransition(from, to) {
		m.log.Error("illegal state transition", zap.Stringer("from", from), zap.Stringer("to", to))
		return
	}
	m.state = to
	m.log.Info("state", zap.Stringer("from", from), zap.Stringer("to", to), zap.String("reason", reason))
	m.events = append(m.events, event{change: &StateChange{From: from, To: to, Reason: reason, At: m.clock.Now()}})
}

func (m *Manager) noticeLocked(n Notice) {
	n.At = m.clock.Now()
	m.events = append(m.events, event{notice: &n})
}

// flushEvents delivers pending observer events in order. A call made while
// another call is delivering returns at once; the delivering call picks the
// new events up.
func (m *Manager) flushEvents() {
	m.mu.Lock()
	if m.draining {
		m.mu.Unlock()
		return
	}
	m.draining = true
	for len(m.events) > 0 {
		ev := m.events[0]
		m.events = m.events[1:]
		stateObs, noticeObs := m.stateObs, m.noticeObs
		m.mu.Unlock()

		switch {
		case ev.change != nil:
			for _, fn := range stateObs {
				m.observe(func() { fn(*ev.change) })
			}
		case ev.notice != nil:
			for _, fn := range noticeObs {
				m.observe(func() { fn(*ev.notice) })
			}
		}
		m.mu.Lock()
	}
	m.draining = false
	m.mu.Unlock()
}

func (m *Manager) observe(fn func()) {
	if err := safe.Call(fn); err != nil {
		m.log.Error("observer panic", zap.Error(err))
	}
}
