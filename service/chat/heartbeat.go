package chat

import (
	"time"

	"PPClient/tools/clock"

	"go.uber.org/zap"
)

// heartbeat state for the current socket; guarded by Manager.mu.
type heartbeat struct {
	tick       clock.Timer
	ack        clock.Timer // pending ack deadline, nil when none
	ackSeq     uint64
	lastSentAt time.Time
	lastAckAt  time.Time
}

func (m *Manager) startHeartbeatLocked(gen uint64) {
	m.stopHeartbeatLocked()
	m.hb.tick = m.clock.AfterFunc(m.policy.HeartbeatInterval, func() { m.heartbeatTick(gen) })
}

func (m *Manager) stopHeartbeatLocked() {
	if m.hb.tick != nil {
		m.hb.tick.Stop()
		m.hb.tick = nil
	}
	if m.hb.ack != nil {
		m.hb.ack.Stop()
		m.hb.ack = nil
	}
	m.hb.ackSeq++
}

func (m *Manager) heartbeatTick(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || m.state != Authenticated || m.identity == nil {
		m.mu.Unlock()
		return
	}
	clientID := m.identity.ClientID
	now := m.clock.Now()
	m.mu.Unlock()

	m.sendMu.Lock()
	ok := m.sendLocked(OutboundMessage{
		Type:       TypeHeartbeat,
		Payload:    HeartbeatPayload{Timestamp: now.UnixMilli(), ClientID: clientID},
		EnqueuedAt: now,
	})
	m.sendMu.Unlock()

	m.mu.Lock()
	if ok && gen == m.gen {
		m.hb.lastSentAt = now
		if m.hb.ack == nil {
			seq := m.hb.ackSeq
			m.hb.ack = m.clock.AfterFunc(m.policy.HeartbeatTimeout, func() { m.heartbeatExpired(gen, seq) })
		}
		m.hb.tick = m.clock.AfterFunc(m.policy.HeartbeatInterval, func() { m.heartbeatTick(gen) })
	}
	m.mu.Unlock()
	m.flushEvents()
}

// heartbeatAck clears the pending staleness marker.
func (m *Manager) heartbeatAck(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen {
		return
	}
	m.hb.lastAckAt = m.clock.Now()
	if m.hb.ack != nil {
		m.hb.ack.Stop()
		m.hb.ack = nil
		m.hb.ackSeq++
	}
}

func (m *Manager) heartbeatExpired(gen, seq uint64) {
	m.mu.Lock()
	if gen != m.gen || seq != m.hb.ackSeq || m.hb.ack == nil {
		m.mu.Unlock()
		return
	}
	m.hb.ack = nil
	m.log.Warn("heartbeat ack timeout, forcing reconnect",
		zap.Time("lastSent", m.hb.lastSentAt), zap.Duration("timeout", m.policy.HeartbeatTimeout))
	m.closedLocked(gen, 0, "heartbeat timeout", nil)
	m.mu.Unlock()
	m.flushEvents()
}
