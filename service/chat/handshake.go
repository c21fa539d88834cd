package chat

import (
	"go.uber.org/zap"
)

// authenticate runs once per open socket, after the settle delay. A
// successful write of the authenticate frame promotes the connection;
// the server's authenticate_ack is informational only.
func (m *Manager) authenticate(gen uint64) {
	m.sendMu.Lock()
	m.mu.Lock()
	if gen != m.gen || m.state != Connected || m.sock == nil || m.identity == nil {
		m.mu.Unlock()
		m.sendMu.Unlock()
		return
	}
	m.settle = nil
	sock, id := m.sock, *m.identity
	now := m.clock.Now()
	m.mu.Unlock()

	data, err := EncodeOutbound(OutboundMessage{
		Type:    TypeAuthenticate,
		Payload: AuthenticatePayload{UserID: id.UserID, ClientID: id.ClientID, Timestamp: now.UnixMilli()},
	})
	if err == nil {
		err = sock.WriteText(data)
	}

	m.mu.Lock()
	if err != nil {
		m.log.Warn("authenticate failed", zap.Error(err))
		m.closedLocked(gen, 0, "authenticate failed", err)
		m.mu.Unlock()
		m.sendMu.Unlock()
		m.flushEvents()
		return
	}
	if gen != m.gen {
		m.mu.Unlock()
		m.sendMu.Unlock()
		m.flushEvents()
		return
	}
	m.setStateLocked(Authenticated, "authenticated")
	m.attempts = 0
	m.startHeartbeatLocked(gen)
	m.mu.Unlock()

	m.flushQueueLocked()
	m.sendMu.Unlock()
	m.flushEvents()
}
