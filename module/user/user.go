package user

import (
	"context"
	"sync"

	"PPClient/logger"
	"PPClient/service/storage"
	"PPClient/tools/errs"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ClientIDKey is the default key of the client id in the durable key space.
const ClientIDKey = "chat_client_id"

// IdentityStore hands out the stable client id used to recognize reconnects
// from the same logical client. The id is created lazily and never
// regenerated while the stored value is a valid UUID.
type IdentityStore struct {
	kv  storage.KeyStore
	key string
	log *zap.Logger

	mu     sync.Mutex
	cached string
}

// NewIdentityStore keeps the id under key (ClientIDKey when empty).
func NewIdentityStore(kv storage.KeyStore, key string, log *zap.Logger) *IdentityStore {
	if kv == nil {
		kv = storage.NewMemory()
	}
	if key == "" {
		key = ClientIDKey
	}
	return &IdentityStore{kv: kv, key: key, log: logger.OrNamed(log, "identity")}
}

// ClientID returns the persisted id, creating it on first need. When the
// store cannot be read or written the freshly generated id is still returned
// (and kept for this process) together with an ErrIdentityStore error.
func (s *IdentityStore) ClientID(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cached != "" {
		return s.cached, nil
	}

	v, ok, err := s.kv.Get(ctx, s.key)
	if err != nil {
		s.cached = uuid.NewString()
		return s.cached, errs.ErrIdentityStore.WrapMsg(err.Error(), "op", "get")
	}
	if ok && Valid(v) {
		s.cached = v
		return v, nil
	}
	if ok {
		s.log.Warn("stored client id is invalid, replacing", zap.String("value", v))
	}
	return s.createLocked(ctx)
}

// Peek reports the stored id without creating one.
func (s *IdentityStore) Peek(ctx context.Context) (string, bool, error) {
	v, ok, err := s.kv.Get(ctx, s.key)
	if err != nil {
		return "", false, errs.ErrIdentityStore.WrapMsg(err.Error(), "op", "get")
	}
	if !ok || !Valid(v) {
		return "", false, nil
	}
	return v, true, nil
}

// Reset discards the stored id and creates a new one.
func (s *IdentityStore) Reset(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.kv.Delete(ctx, s.key); err != nil {
		return "", errs.ErrIdentityStore.WrapMsg(err.Error(), "op", "delete")
	}
	s.cached = ""
	return s.createLocked(ctx)
}

func (s *IdentityStore) createLocked(ctx context.Context) (string, error) {
	id := uuid.NewString()
	s.cached = id
	if err := s.kv.Set(ctx, s.key, id); err != nil {
		return id, errs.ErrIdentityStore.WrapMsg(err.Error(), "op", "set")
	}
	s.log.Info("client id created", zap.String("clientId", id))
	return id, nil
}

// Valid reports whether v is a canonical UUID string.
func Valid(v string) bool {
	u, err := uuid.Parse(v)
	return err == nil && u != uuid.Nil && u.String() == v
}
