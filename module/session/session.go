package session

import (
	"context"
	"sync"
	"time"

	gconfig "PPClient/global/config"
	"PPClient/logger"
	"PPClient/module/chat/cache"
	"PPClient/module/chat/reconcile"
	"PPClient/module/user"
	userservice "PPClient/module/user/service"
	"PPClient/service/api"
	"PPClient/service/chat"
	"PPClient/service/storage"
	"PPClient/tools/clock"
	"PPClient/tools/errs"
	"PPClient/tools/ids"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Deps are the collaborators of a Session. Only Config is required.
type Deps struct {
	Config   *gconfig.Config
	KeyStore storage.KeyStore   // nil: process memory
	Cache    cache.Store        // nil: cache.NewMemory()
	Fetcher  reconcile.Fetcher  // nil: api client when server.api_url is set
	Notifier reconcile.Notifier // nil: log only
	Dialer   chat.Dialer        // nil: gorilla dialer
	Clock    clock.Clock
	Logger   *zap.Logger
	OnNotice func(chat.Notice)
	// OnTyping receives the full typing user list of a chat whenever it changes.
	OnTyping func(chatID int64, users []int64)
}

// Session is the one live chat session of the process: identity, connection,
// dispatcher, reconciler and cache, created together and torn down together.
type Session struct {
	log   *zap.Logger
	ids   *user.IdentityStore
	mgr   *chat.Manager
	store cache.Store
	rec   *reconcile.Reconciler
	fetch *reconcile.Refetcher

	mu         sync.Mutex
	cfg        gconfig.Config
	cred       userservice.Credentials
	started    bool
	authedOnce bool
	typing     map[int64]*rate.Limiter
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// PolicyFrom maps configuration onto the connection policy.
func PolicyFrom(rc gconfig.RealtimeConfig) chat.Policy {
	return chat.Policy{
		MinConnectInterval: rc.MinConnectInterval,
		SettleDelay:        rc.SettleDelay,
		HeartbeatInterval:  rc.HeartbeatInterval,
		HeartbeatTimeout:   rc.HeartbeatTimeout,
		Backoff: chat.Backoff{
			Base:   rc.ReconnectBase,
			Cap:    rc.ReconnectCap,
			Jitter: rc.ReconnectJitter,
		},
		MaxAttempts:      rc.MaxAttempts,
		SupersededCode:   rc.SupersededCode,
		SupersededReason: rc.SupersededReason,
	}
}

func New(d Deps) (*Session, error) {
	if d.Config == nil {
		return nil, errs.ErrArgs.WrapMsg("config is nil")
	}
	cfg := *d.Config
	log := logger.OrNamed(d.Logger, "session")
	if d.Cache == nil {
		d.Cache = cache.NewMemory()
	}
	if d.Dialer == nil {
		d.Dialer = chat.WSDialer{
			HandshakeTimeout: cfg.Realtime.DialTimeout,
			WriteTimeout:     cfg.Realtime.WriteTimeout,
		}
	}
	if d.Fetcher == nil && cfg.Server.APIURL != "" {
		c, err := api.New(cfg.Server.APIURL, cfg.Auth.Token, api.WithLogger(log.Named("api")))
		if err != nil {
			return nil, err
		}
		d.Fetcher = c
	}

	s := &Session{
		log:    log,
		ids:    user.NewIdentityStore(d.KeyStore, cfg.Identity.Key, log.Named("identity")),
		store:  d.Cache,
		cfg:    cfg,
		typing: make(map[int64]*rate.Limiter),
	}
	s.mgr = chat.NewManager(chat.ManagerConf{
		URL:         cfg.Server.URL,
		Policy:      PolicyFrom(cfg.Realtime),
		DialTimeout: cfg.Realtime.DialTimeout,
		Dialer:      d.Dialer,
		Clock:       d.Clock,
		Logger:      log.Named("conn"),
	})
	s.rec = reconcile.New(s.store, reconcile.Options{
		TypingTTL: cfg.Realtime.TypingTTL,
		Clock:     d.Clock,
		Notifier:  d.Notifier,
		Logger:    log.Named("reconcile"),
	})
	s.rec.Attach(s.mgr.Dispatcher())
	if d.Fetcher != nil {
		s.fetch = reconcile.NewRefetcher(s.store, d.Fetcher, log.Named("refetch"))
	}

	s.rec.Typing().OnChange(func(chatID int64, users []int64) {
		s.log.Debug("typing changed", zap.Int64("chatId", chatID), zap.Int64s("users", users))
		if d.OnTyping != nil {
			d.OnTyping(chatID, users)
		}
	})
	s.mgr.OnStateChange(s.stateChanged)
	s.mgr.OnNotice(func(n chat.Notice) {
		s.log.Warn("connection notice", zap.Stringer("kind", n.Kind), zap.String("message", n.Message), zap.Int("attempts", n.Attempts))
		if d.OnNotice != nil {
			d.OnNotice(n)
		}
	})
	return s, nil
}

func (s *Session) stateChanged(c chat.StateChange) {
	if c.To != chat.Authenticated {
		return
	}
	s.mu.Lock()
	again := s.authedOnce
	s.authedOnce = true
	s.mu.Unlock()
	if again {
		// events may have been missed while the socket was down
		s.rec.Resync()
	}
}

// Start resolves credentials, starts the refetch worker and connects.
// It returns once the first attempt is under way.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	cfg := s.cfg
	s.mu.Unlock()

	cred, err := userservice.Login(ctx, s.ids, userservice.LoginParams{
		Token:  cfg.Auth.Token,
		UserID: cfg.Auth.UserID,
	}, s.log)
	if err != nil {
		return err
	}
	ids.SetNodeID(ids.NodeFromString(cred.ClientID))
	s.rec.SetSelf(cred.UserID)

	runCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cred, s.started, s.cancel = cred, true, cancel
	s.mu.Unlock()

	if s.fetch != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			_ = s.fetch.Run(runCtx)
		}()
		s.store.Invalidate(cache.ChatList)
	}
	if !cred.ExpireAt.IsZero() {
		s.log.Info("session token", zap.Time("expireAt", cred.ExpireAt), zap.Duration("left", time.Until(cred.ExpireAt)))
	}
	s.log.Info("session starting", zap.Int64("userId", cred.UserID), zap.String("clientId", cred.ClientID))
	s.mgr.Connect(chat.Identity{ClientID: cred.ClientID, UserID: cred.UserID, Token: cred.Token})
	return nil
}

// Close disconnects and stops every worker. The session cannot be restarted.
func (s *Session) Close() {
	s.mgr.Disconnect()
	s.rec.Close()
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

// SendMessage sends or queues a chat message and returns its client message id.
func (s *Session) SendMessage(chatID int64, content, mediaURL string, replyTo int64) (clientMsgID string, sent bool) {
	msg := chat.NewChatMessage(chatID, content, mediaURL, replyTo)
	return ids.FormatID(msg.LocalID), s.mgr.Send(msg)
}

// SendTyping emits a typing frame at most once per throttle window per chat.
// Typing frames are never queued.
func (s *Session) SendTyping(chatID int64) bool {
	if !s.typingLimiter(chatID).Allow() {
		return false
	}
	return s.mgr.Send(chat.NewTyping(chatID))
}

func (s *Session) typingLimiter(chatID int64) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.typing[chatID]
	if !ok {
		l = rate.NewLimiter(typingLimit(s.cfg.Realtime.TypingThrottle), 1)
		s.typing[chatID] = l
	}
	return l
}

func typingLimit(every time.Duration) rate.Limit {
	if every <= 0 {
		return rate.Inf
	}
	return rate.Every(every)
}

func (s *Session) React(messageID int64, reaction string) bool {
	return s.mgr.Send(chat.NewReaction(messageID, reaction))
}

func (s *Session) SetActiveChat(chatID int64) { s.rec.SetActiveChat(chatID) }

// TypingUsers lists who is typing in chatID right now.
func (s *Session) TypingUsers(chatID int64) []int64 { return s.rec.Typing().Users(chatID) }

func (s *Session) Status() chat.Status { return s.mgr.Snapshot() }

func (s *Session) Reconnect() error { return s.mgr.Reconnect() }

// ApplyConfig takes the hot-reloadable parts of cfg: realtime policy, typing
// throttle and log level. Server, auth and identity settings need a restart.
func (s *Session) ApplyConfig(cfg *gconfig.Config) {
	s.mu.Lock()
	old := s.cfg
	s.cfg.Realtime = cfg.Realtime
	s.cfg.LogLevel = cfg.LogLevel
	if cfg.Realtime.TypingThrottle != old.Realtime.TypingThrottle {
		lim := typingLimit(cfg.Realtime.TypingThrottle)
		for _, l := range s.typing {
			l.SetLimit(lim)
		}
	}
	s.mu.Unlock()

	s.mgr.ApplyPolicy(PolicyFrom(cfg.Realtime))
	if cfg.LogLevel != "" && cfg.LogLevel != old.LogLevel {
		if err := logger.Init(cfg.LogLevel); err != nil {
			s.log.Warn("log level not applied", zap.Error(err))
		}
	}
	if cfg.Server != old.Server || cfg.Auth != old.Auth || cfg.Identity != old.Identity {
		s.log.Warn("server, auth or identity changed; restart to apply")
	}
}

func (s *Session) Manager() *chat.Manager            { return s.mgr }
func (s *Session) Cache() cache.Store                { return s.store }
func (s *Session) Reconciler() *reconcile.Reconciler { return s.rec }
func (s *Session) Identity() *user.IdentityStore     { return s.ids }

func (s *Session) Credentials() userservice.Credentials {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cred
}
