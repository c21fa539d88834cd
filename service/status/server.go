package status

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"PPClient/logger"
	"PPClient/middleware"
	midsec "PPClient/middleware/security"
	"PPClient/service/chat"
	"PPClient/tools/errs"
	"PPClient/tools/safe"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Source is what the status surface reads and drives.
type Source interface {
	Status() chat.Status
	Reconnect() error
}

type Options struct {
	Addr        string
	Token       string // guards POST /reconnect when set
	AllowRemote bool
	Logger      *zap.Logger
}

// NewRouter builds the handler tree.
//
//	GET  /status     connection snapshot
//	POST /reconnect  reset the retry budget and connect now
//	GET  /healthz
func NewRouter(src Source, opts Options) *gin.Engine {
	r, _ := newRouter(src, opts)
	return r
}

const localOnly = "local-only"

func newRouter(src Source, opts Options) (*gin.Engine, *middleware.MiddlewareManager) {
	log := logger.OrNamed(opts.Logger, "status")
	r := gin.New()
	mids := middleware.NewManager()
	mids.Set("recovery", gin.Recovery())
	mids.Set("access", middleware.AccessLog(log))
	if !opts.AllowRemote {
		mids.Set(localOnly, middleware.LocalOnly())
	}
	r.Use(mids.Use())

	auth := midsec.DefaultOptions()
	auth.Token = opts.Token

	middleware.GET(r, "/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}, middleware.RouteOpt{})
	middleware.GET(r, "/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, src.Status())
	}, middleware.RouteOpt{})
	middleware.POST(r, "/reconnect", func(c *gin.Context) {
		if err := src.Reconnect(); err != nil {
			code, ok := errs.AsCode(err)
			if !ok {
				code = errs.NewCodeError(errs.ServerInternalError, "reconnect failed").WithDetail(err.Error())
			}
			log.Warn("manual reconnect refused", zap.Error(err))
			c.JSON(http.StatusConflict, code)
			return
		}
		c.JSON(http.StatusAccepted, src.Status())
	}, middleware.RouteOpt{IsAuth: true, Auth: auth})
	return r, mids
}

// Server serves the router on a TCP address.
type Server struct {
	srv  *http.Server
	ln   net.Listener
	mids *middleware.MiddlewareManager
	log  *zap.Logger
}

// Start listens on opts.Addr and serves in the background.
func Start(src Source, opts Options) (*Server, error) {
	ln, err := net.Listen("tcp", opts.Addr)
	if err != nil {
		return nil, errs.WrapMsg(err, "status listen", "addr", opts.Addr)
	}
	r, mids := newRouter(src, opts)
	s := &Server{
		srv:  &http.Server{Handler: r, ReadHeaderTimeout: 5 * time.Second},
		ln:   ln,
		mids: mids,
		log:  logger.OrNamed(opts.Logger, "status"),
	}
	safe.SafeGo("status-http", func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("status server stopped", zap.Error(err))
		}
	})
	s.log.Info("status endpoint listening", zap.String("addr", ln.Addr().String()))
	return s, nil
}

func (s *Server) Addr() string { return s.ln.Addr().String() }

// SetAllowRemote lifts or restores the loopback-only guard on a running server.
func (s *Server) SetAllowRemote(allow bool) {
	if allow {
		if s.mids.Remove(localOnly) {
			s.log.Warn("status endpoint open to remote clients")
		}
		return
	}
	s.mids.Set(localOnly, middleware.LocalOnly())
}

func (s *Server) Shutdown(ctx context.Context) error { return s.srv.Shutdown(ctx) }
