package security

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"PPClient/tools/errs"

	"github.com/gin-gonic/gin"
)

const PPCtxAuthKey = "authorization"

type Options struct {
	// 读取哪个请求头
	HeaderToken               string // 默认 "X-Status-Token"
	EnableAuthorizationBearer bool   // 默认 true
	// Token is the expected value. Empty disables the check.
	Token string
}

func DefaultOptions() *Options {
	return &Options{
		HeaderToken:               "X-Status-Token",
		EnableAuthorizationBearer: true,
	}
}

// Middleware rejects requests whose token does not match opts.Token.
func Middleware(opts *Options) gin.HandlerFunc {
	if opts == nil {
		opts = DefaultOptions()
	}
	want := []byte(opts.Token)
	return func(c *gin.Context) {
		if len(want) == 0 {
			c.Next()
			return
		}
		token := strings.TrimSpace(c.GetHeader(opts.HeaderToken))

		// 兼容 Authorization: Bearer xxx
		if token == "" && opts.EnableAuthorizationBearer {
			if authz := strings.TrimSpace(c.GetHeader("Authorization")); len(authz) > 7 && strings.EqualFold(authz[:7], "bearer ") {
				token = strings.TrimSpace(authz[7:])
			}
		}
		if subtle.ConstantTimeCompare([]byte(token), want) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errs.ErrArgs.WithDetail("bad or missing token"))
			return
		}
		c.Set(PPCtxAuthKey, token)
		c.Next()
	}
}
