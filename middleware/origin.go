package middleware

import (
	"net"
	"net/http"

	"PPClient/tools/errs"

	"github.com/gin-gonic/gin"
)

// LocalOnly rejects requests that do not come from a loopback address.
func LocalOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		host, _, err := net.SplitHostPort(c.Request.RemoteAddr)
		if err != nil {
			host = c.Request.RemoteAddr
		}
		ip := net.ParseIP(host)
		if ip == nil || !ip.IsLoopback() {
			c.AbortWithStatusJSON(http.StatusForbidden, errs.ErrArgs.WithDetail("remote access disabled"))
			return
		}
		c.Next()
	}
}
