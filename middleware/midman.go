package middleware

import (
	"sync"

	"github.com/gin-gonic/gin"
)

// MiddlewareManager runs a named, ordered set of middlewares that can be
// changed while the engine is serving.
type MiddlewareManager struct {
	mu    sync.RWMutex
	names []string
	mids  map[string]gin.HandlerFunc
}

func NewManager() *MiddlewareManager {
	return &MiddlewareManager{mids: make(map[string]gin.HandlerFunc)}
}

// Set 注册中间件；同名的原地替换，顺序不变
func (m *MiddlewareManager) Set(name string, h gin.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.mids[name]; !ok {
		m.names = append(m.names, name)
	}
	m.mids[name] = h
}

// Remove 删除指定中间件
func (m *MiddlewareManager) Remove(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.mids[name]; !ok {
		return false
	}
	delete(m.mids, name)
	for i, n := range m.names {
		if n == name {
			m.names = append(m.names[:i:i], m.names[i+1:]...)
			break
		}
	}
	return true
}

func (m *MiddlewareManager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.names...)
}

// Use 返回总控 gin.HandlerFunc，挂载到 Engine 上
func (m *MiddlewareManager) Use() gin.HandlerFunc {
	return func(c *gin.Context) {
		m.mu.RLock()
		chain := make([]gin.HandlerFunc, 0, len(m.names))
		for _, n := range m.names {
			chain = append(chain, m.mids[n])
		}
		m.mu.RUnlock()

		for _, h := range chain {
			h(c)
			if c.IsAborted() {
				return
			}
		}
		c.Next()
	}
}
