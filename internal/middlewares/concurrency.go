package middlewares

import (
	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/PropChat/pkg/apperr"
)

var errServerBusy = apperr.RateLimited("server is busy, please try again later")

// MaxConcurrencyMiddleware 最大并发控制中间件
// 限制同时处理的请求数量，超出时直接拒绝而不是排队
func MaxConcurrencyMiddleware(maxConcurrent int) gin.HandlerFunc {
	if maxConcurrent <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	// 使用带缓冲的 channel 作为信号量
	sem := make(chan struct{}, maxConcurrent)

	return func(c *gin.Context) {
		select {
		case sem <- struct{}{}:
			defer func() { <-sem }()
			c.Next()
		default:
			abort(c, errServerBusy)
		}
	}
}
