package middlewares

import (
	"github.com/gin-gonic/gin"

	jwtauth "github.com/Gopher0727/PropChat/middleware/jwt"
	logger "github.com/Gopher0727/PropChat/middleware/log"
	"github.com/Gopher0727/PropChat/pkg/apperr"
)

// ContextUserID gin 上下文中当前用户 ID 的键
const ContextUserID = "user_id"

// TokenVerifier 校验访问令牌并返回用户 ID
type TokenVerifier interface {
	VerifyToken(token string) (uint, error)
}

// AuthMiddleware JWT 认证中间件
// 令牌先取 Authorization: Bearer 头，其次 ?token= 查询参数
func AuthMiddleware(tokens TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := jwtauth.ExtractToken(c.Request)
		if token == "" {
			abort(c, apperr.Auth("missing bearer token"))
			return
		}

		userID, err := tokens.VerifyToken(token)
		if err != nil {
			abort(c, apperr.Wrap(apperr.CodeAuth, "invalid or expired token", err))
			return
		}

		// 将用户 ID 写入 gin 上下文与请求 ctx，后者供日志使用
		c.Set(ContextUserID, userID)
		c.Request = c.Request.WithContext(logger.WithUserID(c.Request.Context(), userID))

		c.Next()
	}
}

// UserID 读取 AuthMiddleware 写入的用户 ID
func UserID(c *gin.Context) (uint, bool) {
	v, ok := c.Get(ContextUserID)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint)
	return id, ok
}

func abort(c *gin.Context, err error) {
	code := apperr.CodeOf(err)
	_ = c.Error(err)
	c.AbortWithStatusJSON(code.HTTPStatus(), gin.H{
		"code":  code,
		"error": apperr.PublicMessage(err),
	})
}
