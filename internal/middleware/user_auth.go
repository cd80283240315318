package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"nebulapanel/internal/constants"
	"nebulapanel/internal/service"
)

// UserAuth 用户认证中间件
// 身份体系由外部系统维护，这里只校验访问凭证并把用户放进上下文
func UserAuth(userService service.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 从请求头获取Token
		token := c.GetHeader("Authorization")
		if token == "" {
			c.JSON(http.StatusOK, gin.H{"code": 401, "msg": constants.ErrUnauthorized})
			c.Abort()
			return
		}

		// 验证Token
		user, err := userService.GetByToken(context.Background(), token)
		if err != nil {
			c.JSON(http.StatusOK, gin.H{"code": 401, "msg": constants.ErrInvalidToken})
			c.Abort()
			return
		}

		// 将用户信息存储到上下文中，供后续处理使用
		c.Set("user_id", user.ID)
		c.Set("user", user)
		c.Next()
	}
}
