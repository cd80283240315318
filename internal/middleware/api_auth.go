package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"nebulapanel/internal/constants"
)

// APIAuth 内部接口认证中间件
// 节点与中转机的拉取配置、流量上报接口走共享凭证校验，
// 业务处理时默认该校验已通过
func APIAuth(apiToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			token = c.GetHeader("X-API-Token")
		}

		if apiToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(apiToken)) != 1 {
			c.JSON(http.StatusOK, gin.H{"code": 401, "msg": constants.ErrInvalidToken})
			c.Abort()
			return
		}

		c.Next()
	}
}
