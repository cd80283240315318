package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"nebulapanel/internal/constants"
	"nebulapanel/internal/repository"
	"nebulapanel/internal/service"
	"nebulapanel/pkg/logger"
)

// UserHandler 用户处理器
type UserHandler struct {
	userService service.UserService
	logger      *logger.Logger
}

// NewUserHandler 创建用户处理器实例
func NewUserHandler(userService service.UserService, logger *logger.Logger) *UserHandler {
	return &UserHandler{
		userService: userService,
		logger:      logger,
	}
}

// currentUser 从上下文取出认证中间件放入的用户
func currentUser(c *gin.Context) (*repository.User, bool) {
	v, exists := c.Get("user")
	if !exists {
		c.JSON(http.StatusOK, gin.H{"code": 401, "msg": constants.ErrUnauthorized})
		return nil, false
	}
	user, ok := v.(*repository.User)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"code": 500, "msg": constants.ErrInternalServer})
		return nil, false
	}
	return user, true
}

// GetSubInfo 获取订阅与流量概要
func (h *UserHandler) GetSubInfo(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var expiredAt string
	if user.ExpiredAt.Valid {
		expiredAt = user.ExpiredAt.Time.Format(time.RFC3339)
	}

	c.JSON(http.StatusOK, gin.H{"code": 200, "msg": constants.SuccessGet, "data": gin.H{
		"sub_uid":       user.SubUID,
		"level":         user.Level,
		"used_upload":   user.UsedUpload,
		"used_download": user.UsedDownload,
		"traffic_quota": user.TrafficQuota,
		"expired_at":    expiredAt,
		"theme":         user.Theme,
	}})
}

// ResetSubCredentials 重置订阅UID与访问凭证
// 重置后旧订阅链接立即失效，客户端需要重新订阅
func (h *UserHandler) ResetSubCredentials(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	subUID, err := h.userService.ResetSubCredentials(context.Background(), user.ID)
	if err != nil {
		h.logger.Error("重置订阅凭证失败", "user_id", user.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": constants.ErrInternalServer})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": 200, "msg": constants.SuccessUpdate, "data": gin.H{
		"sub_uid": subUID,
	}})
}

// UpdateTheme 更换用户主题
func (h *UserHandler) UpdateTheme(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req struct {
		Theme string `json:"theme"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Theme == "" {
		c.JSON(http.StatusOK, gin.H{"code": 400, "msg": constants.ErrInvalidParams})
		return
	}

	if err := h.userService.UpdateTheme(context.Background(), user.ID, req.Theme); err != nil {
		h.logger.Error("更新用户主题失败", "user_id", user.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": constants.ErrInternalServer})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": 200, "msg": constants.SuccessUpdate})
}
