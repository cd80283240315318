package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"nebulapanel/internal/constants"
	"nebulapanel/internal/service"
	"nebulapanel/pkg/logger"
)

// UserCheckinHandler 用户签到处理器
type UserCheckinHandler struct {
	userCheckinService service.UserCheckinService
	logger             *logger.Logger
}

// NewUserCheckinHandler 创建用户签到处理器实例
func NewUserCheckinHandler(userCheckinService service.UserCheckinService, logger *logger.Logger) *UserCheckinHandler {
	return &UserCheckinHandler{
		userCheckinService: userCheckinService,
		logger:             logger,
	}
}

// Checkin 用户签到
func (h *UserCheckinHandler) Checkin(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	checkinLog, err := h.userCheckinService.Checkin(context.Background(), user.ID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAlreadyCheckedIn):
			c.JSON(http.StatusOK, gin.H{"code": 400, "msg": constants.ErrAlreadyCheckedIn})
		case errors.Is(err, service.ErrCheckinBusy):
			c.JSON(http.StatusOK, gin.H{"code": 429, "msg": constants.ErrCheckinBusy})
		default:
			h.logger.Error("签到失败", "user_id", user.ID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": constants.ErrInternalServer})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": 200, "msg": constants.SuccessCheckin, "data": gin.H{
		"reward_traffic": checkinLog.RewardTraffic,
		"checkin_date":   checkinLog.CheckinDate.Format("2006-01-02"),
	}})
}

// GetCheckinLogs 分页获取签到记录
func (h *UserCheckinHandler) GetCheckinLogs(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	logs, err := h.userCheckinService.GetCheckinLogs(context.Background(), user.ID, page, pageSize)
	if err != nil {
		h.logger.Error("获取签到记录失败", "user_id", user.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": constants.ErrInternalServer})
		return
	}

	items := make([]gin.H, 0, len(logs))
	for _, log := range logs {
		items = append(items, gin.H{
			"checkin_date":   log.CheckinDate.Format("2006-01-02"),
			"reward_traffic": log.RewardTraffic,
		})
	}

	c.JSON(http.StatusOK, gin.H{"code": 200, "msg": constants.SuccessGet, "data": items})
}
