package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"nebulapanel/internal/constants"
	"nebulapanel/internal/service"
	"nebulapanel/pkg/logger"
)

// RelayHandler 中转节点处理器
type RelayHandler struct {
	relayTrafficService service.RelayTrafficService
	logger              *logger.Logger
}

// NewRelayHandler 创建中转节点处理器实例
func NewRelayHandler(relayTrafficService service.RelayTrafficService, logger *logger.Logger) *RelayHandler {
	return &RelayHandler{
		relayTrafficService: relayTrafficService,
		logger:              logger,
	}
}

// trafficReport 中转代理上报的请求体
type trafficReport struct {
	Stats []service.RelayStat `json:"stats"`
}

// GetConfig 中转代理拉取线路配置
func (h *RelayHandler) GetConfig(c *gin.Context) {
	nodeID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": constants.ErrInvalidParams})
		return
	}

	cfg, err := h.relayTrafficService.GetRelayConfig(context.Background(), nodeID)
	if err != nil {
		if errors.Is(err, service.ErrRelayNodeNotFound) {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": constants.ErrRelayNodeNotFound})
			return
		}
		h.logger.Error("获取中转配置失败", "relay_node_id", nodeID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": constants.ErrInternalServer})
		return
	}

	c.JSON(http.StatusOK, cfg)
}

// ReportTraffic 中转代理上报流量
// 已注册节点的空请求体视为无事发生的成功；未知中转节点返回客户端错误，代理需重新注册；
// 存储失败返回服务端错误，代理下个周期重发同一份统计
func (h *RelayHandler) ReportTraffic(c *gin.Context) {
	nodeID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": constants.ErrInvalidParams})
		return
	}

	// 空请求体（包括chunked编码下的空体）等价于零条统计
	var report trafficReport
	if err := c.ShouldBindJSON(&report); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": constants.ErrInvalidRequest})
		return
	}

	applied, err := h.relayTrafficService.ApplyReport(context.Background(), nodeID, report.Stats)
	if err != nil {
		if errors.Is(err, service.ErrRelayNodeNotFound) {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": constants.ErrRelayNodeNotFound})
			return
		}
		h.logger.Error("流量上报处理失败", "relay_node_id", nodeID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": constants.ErrInternalServer})
		return
	}

	h.logger.Debug("流量上报已计入", "relay_node_id", nodeID, "reported", len(report.Stats), "applied", applied)
	c.JSON(http.StatusOK, gin.H{})
}

// GetRuleTraffic 获取某条中转规则最近的按天流量快照
func (h *RelayHandler) GetRuleTraffic(c *gin.Context) {
	ruleID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": constants.ErrInvalidParams})
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	logs, err := h.relayTrafficService.GetRuleTrafficHistory(context.Background(), ruleID, limit)
	if err != nil {
		h.logger.Error("获取流量快照失败", "rule_id", ruleID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": constants.ErrInternalServer})
		return
	}

	c.JSON(http.StatusOK, gin.H{"rule_id": ruleID, "logs": logs})
}
