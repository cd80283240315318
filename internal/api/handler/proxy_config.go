package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"nebulapanel/internal/constants"
	"nebulapanel/internal/repository"
	"nebulapanel/internal/service"
	"nebulapanel/pkg/logger"
)

// ProxyConfigHandler 代理节点配置处理器
type ProxyConfigHandler struct {
	nodeService service.NodeService
	logger      *logger.Logger
}

// NewProxyConfigHandler 创建代理节点配置处理器实例
func NewProxyConfigHandler(nodeService service.NodeService, logger *logger.Logger) *ProxyConfigHandler {
	return &ProxyConfigHandler{
		nodeService: nodeService,
		logger:      logger,
	}
}

// GetConfig 节点进程拉取自身代理配置，同时作为心跳上报
func (h *ProxyConfigHandler) GetConfig(c *gin.Context) {
	nodeID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": constants.ErrInvalidParams})
		return
	}

	cfg, err := h.nodeService.GetProxyConfig(context.Background(), nodeID)
	if err != nil {
		if errors.Is(err, repository.ErrProxyNodeNotFound) {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": constants.ErrNodeNotFound})
			return
		}
		h.logger.Error("获取节点配置失败", "node_id", nodeID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": constants.ErrInternalServer})
		return
	}

	c.JSON(http.StatusOK, cfg)
}
