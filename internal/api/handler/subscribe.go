package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"nebulapanel/internal/constants"
	"nebulapanel/internal/repository"
	"nebulapanel/internal/service"
	"nebulapanel/pkg/logger"
)

const subContentType = "text/plain; charset=utf-8"

// SubscribeHandler 订阅处理器
type SubscribeHandler struct {
	nodeService service.NodeService
	userService service.UserService
	logger      *logger.Logger
}

// NewSubscribeHandler 创建订阅处理器实例
func NewSubscribeHandler(nodeService service.NodeService, userService service.UserService, logger *logger.Logger) *SubscribeHandler {
	return &SubscribeHandler{
		nodeService: nodeService,
		userService: userService,
		logger:      logger,
	}
}

// resolveFromQuery 解析请求中的订阅UID与过滤条件
func (h *SubscribeHandler) resolveFromQuery(c *gin.Context) (*repository.User, *service.ResolvedNodeSet, bool) {
	subUID := c.Query("uid")
	if subUID == "" {
		c.String(http.StatusBadRequest, constants.ErrSubUIDRequired)
		return nil, nil, false
	}

	filter := service.NodeFilter{
		Protocol: c.Query("protocol"),
		NativeIP: c.Query("native_ip") != "",
		Country:  c.Query("location"),
	}

	user, set, err := h.nodeService.ResolveUserNodes(context.Background(), subUID, filter)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidSubUID), errors.Is(err, service.ErrUserNotFound):
			c.String(http.StatusBadRequest, err.Error())
		default:
			h.logger.Error("解析用户节点失败", "uid", subUID, "error", err)
			c.String(http.StatusInternalServerError, constants.ErrInternalServer)
		}
		return nil, nil, false
	}

	return user, set, true
}

// GetSubscription 获取订阅内容
// 客户端格式优先取client参数，缺省时从User-Agent推断
func (h *SubscribeHandler) GetSubscription(c *gin.Context) {
	user, set, ok := h.resolveFromQuery(c)
	if !ok {
		return
	}

	kind, explicit := service.ParseClientKind(c.Query("client"))
	if !explicit {
		descriptor := c.Query("client")
		if descriptor == "" {
			descriptor = c.GetHeader("User-Agent")
		}
		kind = service.InferClientKind(descriptor)
	}

	payload, err := service.CompileSubscription(set, kind)
	if err != nil {
		var unsupported *service.UnsupportedProtocolError
		if errors.As(err, &unsupported) {
			c.String(http.StatusBadRequest, unsupported.Error())
			return
		}
		h.logger.Error("编译订阅失败", "client", kind, "error", err)
		c.String(http.StatusInternalServerError, constants.ErrInternalServer)
		return
	}

	for k, v := range h.userService.SubInfoHeaders(user) {
		c.Header(k, v)
	}
	h.userService.RecordSubAccess(user, string(kind))

	c.Data(http.StatusOK, subContentType, payload)
}

// GetClashProviders 获取Clash proxy-provider文档
func (h *SubscribeHandler) GetClashProviders(c *gin.Context) {
	_, set, ok := h.resolveFromQuery(c)
	if !ok {
		return
	}

	payload, err := service.CompileSubscription(set, service.ClientClashProvider)
	if err != nil {
		var unsupported *service.UnsupportedProtocolError
		if errors.As(err, &unsupported) {
			c.String(http.StatusBadRequest, unsupported.Error())
			return
		}
		h.logger.Error("编译proxy-provider失败", "error", err)
		c.String(http.StatusInternalServerError, constants.ErrInternalServer)
		return
	}

	c.Data(http.StatusOK, subContentType, payload)
}

// GetDirectDomainRuleSet 获取直连域名规则集
func (h *SubscribeHandler) GetDirectDomainRuleSet(c *gin.Context) {
	h.ruleSet(c, false, service.RuleSetKeyDomain)
}

// GetDirectIPRuleSet 获取直连IP规则集
func (h *SubscribeHandler) GetDirectIPRuleSet(c *gin.Context) {
	h.ruleSet(c, true, service.RuleSetKeyIP)
}

func (h *SubscribeHandler) ruleSet(c *gin.Context, wantIP bool, key string) {
	_, set, ok := h.resolveFromQuery(c)
	if !ok {
		return
	}

	hosts := service.ExtractDirectHosts(set, wantIP)
	payload, err := service.RenderRuleSet(key, hosts)
	if err != nil {
		h.logger.Error("渲染规则集失败", "key", key, "error", err)
		c.String(http.StatusInternalServerError, constants.ErrInternalServer)
		return
	}

	c.Data(http.StatusOK, subContentType, payload)
}
