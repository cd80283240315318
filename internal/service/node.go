package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"nebulapanel/internal/constants"
	"nebulapanel/internal/repository"
	"nebulapanel/pkg/async"
	"nebulapanel/pkg/logger"
)

// 订阅解析相关错误
var (
	ErrInvalidSubUID = errors.New(constants.ErrInvalidSubUID)
	ErrUserNotFound  = errors.New(constants.ErrUserNotFound)
)

// NodeFilter 节点过滤条件，全部为可选
type NodeFilter struct {
	Protocol string // 协议类型过滤，未知协议忽略
	NativeIP bool   // 仅返回原生IP节点
	Country  string // 地区代码过滤
}

// ResolvedNodeSet 一次请求解析出的节点集合
// 集合为空时使用Unavailable变体，下游编译器据此输出单条占位记录而不是空文档
type ResolvedNodeSet struct {
	Nodes       []*repository.ProxyNode
	Unavailable bool
	Reason      string
}

// NodeService 节点服务接口
type NodeService interface {
	// ResolveUserNodes 根据订阅UID和过滤条件解析用户当前可用的节点集合
	ResolveUserNodes(ctx context.Context, subUID string, filter NodeFilter) (*repository.User, *ResolvedNodeSet, error)
	// GetProxyConfig 获取节点代理配置并刷新心跳，由节点进程周期性调用
	GetProxyConfig(ctx context.Context, nodeID int64) (map[string]interface{}, error)
}

// nodeService 节点服务实现
type nodeService struct {
	userRepo      repository.UserRepository
	proxyNodeRepo repository.ProxyNodeRepository
	relayRuleRepo repository.RelayRuleRepository
	worker        *async.Worker
	logger        *logger.Logger
}

// NewNodeService 创建节点服务实例
func NewNodeService(
	userRepo repository.UserRepository,
	proxyNodeRepo repository.ProxyNodeRepository,
	relayRuleRepo repository.RelayRuleRepository,
	worker *async.Worker,
	logger *logger.Logger,
) NodeService {
	return &nodeService{
		userRepo:      userRepo,
		proxyNodeRepo: proxyNodeRepo,
		relayRuleRepo: relayRuleRepo,
		worker:        worker,
		logger:        logger,
	}
}

// ResolveUserNodes 根据订阅UID和过滤条件解析用户当前可用的节点集合
func (s *nodeService) ResolveUserNodes(ctx context.Context, subUID string, filter NodeFilter) (*repository.User, *ResolvedNodeSet, error) {
	// 订阅UID必须是合法的UUID
	if _, err := uuid.Parse(subUID); err != nil {
		return nil, nil, ErrInvalidSubUID
	}

	user, err := s.userRepo.GetBySubUID(ctx, subUID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, nil, ErrUserNotFound
		}
		return nil, nil, err
	}

	// 一次查询取出用户等级可用且在线的节点，之后的过滤全部在内存中做子集运算
	nodes, err := s.proxyNodeRepo.GetActiveByLevel(ctx, user.Level)
	if err != nil {
		return nil, nil, err
	}

	nodes = applyFilters(nodes, filter)

	if len(nodes) == 0 {
		return user, &ResolvedNodeSet{Unavailable: true, Reason: constants.ErrNoAvailable}, nil
	}

	if err := s.attachRelayRules(ctx, nodes); err != nil {
		return nil, nil, err
	}

	return user, &ResolvedNodeSet{Nodes: nodes}, nil
}

// applyFilters 依次应用原生IP、地区、协议过滤，均为纯子集运算
func applyFilters(nodes []*repository.ProxyNode, filter NodeFilter) []*repository.ProxyNode {
	if filter.NativeIP {
		nodes = filterNodes(nodes, func(n *repository.ProxyNode) bool { return n.NativeIP })
	}
	if filter.Country != "" {
		nodes = filterNodes(nodes, func(n *repository.ProxyNode) bool { return n.Country == filter.Country })
	}
	// 未知协议与原实现保持一致：忽略该过滤条件
	if filter.Protocol != "" && constants.NodeTypeSet[filter.Protocol] {
		nodes = filterNodes(nodes, func(n *repository.ProxyNode) bool { return n.NodeType == filter.Protocol })
	}
	return nodes
}

func filterNodes(nodes []*repository.ProxyNode, keep func(*repository.ProxyNode) bool) []*repository.ProxyNode {
	out := nodes[:0:0]
	for _, n := range nodes {
		if keep(n) {
			out = append(out, n)
		}
	}
	return out
}

// attachRelayRules 为启用中转的节点批量预加载启用中的中转规则
func (s *nodeService) attachRelayRules(ctx context.Context, nodes []*repository.ProxyNode) error {
	ids := make([]int64, 0, len(nodes))
	for _, n := range nodes {
		if n.EnableRelay {
			ids = append(ids, n.ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	rules, err := s.relayRuleRepo.GetEnabledByProxyNodeIDs(ctx, ids)
	if err != nil {
		return err
	}

	byNode := make(map[int64][]*repository.RelayRule, len(ids))
	for _, rule := range rules {
		byNode[rule.ProxyNodeID] = append(byNode[rule.ProxyNodeID], rule)
	}
	for _, n := range nodes {
		if n.EnableRelay {
			n.RelayRules = byNode[n.ID]
		}
	}
	return nil
}

// GetProxyConfig 获取节点代理配置并刷新心跳
func (s *nodeService) GetProxyConfig(ctx context.Context, nodeID int64) (map[string]interface{}, error) {
	node, err := s.proxyNodeRepo.GetByID(ctx, nodeID)
	if err != nil {
		return nil, err
	}

	// 心跳由节点拉取配置这一动作驱动，异步落库避免拖慢请求
	now := time.Now()
	s.worker.Submit(async.Task{
		Name: "proxy_node_heartbeat",
		Handler: func(ctx context.Context) error {
			return s.proxyNodeRepo.UpdateHeartbeat(ctx, node.ID, now)
		},
		Timeout: 5 * time.Second,
	})

	cfg := map[string]interface{}{
		"id":        node.ID,
		"name":      node.Name,
		"node_type": node.NodeType,
		"server":    node.Server,
		"port":      node.Port,
		"method":    node.Method,
		"password":  node.Password,
	}
	if node.NodeType == constants.NodeTypeVmess {
		cfg["vmess_uuid"] = node.VmessUUID.String
		cfg["alter_id"] = node.AlterID
		cfg["network"] = node.Network.String
		cfg["tls"] = node.TLS
	}
	return cfg, nil
}
