package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"nebulapanel/internal/constants"
	"nebulapanel/internal/repository"
	"nebulapanel/pkg/async"
	"nebulapanel/pkg/logger"
)

// ErrRelayNodeNotFound 中转节点不存在
var ErrRelayNodeNotFound = errors.New(constants.ErrRelayNodeNotFound)

// RelayStat 中转代理上报的单条流量统计
type RelayStat struct {
	RelayLabel string `json:"relay_label"`
	UpBytes    int64  `json:"up_bytes"`
	DownBytes  int64  `json:"down_bytes"`
}

// RelayTrafficService 中转流量服务接口
type RelayTrafficService interface {
	// ApplyReport 将一次上报按放大系数累加到对应规则的计数器，返回实际计入的条数
	ApplyReport(ctx context.Context, relayNodeID int64, stats []RelayStat) (int, error)
	// GetRelayConfig 获取中转节点的线路配置并刷新心跳，由中转进程周期性调用
	GetRelayConfig(ctx context.Context, relayNodeID int64) (map[string]interface{}, error)
	// SnapshotTraffic 将全部规则的累计计数器快照到当天的历史记录
	SnapshotTraffic(ctx context.Context) error
	// GetRuleTrafficHistory 获取某条规则最近的按天流量快照，用于历史曲线
	GetRuleTrafficHistory(ctx context.Context, ruleID int64, limit int) ([]*repository.RelayTrafficLog, error)
}

// relayTrafficService 中转流量服务实现
type relayTrafficService struct {
	relayNodeRepo  repository.RelayNodeRepository
	relayRuleRepo  repository.RelayRuleRepository
	trafficLogRepo repository.RelayTrafficLogRepository
	proxyNodeRepo  repository.ProxyNodeRepository
	worker         *async.Worker
	logger         *logger.Logger
}

// NewRelayTrafficService 创建中转流量服务实例
func NewRelayTrafficService(
	relayNodeRepo repository.RelayNodeRepository,
	relayRuleRepo repository.RelayRuleRepository,
	trafficLogRepo repository.RelayTrafficLogRepository,
	proxyNodeRepo repository.ProxyNodeRepository,
	worker *async.Worker,
	logger *logger.Logger,
) RelayTrafficService {
	return &relayTrafficService{
		relayNodeRepo:  relayNodeRepo,
		relayRuleRepo:  relayRuleRepo,
		trafficLogRepo: trafficLogRepo,
		proxyNodeRepo:  proxyNodeRepo,
		worker:         worker,
		logger:         logger,
	}
}

// ApplyReport 将一次上报按放大系数累加到对应规则的计数器
// 未知label静默跳过（规则可能已被删除，代理下个周期会重新拉取配置）；
// 整批写入在单个事务内完成，要么全部计入要么全部不计入
func (s *relayTrafficService) ApplyReport(ctx context.Context, relayNodeID int64, stats []RelayStat) (int, error) {
	// 先校验节点身份再看统计内容：被删除节点的空上报也必须得到
	// 节点不存在的错误，代理据此触发重新注册
	node, err := s.relayNodeRepo.GetByID(ctx, relayNodeID)
	if err != nil {
		if errors.Is(err, repository.ErrRelayNodeNotFound) {
			return 0, ErrRelayNodeNotFound
		}
		return 0, err
	}

	if len(stats) == 0 {
		return 0, nil
	}

	// 一次性加载该节点的全部规则，建立label索引，避免每条统计一次查询
	rules, err := s.relayRuleRepo.GetByRelayNodeID(ctx, relayNodeID)
	if err != nil {
		return 0, err
	}
	byLabel := make(map[string]*repository.RelayRule, len(rules))
	for _, rule := range rules {
		byLabel[rule.Name] = rule
	}

	deltas := make([]repository.TrafficDelta, 0, len(stats))
	for _, stat := range stats {
		rule, ok := byLabel[stat.RelayLabel]
		if !ok {
			s.logger.Debug("上报中包含未知的中转label，跳过", "relay_node_id", relayNodeID, "label", stat.RelayLabel)
			continue
		}
		// 计数器只增不减，负的字节数只可能来自异常的代理
		if stat.UpBytes < 0 || stat.DownBytes < 0 {
			s.logger.Warn("上报中包含负的流量字节数，跳过",
				"relay_node_id", relayNodeID, "label", stat.RelayLabel,
				"up_bytes", stat.UpBytes, "down_bytes", stat.DownBytes)
			continue
		}
		deltas = append(deltas, repository.TrafficDelta{
			RuleID:    rule.ID,
			UpDelta:   int64(float64(stat.UpBytes) * node.EnlargeScale),
			DownDelta: int64(float64(stat.DownBytes) * node.EnlargeScale),
		})
	}

	if err := s.relayRuleRepo.AddTrafficBatch(ctx, deltas); err != nil {
		return 0, err
	}
	return len(deltas), nil
}

// GetRelayConfig 获取中转节点的线路配置并刷新心跳
func (s *relayTrafficService) GetRelayConfig(ctx context.Context, relayNodeID int64) (map[string]interface{}, error) {
	node, err := s.relayNodeRepo.GetByID(ctx, relayNodeID)
	if err != nil {
		if errors.Is(err, repository.ErrRelayNodeNotFound) {
			return nil, ErrRelayNodeNotFound
		}
		return nil, err
	}

	rules, err := s.relayRuleRepo.GetByRelayNodeID(ctx, relayNodeID)
	if err != nil {
		return nil, err
	}

	// 一次查询批量取回全部目标节点，避免逐条规则查库
	targetIDs := make([]int64, 0, len(rules))
	seen := make(map[int64]bool, len(rules))
	for _, rule := range rules {
		if rule.Enable && !seen[rule.ProxyNodeID] {
			seen[rule.ProxyNodeID] = true
			targetIDs = append(targetIDs, rule.ProxyNodeID)
		}
	}
	targets := make(map[int64]*repository.ProxyNode, len(targetIDs))
	if len(targetIDs) > 0 {
		nodes, err := s.proxyNodeRepo.GetByIDs(ctx, targetIDs)
		if err != nil {
			return nil, err
		}
		for _, n := range nodes {
			targets[n.ID] = n
		}
	}

	relays := make([]map[string]interface{}, 0, len(rules))
	for _, rule := range rules {
		if !rule.Enable {
			continue
		}
		target, ok := targets[rule.ProxyNodeID]
		if !ok {
			// 目标节点已被删除的规则不下发
			s.logger.Warn("中转规则指向不存在的目标节点，跳过", "rule_id", rule.ID, "proxy_node_id", rule.ProxyNodeID)
			continue
		}
		relays = append(relays, map[string]interface{}{
			"label":          rule.Name,
			"listen":         fmt.Sprintf("%s:%d", rule.RelayHost, rule.ListenPort),
			"listen_type":    rule.ListenType,
			"transport_type": rule.TransportType,
			"remote":         fmt.Sprintf("%s:%d", target.Server, target.Port),
		})
	}

	now := time.Now()
	s.worker.Submit(async.Task{
		Name: "relay_node_heartbeat",
		Handler: func(ctx context.Context) error {
			return s.relayNodeRepo.UpdateHeartbeat(ctx, node.ID, now)
		},
		Timeout: 5 * time.Second,
	})

	return map[string]interface{}{
		"name":   node.Name,
		"relays": relays,
	}, nil
}

// SnapshotTraffic 将全部规则的累计计数器快照到当天的历史记录
func (s *relayTrafficService) SnapshotTraffic(ctx context.Context) error {
	date := time.Now().Format("2006-01-02")

	const pageSize = 500
	for offset := 0; ; offset += pageSize {
		rules, err := s.relayRuleRepo.List(ctx, offset, pageSize)
		if err != nil {
			return err
		}
		for _, rule := range rules {
			err := s.trafficLogRepo.Upsert(ctx, &repository.RelayTrafficLog{
				RuleID:      rule.ID,
				RecordDate:  date,
				UpTraffic:   rule.UpTraffic,
				DownTraffic: rule.DownTraffic,
			})
			if err != nil {
				s.logger.Error("写入中转流量快照失败", "rule_id", rule.ID, "error", err)
				return err
			}
		}
		if len(rules) < pageSize {
			return nil
		}
	}
}

// GetRuleTrafficHistory 获取某条规则最近的按天流量快照
func (s *relayTrafficService) GetRuleTrafficHistory(ctx context.Context, ruleID int64, limit int) ([]*repository.RelayTrafficLog, error) {
	if limit <= 0 {
		limit = 30
	}
	if limit > 90 {
		limit = 90
	}
	return s.trafficLogRepo.GetByRuleID(ctx, ruleID, limit)
}
