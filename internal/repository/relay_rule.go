package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

// RelayRule 中转规则模型，描述一条由中转节点转发到代理节点的线路
// 流量计数器只增不减，单位为字节
type RelayRule struct {
	ID            int64     `db:"id"`
	ProxyNodeID   int64     `db:"proxy_node_id"`
	RelayNodeID   int64     `db:"relay_node_id"`
	Name          string    `db:"name"` // 在所属中转节点内唯一
	RelayHost     string    `db:"relay_host"`
	ListenPort    int       `db:"listen_port"`
	ListenType    string    `db:"listen_type"`    // raw/ws/wss
	TransportType string    `db:"transport_type"` // raw/ws/wss
	Enable        bool      `db:"enable"`
	UpTraffic     uint64    `db:"up_traffic"`
	DownTraffic   uint64    `db:"down_traffic"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

// TrafficDelta 一条规则的流量增量
type TrafficDelta struct {
	RuleID    int64
	UpDelta   int64
	DownDelta int64
}

// RelayRuleRepository 中转规则仓库接口
type RelayRuleRepository interface {
	// GetEnabledByProxyNodeIDs 批量获取指定代理节点的启用规则
	GetEnabledByProxyNodeIDs(ctx context.Context, nodeIDs []int64) ([]*RelayRule, error)
	// GetByRelayNodeID 获取指定中转节点的全部规则
	GetByRelayNodeID(ctx context.Context, relayNodeID int64) ([]*RelayRule, error)
	List(ctx context.Context, offset, limit int) ([]*RelayRule, error)
	// AddTrafficBatch 在单个事务内按增量累加一批规则的流量计数器
	AddTrafficBatch(ctx context.Context, deltas []TrafficDelta) error
}

// relayRuleRepository 中转规则仓库实现
type relayRuleRepository struct {
	db *sqlx.DB
}

// NewRelayRuleRepository 创建中转规则仓库实例
func NewRelayRuleRepository(db *sqlx.DB) RelayRuleRepository {
	return &relayRuleRepository{db: db}
}

// GetEnabledByProxyNodeIDs 批量获取指定代理节点的启用规则
func (r *relayRuleRepository) GetEnabledByProxyNodeIDs(ctx context.Context, nodeIDs []int64) ([]*RelayRule, error) {
	rules := []*RelayRule{}
	if len(nodeIDs) == 0 {
		return rules, nil
	}

	query, args, err := sqlx.In(`SELECT * FROM relay_rules WHERE enable = 1 AND proxy_node_id IN (?) ORDER BY id`, nodeIDs)
	if err != nil {
		return nil, err
	}
	query = r.db.Rebind(query)

	err = r.db.SelectContext(ctx, &rules, query, args...)
	if err != nil {
		return nil, err
	}
	return rules, nil
}

// GetByRelayNodeID 获取指定中转节点的全部规则
func (r *relayRuleRepository) GetByRelayNodeID(ctx context.Context, relayNodeID int64) ([]*RelayRule, error) {
	rules := []*RelayRule{}
	query := `SELECT * FROM relay_rules WHERE relay_node_id = ? ORDER BY id`
	err := r.db.SelectContext(ctx, &rules, query, relayNodeID)
	if err != nil {
		return nil, err
	}
	return rules, nil
}

// List 获取规则列表
func (r *relayRuleRepository) List(ctx context.Context, offset, limit int) ([]*RelayRule, error) {
	rules := []*RelayRule{}
	query := `SELECT * FROM relay_rules ORDER BY id LIMIT ? OFFSET ?`
	err := r.db.SelectContext(ctx, &rules, query, limit, offset)
	if err != nil {
		return nil, err
	}
	return rules, nil
}

// AddTrafficBatch 在单个事务内按增量累加一批规则的流量计数器
// 累加在数据库侧完成，同一中转节点的并发上报不会互相覆盖；
// 事务中任意一条失败则整批回滚，避免部分计入后代理重试造成重复计数
func (r *relayRuleRepository) AddTrafficBatch(ctx context.Context, deltas []TrafficDelta) error {
	if len(deltas) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	query := `UPDATE relay_rules
		SET up_traffic = up_traffic + ?, down_traffic = down_traffic + ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`
	for _, d := range deltas {
		if _, err := tx.ExecContext(ctx, query, d.UpDelta, d.DownDelta, d.RuleID); err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}
