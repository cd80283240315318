package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

// RelayTrafficLog 中转规则流量快照，按天记录累计计数器用于历史曲线
type RelayTrafficLog struct {
	ID          int64     `db:"id" json:"id"`
	RuleID      int64     `db:"rule_id" json:"rule_id"`
	RecordDate  string    `db:"record_date" json:"record_date"` // 格式 2006-01-02
	UpTraffic   uint64    `db:"up_traffic" json:"up_traffic"`
	DownTraffic uint64    `db:"down_traffic" json:"down_traffic"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// RelayTrafficLogRepository 中转流量快照仓库接口
type RelayTrafficLogRepository interface {
	// Upsert 写入或覆盖某条规则当天的快照
	Upsert(ctx context.Context, log *RelayTrafficLog) error
	// GetByRuleID 获取某条规则最近的快照记录
	GetByRuleID(ctx context.Context, ruleID int64, limit int) ([]*RelayTrafficLog, error)
}

// relayTrafficLogRepository 中转流量快照仓库实现
type relayTrafficLogRepository struct {
	db *sqlx.DB
}

// NewRelayTrafficLogRepository 创建中转流量快照仓库实例
func NewRelayTrafficLogRepository(db *sqlx.DB) RelayTrafficLogRepository {
	return &relayTrafficLogRepository{db: db}
}

// Upsert 写入或覆盖某条规则当天的快照
func (r *relayTrafficLogRepository) Upsert(ctx context.Context, log *RelayTrafficLog) error {
	query := `
		INSERT INTO relay_traffic_log (rule_id, record_date, up_traffic, down_traffic)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
		up_traffic = VALUES(up_traffic),
		down_traffic = VALUES(down_traffic)
	`
	_, err := r.db.ExecContext(ctx, query, log.RuleID, log.RecordDate, log.UpTraffic, log.DownTraffic)
	return err
}

// GetByRuleID 获取某条规则最近的快照记录
func (r *relayTrafficLogRepository) GetByRuleID(ctx context.Context, ruleID int64, limit int) ([]*RelayTrafficLog, error) {
	logs := []*RelayTrafficLog{}
	query := `SELECT * FROM relay_traffic_log WHERE rule_id = ? ORDER BY record_date DESC LIMIT ?`
	err := r.db.SelectContext(ctx, &logs, query, ruleID, limit)
	if err != nil {
		return nil, err
	}
	return logs, nil
}
