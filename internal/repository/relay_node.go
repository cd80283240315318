package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
)

// ErrRelayNodeNotFound 中转节点不存在
var ErrRelayNodeNotFound = errors.New("relay node not found")

// RelayNode 中转节点模型，是独立于代理节点的中转机器
type RelayNode struct {
	ID            int64        `db:"id"`
	Name          string       `db:"name"`
	Server        string       `db:"server"`
	Enable        bool         `db:"enable"`
	EnlargeScale  float64      `db:"enlarge_scale"` // 上报流量的放大系数，必须大于0
	LastHeartbeat sql.NullTime `db:"last_heartbeat"`
	CreatedAt     time.Time    `db:"created_at"`
	UpdatedAt     time.Time    `db:"updated_at"`
}

// RelayNodeRepository 中转节点仓库接口
type RelayNodeRepository interface {
	GetByID(ctx context.Context, id int64) (*RelayNode, error)
	UpdateHeartbeat(ctx context.Context, id int64, at time.Time) error
}

// relayNodeRepository 中转节点仓库实现
type relayNodeRepository struct {
	db *sqlx.DB
}

// NewRelayNodeRepository 创建中转节点仓库实例
func NewRelayNodeRepository(db *sqlx.DB) RelayNodeRepository {
	return &relayNodeRepository{db: db}
}

// GetByID 根据ID获取中转节点
func (r *relayNodeRepository) GetByID(ctx context.Context, id int64) (*RelayNode, error) {
	node := &RelayNode{}
	query := `SELECT * FROM relay_nodes WHERE id = ?`
	err := r.db.GetContext(ctx, node, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrRelayNodeNotFound
		}
		return nil, err
	}
	return node, nil
}

// UpdateHeartbeat 刷新中转节点心跳时间
func (r *relayNodeRepository) UpdateHeartbeat(ctx context.Context, id int64, at time.Time) error {
	query := `UPDATE relay_nodes SET last_heartbeat = ? WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, at, id)
	return err
}
