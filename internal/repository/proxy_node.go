package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"nebulapanel/internal/constants"
)

// ErrProxyNodeNotFound 节点不存在
var ErrProxyNodeNotFound = errors.New("proxy node not found")

// ProxyNode 代理节点模型
type ProxyNode struct {
	ID           int64          `db:"id"`
	Name         string         `db:"name"`
	NodeType     string         `db:"node_type"` // ss/vmess/trojan
	Server       string         `db:"server"`
	Port         int            `db:"port"`
	Method       string         `db:"method"` // 加密方式
	Password     string         `db:"password"`
	Country      string         `db:"country"`
	NativeIP     bool           `db:"native_ip"`
	EnableRelay  bool           `db:"enable_relay"`
	EnableDirect bool           `db:"enable_direct"`
	Enable       bool           `db:"enable"`
	Level        int64          `db:"level"`    // 允许使用该节点的最低用户等级
	Sequence     int            `db:"sequence"` // 订阅中的排序
	VmessUUID    sql.NullString `db:"vmess_uuid"`
	AlterID      int            `db:"alter_id"`
	Network      sql.NullString `db:"network"` // vmess传输层：tcp/ws
	WsHost       sql.NullString `db:"ws_host"`
	WsPath       sql.NullString `db:"ws_path"`
	TLS          bool           `db:"tls"`
	TrojanSNI    sql.NullString `db:"trojan_sni"`
	LastHeartbeat sql.NullTime  `db:"last_heartbeat"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`

	// 启用中转时预加载的中转规则，不映射数据库列
	RelayRules []*RelayRule `db:"-"`
}

// ProxyNodeRepository 代理节点仓库接口
type ProxyNodeRepository interface {
	GetByID(ctx context.Context, id int64) (*ProxyNode, error)
	// GetByIDs 批量获取指定ID的节点
	GetByIDs(ctx context.Context, ids []int64) ([]*ProxyNode, error)
	// GetActiveByLevel 获取用户等级可用且在线的节点，按sequence排序
	GetActiveByLevel(ctx context.Context, level int64) ([]*ProxyNode, error)
	// UpdateHeartbeat 刷新节点心跳时间
	UpdateHeartbeat(ctx context.Context, id int64, at time.Time) error
}

// proxyNodeRepository 代理节点仓库实现
type proxyNodeRepository struct {
	db *sqlx.DB
}

// NewProxyNodeRepository 创建代理节点仓库实例
func NewProxyNodeRepository(db *sqlx.DB) ProxyNodeRepository {
	return &proxyNodeRepository{db: db}
}

// GetByID 根据ID获取节点
func (r *proxyNodeRepository) GetByID(ctx context.Context, id int64) (*ProxyNode, error) {
	node := &ProxyNode{}
	query := `SELECT * FROM proxy_nodes WHERE id = ?`
	err := r.db.GetContext(ctx, node, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrProxyNodeNotFound
		}
		return nil, err
	}
	return node, nil
}

// GetActiveByLevel 获取用户等级可用且在线的节点
// 在线判定：enable开启且最近一次心跳在超时窗口内
func (r *proxyNodeRepository) GetActiveByLevel(ctx context.Context, level int64) ([]*ProxyNode, error) {
	nodes := []*ProxyNode{}
	deadline := time.Now().Add(-constants.NodeTimeout * time.Second)
	query := `SELECT * FROM proxy_nodes
		WHERE enable = 1 AND level <= ? AND last_heartbeat >= ?
		ORDER BY sequence, id`
	err := r.db.SelectContext(ctx, &nodes, query, level, deadline)
	if err != nil {
		return nil, err
	}
	return nodes, nil
}

// GetByIDs 批量获取指定ID的节点
func (r *proxyNodeRepository) GetByIDs(ctx context.Context, ids []int64) ([]*ProxyNode, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT * FROM proxy_nodes WHERE id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	nodes := []*ProxyNode{}
	err = r.db.SelectContext(ctx, &nodes, r.db.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	return nodes, nil
}

// UpdateHeartbeat 刷新节点心跳时间
func (r *proxyNodeRepository) UpdateHeartbeat(ctx context.Context, id int64, at time.Time) error {
	query := `UPDATE proxy_nodes SET last_heartbeat = ? WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, at, id)
	return err
}
