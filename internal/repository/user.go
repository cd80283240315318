package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
)

// ErrUserNotFound 用户不存在
var ErrUserNotFound = errors.New("user not found")

// User 用户模型
// 认证、注册、付费由外部系统负责，这里只保留订阅与签到需要的字段
type User struct {
	ID            int64          `db:"id"`
	Username      string         `db:"username"`
	SubUID        string         `db:"sub_uid"` // 订阅UID，UUID格式，出现在订阅链接中
	Token         string         `db:"token"`   // 面板接口访问凭证
	Level         int64          `db:"level"`
	UsedUpload    int64          `db:"used_upload"`
	UsedDownload  int64          `db:"used_download"`
	TrafficQuota  int64          `db:"traffic_quota"`
	ExpiredAt     sql.NullTime   `db:"expired_at"`
	Theme         string         `db:"theme"`
	LastCheckin   sql.NullTime   `db:"last_checkin"`
	CheckinCount  int            `db:"checkin_count"`
	LastSubAt     sql.NullTime   `db:"last_sub_at"`
	LastSubClient sql.NullString `db:"last_sub_client"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
}

// UserRepository 用户仓库接口
type UserRepository interface {
	GetByID(ctx context.Context, id int64) (*User, error)
	GetBySubUID(ctx context.Context, subUID string) (*User, error)
	GetByToken(ctx context.Context, token string) (*User, error)
	// UpdateSubCredentials 重置订阅UID与访问凭证
	UpdateSubCredentials(ctx context.Context, id int64, subUID, token string) error
	// UpdateSubAccess 记录最近一次订阅拉取
	UpdateSubAccess(ctx context.Context, id int64, at time.Time, client string) error
	// UpdateCheckin 更新签到状态并增加流量配额
	UpdateCheckin(ctx context.Context, id int64, at time.Time, rewardTraffic int64) error
	UpdateTheme(ctx context.Context, id int64, theme string) error
}

// userRepository 用户仓库实现
type userRepository struct {
	db *sqlx.DB
}

// NewUserRepository 创建用户仓库实例
func NewUserRepository(db *sqlx.DB) UserRepository {
	return &userRepository{db: db}
}

// GetByID 根据ID获取用户
func (r *userRepository) GetByID(ctx context.Context, id int64) (*User, error) {
	user := &User{}
	query := `SELECT * FROM users WHERE id = ?`
	err := r.db.GetContext(ctx, user, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// GetBySubUID 根据订阅UID获取用户
func (r *userRepository) GetBySubUID(ctx context.Context, subUID string) (*User, error) {
	user := &User{}
	query := `SELECT * FROM users WHERE sub_uid = ?`
	err := r.db.GetContext(ctx, user, query, subUID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// GetByToken 根据访问凭证获取用户
func (r *userRepository) GetByToken(ctx context.Context, token string) (*User, error) {
	user := &User{}
	query := `SELECT * FROM users WHERE token = ?`
	err := r.db.GetContext(ctx, user, query, token)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// UpdateSubCredentials 重置订阅UID与访问凭证
func (r *userRepository) UpdateSubCredentials(ctx context.Context, id int64, subUID, token string) error {
	query := `UPDATE users SET sub_uid = ?, token = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, subUID, token, id)
	return err
}

// UpdateSubAccess 记录最近一次订阅拉取
func (r *userRepository) UpdateSubAccess(ctx context.Context, id int64, at time.Time, client string) error {
	query := `UPDATE users SET last_sub_at = ?, last_sub_client = ? WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, at, client, id)
	return err
}

// UpdateCheckin 更新签到状态并增加流量配额
func (r *userRepository) UpdateCheckin(ctx context.Context, id int64, at time.Time, rewardTraffic int64) error {
	query := `UPDATE users SET last_checkin = ?, checkin_count = checkin_count + 1,
		traffic_quota = traffic_quota + ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, at, rewardTraffic, id)
	return err
}

// UpdateTheme 更新用户主题
func (r *userRepository) UpdateTheme(ctx context.Context, id int64, theme string) error {
	query := `UPDATE users SET theme = ? WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, theme, id)
	return err
}
