package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
)

// UserCheckinLog 用户签到记录模型
type UserCheckinLog struct {
	ID            int64     `db:"id"`
	UserID        int64     `db:"user_id"`
	Username      string    `db:"username"`
	CheckinDate   time.Time `db:"checkin_date"`
	RewardTraffic int64     `db:"reward_traffic"`
	CreatedAt     time.Time `db:"created_at"`
}

// UserCheckinRepository 用户签到仓库接口
type UserCheckinRepository interface {
	Create(ctx context.Context, log *UserCheckinLog) error
	// GetByUserAndDate 获取用户某天的签到记录，无记录时返回nil
	GetByUserAndDate(ctx context.Context, userID int64, date time.Time) (*UserCheckinLog, error)
	// GetByUserID 分页获取用户签到记录
	GetByUserID(ctx context.Context, userID int64, limit, offset int) ([]*UserCheckinLog, error)
}

// userCheckinRepository 用户签到仓库实现
type userCheckinRepository struct {
	db *sqlx.DB
}

// NewUserCheckinRepository 创建用户签到仓库实例
func NewUserCheckinRepository(db *sqlx.DB) UserCheckinRepository {
	return &userCheckinRepository{db: db}
}

// Create 创建签到记录
func (r *userCheckinRepository) Create(ctx context.Context, log *UserCheckinLog) error {
	query := `INSERT INTO user_checkin_log (user_id, username, checkin_date, reward_traffic, created_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)`
	result, err := r.db.ExecContext(ctx, query, log.UserID, log.Username, log.CheckinDate, log.RewardTraffic)
	if err != nil {
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	log.ID = id
	return nil
}

// GetByUserAndDate 获取用户某天的签到记录
func (r *userCheckinRepository) GetByUserAndDate(ctx context.Context, userID int64, date time.Time) (*UserCheckinLog, error) {
	log := &UserCheckinLog{}
	query := `SELECT * FROM user_checkin_log WHERE user_id = ? AND checkin_date = ? LIMIT 1`
	err := r.db.GetContext(ctx, log, query, userID, date)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return log, nil
}

// GetByUserID 分页获取用户签到记录
func (r *userCheckinRepository) GetByUserID(ctx context.Context, userID int64, limit, offset int) ([]*UserCheckinLog, error) {
	logs := []*UserCheckinLog{}
	query := `SELECT * FROM user_checkin_log WHERE user_id = ? ORDER BY checkin_date DESC LIMIT ? OFFSET ?`
	err := r.db.SelectContext(ctx, &logs, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	return logs, nil
}
