package service

import (
	"context"
	"errors"
	"math/rand"
	"strconv"
	"time"

	"nebulapanel/config"
	"nebulapanel/internal/constants"
	"nebulapanel/internal/repository"
	"nebulapanel/pkg/lock"
	"nebulapanel/pkg/logger"
)

// 签到相关错误
var (
	ErrAlreadyCheckedIn = errors.New(constants.ErrAlreadyCheckedIn)
	ErrCheckinBusy      = errors.New(constants.ErrCheckinBusy)
)

// UserCheckinService 用户签到服务接口
type UserCheckinService interface {
	// Checkin 用户签到，同一用户同一天只生效一次
	Checkin(ctx context.Context, userID int64) (*repository.UserCheckinLog, error)
	// GetCheckinLogs 分页获取用户签到记录
	GetCheckinLogs(ctx context.Context, userID int64, page, pageSize int) ([]*repository.UserCheckinLog, error)
}

// userCheckinService 用户签到服务实现
type userCheckinService struct {
	userRepo        repository.UserRepository
	userCheckinRepo repository.UserCheckinRepository
	dailyLock       *lock.DailyLock
	cfg             config.CheckinConfig
	logger          *logger.Logger
}

// NewUserCheckinService 创建用户签到服务实例
func NewUserCheckinService(
	userRepo repository.UserRepository,
	userCheckinRepo repository.UserCheckinRepository,
	dailyLock *lock.DailyLock,
	cfg config.CheckinConfig,
	logger *logger.Logger,
) UserCheckinService {
	return &userCheckinService{
		userRepo:        userRepo,
		userCheckinRepo: userCheckinRepo,
		dailyLock:       dailyLock,
		cfg:             cfg,
		logger:          logger,
	}
}

// Checkin 用户签到
// 全程持有按(用户, 当天)分桶的互斥锁，抑制并发重复签到；
// 锁在所有退出路径上都会被释放
func (s *userCheckinService) Checkin(ctx context.Context, userID int64) (*repository.UserCheckinLog, error) {
	release, err := s.dailyLock.Acquire(ctx, strconv.FormatInt(userID, 10))
	if err != nil {
		if errors.Is(err, lock.ErrLockTimeout) {
			return nil, ErrCheckinBusy
		}
		return nil, err
	}
	defer release()

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	today := time.Now()
	todayZero := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, today.Location())

	existing, err := s.userCheckinRepo.GetByUserAndDate(ctx, userID, todayZero)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrAlreadyCheckedIn
	}

	// 在配置的区间内随机生成奖励流量
	minReward := s.cfg.MinTraffic
	maxReward := s.cfg.MaxTraffic
	if minReward <= 0 {
		minReward = 1073741824 // 默认最小1GB
	}
	if maxReward < minReward {
		maxReward = minReward
	}
	reward := minReward
	if maxReward > minReward {
		reward = minReward + rand.Int63n(maxReward-minReward+1)
	}

	checkinLog := &repository.UserCheckinLog{
		UserID:        userID,
		Username:      user.Username,
		CheckinDate:   todayZero,
		RewardTraffic: reward,
	}
	if err := s.userCheckinRepo.Create(ctx, checkinLog); err != nil {
		s.logger.Error("创建签到记录失败", "user_id", userID, "error", err)
		return nil, err
	}

	if err := s.userRepo.UpdateCheckin(ctx, userID, todayZero, reward); err != nil {
		s.logger.Error("更新用户签到状态失败", "user_id", userID, "error", err)
		return nil, err
	}

	return checkinLog, nil
}

// GetCheckinLogs 分页获取用户签到记录
func (s *userCheckinService) GetCheckinLogs(ctx context.Context, userID int64, page, pageSize int) ([]*repository.UserCheckinLog, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}
	return s.userCheckinRepo.GetByUserID(ctx, userID, pageSize, (page-1)*pageSize)
}
