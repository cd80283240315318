package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"k8s.io/apimachinery/pkg/util/rand"

	"nebulapanel/internal/repository"
	"nebulapanel/pkg/async"
	"nebulapanel/pkg/logger"
)

// UserService 用户服务接口
type UserService interface {
	GetByToken(ctx context.Context, token string) (*repository.User, error)
	// SubInfoHeaders 生成订阅响应的元信息头（剩余流量、到期时间等）
	SubInfoHeaders(user *repository.User) map[string]string
	// ResetSubCredentials 重置订阅UID与访问凭证，返回新的订阅UID
	ResetSubCredentials(ctx context.Context, userID int64) (string, error)
	// RecordSubAccess 异步记录一次订阅拉取
	RecordSubAccess(user *repository.User, client string)
	UpdateTheme(ctx context.Context, userID int64, theme string) error
}

// userService 用户服务实现
type userService struct {
	userRepo repository.UserRepository
	worker   *async.Worker
	logger   *logger.Logger
}

// NewUserService 创建用户服务实例
func NewUserService(userRepo repository.UserRepository, worker *async.Worker, logger *logger.Logger) UserService {
	return &userService{
		userRepo: userRepo,
		worker:   worker,
		logger:   logger,
	}
}

// GetByToken 根据访问凭证获取用户
func (s *userService) GetByToken(ctx context.Context, token string) (*repository.User, error) {
	return s.userRepo.GetByToken(ctx, token)
}

// SubInfoHeaders 生成订阅响应的元信息头
// Subscription-Userinfo是订阅客户端约定的流量提示格式
func (s *userService) SubInfoHeaders(user *repository.User) map[string]string {
	var expire int64
	if user.ExpiredAt.Valid {
		expire = user.ExpiredAt.Time.Unix()
	}
	return map[string]string{
		"Subscription-Userinfo": fmt.Sprintf("upload=%d; download=%d; total=%d; expire=%d",
			user.UsedUpload, user.UsedDownload, user.TrafficQuota, expire),
		"Profile-Update-Interval": "24",
	}
}

// ResetSubCredentials 重置订阅UID与访问凭证
func (s *userService) ResetSubCredentials(ctx context.Context, userID int64) (string, error) {
	subUID := uuid.NewString()
	token := rand.String(32)
	if err := s.userRepo.UpdateSubCredentials(ctx, userID, subUID, token); err != nil {
		return "", err
	}
	return subUID, nil
}

// RecordSubAccess 异步记录一次订阅拉取，不影响订阅响应延迟
func (s *userService) RecordSubAccess(user *repository.User, client string) {
	userID := user.ID
	now := time.Now()
	s.worker.Submit(async.Task{
		Name: "record_sub_access",
		Handler: func(ctx context.Context) error {
			return s.userRepo.UpdateSubAccess(ctx, userID, now, client)
		},
		Timeout: 5 * time.Second,
	})
}

// UpdateTheme 更新用户主题
func (s *userService) UpdateTheme(ctx context.Context, userID int64, theme string) error {
	return s.userRepo.UpdateTheme(ctx, userID, theme)
}
