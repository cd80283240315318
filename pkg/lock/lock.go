package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrLockTimeout 等待锁超时
var ErrLockTimeout = errors.New("等待锁超时")

// DailyLock 基于Redis的按天互斥锁，键由(名称, 主体, 当天日期)组成。
// 用于抑制同一用户当天重复生效的操作（例如签到）。
type DailyLock struct {
	redisClient *redis.Client
	name        string
	ttl         time.Duration // 锁的最长持有时间，持有者异常退出后由TTL兜底释放
	wait        time.Duration // 获取锁的最长等待时间
}

// NewDailyLock 创建一个按天互斥锁
func NewDailyLock(redisClient *redis.Client, name string, ttl, wait time.Duration) *DailyLock {
	return &DailyLock{
		redisClient: redisClient,
		name:        name,
		ttl:         ttl,
		wait:        wait,
	}
}

// Key 生成锁键，日期桶取当天
func (l *DailyLock) Key(subject string, now time.Time) string {
	return fmt.Sprintf("panel:lock:%s:%s:%s", l.name, subject, now.Format("2006-01-02"))
}

// Acquire 获取锁，最多等待wait时长；成功时返回释放函数。
// 释放函数在所有退出路径上都必须被调用（包括业务失败），且可安全重复调用。
func (l *DailyLock) Acquire(ctx context.Context, subject string) (func(), error) {
	key := l.Key(subject, time.Now())
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.redisClient.SetNX(ctx, key, "1", l.ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			released := false
			release := func() {
				if released {
					return
				}
				released = true
				// 用独立上下文释放，调用方的上下文可能已被取消
				l.redisClient.Del(context.Background(), key)
			}
			return release, nil
		}

		if time.Now().After(deadline) {
			return nil, ErrLockTimeout
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}
