package scheduler

import (
	"context"
	"time"

	"nebulapanel/internal/service"
	"nebulapanel/pkg/logger"
)

// RelayTrafficScheduler 中转流量快照调度器
// 每天零点将全部规则的累计计数器快照到历史表，供流量曲线使用
type RelayTrafficScheduler struct {
	relayTrafficService service.RelayTrafficService
	logger              *logger.Logger
	quit                chan struct{}
}

// NewRelayTrafficScheduler 创建中转流量快照调度器实例
func NewRelayTrafficScheduler(relayTrafficService service.RelayTrafficService, logger *logger.Logger) *RelayTrafficScheduler {
	return &RelayTrafficScheduler{
		relayTrafficService: relayTrafficService,
		logger:              logger,
		quit:                make(chan struct{}),
	}
}

// Start 启动调度器
func (s *RelayTrafficScheduler) Start() {
	go s.snapshotLoop()
	s.logger.Info("中转流量快照调度器启动")
}

// Stop 停止调度器
func (s *RelayTrafficScheduler) Stop() {
	close(s.quit)
	s.logger.Info("中转流量快照调度器停止")
}

// snapshotLoop 快照定时循环，首次运行等到下一个零点
func (s *RelayTrafficScheduler) snapshotLoop() {
	now := time.Now()
	next := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).Add(24 * time.Hour)

	timer := time.NewTimer(next.Sub(now))
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-s.quit:
		return
	}

	s.snapshot()

	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.snapshot()
		case <-s.quit:
			return
		}
	}
}

func (s *RelayTrafficScheduler) snapshot() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := s.relayTrafficService.SnapshotTraffic(ctx); err != nil {
		s.logger.Error("中转流量快照失败", "error", err)
		return
	}
	s.logger.Info("中转流量快照完成")
}
