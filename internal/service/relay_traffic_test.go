package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"nebulapanel/config"
	"nebulapanel/internal/repository"
	"nebulapanel/pkg/async"
	"nebulapanel/pkg/logger"
)

// 仅实现被测路径所需的方法，其余方法继承nil接口，误调用时会panic
type fakeRelayNodeRepo struct {
	repository.RelayNodeRepository
	nodes map[int64]*repository.RelayNode
}

func (f *fakeRelayNodeRepo) GetByID(_ context.Context, id int64) (*repository.RelayNode, error) {
	node, ok := f.nodes[id]
	if !ok {
		return nil, repository.ErrRelayNodeNotFound
	}
	return node, nil
}

type fakeRelayRuleRepo struct {
	repository.RelayRuleRepository
	rules []*repository.RelayRule
}

func (f *fakeRelayRuleRepo) GetByRelayNodeID(_ context.Context, relayNodeID int64) ([]*repository.RelayRule, error) {
	out := make([]*repository.RelayRule, 0, len(f.rules))
	for _, r := range f.rules {
		if r.RelayNodeID == relayNodeID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRelayRuleRepo) AddTrafficBatch(_ context.Context, deltas []repository.TrafficDelta) error {
	byID := make(map[int64]*repository.RelayRule, len(f.rules))
	for _, r := range f.rules {
		byID[r.ID] = r
	}
	for _, d := range deltas {
		rule := byID[d.RuleID]
		rule.UpTraffic += uint64(d.UpDelta)
		rule.DownTraffic += uint64(d.DownDelta)
	}
	return nil
}

func newTestLogger() *logger.Logger {
	return logger.New("error", config.LogFileConfig{})
}

func newLedgerFixture(scale float64) (RelayTrafficService, *fakeRelayRuleRepo) {
	nodeRepo := &fakeRelayNodeRepo{nodes: map[int64]*repository.RelayNode{
		1: {ID: 1, Name: "relay-hk", EnlargeScale: scale},
	}}
	ruleRepo := &fakeRelayRuleRepo{rules: []*repository.RelayRule{
		{ID: 10, RelayNodeID: 1, Name: "hk-entry-01", UpTraffic: 100, DownTraffic: 0},
		{ID: 11, RelayNodeID: 1, Name: "hk-entry-02", UpTraffic: 0, DownTraffic: 0},
	}}
	svc := NewRelayTrafficService(nodeRepo, ruleRepo, nil, nil, nil, newTestLogger())
	return svc, ruleRepo
}

func TestApplyReportEnlargeScale(t *testing.T) {
	svc, ruleRepo := newLedgerFixture(2.0)

	applied, err := svc.ApplyReport(context.Background(), 1, []RelayStat{
		{RelayLabel: "hk-entry-01", UpBytes: 50, DownBytes: 30},
	})
	require.NoError(t, err)
	require.Equal(t, 1, applied)

	require.Equal(t, uint64(200), ruleRepo.rules[0].UpTraffic)
	require.Equal(t, uint64(60), ruleRepo.rules[0].DownTraffic)
}

func TestApplyReportAccumulates(t *testing.T) {
	svc, ruleRepo := newLedgerFixture(1.5)

	for i := 0; i < 2; i++ {
		_, err := svc.ApplyReport(context.Background(), 1, []RelayStat{
			{RelayLabel: "hk-entry-02", UpBytes: 10, DownBytes: 10},
		})
		require.NoError(t, err)
	}

	require.Equal(t, uint64(30), ruleRepo.rules[1].UpTraffic)
	require.Equal(t, uint64(30), ruleRepo.rules[1].DownTraffic)
}

func TestApplyReportUnknownLabelSkipped(t *testing.T) {
	svc, ruleRepo := newLedgerFixture(2.0)

	applied, err := svc.ApplyReport(context.Background(), 1, []RelayStat{
		{RelayLabel: "hk-entry-01", UpBytes: 10, DownBytes: 0},
		{RelayLabel: "deleted-entry", UpBytes: 999, DownBytes: 999},
	})
	require.NoError(t, err)
	require.Equal(t, 1, applied)

	require.Equal(t, uint64(120), ruleRepo.rules[0].UpTraffic)
	require.Equal(t, uint64(0), ruleRepo.rules[1].UpTraffic)
}

func TestApplyReportEmptyStats(t *testing.T) {
	svc, ruleRepo := newLedgerFixture(2.0)

	applied, err := svc.ApplyReport(context.Background(), 1, nil)
	require.NoError(t, err)
	require.Zero(t, applied)
	require.Equal(t, uint64(100), ruleRepo.rules[0].UpTraffic)
}

func TestApplyReportUnknownNode(t *testing.T) {
	svc, _ := newLedgerFixture(2.0)

	_, err := svc.ApplyReport(context.Background(), 404, []RelayStat{
		{RelayLabel: "hk-entry-01", UpBytes: 10},
	})
	require.ErrorIs(t, err, ErrRelayNodeNotFound)

	// 空上报同样要先过节点校验：已删除节点的空闲代理依赖这个错误触发重新注册
	_, err = svc.ApplyReport(context.Background(), 404, nil)
	require.ErrorIs(t, err, ErrRelayNodeNotFound)
}

func TestApplyReportNegativeBytesSkipped(t *testing.T) {
	svc, ruleRepo := newLedgerFixture(2.0)

	applied, err := svc.ApplyReport(context.Background(), 1, []RelayStat{
		{RelayLabel: "hk-entry-01", UpBytes: -50, DownBytes: 10},
		{RelayLabel: "hk-entry-02", UpBytes: 10, DownBytes: 10},
	})
	require.NoError(t, err)
	require.Equal(t, 1, applied)

	// 带负数的条目整条丢弃，计数器不回退
	require.Equal(t, uint64(100), ruleRepo.rules[0].UpTraffic)
	require.Equal(t, uint64(0), ruleRepo.rules[0].DownTraffic)
	require.Equal(t, uint64(20), ruleRepo.rules[1].UpTraffic)
	require.Equal(t, uint64(20), ruleRepo.rules[1].DownTraffic)
}

type fakeProxyNodeRepo struct {
	repository.ProxyNodeRepository
	nodes map[int64]*repository.ProxyNode
}

func (f *fakeProxyNodeRepo) GetByIDs(_ context.Context, ids []int64) ([]*repository.ProxyNode, error) {
	out := make([]*repository.ProxyNode, 0, len(ids))
	for _, id := range ids {
		if node, ok := f.nodes[id]; ok {
			out = append(out, node)
		}
	}
	return out, nil
}

func (f *fakeRelayNodeRepo) UpdateHeartbeat(_ context.Context, _ int64, _ time.Time) error {
	return nil
}

func TestGetRelayConfig(t *testing.T) {
	nodeRepo := &fakeRelayNodeRepo{nodes: map[int64]*repository.RelayNode{
		1: {ID: 1, Name: "relay-hk", EnlargeScale: 1.0},
	}}
	ruleRepo := &fakeRelayRuleRepo{rules: []*repository.RelayRule{
		{ID: 10, RelayNodeID: 1, ProxyNodeID: 100, Name: "hk-entry-01", RelayHost: "entry.example.com", ListenPort: 10000, ListenType: "raw", TransportType: "ws", Enable: true},
		{ID: 11, RelayNodeID: 1, ProxyNodeID: 100, Name: "hk-entry-02", RelayHost: "entry.example.com", ListenPort: 10001, ListenType: "raw", TransportType: "raw", Enable: false},
		{ID: 12, RelayNodeID: 1, ProxyNodeID: 999, Name: "hk-entry-03", RelayHost: "entry.example.com", ListenPort: 10002, ListenType: "raw", TransportType: "raw", Enable: true},
	}}
	proxyRepo := &fakeProxyNodeRepo{nodes: map[int64]*repository.ProxyNode{
		100: {ID: 100, Server: "origin.example.com", Port: 8388},
	}}

	log := newTestLogger()
	worker := async.NewWorker(8, log)
	svc := NewRelayTrafficService(nodeRepo, ruleRepo, nil, proxyRepo, worker, log)

	cfg, err := svc.GetRelayConfig(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, "relay-hk", cfg["name"])

	relays, ok := cfg["relays"].([]map[string]interface{})
	require.True(t, ok)
	require.Len(t, relays, 1) // 停用的规则和目标节点缺失的规则都不下发
	require.Equal(t, "hk-entry-01", relays[0]["label"])
	require.Equal(t, "entry.example.com:10000", relays[0]["listen"])
	require.Equal(t, "origin.example.com:8388", relays[0]["remote"])
}

type fakeTrafficLogRepo struct {
	repository.RelayTrafficLogRepository
	lastLimit int
	logs      []*repository.RelayTrafficLog
}

func (f *fakeTrafficLogRepo) GetByRuleID(_ context.Context, ruleID int64, limit int) ([]*repository.RelayTrafficLog, error) {
	f.lastLimit = limit
	out := make([]*repository.RelayTrafficLog, 0, len(f.logs))
	for _, l := range f.logs {
		if l.RuleID == ruleID {
			out = append(out, l)
		}
	}
	return out, nil
}

func TestGetRuleTrafficHistory(t *testing.T) {
	logRepo := &fakeTrafficLogRepo{logs: []*repository.RelayTrafficLog{
		{ID: 1, RuleID: 10, RecordDate: "2026-08-29", UpTraffic: 100, DownTraffic: 50},
		{ID: 2, RuleID: 10, RecordDate: "2026-08-30", UpTraffic: 200, DownTraffic: 80},
		{ID: 3, RuleID: 11, RecordDate: "2026-08-30", UpTraffic: 7, DownTraffic: 7},
	}}
	svc := NewRelayTrafficService(nil, nil, logRepo, nil, nil, newTestLogger())

	logs, err := svc.GetRuleTrafficHistory(context.Background(), 10, 0)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	require.Equal(t, 30, logRepo.lastLimit) // 未指定时取默认窗口

	_, err = svc.GetRuleTrafficHistory(context.Background(), 10, 500)
	require.NoError(t, err)
	require.Equal(t, 90, logRepo.lastLimit) // 超出上限时截断

	logs, err = svc.GetRuleTrafficHistory(context.Background(), 11, 7)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Equal(t, 7, logRepo.lastLimit)
}
