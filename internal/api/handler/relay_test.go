package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"nebulapanel/config"
	"nebulapanel/internal/repository"
	"nebulapanel/internal/service"
	"nebulapanel/pkg/logger"
)

type fakeRelayTrafficService struct {
	applyCalls  int
	applyNodeID int64
	applyStats  []service.RelayStat
	applyErr    error
}

func (f *fakeRelayTrafficService) ApplyReport(_ context.Context, relayNodeID int64, stats []service.RelayStat) (int, error) {
	f.applyCalls++
	f.applyNodeID = relayNodeID
	f.applyStats = stats
	if f.applyErr != nil {
		return 0, f.applyErr
	}
	return len(stats), nil
}

func (f *fakeRelayTrafficService) GetRelayConfig(_ context.Context, _ int64) (map[string]interface{}, error) {
	return nil, nil
}

func (f *fakeRelayTrafficService) SnapshotTraffic(_ context.Context) error {
	return nil
}

func (f *fakeRelayTrafficService) GetRuleTrafficHistory(_ context.Context, _ int64, _ int) ([]*repository.RelayTrafficLog, error) {
	return nil, nil
}

func newReportRouter(svc service.RelayTrafficService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewRelayHandler(svc, logger.New("error", config.LogFileConfig{}))
	r.POST("/api/relay/:id/report", h.ReportTraffic)
	return r
}

func TestReportTrafficEmptyBody(t *testing.T) {
	svc := &fakeRelayTrafficService{}
	router := newReportRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/relay/7/report", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	// 空请求体也必须走到服务层做节点校验
	require.Equal(t, 1, svc.applyCalls)
	require.Equal(t, int64(7), svc.applyNodeID)
	require.Empty(t, svc.applyStats)
}

func TestReportTrafficEmptyBodyUnknownNode(t *testing.T) {
	svc := &fakeRelayTrafficService{applyErr: service.ErrRelayNodeNotFound}
	router := newReportRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/relay/404/report", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	// 已删除节点的空闲代理依赖这个400触发重新注册
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, 1, svc.applyCalls)
}

func TestReportTrafficChunkedBody(t *testing.T) {
	svc := &fakeRelayTrafficService{}
	router := newReportRouter(svc)

	body := `{"stats":[{"relay_label":"hk-entry-01","up_bytes":10,"down_bytes":20}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/relay/7/report", strings.NewReader(body))
	req.ContentLength = -1 // chunked传输编码下长度未知
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, svc.applyStats, 1)
	require.Equal(t, "hk-entry-01", svc.applyStats[0].RelayLabel)
	require.Equal(t, int64(10), svc.applyStats[0].UpBytes)
}

func TestReportTrafficMalformedBody(t *testing.T) {
	svc := &fakeRelayTrafficService{}
	router := newReportRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/relay/7/report", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Zero(t, svc.applyCalls)
}

func TestReportTrafficBadNodeID(t *testing.T) {
	svc := &fakeRelayTrafficService{}
	router := newReportRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/relay/abc/report", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Zero(t, svc.applyCalls)
}
