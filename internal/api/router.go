package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"nebulapanel/config"
	"nebulapanel/internal/api/handler"
	"nebulapanel/internal/middleware"
	"nebulapanel/internal/repository"
	"nebulapanel/internal/scheduler"
	"nebulapanel/internal/service"
	"nebulapanel/pkg/async"
	"nebulapanel/pkg/lock"
	"nebulapanel/pkg/logger"
)

// SetupRouter 设置API路由
func SetupRouter(cfg *config.Config, logger *logger.Logger, db *sqlx.DB, redisClient *redis.Client, worker *async.Worker) *gin.Engine {
	// 创建Gin引擎
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// 使用中间件
	router.Use(middleware.Logger(logger))
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.CORS())

	// 初始化存储库
	userRepo := repository.NewUserRepository(db)
	proxyNodeRepo := repository.NewProxyNodeRepository(db)
	relayNodeRepo := repository.NewRelayNodeRepository(db)
	relayRuleRepo := repository.NewRelayRuleRepository(db)
	relayTrafficLogRepo := repository.NewRelayTrafficLogRepository(db)
	userCheckinRepo := repository.NewUserCheckinRepository(db)

	// 签到使用按(用户, 当天)分桶的互斥锁抑制重复提交
	checkinLock := lock.NewDailyLock(redisClient, "checkin", 10*time.Second, 3*time.Second)

	// 初始化服务
	userService := service.NewUserService(userRepo, worker, logger)
	nodeService := service.NewNodeService(userRepo, proxyNodeRepo, relayRuleRepo, worker, logger)
	relayTrafficService := service.NewRelayTrafficService(relayNodeRepo, relayRuleRepo, relayTrafficLogRepo, proxyNodeRepo, worker, logger)
	userCheckinService := service.NewUserCheckinService(userRepo, userCheckinRepo, checkinLock, cfg.Checkin, logger)

	// 初始化流量快照调度器
	relayTrafficScheduler := scheduler.NewRelayTrafficScheduler(relayTrafficService, logger)
	relayTrafficScheduler.Start()

	// 初始化处理器
	subscribeHandler := handler.NewSubscribeHandler(nodeService, userService, logger)
	relayHandler := handler.NewRelayHandler(relayTrafficService, logger)
	proxyConfigHandler := handler.NewProxyConfigHandler(nodeService, logger)
	userHandler := handler.NewUserHandler(userService, logger)
	userCheckinHandler := handler.NewUserCheckinHandler(userCheckinService, logger)

	// 健康检查
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// 订阅接口：身份由订阅UID本身承载，无需额外认证
	sub := router.Group("/api/sub")
	{
		sub.GET("", subscribeHandler.GetSubscription)
		sub.GET("/clash/proxies", subscribeHandler.GetClashProviders)
		sub.GET("/clash/direct/domain", subscribeHandler.GetDirectDomainRuleSet)
		sub.GET("/clash/direct/ip", subscribeHandler.GetDirectIPRuleSet)
	}

	// 内部接口：节点与中转机使用共享凭证调用
	internal := router.Group("/api")
	internal.Use(middleware.APIAuth(cfg.APIToken))
	{
		internal.GET("/proxy/:id/config", proxyConfigHandler.GetConfig)
		internal.GET("/relay/:id/config", relayHandler.GetConfig)
		internal.POST("/relay/:id/report", relayHandler.ReportTraffic)
		internal.GET("/relay_rule/:id/traffic", relayHandler.GetRuleTraffic)
	}

	// 面板接口：用户Token认证
	v1 := router.Group("/api/v1")
	v1.Use(middleware.UserAuth(userService))
	{
		v1.GET("/user/subinfo", userHandler.GetSubInfo)
		v1.POST("/user/reset_sub", userHandler.ResetSubCredentials)
		v1.POST("/user/theme", userHandler.UpdateTheme)
		v1.POST("/checkin", userCheckinHandler.Checkin)
		v1.GET("/checkin/logs", userCheckinHandler.GetCheckinLogs)
	}

	return router
}
