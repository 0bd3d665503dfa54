package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stylist-backend/internal/config"
	"stylist-backend/internal/handler"
	"stylist-backend/internal/service"
	"stylist-backend/internal/storage"
	"stylist-backend/internal/tools"
	"stylist-backend/pkg/logger"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "./configs/config.yaml", "配置文件路径")
	flag.Parse()

	// 加载配置
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化日志
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}

	// 初始化存储
	store := newStorage(cfg)
	if err := store.Init(); err != nil {
		logger.Fatalf("存储初始化失败: %v", err)
	}

	// 完成通知中介,进程内 TTL 键值交接
	broker := storage.NewBroker(cfg.Broker.TTL)

	// 初始化服务
	searcher := tools.NewProductSearcher(cfg.Search)
	tryOnRunner := service.NewTryOnRunner(cfg.TryOn, cfg.Storage.UploadsDir)
	chatService := service.NewChatService(cfg, searcher)
	proxyService := service.NewProxyService(cfg)
	moodboardService := service.NewMoodboardService(cfg, tryOnRunner, store, broker)
	proactiveService := service.NewProactiveService(cfg, searcher, tryOnRunner, store, broker)

	// 初始化处理器
	chatHandler := handler.NewChatHandler(chatService)
	proxyHandler := handler.NewProxyHandler(proxyService)
	moodboardHandler := handler.NewMoodboardHandler(moodboardService, proactiveService, store)
	notifyHandler := handler.NewNotifyHandler(broker)
	photoHandler := handler.NewPhotoHandler(store, cfg.Storage.UploadsDir)

	// 创建路由
	router := setupRouter(cfg, chatHandler, proxyHandler, moodboardHandler, notifyHandler, photoHandler)

	// 创建HTTP服务器
	server := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        router,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	// 启动服务器
	go func() {
		logger.Infof("服务器启动在端口 %d, 对外地址 %s", cfg.Server.Port, cfg.Host)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("服务器启动失败: %v", err)
		}
	}()

	// 等待信号优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("服务器正在关闭...")
	broker.Close()
	if err := store.Close(); err != nil {
		logger.Errorf("存储关闭失败: %v", err)
	}
	if err := server.Close(); err != nil {
		logger.Errorf("服务器关闭失败: %v", err)
	}
	logger.Info("服务器已关闭")
}

func newStorage(cfg *config.Config) storage.Storage {
	switch cfg.Storage.Type {
	case "disk":
		return storage.NewDiskStorage(cfg.Storage.DataDir, cfg.Storage.CacheSize)
	default:
		return storage.NewMemoryStorage()
	}
}

func setupRouter(
	cfg *config.Config,
	chatHandler *handler.ChatHandler,
	proxyHandler *handler.ProxyHandler,
	moodboardHandler *handler.MoodboardHandler,
	notifyHandler *handler.NotifyHandler,
	photoHandler *handler.PhotoHandler,
) *gin.Engine {
	// 设置gin模式
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// 中间件
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	// CORS配置
	corsConfig := cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    cfg.CORS.ExposedHeaders,
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           time.Duration(cfg.CORS.MaxAge) * time.Second,
	}
	router.Use(cors.New(corsConfig))

	// 健康检查
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().Unix(),
		})
	})

	// 上传目录静态托管,试穿结果与模特照片都走这里
	router.Static(service.UploadPathPrefix, cfg.Storage.UploadsDir)

	// API路由
	api := router.Group("/api")
	{
		api.POST("/chat", chatHandler.StreamChat)
		api.POST("/chat/completions", proxyHandler.ChatCompletions)

		moodboard := api.Group("/moodboard")
		{
			moodboard.POST("/generate", moodboardHandler.Generate)
			moodboard.GET("", moodboardHandler.ListBoards)
			moodboard.POST("", moodboardHandler.CreateBoard)
			moodboard.GET("/:id", moodboardHandler.GetBoard)
			moodboard.DELETE("/:id", moodboardHandler.DeleteBoard)
		}

		api.POST("/styling/proactive", moodboardHandler.Proactive)

		notify := api.Group("/notify")
		{
			notify.GET("", notifyHandler.Poll)
			notify.POST("", notifyHandler.Publish)
		}

		photos := api.Group("/photos")
		{
			photos.POST("", photoHandler.Upload)
			photos.GET("", photoHandler.List)
			photos.PUT("/:id/approval", photoHandler.SetApproval)
		}
	}

	return router
}
