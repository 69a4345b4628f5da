package api

import (
	"github.com/gin-gonic/gin"

	"github.com/qs3c/mpesa_anal_server/config"
	"github.com/qs3c/mpesa_anal_server/internal/api/handler"
	"github.com/qs3c/mpesa_anal_server/internal/api/middleware"
)

type Router struct {
	sessionHandler   *handler.SessionHandler
	analysisHandler  *handler.AnalysisHandler
	historyHandler   *handler.HistoryHandler
	websocketHandler *handler.WebSocketHandler
	systemHandler    *handler.SystemHandler
	cfg              *config.Config
}

func NewRouter(
	sessionHandler *handler.SessionHandler,
	analysisHandler *handler.AnalysisHandler,
	historyHandler *handler.HistoryHandler,
	websocketHandler *handler.WebSocketHandler,
	systemHandler *handler.SystemHandler,
	cfg *config.Config,
) *Router {
	return &Router{
		sessionHandler:   sessionHandler,
		analysisHandler:  analysisHandler,
		historyHandler:   historyHandler,
		websocketHandler: websocketHandler,
		systemHandler:    systemHandler,
		cfg:              cfg,
	}
}

func (r *Router) Setup() *gin.Engine {
	if r.cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.CORS(r.cfg.CORS))
	engine.Use(middleware.Session(r.cfg.JWT.Secret))
	engine.Use(middleware.Logger())

	// 上传文件在内存中最多保留的大小，超出部分写临时文件
	engine.MaxMultipartMemory = r.cfg.Upload.MaxSize + (1 << 20)

	engine.GET("/", r.systemHandler.Index)
	engine.GET("/health", r.systemHandler.Health)

	api := engine.Group("/api/v1")
	{
		// WebSocket
		api.GET("/ws", r.websocketHandler.Handle)

		api.POST("/session", r.sessionHandler.Create)

		// 分析提交限流
		api.POST("/analyze-mpesa", middleware.RateLimit(r.cfg.RateLimit), r.analysisHandler.Submit)

		history := api.Group("/history")
		{
			history.GET("", r.historyHandler.List)
			history.GET("/:id", r.historyHandler.Get)
			history.DELETE("/:id", r.historyHandler.Delete)
			history.DELETE("", r.historyHandler.Clear)
		}
	}

	return engine
}
