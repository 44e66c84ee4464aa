package api

import (
	"github.com/gin-gonic/gin"

	"github.com/timmy/predictboard/internal/api/handler"
	"github.com/timmy/predictboard/internal/api/middleware"
	"github.com/timmy/predictboard/internal/config"
	"github.com/timmy/predictboard/internal/logger"
	"github.com/timmy/predictboard/internal/service"
)

// Deps are the services and settings the router wires into handlers.
type Deps struct {
	Dashboard *service.DashboardService
	Queries   *service.QueryService
	Logger    *logger.Logger
	Server    config.ServerConfig
	RateLimit config.RateLimitConfig
	// HistoryLimit is the default number of records listed.
	HistoryLimit int
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(deps Deps) *gin.Engine {
	switch deps.Server.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	log := deps.Logger
	if log == nil {
		log = logger.GetDefault()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(log))
	r.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:  deps.Server.CORS.AllowedOrigins,
		AllowAllOrigins: deps.Server.CORS.AllowAllOrigins,
	}))

	// Routes that start Athena queries share one per-client budget.
	var limited gin.HandlerFunc = func(c *gin.Context) { c.Next() }
	if deps.RateLimit.Enabled {
		limited = middleware.NewRateLimiter(middleware.RateLimitConfig{
			RequestsPerSecond: deps.RateLimit.RequestsPerSecond,
			Burst:             deps.RateLimit.Burst,
		}).Middleware()
	}

	healthHandler := handler.NewHealthHandler()
	tickerHandler := handler.NewTickerHandler(deps.Dashboard)
	queryHandler := handler.NewQueryHandler(deps.Dashboard, deps.Queries, deps.HistoryLimit)
	pageHandler := handler.NewPageHandler(deps.Dashboard, deps.Queries, deps.HistoryLimit)

	r.GET("/health", healthHandler.Health)

	// Pages
	r.GET("/", pageHandler.Home)
	r.GET("/predictions", pageHandler.Predictions)
	r.POST("/predictions", limited, pageHandler.RunPredictions)
	r.GET("/forecasts", limited, pageHandler.Forecasts)
	r.GET("/history", pageHandler.History)
	r.GET("/version", pageHandler.Version)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/tickers", limited, tickerHandler.List)
		v1.GET("/tickers/:ticker/series", limited, tickerHandler.Series)
		v1.GET("/tickers/:ticker/chart.png", limited, tickerHandler.Chart)

		v1.POST("/queries", limited, queryHandler.Submit)
		v1.GET("/queries", queryHandler.List)
		v1.GET("/queries/:id", queryHandler.Get)
		v1.GET("/queries/:id/results.csv", queryHandler.ResultsCSV)
	}

	return r
}
