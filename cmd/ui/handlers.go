package main

import (
	"net/http"
	"strconv"
	"time"

	"binance-dip-bot-go/internal/database"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	defaultTradesLimit = 100
	maxTradesLimit     = 1000
)

// APIHandler holds dependencies for the API endpoints.
type APIHandler struct {
	log       *zap.Logger
	ledger    *database.TradeLedger
	positions *database.PositionStore
	now       func() time.Time
}

// NewAPIHandler creates a new APIHandler.
func NewAPIHandler(log *zap.Logger, ledger *database.TradeLedger, positions *database.PositionStore) *APIHandler {
	return &APIHandler{log: log, ledger: ledger, positions: positions, now: time.Now}
}

// NewRouter builds the dashboard router.
func NewRouter(h *APIHandler, release bool) *gin.Engine {
	if release {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(h.log))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	api := router.Group("/api")
	api.GET("/trades", h.TradesHandler)
	api.GET("/statistics", h.StatisticsHandler)
	api.GET("/position", h.PositionHandler)
	return router
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

// TradesHandler returns historical trades, most recent first.
func (h *APIHandler) TradesHandler(c *gin.Context) {
	limit := defaultTradesLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxTradesLimit)
	}

	trades, err := h.ledger.ListTrades(c.Request.Context(), limit)
	if err != nil {
		h.log.Error("Failed to get trades from database", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get trades"})
		return
	}
	c.JSON(http.StatusOK, trades)
}

// StatisticsResponse is the structure for the /api/statistics endpoint.
type StatisticsResponse struct {
	Since24h database.StatsDetail `json:"since_24h"`
	AllTime  database.StatsDetail `json:"all_time"`
}

// StatisticsHandler calculates and returns trading statistics.
func (h *APIHandler) StatisticsHandler(c *gin.Context) {
	ctx := c.Request.Context()

	allTime, err := h.ledger.Statistics(ctx, time.Time{})
	if err != nil {
		h.log.Error("Failed to calculate statistics", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to calculate statistics"})
		return
	}
	since24h, err := h.ledger.Statistics(ctx, h.now().UTC().Add(-24*time.Hour))
	if err != nil {
		h.log.Error("Failed to calculate statistics", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to calculate statistics"})
		return
	}

	c.JSON(http.StatusOK, StatisticsResponse{Since24h: since24h, AllTime: allTime})
}

// PositionHandler returns the open position, or null when the bot is scanning.
func (h *APIHandler) PositionHandler(c *gin.Context) {
	pos, err := h.positions.AnyPosition(c.Request.Context())
	if err != nil {
		h.log.Error("Failed to get position from database", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get position"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"position": pos})
}
