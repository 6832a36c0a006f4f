// Package api serves the stored price history as read-only JSON.
package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"laptop-price-tracker/models"
	"laptop-price-tracker/services"
	"laptop-price-tracker/storage"
	"laptop-price-tracker/utils"
)

type Handler struct {
	store    storage.HistoryStore
	insights *services.InsightService
	logger   *utils.Logger
}

// SetupRoutes registers the history endpoints on r.
func SetupRoutes(r *gin.RouterGroup, store storage.HistoryStore, logger *utils.Logger) *Handler {
	h := &Handler{
		store:    store,
		insights: services.NewInsightService(logger),
		logger:   logger,
	}

	r.GET("/observations", h.ListObservations)
	r.GET("/products/:key/history", h.ProductHistory)
	r.GET("/signals/buy-now", h.BuyNowSignals)
	r.GET("/summary", h.Summary)
	return h
}

// NewRouter builds the full gin engine with health check and API routes.
func NewRouter(store storage.HistoryStore, logger *utils.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	SetupRoutes(r.Group("/api/v1"), store, logger)
	return r
}

// Serve runs the API on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, store storage.HistoryStore, logger *utils.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewRouter(store, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("[api] Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("[api] Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// ListObservations returns stored rows, optionally filtered by product_key,
// from/to capture dates (inclusive) and buy_now.
func (h *Handler) ListObservations(c *gin.Context) {
	var from, to models.Date
	for name, dst := range map[string]*models.Date{"from": &from, "to": &to} {
		raw := c.Query(name)
		if raw == "" {
			continue
		}
		d, err := models.ParseDate(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name + " date"})
			return
		}
		*dst = d
	}

	rows, ok := h.readAll(c)
	if !ok {
		return
	}

	key := strings.ToUpper(strings.TrimSpace(c.Query("product_key")))
	buyNowOnly := c.Query("buy_now") == "true"

	out := make([]models.Observation, 0, len(rows))
	for _, o := range rows {
		if key != "" && o.ProductKey != key {
			continue
		}
		if from != "" && o.CaptureDate < from {
			continue
		}
		if to != "" && o.CaptureDate > to {
			continue
		}
		if buyNowOnly && !o.BuyNow {
			continue
		}
		out = append(out, o)
	}

	c.JSON(http.StatusOK, gin.H{"count": len(out), "observations": out})
}

// ProductHistory returns one product's observations in date order.
func (h *Handler) ProductHistory(c *gin.Context) {
	key := c.Param("key")
	rows, ok := h.readAll(c)
	if !ok {
		return
	}

	var history []models.Observation
	for _, o := range rows {
		if strings.EqualFold(o.ProductKey, key) {
			history = append(history, o)
		}
	}
	if len(history) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown product"})
		return
	}

	latest := history[len(history)-1]
	c.JSON(http.StatusOK, gin.H{
		"product_key":     latest.ProductKey,
		"title":           latest.Title,
		"price_stability": latest.PriceStability,
		"stability_label": latest.StabilityLabel,
		"history":         history,
	})
}

// BuyNowSignals lists products whose latest observation carries a buy signal.
func (h *Handler) BuyNowSignals(c *gin.Context) {
	rows, ok := h.readAll(c)
	if !ok {
		return
	}

	signals := make([]models.Observation, 0)
	for _, o := range services.LatestByProduct(rows) {
		if o.BuyNow {
			signals = append(signals, o)
		}
	}
	c.JSON(http.StatusOK, gin.H{"count": len(signals), "signals": signals})
}

func (h *Handler) Summary(c *gin.Context) {
	rows, ok := h.readAll(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.insights.Generate(rows))
}

func (h *Handler) readAll(c *gin.Context) ([]models.Observation, bool) {
	rows, err := h.store.ReadAll(c.Request.Context())
	if err != nil {
		h.logger.Error("[api] Read history failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "history unavailable"})
		return nil, false
	}
	return rows, true
}

func requestLogger(logger *utils.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("[api] %s %s -> %d (%v)",
			c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}
