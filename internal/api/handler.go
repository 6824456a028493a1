package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"inventory-service/internal/apperr"
	"inventory-service/internal/service"
	"inventory-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Pinger reports whether the backing store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services are the collaborators behind the HTTP boundary
type Services struct {
	Catalog   *service.CatalogService
	Committer *service.SaleCommitter
	Ledger    *service.ProfitLedger
	Stats     *service.StatsAggregator
	Carts     *service.CartSessions
	Store     Pinger
}

// Handler contains HTTP handlers
type Handler struct {
	svc    Services
	logger *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(svc Services) *Handler {
	return &Handler{
		svc:    svc,
		logger: util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/sale-catalog", h.getSaleCatalog)
		v1.POST("/sales", h.commitSale)
		v1.GET("/sales", h.listSales)

		v1.GET("/profit", h.getProfit)
		v1.DELETE("/profit", h.resetProfit)
		v1.POST("/profit/adjustments", h.adjustProfit)

		v1.GET("/stats", h.getStats)

		v1.GET("/products", h.listProducts)
		v1.POST("/products", h.createProduct)
		v1.GET("/products/:id", h.getProduct)
		v1.PUT("/products/:id", h.updateProduct)
		v1.DELETE("/products/:id", h.deleteProduct)

		v1.GET("/suppliers", h.listSuppliers)
		v1.POST("/suppliers", h.createSupplier)
		v1.GET("/suppliers/:id", h.getSupplier)
		v1.PUT("/suppliers/:id", h.updateSupplier)
		v1.DELETE("/suppliers/:id", h.deleteSupplier)

		v1.POST("/carts", h.openCart)
		v1.GET("/carts/:id", h.getCart)
		v1.DELETE("/carts/:id", h.abandonCart)
		v1.POST("/carts/:id/items", h.addCartItem)
		v1.PUT("/carts/:id/items/:productId", h.setCartQuantity)
		v1.DELETE("/carts/:id/items/:productId", h.removeCartItem)
		v1.POST("/carts/:id/checkout", h.checkoutCart)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck reports ready once the store answers a ping
func (h *Handler) readinessCheck(c *gin.Context) {
	if h.svc.Store != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.svc.Store.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "not ready",
				"details": err.Error(),
			})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

func (h *Handler) getSaleCatalog(c *gin.Context) {
	items, err := h.svc.Catalog.SaleCatalog(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

// commitSale accepts {items, idempotencyKey} or a bare array of lines
func (h *Handler) commitSale(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		h.writeError(c, apperr.Validation("failed to read request body"))
		return
	}

	var req saleRequest
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		err = json.Unmarshal(trimmed, &req.Items)
	} else {
		err = json.Unmarshal(trimmed, &req)
	}
	if err != nil {
		h.writeError(c, apperr.Validation("invalid request body: %v", err))
		return
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	txn, err := service.NewSaleTransaction(req.Items, req.IdempotencyKey)
	if err != nil {
		h.writeError(c, err)
		return
	}

	outcome, err := h.svc.Committer.Commit(c.Request.Context(), txn)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toSaleResponse(outcome))
}

func (h *Handler) listSales(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			h.writeError(c, apperr.Validation("invalid limit %q", raw))
			return
		}
		limit = n
	}

	sales, err := h.svc.Committer.RecentSales(c.Request.Context(), limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sales)
}

func (h *Handler) getProfit(c *gin.Context) {
	state, err := h.svc.Ledger.State(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (h *Handler) resetProfit(c *gin.Context) {
	reset, err := h.svc.Ledger.Reset(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, reset)
}

func (h *Handler) adjustProfit(c *gin.Context) {
	var req adjustmentRequest
	if !h.bind(c, &req) {
		return
	}
	if req.Amount.IsZero() {
		h.writeError(c, apperr.Validation("adjustment amount must not be zero"))
		return
	}

	state, err := h.svc.Ledger.Credit(c.Request.Context(), req.Amount)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.logger.Info("Profit adjusted", zap.String("amount", req.Amount.String()), zap.String("reason", req.Reason))
	c.JSON(http.StatusOK, state)
}

func (h *Handler) getStats(c *gin.Context) {
	stats, err := h.svc.Stats.Stats(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) listProducts(c *gin.Context) {
	products, err := h.svc.Catalog.ListProducts(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toProductResponses(products))
}

func (h *Handler) getProduct(c *gin.Context) {
	id, ok := h.idParam(c, "id")
	if !ok {
		return
	}
	p, err := h.svc.Catalog.GetProduct(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toProductResponse(p))
}

func (h *Handler) createProduct(c *gin.Context) {
	var req productRequest
	if !h.bind(c, &req) {
		return
	}
	p, err := h.svc.Catalog.CreateProduct(c.Request.Context(), req.toInput())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toProductResponse(p))
}

func (h *Handler) updateProduct(c *gin.Context) {
	id, ok := h.idParam(c, "id")
	if !ok {
		return
	}
	var req productRequest
	if !h.bind(c, &req) {
		return
	}
	p, err := h.svc.Catalog.UpdateProduct(c.Request.Context(), id, req.toInput())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toProductResponse(p))
}

func (h *Handler) deleteProduct(c *gin.Context) {
	id, ok := h.idParam(c, "id")
	if !ok {
		return
	}
	if err := h.svc.Catalog.DeleteProduct(c.Request.Context(), id); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) listSuppliers(c *gin.Context) {
	suppliers, err := h.svc.Catalog.ListSuppliers(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, suppliers)
}

func (h *Handler) getSupplier(c *gin.Context) {
	id, ok := h.idParam(c, "id")
	if !ok {
		return
	}
	sup, err := h.svc.Catalog.GetSupplier(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sup)
}

func (h *Handler) createSupplier(c *gin.Context) {
	var req supplierRequest
	if !h.bind(c, &req) {
		return
	}
	sup, err := h.svc.Catalog.CreateSupplier(c.Request.Context(), req.toInput())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sup)
}

func (h *Handler) updateSupplier(c *gin.Context) {
	id, ok := h.idParam(c, "id")
	if !ok {
		return
	}
	var req supplierRequest
	if !h.bind(c, &req) {
		return
	}
	sup, err := h.svc.Catalog.UpdateSupplier(c.Request.Context(), id, req.toInput())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sup)
}

func (h *Handler) deleteSupplier(c *gin.Context) {
	id, ok := h.idParam(c, "id")
	if !ok {
		return
	}
	if err := h.svc.Catalog.DeleteSupplier(c.Request.Context(), id); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) openCart(c *gin.Context) {
	c.JSON(http.StatusCreated, h.svc.Carts.Open())
}

func (h *Handler) getCart(c *gin.Context) {
	view, err := h.svc.Carts.View(c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) abandonCart(c *gin.Context) {
	if err := h.svc.Carts.Abandon(c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) addCartItem(c *gin.Context) {
	var req cartItemRequest
	if !h.bind(c, &req) {
		return
	}
	view, err := h.svc.Carts.AddProduct(c.Request.Context(), c.Param("id"), req.ID)
	if err != nil {
		status, body := h.errorBody(c, err)
		if view != nil {
			body["cart"] = view
		}
		c.AbortWithStatusJSON(status, body)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) setCartQuantity(c *gin.Context) {
	productID, ok := h.idParam(c, "productId")
	if !ok {
		return
	}
	var req cartQuantityRequest
	if !h.bind(c, &req) {
		return
	}
	view, err := h.svc.Carts.SetQuantity(c.Param("id"), productID, req.Quantity)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) removeCartItem(c *gin.Context) {
	productID, ok := h.idParam(c, "productId")
	if !ok {
		return
	}
	view, err := h.svc.Carts.RemoveProduct(c.Param("id"), productID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) checkoutCart(c *gin.Context) {
	var req checkoutRequest
	if c.Request.ContentLength > 0 && !h.bind(c, &req) {
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	outcome, err := h.svc.Carts.Checkout(c.Request.Context(), c.Param("id"), req.IdempotencyKey)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toSaleResponse(outcome))
}

func (h *Handler) bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		h.writeError(c, apperr.Validation("invalid request body: %v", err))
		return false
	}
	return true
}

func (h *Handler) idParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		h.writeError(c, apperr.Validation("invalid %s %q", name, c.Param(name)))
		return 0, false
	}
	return id, true
}

// writeError renders err as {error, kind, failingLineIndex?, products?}
func (h *Handler) writeError(c *gin.Context, err error) {
	status, body := h.errorBody(c, err)
	c.AbortWithStatusJSON(status, body)
}

func (h *Handler) errorBody(c *gin.Context, err error) (int, gin.H) {
	e, ok := apperr.As(err)
	if !ok {
		e = apperr.Transport("internal error", err)
	}

	body := gin.H{
		"error": e.Error(),
		"kind":  e.Kind,
	}
	if e.LineIndex != apperr.NoLine {
		body["failingLineIndex"] = e.LineIndex
	}
	if e.ProductID != 0 {
		body["productId"] = e.ProductID
	}
	if e.Blocking != nil {
		body["products"] = e.Blocking
	}
	if e.Sale != nil {
		body["sale"] = e.Sale
	}

	status := statusFor(e.Kind)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	return status, body
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindInsufficientStock, apperr.KindReferentialConflict, apperr.KindDuplicate:
		return http.StatusConflict
	case apperr.KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusServiceUnavailable
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
