package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"reward-service/internal/models"
	"reward-service/internal/service"
	"reward-service/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	scans     *service.ScanLifecycle
	listings  *service.ListingLifecycle
	orders    *service.OrderCoordinator
	review    *service.ReviewQueue
	migrator  *service.GuestMigrator
	ledger    *service.PointsLedger
	store     *store.Store
	jwtSecret string
}

// NewHandler creates a new HTTP handler
func NewHandler(
	scans *service.ScanLifecycle,
	listings *service.ListingLifecycle,
	orders *service.OrderCoordinator,
	review *service.ReviewQueue,
	migrator *service.GuestMigrator,
	ledger *service.PointsLedger,
	store *store.Store,
	jwtSecret string,
) *Handler {
	return &Handler{
		scans:     scans,
		listings:  listings,
		orders:    orders,
		review:    review,
		migrator:  migrator,
		ledger:    ledger,
		store:     store,
		jwtSecret: jwtSecret,
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
	v1.Use(actorMiddleware(h.jwtSecret))
	{
		v1.POST("/scans", h.createScan)
		v1.POST("/scans/:id/choice", h.applyChoice)
		v1.GET("/scans", h.scanHistory)

		v1.GET("/account", h.getAccount)
		v1.GET("/notifications", h.listNotifications)
		v1.POST("/migrate", h.migrateGuest)

		v1.GET("/listings", h.browseListings)
		v1.GET("/listings/mine", h.myListings)
		v1.GET("/listings/:id", h.getListing)
		v1.POST("/listings", h.createListing)
		v1.PUT("/listings/:id", h.updateListing)
		v1.POST("/listings/:id/submit", h.submitListing)
		v1.POST("/listings/:id/cancel", h.cancelListing)
		v1.POST("/listings/:id/purchase", h.purchase)
		v1.GET("/listings/:id/conversation", h.getConversation)

		v1.GET("/orders", h.orderHistory)
		v1.GET("/orders/:id", h.getOrder)

		v1.GET("/conversations", h.listConversations)
		v1.GET("/conversations/:id/messages", h.listMessages)
		v1.POST("/conversations/:id/messages", h.postMessage)

		admin := v1.Group("/admin")
		{
			admin.GET("/review/scans", h.pendingScans)
			admin.GET("/review/listings", h.pendingListings)
			admin.POST("/scans/:id/approve", h.approveScan)
			admin.POST("/scans/:id/reject", h.rejectScan)
			admin.POST("/listings/:id/approve", h.approveListing)
			admin.POST("/listings/:id/reject", h.rejectListing)
		}
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

func (h *Handler) createScan(c *gin.Context) {
	var req struct {
		Image string `json:"image" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	result, err := h.scans.CreateScan(c.Request.Context(), getActor(c), req.Image)
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusCreated
	if result.Outcome == service.OutcomeRetry {
		status = http.StatusAccepted
	}
	c.JSON(status, result)
}

func (h *Handler) applyChoice(c *gin.Context) {
	scanID, ok := parseID(c)
	if !ok {
		return
	}

	var req struct {
		Choice string `json:"choice" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	result, err := h.scans.ApplyDisposalChoice(c.Request.Context(), getActor(c), scanID, req.Choice)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) scanHistory(c *gin.Context) {
	actor := getActor(c)
	if actor.Guest() {
		scans, err := h.store.ListGuestScans(c.Request.Context(), actor.DeviceID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"guest_scans": scans})
		return
	}

	scans, err := h.scans.History(c.Request.Context(), actor)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"scans": scans})
}

func (h *Handler) getAccount(c *gin.Context) {
	actor := getActor(c)
	if actor.Guest() {
		profile, err := h.store.GetGuestProfile(c.Request.Context(), actor.DeviceID)
		if errors.Is(err, models.ErrNotFound) {
			c.JSON(http.StatusOK, gin.H{"guest_profile": models.GuestProfile{DeviceID: actor.DeviceID, Level: 1}})
			return
		}
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"guest_profile": profile})
		return
	}

	account, err := h.ledger.GetAccount(c.Request.Context(), actor.AccountID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"account": account})
}

func (h *Handler) listNotifications(c *gin.Context) {
	actor, ok := requireAccount(c)
	if !ok {
		return
	}
	notifications, err := h.store.ListNotifications(c.Request.Context(), actor.AccountID, 50)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": notifications})
}

func (h *Handler) migrateGuest(c *gin.Context) {
	actor, ok := requireAccount(c)
	if !ok {
		return
	}

	var req struct {
		DeviceID string `json:"device_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	result, err := h.migrator.Migrate(c.Request.Context(), req.DeviceID, actor.AccountID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) browseListings(c *gin.Context) {
	limit := intQuery(c, "limit", 20)
	offset := intQuery(c, "offset", 0)

	listings, err := h.listings.Browse(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"listings": listings})
}

func (h *Handler) myListings(c *gin.Context) {
	actor, ok := requireAccount(c)
	if !ok {
		return
	}
	listings, err := h.listings.Mine(c.Request.Context(), actor)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"listings": listings})
}

func (h *Handler) getListing(c *gin.Context) {
	listingID, ok := parseID(c)
	if !ok {
		return
	}
	listing, err := h.listings.Get(c.Request.Context(), listingID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"listing": listing})
}

func (h *Handler) createListing(c *gin.Context) {
	actor, ok := requireAccount(c)
	if !ok {
		return
	}

	var input service.ListingInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	// Direct marketplace creation publishes immediately, without the
	// compliance gate the scan-originated drafts go through.
	listing, err := h.listings.CreateDirect(c.Request.Context(), actor, input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"listing": listing})
}

func (h *Handler) updateListing(c *gin.Context) {
	actor, ok := requireAccount(c)
	if !ok {
		return
	}
	listingID, ok := parseID(c)
	if !ok {
		return
	}

	var input service.ListingInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	listing, err := h.listings.UpdateDraft(c.Request.Context(), actor, listingID, input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"listing": listing})
}

func (h *Handler) submitListing(c *gin.Context) {
	actor, ok := requireAccount(c)
	if !ok {
		return
	}
	listingID, ok := parseID(c)
	if !ok {
		return
	}

	result, err := h.listings.Submit(c.Request.Context(), actor, listingID)
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusOK
	if result.Action == models.ComplianceAutoReject {
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, result)
}

func (h *Handler) cancelListing(c *gin.Context) {
	actor, ok := requireAccount(c)
	if !ok {
		return
	}
	listingID, ok := parseID(c)
	if !ok {
		return
	}

	if err := h.listings.Cancel(c.Request.Context(), actor, listingID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": models.ListingStatusCancelled})
}

func (h *Handler) purchase(c *gin.Context) {
	actor, ok := requireAccount(c)
	if !ok {
		return
	}
	listingID, ok := parseID(c)
	if !ok {
		return
	}

	var req struct {
		IdempotencyKey string `json:"idempotency_key"`
		Message        string `json:"message"`
	}
	// Body is optional for a purchase.
	_ = c.ShouldBindJSON(&req)
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	order, err := h.orders.Purchase(c.Request.Context(), actor, service.PurchaseRequest{
		ListingID:      listingID,
		IdempotencyKey: req.IdempotencyKey,
		OpeningMessage: req.Message,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"order": order})
}

func (h *Handler) orderHistory(c *gin.Context) {
	actor, ok := requireAccount(c)
	if !ok {
		return
	}
	orders, err := h.orders.History(c.Request.Context(), actor)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (h *Handler) getOrder(c *gin.Context) {
	orderID, ok := parseID(c)
	if !ok {
		return
	}
	order, err := h.orders.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order})
}

func (h *Handler) getConversation(c *gin.Context) {
	listingID, ok := parseID(c)
	if !ok {
		return
	}
	conversation, err := h.store.GetConversationByListing(c.Request.Context(), listingID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation": conversation})
}

func (h *Handler) listConversations(c *gin.Context) {
	actor, ok := requireAccount(c)
	if !ok {
		return
	}
	conversations, err := h.store.ListConversationsByAccount(c.Request.Context(), actor.AccountID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": conversations})
}

func (h *Handler) listMessages(c *gin.Context) {
	conversationID, ok := parseID(c)
	if !ok {
		return
	}
	messages, err := h.store.ListMessages(c.Request.Context(), conversationID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

func (h *Handler) postMessage(c *gin.Context) {
	actor, ok := requireAccount(c)
	if !ok {
		return
	}
	conversationID, ok := parseID(c)
	if !ok {
		return
	}

	var req struct {
		Text string `json:"text" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	message := &models.Message{
		ConversationID: conversationID,
		SenderID:       actor.AccountID,
		Text:           req.Text,
	}
	if err := h.store.CreateMessage(c.Request.Context(), message); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": message})
}

func (h *Handler) pendingScans(c *gin.Context) {
	if _, ok := requireAdmin(c); !ok {
		return
	}
	scans, err := h.review.PendingScans(c.Request.Context(), intQuery(c, "limit", 50))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"scans": scans})
}

func (h *Handler) pendingListings(c *gin.Context) {
	if _, ok := requireAdmin(c); !ok {
		return
	}
	listings, err := h.review.PendingListings(c.Request.Context(), intQuery(c, "limit", 50))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"listings": listings})
}

func (h *Handler) approveScan(c *gin.Context) {
	if _, ok := requireAdmin(c); !ok {
		return
	}
	scanID, ok := parseID(c)
	if !ok {
		return
	}
	scan, err := h.review.ApproveScan(c.Request.Context(), scanID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"scan": scan})
}

func (h *Handler) rejectScan(c *gin.Context) {
	if _, ok := requireAdmin(c); !ok {
		return
	}
	scanID, ok := parseID(c)
	if !ok {
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&req)

	scan, err := h.review.RejectScan(c.Request.Context(), scanID, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"scan": scan})
}

func (h *Handler) approveListing(c *gin.Context) {
	if _, ok := requireAdmin(c); !ok {
		return
	}
	listingID, ok := parseID(c)
	if !ok {
		return
	}
	listing, err := h.review.ApproveListing(c.Request.Context(), listingID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"listing": listing})
}

func (h *Handler) rejectListing(c *gin.Context) {
	if _, ok := requireAdmin(c); !ok {
		return
	}
	listingID, ok := parseID(c)
	if !ok {
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&req)

	listing, err := h.review.RejectListing(c.Request.Context(), listingID, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"listing": listing})
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID"})
		return uuid.Nil, false
	}
	return id, true
}

func intQuery(c *gin.Context, key string, fallback int) int {
	if v, err := strconv.Atoi(c.Query(key)); err == nil && v > 0 {
		return v
	}
	return fallback
}

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrInvalidDisposalChoice):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrInsufficientFunds):
		c.JSON(http.StatusPaymentRequired, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrListingUnavailable),
		errors.Is(err, models.ErrStaleTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrNotOwnListing):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrNotOwner):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrClassificationUnavailable),
		errors.Is(err, models.ErrMigrationPartialFailure):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error", "details": err.Error()})
	}
}
