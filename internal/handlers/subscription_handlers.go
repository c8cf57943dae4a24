package handlers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"storebill/internal/common"
	"storebill/internal/models"
	"storebill/internal/services"
)

// SubscriptionHandlers handles HTTP requests for subscriptions
type SubscriptionHandlers struct {
	subscriptionService services.SubscriptionService
}

// NewSubscriptionHandlers creates a new subscription handlers instance
func NewSubscriptionHandlers(subscriptionService services.SubscriptionService) *SubscriptionHandlers {
	return &SubscriptionHandlers{subscriptionService: subscriptionService}
}

type createSubscriptionRequest struct {
	CustomerID string            `json:"customer_id"`
	ProductID  string            `json:"product_id"`
	Quantity   int               `json:"quantity"`
	Interval   string            `json:"interval"`
	StartDate  string            `json:"start_date"`
	TrialDays  int               `json:"trial_days"`
	EndDate    string            `json:"end_date"`
	AutoCharge bool              `json:"auto_charge"`
	Metadata   map[string]string `json:"metadata"`
}

// CreateSubscription handles POST /v1/subscriptions
func (h *SubscriptionHandlers) CreateSubscription(c echo.Context) error {
	ctx := c.Request().Context()

	var req createSubscriptionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}

	customerID, err := common.ValidateUUID(req.CustomerID, "customer_id")
	if err != nil {
		return common.SendError(c, err)
	}
	productID, err := common.ValidateUUID(req.ProductID, "product_id")
	if err != nil {
		return common.SendError(c, err)
	}
	startDate, err := common.ParseDate(req.StartDate, "start_date")
	if err != nil {
		return common.SendError(c, err)
	}

	create := services.CreateSubscriptionRequest{
		CustomerID: customerID,
		ProductID:  productID,
		Quantity:   req.Quantity,
		Interval:   models.Interval(req.Interval),
		StartDate:  startDate,
		TrialDays:  req.TrialDays,
		AutoCharge: req.AutoCharge,
		Metadata:   req.Metadata,
	}
	if req.EndDate != "" {
		endDate, err := common.ParseDate(req.EndDate, "end_date")
		if err != nil {
			return common.SendError(c, err)
		}
		create.EndDate = &endDate
	}

	subscription, err := h.subscriptionService.Create(ctx, create)
	if err != nil {
		return common.SendError(c, err)
	}
	return c.JSON(http.StatusCreated, subscription)
}

// GetSubscription handles GET /v1/subscriptions/:id
func (h *SubscriptionHandlers) GetSubscription(c echo.Context) error {
	id, err := common.ValidateUUID(c.Param("id"), "id")
	if err != nil {
		return common.SendError(c, err)
	}

	subscription, err := h.subscriptionService.GetByID(c.Request().Context(), id)
	if err != nil {
		return common.SendError(c, err)
	}
	return c.JSON(http.StatusOK, subscription)
}

// ListSubscriptions handles GET /v1/subscriptions
func (h *SubscriptionHandlers) ListSubscriptions(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))

	subscriptions, err := h.subscriptionService.List(c.Request().Context(), limit, offset)
	if err != nil {
		return common.SendError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"subscriptions": subscriptions,
		"count":         len(subscriptions),
	})
}

// CancelSubscription handles POST /v1/subscriptions/:id/cancel
func (h *SubscriptionHandlers) CancelSubscription(c echo.Context) error {
	id, err := common.ValidateUUID(c.Param("id"), "id")
	if err != nil {
		return common.SendError(c, err)
	}

	subscription, err := h.subscriptionService.Cancel(c.Request().Context(), id)
	if err != nil {
		return common.SendError(c, err)
	}
	return c.JSON(http.StatusOK, subscription)
}
