// Order and interaction HTTP handlers.
//
//   - GET/POST /customers/{phone}/orders
//   - GET/POST /customers/{phone}/interactions
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/tbourn/go-crm-backend/internal/domain"
	"github.com/tbourn/go-crm-backend/internal/services"
)

// CreateOrderRequest is the JSON payload for recording an order. Amount
// accepts a JSON number or a decimal string.
type CreateOrderRequest struct {
	Amount decimal.Decimal `json:"amount" swaggertype:"string" example:"1250.50"`
	Status string          `json:"status,omitempty" example:"PAID"`
	Note   string          `json:"note,omitempty"`
}

// CreateInteractionRequest is the JSON payload for logging a contact.
// UserID defaults to the acting user and OccurredAt to now.
type CreateInteractionRequest struct {
	UserID     string     `json:"user_id,omitempty"`
	Channel    string     `json:"channel" binding:"required" example:"line"`
	Summary    string     `json:"summary" binding:"required" example:"Asked about restock"`
	Notes      string     `json:"notes,omitempty"`
	OccurredAt *time.Time `json:"occurred_at,omitempty"`
}

// ListOrdersResponse wraps a customer's orders.
type ListOrdersResponse struct {
	Orders []domain.Order `json:"orders"`
}

// ListInteractionsResponse wraps a customer's interactions.
type ListInteractionsResponse struct {
	Interactions []domain.Interaction `json:"interactions"`
}

// CreateOrder godoc
// @ID          createOrder
// @Summary     Record an order
// @Tags        Orders
// @Accept      json
// @Produce     json
// @Param       phone  path  string  true  "Customer phone"
// @Param       body   body  handlers.CreateOrderRequest  true  "Order payload"
// @Success     201  {object} domain.Order
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Customer not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /customers/{phone}/orders [post]
func (h *Handlers) CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	o, err := h.orders.Create(c.Request.Context(), c.Param("phone"), services.OrderInput{
		Amount: req.Amount,
		Status: req.Status,
		Note:   req.Note,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, o)
}

// ListOrders godoc
// @ID          listOrders
// @Summary     List a customer's orders
// @Tags        Orders
// @Produce     json
// @Param       phone  path  string  true  "Customer phone"
// @Success     200  {object} handlers.ListOrdersResponse
// @Failure     404  {object} handlers.ErrorResponse "Customer not found"
// @Router      /customers/{phone}/orders [get]
func (h *Handlers) ListOrders(c *gin.Context) {
	items, err := h.orders.ListByCustomer(c.Request.Context(), c.Param("phone"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ListOrdersResponse{Orders: items})
}

// CreateInteraction godoc
// @ID          createInteraction
// @Summary     Log an interaction
// @Tags        Interactions
// @Accept      json
// @Produce     json
// @Param       X-User-ID  header  string  false "Acting staff user"
// @Param       phone      path    string  true  "Customer phone"
// @Param       body       body    handlers.CreateInteractionRequest  true  "Interaction payload"
// @Success     201  {object} domain.Interaction
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Customer or user not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /customers/{phone}/interactions [post]
func (h *Handlers) CreateInteraction(c *gin.Context) {
	var req CreateInteractionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "channel and summary are required")
		return
	}
	in := services.InteractionInput{
		UserID:     req.UserID,
		Channel:    req.Channel,
		Summary:    req.Summary,
		Notes:      req.Notes,
		OccurredAt: h.now(),
	}
	if in.UserID == "" {
		in.UserID = userID(c)
	}
	if req.OccurredAt != nil {
		in.OccurredAt = *req.OccurredAt
	}

	it, err := h.interactions.Create(c.Request.Context(), c.Param("phone"), in)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, it)
}

// ListInteractions godoc
// @ID          listInteractions
// @Summary     List a customer's interactions
// @Tags        Interactions
// @Produce     json
// @Param       phone  path  string  true  "Customer phone"
// @Success     200  {object} handlers.ListInteractionsResponse
// @Failure     404  {object} handlers.ErrorResponse "Customer not found"
// @Router      /customers/{phone}/interactions [get]
func (h *Handlers) ListInteractions(c *gin.Context) {
	items, err := h.interactions.ListByCustomer(c.Request.Context(), c.Param("phone"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ListInteractionsResponse{Interactions: items})
}
