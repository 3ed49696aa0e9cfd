// Customer HTTP handlers.
//
// This file exposes REST endpoints for customer resources:
//   - POST   /customers                  (create)
//   - GET    /customers                  (list, paginated, ETag support)
//   - GET    /customers/check-duplicate  (name-based duplicate lookup)
//   - GET    /customers/{phone}          (read with history)
//   - PATCH  /customers/{phone}          (partial update)
//   - DELETE /customers/{phone}          (delete, refused while history exists)
package handlers

import (
	"fmt"
	"hash/fnv"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-crm-backend/internal/domain"
	"github.com/tbourn/go-crm-backend/internal/services"
)

//
// DTOs
//

// CreateCustomerRequest is the JSON payload for creating a customer.
type CreateCustomerRequest struct {
	Phone            string   `json:"phone" binding:"required" example:"0912345678"`
	Name             string   `json:"name" binding:"required" example:"王小明"`
	Email            *string  `json:"email,omitempty" example:"ming@example.com"`
	LineID           *string  `json:"line_id,omitempty" example:"ming.wang"`
	FacebookURL      *string  `json:"facebook_url,omitempty"`
	Source           string   `json:"source,omitempty" example:"line"`
	Tags             []string `json:"tags,omitempty" example:"vip,taipei"`
	Region           *string  `json:"region,omitempty" example:"north"`
	MarketingConsent bool     `json:"marketing_consent"`
	Notes            string   `json:"notes,omitempty"`
}

// UpdateCustomerRequest is the JSON payload for a partial update. Omitted
// fields are left unchanged; an empty string clears an optional attribute.
type UpdateCustomerRequest struct {
	Name             *string   `json:"name,omitempty"`
	Email            *string   `json:"email,omitempty"`
	LineID           *string   `json:"line_id,omitempty"`
	FacebookURL      *string   `json:"facebook_url,omitempty"`
	Source           *string   `json:"source,omitempty"`
	Tags             *[]string `json:"tags,omitempty"`
	Region           *string   `json:"region,omitempty"`
	MarketingConsent *bool     `json:"marketing_consent,omitempty"`
	Notes            *string   `json:"notes,omitempty"`
}

// ListCustomersResponse wraps a page of customers and pagination information.
type ListCustomersResponse struct {
	Customers  []domain.Customer `json:"customers"`
	Pagination Pagination        `json:"pagination"`
}

// DuplicateCheckResponse lists customers whose name contains the candidate.
type DuplicateCheckResponse struct {
	HasDuplicates bool              `json:"has_duplicates"`
	Duplicates    []domain.Customer `json:"duplicates"`
}

// customersETag builds a weak ETag from the result set's size and freshness.
// The query and page are hashed so no customer data ends up in the header.
func customersETag(q string, page, pageSize int, count, updatedUnix int64) string {
	h := fnv.New32a()
	fmt.Fprintf(h, "%s|%d|%d", q, page, pageSize)
	return fmt.Sprintf(`W/"customers:%08x:%d:%d"`, h.Sum32(), count, updatedUnix)
}

//
// Handlers
//

// CreateCustomer godoc
// @ID          createCustomer
// @Summary     Create a customer
// @Description Creates a customer keyed by a Taiwan mobile number. Full-width digits and +886 prefixes are normalized.
// @Tags        Customers
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "Acting staff user"  example(user123)
// @Param       body       body    handlers.CreateCustomerRequest  true  "Customer payload"
//
// @Success     201  {object}  domain.Customer
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     409  {object}  handlers.ErrorResponse  "Phone already registered"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /customers [post]
func (h *Handlers) CreateCustomer(c *gin.Context) {
	var req CreateCustomerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "phone and name are required")
		return
	}

	cust, err := h.customers.Create(c.Request.Context(), actor(c), services.CustomerInput{
		Phone:            req.Phone,
		Name:             req.Name,
		Email:            req.Email,
		LineID:           req.LineID,
		FacebookURL:      req.FacebookURL,
		Source:           req.Source,
		Tags:             req.Tags,
		Region:           req.Region,
		MarketingConsent: req.MarketingConsent,
		Notes:            req.Notes,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, cust)
}

// ListCustomers godoc
// @ID          listCustomers
// @Summary     List customers (paginated)
// @Description Returns a page of customers whose phone or name contains q. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Customers
// @Produce     json
//
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       q              query   string  false "Phone or name fragment"
// @Param       page           query   int     false "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListCustomersResponse
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /customers [get]
func (h *Handlers) ListCustomers(c *gin.Context) {
	ctx := c.Request.Context()
	q := strings.TrimSpace(c.Query("q"))
	page, pageSize := clampPagination(c)

	// ETag pre-check (best effort).
	if count, maxTS, err := h.customers.Stats(ctx, q); err == nil {
		var ts int64
		if maxTS != nil {
			ts = maxTS.UnixNano()
		}
		etag := customersETag(q, page, pageSize, count, ts)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	items, total, err := h.customers.ListPage(ctx, q, page, pageSize)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ListCustomersResponse{
		Customers:  items,
		Pagination: newPagination(page, pageSize, total),
	})
}

// CheckDuplicate godoc
// @ID          checkDuplicateCustomer
// @Summary     Find likely duplicates by name
// @Description Lists customers whose name contains the given name (case-sensitive substring), optionally excluding one phone.
// @Tags        Customers
// @Produce     json
//
// @Param       name           query  string  true   "Candidate name"
// @Param       exclude_phone  query  string  false  "Phone to leave out (e.g. the customer being edited)"
//
// @Success     200  {object} handlers.DuplicateCheckResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /customers/check-duplicate [get]
func (h *Handlers) CheckDuplicate(c *gin.Context) {
	name := c.Query("name")
	if strings.TrimSpace(name) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "name is required")
		return
	}
	dups, err := h.duplicates.Check(c.Request.Context(), name, c.Query("exclude_phone"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, DuplicateCheckResponse{HasDuplicates: len(dups) > 0, Duplicates: dups})
}

// GetCustomer godoc
// @ID          getCustomer
// @Summary     Get a customer with history
// @Description Returns the customer with its orders, interactions and tasks.
// @Tags        Customers
// @Produce     json
//
// @Param       phone  path  string  true  "Customer phone"  example(0912345678)
//
// @Success     200  {object} domain.CustomerHistory
// @Failure     404  {object} handlers.ErrorResponse "Customer not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /customers/{phone} [get]
func (h *Handlers) GetCustomer(c *gin.Context) {
	hist, err := h.customers.Get(c.Request.Context(), c.Param("phone"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, hist)
}

// UpdateCustomer godoc
// @ID          updateCustomer
// @Summary     Update a customer
// @Description Applies a partial update. The phone number cannot be changed; merge customers instead.
// @Tags        Customers
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "Acting staff user"
// @Param       phone      path    string  true  "Customer phone"
// @Param       body       body    handlers.UpdateCustomerRequest  true  "Fields to change"
//
// @Success     200  {object} domain.Customer
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Customer not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /customers/{phone} [patch]
func (h *Handlers) UpdateCustomer(c *gin.Context) {
	var req UpdateCustomerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	cust, err := h.customers.Update(c.Request.Context(), actor(c), c.Param("phone"), services.CustomerPatch{
		Name:             req.Name,
		Email:            req.Email,
		LineID:           req.LineID,
		FacebookURL:      req.FacebookURL,
		Source:           req.Source,
		Tags:             req.Tags,
		Region:           req.Region,
		MarketingConsent: req.MarketingConsent,
		Notes:            req.Notes,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, cust)
}

// DeleteCustomer godoc
// @ID          deleteCustomer
// @Summary     Delete a customer
// @Description Deletes a customer that owns no orders, interactions or tasks. Customers with history must be merged.
// @Tags        Customers
//
// @Param       X-User-ID  header  string  false "Acting staff user"
// @Param       phone      path    string  true  "Customer phone"
//
// @Success     204  {string} string "No Content"
// @Failure     404  {object} handlers.ErrorResponse "Customer not found"
// @Failure     409  {object} handlers.ErrorResponse "Customer still has history"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /customers/{phone} [delete]
func (h *Handlers) DeleteCustomer(c *gin.Context) {
	if err := h.customers.Delete(c.Request.Context(), actor(c), c.Param("phone")); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}
