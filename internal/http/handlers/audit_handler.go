// Audit trail and dashboard handlers.
//
//   - GET /audit-logs
//   - GET /stats
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-crm-backend/internal/domain"
	"github.com/tbourn/go-crm-backend/internal/repo"
)

// ListAuditLogsResponse wraps a page of audit records.
type ListAuditLogsResponse struct {
	AuditLogs  []domain.AuditLog `json:"audit_logs"`
	Pagination Pagination        `json:"pagination"`
}

// ListAuditLogs godoc
// @ID          listAuditLogs
// @Summary     Browse the audit trail
// @Description Returns audit records, newest first.
// @Tags        Audit
// @Produce     json
// @Param       action     query  string  false  "Action, e.g. merge_customers"
// @Param       entity     query  string  false  "Entity, e.g. Customer"
// @Param       entity_id  query  string  false  "Entity ID, e.g. a phone"
// @Param       user_id    query  string  false  "Acting user"
// @Param       page       query  int     false  "Page number"     minimum(1) default(1)
// @Param       page_size  query  int     false  "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object} handlers.ListAuditLogsResponse
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /audit-logs [get]
func (h *Handlers) ListAuditLogs(c *gin.Context) {
	page, pageSize := clampPagination(c)
	f := repo.AuditFilter{
		Action:   strings.TrimSpace(c.Query("action")),
		Entity:   strings.TrimSpace(c.Query("entity")),
		EntityID: strings.TrimSpace(c.Query("entity_id")),
		UserID:   strings.TrimSpace(c.Query("user_id")),
	}
	items, total, err := h.audit.ListPage(c.Request.Context(), f, page, pageSize)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ListAuditLogsResponse{AuditLogs: items, Pagination: newPagination(page, pageSize, total)})
}

// GetStats godoc
// @ID          getStats
// @Summary     Dashboard counters
// @Description Customers, orders, revenue (non-cancelled orders), open and overdue tasks, and recent interactions.
// @Tags        Stats
// @Produce     json
// @Success     200  {object} repo.Dashboard
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /stats [get]
func (h *Handlers) GetStats(c *gin.Context) {
	d, err := h.stats.Dashboard(c.Request.Context(), h.now())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, d)
}
