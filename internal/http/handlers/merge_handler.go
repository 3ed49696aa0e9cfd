// Merge HTTP handler.
//
//   - POST /customers/merge
//
// Merging is not naturally idempotent: a repeated request fails because the
// secondaries are gone. Clients that retry after a lost response send an
// Idempotency-Key; when a merge already completed under that key, the
// handler returns the current primary with `Idempotency-Replayed: true`
// instead of running the merge again. A key reused for a different merge is
// rejected with 422 and nothing is merged.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-crm-backend/internal/http/middleware"
	"github.com/tbourn/go-crm-backend/internal/repo"
	"github.com/tbourn/go-crm-backend/internal/services"
)

// ScopeMerge is the idempotency scope of POST /customers/merge.
const ScopeMerge = "customers.merge"

// MergeCustomersRequest is the JSON payload for merging customers.
type MergeCustomersRequest struct {
	// PrimaryPhone survives the merge.
	PrimaryPhone string `json:"primaryPhone" binding:"required" example:"0912345678"`
	// SecondaryPhones are folded into the primary and deleted.
	SecondaryPhones []string `json:"secondaryPhones" binding:"required,min=1" example:"0987654321"`
	// MergeFields selects which of email, notes and tags to fold in.
	MergeFields map[string]bool `json:"mergeFields"`
}

// MergeCustomers godoc
// @ID          mergeCustomers
// @Summary     Merge duplicate customers
// @Description Moves every order, interaction and task of the secondaries to the primary, folds the selected fields, and deletes the secondaries, all in one transaction.
// @Description Supports safe retries via the Idempotency-Key header.
// @Tags        Customers
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID        header  string  false "Acting staff user"
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       body             body    handlers.MergeCustomersRequest  true  "Merge payload"
//
// @Success     200  {object}  domain.Customer  "Updated primary"
// @Header      200  {string}  Idempotency-Replayed  "true when served from a previous identical request"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Customer not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Concurrent change"
// @Failure     422  {object}  handlers.ErrorResponse  "Idempotency-Key reused for a different request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Failure     503  {object}  handlers.ErrorResponse  "Timed out and rolled back"
// @Router      /customers/merge [post]
func (h *Handlers) MergeCustomers(c *gin.Context) {
	ctx := c.Request.Context()

	var req MergeCustomersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "primaryPhone and at least one secondaryPhone are required")
		return
	}
	fields, err := services.ParseMergeFields(req.MergeFields)
	if err != nil {
		failErr(c, err)
		return
	}

	mreq := services.MergeRequest{
		PrimaryPhone:    req.PrimaryPhone,
		SecondaryPhones: req.SecondaryPhones,
		Fields:          fields,
	}
	fingerprint := mreq.Fingerprint()

	uid := userID(c)
	idemKey, _ := middleware.GetIdempotencyKey(c)

	// Idempotency (replay path).
	if idemKey != "" && h.idem != nil {
		rec, err := h.idem.Find(ctx, uid, ScopeMerge, idemKey, h.now())
		switch {
		case err == nil && rec.Fingerprint != fingerprint:
			fail(c, http.StatusUnprocessableEntity, ErrCodeIdempotencyMismatch,
				"Idempotency-Key was already used for a different merge request")
			return
		case err == nil:
			if hist, err := h.customers.Get(ctx, rec.ResourceID); err == nil {
				c.Header("Idempotency-Replayed", "true")
				ok(c, rec.Status, &hist.Customer)
				return
			}
		case !errors.Is(err, repo.ErrNotFound):
			middleware.LoggerFrom(c).Warn().Err(err).Msg("idempotency lookup failed")
		}
	}

	primary, err := h.merges.Merge(ctx, mreq, actor(c))
	if err != nil {
		failErr(c, err)
		return
	}

	// Idempotency (store path), best effort.
	if idemKey != "" && h.idem != nil {
		if err := h.idem.Save(ctx, uid, ScopeMerge, idemKey, primary.Phone, fingerprint, http.StatusOK); err != nil && !errors.Is(err, repo.ErrDuplicate) {
			middleware.LoggerFrom(c).Warn().Err(err).Msg("idempotency store failed")
		}
	}

	ok(c, http.StatusOK, primary)
}
