// Delivery HTTP handlers.
//
// This file exposes REST endpoints for the delivery subsystem:
//   - POST /hirings/{id}/deliveries                       (provider submits work)
//   - GET  /hirings/{id}/deliveries                       (submission history)
//   - GET  /hirings/{id}/deliverables                     (deliverables with view gating)
//   - POST /hirings/{id}/deliveries/{sid}/review          (client approves or requests revision)
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/go-hiring-backend/internal/services"
)

// SubmitDeliveryRequest is the JSON payload for a provider delivery.
// DeliverableID is required for by_deliverables hirings and must be absent
// for full-payment ones.
type SubmitDeliveryRequest struct {
	DeliverableID *string                  `json:"deliverable_id,omitempty"`
	Content       string                   `json:"content" binding:"required"`
	Attachments   []SubmitAttachmentInput  `json:"attachments,omitempty"`
}

// SubmitAttachmentInput is one file reference in a delivery payload.
type SubmitAttachmentInput struct {
	Path string `json:"path" binding:"required"`
	URL  string `json:"url"`
	Name string `json:"name" binding:"required"`
	Size int64  `json:"size"`
	Mime string `json:"mime"`
}

// ReviewRequest is the JSON payload for reviewing a delivered submission.
// Action is "approve" or "request_revision"; notes are mandatory for the
// latter.
type ReviewRequest struct {
	Action string `json:"action" binding:"required" example:"approve"`
	Notes  string `json:"notes,omitempty"`
}

// SubmitDelivery godoc
// @ID          submitDelivery
// @Summary     Submit a delivery
// @Description Records provider work against the hiring or one of its deliverables. Deliverables must be submitted in order; a new submission for the same obligation is only accepted after a revision request.
// @Tags        Deliveries
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(prov42)
// @Param       id         path    string  true  "Hiring ID (UUID)"       format(uuid)
// @Param       body       body    handlers.SubmitDeliveryRequest  true  "Delivery payload"
//
// @Success     201  {object} domain.DeliverySubmission
// @Failure     400  {object} handlers.ErrorResponse "Bad request or out-of-order deliverable"
// @Failure     409  {object} handlers.ErrorResponse "Active delivery exists"
// @Router      /hirings/{id}/deliveries [post]
func (h *Handlers) SubmitDelivery(c *gin.Context) {
	id, valid := hiringID(c)
	if !valid {
		return
	}
	var req SubmitDeliveryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	in := services.SubmitInput{
		DeliverableID: req.DeliverableID,
		Content:       req.Content,
	}
	for _, a := range req.Attachments {
		in.Attachments = append(in.Attachments, services.AttachmentInput{
			Path: a.Path, URL: a.URL, Name: a.Name, Size: a.Size, Mime: a.Mime,
		})
	}
	sub, err := h.deliveries.Submit(c.Request.Context(), userID(c), id, in)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusCreated, sub)
}

// ListDeliveries godoc
// @ID          listDeliveries
// @Summary     List delivery submissions
// @Description Returns the hiring's submission history. Clients of a by_deliverables hiring only see submissions of unlocked deliverables.
// @Tags        Deliveries
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"
// @Param       id         path    string  true  "Hiring ID (UUID)"  format(uuid)
//
// @Success     200  {array}  domain.DeliverySubmission
// @Failure     404  {object} handlers.ErrorResponse "Hiring not found"
// @Router      /hirings/{id}/deliveries [get]
func (h *Handlers) ListDeliveries(c *gin.Context) {
	id, valid := hiringID(c)
	if !valid {
		return
	}
	subs, err := h.deliveries.ListSubmissions(c.Request.Context(), userID(c), id)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, subs)
}

// ListDeliverables godoc
// @ID          listDeliverables
// @Summary     List deliverables
// @Description Returns the deliverable set with the caller's visibility applied: locked deliverables expose only ordering metadata until the previous one is paid.
// @Tags        Deliveries
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"
// @Param       id         path    string  true  "Hiring ID (UUID)"  format(uuid)
//
// @Success     200  {array}  services.DeliverableDetail
// @Failure     404  {object} handlers.ErrorResponse "Hiring not found"
// @Router      /hirings/{id}/deliverables [get]
func (h *Handlers) ListDeliverables(c *gin.Context) {
	id, valid := hiringID(c)
	if !valid {
		return
	}
	items, err := h.deliveries.ListDeliverables(c.Request.Context(), userID(c), id)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, items)
}

// ReviewDelivery godoc
// @ID          reviewDelivery
// @Summary     Review a delivered submission
// @Description Approves the submission (creating the corresponding charge and returning its checkout) or requests a revision with mandatory notes.
// @Tags        Deliveries
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Hiring ID (UUID)"       format(uuid)
// @Param       sid        path    string  true  "Submission ID (UUID)"   format(uuid)
// @Param       body       body    handlers.ReviewRequest  true  "Review payload"
//
// @Success     200  {object} services.CheckoutInfo "On approve"
// @Success     204  {string} string "On request_revision"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     409  {object} handlers.ErrorResponse "Submission not reviewable"
// @Router      /hirings/{id}/deliveries/{sid}/review [post]
func (h *Handlers) ReviewDelivery(c *gin.Context) {
	id, valid := hiringID(c)
	if !valid {
		return
	}
	sid := c.Param("sid")
	if _, err := uuid.Parse(sid); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "submission id must be a UUID")
		return
	}
	var req ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	switch strings.ToLower(strings.TrimSpace(req.Action)) {
	case "approve":
		checkout, err := h.deliveries.Approve(c.Request.Context(), userID(c), id, sid)
		if err != nil {
			failService(c, err)
			return
		}
		ok(c, http.StatusOK, checkout)
	case "request_revision":
		if err := h.deliveries.RequestRevision(c.Request.Context(), userID(c), id, sid, req.Notes); err != nil {
			failService(c, err)
			return
		}
		noContent(c)
	default:
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, `action must be "approve" or "request_revision"`)
	}
}
