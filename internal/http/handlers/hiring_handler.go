// Hiring HTTP handlers.
//
// This file exposes REST endpoints for the hiring lifecycle:
//   - POST   /hirings                      (create)
//   - GET    /hirings                      (list, paginated)
//   - GET    /hirings/{id}                 (detail + available actions)
//   - POST   /hirings/{id}/quote           (provider quotes)
//   - PUT    /hirings/{id}/quote           (provider edits quote)
//   - POST   /hirings/{id}/accept          (client accepts)
//   - POST   /hirings/{id}/reject          (either side rejects)
//   - POST   /hirings/{id}/cancel          (client cancels)
//   - POST   /hirings/{id}/negotiate       (client negotiates)
//   - POST   /hirings/{id}/requote         (client requotes an expired quote)
//   - POST   /hirings/{id}/payment/retry   (client retries a rejected deposit)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses.
package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tbourn/go-hiring-backend/internal/domain"
	"github.com/tbourn/go-hiring-backend/internal/http/middleware"
	"github.com/tbourn/go-hiring-backend/internal/lifecycle"
	"github.com/tbourn/go-hiring-backend/internal/repo"
	"github.com/tbourn/go-hiring-backend/internal/services"
	"github.com/tbourn/go-hiring-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// HiringAPI defines the hiring lifecycle operations consumed by HTTP
// handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type HiringAPI interface {
	Create(ctx context.Context, clientID, providerID, serviceID, description, modality string) (*domain.Hiring, error)
	Get(ctx context.Context, userID, hiringID string) (*domain.Hiring, []lifecycle.Action, error)
	ListPage(ctx context.Context, userID string, page, pageSize int) ([]domain.Hiring, int64, error)
	Quote(ctx context.Context, providerID, hiringID string, in services.QuoteInput) (*domain.Hiring, error)
	EditQuote(ctx context.Context, providerID, hiringID string, in services.QuoteInput) (*domain.Hiring, error)
	Accept(ctx context.Context, clientID, hiringID string, scheme services.PaymentScheme) (*domain.Hiring, *services.CheckoutInfo, error)
	Reject(ctx context.Context, userID, hiringID string) (*domain.Hiring, error)
	Cancel(ctx context.Context, userID, hiringID string) (*domain.Hiring, error)
	Negotiate(ctx context.Context, clientID, hiringID, notes string) (*domain.Hiring, error)
	Requote(ctx context.Context, clientID, hiringID string) (*domain.Hiring, error)
	RetryPayment(ctx context.Context, clientID, hiringID string) (*services.CheckoutInfo, error)
}

// DeliveryAPI defines the delivery subsystem operations consumed by HTTP
// handlers.
type DeliveryAPI interface {
	Submit(ctx context.Context, providerID, hiringID string, in services.SubmitInput) (*domain.DeliverySubmission, error)
	ListDeliverables(ctx context.Context, userID, hiringID string) ([]services.DeliverableDetail, error)
	ListSubmissions(ctx context.Context, userID, hiringID string) ([]domain.DeliverySubmission, error)
	Approve(ctx context.Context, clientID, hiringID, submissionID string) (*services.CheckoutInfo, error)
	RequestRevision(ctx context.Context, clientID, hiringID, submissionID, notes string) error
}

// ReconcileAPI consumes payment gateway notifications.
type ReconcileAPI interface {
	ProcessNotification(ctx context.Context, externalID string) error
}

// ModerationAPI applies user moderation events to hirings.
type ModerationAPI interface {
	UserBanned(ctx context.Context, userID, reason string) (int64, error)
	UserSuspended(ctx context.Context, userID, reason string) (int64, error)
	UserReactivated(ctx context.Context, userID string) error
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for hirings, deliveries, webhooks, and
// moderation. It depends on abstract service interfaces to keep transport
// concerns separate from business logic.
type Handlers struct {
	hirings    HiringAPI
	deliveries DeliveryAPI
	reconcile  ReconcileAPI
	moderation ModerationAPI
}

// New constructs and returns a Handlers instance bound to the given services.
func New(h HiringAPI, d DeliveryAPI, r ReconcileAPI, m ModerationAPI) *Handlers {
	return &Handlers{hirings: h, deliveries: d, reconcile: r, moderation: m}
}

// userID extracts the authenticated user id from Gin context (set by upstream
// middleware). If absent, it falls back to "X-User-ID" header (tests use it),
// and finally to "demo-user". It never touches c.Request if it's nil.
func userID(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c != nil && c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader("X-User-ID")); h != "" {
			return h
		}
	}
	return "demo-user"
}

//
// DTOs
//

// CreateHiringRequest is the JSON payload for opening a hiring.
type CreateHiringRequest struct {
	ProviderID      string `json:"provider_id" binding:"required" example:"prov-42"`
	ServiceID       string `json:"service_id"  binding:"required" example:"svc-7"`
	Description     string `json:"description" binding:"required" example:"Landing page redesign"`
	PaymentModality string `json:"payment_modality" example:"full_payment"`
}

// QuoteDeliverable is one deliverable line of a quotation payload.
type QuoteDeliverable struct {
	Title                 string          `json:"title" binding:"required" example:"Wireframes"`
	Description           string          `json:"description"`
	Price                 decimal.Decimal `json:"price" example:"150.00"`
	EstimatedDeliveryDate *time.Time      `json:"estimated_delivery_date,omitempty"`
}

// QuoteRequest is the JSON payload for quoting (or editing a quote).
type QuoteRequest struct {
	Price             decimal.Decimal    `json:"price" example:"450.00"`
	ValidityDays      int                `json:"validity_days" example:"7"`
	EstimatedDuration string             `json:"estimated_duration" example:"2 weeks"`
	Notes             string             `json:"notes"`
	Deliverables      []QuoteDeliverable `json:"deliverables,omitempty"`
}

// AcceptRequest optionally selects the payment scheme for full-payment
// hirings: "single" (default) or "split".
type AcceptRequest struct {
	PaymentScheme string `json:"payment_scheme" example:"split"`
}

// NegotiateRequest carries the client's counter-notes.
type NegotiateRequest struct {
	Notes string `json:"notes" binding:"required"`
}

// HiringResponse wraps a hiring with the actions its caller may take next.
type HiringResponse struct {
	Hiring           *domain.Hiring        `json:"hiring"`
	AvailableActions []lifecycle.Action    `json:"available_actions,omitempty"`
	Checkout         *services.CheckoutInfo `json:"checkout,omitempty"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListHiringsResponse wraps a page of hirings and pagination information.
type ListHiringsResponse struct {
	Hirings    []domain.Hiring `json:"hirings"`
	Pagination Pagination      `json:"pagination"`
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

// hiringID validates the :id path parameter as a UUID.
func hiringID(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "hiring id must be a UUID")
		return "", false
	}
	return id, true
}

func (r QuoteRequest) toInput() services.QuoteInput {
	in := services.QuoteInput{
		Price:             r.Price,
		ValidityDays:      r.ValidityDays,
		EstimatedDuration: r.EstimatedDuration,
		Notes:             r.Notes,
	}
	for _, d := range r.Deliverables {
		in.Deliverables = append(in.Deliverables, services.DeliverableInput{
			Title:                 d.Title,
			Description:           d.Description,
			Price:                 d.Price,
			EstimatedDeliveryDate: d.EstimatedDeliveryDate,
		})
	}
	return in
}

//
// Handlers
//

// CreateHiring godoc
// @ID          createHiring
// @Summary     Open a new hiring
// @Description Creates a hiring in the pending status between the current user (client) and a provider.
// @Tags        Hirings
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID        header  string  false "User ID (demo header)"  example(user123)
// @Param       Idempotency-Key  header  string  false "Safe-retry key; a replay returns the originally created hiring"
// @Param       body             body    handlers.CreateHiringRequest  true  "Create hiring payload"
//
// @Success     201  {object}  domain.Hiring
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     422  {object}  handlers.ErrorResponse  "User blocked or unverified"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /hirings [post]
func (h *Handlers) CreateHiring(c *gin.Context) {
	var req CreateHiringRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	ctx := c.Request.Context()
	uid := userID(c)

	// Idempotency (replay path): a stored key serves the hiring it created.
	idemKey, _ := middleware.GetIdempotencyKey(c)
	if idemKey != "" {
		if svc, okSvc := h.hirings.(*services.HiringService); okSvc && svc.DB != nil {
			if rec, err := repo.GetIdempotency(ctx, svc.DB, uid, "", idemKey, time.Now().UTC()); err == nil && rec != nil {
				if prev, err2 := repo.GetHiringForUser(ctx, svc.DB, rec.ResourceID, uid); err2 == nil {
					c.Header("Idempotency-Replayed", "true")
					ok(c, rec.Status, prev)
					return
				}
			}
		}
	}

	created, err := h.hirings.Create(ctx, uid,
		req.ProviderID, req.ServiceID, req.Description, req.PaymentModality)
	if err != nil {
		failService(c, err)
		return
	}

	// Idempotency (store path): best effort, a lost record only costs the
	// replay.
	if idemKey != "" {
		if svc, okSvc := h.hirings.(*services.HiringService); okSvc && svc.DB != nil {
			ttl := svc.IdempotencyTTL
			if ttl <= 0 {
				ttl = 24 * time.Hour
			}
			_, _ = repo.CreateIdempotency(ctx, svc.DB, uid, "", idemKey, created.ID, http.StatusCreated, ttl)
		}
	}
	ok(c, http.StatusCreated, created)
}

// ListHirings godoc
// @ID          listHirings
// @Summary     List hirings (paginated)
// @Description Returns a page of the hirings the current user participates in, newest first.
// @Tags        Hirings
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       page       query   int     false "Page number"            minimum(1) default(1)
// @Param       page_size  query   int     false "Items per page"         minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListHiringsResponse
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /hirings [get]
func (h *Handlers) ListHirings(c *gin.Context) {
	page, pageSize := clampPagination(c)
	items, total, err := h.hirings.ListPage(c.Request.Context(), userID(c), page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListHiringsResponse{
		Hirings: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// GetHiring godoc
// @ID          getHiring
// @Summary     Get a hiring
// @Description Returns the hiring together with the actions currently available to the caller.
// @Tags        Hirings
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Hiring ID (UUID)"       format(uuid)
//
// @Success     200  {object} handlers.HiringResponse
// @Failure     404  {object} handlers.ErrorResponse "Hiring not found"
// @Router      /hirings/{id} [get]
func (h *Handlers) GetHiring(c *gin.Context) {
	id, valid := hiringID(c)
	if !valid {
		return
	}
	hiring, actions, err := h.hirings.Get(c.Request.Context(), userID(c), id)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, HiringResponse{Hiring: hiring, AvailableActions: actions})
}

// Quote godoc
// @ID          quoteHiring
// @Summary     Quote a hiring
// @Description Records the provider's quotation. For by_deliverables hirings the payload must carry the deliverable set, with prices summing to the quoted price.
// @Tags        Hirings
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(prov42)
// @Param       id         path    string  true  "Hiring ID (UUID)"       format(uuid)
// @Param       body       body    handlers.QuoteRequest  true  "Quotation payload"
//
// @Success     200  {object} domain.Hiring
// @Failure     400  {object} handlers.ErrorResponse "Invalid quotation or transition"
// @Router      /hirings/{id}/quote [post]
func (h *Handlers) Quote(c *gin.Context) {
	id, valid := hiringID(c)
	if !valid {
		return
	}
	var req QuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	hiring, err := h.hirings.Quote(c.Request.Context(), userID(c), id, req.toInput())
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, hiring)
}

// EditQuote godoc
// @ID          editQuote
// @Summary     Edit a quotation
// @Description Replaces the quotation of a still-quoted hiring, resetting its validity window.
// @Tags        Hirings
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(prov42)
// @Param       id         path    string  true  "Hiring ID (UUID)"       format(uuid)
// @Param       body       body    handlers.QuoteRequest  true  "Quotation payload"
//
// @Success     200  {object} domain.Hiring
// @Failure     400  {object} handlers.ErrorResponse "Invalid transition"
// @Router      /hirings/{id}/quote [put]
func (h *Handlers) EditQuote(c *gin.Context) {
	id, valid := hiringID(c)
	if !valid {
		return
	}
	var req QuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	hiring, err := h.hirings.EditQuote(c.Request.Context(), userID(c), id, req.toInput())
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, hiring)
}

// Accept godoc
// @ID          acceptHiring
// @Summary     Accept a quotation
// @Description Accepts the quotation as the client. Split-scheme full-payment hirings receive a deposit checkout in the response.
// @Tags        Hirings
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Hiring ID (UUID)"       format(uuid)
// @Param       body       body    handlers.AcceptRequest  false  "Payment scheme"
//
// @Success     200  {object} handlers.HiringResponse
// @Failure     400  {object} handlers.ErrorResponse "Invalid transition (or quotation expired)"
// @Router      /hirings/{id}/accept [post]
func (h *Handlers) Accept(c *gin.Context) {
	id, valid := hiringID(c)
	if !valid {
		return
	}
	var req AcceptRequest
	_ = c.ShouldBindJSON(&req) // body optional
	scheme := services.SchemeSingle
	if req.PaymentScheme == string(services.SchemeSplit) {
		scheme = services.SchemeSplit
	}
	hiring, checkout, err := h.hirings.Accept(c.Request.Context(), userID(c), id, scheme)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, HiringResponse{Hiring: hiring, Checkout: checkout})
}

// Reject godoc
// @ID          rejectHiring
// @Summary     Reject a hiring
// @Tags        Hirings
// @Produce     json
// @Param       X-User-ID  header  string  false "User ID (demo header)"
// @Param       id         path    string  true  "Hiring ID (UUID)"  format(uuid)
// @Success     200  {object} domain.Hiring
// @Failure     400  {object} handlers.ErrorResponse "Invalid transition"
// @Router      /hirings/{id}/reject [post]
func (h *Handlers) Reject(c *gin.Context) {
	h.simpleAction(c, h.hirings.Reject)
}

// Cancel godoc
// @ID          cancelHiring
// @Summary     Cancel a hiring
// @Tags        Hirings
// @Produce     json
// @Param       X-User-ID  header  string  false "User ID (demo header)"
// @Param       id         path    string  true  "Hiring ID (UUID)"  format(uuid)
// @Success     200  {object} domain.Hiring
// @Failure     400  {object} handlers.ErrorResponse "Invalid transition"
// @Router      /hirings/{id}/cancel [post]
func (h *Handlers) Cancel(c *gin.Context) {
	h.simpleAction(c, h.hirings.Cancel)
}

// Requote godoc
// @ID          requoteHiring
// @Summary     Request a fresh quotation
// @Description Snapshots the expired quotation and asks the provider to quote again. Limited to three requotes per hiring.
// @Tags        Hirings
// @Produce     json
// @Param       X-User-ID  header  string  false "User ID (demo header)"
// @Param       id         path    string  true  "Hiring ID (UUID)"  format(uuid)
// @Success     200  {object} domain.Hiring
// @Failure     400  {object} handlers.ErrorResponse "Invalid transition"
// @Router      /hirings/{id}/requote [post]
func (h *Handlers) Requote(c *gin.Context) {
	h.simpleAction(c, h.hirings.Requote)
}

// Negotiate godoc
// @ID          negotiateHiring
// @Summary     Negotiate a quotation
// @Tags        Hirings
// @Accept      json
// @Produce     json
// @Param       X-User-ID  header  string  false "User ID (demo header)"
// @Param       id         path    string  true  "Hiring ID (UUID)"  format(uuid)
// @Param       body       body    handlers.NegotiateRequest  true  "Counter-notes"
// @Success     200  {object} domain.Hiring
// @Failure     400  {object} handlers.ErrorResponse "Invalid transition"
// @Router      /hirings/{id}/negotiate [post]
func (h *Handlers) Negotiate(c *gin.Context) {
	id, valid := hiringID(c)
	if !valid {
		return
	}
	var req NegotiateRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Notes) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "notes required")
		return
	}
	hiring, err := h.hirings.Negotiate(c.Request.Context(), userID(c), id, req.Notes)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, hiring)
}

// RetryPayment godoc
// @ID          retryPayment
// @Summary     Retry a rejected deposit
// @Description Creates a fresh payment attempt and checkout after a rejected deposit. The rejected ledger row is kept for audit.
// @Tags        Hirings
// @Produce     json
// @Param       X-User-ID  header  string  false "User ID (demo header)"
// @Param       id         path    string  true  "Hiring ID (UUID)"  format(uuid)
// @Success     200  {object} services.CheckoutInfo
// @Failure     400  {object} handlers.ErrorResponse "Invalid transition"
// @Router      /hirings/{id}/payment/retry [post]
func (h *Handlers) RetryPayment(c *gin.Context) {
	id, valid := hiringID(c)
	if !valid {
		return
	}
	checkout, err := h.hirings.RetryPayment(c.Request.Context(), userID(c), id)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, checkout)
}

// simpleAction factors the body-less lifecycle endpoints.
func (h *Handlers) simpleAction(c *gin.Context, call func(ctx context.Context, userID, hiringID string) (*domain.Hiring, error)) {
	id, valid := hiringID(c)
	if !valid {
		return
	}
	hiring, err := call(c.Request.Context(), userID(c), id)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, hiring)
}
