package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tbourn/go-hiring-backend/internal/domain"
	"github.com/tbourn/go-hiring-backend/internal/lifecycle"
	"github.com/tbourn/go-hiring-backend/internal/services"
)

//
// Fakes with overridable function fields
//

type fakeHiringAPI struct {
	create       func(ctx context.Context, clientID, providerID, serviceID, description, modality string) (*domain.Hiring, error)
	get          func(ctx context.Context, userID, hiringID string) (*domain.Hiring, []lifecycle.Action, error)
	listPage     func(ctx context.Context, userID string, page, pageSize int) ([]domain.Hiring, int64, error)
	quote        func(ctx context.Context, providerID, hiringID string, in services.QuoteInput) (*domain.Hiring, error)
	accept       func(ctx context.Context, clientID, hiringID string, scheme services.PaymentScheme) (*domain.Hiring, *services.CheckoutInfo, error)
	simple       func(ctx context.Context, userID, hiringID string) (*domain.Hiring, error)
	retryPayment func(ctx context.Context, clientID, hiringID string) (*services.CheckoutInfo, error)
}

func (f *fakeHiringAPI) Create(ctx context.Context, clientID, providerID, serviceID, description, modality string) (*domain.Hiring, error) {
	return f.create(ctx, clientID, providerID, serviceID, description, modality)
}
func (f *fakeHiringAPI) Get(ctx context.Context, userID, hiringID string) (*domain.Hiring, []lifecycle.Action, error) {
	return f.get(ctx, userID, hiringID)
}
func (f *fakeHiringAPI) ListPage(ctx context.Context, userID string, page, pageSize int) ([]domain.Hiring, int64, error) {
	return f.listPage(ctx, userID, page, pageSize)
}
func (f *fakeHiringAPI) Quote(ctx context.Context, providerID, hiringID string, in services.QuoteInput) (*domain.Hiring, error) {
	return f.quote(ctx, providerID, hiringID, in)
}
func (f *fakeHiringAPI) EditQuote(ctx context.Context, providerID, hiringID string, in services.QuoteInput) (*domain.Hiring, error) {
	return f.quote(ctx, providerID, hiringID, in)
}
func (f *fakeHiringAPI) Accept(ctx context.Context, clientID, hiringID string, scheme services.PaymentScheme) (*domain.Hiring, *services.CheckoutInfo, error) {
	return f.accept(ctx, clientID, hiringID, scheme)
}
func (f *fakeHiringAPI) Reject(ctx context.Context, userID, hiringID string) (*domain.Hiring, error) {
	return f.simple(ctx, userID, hiringID)
}
func (f *fakeHiringAPI) Cancel(ctx context.Context, userID, hiringID string) (*domain.Hiring, error) {
	return f.simple(ctx, userID, hiringID)
}
func (f *fakeHiringAPI) Negotiate(ctx context.Context, clientID, hiringID, notes string) (*domain.Hiring, error) {
	return f.simple(ctx, clientID, hiringID)
}
func (f *fakeHiringAPI) Requote(ctx context.Context, clientID, hiringID string) (*domain.Hiring, error) {
	return f.simple(ctx, clientID, hiringID)
}
func (f *fakeHiringAPI) RetryPayment(ctx context.Context, clientID, hiringID string) (*services.CheckoutInfo, error) {
	return f.retryPayment(ctx, clientID, hiringID)
}

type fakeDeliveryAPI struct {
	submit           func(ctx context.Context, providerID, hiringID string, in services.SubmitInput) (*domain.DeliverySubmission, error)
	listDeliverables func(ctx context.Context, userID, hiringID string) ([]services.DeliverableDetail, error)
	listSubmissions  func(ctx context.Context, userID, hiringID string) ([]domain.DeliverySubmission, error)
	approve          func(ctx context.Context, clientID, hiringID, submissionID string) (*services.CheckoutInfo, error)
	requestRevision  func(ctx context.Context, clientID, hiringID, submissionID, notes string) error
}

func (f *fakeDeliveryAPI) Submit(ctx context.Context, providerID, hiringID string, in services.SubmitInput) (*domain.DeliverySubmission, error) {
	return f.submit(ctx, providerID, hiringID, in)
}
func (f *fakeDeliveryAPI) ListDeliverables(ctx context.Context, userID, hiringID string) ([]services.DeliverableDetail, error) {
	return f.listDeliverables(ctx, userID, hiringID)
}
func (f *fakeDeliveryAPI) ListSubmissions(ctx context.Context, userID, hiringID string) ([]domain.DeliverySubmission, error) {
	return f.listSubmissions(ctx, userID, hiringID)
}
func (f *fakeDeliveryAPI) Approve(ctx context.Context, clientID, hiringID, submissionID string) (*services.CheckoutInfo, error) {
	return f.approve(ctx, clientID, hiringID, submissionID)
}
func (f *fakeDeliveryAPI) RequestRevision(ctx context.Context, clientID, hiringID, submissionID, notes string) error {
	return f.requestRevision(ctx, clientID, hiringID, submissionID, notes)
}

type fakeReconcileAPI struct {
	process func(ctx context.Context, externalID string) error
	seen    []string
}

func (f *fakeReconcileAPI) ProcessNotification(ctx context.Context, externalID string) error {
	f.seen = append(f.seen, externalID)
	if f.process != nil {
		return f.process(ctx, externalID)
	}
	return nil
}

type fakeModerationAPI struct {
	banned      func(ctx context.Context, userID, reason string) (int64, error)
	suspended   func(ctx context.Context, userID, reason string) (int64, error)
	reactivated func(ctx context.Context, userID string) error
}

func (f *fakeModerationAPI) UserBanned(ctx context.Context, userID, reason string) (int64, error) {
	return f.banned(ctx, userID, reason)
}
func (f *fakeModerationAPI) UserSuspended(ctx context.Context, userID, reason string) (int64, error) {
	return f.suspended(ctx, userID, reason)
}
func (f *fakeModerationAPI) UserReactivated(ctx context.Context, userID string) error {
	return f.reactivated(ctx, userID)
}

//
// Test plumbing
//

func testRouter(h *Handlers) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/hirings", h.CreateHiring)
	r.GET("/hirings", h.ListHirings)
	r.GET("/hirings/:id", h.GetHiring)
	r.POST("/hirings/:id/quote", h.Quote)
	r.POST("/hirings/:id/accept", h.Accept)
	r.POST("/hirings/:id/reject", h.Reject)
	r.POST("/hirings/:id/payment/retry", h.RetryPayment)
	r.POST("/hirings/:id/deliveries", h.SubmitDelivery)
	r.GET("/hirings/:id/deliveries", h.ListDeliveries)
	r.GET("/hirings/:id/deliverables", h.ListDeliverables)
	r.POST("/hirings/:id/deliveries/:sid/review", h.ReviewDelivery)
	r.POST("/webhooks/payments", h.PaymentWebhook)
	r.POST("/internal/moderation/events", h.ModerationEvent)
	return r
}

func do(r *gin.Engine, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func demoHiring(status domain.Status) *domain.Hiring {
	h := &domain.Hiring{ID: uuid.NewString(), ClientID: "client-1", ProviderID: "provider-1", PaymentModality: domain.ModalityFullPayment}
	h.SetStatus(status)
	return h
}

//
// Tests
//

func TestCreateHiring_HandlerPaths(t *testing.T) {
	created := demoHiring(domain.StatusPending)
	api := &fakeHiringAPI{
		create: func(_ context.Context, clientID, providerID, serviceID, description, modality string) (*domain.Hiring, error) {
			if clientID != "user-9" || providerID != "prov-1" || modality != "full_payment" {
				t.Fatalf("wrong args: %s %s %s", clientID, providerID, modality)
			}
			return created, nil
		},
	}
	r := testRouter(New(api, &fakeDeliveryAPI{}, &fakeReconcileAPI{}, &fakeModerationAPI{}))

	w := do(r, http.MethodPost, "/hirings",
		`{"provider_id":"prov-1","service_id":"svc-1","description":"work","payment_modality":"full_payment"}`,
		map[string]string{"X-User-ID": "user-9"})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}

	// Missing required fields.
	w = do(r, http.MethodPost, "/hirings", `{"description":"x"}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad body: status = %d", w.Code)
	}

	// Service-layer validation mapping.
	api.create = func(_ context.Context, _, _, _, _, _ string) (*domain.Hiring, error) {
		return nil, services.ErrUserNotVerified
	}
	w = do(r, http.MethodPost, "/hirings",
		`{"provider_id":"p","service_id":"s","description":"d"}`, nil)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("unverified: status = %d", w.Code)
	}
	var body map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body["code"] != ErrCodeUserBlocked {
		t.Fatalf("code = %v", body["code"])
	}
}

func TestGetHiring_Validation_And_Mapping(t *testing.T) {
	api := &fakeHiringAPI{
		get: func(_ context.Context, _, _ string) (*domain.Hiring, []lifecycle.Action, error) {
			return nil, nil, services.ErrHiringNotFound
		},
	}
	r := testRouter(New(api, &fakeDeliveryAPI{}, &fakeReconcileAPI{}, &fakeModerationAPI{}))

	// Not a UUID.
	w := do(r, http.MethodGet, "/hirings/abc", "", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad id: status = %d", w.Code)
	}

	w = do(r, http.MethodGet, "/hirings/"+uuid.NewString(), "", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing: status = %d", w.Code)
	}

	h := demoHiring(domain.StatusQuoted)
	api.get = func(_ context.Context, _, _ string) (*domain.Hiring, []lifecycle.Action, error) {
		return h, []lifecycle.Action{lifecycle.ActionAccept, lifecycle.ActionReject}, nil
	}
	w = do(r, http.MethodGet, "/hirings/"+h.ID, "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("ok: status = %d", w.Code)
	}
	var resp HiringResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.AvailableActions) != 2 {
		t.Fatalf("actions = %v", resp.AvailableActions)
	}
}

func TestListHirings_PaginationClamp(t *testing.T) {
	var gotPage, gotSize int
	api := &fakeHiringAPI{
		listPage: func(_ context.Context, _ string, page, pageSize int) ([]domain.Hiring, int64, error) {
			gotPage, gotSize = page, pageSize
			return []domain.Hiring{}, 0, nil
		},
	}
	r := testRouter(New(api, &fakeDeliveryAPI{}, &fakeReconcileAPI{}, &fakeModerationAPI{}))

	if w := do(r, http.MethodGet, "/hirings?page=-3&page_size=9999", "", nil); w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if gotPage != 1 || gotSize != 100 {
		t.Fatalf("clamp = (%d,%d), want (1,100)", gotPage, gotSize)
	}
	if w := do(r, http.MethodGet, "/hirings?page=junk", "", nil); w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if gotPage != 1 || gotSize != 20 {
		t.Fatalf("defaults = (%d,%d), want (1,20)", gotPage, gotSize)
	}
}

func TestQuote_InvalidTransitionMapping(t *testing.T) {
	api := &fakeHiringAPI{
		quote: func(_ context.Context, _, _ string, in services.QuoteInput) (*domain.Hiring, error) {
			if !in.Price.Equal(decimal.RequireFromString("450.00")) {
				t.Fatalf("price = %s", in.Price)
			}
			return nil, services.ErrInvalidTransition
		},
	}
	r := testRouter(New(api, &fakeDeliveryAPI{}, &fakeReconcileAPI{}, &fakeModerationAPI{}))

	w := do(r, http.MethodPost, "/hirings/"+uuid.NewString()+"/quote", `{"price":"450.00"}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	var body map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body["code"] != ErrCodeInvalidTransition {
		t.Fatalf("code = %v", body["code"])
	}
}

func TestAccept_SchemeParsing(t *testing.T) {
	var gotScheme services.PaymentScheme
	h := demoHiring(domain.StatusPaymentPending)
	api := &fakeHiringAPI{
		accept: func(_ context.Context, _, _ string, scheme services.PaymentScheme) (*domain.Hiring, *services.CheckoutInfo, error) {
			gotScheme = scheme
			return h, &services.CheckoutInfo{PaymentID: "p1", PreferenceID: "pref", CheckoutURL: "https://x"}, nil
		},
	}
	r := testRouter(New(api, &fakeDeliveryAPI{}, &fakeReconcileAPI{}, &fakeModerationAPI{}))

	// No body defaults to single.
	if w := do(r, http.MethodPost, "/hirings/"+h.ID+"/accept", "", nil); w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if gotScheme != services.SchemeSingle {
		t.Fatalf("scheme = %q", gotScheme)
	}

	w := do(r, http.MethodPost, "/hirings/"+h.ID+"/accept", `{"payment_scheme":"split"}`, nil)
	if w.Code != http.StatusOK || gotScheme != services.SchemeSplit {
		t.Fatalf("split: status=%d scheme=%q", w.Code, gotScheme)
	}
	var resp HiringResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Checkout == nil || resp.Checkout.CheckoutURL != "https://x" {
		t.Fatalf("checkout = %+v", resp.Checkout)
	}
}

func TestReviewDelivery_Actions(t *testing.T) {
	hid, sid := uuid.NewString(), uuid.NewString()
	var revNotes string
	d := &fakeDeliveryAPI{
		approve: func(_ context.Context, _, _, submissionID string) (*services.CheckoutInfo, error) {
			if submissionID != sid {
				t.Fatalf("sid = %q", submissionID)
			}
			return &services.CheckoutInfo{PaymentID: "p1"}, nil
		},
		requestRevision: func(_ context.Context, _, _, _, notes string) error {
			revNotes = notes
			return nil
		},
	}
	r := testRouter(New(&fakeHiringAPI{}, d, &fakeReconcileAPI{}, &fakeModerationAPI{}))
	base := "/hirings/" + hid + "/deliveries/" + sid + "/review"

	if w := do(r, http.MethodPost, base, `{"action":"approve"}`, nil); w.Code != http.StatusOK {
		t.Fatalf("approve: status = %d", w.Code)
	}
	if w := do(r, http.MethodPost, base, `{"action":"Request_Revision","notes":"fix header"}`, nil); w.Code != http.StatusNoContent {
		t.Fatalf("revision: status = %d", w.Code)
	}
	if revNotes != "fix header" {
		t.Fatalf("notes = %q", revNotes)
	}
	if w := do(r, http.MethodPost, base, `{"action":"destroy"}`, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("unknown action: status = %d", w.Code)
	}
	if w := do(r, http.MethodPost, "/hirings/"+hid+"/deliveries/not-a-uuid/review", `{"action":"approve"}`, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("bad sid: status = %d", w.Code)
	}

	// Conflict mapping for re-reviews.
	d.approve = func(_ context.Context, _, _, _ string) (*services.CheckoutInfo, error) {
		return nil, services.ErrDeliveryConflict
	}
	if w := do(r, http.MethodPost, base, `{"action":"approve"}`, nil); w.Code != http.StatusConflict {
		t.Fatalf("conflict: status = %d", w.Code)
	}
}

func TestSubmitDelivery_Handler(t *testing.T) {
	hid := uuid.NewString()
	d := &fakeDeliveryAPI{
		submit: func(_ context.Context, providerID, hiringID string, in services.SubmitInput) (*domain.DeliverySubmission, error) {
			if providerID != "prov-1" || hiringID != hid {
				t.Fatalf("args: %q %q", providerID, hiringID)
			}
			if len(in.Attachments) != 1 || in.Attachments[0].Name != "a.pdf" {
				t.Fatalf("attachments = %+v", in.Attachments)
			}
			return &domain.DeliverySubmission{ID: uuid.NewString(), HiringID: hiringID, Content: in.Content}, nil
		},
	}
	r := testRouter(New(&fakeHiringAPI{}, d, &fakeReconcileAPI{}, &fakeModerationAPI{}))

	w := do(r, http.MethodPost, "/hirings/"+hid+"/deliveries",
		`{"content":"done","attachments":[{"path":"/f/a.pdf","name":"a.pdf"}]}`,
		map[string]string{"X-User-ID": "prov-1"})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}

	// Content is required at the binding layer.
	w = do(r, http.MethodPost, "/hirings/"+hid+"/deliveries", `{}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing content: status = %d", w.Code)
	}
}

func TestModerationEvent_Handler(t *testing.T) {
	m := &fakeModerationAPI{
		banned:      func(_ context.Context, userID, reason string) (int64, error) { return 3, nil },
		suspended:   func(_ context.Context, userID, reason string) (int64, error) { return 1, nil },
		reactivated: func(_ context.Context, userID string) error { return nil },
	}
	r := testRouter(New(&fakeHiringAPI{}, &fakeDeliveryAPI{}, &fakeReconcileAPI{}, m))

	w := do(r, http.MethodPost, "/internal/moderation/events",
		`{"user_id":"u1","event":"Banned","reason":"fraud"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("banned: status = %d", w.Code)
	}
	var resp ModerationEventResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Event != "banned" || resp.HiringsTerminated != 3 {
		t.Fatalf("resp = %+v", resp)
	}

	if w := do(r, http.MethodPost, "/internal/moderation/events", `{"user_id":"u1","event":"reactivated"}`, nil); w.Code != http.StatusOK {
		t.Fatalf("reactivated: status = %d", w.Code)
	}
	if w := do(r, http.MethodPost, "/internal/moderation/events", `{"user_id":"u1","event":"promoted"}`, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("unknown event: status = %d", w.Code)
	}
}
