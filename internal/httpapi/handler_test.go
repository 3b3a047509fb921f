package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/aurora-erp/aurora-erp/internal/listing"
	"github.com/aurora-erp/aurora-erp/internal/meta"
	"github.com/aurora-erp/aurora-erp/internal/shared"
	"github.com/aurora-erp/aurora-erp/internal/users"
	"github.com/aurora-erp/aurora-erp/internal/viewgen"
	"github.com/aurora-erp/aurora-erp/internal/workflow"
)

type fakeViews struct {
	out viewgen.Output
	err error

	lastEntity string
	lastView   meta.ViewKind
	lastReq    viewgen.ListRequest
}

func (f *fakeViews) RenderList(_ context.Context, _ shared.Actor, req viewgen.ListRequest) (viewgen.Output, error) {
	f.lastEntity = req.Entity
	f.lastReq = req
	return f.out, f.err
}

func (f *fakeViews) RenderForm(_ context.Context, _ shared.Actor, entityName, _ string, view meta.ViewKind) (viewgen.Output, error) {
	f.lastEntity = entityName
	f.lastView = view
	return f.out, f.err
}

type fakeLists struct {
	result listing.ListResult
	record map[string]any
	err    error
}

func (f *fakeLists) FetchList(context.Context, shared.Actor, string, map[string]any, listing.Sort, int, int) (listing.ListResult, error) {
	return f.result, f.err
}

func (f *fakeLists) FetchRecord(context.Context, shared.Actor, string, string, meta.ViewKind) (map[string]any, error) {
	return f.record, f.err
}

type fakeRecords struct {
	res workflow.Result
	err error
}

func (f *fakeRecords) UpdateRecord(context.Context, shared.Actor, string, uuid.UUID, map[string]any) (workflow.Result, error) {
	return f.res, f.err
}

func (f *fakeRecords) SoftDeleteRecord(context.Context, shared.Actor, string, uuid.UUID) (workflow.Result, error) {
	return f.res, f.err
}

func (f *fakeRecords) RestoreRecord(context.Context, shared.Actor, string, uuid.UUID) (workflow.Result, error) {
	return f.res, f.err
}

type fakeFlow struct {
	res workflow.Result
	err error
}

func (f *fakeFlow) CreatePurchaseOrder(context.Context, shared.Actor, workflow.CreatePOInput) (workflow.Result, error) {
	return f.res, f.err
}
func (f *fakeFlow) SubmitPurchaseOrder(context.Context, shared.Actor, uuid.UUID) (workflow.Result, error) {
	return f.res, f.err
}
func (f *fakeFlow) ApprovePurchaseOrder(context.Context, shared.Actor, uuid.UUID) (workflow.Result, error) {
	return f.res, f.err
}
func (f *fakeFlow) RejectPurchaseOrder(context.Context, shared.Actor, uuid.UUID) (workflow.Result, error) {
	return f.res, f.err
}
func (f *fakeFlow) CancelPurchaseOrder(context.Context, shared.Actor, uuid.UUID) (workflow.Result, error) {
	return f.res, f.err
}
func (f *fakeFlow) CreateGoodsReceipt(context.Context, shared.Actor, workflow.CreateGRInput) (workflow.Result, error) {
	return f.res, f.err
}
func (f *fakeFlow) AcceptGoodsReceipt(context.Context, shared.Actor, uuid.UUID) (workflow.Result, error) {
	return f.res, f.err
}
func (f *fakeFlow) RejectGoodsReceipt(context.Context, shared.Actor, uuid.UUID) (workflow.Result, error) {
	return f.res, f.err
}
func (f *fakeFlow) CreateInvoiceReceipt(context.Context, shared.Actor, workflow.CreateInvoiceInput) (workflow.Result, error) {
	return f.res, f.err
}
func (f *fakeFlow) ApproveInvoiceVariance(context.Context, shared.Actor, uuid.UUID, string) (workflow.Result, error) {
	return f.res, f.err
}
func (f *fakeFlow) CreatePayment(context.Context, shared.Actor, workflow.CreatePaymentInput) (workflow.Result, error) {
	return f.res, f.err
}
func (f *fakeFlow) ProcessPayment(context.Context, shared.Actor, uuid.UUID) (workflow.Result, error) {
	return f.res, f.err
}
func (f *fakeFlow) ClearPayment(context.Context, shared.Actor, uuid.UUID) (workflow.Result, error) {
	return f.res, f.err
}
func (f *fakeFlow) CancelPayment(context.Context, shared.Actor, uuid.UUID) (workflow.Result, error) {
	return f.res, f.err
}

type fakeActorSource struct {
	actor shared.Actor
	err   error
}

func (f fakeActorSource) Actor(context.Context, uuid.UUID) (shared.Actor, error) {
	return f.actor, f.err
}

func testRouter(views *fakeViews, lists *fakeLists, records *fakeRecords, flow *fakeFlow) http.Handler {
	if views == nil {
		views = &fakeViews{}
	}
	if lists == nil {
		lists = &fakeLists{}
	}
	if records == nil {
		records = &fakeRecords{}
	}
	if flow == nil {
		flow = &fakeFlow{}
	}
	h := NewHandler(slog.New(slog.DiscardHandler), views, lists, records, flow)
	r := chi.NewRouter()
	r.Use(WithActor(fakeActorSource{actor: shared.Actor{UserID: uuid.New(), RoleID: uuid.New()}}))
	h.MountRoutes(r)
	return r
}

func doRequest(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(headerUserID, uuid.NewString())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestActorMiddlewareRejectsMissingIdentity(t *testing.T) {
	handler := testRouter(nil, nil, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/supplier/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestActorMiddlewareRejectsUnknownUser(t *testing.T) {
	h := NewHandler(slog.New(slog.DiscardHandler), &fakeViews{}, &fakeLists{}, &fakeRecords{}, &fakeFlow{})
	r := chi.NewRouter()
	r.Use(WithActor(fakeActorSource{err: &shared.NotFoundError{Entity: "user", ID: "x"}}))
	h.MountRoutes(r)

	rec := doRequest(t, r, http.MethodGet, "/api/supplier/", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

type emptyUserRepo struct{}

func (emptyUserRepo) GetByID(context.Context, uuid.UUID) (users.User, error) {
	return users.User{}, users.ErrNotFound
}

func (emptyUserRepo) GetByUsername(context.Context, string) (users.User, error) {
	return users.User{}, users.ErrNotFound
}

func (emptyUserRepo) Create(context.Context, users.User) error { return nil }

// The real user service is the production ActorSource; its not-found must
// reach the middleware as a 401, not a 500.
func TestActorMiddlewareRejectsUserMissingFromStore(t *testing.T) {
	h := NewHandler(slog.New(slog.DiscardHandler), &fakeViews{}, &fakeLists{}, &fakeRecords{}, &fakeFlow{})
	r := chi.NewRouter()
	r.Use(WithActor(users.NewService(emptyUserRepo{})))
	h.MountRoutes(r)

	rec := doRequest(t, r, http.MethodGet, "/api/supplier/", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Body.String(), "unknown user")
}

func TestViewListReturnsHTML(t *testing.T) {
	views := &fakeViews{out: viewgen.Output{HTML: "<ul><li>Initech</li></ul>"}}
	handler := testRouter(views, nil, nil, nil)

	rec := doRequest(t, handler, http.MethodGet, "/views/supplier/?name_like=Ini&page=2&sort=name&dir=DESC", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	require.Equal(t, "<ul><li>Initech</li></ul>", rec.Body.String())

	// Reserved query keys never leak into the filter map.
	require.Equal(t, map[string]any{"name_like": "Ini"}, views.lastReq.Filters)
	require.Equal(t, 2, views.lastReq.Page)
	require.Equal(t, "name", views.lastReq.Sort.Field)
	require.Equal(t, "DESC", views.lastReq.Sort.Direction)
}

func TestViewErrorRendersSafeFragment(t *testing.T) {
	views := &fakeViews{err: &shared.BackendError{Op: "select", Err: errors.New("pq: column does not exist")}}
	handler := testRouter(views, nil, nil, nil)

	rec := doRequest(t, handler, http.MethodGet, "/views/supplier/", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotContains(t, rec.Body.String(), "pq:")
	require.Contains(t, rec.Body.String(), "view-error")
}

func TestViewKindsRouteToGenerator(t *testing.T) {
	views := &fakeViews{out: viewgen.Output{HTML: "ok"}}
	handler := testRouter(views, nil, nil, nil)
	id := uuid.NewString()

	doRequest(t, handler, http.MethodGet, "/views/supplier/new", "")
	require.Equal(t, meta.ViewCreate, views.lastView)
	doRequest(t, handler, http.MethodGet, "/views/supplier/"+id, "")
	require.Equal(t, meta.ViewView, views.lastView)
	doRequest(t, handler, http.MethodGet, "/views/supplier/"+id+"/edit", "")
	require.Equal(t, meta.ViewEdit, views.lastView)
}

func TestListRecordsStatusMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"validation", shared.NewValidationError("status_gte", "bad"), http.StatusBadRequest},
		{"authorization", &shared.AuthorizationError{Entity: "supplier", Action: "read"}, http.StatusForbidden},
		{"not found", &shared.NotFoundError{Entity: "supplier", ID: "x"}, http.StatusNotFound},
		{"configuration", &shared.ConfigurationError{Kind: "entity", Name: "supplier"}, http.StatusInternalServerError},
		{"backend", &shared.BackendError{Op: "select", Err: errors.New("boom")}, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := testRouter(nil, &fakeLists{err: tc.err}, nil, nil)
			rec := doRequest(t, handler, http.MethodGet, "/api/supplier/", "")
			require.Equal(t, tc.want, rec.Code)
			require.NotContains(t, rec.Body.String(), "boom")
		})
	}
}

func TestCreatePurchaseOrderValidation(t *testing.T) {
	handler := testRouter(nil, nil, nil, &fakeFlow{res: workflow.Result{Success: true, EntityID: uuid.New(), NewStatus: "draft"}})

	rec := doRequest(t, handler, http.MethodPost, "/workflow/purchase-orders/", `{"supplier_id":"not-a-uuid","lines":[{"product_code":"A","qty":"1","price":"2"}]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, handler, http.MethodPost, "/workflow/purchase-orders/", `{"supplier_id":"`+uuid.NewString()+`","lines":[]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, handler, http.MethodPost, "/workflow/purchase-orders/", `{"supplier_id":"`+uuid.NewString()+`","lines":[{"product_code":"A","qty":"ten","price":"2"}]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, handler, http.MethodPost, "/workflow/purchase-orders/", `{"supplier_id":"`+uuid.NewString()+`","lines":[{"product_code":"A","qty":"10","price":"2.50"}]}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Contains(t, rec.Body.String(), `"success":true`)
}

func TestRejectedTransitionIs422(t *testing.T) {
	flow := &fakeFlow{res: workflow.Result{Success: false, EntityID: uuid.New(), Reason: "cannot approve from status draft"}}
	handler := testRouter(nil, nil, nil, flow)

	rec := doRequest(t, handler, http.MethodPost, "/workflow/purchase-orders/"+uuid.NewString()+"/approve", "")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Contains(t, rec.Body.String(), "cannot approve")
}

func TestTransitionRejectsMalformedID(t *testing.T) {
	handler := testRouter(nil, nil, nil, nil)
	rec := doRequest(t, handler, http.MethodPost, "/workflow/purchase-orders/nope/approve", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestApproveVarianceRequiresNote(t *testing.T) {
	handler := testRouter(nil, nil, nil, &fakeFlow{res: workflow.Result{Success: true}})
	id := uuid.NewString()

	rec := doRequest(t, handler, http.MethodPost, "/workflow/invoices/"+id+"/approve-variance", `{}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, handler, http.MethodPost, "/workflow/invoices/"+id+"/approve-variance", `{"note":"agreed with supplier"}`)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestUpdateRecordPassesFields(t *testing.T) {
	handler := testRouter(nil, nil, &fakeRecords{res: workflow.Result{Success: true, EntityID: uuid.New()}}, nil)
	rec := doRequest(t, handler, http.MethodPatch, "/api/supplier/"+uuid.NewString(), `{"name":"Initrode"}`)
	require.Equal(t, http.StatusOK, rec.Code)
}
