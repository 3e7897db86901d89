package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"travel_budget/internal/domain"
	"travel_budget/internal/domain/entity"
	"travel_budget/internal/domain/service/reconstruction"
	"travel_budget/internal/domain/service/rules"
	"travel_budget/internal/domain/service/session"
	"travel_budget/internal/infrastructure/sessionstore"
	"travel_budget/internal/server"
	"travel_budget/pkg/errcodes"
	"travel_budget/pkg/rest"
	"travel_budget/pkg/tests"
)

type memRuleSets struct {
	set *entity.RuleSet
}

func (r *memRuleSets) Current(_ context.Context) (*entity.RuleSet, error) {
	return r.set, nil
}

func (r *memRuleSets) ByVersion(_ context.Context, _ int) (*entity.RuleSet, error) {
	return r.set, nil
}

type memBudgets struct {
	created map[string]*entity.Budget
}

func (b *memBudgets) Create(_ context.Context, budget *entity.Budget) error {
	b.created[budget.ID] = budget
	return nil
}

func (b *memBudgets) GetByID(_ context.Context, id string) (*entity.Budget, error) {
	budget, ok := b.created[id]
	if !ok {
		return nil, domain.NewError(errcodes.BudgetNotFound, "budget not found")
	}

	return budget, nil
}

type memWarnings struct {
	byBudget map[string][]entity.Warning
}

func (w *memWarnings) ListByBudget(_ context.Context, budgetID string) ([]entity.Warning, error) {
	return w.byBudget[budgetID], nil
}

type fakeEnqueuer struct {
	tasks []*asynq.Task
}

func (e *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	e.tasks = append(e.tasks, task)
	return &asynq.TaskInfo{}, nil
}

type fakeReconciler struct {
	warnings []entity.Warning
	err      error
}

func (f *fakeReconciler) ReconcileBudget(_ context.Context, budget *entity.Budget, _ reconstruction.Strategy) ([]entity.Warning, error) {
	if f.err != nil {
		return nil, f.err
	}

	current := budget.CurrentVersion()
	budget.AppendVersion(current.Items, current.MarkupPct, []entity.BudgetChange{{
		Type: entity.ChangePriceIncrease,
	}}, time.Now())

	return f.warnings, nil
}

type testEnv struct {
	router   chi.Router
	budgets  *memBudgets
	enqueuer *fakeEnqueuer
	warnings *memWarnings
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	budgets := &memBudgets{created: make(map[string]*entity.Budget)}
	warnings := &memWarnings{byBudget: make(map[string][]entity.Warning)}
	enqueuer := &fakeEnqueuer{}

	manager := session.NewManager(
		sessionstore.New(time.Minute, time.Minute),
		&memRuleSets{set: &entity.RuleSet{Version: 1}},
		rules.NewEngine(),
		budgets,
	)

	srv := server.NewServer(
		server.NewSessionServer(manager, enqueuer),
		server.NewBudgetServer(budgets, warnings, &fakeReconciler{}),
	)

	router := chi.NewRouter()
	srv.RegisterRoutes(router)

	return &testEnv{
		router:   router,
		budgets:  budgets,
		enqueuer: enqueuer,
		warnings: warnings,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader

	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()

	e.router.ServeHTTP(rec, req)

	return rec
}

func testPackage(id string) rest.Package {
	return rest.Package{
		ID:           id,
		ProviderID:   "provider-1",
		Price:        "1000",
		Currency:     "EUR",
		Availability: 10,
		Details:      map[string]string{"category": "hotel"},
	}
}

func TestSessionLifecycle(t *testing.T) {
	rq := require.New(t)

	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/sessions", rest.CreateSessionRequest{
		VendorID:   "vendor-1",
		CustomerID: "client-1",
	})
	rq.Equal(http.StatusCreated, rec.Code)

	var created rest.CreateSessionResponse
	rq.NoError(json.Unmarshal(rec.Body.Bytes(), &created))
	rq.NotEmpty(created.SessionID)

	base := "/v1/sessions/" + created.SessionID

	rec = env.do(t, http.MethodPost, base+"/packages", rest.AddPackageRequest{
		Package: testPackage("pkg-1"),
	})
	rq.Equal(http.StatusCreated, rec.Code)

	// Same package twice conflicts.
	rec = env.do(t, http.MethodPost, base+"/packages", rest.AddPackageRequest{
		Package: testPackage("pkg-1"),
	})
	rq.Equal(http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodPost, base+"/modifications", rest.ModificationRequest{
		Type:   "SET_MARGIN",
		ItemID: "pkg-1",
		Value:  "0.15",
	})
	rq.Equal(http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, base, nil)
	rq.Equal(http.StatusOK, rec.Code)

	var got rest.Session
	rq.NoError(json.Unmarshal(rec.Body.Bytes(), &got))
	rq.Equal("ACTIVE", got.Status)
	rq.Len(got.Items, 1)
	rq.Len(got.Modifications, 1)

	rec = env.do(t, http.MethodPost, base+"/finalize", nil)
	rq.Equal(http.StatusCreated, rec.Code)

	var budget rest.Budget
	rq.NoError(json.Unmarshal(rec.Body.Bytes(), &budget))
	rq.Equal("DRAFT", budget.Status)
	rq.Equal(1, budget.Version)
	rq.Len(budget.Items, 1)
	rq.Equal("1150", budget.Items[0].FinalPrice)

	// Finalization scheduled the deferred rule validation.
	rq.Len(env.enqueuer.tasks, 1)

	// A finalized session rejects further edits.
	rec = env.do(t, http.MethodPost, base+"/packages", rest.AddPackageRequest{
		Package: testPackage("pkg-2"),
	})
	rq.Equal(http.StatusUnprocessableEntity, rec.Code)
}

func TestSessionValidation(t *testing.T) {
	rq := require.New(t)

	env := newTestEnv(t)

	// Missing vendor id fails validation.
	rec := env.do(t, http.MethodPost, "/v1/sessions", rest.CreateSessionRequest{})
	rq.Equal(http.StatusBadRequest, rec.Code)

	// Malformed session id.
	rec = env.do(t, http.MethodGet, "/v1/sessions/not-a-uuid", nil)
	rq.Equal(http.StatusBadRequest, rec.Code)

	// Unknown but well-formed session id.
	rec = env.do(t, http.MethodGet, "/v1/sessions/7b69b80a-8c9f-4f8e-9d30-7f2f3b2f7a11", nil)
	rq.Equal(http.StatusNotFound, rec.Code)
}

func TestAbandonSession(t *testing.T) {
	rq := require.New(t)

	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/sessions", rest.CreateSessionRequest{VendorID: "vendor-1"})
	rq.Equal(http.StatusCreated, rec.Code)

	var created rest.CreateSessionResponse
	rq.NoError(json.Unmarshal(rec.Body.Bytes(), &created))

	rec = env.do(t, http.MethodDelete, "/v1/sessions/"+created.SessionID, nil)
	rq.Equal(http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/sessions/"+created.SessionID+"/finalize", nil)
	rq.Equal(http.StatusUnprocessableEntity, rec.Code)
}

func TestBudgetEndpoints(t *testing.T) {
	rq := require.New(t)

	env := newTestEnv(t)

	// Produce a budget through the session flow.
	rec := env.do(t, http.MethodPost, "/v1/sessions", rest.CreateSessionRequest{VendorID: "vendor-1"})
	var created rest.CreateSessionResponse
	rq.NoError(json.Unmarshal(rec.Body.Bytes(), &created))

	rec = env.do(t, http.MethodPost, "/v1/sessions/"+created.SessionID+"/packages", rest.AddPackageRequest{
		Package: testPackage("pkg-1"),
	})
	rq.Equal(http.StatusCreated, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/sessions/"+created.SessionID+"/finalize", nil)
	rq.Equal(http.StatusCreated, rec.Code)

	var budget rest.Budget
	rq.NoError(json.Unmarshal(rec.Body.Bytes(), &budget))

	rec = env.do(t, http.MethodGet, "/v1/budgets/"+budget.ID, nil)
	rq.Equal(http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/budgets/"+budget.ID+"/reconstruct", rest.ReconstructRequest{
		Strategy: "PRESERVE_MARGIN",
	})
	rq.Equal(http.StatusOK, rec.Code)

	var reconstructed rest.ReconstructResponse
	rq.NoError(json.Unmarshal(rec.Body.Bytes(), &reconstructed))
	rq.Equal(2, reconstructed.Budget.Version)

	rec = env.do(t, http.MethodPost, "/v1/budgets/"+budget.ID+"/reconstruct", rest.ReconstructRequest{
		Strategy: "NOT_A_STRATEGY",
	})
	rq.Equal(http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/budgets/"+budget.ID+"/warnings", nil)
	rq.Equal(http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/budgets/7b69b80a-8c9f-4f8e-9d30-7f2f3b2f7a11/warnings", nil)
	rq.Equal(http.StatusNotFound, rec.Code)
}

func TestSessionAPIOverNetwork(t *testing.T) {
	rq := require.New(t)
	env := newTestEnv(t)

	httpServer := httptest.NewServer(env.router)
	defer httpServer.Close()

	client := tests.NewAPIClient(httpServer.URL, httpServer.Client())
	ctx := context.Background()

	var created rest.CreateSessionResponse

	resp, err := client.Post(ctx, "/v1/sessions", nil, rest.CreateSessionRequest{
		VendorID:   "vendor-7",
		CustomerID: "customer-7",
	}, &created, nil)
	rq.NoError(err)
	rq.Equal(http.StatusCreated, resp.StatusCode)
	rq.NotEmpty(created.SessionID)

	resp, err = client.Post(ctx, "/v1/sessions/"+created.SessionID+"/packages", nil, rest.AddPackageRequest{
		Package: rest.Package{
			ID:           "pkg-net",
			ProviderID:   "prov-1",
			Price:        "990.00",
			Currency:     "EUR",
			Availability: 4,
		},
	}, nil, nil)
	rq.NoError(err)
	rq.Equal(http.StatusCreated, resp.StatusCode)

	var fetched rest.Session

	resp, err = client.Get(ctx, "/v1/sessions/"+created.SessionID, nil, &fetched, nil)
	rq.NoError(err)
	rq.Equal(http.StatusOK, resp.StatusCode)
	rq.Len(fetched.Items, 1)
	rq.Equal("pkg-net", fetched.Items[0].ID)

	var apiErr rest.Error

	resp, err = client.Delete(ctx, "/v1/sessions/1e8cb25d-11b3-4f30-8f4a-000000000000", nil, nil, &apiErr)
	rq.NoError(err)
	rq.Equal(http.StatusNotFound, resp.StatusCode)
	rq.NotEmpty(apiErr.Code)
}
