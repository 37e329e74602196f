package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/agridesk/agridesk/pkg/idempotency"
	"github.com/agridesk/agridesk/pkg/identity"
	"github.com/agridesk/agridesk/pkg/models"
	"github.com/agridesk/agridesk/pkg/onboarding"
	"github.com/agridesk/agridesk/pkg/persistence"
	"github.com/agridesk/agridesk/pkg/persistence/file"
	"github.com/agridesk/agridesk/pkg/provision"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvisioner struct {
	ensureCalls int
	deleteCalls int
}

func (p *stubProvisioner) EnsureIdentity(_ context.Context, req identity.EnsureRequest) (*models.Identity, error) {
	p.ensureCalls++

	return &models.Identity{ID: uuid.New().String(), Email: req.Email, DisplayName: req.DisplayName}, nil
}

func (p *stubProvisioner) DeleteIdentity(_ context.Context, _ string) error {
	p.deleteCalls++

	return nil
}

type testEnv struct {
	app         *fiber.App
	persistence persistence.Persistence
	provisioner *stubProvisioner
	root        string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	root := t.TempDir()
	p := file.NewPersistence(root)
	provisioner := &stubProvisioner{}
	logger := slog.Default()

	provisionService := provision.NewService(p, provisioner, nil, nil, logger)
	onboardingService := onboarding.NewService(p, nil, nil, logger)

	handlers := NewAPIHandlers(
		provisionService,
		onboardingService,
		idempotency.NewMemoryStore(0),
		p,
		validator.New(validator.WithRequiredStructEnabled()),
		logger,
	)

	app := fiber.New()
	app.Post("/tenants/provision", handlers.ProvisionTenant)
	app.Get("/tenants/:id", handlers.GetTenant)
	app.Get("/tenants/:id/onboarding", handlers.GetTenantOnboarding)
	app.Post("/onboarding/start", handlers.StartOnboarding)
	app.Get("/onboarding/workflows/:id", handlers.GetOnboardingWorkflow)
	app.Post("/onboarding/workflows/:id/complete", handlers.CompleteOnboarding)
	app.Patch("/onboarding/steps/:id", handlers.UpdateStep)
	app.Get("/health", handlers.HealthCheck)

	return &testEnv{app: app, persistence: p, provisioner: provisioner, root: root}
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body any, headers map[string]string) (int, []byte, map[string]string) {
	t.Helper()

	var reader io.Reader

	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)

		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, raw, map[string]string{
		"X-Idempotent-Replay": resp.Header.Get("X-Idempotent-Replay"),
	}
}

func adminHeaders() map[string]string {
	return map[string]string{
		HeaderRequesterID:   "admin-1",
		HeaderRequesterRole: string(models.RoleSuperAdmin),
	}
}

func provisionBody(slug string) map[string]any {
	return map[string]any{
		"name":        "Green Valley Cooperative",
		"slug":        slug,
		"owner_email": "owner@greenvalley.example",
		"owner_name":  "Ada Okafor",
	}
}

func TestProvisionTenant_Success(t *testing.T) {
	env := newTestEnv(t)

	status, body, _ := doJSON(t, env.app, "POST", "/tenants/provision", provisionBody("green-valley"), adminHeaders())

	require.Equal(t, fiber.StatusCreated, status, string(body))

	var result provision.Result
	require.NoError(t, json.Unmarshal(body, &result))
	require.NotNil(t, result.Tenant)
	assert.Equal(t, "green-valley", result.Tenant.Slug)
	assert.Equal(t, models.TenantStatusTrial, result.Tenant.Status)
	require.NotNil(t, result.Relationship)
	assert.Equal(t, models.RoleTenantAdmin, result.Relationship.Role)
	assert.Equal(t, 1, env.provisioner.ensureCalls)

	stored, err := env.persistence.TenantRepository().GetBySlug(context.Background(), "green-valley")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.NotEmpty(t, result.Message)
}

func TestProvisionTenant_StatusAndLimitOverrides(t *testing.T) {
	env := newTestEnv(t)

	body := provisionBody("green-valley")
	body["status"] = "active"
	body["subscription_plan"] = "growth"
	body["limits"] = map[string]any{"max_farmers": 1200}

	status, raw, _ := doJSON(t, env.app, "POST", "/tenants/provision", body, adminHeaders())
	require.Equal(t, fiber.StatusCreated, status, string(raw))

	var result provision.Result
	require.NoError(t, json.Unmarshal(raw, &result))
	require.NotNil(t, result.Tenant)
	assert.Equal(t, models.TenantStatusActive, result.Tenant.Status)

	// The supplied field overrides the plan default; the rest keep it.
	want := models.PlanLimits(models.PlanGrowth)
	want.MaxFarmers = 1200
	assert.Equal(t, want, result.Tenant.Limits)
}

func TestProvisionTenant_UnknownStatusRejected(t *testing.T) {
	env := newTestEnv(t)

	body := provisionBody("green-valley")
	body["status"] = "paused"

	status, raw, _ := doJSON(t, env.app, "POST", "/tenants/provision", body, adminHeaders())

	assert.Equal(t, fiber.StatusBadRequest, status)

	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(raw, &errResp))
	assert.Equal(t, provision.CodeMissingFields, errResp.Code)
	assert.Zero(t, env.provisioner.ensureCalls)
}

func TestProvisionTenant_MissingRequesterHeaders(t *testing.T) {
	env := newTestEnv(t)

	status, body, _ := doJSON(t, env.app, "POST", "/tenants/provision", provisionBody("green-valley"), nil)

	assert.Equal(t, fiber.StatusBadRequest, status)

	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(body, &errResp))
	assert.Equal(t, provision.CodeMissingFields, errResp.Code)
}

func TestProvisionTenant_ForbiddenRole(t *testing.T) {
	env := newTestEnv(t)

	headers := map[string]string{
		HeaderRequesterID:   "user-1",
		HeaderRequesterRole: string(models.RoleMember),
	}

	status, body, _ := doJSON(t, env.app, "POST", "/tenants/provision", provisionBody("green-valley"), headers)

	assert.Equal(t, fiber.StatusForbidden, status)

	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(body, &errResp))
	assert.Equal(t, provision.CodeForbidden, errResp.Code)
	assert.Zero(t, env.provisioner.ensureCalls)
}

func TestProvisionTenant_MissingFields(t *testing.T) {
	env := newTestEnv(t)

	status, body, _ := doJSON(t, env.app, "POST", "/tenants/provision", map[string]any{
		"name": "Green Valley",
	}, adminHeaders())

	assert.Equal(t, fiber.StatusBadRequest, status)

	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(body, &errResp))
	assert.Equal(t, provision.CodeMissingFields, errResp.Code)
}

func TestProvisionTenant_DuplicateSlug(t *testing.T) {
	env := newTestEnv(t)

	status, body, _ := doJSON(t, env.app, "POST", "/tenants/provision", provisionBody("green-valley"), adminHeaders())
	require.Equal(t, fiber.StatusCreated, status, string(body))

	status, body, _ = doJSON(t, env.app, "POST", "/tenants/provision", provisionBody("green-valley"), adminHeaders())

	assert.Equal(t, fiber.StatusConflict, status)

	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(body, &errResp))
	assert.Equal(t, provision.CodeTenant, errResp.Code)
}

func TestProvisionTenant_IdempotencyReplay(t *testing.T) {
	env := newTestEnv(t)

	headers := adminHeaders()
	headers[HeaderIdempotency] = "op-123"

	status, first, _ := doJSON(t, env.app, "POST", "/tenants/provision", provisionBody("green-valley"), headers)
	require.Equal(t, fiber.StatusCreated, status)

	status, second, respHeaders := doJSON(t, env.app, "POST", "/tenants/provision", provisionBody("green-valley"), headers)

	assert.Equal(t, fiber.StatusCreated, status)
	assert.Equal(t, "true", respHeaders["X-Idempotent-Replay"])
	assert.JSONEq(t, string(first), string(second))
	// The saga ran once; the second response came from the replay store.
	assert.Equal(t, 1, env.provisioner.ensureCalls)

	// The key is kept on the tenant for audit.
	stored, err := env.persistence.TenantRepository().GetBySlug(context.Background(), "green-valley")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "op-123", stored.Metadata["idempotency_key"])
}

func TestStartOnboarding_ForceNew(t *testing.T) {
	env := newTestEnv(t)
	tenant := seedOnboardingTenant(t, env)

	status, body, _ := doJSON(t, env.app, "POST", "/onboarding/start",
		StartOnboardingRequest{TenantID: tenant.ID}, nil)
	require.Equal(t, fiber.StatusCreated, status)

	var first WorkflowResponse
	require.NoError(t, json.Unmarshal(body, &first))

	status, body, _ = doJSON(t, env.app, "POST", "/onboarding/start",
		StartOnboardingRequest{TenantID: tenant.ID, ForceNew: true}, nil)

	require.Equal(t, fiber.StatusCreated, status, string(body))

	var fresh WorkflowResponse
	require.NoError(t, json.Unmarshal(body, &fresh))
	assert.False(t, fresh.Resumed)
	assert.NotEqual(t, first.Workflow.ID, fresh.Workflow.ID)
}

func TestGetTenant(t *testing.T) {
	env := newTestEnv(t)

	tenant := &models.Tenant{Name: "Green Valley", Slug: "green-valley",
		OwnerEmail: "owner@greenvalley.example", OwnerName: "Ada Okafor"}
	require.NoError(t, env.persistence.TenantRepository().Save(context.Background(), tenant))

	status, body, _ := doJSON(t, env.app, "GET", "/tenants/"+tenant.ID, nil, nil)

	require.Equal(t, fiber.StatusOK, status)

	var fetched models.Tenant
	require.NoError(t, json.Unmarshal(body, &fetched))
	assert.Equal(t, tenant.Slug, fetched.Slug)

	status, _, _ = doJSON(t, env.app, "GET", "/tenants/"+uuid.New().String(), nil, nil)
	assert.Equal(t, fiber.StatusNotFound, status)
}

func seedOnboardingTenant(t *testing.T, env *testEnv) *models.Tenant {
	t.Helper()

	tenant := &models.Tenant{Name: "Green Valley", Slug: "green-valley",
		SubscriptionPlan: models.PlanStarter, Type: models.TenantTypeStandard,
		OwnerEmail: "owner@greenvalley.example", OwnerName: "Ada Okafor"}
	require.NoError(t, env.persistence.TenantRepository().Save(context.Background(), tenant))

	repo := file.NewTemplateRepository(env.root)
	templates := []*models.StepTemplate{
		{ID: "tpl-1", Version: 1, StepNumber: 1, StepName: "farm_profile", IsRequired: true},
		{ID: "tpl-2", Version: 1, StepNumber: 2, StepName: "invite_team", IsRequired: false},
	}
	for _, template := range templates {
		require.NoError(t, repo.Save(context.Background(), template))
	}

	return tenant
}

func TestStartOnboarding_CreateThenResume(t *testing.T) {
	env := newTestEnv(t)
	tenant := seedOnboardingTenant(t, env)

	status, body, _ := doJSON(t, env.app, "POST", "/onboarding/start",
		StartOnboardingRequest{TenantID: tenant.ID}, nil)

	require.Equal(t, fiber.StatusCreated, status, string(body))

	var created WorkflowResponse
	require.NoError(t, json.Unmarshal(body, &created))
	assert.False(t, created.Resumed)
	assert.Equal(t, 2, created.Workflow.TotalSteps)
	require.Len(t, created.Steps, 2)

	status, body, _ = doJSON(t, env.app, "POST", "/onboarding/start",
		StartOnboardingRequest{TenantID: tenant.ID}, nil)

	require.Equal(t, fiber.StatusOK, status)

	var resumed WorkflowResponse
	require.NoError(t, json.Unmarshal(body, &resumed))
	assert.True(t, resumed.Resumed)
	assert.Equal(t, created.Workflow.ID, resumed.Workflow.ID)
}

func TestStartOnboarding_UnknownTenant(t *testing.T) {
	env := newTestEnv(t)

	status, _, _ := doJSON(t, env.app, "POST", "/onboarding/start",
		StartOnboardingRequest{TenantID: "no-such-tenant"}, nil)

	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestUpdateStep_MergesDataAndAdvances(t *testing.T) {
	env := newTestEnv(t)
	tenant := seedOnboardingTenant(t, env)

	status, body, _ := doJSON(t, env.app, "POST", "/onboarding/start",
		StartOnboardingRequest{TenantID: tenant.ID}, nil)
	require.Equal(t, fiber.StatusCreated, status)

	var created WorkflowResponse
	require.NoError(t, json.Unmarshal(body, &created))

	completed := string(models.StepStatusCompleted)
	status, body, _ = doJSON(t, env.app, "PATCH", "/onboarding/steps/"+created.Steps[0].ID,
		UpdateStepRequest{
			Status: &completed,
			Data:   map[string]any{"farm_name": "Green Valley"},
		}, nil)

	require.Equal(t, fiber.StatusOK, status, string(body))

	var step models.Step
	require.NoError(t, json.Unmarshal(body, &step))
	assert.Equal(t, models.StepStatusCompleted, step.StepStatus)
	assert.Equal(t, "Green Valley", step.StepData["farm_name"])
	assert.NotEmpty(t, step.StepData["last_updated"])
	require.NotNil(t, step.CompletedAt)

	status, body, _ = doJSON(t, env.app, "GET", "/onboarding/workflows/"+created.Workflow.ID, nil, nil)
	require.Equal(t, fiber.StatusOK, status)

	var fetched WorkflowResponse
	require.NoError(t, json.Unmarshal(body, &fetched))
	assert.Equal(t, 2, fetched.Workflow.CurrentStep)
}

func TestUpdateStep_InvalidStatus(t *testing.T) {
	env := newTestEnv(t)
	tenant := seedOnboardingTenant(t, env)

	status, body, _ := doJSON(t, env.app, "POST", "/onboarding/start",
		StartOnboardingRequest{TenantID: tenant.ID}, nil)
	require.Equal(t, fiber.StatusCreated, status)

	var created WorkflowResponse
	require.NoError(t, json.Unmarshal(body, &created))

	bogus := "paused"
	status, _, _ = doJSON(t, env.app, "PATCH", "/onboarding/steps/"+created.Steps[0].ID,
		UpdateStepRequest{Status: &bogus}, nil)

	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestCompleteOnboarding(t *testing.T) {
	env := newTestEnv(t)
	tenant := seedOnboardingTenant(t, env)

	status, body, _ := doJSON(t, env.app, "POST", "/onboarding/start",
		StartOnboardingRequest{TenantID: tenant.ID}, nil)
	require.Equal(t, fiber.StatusCreated, status)

	var created WorkflowResponse
	require.NoError(t, json.Unmarshal(body, &created))

	// Required step one is still pending.
	status, _, _ = doJSON(t, env.app, "POST", "/onboarding/workflows/"+created.Workflow.ID+"/complete", nil, nil)
	assert.Equal(t, fiber.StatusConflict, status)

	completed := string(models.StepStatusCompleted)
	status, _, _ = doJSON(t, env.app, "PATCH", "/onboarding/steps/"+created.Steps[0].ID,
		UpdateStepRequest{Status: &completed}, nil)
	require.Equal(t, fiber.StatusOK, status)

	// The optional step may stay pending.
	status, body, _ = doJSON(t, env.app, "POST", "/onboarding/workflows/"+created.Workflow.ID+"/complete", nil, nil)
	require.Equal(t, fiber.StatusOK, status, string(body))

	var workflow models.Workflow
	require.NoError(t, json.Unmarshal(body, &workflow))
	assert.Equal(t, models.WorkflowStatusCompleted, workflow.Status)
	require.NotNil(t, workflow.CompletedAt)
}

func TestGetTenantOnboarding(t *testing.T) {
	env := newTestEnv(t)
	tenant := seedOnboardingTenant(t, env)

	status, _, _ := doJSON(t, env.app, "GET", "/tenants/"+tenant.ID+"/onboarding", nil, nil)
	assert.Equal(t, fiber.StatusNotFound, status)

	status, _, _ = doJSON(t, env.app, "POST", "/onboarding/start",
		StartOnboardingRequest{TenantID: tenant.ID}, nil)
	require.Equal(t, fiber.StatusCreated, status)

	status, body, _ := doJSON(t, env.app, "GET", "/tenants/"+tenant.ID+"/onboarding", nil, nil)
	require.Equal(t, fiber.StatusOK, status)

	var fetched WorkflowResponse
	require.NoError(t, json.Unmarshal(body, &fetched))
	assert.Equal(t, tenant.ID, fetched.Workflow.TenantID)
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t)

	status, body, _ := doJSON(t, env.app, "GET", "/health", nil, nil)

	require.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, string(body), "healthy")
}
