package provision

import (
	"context"
	"log/slog"
	"testing"

	"github.com/agridesk/agridesk/pkg/identity"
	"github.com/agridesk/agridesk/pkg/models"
	"github.com/agridesk/agridesk/pkg/persistence"
	"github.com/agridesk/agridesk/pkg/persistence/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvisioner struct {
	ensureErr   error
	deleteErr   error
	ensured     []identity.EnsureRequest
	deleted     []string
	nextID      string
	ensureCalls int
}

func (f *fakeProvisioner) EnsureIdentity(_ context.Context, req identity.EnsureRequest) (*models.Identity, error) {
	f.ensureCalls++

	if f.ensureErr != nil {
		return nil, f.ensureErr
	}

	f.ensured = append(f.ensured, req)

	id := f.nextID
	if id == "" {
		id = "identity-1"
	}

	return &models.Identity{ID: id, Email: req.Email, DisplayName: req.DisplayName}, nil
}

func (f *fakeProvisioner) DeleteIdentity(_ context.Context, identityID string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}

	f.deleted = append(f.deleted, identityID)

	return nil
}

// failingRelationshipPersistence makes the third saga stage fail.
type failingRelationshipPersistence struct {
	persistence.Persistence
}

type failingRelationshipRepo struct {
	persistence.RelationshipRepository
}

func (failingRelationshipRepo) Upsert(context.Context, *models.Relationship) (*models.Relationship, error) {
	return nil, assert.AnError
}

func (p *failingRelationshipPersistence) RelationshipRepository() persistence.RelationshipRepository {
	return failingRelationshipRepo{p.Persistence.RelationshipRepository()}
}

func validRequest() Request {
	return Request{
		RequesterID:   "admin-1",
		RequesterRole: models.RoleSuperAdmin,
		Name:          "Green Valley Cooperative",
		Slug:          "green-valley",
		Type:          models.TenantTypeCooperative,
		OwnerEmail:    "owner@greenvalley.example",
		OwnerName:     "Ada Okafor",
	}
}

func newService(t *testing.T, provisioner identity.Provisioner) (*Service, persistence.Persistence) {
	t.Helper()

	p := file.NewPersistence(t.TempDir())

	return NewService(p, provisioner, nil, nil, slog.Default()), p
}

func TestProvision_Success(t *testing.T) {
	fake := &fakeProvisioner{}
	service, p := newService(t, fake)

	result, err := service.Provision(context.Background(), validRequest())
	require.NoError(t, err)

	assert.NotEmpty(t, result.Tenant.ID)
	assert.Equal(t, models.TenantStatusTrial, result.Tenant.Status)
	assert.Equal(t, models.DefaultPlan, result.Tenant.SubscriptionPlan)
	assert.Equal(t, models.PlanLimits(models.DefaultPlan), result.Tenant.Limits)
	assert.Equal(t, "identity-1", result.Identity.ID)
	assert.Equal(t, models.RoleTenantAdmin, result.Relationship.Role)
	assert.True(t, result.Relationship.Active)
	assert.NotEmpty(t, result.Message)

	// The temporary password reaches the identity service.
	require.Len(t, fake.ensured, 1)
	assert.Len(t, fake.ensured[0].TemporaryPassword, 16)

	stored, err := p.TenantRepository().GetBySlug(context.Background(), "green-valley")
	require.NoError(t, err)
	require.NotNil(t, stored)
}

func TestProvision_StatusOverride(t *testing.T) {
	service, _ := newService(t, &fakeProvisioner{})

	req := validRequest()
	req.Status = models.TenantStatusActive

	result, err := service.Provision(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, models.TenantStatusActive, result.Tenant.Status)
}

func TestProvision_UnknownStatusRejected(t *testing.T) {
	fake := &fakeProvisioner{}
	service, _ := newService(t, fake)

	req := validRequest()
	req.Status = "paused"

	_, err := service.Provision(context.Background(), req)

	assert.ErrorIs(t, err, ErrInvalidStatus)
	assert.True(t, IsValidationError(err))
	assert.Equal(t, CodeMissingFields, ErrorCode(err))
	assert.Zero(t, fake.ensureCalls)
}

func TestProvision_LimitOverridesMergeOverPlanDefaults(t *testing.T) {
	service, _ := newService(t, &fakeProvisioner{})

	req := validRequest()
	req.SubscriptionPlan = models.PlanGrowth
	req.LimitOverrides = models.CapacityLimits{MaxFarmers: 1200, MaxStorageMB: 8192}

	result, err := service.Provision(context.Background(), req)
	require.NoError(t, err)

	want := models.PlanLimits(models.PlanGrowth)
	want.MaxFarmers = 1200
	want.MaxStorageMB = 8192

	assert.Equal(t, want, result.Tenant.Limits)
}

func TestProvision_ForbiddenRole(t *testing.T) {
	fake := &fakeProvisioner{}
	service, p := newService(t, fake)

	req := validRequest()
	req.RequesterRole = models.RoleMember

	_, err := service.Provision(context.Background(), req)

	assert.True(t, IsForbidden(err))
	assert.Equal(t, CodeForbidden, ErrorCode(err))
	assert.Zero(t, fake.ensureCalls)

	tenant, err := p.TenantRepository().GetBySlug(context.Background(), "green-valley")
	require.NoError(t, err)
	assert.Nil(t, tenant)
}

func TestProvision_MissingFields(t *testing.T) {
	service, _ := newService(t, &fakeProvisioner{})

	req := validRequest()
	req.OwnerEmail = ""

	_, err := service.Provision(context.Background(), req)

	assert.True(t, IsValidationError(err))
	assert.Equal(t, CodeMissingFields, ErrorCode(err))
}

func TestProvision_InvalidSlug(t *testing.T) {
	service, _ := newService(t, &fakeProvisioner{})

	req := validRequest()
	req.Slug = "Green Valley!"

	_, err := service.Provision(context.Background(), req)

	assert.ErrorIs(t, err, ErrInvalidSlug)
}

func TestProvision_DuplicateSlug_FailsBeforeIdentityStage(t *testing.T) {
	fake := &fakeProvisioner{}
	service, _ := newService(t, fake)

	_, err := service.Provision(context.Background(), validRequest())
	require.NoError(t, err)

	req := validRequest()
	req.Name = "Another Green Valley"
	req.OwnerEmail = "other@greenvalley.example"

	_, err = service.Provision(context.Background(), req)

	assert.True(t, persistence.IsDuplicateSlug(err))
	assert.Equal(t, CodeTenant, ErrorCode(err))
	// Only the first, successful run reached the identity service.
	assert.Equal(t, 1, fake.ensureCalls)
}

func TestProvision_IdentityFailure_RollsBackTenant(t *testing.T) {
	fake := &fakeProvisioner{ensureErr: assert.AnError}
	service, p := newService(t, fake)

	_, err := service.Provision(context.Background(), validRequest())

	require.Error(t, err)
	assert.Equal(t, CodeIdentity, ErrorCode(err))

	tenant, err := p.TenantRepository().GetBySlug(context.Background(), "green-valley")
	require.NoError(t, err)
	assert.Nil(t, tenant, "tenant row must be compensated away")

	// The slug is free again for a retry.
	fake.ensureErr = nil
	_, err = service.Provision(context.Background(), validRequest())
	assert.NoError(t, err)
}

func TestProvision_RelationshipFailure_RollsBackIdentityAndTenant(t *testing.T) {
	fake := &fakeProvisioner{}
	base := file.NewPersistence(t.TempDir())
	service := NewService(&failingRelationshipPersistence{base}, fake, nil, nil, slog.Default())

	_, err := service.Provision(context.Background(), validRequest())

	require.Error(t, err)
	assert.Equal(t, CodeRelationship, ErrorCode(err))
	assert.Equal(t, []string{"identity-1"}, fake.deleted)

	tenant, err := base.TenantRepository().GetBySlug(context.Background(), "green-valley")
	require.NoError(t, err)
	assert.Nil(t, tenant)
}

func TestProvision_CompensationFailureIsReported(t *testing.T) {
	fake := &fakeProvisioner{deleteErr: assert.AnError}
	base := file.NewPersistence(t.TempDir())
	service := NewService(&failingRelationshipPersistence{base}, fake, nil, nil, slog.Default())

	_, err := service.Provision(context.Background(), validRequest())

	require.Error(t, err)

	var sagaErr *Error
	require.ErrorAs(t, err, &sagaErr)
	assert.NotEmpty(t, sagaErr.CompensationFailures)
	assert.Contains(t, sagaErr.Error(), "compensation incomplete")
}

func TestProvision_CancelledRequestStillCompensates(t *testing.T) {
	fake := &fakeProvisioner{ensureErr: context.Canceled}
	service, p := newService(t, fake)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := service.Provision(ctx, validRequest())
	require.Error(t, err)

	// Cleanup ran on a detached context despite the cancelled request.
	tenant, err := p.TenantRepository().GetBySlug(context.Background(), "green-valley")
	require.NoError(t, err)
	assert.Nil(t, tenant)
}
