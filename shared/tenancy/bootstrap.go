package tenancy

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/pavitra93/go-multi-tenant-blog/shared/models"
	"github.com/pavitra93/go-multi-tenant-blog/shared/utils"
)

// Directory is the public tenant table
type Directory interface {
	// FindByName returns gorm.ErrRecordNotFound when no tenant has that name
	FindByName(ctx context.Context, name string) (*models.Tenant, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
	Create(ctx context.Context, tenant *models.Tenant) error
	MarkReady(ctx context.Context, id uuid.UUID) error
}

// Bootstrapper logs a tenant in, creating and provisioning it on first use
type Bootstrapper struct {
	directory   Directory
	provisioner Provisioner
}

// NewBootstrapper creates a bootstrapper
func NewBootstrapper(directory Directory, provisioner Provisioner) *Bootstrapper {
	return &Bootstrapper{directory: directory, provisioner: provisioner}
}

// ValidateCredentials rejects a missing tenant name or password.
// Length bounds belong to the HTTP tenantLogin request.
func ValidateCredentials(name, password string) error {
	if strings.TrimSpace(name) == "" {
		return utils.BadRequest("Tenant name is required")
	}
	if password == "" {
		return utils.BadRequest("Tenant password is required")
	}
	return nil
}

// Load returns the API key of the named tenant.
//
// An existing tenant must present the right password. A new tenant gets a
// directory row, then its schema, then its tables. The sequence is not
// atomic; the row is kept on failure and the next successful login resumes
// provisioning from where it stopped.
func (b *Bootstrapper) Load(ctx context.Context, name, password string) (uuid.UUID, error) {
	if err := ValidateCredentials(name, password); err != nil {
		return uuid.Nil, err
	}

	tenant, err := b.directory.FindByName(ctx, name)
	switch {
	case err == nil:
		return b.login(ctx, tenant, password)
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return uuid.Nil, utils.Internal("Failed to load tenant", err)
	}

	hash, err := utils.HashPassword(password)
	if err != nil {
		return uuid.Nil, utils.Internal("Failed to hash tenant password", err)
	}

	tenant = &models.Tenant{
		ID:       uuid.New(),
		Name:     name,
		Password: hash,
		Stage:    models.TenantStageRowCreated,
	}
	if err := b.directory.Create(ctx, tenant); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// lost a race with a concurrent bootstrap of the same name
			existing, findErr := b.directory.FindByName(ctx, name)
			if findErr != nil {
				return uuid.Nil, utils.Internal("Failed to load tenant", findErr)
			}
			return b.login(ctx, existing, password)
		}
		return uuid.Nil, utils.Internal("Failed to create tenant", err)
	}

	logrus.WithFields(logrus.Fields{
		"tenant_id": tenant.ID,
		"name":      name,
	}).Info("Tenant row created")

	if err := b.provision(ctx, tenant); err != nil {
		return uuid.Nil, err
	}
	return tenant.ID, nil
}

func (b *Bootstrapper) login(ctx context.Context, tenant *models.Tenant, password string) (uuid.UUID, error) {
	ok, err := utils.VerifyPassword(password, tenant.Password)
	if err != nil {
		return uuid.Nil, utils.Internal("Failed to verify tenant password", err)
	}
	if !ok {
		return uuid.Nil, ErrInvalidTenantCredentials
	}

	if !tenant.IsReady() {
		logrus.WithField("tenant_id", tenant.ID).Warn("Resuming incomplete tenant provisioning")
		if err := b.provision(ctx, tenant); err != nil {
			return uuid.Nil, err
		}
	}
	return tenant.ID, nil
}

// provision runs every step after the row exists. Each step is idempotent.
func (b *Bootstrapper) provision(ctx context.Context, tenant *models.Tenant) error {
	schema := SchemaFor(tenant.ID)
	log := logrus.WithFields(logrus.Fields{"tenant_id": tenant.ID, "schema": schema})

	fail := func(stage Stage, err error) error {
		log.WithError(err).WithField("stage", stage.String()).Error("Tenant provisioning failed")
		return &ProvisionError{Schema: schema, Stage: stage, Err: err}
	}

	if err := b.provisioner.CreateSchema(ctx, schema); err != nil {
		return fail(StageRowCreated, err)
	}
	if err := b.provisioner.SyncTables(ctx, schema); err != nil {
		return fail(StageSchemaCreated, err)
	}
	if err := b.directory.MarkReady(ctx, tenant.ID); err != nil {
		return fail(StageTablesSynced, err)
	}
	tenant.Stage = models.TenantStageReady

	log.Info("Tenant provisioned")
	return nil
}

// GormDirectory stores tenants in public.tenants
type GormDirectory struct {
	db *gorm.DB
}

// NewGormDirectory creates a directory over db
func NewGormDirectory(db *gorm.DB) *GormDirectory {
	return &GormDirectory{db: db}
}

// EnsureTable creates public.tenants if it is missing
func (d *GormDirectory) EnsureTable(ctx context.Context) error {
	return d.db.WithContext(ctx).Exec(`CREATE TABLE IF NOT EXISTS public.tenants (
	id uuid PRIMARY KEY,
	name varchar(255) NOT NULL UNIQUE,
	password text NOT NULL,
	stage varchar(32) NOT NULL DEFAULT 'ROW_CREATED',
	created_at timestamptz NOT NULL DEFAULT now(),
	updated_at timestamptz NOT NULL DEFAULT now()
)`).Error
}

// FindByName implements Directory
func (d *GormDirectory) FindByName(ctx context.Context, name string) (*models.Tenant, error) {
	var tenant models.Tenant
	if err := d.db.WithContext(ctx).Where("name = ?", name).First(&tenant).Error; err != nil {
		return nil, err
	}
	return &tenant, nil
}

// FindByID implements Directory
func (d *GormDirectory) FindByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	var tenant models.Tenant
	if err := d.db.WithContext(ctx).Where("id = ?", id).First(&tenant).Error; err != nil {
		return nil, err
	}
	return &tenant, nil
}

// Create implements Directory
func (d *GormDirectory) Create(ctx context.Context, tenant *models.Tenant) error {
	return d.db.WithContext(ctx).Create(tenant).Error
}

// MarkReady implements Directory
func (d *GormDirectory) MarkReady(ctx context.Context, id uuid.UUID) error {
	return d.db.WithContext(ctx).Model(&models.Tenant{}).
		Where("id = ?", id).
		Update("stage", models.TenantStageReady).Error
}
