package repository

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/imyashkale/mcphost/internal/database"
	"github.com/imyashkale/mcphost/internal/models"
)

// AdminTenantID is the id of the seeded administrator tenant
const AdminTenantID = "admin"

// Re-export errors from database package so callers need not import it
var (
	ErrNotFound      = database.ErrNotFound
	ErrAlreadyExists = database.ErrAlreadyExists
)

// TenantRepository defines the tenant directory operations
type TenantRepository interface {
	Create(ctx context.Context, tenant *models.Tenant) error
	Get(ctx context.Context, id string) (*models.Tenant, error)
	GetByEmail(ctx context.Context, email string) (*models.Tenant, error)
	List(ctx context.Context) ([]*models.Tenant, error)
	Delete(ctx context.Context, id string) error
}

// AdminTenant builds the administrator tenant record
func AdminTenant(email string) *models.Tenant {
	return &models.Tenant{
		Id:        AdminTenantID,
		Name:      "Administrator",
		Email:     email,
		IsAdmin:   true,
		CreatedAt: time.Now(),
	}
}

// SeedAdmin makes sure the administrator tenant exists
func SeedAdmin(ctx context.Context, repo TenantRepository, email string) error {
	err := repo.Create(ctx, AdminTenant(email))
	if err != nil && !errors.Is(err, ErrAlreadyExists) {
		return err
	}
	return nil
}

// memoryTenantRepository keeps tenants in process memory
type memoryTenantRepository struct {
	mu      sync.RWMutex
	tenants map[string]*models.Tenant
}

// NewMemoryTenantRepository creates an in-memory repository
func NewMemoryTenantRepository() TenantRepository {
	return &memoryTenantRepository{tenants: make(map[string]*models.Tenant)}
}

func (r *memoryTenantRepository) Create(ctx context.Context, tenant *models.Tenant) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tenants[tenant.Id]; ok {
		return ErrAlreadyExists
	}
	for _, t := range r.tenants {
		if strings.EqualFold(t.Email, tenant.Email) {
			return ErrAlreadyExists
		}
	}
	copied := *tenant
	r.tenants[tenant.Id] = &copied
	return nil
}

func (r *memoryTenantRepository) Get(ctx context.Context, id string) (*models.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tenants[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *t
	return &copied, nil
}

func (r *memoryTenantRepository) GetByEmail(ctx context.Context, email string) (*models.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, t := range r.tenants {
		if strings.EqualFold(t.Email, email) {
			copied := *t
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

func (r *memoryTenantRepository) List(ctx context.Context) ([]*models.Tenant, error) {
	r.mu.RLock()
	out := make([]*models.Tenant, 0, len(r.tenants))
	for _, t := range r.tenants {
		copied := *t
		out = append(out, &copied)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *memoryTenantRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tenants[id]; !ok {
		return ErrNotFound
	}
	delete(r.tenants, id)
	return nil
}

// dynamoTenantRepository implements TenantRepository using DynamoDB
type dynamoTenantRepository struct {
	db *database.TenantTable
}

// NewTenantRepository creates a new DynamoDB-backed tenant repository
func NewTenantRepository(db *database.TenantTable) TenantRepository {
	return &dynamoTenantRepository{db: db}
}

func (r *dynamoTenantRepository) Create(ctx context.Context, tenant *models.Tenant) error {
	if _, err := r.db.GetTenantByEmail(ctx, tenant.Email); err == nil {
		return ErrAlreadyExists
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	return r.db.CreateTenant(ctx, tenant)
}

func (r *dynamoTenantRepository) Get(ctx context.Context, id string) (*models.Tenant, error) {
	return r.db.GetTenant(ctx, id)
}

func (r *dynamoTenantRepository) GetByEmail(ctx context.Context, email string) (*models.Tenant, error) {
	return r.db.GetTenantByEmail(ctx, email)
}

func (r *dynamoTenantRepository) List(ctx context.Context) ([]*models.Tenant, error) {
	tenants, err := r.db.ListTenants(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(tenants, func(i, j int) bool { return tenants[i].CreatedAt.Before(tenants[j].CreatedAt) })
	return tenants, nil
}

func (r *dynamoTenantRepository) Delete(ctx context.Context, id string) error {
	return r.db.DeleteTenant(ctx, id)
}
