package taxonomy

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Repository handles make/model/body/fuel/transmission reference data
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new taxonomy repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// LoadReferenceData loads the full taxonomy snapshot for one tenant.
// The tables are small (tens of makes, hundreds of models), so one
// snapshot per batch is cheaper than per-name lookups.
func (r *Repository) LoadReferenceData(ctx context.Context, tenantID string) (*models.ReferenceData, error) {
	ctx, span := tracing.StartSpan(ctx, "taxonomy.Repository.LoadReferenceData")
	defer span.End()

	ref := &models.ReferenceData{
		Makes:         make(map[string]models.Make),
		Models:        make(map[string]models.CarModel),
		BodyTypes:     make(map[string]models.BodyType),
		FuelTypes:     make(map[string]models.FuelType),
		Transmissions: make(map[string]models.Transmission),
	}

	var makes []models.Make
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "tenant_id", "name", "created_at", "updated_at")
	sb.From("makes")
	sb.Where(sb.Equal("tenant_id", tenantID))
	query, args := sb.Build()
	if err := r.db.SelectContext(ctx, &makes, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to load makes")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to load reference data")
	}
	for _, m := range makes {
		ref.Makes[strings.ToLower(m.Name)] = m
	}

	var carModels []models.CarModel
	sb = sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "tenant_id", "make_id", "name", "created_at", "updated_at")
	sb.From("car_models")
	sb.Where(sb.Equal("tenant_id", tenantID))
	query, args = sb.Build()
	if err := r.db.SelectContext(ctx, &carModels, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to load car models")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to load reference data")
	}
	for _, m := range carModels {
		ref.Models[m.MakeID+"|"+strings.ToLower(m.Name)] = m
	}

	var bodyTypes []models.BodyType
	if err := r.db.SelectContext(ctx, &bodyTypes, "SELECT id, name FROM body_types"); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to load body types")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to load reference data")
	}
	for _, b := range bodyTypes {
		ref.BodyTypes[strings.ToLower(b.Name)] = b
	}

	var fuelTypes []models.FuelType
	if err := r.db.SelectContext(ctx, &fuelTypes, "SELECT id, name FROM fuel_types"); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to load fuel types")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to load reference data")
	}
	for _, f := range fuelTypes {
		ref.FuelTypes[strings.ToLower(f.Name)] = f
	}

	var transmissions []models.Transmission
	if err := r.db.SelectContext(ctx, &transmissions, "SELECT id, name FROM transmissions"); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to load transmissions")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to load reference data")
	}
	for _, t := range transmissions {
		ref.Transmissions[strings.ToLower(t.Name)] = t
	}

	return ref, nil
}

// ListMakes retrieves every make for a tenant
func (r *Repository) ListMakes(ctx context.Context, tenantID string) ([]models.Make, error) {
	ctx, span := tracing.StartSpan(ctx, "taxonomy.Repository.ListMakes")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "tenant_id", "name", "created_at", "updated_at")
	sb.From("makes")
	sb.Where(sb.Equal("tenant_id", tenantID))
	sb.OrderBy("name")

	query, args := sb.Build()
	var makes []models.Make
	if err := r.db.SelectContext(ctx, &makes, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list makes")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list makes")
	}

	return makes, nil
}

// GetMake retrieves a make by ID
func (r *Repository) GetMake(ctx context.Context, tenantID, id string) (*models.Make, error) {
	ctx, span := tracing.StartSpan(ctx, "taxonomy.Repository.GetMake")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "tenant_id", "name", "created_at", "updated_at")
	sb.From("makes")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	var mk models.Make
	if err := r.db.GetContext(ctx, &mk, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("make %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get make")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get make")
	}

	return &mk, nil
}

// ListModels retrieves the models under a make
func (r *Repository) ListModels(ctx context.Context, tenantID, makeID string) ([]models.CarModel, error) {
	ctx, span := tracing.StartSpan(ctx, "taxonomy.Repository.ListModels")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "tenant_id", "make_id", "name", "created_at", "updated_at")
	sb.From("car_models")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("make_id", makeID),
	)
	sb.OrderBy("name")

	query, args := sb.Build()
	var carModels []models.CarModel
	if err := r.db.SelectContext(ctx, &carModels, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list car models")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list car models")
	}

	return carModels, nil
}

// CreateModel registers a model under a make. Duplicate names (case
// insensitive) under the same make are rejected.
func (r *Repository) CreateModel(ctx context.Context, model *models.CarModel) error {
	ctx, span := tracing.StartSpan(ctx, "taxonomy.Repository.CreateModel")
	defer span.End()

	if model.ID == "" {
		model.ID = uuid.New().String()
	}
	model.Name = strings.TrimSpace(model.Name)
	model.CreatedAt = time.Now().UTC()
	model.UpdatedAt = model.CreatedAt

	ib := database.NewInsertBuilder()
	ib.InsertInto("car_models")
	ib.Cols("id", "tenant_id", "make_id", "name", "created_at", "updated_at")
	ib.Values(model.ID, model.TenantID, model.MakeID, model.Name, model.CreatedAt, model.UpdatedAt)
	ib.OnConflictDoNothing("tenant_id", "make_id", "lower(name)")

	query, args := ib.Build()

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"make_id": model.MakeID, "name": model.Name}).Error("Failed to create car model")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create car model")
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return httperror.NewHTTPError(http.StatusConflict, fmt.Sprintf("model %q already exists under this make", model.Name))
	}

	return nil
}
