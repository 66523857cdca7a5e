package listing

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

var listingColumns = []string{
	"id", "tenant_id", "seller_id", "make_id", "model_id", "make_name", "model_name",
	"variant", "horsepower", "fuel_type_id", "transmission_id", "body_type_id",
	"seats", "doors", "year", "mileage", "wltp_km_per_unit", "co2_emission",
	"is_draft", "missing_fields", "created_at", "updated_at", "deleted_at",
}

var offerColumns = []string{
	"id", "listing_id", "monthly_price", "first_payment", "period_months",
	"mileage_per_year", "total_price", "created_at",
}

// Repository handles listing and lease offer persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new listing repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Get retrieves a listing by ID with its offers
func (r *Repository) Get(ctx context.Context, tenantID, id string) (*models.Listing, error) {
	ctx, span := tracing.StartSpan(ctx, "listing.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(listingColumns...)
	sb.From("listings")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	var listing models.Listing
	if err := r.db.GetContext(ctx, &listing, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("listing %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get listing")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get listing")
	}

	offers, err := r.listOffers(ctx, []string{listing.ID})
	if err != nil {
		return nil, err
	}
	listing.Offers = offers[listing.ID]

	return &listing, nil
}

// ListBySeller retrieves every active listing for a seller, offers
// included. This is the snapshot the matcher runs against.
func (r *Repository) ListBySeller(ctx context.Context, tenantID, sellerID string) ([]models.Listing, error) {
	ctx, span := tracing.StartSpan(ctx, "listing.Repository.ListBySeller")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(listingColumns...)
	sb.From("listings")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("seller_id", sellerID),
		sb.IsNull("deleted_at"),
	)
	sb.OrderBy("make_name", "model_name", "variant")

	query, args := sb.Build()
	var listings []models.Listing
	if err := r.db.SelectContext(ctx, &listings, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"seller_id": sellerID}).Error("Failed to list listings by seller")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list listings")
	}

	if len(listings) == 0 {
		return listings, nil
	}

	ids := make([]string, len(listings))
	for i := range listings {
		ids[i] = listings[i].ID
	}
	offers, err := r.listOffers(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range listings {
		listings[i].Offers = offers[listings[i].ID]
	}

	return listings, nil
}

// Create inserts a listing and its offers in one transaction
func (r *Repository) Create(ctx context.Context, listing *models.Listing) error {
	ctx, span := tracing.StartSpan(ctx, "listing.Repository.Create")
	defer span.End()

	if listing.ID == "" {
		listing.ID = uuid.New().String()
	}
	listing.CreatedAt = time.Now().UTC()
	listing.UpdatedAt = listing.CreatedAt

	ctx, tx, err := database.GetTx(ctx, r.logger, r.db, nil)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("listings")
	sb.Cols(listingColumns...)
	sb.Values(
		listing.ID, listing.TenantID, listing.SellerID, listing.MakeID, listing.ModelID,
		listing.MakeName, listing.ModelName, listing.Variant, listing.Horsepower,
		listing.FuelTypeID, listing.TransmissionID, listing.BodyTypeID,
		listing.Seats, listing.Doors, listing.Year, listing.Mileage,
		listing.WltpKmPerUnit, listing.CO2Emission, listing.IsDraft, listing.MissingFields,
		listing.CreatedAt, listing.UpdatedAt, nil,
	)

	query, args := sb.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"listing_id": listing.ID}).Error("Failed to create listing")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create listing")
	}

	if err := r.insertOffers(ctx, tx, listing.ID, listing.Offers); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit listing")
	}

	return nil
}

// UpdateFields patches the given columns on a listing
func (r *Repository) UpdateFields(ctx context.Context, tenantID, id string, fields map[string]any) error {
	ctx, span := tracing.StartSpan(ctx, "listing.Repository.UpdateFields")
	defer span.End()

	if len(fields) == 0 {
		return nil
	}

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("listings")

	assignments := make([]string, 0, len(fields)+1)
	for column, value := range fields {
		assignments = append(assignments, ub.Assign(column, value))
	}
	assignments = append(assignments, ub.Assign("updated_at", time.Now().UTC()))
	ub.Set(assignments...)
	ub.Where(
		ub.Equal("id", id),
		ub.Equal("tenant_id", tenantID),
		ub.IsNull("deleted_at"),
	)

	query, args := ub.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"listing_id": id}).Error("Failed to update listing")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update listing")
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("listing %s not found", id))
	}

	return nil
}

// ReplaceOffers deletes every offer on a listing and inserts the new
// set. Offers are never patched individually.
func (r *Repository) ReplaceOffers(ctx context.Context, tenantID, listingID string, offers []models.LeaseOffer) error {
	ctx, span := tracing.StartSpan(ctx, "listing.Repository.ReplaceOffers")
	defer span.End()

	ctx, tx, err := database.GetTx(ctx, r.logger, r.db, nil)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	// Offers have no tenant column; scope the delete through the parent listing.
	deleteQuery := `
		DELETE FROM lease_offers
		WHERE listing_id = $1
		AND EXISTS (SELECT 1 FROM listings WHERE listings.id = $1 AND listings.tenant_id = $2)
	`
	if _, err := tx.ExecContext(ctx, deleteQuery, listingID, tenantID); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"listing_id": listingID}).Error("Failed to delete existing offers")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to replace offers")
	}

	if err := r.insertOffers(ctx, tx, listingID, offers); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit offer replacement")
	}

	return nil
}

// SoftDelete marks a listing deleted and removes its offers
func (r *Repository) SoftDelete(ctx context.Context, tenantID, id string) error {
	ctx, span := tracing.StartSpan(ctx, "listing.Repository.SoftDelete")
	defer span.End()

	now := time.Now().UTC()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("listings")
	ub.Set(
		ub.Assign("deleted_at", now),
		ub.Assign("updated_at", now),
	)
	ub.Where(
		ub.Equal("id", id),
		ub.Equal("tenant_id", tenantID),
		ub.IsNull("deleted_at"),
	)

	query, args := ub.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"listing_id": id}).Error("Failed to delete listing")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete listing")
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("listing %s not found", id))
	}

	return nil
}

// FindUnmapped returns the seller's active listings not referenced by
// any update, delete or unchanged change in the session.
func (r *Repository) FindUnmapped(ctx context.Context, tenantID, sessionID, sellerID string) ([]models.Listing, error) {
	ctx, span := tracing.StartSpan(ctx, "listing.Repository.FindUnmapped")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(listingColumns...)
	sb.From("listings")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("seller_id", sellerID),
		sb.IsNull("deleted_at"),
		sb.NotIn("id", sqlbuilder.Buildf(
			"SELECT listing_id FROM listing_changes WHERE session_id = %s AND listing_id IS NOT NULL AND change_type IN (%s, %s, %s)",
			sessionID, models.ChangeTypeUpdate, models.ChangeTypeDelete, models.ChangeTypeUnchanged,
		)),
	)
	sb.OrderBy("make_name", "model_name", "variant")

	query, args := sb.Build()
	var listings []models.Listing
	if err := r.db.SelectContext(ctx, &listings, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"session_id": sessionID}).Error("Failed to find unmapped listings")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find unmapped listings")
	}

	return listings, nil
}

func (r *Repository) insertOffers(ctx context.Context, tx database.Tx, listingID string, offers []models.LeaseOffer) error {
	if len(offers) == 0 {
		return nil
	}

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("lease_offers")
	sb.Cols(offerColumns...)
	for i := range offers {
		offer := &offers[i]
		if offer.ID == "" {
			offer.ID = uuid.New().String()
		}
		offer.ListingID = listingID
		offer.CreatedAt = now
		sb.Values(offer.ID, offer.ListingID, offer.MonthlyPrice, offer.FirstPayment, offer.PeriodMonths, offer.MileagePerYear, offer.TotalPrice, offer.CreatedAt)
	}

	query, args := sb.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"listing_id": listingID}).Error("Failed to insert lease offers")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to insert lease offers")
	}

	return nil
}

func (r *Repository) listOffers(ctx context.Context, listingIDs []string) (map[string][]models.LeaseOffer, error) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(offerColumns...)
	sb.From("lease_offers")
	sb.Where(sb.In("listing_id", sqlbuilder.List(listingIDs)))
	sb.OrderBy("monthly_price")

	query, args := sb.Build()
	var offers []models.LeaseOffer
	if err := r.db.SelectContext(ctx, &offers, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list lease offers")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list lease offers")
	}

	byListing := make(map[string][]models.LeaseOffer, len(listingIDs))
	for _, offer := range offers {
		byListing[offer.ListingID] = append(byListing[offer.ListingID], offer)
	}

	return byListing, nil
}
