package integration

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/models"
)

// memStore is an in-memory stand-in for the Postgres repositories, so
// the full session lifecycle can run without a database. Guard
// semantics (discard exclusions, reclassify preconditions, applied_at
// write-once) mirror the SQL repositories. The sessionStore,
// changeStore, and listingStore adapters expose it through the store
// interfaces of the builder, the review service, and the apply engine.
type memStore struct {
	mu sync.Mutex

	listings map[string]*models.Listing
	sessions map[string]*models.ComparisonSession
	changes  map[string]*models.Change

	makes         []models.Make
	carModels     []models.CarModel
	bodyTypes     []models.BodyType
	fuelTypes     []models.FuelType
	transmissions []models.Transmission
}

func newMemStore() *memStore {
	return &memStore{
		listings: make(map[string]*models.Listing),
		sessions: make(map[string]*models.ComparisonSession),
		changes:  make(map[string]*models.Change),
	}
}

func (s *memStore) LoadReferenceData(_ context.Context, tenantID string) (*models.ReferenceData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ref := &models.ReferenceData{
		Makes:         make(map[string]models.Make),
		Models:        make(map[string]models.CarModel),
		BodyTypes:     make(map[string]models.BodyType),
		FuelTypes:     make(map[string]models.FuelType),
		Transmissions: make(map[string]models.Transmission),
	}
	for _, m := range s.makes {
		if m.TenantID == tenantID {
			ref.Makes[strings.ToLower(m.Name)] = m
		}
	}
	for _, m := range s.carModels {
		if m.TenantID == tenantID {
			ref.Models[m.MakeID+"|"+strings.ToLower(m.Name)] = m
		}
	}
	for _, b := range s.bodyTypes {
		ref.BodyTypes[strings.ToLower(b.Name)] = b
	}
	for _, f := range s.fuelTypes {
		ref.FuelTypes[strings.ToLower(f.Name)] = f
	}
	for _, t := range s.transmissions {
		ref.Transmissions[strings.ToLower(t.Name)] = t
	}
	return ref, nil
}

func (s *memStore) GetMake(_ context.Context, tenantID, id string) (*models.Make, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.makes {
		if m.TenantID == tenantID && m.ID == id {
			mk := m
			return &mk, nil
		}
	}
	return nil, httperror.NewHTTPError(http.StatusNotFound, "make not found")
}

func (s *memStore) CreateModel(_ context.Context, model *models.CarModel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if model.ID == "" {
		model.ID = uuid.NewString()
	}
	for _, existing := range s.carModels {
		if existing.TenantID == model.TenantID && existing.MakeID == model.MakeID &&
			strings.EqualFold(existing.Name, model.Name) {
			return httperror.NewHTTPError(http.StatusConflict, "model already exists")
		}
	}
	s.carModels = append(s.carModels, *model)
	return nil
}

func (s *memStore) changesBySession(sessionID string) []models.Change {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []models.Change
	for _, change := range s.changes {
		if change.SessionID == sessionID {
			result = append(result, *change)
		}
	}
	return result
}

func (s *memStore) listing(id string) *models.Listing {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.listings[id]; ok {
		cp := *l
		return &cp
	}
	return nil
}

func (s *memStore) addListing(l models.Listing) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := l
	s.listings[l.ID] = &cp
}

// sessionStore adapts memStore to the builder's SessionStore and the
// apply engine's SessionSource.
type sessionStore struct{ s *memStore }

func (a sessionStore) Create(_ context.Context, session *models.ComparisonSession) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	cp := *session
	a.s.sessions[session.ID] = &cp
	return nil
}

func (a sessionStore) MarkCompleted(_ context.Context, session *models.ComparisonSession) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	cp := *session
	a.s.sessions[session.ID] = &cp
	return nil
}

func (a sessionStore) MarkFailed(_ context.Context, tenantID, id, errMsg string) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	session, ok := a.s.sessions[id]
	if !ok || session.TenantID != tenantID {
		return httperror.NewHTTPError(http.StatusNotFound, "session not found")
	}
	session.Status = models.SessionStatusFailed
	session.Error = &errMsg
	return nil
}

func (a sessionStore) Get(_ context.Context, tenantID, id string) (*models.ComparisonSession, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	session, ok := a.s.sessions[id]
	if !ok || session.TenantID != tenantID {
		return nil, httperror.NewHTTPError(http.StatusNotFound, "session not found")
	}
	cp := *session
	return &cp, nil
}

func (a sessionStore) SetAppliedAt(_ context.Context, tenantID, id string) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	session, ok := a.s.sessions[id]
	if !ok || session.TenantID != tenantID {
		return httperror.NewHTTPError(http.StatusNotFound, "session not found")
	}
	if session.AppliedAt == nil {
		now := time.Now().UTC()
		session.AppliedAt = &now
	}
	return nil
}

// changeStore adapts memStore to the builder's ChangeWriter, the review
// service's ChangeStore, and the apply engine's ChangeSource.
type changeStore struct{ s *memStore }

func (a changeStore) CreateBatch(_ context.Context, changes []models.Change) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	now := time.Now().UTC()
	for i := range changes {
		c := changes[i]
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		if c.Status == "" {
			c.Status = models.ChangeStatusPending
		}
		c.CreatedAt = now
		c.UpdatedAt = now
		a.s.changes[c.ID] = &c
	}
	return nil
}

func (a changeStore) Get(_ context.Context, tenantID, id string) (*models.Change, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	change, ok := a.s.changes[id]
	if !ok || change.TenantID != tenantID {
		return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("change %s not found", id))
	}
	cp := *change
	return &cp, nil
}

func (a changeStore) GetByIDs(_ context.Context, tenantID string, ids []string) ([]models.Change, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	var result []models.Change
	for _, id := range ids {
		if change, ok := a.s.changes[id]; ok && change.TenantID == tenantID {
			result = append(result, *change)
		}
	}
	return result, nil
}

func (a changeStore) UpdateStatus(_ context.Context, change *models.Change) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	stored, ok := a.s.changes[change.ID]
	if !ok || stored.TenantID != change.TenantID {
		return httperror.NewHTTPError(http.StatusNotFound, "change not found")
	}
	stored.Status = change.Status
	stored.ReviewNotes = change.ReviewNotes
	stored.ReviewedAt = change.ReviewedAt
	stored.UpdatedAt = time.Now().UTC()
	return nil
}

func (a changeStore) ListMissingReferences(_ context.Context, tenantID, sessionID string) ([]models.Change, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	var result []models.Change
	for _, change := range a.s.changes {
		if change.TenantID == tenantID && change.SessionID == sessionID &&
			change.ChangeType == models.ChangeTypeMissingReference && change.Status == models.ChangeStatusPending {
			result = append(result, *change)
		}
	}
	return result, nil
}

func (a changeStore) ReclassifyToCreate(_ context.Context, tenantID, id, summary string) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	change, ok := a.s.changes[id]
	if !ok || change.TenantID != tenantID {
		return httperror.NewHTTPError(http.StatusNotFound, "change not found")
	}
	if change.ChangeType != models.ChangeTypeMissingReference || change.Status != models.ChangeStatusPending {
		return httperror.NewHTTPError(http.StatusConflict, "change is not a pending missing reference")
	}
	change.ChangeType = models.ChangeTypeCreate
	change.ChangeSummary = summary
	change.UpdatedAt = time.Now().UTC()
	return nil
}

func (a changeStore) DiscardPending(_ context.Context, tenantID, sessionID string, excludeIDs []string) (int, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	excluded := make(map[string]bool, len(excludeIDs))
	for _, id := range excludeIDs {
		excluded[id] = true
	}
	now := time.Now().UTC()
	count := 0
	for _, change := range a.s.changes {
		if change.TenantID != tenantID || change.SessionID != sessionID {
			continue
		}
		if change.Status != models.ChangeStatusPending || change.ChangeType == models.ChangeTypeMissingReference {
			continue
		}
		if excluded[change.ID] {
			continue
		}
		change.Status = models.ChangeStatusDiscarded
		change.ReviewedAt = &now
		count++
	}
	return count, nil
}

// listingStore adapts memStore to the builder's ListingSource and the
// apply engine's ListingWriter.
type listingStore struct{ s *memStore }

func (a listingStore) ListBySeller(_ context.Context, tenantID, sellerID string) ([]models.Listing, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	var result []models.Listing
	for _, l := range a.s.listings {
		if l.TenantID == tenantID && l.SellerID == sellerID && l.DeletedAt == nil {
			result = append(result, *l)
		}
	}
	return result, nil
}

func (a listingStore) Create(_ context.Context, listing *models.Listing) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	if listing.ID == "" {
		listing.ID = uuid.NewString()
	}
	cp := *listing
	a.s.listings[listing.ID] = &cp
	return nil
}

func (a listingStore) UpdateFields(_ context.Context, tenantID, id string, fields map[string]any) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	l, ok := a.s.listings[id]
	if !ok || l.TenantID != tenantID {
		return httperror.NewHTTPError(http.StatusNotFound, "listing not found")
	}
	for column, value := range fields {
		switch column {
		case "variant":
			l.Variant = value.(string)
		case "horsepower":
			l.Horsepower = value.(*int)
		case "seats":
			l.Seats = value.(*int)
		case "doors":
			l.Doors = value.(*int)
		case "year":
			l.Year = value.(*int)
		case "mileage":
			l.Mileage = value.(*int)
		case "co2_emission":
			l.CO2Emission = value.(*int)
		case "wltp_km_per_unit":
			l.WltpKmPerUnit = value.(*float64)
		case "fuel_type_id":
			l.FuelTypeID = value.(*string)
		case "transmission_id":
			l.TransmissionID = value.(*string)
		case "body_type_id":
			l.BodyTypeID = value.(*string)
		default:
			return fmt.Errorf("unexpected column %q", column)
		}
	}
	l.UpdatedAt = time.Now().UTC()
	return nil
}

func (a listingStore) ReplaceOffers(_ context.Context, tenantID, listingID string, offers []models.LeaseOffer) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	l, ok := a.s.listings[listingID]
	if !ok || l.TenantID != tenantID {
		return httperror.NewHTTPError(http.StatusNotFound, "listing not found")
	}
	l.Offers = append([]models.LeaseOffer(nil), offers...)
	return nil
}

func (a listingStore) SoftDelete(_ context.Context, tenantID, id string) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	l, ok := a.s.listings[id]
	if !ok || l.TenantID != tenantID {
		return httperror.NewHTTPError(http.StatusNotFound, "listing not found")
	}
	now := time.Now().UTC()
	l.DeletedAt = &now
	return nil
}
