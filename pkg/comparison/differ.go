// Package comparison builds comparison sessions: it matches extracted
// candidates against a seller's listings and classifies the difference
// into reviewable changes.
package comparison

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Ramsey-B/fern/pkg/models"
)

// Differ computes the field-level diff between a matched candidate and
// its listing.
type Differ struct{}

// NewDiffer creates a new Differ
func NewDiffer() *Differ {
	return &Differ{}
}

// Diff compares a candidate against its matched listing. Numeric fields
// compare by exact value, optional fields by present-vs-absent, strings
// trimmed but case-sensitive. Offers compare as a whole set; any
// difference produces a single offers_replacement entry. An empty
// result means the candidate is unchanged.
func (d *Differ) Diff(candidate *models.ExtractedVehicle, existing *models.Listing, ref *models.ReferenceData) models.FieldChanges {
	fc := models.FieldChanges{}

	diffString(fc, "variant", existing.Variant, candidate.Variant)
	diffIntPtr(fc, "horsepower", existing.Horsepower, candidate.Horsepower)
	diffIntPtr(fc, "seats", existing.Seats, candidate.Seats)
	diffIntPtr(fc, "doors", existing.Doors, candidate.Doors)
	diffIntPtr(fc, "year", existing.Year, candidate.Year)
	diffIntPtr(fc, "mileage", existing.Mileage, candidate.Mileage)
	diffIntPtr(fc, "co2_emission", existing.CO2Emission, candidate.CO2Emission)
	diffFloatPtr(fc, "wltp_km_per_unit", existing.WltpKmPerUnit, candidate.WltpKmPerUnit)

	diffLookup(fc, "fuel_type", lookupName(existing.FuelTypeID, ref.FuelTypeName), resolvedID(candidate.FuelType, func(name string) (string, bool) {
		ft, ok := ref.ResolveFuelType(name)
		return ft.ID, ok
	}), existing.FuelTypeID, candidate.FuelType)
	diffLookup(fc, "transmission", lookupName(existing.TransmissionID, ref.TransmissionName), resolvedID(candidate.Transmission, func(name string) (string, bool) {
		tr, ok := ref.ResolveTransmission(name)
		return tr.ID, ok
	}), existing.TransmissionID, candidate.Transmission)
	diffLookup(fc, "body_type", lookupName(existing.BodyTypeID, ref.BodyTypeName), resolvedID(candidate.BodyType, func(name string) (string, bool) {
		bt, ok := ref.ResolveBodyType(name)
		return bt.ID, ok
	}), existing.BodyTypeID, candidate.BodyType)

	if !offersEqual(existing.Offers, candidate.Offers) {
		fc[models.OffersReplacementField] = models.FieldChange{
			Old: existing.Offers,
			New: candidate.Offers,
		}
	}

	if len(fc) == 0 {
		return nil
	}
	return fc
}

func diffString(fc models.FieldChanges, field, oldVal, newVal string) {
	oldVal = strings.TrimSpace(oldVal)
	newVal = strings.TrimSpace(newVal)
	if oldVal != newVal {
		fc[field] = models.FieldChange{Old: oldVal, New: newVal}
	}
}

func diffIntPtr(fc models.FieldChanges, field string, oldVal, newVal *int) {
	if oldVal == nil && newVal == nil {
		return
	}
	if oldVal != nil && newVal != nil && *oldVal == *newVal {
		return
	}
	fc[field] = models.FieldChange{Old: intPtrValue(oldVal), New: intPtrValue(newVal)}
}

func diffFloatPtr(fc models.FieldChanges, field string, oldVal, newVal *float64) {
	if oldVal == nil && newVal == nil {
		return
	}
	if oldVal != nil && newVal != nil && *oldVal == *newVal {
		return
	}
	var o, n any
	if oldVal != nil {
		o = *oldVal
	}
	if newVal != nil {
		n = *newVal
	}
	fc[field] = models.FieldChange{Old: o, New: n}
}

// diffLookup compares taxonomy-backed fields by resolved id but records
// display names in the diff. An unresolvable or empty candidate value
// is treated as absent.
func diffLookup(fc models.FieldChanges, field string, oldName string, newID *string, oldID *string, newName string) {
	switch {
	case oldID == nil && newID == nil:
		return
	case oldID != nil && newID != nil && *oldID == *newID:
		return
	}
	var o, n any
	if oldID != nil {
		o = oldName
	}
	if newID != nil {
		n = strings.TrimSpace(newName)
	}
	fc[field] = models.FieldChange{Old: o, New: n}
}

func lookupName(id *string, resolve func(string) string) string {
	if id == nil {
		return ""
	}
	return resolve(*id)
}

func resolvedID(name string, resolve func(string) (string, bool)) *string {
	if strings.TrimSpace(name) == "" {
		return nil
	}
	id, ok := resolve(name)
	if !ok {
		return nil
	}
	return &id
}

func intPtrValue(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

// offersEqual reports whether the stored and extracted offer sets are
// identical, ignoring order. Offers are never diffed individually.
func offersEqual(existing []models.LeaseOffer, extracted []models.ExtractedOffer) bool {
	if len(existing) != len(extracted) {
		return false
	}

	a := make([]string, len(existing))
	for i, o := range existing {
		a[i] = offerKey(o.MonthlyPrice, o.FirstPayment, o.PeriodMonths, o.MileagePerYear, o.TotalPrice)
	}
	b := make([]string, len(extracted))
	for i, o := range extracted {
		b[i] = offerKey(o.MonthlyPrice, o.FirstPayment, o.PeriodMonths, o.MileagePerYear, o.TotalPrice)
	}

	sort.Strings(a)
	sort.Strings(b)
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func offerKey(monthly int, first, period, mileage, total *int) string {
	return fmt.Sprintf("%d|%s|%s|%s|%s", monthly, intKey(first), intKey(period), intKey(mileage), intKey(total))
}

func intKey(v *int) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *v)
}
