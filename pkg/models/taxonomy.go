package models

import (
	"strings"
	"time"
)

// Make is a vehicle manufacturer (e.g. Toyota)
type Make struct {
	ID        string    `json:"id" db:"id"`
	TenantID  string    `json:"tenant_id" db:"tenant_id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// CarModel is a model under a make (e.g. Yaris under Toyota)
type CarModel struct {
	ID        string    `json:"id" db:"id"`
	TenantID  string    `json:"tenant_id" db:"tenant_id"`
	MakeID    string    `json:"make_id" db:"make_id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// BodyType is a body style lookup row (e.g. SUV, Stationcar)
type BodyType struct {
	ID   string `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}

// FuelType is a powertrain lookup row (e.g. Benzin, Hybrid, El)
type FuelType struct {
	ID   string `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}

// Transmission is a gearbox lookup row (e.g. Automatic, Manual)
type Transmission struct {
	ID   string `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}

// CreateModelRequest is the request to register a model under a make.
// Used by the missing-reference resolution flow.
type CreateModelRequest struct {
	MakeID string `json:"make_id" validate:"required"`
	Name   string `json:"name" validate:"required"`
}

// ReferenceData is an in-memory snapshot of the taxonomy used while
// classifying one extraction batch. Lookups are case-insensitive.
type ReferenceData struct {
	Makes         map[string]Make         // keyed by lowercased name
	Models        map[string]CarModel     // keyed by makeID + "|" + lowercased name
	BodyTypes     map[string]BodyType     // keyed by lowercased name
	FuelTypes     map[string]FuelType     // keyed by lowercased name
	Transmissions map[string]Transmission // keyed by lowercased name
}

func refKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// ResolveMake looks up a make by name
func (r *ReferenceData) ResolveMake(name string) (Make, bool) {
	m, ok := r.Makes[refKey(name)]
	return m, ok
}

// ResolveModel looks up a model by make id and model name
func (r *ReferenceData) ResolveModel(makeID, name string) (CarModel, bool) {
	m, ok := r.Models[makeID+"|"+refKey(name)]
	return m, ok
}

// ResolveBodyType looks up a body type by name
func (r *ReferenceData) ResolveBodyType(name string) (BodyType, bool) {
	b, ok := r.BodyTypes[refKey(name)]
	return b, ok
}

// ResolveFuelType looks up a fuel type by name
func (r *ReferenceData) ResolveFuelType(name string) (FuelType, bool) {
	f, ok := r.FuelTypes[refKey(name)]
	return f, ok
}

// ResolveTransmission looks up a transmission by name
func (r *ReferenceData) ResolveTransmission(name string) (Transmission, bool) {
	t, ok := r.Transmissions[refKey(name)]
	return t, ok
}

// BodyTypeName returns the display name for a body type id
func (r *ReferenceData) BodyTypeName(id string) string {
	for _, b := range r.BodyTypes {
		if b.ID == id {
			return b.Name
		}
	}
	return ""
}

// FuelTypeName returns the display name for a fuel type id
func (r *ReferenceData) FuelTypeName(id string) string {
	for _, f := range r.FuelTypes {
		if f.ID == id {
			return f.Name
		}
	}
	return ""
}

// TransmissionName returns the display name for a transmission id
func (r *ReferenceData) TransmissionName(id string) string {
	for _, t := range r.Transmissions {
		if t.ID == id {
			return t.Name
		}
	}
	return ""
}

// AddModel registers a model in the snapshot. Used after the missing
// dependency has been created so re-classification sees it.
func (r *ReferenceData) AddModel(m CarModel) {
	if r.Models == nil {
		r.Models = make(map[string]CarModel)
	}
	r.Models[m.MakeID+"|"+refKey(m.Name)] = m
}
