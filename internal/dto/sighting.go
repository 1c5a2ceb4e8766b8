package dto

import "github.com/noah-isme/whale-spotting-api/internal/models"

// SubmitSightingRequest is the public submission form payload.
// SightedAt accepts a calendar date (2006-01-02) or an RFC3339 timestamp.
type SubmitSightingRequest struct {
	Species          string   `json:"species" validate:"required,max=200"`
	Quantity         string   `json:"quantity" validate:"max=50"`
	Location         string   `json:"location" validate:"max=300"`
	Latitude         *float64 `json:"latitude" validate:"required,gte=-90,lte=90"`
	Longitude        *float64 `json:"longitude" validate:"required,gte=-180,lte=180"`
	Description      string   `json:"description" validate:"max=4000"`
	SightedAt        string   `json:"sightedAt" validate:"required"`
	SubmittedByName  string   `json:"submittedByName" validate:"max=200"`
	SubmittedByEmail string   `json:"submittedByEmail" validate:"omitempty,email"`
}

// ConfirmSightingRequest carries the reviewed field set an admin confirms.
type ConfirmSightingRequest struct {
	APIID            *string  `json:"apiId"`
	Species          string   `json:"species" validate:"required,max=200"`
	Quantity         string   `json:"quantity" validate:"max=50"`
	Location         string   `json:"location" validate:"max=300"`
	Latitude         *float64 `json:"latitude" validate:"required,gte=-90,lte=90"`
	Longitude        *float64 `json:"longitude" validate:"required,gte=-180,lte=180"`
	Description      string   `json:"description" validate:"max=4000"`
	SightedAt        string   `json:"sightedAt" validate:"required"`
	SubmittedByName  string   `json:"submittedByName" validate:"max=200"`
	SubmittedByEmail string   `json:"submittedByEmail" validate:"omitempty,email"`
}

// SearchResponse wraps one page of confirmed sightings and the matching total.
type SearchResponse struct {
	Sightings  []models.Sighting `json:"sightings"`
	TotalCount int               `json:"totalCount"`
	Page       int               `json:"page"`
	PageSize   int               `json:"pageSize"`
}

// IngestCandidate is one externally sourced sighting offered for ingestion.
type IngestCandidate struct {
	APIID            string   `json:"apiId" validate:"required,max=100"`
	Species          string   `json:"species" validate:"required"`
	Quantity         string   `json:"quantity"`
	Location         string   `json:"location"`
	Latitude         *float64 `json:"latitude" validate:"required,gte=-90,lte=90"`
	Longitude        *float64 `json:"longitude" validate:"required,gte=-180,lte=180"`
	Description      string   `json:"description"`
	SightedAt        string   `json:"sightedAt" validate:"required"`
	SubmittedByName  string   `json:"submittedByName"`
	SubmittedByEmail string   `json:"submittedByEmail"`
	CreatedAt        string   `json:"createdAt"`
}

// IngestRequest is the admin bulk ingestion payload.
type IngestRequest struct {
	Sightings []IngestCandidate `json:"sightings" validate:"required,min=1,dive"`
}

// IngestResult summarises one ingestion run.
type IngestResult struct {
	Received int     `json:"received"`
	Inserted int     `json:"inserted"`
	Skipped  int     `json:"skipped"`
	IDs      []int64 `json:"ids"`
}

// PollResponse acknowledges an enqueued feed poll.
type PollResponse struct {
	JobID string `json:"jobId"`
}
