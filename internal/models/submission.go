package models

import (
	"errors"
	"fmt"
)

// SubmissionRecord is the single backend record produced by a finished flow.
// A record either carries a brand with a competitor count, or a photo.
type SubmissionRecord struct {
	AgentID         int64   `json:"agent"`
	StoreID         int64   `json:"store"`
	Category        string  `json:"post_type"`
	Latitude        float64 `json:"latitude"`
	Longitude       float64 `json:"longitude"`
	Brand           *string `json:"dmp_type,omitempty"`
	CompetitorCount *int    `json:"dmp_count,omitempty"`
	PhotoPath       string  `json:"-"`
}

// HasPhoto reports whether the record belongs to the photo branch.
func (r SubmissionRecord) HasPhoto() bool {
	return r.PhotoPath != ""
}

// Validate checks that exactly one completion shape is present.
func (r SubmissionRecord) Validate() error {
	if r.AgentID == 0 || r.StoreID == 0 {
		return errors.New("agent and store are required")
	}
	if r.Category == "" {
		return errors.New("category is required")
	}
	counted := r.Brand != nil && r.CompetitorCount != nil
	switch {
	case r.HasPhoto() && (r.Brand != nil || r.CompetitorCount != nil):
		return errors.New("photo record must not carry a brand or competitor count")
	case !r.HasPhoto() && !counted:
		return errors.New("record needs either a photo or a brand with a count")
	case r.CompetitorCount != nil && *r.CompetitorCount < 0:
		return fmt.Errorf("negative competitor count %d", *r.CompetitorCount)
	}
	return nil
}
