package models

import (
	"time"
)

// State is a step of the photo submission conversation.
type State string

const (
	StateUnauthenticated         State = "unauthenticated"
	StateAuthenticated           State = "authenticated"
	StateAwaitingShopName        State = "awaiting_shop_name"
	StateAwaitingLocation        State = "awaiting_location"
	StateAwaitingCategory        State = "awaiting_category"
	StateAwaitingCompetitorBrand State = "awaiting_competitor_brand"
	StateAwaitingOrimiBrand      State = "awaiting_orimi_brand"
	StateAwaitingCompetitorCount State = "awaiting_competitor_count"
	StateAwaitingPhoto           State = "awaiting_photo"
)

// Valid reports whether s is one of the defined workflow states.
func (s State) Valid() bool {
	switch s {
	case StateUnauthenticated, StateAuthenticated, StateAwaitingShopName,
		StateAwaitingLocation, StateAwaitingCategory, StateAwaitingCompetitorBrand,
		StateAwaitingOrimiBrand, StateAwaitingCompetitorCount, StateAwaitingPhoto:
		return true
	}
	return false
}

// InFlow reports whether s belongs to an unfinished submission.
func (s State) InFlow() bool {
	return s.Valid() && s != StateUnauthenticated && s != StateAuthenticated
}

// Session stores the WhatsApp conversation progress of one agent.
type Session struct {
	Identity        string   `json:"identity" gorm:"primaryKey;size:64"`
	State           State    `json:"state" gorm:"size:40;not null"`
	AgentPhone      string   `json:"agent_phone" gorm:"size:32"`
	ShopName        string   `json:"shop_name"`
	Latitude        *float64 `json:"latitude,omitempty"`
	Longitude       *float64 `json:"longitude,omitempty"`
	Category        string   `json:"category"`
	Brand           string   `json:"brand"`
	CompetitorCount *int     `json:"competitor_count,omitempty"`

	// PendingPhoto points at a downloaded file that has not been verified yet.
	PendingPhoto string `json:"-" gorm:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName keeps the table name used by earlier deployments.
func (Session) TableName() string {
	return "whatsapp_sessions"
}

// NewSession creates the record for a first contact.
func NewSession(identity string) *Session {
	return &Session{
		Identity: identity,
		State:    StateUnauthenticated,
	}
}

// HasLocation reports whether both coordinates are set.
func (s *Session) HasLocation() bool {
	return s.Latitude != nil && s.Longitude != nil
}

// SetLocation stores both coordinates at once.
func (s *Session) SetLocation(lat, lon float64) {
	s.Latitude = &lat
	s.Longitude = &lon
}

// ClearLocation drops both coordinates.
func (s *Session) ClearLocation() {
	s.Latitude = nil
	s.Longitude = nil
}

// ClearWorkflow drops every field collected during a submission.
func (s *Session) ClearWorkflow() {
	s.ShopName = ""
	s.ClearLocation()
	s.Category = ""
	s.Brand = ""
	s.CompetitorCount = nil
	s.PendingPhoto = ""
}

// Reset returns an authorized agent to the main menu.
func (s *Session) Reset() {
	s.ClearWorkflow()
	s.State = StateAuthenticated
}

// Deauthorize forgets the proven phone and asks for a new identity proof.
func (s *Session) Deauthorize() {
	s.ClearWorkflow()
	s.AgentPhone = ""
	s.State = StateUnauthenticated
}

// Clone returns a deep copy so stores never share pointers with callers.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.Latitude != nil {
		lat := *s.Latitude
		c.Latitude = &lat
	}
	if s.Longitude != nil {
		lon := *s.Longitude
		c.Longitude = &lon
	}
	if s.CompetitorCount != nil {
		n := *s.CompetitorCount
		c.CompetitorCount = &n
	}
	return &c
}
