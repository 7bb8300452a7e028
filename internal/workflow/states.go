package workflow

import (
	"github.com/dastankg/orimi-merchen/internal/config"
	"github.com/dastankg/orimi-merchen/internal/models"
)

// rank orders states along the conversation. Both brand states share a rank.
var rank = map[models.State]int{
	models.StateUnauthenticated:         0,
	models.StateAuthenticated:           1,
	models.StateAwaitingShopName:        2,
	models.StateAwaitingLocation:        3,
	models.StateAwaitingCategory:        4,
	models.StateAwaitingOrimiBrand:      5,
	models.StateAwaitingCompetitorBrand: 5,
	models.StateAwaitingCompetitorCount: 6,
	models.StateAwaitingPhoto:           7,
}

// clearAfter drops every field owned by a state ranked after target.
func clearAfter(s *models.Session, target models.State) {
	r := rank[target]
	if r < rank[models.StateAwaitingShopName] {
		s.ShopName = ""
	}
	if r < rank[models.StateAwaitingLocation] {
		s.ClearLocation()
	}
	if r < rank[models.StateAwaitingCategory] {
		s.Category = ""
	}
	if r < rank[models.StateAwaitingOrimiBrand] {
		s.Brand = ""
	}
	if r < rank[models.StateAwaitingCompetitorCount] {
		s.CompetitorCount = nil
	}
	s.PendingPhoto = ""
}

// previous returns the state "back" leads to. ok is false where back is not defined.
func previous(s *models.Session, catalog *config.Catalog) (models.State, bool) {
	switch s.State {
	case models.StateAwaitingShopName:
		return models.StateAuthenticated, true
	case models.StateAwaitingLocation:
		return models.StateAwaitingShopName, true
	case models.StateAwaitingCategory:
		return models.StateAwaitingLocation, true
	case models.StateAwaitingOrimiBrand, models.StateAwaitingCompetitorBrand:
		return models.StateAwaitingCategory, true
	case models.StateAwaitingCompetitorCount:
		return models.StateAwaitingCompetitorBrand, true
	case models.StateAwaitingPhoto:
		if cat, ok := catalog.Category(s.Category); ok && cat.IsDMP() && !cat.IsCompetitor() {
			return models.StateAwaitingOrimiBrand, true
		}
		return models.StateAwaitingCategory, true
	}
	return s.State, false
}

// moveBack sets the state and clears everything collected after it.
func moveBack(s *models.Session, target models.State) {
	clearAfter(s, target)
	s.State = target
}

// branchFor returns the state that follows a category choice.
func branchFor(cat config.Category) models.State {
	switch {
	case cat.IsCompetitor():
		return models.StateAwaitingCompetitorBrand
	case cat.IsDMP():
		return models.StateAwaitingOrimiBrand
	default:
		return models.StateAwaitingPhoto
	}
}
