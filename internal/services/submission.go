package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dastankg/orimi-merchen/internal/config"
	"github.com/dastankg/orimi-merchen/internal/models"
	"github.com/dastankg/orimi-merchen/internal/utils"
	"go.uber.org/zap"
)

// PostSink receives finished submission records.
type PostSink interface {
	CreatePost(ctx context.Context, rec models.SubmissionRecord) error
}

// Outcome is the result of one submission attempt.
type Outcome struct {
	Record *models.SubmissionRecord
	Err    error
}

// Success reports whether the backend accepted the record.
func (o Outcome) Success() bool {
	return o.Err == nil
}

// Kind classifies the failure, or returns "" on success.
func (o Outcome) Kind() models.Kind {
	return models.KindOf(o.Err)
}

// SubmissionService assembles records from finished sessions and posts them.
type SubmissionService struct {
	sink    PostSink
	catalog *config.Catalog
	log     *zap.Logger
}

// NewSubmissionService creates the assembler
func NewSubmissionService(sink PostSink, catalog *config.Catalog, log *zap.Logger) *SubmissionService {
	if log == nil {
		log = zap.NewNop()
	}
	return &SubmissionService{sink: sink, catalog: catalog, log: log}
}

// Submit builds the record for sess and sends it. photoPath is empty for the
// brand and count branch. The photo is deleted afterwards whatever the result.
func (s *SubmissionService) Submit(ctx context.Context, agentID, storeID int64, sess *models.Session, photoPath string) Outcome {
	defer func() {
		if err := utils.RemoveFiles(photoPath); err != nil {
			s.log.Warn("failed to remove submitted photo", zap.String("path", photoPath), zap.Error(err))
		}
	}()

	cat, ok := s.catalog.Category(sess.Category)
	if !ok {
		return Outcome{Err: models.Validation("submit", fmt.Errorf("unknown category %q", sess.Category))}
	}
	rec, err := BuildRecord(agentID, storeID, sess, cat, photoPath)
	if err != nil {
		return Outcome{Err: err}
	}
	// A session saved before a catalog change may name a retired brand.
	if rec.Brand != nil && !s.catalog.IsCompetitorBrand(*rec.Brand) {
		return Outcome{Err: models.Validation("submit", fmt.Errorf("unknown competitor brand %q", *rec.Brand))}
	}

	if err := s.sink.CreatePost(ctx, rec); err != nil {
		var me *models.Error
		if !errors.As(err, &me) {
			err = models.UpstreamErr("create post", err)
		}
		s.log.Error("submission rejected",
			zap.Int64("agent", agentID),
			zap.Int64("store", storeID),
			zap.String("category", rec.Category),
			zap.Bool("photo", rec.HasPhoto()),
			zap.Error(err))
		return Outcome{Record: &rec, Err: err}
	}
	return Outcome{Record: &rec}
}

// BuildRecord maps a finished session to the backend record. A photo record
// carries neither brand nor competitor count.
func BuildRecord(agentID, storeID int64, sess *models.Session, cat config.Category, photoPath string) (models.SubmissionRecord, error) {
	const op = "build record"
	if !sess.HasLocation() {
		return models.SubmissionRecord{}, models.Validation(op, errors.New("location is missing"))
	}

	rec := models.SubmissionRecord{
		AgentID:   agentID,
		StoreID:   storeID,
		Category:  cat.Name,
		Latitude:  *sess.Latitude,
		Longitude: *sess.Longitude,
	}

	if photoPath != "" {
		if !cat.RequiresPhoto() {
			return models.SubmissionRecord{}, models.Validation(op, fmt.Errorf("category %q does not take a photo", cat.Name))
		}
		rec.PhotoPath = photoPath
	} else {
		if !cat.IsCompetitor() {
			return models.SubmissionRecord{}, models.Validation(op, fmt.Errorf("category %q requires a photo", cat.Name))
		}
		if sess.Brand == "" || sess.CompetitorCount == nil {
			return models.SubmissionRecord{}, models.Validation(op, errors.New("brand and count are required"))
		}
		brand := sess.Brand
		count := *sess.CompetitorCount
		rec.Brand = &brand
		rec.CompetitorCount = &count
	}

	if err := rec.Validate(); err != nil {
		return models.SubmissionRecord{}, models.Validation(op, err)
	}
	return rec, nil
}
