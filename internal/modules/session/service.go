// Package session manages study sessions: lifecycle, outline upload
// and source-chunk ingestion.
package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/studycompanion/core/internal/models"
	"github.com/studycompanion/core/internal/modules/outline"
	"github.com/studycompanion/core/internal/modules/retrieval"
	"github.com/studycompanion/core/internal/pkg/pagination"
	"github.com/studycompanion/core/internal/pkg/response"
	"gorm.io/gorm"
)

// ErrSessionNotFound is returned for unknown session ids.
var ErrSessionNotFound = errors.New("session not found")

// ErrNoOutline is returned when a session has no uploaded outline yet.
var ErrNoOutline = errors.New("session has no outline")

// Session status values. Informational, advanced as material arrives.
const (
	StatusActive       = "active"
	StatusUploaded     = "uploaded"
	StatusOutlineReady = "outline_ready"
	StatusNotesReady   = "notes_ready"
)

type Service struct {
	db     *gorm.DB
	chunks retrieval.Store
}

func NewService(db *gorm.DB, chunks retrieval.Store) *Service {
	return &Service{db: db, chunks: chunks}
}

func (s *Service) Create(ctx context.Context, title, language string) (*models.SessionModel, error) {
	if language == "" {
		language = "zh"
	}
	sess := models.SessionModel{
		Title:    title,
		Language: language,
		Status:   StatusActive,
	}
	if err := s.db.WithContext(ctx).Create(&sess).Error; err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.SessionModel, error) {
	var sess models.SessionModel
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&sess).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %q", ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *Service) List(ctx context.Context, q pagination.Query) ([]models.SessionModel, response.Pagination, error) {
	var sessions []models.SessionModel
	meta, err := pagination.Paginate(
		s.db.WithContext(ctx).Model(&models.SessionModel{}).Order("created_at DESC"),
		q,
		&sessions,
	)
	return sessions, meta, err
}

// Archive soft-deletes the session and purges its retrieval chunks,
// outline and note artifacts. Task snapshots age out via retention.
func (s *Service) Archive(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).Delete(&models.SessionModel{}).Error; err != nil {
			return err
		}
		if err := tx.Where("session_id = ?", id).Delete(&models.OutlineModel{}).Error; err != nil {
			return err
		}
		return tx.Where("session_id = ?", id).Delete(&models.NoteArtifactModel{}).Error
	})
	if err != nil {
		return err
	}
	return s.chunks.Clear(ctx, id)
}

// PutOutline validates and stores the session's outline, replacing any
// previous one and bumping its version.
func (s *Service) PutOutline(ctx context.Context, sessionID string, root *outline.Node) (*outline.Tree, int, error) {
	if _, err := s.Get(ctx, sessionID); err != nil {
		return nil, 0, err
	}

	tree, err := outline.NewTree(root)
	if err != nil {
		return nil, 0, err
	}
	encoded, err := tree.Encode()
	if err != nil {
		return nil, 0, err
	}

	version := 1
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.OutlineModel
		findErr := tx.Where("session_id = ?", sessionID).First(&existing).Error
		switch {
		case errors.Is(findErr, gorm.ErrRecordNotFound):
			return tx.Create(&models.OutlineModel{
				SessionID: sessionID,
				Title:     root.Title,
				Nodes:     string(encoded),
				Version:   1,
			}).Error
		case findErr != nil:
			return findErr
		default:
			version = existing.Version + 1
			return tx.Model(&existing).Updates(map[string]interface{}{
				"title":   root.Title,
				"nodes":   string(encoded),
				"version": version,
			}).Error
		}
	})
	if err != nil {
		return nil, 0, err
	}

	if err := s.setStatus(ctx, sessionID, StatusOutlineReady); err != nil {
		return nil, 0, err
	}
	return tree, version, nil
}

// LoadTree resolves the stored outline tree of a session.
func (s *Service) LoadTree(ctx context.Context, sessionID string) (*outline.Tree, error) {
	var row models.OutlineModel
	err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %q", ErrNoOutline, sessionID)
	}
	if err != nil {
		return nil, err
	}
	return outline.Decode([]byte(row.Nodes))
}

// IngestChunks adds parsed source chunks to the session's retrieval
// index and updates the chunk counter.
func (s *Service) IngestChunks(ctx context.Context, sessionID string, chunks []retrieval.Chunk) (int, error) {
	if _, err := s.Get(ctx, sessionID); err != nil {
		return 0, err
	}
	if err := s.chunks.Ingest(ctx, sessionID, chunks); err != nil {
		return 0, err
	}

	count, err := s.chunks.Count(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	err = s.db.WithContext(ctx).Model(&models.SessionModel{}).
		Where("id = ?", sessionID).
		Updates(map[string]interface{}{"chunk_count": count, "status": StatusUploaded}).Error
	return count, err
}

// MarkNotesReady records that the session has a completed note document.
func (s *Service) MarkNotesReady(ctx context.Context, sessionID string) error {
	return s.setStatus(ctx, sessionID, StatusNotesReady)
}

func (s *Service) setStatus(ctx context.Context, sessionID, status string) error {
	return s.db.WithContext(ctx).Model(&models.SessionModel{}).
		Where("id = ?", sessionID).
		Update("status", status).Error
}
