package artifact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/studycompanion/core/internal/models"
	"github.com/studycompanion/core/internal/modules/notegen"
	"gorm.io/gorm"
)

// GormStore persists note documents in MySQL.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// storedBody is the JSON shape of the longtext payload column.
type storedBody struct {
	TOC      []TOCEntry        `json:"toc"`
	Sections []notegen.Section `json:"sections"`
}

func encodeSections(doc *NoteDoc) (string, error) {
	data, err := json.Marshal(storedBody{TOC: doc.TOC, Sections: doc.Sections})
	if err != nil {
		return "", fmt.Errorf("encode note document: %w", err)
	}
	return string(data), nil
}

func (s *GormStore) decode(row *models.NoteArtifactModel) (*NoteDoc, error) {
	var body storedBody
	if err := json.Unmarshal([]byte(row.Sections), &body); err != nil {
		return nil, fmt.Errorf("decode note document %q: %w", row.NoteID, err)
	}

	return &NoteDoc{
		ID:        row.NoteID,
		SessionID: row.SessionID,
		Seq:       row.Seq,
		Style: Style{
			DetailLevel: row.DetailLevel,
			Difficulty:  row.Difficulty,
			Language:    row.Language,
		},
		Title:     row.Title,
		TOC:       body.TOC,
		Sections:  body.Sections,
		Warnings:  row.Warnings,
		CreatedAt: row.CreatedAt,
	}, nil
}

func (s *GormStore) Save(ctx context.Context, doc *NoteDoc) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var maxSeq int64
		if err := tx.Model(&models.NoteArtifactModel{}).
			Where("session_id = ?", doc.SessionID).
			Select("COALESCE(MAX(seq), 0)").
			Scan(&maxSeq).Error; err != nil {
			return err
		}
		doc.Seq = maxSeq + 1
		doc.ID = DocID(doc.SessionID, doc.Style, doc.Seq)

		payload, err := encodeSections(doc)
		if err != nil {
			return err
		}

		if err := tx.Model(&models.NoteArtifactModel{}).
			Where("session_id = ? AND current = ?", doc.SessionID, true).
			Update("current", false).Error; err != nil {
			return err
		}

		row := models.NoteArtifactModel{
			NoteID:      doc.ID,
			SessionID:   doc.SessionID,
			Seq:         doc.Seq,
			DetailLevel: doc.Style.DetailLevel,
			Difficulty:  doc.Style.Difficulty,
			Language:    doc.Style.Language,
			Title:       doc.Title,
			Sections:    payload,
			Warnings:    models.StringArray(doc.Warnings),
			Current:     true,
		}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		doc.CreatedAt = row.CreatedAt

		// Evict everything older than the retained window.
		var keep []int64
		if err := tx.Model(&models.NoteArtifactModel{}).
			Where("session_id = ?", doc.SessionID).
			Order("seq DESC").
			Limit(HistoryLimit).
			Pluck("seq", &keep).Error; err != nil {
			return err
		}
		if len(keep) == HistoryLimit {
			if err := tx.Unscoped().
				Where("session_id = ? AND seq < ?", doc.SessionID, keep[HistoryLimit-1]).
				Delete(&models.NoteArtifactModel{}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *GormStore) Get(ctx context.Context, id string) (*NoteDoc, error) {
	var row models.NoteArtifactModel
	err := s.db.WithContext(ctx).Where("note_id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return s.decode(&row)
}

func (s *GormStore) Current(ctx context.Context, sessionID string) (*NoteDoc, error) {
	var row models.NoteArtifactModel
	err := s.db.WithContext(ctx).
		Where("session_id = ? AND current = ?", sessionID, true).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: no current document for session %q", ErrNotFound, sessionID)
	}
	if err != nil {
		return nil, err
	}
	return s.decode(&row)
}

func (s *GormStore) History(ctx context.Context, sessionID string) ([]HistoryEntry, error) {
	var rows []models.NoteArtifactModel
	if err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("seq DESC").
		Limit(HistoryLimit).
		Find(&rows).Error; err != nil {
		return nil, err
	}

	entries := make([]HistoryEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, HistoryEntry{
			NoteDocID: row.NoteID,
			Style: Style{
				DetailLevel: row.DetailLevel,
				Difficulty:  row.Difficulty,
				Language:    row.Language,
			},
			CreatedAt: row.CreatedAt,
			Current:   row.Current,
		})
	}
	return entries, nil
}

func (s *GormStore) Revert(ctx context.Context, sessionID, noteDocID string) (*NoteDoc, error) {
	var doc *NoteDoc
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row models.NoteArtifactModel
		err := tx.Where("session_id = ? AND note_id = ?", sessionID, noteDocID).First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %q", ErrNotFound, noteDocID)
		}
		if err != nil {
			return err
		}

		if err := tx.Model(&models.NoteArtifactModel{}).
			Where("session_id = ? AND current = ?", sessionID, true).
			Update("current", false).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.NoteArtifactModel{}).
			Where("session_id = ? AND note_id = ?", sessionID, noteDocID).
			Update("current", true).Error; err != nil {
			return err
		}

		row.Current = true
		doc, err = s.decode(&row)
		return err
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}
