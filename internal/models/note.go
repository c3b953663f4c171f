package models

// NoteArtifactModel persists one generated note document.
// NoteID is the deterministic external identifier; Seq orders documents
// within a session for history eviction.
type NoteArtifactModel struct {
	Base
	NoteID      string      `json:"note_id"      gorm:"uniqueIndex;not null"`
	SessionID   string      `json:"session_id"   gorm:"index:idx_note_session;not null"`
	Seq         int64       `json:"seq"          gorm:"index:idx_note_session;not null"`
	DetailLevel string      `json:"detail_level" gorm:"not null"`
	Difficulty  string      `json:"difficulty"   gorm:"not null"`
	Language    string      `json:"language"     gorm:"default:'zh'"`
	Title       string      `json:"title"`
	Sections    string      `json:"-"            gorm:"type:longtext;not null"` // JSON-encoded sections
	Warnings    StringArray `json:"warnings"     gorm:"type:json"`
	Current     bool        `json:"current"      gorm:"index"`
}

func (NoteArtifactModel) TableName() string { return "note_artifacts" }
