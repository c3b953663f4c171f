package models

// SessionModel represents one study session that owns an outline,
// ingested source chunks and generated note documents.
type SessionModel struct {
	Base
	Title      string `json:"title"       gorm:"not null"`
	Language   string `json:"language"    gorm:"default:'zh'"`
	Status     string `json:"status"      gorm:"default:'active';index"` // active | uploaded | outline_ready | notes_ready
	ChunkCount int    `json:"chunk_count" gorm:"default:0"`
}

func (SessionModel) TableName() string { return "sessions" }

// OutlineModel stores the uploaded document outline of a session.
// Nodes holds the serialized tree as produced by the outline package.
type OutlineModel struct {
	Base
	SessionID string `json:"session_id" gorm:"uniqueIndex;not null"`
	Title     string `json:"title"`
	Nodes     string `json:"-"          gorm:"type:longtext;not null"`
	Version   int    `json:"version"    gorm:"default:1"`
}

func (OutlineModel) TableName() string { return "outlines" }
