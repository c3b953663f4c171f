// Package artifact persists completed note documents and the bounded
// per-session revision history used by revert tooling.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/studycompanion/core/internal/modules/notegen"
)

// HistoryLimit caps how many note documents a session retains.
const HistoryLimit = 3

// ErrNotFound is returned for unknown note document ids, including ids
// already evicted from the history window.
var ErrNotFound = errors.New("note document not found")

// Style records the resolved axes a document was generated under.
type Style struct {
	DetailLevel string `json:"detail_level"`
	Difficulty  string `json:"difficulty"`
	Language    string `json:"language"`
}

// TOCEntry mirrors the outline order of a document's sections.
type TOCEntry struct {
	SectionID string `json:"section_id"`
	Title     string `json:"title"`
}

// NoteDoc is one completed, immutable note document.
type NoteDoc struct {
	ID        string            `json:"id"`
	SessionID string            `json:"session_id"`
	Seq       int64             `json:"seq"`
	Style     Style             `json:"style"`
	Title     string            `json:"title"`
	TOC       []TOCEntry        `json:"toc"`
	Sections  []notegen.Section `json:"sections"`
	Warnings  []string          `json:"warnings,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// HistoryEntry is the versioned pointer exposed to revert tooling.
type HistoryEntry struct {
	NoteDocID string    `json:"note_doc_id"`
	Style     Style     `json:"style"`
	CreatedAt time.Time `json:"created_at"`
	Current   bool      `json:"current"`
}

// Store owns persisted note documents and their history.
type Store interface {
	// Save assigns the document's sequence number and deterministic id,
	// persists it as the session's current document and evicts history
	// beyond HistoryLimit.
	Save(ctx context.Context, doc *NoteDoc) error
	Get(ctx context.Context, id string) (*NoteDoc, error)
	// Current returns the session's current document, or ErrNotFound.
	Current(ctx context.Context, sessionID string) (*NoteDoc, error)
	// History lists retained entries, most recent first.
	History(ctx context.Context, sessionID string) ([]HistoryEntry, error)
	// Revert promotes a retained document to current.
	Revert(ctx context.Context, sessionID, noteDocID string) (*NoteDoc, error)
}

// DocID builds the deterministic external id of a note document.
func DocID(sessionID string, s Style, seq int64) string {
	return fmt.Sprintf("note_%s_%s_%s_%s_%d", sessionID, s.DetailLevel, s.Difficulty, s.Language, seq)
}
