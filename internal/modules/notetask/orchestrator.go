// Package notetask drives note-generation jobs: sequencing sections,
// streaming progress, enforcing single-flight per session and handling
// cancellation at section boundaries.
package notetask

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/studycompanion/core/internal/modules/artifact"
	"github.com/studycompanion/core/internal/modules/notegen"
	"github.com/studycompanion/core/internal/modules/outline"
	"github.com/studycompanion/core/internal/modules/retrieval"
	"github.com/studycompanion/core/internal/modules/style"
	"github.com/studycompanion/core/internal/pkg/taskstore"
	"go.uber.org/zap"
)

// ErrSessionBusy rejects a submit while the session already has a
// non-terminal task.
var ErrSessionBusy = errors.New("session already has an active generation task")

// ErrTaskNotFound mirrors the store's not-found for in-memory lookups.
var ErrTaskNotFound = taskstore.ErrNotFound

// cancelledReason is the error string a cancelled task terminates with.
const cancelledReason = "cancelled"

// Notifier receives a copy of every task event, in addition to the
// per-task subscriber streams. Implementations must not block.
type Notifier interface {
	NotifyTask(ev Event)
}

// Orchestrator owns all GenerationTask mutation. Tasks run on a
// background context decoupled from the submitting request.
type Orchestrator struct {
	store     taskstore.Store
	artifacts artifact.Store
	gateway   retrieval.Gateway
	generator *notegen.Generator
	topK      int
	log       *zap.Logger
	notifier  Notifier

	mu    sync.Mutex
	tasks map[string]*task
}

type task struct {
	mu              sync.Mutex
	snap            taskstore.Snapshot
	bc              *broadcaster
	cancelRequested bool
}

func NewOrchestrator(store taskstore.Store, artifacts artifact.Store, gateway retrieval.Gateway, generator *notegen.Generator, topK int, log *zap.Logger) *Orchestrator {
	if topK <= 0 {
		topK = 3
	}
	return &Orchestrator{
		store:     store,
		artifacts: artifacts,
		gateway:   gateway,
		generator: generator,
		topK:      topK,
		log:       log,
		tasks:     make(map[string]*task),
	}
}

// SetNotifier installs a side channel for task events. Call before
// the first Submit.
func (o *Orchestrator) SetNotifier(n Notifier) {
	o.notifier = n
}

// Submit validates the style eagerly, registers a queued task and
// returns its id without waiting for generation.
func (o *Orchestrator) Submit(ctx context.Context, sessionID string, tree *outline.Tree, detail style.DetailLevel, difficulty style.Difficulty, language string) (string, error) {
	policy, err := style.Resolve(detail, difficulty, language)
	if err != nil {
		return "", err
	}

	taskID := uuid.New().String()
	sections := tree.Sections()
	snap := taskstore.Snapshot{
		ID:            taskID,
		SessionID:     sessionID,
		Status:        taskstore.StatusQueued,
		DetailLevel:   string(policy.DetailLevel),
		Difficulty:    string(policy.Difficulty),
		Language:      policy.Language,
		TotalSections: len(sections),
		Message:       "queued",
		CreatedAt:     time.Now(),
	}

	// Persist before taking the session slot so the slot holder always
	// has a snapshot behind it. AcquireSession treats a holder without
	// one as a crashed task and steals the slot.
	if err := o.store.Put(ctx, &snap); err != nil {
		return "", fmt.Errorf("persist task: %w", err)
	}

	acquired, err := o.store.AcquireSession(ctx, sessionID, taskID)
	if err != nil {
		_ = o.store.Delete(ctx, taskID)
		return "", fmt.Errorf("acquire session: %w", err)
	}
	if !acquired {
		_ = o.store.Delete(ctx, taskID)
		return "", fmt.Errorf("%w: session %q", ErrSessionBusy, sessionID)
	}

	t := &task{
		snap: snap,
		// One frame per section start and finish, plus lifecycle frames.
		bc: newBroadcaster(len(sections)*2 + 4),
	}
	o.mu.Lock()
	o.tasks[taskID] = t
	o.mu.Unlock()

	o.emit(t, func(s *taskstore.Snapshot) {})

	go o.run(t, sections, policy, tree.Root().Title)

	o.log.Info("generation task submitted",
		zap.String("task_id", taskID),
		zap.String("session_id", sessionID),
		zap.String("style", policy.Key()),
		zap.Int("sections", len(sections)),
	)
	return taskID, nil
}

// Poll returns the latest known snapshot of a task.
func (o *Orchestrator) Poll(ctx context.Context, taskID string) (*taskstore.Snapshot, error) {
	o.mu.Lock()
	t, ok := o.tasks[taskID]
	o.mu.Unlock()
	if ok {
		t.mu.Lock()
		snap := t.snap
		t.mu.Unlock()
		return &snap, nil
	}
	return o.store.Get(ctx, taskID)
}

// List pages through persisted task snapshots.
func (o *Orchestrator) List(ctx context.Context, page, size int, sessionID string, status *taskstore.Status) ([]*taskstore.Snapshot, int64, error) {
	return o.store.List(ctx, page, size, sessionID, status)
}

// Subscribe attaches to a task's event stream. Past events are
// replayed first, so a late subscriber always observes the terminal
// event. Detaching never cancels the task.
func (o *Orchestrator) Subscribe(taskID string) (<-chan Event, func(), error) {
	o.mu.Lock()
	t, ok := o.tasks[taskID]
	o.mu.Unlock()
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q", ErrTaskNotFound, taskID)
	}
	ch, detach := t.bc.subscribe()
	return ch, detach, nil
}

// Cancel requests cooperative cancellation. The running section is
// allowed to finish; the task terminates at the next section boundary.
func (o *Orchestrator) Cancel(taskID string) error {
	o.mu.Lock()
	t, ok := o.tasks[taskID]
	o.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrTaskNotFound, taskID)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.snap.Status.Terminal() {
		return fmt.Errorf("task %q is already %s", taskID, t.snap.Status)
	}
	t.cancelRequested = true
	return nil
}

// PurgeFinished drops terminal tasks older than olderThan from memory
// and the store. Returns how many persisted snapshots were removed.
func (o *Orchestrator) PurgeFinished(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)

	o.mu.Lock()
	for id, t := range o.tasks {
		t.mu.Lock()
		stale := t.snap.Status.Terminal() && t.snap.CreatedAt.Before(cutoff)
		t.mu.Unlock()
		if stale {
			delete(o.tasks, id)
		}
	}
	o.mu.Unlock()

	return o.store.DeleteFinished(ctx, cutoff.UnixMilli())
}

// emit applies mutate to the snapshot under the task lock, persists it
// and publishes the matching event. Progress never decreases.
func (o *Orchestrator) emit(t *task, mutate func(*taskstore.Snapshot)) {
	t.mu.Lock()
	prev := t.snap.Progress
	mutate(&t.snap)
	if t.snap.Progress < prev {
		t.snap.Progress = prev
	}
	t.snap.UpdatedAt = time.Now()
	snap := t.snap
	t.mu.Unlock()

	if err := o.store.Put(context.Background(), &snap); err != nil {
		o.log.Warn("persist task snapshot failed", zap.String("task_id", snap.ID), zap.Error(err))
	}

	ev := Event{
		TaskID:         snap.ID,
		SessionID:      snap.SessionID,
		Status:         snap.Status,
		Progress:       snap.Progress,
		CurrentSection: snap.CurrentSection,
		Message:        snap.Message,
		Error:          snap.Error,
		NoteDocID:      snap.NoteDocID,
		Terminal:       snap.Status.Terminal(),
		At:             time.Now(),
	}
	t.bc.publish(ev)
	if o.notifier != nil {
		o.notifier.NotifyTask(ev)
	}
}

func (o *Orchestrator) cancelled(t *task) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelRequested
}

// run executes the whole job on a background context. Sections are
// generated strictly sequentially; cancellation is checked only
// between them.
func (o *Orchestrator) run(t *task, sections []*outline.Node, policy style.Policy, docTitle string) {
	ctx := context.Background()
	snap := func() taskstore.Snapshot {
		t.mu.Lock()
		defer t.mu.Unlock()
		return t.snap
	}
	taskID, sessionID := snap().ID, snap().SessionID
	defer func() {
		if err := o.store.ReleaseSession(ctx, sessionID, taskID); err != nil {
			o.log.Warn("release session failed", zap.String("session_id", sessionID), zap.Error(err))
		}
	}()

	o.emit(t, func(s *taskstore.Snapshot) {
		s.Status = taskstore.StatusRunning
		s.Message = "generating"
	})

	total := len(sections)
	done := 0
	generated := make([]notegen.Section, 0, total)
	var warnings []string

	for i, node := range sections {
		if o.cancelled(t) {
			o.finishCancelled(t)
			return
		}

		o.emit(t, func(s *taskstore.Snapshot) {
			s.CurrentSection = node.Title
			s.Message = fmt.Sprintf("generating section %d/%d", i+1, total)
		})

		chunks := o.retrieve(ctx, sessionID, node)
		sec, err := o.generator.Generate(ctx, node, policy, chunks)
		if err != nil {
			// The capability failed even after its internal retry. Keep
			// the task alive with a fallback section built from the
			// outline itself.
			o.log.Warn("section generation failed, using outline fallback",
				zap.String("task_id", taskID),
				zap.String("section_id", node.SectionID),
				zap.Error(err),
			)
			sec = fallbackSection(node, chunks)
			sec.Warnings = append(sec.Warnings, "generation failed: "+err.Error())
		}
		if len(sec.Warnings) > 0 {
			for _, w := range sec.Warnings {
				warnings = append(warnings, fmt.Sprintf("%s: %s", node.SectionID, w))
			}
		}
		generated = append(generated, sec)
		done++

		progress := done * 100 / total
		o.emit(t, func(s *taskstore.Snapshot) {
			s.Progress = progress
			s.Message = fmt.Sprintf("completed section %d/%d", done, total)
		})
	}

	if o.cancelled(t) {
		o.finishCancelled(t)
		return
	}

	doc := &artifact.NoteDoc{
		SessionID: sessionID,
		Style: artifact.Style{
			DetailLevel: string(policy.DetailLevel),
			Difficulty:  string(policy.Difficulty),
			Language:    policy.Language,
		},
		Title:    docTitle,
		TOC:      tocOf(generated),
		Sections: generated,
		Warnings: warnings,
	}
	if err := o.artifacts.Save(ctx, doc); err != nil {
		o.emit(t, func(s *taskstore.Snapshot) {
			s.Status = taskstore.StatusFailed
			s.Error = "persist note document: " + err.Error()
			s.Message = "failed"
		})
		o.log.Error("persist note document failed", zap.String("task_id", taskID), zap.Error(err))
		return
	}

	o.emit(t, func(s *taskstore.Snapshot) {
		s.Status = taskstore.StatusCompleted
		s.Progress = 100
		s.CurrentSection = ""
		s.Message = "completed"
		s.NoteDocID = doc.ID
	})
	o.log.Info("generation task completed",
		zap.String("task_id", taskID),
		zap.String("note_doc_id", doc.ID),
		zap.Int("warnings", len(warnings)),
	)
}

func (o *Orchestrator) finishCancelled(t *task) {
	o.emit(t, func(s *taskstore.Snapshot) {
		s.Status = taskstore.StatusFailed
		s.Error = cancelledReason
		s.Message = "cancelled by user"
	})
}

// retrieve queries per anchor page first, then falls back to the
// node's summary, mirroring how anchored topics read best.
func (o *Orchestrator) retrieve(ctx context.Context, sessionID string, node *outline.Node) []retrieval.Chunk {
	var chunks []retrieval.Chunk
	if len(node.Anchors) > 0 {
		for _, a := range node.Anchors {
			got, err := o.gateway.Query(ctx, sessionID, fmt.Sprintf("page %d %s", a.Page, node.Title), 1)
			if err != nil || len(got) == 0 {
				continue
			}
			chunks = append(chunks, got...)
		}
	}
	if len(chunks) == 0 {
		got, err := o.gateway.Query(ctx, sessionID, node.Title+" "+node.Summary, o.topK)
		if err == nil {
			chunks = got
		}
	}

	seen := make(map[string]struct{}, len(chunks))
	unique := chunks[:0]
	for _, c := range chunks {
		if _, dup := seen[c.ID]; dup {
			continue
		}
		seen[c.ID] = struct{}{}
		unique = append(unique, c)
	}
	if len(unique) > o.topK {
		unique = unique[:o.topK]
	}
	return unique
}

// fallbackSection builds a minimal section from the outline node when
// the generation capability is unusable.
func fallbackSection(node *outline.Node, chunks []retrieval.Chunk) notegen.Section {
	var sb strings.Builder
	sb.WriteString("### " + node.Title + "\n\n")
	if node.Summary != "" {
		sb.WriteString(node.Summary + "\n\n")
	}
	for i, c := range chunks {
		if i >= 3 {
			break
		}
		line := strings.TrimSpace(c.Text)
		if line == "" {
			continue
		}
		sb.WriteString("- " + line + "\n")
	}

	return notegen.Section{
		SectionID: node.SectionID,
		Title:     node.Title,
		Content:   strings.TrimSpace(sb.String()),
		Anchors:   node.Anchors,
	}
}

func tocOf(sections []notegen.Section) []artifact.TOCEntry {
	toc := make([]artifact.TOCEntry, 0, len(sections))
	for _, s := range sections {
		toc = append(toc, artifact.TOCEntry{SectionID: s.SectionID, Title: s.Title})
	}
	return toc
}
