package todo

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/tailored-agentic-units/tierstore/store"
)

// DefaultDocumentKey is the store key the task document lives under.
const DefaultDocumentKey = "todos"

// Filter selects which tasks List returns.
type Filter int

const (
	FilterActive Filter = iota
	FilterArchived
	FilterAll
)

// Repository persists the task document through a tiered store. Every
// mutation loads the document, applies the change, and writes it back; the
// returned persisted flag is the store's own report, so callers can show a
// degraded-durability notice without a separate status call.
type Repository struct {
	store *store.Store
	key   string
	now   func() time.Time
	newID func() string
}

// RepositoryOption configures a Repository.
type RepositoryOption func(*Repository)

// WithDocumentKey overrides the store key the document is saved under.
func WithDocumentKey(key string) RepositoryOption {
	return func(r *Repository) { r.key = key }
}

// WithClock overrides the timestamp source for task created/updated times.
func WithClock(now func() time.Time) RepositoryOption {
	return func(r *Repository) { r.now = now }
}

// NewRepository creates a Repository over s.
func NewRepository(s *store.Store, opts ...RepositoryOption) *Repository {
	r := &Repository{
		store: s,
		key:   DefaultDocumentKey,
		now:   time.Now,
		newID: func() string { return uuid.Must(uuid.NewV7()).String() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// load returns the current document. An absent key is an empty list, not an
// error; a present but undecodable value surfaces as ErrCorruptDocument.
func (r *Repository) load() (*Document, error) {
	raw, ok := r.store.Get(r.key)
	if !ok {
		return &Document{SchemaVersion: DocumentSchemaVersion, Tasks: []Task{}}, nil
	}
	doc, err := ParseDocument([]byte(raw))
	if err != nil {
		return nil, err
	}
	sort.SliceStable(doc.Tasks, func(i, j int) bool {
		return doc.Tasks[i].Position < doc.Tasks[j].Position
	})
	return doc, nil
}

// save writes the document back. The bool reports whether the write is
// backed by a persistent tier.
func (r *Repository) save(doc *Document) (bool, error) {
	doc.renumber()
	data, err := doc.Encode()
	if err != nil {
		return false, err
	}
	return r.store.Set(r.key, string(data))
}

// Add appends a new task at the end of the list.
func (r *Repository) Add(title, notes string) (Task, bool, error) {
	if title == "" {
		return Task{}, false, fmt.Errorf("add task: empty title")
	}

	doc, err := r.load()
	if err != nil {
		return Task{}, false, err
	}

	now := r.now().UTC()
	task := Task{
		ID:        r.newID(),
		Title:     title,
		Notes:     notes,
		Position:  len(doc.Tasks),
		CreatedAt: now,
		UpdatedAt: now,
	}
	doc.Tasks = append(doc.Tasks, task)

	persisted, err := r.save(doc)
	return task, persisted, err
}

// Update applies fn to the task with the given ID and saves.
func (r *Repository) Update(id string, fn func(*Task)) (bool, error) {
	doc, err := r.load()
	if err != nil {
		return false, err
	}
	i := doc.taskIndex(id)
	if i < 0 {
		return false, fmt.Errorf("update %q: %w", id, ErrTaskNotFound)
	}

	fn(&doc.Tasks[i])
	doc.Tasks[i].UpdatedAt = r.now().UTC()
	return r.save(doc)
}

// Delete removes the task with the given ID.
func (r *Repository) Delete(id string) (bool, error) {
	doc, err := r.load()
	if err != nil {
		return false, err
	}
	i := doc.taskIndex(id)
	if i < 0 {
		return false, fmt.Errorf("delete %q: %w", id, ErrTaskNotFound)
	}

	doc.Tasks = append(doc.Tasks[:i], doc.Tasks[i+1:]...)
	return r.save(doc)
}

// Toggle flips the task's done state.
func (r *Repository) Toggle(id string) (bool, error) {
	return r.Update(id, func(t *Task) { t.Done = !t.Done })
}

// Archive hides the task from the active list without deleting it.
func (r *Repository) Archive(id string) (bool, error) {
	return r.Update(id, func(t *Task) { t.Archived = true })
}

// Unarchive restores an archived task to the active list.
func (r *Repository) Unarchive(id string) (bool, error) {
	return r.Update(id, func(t *Task) { t.Archived = false })
}

// Move places the task at the given position, shifting its neighbors.
// Positions outside the list clamp to the nearest end.
func (r *Repository) Move(id string, position int) (bool, error) {
	doc, err := r.load()
	if err != nil {
		return false, err
	}
	i := doc.taskIndex(id)
	if i < 0 {
		return false, fmt.Errorf("move %q: %w", id, ErrTaskNotFound)
	}

	task := doc.Tasks[i]
	doc.Tasks = append(doc.Tasks[:i], doc.Tasks[i+1:]...)
	if position < 0 {
		position = 0
	}
	if position > len(doc.Tasks) {
		position = len(doc.Tasks)
	}
	doc.Tasks = append(doc.Tasks[:position], append([]Task{task}, doc.Tasks[position:]...)...)

	return r.save(doc)
}

// Get returns a copy of the task with the given ID.
func (r *Repository) Get(id string) (Task, error) {
	doc, err := r.load()
	if err != nil {
		return Task{}, err
	}
	task, ok := doc.Get(id)
	if !ok {
		return Task{}, fmt.Errorf("get %q: %w", id, ErrTaskNotFound)
	}
	return task, nil
}

// List returns tasks matching the filter, in position order.
func (r *Repository) List(filter Filter) ([]Task, error) {
	doc, err := r.load()
	if err != nil {
		return nil, err
	}

	out := make([]Task, 0, len(doc.Tasks))
	for _, t := range doc.Tasks {
		switch filter {
		case FilterActive:
			if t.Archived {
				continue
			}
		case FilterArchived:
			if !t.Archived {
				continue
			}
		}
		out = append(out, t)
	}
	return out, nil
}

// Find returns tasks whose title or notes contain the query,
// case-insensitively, in position order. An empty query matches nothing.
func (r *Repository) Find(query string) ([]Task, error) {
	if query == "" {
		return nil, nil
	}
	doc, err := r.load()
	if err != nil {
		return nil, err
	}

	var out []Task
	for _, t := range doc.Tasks {
		if t.matches(query) {
			out = append(out, t)
		}
	}
	return out, nil
}
