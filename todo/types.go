// Package todo is the task model persisted through the tiered store. The
// whole task list lives as one JSON document under a single store key, so a
// tier demotion mid-session degrades durability without ever splitting the
// list across tiers.
package todo

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

// DocumentSchemaVersion is the version written into new documents.
const DocumentSchemaVersion = 1

var (
	// ErrTaskNotFound is returned when an operation names a task ID the
	// document does not contain.
	ErrTaskNotFound = errors.New("task not found")
	// ErrCorruptDocument is returned when the stored document cannot be
	// decoded or fails schema validation.
	ErrCorruptDocument = errors.New("corrupt todo document")
)

// Task is a single todo item.
type Task struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Notes     string    `json:"notes,omitempty"`
	Done      bool      `json:"done"`
	Archived  bool      `json:"archived,omitempty"`
	Position  int       `json:"position"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Document is the stored task list.
type Document struct {
	SchemaVersion int    `json:"schema_version"`
	Tasks         []Task `json:"tasks"`
}

const documentSchema = `{
	"type": "object",
	"required": ["schema_version", "tasks"],
	"properties": {
		"schema_version": {"type": "integer", "minimum": 1},
		"tasks": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["id", "title", "position"],
				"properties": {
					"id": {"type": "string", "minLength": 1},
					"title": {"type": "string", "minLength": 1},
					"notes": {"type": "string"},
					"done": {"type": "boolean"},
					"archived": {"type": "boolean"},
					"position": {"type": "integer", "minimum": 0}
				}
			}
		}
	}
}`

var compiledDocumentSchema = jsonschema.MustCompileString("todo.schema.json", documentSchema)

// ParseDocument decodes and validates a stored document. All failures wrap
// ErrCorruptDocument; the caller decides whether to surface or reset.
func ParseDocument(data []byte) (*Document, error) {
	var obj any
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptDocument, err)
	}
	if err := compiledDocumentSchema.Validate(obj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptDocument, err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptDocument, err)
	}
	return &doc, nil
}

// Encode returns the canonical JSON encoding of the document.
func (d *Document) Encode() ([]byte, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encode todo document: %w", err)
	}
	return data, nil
}

// taskIndex returns the slice index of the task with the given ID, or -1.
func (d *Document) taskIndex(id string) int {
	for i := range d.Tasks {
		if d.Tasks[i].ID == id {
			return i
		}
	}
	return -1
}

// Get returns a copy of the task with the given ID.
func (d *Document) Get(id string) (Task, bool) {
	if i := d.taskIndex(id); i >= 0 {
		return d.Tasks[i], true
	}
	return Task{}, false
}

// renumber rewrites Position to match slice order.
func (d *Document) renumber() {
	for i := range d.Tasks {
		d.Tasks[i].Position = i
	}
}

// matches reports whether the task's title or notes contain the query,
// case-insensitively.
func (t *Task) matches(query string) bool {
	q := strings.ToLower(query)
	return strings.Contains(strings.ToLower(t.Title), q) ||
		strings.Contains(strings.ToLower(t.Notes), q)
}
