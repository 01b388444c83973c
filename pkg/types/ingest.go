// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// TaskStatus is the state of one ingestion task. It only ever moves from
// TaskPending to TaskDone or TaskError.
type TaskStatus string

const (
	TaskPending TaskStatus = "pending"
	TaskDone    TaskStatus = "done"
	TaskError   TaskStatus = "error"
)

// Settled reports whether the status is terminal.
func (s TaskStatus) Settled() bool {
	return s == TaskDone || s == TaskError
}

// IngestionTask tracks one shard through fetch and decompression.
type IngestionTask struct {
	ID       string     `json:"id" yaml:"id"`
	FilePath string     `json:"file_path" yaml:"file_path"`
	Status   TaskStatus `json:"status" yaml:"status"`
	Err      string     `json:"error,omitempty" yaml:"error,omitempty"`
}

// IndexState is the lifecycle state of the search index worker. States
// only move forward.
type IndexState int

const (
	IndexUninitialized IndexState = iota
	IndexAcceptingWrites
	IndexReady
)

func (s IndexState) String() string {
	switch s {
	case IndexUninitialized:
		return "uninitialized"
	case IndexAcceptingWrites:
		return "accepting-writes"
	case IndexReady:
		return "ready"
	default:
		return "unknown"
	}
}

// IndexDocument is the reduced form of a Paper that the search index
// stores.
type IndexDocument struct {
	ID       string `json:"id" yaml:"id"`
	Title    string `json:"title" yaml:"title"`
	Abstract string `json:"abstract" yaml:"abstract"`
}

// NewIndexDocument reduces p to the fields the search index covers.
func NewIndexDocument(p Paper) IndexDocument {
	return IndexDocument{ID: p.ID, Title: p.Title, Abstract: p.Abstract}
}
