// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package index

import "github.com/pdiddy/paper-explorer/pkg/types"

// MessageType tags a request sent to the index worker.
type MessageType string

const (
	MsgAdd         MessageType = "add"
	MsgSearch      MessageType = "search"
	MsgSignalReady MessageType = "signalReady"
	MsgReset       MessageType = "reset"
)

// Message is a request to the index worker. Docs is set for MsgAdd;
// Query and Limit for MsgSearch; Cycle for MsgReset.
type Message struct {
	Type  MessageType
	Docs  []types.IndexDocument
	Query string
	Limit int
	Cycle uint64
}

// EventType tags a notification sent by the index worker.
type EventType string

const (
	EventIndexStatus   EventType = "indexStatus"
	EventSearchResults EventType = "searchResults"
	EventError         EventType = "error"
)

// Search error strings carried in Event.Err.
const (
	ErrTextNotReady    = "Index not ready"
	ErrTextUnavailable = "Search index is not available"
)

// Event is a notification from the index worker.
//
// EventIndexStatus carries Status. EventSearchResults carries the Query
// it answers, its Results, and Err when the search could not run.
// EventError carries Message and, optionally, Detail. Every event carries
// the Cycle of the last reset the worker processed before emitting it.
type Event struct {
	Type    EventType
	Cycle   uint64
	Status  types.IndexState
	Query   string
	Results []string
	Err     string
	Message string
	Detail  string
}
