// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the paper-explorer
// pipeline: the paper record, shard and task bookkeeping, query inputs,
// and configuration.
package types

import "strings"

// Author is one entry of a paper's ordered author list.
type Author struct {
	First string `json:"first" yaml:"first"`
	Last  string `json:"last" yaml:"last"`
}

// String returns "First Last", or whichever half is present.
func (a Author) String() string {
	return strings.TrimSpace(a.First + " " + a.Last)
}

// Paper is one research-paper record of the corpus. ID is unique across
// every shard of a load; the JSON field names follow the published shard
// format.
type Paper struct {
	// ID is the opaque primary key.
	ID string `json:"id" yaml:"id"`

	// Title is the paper title.
	Title string `json:"title" yaml:"title"`

	// Abstract is the paper abstract.
	Abstract string `json:"abstract" yaml:"abstract"`

	// Authors lists the paper authors in source order.
	Authors []Author `json:"authors" yaml:"authors"`

	// Year is the publication year, 0 when unknown.
	Year int `json:"year" yaml:"year"`

	// Journal is the publishing venue.
	Journal string `json:"journal" yaml:"journal"`

	// Topics holds the paper's topic labels. The first entry is the
	// primary topic used when sorting by topic.
	Topics []string `json:"topic" yaml:"topic"`

	// DateAdded is a lexicographically sortable timestamp
	// (e.g. "2024-03-01T12:00:00Z").
	DateAdded string `json:"date_added" yaml:"date_added"`

	// URL optionally links to the paper.
	URL string `json:"url,omitempty" yaml:"url,omitempty"`
}

// HasTopic reports whether topic is one of the paper's topics.
func (p Paper) HasTopic(topic string) bool {
	for _, t := range p.Topics {
		if t == topic {
			return true
		}
	}
	return false
}

// PrimaryTopic returns the first topic, or "" when there is none.
func (p Paper) PrimaryTopic() string {
	if len(p.Topics) == 0 {
		return ""
	}
	return p.Topics[0]
}

// Batch is the decoded body of one shard.
type Batch struct {
	Papers []Paper `json:"papers" yaml:"papers"`
}

// Manifest is the index document listing shard paths relative to the
// content base URL.
type Manifest struct {
	Files []string `json:"files" yaml:"files"`
}

// ShardRef identifies one shard to fetch.
type ShardRef struct {
	// Path is the relative path listed in the manifest.
	Path string `json:"path" yaml:"path"`

	// URL is Path resolved against the content base URL.
	URL string `json:"url" yaml:"url"`
}
