package types

import (
	"time"
)

type DownloadStatus string

const (
	DownloadStatusScheduled    DownloadStatus = "SCHEDULED"
	DownloadStatusRetry        DownloadStatus = "RETRY"
	DownloadStatusRetryPartial DownloadStatus = "RETRY_PARTIAL"
	DownloadStatusSuccess      DownloadStatus = "SUCCESS"
	DownloadStatusFailed       DownloadStatus = "FAILED"
)

// Terminal statuses are only left by a forced refresh.
func (s DownloadStatus) Terminal() bool {
	return s == DownloadStatusSuccess || s == DownloadStatusFailed
}

// MetaAttribute is a single trait of an item.
type MetaAttribute struct {
	Key   string `json:"key"`
	Value string `json:"value,omitempty"`
}

// Meta is the downloadable metadata payload of an item.
type Meta struct {
	Name        string          `json:"name,omitempty"`
	Description string          `json:"description,omitempty"`
	ExternalURI string          `json:"external_uri,omitempty"`
	Content     []string        `json:"content,omitempty"`
	Attributes  []MetaAttribute `json:"attributes,omitempty"`
	// Providers lists which sources contributed to this payload.
	Providers []string `json:"providers,omitempty"`
}

// Merge overlays non-empty fields of other onto a copy of m. Provider lists
// are unioned. Used to fold partial download results onto surviving data.
func (m *Meta) Merge(other *Meta) *Meta {
	if m == nil {
		if other == nil {
			return nil
		}
		cp := *other
		return &cp
	}
	out := *m
	if other == nil {
		return &out
	}
	if other.Name != "" {
		out.Name = other.Name
	}
	if other.Description != "" {
		out.Description = other.Description
	}
	if other.ExternalURI != "" {
		out.ExternalURI = other.ExternalURI
	}
	if len(other.Content) > 0 {
		out.Content = other.Content
	}
	if len(other.Attributes) > 0 {
		out.Attributes = other.Attributes
	}
	out.Providers = unionStrings(m.Providers, other.Providers)
	return &out
}

func unionStrings(a, b []string) []string {
	if len(a) == 0 {
		return b
	}
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, v := range a {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	for _, v := range b {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}

// DownloadEntry is the persisted state of one metadata download, keyed by the
// same composite id as the aggregate it enriches. It carries its own version
// so scheduling does not contend with aggregate writes.
//
// Counter semantics: Downloads counts successful executions, Fails counts
// failed executions, Retries counts automatic reschedules within the current
// generation. A forced refresh starts a new generation (Retries reset).
//
// An attempt at the retry ceiling settles terminally: SUCCESS when any
// partial data was collected across the generation, FAILED otherwise.
type DownloadEntry struct {
	ID     string         `gorm:"column:id;primaryKey;type:text" json:"id"`
	Status DownloadStatus `gorm:"column:status;not null;index;type:text" json:"status"`

	Data            *Meta    `gorm:"column:data;serializer:json" json:"data,omitempty"`
	FailedProviders []string `gorm:"column:failed_providers;serializer:json" json:"failed_providers,omitempty"`

	Downloads int `gorm:"column:downloads;not null;default:0" json:"downloads"`
	Fails     int `gorm:"column:fails;not null;default:0" json:"fails"`
	Retries   int `gorm:"column:retries;not null;default:0" json:"retries"`

	ErrorMessage string `gorm:"column:error_message" json:"error_message,omitempty"`

	ScheduledAt *time.Time `gorm:"column:scheduled_at" json:"scheduled_at,omitempty"`
	SucceedAt   *time.Time `gorm:"column:succeed_at" json:"succeed_at,omitempty"`
	FailedAt    *time.Time `gorm:"column:failed_at" json:"failed_at,omitempty"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;not null" json:"updated_at"`

	Version int64 `gorm:"column:version;not null;default:0" json:"version"`
}

func (DownloadEntry) TableName() string { return "download_entry" }

func (e *DownloadEntry) Key() string { return e.ID }

func (e *DownloadEntry) GetVersion() int64 { return e.Version }

func (e *DownloadEntry) IsEmpty() bool { return e.Status == "" }

// DownloadPriority orders scheduling tiers, highest first.
type DownloadPriority int

const (
	PriorityBestEffort DownloadPriority = iota
	PriorityLow
	PriorityMedium
	PriorityHigh
	PriorityImmediate
)

func (p DownloadPriority) String() string {
	switch p {
	case PriorityImmediate:
		return "immediate"
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	case PriorityLow:
		return "low"
	default:
		return "best_effort"
	}
}

// DownloadTask is an in-memory scheduling request for one entry.
type DownloadTask struct {
	ID       string           `json:"id"`
	Priority DownloadPriority `json:"priority"`
	// Force re-runs entries in terminal states and starts a new generation.
	Force bool `json:"force,omitempty"`
	// Suppress skips the downstream notification after writeback. Used by
	// bulk re-indexing pipelines.
	Suppress    bool      `json:"suppress,omitempty"`
	ScheduledAt time.Time `json:"scheduled_at"`
}
