// Package model holds the domain types shared across the mining
// pipeline: jobs, raw per-contact cards, normalized candidates, and the
// canonical persons/affiliations rows they aggregate into.
package model

import (
	"time"

	"github.com/google/uuid"
)

// JobType classifies the kind of input a job was created with.
type JobType string

const (
	JobTypeURL   JobType = "url"
	JobTypePDF   JobType = "pdf"
	JobTypeExcel JobType = "excel"
	JobTypeWord  JobType = "word"
	JobTypeCSV   JobType = "csv"
	JobTypeOther JobType = "other"
)

// IsFile reports whether a job type routes through the File Orchestrator.
func (t JobType) IsFile() bool {
	switch t {
	case JobTypePDF, JobTypeExcel, JobTypeWord, JobTypeCSV, JobTypeOther:
		return true
	default:
		return false
	}
}

// Strategy is the miner-selection strategy recorded on a job.
type Strategy string

const (
	StrategyAuto       Strategy = "auto"
	StrategyPlaywright Strategy = "playwright"
	StrategyHTTP       Strategy = "http"
)

// Status is the lifecycle state of a Job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusBlocked   Status = "blocked"
)

// Terminal reports whether s is one of the terminal job states.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusBlocked:
		return true
	default:
		return false
	}
}

// MiningMode selects which miner sequence the Orchestrator runs for a
// URL job.
type MiningMode string

const (
	ModeQuick MiningMode = "quick"
	ModeFull  MiningMode = "full"
	ModeAI    MiningMode = "ai"
)

// LoginConfig carries optional directory-miner credentials.
type LoginConfig struct {
	LoginURL string `json:"login_url,omitempty"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	Password string `json:"password,omitempty"`
}

// JobConfig is the typed configuration record for the recognized job
// config keys. Unknown keys are ignored by construction: callers
// populate this struct from a raw map via config.ParseJobConfig rather
// than passing the map through the pipeline.
type JobConfig struct {
	MiningMode       MiningMode   `json:"mining_mode,omitempty"`
	MaxPages         int          `json:"max_pages,omitempty"`
	MaxDetails       int          `json:"max_details,omitempty"`
	ListPageDelayMs  int          `json:"list_page_delay_ms,omitempty"`
	DetailDelayMs    int          `json:"detail_delay_ms,omitempty"`
	DetailURLPattern string       `json:"detail_url_pattern,omitempty"`
	PageSize         int          `json:"page_size,omitempty"`
	ForcePageCount   int          `json:"force_page_count,omitempty"`
	TotalTimeoutMs   int          `json:"total_timeout,omitempty"`
	SkipDetails      bool         `json:"skip_details,omitempty"`
	Login            *LoginConfig `json:"login,omitempty"`
}

// Job is the persisted unit of work.
type Job struct {
	ID                    uuid.UUID
	OrganizerID           uuid.UUID
	Name                  string
	Type                  JobType
	Input                 string
	Strategy              Strategy
	SiteProfile           string
	Config                JobConfig
	Status                Status
	Progress              int
	TotalPages            int
	ProcessedPages        int
	TotalFound            int
	TotalEmailsRaw        int
	TotalProspectsCreated int
	Stats                 map[string]any
	Error                 *string
	ParentJobID           *uuid.UUID
	RetryJobID            *uuid.UUID
	FileData              []byte
	CreatedAt             time.Time
	StartedAt             *time.Time
	CompletedAt           *time.Time
	UpdatedAt             time.Time
}

// Card is a per-contact record produced by a miner, not yet merged or
// persisted. Field access never branches on which miner
// produced it: every miner fills this one record.
type Card struct {
	CompanyName string
	ContactName string
	JobTitle    string
	Emails      []string // first entry is primary; empty when none found
	Phone       string
	Website     string
	Country     string
	City        string
	Address     string
	Confidence  int // 0-100, may be zero (unset) until scored
	Raw         map[string]any
}

// PrimaryEmail returns the first (canonical) email, or "" when absent.
func (c Card) PrimaryEmail() string {
	if len(c.Emails) == 0 {
		return ""
	}
	return c.Emails[0]
}

// MinerStatus is the terminal/continue outcome of one miner run.
type MinerStatus string

const (
	StatusSuccess       MinerStatus = "SUCCESS"
	StatusPartial       MinerStatus = "PARTIAL"
	StatusEmpty         MinerStatus = "EMPTY"
	StatusError         MinerStatus = "ERROR"
	StatusBlockedResult MinerStatus = "BLOCKED"
	StatusDead          MinerStatus = "DEAD"
)

// Terminal reports whether a miner status ends the fallback sequence.
// Unknown statuses are treated as CONTINUE.
func (s MinerStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusDead
}

// MinerMeta carries provenance and diagnostics about one miner run.
type MinerMeta struct {
	Source          string `json:"source"`
	ExecutionTimeMs int64  `json:"execution_time_ms"`
	Notes           string `json:"notes,omitempty"`
	Error           string `json:"error,omitempty"`
}

// MinerResult is the uniform output of the Miner contract.
type MinerResult struct {
	Status         MinerStatus
	Emails         []string
	Contacts       []Card
	ExtractedLinks []string
	HTTPCode       *int
	Meta           MinerMeta
}

// MiningResult is the raw per-contact row persisted during mining.
type MiningResult struct {
	ID              uuid.UUID
	JobID           uuid.UUID
	OrganizerID     uuid.UUID
	SourceURL       string
	CompanyName     string
	ContactName     string
	JobTitle        string
	Phone           string
	Country         string
	City            string
	Address         string
	Website         string
	Emails          []string
	ConfidenceScore int
	Raw             map[string]any
	CreatedAt       time.Time
}

// Person is the canonical, organizer-scoped contact identity.
type Person struct {
	ID          uuid.UUID
	OrganizerID uuid.UUID
	FirstName   string
	LastName    string
	Email       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SourceType enumerates the provenance of an Affiliation row.
type SourceType string

const (
	SourceMining    SourceType = "mining"
	SourceFile      SourceType = "file"
	SourceDirectory SourceType = "directory"
	SourceAI        SourceType = "ai"
)

// Affiliation is a canonical person-at-organization row.
type Affiliation struct {
	ID          uuid.UUID
	OrganizerID uuid.UUID
	PersonID    uuid.UUID
	CompanyName string
	Position    string
	CountryCode string
	City        string
	Website     string
	Phone       string
	SourceType  SourceType
	SourceRef   string
	MiningJobID *uuid.UUID
	Confidence  float64
	Raw         map[string]any
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Organizer is the tenant every job, person, and affiliation belongs
// to. CRM credentials are out of scope beyond this placeholder shape.
type Organizer struct {
	ID          uuid.UUID
	Name        string
	CRMProvider string
	CRMToken    string
	CreatedAt   time.Time
}

// Candidate is a normalized Card ready for aggregation: the
// Result Normalizer's output, keyed for merge by lower(email).
type Candidate struct {
	Card
}
