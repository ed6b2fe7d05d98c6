package domain

import "time"

// Case is one case record as assembled from the remote system.
// ID is the natural key; re-fetching the same id replaces the prior copy.
type Case struct {
	ID                  string       `json:"id"`
	Label               string       `json:"label"`
	Title               string       `json:"title"`
	Created             *time.Time   `json:"created,omitempty"`
	Acquired            *time.Time   `json:"acquired,omitempty"`
	ClassificationCode  string       `json:"classification_code"`
	ClassificationTitle string       `json:"classification_title"`
	Status              string       `json:"status"`
	Language            string       `json:"language"`
	PublicityClass      string       `json:"publicity_class"`
	SecurityReasons     []string     `json:"security_reasons,omitempty"`
	Handlings           []Handling   `json:"handlings,omitempty"`
	Records             []CaseRecord `json:"records,omitempty"`
}

// Handling is one handling step of a case, ordered by sequence number
// as returned by the remote system.
type Handling struct {
	Sequence        int        `json:"sequence"`
	SectorName      string     `json:"sector_name,omitempty"`
	SectorID        string     `json:"sector_id,omitempty"`
	Status          string     `json:"status"`
	Created         *time.Time `json:"created,omitempty"`
	NearestDeadline string     `json:"nearest_deadline,omitempty"`
	Links           []string   `json:"links,omitempty"`
}

type CaseRecord struct {
	Title            string     `json:"title"`
	AttachmentNumber *int       `json:"attachment_number,omitempty"`
	PublicityClass   string     `json:"publicity_class"`
	SecurityReason   string     `json:"security_reason,omitempty"`
	VersionSeriesID  string     `json:"version_series_id"`
	NativeID         string     `json:"native_id"`
	Type             string     `json:"type,omitempty"`
	FileURI          string     `json:"file_uri"`
	Language         string     `json:"language"`
	PersonalData     string     `json:"personal_data"`
	Issued           *time.Time `json:"issued,omitempty"`
}

type OrganizationInfo struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Existing  bool       `json:"existing"`
	Type      string     `json:"type,omitempty"`
	Formed    *time.Time `json:"formed,omitempty"`
	Dissolved *time.Time `json:"dissolved,omitempty"`
}

// Organization carries the current info plus its place in the org tree.
// Remote data with more than one parent is a data-integrity error and is
// rejected at decode time, so Parent is at most one.
type Organization struct {
	Info     OrganizationInfo   `json:"info"`
	Parent   *OrganizationInfo  `json:"parent,omitempty"`
	Children []OrganizationInfo `json:"children,omitempty"`
	Sectors  []string           `json:"sectors,omitempty"`
}

// Decisionmaker wraps an organization with its composition payload.
// The composition is opaque to the sync pipeline.
type Decisionmaker struct {
	Organization Organization     `json:"organization"`
	Composition  []map[string]any `json:"composition,omitempty"`
	Language     string           `json:"language"`
}

type TrusteeDocument struct {
	Title string `json:"title"`
	URI   string `json:"uri,omitempty"`
}

type Chairmanship struct {
	Position         string `json:"position"`
	OrganizationID   string `json:"organization_id"`
	OrganizationName string `json:"organization_name"`
}

type Trustee struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	CouncilGroup  string            `json:"council_group,omitempty"`
	Initiatives   []TrusteeDocument `json:"initiatives,omitempty"`
	Resolutions   []TrusteeDocument `json:"resolutions,omitempty"`
	Chairmanships []Chairmanship    `json:"chairmanships,omitempty"`
}

// Queue identifies one of the three named work queues. Failed tasks
// escalate along the fallback chain primary -> retry -> error.
type Queue string

const (
	QueuePrimary Queue = "primary"
	QueueRetry   Queue = "retry"
	QueueError   Queue = "error"
)

// Fallback returns the next queue in the escalation chain, or false
// from the terminal error queue.
func (q Queue) Fallback() (Queue, bool) {
	switch q {
	case QueuePrimary:
		return QueueRetry, true
	case QueueRetry:
		return QueueError, true
	default:
		return "", false
	}
}

func (q Queue) Valid() bool {
	switch q {
	case QueuePrimary, QueueRetry, QueueError:
		return true
	}
	return false
}

// Task origins decide which max-retry window applies before escalation.
const (
	OriginNotification = "notification"
	OriginBulk         = "bulk"
)

// TaskPayload is the serialized body of a queue task. EntityID and Type
// together form the de-duplication key.
type TaskPayload struct {
	EntityID string `json:"id"`
	Type     string `json:"type"`
	Change   string `json:"change,omitempty"`
	Origin   string `json:"origin,omitempty"`
	Moved    bool   `json:"moved,omitempty"`
}

// QueueTask is one persisted unit of synchronization work.
type QueueTask struct {
	ID        string      `json:"id"`
	Queue     Queue       `json:"queue"`
	Payload   TaskPayload `json:"payload"`
	CreatedAt string      `json:"created_at,omitempty"`
	ClaimedBy *string     `json:"claimed_by,omitempty"`
	ClaimedAt *string     `json:"claimed_at,omitempty"`
}

// Created parses the task creation timestamp. A missing or malformed
// timestamp reports false, which workers treat as infinitely old.
func (t QueueTask) Created() (time.Time, bool) {
	if t.CreatedAt == "" {
		return time.Time{}, false
	}
	ts, err := time.Parse(time.RFC3339, t.CreatedAt)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

type Event struct {
	ID       int64  `json:"id"`
	TS       string `json:"ts"`
	Type     string `json:"type"`
	Queue    string `json:"queue,omitempty"`
	EntityID string `json:"entity_id,omitempty"`
	Payload  string `json:"payload_json"`
}
