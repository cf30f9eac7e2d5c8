package db

import (
	"encoding/json"
	"time"
)

// Lesson maps catalog.lessons, the active record set. Archived lessons keep
// their row with status=archived so an identity is never reused.
type Lesson struct {
	LessonID          int64           `gorm:"column:lesson_id;primaryKey;autoIncrement"`
	LessonUUID        string          `gorm:"column:lesson_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	Title             string          `gorm:"column:title;type:text;not null"`
	NormalizedTitle   string          `gorm:"column:normalized_title;type:text;not null"`
	Summary           string          `gorm:"column:summary;type:text;not null;default:''"`
	Content           string          `gorm:"column:content;type:text;not null;default:''"`
	Metadata          json.RawMessage `gorm:"column:metadata;type:jsonb"`
	ContentLanguage   string          `gorm:"column:content_language;type:text;not null;default:''"`
	FingerprintKind   *string         `gorm:"column:fingerprint_kind;type:text"`
	FingerprintDigest *string         `gorm:"column:fingerprint_digest;type:text"`
	Unresolvable      bool            `gorm:"column:unresolvable;type:boolean;not null;default:false"`
	Status            string          `gorm:"column:status;type:text;not null;default:active"`
	CreatedAt         time.Time       `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt         time.Time       `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (Lesson) TableName() string { return "catalog.lessons" }

// LessonEmbedding maps catalog.lesson_embeddings.
type LessonEmbedding struct {
	LessonEmbeddingID   int64     `gorm:"column:lesson_embedding_id;primaryKey;autoIncrement"`
	LessonEmbeddingUUID string    `gorm:"column:lesson_embedding_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	LessonID            int64     `gorm:"column:lesson_id;type:bigint;not null"`
	ModelName           string    `gorm:"column:model_name;type:text;not null"`
	ModelVersion        string    `gorm:"column:model_version;type:text;not null"`
	Embedding           string    `gorm:"column:embedding;type:vector(1024);not null"`
	EmbeddedAt          time.Time `gorm:"column:embedded_at;type:timestamptz;not null;default:now()"`
	ServiceEndpoint     string    `gorm:"column:service_endpoint;type:text;not null;default:''"`
}

func (LessonEmbedding) TableName() string { return "catalog.lesson_embeddings" }

// Submission maps catalog.submissions, candidate lessons awaiting review.
type Submission struct {
	SubmissionID      int64           `gorm:"column:submission_id;primaryKey;autoIncrement"`
	SubmissionUUID    string          `gorm:"column:submission_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	Title             string          `gorm:"column:title;type:text;not null"`
	NormalizedTitle   string          `gorm:"column:normalized_title;type:text;not null"`
	Summary           string          `gorm:"column:summary;type:text;not null;default:''"`
	Content           string          `gorm:"column:content;type:text;not null;default:''"`
	Metadata          json.RawMessage `gorm:"column:metadata;type:jsonb"`
	SourceDocument    *string         `gorm:"column:source_document;type:text"`
	ContentLanguage   string          `gorm:"column:content_language;type:text;not null;default:''"`
	FingerprintKind   *string         `gorm:"column:fingerprint_kind;type:text"`
	FingerprintDigest *string         `gorm:"column:fingerprint_digest;type:text"`
	Status            string          `gorm:"column:status;type:text;not null;default:submitted"`
	CreatedAt         time.Time       `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt         time.Time       `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (Submission) TableName() string { return "catalog.submissions" }

// SimilarityEvidence maps catalog.similarity_evidence: one append-only row
// per (submission, candidate lesson) pair, immutable once written.
type SimilarityEvidence struct {
	EvidenceID     int64           `gorm:"column:evidence_id;primaryKey;autoIncrement"`
	EvidenceUUID   string          `gorm:"column:evidence_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	SubmissionID   int64           `gorm:"column:submission_id;type:bigint;not null"`
	LessonID       int64           `gorm:"column:lesson_id;type:bigint;not null"`
	LexicalScore   float64         `gorm:"column:lexical_score;type:double precision;not null"`
	AttributeScore float64         `gorm:"column:attribute_score;type:double precision;not null"`
	SemanticScore  *float64        `gorm:"column:semantic_score;type:double precision"`
	CombinedScore  float64         `gorm:"column:combined_score;type:double precision;not null"`
	Classification string          `gorm:"column:classification;type:text;not null"`
	MatchDetails   json.RawMessage `gorm:"column:match_details;type:jsonb"`
	CreatedAt      time.Time       `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (SimilarityEvidence) TableName() string { return "catalog.similarity_evidence" }

// ArchiveEntry maps catalog.archive_entries: a frozen copy of an archived
// lesson plus the canonical survivor it points to. Written exactly once per
// archived identity, never mutated.
type ArchiveEntry struct {
	ArchiveEntryID    int64           `gorm:"column:archive_entry_id;primaryKey;autoIncrement"`
	ArchiveEntryUUID  string          `gorm:"column:archive_entry_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	LessonUUID        string          `gorm:"column:lesson_uuid;type:uuid;not null;unique"`
	CanonicalLessonID int64           `gorm:"column:canonical_lesson_id;type:bigint;not null"`
	GroupSignature    string          `gorm:"column:group_signature;type:text;not null"`
	Reason            string          `gorm:"column:reason;type:text;not null"`
	Snapshot          json.RawMessage `gorm:"column:snapshot;type:jsonb;not null"`
	CreatedAt         time.Time       `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (ArchiveEntry) TableName() string { return "catalog.archive_entries" }

// GroupResolution maps catalog.group_resolutions: the terminal state of a
// reviewed duplicate group. One row per group signature; outcome is either
// "resolved" or "dismissed" and never changes. The unique signature index is
// what rejects a concurrent second resolve.
type GroupResolution struct {
	ResolutionID   int64           `gorm:"column:resolution_id;primaryKey;autoIncrement"`
	ResolutionUUID string          `gorm:"column:resolution_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	GroupSignature string          `gorm:"column:group_signature;type:text;not null;unique"`
	Outcome        string          `gorm:"column:outcome;type:text;not null"`
	MemberUUIDs    json.RawMessage `gorm:"column:member_uuids;type:jsonb;not null"`
	Decisions      json.RawMessage `gorm:"column:decisions;type:jsonb"`
	DecidedBy      *string         `gorm:"column:decided_by;type:text"`
	CreatedAt      time.Time       `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (GroupResolution) TableName() string { return "catalog.group_resolutions" }

// Bookmark maps catalog.bookmarks, a dependent reference that must be
// rewritten to the canonical lesson on archival.
type Bookmark struct {
	BookmarkID   int64     `gorm:"column:bookmark_id;primaryKey;autoIncrement"`
	BookmarkUUID string    `gorm:"column:bookmark_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	UserUUID     string    `gorm:"column:user_uuid;type:uuid;not null;uniqueIndex:idx_bookmarks_user_lesson"`
	LessonID     int64     `gorm:"column:lesson_id;type:bigint;not null;uniqueIndex:idx_bookmarks_user_lesson"`
	CreatedAt    time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (Bookmark) TableName() string { return "catalog.bookmarks" }

// CollectionItem maps catalog.collection_items, the second dependent
// reference rewritten on archival.
type CollectionItem struct {
	CollectionItemID   int64     `gorm:"column:collection_item_id;primaryKey;autoIncrement"`
	CollectionItemUUID string    `gorm:"column:collection_item_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	CollectionUUID     string    `gorm:"column:collection_uuid;type:uuid;not null;uniqueIndex:idx_collection_items_collection_lesson"`
	LessonID           int64     `gorm:"column:lesson_id;type:bigint;not null;uniqueIndex:idx_collection_items_collection_lesson"`
	Position           int       `gorm:"column:position;type:integer;not null;default:0"`
	CreatedAt          time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (CollectionItem) TableName() string { return "catalog.collection_items" }

// DetectionEvent maps catalog.detection_events, the append-only diagnostics
// row written per detection run.
type DetectionEvent struct {
	DetectionEventID   int64           `gorm:"column:detection_event_id;primaryKey;autoIncrement"`
	DetectionEventUUID string          `gorm:"column:detection_event_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	SubmissionID       int64           `gorm:"column:submission_id;type:bigint;not null"`
	FingerprintKind    string          `gorm:"column:fingerprint_kind;type:text;not null"`
	ExactMatch         bool            `gorm:"column:exact_match;type:boolean;not null;default:false"`
	SemanticDegraded   bool            `gorm:"column:semantic_degraded;type:boolean;not null;default:false"`
	CandidatesScored   int             `gorm:"column:candidates_scored;type:integer;not null;default:0"`
	CandidatesReturned int             `gorm:"column:candidates_returned;type:integer;not null;default:0"`
	CandidatesSkipped  int             `gorm:"column:candidates_skipped;type:integer;not null;default:0"`
	ScorePercentiles   json.RawMessage `gorm:"column:score_percentiles;type:jsonb"`
	CreatedAt          time.Time       `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (DetectionEvent) TableName() string { return "catalog.detection_events" }

// Operator maps catalog.operators, the reviewers allowed to resolve or
// dismiss duplicate groups.
type Operator struct {
	OperatorID         int64      `gorm:"column:operator_id;primaryKey;autoIncrement"`
	OperatorUUID       string     `gorm:"column:operator_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	Username           string     `gorm:"column:username;type:text;not null;unique"`
	PasswordHash       string     `gorm:"column:password_hash;type:text;not null"`
	MustChangePassword bool       `gorm:"column:must_change_password;type:boolean;not null;default:false"`
	CreatedAt          time.Time  `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	LastLoginAt        *time.Time `gorm:"column:last_login_at;type:timestamptz"`
}

func (Operator) TableName() string { return "catalog.operators" }

// Session maps catalog.sessions.
type Session struct {
	SessionID  string    `gorm:"column:session_id;type:text;primaryKey"`
	OperatorID int64     `gorm:"column:operator_id;type:bigint;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	LastSeenAt time.Time `gorm:"column:last_seen_at;type:timestamptz;not null;default:now()"`
	ExpiresAt  time.Time `gorm:"column:expires_at;type:timestamptz;not null"`
}

func (Session) TableName() string { return "catalog.sessions" }

func autoMigrateModels() []any {
	return []any{
		&Lesson{},
		&LessonEmbedding{},
		&Submission{},
		&SimilarityEvidence{},
		&ArchiveEntry{},
		&GroupResolution{},
		&Bookmark{},
		&CollectionItem{},
		&DetectionEvent{},
		&Operator{},
		&Session{},
	}
}
