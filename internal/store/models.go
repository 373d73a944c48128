package store

import "time"

// StatusExtracted marks a question ingested from a capture.
const StatusExtracted = "extracted"

// Media roles and types written by ingestion.
const (
	MediaRoleImage         = "image"
	MediaTypeQuestionImage = "question_image"
)

// Source is a question bank.
type Source struct {
	ID          int64     `json:"source_id" yaml:"source_id"`
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
}

// Question is one stored question with its raw capture and derived fields.
type Question struct {
	ID                     int64     `json:"question_id" yaml:"question_id"`
	SourceID               int64     `json:"source_id" yaml:"source_id"`
	SourceName             string    `json:"source" yaml:"source"`
	Key                    string    `json:"source_question_key" yaml:"source_question_key"`
	RawHTML                string    `json:"raw_html" yaml:"raw_html"`
	RawMetadataJSON        string    `json:"raw_metadata_json" yaml:"raw_metadata_json"`
	Status                 string    `json:"status" yaml:"status"`
	ExtractionPath         string    `json:"extraction_path,omitempty" yaml:"extraction_path,omitempty"`
	ContextHTML            *string   `json:"question_context_html" yaml:"question_context_html"`
	StemHTML               *string   `json:"question_stem_html" yaml:"question_stem_html"`
	IsParsed               bool      `json:"is_parsed" yaml:"is_parsed"`
	CleanedQuestionHTML    *string   `json:"cleaned_question_html,omitempty" yaml:"cleaned_question_html,omitempty"`
	CleanedAnswersJSON     *string   `json:"cleaned_answers_json,omitempty" yaml:"cleaned_answers_json,omitempty"`
	CleanedExplanationHTML *string   `json:"cleaned_explanation_html,omitempty" yaml:"cleaned_explanation_html,omitempty"`
	ParentID               *int64    `json:"parent_id" yaml:"parent_id"`
	CreatedAt              time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt              time.Time `json:"updated_at" yaml:"updated_at"`
}

// Minimal is the clean-slate context/stem pair. Both are stored or neither.
type Minimal struct {
	ContextHTML string
	StemHTML    string
}

// Parsed holds the output of the per-source parsers.
type Parsed struct {
	QuestionHTML    string
	AnswersJSON     string
	ExplanationHTML string
}

// NewQuestion is the input to InsertQuestion and UpsertQuestion.
type NewQuestion struct {
	SourceID        int64
	Key             string
	RawHTML         string
	RawMetadataJSON string
	ExtractionPath  string
	Minimal         *Minimal
	Parsed          *Parsed
	// CreatedAt defaults to the store clock.
	CreatedAt time.Time
}

// Media is a file attached to a question. RelativePath is relative to the
// media root.
type Media struct {
	ID           int64     `json:"media_id" yaml:"media_id"`
	QuestionID   int64     `json:"question_id" yaml:"question_id"`
	Role         string    `json:"media_role" yaml:"media_role"`
	Type         string    `json:"media_type,omitempty" yaml:"media_type,omitempty"`
	MimeType     string    `json:"mime_type" yaml:"mime_type"`
	RelativePath string    `json:"relative_path" yaml:"relative_path"`
	CreatedAt    time.Time `json:"created_at" yaml:"created_at"`
}

// QuestionFilter narrows ListQuestions.
type QuestionFilter struct {
	SourceID  int64 // 0 = all sources
	RootsOnly bool
	Limit     int // 0 = no limit
}

// LogRecord is a persisted log line.
type LogRecord struct {
	ID        int64     `json:"log_id" yaml:"log_id"`
	Level     string    `json:"level" yaml:"level"`
	Logger    string    `json:"logger_name" yaml:"logger_name"`
	Message   string    `json:"message" yaml:"message"`
	AttrsJSON string    `json:"attrs_json,omitempty" yaml:"attrs_json,omitempty"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}
