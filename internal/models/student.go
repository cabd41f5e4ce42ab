package models

import "time"

// StudyLevel enumerates degree levels.
type StudyLevel string

const (
	StudyLevelUndergraduate StudyLevel = "undergraduate"
	StudyLevelMasters       StudyLevel = "masters"
)

// StudentProfile represents a TA candidate. Interests is a free-text list
// of comma-separated track names; ResumeText/TranscriptText hold extracted
// document text and SkillKeywords the keywords derived from it (JSON array
// or comma-separated string, both accepted on read).
type StudentProfile struct {
	ID             string      `db:"id" json:"id"`
	UserID         string      `db:"user_id" json:"user_id"`
	FullName       *string     `db:"full_name" json:"full_name,omitempty"`
	DegreeProgram  *string     `db:"degree_program" json:"degree_program,omitempty"`
	LevelOfStudy   *StudyLevel `db:"level_of_study" json:"level_of_study,omitempty"`
	Interests      *string     `db:"interests" json:"interests,omitempty"`
	ResumePath     *string     `db:"resume_path" json:"resume_path,omitempty"`
	TranscriptPath *string     `db:"transcript_path" json:"transcript_path,omitempty"`
	PhotoURL       *string     `db:"photo_url" json:"photo_url,omitempty"`
	ResumeText     *string     `db:"resume_text" json:"-"`
	TranscriptText *string     `db:"transcript_text" json:"-"`
	SkillKeywords  *string     `db:"skill_keywords" json:"skill_keywords,omitempty"`
	CreatedAt      time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time   `db:"updated_at" json:"updated_at"`

	// Populated by the matching snapshot loader; empty by default.
	Preferences []Preference         `db:"-" json:"preferences,omitempty"`
	Feedback    []InstructorFeedback `db:"-" json:"-"`
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search   string
	Limit    int
	Page     int
	PageSize int
}

// StudentSummary is the denormalized search-result row professors see.
type StudentSummary struct {
	ID       string  `db:"id" json:"id"`
	UNI      string  `db:"uni" json:"uni"`
	Email    string  `db:"email" json:"email"`
	FullName *string `db:"full_name" json:"full_name,omitempty"`
}
