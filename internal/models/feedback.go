package models

import "time"

// InstructorFeedback is a 1-5 rating an instructor leaves against an
// assignment. One entry per assignment; resubmission updates in place.
type InstructorFeedback struct {
	ID           string    `db:"id" json:"id"`
	AssignmentID string    `db:"assignment_id" json:"assignment_id"`
	StudentID    string    `db:"student_id" json:"student_id"`
	CourseID     string    `db:"course_id" json:"course_id"`
	Rating       int       `db:"rating" json:"rating"`
	Comment      *string   `db:"comment" json:"comment,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// CourseFeedbackSummary aggregates a course's reviews. AverageRating is
// nil when no feedback exists (the "no data" sentinel).
type CourseFeedbackSummary struct {
	CourseID      string   `json:"course_id"`
	AverageRating *float64 `json:"average_rating"`
	ReviewCount   int      `json:"review_count"`
	Comments      []string `json:"comments"`
}
