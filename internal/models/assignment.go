package models

import "time"

// AssignmentStatus captures the two-state assignment lifecycle.
// Deletion is the only exit from either state.
type AssignmentStatus string

const (
	AssignmentStatusPending   AssignmentStatus = "pending"
	AssignmentStatusConfirmed AssignmentStatus = "confirmed"
)

// Assignment pairs a student with a course slot. Created by the matching
// engine with status pending, or by manual/override paths.
type Assignment struct {
	ID        string           `db:"id" json:"id"`
	StudentID string           `db:"student_id" json:"student_id"`
	CourseID  string           `db:"course_id" json:"course_id"`
	Status    AssignmentStatus `db:"status" json:"status"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt time.Time        `db:"updated_at" json:"updated_at"`
}

// AssignmentFilter narrows assignment listings.
type AssignmentFilter struct {
	CourseID  string
	CourseIDs []string
	StudentID string
	Status    *AssignmentStatus
}

// AssignmentDetail denormalizes student and course display fields for
// reporting. HighlightConflicts counts the other highlighted preferences
// the same student holds.
type AssignmentDetail struct {
	Assignment
	StudentName        *string `db:"student_name" json:"student_name,omitempty"`
	StudentUNI         string  `db:"student_uni" json:"student_uni"`
	StudentEmail       string  `db:"student_email" json:"student_email"`
	CourseCode         string  `db:"course_code" json:"course_code"`
	CourseTitle        string  `db:"course_title" json:"course_title"`
	Instructor         *string `db:"instructor" json:"instructor,omitempty"`
	InstructorEmail    *string `db:"instructor_email" json:"instructor_email,omitempty"`
	HighlightConflicts int     `db:"highlight_conflicts" json:"highlight_conflicts"`
}
