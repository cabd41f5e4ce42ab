package dto

import "github.com/camatch/camatch-api/internal/models"

// MatchRequest scopes a matching run. An empty course list runs the
// engine over the whole catalog.
type MatchRequest struct {
	CourseIDs []string `json:"course_ids,omitempty" validate:"omitempty,dive,required"`
}

// MatchResult is the reporting contract for one matching run: the
// persisted assignments with display fields, plus the profile ids of
// every candidate passed over (one entry per course that skipped them).
type MatchResult struct {
	Assignments     []models.AssignmentDetail `json:"assignments"`
	SkippedStudents []string                  `json:"skipped_students"`
}
