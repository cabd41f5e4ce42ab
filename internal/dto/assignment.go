package dto

import "github.com/camatch/camatch-api/internal/models"

// CreateAssignmentRequest is the admin manual-assignment payload. Status
// defaults to pending when omitted.
type CreateAssignmentRequest struct {
	StudentID string                   `json:"student_id" validate:"required,uuid"`
	CourseID  string                   `json:"course_id" validate:"required,uuid"`
	Status    *models.AssignmentStatus `json:"status" validate:"omitempty,oneof=pending confirmed"`
}

// CourseRoster is the professor-facing roster view for one course.
type CourseRoster struct {
	Course      models.Course             `json:"course"`
	Assignments []models.AssignmentDetail `json:"assignments"`
}
