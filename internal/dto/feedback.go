package dto

// SubmitFeedbackRequest records an instructor rating against an assignment.
// Resubmitting for the same assignment overwrites the earlier entry.
type SubmitFeedbackRequest struct {
	AssignmentID string  `json:"assignment_id" validate:"required"`
	Rating       int     `json:"rating" validate:"required,min=1,max=5"`
	Comment      *string `json:"comment,omitempty" validate:"omitempty,max=2000"`
}
