package dto

import "github.com/camatch/camatch-api/internal/models"

// ComposeCommunicationRequest targets assigned students by course/status
// filter and carries the message to send. CCInstructors copies each
// course's instructor on the student's message.
type ComposeCommunicationRequest struct {
	CourseID      *string                  `json:"course_id,omitempty"`
	Status        *models.AssignmentStatus `json:"status,omitempty" validate:"omitempty,oneof=pending confirmed"`
	Subject       string                   `json:"subject" validate:"required,max=300"`
	Body          string                   `json:"body" validate:"required,max=10000"`
	CCInstructors bool                     `json:"cc_instructors"`
}

// CommunicationRecipient identifies one resolved addressee.
type CommunicationRecipient struct {
	StudentID       string  `json:"student_id"`
	UNI             string  `json:"uni"`
	Email           string  `json:"email"`
	Name            *string `json:"name,omitempty"`
	CourseCode      string  `json:"course_code"`
	InstructorEmail *string `json:"instructor_email,omitempty"`
}

// ComposeCommunicationResponse returns the composed payload and how many
// deliveries were queued.
type ComposeCommunicationResponse struct {
	Subject    string                   `json:"subject"`
	Body       string                   `json:"body"`
	Recipients []CommunicationRecipient `json:"recipients"`
	Queued     int                      `json:"queued"`
}
