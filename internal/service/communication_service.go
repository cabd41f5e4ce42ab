package service

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/camatch/camatch-api/internal/dto"
	"github.com/camatch/camatch-api/internal/models"
	appErrors "github.com/camatch/camatch-api/pkg/errors"
	"github.com/camatch/camatch-api/pkg/jobs"
	"github.com/camatch/camatch-api/pkg/mailer"
)

// JobTypeMailDelivery labels outbound mail jobs on the queue.
const JobTypeMailDelivery = "mail_delivery"

type communicationAssignmentSource interface {
	ListDetails(ctx context.Context, filter models.AssignmentFilter) ([]models.AssignmentDetail, error)
}

// CommunicationService composes messages to assigned students and hands
// each one to the mail queue. Composition is synchronous so the caller
// sees the resolved recipient list; delivery runs on the queue workers.
type CommunicationService struct {
	assignments communicationAssignmentSource
	dispatcher  jobDispatcher
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewCommunicationService constructs the communication service.
func NewCommunicationService(assignments communicationAssignmentSource, dispatcher jobDispatcher, validate *validator.Validate, logger *zap.Logger) *CommunicationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommunicationService{
		assignments: assignments,
		dispatcher:  dispatcher,
		validator:   validate,
		logger:      logger,
	}
}

// Compose resolves recipients from the assignment filter and queues one
// delivery per student. Students holding assignments on several courses
// receive one message per assignment row, mirroring the roster view.
func (s *CommunicationService) Compose(ctx context.Context, req dto.ComposeCommunicationRequest) (*dto.ComposeCommunicationResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid communication payload")
	}

	filter := models.AssignmentFilter{Status: req.Status}
	if req.CourseID != nil {
		filter.CourseID = *req.CourseID
	}
	details, err := s.assignments.ListDetails(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve recipients")
	}

	response := &dto.ComposeCommunicationResponse{
		Subject:    req.Subject,
		Body:       req.Body,
		Recipients: make([]dto.CommunicationRecipient, 0, len(details)),
	}

	for _, detail := range details {
		if detail.StudentEmail == "" {
			s.logger.Warn("skipping recipient without email", zap.String("student_id", detail.StudentID))
			continue
		}
		recipient := dto.CommunicationRecipient{
			StudentID:       detail.StudentID,
			UNI:             detail.StudentUNI,
			Email:           detail.StudentEmail,
			Name:            detail.StudentName,
			CourseCode:      detail.CourseCode,
			InstructorEmail: detail.InstructorEmail,
		}
		response.Recipients = append(response.Recipients, recipient)

		if s.dispatcher == nil {
			continue
		}
		msg := mailer.Message{
			To:      recipient.Email,
			Subject: req.Subject,
			Body:    req.Body,
		}
		if req.CCInstructors && recipient.InstructorEmail != nil && *recipient.InstructorEmail != "" {
			msg.CC = []string{*recipient.InstructorEmail}
		}
		if err := s.dispatcher.Enqueue(jobs.Job{
			ID:      uuid.NewString(),
			Type:    JobTypeMailDelivery,
			Payload: msg,
		}); err != nil {
			s.logger.Warn("failed to queue mail delivery",
				zap.String("to", recipient.Email), zap.Error(err))
			continue
		}
		response.Queued++
	}

	s.logger.Info("communication composed",
		zap.Int("recipients", len(response.Recipients)),
		zap.Int("queued", response.Queued))
	return response, nil
}

// MailWorker delivers queued messages through the configured mailer.
type MailWorker struct {
	mailer mailer.Mailer
	logger *zap.Logger
}

// NewMailWorker constructs a queue handler around a mailer backend.
func NewMailWorker(m mailer.Mailer, logger *zap.Logger) *MailWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MailWorker{mailer: m, logger: logger}
}

// Handle sends one queued message. Errors propagate so the queue retries.
func (w *MailWorker) Handle(ctx context.Context, job jobs.Job) error {
	msg, ok := job.Payload.(mailer.Message)
	if !ok {
		w.logger.Error("unexpected mail payload", zap.String("job_id", job.ID))
		return nil
	}
	return w.mailer.Send(ctx, msg)
}
