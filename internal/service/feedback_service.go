package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/camatch/camatch-api/internal/dto"
	"github.com/camatch/camatch-api/internal/models"
	appErrors "github.com/camatch/camatch-api/pkg/errors"
)

const feedbackSummaryCachePrefix = "feedback:summary:"

// NormalizeRating maps a 1-5 instructor rating onto the 0-100 scoring
// scale. Out-of-range input clamps to the nearest bound.
func NormalizeRating(rating int) float64 {
	if rating < 1 {
		rating = 1
	}
	if rating > 5 {
		rating = 5
	}
	return float64(rating) / 5 * 100
}

// FeedbackScoreFor aggregates prior instructor feedback into a single
// scoring signal. Ratings earned on the course itself average at full
// strength; a student whose history comes only from other courses gets
// the overall average at half strength; no history contributes nothing.
func FeedbackScoreFor(courseID string, entries []models.InstructorFeedback) float64 {
	if len(entries) == 0 {
		return 0
	}
	var courseSum, allSum float64
	var courseCount int
	for _, entry := range entries {
		normalized := NormalizeRating(entry.Rating)
		allSum += normalized
		if entry.CourseID == courseID {
			courseSum += normalized
			courseCount++
		}
	}
	if courseCount > 0 {
		return courseSum / float64(courseCount)
	}
	return allSum / float64(len(entries)) * 0.5
}

type feedbackStore interface {
	UpsertByAssignment(ctx context.Context, feedback *models.InstructorFeedback) (*models.InstructorFeedback, error)
	ListByCourse(ctx context.Context, courseID string) ([]models.InstructorFeedback, error)
}

type feedbackAssignmentStore interface {
	FindByID(ctx context.Context, id string) (*models.Assignment, error)
	UpdateStatus(ctx context.Context, id string, status models.AssignmentStatus) error
}

type feedbackAuditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// FeedbackService records instructor ratings and serves per-course
// summaries.
type FeedbackService struct {
	feedback    feedbackStore
	assignments feedbackAssignmentStore
	audit       feedbackAuditLogger
	cache       *CacheService
	validator   *validator.Validate
	logger      *zap.Logger
	summaryTTL  time.Duration
}

// NewFeedbackService constructs a feedback service.
func NewFeedbackService(
	feedback feedbackStore,
	assignments feedbackAssignmentStore,
	audit feedbackAuditLogger,
	cache *CacheService,
	validate *validator.Validate,
	logger *zap.Logger,
	summaryTTL time.Duration,
) *FeedbackService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if summaryTTL <= 0 {
		summaryTTL = 5 * time.Minute
	}
	return &FeedbackService{
		feedback:    feedback,
		assignments: assignments,
		audit:       audit,
		cache:       cache,
		validator:   validate,
		logger:      logger,
		summaryTTL:  summaryTTL,
	}
}

// Submit upserts the rating for an assignment. Feedback against a pending
// assignment confirms it: an instructor reviewing their TA is treated as
// accepting the match.
func (s *FeedbackService) Submit(ctx context.Context, actorUserID string, req dto.SubmitFeedbackRequest) (*models.InstructorFeedback, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid feedback payload")
	}

	assignment, err := s.assignments.FindByID(ctx, req.AssignmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}

	entry := &models.InstructorFeedback{
		AssignmentID: assignment.ID,
		StudentID:    assignment.StudentID,
		CourseID:     assignment.CourseID,
		Rating:       req.Rating,
		Comment:      req.Comment,
	}
	saved, err := s.feedback.UpsertByAssignment(ctx, entry)
	if err != nil {
		return nil, err
	}

	if assignment.Status == models.AssignmentStatusPending {
		if err := s.assignments.UpdateStatus(ctx, assignment.ID, models.AssignmentStatusConfirmed); err != nil {
			return nil, err
		}
		s.recordAudit(ctx, actorUserID, models.AuditActionAssignmentConfirm, assignment.ID)
		s.logger.Info("assignment confirmed by feedback",
			zap.String("assignment_id", assignment.ID),
			zap.String("course_id", assignment.CourseID))
	}

	s.invalidateSummary(ctx, assignment.CourseID)
	return saved, nil
}

// CourseSummary aggregates all feedback left on a course. The boolean
// reports whether the payload came from cache.
func (s *FeedbackService) CourseSummary(ctx context.Context, courseID string) (*models.CourseFeedbackSummary, bool, error) {
	cacheKey := feedbackSummaryCachePrefix + courseID
	if s.cache.Enabled() {
		var cached models.CourseFeedbackSummary
		if hit, err := s.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
			return &cached, true, nil
		}
	}

	entries, err := s.feedback.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, false, err
	}

	summary := &models.CourseFeedbackSummary{
		CourseID:    courseID,
		ReviewCount: len(entries),
		Comments:    make([]string, 0, len(entries)),
	}
	var sum float64
	for _, entry := range entries {
		sum += float64(entry.Rating)
		if entry.Comment != nil && *entry.Comment != "" {
			summary.Comments = append(summary.Comments, *entry.Comment)
		}
	}
	if len(entries) > 0 {
		average := sum / float64(len(entries))
		summary.AverageRating = &average
	}

	if s.cache.Enabled() {
		_ = s.cache.Set(ctx, cacheKey, summary, s.summaryTTL)
	}
	return summary, false, nil
}

func (s *FeedbackService) invalidateSummary(ctx context.Context, courseID string) {
	if err := s.cache.Invalidate(ctx, feedbackSummaryCachePrefix+courseID); err != nil {
		s.logger.Warn("feedback summary invalidation failed", zap.String("course_id", courseID), zap.Error(err))
	}
}

func (s *FeedbackService) recordAudit(ctx context.Context, userID, action, resourceID string) {
	if s.audit == nil {
		return
	}
	log := &models.AuditLog{
		ID:         uuid.NewString(),
		Action:     action,
		Resource:   "assignments",
		ResourceID: &resourceID,
		CreatedAt:  time.Now(),
	}
	if userID != "" {
		log.UserID = &userID
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("audit log write failed", zap.String("action", action), zap.Error(err))
	}
}
