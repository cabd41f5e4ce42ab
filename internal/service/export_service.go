package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/camatch/camatch-api/internal/dto"
	"github.com/camatch/camatch-api/internal/models"
	"github.com/camatch/camatch-api/internal/repository"
	appErrors "github.com/camatch/camatch-api/pkg/errors"
	"github.com/camatch/camatch-api/pkg/export"
	"github.com/camatch/camatch-api/pkg/jobs"
	"github.com/camatch/camatch-api/pkg/storage"
)

type exportJobStore interface {
	Create(ctx context.Context, job *models.ExportJob) error
	GetByID(ctx context.Context, id string) (*models.ExportJob, error)
	Update(ctx context.Context, id string, params repository.UpdateExportJobParams) error
	ListByCreator(ctx context.Context, createdBy string, limit int) ([]models.ExportJob, error)
	ListQueued(ctx context.Context, limit int) ([]models.ExportJob, error)
	ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ExportJob, error)
}

type exportAssignmentSource interface {
	ListDetails(ctx context.Context, filter models.AssignmentFilter) ([]models.AssignmentDetail, error)
}

type exportApplicantSource interface {
	ListUnassigned(ctx context.Context) ([]models.UnassignedApplication, error)
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

type exportFileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportConfig governs export generation, recovery, and cleanup.
type ExportConfig struct {
	APIPrefix       string
	ResultTTL       time.Duration
	CleanupInterval time.Duration
	MaxRetries      int
}

// ExportResult captures generation output metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       models.ExportFormat
	ExpiresAt    time.Time
}

// ExportDownload wraps a resolved file handle for streaming.
type ExportDownload struct {
	File      *os.File
	Filename  string
	Format    models.ExportFormat
	ExpiresAt time.Time
}

// ExportService owns the roster-export lifecycle: queueing jobs, rendering
// CSV/PDF rosters off the queue, signing result URLs, and purging expired
// files.
type ExportService struct {
	repo        exportJobStore
	assignments exportAssignmentSource
	applicants  exportApplicantSource
	storage     exportFileStorage
	signer      *storage.SignedURLSigner
	queue       jobDispatcher
	csv         csvRenderer
	pdf         pdfRenderer
	validator   *validator.Validate
	logger      *zap.Logger
	cfg         ExportConfig
}

// NewExportService constructs an ExportService. The queue dispatcher is
// attached afterwards via SetDispatcher because the queue's handler closes
// over this service.
func NewExportService(repo exportJobStore, assignments exportAssignmentSource, applicants exportApplicantSource, store exportFileStorage, signer *storage.SignedURLSigner, validate *validator.Validate, logger *zap.Logger, cfg ExportConfig) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &ExportService{
		repo:        repo,
		assignments: assignments,
		applicants:  applicants,
		storage:     store,
		signer:      signer,
		csv:         export.NewCSVExporter(),
		pdf:         export.NewPDFExporter(),
		validator:   validate,
		logger:      logger,
		cfg:         cfg,
	}
}

// SetDispatcher wires the jobs queue used for asynchronous processing.
func (s *ExportService) SetDispatcher(queue jobDispatcher) {
	s.queue = queue
}

// Queue validates the request, persists a QUEUED job row, and dispatches it.
func (s *ExportService) Queue(ctx context.Context, actorID string, req dto.CreateExportRequest) (*dto.ExportJobResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid export request")
	}

	jobType := req.Type
	if jobType == "" {
		jobType = models.ExportTypeRoster
	}

	job := &models.ExportJob{
		Type:      jobType,
		Params:    models.ExportJobParams{CourseIDs: req.CourseIDs, Status: req.Status, Format: req.Format},
		Status:    models.ExportStatusQueued,
		Progress:  0,
		CreatedBy: actorID,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create export job")
	}

	if err := s.dispatch(job); err != nil {
		s.markDispatchFailure(ctx, job.ID)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue export job")
	}

	return &dto.ExportJobResponse{ID: job.ID, Type: job.Type, Status: job.Status, Progress: job.Progress}, nil
}

func (s *ExportService) dispatch(job *models.ExportJob) error {
	if s.queue == nil {
		return fmt.Errorf("export queue not configured")
	}
	return s.queue.Enqueue(jobs.Job{ID: job.ID, Type: string(job.Type)})
}

func (s *ExportService) markDispatchFailure(ctx context.Context, jobID string) {
	status := models.ExportStatusFailed
	progress := 100
	msg := "failed to enqueue job"
	now := time.Now().UTC()
	if err := s.repo.Update(ctx, jobID, repository.UpdateExportJobParams{
		Status:       &status,
		Progress:     &progress,
		ErrorMessage: &msg,
		FinishedAt:   &now,
	}); err != nil {
		s.logger.Warn("failed to mark export job failed", zap.String("job_id", jobID), zap.Error(err))
	}
}

// Status returns job progress. Non-admin callers may only read their own jobs.
func (s *ExportService) Status(ctx context.Context, id, actorID string, role models.UserRole) (*dto.ExportStatusResponse, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load export job")
	}
	if role != models.RoleAdmin && job.CreatedBy != actorID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "export job belongs to another user")
	}

	resp := &dto.ExportStatusResponse{
		ID:         job.ID,
		Type:       job.Type,
		Status:     job.Status,
		Progress:   job.Progress,
		ResultURL:  job.ResultURL,
		CreatedAt:  job.CreatedAt,
		FinishedAt: job.FinishedAt,
	}
	if job.ErrorMessage != nil && *job.ErrorMessage != "" {
		resp.Error = job.ErrorMessage
	}
	return resp, nil
}

// ListRecent returns the caller's jobs, newest first.
func (s *ExportService) ListRecent(ctx context.Context, actorID string, limit int) ([]dto.ExportStatusResponse, error) {
	rows, err := s.repo.ListByCreator(ctx, actorID, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list export jobs")
	}
	out := make([]dto.ExportStatusResponse, 0, len(rows))
	for _, job := range rows {
		item := dto.ExportStatusResponse{
			ID:         job.ID,
			Type:       job.Type,
			Status:     job.Status,
			Progress:   job.Progress,
			ResultURL:  job.ResultURL,
			CreatedAt:  job.CreatedAt,
			FinishedAt: job.FinishedAt,
		}
		if job.ErrorMessage != nil && *job.ErrorMessage != "" {
			item.Error = job.ErrorMessage
		}
		out = append(out, item)
	}
	return out, nil
}

// ResolveDownload validates the signed token against the job and opens the
// stored file for streaming.
func (s *ExportService) ResolveDownload(ctx context.Context, jobID, token string) (*ExportDownload, error) {
	tokenJobID, relPath, expiresAt, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	if tokenJobID != jobID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token does not match job")
	}

	job, err := s.repo.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load export job")
	}
	if job.Status != models.ExportStatusFinished {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "export not ready")
	}
	if job.ResultURL == nil || !strings.HasSuffix(*job.ResultURL, token) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token mismatch")
	}

	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export file")
	}
	return &ExportDownload{
		File:      file,
		Filename:  filepath.Base(relPath),
		Format:    job.Params.Format,
		ExpiresAt: expiresAt,
	}, nil
}

// Generate renders the dataset for a job and persists the output file,
// returning the signed result metadata. Called by the worker.
func (s *ExportService) Generate(ctx context.Context, job *models.ExportJob) (*ExportResult, error) {
	if job == nil {
		return nil, fmt.Errorf("export job nil")
	}

	dataset, title, err := s.buildDataset(ctx, job)
	if err != nil {
		return nil, err
	}

	var payload []byte
	switch job.Params.Format {
	case models.ExportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case models.ExportFormatPDF:
		payload, err = s.pdf.Render(dataset, title)
	default:
		err = fmt.Errorf("unsupported export format %s", job.Params.Format)
	}
	if err != nil {
		return nil, err
	}

	filename := fmt.Sprintf("%s_%s.%s", job.Type, time.Now().UTC().Format("20060102_150405"), job.Params.Format)
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		return nil, err
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	url := fmt.Sprintf("%s/admin/exports/%s/download?token=%s", prefix, job.ID, token)

	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          url,
		Format:       job.Params.Format,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *ExportService) buildDataset(ctx context.Context, job *models.ExportJob) (export.Dataset, string, error) {
	switch job.Type {
	case models.ExportTypeRoster:
		return s.buildRosterDataset(ctx, job.Params)
	case models.ExportTypeSkipped:
		return s.buildSkippedDataset(ctx)
	default:
		return export.Dataset{}, "", fmt.Errorf("unsupported export type %s", job.Type)
	}
}

func (s *ExportService) buildRosterDataset(ctx context.Context, params models.ExportJobParams) (export.Dataset, string, error) {
	details, err := s.assignments.ListDetails(ctx, models.AssignmentFilter{
		CourseIDs: params.CourseIDs,
		Status:    params.Status,
	})
	if err != nil {
		return export.Dataset{}, "", err
	}

	headers := []string{"Course Code", "Course Title", "Instructor", "Student UNI", "Student Name", "Student Email", "Status", "Assigned At"}
	rows := make([]map[string]string, 0, len(details))
	for _, d := range details {
		rows = append(rows, map[string]string{
			"Course Code":   d.CourseCode,
			"Course Title":  d.CourseTitle,
			"Instructor":    derefString(d.Instructor),
			"Student UNI":   d.StudentUNI,
			"Student Name":  derefString(d.StudentName),
			"Student Email": d.StudentEmail,
			"Status":        string(d.Status),
			"Assigned At":   d.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return export.Dataset{Headers: headers, Rows: rows}, "TA Assignment Roster", nil
}

func (s *ExportService) buildSkippedDataset(ctx context.Context) (export.Dataset, string, error) {
	apps, err := s.applicants.ListUnassigned(ctx)
	if err != nil {
		return export.Dataset{}, "", err
	}

	headers := []string{"Student UNI", "Student Name", "Student Email", "Course Code", "Course Title", "Rank", "Highlighted"}
	rows := make([]map[string]string, 0, len(apps))
	for _, a := range apps {
		rows = append(rows, map[string]string{
			"Student UNI":   a.StudentUNI,
			"Student Name":  derefString(a.StudentName),
			"Student Email": a.StudentEmail,
			"Course Code":   a.CourseCode,
			"Course Title":  a.CourseTitle,
			"Rank":          fmt.Sprintf("%d", a.Rank),
			"Highlighted":   fmt.Sprintf("%t", a.Highlighted),
		})
	}
	return export.Dataset{Headers: headers, Rows: rows}, "Unassigned Candidates", nil
}

// RecoverPendingJobs replays QUEUED jobs after a process restart.
func (s *ExportService) RecoverPendingJobs(ctx context.Context) {
	pending, err := s.repo.ListQueued(ctx, 50)
	if err != nil {
		s.logger.Warn("failed to recover queued export jobs", zap.Error(err))
		return
	}
	for i := range pending {
		if err := s.dispatch(&pending[i]); err != nil {
			s.logger.Warn("failed to requeue export job", zap.String("job_id", pending[i].ID), zap.Error(err))
		}
	}
}

// StartCleanup boots a goroutine purging expired export files periodically.
func (s *ExportService) StartCleanup(ctx context.Context) {
	if s.cfg.CleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.cleanupExpired(ctx)
			}
		}
	}()
}

func (s *ExportService) cleanupExpired(ctx context.Context) {
	cutoff := time.Now().Add(-s.cfg.ResultTTL)
	for {
		finished, err := s.repo.ListFinishedBefore(ctx, cutoff, 100)
		if err != nil {
			s.logger.Warn("export cleanup list failed", zap.Error(err))
			return
		}
		if len(finished) == 0 {
			break
		}
		for _, job := range finished {
			if job.ResultURL == nil {
				continue
			}
			token := extractExportToken(*job.ResultURL)
			if token == "" {
				continue
			}
			_, relPath, _, err := s.signer.Parse(token, true)
			if err != nil {
				continue
			}
			if err := s.storage.Delete(relPath); err != nil {
				s.logger.Warn("export cleanup delete failed", zap.String("job_id", job.ID), zap.Error(err))
			}
		}
		if len(finished) < 100 {
			break
		}
	}
	if _, err := s.storage.CleanupOlderThan(s.cfg.ResultTTL); err != nil {
		s.logger.Warn("export filesystem cleanup failed", zap.Error(err))
	}
}

func extractExportToken(url string) string {
	idx := strings.LastIndex(url, "token=")
	if idx < 0 {
		return ""
	}
	return url[idx+len("token="):]
}

func derefString(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}

type exportGenerator interface {
	Generate(ctx context.Context, job *models.ExportJob) (*ExportResult, error)
}

// ExportWorker bridges queue jobs to export generation, driving the job
// row through PROCESSING and into FINISHED or FAILED.
type ExportWorker struct {
	repo       exportJobStore
	generator  exportGenerator
	logger     *zap.Logger
	maxRetries int
}

// NewExportWorker constructs a worker.
func NewExportWorker(repo exportJobStore, generator exportGenerator, maxRetries int, logger *zap.Logger) *ExportWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &ExportWorker{repo: repo, generator: generator, logger: logger, maxRetries: maxRetries}
}

// Handle processes one queue job.
func (w *ExportWorker) Handle(ctx context.Context, job jobs.Job) error {
	record, err := w.repo.GetByID(ctx, job.ID)
	if err != nil {
		return err
	}

	processing := models.ExportStatusProcessing
	progress := 10
	started := time.Now().UTC()
	if err := w.repo.Update(ctx, job.ID, repository.UpdateExportJobParams{
		Status:    &processing,
		Progress:  &progress,
		StartedAt: &started,
	}); err != nil {
		return err
	}

	result, err := w.generator.Generate(ctx, record)
	if err != nil {
		msg := err.Error()
		now := time.Now().UTC()
		if job.Attempt >= w.maxRetries {
			failed := models.ExportStatusFailed
			progress = 100
			if updateErr := w.repo.Update(ctx, job.ID, repository.UpdateExportJobParams{
				Status:       &failed,
				Progress:     &progress,
				ErrorMessage: &msg,
				FinishedAt:   &now,
			}); updateErr != nil {
				w.logger.Warn("failed to mark export job failed", zap.String("job_id", job.ID), zap.Error(updateErr))
			}
		} else {
			queued := models.ExportStatusQueued
			reset := 0
			if updateErr := w.repo.Update(ctx, job.ID, repository.UpdateExportJobParams{
				Status:       &queued,
				Progress:     &reset,
				ErrorMessage: &msg,
			}); updateErr != nil {
				w.logger.Warn("failed to requeue export job", zap.String("job_id", job.ID), zap.Error(updateErr))
			}
		}
		return err
	}

	finished := models.ExportStatusFinished
	progress = 100
	now := time.Now().UTC()
	clear := ""
	if err := w.repo.Update(ctx, job.ID, repository.UpdateExportJobParams{
		Status:       &finished,
		Progress:     &progress,
		ResultURL:    &result.URL,
		ErrorMessage: &clear,
		FinishedAt:   &now,
	}); err != nil {
		w.logger.Warn("failed to mark export job finished", zap.String("job_id", job.ID), zap.Error(err))
		return err
	}
	return nil
}
