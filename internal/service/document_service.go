package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/camatch/camatch-api/internal/dto"
	"github.com/camatch/camatch-api/internal/models"
	appErrors "github.com/camatch/camatch-api/pkg/errors"
	"github.com/camatch/camatch-api/pkg/jobs"
	"github.com/camatch/camatch-api/pkg/storage"
	"github.com/camatch/camatch-api/pkg/textract"
)

// DocumentKind selects which profile document an operation targets.
type DocumentKind string

const (
	DocumentKindResume     DocumentKind = "resume"
	DocumentKindTranscript DocumentKind = "transcript"
)

// ParseDocumentKind resolves a route parameter to a known kind.
func ParseDocumentKind(raw string) (DocumentKind, error) {
	switch DocumentKind(strings.ToLower(strings.TrimSpace(raw))) {
	case DocumentKindResume:
		return DocumentKindResume, nil
	case DocumentKindTranscript:
		return DocumentKindTranscript, nil
	default:
		return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown document kind %q", raw))
	}
}

// JobTypeDocumentExtraction labels extraction jobs on the queue.
const JobTypeDocumentExtraction = "document_extraction"

// ExtractionPayload is the queue payload for one extraction pass.
type ExtractionPayload struct {
	ProfileID string
	Kind      DocumentKind
	Path      string
}

type documentProfileStore interface {
	FindByID(ctx context.Context, id string) (*models.StudentProfile, error)
	UpdateResume(ctx context.Context, id, path string, text *string) error
	UpdateTranscript(ctx context.Context, id, path string, text *string) error
	UpdateSkillKeywords(ctx context.Context, id string, keywords *string) error
}

type documentStorage interface {
	SaveStream(filename string, r io.Reader) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	Path(filename string) string
}

type textExtractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

type documentAuditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// Extensions accepted for profile documents, with the content types a
// sniff of their leading bytes may legitimately produce.
var allowedDocumentTypes = map[string][]string{
	".pdf":  {"application/pdf"},
	".docx": {"application/zip", "application/octet-stream"},
	".txt":  {"text/plain"},
}

// DocumentConfig tunes upload limits and link generation.
type DocumentConfig struct {
	MaxUploadSize int64  // bytes, default 10 MiB
	APIPrefix     string // e.g. /api/v1
}

// DocumentService stores resume and transcript uploads, queues text
// extraction, and serves signed download links. Extracted text feeds the
// skill matcher; a document that cannot be extracted simply leaves the
// candidate with an empty skill set.
type DocumentService struct {
	profiles   documentProfileStore
	storage    documentStorage
	extractor  textExtractor
	matcher    *SkillMatcher
	signer     *storage.SignedURLSigner
	dispatcher jobDispatcher
	audit      documentAuditLogger
	logger     *zap.Logger
	maxSize    int64
	apiPrefix  string
}

// NewDocumentService constructs the document service. The job dispatcher
// is attached later via SetDispatcher because the queue handler closes
// over this service.
func NewDocumentService(profiles documentProfileStore, store documentStorage, extractor textExtractor, matcher *SkillMatcher, signer *storage.SignedURLSigner, audit documentAuditLogger, logger *zap.Logger, cfg DocumentConfig) *DocumentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if matcher == nil {
		matcher = NewSkillMatcher(logger)
	}
	maxSize := cfg.MaxUploadSize
	if maxSize <= 0 {
		maxSize = 10 << 20
	}
	return &DocumentService{
		profiles:  profiles,
		storage:   store,
		extractor: extractor,
		matcher:   matcher,
		signer:    signer,
		audit:     audit,
		logger:    logger,
		maxSize:   maxSize,
		apiPrefix: strings.TrimSuffix(cfg.APIPrefix, "/"),
	}
}

// SetDispatcher attaches the extraction queue.
func (s *DocumentService) SetDispatcher(d jobDispatcher) {
	s.dispatcher = d
}

// Upload stores one document for the student and queues extraction. The
// previous file for the same kind is removed when its path changes.
func (s *DocumentService) Upload(ctx context.Context, profileID string, kind DocumentKind, filename string, size int64, file io.Reader) (*dto.DocumentUploadResponse, error) {
	profile, err := s.loadProfile(ctx, profileID)
	if err != nil {
		return nil, err
	}

	if size > s.maxSize {
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("file exceeds the %d byte upload limit", s.maxSize))
	}

	ext := strings.ToLower(filepath.Ext(filename))
	allowedSniffs, ok := allowedDocumentTypes[ext]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrUnsupportedMedia,
			"only PDF, DOCX and TXT documents are accepted")
	}

	head := make([]byte, 512)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read upload")
	}
	head = head[:n]
	if !sniffMatches(head, allowedSniffs) {
		return nil, appErrors.Clone(appErrors.ErrUnsupportedMedia,
			fmt.Sprintf("file content does not match the %s extension", ext))
	}

	relPath := fmt.Sprintf("documents/%s/%s%s", profileID, kind, ext)
	if _, err := s.storage.SaveStream(relPath, io.MultiReader(bytes.NewReader(head), file)); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store document")
	}

	if old := s.pathFor(profile, kind); old != nil && *old != relPath {
		if err := s.storage.Delete(*old); err != nil {
			s.logger.Warn("failed to remove replaced document", zap.String("path", *old), zap.Error(err))
		}
	}

	// Path is recorded immediately; extracted text follows asynchronously
	// and stale text from the replaced file must not linger.
	if err := s.updateDocument(ctx, profileID, kind, relPath, nil); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update profile")
	}

	extraction := "queued"
	if s.dispatcher == nil {
		extraction = "unavailable"
	} else if err := s.dispatcher.Enqueue(jobs.Job{
		ID:   uuid.NewString(),
		Type: JobTypeDocumentExtraction,
		Payload: ExtractionPayload{
			ProfileID: profileID,
			Kind:      kind,
			Path:      relPath,
		},
	}); err != nil {
		s.logger.Warn("failed to queue document extraction",
			zap.String("profile_id", profileID), zap.String("kind", string(kind)), zap.Error(err))
		extraction = "unavailable"
	}

	s.recordUploadAudit(ctx, profile.UserID, kind, relPath)

	return &dto.DocumentUploadResponse{
		Kind:       string(kind),
		Path:       relPath,
		Size:       size,
		Extraction: extraction,
	}, nil
}

// DownloadURL returns a signed, expiring link for the student's document.
func (s *DocumentService) DownloadURL(ctx context.Context, profileID string, kind DocumentKind) (*dto.DocumentURLResponse, error) {
	profile, err := s.loadProfile(ctx, profileID)
	if err != nil {
		return nil, err
	}
	path := s.pathFor(profile, kind)
	if path == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("no %s uploaded", kind))
	}

	token, expiresAt, err := s.signer.Generate(profileID, *path)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download url")
	}
	return &dto.DocumentURLResponse{
		URL:       fmt.Sprintf("%s/students/documents/%s/download?token=%s", s.apiPrefix, kind, token),
		ExpiresAt: expiresAt,
	}, nil
}

// Download resolves a signed token to an open file handle. The token must
// have been issued to the same profile and still reference the current
// stored path.
func (s *DocumentService) Download(ctx context.Context, profileID string, kind DocumentKind, token string) (*os.File, string, error) {
	profile, err := s.loadProfile(ctx, profileID)
	if err != nil {
		return nil, "", err
	}

	tokenProfile, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	if tokenProfile != profileID {
		return nil, "", appErrors.Clone(appErrors.ErrForbidden, "token does not match profile")
	}
	current := s.pathFor(profile, kind)
	if current == nil || *current != relPath {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("no %s uploaded", kind))
	}

	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open document")
	}
	return file, filepath.Base(relPath), nil
}

// HandleExtraction is the queue handler for extraction jobs. Unsupported
// or vanished documents are dropped without retry; transient failures
// propagate so the queue can retry.
func (s *DocumentService) HandleExtraction(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(ExtractionPayload)
	if !ok {
		return fmt.Errorf("unexpected payload type %T for job %s", job.Payload, job.ID)
	}

	text, err := s.extractor.Extract(ctx, s.storage.Path(payload.Path))
	if err != nil {
		if errors.Is(err, textract.ErrUnsupportedFormat) || errors.Is(err, textract.ErrNotFound) {
			s.logger.Warn("document extraction skipped",
				zap.String("profile_id", payload.ProfileID),
				zap.String("kind", string(payload.Kind)),
				zap.Error(err))
			return nil
		}
		return fmt.Errorf("extract %s: %w", payload.Path, err)
	}

	var textPtr *string
	if text != "" {
		textPtr = &text
	}
	if err := s.updateDocument(ctx, payload.ProfileID, payload.Kind, payload.Path, textPtr); err != nil {
		return fmt.Errorf("store extracted text: %w", err)
	}

	if err := s.refreshSkillKeywords(ctx, payload.ProfileID); err != nil {
		return err
	}

	s.logger.Info("document extracted",
		zap.String("profile_id", payload.ProfileID),
		zap.String("kind", string(payload.Kind)),
		zap.Int("characters", len(text)))
	return nil
}

// refreshSkillKeywords re-derives the keyword set from both documents.
func (s *DocumentService) refreshSkillKeywords(ctx context.Context, profileID string) error {
	profile, err := s.profiles.FindByID(ctx, profileID)
	if err != nil {
		return fmt.Errorf("reload profile %s: %w", profileID, err)
	}
	var resume, transcript string
	if profile.ResumeText != nil {
		resume = *profile.ResumeText
	}
	if profile.TranscriptText != nil {
		transcript = *profile.TranscriptText
	}
	keywords := s.matcher.ExtractKeywords(resume, transcript)
	if err := s.profiles.UpdateSkillKeywords(ctx, profileID, s.matcher.EncodeKeywords(keywords)); err != nil {
		return fmt.Errorf("store skill keywords: %w", err)
	}
	return nil
}

func (s *DocumentService) loadProfile(ctx context.Context, profileID string) (*models.StudentProfile, error) {
	if profileID == "" {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "no student profile attached to this account")
	}
	profile, err := s.profiles.FindByID(ctx, profileID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load profile")
	}
	return profile, nil
}

func (s *DocumentService) updateDocument(ctx context.Context, profileID string, kind DocumentKind, path string, text *string) error {
	if kind == DocumentKindTranscript {
		return s.profiles.UpdateTranscript(ctx, profileID, path, text)
	}
	return s.profiles.UpdateResume(ctx, profileID, path, text)
}

func (s *DocumentService) pathFor(profile *models.StudentProfile, kind DocumentKind) *string {
	if kind == DocumentKindTranscript {
		return profile.TranscriptPath
	}
	return profile.ResumePath
}

func (s *DocumentService) recordUploadAudit(ctx context.Context, userID string, kind DocumentKind, path string) {
	if s.audit == nil {
		return
	}
	payload := fmt.Sprintf(`{"kind":%q,"path":%q}`, kind, path)
	entry := &models.AuditLog{
		UserID:    &userID,
		Action:    models.AuditActionDocumentUpload,
		Resource:  "documents",
		NewValues: []byte(payload),
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to record document upload audit log", zap.Error(err))
	}
}

// sniffMatches reports whether the detected content type of the leading
// bytes is one of the allowed types. Short text files sniff as
// text/plain with a charset suffix, hence the prefix comparison.
func sniffMatches(head []byte, allowed []string) bool {
	if len(head) == 0 {
		return false
	}
	detected := http.DetectContentType(head)
	for _, want := range allowed {
		if strings.HasPrefix(detected, want) {
			return true
		}
	}
	return false
}

