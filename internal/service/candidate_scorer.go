package service

import (
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/camatch/camatch-api/internal/models"
)

// Priority bands in order of significance. Compare walks them from the
// top, so a faculty request beats any grade and a grade beats any rank;
// lower bands only ever break ties among the higher ones.
const (
	bandFacultyRequested = iota
	bandGradeInCourse
	bandBasketAverage
	bandPreferenceRank
	bandSkillMatch
	bandFeedback
	bandTrackInterest
	bandCompleteness
	bandCount
)

const (
	trackInterestBonus = 15.0
	completenessBonus  = 5.0
	rankStep           = 10.0
	maxGradePoints     = 4.33
)

// letterGradePoints is the letter-grade table on the 4.33 scale.
var letterGradePoints = map[string]float64{
	"A+": 4.33, "A": 4.00, "A-": 3.67,
	"B+": 3.33, "B": 3.00, "B-": 2.67,
	"C+": 2.33, "C": 2.00, "C-": 1.67,
	"D+": 1.33, "D": 1.00, "D-": 0.67,
	"F": 0.00,
}

// ScoreVector holds one value per priority band.
type ScoreVector [bandCount]float64

// Compare orders two vectors lexicographically. It returns a positive
// value when v outranks other, a negative value when it trails, and zero
// on a full tie.
func (v ScoreVector) Compare(other ScoreVector) int {
	for band := 0; band < bandCount; band++ {
		switch {
		case v[band] > other[band]:
			return 1
		case v[band] < other[band]:
			return -1
		}
	}
	return 0
}

// Composite collapses the vector into a single display number for audit
// output and application previews. Ordering decisions always go through
// Compare; the collapse can lose precision between adjacent bands once
// fractional grades are involved.
func (v ScoreVector) Composite() float64 {
	return v[bandFacultyRequested]*1e12 +
		v[bandGradeInCourse]*1e9 +
		v[bandBasketAverage]*1e6 +
		v[bandPreferenceRank]*1e3 +
		v[bandSkillMatch]*1e2 +
		v[bandFeedback]*10 +
		v[bandTrackInterest] +
		v[bandCompleteness]
}

// CandidateScore is the scored result for one student against one course.
type CandidateScore struct {
	StudentID string      `json:"student_id"`
	CourseID  string      `json:"course_id"`
	Vector    ScoreVector `json:"-"`
	Composite float64     `json:"composite"`
	Skills    SkillMatch  `json:"skills"`
}

// CandidateScorer derives priority vectors for matching runs and for
// professor-facing application previews.
type CandidateScorer struct {
	matcher *SkillMatcher
	logger  *zap.Logger
}

// NewCandidateScorer constructs a scorer.
func NewCandidateScorer(matcher *SkillMatcher, logger *zap.Logger) *CandidateScorer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if matcher == nil {
		matcher = NewSkillMatcher(logger)
	}
	return &CandidateScorer{matcher: matcher, logger: logger}
}

// Score computes the priority vector for one candidate-course pair. The
// preference must belong to the student and reference the course; every
// absent or unreadable input contributes a neutral zero.
func (s *CandidateScorer) Score(mc *MatchContext, student *models.StudentProfile, course *models.Course, pref *models.Preference) CandidateScore {
	var vector ScoreVector
	if pref != nil {
		if pref.FacultyRequested {
			vector[bandFacultyRequested] = 1
		}
		vector[bandGradeInCourse] = GradeScore(pref.GradeInCourse)
		vector[bandBasketAverage] = GradeScore(pref.BasketGradeAverage)
		vector[bandPreferenceRank] = RankScore(pref.Rank)
	}

	skills := s.matcher.Match(mc, student, course)
	vector[bandSkillMatch] = skills.WeightedScore
	vector[bandFeedback] = FeedbackScoreFor(course.ID, student.Feedback)
	if hasTrackInterest(student, course) {
		vector[bandTrackInterest] = trackInterestBonus
	}
	if hasExtractedDocuments(student) {
		vector[bandCompleteness] = completenessBonus
	}

	return CandidateScore{
		StudentID: student.ID,
		CourseID:  course.ID,
		Vector:    vector,
		Composite: vector.Composite(),
		Skills:    skills,
	}
}

// GradeScore converts a stored grade onto a 0-100 scale. Letter grades go
// through the points table; numeric strings up to the GPA ceiling are
// rescaled and larger ones are treated as percentages. Missing or
// unreadable grades contribute nothing.
func GradeScore(raw *string) float64 {
	if raw == nil {
		return 0
	}
	grade := strings.TrimSpace(*raw)
	if grade == "" {
		return 0
	}
	if points, ok := letterGradePoints[strings.ToUpper(grade)]; ok {
		return points / maxGradePoints * 100
	}
	value, err := strconv.ParseFloat(grade, 64)
	if err != nil {
		return 0
	}
	if value <= maxGradePoints {
		value = value / maxGradePoints * 100
	}
	return clampScore(value)
}

// RankScore rewards better preference ranks: rank 1 earns the full 100
// and every later rank costs ten points, bottoming out at zero.
func RankScore(rank int) float64 {
	if rank < 1 {
		rank = 1
	}
	score := 100 - float64(rank-1)*rankStep
	if score < 0 {
		return 0
	}
	return score
}

func clampScore(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 100 {
		return 100
	}
	return value
}

// hasTrackInterest reports whether the course's track appears in the
// student's comma-separated interest list, ignoring case and whitespace.
func hasTrackInterest(student *models.StudentProfile, course *models.Course) bool {
	if student == nil || course == nil || course.Track == nil || student.Interests == nil {
		return false
	}
	target := strings.ToLower(strings.TrimSpace(string(*course.Track)))
	if target == "" {
		return false
	}
	for _, interest := range strings.Split(*student.Interests, ",") {
		if strings.ToLower(strings.TrimSpace(interest)) == target {
			return true
		}
	}
	return false
}

// hasExtractedDocuments reports whether any document text was extracted
// for the student.
func hasExtractedDocuments(student *models.StudentProfile) bool {
	if student == nil {
		return false
	}
	if student.ResumeText != nil && strings.TrimSpace(*student.ResumeText) != "" {
		return true
	}
	if student.TranscriptText != nil && strings.TrimSpace(*student.TranscriptText) != "" {
		return true
	}
	return false
}
