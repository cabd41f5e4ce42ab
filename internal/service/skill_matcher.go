package service

import (
	"encoding/json"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/camatch/camatch-api/internal/models"
)

// skillTokenPattern accepts words of at least three characters that start
// with a letter. +, /, #, & and - survive so tokens like "c++", "ci/cd"
// and "r&d" stay intact.
var skillTokenPattern = regexp.MustCompile(`[A-Za-z][A-Za-z0-9+/#&-]{2,}`)

// skillStopwords are connective words stripped from extracted keywords.
var skillStopwords = map[string]struct{}{
	"and": {}, "or": {}, "for": {}, "the": {}, "with": {},
	"using": {}, "from": {}, "into": {}, "via": {}, "to": {},
	"in": {}, "of": {}, "a": {}, "an": {},
}

// SkillMatch describes how well a candidate's keyword set covers a
// course's competency matrix.
type SkillMatch struct {
	MatchedSkills []string `json:"matched_skills"`
	Coverage      float64  `json:"coverage"`
	WeightedScore float64  `json:"weighted_score"`
}

// MatchContext caches competency parses and keyword extractions for a
// single matching run. Keeping the cache run-scoped instead of global
// means concurrent runs never observe each other's state and course
// edits take effect on the next run without explicit invalidation.
type MatchContext struct {
	competencies map[string]map[string]float64
	keywords     map[string]map[string]struct{}
}

// NewMatchContext returns an empty per-run cache.
func NewMatchContext() *MatchContext {
	return &MatchContext{
		competencies: make(map[string]map[string]float64),
		keywords:     make(map[string]map[string]struct{}),
	}
}

// Reset drops every cached parse so the context can be reused.
func (c *MatchContext) Reset() {
	c.competencies = make(map[string]map[string]float64)
	c.keywords = make(map[string]map[string]struct{})
}

// SkillMatcher scores candidates against course competency matrices by
// keyword overlap.
type SkillMatcher struct {
	logger *zap.Logger
}

// NewSkillMatcher constructs a skill matcher.
func NewSkillMatcher(logger *zap.Logger) *SkillMatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SkillMatcher{logger: logger}
}

// Match computes the keyword overlap between one student and one course.
// A course without a competency matrix yields a zero match for every
// candidate.
func (m *SkillMatcher) Match(mc *MatchContext, student *models.StudentProfile, course *models.Course) SkillMatch {
	competencies := m.courseCompetencies(mc, course)
	if len(competencies) == 0 {
		return SkillMatch{MatchedSkills: []string{}}
	}
	keywords := m.studentKeywords(mc, student)

	// Walk skills in sorted order so float accumulation is reproducible
	// across runs.
	skills := make([]string, 0, len(competencies))
	for skill := range competencies {
		skills = append(skills, skill)
	}
	sort.Strings(skills)

	matched := make([]string, 0, len(competencies))
	var matchedWeight, totalWeight float64
	for _, skill := range skills {
		weight := competencies[skill]
		totalWeight += weight
		if _, ok := keywords[skill]; ok {
			matched = append(matched, skill)
			matchedWeight += weight
		}
	}

	match := SkillMatch{
		MatchedSkills: matched,
		Coverage:      float64(len(matched)) / float64(len(competencies)),
	}
	if totalWeight > 0 {
		match.WeightedScore = matchedWeight / totalWeight * 100
	}
	return match
}

// ExtractKeywords tokenizes free text into a sorted, deduplicated keyword
// list. Tokens are lowercased; stopwords and fragments shorter than three
// characters are dropped.
func (m *SkillMatcher) ExtractKeywords(texts ...string) []string {
	seen := make(map[string]struct{})
	for _, text := range texts {
		for _, token := range skillTokenPattern.FindAllString(text, -1) {
			token = strings.ToLower(token)
			if _, stop := skillStopwords[token]; stop {
				continue
			}
			seen[token] = struct{}{}
		}
	}
	keywords := make([]string, 0, len(seen))
	for keyword := range seen {
		keywords = append(keywords, keyword)
	}
	sort.Strings(keywords)
	return keywords
}

// EncodeKeywords serializes keywords as a JSON array for storage. An
// empty set encodes to nil so the column stays NULL.
func (m *SkillMatcher) EncodeKeywords(keywords []string) *string {
	if len(keywords) == 0 {
		return nil
	}
	raw, err := json.Marshal(keywords)
	if err != nil {
		return nil
	}
	encoded := string(raw)
	return &encoded
}

// studentKeywords resolves the effective keyword set for a student:
// stored skill keywords when present, otherwise keywords extracted from
// whatever document text exists.
func (m *SkillMatcher) studentKeywords(mc *MatchContext, student *models.StudentProfile) map[string]struct{} {
	if student == nil {
		return map[string]struct{}{}
	}
	if mc != nil {
		if cached, ok := mc.keywords[student.ID]; ok {
			return cached
		}
	}
	keywords := decodeStoredKeywords(student.SkillKeywords)
	if len(keywords) == 0 {
		var resume, transcript string
		if student.ResumeText != nil {
			resume = *student.ResumeText
		}
		if student.TranscriptText != nil {
			transcript = *student.TranscriptText
		}
		for _, keyword := range m.ExtractKeywords(resume, transcript) {
			keywords[keyword] = struct{}{}
		}
	}
	if mc != nil {
		mc.keywords[student.ID] = keywords
	}
	return keywords
}

func (m *SkillMatcher) courseCompetencies(mc *MatchContext, course *models.Course) map[string]float64 {
	if course == nil || course.CompetencyMatrix == nil {
		return nil
	}
	if mc != nil {
		if cached, ok := mc.competencies[course.ID]; ok {
			return cached
		}
	}
	parsed := parseCompetencyMatrix(*course.CompetencyMatrix)
	if len(parsed) == 0 && strings.TrimSpace(*course.CompetencyMatrix) != "" {
		m.logger.Debug("competency matrix yielded no keywords", zap.String("course_id", course.ID))
	}
	if mc != nil {
		mc.competencies[course.ID] = parsed
	}
	return parsed
}

// decodeStoredKeywords reads a stored keyword column, accepting either a
// JSON array or a comma-separated string.
func decodeStoredKeywords(raw *string) map[string]struct{} {
	keywords := make(map[string]struct{})
	if raw == nil {
		return keywords
	}
	trimmed := strings.TrimSpace(*raw)
	if trimmed == "" {
		return keywords
	}
	var list []string
	if err := json.Unmarshal([]byte(trimmed), &list); err != nil {
		list = strings.Split(trimmed, ",")
	}
	for _, keyword := range list {
		keyword = strings.ToLower(strings.TrimSpace(keyword))
		if keyword != "" {
			keywords[keyword] = struct{}{}
		}
	}
	return keywords
}

// parseCompetencyMatrix accepts the encodings courses arrive with: a JSON
// object nested under "skills", a flat JSON object of keyword weights, a
// JSON list of keywords, or a plain comma-separated string. Malformed
// JSON falls back to comma splitting so a typoed matrix degrades instead
// of vanishing.
func parseCompetencyMatrix(raw string) map[string]float64 {
	competencies := make(map[string]float64)
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return competencies
	}

	if strings.HasPrefix(trimmed, "{") {
		var object map[string]interface{}
		if err := json.Unmarshal([]byte(trimmed), &object); err == nil {
			switch nested := object["skills"].(type) {
			case map[string]interface{}:
				object = nested
			case []interface{}:
				addCompetencyList(competencies, nested)
				return competencies
			}
			for key, value := range object {
				key = strings.ToLower(strings.TrimSpace(key))
				if key == "" {
					continue
				}
				competencies[key] = competencyWeight(value)
			}
			return competencies
		}
	} else if strings.HasPrefix(trimmed, "[") {
		var list []interface{}
		if err := json.Unmarshal([]byte(trimmed), &list); err == nil {
			addCompetencyList(competencies, list)
			return competencies
		}
	}

	for _, part := range strings.Split(trimmed, ",") {
		key := strings.ToLower(strings.TrimSpace(part))
		if key != "" {
			competencies[key] = 1.0
		}
	}
	return competencies
}

func addCompetencyList(competencies map[string]float64, list []interface{}) {
	for _, item := range list {
		str, ok := item.(string)
		if !ok {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(str))
		if key != "" {
			competencies[key] = 1.0
		}
	}
}

// competencyWeight coerces a matrix value into a usable weight. Numbers
// pass through with negatives clamped to zero; anything else counts as a
// plain unweighted requirement.
func competencyWeight(value interface{}) float64 {
	switch v := value.(type) {
	case float64:
		if v < 0 {
			return 0
		}
		return v
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 1
		}
		if parsed < 0 {
			return 0
		}
		return parsed
	default:
		return 1
	}
}
