package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camatch/camatch-api/internal/models"
)

func TestSkillMatcherWeightedOverlap(t *testing.T) {
	matcher := NewSkillMatcher(nil)
	course := &models.Course{
		ID:               "course-1",
		CompetencyMatrix: stringPtr(`{"skills":{"gurobi":0.7,"excel":0.3}}`),
	}
	student := &models.StudentProfile{
		ID:            "student-1",
		SkillKeywords: stringPtr(`["gurobi","python"]`),
	}

	match := matcher.Match(NewMatchContext(), student, course)
	assert.Equal(t, []string{"gurobi"}, match.MatchedSkills)
	assert.InDelta(t, 0.5, match.Coverage, 1e-9)
	assert.InDelta(t, 70.0, match.WeightedScore, 1e-9)
}

func TestSkillMatcherAcceptsEveryMatrixEncoding(t *testing.T) {
	matcher := NewSkillMatcher(nil)
	student := &models.StudentProfile{
		ID:            "student-1",
		SkillKeywords: stringPtr("Python, Simulation"),
	}

	cases := []struct {
		name   string
		matrix string
	}{
		{"flat json map", `{"python":1,"simulation":1}`},
		{"nested skills map", `{"skills":{"python":1,"simulation":1}}`},
		{"json list", `["Python","Simulation"]`},
		{"nested skills list", `{"skills":["python","simulation"]}`},
		{"comma separated", "Python, Simulation"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			course := &models.Course{ID: "c-" + tc.name, CompetencyMatrix: &tc.matrix}
			match := matcher.Match(NewMatchContext(), student, course)
			assert.InDelta(t, 100.0, match.WeightedScore, 1e-9, "matrix %q", tc.matrix)
			assert.InDelta(t, 1.0, match.Coverage, 1e-9)
		})
	}
}

func TestSkillMatcherMalformedMatrixDegradesToCommas(t *testing.T) {
	matcher := NewSkillMatcher(nil)
	student := &models.StudentProfile{
		ID:            "student-1",
		SkillKeywords: stringPtr(`["simulation"]`),
	}
	// Unparseable JSON splits on commas, so the readable fragments survive.
	course := &models.Course{ID: "c1", CompetencyMatrix: stringPtr(`{broken json, simulation`)}

	match := matcher.Match(NewMatchContext(), student, course)
	assert.Equal(t, []string{"simulation"}, match.MatchedSkills)
	assert.InDelta(t, 0.5, match.Coverage, 1e-9)
	assert.InDelta(t, 50.0, match.WeightedScore, 1e-9)
}

func TestSkillMatcherNoMatrixMeansZero(t *testing.T) {
	matcher := NewSkillMatcher(nil)
	student := &models.StudentProfile{ID: "s1", SkillKeywords: stringPtr(`["python"]`)}

	match := matcher.Match(NewMatchContext(), student, &models.Course{ID: "c1"})
	assert.Empty(t, match.MatchedSkills)
	assert.Zero(t, match.Coverage)
	assert.Zero(t, match.WeightedScore)

	blank := &models.Course{ID: "c2", CompetencyMatrix: stringPtr("   ")}
	match = matcher.Match(NewMatchContext(), student, blank)
	assert.Zero(t, match.WeightedScore)
}

func TestSkillMatcherFallsBackToDocumentText(t *testing.T) {
	matcher := NewSkillMatcher(nil)
	course := &models.Course{
		ID:               "course-1",
		CompetencyMatrix: stringPtr("python, gurobi"),
	}
	student := &models.StudentProfile{
		ID:         "student-1",
		ResumeText: stringPtr("Modeled MIPs with Gurobi callbacks"),
	}

	match := matcher.Match(NewMatchContext(), student, course)
	assert.Equal(t, []string{"gurobi"}, match.MatchedSkills)
	assert.InDelta(t, 50.0, match.WeightedScore, 1e-9)
}

func TestSkillMatcherExtractKeywords(t *testing.T) {
	matcher := NewSkillMatcher(nil)

	keywords := matcher.ExtractKeywords("Optimization and machine-learning with Python for R&D teams")
	assert.Equal(t, []string{"machine-learning", "optimization", "python", "r&d", "teams"}, keywords)

	// Short fragments and duplicates across inputs collapse.
	keywords = matcher.ExtractKeywords("Go, C++, SQL", "sql go ml")
	assert.Equal(t, []string{"c++", "sql"}, keywords)

	assert.Empty(t, matcher.ExtractKeywords("", "a an of to"))
}

func TestSkillMatcherEncodeKeywords(t *testing.T) {
	matcher := NewSkillMatcher(nil)

	encoded := matcher.EncodeKeywords([]string{"python", "sql"})
	require.NotNil(t, encoded)
	assert.JSONEq(t, `["python","sql"]`, *encoded)

	assert.Nil(t, matcher.EncodeKeywords(nil))
	assert.Nil(t, matcher.EncodeKeywords([]string{}))
}

func TestMatchContextCachesParsesPerRun(t *testing.T) {
	matcher := NewSkillMatcher(nil)
	mc := NewMatchContext()
	course := &models.Course{ID: "course-1", CompetencyMatrix: stringPtr("python")}
	student := &models.StudentProfile{ID: "student-1", SkillKeywords: stringPtr(`["python"]`)}

	first := matcher.Match(mc, student, course)
	assert.InDelta(t, 100.0, first.WeightedScore, 1e-9)

	// Edits during a run are invisible; the cached parse wins.
	course.CompetencyMatrix = stringPtr("haskell")
	student.SkillKeywords = nil
	again := matcher.Match(mc, student, course)
	assert.InDelta(t, 100.0, again.WeightedScore, 1e-9)

	// A fresh context observes the new state.
	fresh := matcher.Match(NewMatchContext(), student, course)
	assert.Zero(t, fresh.WeightedScore)

	mc.Reset()
	reset := matcher.Match(mc, student, course)
	assert.Zero(t, reset.WeightedScore)
}
