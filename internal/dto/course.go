package dto

import "github.com/camatch/camatch-api/internal/models"

// CreateCourseRequest carries a new course offering.
type CreateCourseRequest struct {
	Code             string  `json:"code" validate:"required,max=20"`
	Title            string  `json:"title" validate:"required,max=300"`
	Instructor       *string `json:"instructor" validate:"omitempty,max=200"`
	InstructorEmail  *string `json:"instructor_email" validate:"omitempty,email"`
	ProfessorID      *string `json:"professor_id" validate:"omitempty,uuid"`
	Track            *string `json:"track"`
	Vacancies        int     `json:"vacancies" validate:"min=0"`
	GradeThreshold   *string `json:"grade_threshold" validate:"omitempty,max=10"`
	SimilarCourses   *string `json:"similar_courses" validate:"omitempty,max=2000"`
	CompetencyMatrix *string `json:"competency_matrix" validate:"omitempty,max=10000"`
}

// UpdateCourseRequest mirrors creation; the full record is replaced.
type UpdateCourseRequest = CreateCourseRequest

// ImportRowError reports one rejected CSV row.
type ImportRowError struct {
	Row   int    `json:"row"`
	Error string `json:"error"`
}

// ImportCoursesResult summarizes a CSV import.
type ImportCoursesResult struct {
	Imported int              `json:"imported"`
	Errors   []ImportRowError `json:"errors"`
}

// ApplicationScore is the scoring preview attached to professor-facing
// applicant rows.
type ApplicationScore struct {
	Composite     float64  `json:"composite"`
	SkillScore    float64  `json:"skill_score"`
	SkillCoverage float64  `json:"skill_coverage"`
	MatchedSkills []string `json:"matched_skills"`
}

// CourseApplication pairs an application with its score preview.
type CourseApplication struct {
	models.ApplicationDetail
	Assigned bool             `json:"assigned"`
	Score    ApplicationScore `json:"score"`
}

// ProfessorOverview is the professor identity response with owned courses.
type ProfessorOverview struct {
	User      models.UserInfo `json:"user"`
	CourseIDs []string        `json:"course_ids"`
}
