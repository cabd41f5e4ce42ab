package models

import (
	"strings"
	"time"
)

// Track is the categorical specialization area attached to courses and
// student interests.
type Track string

const (
	TrackFinance      Track = "Financial Engineering & Risk Management"
	TrackML           Track = "Machine Learning & Analytics"
	TrackOptimization Track = "Optimization"
	TrackOperations   Track = "Operations"
	TrackStochastic   Track = "Stochastic Modeling and Simulation"
)

// Tracks lists every known track.
func Tracks() []Track {
	return []Track{TrackFinance, TrackML, TrackOptimization, TrackOperations, TrackStochastic}
}

// ParseTrack resolves a raw string to a known track, tolerating case and
// surrounding whitespace. Unknown values return false.
func ParseTrack(raw string) (Track, bool) {
	needle := strings.ToLower(strings.TrimSpace(raw))
	for _, t := range Tracks() {
		if strings.ToLower(string(t)) == needle {
			return t, true
		}
	}
	return "", false
}

// Course is an offering with finite TA vacancies. CompetencyMatrix holds
// the declared skill requirements in any of the accepted encodings
// (weighted JSON map, optionally nested under "skills", JSON list, or a
// comma-separated string). SimilarCourses is the comma-separated basket of
// related course codes.
type Course struct {
	ID               string    `db:"id" json:"id"`
	Code             string    `db:"code" json:"code"`
	Title            string    `db:"title" json:"title"`
	Instructor       *string   `db:"instructor" json:"instructor,omitempty"`
	InstructorEmail  *string   `db:"instructor_email" json:"instructor_email,omitempty"`
	ProfessorID      *string   `db:"professor_id" json:"professor_id,omitempty"`
	Track            *Track    `db:"track" json:"track,omitempty"`
	Vacancies        int       `db:"vacancies" json:"vacancies"`
	GradeThreshold   *string   `db:"grade_threshold" json:"grade_threshold,omitempty"`
	SimilarCourses   *string   `db:"similar_courses" json:"similar_courses,omitempty"`
	CompetencyMatrix *string   `db:"competency_matrix" json:"competency_matrix,omitempty"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// CourseFilter captures list criteria for the course catalog.
type CourseFilter struct {
	IDs         []string
	Track       *Track
	ProfessorID string
	Search      string
}

// CourseWithCounts enriches a course with application and roster sizes.
type CourseWithCounts struct {
	Course
	ApplicationCount int `db:"application_count" json:"application_count"`
	AssignmentCount  int `db:"assignment_count" json:"assignment_count"`
}
