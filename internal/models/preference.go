package models

import "time"

// Preference is a student's ranked request to be considered for a course.
// Rank 1 is the most preferred and is unique within one student's set.
// Grade fields accept letter grades or raw numerics; the scorer converts
// them, treating anything unparseable as absent.
type Preference struct {
	ID                 string    `db:"id" json:"id"`
	StudentID          string    `db:"student_id" json:"student_id"`
	CourseID           string    `db:"course_id" json:"course_id"`
	Rank               int       `db:"rank" json:"rank"`
	FacultyRequested   bool      `db:"faculty_requested" json:"faculty_requested"`
	GradeInCourse      *string   `db:"grade_in_course" json:"grade_in_course,omitempty"`
	BasketGradeAverage *string   `db:"basket_grade_average" json:"basket_grade_average,omitempty"`
	Highlighted        bool      `db:"highlighted" json:"highlighted"`
	Notes              *string   `db:"notes" json:"notes,omitempty"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}

// PreferenceDetail joins the referenced course for student-facing listings.
type PreferenceDetail struct {
	Preference
	CourseCode  string `db:"course_code" json:"course_code"`
	CourseTitle string `db:"course_title" json:"course_title"`
}

// ApplicationDetail joins the applicant's identity for professor-facing views.
type ApplicationDetail struct {
	Preference
	StudentName  *string `db:"student_name" json:"student_name,omitempty"`
	StudentUNI   string  `db:"student_uni" json:"student_uni"`
	StudentEmail string  `db:"student_email" json:"student_email"`
}

// UnassignedApplication is a reporting row for applicants who currently
// hold no assignment anywhere, one row per application they filed.
type UnassignedApplication struct {
	StudentID    string  `db:"student_id" json:"student_id"`
	StudentUNI   string  `db:"student_uni" json:"student_uni"`
	StudentName  *string `db:"student_name" json:"student_name,omitempty"`
	StudentEmail string  `db:"student_email" json:"student_email"`
	CourseCode   string  `db:"course_code" json:"course_code"`
	CourseTitle  string  `db:"course_title" json:"course_title"`
	Rank         int     `db:"rank" json:"rank"`
	Highlighted  bool    `db:"highlighted" json:"highlighted"`
}
