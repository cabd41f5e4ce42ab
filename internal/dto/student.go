package dto

import "github.com/camatch/camatch-api/internal/models"

// UpdateStudentProfileRequest carries the student-editable profile fields.
// Nil fields are left unchanged.
type UpdateStudentProfileRequest struct {
	FullName      *string            `json:"full_name" validate:"omitempty,max=200"`
	DegreeProgram *string            `json:"degree_program" validate:"omitempty,max=200"`
	LevelOfStudy  *models.StudyLevel `json:"level_of_study" validate:"omitempty,oneof=undergraduate masters"`
	Interests     *string            `json:"interests" validate:"omitempty,max=1000"`
	PhotoURL      *string            `json:"photo_url" validate:"omitempty,url"`
}

// StudentProfileResponse bundles the profile with its current preferences.
type StudentProfileResponse struct {
	Profile     models.StudentProfile     `json:"profile"`
	Preferences []models.PreferenceDetail `json:"preferences"`
}

// PreferenceInput is one ranked course request, used both for single adds
// and inside bulk replacement payloads.
type PreferenceInput struct {
	CourseID           string  `json:"course_id" validate:"required"`
	Rank               int     `json:"rank" validate:"required,min=1"`
	FacultyRequested   bool    `json:"faculty_requested"`
	GradeInCourse      *string `json:"grade_in_course" validate:"omitempty,max=10"`
	BasketGradeAverage *string `json:"basket_grade_average" validate:"omitempty,max=10"`
	Notes              *string `json:"notes" validate:"omitempty,max=2000"`
}

// ReplacePreferencesRequest swaps the student's whole preference list.
type ReplacePreferencesRequest struct {
	Preferences []PreferenceInput `json:"preferences" validate:"required,min=1,max=20,dive"`
}
