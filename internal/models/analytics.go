package models

import "time"

// TrackFillRate aggregates vacancy usage for one track.
type TrackFillRate struct {
	Track       Track   `db:"track" json:"track"`
	CourseCount int     `db:"course_count" json:"course_count"`
	Vacancies   int     `db:"vacancies" json:"vacancies"`
	Assigned    int     `db:"assigned" json:"assigned"`
	FillRate    float64 `db:"-" json:"fill_rate"`
}

// AnalyticsOverview is the admin dashboard snapshot.
type AnalyticsOverview struct {
	Students             int             `json:"students"`
	Courses              int             `json:"courses"`
	Preferences          int             `json:"preferences"`
	PendingAssignments   int             `json:"pending_assignments"`
	ConfirmedAssignments int             `json:"confirmed_assignments"`
	TrackFillRates       []TrackFillRate `json:"track_fill_rates"`
	GeneratedAt          time.Time       `json:"generated_at"`
}

// AnalyticsOverviewCounts is the single-row aggregate the repository scans.
type AnalyticsOverviewCounts struct {
	Students             int `db:"students"`
	Courses              int `db:"courses"`
	Preferences          int `db:"preferences"`
	PendingAssignments   int `db:"pending_assignments"`
	ConfirmedAssignments int `db:"confirmed_assignments"`
}
