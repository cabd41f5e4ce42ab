package dto

import "time"

// DocumentUploadResponse reports where an uploaded document landed and
// whether text extraction was queued.
type DocumentUploadResponse struct {
	Kind       string `json:"kind"`
	Path       string `json:"path"`
	Size       int64  `json:"size"`
	Extraction string `json:"extraction"`
}

// DocumentURLResponse carries a signed, expiring download link.
type DocumentURLResponse struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}
