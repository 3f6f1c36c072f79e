package model

import "time"

// UploadSession describes one in-flight resumable upload. The session is
// immutable once created; only the set of received parts changes, and that
// set lives in the blob namespace itself (one object per part index).
type UploadSession struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	Filename    string    `json:"filename"`
	TotalSize   int64     `json:"total_size"`
	PartSize    int64     `json:"part_size"`
	PartCount   int       `json:"part_count"`
	ContentType string    `json:"content_type"`
	CreatedAt   time.Time `json:"created_at"`
}

// UploadProgress reports how much of a session has arrived.
type UploadProgress struct {
	Uploaded   int     `json:"uploaded"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
}
