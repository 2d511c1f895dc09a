package firmware

import "time"

// UnknownVersion labels uploads that did not state a version.
const UnknownVersion = "unknown"

// Firmware is one catalogued artifact.
type Firmware struct {
	ID         string    `json:"id"`
	Version    string    `json:"version"`
	Filename   string    `json:"filename"`
	URL        string    `json:"url"`
	SizeBytes  int64     `json:"sizeBytes"`
	SHA256     string    `json:"sha256"`
	UploadedBy string    `json:"uploadedBy,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}
