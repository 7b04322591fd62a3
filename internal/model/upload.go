package model

// UploadedDocument describes a stored upload. Mtime is unix seconds.
type UploadedDocument struct {
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	Mtime    int64  `json:"mtime"`
}
