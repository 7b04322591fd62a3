package errcode

const (
	ErrUnknown = 10000000 + iota
	ErrNotFound
	ErrInvalid
	ErrTooMany
	ErrInternal
	ErrInvalidFile
	ErrFileTooLarge
	ErrUploadFailed
	ErrExtractFailed
	ErrAIUnavailable
	ErrIndexUnavailable
)

var messages = map[int]string{
	ErrUnknown:          "unknown error",
	ErrNotFound:         "not found",
	ErrInvalid:          "invalid request",
	ErrTooMany:          "too many requests",
	ErrInternal:         "internal error",
	ErrInvalidFile:      "unsupported file",
	ErrFileTooLarge:     "file too large",
	ErrUploadFailed:     "upload failed",
	ErrExtractFailed:    "could not extract text from file",
	ErrAIUnavailable:    "language model unavailable",
	ErrIndexUnavailable: "document index unavailable",
}

// Message is the default text shown for code.
func Message(code int) string {
	if msg, ok := messages[code]; ok {
		return msg
	}
	return messages[ErrUnknown]
}
