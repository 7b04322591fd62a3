package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var ErrExtraction = errors.New("text extraction failed")

type FileType string

const (
	TypePDF      FileType = "pdf"
	TypeImage    FileType = "image"
	TypeDocx     FileType = "docx"
	TypeDoc      FileType = "doc"
	TypeText     FileType = "text"
	TypeMarkdown FileType = "markdown"
)

// InferType maps a file extension to the extractor that handles it. Unknown
// extensions are read as text.
func InferType(filename string) FileType {
	switch Ext(filename) {
	case "pdf":
		return TypePDF
	case "png", "jpg", "jpeg", "gif", "webp":
		return TypeImage
	case "docx":
		return TypeDocx
	case "doc":
		return TypeDoc
	case "md", "markdown":
		return TypeMarkdown
	default:
		return TypeText
	}
}

// Ext returns the lower-case extension without the dot.
func Ext(filename string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
}

// Transcriber reads the text in an image. The LLM gateway satisfies it.
type Transcriber interface {
	Transcribe(ctx context.Context, image []byte, mime string) (string, error)
}

type Option func(*Extractor)

func WithTranscriber(t Transcriber) Option {
	return func(e *Extractor) {
		e.transcriber = t
	}
}

func WithCommandRunner(r CommandRunner) Option {
	return func(e *Extractor) {
		if r != nil {
			e.runner = r
		}
	}
}

// Extractor turns a stored file into plain text. It never modifies the file.
type Extractor struct {
	transcriber Transcriber
	runner      CommandRunner
}

func New(opts ...Option) *Extractor {
	e := &Extractor{runner: ExecRunner{}}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Extractor) Extract(ctx context.Context, path string, typ FileType) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("%w: %w", ErrExtraction, err)
	}
	switch typ {
	case TypePDF:
		return extractPDF(path)
	case TypeImage:
		return e.extractImage(ctx, path), nil
	case TypeDocx:
		return extractDocx(path)
	case TypeDoc:
		return e.extractDoc(ctx, path)
	case TypeMarkdown:
		return extractMarkdown(path)
	case TypeText, "":
		return extractText(path)
	default:
		return "", fmt.Errorf("%w: unsupported file type %s", ErrExtraction, typ)
	}
}
