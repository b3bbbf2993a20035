package logic

import (
	"fmt"
	"net/http"
	"strings"
)

// Kind is the coarse type of an uploaded file.
type Kind string

const (
	KindImage Kind = "image"
	KindPDF   Kind = "pdf"
)

// Backend names where a file reference points.
type Backend string

const (
	BackendLocal      Backend = "LOCAL"
	BackendS3         Backend = "S3"
	BackendCloudinary Backend = "CLOUDINARY"
)

const (
	MinFiles = 1
	MaxFiles = 3
	// DefaultMaxFileSize matches the upload limit of the web client.
	DefaultMaxFileSize int64 = 5 << 20
)

var allowedTypes = map[string]Kind{
	"image/jpeg":      KindImage,
	"image/png":       KindImage,
	"application/pdf": KindPDF,
}

// Upload is a raw file handed to the core before storage.
type Upload struct {
	Filename string
	MIMEType string
	Data     []byte
}

// FileRef is the durable reference returned by the file store. Only
// references are persisted.
type FileRef struct {
	URL      string  `json:"url"`
	MIMEType string  `json:"mime_type"`
	Kind     Kind    `json:"kind"`
	Size     int64   `json:"size"`
	Backend  Backend `json:"backend"`
}

// NormalizeMIME lower-cases a media type and drops its parameters.
func NormalizeMIME(mime string) string {
	mime, _, _ = strings.Cut(mime, ";")
	return strings.ToLower(strings.TrimSpace(mime))
}

// KindOf maps an allowed media type to its kind.
func KindOf(mime string) (Kind, bool) {
	kind, ok := allowedTypes[NormalizeMIME(mime)]
	return kind, ok
}

// ValidateUploads checks count, type, content and size of a submission.
func ValidateUploads(uploads []Upload, maxSize int64) error {
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}
	if len(uploads) < MinFiles || len(uploads) > MaxFiles {
		return newInvalidFile("files", fmt.Sprintf("%s, got %d", ErrMsgFileCount, len(uploads)))
	}
	for i, u := range uploads {
		resource := fmt.Sprintf("file[%d]", i)
		if u.Filename != "" {
			resource += ":" + u.Filename
		}
		declared := NormalizeMIME(u.MIMEType)
		if _, ok := allowedTypes[declared]; !ok {
			return newInvalidFile(resource, ErrMsgFileType)
		}
		if len(u.Data) == 0 {
			return newInvalidFile(resource, ErrMsgFileEmpty)
		}
		if int64(len(u.Data)) > maxSize {
			return newInvalidFile(resource, fmt.Sprintf("%s of %d bytes", ErrMsgFileTooLarge, maxSize))
		}
		if sniffed := NormalizeMIME(http.DetectContentType(u.Data)); sniffed != declared {
			return newInvalidFile(resource, ErrMsgFileContent)
		}
	}
	return nil
}
