package documents

import (
	"io"
	"path"
	"regexp"
	"sort"
	"strings"

	pkgerrors "github.com/simcheck/simcheck-backend/pkg/errors"
)

// FileInput is an uploaded file handed over by the transport layer.
type FileInput struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

var allowedDocumentTypes = map[string][]string{
	".pdf":  {"application/pdf"},
	".doc":  {"application/msword"},
	".docx": {"application/vnd.openxmlformats-officedocument.wordprocessingml.document"},
	".odt":  {"application/vnd.oasis.opendocument.text"},
	".rtf":  {"application/rtf", "text/rtf"},
	".txt":  {"text/plain"},
}

var allowedExtensions = func() string {
	exts := make([]string, 0, len(allowedDocumentTypes))
	for ext := range allowedDocumentTypes {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return strings.Join(exts, ", ")
}()

// validateDocument checks the extension, the declared type and the size limit.
// Browsers often send application/octet-stream, which is accepted for a known extension.
func validateDocument(file FileInput, maxBytes int64) error {
	if file.Body == nil || strings.TrimSpace(file.Name) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "file is required")
	}
	if file.Size <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "file is empty")
	}
	if maxBytes > 0 && file.Size > maxBytes {
		return pkgerrors.New(pkgerrors.CodeValidation, "file exceeds the upload limit")
	}
	ext := strings.ToLower(path.Ext(file.Name))
	types, ok := allowedDocumentTypes[ext]
	if !ok {
		return pkgerrors.New(pkgerrors.CodeValidation, "unsupported file type; allowed: "+allowedExtensions)
	}
	contentType := strings.ToLower(strings.TrimSpace(strings.SplitN(file.ContentType, ";", 2)[0]))
	if contentType == "" || contentType == "application/octet-stream" {
		return nil
	}
	for _, candidate := range types {
		if candidate == contentType {
			return nil
		}
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "content type does not match file extension")
}

// validateReport accepts PDF reports only.
func validateReport(file FileInput, maxBytes int64) error {
	if err := validateDocument(file, maxBytes); err != nil {
		return err
	}
	if strings.ToLower(path.Ext(file.Name)) != ".pdf" {
		return pkgerrors.New(pkgerrors.CodeValidation, "reports must be PDF files")
	}
	return nil
}

var (
	copySuffix = regexp.MustCompile(`\s*\(\d+\)\s*$`)
	whitespace = regexp.MustCompile(`\s+`)
)

// NormalizeFileName reduces a file name to the key used to pair reports with
// documents: extension and trailing " (n)" copy markers removed, lower case,
// whitespace collapsed.
func NormalizeFileName(name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if ext := path.Ext(name); ext != "" && ext != name {
		name = strings.TrimSuffix(name, ext)
	}
	for {
		trimmed := copySuffix.ReplaceAllString(name, "")
		if trimmed == name {
			break
		}
		name = trimmed
	}
	name = whitespace.ReplaceAllString(strings.ToLower(name), " ")
	return strings.TrimSpace(name)
}
