package validation

import (
	"fmt"
	"net/mail"
	"path/filepath"
	"regexp"
	"strings"

	"moledger/internal/models"
)

// ValidationError represents a structured validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors collects multiple field errors.
type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (ve *ValidationErrors) Add(field, message string) {
	ve.Errors = append(ve.Errors, ValidationError{Field: field, Message: message})
}

func (ve *ValidationErrors) HasErrors() bool {
	return len(ve.Errors) > 0
}

func (ve *ValidationErrors) Error() string {
	msgs := make([]string, len(ve.Errors))
	for i, e := range ve.Errors {
		msgs[i] = e.Field + " " + e.Message
	}
	return strings.Join(msgs, "; ")
}

// Err returns nil when there are no errors, otherwise an error wrapping
// models.ErrInvalidInput.
func (ve *ValidationErrors) Err() error {
	if !ve.HasErrors() {
		return nil
	}
	return fmt.Errorf("%s: %w", ve.Error(), models.ErrInvalidInput)
}

// Limits.
const (
	MaxQuantity     = 1000000
	MaxStringLength = 200
	MaxUploadSize   = 20 * 1024 * 1024
)

// RequireField checks a required string field is non-empty.
func RequireField(ve *ValidationErrors, field, value string) {
	if strings.TrimSpace(value) == "" {
		ve.Add(field, "is required")
	}
}

// ValidateQuantity checks a quantity is a positive integer within limits.
func ValidateQuantity(ve *ValidationErrors, field string, value int) {
	switch {
	case value <= 0:
		ve.Add(field, "must be a positive integer")
	case value > MaxQuantity:
		ve.Add(field, fmt.Sprintf("exceeds maximum allowed quantity of %d", MaxQuantity))
	}
}

// ValidateMaxLength checks string doesn't exceed max length.
func ValidateMaxLength(ve *ValidationErrors, field, value string, max int) {
	if len(value) > max {
		ve.Add(field, fmt.Sprintf("must be at most %d characters", max))
	}
}

// ValidateEmail checks a field is a valid email (if non-empty).
func ValidateEmail(ve *ValidationErrors, field, value string) {
	if value == "" {
		return
	}
	if _, err := mail.ParseAddress(value); err != nil {
		ve.Add(field, "must be a valid email address")
	}
}

// PartNoPattern matches part numbers: letters, digits, hyphens, underscores, dots.
var PartNoPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9\-_.]*$`)

// ValidatePartNo validates a part number field.
func ValidatePartNo(ve *ValidationErrors, field, value string) {
	if value == "" {
		return
	}
	if !PartNoPattern.MatchString(value) {
		ve.Add(field, "must contain only letters, numbers, hyphens, underscores, and dots")
	}
}

// ValidateWorkbookUpload checks an uploaded catalog workbook.
func ValidateWorkbookUpload(ve *ValidationErrors, filename string, size int64) {
	switch {
	case size <= 0:
		ve.Add("file", "cannot be empty (0 bytes)")
	case size > MaxUploadSize:
		ve.Add("file", fmt.Sprintf("exceeds maximum size of %d MB", MaxUploadSize/(1024*1024)))
	}
	if strings.Contains(filename, "..") || strings.ContainsAny(filename, "/\\\x00\r\n") {
		ve.Add("filename", "contains invalid characters")
	}
	if ext := strings.ToLower(filepath.Ext(filename)); ext != ".xlsx" {
		ve.Add("filename", fmt.Sprintf("file type not allowed: %q (expected .xlsx)", ext))
	}
}
