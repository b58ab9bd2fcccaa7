package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("resource not found")
	ErrUnsupportedFormat   = errors.New("unsupported file format")
	ErrFileTooLarge        = errors.New("file exceeds maximum allowed size")
	ErrUploadFailed        = errors.New("file upload to storage failed")
	ErrUnreadableDocument  = errors.New("document could not be read")
	ErrFallbackUnavailable = errors.New("semantic fallback unavailable")
	ErrSubmissionCanceled  = errors.New("submission processing canceled")
	ErrNotProcessed        = errors.New("submission has not been processed yet")
	ErrDuplicateSubmission = errors.New("submission with identical content already exists")
	ErrInvalidStatus       = errors.New("submission is not in a state that allows this operation")
)

// ExtractionFailure records a sheet or page that could not be read at all.
// It never aborts sibling sheets.
type ExtractionFailure struct {
	Section string
	Page    int
	Err     error
}

func (e *ExtractionFailure) Error() string {
	if e.Page > 0 {
		return fmt.Sprintf("extraction failed for %s (page %d): %v", e.Section, e.Page, e.Err)
	}
	return fmt.Sprintf("extraction failed for %s: %v", e.Section, e.Err)
}

func (e *ExtractionFailure) Unwrap() error {
	return e.Err
}

// Issue converts the failure into its persisted form.
func (e *ExtractionFailure) Issue() ExtractionIssue {
	msg := ""
	if e.Err != nil {
		msg = e.Err.Error()
	}
	return ExtractionIssue{Kind: IssueExtractionFailure, Section: e.Section, Page: e.Page, Message: msg}
}

// IssueExtractionFailure is the ExtractionIssue kind for unreadable sheets or pages.
const IssueExtractionFailure = "extraction_failure"
