package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrorTypeNavigation represents page loads that failed after retries
	ErrorTypeNavigation ErrorType = "navigation"
	// ErrorTypeExtraction represents a page that could not be read at all
	ErrorTypeExtraction ErrorType = "extraction"
	// ErrorTypeMalformed represents products missing a mandatory field
	ErrorTypeMalformed ErrorType = "malformed"
	// ErrorTypeConfiguration represents unknown retailers or regions
	ErrorTypeConfiguration ErrorType = "configuration"
	// ErrorTypeJob represents failures caught at the retailer boundary of a job
	ErrorTypeJob ErrorType = "job"
	// ErrorTypeBrowser represents failures to acquire the browsing capability
	ErrorTypeBrowser ErrorType = "browser"
)

var (
	ErrAlreadyRunning     = errors.New("a scrape job is already running")
	ErrNotRunning         = errors.New("no scrape job is running")
	ErrUnknownRetailer    = errors.New("unknown retailer")
	ErrUnknownRegion      = errors.New("unknown region")
	ErrRegionUnsupported  = errors.New("retailer does not serve region")
	ErrBrowserUnavailable = errors.New("browser unavailable")
)

// ScrapeError represents a scrape-specific error
type ScrapeError struct {
	Type     ErrorType
	Retailer string
	Message  string
	Err      error
	Time     time.Time
}

// Error implements the error interface
func (e *ScrapeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s - %v", e.Type, e.Retailer, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Type, e.Retailer, e.Message)
}

// Unwrap returns the underlying error
func (e *ScrapeError) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the error is retryable
func (e *ScrapeError) IsRetryable() bool {
	return e.Type == ErrorTypeNavigation && (e.Err == nil || IsRetryable(e.Err))
}

// StatusError is a page load answered with a non-200 status
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d", e.Code)
}

// RetryableStatus reports whether a response status may succeed on a later attempt
func RetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

// IsRetryable classifies an error from a page load. Throttling, server
// errors and transport failures are retryable; other statuses, non-navigation
// scrape errors and cancellation are not.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	var status *StatusError
	if errors.As(err, &status) {
		return RetryableStatus(status.Code)
	}

	var se *ScrapeError
	if errors.As(err, &se) {
		return se.Type == ErrorTypeNavigation
	}
	return true
}

// New creates a new ScrapeError
func New(errType ErrorType, retailer, message string, err error) *ScrapeError {
	return &ScrapeError{
		Type:     errType,
		Retailer: retailer,
		Message:  message,
		Err:      err,
		Time:     time.Now(),
	}
}

// NewNavigation creates a new navigation error
func NewNavigation(retailer, url string, err error) *ScrapeError {
	return New(ErrorTypeNavigation, retailer, "failed to load "+url, err)
}

// NewExtraction creates a new extraction error
func NewExtraction(retailer, message string, err error) *ScrapeError {
	return New(ErrorTypeExtraction, retailer, message, err)
}

// NewMalformed creates a new malformed field error
func NewMalformed(retailer, url, field string) *ScrapeError {
	return New(ErrorTypeMalformed, retailer, fmt.Sprintf("%s unresolved on %s", field, url), nil)
}

// NewConfiguration creates a new configuration error
func NewConfiguration(retailer, message string, err error) *ScrapeError {
	return New(ErrorTypeConfiguration, retailer, message, err)
}

// NewJob creates a new job-level error
func NewJob(retailer, message string, err error) *ScrapeError {
	return New(ErrorTypeJob, retailer, message, err)
}

// NewBrowser creates a new browser error
func NewBrowser(message string, err error) *ScrapeError {
	return New(ErrorTypeBrowser, "", message, err)
}

// IsType reports whether err is a ScrapeError of the given type
func IsType(err error, errType ErrorType) bool {
	var se *ScrapeError
	if errors.As(err, &se) {
		return se.Type == errType
	}
	return false
}
