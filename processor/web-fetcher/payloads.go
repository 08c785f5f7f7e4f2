package webfetcher

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/c360studio/semfetch/fetcherr"
)

// Stage names the pipeline step a failure came from.
type Stage string

// Pipeline stages.
const (
	StageValidation Stage = "validation"
	StageRateLimit  Stage = "rate_limit"
	StageFetch      Stage = "fetch"
	StageExtraction Stage = "extraction"
	StageInternal   Stage = "internal"
)

// Response is the structured result of one pipeline call.
type Response struct {
	Success bool `json:"success"`

	URL         string `json:"url,omitempty"`
	Title       string `json:"title,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	StatusCode  int    `json:"status_code,omitempty"`
	Text        string `json:"text,omitempty"`
	TextLength  int    `json:"text_length,omitempty"`

	ErrorKind         fetcherr.Kind `json:"error_kind,omitempty"`
	Stage             Stage         `json:"stage,omitempty"`
	Message           string        `json:"message,omitempty"`
	RetryAfterSeconds float64       `json:"retry_after_seconds,omitempty"`

	// RequestID correlates the response with log lines. It is not part of
	// the JSON payload.
	RequestID string `json:"-"`
}

type successPayload struct {
	Success     bool   `json:"success"`
	URL         string `json:"url"`
	Title       string `json:"title"`
	ContentType string `json:"content_type"`
	StatusCode  int    `json:"status_code"`
	Text        string `json:"text"`
	TextLength  int    `json:"text_length"`
}

type failurePayload struct {
	Success           bool          `json:"success"`
	ErrorKind         fetcherr.Kind `json:"error_kind"`
	Stage             Stage         `json:"stage,omitempty"`
	Message           string        `json:"message"`
	URL               string        `json:"url,omitempty"`
	StatusCode        int           `json:"status_code,omitempty"`
	ContentType       string        `json:"content_type,omitempty"`
	RetryAfterSeconds float64       `json:"retry_after_seconds,omitempty"`
}

// MarshalJSON emits the success shape, where every field is present, or the
// failure shape, where only known metadata is present.
func (r Response) MarshalJSON() ([]byte, error) {
	if r.Success {
		return json.Marshal(successPayload{
			Success:     true,
			URL:         r.URL,
			Title:       r.Title,
			ContentType: r.ContentType,
			StatusCode:  r.StatusCode,
			Text:        r.Text,
			TextLength:  r.TextLength,
		})
	}
	return json.Marshal(failurePayload{
		ErrorKind:         r.ErrorKind,
		Stage:             r.Stage,
		Message:           r.Message,
		URL:               r.URL,
		StatusCode:        r.StatusCode,
		ContentType:       r.ContentType,
		RetryAfterSeconds: r.RetryAfterSeconds,
	})
}

// Summary renders the response as human-readable text: metadata lines, then
// the extracted content. Failures render as a single error line.
func (r Response) Summary() string {
	if !r.Success {
		var sb strings.Builder
		fmt.Fprintf(&sb, "Error (%s): %s", r.ErrorKind, r.Message)
		if r.RetryAfterSeconds > 0 {
			fmt.Fprintf(&sb, " (retry after %gs)", r.RetryAfterSeconds)
		}
		return sb.String()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Content from: %s\n", r.URL)
	fmt.Fprintf(&sb, "Content-Type: %s\n", r.ContentType)
	fmt.Fprintf(&sb, "Status Code: %d\n", r.StatusCode)
	if r.Title != "" {
		fmt.Fprintf(&sb, "Title: %s\n", r.Title)
	}
	sb.WriteString("\n--- Content ---\n")
	sb.WriteString(r.Text)
	return sb.String()
}

// failure builds a failure Response from any error.
func failure(stage Stage, rawURL string, err error) Response {
	fe := fetcherr.Classify(err)
	return Response{
		URL:               rawURL,
		ErrorKind:         fe.Kind,
		Stage:             stage,
		Message:           fe.Message,
		StatusCode:        fe.StatusCode,
		ContentType:       fe.ContentType,
		RetryAfterSeconds: retrySeconds(fe.RetryAfter),
	}
}

// retrySeconds rounds a retry hint up to whole milliseconds.
func retrySeconds(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return math.Ceil(d.Seconds()*1000) / 1000
}
