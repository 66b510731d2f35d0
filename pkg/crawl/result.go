package crawl

import (
	"encoding/json"

	"github.com/entrhq/rendercrawl/pkg/browser"
)

// Stage names a step of a single crawl.
type Stage string

const (
	StageValidating  Stage = "validating"
	StageAcquiring   Stage = "acquiring"
	StageConfiguring Stage = "configuring"
	StageNavigating  Stage = "navigating"
	StageExtracting  Stage = "extracting"
	StageReleasing   Stage = "releasing"
	StageDone        Stage = "done"
)

// Result is the outcome of one crawl. Exactly one of the success fields
// (Title, HTML) or Error is meaningful, as indicated by Success.
type Result struct {
	Success        bool
	Title          string
	HTML           string
	Error          string
	URL            string
	ResponseTimeMs int64
	Stats          browser.Snapshot

	// Err is the typed error behind Error; nil on success.
	Err error
	// FailedAt is the stage that produced Err, or StageDone on success.
	FailedAt Stage
	// Attempts is the number of navigation attempts made.
	Attempts int
}

type successPayload struct {
	Success      bool             `json:"success"`
	Title        string           `json:"title"`
	HTML         string           `json:"html"`
	URL          string           `json:"url"`
	ResponseTime int64            `json:"responseTime"`
	Stats        browser.Snapshot `json:"stats"`
}

type failurePayload struct {
	Success      bool             `json:"success"`
	Error        string           `json:"error"`
	URL          string           `json:"url"`
	ResponseTime int64            `json:"responseTime"`
	Stats        browser.Snapshot `json:"stats"`
}

// MarshalJSON writes the success or failure wire shape.
func (r Result) MarshalJSON() ([]byte, error) {
	if r.Success {
		return json.Marshal(successPayload{
			Success:      true,
			Title:        r.Title,
			HTML:         r.HTML,
			URL:          r.URL,
			ResponseTime: r.ResponseTimeMs,
			Stats:        r.Stats,
		})
	}
	return json.Marshal(failurePayload{
		Success:      false,
		Error:        r.Error,
		URL:          r.URL,
		ResponseTime: r.ResponseTimeMs,
		Stats:        r.Stats,
	})
}

// Outcome returns "success" or "failure".
func (r Result) Outcome() string {
	if r.Success {
		return "success"
	}
	return "failure"
}
