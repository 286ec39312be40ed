package replicate

import (
	"encoding/json"
	"time"
)

// Status is the vendor-side lifecycle state of a prediction.
type Status string

const (
	StatusStarting   Status = "starting"
	StatusProcessing Status = "processing"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
	StatusCanceled   Status = "canceled"
)

// Terminal reports whether the vendor will never change this state again.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCanceled
}

type Prediction struct {
	ID          string            `json:"id"`
	Model       string            `json:"model,omitempty"`
	Version     string            `json:"version,omitempty"`
	Status      Status            `json:"status"`
	Output      json.RawMessage   `json:"output,omitempty"`
	Error       string            `json:"error,omitempty"`
	Logs        string            `json:"logs,omitempty"`
	URLs        map[string]string `json:"urls,omitempty"`
	CreatedAt   *time.Time        `json:"created_at,omitempty"`
	StartedAt   *time.Time        `json:"started_at,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`

	// Raw is the vendor response body exactly as received.
	Raw json.RawMessage `json:"-"`
}

// OutputURLs returns the output as a list. Replicate answers with either a
// single URL or an array of URLs depending on the model.
func (p *Prediction) OutputURLs() []string {
	if len(p.Output) == 0 || string(p.Output) == "null" {
		return nil
	}
	var single string
	if err := json.Unmarshal(p.Output, &single); err == nil {
		if single == "" {
			return nil
		}
		return []string{single}
	}
	var list []string
	if err := json.Unmarshal(p.Output, &list); err == nil {
		return list
	}
	return nil
}

// OutputURL is the primary output, the last element for list outputs since
// streaming models append the final file last.
func (p *Prediction) OutputURL() string {
	urls := p.OutputURLs()
	if len(urls) == 0 {
		return ""
	}
	return urls[len(urls)-1]
}
