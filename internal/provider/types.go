// Package provider provides an HTTP client for the remote image-to-video
// generation API. The provider is treated as unreliable and slow: submissions
// return a job ID immediately and results are obtained by polling.
package provider

// RemoteStatus represents the status vocabulary of the remote provider.
type RemoteStatus string

// Remote job statuses aligned with the provider API.
const (
	StatusQueued     RemoteStatus = "queued"
	StatusStarting   RemoteStatus = "starting"
	StatusInProgress RemoteStatus = "in_progress"
	StatusSucceeded  RemoteStatus = "succeeded"
	StatusFailed     RemoteStatus = "failed"
	StatusCancelled  RemoteStatus = "cancelled"
	StatusThrottled  RemoteStatus = "throttled"
)

// IsTerminal returns true if the remote status is a terminal state.
func (s RemoteStatus) IsTerminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCancelled, StatusThrottled:
		return true
	default:
		return false
	}
}

// submitRequest represents the request body for the provider's /jobs endpoint.
type submitRequest struct {
	Input submitInput `json:"input"`
}

// submitInput represents the input field in a submit request.
type submitInput struct {
	ImageURL string `json:"image_url"`
	Prompt   string `json:"prompt"`
}

// submitResponse represents the response from the provider's /jobs endpoint.
type submitResponse struct {
	ID     string `json:"id"`
	Status string `json:"status,omitempty"`
	Error  string `json:"error,omitempty"`
}

// statusResponse represents the response from the provider's /jobs/{id} endpoint.
type statusResponse struct {
	ID     string       `json:"id"`
	Status string       `json:"status"`
	Output statusOutput `json:"output,omitempty"`
	Error  string       `json:"error,omitempty"`
}

// statusOutput represents the output field in a status response.
type statusOutput struct {
	VideoURL string `json:"video_url,omitempty"`
}

// PollResult contains the result of polling a job's status.
type PollResult struct {
	Status RemoteStatus
	// OutputURL points at the rendered video (only set when Status is
	// StatusSucceeded, and even then the provider may violate that contract).
	OutputURL string
	// Error is the provider's failure message (only set when Status is a
	// failure state).
	Error string
}
