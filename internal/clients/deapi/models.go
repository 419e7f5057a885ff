// internal/clients/deapi/models.go
package deapi

// submitResponse is the img2video submission response.
type submitResponse struct {
	Message string `json:"message,omitempty"`
	Data    struct {
		RequestID string `json:"request_id"`
	} `json:"data"`
}

// statusResponse is the request-status polling response. Progress runs 0-100;
// ResultURL is only present once progress reaches 100.
type statusResponse struct {
	Message string `json:"message,omitempty"`
	Data    struct {
		Progress  float64 `json:"progress"`
		ResultURL string  `json:"result_url"`
	} `json:"data"`
}
