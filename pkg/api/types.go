package api

import "time"

// URLResponse carries a hosted Stripe page the client should redirect to.
type URLResponse struct {
	URL string `json:"url"`
}

// EntitlementResponse is the premium state exposed to the web app.
type EntitlementResponse struct {
	IsPremium        bool       `json:"isPremium"`
	CurrentPeriodEnd *time.Time `json:"currentPeriodEnd"`
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
