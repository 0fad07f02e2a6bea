package handler

// ErrorBody is the JSON envelope of every error response.
type ErrorBody struct {
	Error string `json:"error"`
	// Reason is set when a session was invalidated.
	Reason string `json:"reason,omitempty"`
	// Partial is set when a multi-step operation stopped halfway.
	Partial *PartialBody `json:"partial,omitempty"`
}

// PartialBody lists the steps a failed operation had already applied.
type PartialBody struct {
	Operation string   `json:"operation"`
	Applied   []string `json:"applied"`
	Failed    string   `json:"failed"`
}
