package models

// Identity is an authenticatable user account owned by the external
// identity service. This core only creates and reads it by reference.
type Identity struct {
	ID          string         `json:"id"`
	Email       string         `json:"email"`
	DisplayName string         `json:"display_name"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}
