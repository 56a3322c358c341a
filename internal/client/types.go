package client

// DirectoryUser is one user returned by the user service.
type DirectoryUser struct {
	ID       string `json:"id"`
	Email    string `json:"email,omitempty"`
	FullName string `json:"full_name,omitempty"`
}

// ListUsersResponse represents the user service's list response.
type ListUsersResponse struct {
	Users []DirectoryUser `json:"users"`
	Total int             `json:"total,omitempty"`
}

// errorResponse is the error body returned by platform services.
type errorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}
