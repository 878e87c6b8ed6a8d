package client

import "time"

// Key describes a stored key
type Key struct {
	Name         string    `json:"name"`
	ReadOnly     bool      `json:"read_only"`
	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`
}

type createRequest struct {
	Name     *string `json:"name,omitempty"`
	Value    string  `json:"value"`
	ReadOnly bool    `json:"read_only"`
}

type updateRequest struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type createResponse struct {
	Key
	Success bool `json:"success"`
}

type getResponse struct {
	Value   string `json:"value"`
	Success bool   `json:"success"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Success bool   `json:"success"`
}
