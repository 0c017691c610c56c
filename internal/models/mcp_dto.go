package models

import "time"

// CreateMCPServerRequest represents the request body for creating a new hosted server config
type CreateMCPServerRequest struct {
	Name                 string                `json:"name" binding:"required"`
	Type                 string                `json:"type" binding:"required"`
	Description          string                `json:"description"`
	Version              string                `json:"version"`
	EnvironmentVariables []EnvironmentVariable `json:"envs"`
}

// ToDomain converts CreateMCPServerRequest DTO to a ServerConfig.
// Id and TenantId are assigned by the registry.
func (req *CreateMCPServerRequest) ToDomain() *ServerConfig {
	version := req.Version
	if version == "" {
		version = "1.0.0"
	}
	return &ServerConfig{
		Name:        req.Name,
		Type:        req.Type,
		Description: req.Description,
		Version:     version,
		Environment: EnvironmentMap(req.EnvironmentVariables),
		CreatedAt:   time.Now(),
		Status:      StatusCreated,
	}
}

// MCPServerResponse represents the response structure for a single server config
type MCPServerResponse struct {
	Id          string     `json:"id"`
	TenantId    string     `json:"tenant_id"`
	Name        string     `json:"name"`
	Type        string     `json:"type"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at"`
}

// MCPServerListResponse represents the response structure for listing server configs
type MCPServerListResponse struct {
	Servers []MCPServerResponse `json:"servers"`
	Total   int                 `json:"total"`
}

// ToResponse converts a ServerStatus to an MCPServerResponse DTO
func (s *ServerStatus) ToResponse() MCPServerResponse {
	return MCPServerResponse{
		Id:          s.Id,
		TenantId:    s.TenantId,
		Name:        s.Name,
		Type:        s.Type,
		Description: s.Description,
		Status:      s.Status,
		CreatedAt:   s.CreatedAt,
		StartedAt:   s.StartedAt,
	}
}

// ConnectResponse carries the websocket URL a client uses to reach a hosted server
type ConnectResponse struct {
	ConnectionURL string            `json:"connection_url"`
	Token         string            `json:"token"`
	ExpiresIn     string            `json:"expires_in"`
	Server        MCPServerResponse `json:"server"`
}
