package models

import "time"

// Tenant is an isolated account owning zero or more server configs
type Tenant struct {
	Id        string
	Name      string
	Email     string
	IsAdmin   bool
	CreatedAt time.Time
}

// CreateTenantRequest represents the request body for creating a tenant
type CreateTenantRequest struct {
	Name  string `json:"name" binding:"required"`
	Email string `json:"email" binding:"required,email"`
}

// TenantResponse represents a tenant in API responses
type TenantResponse struct {
	Id        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	IsAdmin   bool      `json:"is_admin"`
	CreatedAt time.Time `json:"created_at"`
}

// ToResponse converts a Tenant to a TenantResponse DTO
func (t *Tenant) ToResponse() TenantResponse {
	return TenantResponse{
		Id:        t.Id,
		Name:      t.Name,
		Email:     t.Email,
		IsAdmin:   t.IsAdmin,
		CreatedAt: t.CreatedAt,
	}
}

// LoginRequest is the body of POST /api/auth/login
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse is returned after a successful login
type LoginResponse struct {
	Token  string         `json:"token"`
	Tenant TenantResponse `json:"tenant"`
}
