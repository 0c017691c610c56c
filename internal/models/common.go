package models

// EnvironmentVariable represents an environment variable for a hosted server
type EnvironmentVariable struct {
	Name     string `json:"name" binding:"required"`
	Value    string `json:"value"`
	IsSecret bool   `json:"is_secret"`
}

// EnvironmentMap flattens a list of variables into a name/value mapping.
// Later entries win on duplicate names.
func EnvironmentMap(vars []EnvironmentVariable) map[string]string {
	env := make(map[string]string, len(vars))
	for _, v := range vars {
		if v.Name == "" {
			continue
		}
		env[v.Name] = v.Value
	}
	return env
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
