package models

import "time"

// Session is one active connection and its tenant/server binding
type Session struct {
	Id           string    `json:"id"`
	TenantId     string    `json:"tenant_id"`
	ServerId     string    `json:"server_id"`
	RemoteAddr   string    `json:"remote_addr"`
	ConnectedAt  time.Time `json:"connected_at"`
	LastActivity time.Time `json:"last_activity"`
}

// Stats aggregates connection, server and process counts for status reporting
type Stats struct {
	ActiveConnections int `json:"active_connections"`
	TotalServers      int `json:"total_servers"`
	RunningServers    int `json:"running_servers"`
	RunningProcesses  int `json:"running_processes"`
}
