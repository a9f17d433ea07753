package models

import "time"

type AdminUser struct {
	ID           int64     `json:"id"`
	Username     string    `json:"name"`
	PasswordHash string    `json:"-"`
	Role         int       `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AdminLogEntry is append-only.
type AdminLogEntry struct {
	ID                  int64     `json:"id"`
	AdminName           string    `json:"admin_name"`
	Action              string    `json:"action"`
	ApplicationUniqueID string    `json:"application_unique_id"`
	Timestamp           time.Time `json:"timestamp"`
}
