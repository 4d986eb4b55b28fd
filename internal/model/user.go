package model

import "time"

type UserType string

const (
	UserTypeStudent UserType = "student"
	UserTypeAdmin   UserType = "admin"
)

type User struct {
	ID             int64      `json:"id"`
	Email          string     `json:"email"`
	Username       string     `json:"username"`
	FullName       string     `json:"full_name"`
	Phone          string     `json:"phone,omitempty"`
	PasswordHash   string     `json:"-"`
	UserType       UserType   `json:"user_type"`
	IsActive       bool       `json:"is_active"`
	FailedAttempts int        `json:"-"`
	LockedUntil    *time.Time `json:"-"`
	LastLogin      *time.Time `json:"last_login,omitempty"`
}

// AllowsMultipleDevices reports whether the account is exempt from the
// single active session rule.
func (u *User) AllowsMultipleDevices() bool {
	return u.UserType == UserTypeAdmin
}

func (u *User) IsLocked(now time.Time) bool {
	return u.LockedUntil != nil && now.Before(*u.LockedUntil)
}

type UserSession struct {
	ID                int64     `json:"id"`
	UserID            int64     `json:"user_id"`
	SessionKey        string    `json:"-"`
	DeviceFingerprint string    `json:"device_fingerprint"`
	IPAddress         string    `json:"ip_address"`
	UserAgent         string    `json:"user_agent"`
	CreatedAt         time.Time `json:"created_at"`
	LastActivity      time.Time `json:"last_activity"`
	IsActive          bool      `json:"is_active"`
}
