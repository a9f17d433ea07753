package models

import "time"

// AccessRequest is one registration (or re-issue) for a phone number.
// OTP is empty once the code has been superseded or burned.
type AccessRequest struct {
	ID          int64      `json:"id"`
	FullName    string     `json:"full_name"`
	PhoneNumber string     `json:"phone_number"`
	Country     string     `json:"country"`
	State       string     `json:"state"`
	City        string     `json:"city"`
	OTP         string     `json:"-"`
	IsVerified  bool       `json:"is_verified"`
	OTPSentAt   *time.Time `json:"otp_sent_at,omitempty"`
	OTPAttempts int        `json:"-"`
	CreatedAt   time.Time  `json:"created_at"`
}

type AccessRequestInput struct {
	FullName    string `json:"full_name" binding:"required"`
	PhoneNumber string `json:"phone_number" binding:"required"`
	Country     string `json:"country"`
	State       string `json:"state"`
	City        string `json:"city"`
	IsExisting  bool   `json:"is_existing"`
}

type VerifyOTPInput struct {
	PhoneNumber string `json:"phone_number" binding:"required"`
	OTP         string `json:"otp" binding:"required"`
}
