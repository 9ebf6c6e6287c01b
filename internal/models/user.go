package models

import "time"

// User is a registered account together with its coverage profile.
type User struct {
	ID            int64     `json:"id"`
	FullName      string    `json:"full_name"`
	Email         string    `json:"email"`
	PasswordHash  string    `json:"-"`
	IncomeProfile float64   `json:"income_profile"`
	Coverage      string    `json:"coverage"`
	County        *string   `json:"county"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
