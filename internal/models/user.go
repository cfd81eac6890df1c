package models

import "time"

// User is a local account. Email is the login identifier; username exists
// for display and must be unique as well.
//
// EmailVerificationToken is non-nil only while verification is pending: it
// is set at registration and cleared (NULL) once the account verifies.
type User struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	Email    string `gorm:"uniqueIndex;size:254;not null" json:"email"`
	Username string `gorm:"uniqueIndex;size:150;not null" json:"username"`

	FirstName string `gorm:"size:150" json:"first_name"`
	LastName  string `gorm:"size:150" json:"last_name"`

	// Password holds the bcrypt hash, never the clear form.
	Password string `gorm:"not null" json:"-"`

	IsActive               bool    `gorm:"default:true" json:"is_active"`
	IsEmailVerified        bool    `gorm:"default:false" json:"is_email_verified"`
	EmailVerificationToken *string `gorm:"size:200;index" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FullName joins the display name parts.
func (u *User) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	default:
		return u.FirstName + " " + u.LastName
	}
}
