package models

import (
	"time"

	"gorm.io/datatypes"
)

// Contact is the local mirror of a HubSpot CRM contact. HubSpotID is the
// remote vid; rows are reconciled against the remote API keyed by it.
type Contact struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	HubSpotID string `gorm:"column:hubspot_id;uniqueIndex;size:255;not null" json:"hubspot_id"`

	FirstName string `gorm:"size:255" json:"first_name"`
	LastName  string `gorm:"size:255" json:"last_name"`
	Email     string `gorm:"size:254;index" json:"email"`
	Company   string `gorm:"size:255" json:"company"`
	Website   string `gorm:"size:255" json:"website"`
	Phone     string `gorm:"size:255" json:"phone"`
	Address   string `gorm:"size:255" json:"address"`
	State     string `gorm:"size:255" json:"state"`
	Zip       string `gorm:"size:255" json:"zip"`

	// RemoteProperties keeps the raw property bag from the last pull for
	// fields the flattened columns do not cover.
	RemoteProperties datatypes.JSON `json:"-"`

	AddedAt          *time.Time `json:"added_at"`
	LastModifiedDate *time.Time `json:"lastmodifieddate"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
