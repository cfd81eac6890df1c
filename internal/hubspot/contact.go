package hubspot

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Property is one entry of the v1 API property bag.
type Property struct {
	Property string `json:"property"`
	Value    string `json:"value"`
}

// PropertyBag is the wire representation of contact attributes pushed to the
// remote API.
type PropertyBag []Property

// RemoteContact mirrors the shape of a contact returned by the v1 list
// endpoints. AddedAt and the lastmodifieddate property are millisecond epochs.
type RemoteContact struct {
	VID              int64                   `json:"vid"`
	AddedAt          int64                   `json:"addedAt"`
	Properties       map[string]RemoteValue  `json:"properties"`
	IdentityProfiles []RemoteIdentityProfile `json:"identity-profiles"`
}

// RemoteValue wraps a single property value.
type RemoteValue struct {
	Value string `json:"value"`
}

// RemoteIdentityProfile holds the identity list a contact's primary email is
// extracted from.
type RemoteIdentityProfile struct {
	Identities []RemoteIdentity `json:"identities"`
}

// RemoteIdentity is a single identity entry (EMAIL, LEAD_GUID, ...).
type RemoteIdentity struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// ContactProperties is the flattened, typed view of the property bag.
type ContactProperties struct {
	FirstName        string `mapstructure:"firstname"`
	LastName         string `mapstructure:"lastname"`
	Email            string `mapstructure:"email"`
	Company          string `mapstructure:"company"`
	Website          string `mapstructure:"website"`
	Phone            string `mapstructure:"phone"`
	Address          string `mapstructure:"address"`
	State            string `mapstructure:"state"`
	Zip              string `mapstructure:"zip"`
	LastModifiedDate string `mapstructure:"lastmodifieddate"`
}

// DecodeProperties flattens the remote property bag into ContactProperties.
func (c *RemoteContact) DecodeProperties() (ContactProperties, error) {
	flat := make(map[string]string, len(c.Properties))
	for name, value := range c.Properties {
		flat[name] = value.Value
	}

	var props ContactProperties
	if err := mapstructure.Decode(flat, &props); err != nil {
		return ContactProperties{}, fmt.Errorf("hubspot: decode properties: %w", err)
	}
	return props, nil
}

// PrimaryEmail extracts the best-effort primary email from the first
// identity profile, falling back to the email property.
func (c *RemoteContact) PrimaryEmail() string {
	if len(c.IdentityProfiles) > 0 {
		for _, identity := range c.IdentityProfiles[0].Identities {
			if identity.Type == "EMAIL" {
				return identity.Value
			}
		}
	}
	return c.Properties["email"].Value
}

// Bag converts the typed properties into the wire property bag. The
// lastmodifieddate is remote-managed and never pushed.
func (p ContactProperties) Bag() PropertyBag {
	return PropertyBag{
		{Property: "firstname", Value: p.FirstName},
		{Property: "lastname", Value: p.LastName},
		{Property: "email", Value: p.Email},
		{Property: "company", Value: p.Company},
		{Property: "website", Value: p.Website},
		{Property: "phone", Value: p.Phone},
		{Property: "address", Value: p.Address},
		{Property: "state", Value: p.State},
		{Property: "zip", Value: p.Zip},
	}
}
