package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/davitran/hubsync/internal/hubspot"
	"github.com/davitran/hubsync/internal/models"
	apperrors "github.com/davitran/hubsync/pkg/errors"
)

// ErrContactNotFound indicates the requested contact does not exist locally.
var ErrContactNotFound = apperrors.New("NOT_FOUND", "Contact not found", http.StatusNotFound)

// ContactInput carries the mutable contact attributes accepted from clients.
type ContactInput struct {
	FirstName string
	LastName  string
	Email     string
	Company   string
	Website   string
	Phone     string
	Address   string
	State     string
	Zip       string
}

// ContactService mirrors local contacts against the HubSpot CRM. Mutations
// are pushed remotely first and persisted locally only after the remote call
// succeeds; remote failures propagate to the caller with no retry.
type ContactService struct {
	db     *gorm.DB
	remote *hubspot.Client
}

// NewContactService constructs a ContactService instance.
func NewContactService(db *gorm.DB, remote *hubspot.Client) (*ContactService, error) {
	if db == nil {
		return nil, errors.New("contact service: db is required")
	}
	if remote == nil {
		return nil, errors.New("contact service: hubspot client is required")
	}
	return &ContactService{db: db, remote: remote}, nil
}

// List pulls every remote contact, reconciles the local mirror keyed by
// hubspot_id, and returns the local rows.
func (s *ContactService) List(ctx context.Context) ([]models.Contact, error) {
	remoteContacts, err := s.remote.AllContacts(ctx)
	if err != nil {
		return nil, err
	}

	for i := range remoteContacts {
		if err := s.upsertFromRemote(ctx, &remoteContacts[i]); err != nil {
			return nil, err
		}
	}

	var contacts []models.Contact
	if err := s.db.WithContext(ctx).Order("id").Find(&contacts).Error; err != nil {
		return nil, fmt.Errorf("contact service: list contacts: %w", err)
	}
	return contacts, nil
}

// Get loads a contact by its local id.
func (s *ContactService) Get(ctx context.Context, id uint) (*models.Contact, error) {
	var contact models.Contact
	err := s.db.WithContext(ctx).First(&contact, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrContactNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("contact service: load contact: %w", err)
	}
	return &contact, nil
}

// Create pushes the contact to HubSpot, then persists the local mirror with
// the remote vid.
func (s *ContactService) Create(ctx context.Context, input ContactInput) (*models.Contact, error) {
	vid, err := s.remote.CreateContact(ctx, input.properties().Bag())
	if err != nil {
		return nil, err
	}

	contact := &models.Contact{HubSpotID: vid}
	input.apply(contact)

	if err := s.db.WithContext(ctx).Create(contact).Error; err != nil {
		return nil, fmt.Errorf("contact service: create contact: %w", err)
	}
	return contact, nil
}

// Update pushes the new attributes remotely, then persists them locally.
func (s *ContactService) Update(ctx context.Context, id uint, input ContactInput) (*models.Contact, error) {
	contact, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.remote.UpdateContact(ctx, contact.HubSpotID, input.properties().Bag()); err != nil {
		return nil, err
	}

	input.apply(contact)
	if err := s.db.WithContext(ctx).Save(contact).Error; err != nil {
		return nil, fmt.Errorf("contact service: update contact: %w", err)
	}
	return contact, nil
}

// Delete removes the contact remotely first, then locally.
func (s *ContactService) Delete(ctx context.Context, id uint) error {
	contact, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := s.remote.DeleteContact(ctx, contact.HubSpotID); err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Delete(contact).Error; err != nil {
		return fmt.Errorf("contact service: delete contact: %w", err)
	}
	return nil
}

func (s *ContactService) upsertFromRemote(ctx context.Context, remote *hubspot.RemoteContact) error {
	props, err := remote.DecodeProperties()
	if err != nil {
		return err
	}

	rawProps, err := json.Marshal(remote.Properties)
	if err != nil {
		return fmt.Errorf("contact service: encode remote properties: %w", err)
	}

	vid := strconv.FormatInt(remote.VID, 10)

	var contact models.Contact
	err = s.db.WithContext(ctx).Where("hubspot_id = ?", vid).First(&contact).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		contact = models.Contact{HubSpotID: vid}
	case err != nil:
		return fmt.Errorf("contact service: lookup contact: %w", err)
	}

	contact.FirstName = props.FirstName
	contact.LastName = props.LastName
	contact.Email = remote.PrimaryEmail()
	contact.Company = props.Company
	contact.Website = props.Website
	contact.Phone = props.Phone
	contact.Address = props.Address
	contact.State = props.State
	contact.Zip = props.Zip
	contact.RemoteProperties = rawProps
	contact.AddedAt = millisToTime(remote.AddedAt)
	contact.LastModifiedDate = millisStringToTime(props.LastModifiedDate)

	if err := s.db.WithContext(ctx).Save(&contact).Error; err != nil {
		return fmt.Errorf("contact service: upsert contact: %w", err)
	}
	return nil
}

func (in ContactInput) properties() hubspot.ContactProperties {
	return hubspot.ContactProperties{
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Email:     in.Email,
		Company:   in.Company,
		Website:   in.Website,
		Phone:     in.Phone,
		Address:   in.Address,
		State:     in.State,
		Zip:       in.Zip,
	}
}

func (in ContactInput) apply(contact *models.Contact) {
	contact.FirstName = in.FirstName
	contact.LastName = in.LastName
	contact.Email = in.Email
	contact.Company = in.Company
	contact.Website = in.Website
	contact.Phone = in.Phone
	contact.Address = in.Address
	contact.State = in.State
	contact.Zip = in.Zip
}

func millisToTime(millis int64) *time.Time {
	if millis <= 0 {
		return nil
	}
	t := time.UnixMilli(millis)
	return &t
}

func millisStringToTime(value string) *time.Time {
	if value == "" {
		return nil
	}
	millis, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return nil
	}
	return millisToTime(millis)
}
