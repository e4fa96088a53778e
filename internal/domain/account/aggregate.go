package account

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/example/ewaste-exchange/internal/apperr"
	"github.com/example/ewaste-exchange/internal/infrastructure/store"
)

const AggregateType = "Account"

type Role string

const (
	RoleUser     Role = "user"
	RoleRecycler Role = "recycler"
)

func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleUser, RoleRecycler:
		return r, nil
	case "":
		return RoleUser, nil
	}
	return "", ErrInvalidRole.WithDetails(map[string]any{"allowed": []Role{RoleUser, RoleRecycler}})
}

var (
	ErrAccountNotFound    = apperr.New(apperr.CodeNotFound, "account not found")
	ErrInvalidEmail       = apperr.New(apperr.CodeValidation, "a valid email is required")
	ErrInvalidName        = apperr.New(apperr.CodeValidation, "name is required")
	ErrInvalidRole        = apperr.New(apperr.CodeValidation, "role must be user or recycler")
	ErrShopDetailsMissing = apperr.New(apperr.CodeValidation, "recyclers need a shop name and a city")
	ErrEmailTaken         = apperr.New(apperr.CodeConflict, "email already registered")
	ErrInvalidCredentials = apperr.New(apperr.CodeUnauthorized, "invalid email or password")
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9]([a-zA-Z0-9\-]*[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9\-]*[a-zA-Z0-9])?)*\.[a-zA-Z]{2,}$`)

func isValidEmail(email string) bool {
	return len(email) <= 254 && emailPattern.MatchString(email)
}

// NormalizeEmail is the form emails are stored and looked up in.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Account is a user or recycler identity record.
type Account struct {
	ID              string    `json:"id"`
	Email           string    `json:"email"`
	PasswordHash    string    `json:"password_hash"`
	Name            string    `json:"name"`
	Role            Role      `json:"role"`
	Phone           string    `json:"phone,omitempty"`
	City            string    `json:"city,omitempty"`
	Address         string    `json:"address,omitempty"`
	ShopName        string    `json:"shop_name,omitempty"`
	ProfileImageURL string    `json:"profile_image_url,omitempty"`
	ShopImageURL    string    `json:"shop_image_url,omitempty"`
	IdentityDocURL  string    `json:"identity_doc_url,omitempty"`
	LastLoginAt     time.Time `json:"last_login_at,omitzero"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	Version         int       `json:"version"`
}

func (a *Account) GetID() string   { return a.ID }
func (a *Account) GetVersion() int { return a.Version }

func (a *Account) IsRecycler() bool { return a.Role == RoleRecycler }

// ApplyEvent applies a single event to the account state
func (a *Account) ApplyEvent(event store.Event) error {
	switch event.EventType {
	case EventAccountRegistered:
		var data AccountRegistered
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		a.ID = data.AccountID
		a.Email = data.Email
		a.PasswordHash = data.PasswordHash
		a.Name = data.Name
		a.Role = data.Role
		a.Phone = data.Phone
		a.City = data.City
		a.Address = data.Address
		a.ShopName = data.ShopName
		a.CreatedAt = data.CreatedAt
		a.UpdatedAt = data.CreatedAt

	case EventProfileUpdated:
		var data ProfileUpdated
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		a.Name = data.Name
		a.Phone = data.Phone
		a.City = data.City
		a.Address = data.Address
		a.ShopName = data.ShopName
		a.UpdatedAt = data.UpdatedAt

	case EventImagesUpdated:
		var data ImagesUpdated
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		a.ProfileImageURL = data.ProfileImageURL
		a.ShopImageURL = data.ShopImageURL
		a.IdentityDocURL = data.IdentityDocURL
		a.UpdatedAt = data.UpdatedAt

	case EventPasswordChanged:
		var data PasswordChanged
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		a.PasswordHash = data.PasswordHash
		a.UpdatedAt = data.ChangedAt

	case EventLoggedIn:
		var data LoggedIn
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		a.LastLoginAt = data.LoggedAt

	case EventLoggedOut:
	}
	a.Version = event.Version
	return nil
}
