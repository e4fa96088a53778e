package account

import "time"

const (
	EventAccountRegistered = "AccountRegistered"
	EventProfileUpdated    = "ProfileUpdated"
	EventImagesUpdated     = "ImagesUpdated"
	EventPasswordChanged   = "PasswordChanged"
	EventLoggedIn          = "LoggedIn"
	EventLoggedOut         = "LoggedOut"
)

// AccountRegistered is emitted once per account.
type AccountRegistered struct {
	AccountID    string    `json:"account_id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash"`
	Name         string    `json:"name"`
	Role         Role      `json:"role"`
	Phone        string    `json:"phone,omitempty"`
	City         string    `json:"city,omitempty"`
	Address      string    `json:"address,omitempty"`
	ShopName     string    `json:"shop_name,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// ProfileUpdated carries the full profile after the change.
type ProfileUpdated struct {
	AccountID string    `json:"account_id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	City      string    `json:"city,omitempty"`
	Address   string    `json:"address,omitempty"`
	ShopName  string    `json:"shop_name,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ImagesUpdated carries every image URL after the change; empty means none.
type ImagesUpdated struct {
	AccountID       string    `json:"account_id"`
	ProfileImageURL string    `json:"profile_image_url,omitempty"`
	ShopImageURL    string    `json:"shop_image_url,omitempty"`
	IdentityDocURL  string    `json:"identity_doc_url,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type PasswordChanged struct {
	AccountID    string    `json:"account_id"`
	PasswordHash string    `json:"password_hash"`
	ChangedAt    time.Time `json:"changed_at"`
}

// LoggedIn is an audit record; sessions themselves live in the read store.
type LoggedIn struct {
	AccountID string    `json:"account_id"`
	SessionID string    `json:"session_id"`
	IPAddress string    `json:"ip_address,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	LoggedAt  time.Time `json:"logged_at"`
}

type LoggedOut struct {
	AccountID string    `json:"account_id"`
	SessionID string    `json:"session_id"`
	LoggedAt  time.Time `json:"logged_at"`
}
