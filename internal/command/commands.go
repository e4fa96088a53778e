package command

import (
	"github.com/example/ewaste-exchange/internal/domain/post"
	"github.com/example/ewaste-exchange/internal/infrastructure/objectstore"
)

// Post Commands
type CreatePost struct {
	OwnerID     string
	Products    []post.Product
	UserAddress string
	Tags        []string
	Locality    string
	// ProductImages maps a product index to the files uploaded for it.
	ProductImages map[int][]objectstore.File
}

type AcceptAIPrice struct {
	PostID  string
	ActorID string
}

type SelectRecycler struct {
	PostID     string
	ActorID    string
	RecyclerID string
}

type AddMessage struct {
	PostID  string
	ActorID string
	Text    string
}

type AddOffer struct {
	PostID     string
	ActorID    string
	Message    string
	PriceOffer *float64
}

type FinalizePrice struct {
	PostID  string
	ActorID string
	Price   float64
}

type UpdateStatus struct {
	PostID  string
	ActorID string
	Status  string
}

type AddComment struct {
	PostID  string
	ActorID string
	Text    string
}

// Request Commands
type SendRequest struct {
	PostID     string
	OwnerID    string
	RecyclerID string
	Products   []post.Product
}

type RespondToRequest struct {
	RequestID  string
	RecyclerID string
	Action     string
	FinalPrice *float64
}

type MarkRequestRead struct {
	RequestID  string
	RecyclerID string
}

// Account Commands
type Register struct {
	Email    string
	Password string
	Name     string
	Role     string
	Phone    string
	City     string
	Address  string
	ShopName string
}

type Login struct {
	Email     string
	Password  string
	IPAddress string
	UserAgent string
}

type Refresh struct {
	RefreshToken string
	SessionID    string
	IPAddress    string
	UserAgent    string
}

type Logout struct {
	AccountID string
	SessionID string
}

type UploadAccountImages struct {
	AccountID   string
	Profile     *objectstore.File
	Shop        *objectstore.File
	IdentityDoc *objectstore.File
}
