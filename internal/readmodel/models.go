package readmodel

import "time"

// Collection names used with the read store.
const (
	CollectionPosts    = "posts"
	CollectionRequests = "requests"
	CollectionAccounts = "accounts"
	CollectionSessions = "sessions"
)

// ProductReadModel is one product listed on a post
type ProductReadModel struct {
	WasteType        string            `json:"waste_type"`
	Category         string            `json:"category,omitempty"`
	Brand            string            `json:"brand,omitempty"`
	Model            string            `json:"model,omitempty"`
	ConditionDetails map[string]string `json:"condition_details,omitempty"`
	ConditionSummary string            `json:"condition_summary,omitempty"`
	Quantity         int               `json:"quantity"`
	Description      string            `json:"description,omitempty"`
	Images           []string          `json:"images,omitempty"`
	ConditionScore   *float64          `json:"condition_score,omitempty"`
	AISuggestedPrice *float64          `json:"ai_suggested_price"`
	AIConditionScore *float64          `json:"ai_condition_score"`
	AIConfidence     *float64          `json:"ai_confidence"`
	AIExplanation    string            `json:"ai_explanation,omitempty"`
	AIPricingSource  string            `json:"ai_pricing_source,omitempty"`
}

// NegotiationEntryReadModel is one message or offer in a post's history
type NegotiationEntryReadModel struct {
	Sender     string    `json:"sender"`
	Message    string    `json:"message,omitempty"`
	PriceOffer *float64  `json:"price_offer,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// RequestReadModel is a request as seen on its post
type RequestReadModel struct {
	ID          string             `json:"id"`
	RecyclerID  string             `json:"recycler_id"`
	Products    []ProductReadModel `json:"products"`
	SentAt      time.Time          `json:"sent_at"`
	Status      string             `json:"status"`
	RespondedAt *time.Time         `json:"responded_at,omitempty"`
}

type CommentReadModel struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"author_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// PostReadModel is the read model for posts
type PostReadModel struct {
	ID                  string                      `json:"id"`
	OwnerID             string                      `json:"owner_id"`
	RecyclerID          string                      `json:"recycler_id,omitempty"`
	Products            []ProductReadModel          `json:"products"`
	UserAddress         string                      `json:"user_address"`
	UserAcceptedAIPrice bool                        `json:"user_accepted_ai_price"`
	AISuggestedTotal    float64                     `json:"ai_suggested_total"`
	NegotiationHistory  []NegotiationEntryReadModel `json:"negotiation_history"`
	NegotiatedPrice     *float64                    `json:"negotiated_price"`
	IsPriceFinalized    bool                        `json:"is_price_finalized"`
	Status              string                      `json:"status"`
	Requests            []RequestReadModel          `json:"requests"`
	RequestSentAt       *time.Time                  `json:"request_sent_at,omitempty"`
	RequestStatus       string                      `json:"request_status,omitempty"`
	Comments            []CommentReadModel          `json:"comments"`
	Tags                []string                    `json:"tags"`
	CollectedAt         *time.Time                  `json:"collected_at,omitempty"`
	CompletedAt         *time.Time                  `json:"completed_at,omitempty"`
	CreatedAt           time.Time                   `json:"created_at"`
	UpdatedAt           time.Time                   `json:"updated_at"`
	Version             int                         `json:"version"`
}

// HasRequestFrom reports whether the recycler was ever asked about this post.
func (p *PostReadModel) HasRequestFrom(recyclerID string) bool {
	for _, r := range p.Requests {
		if r.RecyclerID == recyclerID {
			return true
		}
	}
	return false
}

// RecyclerRequestReadModel is the recycler inbox row, derived from the
// post's own requests
type RecyclerRequestReadModel struct {
	ID               string             `json:"id"`
	PostID           string             `json:"post_id"`
	OwnerID          string             `json:"owner_id"`
	RecyclerID       string             `json:"recycler_id"`
	Products         []ProductReadModel `json:"products"`
	UserAddress      string             `json:"user_address"`
	AISuggestedTotal float64            `json:"ai_suggested_total"`
	Status           string             `json:"status"`
	PostStatus       string             `json:"post_status"`
	SentAt           time.Time          `json:"sent_at"`
	RespondedAt      *time.Time         `json:"responded_at,omitempty"`
}

// AccountReadModel is the read model for users and recyclers
type AccountReadModel struct {
	ID              string    `json:"id"`
	Email           string    `json:"email"`
	PasswordHash    string    `json:"-"`
	Name            string    `json:"name"`
	Role            string    `json:"role"`
	Phone           string    `json:"phone,omitempty"`
	City            string    `json:"city,omitempty"`
	Address         string    `json:"address,omitempty"`
	ShopName        string    `json:"shop_name,omitempty"`
	ProfileImageURL string    `json:"profile_image_url,omitempty"`
	ShopImageURL    string    `json:"shop_image_url,omitempty"`
	IdentityDocURL  string    `json:"identity_doc_url,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// SessionReadModel is the read model for refresh-token sessions
type SessionReadModel struct {
	ID               string    `json:"id"`
	AccountID        string    `json:"account_id"`
	RefreshTokenHash string    `json:"-"`
	ExpiresAt        time.Time `json:"expires_at"`
	CreatedAt        time.Time `json:"created_at"`
	IPAddress        string    `json:"ip_address"`
	UserAgent        string    `json:"user_agent"`
}
