package post

import "time"

const (
	EventPostCreated           = "PostCreated"
	EventPricingCompleted      = "PricingCompleted"
	EventAIPriceAccepted       = "AIPriceAccepted"
	EventRecyclerSelected      = "RecyclerSelected"
	EventRequestSent           = "RequestSent"
	EventRequestAccepted       = "RequestAccepted"
	EventRequestRejected       = "RequestRejected"
	EventRequestExpired        = "RequestExpired"
	EventNegotiationEntryAdded = "NegotiationEntryAdded"
	EventPriceFinalized        = "PriceFinalized"
	EventStatusChanged         = "StatusChanged"
	EventCommentAdded          = "CommentAdded"
)

type PostCreated struct {
	PostID      string    `json:"post_id"`
	OwnerID     string    `json:"owner_id"`
	Products    []Product `json:"products"`
	UserAddress string    `json:"user_address"`
	Tags        []string  `json:"tags,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ProductEstimate carries the pricing result for Products[Index]. Nil numbers
// mean the estimation itself failed.
type ProductEstimate struct {
	Index          int      `json:"index"`
	SuggestedPrice *float64 `json:"suggested_price"`
	ConditionScore *float64 `json:"condition_score"`
	Confidence     *float64 `json:"confidence"`
	Explanation    string   `json:"explanation"`
	Source         string   `json:"source,omitempty"`
}

type PricingCompleted struct {
	PostID      string            `json:"post_id"`
	Estimates   []ProductEstimate `json:"estimates"`
	CompletedAt time.Time         `json:"completed_at"`
}

type AIPriceAccepted struct {
	PostID     string    `json:"post_id"`
	OwnerID    string    `json:"owner_id"`
	AcceptedAt time.Time `json:"accepted_at"`
}

type RecyclerSelected struct {
	PostID     string    `json:"post_id"`
	RecyclerID string    `json:"recycler_id"`
	SelectedAt time.Time `json:"selected_at"`
}

type RequestSent struct {
	PostID  string          `json:"post_id"`
	OwnerID string          `json:"owner_id"`
	Request RecyclerRequest `json:"request"`
}

type RequestAccepted struct {
	PostID     string    `json:"post_id"`
	RequestID  string    `json:"request_id"`
	RecyclerID string    `json:"recycler_id"`
	FinalPrice *float64  `json:"final_price,omitempty"`
	AcceptedAt time.Time `json:"accepted_at"`
}

type RequestRejected struct {
	PostID     string    `json:"post_id"`
	RequestID  string    `json:"request_id"`
	RecyclerID string    `json:"recycler_id"`
	RejectedAt time.Time `json:"rejected_at"`
}

type RequestExpired struct {
	PostID     string    `json:"post_id"`
	RequestID  string    `json:"request_id"`
	RecyclerID string    `json:"recycler_id"`
	ExpiredAt  time.Time `json:"expired_at"`
}

type NegotiationEntryAdded struct {
	PostID  string           `json:"post_id"`
	ActorID string           `json:"actor_id"`
	Entry   NegotiationEntry `json:"entry"`
}

// PriceFinalized closes the negotiation. SystemEntry is set when the
// recycler finalized and is appended to the history.
type PriceFinalized struct {
	PostID      string            `json:"post_id"`
	FinalizedBy string            `json:"finalized_by"`
	Price       float64           `json:"price"`
	SystemEntry *NegotiationEntry `json:"system_entry,omitempty"`
	FinalizedAt time.Time         `json:"finalized_at"`
}

type StatusChanged struct {
	PostID    string    `json:"post_id"`
	ActorID   string    `json:"actor_id"`
	From      Status    `json:"from"`
	To        Status    `json:"to"`
	ChangedAt time.Time `json:"changed_at"`
}

type CommentAdded struct {
	PostID  string  `json:"post_id"`
	Comment Comment `json:"comment"`
}
