package post

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/example/ewaste-exchange/internal/apperr"
	"github.com/example/ewaste-exchange/internal/infrastructure/store"
)

const AggregateType = "Post"

type Status string

const (
	StatusPending         Status = "pending"
	StatusAISuggested     Status = "aiSuggested"
	StatusWaitingRecycler Status = "waitingRecycler"
	StatusNegotiation     Status = "negotiation"
	StatusFinalized       Status = "finalized"
	StatusCollected       Status = "collected"
	StatusCompleted       Status = "completed"
	StatusCancelled       Status = "cancelled"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []Status{
	StatusPending,
	StatusAISuggested,
	StatusWaitingRecycler,
	StatusNegotiation,
	StatusFinalized,
	StatusCollected,
	StatusCompleted,
	StatusCancelled,
}

// ParseStatus validates a status coming from outside the domain.
func ParseStatus(s string) (Status, error) {
	status := Status(s)
	if !slices.Contains(AllStatuses, status) {
		return "", apperr.Wrap(apperr.CodeValidation, ErrInvalidStatus,
			fmt.Sprintf("invalid status %q", s)).WithDetails(map[string]any{"allowed": AllStatuses})
	}
	return status, nil
}

func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

var (
	ErrPostNotFound      = apperr.New(apperr.CodeNotFound, "post not found")
	ErrRequestNotFound   = apperr.New(apperr.CodeNotFound, "request not found")
	ErrRecyclerNotFound  = apperr.New(apperr.CodeNotFound, "recycler not found")
	ErrNoProducts        = apperr.New(apperr.CodeValidation, "at least one product is required")
	ErrAddressRequired   = apperr.New(apperr.CodeValidation, "user address is required")
	ErrInvalidProduct    = apperr.New(apperr.CodeValidation, "invalid product")
	ErrInvalidStatus     = apperr.New(apperr.CodeValidation, "invalid status")
	ErrEmptyEntry        = apperr.New(apperr.CodeValidation, "a message or a price offer is required")
	ErrEmptyMessage      = apperr.New(apperr.CodeValidation, "message text is required")
	ErrNegativePrice     = apperr.New(apperr.CodeValidation, "price must not be negative")
	ErrPriceOutOfRange   = apperr.New(apperr.CodeValidation, "price is outside the negotiation range")
	ErrInvalidAction     = apperr.New(apperr.CodeValidation, "action must be accept or reject")
	ErrInvalidRecycler   = apperr.New(apperr.CodeValidation, "recycler id is required")
	ErrEmptyComment      = apperr.New(apperr.CodeValidation, "comment text is required")
	ErrCommentTooLong    = apperr.New(apperr.CodeValidation, "comment text is too long")
	ErrNotAuthorized     = apperr.New(apperr.CodeForbidden, "not authorized")
	ErrNotInNegotiation  = apperr.New(apperr.CodeForbidden, "not part of this negotiation")
	ErrNotRequestTarget  = apperr.New(apperr.CodeForbidden, "request was sent to another recycler")
	ErrOwnerOnly         = apperr.New(apperr.CodeForbidden, "only the post owner can do this")
	ErrRecyclerOnly      = apperr.New(apperr.CodeForbidden, "only the assigned recycler can do this")
	ErrInvalidTransition = apperr.New(apperr.CodeStateConflict, "invalid post status transition")
	ErrPostClosed        = apperr.New(apperr.CodeStateConflict, "post is closed")
	ErrRecyclerAssigned  = apperr.New(apperr.CodeStateConflict, "a recycler is already assigned to this post")
	ErrRequestNotPending = apperr.New(apperr.CodeStateConflict, "request is no longer pending")
	ErrAIPriceAccepted   = apperr.New(apperr.CodeStateConflict, "AI price already accepted")
	ErrDedicatedStatus   = apperr.New(apperr.CodeStateConflict, "this status is reached through its own operation")
	ErrDuplicateRequest  = apperr.New(apperr.CodeConflict, "a pending request to this recycler already exists")
)

// validTransitions defines allowed state transitions
var validTransitions = map[Status][]Status{
	StatusPending:         {StatusAISuggested, StatusCancelled},
	StatusAISuggested:     {StatusWaitingRecycler, StatusCancelled},
	StatusWaitingRecycler: {StatusNegotiation, StatusCancelled},
	StatusNegotiation:     {StatusFinalized, StatusCancelled},
	StatusFinalized:       {StatusCollected},
	StatusCollected:       {StatusCompleted},
	StatusCompleted:       {}, // terminal state
	StatusCancelled:       {}, // terminal state
}

// CanTransitionTo checks if the post can transition to the target status
func (p *Post) CanTransitionTo(target Status) bool {
	return slices.Contains(validTransitions[p.Status], target)
}

// transitionError returns an appropriate error for an invalid transition
func (p *Post) transitionError(target Status) error {
	if p.Status.IsTerminal() {
		return ErrPostClosed.WithDetails(map[string]any{"status": p.Status})
	}
	return apperr.Wrap(apperr.CodeStateConflict, ErrInvalidTransition,
		fmt.Sprintf("cannot move post from %s to %s", p.Status, target)).
		WithDetails(map[string]any{"from": p.Status, "to": target})
}

// Product is one item on a post. Only the AI fields change after creation.
type Product struct {
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

type Sender string

const (
	SenderUser     Sender = "user"
	SenderRecycler Sender = "recycler"
	SenderSystem   Sender = "system"
)

// NegotiationEntry is never changed once appended.
type NegotiationEntry struct {
	Sender     Sender    `json:"sender"`
	Message    string    `json:"message,omitempty"`
	PriceOffer *float64  `json:"price_offer,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type RequestStatus string

const (
	RequestStatusPending   RequestStatus = "pending"
	RequestStatusAccepted  RequestStatus = "accepted"
	RequestStatusRejected  RequestStatus = "rejected"
	RequestStatusCompleted RequestStatus = "completed"
	RequestStatusExpired   RequestStatus = "expired"
)

// RecyclerRequest is a solicitation to one recycler, addressed by ID within
// its post.
type RecyclerRequest struct {
	ID          string        `json:"id"`
	RecyclerID  string        `json:"recycler_id"`
	Products    []Product     `json:"products"`
	SentAt      time.Time     `json:"sent_at"`
	Status      RequestStatus `json:"status"`
	RespondedAt *time.Time    `json:"responded_at,omitempty"`
}

type Comment struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"author_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

type Post struct {
	ID                  string             `json:"id"`
	OwnerID             string             `json:"owner_id"`
	RecyclerID          string             `json:"recycler_id,omitempty"`
	Products            []Product          `json:"products"`
	UserAddress         string             `json:"user_address"`
	UserAcceptedAIPrice bool               `json:"user_accepted_ai_price"`
	NegotiationHistory  []NegotiationEntry `json:"negotiation_history"`
	NegotiatedPrice     *float64           `json:"negotiated_price"`
	IsPriceFinalized    bool               `json:"is_price_finalized"`
	Status              Status             `json:"status"`
	Requests            []RecyclerRequest  `json:"requests"`
	RequestSentAt       *time.Time         `json:"request_sent_at,omitempty"`
	RequestStatus       RequestStatus      `json:"request_status,omitempty"`
	Comments            []Comment          `json:"comments"`
	Tags                []string           `json:"tags"`
	CollectedAt         *time.Time         `json:"collected_at,omitempty"`
	CompletedAt         *time.Time         `json:"completed_at,omitempty"`
	CreatedAt           time.Time          `json:"created_at"`
	UpdatedAt           time.Time          `json:"updated_at"`
	Version             int                `json:"version"` // Current event version
}

// Aggregate interface implementation
func (p *Post) GetID() string   { return p.ID }
func (p *Post) GetVersion() int { return p.Version }

// AISuggestedTotal sums the AI price of every product, missing prices count
// as zero.
func (p *Post) AISuggestedTotal() float64 {
	var total float64
	for _, prod := range p.Products {
		if prod.AISuggestedPrice != nil {
			total += *prod.AISuggestedPrice
		}
	}
	return total
}

func (p *Post) request(requestID string) (int, bool) {
	for i, r := range p.Requests {
		if r.ID == requestID {
			return i, true
		}
	}
	return -1, false
}

func (p *Post) hasPendingRequestTo(recyclerID string) bool {
	for _, r := range p.Requests {
		if r.RecyclerID == recyclerID && r.Status == RequestStatusPending {
			return true
		}
	}
	return false
}

// refreshRequestStatus summarizes the requests: an accepted (or completed)
// request wins, then any pending one, then the most recent outcome.
func (p *Post) refreshRequestStatus() {
	if len(p.Requests) == 0 {
		p.RequestStatus = ""
		return
	}
	status := p.Requests[len(p.Requests)-1].Status
	for _, r := range p.Requests {
		if r.Status == RequestStatusAccepted || r.Status == RequestStatusCompleted {
			p.RequestStatus = r.Status
			return
		}
		if r.Status == RequestStatusPending {
			status = RequestStatusPending
		}
	}
	p.RequestStatus = status
}

func (p *Post) setRequestStatus(requestID string, status RequestStatus, at time.Time) {
	if i, ok := p.request(requestID); ok {
		p.Requests[i].Status = status
		p.Requests[i].RespondedAt = &at
	}
	p.refreshRequestStatus()
}

// ApplyEvent applies a single event to the post state (implements aggregate.Aggregate)
func (p *Post) ApplyEvent(event store.Event) error {
	switch event.EventType {
	case EventPostCreated:
		var data PostCreated
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		p.ID = data.PostID
		p.OwnerID = data.OwnerID
		p.Products = data.Products
		p.UserAddress = data.UserAddress
		p.Tags = data.Tags
		p.Status = StatusPending
		p.CreatedAt = data.CreatedAt
		p.UpdatedAt = data.CreatedAt

	case EventPricingCompleted:
		var data PricingCompleted
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		for _, est := range data.Estimates {
			if est.Index < 0 || est.Index >= len(p.Products) {
				continue
			}
			prod := &p.Products[est.Index]
			prod.AISuggestedPrice = est.SuggestedPrice
			prod.AIConditionScore = est.ConditionScore
			prod.AIConfidence = est.Confidence
			prod.AIExplanation = est.Explanation
			prod.AIPricingSource = est.Source
		}
		p.Status = StatusAISuggested
		p.UpdatedAt = data.CompletedAt

	case EventAIPriceAccepted:
		var data AIPriceAccepted
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		p.UserAcceptedAIPrice = true
		p.Status = StatusWaitingRecycler
		p.UpdatedAt = data.AcceptedAt

	case EventRecyclerSelected:
		var data RecyclerSelected
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		p.RecyclerID = data.RecyclerID
		p.Status = StatusNegotiation
		p.UpdatedAt = data.SelectedAt

	case EventRequestSent:
		var data RequestSent
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		p.Requests = append(p.Requests, data.Request)
		sentAt := data.Request.SentAt
		p.RequestSentAt = &sentAt
		p.Status = StatusWaitingRecycler
		p.refreshRequestStatus()
		p.UpdatedAt = sentAt

	case EventRequestAccepted:
		var data RequestAccepted
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		p.setRequestStatus(data.RequestID, RequestStatusAccepted, data.AcceptedAt)
		p.RecyclerID = data.RecyclerID
		if data.FinalPrice != nil {
			price := *data.FinalPrice
			p.NegotiatedPrice = &price
			p.IsPriceFinalized = true
		}
		p.Status = StatusNegotiation
		p.UpdatedAt = data.AcceptedAt

	case EventRequestRejected:
		var data RequestRejected
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		p.setRequestStatus(data.RequestID, RequestStatusRejected, data.RejectedAt)
		p.UpdatedAt = data.RejectedAt

	case EventRequestExpired:
		var data RequestExpired
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		p.setRequestStatus(data.RequestID, RequestStatusExpired, data.ExpiredAt)
		p.UpdatedAt = data.ExpiredAt

	case EventNegotiationEntryAdded:
		var data NegotiationEntryAdded
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		p.NegotiationHistory = append(p.NegotiationHistory, data.Entry)
		p.UpdatedAt = data.Entry.CreatedAt

	case EventPriceFinalized:
		var data PriceFinalized
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		price := data.Price
		p.NegotiatedPrice = &price
		p.IsPriceFinalized = true
		if data.SystemEntry != nil {
			p.NegotiationHistory = append(p.NegotiationHistory, *data.SystemEntry)
		}
		p.Status = StatusFinalized
		p.UpdatedAt = data.FinalizedAt

	case EventStatusChanged:
		var data StatusChanged
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		p.Status = data.To
		changedAt := data.ChangedAt
		switch data.To {
		case StatusCollected:
			p.CollectedAt = &changedAt
		case StatusCompleted:
			p.CompletedAt = &changedAt
			for i := range p.Requests {
				if p.Requests[i].Status == RequestStatusAccepted {
					p.Requests[i].Status = RequestStatusCompleted
				}
			}
			p.refreshRequestStatus()
		case StatusCancelled:
			for i := range p.Requests {
				if p.Requests[i].Status == RequestStatusPending {
					p.Requests[i].Status = RequestStatusExpired
					p.Requests[i].RespondedAt = &changedAt
				}
			}
			p.refreshRequestStatus()
		}
		p.UpdatedAt = changedAt

	case EventCommentAdded:
		var data CommentAdded
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		p.Comments = append(p.Comments, data.Comment)
		p.UpdatedAt = data.Comment.CreatedAt
	}
	p.Version = event.Version
	return nil
}
