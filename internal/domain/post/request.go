package post

import (
	"context"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

type Action string

const (
	ActionAccept Action = "accept"
	ActionReject Action = "reject"
)

type SendRequestInput struct {
	PostID     string
	OwnerID    string
	RecyclerID string
	Products   []Product
}

// SendRequest solicits one recycler. Several recyclers may hold pending
// requests for the same post at once.
func (s *Service) SendRequest(ctx context.Context, in SendRequestInput) (*RecyclerRequest, error) {
	recyclerID := strings.TrimSpace(in.RecyclerID)
	if recyclerID == "" {
		return nil, ErrInvalidRecycler
	}
	products, err := normalizeProducts(in.Products)
	if err != nil {
		return nil, err
	}

	p, err := s.Load(ctx, in.PostID)
	if err != nil {
		return nil, err
	}
	if err := requireOwner(p, in.OwnerID); err != nil {
		return nil, err
	}
	if recyclerID == p.OwnerID {
		return nil, ErrInvalidRecycler.WithDetails(map[string]any{"reason": "cannot send a request to yourself"})
	}
	if p.Status != StatusWaitingRecycler && !p.CanTransitionTo(StatusWaitingRecycler) {
		return nil, p.transitionError(StatusWaitingRecycler)
	}
	if p.hasPendingRequestTo(recyclerID) {
		return nil, ErrDuplicateRequest.WithDetails(map[string]any{"recycler_id": recyclerID})
	}
	if err := s.ensureRecycler(ctx, recyclerID); err != nil {
		return nil, err
	}

	req := RecyclerRequest{
		ID:         ulid.Make().String(),
		RecyclerID: recyclerID,
		Products:   products,
		SentAt:     time.Now().UTC(),
		Status:     RequestStatusPending,
	}
	err = s.commit(ctx, p, EventRequestSent, RequestSent{
		PostID:  p.ID,
		OwnerID: p.OwnerID,
		Request: req,
	})
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "request sent", map[string]any{
		"post_id":     p.ID,
		"request_id":  req.ID,
		"recycler_id": recyclerID,
	})
	return &req, nil
}

type RespondInput struct {
	PostID     string
	RequestID  string
	RecyclerID string
	Action     Action
	// FinalPrice is optional on accept; when set it must sit inside the
	// negotiation corridor and finalizes the price immediately.
	FinalPrice *float64
}

// RespondToRequest lets the targeted recycler accept or reject. The first
// accept assigns the recycler; later accepts on the same post fail.
func (s *Service) RespondToRequest(ctx context.Context, in RespondInput) (*RecyclerRequest, error) {
	if in.Action != ActionAccept && in.Action != ActionReject {
		return nil, ErrInvalidAction.WithDetails(map[string]any{"action": in.Action})
	}

	p, req, err := s.loadRequest(ctx, in.PostID, in.RequestID, in.RecyclerID)
	if err != nil {
		return nil, err
	}
	if req.Status != RequestStatusPending {
		return nil, ErrRequestNotPending.WithDetails(map[string]any{"status": req.Status})
	}

	now := time.Now().UTC()
	if in.Action == ActionReject {
		err = s.commit(ctx, p, EventRequestRejected, RequestRejected{
			PostID:     p.ID,
			RequestID:  req.ID,
			RecyclerID: in.RecyclerID,
			RejectedAt: now,
		})
		if err != nil {
			return nil, err
		}
		return s.requestAfter(p, req.ID), nil
	}

	if p.RecyclerID != "" {
		return nil, ErrRecyclerAssigned.WithDetails(map[string]any{"post_id": p.ID})
	}
	if !p.CanTransitionTo(StatusNegotiation) {
		return nil, p.transitionError(StatusNegotiation)
	}
	var finalPrice *float64
	if in.FinalPrice != nil {
		if err := CorridorFor(p).Check(*in.FinalPrice); err != nil {
			return nil, err
		}
		price := *in.FinalPrice
		finalPrice = &price
	}

	err = s.commit(ctx, p, EventRequestAccepted, RequestAccepted{
		PostID:     p.ID,
		RequestID:  req.ID,
		RecyclerID: in.RecyclerID,
		FinalPrice: finalPrice,
		AcceptedAt: now,
	})
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "request accepted", map[string]any{
		"post_id":     p.ID,
		"request_id":  req.ID,
		"recycler_id": in.RecyclerID,
	})
	return s.requestAfter(p, req.ID), nil
}

// MarkNotificationRead dismisses a pending request without answering it.
func (s *Service) MarkNotificationRead(ctx context.Context, postID, requestID, recyclerID string) (*RecyclerRequest, error) {
	p, req, err := s.loadRequest(ctx, postID, requestID, recyclerID)
	if err != nil {
		return nil, err
	}
	if req.Status != RequestStatusPending {
		return nil, ErrRequestNotPending.WithDetails(map[string]any{"status": req.Status})
	}

	err = s.commit(ctx, p, EventRequestExpired, RequestExpired{
		PostID:     p.ID,
		RequestID:  req.ID,
		RecyclerID: recyclerID,
		ExpiredAt:  time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	return s.requestAfter(p, req.ID), nil
}

func (s *Service) loadRequest(ctx context.Context, postID, requestID, recyclerID string) (*Post, RecyclerRequest, error) {
	p, err := s.Load(ctx, postID)
	if err != nil {
		return nil, RecyclerRequest{}, err
	}
	i, ok := p.request(requestID)
	if !ok {
		return nil, RecyclerRequest{}, ErrRequestNotFound.WithDetails(map[string]any{"request_id": requestID})
	}
	req := p.Requests[i]
	if recyclerID == "" || req.RecyclerID != recyclerID {
		return nil, RecyclerRequest{}, ErrNotRequestTarget
	}
	return p, req, nil
}

func (s *Service) requestAfter(p *Post, requestID string) *RecyclerRequest {
	i, _ := p.request(requestID)
	req := p.Requests[i]
	return &req
}
