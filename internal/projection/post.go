package projection

import (
	"context"
	"fmt"

	"github.com/example/ewaste-exchange/internal/domain/post"
	"github.com/example/ewaste-exchange/internal/infrastructure/store"
	"github.com/example/ewaste-exchange/internal/readmodel"
)

// handlePostEvent folds the event into the stored post through the
// aggregate's own ApplyEvent, then re-derives the recycler inbox rows. Only
// the next version is applied; older ones are redeliveries, and a newer one
// means an event is still in flight, so the stream is read back from the
// event source instead.
func (p *Projector) handlePostEvent(ctx context.Context, event store.Event) error {
	p.postMu.Lock()
	defer p.postMu.Unlock()

	current, err := p.loadPost(ctx, event.AggregateID)
	if err != nil || current == nil {
		return err
	}

	switch {
	case event.Version <= current.Version:
		return nil
	case event.Version > current.Version+1:
		return p.catchUpPost(ctx, current, event)
	}

	if err := current.ApplyEvent(event); err != nil {
		return err
	}
	switch event.EventType {
	case post.EventCommentAdded, post.EventNegotiationEntryAdded:
		return p.savePost(ctx, current, false)
	}
	return p.savePost(ctx, current, true)
}

// loadPost returns an empty post for an unseen id, and nil when the stored
// value is not a post read model.
func (p *Projector) loadPost(ctx context.Context, id string) (*post.Post, error) {
	data, found, err := p.readStore.Get(ctx, readmodel.CollectionPosts, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return &post.Post{}, nil
	}
	rm, ok := data.(*readmodel.PostReadModel)
	if !ok {
		return nil, nil
	}
	return postFromReadModel(rm), nil
}

func (p *Projector) catchUpPost(ctx context.Context, current *post.Post, event store.Event) error {
	if p.source == nil {
		return fmt.Errorf("%w: post %s is at v%d, got v%d", ErrVersionGap, event.AggregateID, current.Version, event.Version)
	}
	missing, err := p.source.GetEventsFromVersion(ctx, event.AggregateID, current.Version)
	if err != nil {
		return fmt.Errorf("read post %s after v%d: %w", event.AggregateID, current.Version, err)
	}
	for _, e := range missing {
		if e.Version != current.Version+1 {
			break
		}
		if err := current.ApplyEvent(e); err != nil {
			return err
		}
	}
	if current.Version < event.Version {
		return fmt.Errorf("%w: post %s stops at v%d, want v%d", ErrVersionGap, event.AggregateID, current.Version, event.Version)
	}
	p.log.Info(ctx, "post projection caught up", map[string]any{
		"post_id": event.AggregateID,
		"version": current.Version,
	})
	return p.savePost(ctx, current, true)
}

func (p *Projector) savePost(ctx context.Context, current *post.Post, withInbox bool) error {
	if current.ID == "" {
		return nil
	}
	rm := postToReadModel(current)
	if err := p.readStore.Set(ctx, readmodel.CollectionPosts, rm.ID, rm); err != nil {
		return err
	}
	if !withInbox {
		return nil
	}
	for _, req := range rm.Requests {
		row := &readmodel.RecyclerRequestReadModel{
			ID:               req.ID,
			PostID:           rm.ID,
			OwnerID:          rm.OwnerID,
			RecyclerID:       req.RecyclerID,
			Products:         req.Products,
			UserAddress:      rm.UserAddress,
			AISuggestedTotal: rm.AISuggestedTotal,
			Status:           req.Status,
			PostStatus:       rm.Status,
			SentAt:           req.SentAt,
			RespondedAt:      req.RespondedAt,
		}
		if err := p.readStore.Set(ctx, readmodel.CollectionRequests, row.ID, row); err != nil {
			return err
		}
	}
	return nil
}

func postToReadModel(p *post.Post) *readmodel.PostReadModel {
	rm := &readmodel.PostReadModel{
		ID:                  p.ID,
		OwnerID:             p.OwnerID,
		RecyclerID:          p.RecyclerID,
		Products:            productsToReadModel(p.Products),
		UserAddress:         p.UserAddress,
		UserAcceptedAIPrice: p.UserAcceptedAIPrice,
		AISuggestedTotal:    p.AISuggestedTotal(),
		NegotiatedPrice:     p.NegotiatedPrice,
		IsPriceFinalized:    p.IsPriceFinalized,
		Status:              string(p.Status),
		RequestSentAt:       p.RequestSentAt,
		RequestStatus:       string(p.RequestStatus),
		Tags:                p.Tags,
		CollectedAt:         p.CollectedAt,
		CompletedAt:         p.CompletedAt,
		CreatedAt:           p.CreatedAt,
		UpdatedAt:           p.UpdatedAt,
		Version:             p.Version,
	}
	for _, e := range p.NegotiationHistory {
		rm.NegotiationHistory = append(rm.NegotiationHistory, readmodel.NegotiationEntryReadModel{
			Sender:     string(e.Sender),
			Message:    e.Message,
			PriceOffer: e.PriceOffer,
			CreatedAt:  e.CreatedAt,
		})
	}
	for _, r := range p.Requests {
		rm.Requests = append(rm.Requests, readmodel.RequestReadModel{
			ID:          r.ID,
			RecyclerID:  r.RecyclerID,
			Products:    productsToReadModel(r.Products),
			SentAt:      r.SentAt,
			Status:      string(r.Status),
			RespondedAt: r.RespondedAt,
		})
	}
	for _, c := range p.Comments {
		rm.Comments = append(rm.Comments, readmodel.CommentReadModel(c))
	}
	return rm
}

func postFromReadModel(rm *readmodel.PostReadModel) *post.Post {
	p := &post.Post{
		ID:                  rm.ID,
		OwnerID:             rm.OwnerID,
		RecyclerID:          rm.RecyclerID,
		Products:            productsFromReadModel(rm.Products),
		UserAddress:         rm.UserAddress,
		UserAcceptedAIPrice: rm.UserAcceptedAIPrice,
		NegotiatedPrice:     rm.NegotiatedPrice,
		IsPriceFinalized:    rm.IsPriceFinalized,
		Status:              post.Status(rm.Status),
		RequestSentAt:       rm.RequestSentAt,
		RequestStatus:       post.RequestStatus(rm.RequestStatus),
		Tags:                rm.Tags,
		CollectedAt:         rm.CollectedAt,
		CompletedAt:         rm.CompletedAt,
		CreatedAt:           rm.CreatedAt,
		UpdatedAt:           rm.UpdatedAt,
		Version:             rm.Version,
	}
	for _, e := range rm.NegotiationHistory {
		p.NegotiationHistory = append(p.NegotiationHistory, post.NegotiationEntry{
			Sender:     post.Sender(e.Sender),
			Message:    e.Message,
			PriceOffer: e.PriceOffer,
			CreatedAt:  e.CreatedAt,
		})
	}
	for _, r := range rm.Requests {
		p.Requests = append(p.Requests, post.RecyclerRequest{
			ID:          r.ID,
			RecyclerID:  r.RecyclerID,
			Products:    productsFromReadModel(r.Products),
			SentAt:      r.SentAt,
			Status:      post.RequestStatus(r.Status),
			RespondedAt: r.RespondedAt,
		})
	}
	for _, c := range rm.Comments {
		p.Comments = append(p.Comments, post.Comment(c))
	}
	return p
}

func productsToReadModel(products []post.Product) []readmodel.ProductReadModel {
	out := make([]readmodel.ProductReadModel, 0, len(products))
	for _, prod := range products {
		out = append(out, readmodel.ProductReadModel{
			WasteType:        prod.WasteType,
			Category:         prod.Category,
			Brand:            prod.Brand,
			Model:            prod.Model,
			ConditionDetails: prod.ConditionDetails,
			ConditionSummary: prod.ConditionSummary,
			Quantity:         prod.Quantity,
			Description:      prod.Description,
			Images:           prod.Images,
			ConditionScore:   prod.ConditionScore,
			AISuggestedPrice: prod.AISuggestedPrice,
			AIConditionScore: prod.AIConditionScore,
			AIConfidence:     prod.AIConfidence,
			AIExplanation:    prod.AIExplanation,
			AIPricingSource:  prod.AIPricingSource,
		})
	}
	return out
}

func productsFromReadModel(products []readmodel.ProductReadModel) []post.Product {
	out := make([]post.Product, 0, len(products))
	for _, prod := range products {
		out = append(out, post.Product(prod))
	}
	return out
}
