package notification

import (
	"context"
	"encoding/json"

	"github.com/example/ewaste-exchange/internal/domain/post"
	"github.com/example/ewaste-exchange/internal/email"
	"github.com/example/ewaste-exchange/internal/infrastructure/store"
	"github.com/example/ewaste-exchange/internal/logger"
	"github.com/example/ewaste-exchange/internal/readmodel"
)

// Mailer is implemented by *email.Service.
type Mailer interface {
	SendRequestReceived(ctx context.Context, to string, d email.RequestReceived) error
	SendRequestAnswered(ctx context.Context, to string, d email.RequestAnswered) error
	SendPriceFinalized(ctx context.Context, to string, d email.PriceFinalized) error
}

// Handler emails the parties of a post when its request or price changes.
type Handler struct {
	mailer    Mailer
	readStore store.ReadStoreInterface
	log       *logger.Logger
}

func NewHandler(mailer Mailer, readStore store.ReadStoreInterface, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{mailer: mailer, readStore: readStore, log: log.Component("notifier")}
}

// HandleEvent processes an event from Kafka
func (h *Handler) HandleEvent(ctx context.Context, key, value []byte) error {
	var event store.Event
	if err := json.Unmarshal(value, &event); err != nil {
		h.log.Error(ctx, "decode event failed", err)
		return err
	}
	return h.Notify(ctx, event)
}

// Notify sends the emails one event calls for. Missing recipients are
// logged and skipped; only delivery failures are returned.
func (h *Handler) Notify(ctx context.Context, event store.Event) error {
	if event.AggregateType != post.AggregateType {
		return nil
	}
	switch event.EventType {
	case post.EventRequestSent:
		var e post.RequestSent
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		return h.requestSent(ctx, e)
	case post.EventRequestAccepted:
		var e post.RequestAccepted
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		return h.requestAnswered(ctx, e.PostID, e.RecyclerID, true, e.FinalPrice)
	case post.EventRequestRejected:
		var e post.RequestRejected
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		return h.requestAnswered(ctx, e.PostID, e.RecyclerID, false, nil)
	case post.EventPriceFinalized:
		var e post.PriceFinalized
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		return h.priceFinalized(ctx, e)
	}
	return nil
}

func (h *Handler) requestSent(ctx context.Context, e post.RequestSent) error {
	recycler, ok := h.account(ctx, e.Request.RecyclerID)
	if !ok {
		return nil
	}
	d := email.RequestReceived{
		RecyclerName: recycler.Name,
		PostID:       e.PostID,
		ProductCount: len(e.Request.Products),
	}
	if owner, ok := h.account(ctx, e.OwnerID); ok {
		d.OwnerName = owner.Name
	}
	if p, ok := h.post(ctx, e.PostID); ok {
		d.UserAddress = p.UserAddress
		d.AISuggestedTotal = p.AISuggestedTotal
		if d.ProductCount == 0 {
			d.ProductCount = len(p.Products)
		}
	}
	return h.mailer.SendRequestReceived(ctx, recycler.Email, d)
}

func (h *Handler) requestAnswered(ctx context.Context, postID, recyclerID string, accepted bool, finalPrice *float64) error {
	p, ok := h.post(ctx, postID)
	if !ok {
		return nil
	}
	owner, ok := h.account(ctx, p.OwnerID)
	if !ok {
		return nil
	}
	d := email.RequestAnswered{
		OwnerName:  owner.Name,
		ShopName:   "The recycler",
		PostID:     postID,
		Accepted:   accepted,
		FinalPrice: finalPrice,
	}
	if recycler, ok := h.account(ctx, recyclerID); ok && recycler.ShopName != "" {
		d.ShopName = recycler.ShopName
	}
	return h.mailer.SendRequestAnswered(ctx, owner.Email, d)
}

func (h *Handler) priceFinalized(ctx context.Context, e post.PriceFinalized) error {
	p, ok := h.post(ctx, e.PostID)
	if !ok {
		return nil
	}
	by := string(post.SenderUser)
	if e.FinalizedBy == p.RecyclerID && p.RecyclerID != "" {
		by = string(post.SenderRecycler)
	}

	var firstErr error
	for _, id := range []string{p.OwnerID, p.RecyclerID} {
		acc, ok := h.account(ctx, id)
		if !ok {
			continue
		}
		err := h.mailer.SendPriceFinalized(ctx, acc.Email, email.PriceFinalized{
			Name:        acc.Name,
			PostID:      e.PostID,
			Price:       e.Price,
			FinalizedBy: by,
		})
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (h *Handler) account(ctx context.Context, id string) (*readmodel.AccountReadModel, bool) {
	if id == "" {
		return nil, false
	}
	data, ok, err := h.readStore.Get(ctx, readmodel.CollectionAccounts, id)
	if err != nil || !ok {
		h.log.Warn(ctx, "recipient not found", map[string]any{"account_id": id})
		return nil, false
	}
	acc, isAccount := data.(*readmodel.AccountReadModel)
	return acc, isAccount && acc.Email != ""
}

func (h *Handler) post(ctx context.Context, id string) (*readmodel.PostReadModel, bool) {
	data, ok, err := h.readStore.Get(ctx, readmodel.CollectionPosts, id)
	if err != nil || !ok {
		h.log.Warn(ctx, "post not found", map[string]any{"post_id": id})
		return nil, false
	}
	p, isPost := data.(*readmodel.PostReadModel)
	return p, isPost
}
