package query

import (
	"context"
	"sort"
	"strings"

	"github.com/example/ewaste-exchange/internal/domain/account"
	"github.com/example/ewaste-exchange/internal/domain/post"
	"github.com/example/ewaste-exchange/internal/infrastructure/store"
	"github.com/example/ewaste-exchange/internal/logger"
	"github.com/example/ewaste-exchange/internal/readmodel"
	"github.com/shopspring/decimal"
)

// accountLookup is implemented by read stores with an email index.
type accountLookup interface {
	GetAccountByEmail(ctx context.Context, email string) (*readmodel.AccountReadModel, bool, error)
}

// inboxLookup is implemented by read stores that can filter requests by recycler.
type inboxLookup interface {
	ListRequestsByRecycler(ctx context.Context, recyclerID string) ([]*readmodel.RecyclerRequestReadModel, error)
}

type Handler struct {
	readStore store.ReadStoreInterface
	log       *logger.Logger
}

func NewHandler(readStore store.ReadStoreInterface, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{readStore: readStore, log: log.Component("query")}
}

// Earnings summarizes a recycler's work. Total only counts completed posts.
type Earnings struct {
	RecyclerID     string         `json:"recycler_id"`
	Total          float64        `json:"total"`
	CompletedPosts int            `json:"completed_posts"`
	ByStatus       map[string]int `json:"by_status"`
}

// Posts

func (h *Handler) getPost(ctx context.Context, id string) (*readmodel.PostReadModel, error) {
	data, ok, err := h.readStore.Get(ctx, readmodel.CollectionPosts, id)
	if err != nil {
		h.log.Error(ctx, "get post failed", err, map[string]any{"post_id": id})
		return nil, err
	}
	rm, isPost := data.(*readmodel.PostReadModel)
	if !ok || !isPost {
		return nil, post.ErrPostNotFound.WithDetails(map[string]any{"post_id": id})
	}
	return rm, nil
}

// GetPost returns the post when the actor owns it, is its recycler, or
// was sent a request for it.
func (h *Handler) GetPost(ctx context.Context, postID, actorID string) (*readmodel.PostReadModel, error) {
	rm, err := h.getPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if actorID == "" || (rm.OwnerID != actorID && rm.RecyclerID != actorID && !rm.HasRequestFrom(actorID)) {
		return nil, post.ErrNotAuthorized
	}
	return rm, nil
}

// ListPostsByOwner returns the owner's posts, newest first.
func (h *Handler) ListPostsByOwner(ctx context.Context, ownerID string) ([]*readmodel.PostReadModel, error) {
	return h.listPosts(ctx, func(p *readmodel.PostReadModel) bool { return p.OwnerID == ownerID })
}

// ListPostsByRecycler returns the posts assigned to the recycler, newest first.
func (h *Handler) ListPostsByRecycler(ctx context.Context, recyclerID string) ([]*readmodel.PostReadModel, error) {
	return h.listPosts(ctx, func(p *readmodel.PostReadModel) bool { return p.RecyclerID == recyclerID })
}

func (h *Handler) listPosts(ctx context.Context, keep func(*readmodel.PostReadModel) bool) ([]*readmodel.PostReadModel, error) {
	items, err := h.readStore.GetAll(ctx, readmodel.CollectionPosts)
	if err != nil {
		h.log.Error(ctx, "list posts failed", err)
		return nil, err
	}
	posts := make([]*readmodel.PostReadModel, 0)
	for _, item := range items {
		p, ok := item.(*readmodel.PostReadModel)
		if ok && keep(p) {
			posts = append(posts, p)
		}
	}
	sort.SliceStable(posts, func(i, j int) bool { return posts[i].CreatedAt.After(posts[j].CreatedAt) })
	return posts, nil
}

// Recycler inbox

// ListRecyclerRequests returns the recycler's inbox, newest first. An empty
// status returns every row.
func (h *Handler) ListRecyclerRequests(ctx context.Context, recyclerID, status string) ([]*readmodel.RecyclerRequestReadModel, error) {
	var rows []*readmodel.RecyclerRequestReadModel
	if idx, ok := h.readStore.(inboxLookup); ok {
		found, err := idx.ListRequestsByRecycler(ctx, recyclerID)
		if err != nil {
			h.log.Error(ctx, "list recycler requests failed", err, map[string]any{"recycler_id": recyclerID})
			return nil, err
		}
		rows = found
	} else {
		items, err := h.readStore.GetAll(ctx, readmodel.CollectionRequests)
		if err != nil {
			h.log.Error(ctx, "list recycler requests failed", err, map[string]any{"recycler_id": recyclerID})
			return nil, err
		}
		for _, item := range items {
			if r, ok := item.(*readmodel.RecyclerRequestReadModel); ok && r.RecyclerID == recyclerID {
				rows = append(rows, r)
			}
		}
	}

	out := make([]*readmodel.RecyclerRequestReadModel, 0, len(rows))
	for _, r := range rows {
		if status == "" || r.Status == status {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SentAt.After(out[j].SentAt) })
	return out, nil
}

// GetRequest resolves an inbox row, which carries the id of its post.
func (h *Handler) GetRequest(ctx context.Context, requestID string) (*readmodel.RecyclerRequestReadModel, error) {
	data, ok, err := h.readStore.Get(ctx, readmodel.CollectionRequests, requestID)
	if err != nil {
		h.log.Error(ctx, "get request failed", err, map[string]any{"request_id": requestID})
		return nil, err
	}
	row, isRow := data.(*readmodel.RecyclerRequestReadModel)
	if !ok || !isRow {
		return nil, post.ErrRequestNotFound.WithDetails(map[string]any{"request_id": requestID})
	}
	return row, nil
}

// PostIDForRequest implements command.RequestLocator.
func (h *Handler) PostIDForRequest(ctx context.Context, requestID string) (string, error) {
	row, err := h.GetRequest(ctx, requestID)
	if err != nil {
		return "", err
	}
	return row.PostID, nil
}

// RecyclerEarnings sums the negotiated price of every completed post
// assigned to the recycler.
func (h *Handler) RecyclerEarnings(ctx context.Context, recyclerID string) (*Earnings, error) {
	posts, err := h.ListPostsByRecycler(ctx, recyclerID)
	if err != nil {
		return nil, err
	}
	earnings := &Earnings{RecyclerID: recyclerID, ByStatus: map[string]int{}}
	total := decimal.Zero
	for _, p := range posts {
		earnings.ByStatus[p.Status]++
		if p.Status != string(post.StatusCompleted) || p.NegotiatedPrice == nil {
			continue
		}
		total = total.Add(decimal.NewFromFloat(*p.NegotiatedPrice))
		earnings.CompletedPosts++
	}
	earnings.Total = total.InexactFloat64()
	return earnings, nil
}

// Accounts

func (h *Handler) GetAccount(ctx context.Context, id string) (*readmodel.AccountReadModel, error) {
	data, ok, err := h.readStore.Get(ctx, readmodel.CollectionAccounts, id)
	if err != nil {
		h.log.Error(ctx, "get account failed", err, map[string]any{"account_id": id})
		return nil, err
	}
	acc, isAccount := data.(*readmodel.AccountReadModel)
	if !ok || !isAccount {
		return nil, account.ErrAccountNotFound
	}
	return acc, nil
}

// FindAccountByEmail matches on the normalized email.
func (h *Handler) FindAccountByEmail(ctx context.Context, email string) (*readmodel.AccountReadModel, bool, error) {
	email = account.NormalizeEmail(email)
	if idx, ok := h.readStore.(accountLookup); ok {
		return idx.GetAccountByEmail(ctx, email)
	}
	items, err := h.readStore.GetAll(ctx, readmodel.CollectionAccounts)
	if err != nil {
		return nil, false, err
	}
	for _, item := range items {
		if acc, ok := item.(*readmodel.AccountReadModel); ok && acc.Email == email {
			return acc, true, nil
		}
	}
	return nil, false, nil
}

// EmailTaken implements account.EmailIndex.
func (h *Handler) EmailTaken(ctx context.Context, email string) (bool, error) {
	_, found, err := h.FindAccountByEmail(ctx, email)
	return found, err
}

// ListRecyclersByCity matches the city exactly after trimming spaces.
func (h *Handler) ListRecyclersByCity(ctx context.Context, city string) ([]*readmodel.AccountReadModel, error) {
	city = strings.TrimSpace(city)
	items, err := h.readStore.GetAll(ctx, readmodel.CollectionAccounts)
	if err != nil {
		h.log.Error(ctx, "list recyclers failed", err, map[string]any{"city": city})
		return nil, err
	}
	recyclers := make([]*readmodel.AccountReadModel, 0)
	for _, item := range items {
		acc, ok := item.(*readmodel.AccountReadModel)
		if !ok || acc.Role != string(account.RoleRecycler) {
			continue
		}
		if city != "" && acc.City != city {
			continue
		}
		recyclers = append(recyclers, acc)
	}
	sort.SliceStable(recyclers, func(i, j int) bool { return recyclers[i].ShopName < recyclers[j].ShopName })
	return recyclers, nil
}

// Sessions

func (h *Handler) GetSession(ctx context.Context, id string) (*readmodel.SessionReadModel, bool, error) {
	data, ok, err := h.readStore.Get(ctx, readmodel.CollectionSessions, id)
	if err != nil || !ok {
		return nil, false, err
	}
	sess, isSession := data.(*readmodel.SessionReadModel)
	return sess, isSession, nil
}
