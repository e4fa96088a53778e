package post

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/example/ewaste-exchange/internal/domain/aggregate"
	"github.com/example/ewaste-exchange/internal/infrastructure/store"
	"github.com/example/ewaste-exchange/internal/logger"
	"github.com/example/ewaste-exchange/internal/pricing"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	maxDescriptionRunes = 1000
	maxCommentRunes     = 1000
)

// PriceEstimator prices a single product and never fails.
type PriceEstimator interface {
	Estimate(ctx context.Context, in pricing.Input, locality string) pricing.Estimate
}

// RecyclerDirectory answers whether a recycler account exists.
type RecyclerDirectory interface {
	RecyclerExists(ctx context.Context, recyclerID string) (bool, error)
}

type Service struct {
	eventStore store.EventStoreInterface
	pricer     PriceEstimator
	recyclers  RecyclerDirectory
	log        *logger.Logger
}

func NewService(es store.EventStoreInterface, pricer PriceEstimator, recyclers RecyclerDirectory, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		eventStore: es,
		pricer:     pricer,
		recyclers:  recyclers,
		log:        log.Component("post"),
	}
}

// Load rebuilds a post from its events
func (s *Service) Load(ctx context.Context, postID string) (*Post, error) {
	p, found, err := aggregate.Load(ctx, s.eventStore, postID, func() *Post {
		return &Post{}
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrPostNotFound.WithDetails(map[string]any{"post_id": postID})
	}
	return p, nil
}

// commit appends one event at the loaded version and applies it locally.
// A version mismatch surfaces as store.ErrVersionConflict and nothing is
// written.
func (s *Service) commit(ctx context.Context, p *Post, eventType string, data any) error {
	if err := aggregate.Commit(ctx, s.eventStore, p, AggregateType, eventType, data); err != nil {
		return err
	}
	if err := aggregate.SnapshotIfDue(ctx, s.eventStore, p, AggregateType); err != nil {
		s.log.Error(ctx, "failed to create snapshot", err, map[string]any{"post_id": p.ID})
	}
	return nil
}

type CreateInput struct {
	OwnerID     string
	Products    []Product
	UserAddress string
	Tags        []string
	// Locality is passed to the estimator; the address is used when empty.
	Locality string
}

// Create stores the post as pending, prices every product concurrently and
// moves the post to aiSuggested.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Post, error) {
	if in.OwnerID == "" {
		return nil, ErrNotAuthorized
	}
	products, err := normalizeProducts(in.Products)
	if err != nil {
		return nil, err
	}
	address := strings.TrimSpace(in.UserAddress)
	if address == "" {
		return nil, ErrAddressRequired
	}

	p := &Post{ID: uuid.New().String()}
	err = s.commit(ctx, p, EventPostCreated, PostCreated{
		PostID:      p.ID,
		OwnerID:     in.OwnerID,
		Products:    products,
		UserAddress: address,
		Tags:        normalizeTags(in.Tags),
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	// Once the post exists it must reach aiSuggested even if the caller
	// goes away; the estimator's own timeout bounds the wait.
	ctx = context.WithoutCancel(ctx)

	locality := strings.TrimSpace(in.Locality)
	if locality == "" {
		locality = address
	}
	estimates := s.priceProducts(ctx, p.Products, locality)

	err = s.commit(ctx, p, EventPricingCompleted, PricingCompleted{
		PostID:      p.ID,
		Estimates:   estimates,
		CompletedAt: time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "post created", map[string]any{
		"post_id":  p.ID,
		"products": len(p.Products),
		"ai_total": p.AISuggestedTotal(),
	})
	return p, nil
}

func (s *Service) priceProducts(ctx context.Context, products []Product, locality string) []ProductEstimate {
	estimates := make([]ProductEstimate, len(products))
	var g errgroup.Group
	for i, prod := range products {
		g.Go(func() error {
			estimates[i] = s.estimateOne(ctx, i, prod, locality)
			return nil
		})
	}
	_ = g.Wait()
	return estimates
}

// estimateOne isolates one product's estimation; a panic leaves the
// product unpriced instead of failing its siblings.
func (s *Service) estimateOne(ctx context.Context, index int, prod Product, locality string) (est ProductEstimate) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error(ctx, "price estimation failed", fmt.Errorf("panic: %v", r), map[string]any{"index": index})
			est = ProductEstimate{
				Index:       index,
				Explanation: "price estimation failed; no suggested price is available for this item",
			}
		}
	}()

	input := pricing.Input{
		WasteType:        prod.WasteType,
		Category:         prod.Category,
		Brand:            prod.Brand,
		Model:            prod.Model,
		ConditionSummary: prod.ConditionSummary,
		ConditionDetails: prod.ConditionDetails,
		Quantity:         prod.Quantity,
		Description:      prod.Description,
		ConditionScore:   prod.ConditionScore,
	}

	var e pricing.Estimate
	if s.pricer == nil {
		e = pricing.Fallback(input, pricing.ReasonUnconfigured)
	} else {
		e = s.pricer.Estimate(ctx, input, locality)
	}

	price, score, confidence := e.Price, e.ConditionScore, e.Confidence
	return ProductEstimate{
		Index:          index,
		SuggestedPrice: &price,
		ConditionScore: &score,
		Confidence:     &confidence,
		Explanation:    e.Explanation,
		Source:         string(e.Source),
	}
}

// AcceptAIPrice records that the owner takes the AI suggestion and is now
// waiting for a recycler.
func (s *Service) AcceptAIPrice(ctx context.Context, postID, actorID string) (*Post, error) {
	p, err := s.Load(ctx, postID)
	if err != nil {
		return nil, err
	}
	if err := requireOwner(p, actorID); err != nil {
		return nil, err
	}
	if p.UserAcceptedAIPrice {
		return nil, ErrAIPriceAccepted
	}
	if p.Status != StatusWaitingRecycler && !p.CanTransitionTo(StatusWaitingRecycler) {
		return nil, p.transitionError(StatusWaitingRecycler)
	}

	err = s.commit(ctx, p, EventAIPriceAccepted, AIPriceAccepted{
		PostID:     p.ID,
		OwnerID:    actorID,
		AcceptedAt: time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// SelectRecycler lets the owner assign a recycler directly.
func (s *Service) SelectRecycler(ctx context.Context, postID, actorID, recyclerID string) (*Post, error) {
	if strings.TrimSpace(recyclerID) == "" {
		return nil, ErrInvalidRecycler
	}
	p, err := s.Load(ctx, postID)
	if err != nil {
		return nil, err
	}
	if err := requireOwner(p, actorID); err != nil {
		return nil, err
	}
	if p.RecyclerID != "" {
		return nil, ErrRecyclerAssigned
	}
	if !p.CanTransitionTo(StatusNegotiation) {
		return nil, p.transitionError(StatusNegotiation)
	}
	if err := s.ensureRecycler(ctx, recyclerID); err != nil {
		return nil, err
	}

	err = s.commit(ctx, p, EventRecyclerSelected, RecyclerSelected{
		PostID:     p.ID,
		RecyclerID: recyclerID,
		SelectedAt: time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) ensureRecycler(ctx context.Context, recyclerID string) error {
	if s.recyclers == nil {
		return nil
	}
	ok, err := s.recyclers.RecyclerExists(ctx, recyclerID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrRecyclerNotFound.WithDetails(map[string]any{"recycler_id": recyclerID})
	}
	return nil
}

// AddMessage appends a chat message and returns the full history.
func (s *Service) AddMessage(ctx context.Context, postID, actorID, text string) ([]NegotiationEntry, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	p, err := s.appendEntry(ctx, postID, actorID, text, nil)
	if err != nil {
		return nil, err
	}
	return p.NegotiationHistory, nil
}

// AddOffer appends a message, a price offer, or both.
func (s *Service) AddOffer(ctx context.Context, postID, actorID, message string, priceOffer *float64) (*Post, error) {
	message = strings.TrimSpace(message)
	if message == "" && priceOffer == nil {
		return nil, ErrEmptyEntry
	}
	if priceOffer != nil && *priceOffer < 0 {
		return nil, ErrNegativePrice
	}
	return s.appendEntry(ctx, postID, actorID, message, priceOffer)
}

func (s *Service) appendEntry(ctx context.Context, postID, actorID, message string, priceOffer *float64) (*Post, error) {
	p, err := s.Load(ctx, postID)
	if err != nil {
		return nil, err
	}
	role, err := requireParticipant(p, actorID, ErrNotInNegotiation)
	if err != nil {
		return nil, err
	}
	if p.Status.IsTerminal() {
		return nil, p.transitionError(p.Status)
	}

	err = s.commit(ctx, p, EventNegotiationEntryAdded, NegotiationEntryAdded{
		PostID:  p.ID,
		ActorID: actorID,
		Entry: NegotiationEntry{
			Sender:     role.sender(),
			Message:    message,
			PriceOffer: priceOffer,
			CreatedAt:  time.Now().UTC(),
		},
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// FinalizePrice settles the price; owner and assigned recycler both may call
// it and the corridor applies to both.
func (s *Service) FinalizePrice(ctx context.Context, postID, actorID string, price float64) (*Post, error) {
	p, err := s.Load(ctx, postID)
	if err != nil {
		return nil, err
	}
	if _, err := requireParticipant(p, actorID, ErrNotAuthorized); err != nil {
		return nil, err
	}
	return p, s.finalize(ctx, p, actorID, price, nil)
}

// RecyclerFinalizePrice is the recycler-side finalize. It also leaves a
// system entry in the history.
func (s *Service) RecyclerFinalizePrice(ctx context.Context, postID, actorID string, price float64) (*Post, error) {
	p, err := s.Load(ctx, postID)
	if err != nil {
		return nil, err
	}
	if err := requireRecycler(p, actorID); err != nil {
		return nil, err
	}

	entryPrice := price
	entry := &NegotiationEntry{
		Sender:     SenderSystem,
		Message:    fmt.Sprintf("Price finalized at %s by the recycler", formatPrice(price)),
		PriceOffer: &entryPrice,
		CreatedAt:  time.Now().UTC(),
	}
	return p, s.finalize(ctx, p, actorID, price, entry)
}

func (s *Service) finalize(ctx context.Context, p *Post, actorID string, price float64, systemEntry *NegotiationEntry) error {
	if !p.CanTransitionTo(StatusFinalized) {
		return p.transitionError(StatusFinalized)
	}
	if err := CorridorFor(p).Check(price); err != nil {
		return err
	}

	err := s.commit(ctx, p, EventPriceFinalized, PriceFinalized{
		PostID:      p.ID,
		FinalizedBy: actorID,
		Price:       price,
		SystemEntry: systemEntry,
		FinalizedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	s.log.Info(ctx, "price finalized", map[string]any{"post_id": p.ID, "price": price})
	return nil
}

// UpdateStatus performs the transitions that have no dedicated operation:
// collected, completed and cancelled.
func (s *Service) UpdateStatus(ctx context.Context, postID, actorID, rawStatus string) (*Post, error) {
	target, err := ParseStatus(rawStatus)
	if err != nil {
		return nil, err
	}
	p, err := s.Load(ctx, postID)
	if err != nil {
		return nil, err
	}
	if _, err := requireParticipant(p, actorID, ErrNotAuthorized); err != nil {
		return nil, err
	}

	switch target {
	case StatusCancelled:
		if err := requireOwner(p, actorID); err != nil {
			return nil, err
		}
	case StatusCollected, StatusCompleted:
	default:
		return nil, ErrDedicatedStatus.WithDetails(map[string]any{"status": target})
	}
	if !p.CanTransitionTo(target) {
		return nil, p.transitionError(target)
	}

	err = s.commit(ctx, p, EventStatusChanged, StatusChanged{
		PostID:    p.ID,
		ActorID:   actorID,
		From:      p.Status,
		To:        target,
		ChangedAt: time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) AddComment(ctx context.Context, postID, actorID, text string) (*Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyComment
	}
	if utf8.RuneCountInString(text) > maxCommentRunes {
		return nil, ErrCommentTooLong.WithDetails(map[string]any{"max_length": maxCommentRunes})
	}
	p, err := s.Load(ctx, postID)
	if err != nil {
		return nil, err
	}
	if _, err := requireParticipant(p, actorID, ErrNotAuthorized); err != nil {
		return nil, err
	}

	comment := Comment{
		ID:        uuid.New().String(),
		AuthorID:  actorID,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.commit(ctx, p, EventCommentAdded, CommentAdded{PostID: p.ID, Comment: comment}); err != nil {
		return nil, err
	}
	return &comment, nil
}

func normalizeProducts(in []Product) ([]Product, error) {
	if len(in) == 0 {
		return nil, ErrNoProducts
	}
	out := make([]Product, 0, len(in))
	for i, prod := range in {
		prod.WasteType = strings.TrimSpace(prod.WasteType)
		if prod.WasteType == "" {
			return nil, invalidProduct(i, "waste type is required")
		}
		switch {
		case prod.Quantity == 0:
			prod.Quantity = 1
		case prod.Quantity < 0:
			return nil, invalidProduct(i, "quantity must be at least 1")
		}
		if utf8.RuneCountInString(prod.Description) > maxDescriptionRunes {
			return nil, invalidProduct(i, fmt.Sprintf("description must be at most %d characters", maxDescriptionRunes))
		}
		if prod.ConditionScore != nil && (*prod.ConditionScore < 0 || *prod.ConditionScore > 100) {
			return nil, invalidProduct(i, "condition score must be between 0 and 100")
		}
		prod.AISuggestedPrice = nil
		prod.AIConditionScore = nil
		prod.AIConfidence = nil
		prod.AIExplanation = ""
		prod.AIPricingSource = ""
		out = append(out, prod)
	}
	return out, nil
}

func invalidProduct(index int, reason string) error {
	return ErrInvalidProduct.WithDetails(map[string]any{"index": index, "reason": reason})
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func formatPrice(v float64) string {
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.2f", v), "0"), ".")
}
