package account

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/example/ewaste-exchange/internal/auth"
	"github.com/example/ewaste-exchange/internal/domain/aggregate"
	"github.com/example/ewaste-exchange/internal/infrastructure/store"
	"github.com/example/ewaste-exchange/internal/logger"
	"github.com/google/uuid"
)

// EmailIndex answers whether an email is already registered. It is backed
// by the accounts read model.
type EmailIndex interface {
	EmailTaken(ctx context.Context, email string) (bool, error)
}

// Service handles account domain operations
type Service struct {
	eventStore store.EventStoreInterface
	emails     EmailIndex
	log        *logger.Logger
}

func NewService(es store.EventStoreInterface, emails EmailIndex, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{eventStore: es, emails: emails, log: log.Component("account")}
}

func (s *Service) Load(ctx context.Context, accountID string) (*Account, error) {
	a, found, err := aggregate.Load(ctx, s.eventStore, accountID, func() *Account {
		return &Account{}
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrAccountNotFound.WithDetails(map[string]any{"account_id": accountID})
	}
	return a, nil
}

// RecyclerExists reports whether accountID is a registered recycler.
func (s *Service) RecyclerExists(ctx context.Context, accountID string) (bool, error) {
	a, err := s.Load(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return false, nil
		}
		return false, err
	}
	return a.IsRecycler(), nil
}

func (s *Service) commit(ctx context.Context, a *Account, eventType string, data any) error {
	if err := aggregate.Commit(ctx, s.eventStore, a, AggregateType, eventType, data); err != nil {
		return err
	}
	if err := aggregate.SnapshotIfDue(ctx, s.eventStore, a, AggregateType); err != nil {
		s.log.Error(ctx, "failed to create snapshot", err, map[string]any{"account_id": a.ID})
	}
	return nil
}

type RegisterInput struct {
	Email    string
	Password string
	Name     string
	Role     string
	Phone    string
	City     string
	Address  string
	ShopName string
}

// Register creates a user or recycler account. Recyclers must name their
// shop and city so they can be found by city.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Account, error) {
	email := NormalizeEmail(in.Email)
	if !isValidEmail(email) {
		return nil, ErrInvalidEmail
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, ErrInvalidName
	}
	role, err := ParseRole(in.Role)
	if err != nil {
		return nil, err
	}
	city := strings.TrimSpace(in.City)
	shop := strings.TrimSpace(in.ShopName)
	if role == RoleRecycler && (city == "" || shop == "") {
		return nil, ErrShopDetailsMissing
	}

	if s.emails != nil {
		taken, err := s.emails.EmailTaken(ctx, email)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, ErrEmailTaken
		}
	}

	passwordHash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	a := &Account{ID: uuid.New().String()}
	err = s.commit(ctx, a, EventAccountRegistered, AccountRegistered{
		AccountID:    a.ID,
		Email:        email,
		PasswordHash: passwordHash,
		Name:         name,
		Role:         role,
		Phone:        strings.TrimSpace(in.Phone),
		City:         city,
		Address:      strings.TrimSpace(in.Address),
		ShopName:     shop,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "account registered", map[string]any{"account_id": a.ID, "role": role})
	return a, nil
}

// ProfileUpdate holds optional changes; nil fields are left alone.
type ProfileUpdate struct {
	Name     *string
	Phone    *string
	City     *string
	Address  *string
	ShopName *string
}

func (s *Service) UpdateProfile(ctx context.Context, accountID string, upd ProfileUpdate) (*Account, error) {
	a, err := s.Load(ctx, accountID)
	if err != nil {
		return nil, err
	}

	next := ProfileUpdated{
		AccountID: a.ID,
		Name:      pick(upd.Name, a.Name),
		Phone:     pick(upd.Phone, a.Phone),
		City:      pick(upd.City, a.City),
		Address:   pick(upd.Address, a.Address),
		ShopName:  pick(upd.ShopName, a.ShopName),
		UpdatedAt: time.Now().UTC(),
	}
	if next.Name == "" {
		return nil, ErrInvalidName
	}
	if a.IsRecycler() && (next.City == "" || next.ShopName == "") {
		return nil, ErrShopDetailsMissing
	}

	if err := s.commit(ctx, a, EventProfileUpdated, next); err != nil {
		return nil, err
	}
	return a, nil
}

func pick(v *string, current string) string {
	if v == nil {
		return current
	}
	return strings.TrimSpace(*v)
}

// Images are URLs returned by object storage. Empty values keep the current
// image, so a failed upload never erases one.
type Images struct {
	ProfileImageURL string
	ShopImageURL    string
	IdentityDocURL  string
}

func (s *Service) SetImages(ctx context.Context, accountID string, img Images) (*Account, error) {
	a, err := s.Load(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if img == (Images{}) {
		return a, nil
	}

	err = s.commit(ctx, a, EventImagesUpdated, ImagesUpdated{
		AccountID:       a.ID,
		ProfileImageURL: orCurrent(img.ProfileImageURL, a.ProfileImageURL),
		ShopImageURL:    orCurrent(img.ShopImageURL, a.ShopImageURL),
		IdentityDocURL:  orCurrent(img.IdentityDocURL, a.IdentityDocURL),
		UpdatedAt:       time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

func orCurrent(v, current string) string {
	if v == "" {
		return current
	}
	return v
}

// ChangePassword verifies the current password against the event-sourced
// hash before storing the new one.
func (s *Service) ChangePassword(ctx context.Context, accountID, current, next string) error {
	a, err := s.Load(ctx, accountID)
	if err != nil {
		return err
	}
	if !auth.CheckPassword(current, a.PasswordHash) {
		return ErrInvalidCredentials
	}
	hash, err := auth.HashPassword(next)
	if err != nil {
		return err
	}
	return s.commit(ctx, a, EventPasswordChanged, PasswordChanged{
		AccountID:    a.ID,
		PasswordHash: hash,
		ChangedAt:    time.Now().UTC(),
	})
}

// RecordLogin appends the audit event for a new session.
func (s *Service) RecordLogin(ctx context.Context, accountID, sessionID, ipAddress, userAgent string) error {
	a, err := s.Load(ctx, accountID)
	if err != nil {
		return err
	}
	return s.commit(ctx, a, EventLoggedIn, LoggedIn{
		AccountID: accountID,
		SessionID: sessionID,
		IPAddress: ipAddress,
		UserAgent: userAgent,
		LoggedAt:  time.Now().UTC(),
	})
}

func (s *Service) RecordLogout(ctx context.Context, accountID, sessionID string) error {
	a, err := s.Load(ctx, accountID)
	if err != nil {
		return err
	}
	return s.commit(ctx, a, EventLoggedOut, LoggedOut{
		AccountID: accountID,
		SessionID: sessionID,
		LoggedAt:  time.Now().UTC(),
	})
}
