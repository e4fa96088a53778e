package command

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"sort"
	"time"

	"github.com/example/ewaste-exchange/internal/apperr"
	"github.com/example/ewaste-exchange/internal/auth"
	"github.com/example/ewaste-exchange/internal/domain/account"
	"github.com/example/ewaste-exchange/internal/domain/post"
	"github.com/example/ewaste-exchange/internal/infrastructure/objectstore"
	"github.com/example/ewaste-exchange/internal/infrastructure/store"
	"github.com/example/ewaste-exchange/internal/logger"
	"github.com/example/ewaste-exchange/internal/readmodel"
	"github.com/google/uuid"
)

var ErrSessionExpired = apperr.New(apperr.CodeUnauthorized, "session expired")

// Lookups are the read-side queries commands depend on. *query.Handler
// implements it.
type Lookups interface {
	PostIDForRequest(ctx context.Context, requestID string) (string, error)
	FindAccountByEmail(ctx context.Context, email string) (*readmodel.AccountReadModel, bool, error)
	GetAccount(ctx context.Context, id string) (*readmodel.AccountReadModel, error)
	GetSession(ctx context.Context, id string) (*readmodel.SessionReadModel, bool, error)
}

type Deps struct {
	Posts    *post.Service
	Accounts *account.Service
	Lookups  Lookups
	// Sessions is written directly; sessions are not event sourced.
	Sessions store.ReadStoreInterface
	Tokens   *auth.TokenService
	Uploader objectstore.Uploader
	Log      *logger.Logger
}

type Handler struct {
	posts    *post.Service
	accounts *account.Service
	lookups  Lookups
	sessions store.ReadStoreInterface
	tokens   *auth.TokenService
	uploader objectstore.Uploader
	log      *logger.Logger
	now      func() time.Time
}

func NewHandler(d Deps) *Handler {
	log := d.Log
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{
		posts:    d.Posts,
		accounts: d.Accounts,
		lookups:  d.Lookups,
		sessions: d.Sessions,
		tokens:   d.Tokens,
		uploader: d.Uploader,
		log:      log.Component("command"),
		now:      time.Now,
	}
}

// CreatePostResult carries the new post and any image that failed to upload.
// A failed image never fails the post.
type CreatePostResult struct {
	Post         *post.Post
	UploadErrors []string
}

// CreatePost uploads the product images, then creates and prices the post.
func (h *Handler) CreatePost(ctx context.Context, cmd CreatePost) (*CreatePostResult, error) {
	if cmd.OwnerID == "" {
		return nil, post.ErrNotAuthorized
	}
	if len(cmd.Products) == 0 {
		return nil, post.ErrNoProducts
	}

	products := make([]post.Product, len(cmd.Products))
	for i, prod := range cmd.Products {
		prod.Images = append([]string(nil), prod.Images...)
		products[i] = prod
	}

	uploadErrs, err := h.attachImages(ctx, cmd.OwnerID, products, cmd.ProductImages)
	if err != nil {
		return nil, err
	}

	p, err := h.posts.Create(ctx, post.CreateInput{
		OwnerID:     cmd.OwnerID,
		Products:    products,
		UserAddress: cmd.UserAddress,
		Tags:        cmd.Tags,
		Locality:    cmd.Locality,
	})
	if err != nil {
		return nil, err
	}
	return &CreatePostResult{Post: p, UploadErrors: uploadErrs}, nil
}

func (h *Handler) attachImages(ctx context.Context, ownerID string, products []post.Product, images map[int][]objectstore.File) ([]string, error) {
	if len(images) == 0 {
		return nil, nil
	}
	indices := make([]int, 0, len(images))
	for idx := range images {
		if idx < 0 || idx >= len(products) {
			return nil, post.ErrInvalidProduct.WithDetails(map[string]any{"index": idx, "reason": "images for unknown product"})
		}
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	var files []objectstore.File
	var target []int
	for _, idx := range indices {
		for _, f := range images[idx] {
			f.Kind = objectstore.KindImage
			files = append(files, f)
			target = append(target, idx)
		}
	}

	results, err := objectstore.UploadAll(ctx, h.uploader, "posts/"+ownerID, files)
	if err != nil {
		h.log.Warn(ctx, "some product images failed to upload", map[string]any{"error": err.Error()})
	}
	var failed []string
	for i, r := range results {
		if r.Err != nil {
			failed = append(failed, r.Err.Error())
			continue
		}
		products[target[i]].Images = append(products[target[i]].Images, r.URL)
	}
	return failed, nil
}

func (h *Handler) AcceptAIPrice(ctx context.Context, cmd AcceptAIPrice) (*post.Post, error) {
	return h.posts.AcceptAIPrice(ctx, cmd.PostID, cmd.ActorID)
}

func (h *Handler) SelectRecycler(ctx context.Context, cmd SelectRecycler) (*post.Post, error) {
	return h.posts.SelectRecycler(ctx, cmd.PostID, cmd.ActorID, cmd.RecyclerID)
}

func (h *Handler) AddMessage(ctx context.Context, cmd AddMessage) ([]post.NegotiationEntry, error) {
	return h.posts.AddMessage(ctx, cmd.PostID, cmd.ActorID, cmd.Text)
}

func (h *Handler) AddOffer(ctx context.Context, cmd AddOffer) (*post.Post, error) {
	return h.posts.AddOffer(ctx, cmd.PostID, cmd.ActorID, cmd.Message, cmd.PriceOffer)
}

func (h *Handler) FinalizePrice(ctx context.Context, cmd FinalizePrice) (*post.Post, error) {
	return h.posts.FinalizePrice(ctx, cmd.PostID, cmd.ActorID, cmd.Price)
}

func (h *Handler) RecyclerFinalizePrice(ctx context.Context, cmd FinalizePrice) (*post.Post, error) {
	return h.posts.RecyclerFinalizePrice(ctx, cmd.PostID, cmd.ActorID, cmd.Price)
}

func (h *Handler) UpdateStatus(ctx context.Context, cmd UpdateStatus) (*post.Post, error) {
	return h.posts.UpdateStatus(ctx, cmd.PostID, cmd.ActorID, cmd.Status)
}

func (h *Handler) AddComment(ctx context.Context, cmd AddComment) (*post.Comment, error) {
	return h.posts.AddComment(ctx, cmd.PostID, cmd.ActorID, cmd.Text)
}

// Requests

func (h *Handler) SendRequest(ctx context.Context, cmd SendRequest) (*post.RecyclerRequest, error) {
	return h.posts.SendRequest(ctx, post.SendRequestInput{
		PostID:     cmd.PostID,
		OwnerID:    cmd.OwnerID,
		RecyclerID: cmd.RecyclerID,
		Products:   cmd.Products,
	})
}

// RespondToRequest resolves the request's post from the inbox, then lets
// the post decide.
func (h *Handler) RespondToRequest(ctx context.Context, cmd RespondToRequest) (*post.RecyclerRequest, error) {
	postID, err := h.lookups.PostIDForRequest(ctx, cmd.RequestID)
	if err != nil {
		return nil, err
	}
	return h.posts.RespondToRequest(ctx, post.RespondInput{
		PostID:     postID,
		RequestID:  cmd.RequestID,
		RecyclerID: cmd.RecyclerID,
		Action:     post.Action(cmd.Action),
		FinalPrice: cmd.FinalPrice,
	})
}

func (h *Handler) MarkRequestRead(ctx context.Context, cmd MarkRequestRead) (*post.RecyclerRequest, error) {
	postID, err := h.lookups.PostIDForRequest(ctx, cmd.RequestID)
	if err != nil {
		return nil, err
	}
	return h.posts.MarkNotificationRead(ctx, postID, cmd.RequestID, cmd.RecyclerID)
}

// Accounts

// Session is what a successful login or refresh hands back.
type Session struct {
	Account   *account.Account
	SessionID string
	Tokens    *auth.TokenPair
}

// Register creates the account and signs it in.
func (h *Handler) Register(ctx context.Context, cmd Register, ipAddress, userAgent string) (*Session, error) {
	acc, err := h.accounts.Register(ctx, account.RegisterInput{
		Email:    cmd.Email,
		Password: cmd.Password,
		Name:     cmd.Name,
		Role:     cmd.Role,
		Phone:    cmd.Phone,
		City:     cmd.City,
		Address:  cmd.Address,
		ShopName: cmd.ShopName,
	})
	if err != nil {
		return nil, err
	}
	return h.openSession(ctx, acc, ipAddress, userAgent)
}

// Login checks the password against the event-sourced account, not the
// read model, so a password change takes effect immediately.
func (h *Handler) Login(ctx context.Context, cmd Login) (*Session, error) {
	found, ok, err := h.lookups.FindAccountByEmail(ctx, cmd.Email)
	if err != nil {
		return nil, err
	}
	if !ok {
		auth.BurnPasswordCheck(cmd.Password)
		return nil, account.ErrInvalidCredentials
	}
	acc, err := h.accounts.Load(ctx, found.ID)
	if err != nil {
		return nil, err
	}
	if !auth.CheckPassword(cmd.Password, acc.PasswordHash) {
		return nil, account.ErrInvalidCredentials
	}
	return h.openSession(ctx, acc, cmd.IPAddress, cmd.UserAgent)
}

// Refresh rotates the session: the old one is deleted and a new pair issued.
func (h *Handler) Refresh(ctx context.Context, cmd Refresh) (*Session, error) {
	accountID, err := h.tokens.VerifyRefresh(cmd.RefreshToken)
	if err != nil {
		return nil, err
	}
	sess, ok, err := h.lookups.GetSession(ctx, cmd.SessionID)
	if err != nil {
		return nil, err
	}
	if !ok || sess.AccountID != accountID {
		return nil, auth.ErrInvalidToken
	}
	if h.now().After(sess.ExpiresAt) {
		_ = h.sessions.Delete(ctx, readmodel.CollectionSessions, sess.ID)
		return nil, ErrSessionExpired
	}
	if subtle.ConstantTimeCompare([]byte(hashToken(cmd.RefreshToken)), []byte(sess.RefreshTokenHash)) != 1 {
		return nil, auth.ErrInvalidToken
	}

	acc, err := h.accounts.Load(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if err := h.sessions.Delete(ctx, readmodel.CollectionSessions, sess.ID); err != nil {
		return nil, err
	}
	return h.openSession(ctx, acc, cmd.IPAddress, cmd.UserAgent)
}

func (h *Handler) Logout(ctx context.Context, cmd Logout) error {
	if cmd.SessionID != "" {
		if err := h.sessions.Delete(ctx, readmodel.CollectionSessions, cmd.SessionID); err != nil {
			return err
		}
	}
	if err := h.accounts.RecordLogout(ctx, cmd.AccountID, cmd.SessionID); err != nil {
		h.log.Warn(ctx, "record logout failed", map[string]any{"account_id": cmd.AccountID, "error": err.Error()})
	}
	return nil
}

func (h *Handler) openSession(ctx context.Context, acc *account.Account, ipAddress, userAgent string) (*Session, error) {
	tokens, err := h.tokens.IssuePair(acc.ID, acc.Email, string(acc.Role))
	if err != nil {
		return nil, err
	}
	sessionID := uuid.NewString()
	err = h.sessions.Set(ctx, readmodel.CollectionSessions, sessionID, &readmodel.SessionReadModel{
		ID:               sessionID,
		AccountID:        acc.ID,
		RefreshTokenHash: hashToken(tokens.RefreshToken),
		ExpiresAt:        tokens.RefreshExpiresAt,
		CreatedAt:        h.now().UTC(),
		IPAddress:        ipAddress,
		UserAgent:        userAgent,
	})
	if err != nil {
		return nil, err
	}
	if err := h.accounts.RecordLogin(ctx, acc.ID, sessionID, ipAddress, userAgent); err != nil {
		h.log.Warn(ctx, "record login failed", map[string]any{"account_id": acc.ID, "error": err.Error()})
	}
	return &Session{Account: acc, SessionID: sessionID, Tokens: tokens}, nil
}

func (h *Handler) UpdateProfile(ctx context.Context, accountID string, upd account.ProfileUpdate) (*account.Account, error) {
	return h.accounts.UpdateProfile(ctx, accountID, upd)
}

func (h *Handler) ChangePassword(ctx context.Context, accountID, current, next string) error {
	return h.accounts.ChangePassword(ctx, accountID, current, next)
}

// AccountImagesResult reports the account after the upload and the images
// that failed.
type AccountImagesResult struct {
	Account      *account.Account
	UploadErrors []string
}

// UploadAccountImages stores whichever images were sent. A failed image
// keeps its previous URL.
func (h *Handler) UploadAccountImages(ctx context.Context, cmd UploadAccountImages) (*AccountImagesResult, error) {
	var files []objectstore.File
	add := func(field string, f *objectstore.File, kind objectstore.Kind) {
		if f == nil {
			return
		}
		file := *f
		file.Field = field
		file.Kind = kind
		files = append(files, file)
	}
	add("profile_image", cmd.Profile, objectstore.KindImage)
	add("shop_image", cmd.Shop, objectstore.KindImage)
	add("identity_doc", cmd.IdentityDoc, objectstore.KindDocument)

	results, err := objectstore.UploadAll(ctx, h.uploader, "accounts/"+cmd.AccountID, files)
	if err != nil {
		h.log.Warn(ctx, "some account images failed to upload", map[string]any{"error": err.Error()})
	}

	var images account.Images
	var failed []string
	for _, r := range results {
		if r.Err != nil {
			failed = append(failed, r.Err.Error())
			continue
		}
		switch r.Field {
		case "profile_image":
			images.ProfileImageURL = r.URL
		case "shop_image":
			images.ShopImageURL = r.URL
		case "identity_doc":
			images.IdentityDocURL = r.URL
		}
	}

	acc, err := h.accounts.SetImages(ctx, cmd.AccountID, images)
	if err != nil {
		return nil, err
	}
	return &AccountImagesResult{Account: acc, UploadErrors: failed}, nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
