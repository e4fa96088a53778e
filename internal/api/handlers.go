package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/example/ewaste-exchange/internal/api/middleware"
	"github.com/example/ewaste-exchange/internal/api/respond"
	"github.com/example/ewaste-exchange/internal/apperr"
	"github.com/example/ewaste-exchange/internal/command"
	"github.com/example/ewaste-exchange/internal/domain/account"
	"github.com/example/ewaste-exchange/internal/domain/post"
	"github.com/example/ewaste-exchange/internal/infrastructure/objectstore"
	"github.com/example/ewaste-exchange/internal/logger"
	"github.com/example/ewaste-exchange/internal/query"
	"github.com/go-chi/chi/v5"
)

// productImagesPrefix names the multipart fields carrying product images,
// e.g. "images_0" for the first product.
const productImagesPrefix = "images_"

type Handlers struct {
	cmd   *command.Handler
	query *query.Handler
	log   *logger.Logger
}

func NewHandlers(cmd *command.Handler, q *query.Handler, log *logger.Logger) *Handlers {
	if log == nil {
		log = logger.Nop()
	}
	return &Handlers{cmd: cmd, query: q, log: log.Component("api")}
}

func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	respond.Error(r.Context(), h.log, w, err)
}

// Posts

type CreatePostRequest struct {
	Products    []post.Product `json:"products"`
	UserAddress string         `json:"user_address"`
	Tags        []string       `json:"tags" validate:"max=20,dive,max=50"`
	Locality    string         `json:"locality" validate:"max=200"`
}

type CreatePostResponse struct {
	Post         *post.Post `json:"post"`
	UploadErrors []string   `json:"upload_errors,omitempty"`
}

// CreatePost accepts either a JSON body or a multipart form whose "data"
// field holds the same JSON and whose images_<n> fields carry images for
// product n.
func (h *Handlers) CreatePost(w http.ResponseWriter, r *http.Request) {
	var req CreatePostRequest
	var images map[int][]objectstore.File

	if isMultipart(r) {
		if err := parseMultipart(r); err != nil {
			h.fail(w, r, err)
			return
		}
		if err := json.Unmarshal([]byte(r.FormValue("data")), &req); err != nil {
			h.fail(w, r, apperr.Wrap(apperr.CodeValidation, err, "invalid data field"))
			return
		}
		if err := validateStruct(&req); err != nil {
			h.fail(w, r, err)
			return
		}
		var err error
		if images, err = productImages(r); err != nil {
			h.fail(w, r, err)
			return
		}
	} else if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	result, err := h.cmd.CreatePost(r.Context(), command.CreatePost{
		OwnerID:       middleware.ActorID(r.Context()),
		Products:      req.Products,
		UserAddress:   req.UserAddress,
		Tags:          req.Tags,
		Locality:      req.Locality,
		ProductImages: images,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respond.JSON(w, http.StatusCreated, CreatePostResponse{Post: result.Post, UploadErrors: result.UploadErrors})
}

func productImages(r *http.Request) (map[int][]objectstore.File, error) {
	images := make(map[int][]objectstore.File)
	for field, headers := range r.MultipartForm.File {
		if !strings.HasPrefix(field, productImagesPrefix) {
			continue
		}
		idx, err := strconv.Atoi(strings.TrimPrefix(field, productImagesPrefix))
		if err != nil {
			return nil, apperr.New(apperr.CodeValidation, "invalid image field").WithDetails(map[string]any{"field": field})
		}
		for _, fh := range headers {
			f, err := readFile(field, fh)
			if err != nil {
				return nil, err
			}
			images[idx] = append(images[idx], f)
		}
	}
	return images, nil
}

// ListPosts returns the caller's own posts, or for recyclers the posts
// assigned to them.
func (h *Handlers) ListPosts(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFrom(r.Context())
	list := h.query.ListPostsByOwner
	if actor.Role == string(account.RoleRecycler) {
		list = h.query.ListPostsByRecycler
	}
	posts, err := list(r.Context(), actor.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, posts)
}

func (h *Handlers) GetPost(w http.ResponseWriter, r *http.Request) {
	p, err := h.query.GetPost(r.Context(), chi.URLParam(r, "id"), middleware.ActorID(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, p)
}

func (h *Handlers) AcceptAIPrice(w http.ResponseWriter, r *http.Request) {
	p, err := h.cmd.AcceptAIPrice(r.Context(), command.AcceptAIPrice{
		PostID:  chi.URLParam(r, "id"),
		ActorID: middleware.ActorID(r.Context()),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, p)
}

type SelectRecyclerRequest struct {
	RecyclerID string `json:"recycler_id" validate:"required"`
}

func (h *Handlers) SelectRecycler(w http.ResponseWriter, r *http.Request) {
	var req SelectRecyclerRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	p, err := h.cmd.SelectRecycler(r.Context(), command.SelectRecycler{
		PostID:     chi.URLParam(r, "id"),
		ActorID:    middleware.ActorID(r.Context()),
		RecyclerID: req.RecyclerID,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, p)
}

type SendRequestRequest struct {
	RecyclerID string         `json:"recycler_id" validate:"required"`
	Products   []post.Product `json:"products"`
}

func (h *Handlers) SendRequest(w http.ResponseWriter, r *http.Request) {
	var req SendRequestRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	sent, err := h.cmd.SendRequest(r.Context(), command.SendRequest{
		PostID:     chi.URLParam(r, "id"),
		OwnerID:    middleware.ActorID(r.Context()),
		RecyclerID: req.RecyclerID,
		Products:   req.Products,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respond.JSON(w, http.StatusCreated, sent)
}

type MessageRequest struct {
	Text string `json:"text"`
}

func (h *Handlers) AddMessage(w http.ResponseWriter, r *http.Request) {
	var req MessageRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	history, err := h.cmd.AddMessage(r.Context(), command.AddMessage{
		PostID:  chi.URLParam(r, "id"),
		ActorID: middleware.ActorID(r.Context()),
		Text:    req.Text,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respond.JSON(w, http.StatusCreated, map[string]any{"negotiation_history": history})
}

type OfferRequest struct {
	Message    string   `json:"message"`
	PriceOffer *float64 `json:"price_offer"`
}

func (h *Handlers) AddOffer(w http.ResponseWriter, r *http.Request) {
	var req OfferRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	p, err := h.cmd.AddOffer(r.Context(), command.AddOffer{
		PostID:     chi.URLParam(r, "id"),
		ActorID:    middleware.ActorID(r.Context()),
		Message:    req.Message,
		PriceOffer: req.PriceOffer,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respond.JSON(w, http.StatusCreated, p)
}

type FinalizeRequest struct {
	Price *float64 `json:"price" validate:"required"`
}

func (h *Handlers) FinalizePrice(w http.ResponseWriter, r *http.Request) {
	h.finalize(w, r, h.cmd.FinalizePrice)
}

func (h *Handlers) RecyclerFinalizePrice(w http.ResponseWriter, r *http.Request) {
	h.finalize(w, r, h.cmd.RecyclerFinalizePrice)
}

func (h *Handlers) finalize(w http.ResponseWriter, r *http.Request, run func(context.Context, command.FinalizePrice) (*post.Post, error)) {
	var req FinalizeRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	p, err := run(r.Context(), command.FinalizePrice{
		PostID:  chi.URLParam(r, "id"),
		ActorID: middleware.ActorID(r.Context()),
		Price:   *req.Price,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, p)
}

type StatusRequest struct {
	Status string `json:"status" validate:"required"`
}

func (h *Handlers) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req StatusRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	p, err := h.cmd.UpdateStatus(r.Context(), command.UpdateStatus{
		PostID:  chi.URLParam(r, "id"),
		ActorID: middleware.ActorID(r.Context()),
		Status:  req.Status,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, p)
}

type CommentRequest struct {
	Text string `json:"text"`
}

func (h *Handlers) AddComment(w http.ResponseWriter, r *http.Request) {
	var req CommentRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	c, err := h.cmd.AddComment(r.Context(), command.AddComment{
		PostID:  chi.URLParam(r, "id"),
		ActorID: middleware.ActorID(r.Context()),
		Text:    req.Text,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respond.JSON(w, http.StatusCreated, c)
}

// Recycler

func (h *Handlers) ListRecyclerRequests(w http.ResponseWriter, r *http.Request) {
	requests, err := h.query.ListRecyclerRequests(r.Context(), middleware.ActorID(r.Context()), r.URL.Query().Get("status"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, requests)
}

type RespondRequest struct {
	Action     string   `json:"action" validate:"required,oneof=accept reject"`
	FinalPrice *float64 `json:"final_price"`
}

func (h *Handlers) RespondToRequest(w http.ResponseWriter, r *http.Request) {
	var req RespondRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	updated, err := h.cmd.RespondToRequest(r.Context(), command.RespondToRequest{
		RequestID:  chi.URLParam(r, "id"),
		RecyclerID: middleware.ActorID(r.Context()),
		Action:     req.Action,
		FinalPrice: req.FinalPrice,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, updated)
}

func (h *Handlers) MarkRequestRead(w http.ResponseWriter, r *http.Request) {
	updated, err := h.cmd.MarkRequestRead(r.Context(), command.MarkRequestRead{
		RequestID:  chi.URLParam(r, "id"),
		RecyclerID: middleware.ActorID(r.Context()),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, updated)
}

func (h *Handlers) RecyclerEarnings(w http.ResponseWriter, r *http.Request) {
	earnings, err := h.query.RecyclerEarnings(r.Context(), middleware.ActorID(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, earnings)
}

func (h *Handlers) ListRecyclers(w http.ResponseWriter, r *http.Request) {
	city := strings.TrimSpace(r.URL.Query().Get("city"))
	if city == "" {
		h.fail(w, r, apperr.New(apperr.CodeValidation, "city is required"))
		return
	}
	recyclers, err := h.query.ListRecyclersByCity(r.Context(), city)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, recyclers)
}
