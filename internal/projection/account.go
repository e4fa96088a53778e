package projection

import (
	"context"
	"encoding/json"

	"github.com/example/ewaste-exchange/internal/domain/account"
	"github.com/example/ewaste-exchange/internal/infrastructure/store"
	"github.com/example/ewaste-exchange/internal/readmodel"
)

func (p *Projector) handleAccountEvent(ctx context.Context, event store.Event) error {
	switch event.EventType {
	case account.EventAccountRegistered:
		var e account.AccountRegistered
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		return p.readStore.Set(ctx, readmodel.CollectionAccounts, e.AccountID, &readmodel.AccountReadModel{
			ID:           e.AccountID,
			Email:        e.Email,
			PasswordHash: e.PasswordHash,
			Name:         e.Name,
			Role:         string(e.Role),
			Phone:        e.Phone,
			City:         e.City,
			Address:      e.Address,
			ShopName:     e.ShopName,
			CreatedAt:    e.CreatedAt,
			UpdatedAt:    e.CreatedAt,
		})

	case account.EventProfileUpdated:
		var e account.ProfileUpdated
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		return p.updateAccount(ctx, e.AccountID, func(a *readmodel.AccountReadModel) {
			a.Name = e.Name
			a.Phone = e.Phone
			a.City = e.City
			a.Address = e.Address
			a.ShopName = e.ShopName
			a.UpdatedAt = e.UpdatedAt
		})

	case account.EventImagesUpdated:
		var e account.ImagesUpdated
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		return p.updateAccount(ctx, e.AccountID, func(a *readmodel.AccountReadModel) {
			a.ProfileImageURL = e.ProfileImageURL
			a.ShopImageURL = e.ShopImageURL
			a.IdentityDocURL = e.IdentityDocURL
			a.UpdatedAt = e.UpdatedAt
		})

	case account.EventPasswordChanged:
		var e account.PasswordChanged
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		return p.updateAccount(ctx, e.AccountID, func(a *readmodel.AccountReadModel) {
			a.PasswordHash = e.PasswordHash
			a.UpdatedAt = e.ChangedAt
		})

	case account.EventLoggedOut:
		var e account.LoggedOut
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		if e.SessionID == "" {
			return nil
		}
		return p.readStore.Delete(ctx, readmodel.CollectionSessions, e.SessionID)
	}
	return nil
}

func (p *Projector) updateAccount(ctx context.Context, id string, mutate func(*readmodel.AccountReadModel)) error {
	data, found, err := p.readStore.Get(ctx, readmodel.CollectionAccounts, id)
	if err != nil || !found {
		return err
	}
	current, ok := data.(*readmodel.AccountReadModel)
	if !ok {
		return nil
	}
	next := *current
	mutate(&next)
	return p.readStore.Set(ctx, readmodel.CollectionAccounts, id, &next)
}
