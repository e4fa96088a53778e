package account

import (
	"context"
	"strings"
	"testing"

	"github.com/example/ewaste-exchange/internal/apperr"
	"github.com/example/ewaste-exchange/internal/auth"
	"github.com/example/ewaste-exchange/internal/infrastructure/store/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEmails map[string]bool

func (s stubEmails) EmailTaken(_ context.Context, email string) (bool, error) {
	return s[email], nil
}

func newTestAccountService() (*Service, *mocks.MockEventStore) {
	eventStore := mocks.NewMockEventStore()
	service := NewService(eventStore, stubEmails{"taken@example.com": true}, nil)
	return service, eventStore
}

func registerRecycler(t *testing.T, service *Service) *Account {
	t.Helper()
	a, err := service.Register(context.Background(), RegisterInput{
		Email:    "shop@example.com",
		Password: "password123",
		Name:     "Green Recyclers",
		Role:     "recycler",
		City:     "Pune",
		ShopName: "Green Shop",
	})
	require.NoError(t, err)
	return a
}

func strPtr(s string) *string { return &s }

// ============================================
// Email Validation Tests
// ============================================

func TestIsValidEmail(t *testing.T) {
	valid := []string{
		"test@example.com",
		"user.name@domain.org",
		"user+tag@example.com",
		"user_name@sub.example.co.in",
	}
	invalid := []string{
		"",
		"notanemail",
		"@example.com",
		"user@",
		"user@.com",
		"user@domain",
		"user@domain.",
		"user space@example.com",
		strings.Repeat("a", 250) + "@example.com",
	}

	for _, email := range valid {
		assert.True(t, isValidEmail(email), "expected %q to be valid", email)
	}
	for _, email := range invalid {
		assert.False(t, isValidEmail(email), "expected %q to be invalid", email)
	}
}

// ============================================
// Register Tests
// ============================================

func TestService_Register_User(t *testing.T) {
	service, eventStore := newTestAccountService()

	a, err := service.Register(context.Background(), RegisterInput{
		Email:    "  Person@Example.com ",
		Password: "password123",
		Name:     "Asha",
	})

	require.NoError(t, err)
	assert.NotEmpty(t, a.ID)
	assert.Equal(t, "person@example.com", a.Email)
	assert.Equal(t, RoleUser, a.Role)
	assert.True(t, auth.CheckPassword("password123", a.PasswordHash))
	require.Len(t, eventStore.AppendCalls, 1)
	assert.Equal(t, EventAccountRegistered, eventStore.AppendCalls[0].EventType)
	assert.Equal(t, AggregateType, eventStore.AppendCalls[0].AggregateType)
}

func TestService_Register_Recycler(t *testing.T) {
	service, _ := newTestAccountService()

	a := registerRecycler(t, service)

	assert.True(t, a.IsRecycler())
	assert.Equal(t, "Pune", a.City)
	assert.Equal(t, "Green Shop", a.ShopName)
}

func TestService_Register_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   RegisterInput
		wantErr error
	}{
		{"invalid email", RegisterInput{Email: "nope", Password: "password123", Name: "A"}, ErrInvalidEmail},
		{"empty name", RegisterInput{Email: "a@example.com", Password: "password123"}, ErrInvalidName},
		{"unknown role", RegisterInput{Email: "a@example.com", Password: "password123", Name: "A", Role: "admin"}, ErrInvalidRole},
		{"recycler without shop", RegisterInput{Email: "a@example.com", Password: "password123", Name: "A", Role: "recycler", City: "Pune"}, ErrShopDetailsMissing},
		{"short password", RegisterInput{Email: "a@example.com", Password: "short", Name: "A"}, auth.ErrPasswordTooShort},
		{"email taken", RegisterInput{Email: "Taken@example.com", Password: "password123", Name: "A"}, ErrEmailTaken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service, eventStore := newTestAccountService()

			a, err := service.Register(context.Background(), tt.input)

			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, a)
			assert.Empty(t, eventStore.AppendCalls)
		})
	}
}

// ============================================
// Profile Tests
// ============================================

func TestService_UpdateProfile_PartialUpdate(t *testing.T) {
	service, _ := newTestAccountService()
	a := registerRecycler(t, service)

	updated, err := service.UpdateProfile(context.Background(), a.ID, ProfileUpdate{Phone: strPtr(" 98765 ")})

	require.NoError(t, err)
	assert.Equal(t, "98765", updated.Phone)
	assert.Equal(t, "Green Recyclers", updated.Name)
	assert.Equal(t, "Pune", updated.City)
	assert.Equal(t, 2, updated.Version)
}

func TestService_UpdateProfile_RecyclerKeepsCity(t *testing.T) {
	service, _ := newTestAccountService()
	a := registerRecycler(t, service)

	_, err := service.UpdateProfile(context.Background(), a.ID, ProfileUpdate{City: strPtr("")})

	assert.ErrorIs(t, err, ErrShopDetailsMissing)
}

func TestService_UpdateProfile_NotFound(t *testing.T) {
	service, _ := newTestAccountService()

	_, err := service.UpdateProfile(context.Background(), "missing", ProfileUpdate{Name: strPtr("X")})

	assert.ErrorIs(t, err, ErrAccountNotFound)
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
}

func TestService_SetImages_EmptyKeepsExisting(t *testing.T) {
	service, eventStore := newTestAccountService()
	ctx := context.Background()
	a := registerRecycler(t, service)

	_, err := service.SetImages(ctx, a.ID, Images{ProfileImageURL: "https://cdn/p.png", ShopImageURL: "https://cdn/s.png"})
	require.NoError(t, err)
	updated, err := service.SetImages(ctx, a.ID, Images{ShopImageURL: "https://cdn/s2.png"})
	require.NoError(t, err)

	assert.Equal(t, "https://cdn/p.png", updated.ProfileImageURL)
	assert.Equal(t, "https://cdn/s2.png", updated.ShopImageURL)

	calls := len(eventStore.AppendCalls)
	_, err = service.SetImages(ctx, a.ID, Images{})
	require.NoError(t, err)
	assert.Len(t, eventStore.AppendCalls, calls)
}

// ============================================
// Password Tests
// ============================================

func TestService_ChangePassword(t *testing.T) {
	service, _ := newTestAccountService()
	ctx := context.Background()
	a := registerRecycler(t, service)

	err := service.ChangePassword(ctx, a.ID, "wrong-password", "newpassword1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	require.NoError(t, service.ChangePassword(ctx, a.ID, "password123", "newpassword1"))
	loaded, err := service.Load(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, auth.CheckPassword("newpassword1", loaded.PasswordHash))
}

// ============================================
// Directory Tests
// ============================================

func TestService_RecyclerExists(t *testing.T) {
	service, _ := newTestAccountService()
	ctx := context.Background()
	recycler := registerRecycler(t, service)
	user, err := service.Register(ctx, RegisterInput{Email: "u@example.com", Password: "password123", Name: "U"})
	require.NoError(t, err)

	ok, err := service.RecyclerExists(ctx, recycler.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = service.RecyclerExists(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = service.RecyclerExists(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestService_RecordLogin(t *testing.T) {
	service, eventStore := newTestAccountService()
	a := registerRecycler(t, service)

	require.NoError(t, service.RecordLogin(context.Background(), a.ID, "sess-1", "127.0.0.1", "test"))
	require.NoError(t, service.RecordLogout(context.Background(), a.ID, "sess-1"))

	events := eventStore.EventsFor(a.ID)
	require.Len(t, events, 3)
	assert.Equal(t, EventLoggedIn, events[1].EventType)
	assert.Equal(t, EventLoggedOut, events[2].EventType)
}
