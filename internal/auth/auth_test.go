package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"creatively/internal/auth"
	"creatively/internal/models"
	repo "creatively/internal/repository"
	"creatively/internal/repository/inmemory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocal_SignUpSignInSignOut(t *testing.T) {
	ctx := context.Background()
	store := inmemory.NewStore()
	provider := auth.NewLocal("secret", time.Hour, store)

	session, err := provider.SignUp(ctx, auth.SignUpRequest{Email: " Ann@Example.com ", Password: "hunter22", FullName: "Ann"})
	require.NoError(t, err)
	assert.NotEmpty(t, session.AccessToken)
	assert.Equal(t, "ann@example.com", session.User.Email)

	// профиль создаётся при регистрации
	profile, err := repo.GetByID[models.Profile](ctx, store, repo.Profiles, session.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ann", profile.FullName)

	_, err = provider.SignUp(ctx, auth.SignUpRequest{Email: "ann@example.com", Password: "hunter22"})
	assert.ErrorIs(t, err, auth.ErrEmailTaken)

	_, err = provider.SignIn(ctx, "ann@example.com", "wrong")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	signedIn, err := provider.SignIn(ctx, "ANN@example.com", "hunter22")
	require.NoError(t, err)

	id, err := provider.User(ctx, signedIn.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, session.User.ID, id.ID)

	require.NoError(t, provider.SignOut(ctx, signedIn.AccessToken))
	_, err = provider.User(ctx, signedIn.AccessToken)
	assert.ErrorIs(t, err, auth.ErrUnauthorized)

	// первый токен не отозван
	_, err = provider.User(ctx, session.AccessToken)
	assert.NoError(t, err)
}

func TestLocal_SignUpWithoutProfilesTable(t *testing.T) {
	provider := auth.NewLocal("secret", time.Hour, inmemory.NewStore(repo.Tasks))

	session, err := provider.SignUp(context.Background(), auth.SignUpRequest{Email: "bob@example.com", Password: "hunter22"})
	require.NoError(t, err)
	assert.NotEmpty(t, session.User.ID)
}

func TestSignUpRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     auth.SignUpRequest
		wantErr bool
	}{
		{"валидный", auth.SignUpRequest{Email: "a@b.c", Password: "123456"}, false},
		{"без email", auth.SignUpRequest{Password: "123456"}, true},
		{"короткий пароль", auth.SignUpRequest{Email: "a@b.c", Password: "123"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestVerifier(t *testing.T) {
	v := auth.NewVerifier("secret")

	token, _, err := v.Sign(models.Identity{ID: "u1", Email: "a@b.c", Role: "authenticated"}, time.Minute, "j1")
	require.NoError(t, err)

	id, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", id.ID)
	assert.Equal(t, token, id.AccessToken)

	_, err = auth.NewVerifier("other").Verify(token)
	assert.ErrorIs(t, err, auth.ErrUnauthorized)

	expired, _, err := v.Sign(models.Identity{ID: "u1"}, -time.Minute, "j2")
	require.NoError(t, err)
	_, err = v.Verify(expired)
	assert.ErrorIs(t, err, auth.ErrUnauthorized)
}

func TestContext(t *testing.T) {
	_, ok := auth.FromContext(context.Background())
	assert.False(t, ok)

	ctx := auth.WithIdentity(context.Background(), models.Identity{ID: "u1"})
	id, ok := auth.FromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "u1", id.ID)
}

func TestClient_SignIn(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/token", r.URL.Path)
		assert.Equal(t, "password", r.URL.Query().Get("grant_type"))
		assert.Equal(t, "anon", r.Header.Get("apikey"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["password"] != "hunter22" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Invalid login credentials"}`))
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"jwt","token_type":"bearer","expires_in":3600,"refresh_token":"r","user":{"id":"u1","email":"ann@example.com","role":"authenticated"}}`))
	}))
	defer srv.Close()

	client := auth.NewClient(srv.URL, "anon", time.Second)

	session, err := client.SignIn(context.Background(), "ann@example.com", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, "jwt", session.AccessToken)
	assert.Equal(t, "u1", session.User.ID)
	assert.Greater(t, session.ExpiresAt, time.Now().Unix())

	_, err = client.SignIn(context.Background(), "ann@example.com", "nope")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
}

func TestClient_User(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"msg":"invalid JWT"}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"u1","email":"ann@example.com"}`))
	}))
	defer srv.Close()

	client := auth.NewClient(srv.URL, "anon", time.Second)

	id, err := client.User(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, "u1", id.ID)
	assert.Equal(t, "good", id.AccessToken)

	_, err = client.User(context.Background(), "bad")
	assert.ErrorIs(t, err, auth.ErrUnauthorized)
}
