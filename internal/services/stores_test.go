package services

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/ahmetk3436/serverdeck/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHistoryRecentJoinsNickname(t *testing.T) {
	db := openTestDB(t)
	reg := NewGormRegistry(db, nil)
	history := NewHistoryLog(db)
	ctx := context.Background()
	user := uuid.New()

	server, err := reg.Insert(ctx, user, ServerFields{Nickname: "db-1", Host: "10.0.0.9"})
	require.NoError(t, err)

	base := time.Now().Add(-time.Minute)
	response := "ok"
	require.NoError(t, history.Append(ctx, &models.ConnectionHistory{
		UserID: user, ServerID: &server.ID, Command: "GET http://10.0.0.9:22/metrics",
		Status: models.HistoryPending, ExecutedAt: base,
	}))
	require.NoError(t, history.Append(ctx, &models.ConnectionHistory{
		UserID: user, ServerID: &server.ID, Command: "GET http://10.0.0.9:22/metrics",
		Response: &response, Status: models.HistorySuccess, ExecutedAt: base.Add(time.Second),
	}))
	require.NoError(t, history.Append(ctx, &models.ConnectionHistory{
		UserID: user, Command: "GET https://example.com/x",
		Status: models.HistoryPending, ExecutedAt: base.Add(2 * time.Second),
	}))
	require.NoError(t, history.Append(ctx, &models.ConnectionHistory{
		UserID: uuid.New(), Command: "GET https://other.example", Status: models.HistoryPending,
	}))

	items, err := history.Recent(ctx, user, 0)
	require.NoError(t, err)
	require.Len(t, items, 3)

	assert.Equal(t, "", items[0].ServerNickname)
	assert.Nil(t, items[0].ServerID)
	assert.Equal(t, "db-1", items[1].ServerNickname)
	assert.Equal(t, models.HistorySuccess, items[1].Status)
	require.NotNil(t, items[1].Response)
	assert.Equal(t, "ok", *items[1].Response)
	assert.Equal(t, models.HistoryPending, items[2].Status)

	limited, err := history.Recent(ctx, user, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestUserStore(t *testing.T) {
	store := NewUserStore(openTestDB(t)).WithCost(bcrypt.MinCost)
	ctx := context.Background()

	user, err := store.Create(ctx, Registration{Email: " Ops@Example.com ", Password: "correct-horse"})
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", user.Email)
	assert.Equal(t, "ops", user.DisplayName)
	assert.NotEqual(t, "correct-horse", user.PasswordHash)

	_, err = store.Create(ctx, Registration{Email: "ops@example.com", Password: "another-one"})
	assert.ErrorIs(t, err, ErrEmailTaken)

	_, err = store.Create(ctx, Registration{Email: "not-an-email", Password: "long-enough"})
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = store.Create(ctx, Registration{Email: "short@example.com", Password: "short"})
	assert.ErrorAs(t, err, &verr)

	got, err := store.Authenticate(ctx, "OPS@example.com", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	_, err = store.Authenticate(ctx, "ops@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = store.Authenticate(ctx, "nobody@example.com", "correct-horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	fetched, err := store.Get(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.Email, fetched.Email)

	_, err = store.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestPreferencesStore(t *testing.T) {
	store := NewPreferencesStore(openTestDB(t))
	ctx := context.Background()
	user := uuid.New()

	prefs, err := store.Get(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, 0, prefs.MetricsRefreshSeconds)
	assert.JSONEq(t, `{}`, string(prefs.CommandAliases))
	assert.JSONEq(t, `[]`, string(prefs.FavoriteCommands))
	assert.JSONEq(t, `{"email":true,"desktop":true}`, string(prefs.NotificationSettings))

	seconds := 30
	updated, err := store.Update(ctx, user, PreferencesUpdate{
		CommandAliases:        map[string]string{"up": "uptime"},
		FavoriteCommands:      []string{"df -h"},
		NotificationSettings:  &models.NotificationSettings{Email: false, Desktop: true},
		MetricsRefreshSeconds: &seconds,
	})
	require.NoError(t, err)
	assert.Equal(t, 30, updated.MetricsRefreshSeconds)

	again, err := store.Get(ctx, user)
	require.NoError(t, err)
	var aliases map[string]string
	require.NoError(t, json.Unmarshal(again.CommandAliases, &aliases))
	assert.Equal(t, "uptime", aliases["up"])
	assert.JSONEq(t, `["df -h"]`, string(again.FavoriteCommands))
	assert.JSONEq(t, `{"email":false,"desktop":true}`, string(again.NotificationSettings))
	assert.Equal(t, 30, again.MetricsRefreshSeconds)

	for _, bad := range []int{1, -5, 3601} {
		n := bad
		_, err := store.Update(ctx, user, PreferencesUpdate{MetricsRefreshSeconds: &n})
		var verr *ValidationError
		assert.ErrorAs(t, err, &verr, "refresh seconds %d", bad)
	}

	_, err = store.Update(ctx, user, PreferencesUpdate{FavoriteCommands: []string{strings.Repeat("x", 2000)}})
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestActivityLog(t *testing.T) {
	log := NewActivityLog(openTestDB(t))
	ctx := context.Background()
	user := uuid.New()

	log.Record(ctx, user, ActionServerCreate, "web-1", map[string]any{"host": "10.0.0.1"})
	log.Record(ctx, user, ActionServerDelete, "web-1", nil)
	log.Record(ctx, user, ActionLogin, "", nil)
	log.Record(ctx, uuid.New(), ActionLogin, "", nil)

	page, err := log.List(ctx, user, "", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 50, page.PerPage)
	assert.Len(t, page.Items, 3)

	filtered, err := log.List(ctx, user, ActionServerCreate, 1, 10)
	require.NoError(t, err)
	require.Len(t, filtered.Items, 1)
	assert.JSONEq(t, `{"host":"10.0.0.1"}`, string(filtered.Items[0].Details))

	second, err := log.List(ctx, user, "", 2, 2)
	require.NoError(t, err)
	assert.Len(t, second.Items, 1)
}
