package app

import (
	"context"
	"testing"

	"gangkeeper-backend/internal/config"
	"gangkeeper-backend/internal/domain"
	"gangkeeper-backend/internal/notify"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(`
database:
  driver: memory
jwt:
  secret: 0123456789abcdef0123456789abcdef
`))
	require.NoError(t, err)
	return cfg
}

func TestOpenStore_Memory(t *testing.T) {
	ctx := context.Background()
	cfg := memoryConfig(t)

	store, closeFn, err := OpenStore(ctx, cfg)
	require.NoError(t, err)
	require.NotNil(t, closeFn)
	defer closeFn()

	svc := Services(cfg, store, nil)
	gang := &domain.Gang{Name: "Crew"}
	_, err = svc.Membership.CreateGang(ctx, domain.UserActor("owner"), gang, "Boss")
	require.NoError(t, err)

	got, err := store.Repos().Gangs.GetByID(ctx, gang.ID)
	require.NoError(t, err)
	assert.Equal(t, "Crew", got.Name)
}

func TestNotifier_Channels(t *testing.T) {
	ctx := context.Background()
	cfg := memoryConfig(t)
	store, _, err := OpenStore(ctx, cfg)
	require.NoError(t, err)

	assert.Nil(t, Notifier(cfg, store, nil), "nothing configured")

	cfg.Email.Enabled = true
	cfg.Email.SendGridAPIKey = "SG.test"
	cfg.Email.FromAddress = "bot@example.com"
	n := Notifier(cfg, store, nil)
	require.IsType(t, notify.Multi{}, n)
	assert.Len(t, n.(notify.Multi), 1)
}

func TestNewBotAPI_NoToken(t *testing.T) {
	bot, err := NewBotAPI(memoryConfig(t))
	require.NoError(t, err)
	assert.Nil(t, bot)
}
