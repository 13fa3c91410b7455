package seed

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/market-core/internal/adapter/storage"
	"github.com/rl1809/market-core/internal/core/domain"
	"github.com/rl1809/market-core/internal/core/service"
	"github.com/rl1809/market-core/internal/port"
)

const fixture = `
roles:
  - user_id: 1
    roles: [admin]
  - user_id: 7
    roles: [seller, buyer]
products:
  - seller_id: 7
    name: Pixel 8
    price: "699.99"
    stock: 10
    description: flagship
    type: smartphones
    attributes:
      screen_size: 6.2
      os: android
      storage: 128
      color: obsidian
campaigns:
  - admin_id: 1
    description: spring sale
    date_start: 2024-03-01
    date_end: "2024-03-10"
    coupons: 100
    discount: "15"
`

func newComponents(t *testing.T) service.Components {
	t.Helper()
	store, err := storage.Open(context.Background(), storage.DialectSQLite,
		filepath.Join(t.TempDir(), "seed.db"), storage.PoolConfig{})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	rt := service.NewRuntime(store, port.SystemClock{}, nil, service.DefaultRetryPolicy())
	return service.NewComponents(rt, port.NopGuard{}, nil, service.DefaultCouponValidity)
}

func TestDecodeAndApply(t *testing.T) {
	f, err := Decode(strings.NewReader(fixture))
	require.NoError(t, err)
	require.Len(t, f.Products, 1)
	assert.Equal(t, "2024-03-01", f.Campaigns[0].DateStart)

	c := newComponents(t)
	ctx := context.Background()
	rep, err := Apply(ctx, c, f)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 7}, rep.Users)
	require.Len(t, rep.Products, 1)
	require.Len(t, rep.Campaigns, 1)

	ok, err := c.Roles.HasRole(ctx, 7, domain.RoleBuyer)
	require.NoError(t, err)
	assert.True(t, ok)

	p, err := c.Catalog.GetLatest(ctx, rep.Products[0])
	require.NoError(t, err)
	assert.Equal(t, "Pixel 8", p.Name)
	assert.Equal(t, "699.99", p.Price.StringFixed(2))
	assert.Equal(t, domain.CategorySmartphone, p.Category())

	camp, err := c.Campaigns.GetCampaign(ctx, rep.Campaigns[0])
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), camp.DateEnd)
	assert.Equal(t, 100, camp.CouponBudget)
}

func TestDecode_RejectsUnknownFields(t *testing.T) {
	_, err := Decode(strings.NewReader("products:\n  - nmae: typo\n"))
	assert.Error(t, err)
}

func TestDecode_Empty(t *testing.T) {
	f, err := Decode(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, f.Products)
}

func TestApply_StopsAtFirstFailure(t *testing.T) {
	f := Fixture{
		Roles: []RoleGrant{{UserID: 7, Roles: []string{"seller"}}},
		Products: []Product{
			{SellerID: 7, Name: "bad price", Price: "free", Type: "smartphone"},
		},
	}
	rep, err := Apply(context.Background(), newComponents(t), f)
	assert.ErrorContains(t, err, "product 0")
	assert.Equal(t, []int64{7}, rep.Users)
	assert.Empty(t, rep.Products)
}
