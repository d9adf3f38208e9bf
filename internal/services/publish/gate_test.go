package publish

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"spiriverse/internal/gateway"
	"spiriverse/internal/models"
	"spiriverse/internal/records"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) Get(ctx context.Context, container, id, partitionKey string) (json.RawMessage, error) {
	args := m.Called(ctx, container, id, partitionKey)
	if raw := args.Get(0); raw != nil {
		return raw.(json.RawMessage), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockStore) Query(ctx context.Context, container, filter string, params map[string]interface{}) ([]json.RawMessage, error) {
	args := m.Called(ctx, container, filter, params)
	if docs := args.Get(0); docs != nil {
		return docs.([]json.RawMessage), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockStore) Create(ctx context.Context, container, id, partitionKey string, doc interface{}) error {
	args := m.Called(ctx, container, id, partitionKey, doc)
	return args.Error(0)
}

func (m *MockStore) Patch(ctx context.Context, container, id, partitionKey string, ops []records.PatchOp, actor string) error {
	args := m.Called(ctx, container, id, partitionKey, ops, actor)
	return args.Error(0)
}

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) Call(ctx context.Context, method, path string, params gateway.Params) (*gateway.Response, error) {
	args := m.Called(ctx, method, path, params)
	if resp := args.Get(0); resp != nil {
		return resp.(*gateway.Response), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockGateway) AsConnectedAccount(accountID string) gateway.Gateway { return m }

func merchantDoc(t *testing.T, m models.Merchant) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(m)
	require.NoError(t, err)
	return raw
}

func TestGate_Evaluate(t *testing.T) {
	vendor := models.Merchant{
		ID:       "acme",
		Currency: "USD",
		Stripe:   models.MerchantStripe{AccountID: "acct_acme"},
	}

	t.Run("publishes a chargeable vendor", func(t *testing.T) {
		store := new(MockStore)
		gw := new(MockGateway)

		store.On("Get", mock.Anything, records.ContainerMerchants, "acme", "acme").
			Return(merchantDoc(t, vendor), nil)
		gw.On("Call", mock.Anything, "GET", "/v1/accounts/acct_acme", mock.Anything).
			Return(&gateway.Response{Status: 200, Data: []byte(`{"id":"acct_acme","charges_enabled":true}`)}, nil)

		now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		want := []records.PatchOp{records.Set("/publishedAt", now.Format(time.RFC3339))}
		store.On("Patch", mock.Anything, records.ContainerMerchants, "acme", "acme", want, "publish-gate").
			Return(nil)

		g := NewGate(store, gw, nil)
		g.now = func() time.Time { return now }

		require.NoError(t, g.Evaluate(context.Background(), "acme"))
		store.AssertExpectations(t)
	})

	t.Run("already published is a no-op", func(t *testing.T) {
		store := new(MockStore)
		gw := new(MockGateway)

		published := vendor
		ts := time.Now().UTC()
		published.PublishedAt = &ts
		store.On("Get", mock.Anything, records.ContainerMerchants, "acme", "acme").
			Return(merchantDoc(t, published), nil)

		g := NewGate(store, gw, nil)
		require.NoError(t, g.Evaluate(context.Background(), "acme"))

		gw.AssertNotCalled(t, "Call", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		store.AssertNotCalled(t, "Patch", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("no connected account defers", func(t *testing.T) {
		store := new(MockStore)
		gw := new(MockGateway)

		unonboarded := vendor
		unonboarded.Stripe.AccountID = ""
		store.On("Get", mock.Anything, records.ContainerMerchants, "acme", "acme").
			Return(merchantDoc(t, unonboarded), nil)

		g := NewGate(store, gw, nil)
		require.NoError(t, g.Evaluate(context.Background(), "acme"))
		gw.AssertNotCalled(t, "Call", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("charges disabled defers", func(t *testing.T) {
		store := new(MockStore)
		gw := new(MockGateway)

		store.On("Get", mock.Anything, records.ContainerMerchants, "acme", "acme").
			Return(merchantDoc(t, vendor), nil)
		gw.On("Call", mock.Anything, "GET", "/v1/accounts/acct_acme", mock.Anything).
			Return(&gateway.Response{Status: 200, Data: []byte(`{"id":"acct_acme","charges_enabled":false}`)}, nil)

		g := NewGate(store, gw, nil)
		require.NoError(t, g.Evaluate(context.Background(), "acme"))
		store.AssertNotCalled(t, "Patch", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("missing vendor", func(t *testing.T) {
		store := new(MockStore)
		store.On("Get", mock.Anything, records.ContainerMerchants, "ghost", "ghost").
			Return(nil, records.ErrNotFound)

		g := NewGate(store, new(MockGateway), nil)
		assert.Error(t, g.Evaluate(context.Background(), "ghost"))
	})
}
