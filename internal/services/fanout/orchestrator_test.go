package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spiriverse/internal/gateway"
	"spiriverse/internal/models"
	"spiriverse/internal/notifier"
	"spiriverse/internal/records"
	"spiriverse/internal/services/charge"
	"spiriverse/internal/services/connect"
	"spiriverse/internal/services/currency"
	"spiriverse/internal/services/fees"
	"spiriverse/internal/services/publish"
	"spiriverse/internal/services/tax"
	"spiriverse/internal/shipping"
)

type patchCall struct {
	Container string
	ID        string
	Ops       []records.PatchOp
	Actor     string
}

type createCall struct {
	Container string
	ID        string
	Partition string
	Doc       interface{}
}

// fakeStore is an in-memory document store. Patches and creates are recorded
// but not applied, so tests can assert the exact mutations that were
// requested against the documents as originally seeded.
type fakeStore struct {
	mu      sync.Mutex
	docs    map[string]json.RawMessage
	patches []patchCall
	created []createCall
	queryFn func(container, filter string, params map[string]interface{}) ([]json.RawMessage, error)
}

func newFakeStore() *fakeStore {
	return &fakeStore{docs: make(map[string]json.RawMessage)}
}

func (s *fakeStore) put(t *testing.T, container, id string, doc interface{}) {
	t.Helper()
	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[container+"/"+id] = raw
}

func (s *fakeStore) Get(ctx context.Context, container, id, partitionKey string) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.docs[container+"/"+id]
	if !ok {
		return nil, records.ErrNotFound
	}
	return raw, nil
}

func (s *fakeStore) Query(ctx context.Context, container, filter string, params map[string]interface{}) ([]json.RawMessage, error) {
	if s.queryFn != nil {
		return s.queryFn(container, filter, params)
	}
	return nil, nil
}

func (s *fakeStore) Create(ctx context.Context, container, id, partitionKey string, doc interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, createCall{Container: container, ID: id, Partition: partitionKey, Doc: doc})
	return nil
}

func (s *fakeStore) Patch(ctx context.Context, container, id, partitionKey string, ops []records.PatchOp, actor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patches = append(s.patches, patchCall{Container: container, ID: id, Ops: ops, Actor: actor})
	return nil
}

func (s *fakeStore) patchesFor(container string) []patchCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []patchCall
	for _, p := range s.patches {
		if p.Container == container {
			out = append(out, p)
		}
	}
	return out
}

type gwCall struct {
	Account string
	Method  string
	Path    string
	Params  gateway.Params
}

type fakeGatewayState struct {
	mu     sync.Mutex
	calls  []gwCall
	handle func(call gwCall) (*gateway.Response, error)
}

// fakeGateway scripts gateway responses by method and path, recording every
// call with its connected-account scope.
type fakeGateway struct {
	state   *fakeGatewayState
	account string
}

func newFakeGateway(handle func(call gwCall) (*gateway.Response, error)) *fakeGateway {
	return &fakeGateway{state: &fakeGatewayState{handle: handle}}
}

func (g *fakeGateway) Call(ctx context.Context, method, path string, params gateway.Params) (*gateway.Response, error) {
	call := gwCall{Account: g.account, Method: method, Path: path, Params: params}
	g.state.mu.Lock()
	g.state.calls = append(g.state.calls, call)
	handle := g.state.handle
	g.state.mu.Unlock()
	return handle(call)
}

func (g *fakeGateway) AsConnectedAccount(accountID string) gateway.Gateway {
	return &fakeGateway{state: g.state, account: accountID}
}

func (g *fakeGateway) callsTo(path string) []gwCall {
	g.state.mu.Lock()
	defer g.state.mu.Unlock()
	var out []gwCall
	for _, c := range g.state.calls {
		if c.Path == path {
			out = append(out, c)
		}
	}
	return out
}

func jsonResp(body string) *gateway.Response {
	return &gateway.Response{Status: 200, Data: []byte(body)}
}

type identityConverter struct{}

func (identityConverter) Convert(ctx context.Context, amountCents int64, from, to string) (int64, error) {
	return amountCents, nil
}

type disabledTax struct{}

func (disabledTax) Enabled(ctx context.Context, accountID string) (bool, error) { return false, nil }
func (disabledTax) Resolve(ctx context.Context, accountID string, billing models.Address, lines []models.OrderLine, cur string) (*tax.Result, error) {
	return nil, errors.New("unexpected tax resolution")
}

type fakeLabels struct {
	label *shipping.Label
	err   error
	rates []string
}

func (l *fakeLabels) CreateLabelFromRate(ctx context.Context, rateID string) (*shipping.Label, error) {
	l.rates = append(l.rates, rateID)
	return l.label, l.err
}

type sentMail struct {
	To       string
	Template string
	Data     map[string]interface{}
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *fakeMailer) SendEmail(ctx context.Context, from, to, templateKey string, data map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{To: to, Template: templateKey, Data: data})
	return m.err
}

func newTestOrchestrator(store records.Store, gw gateway.Gateway, labels shipping.LabelService, mailer notifier.Notifier) *Orchestrator {
	builder := charge.NewBuilder(currency.NewNormalizer(identityConverter{}), fees.NewCalculator(), disabledTax{}, store, nil)
	binder := connect.NewBinder(gw, nil)
	gate := publish.NewGate(store, gw, nil)
	return NewOrchestrator(store, gw, builder, binder, gate, labels, mailer, Config{
		TrialHoldCents: 500,
		FromEmail:      "no-reply@spiriverse.test",
	}, nil)
}

func testEvent(purpose Purpose) Event {
	return Event{
		ID:                 "evt_1",
		PlatformCustomerID: "cus_platform",
		PaymentMethodID:    "pm_1",
		CustomerEmail:      "buyer@example.com",
		Purpose:            purpose,
		ReceivedAt:         time.Now().UTC(),
	}
}

func seedOrder(t *testing.T, store *fakeStore, lines ...models.OrderLine) models.Order {
	t.Helper()
	order := models.Order{
		ID:            "ord_1",
		CustomerEmail: "buyer@example.com",
		Billing:       &models.Address{Line1: "1 Main St", City: "Portland", State: "OR", PostalCode: "97201", Country: "US"},
		Lines:         lines,
	}
	store.put(t, records.ContainerOrders, order.ID, order)
	return order
}

func line(id, merchantID string, cents int64) models.OrderLine {
	return models.OrderLine{
		ID:         id,
		MerchantID: merchantID,
		Price:      models.Money{AmountCents: cents, Currency: "USD"},
		PriceLog: []models.PriceSnapshot{
			{Price: models.Money{AmountCents: cents, Currency: "USD"}, Quantity: 1},
		},
	}
}

// connectScript answers the calls a successful connected-account charge
// makes: customer lookup, payment method clone, attach, and the confirmed
// payment intent.
func connectScript(call gwCall) (*gateway.Response, error) {
	switch {
	case call.Method == "GET" && call.Path == "/v1/customers":
		return jsonResp(`{"data":[{"id":"cus_conn","email":"buyer@example.com"}]}`), nil
	case call.Method == "POST" && call.Path == "/v1/payment_methods":
		return jsonResp(`{"id":"pm_clone"}`), nil
	case call.Method == "POST" && call.Path == "/v1/payment_methods/pm_clone/attach":
		return jsonResp(`{"id":"pm_clone"}`), nil
	case call.Method == "POST" && call.Path == "/v1/payment_intents":
		return jsonResp(`{"id":"pi_` + call.Account + `","status":"succeeded"}`), nil
	default:
		return nil, errors.New("unexpected gateway call: " + call.Method + " " + call.Path)
	}
}

func TestFanOutChargesEachMerchantGroup(t *testing.T) {
	store := newFakeStore()
	seedOrder(t, store,
		line("l1", "acme", 10000),
		line("l2", models.PlatformMerchantID, 2500),
	)
	store.put(t, records.ContainerMerchants, "acme", models.Merchant{
		ID:       "acme",
		Currency: "USD",
		Stripe:   models.MerchantStripe{AccountID: "acct_acme"},
	})

	gw := newFakeGateway(connectScript)
	mailer := &fakeMailer{}
	o := newTestOrchestrator(store, gw, &fakeLabels{}, mailer)

	results, err := o.HandleAuthorized(context.Background(), testEvent(OrderPayment{OrderID: "ord_1"}))
	require.NoError(t, err)
	require.Len(t, results, 2)

	acme, platform := results[0], results[1]
	assert.Equal(t, "acme", acme.MerchantID)
	assert.True(t, acme.Succeeded())
	assert.Equal(t, int64(10320), acme.AmountCents)
	assert.Equal(t, "pi_acct_acme", acme.PaymentIntentID)

	assert.Equal(t, models.PlatformMerchantID, platform.MerchantID)
	assert.True(t, platform.Succeeded())
	assert.Equal(t, int64(2500), platform.AmountCents)

	intents := gw.callsTo("/v1/payment_intents")
	require.Len(t, intents, 2)

	// The connected charge runs in the merchant's account scope and carries
	// the platform's share as the application fee.
	assert.Equal(t, "acct_acme", intents[0].Account)
	assert.Equal(t, "10320", intents[0].Params["amount"])
	assert.Equal(t, "1500", intents[0].Params["application_fee_amount"])
	assert.Equal(t, "cus_conn", intents[0].Params["customer"])
	assert.Equal(t, "pm_clone", intents[0].Params["payment_method"])
	assert.Equal(t, "evt_1", intents[0].Params["metadata[event_id]"])

	// The platform group charges directly with the original identifiers.
	assert.Equal(t, "", intents[1].Account)
	assert.Equal(t, "2500", intents[1].Params["amount"])
	assert.Equal(t, "cus_platform", intents[1].Params["customer"])
	assert.Equal(t, "pm_1", intents[1].Params["payment_method"])
	assert.NotContains(t, intents[1].Params, "application_fee_amount")

	// Both lines were marked AWAITING_CHARGE in a single patch before
	// anything else touched the order.
	orderPatches := store.patchesFor(records.ContainerOrders)
	require.NotEmpty(t, orderPatches)
	first := orderPatches[0]
	require.Len(t, first.Ops, 2)
	for i, op := range first.Ops {
		assert.Equal(t, records.OpAdd, op.Op)
		entry := op.Value.(models.PaidStatusEntry)
		assert.Equal(t, models.PaidStatusAwaitingCharge, entry.Status, "line %d", i)
	}

	// One audit record per group.
	require.Len(t, store.created, 2)
	for _, c := range store.created {
		assert.Equal(t, records.ContainerChargeEvents, c.Container)
		evt := c.Doc.(models.ChargeEvent)
		assert.Equal(t, models.ChargeOutcomeSucceeded, evt.Outcome)
		assert.Equal(t, "ord_1", evt.OrderID)
	}

	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "buyer@example.com", mailer.sent[0].To)
	assert.Equal(t, notifier.TemplateOrderReceipt, mailer.sent[0].Template)
}

func TestFanOutIsolatesGroupFailures(t *testing.T) {
	store := newFakeStore()
	seedOrder(t, store,
		line("l1", "acme", 10000),
		line("l2", "globex", 4000),
	)
	store.put(t, records.ContainerMerchants, "acme", models.Merchant{
		ID:       "acme",
		Currency: "USD",
		Stripe:   models.MerchantStripe{AccountID: "acct_acme"},
	})
	// Globex never finished onboarding.
	store.put(t, records.ContainerMerchants, "globex", models.Merchant{
		ID:       "globex",
		Currency: "USD",
	})

	gw := newFakeGateway(connectScript)
	o := newTestOrchestrator(store, gw, &fakeLabels{}, &fakeMailer{})

	results, err := o.HandleAuthorized(context.Background(), testEvent(OrderPayment{OrderID: "ord_1"}))
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.True(t, results[0].Succeeded())
	assert.False(t, results[1].Succeeded())
	assert.ErrorIs(t, results[1].Err, connect.ErrNoConnectedAccount)

	// The failed group still got its audit record and line statuses.
	var outcomes []string
	for _, c := range store.created {
		outcomes = append(outcomes, c.Doc.(models.ChargeEvent).Outcome)
	}
	assert.ElementsMatch(t, []string{models.ChargeOutcomeSucceeded, models.ChargeOutcomeFailed}, outcomes)

	var failedEntries []models.PaidStatusEntry
	for _, p := range store.patchesFor(records.ContainerOrders) {
		for _, op := range p.Ops {
			if entry, ok := op.Value.(models.PaidStatusEntry); ok && entry.Status == models.PaidStatusChargeFailed {
				failedEntries = append(failedEntries, entry)
			}
		}
	}
	require.Len(t, failedEntries, 1)
	assert.Contains(t, failedEntries[0].Note, "no connected account")
}

func TestFanOutRestoresPromotionalPrices(t *testing.T) {
	store := newFakeStore()
	promo := line("l1", "acme", 10000)
	// The live price diverged from the first snapshot.
	promo.Price = models.Money{AmountCents: 100, Currency: "USD"}
	seedOrder(t, store, promo)
	store.put(t, records.ContainerMerchants, "acme", models.Merchant{
		ID:       "acme",
		Currency: "USD",
		Stripe:   models.MerchantStripe{AccountID: "acct_acme"},
	})

	gw := newFakeGateway(connectScript)
	o := newTestOrchestrator(store, gw, &fakeLabels{}, &fakeMailer{})

	results, err := o.HandleAuthorized(context.Background(), testEvent(OrderPayment{OrderID: "ord_1"}))
	require.NoError(t, err)
	require.Len(t, results, 1)

	// The charge used the canonical snapshot price, not the overlay.
	assert.Equal(t, int64(10320), results[0].AmountCents)

	var restored bool
	for _, p := range store.patchesFor(records.ContainerOrders) {
		for _, op := range p.Ops {
			if op.Op == records.OpSet && op.Path == "/lines/0/price" {
				restored = true
				assert.Equal(t, models.Money{AmountCents: 10000, Currency: "USD"}, op.Value)
			}
		}
	}
	assert.True(t, restored, "expected the stored price to be restored from the snapshot")
}

func TestFanOutFatalOrderErrors(t *testing.T) {
	tests := []struct {
		name    string
		seed    func(t *testing.T, store *fakeStore)
		wantErr error
	}{
		{
			name:    "order not found",
			seed:    func(t *testing.T, store *fakeStore) {},
			wantErr: ErrOrderNotFound,
		},
		{
			name: "order without lines",
			seed: func(t *testing.T, store *fakeStore) {
				seedOrder(t, store)
			},
			wantErr: ErrNoLines,
		},
		{
			name: "order without billing address",
			seed: func(t *testing.T, store *fakeStore) {
				order := models.Order{ID: "ord_1", Lines: []models.OrderLine{line("l1", "acme", 100)}}
				store.put(t, records.ContainerOrders, order.ID, order)
			},
			wantErr: charge.ErrMissingBillingAddress,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			tt.seed(t, store)

			gw := newFakeGateway(connectScript)
			o := newTestOrchestrator(store, gw, &fakeLabels{}, &fakeMailer{})

			_, err := o.HandleAuthorized(context.Background(), testEvent(OrderPayment{OrderID: "ord_1"}))
			assert.ErrorIs(t, err, tt.wantErr)

			// Nothing fatal reaches the gateway.
			assert.Empty(t, gw.callsTo("/v1/payment_intents"))
		})
	}
}

func TestGroupLinesPreservesFirstSeenOrder(t *testing.T) {
	order := models.Order{Lines: []models.OrderLine{
		line("l1", "globex", 100),
		line("l2", "acme", 200),
		line("l3", "globex", 300),
	}}

	groups := groupLines(order)
	require.Len(t, groups, 2)

	assert.Equal(t, "globex", groups[0].MerchantID)
	require.Len(t, groups[0].Lines, 2)
	assert.Equal(t, 0, groups[0].Lines[0].Index)
	assert.Equal(t, 2, groups[0].Lines[1].Index)

	assert.Equal(t, "acme", groups[1].MerchantID)
	assert.Equal(t, 1, groups[1].Lines[0].Index)
}
