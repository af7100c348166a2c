package subscription

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"physioportal-client/internal/domain/registration"
	"physioportal-client/internal/gateway"
	xerrors "physioportal-client/internal/pkg/errors"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubSession struct{}

func (stubSession) Token() string      { return "" }
func (stubSession) MarkTokenInvalid()  {}
func (stubSession) MarkTermsUnsigned() {}

func newPlanService(t *testing.T, handler http.Handler) *PlanService {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	gw := gateway.NewClient(ts.URL, "app.example.com", stubSession{}, zap.NewNop())
	return NewPlanService(gw, zap.NewNop())
}

func TestFetchPlansDecodesList(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/user/getFreePlan", r.URL.Path)
		w.Write([]byte(`{"status":"success","data":[{"id":"p1","planName":"Starter","stripePriceId":"price_1"}]}`))
	})
	svc := newPlanService(t, handler)

	plans, err := svc.FetchPlans(context.Background())
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.Equal(t, "Starter", plans[0].PlanName)
}

func TestCreateCheckoutSendsPriceAndCustomer(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req registration.CheckoutRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "price_1", req.PriceID)
		assert.Equal(t, "cus_1", req.CustomerID)
		assert.True(t, req.IsFirstTimePurchase)
		w.Write([]byte(`{"status":"success","data":{"url":"https://checkout.stripe.com/pay/cs_1"}}`))
	})
	svc := newPlanService(t, handler)

	plan := &registration.Plan{ID: "p1", PlanName: "Starter", StripePriceID: "price_1"}
	u, err := svc.CreateCheckout(context.Background(), plan, "cus_1", "http://127.0.0.1/return", true)
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.stripe.com/pay/cs_1", u)
}

func TestCreateCheckoutGuardsInputs(t *testing.T) {
	svc := newPlanService(t, http.NotFoundHandler())

	_, err := svc.CreateCheckout(context.Background(), nil, "cus_1", "", true)
	assert.True(t, xerrors.IsValidation(err))

	_, err = svc.CreateCheckout(context.Background(), &registration.Plan{ID: "p1"}, "", "", true)
	assert.True(t, xerrors.IsValidation(err))
}

func TestVerifySessionRejectsUnsuccessfulStatus(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"pending","data":{}}`))
	})
	svc := newPlanService(t, handler)

	err := svc.VerifySession(context.Background(), "cs_1")
	assert.Error(t, err)
}

func TestVerifySessionAcceptsSuccess(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "cs_1", r.URL.Query().Get("sessionId"))
		w.Write([]byte(`{"status":"success","data":{"paymentStatus":"paid"}}`))
	})
	svc := newPlanService(t, handler)

	require.NoError(t, svc.VerifySession(context.Background(), "cs_1"))
}
