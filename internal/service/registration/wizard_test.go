package registration

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"physioportal-client/internal/domain/registration"
	"physioportal-client/internal/gateway"
	xerrors "physioportal-client/internal/pkg/errors"
	"physioportal-client/internal/pkg/flash"
	"physioportal-client/internal/pkg/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubSession struct{}

func (stubSession) Token() string      { return "" }
func (stubSession) MarkTokenInvalid()  {}
func (stubSession) MarkTermsUnsigned() {}

type fakePlans struct {
	plans         []registration.Plan
	fetchErr      error
	checkoutURL   string
	checkoutErr   error
	verifyErr     error
	checkoutCalls atomic.Int32
	verifiedID    string
}

func (f *fakePlans) FetchPlans(context.Context) ([]registration.Plan, error) {
	return f.plans, f.fetchErr
}

func (f *fakePlans) CreateCheckout(_ context.Context, plan *registration.Plan, customerID, successURL string, firstPurchase bool) (string, error) {
	f.checkoutCalls.Add(1)
	if f.checkoutErr != nil {
		return "", f.checkoutErr
	}
	return f.checkoutURL, nil
}

func (f *fakePlans) VerifySession(_ context.Context, sessionID string) error {
	f.verifiedID = sessionID
	return f.verifyErr
}

func twoPlans() []registration.Plan {
	return []registration.Plan{
		{ID: "p1", PlanName: "Starter", PlanType: "free", Duration: "monthly", StripePriceID: "price_1"},
		{ID: "p2", PlanName: "Clinic", PlanType: "paid", Duration: "yearly", StripePriceID: "price_2"},
	}
}

type wizardEnv struct {
	wiz      *Wizard
	plans    *fakePlans
	sessions *session.Manager
	msgs     *flash.Center
}

func newWizardEnv(t *testing.T, handler http.Handler) *wizardEnv {
	t.Helper()
	if handler == nil {
		handler = http.NotFoundHandler()
	}
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	store, err := session.NewFileStore(filepath.Join(t.TempDir(), "session.json"))
	require.NoError(t, err)
	sessions := session.NewManager(store, zap.NewNop())

	gw := gateway.NewClient(ts.URL, "app.example.com", stubSession{}, zap.NewNop())
	plans := &fakePlans{plans: twoPlans(), checkoutURL: "https://checkout.stripe.com/pay/cs_1"}
	msgs := flash.NewCenterTTL(0)

	return &wizardEnv{
		wiz:      NewWizard(gw, plans, sessions, msgs, 10*time.Millisecond, zap.NewNop()),
		plans:    plans,
		sessions: sessions,
		msgs:     msgs,
	}
}

// advanceToReview fills the gating fields and walks the wizard to step 4.
func advanceToReview(t *testing.T, w *Wizard) {
	t.Helper()
	w.SetForm(func(f *registration.Form) {
		f.Email = "clinic@example.com"
		f.AcceptTerms = true
	})
	require.NoError(t, w.Next())
	require.NoError(t, w.Next())
	require.NoError(t, w.Next())
	require.Equal(t, StepReview, w.Step())
}

func TestMountSelectsFirstPlanByDefault(t *testing.T) {
	env := newWizardEnv(t, nil)

	require.NoError(t, env.wiz.Mount(context.Background(), url.Values{}))
	require.Len(t, env.wiz.Plans(), 2)
	require.NotNil(t, env.wiz.SelectedPlan())
	assert.Equal(t, "p1", env.wiz.SelectedPlan().ID)
}

func TestSelectPlanByID(t *testing.T) {
	env := newWizardEnv(t, nil)
	require.NoError(t, env.wiz.Mount(context.Background(), url.Values{}))

	require.NoError(t, env.wiz.SelectPlan("p2"))
	assert.Equal(t, "Clinic", env.wiz.SelectedPlan().PlanName)

	err := env.wiz.SelectPlan("nope")
	assert.True(t, xerrors.IsValidation(err))
}

func TestTermsAcceptanceGatesStepOne(t *testing.T) {
	env := newWizardEnv(t, nil)

	assert.False(t, env.wiz.NextEnabled())
	assert.True(t, xerrors.IsValidation(env.wiz.Next()))
	assert.Equal(t, StepPersonal, env.wiz.Step())

	env.wiz.SetForm(func(f *registration.Form) { f.AcceptTerms = true })
	require.NoError(t, env.wiz.Next())
	assert.Equal(t, StepCompany, env.wiz.Step())
}

func TestPrevDisabledOnFirstStep(t *testing.T) {
	env := newWizardEnv(t, nil)
	assert.False(t, env.wiz.PrevEnabled())
	assert.True(t, xerrors.IsValidation(env.wiz.Prev()))
}

func TestUploadSuccessStoresHostedURL(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"success","data":{"file":"https://cdn.example.com/banner.png"}}`))
	})
	env := newWizardEnv(t, handler)

	err := <-env.wiz.Upload(context.Background(), registration.UploadBanner, "banner.png", strings.NewReader("img"))
	require.NoError(t, err)

	assert.Equal(t, "https://cdn.example.com/banner.png", env.wiz.Form().ClinicBanner)
	assert.False(t, env.wiz.UploadInFlight(registration.UploadBanner))
}

func TestUploadFailureLeavesFieldEmpty(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"message":"storage unavailable"}}`))
	})
	env := newWizardEnv(t, handler)

	err := <-env.wiz.Upload(context.Background(), registration.UploadLogo, "logo.png", strings.NewReader("img"))
	require.Error(t, err)

	assert.Empty(t, env.wiz.Form().ClinicLogo)
	m, ok := env.msgs.Current()
	require.True(t, ok)
	assert.Equal(t, "storage unavailable", m.Text)
}

func TestNavigationLockedWhileUploadRuns(t *testing.T) {
	release := make(chan struct{})
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.Write([]byte(`{"status":"success","data":{"file":"https://cdn.example.com/banner.png"}}`))
	})
	env := newWizardEnv(t, handler)

	env.wiz.SetForm(func(f *registration.Form) { f.AcceptTerms = true })
	require.NoError(t, env.wiz.Next())
	require.NoError(t, env.wiz.Next())
	require.Equal(t, StepAssets, env.wiz.Step())

	done := env.wiz.Upload(context.Background(), registration.UploadBanner, "banner.png", strings.NewReader("img"))
	assert.Eventually(t, func() bool {
		return env.wiz.UploadInFlight(registration.UploadBanner)
	}, time.Second, time.Millisecond)

	assert.False(t, env.wiz.NextEnabled())
	assert.False(t, env.wiz.PrevEnabled())

	close(release)
	require.NoError(t, <-done)
	assert.True(t, env.wiz.NextEnabled())
	assert.True(t, env.wiz.PrevEnabled())
}

func TestDuplicateUploadRejected(t *testing.T) {
	release := make(chan struct{})
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.Write([]byte(`{"status":"success","data":{"file":"https://cdn.example.com/banner.png"}}`))
	})
	env := newWizardEnv(t, handler)

	first := env.wiz.Upload(context.Background(), registration.UploadBanner, "banner.png", strings.NewReader("img"))
	assert.Eventually(t, func() bool {
		return env.wiz.UploadInFlight(registration.UploadBanner)
	}, time.Second, time.Millisecond)

	err := <-env.wiz.Upload(context.Background(), registration.UploadBanner, "banner.png", strings.NewReader("img"))
	assert.True(t, xerrors.IsValidation(err))

	close(release)
	require.NoError(t, <-first)
}

func TestConfirmReviewEntersOTPWithCustomerID(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/user/create-user", r.URL.Path)
		w.Write([]byte(`{"status":"success","data":{"customerId":"cus_42"}}`))
	})
	env := newWizardEnv(t, handler)
	advanceToReview(t, env.wiz)

	require.NoError(t, env.wiz.ConfirmReview(context.Background()))
	assert.Equal(t, PhaseOTP, env.wiz.Phase())
	assert.Equal(t, "cus_42", env.wiz.CustomerID())
	assert.Equal(t, "cus_42", env.sessions.CustomerID())
}

func TestConfirmReviewWithoutCustomerIDStaysInReview(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"success","data":{}}`))
	})
	env := newWizardEnv(t, handler)
	advanceToReview(t, env.wiz)

	err := env.wiz.ConfirmReview(context.Background())
	require.ErrorIs(t, err, xerrors.ErrUnexpectedResponse)
	assert.Equal(t, PhaseReview, env.wiz.Phase())
	assert.Empty(t, env.wiz.CustomerID())
}

func TestVerifyOTPRejectsWrongLengthWithoutRequest(t *testing.T) {
	var otpCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/user/create-user", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"success","data":{"customerId":"cus_42"}}`))
	})
	mux.HandleFunc("/auth/verifyotp", func(w http.ResponseWriter, r *http.Request) {
		otpCalls.Add(1)
		w.Write([]byte(`{"status":"success","message":"ok"}`))
	})
	env := newWizardEnv(t, mux)
	advanceToReview(t, env.wiz)
	require.NoError(t, env.wiz.ConfirmReview(context.Background()))

	err := env.wiz.VerifyOTP(context.Background(), "123")
	assert.True(t, xerrors.IsValidation(err))
	assert.Equal(t, int32(0), otpCalls.Load())
	assert.Equal(t, PhaseOTP, env.wiz.Phase())
}

func TestVerifyOTPAdvancesToCheckout(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/user/create-user", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"success","data":{"customerId":"cus_42"}}`))
	})
	mux.HandleFunc("/auth/verifyotp", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"success","message":"ok"}`))
	})
	env := newWizardEnv(t, mux)
	advanceToReview(t, env.wiz)
	require.NoError(t, env.wiz.ConfirmReview(context.Background()))

	require.NoError(t, env.wiz.VerifyOTP(context.Background(), "123456"))
	assert.Equal(t, StepCheckout, env.wiz.Step())
}

func TestCheckoutRequiresCustomerAndPlan(t *testing.T) {
	env := newWizardEnv(t, nil)

	err := env.wiz.ProceedToCheckout(context.Background(), "http://127.0.0.1/return")
	assert.True(t, xerrors.IsValidation(err))
	assert.Equal(t, int32(0), env.plans.checkoutCalls.Load())
}

func TestProceedToCheckoutRedirects(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"success","data":{"customerId":"cus_42"}}`))
	})
	env := newWizardEnv(t, handler)
	require.NoError(t, env.wiz.Mount(context.Background(), url.Values{}))
	advanceToReview(t, env.wiz)
	require.NoError(t, env.wiz.ConfirmReview(context.Background()))

	var redirected string
	env.wiz.OnRedirect = func(u string) { redirected = u }

	require.NoError(t, env.wiz.ProceedToCheckout(context.Background(), "http://127.0.0.1/return"))
	assert.Equal(t, "https://checkout.stripe.com/pay/cs_1", redirected)
	assert.Equal(t, int32(1), env.plans.checkoutCalls.Load())
}

func TestResumeCancelForcesCheckoutStep(t *testing.T) {
	env := newWizardEnv(t, nil)
	query := url.Values{"cancel": {"true"}}

	require.NoError(t, env.wiz.Resume(context.Background(), query))
	assert.Equal(t, StepCheckout, env.wiz.Step())
	m, ok := env.msgs.Current()
	require.True(t, ok)
	assert.Equal(t, msgCheckoutCancelled, m.Text)

	// The same parameters again (a refresh) must not re-trigger anything.
	env.msgs.Clear()
	require.NoError(t, env.wiz.Resume(context.Background(), query))
	_, ok = env.msgs.Current()
	assert.False(t, ok)
}

func TestResumeVerifiedSchedulesDashboardRedirect(t *testing.T) {
	env := newWizardEnv(t, nil)
	dashboard := make(chan struct{})
	env.wiz.OnDashboard = func() { close(dashboard) }

	require.NoError(t, env.wiz.Resume(context.Background(), url.Values{"sessionId": {"cs_1"}}))
	assert.Equal(t, "cs_1", env.plans.verifiedID)

	m, ok := env.msgs.Current()
	require.True(t, ok)
	assert.Equal(t, msgCheckoutVerified, m.Text)

	select {
	case <-dashboard:
	case <-time.After(time.Second):
		t.Fatal("dashboard redirect never fired")
	}
}

func TestResumePaidReturnAfterCancelledCheckout(t *testing.T) {
	env := newWizardEnv(t, nil)
	dashboard := make(chan struct{})
	env.wiz.OnDashboard = func() { close(dashboard) }

	// The user cancels, then retries checkout and pays; the second return
	// carries different parameters and must be handled as a new event.
	require.NoError(t, env.wiz.Resume(context.Background(), url.Values{"cancel": {"true"}}))
	assert.Equal(t, StepCheckout, env.wiz.Step())

	require.NoError(t, env.wiz.Resume(context.Background(), url.Values{"sessionId": {"cs_paid"}}))
	assert.Equal(t, "cs_paid", env.plans.verifiedID)

	m, ok := env.msgs.Current()
	require.True(t, ok)
	assert.Equal(t, msgCheckoutVerified, m.Text)

	select {
	case <-dashboard:
	case <-time.After(time.Second):
		t.Fatal("dashboard redirect never fired after the paid return")
	}
}

func TestNewCheckoutSessionMakesNextReturnFresh(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"success","data":{"customerId":"cus_42"}}`))
	})
	env := newWizardEnv(t, handler)
	require.NoError(t, env.wiz.Mount(context.Background(), url.Values{}))
	advanceToReview(t, env.wiz)
	require.NoError(t, env.wiz.ConfirmReview(context.Background()))
	env.wiz.OnRedirect = func(string) {}

	cancelQuery := url.Values{"cancel": {"true"}}
	require.NoError(t, env.wiz.Resume(context.Background(), cancelQuery))
	env.msgs.Clear()

	// A refresh of the same cancel return stays silent...
	require.NoError(t, env.wiz.Resume(context.Background(), cancelQuery))
	_, ok := env.msgs.Current()
	assert.False(t, ok)

	// ...but cancelling a second, freshly issued checkout session is a new
	// event even though the query looks identical.
	require.NoError(t, env.wiz.ProceedToCheckout(context.Background(), "http://127.0.0.1/return"))
	require.NoError(t, env.wiz.Resume(context.Background(), cancelQuery))
	m, ok := env.msgs.Current()
	require.True(t, ok)
	assert.Equal(t, msgCheckoutCancelled, m.Text)
}

func TestVerifyOTPCountsCharactersNotBytes(t *testing.T) {
	var otpCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/user/create-user", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"success","data":{"customerId":"cus_42"}}`))
	})
	mux.HandleFunc("/auth/verifyotp", func(w http.ResponseWriter, r *http.Request) {
		otpCalls.Add(1)
		w.Write([]byte(`{"status":"success","message":"ok"}`))
	})
	env := newWizardEnv(t, mux)
	advanceToReview(t, env.wiz)
	require.NoError(t, env.wiz.ConfirmReview(context.Background()))

	// Six bytes but only two characters: rejected without a request.
	err := env.wiz.VerifyOTP(context.Background(), "日本")
	assert.True(t, xerrors.IsValidation(err))
	assert.Equal(t, int32(0), otpCalls.Load())

	// Six multi-byte characters count as six.
	require.NoError(t, env.wiz.VerifyOTP(context.Background(), "１２３４５６"))
	assert.Equal(t, int32(1), otpCalls.Load())
	assert.Equal(t, StepCheckout, env.wiz.Step())
}

func TestResumeVerificationFailure(t *testing.T) {
	env := newWizardEnv(t, nil)
	env.plans.verifyErr = &xerrors.APIError{Status: 400, Message: "unknown session"}

	err := env.wiz.Resume(context.Background(), url.Values{"sessionId": {"cs_x"}})
	require.Error(t, err)
	m, ok := env.msgs.Current()
	require.True(t, ok)
	assert.Equal(t, msgCheckoutFailed, m.Text)
}

func TestResumeWithEmptyQueryIsNoop(t *testing.T) {
	env := newWizardEnv(t, nil)

	require.NoError(t, env.wiz.Resume(context.Background(), url.Values{}))
	assert.Equal(t, StepPersonal, env.wiz.Step())
	_, ok := env.msgs.Current()
	assert.False(t, ok)

	// An empty query must not consume the one-shot resume handling.
	require.NoError(t, env.wiz.Resume(context.Background(), url.Values{"cancel": {"true"}}))
	assert.Equal(t, StepCheckout, env.wiz.Step())
}
