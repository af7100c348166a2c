// internal/service/registration/wizard.go
package registration

import (
	"context"
	"io"
	"net/url"
	"sync"
	"time"
	"unicode/utf8"

	"physioportal-client/internal/domain/registration"
	"physioportal-client/internal/gateway"
	xerrors "physioportal-client/internal/pkg/errors"
	"physioportal-client/internal/pkg/flash"
	"physioportal-client/internal/pkg/session"

	"go.uber.org/zap"
)

// Wizard steps. Checkout (step 5) is unreachable without a customer id and
// a selected plan.
const (
	StepPersonal = 1
	StepCompany  = 2
	StepAssets   = 3
	StepReview   = 4
	StepCheckout = 5
)

// Phase is the step-4 sub-phase. OTP entry is reachable only after a
// customer id was captured from the registration call.
type Phase int

const (
	PhaseReview Phase = iota
	PhaseOTP
)

// User-facing message constants for the checkout return path.
const (
	msgCheckoutCancelled = "Checkout was cancelled. You can pick a plan and try again."
	msgCheckoutVerified  = "Payment confirmed. Taking you to your dashboard..."
	msgCheckoutFailed    = "We could not confirm your payment. Please contact support."
)

// Wizard is the five-step registration state machine: personal info, company
// info, clinic assets, review plus OTP, and plan selection with checkout.
type Wizard struct {
	mu            sync.Mutex
	step          int
	phase         Phase
	form          registration.Form
	otpSent       bool
	customerID    string
	plans         []registration.Plan
	selected      *registration.Plan
	uploading     map[registration.UploadField]bool
	handledResume string

	gw            *gateway.Client
	plansSvc      PlanSource
	sessions      *session.Manager
	flash         *flash.Center
	logger        *zap.Logger
	redirectDelay time.Duration

	// OnRedirect performs the full navigation redirect to the hosted
	// checkout page.
	OnRedirect func(url string)
	// OnDashboard fires after a verified checkout, once the redirect delay
	// has elapsed.
	OnDashboard func()
}

// PlanSource is the slice of the subscription service the wizard needs.
type PlanSource interface {
	FetchPlans(ctx context.Context) ([]registration.Plan, error)
	CreateCheckout(ctx context.Context, plan *registration.Plan, customerID, successURL string, firstPurchase bool) (string, error)
	VerifySession(ctx context.Context, sessionID string) error
}

func NewWizard(gw *gateway.Client, plans PlanSource, sessions *session.Manager, msgs *flash.Center, redirectDelay time.Duration, logger *zap.Logger) *Wizard {
	return &Wizard{
		step:          StepPersonal,
		gw:            gw,
		plansSvc:      plans,
		sessions:      sessions,
		flash:         msgs,
		logger:        logger,
		redirectDelay: redirectDelay,
		uploading:     map[registration.UploadField]bool{},
	}
}

// Mount loads the plan list once and processes the resume query. Plans are
// fetched here, not on step entry, so navigating to step 5 never refetches.
func (w *Wizard) Mount(ctx context.Context, query url.Values) error {
	plans, err := w.plansSvc.FetchPlans(ctx)
	if err != nil {
		w.flash.Errorf("%s", err.Error())
	} else {
		w.mu.Lock()
		w.plans = plans
		if len(plans) > 0 && w.selected == nil {
			w.selected = &plans[0]
		}
		w.mu.Unlock()
	}
	return w.Resume(ctx, query)
}

// Step returns the current wizard step.
func (w *Wizard) Step() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.step
}

// Phase returns the step-4 sub-phase.
func (w *Wizard) Phase() Phase {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.phase
}

// Form returns a copy of the accumulated form data.
func (w *Wizard) Form() registration.Form {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.form
}

// SetForm replaces the free-form fields; navigation gates are re-evaluated
// on the next call, not here.
func (w *Wizard) SetForm(mutate func(*registration.Form)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	mutate(&w.form)
}

// CustomerID returns the captured billing customer id, empty before a
// successful registration call.
func (w *Wizard) CustomerID() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.customerID
}

// Plans returns the fetched plan list.
func (w *Wizard) Plans() []registration.Plan {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.plans
}

// SelectedPlan returns the single-selected plan, defaulting to the first
// fetched plan.
func (w *Wizard) SelectedPlan() *registration.Plan {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.selected
}

// SelectPlan picks one plan by id.
func (w *Wizard) SelectPlan(id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := range w.plans {
		if w.plans[i].ID == id {
			w.selected = &w.plans[i]
			return nil
		}
	}
	return xerrors.Validation("plan", "unknown plan id")
}

// NextEnabled reports whether the forward control is active for the current
// step. Step 1 requires the terms-acceptance flag; step 3 requires both
// uploads to be idle.
func (w *Wizard) NextEnabled() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch w.step {
	case StepPersonal:
		return w.form.AcceptTerms
	case StepAssets:
		return !w.uploadsInFlight()
	case StepCompany:
		return true
	default:
		// Steps 4 and 5 advance through their own operations.
		return false
	}
}

// PrevEnabled reports whether the backward control is active.
func (w *Wizard) PrevEnabled() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.step <= StepPersonal {
		return false
	}
	if w.step == StepAssets && w.uploadsInFlight() {
		return false
	}
	return true
}

// Next advances one step when the forward control is enabled.
func (w *Wizard) Next() error {
	if !w.NextEnabled() {
		return xerrors.Validation("step", "cannot advance from the current step")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.step++
	w.logger.Debug("wizard advanced", zap.Int("step", w.step))
	return nil
}

// Prev goes back one step when the backward control is enabled.
func (w *Wizard) Prev() error {
	if !w.PrevEnabled() {
		return xerrors.Validation("step", "cannot go back from the current step")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.step--
	return nil
}

// UploadInFlight reports whether the given asset upload is running.
func (w *Wizard) UploadInFlight(field registration.UploadField) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.uploading[field]
}

// Upload runs one clinic asset upload as a background task. While it runs
// the field's control and both navigation controls are disabled. On success
// the hosted URL replaces the local file reference; on failure the field
// stays empty and the error is surfaced. The returned channel delivers the
// outcome once.
func (w *Wizard) Upload(ctx context.Context, field registration.UploadField, filename string, file io.Reader) <-chan error {
	done := make(chan error, 1)

	w.mu.Lock()
	if w.uploading[field] {
		w.mu.Unlock()
		err := xerrors.Validation(string(field), "upload already in progress")
		done <- err
		return done
	}
	w.uploading[field] = true
	w.mu.Unlock()

	go func() {
		resp, err := w.gw.UploadImage(ctx, filename, file)

		w.mu.Lock()
		w.uploading[field] = false
		if err == nil {
			switch field {
			case registration.UploadBanner:
				w.form.ClinicBanner = resp.Data.File
			case registration.UploadLogo:
				w.form.ClinicLogo = resp.Data.File
			}
		}
		w.mu.Unlock()

		if err != nil {
			w.flash.Errorf("%s", userMessage(err))
			w.logger.Warn("asset upload failed", zap.String("field", string(field)), zap.Error(err))
		} else {
			w.logger.Debug("asset uploaded", zap.String("field", string(field)))
		}
		done <- err
	}()

	return done
}

// TermsDocument fetches the terms and conditions link shown on step 1.
func (w *Wizard) TermsDocument(ctx context.Context) (string, error) {
	resp, err := w.gw.TermsDocument(ctx)
	if err != nil {
		return "", err
	}
	return resp.Data.PDF, nil
}

// ConfirmReview submits the registration from the step-4 review sub-phase.
// OTP entry is entered iff the response carried a customer id; otherwise
// the wizard stays in review with an error.
func (w *Wizard) ConfirmReview(ctx context.Context) error {
	w.mu.Lock()
	if w.step != StepReview || w.phase != PhaseReview {
		w.mu.Unlock()
		return xerrors.Validation("step", "not at the review sub-phase")
	}
	form := w.form
	w.mu.Unlock()

	resp, err := w.gw.CreateUser(ctx, &form)
	if err != nil {
		w.flash.Errorf("%s", userMessage(err))
		return err
	}
	if resp.Data.CustomerID == "" {
		w.flash.Errorf("Registration did not complete. Please try again.")
		return xerrors.ErrUnexpectedResponse
	}

	w.mu.Lock()
	w.customerID = resp.Data.CustomerID
	w.otpSent = true
	w.phase = PhaseOTP
	w.mu.Unlock()

	if err := w.sessions.SetCustomerID(ctx, resp.Data.CustomerID); err != nil {
		w.logger.Warn("failed to persist customer id", zap.Error(err))
	}
	w.logger.Info("registration submitted", zap.String("customer_id", resp.Data.CustomerID))
	return nil
}

// VerifyOTP checks the emailed code. Exactly six characters are required
// before any request is sent. Success advances to checkout; failure stays
// in the OTP sub-phase.
func (w *Wizard) VerifyOTP(ctx context.Context, code string) error {
	w.mu.Lock()
	if w.step != StepReview || w.phase != PhaseOTP {
		w.mu.Unlock()
		return xerrors.Validation("step", "not at the OTP sub-phase")
	}
	email := w.form.Email
	w.mu.Unlock()

	if utf8.RuneCountInString(code) != 6 {
		err := xerrors.Validation("otp", "the verification code must be 6 characters")
		w.flash.Errorf("%s", err.Message)
		return err
	}

	if _, err := w.gw.VerifyOTP(ctx, email, code); err != nil {
		w.flash.Errorf("%s", userMessage(err))
		return err
	}

	w.mu.Lock()
	w.step = StepCheckout
	w.phase = PhaseReview
	w.mu.Unlock()
	w.flash.Successf("Your email address has been verified.")
	return nil
}

// ProceedToCheckout requests a hosted checkout session and hands the URL to
// the redirect hook. No request is issued without both a customer id and a
// selected plan.
func (w *Wizard) ProceedToCheckout(ctx context.Context, successURL string) error {
	w.mu.Lock()
	customerID := w.customerID
	plan := w.selected
	w.mu.Unlock()

	if customerID == "" || plan == nil {
		err := xerrors.Validation("checkout", "a verified account and a selected plan are required before checkout")
		w.flash.Errorf("%s", err.Message)
		return err
	}

	checkoutURL, err := w.plansSvc.CreateCheckout(ctx, plan, customerID, successURL, true)
	if err != nil {
		w.flash.Errorf("%s", userMessage(err))
		return err
	}

	// A fresh checkout session makes the next return a fresh event, even if
	// it carries the same parameters as an earlier one.
	w.mu.Lock()
	w.handledResume = ""
	w.mu.Unlock()

	if w.OnRedirect != nil {
		w.OnRedirect(checkoutURL)
	}
	return nil
}

// Resume inspects the return query parameters. A cancel flag forces the
// wizard to checkout with an explanation; a session id triggers server-side
// verification and, on success, a delayed dashboard redirect. Each distinct
// return is handled once: replaying the same parameters (a refresh) is a
// no-op, but a later return with different parameters (a cancelled checkout
// retried and paid) is a new event. With neither parameter present the
// wizard state is untouched.
func (w *Wizard) Resume(ctx context.Context, query url.Values) error {
	sessionID := query.Get("sessionId")
	cancelled := query.Get("cancel") == "true"
	if sessionID == "" && !cancelled {
		return nil
	}

	key := "sessionId=" + sessionID + ";cancel=" + query.Get("cancel")
	w.mu.Lock()
	if w.handledResume == key {
		w.mu.Unlock()
		return nil
	}
	w.handledResume = key
	w.mu.Unlock()

	if cancelled {
		w.mu.Lock()
		w.step = StepCheckout
		w.mu.Unlock()
		w.flash.Errorf("%s", msgCheckoutCancelled)
		w.logger.Info("checkout cancelled by user")
		return nil
	}

	if err := w.plansSvc.VerifySession(ctx, sessionID); err != nil {
		w.flash.Errorf("%s", msgCheckoutFailed)
		w.logger.Warn("checkout verification failed", zap.Error(err))
		return err
	}

	w.flash.Successf("%s", msgCheckoutVerified)
	if w.OnDashboard != nil {
		time.AfterFunc(w.redirectDelay, w.OnDashboard)
	}
	return nil
}

// uploadsInFlight must be called with w.mu held.
func (w *Wizard) uploadsInFlight() bool {
	return w.uploading[registration.UploadBanner] || w.uploading[registration.UploadLogo]
}

// userMessage maps an error to its user-facing text, with the tailored
// explanation for the unapproved-account server string.
func userMessage(err error) string {
	if xerrors.IsNotApproved(err) {
		return "Your account has not been approved by an administrator yet. You will receive an email once it has been reviewed."
	}
	if ae, ok := xerrors.AsAPIError(err); ok {
		return ae.Message
	}
	if xerrors.IsNetwork(err) {
		return "Could not reach the server. Please check your connection and try again."
	}
	return err.Error()
}
