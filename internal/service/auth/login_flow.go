// internal/service/auth/login_flow.go
package auth

import (
	"context"
	"strings"
	"sync"

	"physioportal-client/internal/domain/auth"
	"physioportal-client/internal/gateway"
	xerrors "physioportal-client/internal/pkg/errors"
	"physioportal-client/internal/pkg/flash"
	"physioportal-client/internal/pkg/session"

	"go.uber.org/zap"
)

// State is the tagged login flow state. Exactly one is active at a time;
// illegal combinations (password prompt and BankID mode at once) are
// unrepresentable.
type State int

const (
	StateEnteringEmail State = iota
	StatePasswordPrompt
	StateChoosingBankIDMode
	StateBankIDPending
	StateBankIDFailed
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateEnteringEmail:
		return "entering_email"
	case StatePasswordPrompt:
		return "password_prompt"
	case StateChoosingBankIDMode:
		return "choosing_bankid_mode"
	case StateBankIDPending:
		return "bankid_pending"
	case StateBankIDFailed:
		return "bankid_failed"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// User-facing message constants. The unapproved-account server string is
// replaced by a tailored explanation instead of being shown raw.
const (
	msgBlockedAccount = "Your account has been blocked. Please contact support."
	msgNotApproved    = "Your account is awaiting administrator approval. You will be able to sign in once it has been reviewed."
	msgLoggedIn       = "You are now signed in."
)

// LoginFlow is the login state machine: email discovery, password login and
// the BankID branch with its polling challenge.
type LoginFlow struct {
	mu        sync.Mutex
	state     State
	email     string
	challenge *auth.BankIDChallenge
	stopPoll  func()

	gw       *gateway.Client
	sessions *session.Manager
	poller   *Poller
	flash    *flash.Center
	logger   *zap.Logger

	// OnQR renders the challenge QR payload; also invoked on QR rotation.
	OnQR func(payload string)
	// OnRedirect performs the full navigation redirect for same-device
	// BankID (opens the returned URL in a browser).
	OnRedirect func(url string)
}

func NewLoginFlow(gw *gateway.Client, sessions *session.Manager, poller *Poller, msgs *flash.Center, logger *zap.Logger) *LoginFlow {
	return &LoginFlow{
		state:    StateEnteringEmail,
		gw:       gw,
		sessions: sessions,
		poller:   poller,
		flash:    msgs,
		logger:   logger,
	}
}

// State returns the active flow state.
func (f *LoginFlow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Email returns the email captured by the discovery step.
func (f *LoginFlow) Email() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.email
}

// Challenge returns a snapshot of the live BankID challenge, nil outside
// the BankID branch. The live struct is only ever mutated under the flow's
// mutex, so callers get a consistent copy rather than a shared pointer.
func (f *LoginFlow) Challenge() *auth.BankIDChallenge {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.challenge == nil {
		return nil
	}
	snapshot := *f.challenge
	return &snapshot
}

// SubmitEmail runs login-type discovery. A password-type answer moves to the
// password prompt, anything else to BankID mode selection. On failure the
// flow stays put and the error is surfaced transiently.
func (f *LoginFlow) SubmitEmail(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		err := xerrors.Validation("email", "email is required")
		f.flash.Errorf("%s", err.Message)
		return err
	}

	resp, err := f.gw.CheckLoginType(ctx, email)
	if err != nil {
		f.flash.Errorf("%s", flowMessage(err))
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.email = email
	if resp.Data.LoginType == auth.LoginTypePassword {
		f.state = StatePasswordPrompt
	} else {
		f.state = StateChoosingBankIDMode
	}
	f.logger.Debug("login type resolved",
		zap.String("login_type", resp.Data.LoginType),
		zap.String("state", f.state.String()),
	)
	return nil
}

// SubmitPassword attempts password login for the captured email. A blocked
// account never establishes a session.
func (f *LoginFlow) SubmitPassword(ctx context.Context, password string) error {
	f.mu.Lock()
	if f.state != StatePasswordPrompt {
		f.mu.Unlock()
		return xerrors.Validation("state", "not at the password prompt")
	}
	email := f.email
	f.mu.Unlock()

	if password == "" {
		err := xerrors.Validation("password", "password is required")
		f.flash.Errorf("%s", err.Message)
		return err
	}

	resp, err := f.gw.PasswordLogin(ctx, email, password)
	if err != nil {
		f.flash.Errorf("%s", flowMessage(err))
		return err
	}

	if resp.Data.User.IsBlock {
		f.flash.Errorf("%s", msgBlockedAccount)
		return xerrors.ErrBlockedAccount
	}

	if err := f.sessions.SetSession(ctx, resp.Data.Token, resp.Data.User, resp.Data.CustomerID); err != nil {
		f.flash.Errorf("%s", err.Error())
		return err
	}

	f.mu.Lock()
	f.state = StateAuthenticated
	f.mu.Unlock()
	f.flash.Successf("%s", msgLoggedIn)
	return nil
}

// ChooseSameDevice initiates a same-device BankID order and hands the
// returned URL to the redirect hook. It returns the order ref so the caller
// can cross-check the redirect that eventually comes back; completion then
// runs through CompleteSameDevice.
func (f *LoginFlow) ChooseSameDevice(ctx context.Context) (string, error) {
	f.mu.Lock()
	if f.state != StateChoosingBankIDMode {
		f.mu.Unlock()
		return "", xerrors.Validation("state", "not choosing a BankID mode")
	}
	email := f.email
	f.mu.Unlock()

	resp, err := f.gw.BankIDLogin(ctx, email, auth.ModeSameDevice)
	if err != nil {
		f.flash.Errorf("%s", flowMessage(err))
		return "", err
	}

	if f.OnRedirect != nil {
		f.OnRedirect(resp.Data.URL)
	}
	return resp.Data.OrderRef, nil
}

// CompleteSameDevice performs the single status check after the same-device
// redirect returned with an order ref, and establishes the session on
// success.
func (f *LoginFlow) CompleteSameDevice(ctx context.Context, orderRef string) error {
	if orderRef == "" {
		return xerrors.Validation("orderRef", "order reference is required")
	}

	resp, err := f.gw.SameDeviceOrderStatus(ctx, orderRef)
	if err != nil {
		f.flash.Errorf("%s", flowMessage(err))
		return err
	}
	if !resp.Completed() {
		f.flash.Errorf("BankID authentication was not completed.")
		return xerrors.ErrChallengeClosed
	}
	return f.establishSession(ctx, resp)
}

// ChooseOtherDevice initiates an other-device BankID order and starts the
// challenge poll.
func (f *LoginFlow) ChooseOtherDevice(ctx context.Context) error {
	f.mu.Lock()
	if f.state != StateChoosingBankIDMode && f.state != StateBankIDFailed {
		f.mu.Unlock()
		return xerrors.Validation("state", "not choosing a BankID mode")
	}
	email := f.email
	f.mu.Unlock()

	resp, err := f.gw.BankIDLogin(ctx, email, auth.ModeOtherDevice)
	if err != nil {
		f.flash.Errorf("%s", flowMessage(err))
		return err
	}

	ch := &auth.BankIDChallenge{
		QRPayload:     resp.Data.QRData,
		OrderRef:      resp.Data.OrderRef,
		QRStartToken:  resp.Data.QRStartToken,
		QRStartSecret: resp.Data.QRStartSecret,
		Status:        auth.ChallengePending,
	}

	f.mu.Lock()
	f.stopPolling()
	f.challenge = ch
	f.state = StateBankIDPending
	f.stopPoll = f.poller.Start(ctx, ch, PollHooks{
		OnSuccess: func(resp *auth.OrderStatusResponse) { f.pollCompleted(ch, resp) },
		OnFailed:  func(err error) { f.pollFailed(ch, err) },
		OnQR:      func(payload string) { f.qrRotated(ch, payload) },
	})
	f.mu.Unlock()

	if f.OnQR != nil {
		f.OnQR(ch.QRPayload)
	}
	return nil
}

// RetryBankID restarts other-device login after a failed challenge.
func (f *LoginFlow) RetryBankID(ctx context.Context) error {
	f.mu.Lock()
	if f.state != StateBankIDFailed {
		f.mu.Unlock()
		return xerrors.Validation("state", "no failed BankID challenge to retry")
	}
	f.mu.Unlock()
	return f.ChooseOtherDevice(ctx)
}

// UseDifferentEmail resets to email entry from any state, discarding an
// in-progress challenge. The poll handle is cleared before the challenge so
// no stale tick can mutate discarded state.
func (f *LoginFlow) UseDifferentEmail() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopPolling()
	f.challenge = nil
	f.email = ""
	f.state = StateEnteringEmail
}

// Close stops any background polling; the flow instance is done.
func (f *LoginFlow) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopPolling()
	f.challenge = nil
}

// stopPolling must be called with f.mu held.
func (f *LoginFlow) stopPolling() {
	if f.stopPoll != nil {
		f.stopPoll()
		f.stopPoll = nil
	}
}

// qrRotated records a rotated QR payload on the challenge and forwards it to
// the display hook. Ignored once the challenge has been discarded.
func (f *LoginFlow) qrRotated(ch *auth.BankIDChallenge, payload string) {
	f.mu.Lock()
	if f.challenge != ch {
		f.mu.Unlock()
		return
	}
	ch.QRPayload = payload
	f.mu.Unlock()

	if f.OnQR != nil {
		f.OnQR(payload)
	}
}

// pollCompleted handles the success terminal tick of the challenge poll.
func (f *LoginFlow) pollCompleted(ch *auth.BankIDChallenge, resp *auth.OrderStatusResponse) {
	f.mu.Lock()
	if f.challenge != ch {
		// Stale tick: the challenge was discarded while the final request
		// was in flight.
		f.mu.Unlock()
		return
	}
	ch.Status = auth.ChallengeSuccess
	f.challenge = nil
	f.stopPoll = nil
	f.mu.Unlock()

	if err := f.establishSession(context.Background(), resp); err != nil {
		f.mu.Lock()
		f.state = StateBankIDFailed
		f.mu.Unlock()
	}
}

// pollFailed handles the failure terminal tick; the state gains a retry
// affordance.
func (f *LoginFlow) pollFailed(ch *auth.BankIDChallenge, err error) {
	f.mu.Lock()
	if f.challenge != ch {
		f.mu.Unlock()
		return
	}
	ch.Status = auth.ChallengeFailed
	f.stopPoll = nil
	f.state = StateBankIDFailed
	f.mu.Unlock()
	f.flash.Errorf("%s", flowMessage(err))
}

// establishSession turns a completed order status into an authenticated
// session, unless the account is blocked.
func (f *LoginFlow) establishSession(ctx context.Context, resp *auth.OrderStatusResponse) error {
	if resp.Data.User.IsBlock {
		f.flash.Errorf("%s", msgBlockedAccount)
		return xerrors.ErrBlockedAccount
	}
	if err := f.sessions.SetSession(ctx, resp.Data.Token, resp.Data.User, resp.Data.CustomerID); err != nil {
		f.flash.Errorf("%s", err.Error())
		return err
	}
	f.mu.Lock()
	f.state = StateAuthenticated
	f.mu.Unlock()
	f.flash.Successf("%s", msgLoggedIn)
	return nil
}

// flowMessage maps an error to its user-facing text. The unapproved-account
// server string gets the tailored explanation; everything else shows the
// classified message as-is.
func flowMessage(err error) string {
	if xerrors.IsNotApproved(err) {
		return msgNotApproved
	}
	if ae, ok := xerrors.AsAPIError(err); ok {
		return ae.Message
	}
	if xerrors.IsNetwork(err) {
		return "Could not reach the server. Please check your connection and try again."
	}
	return err.Error()
}
