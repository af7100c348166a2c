// internal/gateway/endpoints.go
package gateway

import (
	"context"
	"fmt"
	"io"
	"net/url"

	"physioportal-client/internal/domain/auth"
	"physioportal-client/internal/domain/registration"
	xerrors "physioportal-client/internal/pkg/errors"
)

// Backend routes. The casing oddities are the backend's, not ours.
const (
	pathLogin             = "/user/login"
	pathCheckLoginType    = "/bankId/checkLoginType"
	pathBankIDLogin       = "/bankId/banKidLogin"
	pathOrderStatus       = "/bankid/orderStatus"
	pathSameDeviceStatus  = "/bankid/sameDeviceCheckOrderStatus"
	pathCreateUser        = "/user/create-user"
	pathVerifyOTP         = "/auth/verifyotp"
	pathImageUpload       = "/image/imageUpload"
	pathFreePlans         = "/user/getFreePlan"
	pathTermsDocument     = "/user/trainerPrivacyPolicyPdfDetail"
	pathCheckoutSession   = "/user/checkout-session"
	pathRetrieveSession   = "/user/retrive-session"
)

// PasswordLogin exchanges email/password for a session payload.
func (c *Client) PasswordLogin(ctx context.Context, email, password string) (*auth.LoginResponse, error) {
	req := auth.LoginRequest{Email: email, Password: password, Host: c.portalHost}
	var resp auth.LoginResponse
	if err := c.post(ctx, pathLogin, req, &resp); err != nil {
		return nil, err
	}
	if resp.Data.User == nil || resp.Data.Token == "" {
		return nil, fmt.Errorf("%w: login response missing user or token", xerrors.ErrUnexpectedResponse)
	}
	return &resp, nil
}

// CheckLoginType asks which mechanism the account authenticates with.
func (c *Client) CheckLoginType(ctx context.Context, email string) (*auth.CheckLoginTypeResponse, error) {
	req := auth.CheckLoginTypeRequest{Email: email, LoginType: auth.LoginTypePassword}
	var resp auth.CheckLoginTypeResponse
	if err := c.post(ctx, pathCheckLoginType, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// BankIDLogin initiates a BankID order in sameDevice or otherDevice mode.
func (c *Client) BankIDLogin(ctx context.Context, email, mode string) (*auth.BankIDLoginResponse, error) {
	req := auth.BankIDLoginRequest{Email: email, LoginType: mode}
	var resp auth.BankIDLoginResponse
	if err := c.post(ctx, pathBankIDLogin, req, &resp); err != nil {
		return nil, err
	}
	switch mode {
	case auth.ModeOtherDevice:
		if resp.Data.OrderRef == "" || resp.Data.QRData == "" {
			return nil, fmt.Errorf("%w: bankid response missing order or qr payload", xerrors.ErrUnexpectedResponse)
		}
	case auth.ModeSameDevice:
		if resp.Data.URL == "" {
			return nil, fmt.Errorf("%w: bankid response missing redirect url", xerrors.ErrUnexpectedResponse)
		}
	}
	return &resp, nil
}

// OrderStatus polls an other-device BankID order.
func (c *Client) OrderStatus(ctx context.Context, orderRef, qrStartToken, qrStartSecret string) (*auth.OrderStatusResponse, error) {
	q := url.Values{}
	q.Set("orderRef", orderRef)
	q.Set("qrStartToken", qrStartToken)
	q.Set("qrStartSecret", qrStartSecret)
	var resp auth.OrderStatusResponse
	if err := c.get(ctx, pathOrderStatus, q, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SameDeviceOrderStatus checks a same-device order once, after the redirect
// callback delivered the order ref.
func (c *Client) SameDeviceOrderStatus(ctx context.Context, orderRef string) (*auth.OrderStatusResponse, error) {
	q := url.Values{}
	q.Set("orderRef", orderRef)
	var resp auth.OrderStatusResponse
	if err := c.get(ctx, pathSameDeviceStatus, q, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateUser submits the registration form. The returned customer id gates
// OTP entry and checkout.
func (c *Client) CreateUser(ctx context.Context, form *registration.Form) (*registration.CreateUserResponse, error) {
	var resp registration.CreateUserResponse
	if err := c.post(ctx, pathCreateUser, form, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// VerifyOTP confirms the emailed one-time password.
func (c *Client) VerifyOTP(ctx context.Context, email, otp string) (*registration.VerifyOTPResponse, error) {
	req := registration.VerifyOTPRequest{Email: email, OTP: otp}
	var resp registration.VerifyOTPResponse
	if err := c.post(ctx, pathVerifyOTP, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UploadImage uploads one clinic asset and returns its hosted URL.
func (c *Client) UploadImage(ctx context.Context, filename string, file io.Reader) (*registration.UploadResponse, error) {
	var resp registration.UploadResponse
	if err := c.postMultipart(ctx, pathImageUpload, "image", filename, file, &resp); err != nil {
		return nil, err
	}
	if resp.Data.File == "" {
		return nil, fmt.Errorf("%w: upload response missing file url", xerrors.ErrUnexpectedResponse)
	}
	return &resp, nil
}

// FreePlans fetches the subscribable plans.
func (c *Client) FreePlans(ctx context.Context) (*registration.PlansResponse, error) {
	var resp registration.PlansResponse
	if err := c.get(ctx, pathFreePlans, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TermsDocument fetches the terms and conditions document link.
func (c *Client) TermsDocument(ctx context.Context) (*registration.TermsResponse, error) {
	var resp registration.TermsResponse
	if err := c.get(ctx, pathTermsDocument, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateCheckoutSession asks the backend for a hosted Stripe checkout URL.
func (c *Client) CreateCheckoutSession(ctx context.Context, req *registration.CheckoutRequest) (*registration.CheckoutResponse, error) {
	var resp registration.CheckoutResponse
	if err := c.post(ctx, pathCheckoutSession, req, &resp); err != nil {
		return nil, err
	}
	if resp.Data.URL == "" {
		return nil, fmt.Errorf("%w: checkout response missing url", xerrors.ErrUnexpectedResponse)
	}
	return &resp, nil
}

// RetrieveSession verifies a completed checkout session.
func (c *Client) RetrieveSession(ctx context.Context, sessionID string) (*registration.RetrieveSessionResponse, error) {
	q := url.Values{}
	q.Set("sessionId", sessionID)
	var resp registration.RetrieveSessionResponse
	if err := c.get(ctx, pathRetrieveSession, q, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
