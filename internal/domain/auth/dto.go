// internal/domain/auth/dto.go
package auth

// LoginRequest for password login
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Host     string `json:"host"`
}

// CheckLoginTypeRequest asks the backend which login mechanism an email uses.
// LoginType is always "password" in this request; the answer is in the
// response.
type CheckLoginTypeRequest struct {
	Email     string `json:"email"`
	LoginType string `json:"loginType"`
}

// BankIDLoginRequest initiates a BankID order in the given mode.
type BankIDLoginRequest struct {
	Email     string `json:"email"`
	LoginType string `json:"loginType"`
}

// AuthPayload is the session-establishing part of an auth response.
type AuthPayload struct {
	Token      string      `json:"token"`
	User       *UserRecord `json:"user"`
	CustomerID string      `json:"customerId,omitempty"`
}

// LoginResponse for POST /user/login
type LoginResponse struct {
	Status string      `json:"status"`
	Data   AuthPayload `json:"data"`
}

// CheckLoginTypeResponse for POST /bankId/checkLoginType
type CheckLoginTypeResponse struct {
	Status string `json:"status"`
	Data   struct {
		LoginType string `json:"loginType"`
	} `json:"data"`
}

// LoginTypePassword is the discovery answer that routes to the password
// prompt; anything else routes to BankID mode selection.
const LoginTypePassword = "password"

// BankIDLoginResponse for POST /bankId/banKidLogin. Other-device orders carry
// the QR fields; same-device orders carry the redirect URL and order ref.
type BankIDLoginResponse struct {
	Status string `json:"status"`
	Data   struct {
		QRData        string `json:"qrData"`
		OrderRef      string `json:"orderRef"`
		QRStartToken  string `json:"qrStartToken"`
		QRStartSecret string `json:"qrStartSecret"`
		URL           string `json:"url"`
	} `json:"data"`
}

// OrderStatusResponse for GET /bankid/orderStatus and
// GET /bankid/sameDeviceCheckOrderStatus.
type OrderStatusResponse struct {
	Code int `json:"code"`
	Data struct {
		Status     string      `json:"status"`
		QRData     string      `json:"qrData"`
		Token      string      `json:"token"`
		User       *UserRecord `json:"user"`
		CustomerID string      `json:"customerId"`
	} `json:"data"`
}

// OrderFailed is the embedded status value that terminates polling with a
// retryable failure.
const OrderFailed = "failed"

// Completed reports whether the poll response is the success terminal state:
// a recognized OK code with an embedded auth payload.
func (r *OrderStatusResponse) Completed() bool {
	return r.Code == 200 && r.Data.User != nil
}

// Failed reports whether the poll response is the failure terminal state.
func (r *OrderStatusResponse) Failed() bool {
	return r.Data.Status == OrderFailed
}
