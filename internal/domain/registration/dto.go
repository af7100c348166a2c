// internal/domain/registration/dto.go
package registration

// CreateUserResponse for POST /user/create-user. CustomerID ties the new
// account to its billing profile and gates both OTP entry and checkout.
type CreateUserResponse struct {
	Status string `json:"status"`
	Data   struct {
		CustomerID string `json:"customerId"`
	} `json:"data"`
}

// VerifyOTPRequest for POST /auth/verifyotp
type VerifyOTPRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

// VerifyOTPResponse for POST /auth/verifyotp
type VerifyOTPResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// UploadResponse for POST /image/imageUpload
type UploadResponse struct {
	Status string `json:"status"`
	Data   struct {
		File string `json:"file"`
	} `json:"data"`
}

// PlansResponse for GET /user/getFreePlan
type PlansResponse struct {
	Status string `json:"status"`
	Data   []Plan `json:"data"`
}

// TermsResponse for GET /user/trainerPrivacyPolicyPdfDetail
type TermsResponse struct {
	Status string `json:"status"`
	Data   struct {
		PDF string `json:"pdf"`
	} `json:"data"`
}

// CheckoutRequest for POST /user/checkout-session
type CheckoutRequest struct {
	PriceID             string `json:"priceId"`
	CustomerID          string `json:"customerId"`
	SuccessURL          string `json:"successURL"`
	IsFirstTimePurchase bool   `json:"isFirstTimePurchase"`
}

// CheckoutResponse for POST /user/checkout-session
type CheckoutResponse struct {
	Status string `json:"status"`
	Data   struct {
		URL string `json:"url"`
	} `json:"data"`
}

// RetrieveSessionResponse for GET /user/retrive-session
type RetrieveSessionResponse struct {
	Status string `json:"status"`
	Data   struct {
		PaymentStatus string `json:"paymentStatus"`
	} `json:"data"`
}

// Verified reports whether the completed checkout session was accepted.
func (r *RetrieveSessionResponse) Verified() bool {
	return r.Status == "success"
}
