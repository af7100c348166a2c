// internal/domain/registration/entity.go
package registration

// Form is the accumulated registration wizard input across all steps.
type Form struct {
	// Step 1: personal info
	FirstName       string `json:"firstName"`
	LastName        string `json:"lastName"`
	Phone           string `json:"phone"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"-"`
	AcceptTerms     bool   `json:"-"`

	// Step 2: company info
	CompanyName string `json:"companyName"`
	Street      string `json:"street"`
	ZipCode     string `json:"zipCode"`
	City        string `json:"city"`
	Country     string `json:"country"`
	VATNumber   string `json:"vatNumber"`

	// Step 3: clinic assets, set to the uploaded asset URLs
	ClinicBanner string `json:"clinicBanner"`
	ClinicLogo   string `json:"clinicLogo"`
}

// Plan is a subscription plan offered at checkout. Fetched once per wizard,
// read-only afterwards.
type Plan struct {
	ID            string `json:"id"`
	PlanName      string `json:"planName"`
	PlanType      string `json:"planType"`
	Duration      string `json:"duration"`
	StripePriceID string `json:"stripePriceId"`
}

// UploadField identifies one of the two independent step-3 uploads.
type UploadField string

const (
	UploadBanner UploadField = "clinicBanner"
	UploadLogo   UploadField = "clinicLogo"
)
