// internal/service/subscription/plans.go
package subscription

import (
	"context"
	"fmt"

	"physioportal-client/internal/domain/registration"
	"physioportal-client/internal/gateway"
	xerrors "physioportal-client/internal/pkg/errors"

	"go.uber.org/zap"
)

// PlanService fetches the subscribable plans and drives the hosted checkout
// session lifecycle (create, then verify after the redirect returns).
type PlanService struct {
	gw     *gateway.Client
	logger *zap.Logger
}

func NewPlanService(gw *gateway.Client, logger *zap.Logger) *PlanService {
	return &PlanService{gw: gw, logger: logger}
}

// FetchPlans retrieves the available plans. The wizard calls this once per
// mount and treats the result as read-only.
func (s *PlanService) FetchPlans(ctx context.Context) ([]registration.Plan, error) {
	resp, err := s.gw.FreePlans(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch plans: %w", err)
	}
	s.logger.Debug("plans fetched", zap.Int("count", len(resp.Data)))
	return resp.Data, nil
}

// CreateCheckout requests a hosted checkout session for the selected plan
// and returns the URL to redirect to. Both ids are required; the caller
// guards this, but the service refuses to build a bad request either way.
func (s *PlanService) CreateCheckout(ctx context.Context, plan *registration.Plan, customerID, successURL string, firstPurchase bool) (string, error) {
	if plan == nil {
		return "", xerrors.Validation("plan", "a plan must be selected")
	}
	if customerID == "" {
		return "", xerrors.Validation("customerId", "customer id is required")
	}

	req := &registration.CheckoutRequest{
		PriceID:             plan.StripePriceID,
		CustomerID:          customerID,
		SuccessURL:          successURL,
		IsFirstTimePurchase: firstPurchase,
	}
	resp, err := s.gw.CreateCheckoutSession(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to create checkout session: %w", err)
	}

	s.logger.Info("checkout session created",
		zap.String("plan", plan.PlanName),
		zap.String("customer_id", customerID),
	)
	return resp.Data.URL, nil
}

// VerifySession confirms a completed checkout session with the backend.
func (s *PlanService) VerifySession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return xerrors.Validation("sessionId", "session id is required")
	}
	resp, err := s.gw.RetrieveSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to verify checkout session: %w", err)
	}
	if !resp.Verified() {
		return fmt.Errorf("checkout session was not accepted")
	}
	s.logger.Info("checkout session verified", zap.String("session_id", sessionID))
	return nil
}
