// internal/callback/server.go
package callback

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"

	"physioportal-client/internal/middleware"
	"physioportal-client/internal/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Server is the loopback HTTP endpoint that receives browser redirects back
// into the terminal flow: the same-device BankID return and the hosted
// checkout return. Redirect URLs carry a per-server state parameter; a
// mismatched state is rejected so an unrelated redirect cannot feed a
// waiting flow.
type Server struct {
	addr   string
	state  string
	logger *zap.Logger
	srv    *http.Server
	ln     net.Listener

	bankid   chan string
	checkout chan url.Values
}

func NewServer(addr string, logger *zap.Logger) *Server {
	s := &Server{
		addr:     addr,
		state:    uuid.NewString(),
		logger:   logger,
		bankid:   make(chan string, 1),
		checkout: make(chan url.Values, 1),
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(
		middleware.RecoveryMiddleware(logger),
		middleware.LoggingMiddleware(logger),
	)
	engine.GET("/bankid/return", s.handleBankIDReturn)
	engine.GET("/checkout/return", s.handleCheckoutReturn)

	s.srv = &http.Server{Addr: addr, Handler: engine}
	return s
}

// Start binds the loopback listener and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to bind callback listener: %w", err)
	}
	s.ln = ln

	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("callback server stopped", zap.Error(err))
		}
	}()
	s.logger.Debug("callback server listening", zap.String("addr", ln.Addr().String()))
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// BaseURL returns the externally reachable base of the callback server.
func (s *Server) BaseURL() string {
	addr := s.addr
	if s.ln != nil {
		addr = s.ln.Addr().String()
	}
	return "http://" + addr
}

// CheckoutReturnURL is handed to the backend as the checkout success URL.
// The payment provider appends sessionId (or cancel=true) on return.
func (s *Server) CheckoutReturnURL() string {
	return fmt.Sprintf("%s/checkout/return?state=%s", s.BaseURL(), s.state)
}

// AwaitBankID blocks until the same-device redirect delivers an order ref.
func (s *Server) AwaitBankID(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case orderRef := <-s.bankid:
		return orderRef, nil
	}
}

// AwaitCheckout blocks until the checkout return delivers its query
// parameters (sessionId or cancel flag).
func (s *Server) AwaitCheckout(ctx context.Context) (url.Values, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case q := <-s.checkout:
		return q, nil
	}
}

// handleBankIDReturn carries no state parameter: the backend owns that
// redirect target. The waiting login flow cross-checks the delivered order
// ref against the order it initiated instead.
func (s *Server) handleBankIDReturn(c *gin.Context) {
	orderRef := c.Query("orderRef")
	if orderRef == "" {
		response.Error(c, http.StatusBadRequest, "missing order reference", nil)
		return
	}

	select {
	case s.bankid <- orderRef:
	default:
		// A ref is already queued; this is a duplicate redirect.
	}
	response.Success(c, http.StatusOK, "Sign-in received. You can close this window and return to the terminal.", nil)
}

func (s *Server) handleCheckoutReturn(c *gin.Context) {
	if !s.checkState(c) {
		return
	}
	q := c.Request.URL.Query()
	// The state parameter is ours, not part of the resume query.
	q.Del("state")

	select {
	case s.checkout <- q:
	default:
	}
	response.Success(c, http.StatusOK, "Checkout result received. You can close this window and return to the terminal.", nil)
}

func (s *Server) checkState(c *gin.Context) bool {
	if c.Query("state") != s.state {
		s.logger.Warn("callback with mismatched state", zap.String("path", c.Request.URL.Path))
		response.Error(c, http.StatusForbidden, "state mismatch", nil)
		return false
	}
	return true
}
