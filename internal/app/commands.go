// internal/app/commands.go
package app

import (
	"bufio"
	"context"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"physioportal-client/internal/callback"
	"physioportal-client/internal/domain/registration"
	authsvc "physioportal-client/internal/service/auth"
	regsvc "physioportal-client/internal/service/registration"

	"github.com/mdp/qrterminal/v3"
	"go.uber.org/zap"
)

func (a *App) runLogin(ctx context.Context) error {
	if a.sessions.IsAuthenticated() {
		fmt.Printf("Already signed in as %s. Run `portal logout` first to switch accounts.\n", a.sessions.User().Email)
		return nil
	}

	reader := bufio.NewReader(os.Stdin)
	poller := authsvc.NewPoller(a.gw, a.cfg.PollInterval, a.cfg.PollTimeout, a.logger)
	flow := authsvc.NewLoginFlow(a.gw, a.sessions, poller, a.msgs, a.logger)
	defer flow.Close()

	flow.OnQR = func(payload string) {
		fmt.Println("\nScan the code with your BankID app:")
		qrterminal.GenerateHalfBlock(payload, qrterminal.L, os.Stdout)
	}
	flow.OnRedirect = a.openBrowser

	for ctx.Err() == nil {
		switch flow.State() {
		case authsvc.StateEnteringEmail:
			email := prompt(reader, "Email")
			_ = flow.SubmitEmail(ctx, email)

		case authsvc.StatePasswordPrompt:
			password := prompt(reader, "Password (or :back for a different email)")
			if password == ":back" {
				flow.UseDifferentEmail()
				continue
			}
			_ = flow.SubmitPassword(ctx, password)

		case authsvc.StateChoosingBankIDMode:
			fmt.Println("\nSign in with BankID:")
			fmt.Println("  1) On this device")
			fmt.Println("  2) On another device (QR code)")
			fmt.Println("  3) Use a different email")
			switch prompt(reader, "Choice") {
			case "1":
				a.sameDeviceLogin(ctx, flow)
			case "2":
				_ = flow.ChooseOtherDevice(ctx)
			case "3":
				flow.UseDifferentEmail()
			}

		case authsvc.StateBankIDPending:
			// The poller owns this state; wait for it to resolve.
			time.Sleep(200 * time.Millisecond)

		case authsvc.StateBankIDFailed:
			if promptYN(reader, "BankID sign-in failed. Try again?") {
				_ = flow.RetryBankID(ctx)
			} else {
				flow.UseDifferentEmail()
			}

		case authsvc.StateAuthenticated:
			fmt.Printf("Signed in as %s.\n", a.sessions.User().FullName())
			return nil
		}
	}
	return ctx.Err()
}

// sameDeviceLogin opens the BankID app URL and waits for the browser
// redirect to come back through the loopback server with the order ref.
func (a *App) sameDeviceLogin(ctx context.Context, flow *authsvc.LoginFlow) {
	cb := callback.NewServer(a.cfg.CallbackAddr, a.logger)
	if err := cb.Start(); err != nil {
		a.msgs.Errorf("%s", err.Error())
		return
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = cb.Shutdown(shutdownCtx)
	}()

	orderRef, err := flow.ChooseSameDevice(ctx)
	if err != nil {
		return
	}

	fmt.Println("Waiting for BankID to complete in your browser...")
	got, err := cb.AwaitBankID(ctx)
	if err != nil {
		return
	}
	if orderRef != "" && got != orderRef {
		a.msgs.Errorf("The sign-in that returned does not match the one started here.")
		a.logger.Warn("same-device order ref mismatch",
			zap.String("initiated", orderRef),
			zap.String("returned", got),
		)
		return
	}
	_ = flow.CompleteSameDevice(ctx, got)
}

func (a *App) runRegister(ctx context.Context) error {
	reader := bufio.NewReader(os.Stdin)

	cb := callback.NewServer(a.cfg.CallbackAddr, a.logger)
	if err := cb.Start(); err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = cb.Shutdown(shutdownCtx)
	}()

	wiz := regsvc.NewWizard(a.gw, a.plans, a.sessions, a.msgs, a.cfg.RedirectDelay, a.logger)
	wiz.OnRedirect = a.openBrowser
	dashboard := make(chan struct{}, 1)
	wiz.OnDashboard = func() {
		select {
		case dashboard <- struct{}{}:
		default:
		}
	}

	if err := wiz.Mount(ctx, url.Values{}); err != nil {
		return err
	}

	for ctx.Err() == nil {
		switch wiz.Step() {
		case regsvc.StepPersonal:
			a.stepPersonal(ctx, reader, wiz)
		case regsvc.StepCompany:
			a.stepCompany(reader, wiz)
		case regsvc.StepAssets:
			a.stepAssets(ctx, reader, wiz)
		case regsvc.StepReview:
			if err := a.stepReview(ctx, reader, wiz); err != nil {
				return err
			}
		case regsvc.StepCheckout:
			done, err := a.stepCheckout(ctx, reader, wiz, cb, dashboard)
			if done || err != nil {
				return err
			}
		}
	}
	return ctx.Err()
}

func (a *App) stepPersonal(ctx context.Context, reader *bufio.Reader, wiz *regsvc.Wizard) {
	fmt.Println("\n-- Step 1 of 5: Personal information --")
	wiz.SetForm(func(f *registration.Form) {
		f.FirstName = prompt(reader, "First name")
		f.LastName = prompt(reader, "Last name")
		f.Phone = prompt(reader, "Phone")
		f.Email = prompt(reader, "Email")
		f.Password = prompt(reader, "Password")
		f.ConfirmPassword = prompt(reader, "Confirm password")
	})

	if link, err := wiz.TermsDocument(ctx); err == nil && link != "" {
		fmt.Printf("Terms and conditions: %s\n", link)
	}
	accepted := promptYN(reader, "I accept the terms and conditions")
	wiz.SetForm(func(f *registration.Form) { f.AcceptTerms = accepted })

	if err := wiz.Next(); err != nil {
		fmt.Println("You must accept the terms and conditions to continue.")
	}
}

func (a *App) stepCompany(reader *bufio.Reader, wiz *regsvc.Wizard) {
	fmt.Println("\n-- Step 2 of 5: Company information --")
	wiz.SetForm(func(f *registration.Form) {
		f.CompanyName = prompt(reader, "Company name")
		f.Street = prompt(reader, "Street")
		f.ZipCode = prompt(reader, "Zip code")
		f.City = prompt(reader, "City")
		f.Country = prompt(reader, "Country")
		f.VATNumber = prompt(reader, "VAT number")
	})
	_ = wiz.Next()
}

func (a *App) stepAssets(ctx context.Context, reader *bufio.Reader, wiz *regsvc.Wizard) {
	fmt.Println("\n-- Step 3 of 5: Clinic assets --")
	a.uploadAsset(ctx, reader, wiz, registration.UploadBanner, "Banner image path (blank to skip)")
	a.uploadAsset(ctx, reader, wiz, registration.UploadLogo, "Logo image path (blank to skip)")
	_ = wiz.Next()
}

func (a *App) uploadAsset(ctx context.Context, reader *bufio.Reader, wiz *regsvc.Wizard, field registration.UploadField, label string) {
	path := prompt(reader, label)
	if path == "" {
		return
	}
	file, err := os.Open(path)
	if err != nil {
		a.msgs.Errorf("Could not open %s: %v", path, err)
		return
	}
	defer file.Close()

	fmt.Println("Uploading...")
	<-wiz.Upload(ctx, field, file.Name(), file)
}

func (a *App) stepReview(ctx context.Context, reader *bufio.Reader, wiz *regsvc.Wizard) error {
	if wiz.Phase() == regsvc.PhaseReview {
		form := wiz.Form()
		fmt.Println("\n-- Step 4 of 5: Review --")
		fmt.Printf("  Name:    %s %s\n", form.FirstName, form.LastName)
		fmt.Printf("  Email:   %s\n", form.Email)
		fmt.Printf("  Phone:   %s\n", form.Phone)
		fmt.Printf("  Company: %s, %s %s %s\n", form.CompanyName, form.Street, form.ZipCode, form.City)
		if !promptYN(reader, "Create the account with these details?") {
			_ = wiz.Prev()
			return nil
		}
		if err := wiz.ConfirmReview(ctx); err != nil {
			return nil // surfaced transiently, stay in review
		}
	}

	fmt.Printf("A verification code has been sent to %s.\n", wiz.Form().Email)
	for wiz.Phase() == regsvc.PhaseOTP && ctx.Err() == nil {
		code := prompt(reader, "Verification code")
		_ = wiz.VerifyOTP(ctx, code)
	}
	return ctx.Err()
}

func (a *App) stepCheckout(ctx context.Context, reader *bufio.Reader, wiz *regsvc.Wizard, cb *callback.Server, dashboard <-chan struct{}) (bool, error) {
	fmt.Println("\n-- Step 5 of 5: Choose your plan --")
	plans := wiz.Plans()
	if len(plans) == 0 {
		return true, fmt.Errorf("no subscription plans are available")
	}
	for i, p := range plans {
		marker := " "
		if sel := wiz.SelectedPlan(); sel != nil && sel.ID == p.ID {
			marker = "*"
		}
		fmt.Printf("  %s %d) %s (%s, %s)\n", marker, i+1, p.PlanName, p.PlanType, p.Duration)
	}
	if choice := prompt(reader, "Plan number (blank keeps the selection)"); choice != "" {
		for i, p := range plans {
			if choice == fmt.Sprintf("%d", i+1) {
				_ = wiz.SelectPlan(p.ID)
			}
		}
	}

	if err := wiz.ProceedToCheckout(ctx, cb.CheckoutReturnURL()); err != nil {
		return false, nil
	}

	fmt.Println("Complete the payment in your browser...")
	query, err := cb.AwaitCheckout(ctx)
	if err != nil {
		return true, err
	}
	if err := wiz.Resume(ctx, query); err != nil {
		return true, nil // contact-support message already shown
	}
	if query.Get("cancel") == "true" {
		// Back to plan selection with the cancellation message on display.
		return false, nil
	}

	select {
	case <-dashboard:
		fmt.Println("Your account is ready. Welcome to PhysioPortal!")
	case <-ctx.Done():
		return true, ctx.Err()
	}
	return true, nil
}

func (a *App) runLogout(ctx context.Context) error {
	if err := a.sessions.ClearSession(ctx); err != nil {
		return err
	}
	fmt.Println("Signed out.")
	return nil
}

func (a *App) runWhoami(_ context.Context) error {
	user := a.sessions.User()
	if user == nil {
		fmt.Println("Not signed in.")
		return nil
	}
	fmt.Printf("Signed in as %s <%s>\n", user.FullName(), user.Email)
	if id := a.sessions.CustomerID(); id != "" {
		fmt.Printf("Billing customer: %s\n", id)
	}
	if claims, err := a.sessions.Claims(); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			fmt.Printf("Token expires: %s\n", exp.Time.Format(time.RFC1123))
		}
	}
	if !a.sessions.TokenValid() {
		fmt.Println("Note: the backend has rejected this token; sign in again.")
	}
	return nil
}

func (a *App) runPlans(ctx context.Context) error {
	plans, err := a.plans.FetchPlans(ctx)
	if err != nil {
		return err
	}
	if len(plans) == 0 {
		fmt.Println("No plans available.")
		return nil
	}
	for _, p := range plans {
		fmt.Printf("%-24s %-12s %s\n", p.PlanName, p.PlanType, p.Duration)
	}
	return nil
}

// openBrowser performs the full navigation redirect: open the URL in the
// default browser, falling back to printing it.
func (a *App) openBrowser(target string) {
	fmt.Printf("Opening: %s\n", target)

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", target)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", target)
	default:
		cmd = exec.Command("xdg-open", target)
	}
	if err := cmd.Start(); err != nil {
		a.logger.Debug("could not open browser", zap.Error(err))
	}
}

func prompt(reader *bufio.Reader, label string) string {
	fmt.Printf("%s: ", label)
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line)
}

func promptYN(reader *bufio.Reader, label string) bool {
	answer := strings.ToLower(prompt(reader, label+" [y/N]"))
	return answer == "y" || answer == "yes"
}
