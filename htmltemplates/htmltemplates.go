package htmltemplates

import (
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io"

	"talentbook-middleware/catalog"
	"talentbook-middleware/reconcile"
)

const (
	SupportEmail = "support@talentbook.com"
	dateLayout   = "Jan 2, 2006"
)

//go:embed templates/*.html
var files embed.FS

var templates = template.Must(template.New("").ParseFS(files, "templates/*.html"))

type OrderView struct {
	Amount        string
	PaymentStatus string
	OrderDate     string
}

type SubscriptionView struct {
	Status      string
	NextBilling string
}

// View is everything a checkout page needs. Name selects the template.
type View struct {
	Name           string
	Title          string
	ErrorMessage   string
	Order          *OrderView
	Subscription   *SubscriptionView
	Pending        bool
	RefreshURL     string
	RefreshSeconds int
	FooterText     string
	SupportEmail   string
}

// LoadingView is shown while the confirmation is outstanding; the browser
// reloads refreshURL after refreshSeconds.
func LoadingView(refreshURL string, refreshSeconds int) View {
	return View{
		Name:           "loading",
		Title:          "Processing",
		RefreshURL:     refreshURL,
		RefreshSeconds: refreshSeconds,
		FooterText:     "Questions about your purchase?",
		SupportEmail:   SupportEmail,
	}
}

func ErrorView(err error) View {
	msg := "An unexpected error occurred"
	var ue *reconcile.UnexpectedError
	switch {
	case errors.Is(err, reconcile.ErrMissingSessionReference):
		msg = "No session ID found"
	case errors.As(err, &ue):
		msg = fmt.Sprint(ue.Value)
	case err != nil:
		msg = err.Error()
	}
	return View{
		Name:         "error",
		Title:        "Something went wrong",
		ErrorMessage: msg,
		FooterText:   "Need help?",
		SupportEmail: SupportEmail,
	}
}

func CancelView() View {
	return View{
		Name:         "cancel",
		Title:        "Payment Cancelled",
		FooterText:   "Need help?",
		SupportEmail: SupportEmail,
	}
}

// SuccessView renders whatever the reconciliation found. The subscription
// section is only shown for an active subscription. A result that is still
// processing reloads refreshURL after refreshSeconds.
func SuccessView(res reconcile.Result, refreshURL string, refreshSeconds int) View {
	v := View{
		Name:         "success",
		Title:        "Payment Successful",
		FooterText:   "Questions about your purchase?",
		SupportEmail: SupportEmail,
	}

	switch res.Kind {
	case reconcile.Both:
		v.Order = orderView(res)
		v.Subscription = subscriptionView(res)
	case reconcile.OrderOnly:
		v.Order = orderView(res)
	case reconcile.SubscriptionOnly:
		v.Subscription = subscriptionView(res)
	case reconcile.NoneFound:
	default:
		panic(fmt.Sprintf("unhandled result kind %v", res.Kind))
	}

	if res.StillProcessing {
		v.Pending = true
		v.RefreshURL = refreshURL
		v.RefreshSeconds = refreshSeconds
	}
	return v
}

func orderView(res reconcile.Result) *OrderView {
	o := res.Order
	if o == nil {
		return nil
	}
	return &OrderView{
		Amount:        catalog.FormatAmount(o.AmountTotal, o.Currency),
		PaymentStatus: o.PaymentStatus,
		OrderDate:     o.OrderDate.Format(dateLayout),
	}
}

func subscriptionView(res reconcile.Result) *SubscriptionView {
	s := res.Subscription
	if s == nil || !s.IsActive() {
		return nil
	}
	sv := &SubscriptionView{Status: s.Status}
	if end := s.PeriodEnd(); !end.IsZero() {
		sv.NextBilling = end.Format(dateLayout)
	}
	return sv
}

// Render writes the page for v.
func Render(w io.Writer, v View) error {
	if err := templates.ExecuteTemplate(w, v.Name+".html", v); err != nil {
		return fmt.Errorf("failed to render template %v: %w", v.Name, err)
	}
	return nil
}
