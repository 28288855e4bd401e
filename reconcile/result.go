package reconcile

import "talentbook-middleware/models"

// Kind tags which records a reconciliation found.
type Kind int

const (
	NoneFound Kind = iota
	OrderOnly
	SubscriptionOnly
	Both
)

func (k Kind) String() string {
	switch k {
	case OrderOnly:
		return "order_only"
	case SubscriptionOnly:
		return "subscription_only"
	case Both:
		return "both"
	}
	return "none_found"
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Result is what a reconciliation found for a checkout session. Order is set
// for OrderOnly and Both, Subscription for SubscriptionOnly and Both.
// StillProcessing means the poller gave up before anything appeared; the
// webhook may simply not have landed yet.
type Result struct {
	Kind            Kind                 `json:"kind"`
	Order           *models.Order        `json:"order,omitempty"`
	Subscription    *models.Subscription `json:"subscription,omitempty"`
	StillProcessing bool                 `json:"stillProcessing"`
}

func newResult(order *models.Order, sub *models.Subscription) Result {
	r := Result{Order: order, Subscription: sub}
	switch {
	case order != nil && sub != nil:
		r.Kind = Both
	case order != nil:
		r.Kind = OrderOnly
	case sub != nil:
		r.Kind = SubscriptionOnly
	default:
		r.Kind = NoneFound
	}
	return r
}

type State int

const (
	Idle State = iota
	Waiting
	Querying
	Resolved
	Failed
)

func (s State) String() string {
	return [...]string{"idle", "waiting", "querying", "resolved", "failed"}[s]
}

func (s State) Terminal() bool {
	return s == Resolved || s == Failed
}

// machine records the transitions of one reconciliation. Once a terminal
// state is reached further transitions are ignored.
type machine struct {
	state   State
	onState func(State)
}

func newMachine(onState func(State)) *machine {
	m := &machine{state: Idle, onState: onState}
	m.emit()
	return m
}

func (m *machine) to(s State) {
	if m.state.Terminal() {
		return
	}
	m.state = s
	m.emit()
}

func (m *machine) emit() {
	if m.onState != nil {
		m.onState(m.state)
	}
}
