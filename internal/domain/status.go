package domain

// Actor is the side of an order a caller stands on.
type Actor string

const (
	ActorBuyer  Actor = "buyer"
	ActorSeller Actor = "seller"
)

type transition struct {
	from  []string
	actor []Actor
}

var transitions = map[string]transition{
	OrderProcessing: {from: []string{OrderPending, OrderPaymentApproved}, actor: []Actor{ActorSeller}},
	OrderShipped:    {from: []string{OrderProcessing}, actor: []Actor{ActorSeller}},
	OrderDelivered:  {from: []string{OrderShipped}, actor: []Actor{ActorBuyer}},
	OrderCanceled: {
		from:  []string{OrderPending, OrderProcessing, OrderPaymentApproved, OrderPaymentFailed},
		actor: []Actor{ActorSeller, ActorBuyer},
	},
}

// IsOrderStatus reports whether s is a status the order table accepts.
func IsOrderStatus(s string) bool {
	switch s {
	case OrderPending, OrderProcessing, OrderShipped, OrderDelivered, OrderCanceled,
		OrderPaymentApproved, OrderPaymentFailed:
		return true
	}
	return false
}

// ActorMayRequest reports whether the actor is ever allowed to move an order into to.
func ActorMayRequest(a Actor, to string) bool {
	t, ok := transitions[to]
	if !ok {
		return false
	}
	for _, x := range t.actor {
		if x == a {
			return true
		}
	}
	return false
}

// CanTransition reports whether an order in from may move to to.
func CanTransition(from, to string) bool {
	t, ok := transitions[to]
	if !ok {
		return false
	}
	for _, f := range t.from {
		if f == from {
			return true
		}
	}
	return false
}
