package order

// OrderState implements the state pattern for the payment lifecycle.
// unpaid -> paid is the only transition; paid orders refuse line changes.
type OrderState interface {
	Status() Status
	OnReplace(o *Order) (OrderState, error)
	OnPaid(o *Order) OrderState
}

func (o *Order) state() OrderState {
	if o.Paid {
		return paidState{}
	}
	return unpaidState{}
}

type unpaidState struct{}

func (unpaidState) Status() Status { return StatusUnpaid }

func (unpaidState) OnReplace(*Order) (OrderState, error) {
	return unpaidState{}, nil
}

func (unpaidState) OnPaid(*Order) OrderState {
	return paidState{}
}

type paidState struct{}

func (paidState) Status() Status { return StatusPaid }

func (paidState) OnReplace(*Order) (OrderState, error) {
	return nil, ErrAlreadyPaid
}

func (paidState) OnPaid(*Order) OrderState {
	return paidState{}
}
