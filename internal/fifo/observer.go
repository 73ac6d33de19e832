package fifo

// Observer is notified of server activity from the run loop goroutine.
type Observer interface {
	StateChanged(from, to State)
	CommandDispatched(size int, sentinel bool)
	// ClientDisconnected reports the end of a serving session. err is nil
	// for a clean end-of-stream.
	ClientDisconnected(err error)
}

type observers []Observer

func (o observers) stateChanged(from, to State) {
	for _, obs := range o {
		obs.StateChanged(from, to)
	}
}

func (o observers) commandDispatched(size int, sentinel bool) {
	for _, obs := range o {
		obs.CommandDispatched(size, sentinel)
	}
}

func (o observers) clientDisconnected(err error) {
	for _, obs := range o {
		obs.ClientDisconnected(err)
	}
}
