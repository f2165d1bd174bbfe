package depletion

// ValueChange reports a cell's saturation after one extraction. X and Y are
// canonical (already wrapped) grid coordinates.
type ValueChange struct {
	X        int     `json:"x"`
	Y        int     `json:"y"`
	NewValue float64 `json:"v"`
}

// Notifier receives the cells changed by an extraction. It is called once per
// extraction that removed anything, with every changed cell in one batch.
// Order within the batch is unspecified and each cell appears at most once.
type Notifier interface {
	OnValuesChanged(changes []ValueChange)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(changes []ValueChange)

// OnValuesChanged calls f.
func (f NotifierFunc) OnValuesChanged(changes []ValueChange) {
	f(changes)
}

// Notifiers delivers each batch to every member in order.
type Notifiers []Notifier

// OnValuesChanged forwards the batch to each non-nil notifier.
func (ns Notifiers) OnValuesChanged(changes []ValueChange) {
	for _, n := range ns {
		if n != nil {
			n.OnValuesChanged(changes)
		}
	}
}
