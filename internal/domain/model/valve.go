package model

// ValveCommand is a discrete actuation decision emitted by a control
// strategy and executed by the valve task.
type ValveCommand string

const (
	// ValveForward opens the valve one step, increasing flow.
	ValveForward ValveCommand = "forward"
	// ValveBackward closes the valve one step, decreasing flow.
	ValveBackward ValveCommand = "backward"
	// ValveNoop leaves the valve where it is.
	ValveNoop ValveCommand = "noop"
	// ValveStop ends the brew: the weight target has been reached.
	ValveStop ValveCommand = "stop"
)

func (c ValveCommand) String() string { return string(c) }
