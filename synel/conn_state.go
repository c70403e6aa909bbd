package synel

import "sync/atomic"

// ConnState is the state of a client connection.
type ConnState uint32

const (
	StateClosed ConnState = iota
	StateConnecting
	StateConnected
	// StateLost means the transport failed; Close must still be called.
	StateLost
	StateClosing
)

func (s ConnState) String() string {
	switch s {
	case StateClosed:
		return "Closed"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateLost:
		return "Lost"
	case StateClosing:
		return "Closing"
	default:
		return "Unknown"
	}
}

type atomicConnState struct {
	state atomic.Uint32
}

func (st *atomicConnState) Get() ConnState {
	return ConnState(st.state.Load())
}

func (st *atomicConnState) Set(s ConnState) {
	st.state.Store(uint32(s))
}

func (st *atomicConnState) IsConnected() bool {
	return st.Get() == StateConnected
}

func (st *atomicConnState) ToConnecting() bool {
	return st.state.CompareAndSwap(uint32(StateClosed), uint32(StateConnecting))
}

func (st *atomicConnState) ToConnected() bool {
	return st.state.CompareAndSwap(uint32(StateConnecting), uint32(StateConnected))
}

// ToLost marks a connected client as lost. It is a no-op in any other state.
func (st *atomicConnState) ToLost() bool {
	return st.state.CompareAndSwap(uint32(StateConnected), uint32(StateLost))
}

// ToClosing moves any non-closed state to closing and reports whether it did.
func (st *atomicConnState) ToClosing() bool {
	for {
		cur := st.state.Load()
		if ConnState(cur) == StateClosed || ConnState(cur) == StateClosing {
			return false
		}
		if st.state.CompareAndSwap(cur, uint32(StateClosing)) {
			return true
		}
	}
}
