package scps

import "sync/atomic"

// ConnState is the lifecycle state of a Controller.
type ConnState uint32

const (
	// DisconnectedState means no port is open.
	DisconnectedState ConnState = iota
	// ConnectingState means the port is being opened.
	ConnectingState
	// AwaitingVerifyState means the port is open and the handshake is pending.
	AwaitingVerifyState
	// ConnectedState means the handshake succeeded; commands are accepted.
	ConnectedState
)

func (cs ConnState) String() string {
	switch cs {
	case DisconnectedState:
		return "disconnected"
	case ConnectingState:
		return "connecting"
	case AwaitingVerifyState:
		return "awaiting-verify"
	case ConnectedState:
		return "connected"
	default:
		return "unknown"
	}
}

// IsConnected returns if the state is ConnectedState.
func (cs ConnState) IsConnected() bool { return cs == ConnectedState }

// StateChangeHandler is invoked synchronously after every state change.
// It must not call back into Connect or Disconnect.
type StateChangeHandler func(prevState ConnState, newState ConnState)

// atomicConnState holds a ConnState and only allows the transitions of the
// connect state machine.
type atomicConnState struct {
	state atomic.Uint32
}

func (st *atomicConnState) Get() ConnState {
	return ConnState(st.state.Load())
}

func (st *atomicConnState) String() string {
	return st.Get().String()
}

func (st *atomicConnState) ToConnecting() bool {
	return st.state.CompareAndSwap(uint32(DisconnectedState), uint32(ConnectingState))
}

func (st *atomicConnState) ToAwaitingVerify() bool {
	return st.state.CompareAndSwap(uint32(ConnectingState), uint32(AwaitingVerifyState))
}

func (st *atomicConnState) ToConnected() bool {
	return st.state.CompareAndSwap(uint32(AwaitingVerifyState), uint32(ConnectedState))
}

// ToDisconnected is allowed from any state and returns the previous one.
func (st *atomicConnState) ToDisconnected() ConnState {
	return ConnState(st.state.Swap(uint32(DisconnectedState)))
}
