package chain

import (
	"reflect"

	"github.com/emberchain/ember/internal/primitives"
)

// Event is a module event deposited during a state transition. Concrete
// event types live with the module that emits them.
type Event any

// BlockHook is implemented by modules that do scheduled work at the
// start of each block. The returned weight is the number of storage
// operations consumed, used to bound per-block work.
type BlockHook interface {
	OnInitialize(n primitives.BlockNumber) (weight uint64, err error)
}

// System tracks block execution context shared by all modules: the
// current block number and the events deposited while executing it.
// Execution is sequential per block, System is not safe for concurrent use.
type System struct {
	number primitives.BlockNumber
	events []Event
	hooks  []BlockHook
}

func NewSystem() *System {
	return &System{number: 1}
}

func (s *System) BlockNumber() primitives.BlockNumber {
	return s.number
}

func (s *System) SetBlockNumber(n primitives.BlockNumber) {
	s.number = n
}

// RegisterHook adds a module block hook, invoked in registration order.
func (s *System) RegisterHook(h BlockHook) {
	s.hooks = append(s.hooks, h)
}

// InitializeBlock advances the chain to block n and runs module hooks.
// Hook errors are defensive degradations, they never abort the block.
func (s *System) InitializeBlock(n primitives.BlockNumber) uint64 {
	s.number = n
	var weight uint64
	for _, h := range s.hooks {
		w, _ := h.OnInitialize(n)
		weight += w
	}
	return weight
}

// Deposit records a module event for the current block.
func (s *System) Deposit(ev Event) {
	s.events = append(s.events, ev)
}

// Events returns all events deposited so far.
func (s *System) Events() []Event {
	return s.events
}

// HasEvent reports whether an equal event has been deposited.
func (s *System) HasEvent(ev Event) bool {
	for _, e := range s.events {
		if reflect.DeepEqual(e, ev) {
			return true
		}
	}
	return false
}

// ResetEvents clears the deposited events, called at block boundaries.
func (s *System) ResetEvents() {
	s.events = nil
}
