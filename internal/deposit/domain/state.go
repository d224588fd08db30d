package domain

import "fmt"

// State 充值生命周期状态；取值只能是下面的常量
type State string

const (
	StateSubmitted State = "submitted" // 初始状态
	StateCanceled  State = "canceled"
	StateRejected  State = "rejected"
	StateReceived  State = "received"
	StateAccepted  State = "accepted"
	StateSkipped   State = "skipped"
	StateCollected State = "collected"
)

var allStates = [...]State{
	StateSubmitted, StateCanceled, StateRejected, StateReceived,
	StateAccepted, StateSkipped, StateCollected,
}

func States() []State { return allStates[:] }

func (s State) Valid() bool {
	for _, v := range allStates {
		if v == s {
			return true
		}
	}
	return false
}

// Initial 只有 submitted 没有 completed_at
func (s State) Initial() bool { return s == StateSubmitted }

// Terminal canceled / rejected / collected 之后主流程不再前进
func (s State) Terminal() bool {
	switch s {
	case StateCanceled, StateRejected, StateCollected:
		return true
	default:
		return false
	}
}

// Event 触发状态迁移的事件
type Event uint8

const (
	EventCancel Event = iota + 1
	EventReject
	EventReceive
	EventAccept
	EventSkip
	EventDispatch
)

type rule struct {
	name string
	from []State
	to   State
}

// transitions 迁移表，下标即 Event
var transitions = [...]rule{
	EventCancel:   {name: "cancel", from: []State{StateSubmitted}, to: StateCanceled},
	EventReject:   {name: "reject", from: []State{StateSubmitted}, to: StateRejected},
	EventReceive:  {name: "receive", from: []State{StateSubmitted}, to: StateReceived},
	EventAccept:   {name: "accept", from: []State{StateSubmitted, StateReceived}, to: StateAccepted},
	EventSkip:     {name: "skip", from: []State{StateAccepted}, to: StateSkipped},
	EventDispatch: {name: "dispatch", from: []State{StateAccepted, StateSkipped}, to: StateCollected},
}

func Events() []Event {
	return []Event{EventCancel, EventReject, EventReceive, EventAccept, EventSkip, EventDispatch}
}

func (e Event) Valid() bool {
	return e >= EventCancel && int(e) < len(transitions)
}

func (e Event) String() string {
	if !e.Valid() {
		return fmt.Sprintf("event(%d)", uint8(e))
	}
	return transitions[e].name
}

// From 允许触发该事件的状态集合
func (e Event) From() []State {
	if !e.Valid() {
		return nil
	}
	out := make([]State, len(transitions[e].from))
	copy(out, transitions[e].from)
	return out
}

// To 事件的目标状态
func (e Event) To() State {
	if !e.Valid() {
		return ""
	}
	return transitions[e].to
}

// ParseEvent 名字 -> Event，供消息入口使用
func ParseEvent(name string) (Event, error) {
	for _, e := range Events() {
		if transitions[e].name == name {
			return e, nil
		}
	}
	return 0, fmt.Errorf("unknown deposit event %q", name)
}

// Next 守卫检查：from 不在事件的 from 集合里返回 ErrInvalidTransition
func Next(from State, e Event) (State, error) {
	if !e.Valid() {
		return from, &TransitionError{Event: e, From: from}
	}
	for _, s := range transitions[e].from {
		if s == from {
			return transitions[e].to, nil
		}
	}
	return from, &TransitionError{Event: e, From: from}
}

// Can 不返回错误的守卫检查
func Can(from State, e Event) bool {
	_, err := Next(from, e)
	return err == nil
}
