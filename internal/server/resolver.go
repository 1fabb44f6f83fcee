package server

// EmpireState is what a Resolver sees of an empire when resolving a turn.
type EmpireState struct {
	ID     int
	Name   string
	Orders []string
}

// Combat is a battle fought while resolving a turn.
type Combat struct {
	Location string
	Rounds   int
}

// TurnResult is the outcome of resolving one turn.
type TurnResult struct {
	Combats    []Combat
	Eliminated []int
}

// Resolver applies the game rules to the orders of a turn. The rules
// themselves live outside the session layer.
type Resolver interface {
	Resolve(turn int, empires []EmpireState) TurnResult
}

// PeacefulResolver is a Resolver in which nothing ever happens.
type PeacefulResolver struct{}

func (PeacefulResolver) Resolve(int, []EmpireState) TurnResult { return TurnResult{} }

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(turn int, empires []EmpireState) TurnResult

func (f ResolverFunc) Resolve(turn int, empires []EmpireState) TurnResult { return f(turn, empires) }
