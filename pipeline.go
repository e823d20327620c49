package plume

import "github.com/synqronlabs/plume/mimevent"

// Pipeline consumes the structural events of one message. Begin produces a
// per-message state, Consume is called for every event with a mutable
// reference to that state, and Finish consumes the state and yields the
// Response reported to the client. A state produced by Begin is finished
// exactly once, except when the transport fails mid-message (see Session).
//
// S is chosen by the implementor, so pipelines are bound statically: the
// session and server are specialized per pipeline type with no indirect
// dispatch.
type Pipeline[S any] interface {
	Begin(env *Envelope) (S, error)
	Consume(state *S, ev mimevent.Event) error
	Finish(state S) (Response, error)
}

// Discard accepts and drops every message. Useful as a default and in tests.
type Discard struct{}

func (Discard) Begin(*Envelope) (struct{}, error) {
	return struct{}{}, nil
}

func (Discard) Consume(*struct{}, mimevent.Event) error {
	return nil
}

func (Discard) Finish(struct{}) (Response, error) {
	return ResponseOK("Ok"), nil
}

// Pair is the composite state of a Tee2.
type Pair[A, B any] struct {
	First  A
	Second B
}

// Triple is the composite state of a Tee3.
type Triple[A, B, C any] struct {
	First  A
	Second B
	Third  C
}

// Tee2 runs two pipelines over the same message. Every component sees every
// call; a component's failure never suppresses delivery to its sibling, so
// each Begin is matched by exactly one Finish. The aggregate result of each
// call is the first failure among the components, evaluated after all of them
// ran. On success, Finish reports the first component's Response; the first
// component is the primary.
//
// Composition is provided at arities 2 and 3. Deeper fan-out nests Tees, at
// the cost of nested tuple states.
type Tee2[A, B any, P Pipeline[A], Q Pipeline[B]] struct {
	First  P
	Second Q
}

func (t Tee2[A, B, P, Q]) Begin(env *Envelope) (Pair[A, B], error) {
	var state Pair[A, B]
	a, errA := t.First.Begin(env)
	b, errB := t.Second.Begin(env)

	// If one component began and the other did not, finish the one that did
	// so its lifecycle stays symmetric.
	if errA != nil || errB != nil {
		if errA == nil {
			_, _ = t.First.Finish(a)
		}
		if errB == nil {
			_, _ = t.Second.Finish(b)
		}
		if errA != nil {
			return state, errA
		}
		return state, errB
	}

	state.First = a
	state.Second = b
	return state, nil
}

func (t Tee2[A, B, P, Q]) Consume(state *Pair[A, B], ev mimevent.Event) error {
	errA := t.First.Consume(&state.First, ev)
	errB := t.Second.Consume(&state.Second, ev)
	if errA != nil {
		return errA
	}
	return errB
}

func (t Tee2[A, B, P, Q]) Finish(state Pair[A, B]) (Response, error) {
	respA, errA := t.First.Finish(state.First)
	respB, errB := t.Second.Finish(state.Second)

	// A component can fail in band: a nil error with a failure-classified
	// Response. The first failing component wins either way.
	if errA != nil {
		return Response{}, errA
	}
	if respA.IsError() {
		return respA, nil
	}
	if errB != nil {
		return Response{}, errB
	}
	if respB.IsError() {
		return respB, nil
	}
	return respA, nil
}

// Tee3 runs three pipelines over the same message, with the same delivery
// and lifecycle guarantees as Tee2. The first component is the primary.
type Tee3[A, B, C any, P Pipeline[A], Q Pipeline[B], R Pipeline[C]] struct {
	First  P
	Second Q
	Third  R
}

func (t Tee3[A, B, C, P, Q, R]) Begin(env *Envelope) (Triple[A, B, C], error) {
	var state Triple[A, B, C]
	a, errA := t.First.Begin(env)
	b, errB := t.Second.Begin(env)
	c, errC := t.Third.Begin(env)

	if errA != nil || errB != nil || errC != nil {
		if errA == nil {
			_, _ = t.First.Finish(a)
		}
		if errB == nil {
			_, _ = t.Second.Finish(b)
		}
		if errC == nil {
			_, _ = t.Third.Finish(c)
		}
		for _, err := range []error{errA, errB, errC} {
			if err != nil {
				return state, err
			}
		}
	}

	state.First = a
	state.Second = b
	state.Third = c
	return state, nil
}

func (t Tee3[A, B, C, P, Q, R]) Consume(state *Triple[A, B, C], ev mimevent.Event) error {
	errA := t.First.Consume(&state.First, ev)
	errB := t.Second.Consume(&state.Second, ev)
	errC := t.Third.Consume(&state.Third, ev)
	for _, err := range []error{errA, errB, errC} {
		if err != nil {
			return err
		}
	}
	return nil
}

func (t Tee3[A, B, C, P, Q, R]) Finish(state Triple[A, B, C]) (Response, error) {
	respA, errA := t.First.Finish(state.First)
	respB, errB := t.Second.Finish(state.Second)
	respC, errC := t.Third.Finish(state.Third)

	// First failing component wins, whether it failed through its error or
	// in band through a failure-classified Response.
	for _, outcome := range []struct {
		resp Response
		err  error
	}{{respA, errA}, {respB, errB}, {respC, errC}} {
		if outcome.err != nil {
			return Response{}, outcome.err
		}
		if outcome.resp.IsError() {
			return outcome.resp, nil
		}
	}
	return respA, nil
}

// finishPipeline runs Finish and normalizes the outcome: an error becomes a
// failure-classified Response, and a success-path Response that is not
// success-classified stands as the failure it declares. A Finish that errors
// while claiming success, or a plain error, maps to the fixed internal-error
// Response.
func finishPipeline[S any](p Pipeline[S], state S) Response {
	resp, err := p.Finish(state)
	if err != nil {
		return responseForError(err)
	}
	return resp
}
