package plume

import (
	"reflect"
	"strings"
	"testing"

	"github.com/synqronlabs/plume/mimevent"
)

// recorder is a scripted pipeline that logs its lifecycle calls.
type recorder struct {
	name       string
	beginErr   error
	consumeErr error
	finishErr  error
	resp       Response

	calls *[]string
}

func (r recorder) Begin(env *Envelope) (string, error) {
	*r.calls = append(*r.calls, r.name+".begin")
	return r.name, r.beginErr
}

func (r recorder) Consume(state *string, ev mimevent.Event) error {
	*r.calls = append(*r.calls, r.name+".consume")
	return r.consumeErr
}

func (r recorder) Finish(state string) (Response, error) {
	*r.calls = append(*r.calls, r.name+".finish")
	return r.resp, r.finishErr
}

func countCalls(calls []string, suffix string) int {
	n := 0
	for _, c := range calls {
		if strings.HasSuffix(c, suffix) {
			n++
		}
	}
	return n
}

func TestTee2EveryComponentSeesEveryCall(t *testing.T) {
	var calls []string
	tee := Tee2[string, string, recorder, recorder]{
		First:  recorder{name: "a", consumeErr: Fail(ResponseTransactionFailed("a failed")), resp: ResponseOK("a"), calls: &calls},
		Second: recorder{name: "b", resp: ResponseOK("b"), calls: &calls},
	}

	state, err := tee.Begin(&Envelope{})
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}

	// The first component fails every consume; the second must still see
	// every event.
	for i := 0; i < 3; i++ {
		if err := tee.Consume(&state, mimevent.BodyChunk{Data: []byte("x")}); err == nil {
			t.Errorf("Consume() expected error from failing component")
		}
	}
	// Consume failures do not poison Finish; both components still finish.
	if _, err := tee.Finish(state); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}

	if got := countCalls(calls, "b.consume"); got != 3 {
		t.Errorf("second component saw %d consume calls, want 3", got)
	}
	if got := countCalls(calls, ".begin"); got != 2 {
		t.Errorf("got %d begin calls, want 2", got)
	}
	if got := countCalls(calls, ".finish"); got != 2 {
		t.Errorf("got %d finish calls, want 2", got)
	}
}

func TestTee2BeginFailureFinishesSiblings(t *testing.T) {
	var calls []string
	tee := Tee2[string, string, recorder, recorder]{
		First:  recorder{name: "a", beginErr: Fail(ResponseInternalError()), calls: &calls},
		Second: recorder{name: "b", resp: ResponseOK("b"), calls: &calls},
	}

	if _, err := tee.Begin(&Envelope{}); err == nil {
		t.Fatalf("Begin() expected error")
	}

	want := []string{"a.begin", "b.begin", "b.finish"}
	if !reflect.DeepEqual(calls, want) {
		t.Errorf("calls = %v, want %v", calls, want)
	}
}

func TestTee2PrimaryResponse(t *testing.T) {
	var calls []string
	tee := Tee2[string, string, recorder, recorder]{
		First:  recorder{name: "a", resp: ResponseOK("queued as 123"), calls: &calls},
		Second: recorder{name: "b", resp: ResponseOK("journaled"), calls: &calls},
	}

	state, err := tee.Begin(&Envelope{})
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	resp, err := tee.Finish(state)
	if err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	if resp.Message != "queued as 123" {
		t.Errorf("Finish() response = %+v, want the first component's", resp)
	}
}

func TestTee2SecondComponentFailsInBand(t *testing.T) {
	var calls []string
	tee := Tee2[string, string, recorder, recorder]{
		First:  recorder{name: "a", resp: ResponseOK("queued as 123"), calls: &calls},
		Second: recorder{name: "b", resp: ResponseTransactionFailed("store failed"), calls: &calls},
	}

	state, err := tee.Begin(&Envelope{})
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}

	// The second component fails in band: nil error, failure-classified
	// Response. The aggregate must not report the primary's success.
	resp, err := tee.Finish(state)
	if err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	if resp != ResponseTransactionFailed("store failed") {
		t.Errorf("Finish() = %+v, want the second component's failure", resp)
	}
	if got := countCalls(calls, ".finish"); got != 2 {
		t.Errorf("got %d finish calls, want 2", got)
	}
}

func TestTee2FirstInBandFailureWins(t *testing.T) {
	var calls []string
	tee := Tee2[string, string, recorder, recorder]{
		First:  recorder{name: "a", resp: ResponseTransactionFailed("a failed"), calls: &calls},
		Second: recorder{name: "b", resp: ResponseTransactionFailed("b failed"), calls: &calls},
	}

	state, err := tee.Begin(&Envelope{})
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	resp, err := tee.Finish(state)
	if err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	if resp != ResponseTransactionFailed("a failed") {
		t.Errorf("Finish() = %+v, want the first component's failure", resp)
	}
}

func TestTee3ThirdComponentFailsInBand(t *testing.T) {
	var calls []string
	tee := Tee3[string, string, string, recorder, recorder, recorder]{
		First:  recorder{name: "a", resp: ResponseOK("a"), calls: &calls},
		Second: recorder{name: "b", resp: ResponseOK("b"), calls: &calls},
		Third:  recorder{name: "c", resp: ResponseExceededStorage("journal full"), calls: &calls},
	}

	state, err := tee.Begin(&Envelope{})
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	resp, err := tee.Finish(state)
	if err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	if resp != ResponseExceededStorage("journal full") {
		t.Errorf("Finish() = %+v, want the third component's failure", resp)
	}
	if got := countCalls(calls, ".finish"); got != 3 {
		t.Errorf("got %d finish calls, want 3", got)
	}
}

func TestTee3LifecycleWithMiddleFailure(t *testing.T) {
	var calls []string
	tee := Tee3[string, string, string, recorder, recorder, recorder]{
		First:  recorder{name: "a", resp: ResponseOK("a"), calls: &calls},
		Second: recorder{name: "b", consumeErr: Fail(ResponseTransactionFailed("b failed")), resp: ResponseOK("b"), calls: &calls},
		Third:  recorder{name: "c", resp: ResponseOK("c"), calls: &calls},
	}

	state, err := tee.Begin(&Envelope{})
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if err := tee.Consume(&state, mimevent.EndOfMessage{}); err == nil {
		t.Errorf("Consume() expected middle component's failure")
	}
	if _, err := tee.Finish(state); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}

	for _, name := range []string{"a", "b", "c"} {
		if got := countCalls(calls, name+".begin"); got != 1 {
			t.Errorf("%s.begin called %d times, want 1", name, got)
		}
		if got := countCalls(calls, name+".consume"); got != 1 {
			t.Errorf("%s.consume called %d times, want 1", name, got)
		}
		if got := countCalls(calls, name+".finish"); got != 1 {
			t.Errorf("%s.finish called %d times, want 1", name, got)
		}
	}
}

func TestTee3FirstFailureWins(t *testing.T) {
	var calls []string
	tee := Tee3[string, string, string, recorder, recorder, recorder]{
		First:  recorder{name: "a", resp: ResponseOK("a"), calls: &calls},
		Second: recorder{name: "b", finishErr: Fail(ResponseTransactionFailed("b failed")), calls: &calls},
		Third:  recorder{name: "c", finishErr: Fail(ResponseInternalError()), calls: &calls},
	}

	state, err := tee.Begin(&Envelope{})
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	_, err = tee.Finish(state)
	if err == nil {
		t.Fatalf("Finish() expected error")
	}
	if got := responseForError(err); got != ResponseTransactionFailed("b failed") {
		t.Errorf("aggregate failure = %+v, want the second component's", got)
	}
}

func TestFinishPipelineNormalization(t *testing.T) {
	var calls []string

	// A finish that errors while carrying a success-classified Response must
	// surface as the fixed internal-error Response.
	p := recorder{name: "bad", finishErr: Fail(ResponseOK("all good")), calls: &calls}
	if got := finishPipeline[string](p, "state"); got != ResponseInternalError() {
		t.Errorf("finishPipeline() = %+v, want internal error", got)
	}

	ok := recorder{name: "ok", resp: ResponseOK("Ok"), calls: &calls}
	if got := finishPipeline[string](ok, "state"); got != ResponseOK("Ok") {
		t.Errorf("finishPipeline() = %+v, want 250 Ok", got)
	}
}

func TestDiscard(t *testing.T) {
	var d Discard
	state, err := d.Begin(&Envelope{})
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if err := d.Consume(&state, mimevent.EndOfMessage{}); err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	resp, err := d.Finish(state)
	if err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	if !resp.IsSuccess() {
		t.Errorf("Finish() = %+v, want success", resp)
	}
}
