package parser

import (
	"testing"
)

type fakeStateParser struct {
	meta Metadata
	det  *StateDetection
	boom bool
}

func (f *fakeStateParser) Metadata() Metadata { return f.meta }
func (f *fakeStateParser) DetectState(*Context) *StateDetection {
	if f.boom {
		panic("bad parser")
	}
	return f.det
}

type fakeOutputParser struct {
	meta Metadata
	can  bool
	out  *Output
	boom bool
}

func (f *fakeOutputParser) Metadata() Metadata { return f.meta }
func (f *fakeOutputParser) CanParse(*Context) bool {
	return f.can
}
func (f *fakeOutputParser) Parse(*Context) *Output {
	if f.boom {
		panic("bad parser")
	}
	return f.out
}

type fakeConfirmParser struct {
	meta Metadata
	info *ConfirmInfo
	boom bool
}

func (f *fakeConfirmParser) Metadata() Metadata { return f.meta }
func (f *fakeConfirmParser) DetectConfirm(*Context) *ConfirmInfo {
	if f.boom {
		panic("bad parser")
	}
	return f.info
}
func (f *fakeConfirmParser) FormatResponse(*ConfirmInfo, ConfirmResponse) []byte {
	return []byte("y\r")
}

func TestDetectStateKeepsHighestConfidence(t *testing.T) {
	r := NewRegistry(nil)
	r.RegisterState(&fakeStateParser{
		meta: Metadata{Name: "low", Priority: 10},
		det:  &StateDetection{State: StateIdle, Confidence: 0.6},
	})
	r.RegisterState(&fakeStateParser{
		meta: Metadata{Name: "high", Priority: 5},
		det:  &StateDetection{State: StateThinking, Confidence: 0.9},
	})

	det := r.DetectState(&Context{})
	if det == nil || det.State != StateThinking {
		t.Fatalf("winner = %+v, want thinking at 0.9", det)
	}
}

func TestDetectStateTieResolvesByPriority(t *testing.T) {
	r := NewRegistry(nil)
	r.RegisterState(&fakeStateParser{
		meta: Metadata{Name: "low-priority", Priority: 10},
		det:  &StateDetection{State: StateIdle, Confidence: 0.8},
	})
	r.RegisterState(&fakeStateParser{
		meta: Metadata{Name: "high-priority", Priority: 100},
		det:  &StateDetection{State: StateError, Confidence: 0.8},
	})

	det := r.DetectState(&Context{})
	if det == nil || det.State != StateError {
		t.Fatalf("tie winner = %+v, want the higher-priority parser's state", det)
	}
}

func TestDetectStatePanicIsNonMatch(t *testing.T) {
	r := NewRegistry(nil)
	r.RegisterState(&fakeStateParser{meta: Metadata{Name: "boom", Priority: 100}, boom: true})
	r.RegisterState(&fakeStateParser{
		meta: Metadata{Name: "ok", Priority: 1},
		det:  &StateDetection{State: StateIdle, Confidence: 0.5},
	})

	det := r.DetectState(&Context{})
	if det == nil || det.State != StateIdle {
		t.Fatalf("det = %+v, want the surviving parser's verdict", det)
	}
}

func TestClassifyOutputSkipsGateAndPanics(t *testing.T) {
	r := NewRegistry(nil)
	r.RegisterOutput(&fakeOutputParser{
		meta: Metadata{Name: "gated-off", Priority: 100},
		can:  false,
		out:  &Output{Type: OutputJSON, Confidence: 0.99, ParserName: "gated-off"},
	})
	r.RegisterOutput(&fakeOutputParser{
		meta: Metadata{Name: "panics", Priority: 90},
		can:  true,
		boom: true,
	})
	r.RegisterOutput(&fakeOutputParser{
		meta: Metadata{Name: "wins", Priority: 10},
		can:  true,
		out:  &Output{Type: OutputText, Confidence: 0.5, ParserName: "wins"},
	})

	out := r.ClassifyOutput(&Context{})
	if out == nil || out.ParserName != "wins" {
		t.Fatalf("winner = %+v, want the only matching parser", out)
	}
}

func TestDetectConfirmFirstPositiveWins(t *testing.T) {
	r := NewRegistry(nil)
	r.RegisterConfirm(&fakeConfirmParser{meta: Metadata{Name: "no-op", Priority: 100}})
	winner := &fakeConfirmParser{
		meta: Metadata{Name: "winner", Priority: 50},
		info: &ConfirmInfo{Type: ConfirmYesNo, Prompt: "Continue?"},
	}
	r.RegisterConfirm(winner)
	r.RegisterConfirm(&fakeConfirmParser{
		meta: Metadata{Name: "also-matches", Priority: 10},
		info: &ConfirmInfo{Type: ConfirmYesNo, Prompt: "other"},
	})

	info, p := r.DetectConfirm(&Context{})
	if info == nil || info.Prompt != "Continue?" {
		t.Fatalf("info = %+v, want the first positive detection", info)
	}
	if p != winner {
		t.Error("returned parser is not the detecting parser")
	}
}

func TestUnregisterAndClear(t *testing.T) {
	r := NewRegistry(nil)
	r.RegisterState(&fakeStateParser{meta: Metadata{Name: "s"}})
	r.RegisterOutput(&fakeOutputParser{meta: Metadata{Name: "o"}})
	r.RegisterConfirm(&fakeConfirmParser{meta: Metadata{Name: "c"}})

	r.Unregister("o")
	if len(r.OutputParsers()) != 0 {
		t.Error("output parser still registered after Unregister")
	}
	if len(r.StateParsers()) != 1 || len(r.ConfirmParsers()) != 1 {
		t.Error("unrelated parsers were removed")
	}

	r.Clear()
	if len(r.StateParsers()) != 0 || len(r.ConfirmParsers()) != 0 {
		t.Error("Clear left parsers behind")
	}
}

func TestReplaceAllSortsByPriority(t *testing.T) {
	r := NewRegistry(nil)
	r.ReplaceAll(
		[]StateParser{
			&fakeStateParser{meta: Metadata{Name: "low", Priority: 1}},
			&fakeStateParser{meta: Metadata{Name: "high", Priority: 99}},
		},
		nil, nil,
	)
	parsers := r.StateParsers()
	if parsers[0].Metadata().Name != "high" {
		t.Errorf("first parser = %s, want high", parsers[0].Metadata().Name)
	}
}
