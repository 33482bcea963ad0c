package inference

import (
	"context"
	"fmt"
	"sync"

	"fraudguard/ml"
)

// Preset names a canned set of form values.
type Preset string

const (
	PresetFraud  Preset = "fraud"
	PresetNormal Preset = "normal"
	PresetClear  Preset = "clear"
)

// PresetInfo describes a preset for UIs and the API.
type PresetInfo struct {
	Name     Preset                 `json:"name"`
	Title    string                 `json:"title"`
	Features ml.TransactionFeatures `json:"features"`
}

var presets = []PresetInfo{
	{
		Name:     PresetFraud,
		Title:    "Load Random Fraud Values",
		Features: ml.TransactionFeatures{V1: -2.3, V2: 1.5, V3: -1.8, V4: 3.2, V5: -0.5, Amount: 2000.0},
	},
	{
		Name:     PresetNormal,
		Title:    "Load Normal Transaction",
		Features: ml.TransactionFeatures{V1: 0.0, V2: 0.1, V3: -0.2, V4: 0.3, V5: 0.0, Amount: 50.0},
	},
	{
		Name:  PresetClear,
		Title: "Clear All Inputs",
	},
}

// Presets returns the canned samples in display order.
func Presets() []PresetInfo {
	out := make([]PresetInfo, len(presets))
	copy(out, presets)
	return out
}

// LookupPreset returns the values for name.
func LookupPreset(name Preset) (ml.TransactionFeatures, error) {
	for _, p := range presets {
		if p.Name == name {
			return p.Features, nil
		}
	}
	return ml.TransactionFeatures{}, fmt.Errorf("unknown preset %q", name)
}

// SessionState is a copy of a session's form and its latest outcome.
type SessionState struct {
	Fields ml.TransactionFeatures
	Last   *PredictionResult
	Err    error
}

// Session is the form state of one caller. It replaces process-wide form
// globals: whoever owns the session owns its values.
type Session struct {
	ID string

	mu     sync.Mutex
	fields ml.TransactionFeatures
	last   *PredictionResult
	err    error
}

// NewSession starts a session with all fields at zero.
func NewSession(id string) *Session {
	return &Session{ID: id}
}

// Apply fills the form with a preset. It does not run inference.
func (s *Session) Apply(name Preset) error {
	values, err := LookupPreset(name)
	if err != nil {
		return err
	}
	s.Set(values)
	return nil
}

// Set replaces the form values and clears the previous outcome.
func (s *Session) Set(fields ml.TransactionFeatures) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fields = fields
	s.last, s.err = nil, nil
}

// State returns a snapshot safe to render.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := SessionState{Fields: s.fields, Err: s.err}
	if s.last != nil {
		last := *s.last
		state.Last = &last
	}
	return state
}

// Predict runs the facade on the current form values and records the outcome.
// Unless the facade preserves inputs, the form is reset afterwards.
func (s *Session) Predict(ctx context.Context, f *Facade) (PredictionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := f.RunFeatures(ctx, s.fields)
	if err != nil {
		s.last, s.err = nil, err
	} else {
		s.last, s.err = &result, nil
	}
	if !f.Options().PreserveInputsAcrossRequests {
		s.fields = ml.TransactionFeatures{}
	}
	return result, err
}
