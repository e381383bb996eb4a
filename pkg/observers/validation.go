package observers

import (
	"fmt"
	"slices"
	"sync"

	"github.com/anggasct/statum"
)

// ValidationObserver checks transitions against an allow list and tracks
// which expected states were visited
type ValidationObserver struct {
	expectedStates     map[string]bool
	visitedStates      map[string]bool
	allowedTransitions map[string]map[string]bool
	violations         []string
	strict             bool
	mutex              sync.RWMutex
}

// NewValidationObserver creates a validation observer. A strict observer
// vetoes transitions that are not allowed instead of only recording them.
func NewValidationObserver(strict bool) *ValidationObserver {
	return &ValidationObserver{
		expectedStates:     make(map[string]bool),
		visitedStates:      make(map[string]bool),
		allowedTransitions: make(map[string]map[string]bool),
		strict:             strict,
	}
}

// AddExpectedState adds a state that should be visited
func (o *ValidationObserver) AddExpectedState(stateName string) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.expectedStates[stateName] = true
}

// AddAllowedTransition allows the transition from one state to another
func (o *ValidationObserver) AddAllowedTransition(from, to string) {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	if _, exists := o.allowedTransitions[from]; !exists {
		o.allowedTransitions[from] = make(map[string]bool)
	}
	o.allowedTransitions[from][to] = true
}

func (o *ValidationObserver) allowed(from, to string) bool {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	if len(o.allowedTransitions) == 0 {
		return true
	}
	return o.allowedTransitions[from][to]
}

func (o *ValidationObserver) addViolation(message string) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.violations = append(o.violations, message)
}

// Hooks returns the pipeline hooks of the observer
func (o *ValidationObserver) Hooks() statum.Hooks {
	return statum.Hooks{
		BeforeCheck: func(_ *statum.StateMachine, t *statum.Transition, _ string) (bool, error) {
			from, to := t.From().Name(), t.To().Name()
			if o.allowed(from, to) {
				return true, nil
			}
			o.addViolation(fmt.Sprintf("transition from %s to %s is not allowed", from, to))
			return !o.strict, nil
		},
		AfterEnter: func(_ *statum.StateMachine, t *statum.Transition, _ string) error {
			o.mutex.Lock()
			defer o.mutex.Unlock()
			name := t.To().Name()
			o.visitedStates[name] = true
			if len(o.expectedStates) > 0 && !o.expectedStates[name] {
				o.violations = append(o.violations, fmt.Sprintf("unexpected state entered: %s", name))
			}
			return nil
		},
	}
}

// GetViolations returns the recorded violations
func (o *ValidationObserver) GetViolations() []string {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	return slices.Clone(o.violations)
}

// GetUnvisitedStates returns the expected states never entered, sorted
func (o *ValidationObserver) GetUnvisitedStates() []string {
	o.mutex.RLock()
	defer o.mutex.RUnlock()

	var unvisited []string
	for state := range o.expectedStates {
		if !o.visitedStates[state] {
			unvisited = append(unvisited, state)
		}
	}
	slices.Sort(unvisited)
	return unvisited
}

// HasViolations reports whether any violation was recorded
func (o *ValidationObserver) HasViolations() bool {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	return len(o.violations) > 0
}

// Reset clears visited states and violations
func (o *ValidationObserver) Reset() {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.visitedStates = make(map[string]bool)
	o.violations = nil
}
