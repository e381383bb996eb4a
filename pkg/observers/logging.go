// Package observers provides pipeline hooks for monitoring state machines
package observers

import (
	"log/slog"

	"github.com/anggasct/statum"
	"github.com/anggasct/statum/internal/logging"
)

// LoggingObserver logs every pipeline stage through slog
type LoggingObserver struct {
	logger *slog.Logger
	level  slog.Level
}

// NewLoggingObserver creates a logging observer. Stage messages are written
// at level, failures always at error level.
func NewLoggingObserver(logger *slog.Logger, level slog.Level) *LoggingObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{
		logger: logger.With(logging.Component("statum")),
		level:  level,
	}
}

// NewDefaultLoggingObserver logs at info level through slog.Default
func NewDefaultLoggingObserver() *LoggingObserver {
	return NewLoggingObserver(nil, slog.LevelInfo)
}

func (o *LoggingObserver) log(m *statum.StateMachine, msg string, t *statum.Transition, event string, attrs ...slog.Attr) {
	c := m.Context()
	base := []slog.Attr{
		logging.Machine(c.Machine()),
		logging.EntityID(c.ID(false)),
		logging.Transition(t.Name()),
		logging.Event(event),
	}
	o.logger.LogAttrs(c, o.level, msg, append(base, attrs...)...)
}

// Hooks returns the pipeline hooks of the observer
func (o *LoggingObserver) Hooks() statum.Hooks {
	return statum.Hooks{
		BeforeCheck: func(m *statum.StateMachine, t *statum.Transition, event string) (bool, error) {
			o.log(m, "checking transition", t, event)
			return true, nil
		},
		BeforeExit: func(m *statum.StateMachine, t *statum.Transition, event string) error {
			o.log(m, "exiting state", t, event, logging.State(t.From().Name()))
			return nil
		},
		OnTransition: func(m *statum.StateMachine, t *statum.Transition, event string) error {
			o.log(m, "transitioning", t, event)
			return nil
		},
		AfterEnter: func(m *statum.StateMachine, t *statum.Transition, event string) error {
			o.log(m, "entered state", t, event, logging.State(t.To().Name()))
			return nil
		},
		OnFailure: func(m *statum.StateMachine, t *statum.Transition, event string, err error) {
			c := m.Context()
			o.logger.LogAttrs(c, slog.LevelError, "transition failed",
				logging.Machine(c.Machine()),
				logging.EntityID(c.ID(false)),
				logging.Transition(t.Name()),
				logging.Event(event),
				slog.String("code", statum.GetErrorCode(err).String()),
				logging.Error(err),
			)
		},
	}
}
