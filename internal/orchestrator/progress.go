package orchestrator

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ProgressLevel is the normalized severity of a progress message.
type ProgressLevel string

const (
	LevelDebug   ProgressLevel = "debug"
	LevelInfo    ProgressLevel = "info"
	LevelWarning ProgressLevel = "warning"
	LevelError   ProgressLevel = "error"
)

// NormalizeLevel maps a level name onto one of the four progress levels.
// "warn" is accepted for warning; empty and unknown names become info.
func NormalizeLevel(level string) ProgressLevel {
	switch l := ProgressLevel(strings.ToLower(strings.TrimSpace(level))); l {
	case LevelDebug, LevelInfo, LevelWarning, LevelError:
		return l
	case "warn":
		return LevelWarning
	default:
		return LevelInfo
	}
}

func (l ProgressLevel) zapLevel() zapcore.Level {
	switch l {
	case LevelDebug:
		return zap.DebugLevel
	case LevelWarning:
		return zap.WarnLevel
	case LevelError:
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}

// Detail is structured data attached to a progress message.
type Detail map[string]any

// ProgressMessage is one entry of a run's progress feed. Entries are never
// modified after creation.
type ProgressMessage struct {
	Message string        `json:"message"`
	Stage   Stage         `json:"stage,omitempty"`
	Level   ProgressLevel `json:"level"`
	At      time.Time     `json:"at"`
	Extra   Detail        `json:"extra,omitempty"`
}

// StageLogger mirrors leveled log calls of a stage handler into the run's
// progress feed. The feed entry is recorded whatever the logger verbosity;
// the log line is written only when the base logger enables the level.
type StageLogger struct {
	rc     *RunContext
	stage  Stage
	base   *zap.Logger
	prefix string
	now    func() time.Time
}

// NewStageLogger creates a StageLogger. rc may be nil, in which case only
// log lines are produced.
func NewStageLogger(rc *RunContext, stage Stage, base *zap.Logger, prefix string) *StageLogger {
	if base == nil {
		base = zap.NewNop()
	}
	return &StageLogger{
		rc:     rc,
		stage:  stage,
		base:   base,
		prefix: prefix,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (l *StageLogger) Debug(msg string, detail ...Detail) { l.Log("debug", msg, detail...) }
func (l *StageLogger) Info(msg string, detail ...Detail)  { l.Log("info", msg, detail...) }
func (l *StageLogger) Warn(msg string, detail ...Detail)  { l.Log("warning", msg, detail...) }
func (l *StageLogger) Error(msg string, detail ...Detail) { l.Log("error", msg, detail...) }

// Infof formats the message; it carries no detail.
func (l *StageLogger) Infof(format string, args ...any) {
	l.Log("info", fmt.Sprintf(format, args...))
}

// Log records msg at level. Multiple details are merged, later keys win.
func (l *StageLogger) Log(level string, msg string, detail ...Detail) {
	lvl := NormalizeLevel(level)
	extra := mergeDetail(detail)

	if l.rc != nil {
		l.rc.appendProgress(ProgressMessage{
			Message: msg,
			Stage:   l.stage,
			Level:   lvl,
			At:      l.now(),
			Extra:   extra,
		})
	}

	ce := l.base.Check(lvl.zapLevel(), l.line(msg, extra))
	if ce == nil {
		return
	}
	if l.stage != 0 {
		ce.Write(zap.Stringer("stage", l.stage))
		return
	}
	ce.Write()
}

// CheckAbort records a warning and returns an error wrapping
// ErrAbortRequested when the run has been asked to stop.
func (l *StageLogger) CheckAbort(hint string) error {
	if l.rc == nil || !l.rc.abort.Triggered() {
		return nil
	}
	msg := "abort requested, stopping stage"
	if hint != "" {
		msg += ": " + hint
	}
	l.Warn(msg)
	return abortError(l.stage, hint)
}

func (l *StageLogger) line(msg string, extra Detail) string {
	if len(extra) > 0 {
		msg = msg + " | extra=" + renderDetail(extra)
	}
	if l.prefix != "" {
		msg = l.prefix + " " + msg
	}
	return msg
}

func mergeDetail(details []Detail) Detail {
	var out Detail
	for _, d := range details {
		for k, v := range d {
			if out == nil {
				out = make(Detail, len(d))
			}
			out[k] = v
		}
	}
	return out
}

func renderDetail(d Detail) string {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Sprintf("%v", map[string]any(d))
	}
	return string(data)
}
