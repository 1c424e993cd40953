// Package objlog logs on behalf of individual objects.
//
// Every line is prefixed with the object's namespace/name and written to the
// process log; Info-and-above lines are also handed to a background Poster,
// e.g. to surface them as cluster events on the object. Posting is
// non-blocking: a full pipe drops records and accounts for them instead of
// slowing the worker that logged.
package objlog

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/spf13/cast"
	"github.com/yaoapp/kun/log"

	"github.com/olivier-mauras/kopf/watch/types"
)

// Level of one posted record.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "Debug"
	case LevelInfo:
		return "Normal"
	case LevelWarn:
		return "Warning"
	case LevelError:
		return "Error"
	default:
		return fmt.Sprintf("Level(%d)", int(l))
	}
}

// Ref identifies the object a record belongs to. It carries as little as
// possible and is copied out of the body, so later mutation of the body
// cannot corrupt records already in the pipe.
type Ref struct {
	APIVersion string
	Kind       string
	Name       string
	Namespace  string
	Uid        types.ObjectUid
}

// NewRef extracts an object reference from an unstructured body.
func NewRef(body map[string]any) Ref {
	meta := cast.ToStringMap(body["metadata"])
	apiVersion, ok := body["apiVersion"]
	if !ok {
		apiVersion = body["api_version"]
	}
	return Ref{
		APIVersion: cast.ToString(apiVersion),
		Kind:       cast.ToString(body["kind"]),
		Name:       cast.ToString(meta["name"]),
		Namespace:  cast.ToString(meta["namespace"]),
		Uid:        types.ObjectUid(cast.ToString(meta["uid"])),
	}
}

// Record is one loggable line bound to an object. ID is unique per record
// so posters can derive collision-free event names from it.
type Record struct {
	ID      string
	Level   Level
	Ref     Ref
	Message string
}

// Poster consumes records in the background, e.g. posting them as cluster
// events on the referred object.
type Poster interface {
	Post(rec Record)
}

const pipeBuffer = 1024

// pipe is the background posting machinery shared by all object loggers.
type pipe struct {
	mu      sync.Mutex
	started bool
	ch      chan Record
	done    chan struct{}
	dropped atomic.Int64
}

var posting = &pipe{}

// StartPosting routes Info-and-above records to the poster until StopPosting
// is called. Without it, object loggers only write to the process log.
func StartPosting(p Poster) {
	posting.mu.Lock()
	defer posting.mu.Unlock()

	if posting.started {
		return
	}
	posting.started = true
	posting.ch = make(chan Record, pipeBuffer)
	posting.done = make(chan struct{})
	go posting.consume(p)
}

// StopPosting drains the pipe and stops the background poster.
func StopPosting() {
	posting.mu.Lock()
	if !posting.started {
		posting.mu.Unlock()
		return
	}
	posting.started = false
	ch, done := posting.ch, posting.done
	posting.mu.Unlock()

	close(ch)
	<-done
}

// Dropped reports how many records were discarded because the pipe was full.
func Dropped() int64 {
	return posting.dropped.Load()
}

func (p *pipe) consume(poster Poster) {
	defer close(p.done)
	for rec := range p.ch {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error("objlog poster panic: ref=%s/%s err=%v", rec.Ref.Namespace, rec.Ref.Name, r)
				}
			}()
			poster.Post(rec)
		}()
	}
}

// enqueue offers a record to the pipe without ever blocking the caller.
func (p *pipe) enqueue(rec Record) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}
	select {
	case p.ch <- rec:
	default:
		if p.dropped.Add(1)%100 == 1 {
			log.Warn("objlog pipe full: dropping records (total dropped: %d)", p.dropped.Load())
		}
	}
}

// Logger writes per-object log lines. The zero value is not usable; build
// one with For.
type Logger struct {
	ref   Ref
	local bool
}

// For returns the logger of the object described by the body.
func For(body map[string]any) *Logger {
	return &Logger{ref: NewRef(body)}
}

// ForRef returns the logger for an already-extracted reference.
func ForRef(ref Ref) *Logger {
	return &Logger{ref: ref}
}

// Local returns a logger that writes to the process log only, never posting.
func (l *Logger) Local() *Logger {
	return &Logger{ref: l.ref, local: true}
}

// Ref returns the object reference this logger is bound to.
func (l *Logger) Ref() Ref {
	return l.ref
}

func (l *Logger) prefix(msg string) string {
	return fmt.Sprintf("[%s/%s] %s", l.ref.Namespace, l.ref.Name, msg)
}

func (l *Logger) emit(level Level, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	switch level {
	case LevelDebug:
		log.Debug("%s", l.prefix(msg))
	case LevelInfo:
		log.Info("%s", l.prefix(msg))
	case LevelWarn:
		log.Warn("%s", l.prefix(msg))
	case LevelError:
		log.Error("%s", l.prefix(msg))
	}

	// Debug stays local: it is noise at the cluster level.
	if l.local || level == LevelDebug {
		return
	}
	posting.enqueue(Record{
		ID:      uuid.NewString(),
		Level:   level,
		Ref:     l.ref,
		Message: msg,
	})
}

func (l *Logger) Debug(format string, args ...any) { l.emit(LevelDebug, format, args...) }
func (l *Logger) Info(format string, args ...any)  { l.emit(LevelInfo, format, args...) }
func (l *Logger) Warn(format string, args ...any)  { l.emit(LevelWarn, format, args...) }
func (l *Logger) Error(format string, args ...any) { l.emit(LevelError, format, args...) }
