// internal/telemetry/file.go
package telemetry

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/xkilldash9x/scalpel-heal/api/schemas"
)

// FileOptions configures the rotating event log.
type FileOptions struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// entry is one line of the event log.
type entry struct {
	Type     schemas.MessageType `json:"type"`
	LoggedAt time.Time           `json:"logged_at"`
	Data     interface{}         `json:"data"`
}

// FileSink appends telemetry as JSON lines to a size-rotated file.
type FileSink struct {
	mu     sync.Mutex
	w      io.WriteCloser
	enc    *json.Encoder
	logger *zap.Logger
}

var _ Sink = (*FileSink)(nil)

// NewFileSink opens (lazily) the event log described by opts.
func NewFileSink(opts FileOptions, logger *zap.Logger) (*FileSink, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("telemetry event log path is required")
	}
	return newFileSink(&lumberjack.Logger{
		Filename:   opts.Path,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   opts.Compress,
	}, logger), nil
}

func newFileSink(w io.WriteCloser, logger *zap.Logger) *FileSink {
	return &FileSink{
		w:      w,
		enc:    json.NewEncoder(w),
		logger: logger.Named("telemetry_file"),
	}
}

func (s *FileSink) RecordHealing(_ context.Context, ev schemas.HealingEvent) {
	s.write(schemas.MessageHealingEvent, ev)
}

func (s *FileSink) RecordOperation(_ context.Context, rec schemas.OperationRecord) {
	s.write(schemas.MessageOperation, rec)
}

func (s *FileSink) write(t schemas.MessageType, data interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(entry{Type: t, LoggedAt: time.Now().UTC(), Data: data}); err != nil {
		s.logger.Error("Failed to write telemetry entry.", zap.String("type", string(t)), zap.Error(err))
	}
}

// Close flushes and closes the underlying file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Close()
}
