// Package telemetry delivers live pendulum values out of process.
//
// Every sink speaks the same one-value-per-line protocol: the value with one
// decimal place followed by CRLF. Sinks honour the context deadline so a
// stalled consumer cannot hold up the frame loop.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/banshee-data/wind.report/internal/serialmux"
)

// FormatLine renders v as a telemetry line, e.g. "3.2\r\n".
func FormatLine(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64) + serialmux.LineTerminator
}

// WriterEmitter writes telemetry lines to an io.Writer such as stdout.
type WriterEmitter struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriterEmitter(w io.Writer) *WriterEmitter {
	return &WriterEmitter{w: w}
}

func (e *WriterEmitter) Emit(ctx context.Context, v float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	_, err := io.WriteString(e.w, FormatLine(v))
	return err
}

// LineWriter is the part of a serial mux the serial sink needs.
type LineWriter interface {
	WriteLine(line string) error
}

// ErrWriteInProgress is returned when the previous serial write has not
// finished. The value is dropped rather than queued behind it.
var ErrWriteInProgress = errors.New("emit dropped: write in progress")

// SerialEmitter writes telemetry lines to a serial device. At most one write
// is outstanding at a time.
type SerialEmitter struct {
	lw       LineWriter
	inFlight atomic.Bool
}

func NewSerialEmitter(lw LineWriter) *SerialEmitter {
	return &SerialEmitter{lw: lw}
}

// Emit writes one line. If ctx ends first Emit returns its error; the write
// itself cannot be interrupted and finishes in the background, and values
// emitted until it does are dropped with ErrWriteInProgress.
func (e *SerialEmitter) Emit(ctx context.Context, v float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !e.inFlight.CompareAndSwap(false, true) {
		return fmt.Errorf("serial telemetry: %w", ErrWriteInProgress)
	}
	done := make(chan error, 1)
	go func() {
		err := e.lw.WriteLine(FormatLine(v))
		e.inFlight.Store(false)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("serial telemetry: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("serial telemetry: %w", ctx.Err())
	}
}

// Emitter is satisfied by every sink in this package.
type Emitter interface {
	Emit(ctx context.Context, v float64) error
}

// Multi fans one value out to several sinks. Every sink is tried; the
// failures are joined.
type Multi []Emitter

func (m Multi) Emit(ctx context.Context, v float64) error {
	var errs []error
	for _, e := range m {
		if err := e.Emit(ctx, v); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
