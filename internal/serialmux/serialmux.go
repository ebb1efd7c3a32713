// Package serialmux shares one serial device between the live tracker's
// telemetry writer and any number of line readers: the value logger, the
// debug tail and tests.
package serialmux

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"tailscale.com/tsweb"
)

var ErrWriteFailed = errors.New("failed to write to serial port")

// LineTerminator ends every line written to the device.
const LineTerminator = "\r\n"

// subscriberBuffer is how many lines a slow subscriber may fall behind
// before Monitor starts dropping lines for it.
const subscriberBuffer = 64

// SerialMux owns a port T. Lines read by Monitor go to every subscriber;
// WriteLine serialises writers.
type SerialMux[T SerialPorter] struct {
	port    T
	subs    *subscriberSet
	writeMu sync.Mutex
}

// SerialMuxInterface is what the commands and sinks depend on, so a real
// port, the mock sine source and the disabled mux are interchangeable.
type SerialMuxInterface interface {
	// Subscribe returns an id and a channel of lines read from the device.
	Subscribe() (string, chan string)
	// Unsubscribe closes and forgets the channel with the given id.
	Unsubscribe(string)
	WriteLine(string) error
	// Monitor reads lines until ctx is done, the port fails or the mux is
	// closed.
	Monitor(context.Context) error
	// Close closes every subscriber channel, then the port.
	Close() error

	// AttachAdminRoutes registers the serial-write and serial-tail debug
	// endpoints under /debug/. tsweb only serves them to localhost or
	// tailnet peers.
	AttachAdminRoutes(*http.ServeMux)
}

func NewSerialMux[T SerialPorter](port T) *SerialMux[T] {
	return &SerialMux[T]{port: port, subs: newSubscriberSet(subscriberBuffer)}
}

func (s *SerialMux[T]) Subscribe() (string, chan string) { return s.subs.add() }

func (s *SerialMux[T]) Unsubscribe(id string) { s.subs.remove(id) }

// WriteLine writes one line to the serial port, terminating it with CRLF
// unless it already ends in a newline. Lines are written whole; concurrent
// writers never interleave.
func (s *SerialMux[T]) WriteLine(line string) error {
	if !strings.HasSuffix(line, "\n") {
		line += LineTerminator
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	n, err := s.port.Write([]byte(line))
	if err != nil {
		return err
	}
	if n != len(line) {
		return ErrWriteFailed
	}
	return nil
}

// Monitor scans the port and broadcasts each line, without its CRLF, to the
// subscribers. The scan runs in its own goroutine so a blocked Read never
// delays cancellation.
func (s *SerialMux[T]) Monitor(ctx context.Context) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)

	go func() {
		defer close(lines)
		sc := bufio.NewScanner(s.port)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			if !s.subs.broadcast(line) {
				return nil
			}
		}
	}
}

func (s *SerialMux[T]) Close() error {
	s.subs.closeAll()
	return s.port.Close()
}

func (s *SerialMux[T]) AttachAdminRoutes(mux *http.ServeMux) {
	attachAdminRoutes(mux, s)
}

// attachAdminRoutes registers the write and tail endpoints shared by every
// mux implementation.
func attachAdminRoutes(mux *http.ServeMux, s SerialMuxInterface) {
	debug := tsweb.Debugger(mux)

	// API endpoint to write a line to the serial port, e.g. a test value.
	debug.HandleSilentFunc("serial-write", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		line := strings.TrimSpace(r.FormValue("line"))
		if line == "" {
			http.Error(w, "Missing line", http.StatusBadRequest)
			return
		}
		if err := s.WriteLine(line); err != nil {
			http.Error(w, "Failed to write line", http.StatusInternalServerError)
			return
		}
		io.WriteString(w, fmt.Sprintf("Wrote line %q to serial port", line))
	})

	// API endpoint to issue Server-Side Events (SSE) in response to lines coming from the serial port.
	debug.HandleFunc("serial-tail", "live tail of lines read from the serial port", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

		id, c := s.Subscribe()
		defer s.Unsubscribe(id)

		w.Write([]byte(": ping\n\n"))
		flusher.Flush()

		for {
			select {
			case payload, ok := <-c:
				if !ok {
					return
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
					return
				}
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	})
}
