package serialmux

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/banshee-data/wind.report/internal/timeutil"
)

// SineWave describes the synthetic signal produced by NewMockSerialMux. The
// defaults match the bench timing rig: 0.33 Hz between 0 and 8 every 50 ms.
type SineWave struct {
	FreqHz    float64
	Amplitude float64
	Offset    float64
	Period    time.Duration
}

func DefaultSineWave() SineWave {
	return SineWave{FreqHz: 0.33, Amplitude: 4, Offset: 4, Period: 50 * time.Millisecond}
}

// At returns the signal value t after the start.
func (w SineWave) At(t time.Duration) float64 {
	return w.Amplitude*math.Sin(2*math.Pi*w.FreqHz*t.Seconds()) + w.Offset
}

// MockSerialPort implements SerialPorter for running without hardware.
// Writes are discarded.
type MockSerialPort struct {
	r    *io.PipeReader
	w    *io.PipeWriter
	stop chan struct{}
	once sync.Once
}

func (m *MockSerialPort) Read(p []byte) (int, error)  { return m.r.Read(p) }
func (m *MockSerialPort) Write(p []byte) (int, error) { return len(p), nil }

func (m *MockSerialPort) Close() error {
	m.once.Do(func() { close(m.stop) })
	return m.r.Close()
}

// NewMockSerialMux creates a SerialMux instance backed by a mock serial port
// that emits one "%.4f\r\n" line of w per period until closed.
func NewMockSerialMux(w SineWave) *SerialMux[*MockSerialPort] {
	return NewMockSerialMuxWithClock(w, timeutil.RealClock{})
}

// NewMockSerialMuxWithClock is NewMockSerialMux paced by clock.
func NewMockSerialMuxWithClock(w SineWave, clock timeutil.Clock) *SerialMux[*MockSerialPort] {
	r, pw := io.Pipe()
	port := &MockSerialPort{r: r, w: pw, stop: make(chan struct{})}
	ticker := clock.NewTicker(w.Period)
	start := clock.Now()

	go func() {
		defer pw.Close()
		defer ticker.Stop()
		for {
			select {
			case <-port.stop:
				return
			case now := <-ticker.C():
				if _, err := fmt.Fprintf(pw, "%.4f\r\n", w.At(now.Sub(start))); err != nil {
					return
				}
			}
		}
	}()

	return NewSerialMux(port)
}

// TestableSerialPort is a scripted port for tests. Reads drain ReadBuffer;
// writes land in WriteBuffer after WriteLatency. One-shot ReadError and
// WriteError fail the next call.
type TestableSerialPort struct {
	mu       sync.Mutex
	readCond *sync.Cond

	ReadBuffer   *bytes.Buffer
	WriteBuffer  *bytes.Buffer
	WriteLatency time.Duration
	ReadError    error
	WriteError   error
	Closed       bool

	// BlockReads makes Read wait for AddReadData or Close instead of
	// returning io.EOF on an empty buffer.
	BlockReads bool
}

func NewTestableSerialPort() *TestableSerialPort {
	p := &TestableSerialPort{
		ReadBuffer:  new(bytes.Buffer),
		WriteBuffer: new(bytes.Buffer),
	}
	p.readCond = sync.NewCond(&p.mu)
	return p
}

var errPortClosed = errors.New("serial port closed")

func (p *TestableSerialPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ReadError; err != nil {
		p.ReadError = nil
		return 0, err
	}
	for p.BlockReads && !p.Closed && p.ReadBuffer.Len() == 0 {
		p.readCond.Wait()
	}
	if p.Closed {
		return 0, errPortClosed
	}
	return p.ReadBuffer.Read(b)
}

func (p *TestableSerialPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.Closed {
		return 0, errPortClosed
	}
	if err := p.WriteError; err != nil {
		p.WriteError = nil
		return 0, err
	}
	if d := p.WriteLatency; d > 0 {
		p.mu.Unlock()
		time.Sleep(d)
		p.mu.Lock()
	}
	return p.WriteBuffer.Write(b)
}

func (p *TestableSerialPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Closed = true
	p.readCond.Broadcast()
	return nil
}

// AddReadData queues data for Read and wakes a blocked reader.
func (p *TestableSerialPort) AddReadData(data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ReadBuffer.Write(data)
	p.readCond.Broadcast()
}

// GetWrittenData returns a copy of everything written so far.
func (p *TestableSerialPort) GetWrittenData() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return bytes.Clone(p.WriteBuffer.Bytes())
}

// WrittenLines splits the written data on the line terminator.
func (p *TestableSerialPort) WrittenLines() []string {
	data := strings.TrimSuffix(string(p.GetWrittenData()), LineTerminator)
	if data == "" {
		return nil
	}
	return strings.Split(data, LineTerminator)
}

func (p *TestableSerialPort) SetWriteError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.WriteError = err
}
