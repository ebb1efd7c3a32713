package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"runtime"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/wind.report/internal/serialmux"
	"github.com/banshee-data/wind.report/internal/timeutil"
)

func TestFormatLine(t *testing.T) {
	t.Parallel()

	tests := []struct {
		v    float64
		want string
	}{
		{3.2, "3.2\r\n"},
		{3.25, "3.2\r\n"},
		{0, "0.0\r\n"},
		{12.96, "13.0\r\n"},
		{-4.04, "-4.0\r\n"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatLine(tt.v), "FormatLine(%v)", tt.v)
	}
}

func TestWriterEmitter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	e := NewWriterEmitter(&buf)
	ctx := context.Background()
	require.NoError(t, e.Emit(ctx, 3.2))
	require.NoError(t, e.Emit(ctx, 10))
	assert.Equal(t, "3.2\r\n10.0\r\n", buf.String())

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, e.Emit(cctx, 1), context.Canceled)
	assert.Equal(t, "3.2\r\n10.0\r\n", buf.String())
}

func TestSerialEmitter(t *testing.T) {
	t.Parallel()

	port := serialmux.NewTestableSerialPort()
	mux := serialmux.NewSerialMux(port)
	e := NewSerialEmitter(mux)

	require.NoError(t, e.Emit(context.Background(), 4.75))
	assert.Equal(t, "4.8\r\n", string(port.GetWrittenData()))

	port.SetWriteError(errors.New("device unplugged"))
	err := e.Emit(context.Background(), 1)
	assert.ErrorContains(t, err, "device unplugged")
}

func TestSerialEmitter_Timeout(t *testing.T) {
	t.Parallel()

	port := serialmux.NewTestableSerialPort()
	port.WriteLatency = 200 * time.Millisecond
	e := NewSerialEmitter(serialmux.NewSerialMux(port))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := e.Emit(ctx, 2)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 150*time.Millisecond)
}

// gatedWriter blocks every WriteLine until release is closed.
type gatedWriter struct {
	release chan struct{}
	mu      sync.Mutex
	lines   []string
}

func (g *gatedWriter) WriteLine(line string) error {
	<-g.release
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lines = append(g.lines, line)
	return nil
}

func (g *gatedWriter) written() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.lines...)
}

func TestSerialEmitter_StalledPortDropsValues(t *testing.T) {
	gw := &gatedWriter{release: make(chan struct{})}
	e := NewSerialEmitter(gw)

	before := runtime.NumGoroutine()
	for i := 0; i < 200; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
		err := e.Emit(ctx, float64(i))
		cancel()
		require.Error(t, err)
		if i > 0 {
			assert.ErrorIs(t, err, ErrWriteInProgress)
		}
	}
	// Only the first write is parked on the stalled port.
	assert.LessOrEqual(t, runtime.NumGoroutine(), before+5)

	close(gw.release)
	require.Eventually(t, func() bool { return len(gw.written()) == 1 }, time.Second, time.Millisecond)

	// Once the port drains, new values go straight through.
	require.Eventually(t, func() bool {
		return e.Emit(context.Background(), 7.5) == nil
	}, time.Second, time.Millisecond)
	assert.Equal(t, []string{"0.0\r\n", "7.5\r\n"}, gw.written())
}

type recordingEmitter struct {
	mu     sync.Mutex
	values []float64
	err    error
}

func (r *recordingEmitter) Emit(ctx context.Context, v float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = append(r.values, v)
	return r.err
}

func TestMulti(t *testing.T) {
	t.Parallel()

	a := &recordingEmitter{}
	b := &recordingEmitter{err: errors.New("b down")}
	c := &recordingEmitter{err: errors.New("c down")}

	err := Multi{a, b, c}.Emit(context.Background(), 5)
	require.Error(t, err)
	assert.ErrorContains(t, err, "b down")
	assert.ErrorContains(t, err, "c down")

	for _, e := range []*recordingEmitter{a, b, c} {
		assert.Equal(t, []float64{5}, e.values, "every sink is tried")
	}
	assert.NoError(t, Multi{a}.Emit(context.Background(), 6))
	assert.NoError(t, Multi{}.Emit(context.Background(), 7))
}

type fakeToken struct {
	done chan struct{}
	err  error
}

func doneToken(err error) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool                     { <-t.done; return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakePublisher struct {
	token        mqtt.Token
	published    []published
	disconnected bool
}

func (f *fakePublisher) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	f.published = append(f.published, published{topic, qos, retained, payload.([]byte)})
	return f.token
}

func (f *fakePublisher) Disconnect(uint) { f.disconnected = true }

func TestMQTTEmitter(t *testing.T) {
	t.Parallel()

	clock := timeutil.NewMockClock(time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC))
	pub := &fakePublisher{token: doneToken(nil)}
	e := newMQTTEmitter(pub, MQTTOptions{Topic: "wind/pendulum", Units: "mps", Clock: clock})

	require.NoError(t, e.Emit(context.Background(), 3.5))
	require.Len(t, pub.published, 1)
	p := pub.published[0]
	assert.Equal(t, "wind/pendulum", p.topic)
	assert.Equal(t, byte(0), p.qos)
	assert.True(t, p.retained)

	var got Reading
	require.NoError(t, json.Unmarshal(p.payload, &got))
	want := Reading{Value: 3.5, Units: "mps", Time: clock.Now()}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("payload mismatch (-want +got):\n%s", diff)
	}

	require.NoError(t, e.Close())
	assert.True(t, pub.disconnected)
}

func TestMQTTEmitter_Errors(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{token: doneToken(errors.New("not connected"))}
	e := newMQTTEmitter(pub, MQTTOptions{Topic: "wind/pendulum"})
	assert.ErrorContains(t, e.Emit(context.Background(), 1), "not connected")

	stuck := &fakePublisher{token: &fakeToken{done: make(chan struct{})}}
	e = newMQTTEmitter(stuck, MQTTOptions{Topic: "wind/pendulum"})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, e.Emit(ctx, 1), context.DeadlineExceeded)

	_, err := DialMQTT(MQTTOptions{Topic: "wind/pendulum"})
	assert.Error(t, err, "broker required")
}
