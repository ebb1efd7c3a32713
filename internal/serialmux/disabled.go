package serialmux

import (
	"context"
	"net/http"
)

// DisabledSerialMux stands in when no serial device is configured, so the
// live loop and the debug routes run unchanged without hardware. Writes are
// dropped and no lines ever arrive.
type DisabledSerialMux struct {
	subs *subscriberSet
}

func NewDisabledSerialMux() *DisabledSerialMux {
	return &DisabledSerialMux{subs: newSubscriberSet(0)}
}

func (d *DisabledSerialMux) Subscribe() (string, chan string) { return d.subs.add() }
func (d *DisabledSerialMux) Unsubscribe(id string)            { d.subs.remove(id) }
func (d *DisabledSerialMux) WriteLine(string) error           { return nil }

// Monitor blocks until ctx is done.
func (d *DisabledSerialMux) Monitor(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (d *DisabledSerialMux) Close() error {
	d.subs.closeAll()
	return nil
}

func (d *DisabledSerialMux) AttachAdminRoutes(mux *http.ServeMux) {
	attachAdminRoutes(mux, d)
}
