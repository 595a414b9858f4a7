package hkvac

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/antonmedv/expr/vm"
	"github.com/brutella/hap"
	"github.com/brutella/hap/accessory"
	"github.com/shimmeringbee/callbacks"
	"github.com/shimmeringbee/logwrap"
	"github.com/shimmeringbee/logwrap/impl/discard"
	"github.com/shimmeringbee/logwrap/impl/golog"
	"github.com/shimmeringbee/persistence"
	"golang.org/x/sync/semaphore"
)

// ErrDiscoveryInProgress is returned when Discover is invoked while a
// previous cycle has not resolved yet; reconciliation never runs against a
// snapshot still in flight.
var ErrDiscoveryInProgress = errors.New("discovery cycle already in progress")

// Bridge owns the whole pipeline: connect to the secondary bridge, match
// the target accessory, reconcile the persisted local registry and serve
// the resulting accessories to the hub.
type Bridge struct {
	cfg       Config
	section   persistence.Section
	connector ClientConnector

	logger       logwrap.Logger
	callbacks    callbacks.AdderCaller
	discoverySem *semaphore.Weighted

	filter *vm.Program

	session     *Session
	accessories []*LocalAccessory

	events chan interface{}
}

func New(cfg Config, section persistence.Section, connector ClientConnector) *Bridge {
	b := &Bridge{
		cfg:       cfg,
		section:   section,
		connector: connector,

		logger:       logwrap.New(discard.Discard()),
		callbacks:    callbacks.Create(),
		discoverySem: semaphore.NewWeighted(1),

		events: make(chan interface{}, 16),
	}

	b.callbacks.Add(b.accessoryAddedCallback)
	b.callbacks.Add(b.accessoryRemovedCallback)

	return b
}

func (b *Bridge) WithGoLogger(parentLogger *log.Logger) {
	b.WithLogWrapLogger(logwrap.New(golog.Wrap(parentLogger)))
}

func (b *Bridge) WithLogWrapLogger(lw logwrap.Logger) {
	b.logger = lw
}

// Discover runs one discovery cycle: connect and snapshot, match, then
// reconcile. The outcome is a fresh set of local accessories with fresh
// proxies; a failed or degraded connection still reconciles, with existing
// accessories falling back to cached proxy state and unmatched ones
// retired.
func (b *Bridge) Discover(pctx context.Context) error {
	if !b.discoverySem.TryAcquire(1) {
		return ErrDiscoveryInProgress
	}
	defer b.discoverySem.Release(1)

	ctx, end := b.logger.Segment(pctx, "Discovery cycle.")
	defer end()

	if b.filter == nil && b.cfg.Match.Filter != "" {
		filter, err := CompileMatchFilter(b.cfg.Match.Filter)
		if err != nil {
			return err
		}

		b.filter = filter
	}

	b.session = ConnectSession(ctx, b.connector, b.cfg.Bridge.bridgeConfig(), b.logger)

	var match *Match

	if b.session.Ready() {
		if m, found := FindMatch(b.session.Graph(), VacuumSignature(), b.filter); found {
			b.logger.LogInfo(ctx, "Matched remote accessory.", logwrap.Datum("aid", m.Aid), logwrap.Datum("characteristics", m.Characteristics))
			match = &m
		} else {
			b.logger.LogWarn(ctx, "No remote accessory matched the target signature.")
		}
	}

	r := &reconciler{section: b.section, callbacks: b.callbacks, logger: b.logger}
	contexts := r.reconcile(ctx, match)

	b.accessories = nil

	for _, c := range contexts {
		la := newLocalAccessory(c)
		la.attachProxy(newProxy(b.session.Client(), c, b.logger))
		b.accessories = append(b.accessories, la)
	}

	return nil
}

// Accessories returns the local accessories produced by the most recent
// discovery cycle, in stable local id order.
func (b *Bridge) Accessories() []*LocalAccessory {
	return b.accessories
}

// Run serves the reconciled accessories to the hub until the context is
// cancelled. A new discovery cycle requires a restart; the accessory set
// handed to the server is fixed for its lifetime.
func (b *Bridge) Run(ctx context.Context) error {
	root := accessory.NewBridge(accessory.Info{
		Name:         b.cfg.Name,
		Manufacturer: "hkvac",
		Model:        "hkvac-bridge",
	})
	root.A.Id = 1

	var as []*accessory.A
	for _, la := range b.accessories {
		as = append(as, la.A)
	}

	server, err := hap.NewServer(hap.NewFsStore(b.cfg.HubStorePath()), root.A, as...)
	if err != nil {
		return fmt.Errorf("hub accessory server: %w", err)
	}

	server.Pin = b.cfg.Pin
	if b.cfg.Port != 0 {
		server.Addr = fmt.Sprintf(":%d", b.cfg.Port)
	}

	b.logger.LogInfo(ctx, "Starting hub accessory server.", logwrap.Datum("accessories", len(as)), logwrap.Datum("addr", server.Addr))

	return server.ListenAndServe(ctx)
}

func (b *Bridge) accessoryAddedCallback(ctx context.Context, e AccessoryAdded) error {
	b.sendEvent(e)
	return nil
}

func (b *Bridge) accessoryRemovedCallback(ctx context.Context, e AccessoryRemoved) error {
	b.sendEvent(e)
	return nil
}

func (b *Bridge) sendEvent(event interface{}) {
	select {
	case b.events <- event:
	default:
		b.logger.LogWarn(context.Background(), "Could not send event, channel buffer full.", logwrap.Datum("event", event))
	}
}

// ReadEvent blocks until a bridge event is available or the context
// expires.
func (b *Bridge) ReadEvent(ctx context.Context) (interface{}, error) {
	select {
	case event := <-b.events:
		return event, nil
	case <-ctx.Done():
		return nil, errors.New("context expired")
	}
}
