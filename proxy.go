package hkvac

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/shimmeringbee/logwrap"
)

// DefaultBatteryLevel is reported until the first successful remote battery
// read replaces it.
const DefaultBatteryLevel = 100

// Proxy binds one local accessory's read/write operations to the remote
// addresses resolved at reconciliation time. Addresses are fixed for the
// proxy's lifetime; a nil address is a permanent degraded mode for that
// operation until the next reconciliation pass attaches a fresh proxy.
//
// Every operation is total: failures degrade to cached state and are only
// observable through the log. A characteristic handler that errors outward
// can destabilise the hub's polling and automation layer.
type Proxy struct {
	client  RemoteClient
	on      *CharacteristicAddress
	battery *CharacteristicAddress
	logger  logwrap.Logger

	m                *sync.RWMutex
	lastOnState      bool
	lastBatteryLevel int
}

func newProxy(client RemoteClient, c accessoryContext, logger logwrap.Logger) *Proxy {
	return &Proxy{
		client:  client,
		on:      c.on,
		battery: c.battery,
		logger:  logger,

		m:                &sync.RWMutex{},
		lastBatteryLevel: DefaultBatteryLevel,
	}
}

// Write updates the cached on state optimistically before attempting a
// single remote set. No retry, and no rollback on failure, the cached value
// reflects the most recently issued write.
func (p *Proxy) Write(ctx context.Context, on bool) {
	p.m.Lock()
	p.lastOnState = on
	p.m.Unlock()

	if p.client == nil || p.on == nil {
		p.logger.LogWarn(ctx, "Skipping remote switch write, remote side unavailable.", logwrap.Datum("state", on))
		return
	}

	if err := p.client.SetCharacteristics(ctx, map[string]interface{}{p.on.String(): on}); err != nil {
		p.logger.LogError(ctx, "Failed to write switch state to remote bridge.", logwrap.Err(err), logwrap.Datum("address", p.on.String()))
	}
}

// ReadOn returns the cached on state and never queries the remote side; the
// remote on characteristic is treated as write mostly.
func (p *Proxy) ReadOn() bool {
	p.m.RLock()
	defer p.m.RUnlock()

	return p.lastOnState
}

// ReadBattery issues a single remote read and caches a numeric result. Any
// failure, including a malformed or non numeric response, leaves the cache
// untouched and returns the last known good level.
func (p *Proxy) ReadBattery(ctx context.Context) int {
	if p.client == nil || p.battery == nil {
		p.logger.LogWarn(ctx, "Skipping remote battery read, remote side unavailable.")
		return p.cachedBatteryLevel()
	}

	values, err := p.client.GetCharacteristics(ctx, []string{p.battery.String()})
	if err != nil {
		p.logger.LogError(ctx, "Failed to read battery level from remote bridge.", logwrap.Err(err), logwrap.Datum("address", p.battery.String()))
		return p.cachedBatteryLevel()
	}

	if len(values) == 0 {
		p.logger.LogError(ctx, "Remote bridge returned no value for battery read.", logwrap.Datum("address", p.battery.String()))
		return p.cachedBatteryLevel()
	}

	level, ok := coerceBatteryLevel(values[0].Value)
	if !ok {
		p.logger.LogError(ctx, "Remote bridge returned non numeric battery level.", logwrap.Datum("address", p.battery.String()), logwrap.Datum("value", values[0].Value))
		return p.cachedBatteryLevel()
	}

	p.m.Lock()
	p.lastBatteryLevel = level
	p.m.Unlock()

	return level
}

func (p *Proxy) cachedBatteryLevel() int {
	p.m.RLock()
	defer p.m.RUnlock()

	return p.lastBatteryLevel
}

func coerceBatteryLevel(v interface{}) (int, bool) {
	switch value := v.(type) {
	case float64:
		return int(value), true
	case float32:
		return int(value), true
	case int:
		return value, true
	case int64:
		return int(value), true
	case uint64:
		return int(value), true
	case json.Number:
		if f, err := value.Float64(); err == nil {
			return int(f), true
		}
	}

	return 0, false
}
