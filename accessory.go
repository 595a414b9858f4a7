package hkvac

import (
	"context"
	"net/http"

	"github.com/brutella/hap/accessory"
	"github.com/brutella/hap/characteristic"
	"github.com/brutella/hap/service"
)

// LocalAccessory is the hub facing representation of the bridged vacuum: a
// switch service for the actuator and a battery service for level
// reporting.
type LocalAccessory struct {
	*accessory.A

	Switch  *service.Switch
	Battery *service.BatteryService

	proxy *Proxy
}

func newLocalAccessory(c accessoryContext) *LocalAccessory {
	a := LocalAccessory{}

	a.A = accessory.New(accessory.Info{
		Name:         c.name,
		SerialNumber: c.identifier,
		Manufacturer: "hkvac",
		Model:        "bridged-vacuum",
	}, accessory.TypeSwitch)
	a.Id = c.localId

	a.Switch = service.NewSwitch()
	a.AddS(a.Switch.S)

	a.Battery = service.NewBatteryService()
	a.AddS(a.Battery.S)
	a.Battery.BatteryLevel.SetValue(DefaultBatteryLevel)

	return &a
}

// attachProxy binds the accessory's characteristic handlers to a proxy.
// Handler bindings do not survive a restore from persisted storage, so
// every reconciliation pass attaches a fresh proxy even to reused
// accessories.
func (a *LocalAccessory) attachProxy(p *Proxy) {
	a.proxy = p

	a.Switch.On.OnValueRemoteUpdate(func(on bool) {
		p.Write(context.Background(), on)
	})

	a.Switch.On.C.ValueRequestFunc = func(r *http.Request) (interface{}, int) {
		return p.ReadOn(), 0
	}

	a.Battery.BatteryLevel.C.ValueRequestFunc = func(r *http.Request) (interface{}, int) {
		level := p.ReadBattery(requestContext(r))

		if level <= 20 {
			a.Battery.StatusLowBattery.SetValue(characteristic.StatusLowBatteryBatteryLevelLow)
		} else {
			a.Battery.StatusLowBattery.SetValue(characteristic.StatusLowBatteryBatteryLevelNormal)
		}

		return level, 0
	}
}

func (a *LocalAccessory) Proxy() *Proxy {
	return a.proxy
}

func requestContext(r *http.Request) context.Context {
	if r == nil {
		return context.Background()
	}

	return r.Context()
}
