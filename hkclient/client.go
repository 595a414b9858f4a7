// Package hkclient adapts the hkontroller HomeKit controller library to the
// narrow remote client contract the bridge core consumes: enumerate
// accessories, batch read and batch write characteristics addressed by
// "<aid>.<iid>" tokens.
package hkclient

import (
	"context"
	"fmt"
	"time"

	"github.com/hkontrol/hkontroller"
	"github.com/shimmeringbee/retry"

	"github.com/hkvac/hkvac"
)

const controllerName = "hkvac"

const (
	DefaultDiscoveryTimeout = 30 * time.Second
	DefaultVerifyTimeout    = 5 * time.Second
	DefaultVerifyRetries    = 3
)

// Client wraps one pair-verified connection to the secondary bridge.
type Client struct {
	controller *hkontroller.Controller
	device     *hkontroller.Device
}

// Connector returns the factory the bridge core uses to establish remote
// connectivity.
func Connector() hkvac.ClientConnector {
	return func(ctx context.Context, cfg hkvac.BridgeConfig) (hkvac.RemoteClient, error) {
		return Connect(ctx, cfg)
	}
}

// Connect restores the pairing artifact into a controller store, locates
// the bridge on the network by its device id and pair-verifies the session.
// The configured address and port are operator hints; the HAP transport is
// mdns addressed and follows wherever the bridge currently announces
// itself.
func Connect(ctx context.Context, cfg hkvac.BridgeConfig) (*Client, error) {
	storeDir, err := unpackArtifact(cfg.PairingData)
	if err != nil {
		return nil, fmt.Errorf("pairing artifact: %w", err)
	}

	controller, err := hkontroller.NewController(hkontroller.NewFsStore(storeDir), controllerName)
	if err != nil {
		return nil, fmt.Errorf("controller: %w", err)
	}

	if err := controller.LoadPairings(); err != nil {
		return nil, fmt.Errorf("load pairings: %w", err)
	}

	discoveryCtx, cancel := context.WithTimeout(ctx, DefaultDiscoveryTimeout)
	defer cancel()

	device, err := waitForDevice(discoveryCtx, controller, cfg.ID)
	if err != nil {
		return nil, err
	}

	if !device.IsPaired() {
		return nil, fmt.Errorf("bridge %s has no pairing in the artifact store", cfg.ID)
	}

	if err := retry.Retry(ctx, DefaultVerifyTimeout, DefaultVerifyRetries, func(ctx context.Context) error {
		return device.PairVerify()
	}); err != nil {
		return nil, fmt.Errorf("pair verify: %w", err)
	}

	return &Client{controller: controller, device: device}, nil
}

func waitForDevice(ctx context.Context, controller *hkontroller.Controller, id string) (*hkontroller.Device, error) {
	discovered, _ := controller.StartDiscoveryWithContext(ctx)

	for {
		select {
		case d := <-discovered:
			if d != nil && d.Name == id {
				return d, nil
			}
		case <-ctx.Done():
			return nil, fmt.Errorf("bridge %s not discovered: %w", id, ctx.Err())
		}
	}
}

func (c *Client) GetAccessories(ctx context.Context) ([]hkvac.Accessory, error) {
	if err := c.device.GetAccessories(); err != nil {
		return nil, fmt.Errorf("get accessories: %w", err)
	}

	var graph []hkvac.Accessory

	for _, a := range c.device.Accessories() {
		acc := hkvac.Accessory{Aid: a.Id}

		for _, s := range a.Ss {
			svc := hkvac.Service{Iid: s.Id, Type: string(s.Type)}

			for _, ch := range s.Cs {
				svc.Characteristics = append(svc.Characteristics, hkvac.Characteristic{
					Iid:   ch.Iid,
					Type:  characteristicType(&ch.Type),
					Value: ch.Value,
				})
			}

			acc.Services = append(acc.Services, svc)
		}

		graph = append(graph, acc)
	}

	return graph, nil
}

func characteristicType(t *hkontroller.HapCharacteristicType) string {
	if t == nil {
		return ""
	}

	return string(*t)
}

func (c *Client) GetCharacteristics(ctx context.Context, addresses []string) ([]hkvac.CharacteristicValue, error) {
	values := make([]hkvac.CharacteristicValue, 0, len(addresses))

	for _, raw := range addresses {
		address, err := hkvac.ParseCharacteristicAddress(raw)
		if err != nil {
			return nil, err
		}

		ch, err := c.device.GetCharacteristic(address.Aid, address.Iid)
		if err != nil {
			return nil, fmt.Errorf("get %s: %w", raw, err)
		}

		values = append(values, hkvac.CharacteristicValue{Address: address, Value: ch.Value})
	}

	return values, nil
}

func (c *Client) SetCharacteristics(ctx context.Context, values map[string]interface{}) error {
	for raw, value := range values {
		address, err := hkvac.ParseCharacteristicAddress(raw)
		if err != nil {
			return err
		}

		if err := c.device.PutCharacteristic(address.Aid, address.Iid, value); err != nil {
			return fmt.Errorf("set %s: %w", raw, err)
		}
	}

	return nil
}
