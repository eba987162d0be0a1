package goble

import (
	"context"

	"github.com/go-ble/ble"
)

// central is the part of ble.Device the radio needs
type central interface {
	Scan(ctx context.Context, allowDup bool, onAdvert func(addr, name string)) error
	Dial(ctx context.Context, addr string) (gattClient, error)
	Stop() error
}

// gattClient is the part of ble.Client a link needs
type gattClient interface {
	DiscoverProfile(force bool) (*ble.Profile, error)
	WriteCharacteristic(c *ble.Characteristic, value []byte, noRsp bool) error
	CancelConnection() error
	// Disconnected is closed when the platform drops the link; nil if unsupported.
	Disconnected() <-chan struct{}
}

// bleCentral adapts ble.Device to central
type bleCentral struct {
	dev ble.Device
}

// Scan converts advertisements to (address, local name) pairs
func (c *bleCentral) Scan(ctx context.Context, allowDup bool, onAdvert func(addr, name string)) error {
	return c.dev.Scan(ctx, allowDup, func(adv ble.Advertisement) {
		onAdvert(adv.Addr().String(), adv.LocalName())
	})
}

func (c *bleCentral) Dial(ctx context.Context, addr string) (gattClient, error) {
	client, err := c.dev.Dial(ctx, ble.NewAddr(addr))
	if err != nil {
		return nil, err
	}
	return &bleClient{client: client}, nil
}

func (c *bleCentral) Stop() error {
	return c.dev.Stop()
}

// bleClient adapts ble.Client to gattClient
type bleClient struct {
	client ble.Client
}

func (c *bleClient) DiscoverProfile(force bool) (*ble.Profile, error) {
	return c.client.DiscoverProfile(force)
}

func (c *bleClient) WriteCharacteristic(char *ble.Characteristic, value []byte, noRsp bool) error {
	return c.client.WriteCharacteristic(char, value, noRsp)
}

func (c *bleClient) CancelConnection() error {
	return c.client.CancelConnection()
}

func (c *bleClient) Disconnected() <-chan struct{} {
	if dc, ok := c.client.(interface{ Disconnected() <-chan struct{} }); ok {
		return dc.Disconnected()
	}
	return nil
}
