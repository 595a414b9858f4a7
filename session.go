package hkvac

import (
	"context"

	"github.com/shimmeringbee/logwrap"
)

// RemoteClient is the transport to the secondary bridge, consumed as an
// opaque collaborator. Batch operations address characteristics with
// "<aid>.<iid>" tokens, see CharacteristicAddress.
type RemoteClient interface {
	GetAccessories(ctx context.Context) ([]Accessory, error)
	GetCharacteristics(ctx context.Context, addresses []string) ([]CharacteristicValue, error)
	SetCharacteristics(ctx context.Context, values map[string]interface{}) error
}

// ClientConnector turns bridge connection configuration into a live
// RemoteClient. Injected into the Bridge so the core never reaches for
// transport state of its own.
type ClientConnector func(ctx context.Context, cfg BridgeConfig) (RemoteClient, error)

// BridgeConfig identifies the secondary bridge. All four fields are
// required; PairingData is the opaque artifact produced by the pairing
// utility, its internal shape belongs to the remote client.
type BridgeConfig struct {
	ID          string
	Address     string
	Port        int
	PairingData []byte
}

func (c BridgeConfig) missingFields() []string {
	var missing []string

	if c.ID == "" {
		missing = append(missing, "id")
	}

	if c.Address == "" {
		missing = append(missing, "address")
	}

	if c.Port == 0 {
		missing = append(missing, "port")
	}

	if len(c.PairingData) == 0 {
		missing = append(missing, "pairingData")
	}

	return missing
}

// Session holds the outcome of one connection attempt: the client and the
// accessory snapshot taken at connect time. Both are read only for the
// session's lifetime; a new snapshot requires a new ConnectSession call.
type Session struct {
	client RemoteClient
	graph  []Accessory
}

func (s *Session) Ready() bool {
	return s != nil && s.client != nil
}

func (s *Session) Client() RemoteClient {
	if !s.Ready() {
		return nil
	}

	return s.client
}

func (s *Session) Graph() []Accessory {
	if !s.Ready() {
		return nil
	}

	return s.graph
}

// ConnectSession fails softly: incomplete configuration, a connect or
// enumeration failure, or an empty accessory list all produce a degraded
// session rather than an error, so the caller always proceeds to
// reconciliation.
func ConnectSession(ctx context.Context, connector ClientConnector, cfg BridgeConfig, logger logwrap.Logger) *Session {
	if missing := cfg.missingFields(); len(missing) > 0 {
		logger.LogWarn(ctx, "Bridge configuration incomplete, continuing without remote connectivity.", logwrap.Datum("missing", missing))
		return &Session{}
	}

	if connector == nil {
		logger.LogWarn(ctx, "No remote client connector provided, continuing without remote connectivity.")
		return &Session{}
	}

	client, err := connector(ctx, cfg)
	if err != nil {
		logger.LogError(ctx, "Failed to connect to remote bridge.", logwrap.Err(err), logwrap.Datum("bridge", cfg.ID))
		return &Session{}
	}

	graph, err := client.GetAccessories(ctx)
	if err != nil {
		logger.LogError(ctx, "Failed to enumerate remote accessories.", logwrap.Err(err), logwrap.Datum("bridge", cfg.ID))
		return &Session{}
	}

	if len(graph) == 0 {
		logger.LogWarn(ctx, "Remote bridge returned no accessories, continuing without remote connectivity.", logwrap.Datum("bridge", cfg.ID))
		return &Session{}
	}

	logger.LogInfo(ctx, "Connected to remote bridge.", logwrap.Datum("bridge", cfg.ID), logwrap.Datum("accessories", len(graph)))

	return &Session{client: client, graph: graph}
}
