package chain

import (
	"errors"
	"sort"

	"crossid/internal/config"
	"crossid/internal/usecase"
)

// Registry holds one gateway per configured chain. Gateways are injected at
// construction so tests can substitute fakes per chain independently.
type Registry struct {
	gateways map[string]usecase.ChainGateway
}

func NewRegistry(gateways []usecase.ChainGateway) (*Registry, error) {
	index := make(map[string]usecase.ChainGateway, len(gateways))
	for _, gw := range gateways {
		if gw == nil {
			return nil, errors.New("gateway is nil")
		}
		name := gw.ChainName()
		if name == "" {
			return nil, errors.New("gateway chain name is required")
		}
		if _, exists := index[name]; exists {
			return nil, errors.New("duplicate gateway for chain: " + name)
		}
		index[name] = gw
	}
	return &Registry{gateways: index}, nil
}

func NewRegistryFromConfig(cfg config.Config) (*Registry, error) {
	timeout := cfg.ChainCallTimeout()
	gateways := make([]usecase.ChainGateway, 0, len(cfg.Chains))
	for _, chainCfg := range cfg.Chains {
		gateways = append(gateways, NewGateway(chainCfg, timeout))
	}
	return NewRegistry(gateways)
}

func (r *Registry) Gateway(chainID string) (usecase.ChainGateway, bool) {
	if r == nil {
		return nil, false
	}
	gw, ok := r.gateways[chainID]
	return gw, ok
}

func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.gateways))
	for name := range r.gateways {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var _ usecase.GatewayRegistry = (*Registry)(nil)
