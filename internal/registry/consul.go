package registry

import (
	"context"
	"fmt"
	"sort"

	"github.com/25smoking/chanwatch/internal/config"
	"github.com/25smoking/chanwatch/internal/topology"
	consulapi "github.com/hashicorp/consul/api"
	"go.uber.org/zap"
)

// Consul reads the service catalog. Every service is an entity and every
// instance port a bidirectional port; Connect proxy upstreams become
// connections from the proxied service to the upstream service.
type Consul struct {
	catalog    *consulapi.Catalog
	datacenter string
	log        *zap.SugaredLogger
}

func NewConsul(cfg config.ConsulConfig, log *zap.SugaredLogger) (*Consul, error) {
	apiCfg := consulapi.DefaultConfig()
	if cfg.Address != "" {
		apiCfg.Address = cfg.Address
	}
	if cfg.Scheme != "" {
		apiCfg.Scheme = cfg.Scheme
	}
	if cfg.Datacenter != "" {
		apiCfg.Datacenter = cfg.Datacenter
	}
	if cfg.Token != "" {
		apiCfg.Token = cfg.Token
	}

	client, err := consulapi.NewClient(apiCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create consul client: %w", err)
	}

	return &Consul{
		catalog:    client.Catalog(),
		datacenter: cfg.Datacenter,
		log:        log,
	}, nil
}

func (c *Consul) Name() string {
	return "consul"
}

func (c *Consul) QueryTopology(ctx context.Context) (*topology.Snapshot, error) {
	q := (&consulapi.QueryOptions{Datacenter: c.datacenter}).WithContext(ctx)

	services, _, err := c.catalog.Services(q)
	if err != nil {
		return nil, unavailable(c.Name(), err)
	}

	names := make([]string, 0, len(services))
	for name := range services {
		names = append(names, name)
	}
	sort.Strings(names)

	entries := make(map[string][]*consulapi.CatalogService, len(names))
	for _, name := range names {
		svc, _, err := c.catalog.Service(name, "", q)
		if err != nil {
			return nil, unavailable(c.Name(), fmt.Errorf("service %s: %w", name, err))
		}
		entries[name] = svc
	}

	return c.build(names, entries), nil
}

func (c *Consul) build(names []string, entries map[string][]*consulapi.CatalogService) *topology.Snapshot {
	b := topology.NewBuilder()

	// First port of each service, used as the target of upstream connections.
	primary := make(map[string]topology.PortID)

	for _, name := range names {
		for _, inst := range entries[name] {
			if isConnectProxy(inst) {
				continue
			}
			tags := make(map[string]string, len(inst.ServiceTags)+len(inst.ServiceMeta))
			for _, t := range inst.ServiceTags {
				tags["tag:"+t] = "true"
			}
			for k, v := range inst.ServiceMeta {
				tags[k] = v
			}
			b.AddEntity(name, tags)

			protocol := inst.ServiceMeta["protocol"]
			if protocol == "" {
				protocol = "tcp"
			}
			portName := fmt.Sprintf("%s:%d", inst.ServiceID, inst.ServicePort)
			id := b.AddPort(name, portName, topology.Bidirectional, protocol)
			if cur, ok := primary[name]; !ok || id < cur {
				primary[name] = id
			}
		}
	}

	for _, name := range names {
		for _, inst := range entries[name] {
			if !isConnectProxy(inst) {
				continue
			}
			owner := inst.ServiceProxy.DestinationServiceName
			if _, ok := primary[owner]; !ok {
				continue
			}
			for _, up := range inst.ServiceProxy.Upstreams {
				target, ok := primary[up.DestinationName]
				if !ok {
					if c.log != nil {
						c.log.Debugw("upstream target not in catalog", "service", owner, "upstream", up.DestinationName)
					}
					continue
				}
				out := b.AddPort(owner, fmt.Sprintf("upstream:%s", up.DestinationName), topology.Output, "connect")
				b.Connect(out, target, true)
			}
		}
	}

	return b.Build()
}

// isConnectProxy reports whether a catalog entry is a sidecar for another service.
func isConnectProxy(inst *consulapi.CatalogService) bool {
	return inst.ServiceProxy != nil && inst.ServiceProxy.DestinationServiceName != ""
}
