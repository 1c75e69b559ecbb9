package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/25smoking/chanwatch/internal/config"
	"github.com/25smoking/chanwatch/internal/topology"
	"go.uber.org/zap"
)

// ErrUnavailable wraps every failure to obtain a topology from a registry.
var ErrUnavailable = errors.New("registry unavailable")

// Client is the source the scanner polls. QueryTopology may block; it must
// honour ctx cancellation.
type Client interface {
	Name() string
	QueryTopology(ctx context.Context) (*topology.Snapshot, error)
}

func unavailable(name string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, name, err)
}

// New 根据配置创建对应的注册中心客户端
func New(cfg config.RegistryConfig, log *zap.SugaredLogger) (Client, error) {
	switch cfg.Kind {
	case config.RegistryHost, "":
		return NewHost(cfg.Host, log), nil
	case config.RegistryConsul:
		return NewConsul(cfg.Consul, log)
	case config.RegistryFile:
		return NewFile(cfg.File.Path), nil
	default:
		return nil, fmt.Errorf("unknown registry kind %q", cfg.Kind)
	}
}
