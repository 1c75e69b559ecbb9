package registry

import (
	"context"
	"fmt"
	stdnet "net"
	"strconv"

	"github.com/25smoking/chanwatch/internal/config"
	"github.com/25smoking/chanwatch/internal/topology"
	netutil "github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"
)

const (
	sockStream = 1
	sockDgram  = 2
)

// Host discovers processes that own sockets on the local machine. Listening
// sockets become input ports, outbound sockets output ports, and an outbound
// socket whose remote end is a local listener becomes a connection.
type Host struct {
	cfg config.HostConfig
	log *zap.SugaredLogger

	connections func(ctx context.Context) ([]netutil.ConnectionStat, error)
	localAddrs  func(ctx context.Context) (map[string]bool, error)
	procInfo    func(ctx context.Context, pid int32) (name, exe string)
}

func NewHost(cfg config.HostConfig, log *zap.SugaredLogger) *Host {
	return &Host{
		cfg:         cfg,
		log:         log,
		connections: hostConnections,
		localAddrs:  hostAddrs,
		procInfo:    hostProcInfo,
	}
}

func (h *Host) Name() string {
	return "host"
}

func (h *Host) QueryTopology(ctx context.Context) (*topology.Snapshot, error) {
	conns, err := h.connections(ctx)
	if err != nil {
		return nil, unavailable(h.Name(), err)
	}
	local, err := h.localAddrs(ctx)
	if err != nil {
		return nil, unavailable(h.Name(), err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return h.build(ctx, conns, local), nil
}

// listener is one listening address. Pre-fork servers share it between
// several pids, each with its own port.
type listener struct {
	ports map[int32]topology.PortID
}

func (l listener) owns(pid int32) bool {
	_, ok := l.ports[pid]
	return ok
}

// target is the port of the lowest pid, so connections are stable across scans.
func (l listener) target() topology.PortID {
	first := int32(-1)
	for pid := range l.ports {
		if first < 0 || pid < first {
			first = pid
		}
	}
	return l.ports[first]
}

func (h *Host) build(ctx context.Context, conns []netutil.ConnectionStat, local map[string]bool) *topology.Snapshot {
	b := topology.NewBuilder()
	names := make(map[int32]string)

	entityFor := func(pid int32) string {
		if n, ok := names[pid]; ok {
			return n
		}
		name, exe := h.procInfo(ctx, pid)
		if name == "" {
			name = "Unknown"
		}
		n := fmt.Sprintf("%s[%d]", name, pid)
		tags := map[string]string{"pid": strconv.Itoa(int(pid))}
		if exe != "" {
			tags["exe"] = exe
		}
		b.AddEntity(n, tags)
		names[pid] = n
		return n
	}

	// 1. Listeners. Keyed by "ip:port" and "*:port" for wildcard binds.
	listeners := make(map[string]listener)
	for _, c := range conns {
		if c.Pid == 0 || !isListener(c) {
			continue
		}
		proto := protoOf(c)
		ent := entityFor(c.Pid)
		id := b.AddPort(ent, fmt.Sprintf("%s:%d", proto, c.Laddr.Port), topology.Input, proto)

		key := listenKey(proto, c.Laddr.IP, c.Laddr.Port)
		l, ok := listeners[key]
		if !ok {
			l = listener{ports: make(map[int32]topology.PortID)}
			listeners[key] = l
		}
		l.ports[c.Pid] = id
	}

	// 2. Outbound sockets.
	for _, c := range conns {
		if c.Pid == 0 || isListener(c) || c.Raddr.Port == 0 {
			continue
		}
		proto := protoOf(c)

		// The accepted side of an inbound connection shares the listener's port.
		if l, ok := lookupListener(listeners, proto, c.Laddr.IP, c.Laddr.Port, local); ok && l.owns(c.Pid) {
			continue
		}

		remoteLocal := local[c.Raddr.IP] || isLoopback(c.Raddr.IP)
		if !remoteLocal && !h.cfg.IncludeRemote {
			continue
		}

		ent := entityFor(c.Pid)
		out := b.AddPort(ent, fmt.Sprintf("%s:%d", proto, c.Laddr.Port), topology.Output, proto)
		live := c.Status == "ESTABLISHED" || proto == "udp"

		if remoteLocal {
			if l, ok := lookupListener(listeners, proto, c.Raddr.IP, c.Raddr.Port, local); ok {
				b.Connect(out, l.target(), live)
			}
			continue
		}

		// 外部地址作为独立实体
		remote := "net:" + c.Raddr.IP
		b.AddEntity(remote, map[string]string{"remote": "true"})
		in := b.AddPort(remote, strconv.Itoa(int(c.Raddr.Port)), topology.Bidirectional, proto)
		b.Connect(out, in, live)
	}

	s := b.Build()
	if h.log != nil {
		ents, edges := s.Len()
		h.log.Debugw("host topology built", "sockets", len(conns), "entities", ents, "listeners", len(listeners), "connections", edges)
	}
	return s
}

func isListener(c netutil.ConnectionStat) bool {
	if c.Type == sockDgram {
		return c.Raddr.Port == 0
	}
	return c.Status == "LISTEN"
}

func protoOf(c netutil.ConnectionStat) string {
	if c.Type == sockDgram {
		return "udp"
	}
	return "tcp"
}

func listenKey(proto, ip string, port uint32) string {
	if isWildcard(ip) {
		ip = "*"
	}
	return fmt.Sprintf("%s|%s:%d", proto, ip, port)
}

func lookupListener(listeners map[string]listener, proto, ip string, port uint32, local map[string]bool) (listener, bool) {
	if l, ok := listeners[listenKey(proto, ip, port)]; ok {
		return l, true
	}
	if local[ip] || isLoopback(ip) {
		l, ok := listeners[listenKey(proto, "*", port)]
		return l, ok
	}
	return listener{}, false
}

func isWildcard(ip string) bool {
	return ip == "" || ip == "*" || ip == "0.0.0.0" || ip == "::"
}

func isLoopback(ip string) bool {
	parsed := stdnet.ParseIP(ip)
	return parsed != nil && parsed.IsLoopback()
}

func hostConnections(ctx context.Context) ([]netutil.ConnectionStat, error) {
	return netutil.ConnectionsWithContext(ctx, "inet")
}

func hostAddrs(ctx context.Context) (map[string]bool, error) {
	ifaces, err := netutil.InterfacesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	addrs := make(map[string]bool)
	for _, iface := range ifaces {
		for _, a := range iface.Addrs {
			ip, _, err := stdnet.ParseCIDR(a.Addr)
			if err != nil {
				continue
			}
			addrs[ip.String()] = true
		}
	}
	return addrs, nil
}

func hostProcInfo(ctx context.Context, pid int32) (string, string) {
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return "", ""
	}
	name, _ := p.NameWithContext(ctx)
	exe, _ := p.ExeWithContext(ctx)
	return name, exe
}
