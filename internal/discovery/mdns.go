package discovery

import (
	"context"
	"fmt"
	"net"
	"slices"
	"strconv"
	"sync"

	"github.com/grandcat/zeroconf"

	"github.com/meshkv/kvstore/internal/rpc"
)

const serviceName = "_kvstore._tcp"

// MDNS announces this node and discovers peers on the local network via
// mDNS. It implements PeerSpecSource: discovered addresses are reported as
// rpc.PeerSpec values through the onPeers callback passed to Start, for the
// caller to route into AddUpdatePeers or wherever else it sees fit.
type MDNS struct {
	nodeID  string
	port    int
	server  *zeroconf.Server
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	entries chan *zeroconf.ServiceEntry
}

// NewMDNS prepares an mDNS discovery source. bindAddr is this node's own
// RPC address in host:port form; its port is the one announced. Entries
// this node announced itself are filtered out by their node=nodeID TXT
// record.
func NewMDNS(nodeID, bindAddr string) (*MDNS, error) {
	_, portStr, err := net.SplitHostPort(bindAddr)
	if err != nil {
		return nil, fmt.Errorf("discovery: invalid bind addr: %w", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("discovery: invalid port: %w", err)
	}
	return &MDNS{nodeID: nodeID, port: port}, nil
}

// Start implements PeerSpecSource.
func (m *MDNS) Start(onPeers func([]rpc.PeerSpec)) error {
	server, err := zeroconf.Register(m.nodeID, serviceName, "local.", m.port, []string{
		"node=" + m.nodeID,
	}, nil)
	if err != nil {
		return fmt.Errorf("discovery: register: %w", err)
	}

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		server.Shutdown()
		return fmt.Errorf("discovery: resolver: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.server = server
	m.cancel = cancel
	m.entries = make(chan *zeroconf.ServiceEntry)

	m.wg.Add(1)
	go m.browseLoop(m.entries, onPeers)

	if err := resolver.Browse(ctx, serviceName, "local.", m.entries); err != nil {
		cancel()
		server.Shutdown()
		m.wg.Wait()
		return fmt.Errorf("discovery: browse: %w", err)
	}
	return nil
}

func (m *MDNS) browseLoop(entries <-chan *zeroconf.ServiceEntry, onPeers func([]rpc.PeerSpec)) {
	defer m.wg.Done()
	for entry := range entries {
		if m.isSelf(entry) {
			continue
		}
		specs := make([]rpc.PeerSpec, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
		for _, ip := range entry.AddrIPv4 {
			specs = append(specs, rpc.PeerSpec{Name: entry.Instance, Address: ip.String(), Port: entry.Port})
		}
		for _, ip := range entry.AddrIPv6 {
			specs = append(specs, rpc.PeerSpec{Name: entry.Instance, Address: ip.String(), Port: entry.Port})
		}
		if len(specs) > 0 {
			onPeers(specs)
		}
	}
}

func (m *MDNS) isSelf(entry *zeroconf.ServiceEntry) bool {
	return slices.Contains(entry.Text, "node="+m.nodeID)
}

// Stop implements PeerSpecSource.
func (m *MDNS) Stop() {
	if m == nil || m.cancel == nil {
		return
	}
	m.cancel()
	m.wg.Wait()
	m.server.Shutdown()
}
