// Package lan advertises a running board host on the local network and
// lets secondary processes find it without typing an address.
package lan

import (
	"fmt"
	"os"

	"github.com/hashicorp/mdns"
)

const serviceType = "_drawroom._tcp"

// Advertise registers this host's board server over mDNS. Callers shut the
// returned server down when the process exits.
func Advertise(port int) (*mdns.Server, error) {
	host, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("lan: hostname: %w", err)
	}
	service, err := mdns.NewMDNSService(host, serviceType, "", "", port, nil, []string{"drawroom"})
	if err != nil {
		return nil, fmt.Errorf("lan: mdns service: %w", err)
	}
	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, fmt.Errorf("lan: mdns server: %w", err)
	}
	return server, nil
}

// Discover browses for advertised hosts and invokes found with each
// host:port it hears. It returns when the lookup window closes.
func Discover(found func(addr string)) error {
	entries := make(chan *mdns.ServiceEntry, 8)
	go func() {
		for e := range entries {
			if e.AddrV4 == nil || e.Port == 0 {
				continue
			}
			found(fmt.Sprintf("%s:%d", e.AddrV4.String(), e.Port))
		}
	}()
	return mdns.Lookup(serviceType, entries)
}
