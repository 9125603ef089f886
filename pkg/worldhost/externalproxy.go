package worldhost

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/worldhost/server/pkg/geoip"
	"github.com/worldhost/server/pkg/session"
)

// externalProxyFile is one entry of external_proxies.json, per
// original_source/src/json_data.rs's ExternalProxy.
type externalProxyFile struct {
	LatLong  [2]float64 `json:"latLong"`
	Addr     *string    `json:"addr"`
	Port     uint16     `json:"port"`
	BaseAddr *string    `json:"baseAddr"`
	McPort   uint16     `json:"mcPort"`
}

const (
	defaultExternalProxyPort   = 9656
	defaultExternalProxyMcPort = 25565
)

// LoadExternalProxies parses external_proxies.json, returning the
// remote proxies (entries with Addr set) and, if present, the single
// entry describing this server's own location/baseAddr (Addr unset).
func LoadExternalProxies(r io.Reader) (remote []session.ExternalProxy, self *session.ExternalProxy, err error) {
	var entries []externalProxyFile
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, nil, err
	}

	var selfCount int
	for _, e := range entries {
		port := e.Port
		if port == 0 {
			port = defaultExternalProxyPort
		}
		mcPort := e.McPort
		if mcPort == 0 {
			mcPort = defaultExternalProxyMcPort
		}
		proxy := session.ExternalProxy{
			Port:   port,
			McPort: mcPort,
			Location: geoip.LatLong{
				Lat:  e.LatLong[0],
				Long: e.LatLong[1],
			},
		}
		if e.BaseAddr != nil {
			proxy.BaseAddr = *e.BaseAddr
		}

		if e.Addr == nil {
			selfCount++
			p := proxy
			self = &p
			continue
		}
		proxy.Host = *e.Addr
		remote = append(remote, proxy)
	}

	if selfCount > 1 {
		return nil, nil, fmt.Errorf("external_proxies.json must have no more than one entry missing addr")
	}
	return remote, self, nil
}
