package pc

import "github.com/thesyncim/nativertc/internal/engine"

// IceServer is one STUN or TURN server entry.
type IceServer struct {
	URLs       []string
	Username   string
	Credential string
}

// Configuration holds the settings applied when the native peer connection
// is created. The zero value is usable; DefaultConfiguration adds a public
// STUN server.
type Configuration struct {
	IceServers []IceServer

	// IceTransportPolicy is "all" (default) or "relay".
	IceTransportPolicy string

	// BundlePolicy is "balanced" (default), "max-compat" or "max-bundle".
	BundlePolicy string

	IceCandidatePoolSize int
}

// DefaultConfiguration returns a configuration with a public STUN server.
func DefaultConfiguration() Configuration {
	return Configuration{
		IceServers: []IceServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		},
	}
}

func (c Configuration) toEngine() engine.PeerConnectionConfig {
	out := engine.PeerConnectionConfig{
		IceTransportPolicy:   c.IceTransportPolicy,
		BundlePolicy:         c.BundlePolicy,
		IceCandidatePoolSize: c.IceCandidatePoolSize,
	}
	for _, s := range c.IceServers {
		out.IceServers = append(out.IceServers, engine.IceServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}
	return out
}
