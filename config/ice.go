package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pion/webrtc/v4"
)

// ICE lists the STUN/TURN servers handed to browsers for their peer connections.
type ICE struct {
	Servers []ICEServer `yaml:"servers"`

	parsed []webrtc.ICEServer
}

type ICEServer struct {
	URLs       []string `yaml:"urls"`
	Username   string   `yaml:"username"`
	Credential string   `yaml:"credential"`
}

// WebRTC returns the validated servers in the pion shape that serializes to
// the browser RTCIceServer JSON.
func (i *ICE) WebRTC() []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, len(i.parsed))
	copy(out, i.parsed)
	return out
}

func (i *ICE) validate() error {
	i.parsed = i.parsed[:0]
	for n, s := range i.Servers {
		urls := make([]string, 0, len(s.URLs))
		for _, u := range s.URLs {
			if u = strings.TrimSpace(u); u != "" {
				urls = append(urls, u)
			}
		}
		server := webrtc.ICEServer{
			URLs:     urls,
			Username: strings.TrimSpace(s.Username),
		}
		if strings.TrimSpace(s.Credential) != "" {
			server.Credential = s.Credential
		}
		if err := validateICEServer(server); err != nil {
			return fmt.Errorf("servers[%d]: %w", n, err)
		}
		i.parsed = append(i.parsed, server)
	}
	return nil
}

func validateICEServer(server webrtc.ICEServer) error {
	if len(server.URLs) == 0 {
		return errors.New("missing urls")
	}

	turn := false
	for _, url := range server.URLs {
		switch {
		case strings.HasPrefix(url, "stun:"), strings.HasPrefix(url, "stuns:"):
		case strings.HasPrefix(url, "turn:"), strings.HasPrefix(url, "turns:"):
			turn = true
		default:
			return fmt.Errorf("unsupported url scheme: %q", url)
		}
	}
	if !turn {
		return nil
	}

	if server.Username == "" {
		return errors.New("turn urls require username")
	}
	if cred, ok := server.Credential.(string); !ok || cred == "" {
		return errors.New("turn urls require credential")
	}
	return nil
}
