package net

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	multiaddr "github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"
)

// APIVersion is the RPC path version the subnet API is served under.
const APIVersion = "v1"

const AuthorizationHeader = "Authorization"

// APIInfo locates a node API: a multiaddr or URL plus an optional token.
type APIInfo struct { // nolint
	Addr  string
	Token []byte
}

func NewAPIInfo(addr, token string) APIInfo {
	return APIInfo{
		Addr:  addr,
		Token: []byte(token),
	}
}

func (a APIInfo) AuthHeader() http.Header {
	if len(a.Token) != 0 {
		headers := http.Header{}
		headers.Add(AuthorizationHeader, "Bearer "+string(a.Token))
		return headers
	}

	return nil
}

// DialArgs turns a libp2p address into a ws/http endpoint. Plain URLs are
// used as is, with the RPC path appended.
func (a APIInfo) DialArgs(version string) (string, error) {
	ma, err := multiaddr.NewMultiaddr(a.Addr)
	if err == nil {
		_, addr, err := manet.DialArgs(ma)
		if err != nil {
			return "", fmt.Errorf("parser libp2p url fail %w", err)
		}

		for _, p := range []struct {
			code   int
			scheme string
		}{
			{multiaddr.P_WSS, "wss"},
			{multiaddr.P_HTTPS, "https"},
			{multiaddr.P_WS, "ws"},
			{multiaddr.P_HTTP, "http"},
		} {
			_, err = ma.ValueForProtocol(p.code)
			if err == nil {
				return p.scheme + "://" + addr + "/rpc/" + version, nil
			} else if err != multiaddr.ErrProtocolNotFound {
				return "", err
			}
		}

		return "ws://" + addr + "/rpc/" + version, nil
	}

	if _, err = url.Parse(a.Addr); err != nil {
		return "", fmt.Errorf("parser address fail %w", err)
	}

	return strings.TrimRight(a.Addr, "/") + "/rpc/" + version, nil
}
