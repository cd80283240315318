package service

import (
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"nebulapanel/internal/repository"
)

func ssNode(name, server string, port int) *repository.ProxyNode {
	return &repository.ProxyNode{
		Name:     name,
		NodeType: "ss",
		Server:   server,
		Port:     port,
		Method:   "aes-128-gcm",
		Password: "pass123",
		Country:  "HK",
	}
}

func vmessNode(name string) *repository.ProxyNode {
	return &repository.ProxyNode{
		Name:      name,
		NodeType:  "vmess",
		Server:    "v.example.com",
		Port:      443,
		VmessUUID: sql.NullString{String: "b831381d-6324-4d53-ad4f-8cda48b30811", Valid: true},
		AlterID:   0,
		Network:   sql.NullString{String: "ws", Valid: true},
		WsPath:    sql.NullString{String: "/ray", Valid: true},
		TLS:       true,
	}
}

func TestInferClientKind(t *testing.T) {
	tests := []struct {
		descriptor string
		want       ClientKind
	}{
		{"ClashX/1.95.1", ClientClash},
		{"clash-verge/v1.3.8", ClientClash},
		{"Stash/2.5.0", ClientClash},
		{"sing-box 1.8.0", ClientClash},
		{"Shadowrocket/1993", ClientShadowrocket},
		{"Quantumult%20X/1.0", ClientShadowrocket},
		{"", ClientShadowrocket},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, InferClientKind(tt.descriptor), "descriptor=%q", tt.descriptor)
	}
}

func TestParseClientKind(t *testing.T) {
	kind, ok := ParseClientKind("clash")
	require.True(t, ok)
	require.Equal(t, ClientClash, kind)

	_, ok = ParseClientKind("surge")
	require.False(t, ok)

	_, ok = ParseClientKind("")
	require.False(t, ok)
}

func TestCompileLinksOrderAndCount(t *testing.T) {
	set := &ResolvedNodeSet{Nodes: []*repository.ProxyNode{
		ssNode("HK-01", "1.2.3.4", 8388),
		ssNode("HK-02", "5.6.7.8", 8388),
		vmessNode("JP-01"),
	}}

	payload, err := CompileSubscription(set, ClientShadowrocket)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(string(payload), "\n"), "\n")
	require.Len(t, lines, 3)
	require.Contains(t, lines[0], "@1.2.3.4:8388#HK-01")
	require.Contains(t, lines[1], "@5.6.7.8:8388#HK-02")
	require.True(t, strings.HasPrefix(lines[2], "vmess://"))
}

func TestSSLinkUserinfo(t *testing.T) {
	link := ssLink(ssNode("HK-01", "1.2.3.4", 8388))
	require.True(t, strings.HasPrefix(link, "ss://"))

	userinfo := strings.TrimPrefix(link, "ss://")
	userinfo = userinfo[:strings.Index(userinfo, "@")]
	decoded, err := base64.RawURLEncoding.DecodeString(userinfo)
	require.NoError(t, err)
	require.Equal(t, "aes-128-gcm:pass123", string(decoded))
}

func TestVmessLinkPayload(t *testing.T) {
	link, err := vmessLink(vmessNode("JP-01"))
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(link, "vmess://"))
	require.NoError(t, err)

	var qr map[string]string
	require.NoError(t, json.Unmarshal(raw, &qr))
	require.Equal(t, "2", qr["v"])
	require.Equal(t, "JP-01", qr["ps"])
	require.Equal(t, "v.example.com", qr["add"])
	require.Equal(t, "443", qr["port"])
	require.Equal(t, "b831381d-6324-4d53-ad4f-8cda48b30811", qr["id"])
	require.Equal(t, "ws", qr["net"])
	require.Equal(t, "/ray", qr["path"])
	require.Equal(t, "tls", qr["tls"])
}

func TestTrojanLink(t *testing.T) {
	node := &repository.ProxyNode{
		Name:      "US-01",
		NodeType:  "trojan",
		Server:    "t.example.com",
		Port:      443,
		Password:  "secret",
		TrojanSNI: sql.NullString{String: "cdn.example.com", Valid: true},
	}
	link := trojanLink(node)
	require.Equal(t, "trojan://secret@t.example.com:443?sni=cdn.example.com#US-01", link)
}

func TestCompileClashDocument(t *testing.T) {
	set := &ResolvedNodeSet{Nodes: []*repository.ProxyNode{
		ssNode("HK-01", "1.2.3.4", 8388),
		vmessNode("JP-01"),
	}}

	payload, err := CompileSubscription(set, ClientClash)
	require.NoError(t, err)

	var doc struct {
		MixedPort int `yaml:"mixed-port"`
		Proxies   []struct {
			Name   string `yaml:"name"`
			Type   string `yaml:"type"`
			Server string `yaml:"server"`
			Port   int    `yaml:"port"`
		} `yaml:"proxies"`
		ProxyGroups []struct {
			Name    string   `yaml:"name"`
			Proxies []string `yaml:"proxies"`
		} `yaml:"proxy-groups"`
	}
	require.NoError(t, yaml.Unmarshal(payload, &doc))

	require.Len(t, doc.Proxies, 2)
	require.Equal(t, "HK-01", doc.Proxies[0].Name)
	require.Equal(t, "ss", doc.Proxies[0].Type)
	require.Equal(t, "JP-01", doc.Proxies[1].Name)
	require.Equal(t, "vmess", doc.Proxies[1].Type)

	require.Len(t, doc.ProxyGroups, 1)
	require.Equal(t, []string{"HK-01", "JP-01"}, doc.ProxyGroups[0].Proxies)
}

func TestCompileClashProviderDocument(t *testing.T) {
	set := &ResolvedNodeSet{Nodes: []*repository.ProxyNode{
		ssNode("HK-01", "1.2.3.4", 8388),
	}}

	payload, err := CompileSubscription(set, ClientClashProvider)
	require.NoError(t, err)

	var doc map[string]interface{}
	require.NoError(t, yaml.Unmarshal(payload, &doc))

	// provider文档只含proxies列表
	require.Len(t, doc, 1)
	require.Contains(t, doc, "proxies")
}

func TestCompileDeterministic(t *testing.T) {
	set := &ResolvedNodeSet{Nodes: []*repository.ProxyNode{
		ssNode("HK-01", "1.2.3.4", 8388),
		vmessNode("JP-01"),
	}}

	for _, kind := range []ClientKind{ClientShadowrocket, ClientClash, ClientClashProvider} {
		first, err := CompileSubscription(set, kind)
		require.NoError(t, err)
		second, err := CompileSubscription(set, kind)
		require.NoError(t, err)
		require.Equal(t, first, second, "kind=%s", kind)
	}
}

func TestCompileUnsupportedProtocol(t *testing.T) {
	set := &ResolvedNodeSet{Nodes: []*repository.ProxyNode{
		ssNode("HK-01", "1.2.3.4", 8388),
		{Name: "WG-01", NodeType: "wireguard", Server: "9.9.9.9", Port: 51820},
	}}

	for _, kind := range []ClientKind{ClientShadowrocket, ClientClash, ClientClashProvider} {
		_, err := CompileSubscription(set, kind)
		require.Error(t, err, "kind=%s", kind)

		var unsupported *UnsupportedProtocolError
		require.ErrorAs(t, err, &unsupported)
		require.Equal(t, "WG-01", unsupported.NodeName)
		require.Equal(t, "wireguard", unsupported.NodeType)
	}
}

func TestCompileUnavailablePlaceholder(t *testing.T) {
	set := &ResolvedNodeSet{Unavailable: true, Reason: "当前没有可用节点"}

	payload, err := CompileSubscription(set, ClientShadowrocket)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(payload), "\n"), "\n")
	require.Len(t, lines, 1)
	require.True(t, strings.HasPrefix(lines[0], "ss://"))

	payload, err = CompileSubscription(set, ClientClash)
	require.NoError(t, err)

	var doc struct {
		Proxies []struct {
			Name string `yaml:"name"`
		} `yaml:"proxies"`
	}
	require.NoError(t, yaml.Unmarshal(payload, &doc))
	require.Len(t, doc.Proxies, 1)
	require.Equal(t, "当前没有可用节点", doc.Proxies[0].Name)
}
