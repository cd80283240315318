package service

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"nebulapanel/internal/constants"
	"nebulapanel/internal/repository"
)

// ClientKind 订阅输出的客户端格式
type ClientKind string

const (
	// ClientShadowrocket 纯链接列表，每行一条订阅链接
	ClientShadowrocket ClientKind = "shadowrocket"
	// ClientClash Clash配置文档
	ClientClash ClientKind = "clash"
	// ClientClashProvider Clash proxy-provider文档，通过URL被主配置引用
	ClientClashProvider ClientKind = "clash_provider"
)

// clientKindRules 客户端描述串的推断规则，按顺序匹配，首个命中生效
var clientKindRules = []struct {
	substr string
	kind   ClientKind
}{
	{"clash", ClientClash},
	{"stash", ClientClash},
	{"sing-box", ClientClash},
	{"shadowrocket", ClientShadowrocket},
}

// InferClientKind 从自由文本的客户端描述（client参数或User-Agent）推断输出格式
// 推断是尽力而为的：无法识别时回退到通用的链接列表格式
func InferClientKind(descriptor string) ClientKind {
	d := strings.ToLower(descriptor)
	for _, rule := range clientKindRules {
		if strings.Contains(d, rule.substr) {
			return rule.kind
		}
	}
	return ClientShadowrocket
}

// ParseClientKind 解析显式指定的客户端格式，无法识别时退回推断
func ParseClientKind(s string) (ClientKind, bool) {
	switch ClientKind(s) {
	case ClientShadowrocket, ClientClash, ClientClashProvider:
		return ClientKind(s), true
	}
	return "", false
}

// UnsupportedProtocolError 节点协议在目标客户端格式下没有序列化规则
// 必须是硬错误而不能静默丢弃节点，调用方据此提示用户
type UnsupportedProtocolError struct {
	NodeName string
	NodeType string
	Client   ClientKind
}

func (e *UnsupportedProtocolError) Error() string {
	return fmt.Sprintf("节点 %s 的协议 %s 不支持客户端格式 %s", e.NodeName, e.NodeType, e.Client)
}

// CompileSubscription 将解析出的节点集合序列化为目标客户端格式
// 纯函数：相同输入产生字节级一致的输出
func CompileSubscription(set *ResolvedNodeSet, kind ClientKind) ([]byte, error) {
	nodes := set.Nodes
	if set.Unavailable {
		// 占位节点：保证客户端拿到的永远是可解析的非空文档
		nodes = []*repository.ProxyNode{placeholderNode(set.Reason)}
	}

	switch kind {
	case ClientShadowrocket:
		return compileLinks(nodes, kind)
	case ClientClash:
		return compileClash(nodes, false)
	case ClientClashProvider:
		return compileClash(nodes, true)
	default:
		return nil, fmt.Errorf("未知的客户端格式: %s", kind)
	}
}

// placeholderNode 构造“无可用节点”占位节点
func placeholderNode(reason string) *repository.ProxyNode {
	return &repository.ProxyNode{
		Name:     reason,
		NodeType: constants.NodeTypeSS,
		Server:   "127.0.0.1",
		Port:     443,
		Method:   "chacha20-ietf-poly1305",
		Password: "0",
	}
}

// compileLinks 生成链接列表，每个节点一行，顺序与输入一致
func compileLinks(nodes []*repository.ProxyNode, kind ClientKind) ([]byte, error) {
	var buf bytes.Buffer
	for _, node := range nodes {
		link, err := nodeLink(node, kind)
		if err != nil {
			return nil, err
		}
		buf.WriteString(link)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// nodeLink 按协议生成订阅链接
func nodeLink(node *repository.ProxyNode, kind ClientKind) (string, error) {
	switch node.NodeType {
	case constants.NodeTypeSS:
		return ssLink(node), nil
	case constants.NodeTypeVmess:
		return vmessLink(node)
	case constants.NodeTypeTrojan:
		return trojanLink(node), nil
	default:
		return "", &UnsupportedProtocolError{NodeName: node.Name, NodeType: node.NodeType, Client: kind}
	}
}

// ssLink SIP002格式：ss://base64url(method:password)@server:port#name
func ssLink(node *repository.ProxyNode) string {
	userinfo := base64.RawURLEncoding.EncodeToString([]byte(node.Method + ":" + node.Password))
	return fmt.Sprintf("ss://%s@%s:%d#%s", userinfo, node.Server, node.Port, url.PathEscape(node.Name))
}

// vmessQRCode vmess链接内嵌的JSON结构（v2rayN格式）
type vmessQRCode struct {
	V    string `json:"v"`
	Ps   string `json:"ps"`
	Add  string `json:"add"`
	Port string `json:"port"`
	ID   string `json:"id"`
	Aid  string `json:"aid"`
	Net  string `json:"net"`
	Type string `json:"type"`
	Host string `json:"host"`
	Path string `json:"path"`
	TLS  string `json:"tls"`
}

// vmessLink vmess://base64(json)
func vmessLink(node *repository.ProxyNode) (string, error) {
	network := node.Network.String
	if network == "" {
		network = "tcp"
	}
	tls := ""
	if node.TLS {
		tls = "tls"
	}
	qr := vmessQRCode{
		V:    "2",
		Ps:   node.Name,
		Add:  node.Server,
		Port: strconv.Itoa(node.Port),
		ID:   node.VmessUUID.String,
		Aid:  strconv.Itoa(node.AlterID),
		Net:  network,
		Type: "none",
		Host: node.WsHost.String,
		Path: node.WsPath.String,
		TLS:  tls,
	}
	raw, err := json.Marshal(qr)
	if err != nil {
		return "", err
	}
	return "vmess://" + base64.StdEncoding.EncodeToString(raw), nil
}

// trojanLink trojan://password@server:port?sni=...#name
func trojanLink(node *repository.ProxyNode) string {
	link := fmt.Sprintf("trojan://%s@%s:%d", url.QueryEscape(node.Password), node.Server, node.Port)
	if node.TrojanSNI.String != "" {
		link += "?sni=" + url.QueryEscape(node.TrojanSNI.String)
	}
	return link + "#" + url.PathEscape(node.Name)
}

// clashProxy Clash配置中的单个proxy记录
// 字段顺序固定，保证输出字节级稳定
type clashProxy struct {
	Name           string            `yaml:"name"`
	Type           string            `yaml:"type"`
	Server         string            `yaml:"server"`
	Port           int               `yaml:"port"`
	Cipher         string            `yaml:"cipher,omitempty"`
	Password       string            `yaml:"password,omitempty"`
	UUID           string            `yaml:"uuid,omitempty"`
	AlterID        *int              `yaml:"alterId,omitempty"`
	UDP            bool              `yaml:"udp"`
	TLS            bool              `yaml:"tls,omitempty"`
	SNI            string            `yaml:"sni,omitempty"`
	Network        string            `yaml:"network,omitempty"`
	WSOpts         *clashWSOpts      `yaml:"ws-opts,omitempty"`
}

type clashWSOpts struct {
	Path string `yaml:"path"`
	Host string `yaml:"host,omitempty"`
}

// clashDocument Clash主配置文档
type clashDocument struct {
	MixedPort   int            `yaml:"mixed-port"`
	Mode        string         `yaml:"mode"`
	Proxies     []clashProxy   `yaml:"proxies"`
	ProxyGroups []clashGroup   `yaml:"proxy-groups"`
}

type clashGroup struct {
	Name    string   `yaml:"name"`
	Type    string   `yaml:"type"`
	Proxies []string `yaml:"proxies"`
}

// clashProviderDocument Clash proxy-provider文档，只含proxies列表
type clashProviderDocument struct {
	Proxies []clashProxy `yaml:"proxies"`
}

// compileClash 生成Clash配置或provider文档
func compileClash(nodes []*repository.ProxyNode, provider bool) ([]byte, error) {
	proxies := make([]clashProxy, 0, len(nodes))
	names := make([]string, 0, len(nodes))
	for _, node := range nodes {
		p, err := clashProxyRecord(node, provider)
		if err != nil {
			return nil, err
		}
		proxies = append(proxies, p)
		names = append(names, node.Name)
	}

	var doc interface{}
	if provider {
		doc = clashProviderDocument{Proxies: proxies}
	} else {
		doc = clashDocument{
			MixedPort: 7890,
			Mode:      "rule",
			Proxies:   proxies,
			ProxyGroups: []clashGroup{
				{Name: "PROXY", Type: "select", Proxies: names},
			},
		}
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// clashProxyRecord 按协议生成Clash proxy记录
func clashProxyRecord(node *repository.ProxyNode, provider bool) (clashProxy, error) {
	kind := ClientClash
	if provider {
		kind = ClientClashProvider
	}

	p := clashProxy{
		Name:   node.Name,
		Server: node.Server,
		Port:   node.Port,
		UDP:    true,
	}

	switch node.NodeType {
	case constants.NodeTypeSS:
		p.Type = "ss"
		p.Cipher = node.Method
		p.Password = node.Password
	case constants.NodeTypeVmess:
		p.Type = "vmess"
		p.UUID = node.VmessUUID.String
		aid := node.AlterID
		p.AlterID = &aid
		p.Cipher = "auto"
		p.TLS = node.TLS
		if node.Network.String == "ws" {
			p.Network = "ws"
			p.WSOpts = &clashWSOpts{Path: node.WsPath.String, Host: node.WsHost.String}
		}
	case constants.NodeTypeTrojan:
		p.Type = "trojan"
		p.Password = node.Password
		p.SNI = node.TrojanSNI.String
	default:
		return clashProxy{}, &UnsupportedProtocolError{NodeName: node.Name, NodeType: node.NodeType, Client: kind}
	}
	return p, nil
}
