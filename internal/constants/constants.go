package constants

// 节点协议类型
const (
	NodeTypeSS     = "ss"
	NodeTypeVmess  = "vmess"
	NodeTypeTrojan = "trojan"
)

// NodeTypeSet 全部已知的节点协议类型
var NodeTypeSet = map[string]bool{
	NodeTypeSS:     true,
	NodeTypeVmess:  true,
	NodeTypeTrojan: true,
}

// NodeTimeout 节点心跳超时时间（秒），超过该间隔未上报心跳视为离线
const NodeTimeout = 75

// 中转规则的监听/传输类型
const (
	ListenRaw = "raw"
	ListenWS  = "ws"
	ListenWSS = "wss"
)

// ListenTypeSet 全部已知的监听/传输类型
var ListenTypeSet = map[string]bool{
	ListenRaw: true,
	ListenWS:  true,
	ListenWSS: true,
}

// CountrySet 节点地区代码
var CountrySet = map[string]bool{
	"US": true, "CN": true, "GB": true, "SG": true, "TW": true,
	"HK": true, "JP": true, "FR": true, "DE": true, "KR": true,
	"JE": true, "NZ": true, "MX": true, "CA": true, "BR": true,
	"CU": true, "CZ": true, "EG": true, "FI": true, "GR": true,
	"GU": true, "IS": true, "MO": true, "NL": true, "NO": true,
	"PL": true, "IT": true, "IE": true, "AR": true, "PT": true,
	"AU": true, "RU": true, "CF": true,
}
