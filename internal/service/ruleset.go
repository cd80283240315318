package service

import (
	"net/netip"
	"sort"

	"gopkg.in/yaml.v3"
)

// 直连规则集的顶层键
const (
	RuleSetKeyDomain = "domain_list"
	RuleSetKeyIP     = "ip_list"
)

// IsIPAddress 判断字符串是否为IPv4或IPv6字面量
// 全函数无副作用：任何无法解析的输入一律按主机名处理，从不报错
func IsIPAddress(s string) bool {
	_, err := netip.ParseAddr(s)
	return err == nil
}

// ExtractDirectHosts 从节点集合中提取应当直连的主机列表
// 启用中转的节点贡献其规则的relay_host，启用直连的节点贡献自身server；
// 仅收集分类结果与wantIP一致的条目，结果去重并按字典序升序排列
func ExtractDirectHosts(set *ResolvedNodeSet, wantIP bool) []string {
	hosts := make(map[string]bool)
	for _, node := range set.Nodes {
		if node.EnableRelay {
			for _, rule := range node.RelayRules {
				if rule.Enable && IsIPAddress(rule.RelayHost) == wantIP {
					hosts[rule.RelayHost] = true
				}
			}
		}
		if node.EnableDirect && IsIPAddress(node.Server) == wantIP {
			hosts[node.Server] = true
		}
	}

	out := make([]string, 0, len(hosts))
	for h := range hosts {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

// RenderRuleSet 将主机列表渲染为单顶层键的YAML文档
func RenderRuleSet(key string, hosts []string) ([]byte, error) {
	if hosts == nil {
		hosts = []string{}
	}
	return yaml.Marshal(map[string][]string{key: hosts})
}
