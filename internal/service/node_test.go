package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"nebulapanel/internal/repository"
)

type fakeUserRepo struct {
	repository.UserRepository
	bySubUID map[string]*repository.User
}

func (f *fakeUserRepo) GetBySubUID(_ context.Context, subUID string) (*repository.User, error) {
	user, ok := f.bySubUID[subUID]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return user, nil
}

type fakeActiveNodeRepo struct {
	repository.ProxyNodeRepository
	active []*repository.ProxyNode
}

func (f *fakeActiveNodeRepo) GetActiveByLevel(_ context.Context, level int64) ([]*repository.ProxyNode, error) {
	out := make([]*repository.ProxyNode, 0, len(f.active))
	for _, n := range f.active {
		if n.Level <= level {
			out = append(out, n)
		}
	}
	return out, nil
}

type fakeEnabledRuleRepo struct {
	repository.RelayRuleRepository
	rules []*repository.RelayRule
}

func (f *fakeEnabledRuleRepo) GetEnabledByProxyNodeIDs(_ context.Context, nodeIDs []int64) ([]*repository.RelayRule, error) {
	want := make(map[int64]bool, len(nodeIDs))
	for _, id := range nodeIDs {
		want[id] = true
	}
	out := make([]*repository.RelayRule, 0, len(f.rules))
	for _, r := range f.rules {
		if r.Enable && want[r.ProxyNodeID] {
			out = append(out, r)
		}
	}
	return out, nil
}

const testSubUID = "6ba7b810-9dad-11d1-80b4-00c04fd430c8"

func newResolverFixture() NodeService {
	userRepo := &fakeUserRepo{bySubUID: map[string]*repository.User{
		testSubUID: {ID: 1, Username: "alice", SubUID: testSubUID, Level: 1},
	}}
	nodeRepo := &fakeActiveNodeRepo{active: []*repository.ProxyNode{
		{ID: 1, Name: "HK-01", NodeType: "ss", Country: "HK", NativeIP: true, Level: 0, Sequence: 1},
		{ID: 2, Name: "JP-01", NodeType: "vmess", Country: "JP", NativeIP: false, Level: 1, Sequence: 2, EnableRelay: true},
		{ID: 3, Name: "US-01", NodeType: "trojan", Country: "US", NativeIP: true, Level: 3, Sequence: 3},
	}}
	ruleRepo := &fakeEnabledRuleRepo{rules: []*repository.RelayRule{
		{ID: 10, ProxyNodeID: 2, RelayNodeID: 1, Name: "jp-entry-01", RelayHost: "entry.example.com", Enable: true},
		{ID: 11, ProxyNodeID: 2, RelayNodeID: 1, Name: "jp-entry-02", RelayHost: "entry2.example.com", Enable: false},
	}}
	return NewNodeService(userRepo, nodeRepo, ruleRepo, nil, newTestLogger())
}

func TestResolveUserNodesInvalidUID(t *testing.T) {
	svc := newResolverFixture()

	_, _, err := svc.ResolveUserNodes(context.Background(), "not-a-uuid", NodeFilter{})
	require.ErrorIs(t, err, ErrInvalidSubUID)

	_, _, err = svc.ResolveUserNodes(context.Background(), "", NodeFilter{})
	require.ErrorIs(t, err, ErrInvalidSubUID)
}

func TestResolveUserNodesUnknownUser(t *testing.T) {
	svc := newResolverFixture()

	_, _, err := svc.ResolveUserNodes(context.Background(), "a8098c1a-f86e-11da-bd1a-00112444be1e", NodeFilter{})
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestResolveUserNodesLevelGate(t *testing.T) {
	svc := newResolverFixture()

	user, set, err := svc.ResolveUserNodes(context.Background(), testSubUID, NodeFilter{})
	require.NoError(t, err)
	require.Equal(t, "alice", user.Username)
	require.False(t, set.Unavailable)

	// 等级1的用户看不到等级3的节点
	require.Len(t, set.Nodes, 2)
	require.Equal(t, "HK-01", set.Nodes[0].Name)
	require.Equal(t, "JP-01", set.Nodes[1].Name)
}

func TestResolveUserNodesFilters(t *testing.T) {
	svc := newResolverFixture()

	_, set, err := svc.ResolveUserNodes(context.Background(), testSubUID, NodeFilter{NativeIP: true})
	require.NoError(t, err)
	require.Len(t, set.Nodes, 1)
	require.Equal(t, "HK-01", set.Nodes[0].Name)

	_, set, err = svc.ResolveUserNodes(context.Background(), testSubUID, NodeFilter{Country: "JP"})
	require.NoError(t, err)
	require.Len(t, set.Nodes, 1)
	require.Equal(t, "JP-01", set.Nodes[0].Name)

	_, set, err = svc.ResolveUserNodes(context.Background(), testSubUID, NodeFilter{Protocol: "ss"})
	require.NoError(t, err)
	require.Len(t, set.Nodes, 1)
	require.Equal(t, "HK-01", set.Nodes[0].Name)

	// 未知协议忽略过滤条件而不是清空结果
	_, set, err = svc.ResolveUserNodes(context.Background(), testSubUID, NodeFilter{Protocol: "wireguard"})
	require.NoError(t, err)
	require.Len(t, set.Nodes, 2)
}

func TestResolveUserNodesUnavailable(t *testing.T) {
	svc := newResolverFixture()

	// 过滤组合导致空集时返回不可用变体而不是错误
	user, set, err := svc.ResolveUserNodes(context.Background(), testSubUID, NodeFilter{NativeIP: true, Country: "JP"})
	require.NoError(t, err)
	require.NotNil(t, user)
	require.True(t, set.Unavailable)
	require.NotEmpty(t, set.Reason)
	require.Empty(t, set.Nodes)
}

func TestResolveUserNodesAttachesRelayRules(t *testing.T) {
	svc := newResolverFixture()

	_, set, err := svc.ResolveUserNodes(context.Background(), testSubUID, NodeFilter{})
	require.NoError(t, err)

	// 未开启中转的节点不挂规则
	require.Empty(t, set.Nodes[0].RelayRules)

	// 开启中转的节点只挂启用中的规则
	require.Len(t, set.Nodes[1].RelayRules, 1)
	require.Equal(t, "jp-entry-01", set.Nodes[1].RelayRules[0].Name)
}
