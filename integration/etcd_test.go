package integration

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// fakeKV serves prefix reads from a map, sorted by key like etcd does for
// SortByKey/SortAscend.
type fakeKV struct {
	clientv3.KV
	data map[string]string
	err  error
}

func (f *fakeKV) Get(ctx context.Context, key string, opts ...clientv3.OpOption) (*clientv3.GetResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	keys := make([]string, 0, len(f.data))
	for k := range f.data {
		if strings.HasPrefix(k, key) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	resp := &clientv3.GetResponse{}
	for _, k := range keys {
		resp.Kvs = append(resp.Kvs, &mvccpb.KeyValue{Key: []byte(k), Value: []byte(f.data[k])})
	}
	resp.Count = int64(len(resp.Kvs))
	return resp, nil
}

func (f *fakeKV) Put(ctx context.Context, key, val string, opts ...clientv3.OpOption) (*clientv3.PutResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.data == nil {
		f.data = make(map[string]string)
	}
	f.data[key] = val
	return &clientv3.PutResponse{}, nil
}

func TestEtcdSource_Targets(t *testing.T) {
	kv := &fakeKV{data: map[string]string{
		DefaultEtcdPrefix + "02-trello": `{"name":"Trello","connected":true,"projectId":"board"}`,
		DefaultEtcdPrefix + "01-jira":   `{"name":"Jira","connected":true,"projectId":"SEC"}`,
		DefaultEtcdPrefix + "03-asana":  `{"connected":false}`,
		"/other/key":                    `{"name":"Ignored"}`,
	}}

	targets, err := NewEtcdSource(kv, "").Targets(context.Background())
	require.NoError(t, err)
	require.Len(t, targets, 3)

	assert.Equal(t, Target{Name: "Jira", Connected: true, ProjectID: "SEC"}, targets[0])
	assert.Equal(t, "Trello", targets[1].Name)
	assert.Equal(t, "03-asana", targets[2].Name)
	assert.False(t, targets[2].Eligible())
}

func TestEtcdSource_Errors(t *testing.T) {
	t.Run("get fails", func(t *testing.T) {
		kv := &fakeKV{err: errors.New("unavailable")}
		_, err := NewEtcdSource(kv, "/t/").Targets(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "list targets under /t/")
	})

	t.Run("malformed value", func(t *testing.T) {
		kv := &fakeKV{data: map[string]string{"/t/jira": "{"}}
		_, err := NewEtcdSource(kv, "/t/").Targets(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "decode target /t/jira")
	})
}

func TestPutTarget(t *testing.T) {
	kv := &fakeKV{}
	ctx := context.Background()

	require.NoError(t, PutTarget(ctx, kv, "", "01-jira", Target{Name: "Jira", Connected: true, ProjectID: "SEC"}))

	targets, err := NewEtcdSource(kv, "").Targets(ctx)
	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.True(t, targets[0].Eligible())
}

func TestNewEtcdClient_NoEndpoints(t *testing.T) {
	_, err := NewEtcdClient(EtcdConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "endpoints cannot be empty")
}

func TestTLSConfig(t *testing.T) {
	cfg, err := (*TLSConfig)(nil).ClientConfig()
	require.NoError(t, err)
	assert.Nil(t, cfg)

	_, err = (&TLSConfig{Enabled: true}).ClientConfig()
	assert.ErrorContains(t, err, "cert file is required")

	_, err = (&TLSConfig{Enabled: true, CertFile: "c", KeyFile: "k", CAFile: "ca"}).ClientConfig()
	assert.ErrorContains(t, err, "failed to load client certificate")
}
