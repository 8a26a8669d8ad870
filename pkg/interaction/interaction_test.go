package interaction

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/interax-protocol/interax-go/pkg/acl"
	"github.com/interax-protocol/interax-go/pkg/hub"
	"github.com/interax-protocol/interax-go/pkg/model"
	"github.com/interax-protocol/interax-go/pkg/registry"
	"github.com/interax-protocol/interax-go/pkg/transport"
	"github.com/interax-protocol/interax-go/pkg/wire"
)

const (
	deviceIdentity model.Identity = "fab-1/10"
	clientIdentity                = "fab-1/20"
)

func lampDescriptor(id model.EndpointID) *model.EndpointDescriptor {
	cluster := model.NewClusterDescriptor(10, "PowerState").
		AddAttribute(&model.AttributeMetadata{
			ID: 1, Name: "on", Type: model.DataTypeBool,
			Access: model.AccessReadWrite, Default: false,
		}).
		AddAttribute(&model.AttributeMetadata{
			ID: 2, Name: "powerDraw", Type: model.DataTypeInt64,
			Access: model.AccessReadOnly, Default: int64(0),
		}).
		AddCommand(&model.CommandMetadata{
			ID: 1, Name: "setLevel",
			Parameters: []model.ParameterMetadata{
				{Name: "level", Type: model.DataTypeInt64, Required: true},
			},
		}).
		AddEvent(&model.EventMetadata{ID: 1, Name: "powerCycled"})
	return model.NewEndpointDescriptor(id, "Lamp").AddCluster(cluster)
}

func lampHandlers() registry.HandlerSet {
	return registry.HandlerSet{
		{Cluster: 10, Command: 1}: func(ctx context.Context, params map[string]any) (map[string]any, error) {
			return map[string]any{"level": params["level"]}, nil
		},
	}
}

// newFixture wires a hub, a served loopback session, and a client, and
// registers a lamp endpoint owned by the device identity.
func newFixture(t *testing.T, source acl.Source) (*Client, *Registration, *hub.Hub) {
	t.Helper()

	if source == nil {
		source = acl.NewStaticSource([]acl.Entry{
			{Subject: "*", Ops: []acl.Op{acl.OpRead, acl.OpWrite, acl.OpInvoke, acl.OpSubscribe}},
		})
	}
	h, err := hub.New(hub.Options{ACLSource: source})
	require.NoError(t, err)

	reg, err := RegisterEndpoint(h, deviceIdentity, lampDescriptor(1), lampHandlers())
	require.NoError(t, err)

	clientConn, serverConn := transport.Loopback(nil)
	session := NewSession(h, serverConn, "", nil)
	go session.Serve(context.Background())

	client := NewClient(clientIdentity, clientConn)
	t.Cleanup(func() {
		client.Close()
		h.Close()
	})
	return client, reg, h
}

// asMap normalizes a decoded CBOR map for assertions.
func asMap(t *testing.T, v any) map[string]any {
	t.Helper()
	switch m := v.(type) {
	case map[string]any:
		return m
	case map[any]any:
		result := make(map[string]any, len(m))
		for key, value := range m {
			name, ok := key.(string)
			require.True(t, ok, "non-string map key %v", key)
			result[name] = value
		}
		return result
	default:
		t.Fatalf("expected map, got %T", v)
		return nil
	}
}

func TestClientReadWrite(t *testing.T) {
	client, _, _ := newFixture(t, nil)
	ctx := context.Background()

	target := wire.Target{Endpoint: 1, Cluster: 10, Member: 1}

	value, revision, err := client.Read(ctx, target)
	require.NoError(t, err)
	assert.Equal(t, false, value)
	assert.Equal(t, uint64(0), revision)

	revision, err = client.Write(ctx, target, true)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), revision)

	value, revision, err = client.Read(ctx, target)
	require.NoError(t, err)
	assert.Equal(t, true, value)
	assert.Equal(t, uint64(1), revision)
}

func TestClientErrorStatuses(t *testing.T) {
	client, _, _ := newFixture(t, nil)
	ctx := context.Background()

	_, _, err := client.Read(ctx, wire.Target{Endpoint: 9, Cluster: 10, Member: 1})
	var statusErr *wire.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, wire.StatusNotFound, statusErr.Status)

	_, err = client.Write(ctx, wire.Target{Endpoint: 1, Cluster: 10, Member: 2}, int64(5))
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, wire.StatusUnwritable, statusErr.Status)
}

func TestClientDeniedByPolicy(t *testing.T) {
	client, _, _ := newFixture(t, acl.NewStaticSource(nil))

	_, _, err := client.Read(context.Background(), wire.Target{Endpoint: 1, Cluster: 10, Member: 1})
	var statusErr *wire.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, wire.StatusUnauthorized, statusErr.Status)
}

func TestClientInvoke(t *testing.T) {
	client, _, _ := newFixture(t, nil)

	target := wire.Target{Endpoint: 1, Cluster: 10, Member: 1}
	result, err := client.Invoke(context.Background(), target, map[string]any{"level": int64(80)}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, uint64(80), asMap(t, result)["level"])

	_, err = client.Invoke(context.Background(), target, map[string]any{}, time.Second)
	var statusErr *wire.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, wire.StatusValidationFailed, statusErr.Status, "missing required parameter")
}

func TestClientSubscribeAttribute(t *testing.T) {
	client, reg, _ := newFixture(t, nil)
	ctx := context.Background()

	target := wire.Target{Endpoint: 1, Cluster: 10, Member: 2}
	stream, err := client.Subscribe(ctx, target, SubscribeOptions{})
	require.NoError(t, err)

	// Attribute streams are primed with current state
	primeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	prime, err := stream.Next(primeCtx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), prime.Revision)

	_, err = reg.UpdateAttribute(10, 2, int64(42))
	require.NoError(t, err)

	n, err := stream.Next(primeCtx)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), n.Value)
	assert.Equal(t, uint64(1), n.Revision)
	assert.Equal(t, target, n.Target)
}

func TestClientSubscribeEvent(t *testing.T) {
	client, reg, _ := newFixture(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	target := wire.Target{Endpoint: 1, Cluster: 10, Member: 1}
	stream, err := client.Subscribe(ctx, target, SubscribeOptions{TargetKind: wire.TargetEvent})
	require.NoError(t, err)

	seq, err := reg.PublishEvent(10, 1, map[string]any{"count": int64(3)})
	require.NoError(t, err)
	require.Equal(t, uint64(1), seq)

	n, err := stream.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n.Sequence)
	assert.Equal(t, uint64(3), asMap(t, n.Value)["count"])
}

func TestClientUnsubscribe(t *testing.T) {
	client, reg, h := newFixture(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	target := wire.Target{Endpoint: 1, Cluster: 10, Member: 2}
	stream, err := client.Subscribe(ctx, target, SubscribeOptions{})
	require.NoError(t, err)

	_, err = stream.Next(ctx) // prime
	require.NoError(t, err)

	require.NoError(t, stream.Cancel(ctx))
	assert.Empty(t, h.ListSubscriptions(1))

	_, err = reg.UpdateAttribute(10, 2, int64(7))
	require.NoError(t, err)

	_, err = stream.Next(ctx)
	assert.ErrorIs(t, err, ErrStreamEnded)
}

func TestSessionRejectsMismatchedSource(t *testing.T) {
	h, err := hub.New(hub.Options{ACLSource: acl.NewStaticSource([]acl.Entry{
		{Subject: "*", Ops: []acl.Op{acl.OpRead}},
	})})
	require.NoError(t, err)
	defer h.Close()

	_, err = RegisterEndpoint(h, deviceIdentity, lampDescriptor(1), nil)
	require.NoError(t, err)

	clientConn, serverConn := transport.Loopback(nil)
	session := NewSession(h, serverConn, "fab-1/99", nil)
	go session.Serve(context.Background())

	client := NewClient(clientIdentity, clientConn)
	defer client.Close()

	_, _, err = client.Read(context.Background(), wire.Target{Endpoint: 1, Cluster: 10, Member: 1})
	var statusErr *wire.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, wire.StatusUnauthorized, statusErr.Status)
}

func TestRegistrationRelease(t *testing.T) {
	client, reg, _ := newFixture(t, nil)
	ctx := context.Background()

	require.NoError(t, reg.Release())
	require.NoError(t, reg.Release(), "release is idempotent")

	_, err := reg.UpdateAttribute(10, 2, int64(1))
	assert.ErrorIs(t, err, registry.ErrNotFound)
	_, err = reg.PublishEvent(10, 1, nil)
	assert.ErrorIs(t, err, registry.ErrNotFound)

	_, _, err = client.Read(ctx, wire.Target{Endpoint: 1, Cluster: 10, Member: 1})
	var statusErr *wire.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, wire.StatusNotFound, statusErr.Status)
}

func TestClientClosedFailsFast(t *testing.T) {
	client, _, _ := newFixture(t, nil)
	require.NoError(t, client.Close())

	_, _, err := client.Read(context.Background(), wire.Target{Endpoint: 1, Cluster: 10, Member: 1})
	assert.ErrorIs(t, err, ErrClientClosed)
}
