package registry

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/interax-protocol/interax-go/pkg/model"
)

func lampDescriptor(id model.EndpointID) *model.EndpointDescriptor {
	cluster := model.NewClusterDescriptor(10, "PowerState").
		AddAttribute(&model.AttributeMetadata{ID: 1, Name: "on", Type: model.DataTypeBool, Access: model.AccessReadWrite}).
		AddCommand(&model.CommandMetadata{ID: 1, Name: "toggle"})
	return model.NewEndpointDescriptor(id, "Lamp").AddCluster(cluster)
}

func toggleHandlers() HandlerSet {
	return HandlerSet{
		{Cluster: 10, Command: 1}: func(ctx context.Context, params map[string]any) (map[string]any, error) {
			return map[string]any{"on": true}, nil
		},
	}
}

func TestRegisterAndResolve(t *testing.T) {
	r := New()

	err := r.Register(lampDescriptor(1), toggleHandlers(), "fab-1/2")
	require.NoError(t, err)

	h, err := r.Resolve(1)
	require.NoError(t, err)
	assert.Equal(t, model.Identity("fab-1/2"), h.Owner())
	assert.Equal(t, model.EndpointID(1), h.Descriptor().ID)

	meta, handler, err := h.Command(10, 1)
	require.NoError(t, err)
	assert.Equal(t, "toggle", meta.Name)
	assert.NotNil(t, handler)
}

func TestRegisterDuplicate(t *testing.T) {
	r := New()

	require.NoError(t, r.Register(lampDescriptor(1), nil, "fab-1/2"))
	err := r.Register(lampDescriptor(1), nil, "fab-1/3")
	assert.ErrorIs(t, err, ErrAlreadyRegistered)
}

func TestRegisterRace(t *testing.T) {
	r := New()

	const racers = 8
	errs := make(chan error, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- r.Register(lampDescriptor(1), nil, "fab-1/2")
		}()
	}
	wg.Wait()
	close(errs)

	winners, losers := 0, 0
	for err := range errs {
		if err == nil {
			winners++
		} else {
			assert.ErrorIs(t, err, ErrAlreadyRegistered)
			losers++
		}
	}
	assert.Equal(t, 1, winners)
	assert.Equal(t, racers-1, losers)
}

func TestRegisterInvalidDescriptor(t *testing.T) {
	r := New()

	desc := lampDescriptor(1)
	desc.Clusters[99] = nil
	err := r.Register(desc, nil, "fab-1/2")
	assert.ErrorIs(t, err, model.ErrDuplicateMember)
}

func TestCommandLookupFailures(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(lampDescriptor(1), HandlerSet{}, "fab-1/2"))

	h, err := r.Resolve(1)
	require.NoError(t, err)

	_, _, err = h.Command(99, 1)
	assert.ErrorIs(t, err, ErrNotFound, "unknown cluster")

	_, _, err = h.Command(10, 9)
	assert.ErrorIs(t, err, ErrNotFound, "unknown command")

	// Declared in the schema but no handler wired
	_, _, err = h.Command(10, 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUnregisterRunsHooksSynchronously(t *testing.T) {
	r := New()

	var order []string
	r.AddTeardownHook(func(id model.EndpointID) {
		// The endpoint must already be gone from lookups
		_, err := r.Resolve(id)
		assert.ErrorIs(t, err, ErrNotFound)
		order = append(order, "first")
	})
	r.AddTeardownHook(func(id model.EndpointID) {
		order = append(order, "second")
	})

	require.NoError(t, r.Register(lampDescriptor(1), nil, "fab-1/2"))
	require.NoError(t, r.Unregister(1))

	assert.Equal(t, []string{"first", "second"}, order)
}

func TestUnregisterUnknown(t *testing.T) {
	r := New()
	assert.ErrorIs(t, r.Unregister(9), ErrNotFound)
}

func TestListWithFilter(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(lampDescriptor(1), nil, "fab-1/2"))
	require.NoError(t, r.Register(lampDescriptor(2), nil, "fab-1/3"))

	other := model.NewEndpointDescriptor(3, "Sensor").
		AddCluster(model.NewClusterDescriptor(20, "Measurement"))
	require.NoError(t, r.Register(other, nil, "fab-1/2"))

	assert.Len(t, r.List(Filter{}), 3)

	cluster := model.ClusterID(10)
	assert.Len(t, r.List(Filter{Cluster: &cluster}), 2)

	assert.Len(t, r.List(Filter{Owner: "fab-1/2"}), 2)

	byBoth := r.List(Filter{Cluster: &cluster, Owner: "fab-1/2"})
	require.Len(t, byBoth, 1)
	assert.Equal(t, model.EndpointID(1), byBoth[0].ID)
}

func TestUnregisterOwned(t *testing.T) {
	r := New()

	var torndown []model.EndpointID
	r.AddTeardownHook(func(id model.EndpointID) {
		torndown = append(torndown, id)
	})

	require.NoError(t, r.Register(lampDescriptor(1), nil, "fab-1/2"))
	require.NoError(t, r.Register(lampDescriptor(2), nil, "fab-1/2"))
	require.NoError(t, r.Register(lampDescriptor(3), nil, "fab-1/9"))

	removed := r.UnregisterOwned("fab-1/2")
	assert.ElementsMatch(t, []model.EndpointID{1, 2}, removed)
	assert.ElementsMatch(t, []model.EndpointID{1, 2}, torndown)
	assert.Equal(t, 1, r.Count())

	_, err := r.Resolve(3)
	assert.NoError(t, err)
}
