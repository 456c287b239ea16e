package orders_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-order-lifecycle/internal/memstore"
	"github.com/ariefcatur/go-order-lifecycle/internal/orders"
)

type mapCache struct {
	mu     sync.Mutex
	orders map[int64]orders.Order
	hits   int
}

func newMapCache() *mapCache { return &mapCache{orders: map[int64]orders.Order{}} }

func (c *mapCache) GetOrder(_ context.Context, id int64) (orders.Order, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	o, ok := c.orders[id]
	if ok {
		c.hits++
	}
	return o, ok
}

func (c *mapCache) SetOrder(_ context.Context, o orders.Order) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.orders[o.ID]; ok && cur.UpdatedAt.After(o.UpdatedAt) {
		return
	}
	c.orders[o.ID] = o
}

func (c *mapCache) evict(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.orders, id)
}

func (c *mapCache) get(id int64) (orders.Order, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	o, ok := c.orders[id]
	return o, ok
}

// pausingStore holds the next FindOrder after it has read the order, until
// release is closed.
type pausingStore struct {
	*memstore.Store
	armed   atomic.Bool
	read    chan struct{}
	release chan struct{}
}

func newPausingStore(store *memstore.Store) *pausingStore {
	return &pausingStore{Store: store, read: make(chan struct{}), release: make(chan struct{})}
}

func (s *pausingStore) FindOrder(ctx context.Context, id int64) (orders.Order, error) {
	o, err := s.Store.FindOrder(ctx, id)
	if s.armed.CompareAndSwap(true, false) {
		close(s.read)
		<-s.release
	}
	return o, err
}

// tickingClock returns a clock that moves one second per call.
func tickingClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

type recordingPublisher struct {
	mu      sync.Mutex
	created []int64
	err     error
}

func (p *recordingPublisher) PublishOrderCreated(_ context.Context, o orders.Order) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.created = append(p.created, o.ID)
	return p.err
}

func lineReq(id string, qty int) orders.LineRequest {
	return orders.LineRequest{ProductID: id, Quantity: qty}
}

func TestServiceCreateOrderShapesView(t *testing.T) {
	store := memstore.Seeded()
	events := &recordingPublisher{}
	cache := newMapCache()
	svc, err := orders.NewService(context.Background(), orders.ServiceDeps{Store: store, Cache: cache, Events: events})
	require.NoError(t, err)

	v, err := svc.CreateOrder(context.Background(), alice, []orders.LineRequest{lineReq("1", 1), lineReq("3", 2)})
	require.NoError(t, err)

	assert.Equal(t, "1", v.ID)
	assert.Equal(t, "10", v.UserID)
	assert.Equal(t, "1090.99", v.TotalAmount.StringFixed(2))
	assert.Equal(t, "PENDING", v.Status.Name)
	require.Len(t, v.OrderProducts, 2)
	assert.Equal(t, "Smartphone X", v.OrderProducts[0].Product.Name)
	assert.Equal(t, "ELECTRONICS", v.OrderProducts[0].Product.CategoryName)
	assert.Equal(t, 49, v.OrderProducts[0].Product.StockQuantity)

	assert.Equal(t, []int64{1}, events.created)
	_, cached := cache.orders[1]
	assert.True(t, cached)
}

func TestServiceCreateOrderParsesBoundaryInput(t *testing.T) {
	svc := newService(t, memstore.Seeded(), nil)

	tests := map[string][]orders.LineRequest{
		"no lines":        nil,
		"non numeric id":  {lineReq("abc", 1)},
		"zero quantity":   {lineReq("1", 0)},
		"negative amount": {lineReq("1", -2)},
	}
	for name, lines := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := svc.CreateOrder(context.Background(), alice, lines)
			assert.ErrorIs(t, err, orders.ErrInvalidInput)
		})
	}
}

func TestServiceCreateOrderSurvivesPublishFailure(t *testing.T) {
	store := memstore.Seeded()
	events := &recordingPublisher{err: assert.AnError}
	svc, err := orders.NewService(context.Background(), orders.ServiceDeps{Store: store, Events: events})
	require.NoError(t, err)

	_, err = svc.CreateOrder(context.Background(), alice, []orders.LineRequest{lineReq("2", 1)})
	require.NoError(t, err)
	assert.Equal(t, 99, store.Stock(2))
}

func TestServiceOwnershipIsolation(t *testing.T) {
	store := memstore.Seeded()
	svc := newService(t, store, nil)
	created, err := svc.CreateOrder(context.Background(), alice, []orders.LineRequest{lineReq("1", 1)})
	require.NoError(t, err)
	id, err := orders.ParseID(created.ID)
	require.NoError(t, err)

	_, foreignErr := svc.GetOrder(context.Background(), bob, id)
	_, missingErr := svc.GetOrder(context.Background(), bob, 999)
	require.ErrorIs(t, foreignErr, orders.ErrOrderNotFound)
	require.ErrorIs(t, missingErr, orders.ErrOrderNotFound)
	assert.Equal(t, "order: not found: 1", foreignErr.Error())
	assert.Equal(t, "order: not found: 999", missingErr.Error())

	_, err = svc.AdvanceOrder(context.Background(), bob, id)
	require.ErrorIs(t, err, orders.ErrOrderNotFound)
	assert.Equal(t, foreignErr.Error(), err.Error())

	got, err := svc.GetOrder(context.Background(), alice, id)
	require.NoError(t, err)
	assert.Equal(t, "PENDING", got.Status.Name)

	advanced, err := svc.AdvanceOrder(context.Background(), admin, id)
	require.NoError(t, err)
	assert.Equal(t, "PROCESSING", advanced.Status.Name)
}

func TestServiceGetOrderChecksOwnershipOnCacheHit(t *testing.T) {
	store := memstore.Seeded()
	cache := newMapCache()
	svc, err := orders.NewService(context.Background(), orders.ServiceDeps{Store: store, Cache: cache})
	require.NoError(t, err)

	_, err = svc.CreateOrder(context.Background(), alice, []orders.LineRequest{lineReq("1", 1)})
	require.NoError(t, err)

	_, err = svc.GetOrder(context.Background(), bob, 1)
	assert.ErrorIs(t, err, orders.ErrOrderNotFound)
	assert.Equal(t, 1, cache.hits)
}

func TestServiceAdvanceRefreshesCache(t *testing.T) {
	store := memstore.Seeded()
	cache := newMapCache()
	svc, err := orders.NewService(context.Background(), orders.ServiceDeps{Store: store, Cache: cache})
	require.NoError(t, err)

	_, err = svc.CreateOrder(context.Background(), alice, []orders.LineRequest{lineReq("1", 1)})
	require.NoError(t, err)
	_, err = svc.AdvanceOrder(context.Background(), alice, 1)
	require.NoError(t, err)

	got, err := svc.GetOrder(context.Background(), alice, 1)
	require.NoError(t, err)
	assert.Equal(t, "PROCESSING", got.Status.Name)
}

func TestServiceStaleReadCannotOverwriteAdvancedOrder(t *testing.T) {
	mem := memstore.Seeded()
	mem.SetClock(tickingClock())
	store := newPausingStore(mem)
	cache := newMapCache()
	svc, err := orders.NewService(context.Background(), orders.ServiceDeps{Store: store, Cache: cache})
	require.NoError(t, err)

	_, err = svc.CreateOrder(context.Background(), alice, []orders.LineRequest{lineReq("1", 1)})
	require.NoError(t, err)
	cache.evict(1)

	store.armed.Store(true)
	done := make(chan error, 1)
	go func() {
		v, err := svc.GetOrder(context.Background(), alice, 1)
		if err == nil && v.Status.Name != "PENDING" {
			err = fmt.Errorf("paused read saw %s", v.Status.Name)
		}
		done <- err
	}()
	<-store.read

	advanced, err := svc.AdvanceOrder(context.Background(), alice, 1)
	require.NoError(t, err)
	require.Equal(t, "PROCESSING", advanced.Status.Name)

	close(store.release)
	require.NoError(t, <-done)

	cached, ok := cache.get(1)
	require.True(t, ok)
	assert.Equal(t, "PROCESSING", cached.Status.Name)
	got, err := svc.GetOrder(context.Background(), alice, 1)
	require.NoError(t, err)
	assert.Equal(t, "PROCESSING", got.Status.Name)
}

func TestServiceListOrdersScopesByOwner(t *testing.T) {
	svc := newService(t, memstore.Seeded(), nil)
	for _, req := range []orders.Requester{alice, bob, alice} {
		_, err := svc.CreateOrder(context.Background(), req, []orders.LineRequest{lineReq("2", 1)})
		require.NoError(t, err)
	}

	mine, err := svc.ListOrders(context.Background(), alice)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "1", mine[0].ID)
	assert.Equal(t, "3", mine[1].ID)

	all, err := svc.ListOrders(context.Background(), admin)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestServiceShapingIsDeterministic(t *testing.T) {
	store := memstore.Seeded()
	svc := newService(t, store, nil)
	_, err := svc.CreateOrder(context.Background(), alice, []orders.LineRequest{lineReq("1", 1), lineReq("2", 3)})
	require.NoError(t, err)

	o, err := store.FindOrder(context.Background(), 1)
	require.NoError(t, err)

	first, err := json.Marshal(orders.NewView(o))
	require.NoError(t, err)
	second, err := json.Marshal(orders.NewView(o))
	require.NoError(t, err)
	assert.JSONEq(t, string(first), string(second))
}

func TestServiceCancelRequiresAdmin(t *testing.T) {
	store := memstore.Seeded()
	rec := newCountingRecorder()
	svc := newService(t, store, rec)
	_, err := svc.CreateOrder(context.Background(), alice, []orders.LineRequest{lineReq("3", 5)})
	require.NoError(t, err)
	require.Equal(t, 70, store.Stock(3))

	_, err = svc.CancelOrder(context.Background(), alice, 1)
	require.ErrorIs(t, err, orders.ErrForbidden)
	assert.Equal(t, 70, store.Stock(3))

	v, err := svc.CancelOrder(context.Background(), admin, 1)
	require.NoError(t, err)
	assert.Equal(t, "CANCELED", v.Status.Name)
	assert.Equal(t, 75, store.Stock(3))

	_, err = svc.CancelOrder(context.Background(), admin, 42)
	assert.ErrorIs(t, err, orders.ErrOrderNotFound)
}

func TestServiceUpdateStatusSwapsGraph(t *testing.T) {
	store := memstore.Seeded()
	svc := newService(t, store, nil)

	desc := "Order is with the carrier"
	_, err := svc.UpdateStatus(context.Background(), alice, memstore.StatusShipped, orders.StatusPatch{Description: &desc})
	require.ErrorIs(t, err, orders.ErrForbidden)

	_, err = svc.UpdateStatus(context.Background(), admin, memstore.StatusShipped, orders.StatusPatch{})
	require.ErrorIs(t, err, orders.ErrInvalidInput)

	updated, err := svc.UpdateStatus(context.Background(), admin, memstore.StatusShipped, orders.StatusPatch{Description: &desc})
	require.NoError(t, err)
	assert.Equal(t, desc, updated.Description)
	shipped, ok := svc.Graph().Status(memstore.StatusShipped)
	require.True(t, ok)
	assert.Equal(t, desc, shipped.Description)

	// Skipping SHIPPED leaves it unreachable.
	_, err = svc.UpdateStatus(context.Background(), admin, memstore.StatusProcessing, orders.StatusPatch{
		NextStatusID: orders.Some(memstore.StatusDelivered),
	})
	require.ErrorIs(t, err, orders.ErrInvalidStatusGraph)
	processing, _ := svc.Graph().Status(memstore.StatusProcessing)
	require.NotNil(t, processing.NextStatusID)
	assert.Equal(t, memstore.StatusShipped, *processing.NextStatusID)

	statuses, err := store.ListStatuses(context.Background())
	require.NoError(t, err)
	assert.Equal(t, memstore.StatusShipped, *statuses[memstore.StatusProcessing-1].NextStatusID)

	flow := svc.StatusFlow()
	assert.Len(t, flow, 5)
	assert.Len(t, svc.ListStatuses(), 7)
}

func TestServiceUpdateStatusExtendsChain(t *testing.T) {
	store := memstore.Seeded()
	svc := newService(t, store, nil)

	// Make REFUNDED the new terminal step after COMPLETED.
	final := false
	_, err := svc.UpdateStatus(context.Background(), admin, memstore.StatusCompleted, orders.StatusPatch{
		IsFinal:      &final,
		NextStatusID: orders.Some(memstore.StatusRefunded),
	})
	require.NoError(t, err)

	flow := svc.StatusFlow()
	require.Len(t, flow, 6)
	assert.Equal(t, "REFUNDED", flow[5].Name)
}

func TestServiceConcurrentStatusUpdatesKeepGraphInSync(t *testing.T) {
	store := memstore.Seeded()
	svc := newService(t, store, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			desc := fmt.Sprintf("revision %d", i)
			_, err := svc.UpdateStatus(context.Background(), admin, memstore.StatusShipped, orders.StatusPatch{Description: &desc})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	statuses, err := store.ListStatuses(context.Background())
	require.NoError(t, err)
	var stored string
	for _, st := range statuses {
		if st.ID == memstore.StatusShipped {
			stored = st.Description
		}
	}
	inMemory, ok := svc.Graph().Status(memstore.StatusShipped)
	require.True(t, ok)
	assert.Equal(t, stored, inMemory.Description)
}

func TestServiceGetStatusJoinsNeighbours(t *testing.T) {
	svc := newService(t, memstore.Seeded(), nil)

	shipped, err := svc.GetStatus(memstore.StatusShipped)
	require.NoError(t, err)
	assert.Equal(t, "SHIPPED", shipped.Name)
	require.NotNil(t, shipped.NextStatus)
	assert.Equal(t, "DELIVERED", shipped.NextStatus.Name)
	require.NotNil(t, shipped.PreviousStatus)
	assert.Equal(t, "PROCESSING", shipped.PreviousStatus.Name)

	pending, err := svc.GetStatus(memstore.StatusPending)
	require.NoError(t, err)
	assert.Nil(t, pending.PreviousStatus)

	canceled, err := svc.GetStatus(memstore.StatusCanceled)
	require.NoError(t, err)
	assert.Nil(t, canceled.NextStatus)
	assert.Nil(t, canceled.PreviousStatus)

	_, err = svc.GetStatus(99)
	assert.ErrorIs(t, err, orders.ErrStatusNotFound)
}

func TestNewServiceRejectsInvalidGraph(t *testing.T) {
	store := memstore.New()
	store.PutStatus(orders.Status{ID: 1, Name: "A"})
	_, err := orders.NewService(context.Background(), orders.ServiceDeps{Store: store})
	assert.ErrorIs(t, err, orders.ErrInvalidStatusGraph)
}
