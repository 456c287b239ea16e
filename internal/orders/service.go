package orders

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// ServiceDeps bundles the collaborators of the order facade. Cache, Events,
// Logger and Recorder are optional.
type ServiceDeps struct {
	Store    Store
	Cache    OrderCache
	Events   EventPublisher
	Logger   *zap.Logger
	Recorder Recorder
}

// Service is the order facade exposed to the transport layer.
type Service struct {
	store       Store
	graph       atomic.Pointer[StatusGraph]
	statusMu    sync.Mutex // serializes UpdateStatus commit and graph swap
	reserver    *Reserver
	transitions *Transitioner
	cache       OrderCache
	events      EventPublisher
	logger      *zap.Logger
}

// NewService loads and validates the status graph. An invalid graph is a
// configuration error and is returned as ErrInvalidStatusGraph.
func NewService(ctx context.Context, deps ServiceDeps) (*Service, error) {
	if deps.Store == nil {
		return nil, errors.New("order service: store is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	statuses, err := deps.Store.ListStatuses(ctx)
	if err != nil {
		return nil, fmt.Errorf("load statuses: %w", err)
	}
	graph, err := NewStatusGraph(statuses)
	if err != nil {
		return nil, err
	}

	s := &Service{
		store:  deps.Store,
		cache:  deps.Cache,
		events: deps.Events,
		logger: logger,
	}
	s.graph.Store(graph)
	s.reserver = NewReserver(deps.Store, deps.Store, s.Graph, logger, deps.Recorder)
	s.transitions = NewTransitioner(deps.Store, deps.Store, s.Graph, logger, deps.Recorder)
	return s, nil
}

// Graph returns the current status graph snapshot.
func (s *Service) Graph() *StatusGraph { return s.graph.Load() }

func (s *Service) CreateOrder(ctx context.Context, req Requester, lines []LineRequest) (View, error) {
	parsed, err := ParseLines(lines)
	if err != nil {
		return View{}, err
	}
	order, err := s.reserver.ReserveAndPrice(ctx, req.UserID, parsed)
	if err != nil {
		return View{}, err
	}
	if s.events != nil {
		if err := s.events.PublishOrderCreated(ctx, order); err != nil {
			s.logger.Warn("publish order created", zap.Int64("order_id", order.ID), zap.Error(err))
		}
	}
	s.cacheOrder(ctx, order)
	return NewView(order), nil
}

// GetOrder returns ErrOrderNotFound both for a missing order and for an
// order the requester may not see.
func (s *Service) GetOrder(ctx context.Context, req Requester, id int64) (View, error) {
	o, err := s.load(ctx, id)
	if err != nil {
		return View{}, err
	}
	if !req.owns(o.UserID) {
		return View{}, orderNotFound(id)
	}
	return NewView(o), nil
}

func (s *Service) AdvanceOrder(ctx context.Context, req Requester, id int64) (View, error) {
	o, err := s.transitions.Advance(ctx, id, func(o Order) error {
		if !req.owns(o.UserID) {
			return orderNotFound(id)
		}
		return nil
	})
	if err != nil {
		return View{}, normalizeNotFound(err, id)
	}
	s.cacheOrder(ctx, o)
	return NewView(o), nil
}

func (s *Service) ListOrders(ctx context.Context, req Requester) ([]View, error) {
	var filter OrderFilter
	if !req.IsAdmin {
		uid := req.UserID
		filter.UserID = &uid
	}
	list, err := s.store.ListOrders(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	out := make([]View, 0, len(list))
	for _, o := range list {
		out = append(out, NewView(o))
	}
	return out, nil
}

// CancelOrder is restricted to elevated callers.
func (s *Service) CancelOrder(ctx context.Context, req Requester, id int64) (View, error) {
	if !req.IsAdmin {
		return View{}, fmt.Errorf("%w: only administrators can cancel orders", ErrForbidden)
	}
	o, err := s.transitions.Cancel(ctx, id)
	if err != nil {
		return View{}, normalizeNotFound(err, id)
	}
	s.cacheOrder(ctx, o)
	return NewView(o), nil
}

func (s *Service) ListStatuses() []StatusView { return NewStatusViews(s.Graph().All()) }

func (s *Service) StatusFlow() []StatusView { return NewStatusViews(s.Graph().Flow()) }

// GetStatus returns one status with its neighbours in the chain.
func (s *Service) GetStatus(id int) (StatusDetailView, error) {
	g := s.Graph()
	st, ok := g.Status(id)
	if !ok {
		return StatusDetailView{}, fmt.Errorf("%w: %d", ErrStatusNotFound, id)
	}
	v := StatusDetailView{StatusView: NewStatusView(st)}
	if next, ok := g.Successor(id); ok {
		nv := NewStatusView(next)
		v.NextStatus = &nv
	}
	if prev, ok := g.Predecessor(id); ok {
		pv := NewStatusView(prev)
		v.PreviousStatus = &pv
	}
	return v, nil
}

// UpdateStatus applies patch and swaps in the re-validated graph. A patch that
// would break the chain is rolled back with ErrInvalidStatusGraph.
func (s *Service) UpdateStatus(ctx context.Context, req Requester, id int, patch StatusPatch) (StatusView, error) {
	if !req.IsAdmin {
		return StatusView{}, fmt.Errorf("%w: only administrators can update statuses", ErrForbidden)
	}
	if patch.Empty() {
		return StatusView{}, fmt.Errorf("%w: empty status patch", ErrInvalidInput)
	}
	s.statusMu.Lock()
	defer s.statusMu.Unlock()

	var graph *StatusGraph
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.UpdateStatus(ctx, id, patch); err != nil {
			return err
		}
		statuses, err := tx.ListStatuses(ctx)
		if err != nil {
			return fmt.Errorf("list statuses: %w", err)
		}
		graph, err = NewStatusGraph(statuses)
		return err
	})
	if err != nil {
		return StatusView{}, err
	}
	s.graph.Store(graph)
	updated, _ := graph.Status(id)
	s.logger.Info("status updated", zap.Int("status_id", id), zap.String("name", updated.Name))
	return NewStatusView(updated), nil
}

func (s *Service) load(ctx context.Context, id int64) (Order, error) {
	if s.cache != nil {
		if o, ok := s.cache.GetOrder(ctx, id); ok {
			return o, nil
		}
	}
	o, err := s.store.FindOrder(ctx, id)
	if err != nil {
		return Order{}, normalizeNotFound(err, id)
	}
	s.cacheOrder(ctx, o)
	return o, nil
}

// cacheOrder relies on the cache refusing to replace a newer entry: a load
// that read before a concurrent advance must not overwrite its result.
func (s *Service) cacheOrder(ctx context.Context, o Order) {
	if s.cache != nil {
		s.cache.SetOrder(ctx, o)
	}
}

// ParseLines converts boundary request lines into engine lines.
func ParseLines(lines []LineRequest) ([]Line, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: order must contain at least one product", ErrInvalidInput)
	}
	out := make([]Line, 0, len(lines))
	for _, l := range lines {
		id, err := ParseID(l.ProductID)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid product id %q", ErrInvalidInput, l.ProductID)
		}
		if l.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity for product %d must be positive, got %d", ErrInvalidInput, id, l.Quantity)
		}
		out = append(out, Line{ProductID: id, Quantity: l.Quantity})
	}
	return out, nil
}

func orderNotFound(id int64) error { return fmt.Errorf("%w: %d", ErrOrderNotFound, id) }

// normalizeNotFound gives every not-found path the same message so a missing
// order and a foreign order cannot be told apart.
func normalizeNotFound(err error, id int64) error {
	if errors.Is(err, ErrOrderNotFound) {
		return orderNotFound(id)
	}
	return err
}
