package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"order-router/internal/model"
)

// DefaultTimeout bounds a single adapter call when no timeout is configured.
const DefaultTimeout = 30 * time.Second

// Dispatcher resolves a (platform, capability) pair to an adapter and
// invokes it. Targets that are http(s) URLs go to the Remote invoker;
// anything else is looked up in the Registry.
//
// Every failure comes back as *model.AdapterExecutionError so callers can
// tell which platform and capability failed. Dispatcher itself satisfies
// Adapter, so components depend on the interface and tests swap in a Mock.
type Dispatcher struct {
	registry *Registry
	remote   *Remote
	timeout  time.Duration
	logger   *slog.Logger

	limit    rate.Limit
	burst    int
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithTimeout sets the per-call deadline.
func WithTimeout(d time.Duration) Option {
	return func(x *Dispatcher) {
		if d > 0 {
			x.timeout = d
		}
	}
}

// WithHTTPClient sets the client used for remote endpoints.
func WithHTTPClient(c *http.Client) Option {
	return func(x *Dispatcher) { x.remote = NewRemote(c) }
}

// WithRateLimit caps calls per second to any single platform.
// A non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(x *Dispatcher) {
		if rps <= 0 {
			x.limit = rate.Inf
			return
		}
		if burst < 1 {
			burst = 1
		}
		x.limit = rate.Limit(rps)
		x.burst = burst
	}
}

// WithLogger sets the logger for call diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(x *Dispatcher) {
		if l != nil {
			x.logger = l
		}
	}
}

// NewDispatcher creates a dispatcher over registry.
func NewDispatcher(registry *Registry, opts ...Option) *Dispatcher {
	if registry == nil {
		registry = NewRegistry()
	}
	d := &Dispatcher{
		registry: registry,
		remote:   NewRemote(nil),
		timeout:  DefaultTimeout,
		logger:   slog.Default(),
		limit:    rate.Inf,
		limiters: make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// resolve picks the implementation serving c on p.
func (d *Dispatcher) resolve(p *model.Platform, c model.Capability) (Adapter, error) {
	if p == nil {
		return nil, model.ErrPlatformNotFound
	}
	target := p.Endpoint(c)
	if target == "" {
		return nil, fmt.Errorf("%w: platform has no %s target", model.ErrAdapterFunctionNotFound, c)
	}
	if IsRemoteEndpoint(target) {
		return d.remote, nil
	}
	a, ok := d.registry.Lookup(target)
	if !ok {
		return nil, fmt.Errorf("%w: no local adapter %q", model.ErrAdapterFunctionNotFound, target)
	}
	return a, nil
}

func (d *Dispatcher) limiter(platformID string) *rate.Limiter {
	if d.limit == rate.Inf {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.limiters[platformID]
	if !ok {
		l = rate.NewLimiter(d.limit, d.burst)
		d.limiters[platformID] = l
	}
	return l
}

type callResult[Res any] struct {
	res Res
	err error
}

// call runs fn under its own deadline and wraps any failure. The adapter
// runs in a goroutine so an implementation that ignores ctx still cannot
// hold the caller past the deadline.
func call[Req, Res any](
	ctx context.Context,
	d *Dispatcher,
	p *model.Platform,
	c model.Capability,
	fn func(Adapter, context.Context, *model.Platform, Req) (Res, error),
	req Req,
) (Res, error) {
	var zero Res
	start := time.Now()

	wrap := func(err error) error {
		execErr := &model.AdapterExecutionError{Capability: c, Cause: err}
		if p != nil {
			execErr.PlatformID = p.ID
			execErr.PlatformName = p.Name
		}
		d.logger.Warn("adapter call failed",
			"platform", execErr.PlatformName,
			"capability", c,
			"duration", time.Since(start),
			"error", err,
		)
		return execErr
	}

	a, err := d.resolve(p, c)
	if err != nil {
		return zero, wrap(err)
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if l := d.limiter(p.ID); l != nil {
		if err := l.Wait(ctx); err != nil {
			return zero, wrap(fmt.Errorf("%w: %v", model.ErrRateLimited, err))
		}
	}

	done := make(chan callResult[Res], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- callResult[Res]{err: fmt.Errorf("adapter panic: %v", r)}
			}
		}()
		res, err := fn(a, ctx, p, req)
		done <- callResult[Res]{res: res, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return zero, wrap(r.err)
		}
		d.logger.Debug("adapter call",
			"platform", p.Name,
			"capability", c,
			"duration", time.Since(start),
		)
		return r.res, nil
	case <-ctx.Done():
		return zero, wrap(ctx.Err())
	}
}

func (d *Dispatcher) SearchProducts(ctx context.Context, p *model.Platform, req *SearchProductsRequest) (*SearchProductsResult, error) {
	return call(ctx, d, p, model.CapSearchProducts, Adapter.SearchProducts, req)
}

func (d *Dispatcher) GetProduct(ctx context.Context, p *model.Platform, req *GetProductRequest) (*Product, error) {
	return call(ctx, d, p, model.CapGetProduct, Adapter.GetProduct, req)
}

func (d *Dispatcher) UpdateProduct(ctx context.Context, p *model.Platform, req *UpdateProductRequest) (*Product, error) {
	return call(ctx, d, p, model.CapUpdateProduct, Adapter.UpdateProduct, req)
}

func (d *Dispatcher) CreatePurchase(ctx context.Context, p *model.Platform, req *CreatePurchaseRequest) (*PurchaseResult, error) {
	return call(ctx, d, p, model.CapCreatePurchase, Adapter.CreatePurchase, req)
}

func (d *Dispatcher) CreateWebhook(ctx context.Context, p *model.Platform, req *CreateWebhookRequest) (*Webhook, error) {
	return call(ctx, d, p, model.CapCreateWebhook, Adapter.CreateWebhook, req)
}

func (d *Dispatcher) DeleteWebhook(ctx context.Context, p *model.Platform, req *DeleteWebhookRequest) (*DeleteWebhookResult, error) {
	return call(ctx, d, p, model.CapDeleteWebhook, Adapter.DeleteWebhook, req)
}

func (d *Dispatcher) GetWebhooks(ctx context.Context, p *model.Platform, req *GetWebhooksRequest) (*WebhookList, error) {
	return call(ctx, d, p, model.CapGetWebhooks, Adapter.GetWebhooks, req)
}

func (d *Dispatcher) OAuth(ctx context.Context, p *model.Platform, req *OAuthRequest) (*OAuthRedirect, error) {
	return call(ctx, d, p, model.CapOAuth, Adapter.OAuth, req)
}

func (d *Dispatcher) OAuthCallback(ctx context.Context, p *model.Platform, req *OAuthCallbackRequest) (*OAuthToken, error) {
	return call(ctx, d, p, model.CapOAuthCallback, Adapter.OAuthCallback, req)
}

func (d *Dispatcher) CreateOrderWebhookHandler(ctx context.Context, p *model.Platform, req *WebhookEventRequest) (*IncomingOrder, error) {
	return call(ctx, d, p, model.CapCreateOrderWebhookHandler, Adapter.CreateOrderWebhookHandler, req)
}

func (d *Dispatcher) CancelOrderWebhookHandler(ctx context.Context, p *model.Platform, req *WebhookEventRequest) (*CancelEvent, error) {
	return call(ctx, d, p, model.CapCancelOrderWebhookHandler, Adapter.CancelOrderWebhookHandler, req)
}

func (d *Dispatcher) AddTracking(ctx context.Context, p *model.Platform, req *AddTrackingRequest) (*AddTrackingResult, error) {
	return call(ctx, d, p, model.CapAddTracking, Adapter.AddTracking, req)
}

var _ Adapter = (*Dispatcher)(nil)
