// Package reconcile resolves customers, services, tariffs and routers from the
// CRM into client/device topology nodes.
package reconcile

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/septivank/crm-topology-worker/internal/crm"
	"github.com/septivank/crm-topology-worker/internal/metrics"
	"github.com/septivank/crm-topology-worker/internal/reference"
	"github.com/septivank/crm-topology-worker/internal/topology"
)

const defaultConcurrency = 4

// Source is the read side of the CRM API.
type Source interface {
	Tariffs(ctx context.Context) ([]crm.Record, error)
	Customers(ctx context.Context) ([]crm.Record, error)
	InternetServices(ctx context.Context, customerID string) ([]crm.Record, error)
	Routers(ctx context.Context) ([]crm.Record, error)
}

// Result summarizes a successful run.
type Result struct {
	ActiveCustomers int
	Clients         int
	Devices         int
	Warnings        []UnresolvedReference
}

// Reconciler runs one synchronization pass.
type Reconciler struct {
	source      Source
	logger      *zap.Logger
	concurrency int
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithConcurrency caps the number of customers processed at once.
func WithConcurrency(n int) Option {
	return func(r *Reconciler) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// NewReconciler creates a new reconciler
func NewReconciler(source Source, logger *zap.Logger, opts ...Option) *Reconciler {
	r := &Reconciler{
		source:      source,
		logger:      logger,
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type customerBatch struct {
	pairs    []Pair
	warnings []UnresolvedReference
}

// Run fetches the CRM snapshot, resolves every active service of every active
// customer and emits the nodes. Nothing reaches the emitter unless the whole
// snapshot resolved, and Finalize is called only in that case.
func (r *Reconciler) Run(ctx context.Context, emitter topology.Emitter) (*Result, error) {
	tables, customers, err := r.loadSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	active := make([]crm.Customer, 0, len(customers))
	for _, c := range customers {
		if c.Active() {
			active = append(active, c)
		}
	}

	r.logger.Info("reference data loaded",
		zap.Int("tariffs", len(tables.Tariffs)),
		zap.Int("routers", len(tables.Routers)),
		zap.Int("customers", len(customers)),
		zap.Int("active_customers", len(active)),
	)

	batches, err := r.resolveCustomers(ctx, tables, active)
	if err != nil {
		return nil, err
	}

	// a customer listed twice yields the same pairs again; count each id once
	seen := make(map[string]struct{})
	result := &Result{ActiveCustomers: len(active)}
	for _, batch := range batches {
		for i := range batch.pairs {
			pair := &batch.pairs[i]
			if err := emitter.AddNode(&pair.Client); err != nil {
				return nil, fmt.Errorf("emit client %s: %w", pair.Client.ID, err)
			}
			if err := emitter.AddNode(&pair.Device); err != nil {
				return nil, fmt.Errorf("emit device %s: %w", pair.Device.ID, err)
			}
			if _, dup := seen[pair.Client.ID]; dup {
				continue
			}
			seen[pair.Client.ID] = struct{}{}
			result.Clients++
			result.Devices++
		}
		result.Warnings = append(result.Warnings, batch.warnings...)
	}

	if err := emitter.Finalize(ctx); err != nil {
		return nil, fmt.Errorf("finalize topology: %w", err)
	}
	return result, nil
}

// loadSnapshot fetches tariffs, customers and routers in parallel and builds
// the lookup tables.
func (r *Reconciler) loadSnapshot(ctx context.Context) (reference.Tables, []crm.Customer, error) {
	var tariffRecords, customerRecords, routerRecords []crm.Record

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		tariffRecords, err = r.source.Tariffs(gctx)
		return err
	})
	g.Go(func() (err error) {
		customerRecords, err = r.source.Customers(gctx)
		return err
	})
	g.Go(func() (err error) {
		routerRecords, err = r.source.Routers(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return reference.Tables{}, nil, err
	}

	tariffs, err := reference.BuildTariffTable(tariffRecords)
	if err != nil {
		return reference.Tables{}, nil, err
	}
	routers, err := reference.BuildRouterTable(routerRecords)
	if err != nil {
		return reference.Tables{}, nil, err
	}

	customers := make([]crm.Customer, 0, len(customerRecords))
	for i, rec := range customerRecords {
		c, err := crm.ParseCustomer(i, rec)
		if err != nil {
			return reference.Tables{}, nil, err
		}
		customers = append(customers, c)
	}

	return reference.Tables{Tariffs: tariffs, Routers: routers}, customers, nil
}

// resolveCustomers processes customers on a bounded pool. Cancellation is
// observed between customers; a customer whose services are being fetched
// finishes that fetch.
func (r *Reconciler) resolveCustomers(ctx context.Context, tables reference.Tables, customers []crm.Customer) ([]customerBatch, error) {
	batches := make([]customerBatch, len(customers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for i := range customers {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			batch, err := r.resolveCustomer(context.WithoutCancel(gctx), tables, customers[i])
			if err != nil {
				return err
			}
			batches[i] = batch
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return batches, nil
}

func (r *Reconciler) resolveCustomer(ctx context.Context, tables reference.Tables, cust crm.Customer) (customerBatch, error) {
	records, err := r.source.InternetServices(ctx, cust.ID)
	if err != nil {
		return customerBatch{}, fmt.Errorf("fetch services of customer %s: %w", cust.ID, err)
	}

	var batch customerBatch
	for i, rec := range records {
		svc, err := crm.ParseService(cust.ID, i, rec)
		if err != nil {
			return customerBatch{}, err
		}
		if !svc.Active() {
			continue
		}

		pair, warning, err := ResolveService(tables, cust, i, svc)
		if err != nil {
			return customerBatch{}, err
		}
		if warning != nil {
			r.logger.Warn("router not found for router-assigned address",
				zap.String("client_id", warning.ClientID),
				zap.String("router_id", warning.RouterID),
			)
			metrics.UnresolvedRoutersTotal.Inc()
			batch.warnings = append(batch.warnings, *warning)
		}
		batch.pairs = append(batch.pairs, pair)
	}
	return batch, nil
}
