package service

import (
	"context"
	"fmt"

	"coinvault.com/internal/deposit/domain"
	"coinvault.com/internal/deposit/queue"
	"coinvault.com/internal/deposit/repo"
	"coinvault.com/pkg/logger"
	"coinvault.com/pkg/metrics"
	"go.uber.org/zap"
)

type Route string

const (
	RouteFeeAware Route = "fee_aware"
	RouteStandard Route = "standard"
	RouteFiat     Route = "fiat"
	RouteSkipped  Route = "skipped"
)

// Queue 对应的队列名，skipped 为空
func (r Route) Queue() string {
	switch r {
	case RouteFeeAware:
		return queue.QueueCollectionFees
	case RouteStandard:
		return queue.QueueCollection
	case RouteFiat:
		return queue.QueueFiat
	}
	return ""
}

// Dispatcher 把已 accept 的充值交给归集 worker；不改状态，worker 完成后自己调 dispatch
type Dispatcher struct {
	deposits repo.DepositRepo
	policies Policies
	enqueuer queue.Enqueuer
}

func NewDispatcher(deposits repo.DepositRepo, policies Policies, enqueuer queue.Enqueuer) *Dispatcher {
	return &Dispatcher{deposits: deposits, policies: policies, enqueuer: enqueuer}
}

// RouteFor 纯决策，不投递
func RouteFor(d *domain.Deposit, c domain.Currency) Route {
	if d.Coin() {
		if c.FeeAware {
			return RouteFeeAware
		}
		return RouteStandard
	}
	if c.Escrow {
		return RouteSkipped
	}
	return RouteFiat
}

// Collect 只接受 accepted 的记录；投递失败返回错误，状态不受影响
func (x *Dispatcher) Collect(ctx context.Context, depositID int64) (Route, error) {
	d, err := x.deposits.GetDeposit(ctx, depositID)
	if err != nil {
		return "", err
	}
	if d.State != domain.StateAccepted {
		return "", &domain.TransitionError{Event: domain.EventDispatch, From: d.State}
	}
	c, ok := x.policies.Policy(d.CurrencyID)
	if !ok {
		return "", fmt.Errorf("collect deposit %d: no policy for currency %s", d.ID, d.CurrencyID)
	}

	route := RouteFor(d, c)
	if route == RouteSkipped {
		metrics.CollectionDispatch.WithLabelValues(string(route), "ok").Inc()
		logger.Info(ctx, "skipping escrow currency collection",
			zap.Int64("deposit_id", d.ID), zap.String("currency", d.CurrencyID))
		return route, nil
	}

	if err := x.enqueuer.Enqueue(ctx, route.Queue(), d.ID); err != nil {
		metrics.CollectionDispatch.WithLabelValues(string(route), "failed").Inc()
		logger.Error(ctx, "collection enqueue failed",
			zap.Int64("deposit_id", d.ID), zap.String("queue", route.Queue()), zap.Error(err))
		return route, err
	}
	metrics.CollectionDispatch.WithLabelValues(string(route), "ok").Inc()
	logger.Info(ctx, "deposit dispatched for collection",
		zap.Int64("deposit_id", d.ID), zap.String("queue", route.Queue()))
	return route, nil
}
