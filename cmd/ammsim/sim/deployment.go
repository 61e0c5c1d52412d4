// Package sim wires an in-memory deployment of the settlement core and runs
// scripted scenarios against it.
package sim

import (
	"log/slog"

	"github.com/defistate/defistate-amm-core/cmd/ammsim/config"
	"github.com/defistate/defistate-amm-core/events"
	"github.com/defistate/defistate-amm-core/governance"
	"github.com/defistate/defistate-amm-core/journal"
	"github.com/defistate/defistate-amm-core/ledger"
	"github.com/defistate/defistate-amm-core/protocols/poolregistry"
	"github.com/defistate/defistate-amm-core/protocols/tokenregistry"
	"github.com/defistate/defistate-amm-core/protocols/uniswapv2"
	"github.com/defistate/defistate-amm-core/router"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
)

// Deployment is one registry, its router and a reference external venue
// sharing a ledger and a journal.
type Deployment struct {
	Ledger     *ledger.Memory
	Journal    *journal.Journal
	Tokens     *tokenregistry.Registry
	Pools      *poolregistry.Registry
	Venue      *uniswapv2.Venue
	Router     *router.Router
	Controller common.Address

	logger *slog.Logger
}

// NewDeployment builds a deployment from cfg. Committed notifications go to
// emitter.
func NewDeployment(cfg *config.Config, emitter events.Emitter, logger *slog.Logger, reg prometheus.Registerer) (*Deployment, error) {
	tokens := tokenregistry.NewRegistry()
	for _, t := range cfg.Tokens {
		if _, err := tokens.Register(tokenregistry.Token{
			Address:  config.Address(t.Address),
			Name:     t.Name,
			Symbol:   t.Symbol,
			Decimals: t.Decimals,
		}); err != nil {
			return nil, err
		}
	}

	l := ledger.NewMemory()
	j := journal.New(l, emitter)
	controller := config.Address(cfg.Controller)
	gov, err := governance.NewController(controller)
	if err != nil {
		return nil, err
	}

	pools, err := poolregistry.NewRegistry(&poolregistry.Config{
		Governance:                  gov,
		FeeBps:                      cfg.Registry.FeeBps,
		ProtocolFeePortionBps:       cfg.Registry.ProtocolFeePortionBps,
		FeeRecipient:                config.Address(cfg.Registry.FeeRecipient),
		DisableMinimumLiquidityLock: cfg.Registry.DisableMinimumLiquidityLock,
		Journal:                     j,
		Logger:                      logger.With("component", "pool-registry"),
		Registry:                    reg,
	})
	if err != nil {
		return nil, err
	}

	venue, err := uniswapv2.NewVenue(&uniswapv2.Config{
		Account: config.Address(cfg.Venue.Account),
		Journal: j,
		Logger:  logger.With("component", "venue"),
	})
	if err != nil {
		return nil, err
	}

	r, err := router.NewRouter(&router.Config{
		Address:    config.Address(cfg.Router.Address),
		Pools:      pools,
		External:   venue,
		Governance: gov,
		Journal:    j,
		Logger:     logger.With("component", "router"),
		Registry:   reg,
	})
	if err != nil {
		return nil, err
	}
	if cfg.Router.ForwardingFeeBps != nil {
		if err := r.SetForwardingFee(controller, *cfg.Router.ForwardingFeeBps); err != nil {
			return nil, err
		}
	}

	return &Deployment{
		Ledger:     l,
		Journal:    j,
		Tokens:     tokens,
		Pools:      pools,
		Venue:      venue,
		Router:     r,
		Controller: controller,
		logger:     logger.With("component", "scenario"),
	}, nil
}
