package main

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
	"github.com/sourcegraph/conc/pool"
	"github.com/vadiminshakov/perpsplit/config"
	"github.com/vadiminshakov/perpsplit/internal/clients"
	"github.com/vadiminshakov/perpsplit/internal/domain"
	"github.com/vadiminshakov/perpsplit/internal/services/balances"
	"github.com/vadiminshakov/perpsplit/internal/services/execution"
	"github.com/vadiminshakov/perpsplit/internal/services/poller"
	"github.com/vadiminshakov/perpsplit/internal/services/positions"
	"github.com/vadiminshakov/perpsplit/internal/services/pricer"
	"github.com/vadiminshakov/perpsplit/internal/services/quote"
	"github.com/vadiminshakov/perpsplit/internal/services/registry"
	"github.com/vadiminshakov/perpsplit/internal/services/routing"
	"github.com/vadiminshakov/perpsplit/internal/services/session"
	"github.com/vadiminshakov/perpsplit/internal/services/valuation"
	"github.com/vadiminshakov/perpsplit/internal/storage/balancesnapshots"
	"github.com/vadiminshakov/perpsplit/internal/storage/simstate"
	"github.com/vadiminshakov/perpsplit/internal/storage/submissions"
	"github.com/vadiminshakov/perpsplit/internal/web"
	"github.com/vadiminshakov/perpsplit/pkg/retrier"
	"go.uber.org/zap"
)

const hyperliquidAPIURL = "https://api.hyperliquid.xyz"

// simulatedVault margin vault address used by the simulator.
var simulatedVault = common.BytesToAddress(crypto.Keccak256([]byte("perpsplit/simulated-vault")))

// venueAPIs preparation and execution endpoints, live or simulated.
type venueAPIs struct {
	pairs    registry.PairsSource
	balances balances.Reader
	primary  routing.PrimaryPreparer
	bridge   routing.Bridger
	executor routing.Executor
	feeds    []positions.Feed
}

type app struct {
	cfg    config.Config
	logger *zap.Logger

	registry  *registry.Registry
	oracle    *balances.Oracle
	book      *positions.Book
	board     *pricer.Board
	tracker   *valuation.Tracker
	drafts    *quote.Coalescer
	server    *web.Server
	snapshots *balancesnapshots.WALStore
	journal   *submissions.Journal
	bundler   *clients.BundlerClient
	chain     *ethclient.Client
}

func newApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	sessionKey, err := loadSessionKey(cfg)
	if err != nil {
		return nil, err
	}

	prices, err := buildPricers(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	a.snapshots, err = balancesnapshots.NewWALStore(filepath.Join(cfg.WALDir, "balance"))
	if err != nil {
		a.Close()
		return nil, err
	}
	a.journal, err = submissions.Open(filepath.Join(cfg.WALDir, "submissions"), logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	secondary := clients.NewSecondaryClient(cfg.SecondaryTrading, cfg.SpendDecimals, cfg.SecondaryAPIURL,
		cfg.RequestsPerSecond, nil, logger)

	var apis venueAPIs
	if cfg.Simulate {
		apis, err = a.simulatedAPIs(prices)
	} else {
		apis, err = a.liveAPIs(ctx, sessionKey, secondary)
	}
	if err != nil {
		a.Close()
		return nil, err
	}

	a.registry = registry.New(apis.pairs, cfg.SecondaryPairs, logger)
	a.oracle = balances.NewOracle(apis.balances, cfg.Owner, a.snapshots, logger)
	if apis.feeds == nil {
		apis.feeds = []positions.Feed{
			positions.NewPrimaryFeed(a.chainReader(), a.registry, cfg.SpendDecimals, logger),
			positions.NewSecondaryFeed(secondary, a.registry, cfg.SpendDecimals, logger),
		}
	}
	a.book = positions.NewBook(cfg.Owner, logger, apis.feeds...)
	a.board = pricer.NewBoard(prices, a.pairs, logger)
	a.tracker = valuation.NewTracker(a.book, a.board, logger)

	sessions := session.NewManager(cfg.Owner, crypto.PubkeyToAddress(sessionKey.PublicKey), logger)
	if cfg.Simulate {
		if _, err := sessions.Establish(cfg.Owner, cfg.Owner); err != nil {
			a.Close()
			return nil, err
		}
	}

	router := routing.NewRouter(routing.Deps{
		Markets:   a.registry,
		Balances:  a.oracle,
		Prices:    prices,
		Primary:   apis.primary,
		Secondary: secondary,
		Bridge:    apis.bridge,
		Executor:  apis.executor,
		Sessions:  sessions,
		Journal:   a.journal,
	}, routing.Options{
		Limits:          cfg.Limits,
		SplitOrders:     cfg.SplitOrders,
		SlippagePercent: cfg.SlippagePercent,
		SpendToken:      cfg.SpendToken,
		SpendDecimals:   cfg.SpendDecimals,
		CollateralIndex: cfg.CollateralIndex,
		Referrer:        cfg.Referrer,
	}, logger)

	a.drafts = quote.NewCoalescer(router.Quote, cfg.QuoteDelay, logger)
	a.server = web.NewServer(cfg.WebAddr, web.Deps{
		Router:      router,
		Drafts:      a.drafts,
		Sessions:    sessions,
		Submissions: a.journal,
		Balances:    a.oracle,
		Markets:     a.registry,
		Valuations:  a.tracker,
		Snapshots:   a.snapshots,
	}, logger)

	return a, nil
}

func (a *app) simulatedAPIs(prices pricer.Pricer) (venueAPIs, error) {
	store, err := simstate.NewStore(a.cfg.StateDir, a.cfg.Owner.Hex())
	if err != nil {
		return venueAPIs{}, err
	}
	sim, err := execution.NewSimulator(execution.Config{
		Vault:            simulatedVault,
		SpendToken:       a.cfg.SpendToken,
		SecondaryTrading: a.cfg.SecondaryTrading,
		SpendDecimals:    a.cfg.SpendDecimals,
		InitialVault:     a.cfg.Simulation.Vault,
		InitialSpend:     a.cfg.Simulation.Spend,
		InitialNative:    a.cfg.Simulation.Native,
		GasFee:           a.cfg.Simulation.GasWei.BigInt(),
	}, prices, store, a.logger)
	if err != nil {
		return venueAPIs{}, err
	}
	return venueAPIs{
		pairs:    registry.StaticSource(a.cfg.Simulation.Markets),
		balances: sim,
		primary:  sim,
		bridge:   sim,
		executor: sim,
		feeds:    []positions.Feed{sim.Feed(domain.VenuePrimary), sim.Feed(domain.VenueSecondary)},
	}, nil
}

func (a *app) liveAPIs(ctx context.Context, sessionKey *ecdsa.PrivateKey, secondary *clients.SecondaryClient) (venueAPIs, error) {
	r := retrier.New(
		retrier.WithMaxRetries(5),
		retrier.WithInitialInterval(time.Second),
		retrier.WithRetryIf(func(err error) bool {
			return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
		}),
		retrier.WithOnRetry(func(attempt int, err error, wait time.Duration) {
			a.logger.Warn("rpc not ready, retrying",
				zap.Int("attempt", attempt), zap.Duration("wait", wait), zap.Error(err))
		}),
	)

	chain, err := retrier.DoWithData(r, ctx, func(ctx context.Context) (*ethclient.Client, error) {
		return ethclient.DialContext(ctx, a.cfg.RPCURL)
	})
	if err != nil {
		return venueAPIs{}, errors.Wrap(err, "dial rpc")
	}
	a.chain = chain

	chainID, err := retrier.DoWithData(r, ctx, func(ctx context.Context) (*big.Int, error) {
		return chain.ChainID(ctx)
	})
	if err != nil {
		return venueAPIs{}, errors.Wrap(err, "probe chain id")
	}
	a.logger.Info("connected to chain", zap.String("chain_id", chainID.String()))

	a.bundler, err = clients.NewBundlerClient(ctx, a.cfg.BundlerURL, a.cfg.EntryPoint, sessionKey, a.logger)
	if err != nil {
		return venueAPIs{}, err
	}

	primary := clients.NewPrimaryClient(a.cfg.PrimaryAPIURL, a.cfg.RequestsPerSecond, nil, a.logger)
	return venueAPIs{
		pairs: primary,
		balances: balances.NewChainBalances(a.chainReader(), a.cfg.SpendDecimals,
			a.cfg.VaultDecimals, a.cfg.NativeDecimals),
		primary:  primary,
		bridge:   clients.NewBridgeClient(a.cfg.BridgeAPIURL, a.cfg.RequestsPerSecond, nil, a.logger),
		executor: a.bundler,
	}, nil
}

func (a *app) chainReader() *clients.ChainReader {
	return clients.NewChainReader(a.chain, a.cfg.LensAddress, a.logger)
}

// pairs lists the registry pairs for the mark-price board.
func (a *app) pairs() []domain.Pair {
	markets := a.registry.Markets()
	out := make([]domain.Pair, 0, len(markets))
	for pair := range markets {
		out = append(out, pair)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Run starts the pollers, the valuation tracker and the API server, and blocks until ctx is cancelled
// or one of them fails.
func (a *app) Run(ctx context.Context) error {
	cfg := a.cfg
	pollers := []*poller.Poller{
		poller.New("markets", cfg.MarketsInterval, a.registry.Refresh, a.logger),
		poller.New("balances", cfg.BalanceInterval, a.oracle.Poll, a.logger),
		poller.New("marks", cfg.PricesInterval, a.board.Poll, a.logger),
	}
	for _, v := range a.book.Venues() {
		pollers = append(pollers, poller.New("positions-"+v.String(), cfg.PositionsInterval, a.book.Poller(v), a.logger))
	}

	p := pool.New().WithContext(ctx).WithCancelOnError().WithFirstError()
	for _, pl := range pollers {
		p.Go(func(ctx context.Context) error {
			return ignoreCancel(pl.Run(ctx))
		})
	}
	p.Go(func(ctx context.Context) error {
		return ignoreCancel(a.tracker.Run(ctx))
	})
	p.Go(func(ctx context.Context) error {
		if cfg.TLSDomain != "" {
			return a.server.StartWithAutoTLS(ctx, strings.Split(cfg.TLSDomain, ","), filepath.Join(cfg.StateDir, "certs"))
		}
		return a.server.Start(ctx)
	})

	a.logger.Info("perpsplit started",
		zap.Bool("simulate", cfg.Simulate),
		zap.String("owner", cfg.Owner.Hex()),
		zap.String("api", cfg.WebAddr))
	return p.Wait()
}

// Close releases stores and connections. Safe on a partially built app.
func (a *app) Close() {
	if a.drafts != nil {
		a.drafts.Close()
	}
	if a.bundler != nil {
		a.bundler.Close()
	}
	if a.chain != nil {
		a.chain.Close()
	}
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			a.logger.Warn("close submission journal", zap.Error(err))
		}
	}
	if a.snapshots != nil {
		if err := a.snapshots.Close(); err != nil {
			a.logger.Warn("close balance snapshots", zap.Error(err))
		}
	}
}

func loadSessionKey(cfg config.Config) (*ecdsa.PrivateKey, error) {
	if cfg.SessionKey == "" {
		// simulate mode without a key gets an ephemeral one
		return crypto.GenerateKey()
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimPrefix(cfg.SessionKey, "0x"), "0X"))
	if err != nil {
		return nil, errors.Wrapf(err, "parse %s", config.EnvSessionKey)
	}
	return key, nil
}

func buildPricers(ctx context.Context, cfg config.Config, logger *zap.Logger) (pricer.Pricer, error) {
	var list []pricer.Pricer
	for _, name := range cfg.Pricers {
		switch name {
		case config.PricerBinance:
			list = append(list, pricer.NewBinancePricer(
				clients.NewBinanceClient(cfg.BinanceAPIKey, cfg.BinanceAPISecret), cfg.PriceQuote))
		case config.PricerBybit:
			list = append(list, pricer.NewBybitPricer(
				clients.NewBybitClient(cfg.BybitAPIKey, cfg.BybitAPISecret), cfg.PriceQuote))
		case config.PricerHyperliquid:
			hl, err := clients.NewHyperliquidReadOnlyClient(ctx, hyperliquidAPIURL)
			if err != nil {
				return nil, err
			}
			list = append(list, pricer.NewHyperliquidPricer(hl.Info()))
		}
	}
	return pricer.NewChain(logger, list...), nil
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
