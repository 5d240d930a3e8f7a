package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/openpredict/predictiondao/internal/bank"
	s3blob "github.com/openpredict/predictiondao/internal/blob/s3"
	"github.com/openpredict/predictiondao/internal/cache/redis"
	"github.com/openpredict/predictiondao/internal/chain"
	"github.com/openpredict/predictiondao/internal/config"
	"github.com/openpredict/predictiondao/internal/crypto"
	"github.com/openpredict/predictiondao/internal/domain"
	"github.com/openpredict/predictiondao/internal/engine"
	"github.com/openpredict/predictiondao/internal/notify"
	"github.com/openpredict/predictiondao/internal/service"
	"github.com/openpredict/predictiondao/internal/store/postgres"
	"github.com/openpredict/predictiondao/internal/token"
)

// Reserved ledger accounts the components use to custody pooled funds. They
// are fixed addresses with no corresponding private key, so nothing can move
// value out of them except the owning component.
var (
	tokenAccount  = common.HexToAddress("0x0000000000000000000000000000000000000101")
	engineAccount = common.HexToAddress("0x0000000000000000000000000000000000000102")
)

// Dependencies bundles everything the application modes need to operate. It
// is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Stores
	MarketStore   domain.MarketStore
	ProposalStore domain.ProposalStore
	EventStore    domain.EventStore

	// Caches and messaging
	MarketCache domain.MarketCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage (nil unless the mode archives)
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   *s3blob.Archiver

	// Core ledger components
	Signer *crypto.Signer
	Ledger *bank.Ledger
	Head   *chain.Head
	Token  *token.Token
	Engine *engine.Engine

	// Services
	Relay   *service.EventRelay
	Markets *service.MarketService
	Tokens  *service.TokenService

	// Notifications
	Notifier *notify.Notifier
	Watcher  *notify.Watcher
}

// needsS3 reports whether the given mode exports the archive. Archive mode
// exists only for that purpose; full mode archives when it is enabled.
func needsS3(cfg *config.Config) bool {
	switch cfg.Mode {
	case "archive":
		return true
	case "full":
		return cfg.S3.ArchiveEnabled
	default:
		return false
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.MarketStore = postgres.NewMarketStore(pool)
	deps.ProposalStore = postgres.NewProposalStore(pool)
	deps.EventStore = postgres.NewEventStore(pool)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.MarketCache = redis.NewMarketCache(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	bus := redis.NewSignalBus(redisClient)
	deps.SignalBus = bus

	// --- Owner key ---
	keyHex, err := crypto.LoadKey(crypto.KeyConfig{
		RawPrivateKey:    cfg.Owner.PrivateKey,
		EncryptedKeyPath: cfg.Owner.EncryptedKeyPath,
		KeyPassword:      cfg.Owner.KeyPassword,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: owner key: %w", err)
	}
	signer, err := crypto.NewSigner(keyHex)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: owner signer: %w", err)
	}
	deps.Signer = signer
	owner := signer.Address()

	// --- Core ledger components ---
	// The relay is the event sink for both components; it only enqueues, so
	// emitting under the engine mutex never touches Redis or Postgres.
	relay := service.NewEventRelay(deps.EventStore, bus, bus, logger)
	deps.Relay = relay

	ledger := bank.NewLedger()
	head := chain.NewHead()
	clock := chain.SystemClock{}
	deps.Ledger = ledger
	deps.Head = head

	gov := token.New(token.Config{
		Owner:            owner,
		Account:          tokenAccount,
		InitialSupply:    config.Amount(cfg.Token.InitialSupply),
		Rate:             config.Amount(cfg.Token.Rate),
		BuyFeeBps:        cfg.Token.BuyFeeBps,
		SellFeeBps:       cfg.Token.SellFeeBps,
		MaxBuyPerTx:      config.Amount(cfg.Token.MaxBuyPerTx),
		MaxSellPerTx:     config.Amount(cfg.Token.MaxSellPerTx),
		MaxBuyPerAddress: config.Amount(cfg.Token.MaxBuyPerAddress),
		FeeRecipient:     parseAddress(cfg.Token.FeeRecipient),
	}, ledger, head, clock, relay, logger)
	deps.Token = gov

	eng := engine.New(engine.Config{
		Owner:             owner,
		Account:           engineAccount,
		CreatorBond:       config.Amount(cfg.Engine.CreatorBond),
		ResolverBond:      config.Amount(cfg.Engine.ResolverBond),
		FeeBps:            cfg.Engine.FeeBps,
		ReturnFeeBps:      cfg.Engine.ReturnFeeBps,
		SoloBonusBps:      cfg.Engine.SoloBonusBps,
		ResolverRewardBps: cfg.Engine.ResolverRewardBps,
		DisputeWindow:     cfg.Engine.DisputeWindow.Duration,
		VotingPeriod:      cfg.Engine.VotingPeriod.Duration,
		Executors:         parseAddresses(cfg.Engine.Executors),
	}, gov, ledger, head, clock, relay, logger)
	deps.Engine = eng

	// --- Services ---
	deps.Markets = service.NewMarketService(
		eng, deps.MarketStore, deps.ProposalStore, deps.EventStore,
		deps.MarketCache, deps.LockManager, logger,
	)
	deps.Tokens = service.NewTokenService(gov, deps.LockManager, logger)

	// --- S3 blob storage ---
	if needsS3(cfg) {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		writer := s3blob.NewWriter(s3Client)
		reader := s3blob.NewReader(s3Client)
		deps.BlobWriter = writer
		deps.BlobReader = reader
		deps.Archiver = s3blob.NewArchiver(writer, reader, deps.MarketStore, deps.EventStore, logger)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
	deps.Watcher = notify.NewWatcher(bus, deps.Notifier, logger)

	return deps, cleanup, nil
}

// parseAddress decodes a hex address, returning the zero address for an
// empty string.
func parseAddress(s string) common.Address {
	if s == "" {
		return common.Address{}
	}
	return common.HexToAddress(s)
}

func parseAddresses(in []string) []common.Address {
	out := make([]common.Address, 0, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		out = append(out, common.HexToAddress(s))
	}
	return out
}
