package main

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dive-coalition/federation/internal/api"
	"github.com/dive-coalition/federation/internal/audit"
	"github.com/dive-coalition/federation/internal/authz"
	"github.com/dive-coalition/federation/internal/breaker"
	"github.com/dive-coalition/federation/internal/config"
	"github.com/dive-coalition/federation/internal/metrics"
	"github.com/dive-coalition/federation/internal/policy"
	"github.com/dive-coalition/federation/internal/registry"
	"github.com/dive-coalition/federation/internal/telemetry"
	"github.com/dive-coalition/federation/internal/token"
	"github.com/dive-coalition/federation/internal/trust"
	"golang.org/x/sync/errgroup"
)

// Set at build time via -ldflags.
var (
	version   = "dev"
	gitCommit = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := config.NewLogger(cfg.Logging, cfg.Instance.Code)
	logger.Info().
		Str("version", version).
		Msg("starting federation core")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.Tracing, version)
	if err != nil {
		logger.Error().Err(err).Msg("tracing init failed")
	}

	topo, err := config.LoadTopology(cfg.TopologyFile)
	if err != nil {
		logger.Fatal().Err(err).Str("file", cfg.TopologyFile).Msg("topology load failed")
	}

	signingKey, err := loadSigningKey(cfg.Instance.SigningKeyFile)
	if err != nil {
		logger.Fatal().Err(err).Msg("signing key load failed")
	}

	reg := registry.New(topo)
	matrix := trust.NewMatrix(trust.NewStaticStore(topo), reg)
	translator := trust.NewTranslator(topo.ClassificationMappings)
	auditLog := audit.NewLogger(logger)

	breakers := breaker.NewRegistry(breaker.Config{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		FailureWindow:    cfg.Breaker.FailureWindow,
		RecoveryTimeout:  cfg.Breaker.RecoveryTimeout,
		HalfOpenTimeout:  cfg.Breaker.HalfOpenTimeout,
		SuccessThreshold: cfg.Breaker.SuccessThreshold,
		HalfOpenRatio:    cfg.Breaker.HalfOpenRatio,
	}, metrics.BreakerObserver{}, audit.NewCircuitObserver(auditLog))
	defer breakers.Stop()

	localPolicy := policy.NewLocalClient(cfg.Policy.EngineURL, cfg.Policy.PolicyPath, cfg.Policy.Timeout)
	validator := token.NewValidator(token.ValidatorConfig{
		LocalInstance:    cfg.Instance.Code,
		IntrospectionTTL: cfg.Token.IntrospectionTTL,
		JWKSTTL:          cfg.Token.JWKSTTL,
		RemoteTimeout:    cfg.Token.RemoteTimeout,
	}, reg, matrix, breakers, nil, logger)
	exchanger := token.NewExchanger(token.ExchangerConfig{
		InstanceCode: cfg.Instance.Code,
		KeyID:        strings.ToLower(cfg.Instance.Code) + "-exchange-key",
		TTL:          cfg.Token.ExchangeTTL,
	}, signingKey, matrix)
	evaluator := authz.NewEvaluator(authz.Config{
		LocalInstance: cfg.Instance.Code,
		RemoteTimeout: cfg.Token.RemoteTimeout,
	}, reg, matrix, translator, breakers, localPolicy,
		policy.NewRemoteClient(nil, cfg.Token.RemoteTimeout), auditLog, logger)

	router, stopLimiter := api.NewRouter(api.Deps{
		Config:      cfg,
		Logger:      logger,
		Registry:    reg,
		Matrix:      matrix,
		Evaluator:   evaluator,
		Validator:   validator,
		Exchanger:   exchanger,
		Breakers:    breakers,
		LocalPolicy: localPolicy,
		VerifyKey:   &signingKey.PublicKey,
		Version:     version,
		GitCommit:   gitCommit,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", server.Addr).Msg("listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown error")
		}
		stopLimiter()
		return shutdownTracing(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal().Err(err).Msg("server error")
	}
}

// loadSigningKey reads the instance's RSA private key. PKCS#1 and PKCS#8
// PEM encodings are accepted.
func loadSigningKey(path string) (*rsa.PrivateKey, error) {
	if path == "" {
		return nil, errors.New("FEDERATION_SIGNING_KEY_FILE is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read signing key: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("signing key is not PEM encoded")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse signing key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("signing key is not an RSA key")
	}
	return key, nil
}
