package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/ardanlabs/conf"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.10.0"

	"github.com/tbd54566975/ssi-holder/config"
	"github.com/tbd54566975/ssi-holder/internal/keyaccess"
	"github.com/tbd54566975/ssi-holder/pkg/credential"
	"github.com/tbd54566975/ssi-holder/pkg/holder"
	"github.com/tbd54566975/ssi-holder/pkg/storage"
	"github.com/tbd54566975/ssi-holder/pkg/trust"
)

func main() {
	logrus.Info("Starting up...")

	if err := run(); err != nil {
		logrus.Fatalf("main: error: %s", err.Error())
	}
}

func run() error {
	configPath := ""
	if _, err := os.Stat(config.DefaultConfigPath); err == nil {
		configPath = config.DefaultConfigPath
	}
	envConfigPath, present := os.LookupEnv(config.ConfigPath.String())
	if present {
		logrus.Infof("loading config from env var path: %s", envConfigPath)
		configPath = envConfigPath
	}
	cfg, err := config.LoadConfig(configPath, os.Args[1:])
	if err != nil {
		return errors.Wrap(err, "could not instantiate config")
	}
	if cfg == nil {
		// usage or version was printed
		return nil
	}

	// set up logger
	if logFile := configureLogger(cfg.Client.LogLevel, cfg.Client.LogLocation); logFile != nil {
		defer func(logFile *os.File) {
			if err = logFile.Close(); err != nil {
				logrus.WithError(err).Error("failed to close log file")
			}
		}(logFile)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// set up tracer
	if cfg.Client.JagerEnabled {
		tp, err := newTracerProvider(cfg)
		if err != nil {
			logrus.WithError(err).Error("could not instantiate tracer provider")
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := tp.Shutdown(shutdownCtx); err != nil {
					logrus.Errorf("main: failed to shutdown tracer: %s", err)
				}
			}()
		}
	}

	logrus.Infof("main: Started : %s initializing : version %q", config.ServiceName, cfg.Version.SVN)
	defer logrus.Info("main: Completed")

	out, err := conf.String(cfg)
	if err != nil {
		return errors.Wrap(err, "serializing config")
	}
	logrus.Debugf("main: Config: \n%v\n", out)

	db, err := openStorage(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			logrus.WithError(err).Error("main: failed to close storage")
		}
	}()

	store, err := credential.NewStorageStore(db)
	if err != nil {
		return errors.Wrap(err, "creating credential store")
	}
	logrus.Infof("main: %s storage at %s", db.Type(), store.Location())
	if err = maintainCredentials(ctx, store, cfg.Storage); err != nil {
		return err
	}

	if cfg.RequestURL == "" {
		logrus.Info("main: no request_url configured, nothing to answer")
		return nil
	}

	opts, err := holderOptions(cfg)
	if err != nil {
		return err
	}
	h, err := holder.New(ctx, store, cfg.Trust.TrustedDIDs, opts...)
	if err != nil {
		return errors.Wrap(err, "creating holder")
	}
	return answer(ctx, h, cfg.RequestURL)
}

// answer processes the request and consents to presenting every matching credential.
func answer(ctx context.Context, h *holder.Holder, requestURL string) error {
	pr, err := h.AuthorizationRequest(ctx, requestURL)
	if err != nil {
		return errors.Wrap(err, "processing authorization request")
	}
	if len(pr.Credentials()) == 0 {
		return errors.Errorf("no credentials satisfy the request of %s", pr.ClientID())
	}

	logrus.Infof("main: %s requests credentials: %s", pr.ClientID(), pr.Purpose())
	for _, c := range pr.Credentials() {
		for _, f := range pr.RequestedFields(c) {
			logrus.Infof("main: credential<%s> field<%s> required<%t> value<%s>", c.ID(), f.ResolvedPath, f.Required, f.Value)
		}
	}

	resp, err := pr.CreatePermissionResponse(pr.Credentials())
	if err != nil {
		return errors.Wrap(err, "creating permission response")
	}
	redirect, err := h.SubmitPermissionResponse(ctx, resp)
	if err != nil {
		return errors.Wrap(err, "submitting permission response")
	}
	if redirect != nil {
		logrus.Infof("main: verifier redirects to %s", redirect)
	}
	return nil
}

func openStorage(ctx context.Context, cfg config.StorageConfig) (storage.ServiceStorage, error) {
	db, err := storage.NewStorage(storage.Type(cfg.Provider), cfg.Options()...)
	if err != nil {
		return nil, errors.Wrap(err, "opening storage")
	}
	if cfg.Password == "" {
		return db, nil
	}
	encrypted, err := storage.NewPasswordEncryptedWrapper(ctx, db, cfg.Password)
	if err != nil {
		return nil, errors.Wrap(err, "opening encrypted storage")
	}
	return encrypted, nil
}

// maintainCredentials applies the configured resets, removals and imports to the store, in that order.
func maintainCredentials(ctx context.Context, store *credential.StorageStore, cfg config.StorageConfig) error {
	if cfg.Reset {
		if err := store.Clear(ctx); err != nil {
			return errors.Wrap(err, "clearing stored credentials")
		}
		logrus.Info("main: cleared stored credentials")
	}
	for _, id := range cfg.Remove {
		if err := store.Delete(ctx, id); err != nil {
			return errors.Wrapf(err, "removing credential %s", id)
		}
		logrus.Infof("main: removed credential<%s>", id)
	}
	if err := importCredentials(ctx, store, cfg.Import); err != nil {
		return err
	}
	if cfg.List {
		return listCredentials(ctx, store)
	}
	return nil
}

func listCredentials(ctx context.Context, store *credential.StorageStore) error {
	stored, err := store.List(ctx)
	if err != nil {
		return errors.Wrap(err, "listing stored credentials")
	}
	logrus.Infof("main: %d stored credentials", len(stored))
	for _, c := range stored {
		logrus.Infof("main: credential<%s> format<%s>", c.ID, c.Format)
	}
	return nil
}

func importCredentials(ctx context.Context, store *credential.StorageStore, paths []string) error {
	for _, path := range paths {
		raw, err := os.ReadFile(path)
		if err != nil {
			return errors.Wrapf(err, "reading credential %s", path)
		}
		parsed, err := credential.Parse(string(raw), "", "")
		if err != nil {
			return errors.Wrapf(err, "parsing credential %s", path)
		}
		stored := credential.StoredCredential{ID: parsed.ID(), Format: parsed.Format(), Raw: strings.TrimSpace(string(raw))}
		if err = store.Put(ctx, stored); err != nil {
			return errors.Wrapf(err, "storing credential %s", path)
		}
		logrus.Infof("main: imported credential<%s> as %s", parsed.ID(), parsed.Format())
	}
	return nil
}

func holderOptions(cfg *config.HolderConfig) ([]holder.Option, error) {
	opts := []holder.Option{
		holder.WithTimeout(cfg.Client.Timeout),
		holder.WithLocalResolutionMethods(cfg.Resolution.Methods...),
		holder.WithUniversalResolver(cfg.Resolution.UniversalResolverURL),
		holder.WithResolutionCache(cfg.Resolution.CacheTTL),
	}
	if cfg.Client.CAFile != "" || cfg.Client.CertFile != "" {
		opts = append(opts, holder.WithTLS(holder.TLSConfig{
			CAFile:   cfg.Client.CAFile,
			CertFile: cfg.Client.CertFile,
			KeyFile:  cfg.Client.KeyFile,
		}))
	}
	if cfg.Client.HolderKeyFile != "" {
		keyJSON, err := os.ReadFile(cfg.Client.HolderKeyFile)
		if err != nil {
			return nil, errors.Wrap(err, "reading holder key")
		}
		kid := cfg.Client.HolderKeyID
		if kid == "" {
			kid = cfg.Client.HolderDID
		}
		ka, err := keyaccess.NewJWKKeyAccessFromJSON(cfg.Client.HolderDID, kid, keyJSON)
		if err != nil {
			return nil, errors.Wrap(err, "loading holder key")
		}
		opts = append(opts, holder.WithHolderKey(ka))
	}
	if cfg.Trust.ServiceURL != "" {
		policy, err := trust.NewExternalService(cfg.Trust.ServiceURL, nil)
		if err != nil {
			return nil, errors.Wrap(err, "creating trust policy")
		}
		opts = append(opts, holder.WithTrustPolicy(policy))
	}
	return opts, nil
}

// newTracerProvider returns an OpenTelemetry TracerProvider configured to use
// the Jaeger exporter that will send spans to the provided url.
func newTracerProvider(cfg *config.HolderConfig) (*sdktrace.TracerProvider, error) {
	jagerHost := cfg.Client.JagerHost
	if jagerHost == "" {
		return nil, errors.New("no jager host provided")
	}
	exporter, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(jagerHost)))
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(config.ServiceName),
			semconv.ServiceVersionKey.String(cfg.Version.SVN),
		)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	return tp, nil
}

// configureLogger configures the logger to logs to the given location and returns a file pointer to a logs
// file that should be closed on exit
func configureLogger(level, location string) *os.File {
	if level != "" {
		logLevel, err := logrus.ParseLevel(level)
		if err != nil {
			logrus.WithError(err).Errorf("could not parse log level<%s>, setting to info", level)
			logrus.SetLevel(logrus.InfoLevel)
		} else {
			logrus.SetLevel(logLevel)
		}
	}

	logrus.SetFormatter(&logrus.JSONFormatter{
		DisableTimestamp: false,
		PrettyPrint:      true,
	})
	logrus.SetReportCaller(true)

	now := time.Now()
	logrus.SetOutput(os.Stdout)
	if location != "" {
		logFile := location + "/" + config.ServiceName + "-" + now.Format(time.DateOnly) + "-" + strconv.FormatInt(now.Unix(), 10) + ".log"
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			logrus.WithError(err).Warn("failed to create logs file, using default stdout")
		} else {
			mw := io.MultiWriter(os.Stdout, file)
			logrus.SetOutput(mw)
		}
		return file
	}
	return nil
}
