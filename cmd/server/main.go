package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/keithlinneman/httppipe/internal/apphttp"
	"github.com/keithlinneman/httppipe/internal/cfg"
	"github.com/keithlinneman/httppipe/internal/health"
	"github.com/keithlinneman/httppipe/internal/httpmw"
	"github.com/keithlinneman/httppipe/internal/httpserver"
	"github.com/keithlinneman/httppipe/internal/log"
	"github.com/keithlinneman/httppipe/internal/metrics"
	"github.com/keithlinneman/httppipe/internal/opshttp"
	"github.com/keithlinneman/httppipe/internal/otelx"
	"github.com/keithlinneman/httppipe/internal/prof"
	"github.com/keithlinneman/httppipe/internal/ratelimit"
	v "github.com/keithlinneman/httppipe/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	vi := v.Get()

	var conf cfg.App
	var showVersion bool

	cfg.Register(flag.CommandLine, &conf)
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("%s (commit_date=%s, build_id=%s, build_date=%s, go=%s)\n",
			vi, vi.CommitDate, vi.BuildId, vi.BuildDate, vi.GoVersion)
		os.Exit(0)
	}

	// .env is optional; real environment variables win over it
	_ = godotenv.Load()

	// precedence: cli > env > config file > default
	stderrf := func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
	cfg.FillFromEnv(flag.CommandLine, cfg.EnvPrefix, stderrf)
	if err := cfg.LoadFile(flag.CommandLine, conf.ConfigFile, stderrf); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}
	if err := cfg.Validate(conf); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	// Setup logging
	lvl, _ := log.ParseLevel(conf.LogLevel)
	stackLvl, _ := log.ParseLevel(conf.StacktraceLevel)
	L, err := log.New(log.Options{
		App:               v.AppName,
		Component:         v.Component,
		Version:           vi.Version,
		Level:             lvl,
		StacktraceLevel:   stackLvl,
		JsonFormat:        conf.LogJSON,
		MaxErrorLinks:     conf.MaxErrorLinks,
		IncludeErrorLinks: conf.IncludeErrorLinks,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
		os.Exit(1)
	}
	defer func() { _ = L.Sync() }()
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "initializing application", append(vi.LogFields(), conf.LogFields()...)...)
	if conf.APIKey == "" {
		L.Warn(ctx, "no api key configured, every request under the secure prefix will be rejected",
			"secure_prefix", conf.SecurePrefix,
		)
	}

	m := metrics.New()
	m.SetBuildInfoFromVersion(v.AppName, v.Component, &vi)

	// Setup pyroscope profiling
	stopProf, err := prof.Start(ctx, prof.Options{
		Enabled:       conf.EnablePyroscope,
		AppName:       v.AppName + "." + v.Component,
		ServerAddress: conf.PyroServer,
		TenantID:      conf.PyroTenantID,
		Tags: map[string]string{
			"app":       v.AppName,
			"component": v.Component,
			"version":   vi.Version,
			"commit":    vi.Commit,
			"source":    "go-agent",
		},
		OnActive: m.SetProfilingActive,
	})
	if err != nil {
		L.Error(ctx, err, "pyroscope start failed", "pyro_server", conf.PyroServer)
	}
	defer stopProf()

	// Insecure because the collector runs on localhost
	shutdownOTEL, err := otelx.Init(ctx, otelx.Options{
		Enabled:   conf.EnableTracing,
		Endpoint:  conf.OTLPEndpoint,
		Insecure:  true,
		Sample:    conf.TraceSample,
		Service:   v.AppName,
		Component: v.Component,
		Version:   vi.Version,
	})
	if err != nil {
		L.Error(ctx, err, "otel init failed")
		shutdownOTEL = func(context.Context) error { return nil }
	}
	defer func() { _ = shutdownOTEL(context.Background()) }()

	// readiness fails as soon as shutdown starts
	var gate health.DrainGate
	readiness := health.Named("shutdown", &gate)

	var limiter *ratelimit.Limiter
	if conf.RateLimitRPS > 0 {
		limiter = ratelimit.New(ctx,
			ratelimit.WithRate(conf.RateLimitRPS, conf.RateLimitBurst),
			ratelimit.WithOnDenied(func(string) { m.IncRateLimitDenied() }),
			// logged once per client until its bucket is swept
			ratelimit.WithOnFirstDenied(func(key string) {
				L.Warn(ctx, "rate limit triggered", "client.address", key)
			}),
			ratelimit.WithOnCapacity(func() {
				m.IncRateLimitCapacity()
				L.Warn(ctx, "rate limit capacity reached, rejecting new clients until some are evicted")
			}),
		)
	}

	app := apphttp.New(&apphttp.Options{
		Logger:            L,
		Metrics:           m,
		CorrelationHeader: conf.CorrelationHeader,
		APIKey:            conf.APIKey,
		APIKeyHeader:      conf.APIKeyHeader,
		SecurePrefix:      conf.SecurePrefix,
		ClientIP:          httpmw.ClientIPOptions{TrustedHops: conf.TrustedHops},
		RateLimiter:       limiter,
		Readiness:         readiness,
	})

	appStop, err := httpserver.Start(ctx, &httpserver.Options{
		Logger:  L,
		Port:    conf.HTTPPort,
		Handler: app,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start http listener")
		os.Exit(1)
	}
	defer func() { _ = appStop(context.Background()) }()

	// ops listener rejects public peers itself in case the network
	// policy in front of it is ever misconfigured
	opsStop, err := opshttp.Start(ctx, L, &opshttp.Options{
		Port:        conf.AdminPort,
		Metrics:     m.Handler(),
		EnablePprof: conf.EnablePprof,
		Health:      health.Fixed(true, ""),
		Readiness:   readiness,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		os.Exit(1)
	}
	defer func() { _ = opsStop(context.Background()) }()

	if err := notifySystemd(); err != nil {
		L.Debug(ctx, "systemd readiness not sent", "reason", err.Error())
	}

	<-ctx.Done()
	stop()
	bg := context.Background()
	L.Info(bg, "shutdown signal received")

	gate.Drain("draining")
	L.Info(bg, "shutdown gate closed, draining", "drain_period", conf.DrainPeriod.String())

	forceCh := make(chan os.Signal, 1)
	signal.Notify(forceCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-time.After(conf.DrainPeriod):
		L.Info(bg, "drain period complete")
	case <-forceCh:
		_, since, _ := gate.Draining()
		L.Warn(bg, "second signal received, skipping drain", "drained_for", time.Since(since).String())
	}
	signal.Stop(forceCh)

	shutdownCtx, cancel := context.WithTimeout(bg, 10*time.Second)
	defer cancel()

	if err := appStop(shutdownCtx); err != nil {
		L.Error(bg, err, "http server shutdown")
	}
	if err := opsStop(shutdownCtx); err != nil {
		L.Error(bg, err, "ops http server shutdown")
	}
	if err := shutdownOTEL(shutdownCtx); err != nil {
		L.Error(bg, err, "otel shutdown")
	}
	stopProf()

	L.Info(bg, "shutdown complete")
}

func notifySystemd() error {
	// set by systemd for Type=notify units
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return fmt.Errorf("NOTIFY_SOCKET not set")
	}
	conn, err := net.Dial("unixgram", addr)
	if err != nil {
		return fmt.Errorf("systemd notify: dial: %w", err)
	}
	if _, err := conn.Write([]byte("READY=1")); err != nil {
		_ = conn.Close()
		return fmt.Errorf("systemd notify: write: %w", err)
	}
	if err := conn.Close(); err != nil {
		return fmt.Errorf("systemd notify: close: %w", err)
	}
	return nil
}
