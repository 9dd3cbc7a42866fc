// Command datumplan runs the decision-of-record engine: the Standards
// Overlay Engine, plan generation/governance, profile lifecycle, and
// compliance traceability, as one HTTP service or as one-shot CLI
// subcommands against the same core packages.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/SodiumBank/Datum/pkg/api"
	"github.com/SodiumBank/Datum/pkg/config"
	"github.com/SodiumBank/Datum/pkg/export"
	"github.com/SodiumBank/Datum/pkg/observability"
	"github.com/SodiumBank/Datum/pkg/profiles"
	"github.com/SodiumBank/Datum/pkg/standards"
	"github.com/SodiumBank/Datum/pkg/store"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing; it never calls os.Exit itself.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		runServer()
		return 0
	}

	switch args[1] {
	case "serve", "server":
		runServer()
		return 0
	case "soe":
		return runSOECmd(args[2:], stdout, stderr)
	case "replay":
		return runReplayCmd(args[2:], stdout, stderr)
	case "health":
		return runHealthCmd(stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "datumplan — manufacturing decision-of-record engine")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "USAGE:")
	fmt.Fprintln(w, "  datumplan <command> [flags]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "COMMANDS:")
	fmt.Fprintln(w, "  serve    Run the HTTP API (default)")
	fmt.Fprintln(w, "  soe      Evaluate the Standards Overlay Engine against a fixture (--input, --run-id)")
	fmt.Fprintln(w, "  replay   Re-run an SOE run in audit-replay mode and diff the decisions (--run)")
	fmt.Fprintln(w, "  health   Check server health over HTTP")
	fmt.Fprintln(w, "  help     Show this help")
	fmt.Fprintln(w, "")
}

func runHealthCmd(out, errOut io.Writer) int {
	resp, err := http.Get("http://localhost:8081/health")
	if err != nil {
		fmt.Fprintf(errOut, "health check failed: %v\n", err)
		return 1
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(errOut, "health check failed: status %d\n", resp.StatusCode)
		return 1
	}
	fmt.Fprintln(out, "OK")
	return 0
}

func runServer() {
	ctx := context.Background()
	logger := slog.Default()
	cfg := config.Load()

	obs, err := observability.New(ctx, &observability.Config{
		ServiceName:  "datumplan-engine",
		OTLPEndpoint: cfg.OTLPEndpoint,
		Enabled:      cfg.OTLPEndpoint != "",
		SampleRate:   1.0,
	})
	if err != nil {
		log.Fatalf("init observability: %v", err)
	}
	defer obs.Shutdown(ctx)

	driverName := "sqlite"
	if cfg.StoreDriver == "postgres" {
		driverName = "postgres"
	}
	db, err := sql.Open(driverName, cfg.StoreDSN)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer db.Close()

	sqlStore := store.NewSQLStore(db)
	if err := sqlStore.Init(ctx); err != nil {
		log.Fatalf("init store schema: %v", err)
	}

	industryProfiles, err := config.LoadAllIndustryProfiles(cfg.ProfilesDir)
	if err != nil {
		logger.Warn("loading industry profile fixtures", "error", err, "dir", cfg.ProfilesDir)
		industryProfiles = map[string]*profiles.IndustryProfile{}
	}
	profileRegistry := profiles.NewMemoryRegistry()
	for _, ip := range industryProfiles {
		profileRegistry.PutIndustryProfile(ip)
	}

	packRegistry, err := standards.NewMemoryRegistry()
	if err != nil {
		log.Fatalf("init standards registry: %v", err)
	}

	server := api.NewServer(logger, profileRegistry, packRegistry, sqlStore, sqlStore)

	if cfg.ExportS3Bucket != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.ExportS3Region))
		if err != nil {
			log.Fatalf("load aws config: %v", err)
		}
		sink := export.NewS3Sink(s3.NewFromConfig(awsCfg), cfg.ExportS3Bucket, cfg.ExportS3Prefix)
		server.WithExportSink(sink)
	}

	mux := http.NewServeMux()
	server.Routes(mux)

	globalLimiter := api.NewGlobalRateLimiter(50, 100)
	handler := globalLimiter.Middleware(mux)

	go func() {
		logger.Info("datumplan api listening", "port", cfg.Port)
		if err := http.ListenAndServe(":"+cfg.Port, handler); err != nil {
			logger.Error("api server stopped", "error", err)
		}
	}()

	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	go func() {
		logger.Info("datumplan health endpoint listening", "port", 8081)
		if err := http.ListenAndServe(":8081", healthMux); err != nil {
			logger.Error("health server stopped", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("datumplan shutting down")
}
