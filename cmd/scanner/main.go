package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/tjobarow/okta-fastpass-deployment-toolkit/config"
	"github.com/tjobarow/okta-fastpass-deployment-toolkit/director"
	logsetup "github.com/tjobarow/okta-fastpass-deployment-toolkit/log"
	"github.com/tjobarow/okta-fastpass-deployment-toolkit/okta"
	"github.com/tjobarow/okta-fastpass-deployment-toolkit/prometheus"
)

// Exit codes so schedulers can tell apart a clean run, a bad config, an API
// failure and a run that finished with some users or apps skipped
const (
	exitOK          = 0
	exitConfigError = 2
	exitAPIError    = 3
	exitPartial     = 4
)

func main() {
	os.Exit(run())
}

func run() int {
	var debugMode bool
	var envFile string
	var appListPath string
	var outputDir string
	flag.BoolVar(&debugMode, "debug", false, "Enable debug output")
	flag.StringVar(&envFile, "env", "", "Path to a .env file (default ./.env if present)")
	flag.StringVar(&appListPath, "apps", "", "Path to the application scope CSV (overrides APP_LIST_PATH)")
	flag.StringVar(&outputDir, "output", "", "Directory for the report CSV (overrides OUTPUT_DIR)")
	flag.Parse()

	cfg, err := config.Load(envFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitConfigError
	}
	if appListPath != "" {
		cfg.AppListPath = appListPath
	}
	if outputDir != "" {
		cfg.OutputDir = outputDir
	}
	if err := cfg.ValidateScan(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitConfigError
	}

	logFile, err := logsetup.Setup(debugMode, cfg.LogDir, cfg.LogFileName)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitConfigError
	}
	defer logFile.Close()

	labels, err := director.LoadAppList(cfg.AppListPath)
	if err != nil {
		log.Error(err)
		return exitConfigError
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, time.Duration(cfg.RunTimeoutMin)*time.Minute)
	defer cancel()

	if cfg.MetricsPort != "" {
		port, err := strconv.Atoi(cfg.MetricsPort)
		if err != nil {
			log.Errorf("METRICS_PORT %q is not a number", cfg.MetricsPort)
			return exitConfigError
		}
		director.Metrics(nil)
		prometheus.Serve(port)
	}

	client := okta.NewClient(cfg.OktaURL, cfg.OktaToken, cfg.RateLimitPerSec)
	scanner := director.NewScanner(client, cfg.ScanWorkers)

	reportPath := director.ReportFileName(cfg.OutputDir, time.Now())
	report, err := director.NewReportWriter(reportPath)
	if err != nil {
		log.Error(err)
		return exitAPIError
	}

	log.Infof("scanning %d applications, report will be written to %s", len(labels), reportPath)
	summary, runErr := scanner.Run(ctx, labels, report)
	if err := report.Close(); err != nil {
		log.Error(err)
		if runErr == nil {
			runErr = err
		}
	}

	cachePath := filepath.Join(cfg.OutputDir, director.DeviceCacheFileName)
	if err := scanner.SaveDeviceCache(cachePath); err != nil {
		log.Warnf("device cache not written: %v", err)
	} else {
		log.Infof("device cache written to %s", cachePath)
	}

	director.InfoLogger(director.LogHolder{
		RunID:   summary.RunID,
		Message: fmt.Sprintf("scan finished: %d apps resolved of %d requested, %d users scanned, %d flagged for re-enrollment, %d without a push factor, %d users skipped, %d devices skipped",
			summary.AppsResolved, summary.AppsRequested, summary.UsersScanned, summary.AtRisk, summary.NoPushFactor, summary.UsersSkipped, summary.DevicesSkipped),
	})

	if runErr != nil {
		log.Errorf("scan did not complete: %v", runErr)
		return exitAPIError
	}
	if summary.UsersSkipped > 0 || summary.DevicesSkipped > 0 ||
		len(summary.AppsNotFound) > 0 || len(summary.AppsFailed) > 0 {
		log.Warn("scan completed with gaps, review the log before acting on the report")
		return exitPartial
	}
	return exitOK
}
