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
	"github.com/tjobarow/okta-fastpass-deployment-toolkit/db"
	"github.com/tjobarow/okta-fastpass-deployment-toolkit/director"
	logsetup "github.com/tjobarow/okta-fastpass-deployment-toolkit/log"
	"github.com/tjobarow/okta-fastpass-deployment-toolkit/mail"
	"github.com/tjobarow/okta-fastpass-deployment-toolkit/okta"
	"github.com/tjobarow/okta-fastpass-deployment-toolkit/prometheus"
	"github.com/tjobarow/okta-fastpass-deployment-toolkit/types"
)

const (
	exitOK          = 0
	exitConfigError = 2
	exitAPIError    = 3
	exitPartial     = 4
)

const exampleCSV = `userId,userName,userFullName,userEmail,oktaVerifyExistingFactor,appsInScope,scannedAt
00u1a2b3c4d5e6f7g8h9,jdoe@example.com,Jane Doe,jdoe@example.com,true,Slack;Zoom,2026-03-14T10:30:00Z
,ssmith@example.com,Sam Smith,ssmith@example.com,true,Zoom,2026-03-14T10:30:00Z
`

func main() {
	os.Exit(run())
}

func run() int {
	var debugMode bool
	var envFile string
	var csvPath string
	var notify bool
	var dateOfChange string
	var verifyEnrollment bool
	var useCachedDevices bool
	var printExample bool
	var wave string
	flag.BoolVar(&debugMode, "debug", false, "Enable debug output")
	flag.StringVar(&envFile, "env", "", "Path to a .env file (default ./.env if present)")
	flag.StringVar(&csvPath, "path", "", "Path to the scan report CSV (overrides USER_CSV_PATH)")
	flag.BoolVar(&notify, "notification", false, "Send the proactive heads-up email instead of resetting factors")
	flag.StringVar(&dateOfChange, "date", "", "Human-readable date of the upcoming change, required with -notification")
	flag.BoolVar(&verifyEnrollment, "verifyenrollment", false, "Re-check device enrollment for the users in the CSV, read-only")
	flag.BoolVar(&useCachedDevices, "usecacheddevices", false, "Reuse the device cache from a previous run instead of listing devices")
	flag.BoolVar(&printExample, "example", false, "Print an example input CSV and exit")
	flag.StringVar(&wave, "wave", "", "Wave identifier for the remediation ledger (default today's date)")
	flag.Parse()

	if printExample {
		fmt.Print(exampleCSV)
		return exitOK
	}

	cfg, err := config.Load(envFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitConfigError
	}
	if csvPath == "" {
		csvPath = cfg.UserCSVPath
	}
	if csvPath == "" {
		fmt.Fprintln(os.Stderr, "no input CSV: set USER_CSV_PATH or pass -path")
		return exitConfigError
	}

	switch {
	case verifyEnrollment:
		err = cfg.ValidateVerify()
	case notify:
		if dateOfChange == "" {
			fmt.Fprintln(os.Stderr, "-notification requires -date")
			return exitConfigError
		}
		err = cfg.ValidateNotify()
	default:
		err = cfg.ValidateReset()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitConfigError
	}

	logFile, err := logsetup.Setup(debugMode, cfg.LogDir, cfg.LogFileName)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitConfigError
	}
	defer logFile.Close()

	records, err := director.ReadReport(csvPath)
	if err != nil {
		log.Error(err)
		return exitConfigError
	}
	if len(records) == 0 {
		log.Errorf("%s contains no users", csvPath)
		return exitConfigError
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, time.Duration(cfg.RunTimeoutMin)*time.Minute)
	defer cancel()

	client := okta.NewClient(cfg.OktaURL, cfg.OktaToken, cfg.RateLimitPerSec)

	if verifyEnrollment {
		return runVerify(ctx, cfg, client, records, useCachedDevices)
	}

	if wave == "" {
		wave = time.Now().Format("2006-01-02")
	}

	database, err := db.Open(cfg.LedgerPath)
	if err != nil {
		log.Error(err)
		return exitConfigError
	}

	if cfg.MetricsPort != "" {
		if port, err := strconv.Atoi(cfg.MetricsPort); err == nil {
			director.Metrics(database)
			prometheus.Serve(port)
		} else {
			log.Warnf("METRICS_PORT %q is not a number, metrics disabled", cfg.MetricsPort)
		}
	}

	mailer := mail.NewGraphSender(cfg.MSOAuthTokenURL, cfg.MSOAuthClientID, cfg.MSOAuthClientSecret, cfg.MSSourceEmail)
	remediator := director.NewRemediator(client, mailer, database, wave)
	remediator.ProactiveTemplatePath = cfg.ProactiveTemplatePath
	remediator.EnrollmentTemplatePath = cfg.EnrollmentTemplatePath
	remediator.AttachmentPath = cfg.AttachmentPath

	var summary *director.RemediationSummary
	if notify {
		log.Infof("notifying %d users for wave %s", len(records), wave)
		summary, err = remediator.Notify(ctx, records, dateOfChange)
	} else {
		log.Infof("resetting push factors for %d users in wave %s", len(records), wave)
		summary, err = remediator.Reset(ctx, records)
	}
	if err != nil {
		log.Errorf("remediation did not complete: %v", err)
		return exitAPIError
	}

	log.Infof("wave %s finished: %d processed, %d already done, %d failed",
		summary.Wave, summary.Processed, summary.AlreadyDone, summary.Failed)
	if summary.Failed > 0 {
		return exitPartial
	}
	return exitOK
}

func runVerify(ctx context.Context, cfg *config.Config, client okta.ClientAPI, records []types.ReenrollmentRecord, useCachedDevices bool) int {
	var index director.DeviceIndex
	var err error
	if useCachedDevices {
		cachePath := filepath.Join(cfg.OutputDir, director.DeviceCacheFileName)
		index, err = director.LoadDeviceIndexCache(cachePath)
		if err != nil {
			// verifying against a missing cache would flag everyone
			log.Error(err)
			return exitConfigError
		}
		log.Infof("using cached device index from %s", cachePath)
	} else {
		var skipped int
		index, skipped, err = director.BuildDeviceIndex(ctx, client, "verify")
		if err != nil {
			log.Error(err)
			return exitAPIError
		}
		if skipped > 0 {
			log.Warnf("%d devices could not be indexed", skipped)
		}
	}

	outPath := director.VerificationFileName(cfg.OutputDir, time.Now())
	summary, err := director.VerifyEnrollment(ctx, client, records, index, outPath)
	if err != nil {
		log.Errorf("verification did not complete: %v", err)
		return exitAPIError
	}

	log.Infof("verification finished: %d enrolled, %d still missing a device, %d lookups failed, results in %s",
		summary.Verified, summary.StillMissing, summary.Failed, outPath)
	if summary.Failed > 0 {
		return exitPartial
	}
	return exitOK
}
