package director

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/tjobarow/okta-fastpass-deployment-toolkit/okta"
	"github.com/tjobarow/okta-fastpass-deployment-toolkit/types"
)

// DefaultScanWorkers bounds the per-app factor lookup fanout
const DefaultScanWorkers = 5

// Scanner walks the users assigned to a set of Okta applications and flags
// the ones who would be locked out by a FastPass policy rollout: no
// registered device, but an active Okta Verify factor that re-enrollment
// would replace.
type Scanner struct {
	client  okta.ClientAPI
	runID   string
	workers int

	// records is keyed by user ID so a user assigned to several in-scope
	// apps produces one row with all the app labels. Rows are flushed in
	// user ID order, since worker completion order varies run to run.
	mu      sync.Mutex
	records map[string]*types.ReenrollmentRecord
	scanned map[string]bool
	index   DeviceIndex
}

// ScanSummary is the outcome of one scan run
type ScanSummary struct {
	RunID          string
	AppsRequested  int
	AppsResolved   int
	AppsNotFound   []string
	AppsFailed     []string
	UsersScanned   int
	AtRisk         int
	NoPushFactor   int
	UsersSkipped   int
	DevicesSkipped int
}

// NewScanner creates a scanner. workers bounds concurrent per-user factor
// lookups; zero or negative selects the default.
func NewScanner(client okta.ClientAPI, workers int) *Scanner {
	if workers <= 0 {
		workers = DefaultScanWorkers
	}
	return &Scanner{
		client:  client,
		runID:   uuid.New().String(),
		workers: workers,
		records: make(map[string]*types.ReenrollmentRecord),
		scanned: make(map[string]bool),
	}
}

// RunID returns the unique ID stamped on this scan's log lines
func (s *Scanner) RunID() string {
	return s.runID
}

// SaveDeviceCache snapshots the device index built during Run so a later
// verification pass can reuse it instead of walking every device again
func (s *Scanner) SaveDeviceCache(path string) error {
	if s.index == nil {
		return errors.New("no device index has been built yet")
	}
	return SaveDeviceIndexCache(path, s.index)
}

// LoadAppList reads the application scope CSV. The file must have an
// AppName header column and at least one row; a malformed or empty scope
// file fails before any API call is made.
func LoadAppList(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open app list %s", path)
	}
	defer file.Close()

	rows, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, errors.Wrapf(err, "parse app list %s", path)
	}
	if len(rows) == 0 {
		return nil, errors.Errorf("app list %s is empty", path)
	}

	nameCol := -1
	for i, name := range rows[0] {
		if strings.EqualFold(strings.TrimSpace(name), "AppName") {
			nameCol = i
			break
		}
	}
	if nameCol == -1 {
		return nil, errors.Errorf("app list %s has no AppName column", path)
	}

	var labels []string
	seen := map[string]bool{}
	for _, row := range rows[1:] {
		if nameCol >= len(row) {
			continue
		}
		label := strings.TrimSpace(row[nameCol])
		if label == "" || seen[strings.ToLower(label)] {
			continue
		}
		seen[strings.ToLower(label)] = true
		labels = append(labels, label)
	}
	if len(labels) == 0 {
		return nil, errors.Errorf("app list %s has no application names", path)
	}
	return labels, nil
}

// Run executes a full scan over the apps named by labels and streams the
// deduplicated results to report. A cancelled context still flushes the
// records gathered so far before returning.
func (s *Scanner) Run(ctx context.Context, labels []string, report *ReportWriter) (*ScanSummary, error) {
	summary := &ScanSummary{RunID: s.runID, AppsRequested: len(labels)}

	apps, err := s.resolveApps(ctx, labels, summary)
	if err != nil {
		return summary, err
	}

	index, devicesSkipped, err := BuildDeviceIndex(ctx, s.client, s.runID)
	if err != nil {
		return summary, errors.Wrap(err, "build device index")
	}
	summary.DevicesSkipped = devicesSkipped
	s.index = index

	var runErr error
	for _, app := range apps {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		if err := s.scanApp(ctx, app, index, summary); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				runErr = err
				break
			}
			// one app failing must not sink the rest of the scan
			summary.AppsFailed = append(summary.AppsFailed, app.Label)
			ErrorLogger(LogHolder{
				RunID:    s.runID,
				AppID:    app.ID,
				AppLabel: app.Label,
				Message:  "failed to scan application: " + err.Error(),
			})
		}
	}

	if err := s.flush(report); err != nil {
		if runErr == nil {
			runErr = err
		}
	}
	return summary, runErr
}

// resolveApps matches the requested labels against the org's application
// inventory. Labels with no match are logged and counted; no matches at all
// is fatal since the scan would be a no-op.
func (s *Scanner) resolveApps(ctx context.Context, labels []string, summary *ScanSummary) ([]okta.Application, error) {
	inventory, err := s.client.ListApplications(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list applications")
	}

	byLabel := make(map[string]okta.Application, len(inventory))
	for _, app := range inventory {
		byLabel[strings.ToLower(app.Label)] = app
	}

	var apps []okta.Application
	for _, label := range labels {
		app, ok := byLabel[strings.ToLower(label)]
		if !ok {
			summary.AppsNotFound = append(summary.AppsNotFound, label)
			WarnLogger(LogHolder{RunID: s.runID, AppLabel: label, Message: "application not found in org"})
			continue
		}
		apps = append(apps, app)
		DebugLogger(LogHolder{RunID: s.runID, AppID: app.ID, AppLabel: app.Label, Message: "resolved application"})
	}
	summary.AppsResolved = len(apps)
	if len(apps) == 0 {
		return nil, errors.New("none of the requested applications exist in the org")
	}
	return apps, nil
}

type factorResult struct {
	user    *okta.User
	hasPush bool
	err     error
	userID  string
}

// scanApp lists an application's assigned users, filters to the ones with no
// registered device, and checks their factors with a bounded worker pool
func (s *Scanner) scanApp(ctx context.Context, app okta.Application, index DeviceIndex, summary *ScanSummary) error {
	assignments, err := s.client.ListApplicationUsers(ctx, app.ID)
	if err != nil {
		return errors.Wrapf(err, "list users for %s", app.Label)
	}
	InfoLogger(LogHolder{
		RunID:    s.runID,
		AppID:    app.ID,
		AppLabel: app.Label,
		Message:  "retrieved application user assignments",
	})

	var candidates []string
	for _, assignment := range assignments {
		if !s.scanned[assignment.ID] {
			s.scanned[assignment.ID] = true
			summary.UsersScanned++
			UsersScanned.Inc()
		}
		if index.HasDevice(assignment.ID) {
			continue
		}
		candidates = append(candidates, assignment.ID)
	}
	if len(candidates) == 0 {
		return nil
	}

	jobs := make(chan string)
	results := make(chan factorResult, len(candidates))
	var wg sync.WaitGroup

	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for userID := range jobs {
				results <- s.checkUser(ctx, userID)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, userID := range candidates {
			select {
			case jobs <- userID:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	evaluated := 0
	for result := range results {
		evaluated++
		if evaluated%100 == 0 {
			InfoLogger(LogHolder{
				RunID:    s.runID,
				AppID:    app.ID,
				AppLabel: app.Label,
				Message:  fmt.Sprintf("evaluated %d of %d candidates", evaluated, len(candidates)),
			})
		}
		if result.err != nil {
			if errors.Is(result.err, context.Canceled) || errors.Is(result.err, context.DeadlineExceeded) {
				// a cancelled run is reported as cancelled, not as
				// per-user skips
				continue
			}
			summary.UsersSkipped++
			UsersSkipped.Inc()
			ErrorLogger(LogHolder{
				RunID:    s.runID,
				AppID:    app.ID,
				AppLabel: app.Label,
				UserID:   result.userID,
				Message:  "failed to evaluate user, skipping: " + result.err.Error(),
			})
			continue
		}
		if !result.hasPush {
			summary.NoPushFactor++
			continue
		}
		summary.AtRisk += s.accumulate(result.user, app.Label)
	}

	return ctx.Err()
}

// checkUser fetches a candidate's profile and factors and decides whether
// they hold an active Okta Verify push factor
func (s *Scanner) checkUser(ctx context.Context, userID string) factorResult {
	user, err := s.client.GetUser(ctx, userID)
	if err != nil {
		return factorResult{userID: userID, err: err}
	}

	factors, err := s.client.ListUserFactors(ctx, userID)
	if err != nil {
		return factorResult{userID: userID, err: err}
	}

	for _, factor := range factors {
		if factor.IsPush() && factor.Status == okta.FactorStatusActive {
			return factorResult{userID: userID, user: user, hasPush: true}
		}
	}
	return factorResult{userID: userID, user: user, hasPush: false}
}

// accumulate records an at-risk user, merging the app label into an existing
// record when the user was already flagged through another app. Returns 1
// when the user is newly flagged.
func (s *Scanner) accumulate(user *okta.User, appLabel string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.records[user.ID]; ok {
		for _, label := range existing.AppsInScope {
			if label == appLabel {
				return 0
			}
		}
		existing.AppsInScope = append(existing.AppsInScope, appLabel)
		return 0
	}

	s.records[user.ID] = &types.ReenrollmentRecord{
		UserID:            user.ID,
		UserName:          user.Login(),
		UserFullName:      user.FullName(),
		UserEmail:         user.Profile.Email,
		PushFactorPresent: true,
		AppsInScope:       []string{appLabel},
		ScannedAt:         time.Now(),
	}
	UsersAtRisk.Inc()
	DebugLogger(LogHolder{
		RunID:     s.runID,
		UserID:    user.ID,
		UserEmail: user.Profile.Email,
		AppLabel:  appLabel,
		Message:   "user flagged for re-enrollment",
	})
	return 1
}

// flush writes the accumulated records to the report sorted by user ID, so
// two scans of identical org state produce identical files
func (s *Scanner) flush(report *ReportWriter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	userIDs := make([]string, 0, len(s.records))
	for userID := range s.records {
		userIDs = append(userIDs, userID)
	}
	sort.Strings(userIDs)

	for _, userID := range userIDs {
		if err := report.Write(*s.records[userID]); err != nil {
			return err
		}
	}
	return nil
}
