package director

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tjobarow/okta-fastpass-deployment-toolkit/okta"
	"github.com/tjobarow/okta-fastpass-deployment-toolkit/okta/mocks"
)

// newScanMock builds a mock org with two in-scope apps. u1 has a registered
// device, u2 is assigned to both apps with no device, u3 has no device.
// Everyone has an active push factor unless overridden.
func newScanMock() *mocks.MockOktaClient {
	return &mocks.MockOktaClient{
		ListApplicationsFunc: func(ctx context.Context) ([]okta.Application, error) {
			return []okta.Application{
				{ID: "appA", Label: "App A", Status: "ACTIVE"},
				{ID: "appB", Label: "App B", Status: "ACTIVE"},
			}, nil
		},
		ListApplicationUsersFunc: func(ctx context.Context, appID string) ([]okta.AppUser, error) {
			switch appID {
			case "appA":
				return []okta.AppUser{{ID: "u1"}, {ID: "u2"}}, nil
			case "appB":
				return []okta.AppUser{{ID: "u2"}, {ID: "u3"}}, nil
			}
			return nil, nil
		},
		ListDevicesFunc: func(ctx context.Context) ([]okta.Device, error) {
			return []okta.Device{{ID: "device1", Status: "ACTIVE"}}, nil
		},
		ListDeviceUsersFunc: func(ctx context.Context, deviceID string) ([]okta.DeviceUser, error) {
			return []okta.DeviceUser{{User: okta.User{ID: "u1"}}}, nil
		},
		GetUserFunc: func(ctx context.Context, userID string) (*okta.User, error) {
			return &okta.User{
				ID: userID,
				Profile: okta.UserProfile{
					Login: userID + "@example.com",
					Email: userID + "@example.com",
				},
			}, nil
		},
		ListUserFactorsFunc: func(ctx context.Context, userID string) ([]okta.Factor, error) {
			return []okta.Factor{
				{ID: "f-" + userID, FactorType: "push", Provider: "OKTA", Status: "ACTIVE"},
			}, nil
		},
	}
}

func newTempReport(t *testing.T) (*ReportWriter, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "report.csv")
	report, err := NewReportWriter(path)
	require.NoError(t, err)
	return report, path
}

func TestScannerRun_DeduplicatesAcrossApps(t *testing.T) {
	mock := newScanMock()
	report, path := newTempReport(t)

	scanner := NewScanner(mock, 2)
	summary, err := scanner.Run(context.Background(), []string{"App A", "App B"}, report)
	require.NoError(t, err)
	require.NoError(t, report.Close())

	assert.Equal(t, 2, summary.AppsResolved)
	// u2 is assigned to both apps but is one scanned user
	assert.Equal(t, 3, summary.UsersScanned)
	assert.Equal(t, 2, summary.AtRisk)
	assert.Empty(t, summary.AppsNotFound)

	records, err := ReadReport(path)
	require.NoError(t, err)
	require.Len(t, records, 2)

	// u2 was flagged through both apps but produces one row
	assert.Equal(t, "u2", records[0].UserID)
	assert.Equal(t, []string{"App A", "App B"}, records[0].AppsInScope)
	assert.Equal(t, "u3", records[1].UserID)
	assert.Equal(t, []string{"App B"}, records[1].AppsInScope)

	// u1 has a registered device, so no factor lookup should have happened
	assert.NotContains(t, mock.ListUserFactorCalls, "u1")
}

func TestScannerRun_NoPushFactorNotFlagged(t *testing.T) {
	mock := newScanMock()
	mock.ListUserFactorsFunc = func(ctx context.Context, userID string) ([]okta.Factor, error) {
		return []okta.Factor{
			{ID: "f-sms", FactorType: "sms", Provider: "OKTA", Status: "ACTIVE"},
		}, nil
	}
	report, path := newTempReport(t)

	scanner := NewScanner(mock, 2)
	summary, err := scanner.Run(context.Background(), []string{"App A", "App B"}, report)
	require.NoError(t, err)
	require.NoError(t, report.Close())

	assert.Equal(t, 0, summary.AtRisk)
	assert.Equal(t, 3, summary.NoPushFactor)

	_, err = ReadReport(path)
	// header only, no rows
	require.NoError(t, err)
}

func TestScannerRun_InactivePushFactorNotFlagged(t *testing.T) {
	mock := newScanMock()
	mock.ListUserFactorsFunc = func(ctx context.Context, userID string) ([]okta.Factor, error) {
		return []okta.Factor{
			{ID: "f-push", FactorType: "push", Provider: "OKTA", Status: "PENDING_ACTIVATION"},
		}, nil
	}
	report, _ := newTempReport(t)

	scanner := NewScanner(mock, 2)
	summary, err := scanner.Run(context.Background(), []string{"App A"}, report)
	require.NoError(t, err)
	require.NoError(t, report.Close())

	assert.Equal(t, 0, summary.AtRisk)
}

func TestScannerRun_AppFailureIsolated(t *testing.T) {
	mock := newScanMock()
	mock.ListApplicationUsersFunc = func(ctx context.Context, appID string) ([]okta.AppUser, error) {
		if appID == "appA" {
			return nil, errors.New("upstream timeout")
		}
		return []okta.AppUser{{ID: "u3"}}, nil
	}
	report, path := newTempReport(t)

	scanner := NewScanner(mock, 2)
	summary, err := scanner.Run(context.Background(), []string{"App A", "App B"}, report)
	require.NoError(t, err)
	require.NoError(t, report.Close())

	assert.Equal(t, []string{"App A"}, summary.AppsFailed)
	assert.Equal(t, 1, summary.AtRisk)

	records, err := ReadReport(path)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "u3", records[0].UserID)
}

func TestScannerRun_UserLookupFailureSkips(t *testing.T) {
	mock := newScanMock()
	mock.GetUserFunc = func(ctx context.Context, userID string) (*okta.User, error) {
		if userID == "u2" {
			return nil, errors.New("rate limited")
		}
		return &okta.User{ID: userID, Profile: okta.UserProfile{Email: userID + "@example.com"}}, nil
	}
	report, _ := newTempReport(t)

	scanner := NewScanner(mock, 2)
	summary, err := scanner.Run(context.Background(), []string{"App A", "App B"}, report)
	require.NoError(t, err)
	require.NoError(t, report.Close())

	// u2 appears in both apps and fails both times
	assert.Equal(t, 2, summary.UsersSkipped)
	assert.Equal(t, 1, summary.AtRisk)
}

func TestScannerRun_StableOutputAcrossRuns(t *testing.T) {
	// many at-risk users per app with jittered lookups, so worker
	// completion order differs run to run while the row order must not
	userIDs := make([]string, 30)
	for i := range userIDs {
		userIDs[i] = fmt.Sprintf("u%02d", i)
	}

	newJitterMock := func() *mocks.MockOktaClient {
		mock := newScanMock()
		mock.ListApplicationUsersFunc = func(ctx context.Context, appID string) ([]okta.AppUser, error) {
			users := make([]okta.AppUser, len(userIDs))
			for i, id := range userIDs {
				users[i] = okta.AppUser{ID: id}
			}
			return users, nil
		}
		mock.GetUserFunc = func(ctx context.Context, userID string) (*okta.User, error) {
			time.Sleep(time.Duration(rand.Intn(3)) * time.Millisecond)
			return &okta.User{ID: userID, Profile: okta.UserProfile{Email: userID + "@example.com"}}, nil
		}
		return mock
	}

	runOnce := func() []string {
		report, path := newTempReport(t)
		scanner := NewScanner(newJitterMock(), 5)
		_, err := scanner.Run(context.Background(), []string{"App A"}, report)
		require.NoError(t, err)
		require.NoError(t, report.Close())

		records, err := ReadReport(path)
		require.NoError(t, err)
		ids := make([]string, len(records))
		for i, rec := range records {
			ids[i] = rec.UserID
		}
		return ids
	}

	first := runOnce()
	require.Len(t, first, len(userIDs))
	for i := 0; i < 3; i++ {
		assert.Equal(t, first, runOnce())
	}
}

func TestScannerRun_CancellationNotCountedAsSkips(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	mock := newScanMock()
	mock.GetUserFunc = func(c context.Context, userID string) (*okta.User, error) {
		cancel()
		<-c.Done()
		return nil, c.Err()
	}
	report, _ := newTempReport(t)

	scanner := NewScanner(mock, 2)
	summary, err := scanner.Run(ctx, []string{"App A", "App B"}, report)
	require.Error(t, err)
	require.NoError(t, report.Close())

	assert.Equal(t, 0, summary.UsersSkipped)
	assert.Equal(t, 0, summary.AtRisk)
}

func TestScannerRun_UnknownAppsCounted(t *testing.T) {
	mock := newScanMock()
	report, _ := newTempReport(t)

	scanner := NewScanner(mock, 2)
	summary, err := scanner.Run(context.Background(), []string{"App A", "Ghost App"}, report)
	require.NoError(t, err)
	require.NoError(t, report.Close())

	assert.Equal(t, 1, summary.AppsResolved)
	assert.Equal(t, []string{"Ghost App"}, summary.AppsNotFound)
}

func TestScannerRun_NoAppsResolve(t *testing.T) {
	mock := newScanMock()
	report, _ := newTempReport(t)

	scanner := NewScanner(mock, 2)
	_, err := scanner.Run(context.Background(), []string{"Ghost App"}, report)
	assert.Error(t, err)

	// failing before any per-user work means no device walk either way,
	// but application listing must have happened exactly once
	assert.Equal(t, 1, mock.ListApplicationsCalls)
}

func TestScannerSaveDeviceCache(t *testing.T) {
	mock := newScanMock()
	report, _ := newTempReport(t)
	scanner := NewScanner(mock, 2)

	path := filepath.Join(t.TempDir(), DeviceCacheFileName)
	assert.Error(t, scanner.SaveDeviceCache(path), "no index before a run")

	_, err := scanner.Run(context.Background(), []string{"App A"}, report)
	require.NoError(t, err)
	require.NoError(t, report.Close())

	require.NoError(t, scanner.SaveDeviceCache(path))
	index, err := LoadDeviceIndexCache(path)
	require.NoError(t, err)
	assert.True(t, index.HasDevice("u1"))
}

func TestBuildDeviceIndex_SkipsFailedDevices(t *testing.T) {
	mock := &mocks.MockOktaClient{
		ListDevicesFunc: func(ctx context.Context) ([]okta.Device, error) {
			return []okta.Device{{ID: "device1"}, {ID: "device2"}}, nil
		},
		ListDeviceUsersFunc: func(ctx context.Context, deviceID string) ([]okta.DeviceUser, error) {
			if deviceID == "device2" {
				return nil, errors.New("device lookup failed")
			}
			return []okta.DeviceUser{{User: okta.User{ID: "u1"}}}, nil
		},
	}

	index, skipped, err := BuildDeviceIndex(context.Background(), mock, "run-1")
	require.NoError(t, err)
	assert.Equal(t, 1, skipped)
	assert.True(t, index.HasDevice("u1"))
	assert.False(t, index.HasDevice("u2"))
}

func TestDeviceIndexCache_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), DeviceCacheFileName)
	index := DeviceIndex{
		"u1": {{ID: "device1", Status: "ACTIVE"}},
	}

	require.NoError(t, SaveDeviceIndexCache(path, index))
	loaded, err := LoadDeviceIndexCache(path)
	require.NoError(t, err)
	assert.True(t, loaded.HasDevice("u1"))
	assert.False(t, loaded.HasDevice("u2"))
}

func TestLoadDeviceIndexCache_MissingFile(t *testing.T) {
	_, err := LoadDeviceIndexCache(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestLoadAppList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "apps.csv")
	require.NoError(t, os.WriteFile(path, []byte("AppName\nApp A\nApp B\napp a\n"), 0644))

	labels, err := LoadAppList(path)
	require.NoError(t, err)
	// duplicate differing only in case is dropped
	assert.Equal(t, []string{"App A", "App B"}, labels)
}

func TestLoadAppList_MissingColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "apps.csv")
	require.NoError(t, os.WriteFile(path, []byte("Label\nApp A\n"), 0644))

	_, err := LoadAppList(path)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "AppName")
}

func TestLoadAppList_HeaderOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "apps.csv")
	require.NoError(t, os.WriteFile(path, []byte("AppName\n"), 0644))

	_, err := LoadAppList(path)
	assert.Error(t, err)
}
