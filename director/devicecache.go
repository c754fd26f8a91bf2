package director

import (
	"context"
	"encoding/json"
	"os"

	"github.com/pkg/errors"

	"github.com/tjobarow/okta-fastpass-deployment-toolkit/okta"
)

// DeviceCacheFileName is where the device index snapshot is written between
// runs. Verification runs can reuse it instead of re-walking every device.
const DeviceCacheFileName = "okta_device_users.json"

// DeviceIndex maps an Okta user ID to the devices registered to that user.
// A user absent from the index has no registered device at all.
type DeviceIndex map[string][]okta.Device

// HasDevice reports whether the user has at least one registered device
func (idx DeviceIndex) HasDevice(userID string) bool {
	return len(idx[userID]) > 0
}

// BuildDeviceIndex lists every device in the org and folds each device's
// users into a user-to-devices map. A failed user lookup on a single device
// is logged and counted, not fatal: one flaky device must not sink a scan
// covering tens of thousands of devices.
func BuildDeviceIndex(ctx context.Context, client okta.ClientAPI, runID string) (DeviceIndex, int, error) {
	devices, err := client.ListDevices(ctx)
	if err != nil {
		return nil, 0, errors.Wrap(err, "list devices")
	}
	InfoLogger(LogHolder{RunID: runID, Message: "retrieved device inventory", Metric: "devices"})

	index := make(DeviceIndex)
	skipped := 0
	for _, device := range devices {
		if err := ctx.Err(); err != nil {
			return nil, skipped, err
		}

		deviceUsers, err := client.ListDeviceUsers(ctx, device.ID)
		if err != nil {
			skipped++
			ErrorLogger(LogHolder{
				RunID:    runID,
				DeviceID: device.ID,
				Message:  "failed to list users for device, skipping: " + err.Error(),
			})
			continue
		}

		for _, deviceUser := range deviceUsers {
			if deviceUser.User.ID == "" {
				continue
			}
			index[deviceUser.User.ID] = append(index[deviceUser.User.ID], device)
		}
		DevicesIndexed.Inc()
	}

	DebugLogger(LogHolder{RunID: runID, Message: "device index built"})
	return index, skipped, nil
}

// SaveDeviceIndexCache writes the index to path as JSON
func SaveDeviceIndexCache(path string, index DeviceIndex) error {
	data, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal device index")
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrapf(err, "write device index cache %s", path)
	}
	return nil
}

// LoadDeviceIndexCache reads an index previously written by
// SaveDeviceIndexCache. A missing file is an error: verification against a
// cache that does not exist would silently flag every user.
func LoadDeviceIndexCache(path string) (DeviceIndex, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read device index cache %s", path)
	}
	var index DeviceIndex
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, errors.Wrapf(err, "parse device index cache %s", path)
	}
	return index, nil
}
