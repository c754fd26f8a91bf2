package okta

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"

	"github.com/pkg/errors"
)

// ListDevices returns every device registered with the org
func (c *Client) ListDevices(ctx context.Context) ([]Device, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(devicePageLimit))
	start, err := c.buildURL([]string{"devices"}, q)
	if err != nil {
		return nil, errors.Wrap(err, "ListDevices")
	}

	var devices []Device
	err = c.collectPages(ctx, start, func(body []byte) error {
		var page []Device
		if err := json.Unmarshal(body, &page); err != nil {
			return err
		}
		devices = append(devices, page...)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "ListDevices")
	}
	return devices, nil
}

// ListDeviceUsers returns the users associated with a device
func (c *Client) ListDeviceUsers(ctx context.Context, deviceID string) ([]DeviceUser, error) {
	endpoint, err := c.buildURL([]string{"devices", deviceID, "users"}, nil)
	if err != nil {
		return nil, errors.Wrap(err, "ListDeviceUsers")
	}

	var users []DeviceUser
	err = c.collectPages(ctx, endpoint, func(body []byte) error {
		var page []DeviceUser
		if err := json.Unmarshal(body, &page); err != nil {
			return err
		}
		users = append(users, page...)
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "ListDeviceUsers %s", deviceID)
	}
	return users, nil
}
