package okta

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"

	"github.com/pkg/errors"
)

// ListApplications returns every application object in the org
func (c *Client) ListApplications(ctx context.Context) ([]Application, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(appPageLimit))
	start, err := c.buildURL([]string{"apps"}, q)
	if err != nil {
		return nil, errors.Wrap(err, "ListApplications")
	}

	var apps []Application
	err = c.collectPages(ctx, start, func(body []byte) error {
		var page []Application
		if err := json.Unmarshal(body, &page); err != nil {
			return err
		}
		apps = append(apps, page...)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "ListApplications")
	}
	return apps, nil
}

// ListApplicationUsers returns the users assigned to an application. These
// are thin assignment objects; fetch the full profile separately when needed.
func (c *Client) ListApplicationUsers(ctx context.Context, appID string) ([]AppUser, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(appPageLimit))
	start, err := c.buildURL([]string{"apps", appID, "users"}, q)
	if err != nil {
		return nil, errors.Wrap(err, "ListApplicationUsers")
	}

	var users []AppUser
	err = c.collectPages(ctx, start, func(body []byte) error {
		var page []AppUser
		if err := json.Unmarshal(body, &page); err != nil {
			return err
		}
		users = append(users, page...)
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "ListApplicationUsers %s", appID)
	}
	return users, nil
}
