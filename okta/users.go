package okta

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ListUsers returns every user in the org
func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(userPageLimit))
	start, err := c.buildURL([]string{"users"}, q)
	if err != nil {
		return nil, errors.Wrap(err, "ListUsers")
	}

	var users []User
	err = c.collectPages(ctx, start, func(body []byte) error {
		var page []User
		if err := json.Unmarshal(body, &page); err != nil {
			return err
		}
		users = append(users, page...)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "ListUsers")
	}
	return users, nil
}

// GetUser fetches a single user's full profile by ID
func (c *Client) GetUser(ctx context.Context, userID string) (*User, error) {
	endpoint, err := c.buildURL([]string{"users", userID}, nil)
	if err != nil {
		return nil, errors.Wrap(err, "GetUser")
	}

	body, _, err := c.doRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "GetUser %s", userID)
	}

	var user User
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, errors.Wrapf(err, "GetUser %s: decode response", userID)
	}
	return &user, nil
}

// GetUserByEmail looks a user up by profile email. Okta's filter matches
// email case-sensitively, and some orgs store the first two characters of
// the local part capitalized, so a miss on the exact address retries with
// that variant before giving up.
func (c *Client) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	if email == "" || !strings.Contains(email, "@") {
		return nil, errors.Errorf("invalid email address %q", email)
	}

	variants := []string{email}
	if alt := capitalizedLocalPart(email); alt != email {
		variants = append(variants, alt)
	}
	for _, candidate := range variants {
		user, err := c.findUserByEmail(ctx, candidate)
		if err != nil {
			return nil, err
		}
		if user != nil {
			return user, nil
		}
	}
	return nil, &APIError{StatusCode: http.StatusNotFound, Summary: fmt.Sprintf("no user with email %s", email)}
}

func (c *Client) findUserByEmail(ctx context.Context, email string) (*User, error) {
	q := url.Values{}
	q.Set("filter", fmt.Sprintf("profile.email eq %q", email))
	endpoint, err := c.buildURL([]string{"users"}, q)
	if err != nil {
		return nil, errors.Wrap(err, "GetUserByEmail")
	}

	body, _, err := c.doRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "GetUserByEmail %s", email)
	}

	var matches []User
	if err := json.Unmarshal(body, &matches); err != nil {
		return nil, errors.Wrapf(err, "GetUserByEmail %s: decode response", email)
	}
	if len(matches) == 0 {
		return nil, nil
	}
	return &matches[0], nil
}

func capitalizedLocalPart(email string) string {
	if len(email) < 2 {
		return email
	}
	return strings.ToUpper(email[:2]) + email[2:]
}

// ListUserFactors returns the MFA factors enrolled on a user. A 404 means
// the user has no factors and is returned as an empty set, not an error.
func (c *Client) ListUserFactors(ctx context.Context, userID string) ([]Factor, error) {
	endpoint, err := c.buildURL([]string{"users", userID, "factors"}, nil)
	if err != nil {
		return nil, errors.Wrap(err, "ListUserFactors")
	}

	body, _, err := c.doRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "ListUserFactors %s", userID)
	}

	var factors []Factor
	if err := json.Unmarshal(body, &factors); err != nil {
		return nil, errors.Wrapf(err, "ListUserFactors %s: decode response", userID)
	}
	return factors, nil
}

// DeleteFactor unenrolls a factor from a user. A 404 means the factor is
// already gone, which is not an error for an unenroll.
func (c *Client) DeleteFactor(ctx context.Context, userID, factorID string) error {
	endpoint, err := c.buildURL([]string{"users", userID, "factors", factorID}, nil)
	if err != nil {
		return errors.Wrap(err, "DeleteFactor")
	}

	_, _, err = c.doRequest(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		if IsNotFound(err) {
			return nil
		}
		return errors.Wrapf(err, "DeleteFactor %s for user %s", factorID, userID)
	}
	return nil
}

// EnrollPushFactor enrolls a fresh Okta Verify push factor for a user. The
// response includes the activation QR code the user scans to finish.
func (c *Client) EnrollPushFactor(ctx context.Context, userID string) (*FactorEnrollment, error) {
	q := url.Values{}
	q.Set("activate", "true")
	endpoint, err := c.buildURL([]string{"users", userID, "factors"}, q)
	if err != nil {
		return nil, errors.Wrap(err, "EnrollPushFactor")
	}

	payload, err := json.Marshal(map[string]string{
		"factorType": FactorTypePush,
		"provider":   FactorProviderOkta,
	})
	if err != nil {
		return nil, errors.Wrap(err, "EnrollPushFactor: marshal request")
	}

	body, _, err := c.doRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrapf(err, "EnrollPushFactor for user %s", userID)
	}

	var enrollment FactorEnrollment
	if err := json.Unmarshal(body, &enrollment); err != nil {
		return nil, errors.Wrapf(err, "EnrollPushFactor %s: decode response", userID)
	}
	return &enrollment, nil
}
