package okta

// Application is an Okta application object (subset of the API response)
type Application struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Label      string `json:"label"`
	Status     string `json:"status"`
	SignOnMode string `json:"signOnMode"`
}

// AppUser is the thin assignment object returned when listing an
// application's users. It carries the user ID but not the full profile.
type AppUser struct {
	ID     string `json:"id"`
	Scope  string `json:"scope"`
	Status string `json:"status"`
}

// UserProfile is the profile block of an Okta user object
type UserProfile struct {
	Login       string `json:"login,omitempty"`
	Email       string `json:"email,omitempty"`
	FirstName   string `json:"firstName,omitempty"`
	LastName    string `json:"lastName,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

// User is an Okta user object (subset)
type User struct {
	ID      string      `json:"id"`
	Status  string      `json:"status,omitempty"`
	Profile UserProfile `json:"profile"`
}

// Login returns the user's login name, falling back to the email address.
// App-assignment payloads sometimes omit login.
func (u *User) Login() string {
	if u.Profile.Login != "" {
		return u.Profile.Login
	}
	return u.Profile.Email
}

// FullName returns the best display name available on the profile
func (u *User) FullName() string {
	if u.Profile.DisplayName != "" {
		return u.Profile.DisplayName
	}
	if u.Profile.FirstName != "" && u.Profile.LastName != "" {
		return u.Profile.FirstName + " " + u.Profile.LastName
	}
	return u.Login()
}

// DeviceDisplayName wraps Okta's sensitive-value envelope
type DeviceDisplayName struct {
	Value     string `json:"value"`
	Sensitive bool   `json:"sensitive,omitempty"`
}

// DeviceProfile is the profile block of an Okta device object
type DeviceProfile struct {
	DisplayName string `json:"displayName,omitempty"`
	Platform    string `json:"platform,omitempty"`
	Registered  bool   `json:"registered,omitempty"`
}

// Device is an Okta device object (subset)
type Device struct {
	ID                  string            `json:"id"`
	Status              string            `json:"status,omitempty"`
	ResourceDisplayName DeviceDisplayName `json:"resourceDisplayName"`
	Profile             DeviceProfile     `json:"profile"`
}

// DeviceUser is one element of a device's user listing: the link between a
// registered device and an Okta user
type DeviceUser struct {
	ManagementStatus string `json:"managementStatus,omitempty"`
	ScreenLockType   string `json:"screenLockType,omitempty"`
	User             User   `json:"user"`
}

// Factor statuses and types the toolkit cares about
const (
	FactorStatusActive = "ACTIVE"
	FactorTypePush     = "push"
	FactorProviderOkta = "OKTA"
)

// Factor is an enrolled MFA factor on a user
type Factor struct {
	ID         string `json:"id"`
	FactorType string `json:"factorType"`
	Provider   string `json:"provider"`
	Status     string `json:"status"`
}

// IsPush reports whether the factor is a push-style factor (Okta Verify push)
func (f *Factor) IsPush() bool {
	return f.FactorType == FactorTypePush || f.FactorType == "signed_nonce"
}

// activationLink is one entry of the enrollment activation _links map
type activationLink struct {
	Href string `json:"href"`
}

// FactorEnrollment is the response to enrolling a new factor. The embedded
// activation block carries the QR code the user scans to finish enrollment.
type FactorEnrollment struct {
	Factor
	Embedded struct {
		Activation struct {
			ExpiresAt string                    `json:"expiresAt,omitempty"`
			Links     map[string]activationLink `json:"_links,omitempty"`
		} `json:"activation"`
	} `json:"_embedded"`
}

// ActivationQRCode returns the enrollment QR code image URL, empty when the
// provider did not include one
func (e *FactorEnrollment) ActivationQRCode() string {
	link, ok := e.Embedded.Activation.Links["qrcode"]
	if !ok {
		return ""
	}
	return link.Href
}
