// Package models defines the server-side records persisted by authmaker.
package models

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/authmaker/internal/common"
	"github.com/dmitrijs2005/authmaker/internal/identity"
)

// User is an account holder, unique by (UserName, ClientID).
//
// Concurrent edits of the same user are last-writer-wins at the store;
// User itself carries no locking.
type User struct {
	ID       string
	UserName string
	ClientID string

	DisplayName  string
	Email        string
	PasswordHash string
	OfflineEmail string

	// WebsiteURL is stored verbatim. Use SetWebsiteURL to change it.
	WebsiteURL string
	// ConfigRef points at the verified-site configuration for the
	// canonical host of WebsiteURL; nil when unverified.
	ConfigRef *string

	Status    Status
	CreatedAt time.Time
	LastLogin *time.Time
	UpdatedAt time.Time
	Activated bool
	IsAdmin   bool

	LastKnownInformation LastKnownInformation
	LoggedIn             bool
	AvatarURL            string
	PasswordResetHash    string
	ActivationHash       string

	Preferences Preferences

	// SentEmails is an append-only audit log; it is loaded on demand.
	SentEmails []SentEmail
	// ExternalIdentities are weak references to external identity records.
	ExternalIdentities []string
}

// LastKnownInformation is a client snapshot, replaced wholesale on update.
type LastKnownInformation struct {
	Timezone  string `json:"timezone,omitempty"`
	LocalTime string `json:"localTime,omitempty"`
	Browser   string `json:"browser,omitempty"`
	Device    string `json:"device,omitempty"`
	Location  string `json:"location,omitempty"`
	OS        string `json:"os,omitempty"`
}

// Preferences holds notification settings. See DefaultPreferences.
type Preferences struct {
	TabNotify    bool `json:"tabNotify"`
	SoundNotify  bool `json:"soundNotify"`
	ChromeNotify bool `json:"chromeNotify"`
}

// DefaultPreferences: tab off, sound on, chrome off.
func DefaultPreferences() Preferences {
	return Preferences{TabNotify: false, SoundNotify: true, ChromeNotify: false}
}

type SentEmail struct {
	Timestamp time.Time
	To        string
	Subject   string
	Message   string
	Reference string
}

// NewUser returns a freshly registered, not yet activated user with
// default preferences. The store assigns ID and timestamps.
func NewUser(userName, clientID string) *User {
	return &User{
		UserName:    userName,
		ClientID:    clientID,
		Status:      StatusPendingActivation,
		Preferences: DefaultPreferences(),
	}
}

// SetWebsiteURL stores raw verbatim. When the canonical host changes the
// config reference is dropped and SetWebsiteURL reports true; scheme, path
// or case edits that keep the host leave it in place.
//
// An unparsable raw value is rejected with common.ErrInvalidURL and the
// user is left untouched. An unparsable stored value counts as a change.
func (u *User) SetWebsiteURL(raw string) (invalidated bool, err error) {
	after, err := identity.Canonicalize(raw)
	if err != nil {
		return false, err
	}

	before, beforeErr := identity.Canonicalize(u.WebsiteURL)
	if beforeErr != nil || before != after {
		invalidated = u.ConfigRef != nil
		u.ConfigRef = nil
	}

	u.WebsiteURL = raw
	return invalidated, nil
}

// CleanURL is the canonical host of the stored website URL.
func (u *User) CleanURL() (string, error) {
	return identity.Canonicalize(u.WebsiteURL)
}

// AttachConfig records an externally completed site verification for the
// current canonical host. It fails when there is no usable website URL.
func (u *User) AttachConfig(configID string) error {
	host, err := u.CleanURL()
	if err != nil {
		return err
	}
	if host == "" {
		return fmt.Errorf("%w: no website url to verify", common.ErrorValidation)
	}
	u.ConfigRef = &configID
	return nil
}
