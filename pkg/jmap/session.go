package jmap

import (
	"encoding/json"
	"fmt"
)

// Capability URIs
const (
	CapabilityCore       = "urn:ietf:params:jmap:core"
	CapabilityMail       = "urn:ietf:params:jmap:mail"
	CapabilitySubmission = "urn:ietf:params:jmap:submission"
	CapabilityBlob       = "urn:ietf:params:jmap:blob"
)

// CoreCapability represents the urn:ietf:params:jmap:core capability
type CoreCapability struct {
	MaxSizeUpload         int64    `json:"maxSizeUpload"`
	MaxConcurrentUpload   int      `json:"maxConcurrentUpload"`
	MaxSizeRequest        int64    `json:"maxSizeRequest"`
	MaxConcurrentRequests int      `json:"maxConcurrentRequests"`
	MaxCallsInRequest     int      `json:"maxCallsInRequest"`
	MaxObjectsInGet       int      `json:"maxObjectsInGet"`
	MaxObjectsInSet       int      `json:"maxObjectsInSet"`
	CollationAlgorithms   []string `json:"collationAlgorithms"`
}

// MailCapability is the per-account urn:ietf:params:jmap:mail capability
type MailCapability struct {
	MaxMailboxesPerEmail       *uint64  `json:"maxMailboxesPerEmail"`
	MaxMailboxDepth            *uint64  `json:"maxMailboxDepth"`
	MaxSizeMailboxName         uint64   `json:"maxSizeMailboxName"`
	MaxSizeAttachmentsPerEmail uint64   `json:"maxSizeAttachmentsPerEmail"`
	EmailQuerySortOptions      []string `json:"emailQuerySortOptions"`
	MayCreateTopLevelMailbox   bool     `json:"mayCreateTopLevelMailbox"`
}

// Account represents a JMAP account
type Account struct {
	Name                string         `json:"name"`
	IsPersonal          bool           `json:"isPersonal"`
	IsReadOnly          bool           `json:"isReadOnly"`
	AccountCapabilities map[string]any `json:"accountCapabilities"`
}

// Session represents the JMAP Session object per RFC 8620. Discovery is done
// elsewhere; the engine only reads limits and primary accounts from it.
type Session struct {
	Capabilities    map[string]json.RawMessage `json:"capabilities"`
	Accounts        map[string]Account         `json:"accounts"`
	PrimaryAccounts map[string]string          `json:"primaryAccounts"`
	Username        string                     `json:"username"`
	APIUrl          string                     `json:"apiUrl"`
	DownloadUrl     string                     `json:"downloadUrl"`
	UploadUrl       string                     `json:"uploadUrl"`
	EventSourceUrl  string                     `json:"eventSourceUrl"`
	State           string                     `json:"state"`
}

// AccountIDFor returns the primary account for a capability
func (s *Session) AccountIDFor(capability string) (string, bool) {
	if s == nil {
		return "", false
	}
	id, ok := s.PrimaryAccounts[capability]
	return id, ok && id != ""
}

// CoreCapability decodes the urn:ietf:params:jmap:core limits
func (s *Session) CoreCapability() (*CoreCapability, error) {
	raw, ok := s.Capabilities[CapabilityCore]
	if !ok {
		return nil, fmt.Errorf("session does not advertise %s", CapabilityCore)
	}
	var core CoreCapability
	if err := json.Unmarshal(raw, &core); err != nil {
		return nil, fmt.Errorf("failed to decode core capability: %w", err)
	}
	return &core, nil
}
