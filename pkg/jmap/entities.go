package jmap

// EmailAddress is a name/address pair
type EmailAddress struct {
	Name  *string `json:"name"`
	Email string  `json:"email"`
}

// EmailHeader is a raw header field
type EmailHeader struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// MailboxRights are the user's rights on a Mailbox
type MailboxRights struct {
	MayReadItems   bool `json:"mayReadItems"`
	MayAddItems    bool `json:"mayAddItems"`
	MayRemoveItems bool `json:"mayRemoveItems"`
	MaySetSeen     bool `json:"maySetSeen"`
	MaySetKeywords bool `json:"maySetKeywords"`
	MayCreateChild bool `json:"mayCreateChild"`
	MayRename      bool `json:"mayRename"`
	MayDelete      bool `json:"mayDelete"`
	MaySubmit      bool `json:"maySubmit"`
}

// Mailbox is a named set of Emails
type Mailbox struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	ParentID      *string        `json:"parentId"`
	Role          *string        `json:"role"`
	SortOrder     uint64         `json:"sortOrder"`
	TotalEmails   uint64         `json:"totalEmails"`
	UnreadEmails  uint64         `json:"unreadEmails"`
	TotalThreads  uint64         `json:"totalThreads"`
	UnreadThreads uint64         `json:"unreadThreads"`
	MyRights      *MailboxRights `json:"myRights,omitempty"`
	IsSubscribed  bool           `json:"isSubscribed"`
}

// EmailBodyValue is the decoded content of a text body part
type EmailBodyValue struct {
	Value             string `json:"value"`
	IsEncodingProblem bool   `json:"isEncodingProblem,omitempty"`
	IsTruncated       bool   `json:"isTruncated,omitempty"`
}

// EmailBodyPart describes one MIME part
type EmailBodyPart struct {
	PartID      *string         `json:"partId"`
	BlobID      *string         `json:"blobId"`
	Size        uint64          `json:"size"`
	Headers     []EmailHeader   `json:"headers,omitempty"`
	Name        *string         `json:"name"`
	Type        string          `json:"type"`
	Charset     *string         `json:"charset"`
	Disposition *string         `json:"disposition"`
	CID         *string         `json:"cid"`
	Language    []string        `json:"language"`
	Location    *string         `json:"location"`
	SubParts    []EmailBodyPart `json:"subParts,omitempty"`
}

// Email is a message in the user's mail store
type Email struct {
	ID            string                    `json:"id"`
	BlobID        string                    `json:"blobId"`
	ThreadID      string                    `json:"threadId"`
	MailboxIDs    map[string]bool           `json:"mailboxIds"`
	Keywords      map[string]bool           `json:"keywords"`
	Size          uint64                    `json:"size"`
	ReceivedAt    string                    `json:"receivedAt"`
	MessageID     []string                  `json:"messageId"`
	InReplyTo     []string                  `json:"inReplyTo"`
	References    []string                  `json:"references"`
	From          []EmailAddress            `json:"from"`
	To            []EmailAddress            `json:"to"`
	Cc            []EmailAddress            `json:"cc"`
	Bcc           []EmailAddress            `json:"bcc"`
	ReplyTo       []EmailAddress            `json:"replyTo"`
	Subject       *string                   `json:"subject"`
	SentAt        *string                   `json:"sentAt"`
	HasAttachment bool                      `json:"hasAttachment"`
	Preview       string                    `json:"preview"`
	BodyValues    map[string]EmailBodyValue `json:"bodyValues,omitempty"`
	TextBody      []EmailBodyPart           `json:"textBody,omitempty"`
	HTMLBody      []EmailBodyPart           `json:"htmlBody,omitempty"`
	Attachments   []EmailBodyPart           `json:"attachments,omitempty"`
	Headers       []EmailHeader             `json:"headers,omitempty"`
	CreatedModSeq *ModSeq                   `json:"createdModSeq,omitempty"`
	UpdatedModSeq *ModSeq                   `json:"updatedModSeq,omitempty"`
}

// Thread groups related Emails
type Thread struct {
	ID       string   `json:"id"`
	EmailIDs []string `json:"emailIds"`
}

// Identity is a From address the user may send as
type Identity struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Email         string         `json:"email"`
	ReplyTo       []EmailAddress `json:"replyTo"`
	Bcc           []EmailAddress `json:"bcc"`
	TextSignature string         `json:"textSignature"`
	HTMLSignature string         `json:"htmlSignature"`
	MayDelete     bool           `json:"mayDelete"`
}

// Address is an SMTP envelope address
type Address struct {
	Email      string             `json:"email"`
	Parameters map[string]*string `json:"parameters"`
}

// Envelope is the SMTP envelope of a submission
type Envelope struct {
	MailFrom Address   `json:"mailFrom"`
	RcptTo   []Address `json:"rcptTo"`
}

// DeliveryStatus is the per-recipient delivery state of a submission
type DeliveryStatus struct {
	SMTPReply string `json:"smtpReply"`
	Delivered string `json:"delivered"` // queued, yes, no or unknown
	Displayed string `json:"displayed"` // unknown or yes
}

// EmailSubmission is an Email queued for delivery
type EmailSubmission struct {
	ID             string                    `json:"id"`
	IdentityID     string                    `json:"identityId"`
	EmailID        string                    `json:"emailId"`
	ThreadID       string                    `json:"threadId"`
	Envelope       *Envelope                 `json:"envelope"`
	SendAt         string                    `json:"sendAt"`
	UndoStatus     string                    `json:"undoStatus"` // pending, final or canceled
	DeliveryStatus map[string]DeliveryStatus `json:"deliveryStatus"`
	DSNBlobIDs     []string                  `json:"dsnBlobIds"`
	MDNBlobIDs     []string                  `json:"mdnBlobIds"`
}

// Blob is binary data as returned by Blob/get
type Blob struct {
	ID        string  `json:"id"`
	Size      uint64  `json:"size"`
	DataText  *string `json:"data:asText,omitempty"`
	DigestSHA *string `json:"digest:sha,omitempty"`
}

// EmailImportItem describes one message to import from an uploaded blob
type EmailImportItem struct {
	BlobID     string          `json:"blobId"`
	MailboxIDs map[string]bool `json:"mailboxIds"`
	Keywords   map[string]bool `json:"keywords,omitempty"`
	ReceivedAt string          `json:"receivedAt,omitempty"`
}
