package schema

import "github.com/jarrod-lowe/jmap-client-core/pkg/jmap"

func defaultEntities() []Entity {
	return []Entity{
		{
			Name: Mailbox,
			Fields: []Field{
				{"id", TypeID, ServerSet},
				{"name", TypeString, Mutable},
				{"parentId", TypeID, Mutable},
				{"role", TypeString, Mutable},
				{"sortOrder", TypeUnsigned, Mutable},
				{"totalEmails", TypeUnsigned, ServerSet},
				{"unreadEmails", TypeUnsigned, ServerSet},
				{"totalThreads", TypeUnsigned, ServerSet},
				{"unreadThreads", TypeUnsigned, ServerSet},
				{"myRights", TypeObject, ServerSet},
				{"isSubscribed", TypeBoolean, Mutable},
			},
		},
		{
			Name: Email,
			Fields: []Field{
				{"id", TypeID, ServerSet},
				{"blobId", TypeID, ServerSet},
				{"threadId", TypeID, ServerSet},
				{"mailboxIds", TypeIDSet, Mutable},
				{"keywords", TypeStringMap, Mutable},
				{"size", TypeUnsigned, ServerSet},
				{"receivedAt", TypeUTCDate, Immutable},
				{"messageId", TypeStringList, Immutable},
				{"inReplyTo", TypeStringList, Immutable},
				{"references", TypeStringList, Immutable},
				{"sender", TypeObjectList, Immutable},
				{"from", TypeObjectList, Immutable},
				{"to", TypeObjectList, Immutable},
				{"cc", TypeObjectList, Immutable},
				{"bcc", TypeObjectList, Immutable},
				{"replyTo", TypeObjectList, Immutable},
				{"subject", TypeString, Immutable},
				{"sentAt", TypeDate, Immutable},
				{"date", TypeDate, Immutable},
				{"hasAttachment", TypeBoolean, ServerSet},
				{"preview", TypeString, ServerSet},
				{"bodyStructure", TypeObject, Immutable},
				{"bodyValues", TypeStringMap, Immutable},
				{"textBody", TypeObjectList, Immutable},
				{"htmlBody", TypeObjectList, Immutable},
				{"attachments", TypeObjectList, Immutable},
				{"headers", TypeObjectList, Immutable},
				{"createdModSeq", TypeUnsigned, ServerSet},
				{"updatedModSeq", TypeUnsigned, ServerSet},
			},
			DynamicPrefixes: []string{"header:"},
		},
		{
			Name: Thread,
			Fields: []Field{
				{"id", TypeID, ServerSet},
				{"emailIds", TypeIDList, ServerSet},
			},
		},
		{
			Name: Identity,
			Fields: []Field{
				{"id", TypeID, ServerSet},
				{"name", TypeString, Mutable},
				{"email", TypeString, Immutable},
				{"replyTo", TypeObjectList, Mutable},
				{"bcc", TypeObjectList, Mutable},
				{"textSignature", TypeString, Mutable},
				{"htmlSignature", TypeString, Mutable},
				{"mayDelete", TypeBoolean, ServerSet},
			},
		},
		{
			Name: EmailSubmission,
			Fields: []Field{
				{"id", TypeID, ServerSet},
				{"identityId", TypeID, Immutable},
				{"emailId", TypeID, Immutable},
				{"threadId", TypeID, ServerSet},
				{"envelope", TypeObject, Immutable},
				{"sendAt", TypeUTCDate, ServerSet},
				{"undoStatus", TypeString, Mutable},
				{"deliveryStatus", TypeStringMap, ServerSet},
				{"dsnBlobIds", TypeIDList, ServerSet},
				{"mdnBlobIds", TypeIDList, ServerSet},
			},
		},
		{
			Name: Blob,
			Fields: []Field{
				{"id", TypeID, ServerSet},
				{"size", TypeUnsigned, ServerSet},
				{"data", TypeString, ServerSet},
				{"data:asText", TypeString, ServerSet},
				{"data:asBase64", TypeString, ServerSet},
				{"digest:sha", TypeString, ServerSet},
				{"digest:sha-256", TypeString, ServerSet},
			},
		},
	}
}

func defaultMethods() []Method {
	mail := jmap.CapabilityMail
	submission := jmap.CapabilitySubmission
	return []Method{
		{Name: jmap.MailboxGet, Entity: Mailbox, Family: FamilyGet, Capability: mail, Required: []string{"ids"}},
		{Name: jmap.MailboxChanges, Entity: Mailbox, Family: FamilyChanges, Capability: mail, Required: []string{"sinceState"}, NonNull: []string{"sinceState"}},
		{Name: jmap.MailboxSet, Entity: Mailbox, Family: FamilySet, Capability: mail},
		{Name: jmap.MailboxQuery, Entity: Mailbox, Family: FamilyQuery, Capability: mail},
		{Name: jmap.EmailGet, Entity: Email, Family: FamilyGet, Capability: mail, Required: []string{"ids"}},
		{Name: jmap.EmailChanges, Entity: Email, Family: FamilyChanges, Capability: mail, Required: []string{"sinceState"}, NonNull: []string{"sinceState"}},
		{Name: jmap.EmailQuery, Entity: Email, Family: FamilyQuery, Capability: mail},
		{Name: jmap.EmailSet, Entity: Email, Family: FamilySet, Capability: mail},
		{Name: jmap.EmailQueryChanges, Entity: Email, Family: FamilyQueryChanges, Capability: mail, Required: []string{"sinceQueryState"}, NonNull: []string{"sinceQueryState"}},
		{Name: jmap.EmailImport, Entity: Email, Family: FamilyImport, Capability: mail, Required: []string{"emails"}, NonNull: []string{"emails"}},
		{Name: jmap.ThreadGet, Entity: Thread, Family: FamilyGet, Capability: mail, Required: []string{"ids"}},
		{Name: jmap.EmailSubmissionGet, Entity: EmailSubmission, Family: FamilyGet, Capability: submission, Required: []string{"ids"}},
		{Name: jmap.EmailSubmissionChanges, Entity: EmailSubmission, Family: FamilyChanges, Capability: submission, Required: []string{"sinceState"}, NonNull: []string{"sinceState"}},
		{Name: jmap.EmailSubmissionSet, Entity: EmailSubmission, Family: FamilySet, Capability: submission, Implicit: []jmap.MethodName{jmap.EmailSet}},
		{Name: jmap.IdentityGet, Entity: Identity, Family: FamilyGet, Capability: submission, Required: []string{"ids"}},
		{Name: jmap.BlobGet, Entity: Blob, Family: FamilyGet, Capability: jmap.CapabilityBlob, Required: []string{"ids"}},
	}
}
