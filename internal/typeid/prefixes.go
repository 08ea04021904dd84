package typeid

// TemplatePrefix namespaces Template ids.
type TemplatePrefix struct{}

func (TemplatePrefix) Prefix() string { return "esign_template" }

// EnvelopePrefix namespaces Envelope ids.
type EnvelopePrefix struct{}

func (EnvelopePrefix) Prefix() string { return "esign_envelope" }

// RecipientPrefix namespaces EnvelopeRecipient ids.
type RecipientPrefix struct{}

func (RecipientPrefix) Prefix() string { return "esign_recipient" }

// LogPrefix namespaces EnvelopeLog ids.
type LogPrefix struct{}

func (LogPrefix) Prefix() string { return "esign_log" }

// Template identifies a reusable document template.
type Template = ID[TemplatePrefix]

// Envelope identifies a single signing request over a template.
type Envelope = ID[EnvelopePrefix]

// Recipient identifies one recipient within an envelope.
type Recipient = ID[RecipientPrefix]

// LogEntry identifies a single envelope audit log row.
type LogEntry = ID[LogPrefix]
