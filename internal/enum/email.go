package enum

type EmailClassification string

const (
	EmailAutoResponder      EmailClassification = "auto_responder"
	EmailBounceNotification EmailClassification = "bounce_notification"
	EmailBulk               EmailClassification = "bulk_email"
	EmailOK                 EmailClassification = "ok"
)

func (t EmailClassification) String() string {
	return string(t)
}

type MessageDirection string

const (
	MessageInbound  MessageDirection = "in"
	MessageOutbound MessageDirection = "out"
)

func (d MessageDirection) String() string {
	return string(d)
}

type AllowedSenderType string

const (
	AllowedSenderEmail  AllowedSenderType = "email"
	AllowedSenderDomain AllowedSenderType = "domain"
)

func (t AllowedSenderType) String() string {
	return string(t)
}

func (t AllowedSenderType) IsValid() bool {
	return t == AllowedSenderEmail || t == AllowedSenderDomain
}
