package store

import "time"

type EmailConfig struct {
	Provider  string
	APIKey    string
	ServerID  string
	FromEmail string
	FromName  string
	ReplyTo   string
	Active    bool
}

type Quote struct {
	ID            string
	Name          string
	Email         string
	Phone         string
	OriginCity    string
	OriginState   string
	DestCity      string
	DestState     string
	PropertyType  string
	MovingDate    *time.Time
	DistanceKm    *float64
	PriceMinCents *int64
	PriceMaxCents *int64
	CreatedAt     time.Time
}

type Company struct {
	ID                    string
	Name                  string
	Email                 string
	Phone                 string
	City                  string
	State                 string
	Active                bool
	ExcludedFromCampaigns bool
}

// QueueItem is one eligible queue row with its joined quote and, for the
// company queue, the joined company snapshot.
type QueueItem struct {
	ID          string
	QuoteID     string
	RecipientID string
	Status      string
	Attempts    int
	LastError   string
	CreatedAt   time.Time

	Quote   Quote
	Company Company
}

type QueueInsert struct {
	ID          string
	QuoteID     string
	RecipientID string
	Status      string
	Now         time.Time
}

type Template struct {
	Key      string
	Subject  string
	BodyHTML string
	Active   bool
}

type TrackingUpsert struct {
	Code        string
	QuoteID     string
	RecipientID string
	TemplateKey string
	Recipient   string
	Subject     string
	Status      string
	Provider    string
	TestMode    bool
	MessageID   string
	ErrorDetail string
	Manual      bool
	Now         time.Time
}

type TrackingRecord struct {
	Code        string
	QuoteID     string
	RecipientID string
	TemplateKey string
	Recipient   string
	Subject     string
	Status      string
	Provider    string
	TestMode    bool
	MessageID   string
	ErrorDetail string
	Manual      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
