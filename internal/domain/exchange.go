package domain

// Exchange is one audited relay call: the user message and whatever the relay
// answered with.
type Exchange struct {
	PK            string
	SK            string
	ID            string
	CorrelationID string
	Message       string
	Reply         string
	Outcome       string
	StatusCode    int
	CreatedAt     string
	TTL           int64
}
