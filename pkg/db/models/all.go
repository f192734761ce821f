package models

// All lists every model in dependency order. Used to build sqlite schemas for
// local development and tests; Postgres uses the goose migrations.
func All() []any {
	return []any{
		&ProduceListing{},
		&Order{},
		&TrackingEvent{},
		&PaymentRecord{},
		&RefundIntent{},
		&OutboxEvent{},
	}
}
