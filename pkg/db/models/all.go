package models

// All lists every persisted model, used for SQLite schemas in tests and local runs.
func All() []any {
	return []any{
		&Profile{},
		&MagicUploadLink{},
		&Document{},
		&DeletedDocumentLog{},
		&DocumentActivityLog{},
		&ExtensionToken{},
		&ExtensionSlot{},
		&Payment{},
		&PaymentIdempotencyKey{},
		&WebhookEvent{},
		&CreditTransaction{},
		&Invoice{},
		&Receipt{},
		&Notification{},
		&PushSubscription{},
		&EmailCampaign{},
		&EmailLog{},
		&SupportTicket{},
		&TicketMessage{},
		&RefundRequest{},
		&BulkMatchLog{},
		&OutboxEvent{},
		&OutboxDeadLetter{},
	}
}
