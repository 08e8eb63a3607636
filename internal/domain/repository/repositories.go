package repository

import "context"

// Repositories groups every repository bound to the same database handle.
type Repositories struct {
	Stores          StoreRepository
	ProviderConfigs ProviderConfigRepository
	Orders          OrderRepository
	PendingPayments PendingPaymentRepository
	Transactions    TransactionRepository
	Refunds         RefundRepository
	Webhooks        WebhookRepository
	Deliveries      WebhookDeliveryRepository
	Outbox          OutboxRepository
	WebhookTasks    WebhookTaskRepository
	CallbackLogs    CallbackLogRepository
	GiftCards       GiftCardRepository
	Credits         CreditRepository
	Subscriptions   SubscriptionRepository

	// Tx opens a transaction on the same handle; a savepoint when the
	// repositories are already bound to one.
	Tx Transactor
}

// Transactor runs fn with repositories bound to a single database transaction.
// Returning an error rolls everything back.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos *Repositories) error) error
}
