package enums

// OutboxAggregateType names the entity an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateOrder   OutboxAggregateType = "order"
	AggregateProduct OutboxAggregateType = "product"
	AggregateUser    OutboxAggregateType = "user"
)

var aggregateTypes = newSet("aggregate type", AggregateOrder, AggregateProduct, AggregateUser)

func (a OutboxAggregateType) IsValid() bool { return aggregateTypes.has(a) }

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return aggregateTypes.parse(value)
}

// OutboxEventType names a domain event published through the outbox.
type OutboxEventType string

const (
	EventOrderCreated   OutboxEventType = "order_created"
	EventOrderPaid      OutboxEventType = "order_paid"
	EventOrderExpired   OutboxEventType = "order_expired"
	EventOrderCancelled OutboxEventType = "order_cancelled"
	EventUserSignedUp   OutboxEventType = "user_signed_up"
)

var eventTypes = newSet("outbox event type",
	EventOrderCreated,
	EventOrderPaid,
	EventOrderExpired,
	EventOrderCancelled,
	EventUserSignedUp,
)

func (e OutboxEventType) IsValid() bool { return eventTypes.has(e) }

func ParseOutboxEventType(value string) (OutboxEventType, error) { return eventTypes.parse(value) }
