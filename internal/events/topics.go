package events

const (
	TopicOrderLifecycle = "order.lifecycle"
	TopicStockLow       = "inventory.stock.low"
)

// Partition key = aggregate id, so every event of one order keeps its order.
func PartitionKey(id string) []byte { return []byte(id) }
