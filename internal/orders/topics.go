package orders

import "strconv"

const TopicOrderCreated = "order.created"

// PartitionKey keys every event of one order to the same partition.
func PartitionKey(orderID int64) []byte { return []byte(strconv.FormatInt(orderID, 10)) }
