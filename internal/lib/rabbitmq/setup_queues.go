package rabbitmq

// QueueConfig очередь и ключ маршрутизации, которым она привязана к обменнику.
type QueueConfig struct {
	QueueName  string
	RoutingKey string
}

// OutboundQueues очереди исходящих сообщений для внешнего отправителя.
func OutboundQueues(exchange, routingKey string) []QueueConfig {
	return []QueueConfig{
		{QueueName: exchange + "." + routingKey, RoutingKey: routingKey},
	}
}
