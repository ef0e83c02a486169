package rabbitmq

// ExchangeName direct-exchange для событий аккаунтов.
const ExchangeName = "vpn.events"

// Ключи маршрутизации.
const (
	RoutingKeyTrialExpiring   = "trial.expiring"
	RoutingKeyAccountUpgraded = "account.upgraded"
)

// Очереди событий.
const (
	QueueTrialExpiring   = "vpn.trial.expiring"
	QueueAccountUpgraded = "vpn.account.upgraded"
)

const prefetchCount = 10

// QueueConfig очередь и её ключ маршрутизации.
type QueueConfig struct {
	QueueName  string
	RoutingKey string
}

// GetEventQueues очереди, которые читает sender.
func GetEventQueues() []QueueConfig {
	return []QueueConfig{
		{QueueName: QueueTrialExpiring, RoutingKey: RoutingKeyTrialExpiring},
		{QueueName: QueueAccountUpgraded, RoutingKey: RoutingKeyAccountUpgraded},
	}
}
