package rabbitmq

// QueueConfig связывает очередь с ключом маршрутизации exchange уведомлений.
type QueueConfig struct {
	QueueName  string
	RoutingKey string
}

// Очереди и ключи уведомлений: о пробном периоде и о результатах оплаты.
const (
	QueueTrialNotifications   = "notification.trial"
	RoutingKeyTrial           = "trial"
	QueuePaymentNotifications = "notification.payment"
	RoutingKeyPayment         = "payment"
)

// GetNotificationQueues возвращает очереди, которые объявляют издатель и потребитель.
func GetNotificationQueues() []QueueConfig {
	return []QueueConfig{
		{QueueName: QueueTrialNotifications, RoutingKey: RoutingKeyTrial},
		{QueueName: QueuePaymentNotifications, RoutingKey: RoutingKeyPayment},
	}
}
