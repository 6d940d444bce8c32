package mq

const (
	TopicPersistence = "persist_topic"
	TagSaveExchange  = "save_exchange"
)
