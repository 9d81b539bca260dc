// Package mq предоставляет минимальную инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — соединение и канал одного шага (без reconnect)
//   - publisher.go  — публикация значения из кэша в exchange
//   - consumer.go   — получение одного сообщения из очереди (basic.get)
//
// Соединение живёт ровно столько, сколько шаг: коннектор открывает
// его в Open и закрывает в Close.
package mq
