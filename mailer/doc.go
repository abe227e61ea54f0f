// Package mailer provides authcore.EmailSender implementations.
//
// AMQPSender publishes each message as a JSON envelope to a RabbitMQ topic
// exchange, routed by email kind, for a separate delivery worker to render
// and send. LogSender writes messages to a slog.Logger and is meant for
// local development.
package mailer
