// Package smtp отправляет письма через SMTP-сервер с STARTTLS и PLAIN-аутентификацией.
package smtp

import "io"

// Client — операции SMTP-клиента, используемые Mailer.
type Client interface {
	Mail(from string) error
	Rcpt(to string) error
	Data() (io.WriteCloser, error)
	Quit() error
	Close() error
}

// TransportInterface устанавливает соединение с сервером.
type TransportInterface interface {
	Connect() (Client, error)
	GetSMTPUser() string
}
