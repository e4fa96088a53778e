package email

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/example/ewaste-exchange/internal/logger"
)

// Service sends email through a plain SMTP relay.
type Service struct {
	host string
	port string
	from string
	log  *logger.Logger
	send func(addr string, from string, to []string, msg []byte) error
}

func NewService(host, port, from string, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		host: host,
		port: port,
		from: from,
		log:  log.Component("email"),
		send: func(addr, from string, to []string, msg []byte) error {
			return smtp.SendMail(addr, nil, from, to, msg)
		},
	}
}

func (s *Service) SendRequestReceived(ctx context.Context, to string, d RequestReceived) error {
	body, err := render("request_received", d)
	if err != nil {
		return err
	}
	return s.deliver(ctx, to, "New pickup request for post "+shortID(d.PostID), body)
}

func (s *Service) SendRequestAnswered(ctx context.Context, to string, d RequestAnswered) error {
	body, err := render("request_answered", d)
	if err != nil {
		return err
	}
	verb := "declined"
	if d.Accepted {
		verb = "accepted"
	}
	return s.deliver(ctx, to, fmt.Sprintf("%s %s your request", d.ShopName, verb), body)
}

func (s *Service) SendPriceFinalized(ctx context.Context, to string, d PriceFinalized) error {
	body, err := render("price_finalized", d)
	if err != nil {
		return err
	}
	return s.deliver(ctx, to, "Price finalized for post "+shortID(d.PostID), body)
}

func (s *Service) deliver(ctx context.Context, to, subject, body string) error {
	if strings.ContainsAny(to, "\r\n") || strings.ContainsAny(subject, "\r\n") {
		return fmt.Errorf("invalid header value")
	}
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s",
		s.from, to, subject, body)
	addr := s.host + ":" + s.port
	if err := s.send(addr, s.from, []string{to}, []byte(msg)); err != nil {
		s.log.Error(ctx, "smtp send failed", err, map[string]any{"to": to})
		return err
	}
	s.log.Info(ctx, "email sent", map[string]any{"to": to, "subject": subject})
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
