// Package amqp publishes build reports to a RabbitMQ queue for admin-side
// consumers. Delivery is fire-and-forget from the orchestrator's point of
// view.
package amqp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/rabbitmq/amqp091-go"

	"github.com/webapk-bot/webapk/internal/build"
)

const reportQueue = "build_reports"

type Sink struct {
	connectionString string // required
}

var _ build.ReportSink = (*Sink)(nil)

func NewSink(connectionString string) *Sink {
	return &Sink{connectionString: connectionString}
}

// SendBuildReport dials, publishes and disconnects. Reports are rare (one
// per successful build), so a held connection is not worth its failure
// modes.
func (s *Sink) SendBuildReport(ctx context.Context, r *build.BuildReport) error {
	conn, err := amqp091.Dial(s.connectionString)
	if err != nil {
		return fmt.Errorf("send build report: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("send build report: %w", err)
	}
	defer ch.Close()

	q, err := ch.QueueDeclare(
		reportQueue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("send build report: %w", err)
	}

	body := &bytes.Buffer{}
	if err = json.NewEncoder(body).Encode(r); err != nil {
		return fmt.Errorf("send build report: %w", err)
	}
	msg := amqp091.Publishing{
		ContentType: "application/json",
		Body:        body.Bytes(),
	}

	err = ch.PublishWithContext(ctx,
		"",     // exchange
		q.Name, // routing key
		false,  // mandatory
		false,  // immediate
		msg,
	)
	if err != nil {
		return fmt.Errorf("send build report: %w", err)
	}

	return nil
}
