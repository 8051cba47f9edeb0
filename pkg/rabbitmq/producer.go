/**
 * @description
 * This package provides a producer for publishing operational alerts to
 * RabbitMQ. The settlement core uses it as the out-of-band error channel for
 * partial failures: a gateway call that succeeded while the local ledger
 * write failed must reach an operator, never just a log line.
 *
 * @dependencies
 * - context, encoding/json, time: Standard Go libraries.
 * - github.com/rabbitmq/amqp091-go: The RabbitMQ client library.
 */
package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// OpsAlertsExchange is the durable topic exchange operational alerts are
// published to.
const OpsAlertsExchange = "ops_alerts"

// OpsAlert describes a condition that requires manual operator reconciliation.
type OpsAlert struct {
	Operation  string    `json:"operation"`
	ExternalID string    `json:"external_id"`
	Detail     string    `json:"detail"`
	Timestamp  time.Time `json:"timestamp"`
}

// Publisher is the interface implemented by types that can publish alerts.
type Publisher interface {
	PublishOpsAlert(ctx context.Context, routingKey string, alert OpsAlert) error
	Close()
}

// AlertProducer holds the RabbitMQ connection and channel for publishing.
type AlertProducer struct {
	conn    *amqp091.Connection
	channel *amqp091.Channel
}

// AlertProducerFallback is a minimal publisher used when RabbitMQ is
// unavailable at startup. Alerts still land in the logs.
type AlertProducerFallback struct{}

func (p *AlertProducerFallback) PublishOpsAlert(ctx context.Context, routingKey string, alert OpsAlert) error {
	log.Printf("level=error component=ops_alerts mode=fallback msg=\"alert not published to broker\" routing_key=%s operation=%s external_id=%s detail=%q",
		routingKey, alert.Operation, alert.ExternalID, alert.Detail)
	return nil
}

func (p *AlertProducerFallback) Close() {}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.TrimSpace(raw)
	clean = strings.Trim(clean, "\"'")
	// If any stray characters precede the scheme, slice from first occurrence of amqp
	idx := strings.Index(strings.ToLower(clean), "amqp")
	if idx > 0 {
		clean = clean[idx:]
	}
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

// NewAlertProducer creates and returns a new AlertProducer.
func NewAlertProducer(amqpURL string) (*AlertProducer, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}

	// Use a bounded dial timeout so startup does not hang indefinitely
	conn, err := amqp091.DialConfig(cleanURL, amqp091.Config{Dial: amqp091.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	return &AlertProducer{conn: conn, channel: ch}, nil
}

// PublishOpsAlert sends an alert to the ops_alerts exchange with a routing key.
func (p *AlertProducer) PublishOpsAlert(ctx context.Context, routingKey string, alert OpsAlert) error {
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now().UTC()
	}

	if err := p.channel.ExchangeDeclare(
		OpsAlertsExchange, // name
		"topic",           // type
		true,              // durable
		false,             // autoDelete
		false,             // internal
		false,             // noWait
		nil,               // args
	); err != nil {
		log.Printf("level=warn component=ops_alerts msg=\"exchange declare failed; reopening channel\" err=%v", err)
		ch, chErr := p.conn.Channel()
		if chErr != nil {
			return chErr
		}
		p.channel = ch
		if err := p.channel.ExchangeDeclare(OpsAlertsExchange, "topic", true, false, false, false, nil); err != nil {
			return err
		}
	}

	jsonBody, err := json.Marshal(alert)
	if err != nil {
		return err
	}

	publish := func() error {
		return p.channel.PublishWithContext(ctx,
			OpsAlertsExchange,
			routingKey,
			false, // mandatory
			false, // immediate
			amqp091.Publishing{
				ContentType: "application/json",
				Timestamp:   time.Now(),
				Body:        jsonBody,
			},
		)
	}

	if err := publish(); err != nil {
		log.Printf("level=warn component=ops_alerts msg=\"publish failed; reopening channel\" routing_key=%s err=%v", routingKey, err)
		// One-shot retry: reopen channel and try again
		ch, chErr := p.conn.Channel()
		if chErr != nil {
			return err
		}
		p.channel = ch
		if exErr := p.channel.ExchangeDeclare(OpsAlertsExchange, "topic", true, false, false, false, nil); exErr != nil {
			return err
		}
		return publish()
	}
	return nil
}

// Close gracefully closes the channel and connection to RabbitMQ.
func (p *AlertProducer) Close() {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}
