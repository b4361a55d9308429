package app

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/smswatch/ledger-service/internal/domain"
)

// SMSConsumer handles notification messages delivered over RabbitMQ. Gateways
// that cannot reach the HTTP API (or that batch uploads) publish the same
// payloads to the broker instead; redelivery is safe because ingestion is
// idempotent.
type SMSConsumer struct {
	service *Service
}

func NewSMSConsumer(service *Service) *SMSConsumer {
	return &SMSConsumer{service: service}
}

// smsBackupMessage is the broker payload for raw SMS backups.
type smsBackupMessage struct {
	SMSData  string `json:"sms_data"`
	SourceIP string `json:"source_ip"`
}

// HandleTransaction ingests one notification message. Returns true when the
// message should be acknowledged.
func (c *SMSConsumer) HandleTransaction(body []byte) bool {
	var req domain.IngestRequest
	if err := json.Unmarshal(body, &req); err != nil {
		log.Printf("level=warn component=sms_consumer msg=\"transaction payload unmarshal failed; dropping\" err=%v", err)
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	result, err := c.service.Ingest(ctx, req, "amqp")
	if err != nil {
		if errors.Is(err, ErrInvalidPayload) {
			log.Printf("level=warn component=sms_consumer msg=\"invalid transaction payload; dropping\" err=%v", err)
			return true
		}
		log.Printf("level=error component=sms_consumer msg=\"ingest failed; re-queuing\" err=%v", err)
		return false
	}

	if !result.IsNew {
		log.Printf("level=info component=sms_consumer msg=\"duplicate notification acknowledged\" transaction_id=%s", result.TransactionID)
	}
	return true
}

// HandleBackup appends one raw SMS backup message.
func (c *SMSConsumer) HandleBackup(body []byte) bool {
	var msg smsBackupMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		log.Printf("level=warn component=sms_consumer msg=\"backup payload unmarshal failed; dropping\" err=%v", err)
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := c.service.SaveBackup(ctx, msg.SMSData, msg.SourceIP); err != nil {
		if errors.Is(err, ErrInvalidPayload) {
			log.Printf("level=warn component=sms_consumer msg=\"empty backup payload; dropping\"")
			return true
		}
		log.Printf("level=error component=sms_consumer msg=\"backup append failed; re-queuing\" err=%v", err)
		return false
	}
	return true
}
