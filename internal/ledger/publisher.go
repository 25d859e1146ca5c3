package ledger

import (
	"encoding/json"
	"log"
	"os"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// Publisher mirrors settlement records onto a NATS broker for external
// consumers. A nil Publisher is valid and publishes nothing.
type Publisher struct {
	nc *nats.Conn
}

// NewPublisherFromEnv connects to NATS_URL. When the variable is unset the
// broker is considered disabled and a nil publisher is returned.
func NewPublisherFromEnv() (*Publisher, error) {
	url := strings.TrimSpace(os.Getenv("NATS_URL"))
	if url == "" {
		return nil, nil
	}

	opts := []nats.Option{
		nats.Name("spades-live"),
		nats.Timeout(10 * time.Second),
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(5),
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}
	return &Publisher{nc: nc}, nil
}

func (p *Publisher) publish(subject string, v any) {
	if p == nil || p.nc == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("[Publisher] marshal %s failed: %v", subject, err)
		return
	}
	if err := p.nc.Publish(subject, data); err != nil {
		log.Printf("[Publisher] publish %s failed: %v", subject, err)
	}
}

func (p *Publisher) PublishHandSettled(gameID string, recs []HandRecord) {
	p.publish("spades.ledger.hand_settled", map[string]any{
		"game_id": gameID,
		"records": recs,
	})
}

func (p *Publisher) PublishGameFinished(gameID string, outcomes []SeatOutcome) {
	p.publish("spades.ledger.game_finished", map[string]any{
		"game_id":  gameID,
		"outcomes": outcomes,
	})
}

func (p *Publisher) Close() {
	if p == nil || p.nc == nil {
		return
	}
	p.nc.Drain()
}
