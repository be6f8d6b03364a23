package events

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

const DefaultSubjectPrefix = "tradesim.events"

// NATSBroadcaster publishes events as JSON to
// <prefix>.<event_type_lowercase>. Publish failures are logged, never
// returned, because push delivery is best effort.
type NATSBroadcaster struct {
	conn   *nats.Conn
	prefix string
	log    zerolog.Logger
}

func NewNATSBroadcaster(conn *nats.Conn, prefix string, log zerolog.Logger) *NATSBroadcaster {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSBroadcaster{conn: conn, prefix: prefix, log: log}
}

// DialNATS connects with reconnects enabled.
func DialNATS(url string) (*nats.Conn, error) {
	conn, err := nats.Connect(url, nats.Name("lv-tradesim"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return conn, nil
}

func (n *NATSBroadcaster) Subject(evt Event) string {
	return n.prefix + "." + strings.ToLower(string(evt.Type))
}

func (n *NATSBroadcaster) Emit(evt Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		n.log.Warn().Err(err).Str("type", string(evt.Type)).Msg("marshal event")
		return
	}
	if err := n.conn.Publish(n.Subject(evt), data); err != nil {
		n.log.Warn().Err(err).Str("type", string(evt.Type)).Msg("publish event")
	}
}
