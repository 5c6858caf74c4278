// Package events publishes ledger rebuild notifications to redis or kafka.
package events

import (
	"context"
	"time"

	"github.com/facilitydesk/facilitydesk/internal/ledger"
)

// TopicLedgerRebuilt is the channel/topic rebuild notifications go to.
const TopicLedgerRebuilt = "billing.ledger.rebuilt"

// PartyPosition is a party's balance as carried in a notification.
type PartyPosition struct {
	Party          string `json:"party"`
	CurrentBalance string `json:"currentBalance"`
	Status         string `json:"status"`
}

// LedgerRebuilt announces a newly published ledger snapshot.
type LedgerRebuilt struct {
	EventType string          `json:"event_type"`
	Version   uint64          `json:"version"`
	Reason    string          `json:"reason"`
	Entries   int             `json:"entries"`
	BuiltAt   time.Time       `json:"built_at"`
	Parties   []PartyPosition `json:"parties"`
}

// NewLedgerRebuilt summarises a snapshot.
func NewLedgerRebuilt(snap *ledger.Snapshot, reason string) LedgerRebuilt {
	evt := LedgerRebuilt{
		EventType: TopicLedgerRebuilt,
		Reason:    reason,
		Parties:   []PartyPosition{},
	}
	if snap == nil {
		return evt
	}
	evt.Version = snap.Version
	evt.Entries = len(snap.Entries)
	evt.BuiltAt = snap.BuiltAt
	for _, pb := range snap.Balances {
		evt.Parties = append(evt.Parties, PartyPosition{
			Party:          pb.Party,
			CurrentBalance: pb.CurrentBalance.String(),
			Status:         string(pb.Status),
		})
	}
	return evt
}

// Publisher delivers rebuild notifications.
type Publisher interface {
	PublishLedgerRebuilt(ctx context.Context, evt LedgerRebuilt) error
	Close() error
}

// Nop drops every notification.
type Nop struct{}

// PublishLedgerRebuilt implements Publisher.
func (Nop) PublishLedgerRebuilt(context.Context, LedgerRebuilt) error { return nil }

// Close implements Publisher.
func (Nop) Close() error { return nil }
