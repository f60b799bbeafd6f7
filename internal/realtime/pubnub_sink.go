package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	pubnub "github.com/pubnub/go/v7"

	"github.com/iliyamo/bus-seat-hold/internal/config"
	"github.com/iliyamo/bus-seat-hold/internal/model"
)

// PubNubSink mirrors events to PubNub for mobile clients, one channel per
// trip ("trip-<id>").
type PubNubSink struct {
	publish func(channel string, msg interface{}) error
}

func NewPubNubSink(cfg config.PubNubConfig) *PubNubSink {
	pnc := pubnub.NewConfigWithUserId(pubnub.UserId(cfg.UserID))
	pnc.PublishKey = cfg.PublishKey
	pnc.SubscribeKey = cfg.SubscribeKey
	pnc.SecretKey = cfg.SecretKey
	pn := pubnub.NewPubNub(pnc)

	return &PubNubSink{publish: func(channel string, msg interface{}) error {
		_, _, err := pn.Publish().Channel(channel).Message(msg).Execute()
		return err
	}}
}

func (s *PubNubSink) Name() string { return "pubnub" }

// Deliver publishes ev.  The PubNub client has no per-call context, so a
// cancelled ctx only short-circuits before the request.
func (s *PubNubSink) Deliver(ctx context.Context, ev model.SeatEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return s.publish(fmt.Sprintf("trip-%d", ev.TripID), string(payload))
}
