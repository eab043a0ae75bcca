package scan

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/opsless/policyscan/internal/monitor/model"
	"github.com/opsless/policyscan/internal/monitor/notify"
)

// Dispatcher fans persisted events out to the notification channel and
// writes the delivery outcome back onto each event. Delivery failures
// never fail the run.
type Dispatcher struct {
	sender notify.Sender
	events EventStore
}

func NewDispatcher(sender notify.Sender, events EventStore) *Dispatcher {
	return &Dispatcher{sender: sender, events: events}
}

// Dispatch sends one notice per notifiable event. Info events never
// notify; no_data events notify only when the policy's no-data alert
// flag is positive.
func (d *Dispatcher) Dispatch(ctx context.Context, sc *ScanContext, events []*model.Event) {
	p := sc.Policy
	if !p.Notice || d.sender == nil {
		return
	}

	var toNotify []*model.Event
	for _, e := range events {
		if e.Level == model.LevelInfo {
			continue
		}
		if e.Level == model.LevelNoData && p.NoDataAlert <= 0 {
			continue
		}
		toNotify = append(toNotify, e)
	}
	if len(toNotify) == 0 {
		return
	}

	title := fmt.Sprintf("alert notice: %s", p.Name)
	for _, e := range toNotify {
		content := fmt.Sprintf("alert content: %s", e.Content)
		res, err := d.sender.Send(ctx, p.NoticeTypeID, title, content, p.NoticeUsers)
		if err != nil {
			log.Error().Err(err).Str("policy", p.Name).Msg("send notice exception")
			continue
		}
		if !res.Result {
			log.Error().Str("policy", p.Name).Str("message", res.Message).Msg("send notice failed")
			continue
		}
		e.NoticeResult = true
		log.Info().Str("policy", p.Name).Str("event", e.ID).Msg("send notice success")
	}

	if err := d.events.UpdateNoticeResults(ctx, toNotify); err != nil {
		log.Error().Err(err).Str("policy", p.Name).Msg("failed to persist notice results")
	}
}
