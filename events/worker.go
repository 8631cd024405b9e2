package events

import (
	"context"
	"sync"
	"time"

	"emperror.dev/errors"
	"github.com/lib/pq"

	"github.com/commune-gg/commune/common"
	"github.com/commune-gg/commune/common/backgroundworkers"
	"github.com/commune-gg/commune/common/pubsub"
)

var _ backgroundworkers.BackgroundWorkerPlugin = (*Plugin)(nil)

func (p *Plugin) RunBackgroundWorker() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			err := p.advanceStatuses(context.Background())
			if err != nil {
				logger.WithError(err).Error("failed advancing event statuses")
			}

			err = p.rolloverRecurring(context.Background())
			if err != nil {
				logger.WithError(err).Error("failed rolling over recurring events")
			}
		case wg := <-p.stopWorkers:
			wg.Done()
			return
		}
	}
}

func (p *Plugin) StopBackgroundWorker(wg *sync.WaitGroup) {
	p.stopWorkers <- wg
}

// advanceStatuses moves upcoming events past their start to ongoing, and
// ongoing events past their end (or start + default duration) to completed.
func (p *Plugin) advanceStatuses(ctx context.Context) error {
	res, err := common.PQ.ExecContext(ctx, `UPDATE events SET status = $1, updated_at = now()
		WHERE status = $2 AND start_time <= now() AND deleted_at IS NULL`,
		StatusOngoing, StatusUpcoming)
	if err != nil {
		return errors.WithStackIf(err)
	}
	nowOngoing, _ := res.RowsAffected()

	// events without an end time are treated as two hours long
	res, err = common.PQ.ExecContext(ctx, `UPDATE events SET status = $1, updated_at = now()
		WHERE status = $2 AND deleted_at IS NULL
		AND COALESCE(end_time, start_time + interval '2 hours') <= now()`,
		StatusCompleted, StatusOngoing)
	if err != nil {
		return errors.WithStackIf(err)
	}
	nowCompleted, _ := res.RowsAffected()

	if nowOngoing > 0 || nowCompleted > 0 {
		logger.WithField("ongoing", nowOngoing).WithField("completed", nowCompleted).Info("Advanced event statuses")
		pubsub.PublishLogErr(PubsubEvtEventsChanged, -1, nil)
	}

	return nil
}

// rolloverRecurring materializes the next occurrence of completed recurring
// events, so a weekly meetup shows up again after it ran.
func (p *Plugin) rolloverRecurring(ctx context.Context) error {
	evs, err := queryEvents(ctx, `WHERE status = $1 AND deleted_at IS NULL
		AND recurrence_rule IS NOT NULL AND recurrence_rule != ''`, StatusCompleted)
	if err != nil {
		return err
	}

	now := time.Now()
	for _, ev := range evs {
		next, ok := NextOccurrence(ev, now)
		if !ok {
			// exhausted series stays completed, clear the rule so we stop
			// looking at it
			_, err = common.PQ.ExecContext(ctx, `UPDATE events SET recurrence_rule = NULL WHERE id = $1`, ev.ID)
			if err != nil {
				return errors.WithStackIf(err)
			}
			continue
		}

		var nextEnd interface{}
		if ev.EndTime.Valid {
			nextEnd = next.Add(ev.EndTime.Time.Sub(ev.StartTime))
		}

		const q = `INSERT INTO events (` + eventColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, now(), now(), NULL)`

		_, err = common.PQ.ExecContext(ctx, q, common.GenID(), ev.CommunityID, ev.CreatedBy, ev.Title, ev.Description,
			next, nextEnd, ev.Location, ev.IsOnline, ev.MeetingURL,
			ev.Capacity, pq.StringArray(ev.Tags), ev.RecurrenceRule, StatusUpcoming)
		if err != nil {
			return errors.WithStackIf(err)
		}

		// the new occurrence owns the series from here
		_, err = common.PQ.ExecContext(ctx, `UPDATE events SET recurrence_rule = NULL WHERE id = $1`, ev.ID)
		if err != nil {
			return errors.WithStackIf(err)
		}

		logger.WithField("event", ev.ID).WithField("next", next).Info("Materialized next occurrence of recurring event")
		pubsub.PublishLogErr(PubsubEvtEventsChanged, ev.CommunityID, nil)
	}

	return nil
}
