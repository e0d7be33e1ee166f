package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/calmbridge/televisit/internal/core"
	"github.com/calmbridge/televisit/internal/domain"
)

// Coordinator drives the NotStarted → InProgress → Ended state machine in
// lockstep with the persisted appointment record. External round-trips are
// made outside the room critical section; the room transition is applied
// afterwards with staleness checks.
type Coordinator struct {
	Registry *Registry
	Status   core.StatusManager
	Sink     core.EventSink
}

func NewCoordinator(reg *Registry, status core.StatusManager, sink core.EventSink) *Coordinator {
	if sink == nil {
		sink = core.NopSink{}
	}
	return &Coordinator{Registry: reg, Status: status, Sink: sink}
}

// Start performs the start transition. A nil actor marks the automatic
// trigger (second distinct participant). Idempotent: a trigger while the
// call is already in progress, or while another start is in flight, is a
// no-op rather than an error.
func (c *Coordinator) Start(ctx context.Context, roomID domain.RoomID, actor *domain.UserID) error {
	appointment, latched, err := c.Registry.beginStart(roomID)
	if err != nil {
		return err
	}
	if !latched {
		return nil
	}

	rec, err := c.Status.StartCall(ctx, appointment, actor)
	if err != nil {
		c.Registry.abortStart(roomID)
		return fmt.Errorf("%w: start call %s: %v", core.ErrInternal, appointment, err)
	}

	if !c.Registry.commitStart(roomID, rec.StartedAt) {
		// The room was torn down while the external call was in flight;
		// the stale decision is not applied.
		log.Warn().Str("module", "app.lifecycle").Str("room", string(roomID)).Msg("discarding stale start")
		return nil
	}

	ev := core.CallStartedEvent{
		Type:          core.MsgCallStarted,
		AppointmentID: appointment,
		StartTime:     rec.StartedAt,
		Status:        string(rec.Status),
	}
	if frame, ok := core.Encode(ev); ok {
		c.Registry.Broadcast(roomID, frame, "")
	}
	c.Sink.CallStarted(roomID, appointment, actor == nil)
	log.Info().Str("module", "app.lifecycle").
		Str("room", string(roomID)).
		Str("appointment", string(appointment)).
		Bool("auto", actor == nil).
		Msg("call started")
	return nil
}

// End performs an explicit end transition requested by a participant.
func (c *Coordinator) End(ctx context.Context, roomID domain.RoomID, actor *domain.UserID) error {
	appointment, latched, err := c.Registry.beginEnd(roomID)
	if err != nil {
		return err
	}
	if !latched {
		return nil
	}

	rec, err := c.Status.EndCall(ctx, appointment, actor)
	if err != nil {
		c.Registry.abortEnd(roomID)
		return fmt.Errorf("%w: end call %s: %v", core.ErrInternal, appointment, err)
	}

	if !c.Registry.commitEnd(roomID) {
		log.Warn().Str("module", "app.lifecycle").Str("room", string(roomID)).Msg("discarding stale end")
		return nil
	}

	c.broadcastEnded(roomID, appointment, rec)
	c.Sink.CallEnded(roomID, appointment, core.EndExplicit, rec.DurationMinutes)
	log.Info().Str("module", "app.lifecycle").
		Str("room", string(roomID)).
		Str("appointment", string(appointment)).
		Int("duration_min", rec.DurationMinutes).
		Msg("call ended")
	return nil
}

// AutoEnd runs when the last participant left an in-progress room. The room
// entry is already gone from the registry; the broadcast reaches nobody and
// only the persisted record and the sink are updated.
func (c *Coordinator) AutoEnd(ctx context.Context, roomID domain.RoomID, appointment domain.AppointmentID, cause core.EndCause) {
	rec, err := c.Status.EndCall(ctx, appointment, nil)
	if err != nil {
		// Never silently assumed successful: the failure is surfaced to
		// operators even though no client is left to notify.
		log.Error().Err(err).Str("module", "app.lifecycle").
			Str("room", string(roomID)).
			Str("appointment", string(appointment)).
			Msg("auto end failed")
		return
	}
	c.broadcastEnded(roomID, appointment, rec)
	c.Sink.CallEnded(roomID, appointment, cause, rec.DurationMinutes)
	log.Info().Str("module", "app.lifecycle").
		Str("room", string(roomID)).
		Str("appointment", string(appointment)).
		Str("cause", string(cause)).
		Msg("call auto-ended")
}

func (c *Coordinator) broadcastEnded(roomID domain.RoomID, appointment domain.AppointmentID, rec core.CallRecord) {
	endedAt := time.Now()
	if rec.EndedAt != nil {
		endedAt = *rec.EndedAt
	}
	ev := core.CallEndedEvent{
		Type:            core.MsgCallEnded,
		AppointmentID:   appointment,
		EndTime:         endedAt,
		DurationMinutes: rec.DurationMinutes,
		Status:          string(rec.Status),
	}
	if frame, ok := core.Encode(ev); ok {
		c.Registry.Broadcast(roomID, frame, "")
	}
}
