// Package sink implements the metrics and security-incident sink on top of
// Prometheus counters. Incidents are additionally logged so breach detection
// sees attempts even when the triggering action was rejected.
package sink

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"

	"github.com/calmbridge/televisit/internal/core"
	"github.com/calmbridge/televisit/internal/domain"
)

type Prometheus struct {
	connectionAttempts prometheus.Counter
	connectionAccepts  prometheus.Counter
	connectionRejects  *prometheus.CounterVec
	participantJoins   *prometheus.CounterVec
	paymentValidations *prometheus.CounterVec
	callStarts         *prometheus.CounterVec
	callEnds           *prometheus.CounterVec
	callMinutes        prometheus.Counter
	callDrops          prometheus.Counter
	incidents          *prometheus.CounterVec
}

func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	factory := promauto.With(reg)
	return &Prometheus{
		connectionAttempts: factory.NewCounter(prometheus.CounterOpts{
			Name: "televisit_connection_attempts_total",
			Help: "Inbound signaling connection attempts.",
		}),
		connectionAccepts: factory.NewCounter(prometheus.CounterOpts{
			Name: "televisit_connections_accepted_total",
			Help: "Connections that passed admission and authentication.",
		}),
		connectionRejects: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "televisit_connections_rejected_total",
			Help: "Connections refused before any session logic ran.",
		}, []string{"reason"}),
		participantJoins: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "televisit_participant_joins_total",
			Help: "Successful room joins, excluding reconnects.",
		}, []string{"role"}),
		paymentValidations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "televisit_payment_validations_total",
			Help: "Payment precondition checks at join time.",
		}, []string{"outcome"}),
		callStarts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "televisit_calls_started_total",
			Help: "Call start transitions by trigger.",
		}, []string{"trigger"}),
		callEnds: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "televisit_calls_ended_total",
			Help: "Call end transitions by cause.",
		}, []string{"cause"}),
		callMinutes: factory.NewCounter(prometheus.CounterOpts{
			Name: "televisit_call_minutes_total",
			Help: "Total completed call minutes as reported by the booking store.",
		}),
		callDrops: factory.NewCounter(prometheus.CounterOpts{
			Name: "televisit_call_drops_total",
			Help: "Unexpected disconnects during an in-progress call.",
		}),
		incidents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "televisit_security_incidents_total",
			Help: "Anomalous or adversarial actions by kind.",
		}, []string{"kind"}),
	}
}

func (p *Prometheus) ConnectionAttempt() { p.connectionAttempts.Inc() }

func (p *Prometheus) ConnectionAccepted(domain.UserID) { p.connectionAccepts.Inc() }

func (p *Prometheus) ConnectionRejected(reason string) {
	p.connectionRejects.WithLabelValues(reason).Inc()
}

func (p *Prometheus) ParticipantJoined(_ domain.RoomID, _ domain.UserID, role domain.Role) {
	p.participantJoins.WithLabelValues(string(role)).Inc()
}

func (p *Prometheus) PaymentValidation(_ domain.AppointmentID, ok bool) {
	outcome := "confirmed"
	if !ok {
		outcome = "refused"
	}
	p.paymentValidations.WithLabelValues(outcome).Inc()
}

func (p *Prometheus) CallStarted(_ domain.RoomID, _ domain.AppointmentID, auto bool) {
	trigger := "explicit"
	if auto {
		trigger = "auto"
	}
	p.callStarts.WithLabelValues(trigger).Inc()
}

func (p *Prometheus) CallEnded(_ domain.RoomID, _ domain.AppointmentID, cause core.EndCause, durationMinutes int) {
	p.callEnds.WithLabelValues(string(cause)).Inc()
	p.callMinutes.Add(float64(durationMinutes))
}

func (p *Prometheus) CallDropped(room domain.RoomID, user domain.UserID) {
	p.callDrops.Inc()
	log.Warn().Str("module", "sink").
		Str("room", string(room)).
		Str("user", string(user)).
		Msg("call drop")
}

func (p *Prometheus) SecurityIncident(kind core.IncidentKind, room domain.RoomID, user domain.UserID, details string) {
	p.incidents.WithLabelValues(string(kind)).Inc()
	log.Warn().Str("module", "sink").
		Str("incident", string(kind)).
		Str("room", string(room)).
		Str("user", string(user)).
		Str("details", details).
		Msg("security incident")
}
