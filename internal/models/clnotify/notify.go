package clnotify

import (
	"context"
	"haultrack/internal/models/clalerts"
	"haultrack/internal/models/clmetrics"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Sink envoie une alerte sur un canal. Les relances éventuelles sont à sa charge.
type Sink interface {
	Send(ctx context.Context, channel string, alert clalerts.Alert) error
}

// LogSink journalise l'alerte ; la ligne en base sert déjà de notification tableau de bord
type LogSink struct{}

func (LogSink) Send(ctx context.Context, channel string, alert clalerts.Alert) error {
	log.Info().
		Str("channel", channel).
		Uint("alert_id", alert.ID).
		Str("severity", string(alert.Severity)).
		Str("message", alert.Message).
		Msg("alert notification")
	return nil
}

// Dispatcher associe chaque canal à un sink, construit une fois au démarrage
type Dispatcher struct {
	sinks    map[string]Sink
	fallback Sink
	timeout  time.Duration
	wg       sync.WaitGroup
}

func NewDispatcher(timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		sinks:    map[string]Sink{"dashboard": LogSink{}},
		fallback: LogSink{},
		timeout:  timeout,
	}
}

// Register doit être appelé avant le premier Dispatch
func (d *Dispatcher) Register(channel string, sink Sink) {
	d.sinks[strings.ToLower(strings.TrimSpace(channel))] = sink
}

func (d *Dispatcher) Channels() []string {
	channels := make([]string, 0, len(d.sinks))
	for ch := range d.sinks {
		channels = append(channels, ch)
	}
	sort.Strings(channels)
	return channels
}

// Dispatch ne bloque pas : chaque canal part dans sa propre goroutine
func (d *Dispatcher) Dispatch(alert clalerts.Alert, channels []string) {
	if len(channels) == 0 {
		channels = []string{"dashboard"}
	}
	for _, ch := range channels {
		sink, ok := d.sinks[ch]
		if !ok {
			log.Warn().Str("channel", ch).Uint("alert_id", alert.ID).Msg("no sink registered for channel, logging only")
			sink = d.fallback
		}

		d.wg.Add(1)
		go func(ch string, sink Sink) {
			defer d.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					clmetrics.DispatchFailures.WithLabelValues(ch).Inc()
					log.Error().Interface("panic", r).Str("channel", ch).Msg("notification sink panicked")
				}
			}()

			ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
			defer cancel()
			if err := sink.Send(ctx, ch, alert); err != nil {
				clmetrics.DispatchFailures.WithLabelValues(ch).Inc()
				log.Error().Err(err).Str("channel", ch).Uint("alert_id", alert.ID).Msg("alert dispatch failed")
			}
		}(ch, sink)
	}
}

// Wait attend la fin des envois en cours (arrêt du serveur, tests)
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
