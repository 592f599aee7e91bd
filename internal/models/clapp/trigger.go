package clapp

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ingestTrigger regroupe les évaluations demandées à l'ingestion : un seul
// worker, et les métriques arrivées pendant une évaluation sont fusionnées
// dans la suivante
type ingestTrigger struct {
	run func(ctx context.Context, metrics []string)

	mu        sync.Mutex
	pending   map[string]struct{}
	scheduled bool
	stopped   bool

	wake     chan struct{}
	done     chan struct{}
	inflight sync.WaitGroup
	stopOnce sync.Once
}

func newIngestTrigger(run func(ctx context.Context, metrics []string)) *ingestTrigger {
	t := &ingestTrigger{
		run:     run,
		pending: make(map[string]struct{}),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go t.loop()
	return t
}

// Notify ajoute des métriques à la prochaine évaluation sans jamais bloquer
func (t *ingestTrigger) Notify(metrics ...string) {
	if len(metrics) == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	for _, m := range metrics {
		t.pending[m] = struct{}{}
	}
	if t.scheduled {
		return
	}
	t.scheduled = true
	t.inflight.Add(1)
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

func (t *ingestTrigger) loop() {
	for {
		select {
		case <-t.done:
			return
		case <-t.wake:
			t.flush()
		}
	}
}

func (t *ingestTrigger) flush() {
	defer t.inflight.Done()

	t.mu.Lock()
	metrics := make([]string, 0, len(t.pending))
	for m := range t.pending {
		metrics = append(metrics, m)
	}
	t.pending = make(map[string]struct{})
	t.scheduled = false
	t.mu.Unlock()

	sort.Strings(metrics)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	log.Debug().Strs("metrics", metrics).Msg("ingestion alert evaluation")
	t.run(ctx, metrics)
}

// Wait attend que les évaluations demandées jusqu'ici soient terminées
func (t *ingestTrigger) Wait() {
	t.inflight.Wait()
}

// Stop refuse les nouvelles demandes, termine celle en attente puis arrête le worker
func (t *ingestTrigger) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
	t.inflight.Wait()
	t.stopOnce.Do(func() { close(t.done) })
}
