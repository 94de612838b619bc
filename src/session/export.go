package session

import (
	"context"
	"fmt"
	"log"
	"time"

	"circle-thumb/src/compositor"
	"circle-thumb/src/logutil"
	"circle-thumb/src/store"
	"circle-thumb/src/worker"
)

// Exporter runs previews and saves on a worker pool with a deadline.
type Exporter struct {
	Compositor *compositor.Compositor
	Pool       *worker.Pool
	Persister  store.Persister
	Deadline   time.Duration
}

func (e *Exporter) deadline() time.Duration {
	if e.Deadline <= 0 {
		return 20 * time.Second
	}
	return e.Deadline
}

// PreviewTask returns the work for a preview of snap.
func (e *Exporter) PreviewTask(snap Snapshot) worker.Task {
	comp := e.Compositor
	return func(ctx context.Context) (worker.Result, error) {
		data, spec, err := comp.ComposePNG(snap.Image, snap.Circle, snap.Background)
		if err != nil {
			return worker.Result{}, err
		}
		return worker.Result{PNG: data, Spec: spec}, nil
	}
}

// SaveTask returns the work for composing snap and persisting it as name.
func (e *Exporter) SaveTask(snap Snapshot, name string) worker.Task {
	comp, p := e.Compositor, e.Persister
	return func(ctx context.Context) (worker.Result, error) {
		data, spec, err := comp.ComposePNG(snap.Image, snap.Circle, snap.Background)
		if err != nil {
			return worker.Result{}, err
		}
		filename, err := p.Save(ctx, data, spec.TargetSize, name)
		if err != nil {
			return worker.Result{}, err
		}
		return worker.Result{PNG: data, Spec: spec, Filename: filename}, nil
	}
}

// PreparePreview validates s for a preview and returns the work to run.
func (e *Exporter) PreparePreview(s *Session) (worker.Task, error) {
	snap, err := s.Snapshot()
	if err != nil {
		return nil, err
	}
	if _, err := compositor.Spec(snap.Circle, snap.Background); err != nil {
		return nil, err
	}
	return e.PreviewTask(snap), nil
}

// PrepareSave validates s and name for a save and returns the work to run.
// Validation happens in the order the user sees it: selection, filename,
// then circle size.
func (e *Exporter) PrepareSave(s *Session, name string) (worker.Task, error) {
	snap, err := s.Snapshot()
	if err != nil {
		return nil, err
	}
	base, err := store.NormalizeName(name)
	if err != nil {
		return nil, err
	}
	if _, err := compositor.Spec(snap.Circle, snap.Background); err != nil {
		return nil, err
	}
	if e.Persister == nil {
		return nil, fmt.Errorf("no persister configured")
	}
	return e.SaveTask(snap, base), nil
}

// Preview composes the current selection without persisting it.
func (e *Exporter) Preview(ctx context.Context, s *Session) (worker.Result, error) {
	task, err := e.PreparePreview(s)
	if err != nil {
		return worker.Result{}, err
	}
	return e.run(ctx, task)
}

// Save composes the current selection and hands it to the persister.
func (e *Exporter) Save(ctx context.Context, s *Session, name string) (worker.Result, error) {
	task, err := e.PrepareSave(s, name)
	if err != nil {
		return worker.Result{}, err
	}
	res, err := e.run(ctx, task)
	if err != nil {
		log.Printf("Export: save %s failed: %v", logutil.Sanitize(name), err)
		return worker.Result{}, err
	}
	return res, nil
}

// JobContext bounds one export by the configured deadline.
func (e *Exporter) JobContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.deadline())
}

func (e *Exporter) run(ctx context.Context, task worker.Task) (worker.Result, error) {
	jobCtx, cancel := e.JobContext(ctx)
	defer cancel()
	if e.Pool == nil {
		return task(jobCtx)
	}
	return e.Pool.Run(jobCtx, task)
}
