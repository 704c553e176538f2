package workspace

import (
	"context"
	"fmt"
	"time"

	"github.com/signalsfoundry/mapdraw/core"
	"github.com/signalsfoundry/mapdraw/internal/logging"
	"github.com/signalsfoundry/mapdraw/internal/observability"
	"github.com/signalsfoundry/mapdraw/internal/persist"
	"github.com/signalsfoundry/mapdraw/model"
)

// Snapshot captures the persistable state. Every piece is present, so
// loading it back restores the workspace exactly.
func (w *Workspace) Snapshot() *persist.Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	vp := w.viewport
	style := w.mapStyle
	layers := w.store.List()
	if layers == nil {
		layers = []*model.Layer{}
	}
	return &persist.Snapshot{
		Version:     persist.SnapshotVersion,
		SessionID:   w.sessionID,
		SavedAt:     time.Now().UTC(),
		Viewport:    &vp,
		Layers:      layers,
		GroupLabels: w.store.GroupLabels(),
		Collapsed:   w.store.Collapsed(),
		MapStyle:    &style,
	}
}

// LoadSnapshot replaces each piece present in s wholesale and leaves
// absent pieces untouched. Any in-progress gesture is abandoned. On a
// layer validation error nothing is changed.
func (w *Workspace) LoadSnapshot(ctx context.Context, s *persist.Snapshot) error {
	if s == nil {
		return nil
	}
	ctx, span := observability.StartSpan(ctx, "Workspace.LoadSnapshot",
		observability.WorkspaceID(s.SessionID.String()),
		observability.LayerCount(len(s.Layers)),
	)
	defer span.End()

	err := w.run(ChangeLoaded, func() error {
		layers := s.Layers
		if layers == nil && (s.GroupLabels != nil || s.Collapsed != nil) {
			layers = w.store.List()
		}
		if layers != nil {
			if err := w.store.Replace(layers, s.GroupLabels, s.Collapsed); err != nil {
				return fmt.Errorf("load snapshot: %w", err)
			}
		}
		if s.Viewport != nil {
			vp := *s.Viewport
			vp.Zoom = model.ClampZoom(vp.Zoom)
			w.viewport = vp
		}
		if s.MapStyle != nil {
			w.mapStyle = *s.MapStyle
		}
		w.session = core.NewDrawingSession()
		w.drag = nil
		w.band = nil
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return err
	}
	w.log.Info(ctx, "snapshot loaded",
		logging.String("snapshot_session", s.SessionID.String()),
		logging.Int("layers", len(s.Layers)),
	)
	return nil
}
