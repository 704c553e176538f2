package workspace

import (
	"github.com/signalsfoundry/mapdraw/model"
)

// Layer store commands are single-field replacements serialised through
// the command lock.

func (w *Workspace) mutate(fn func() error) error {
	return w.run(ChangeLayers, fn)
}

// RemoveLayer deletes a layer, dropping a drag gesture that targets it.
func (w *Workspace) RemoveLayer(id string) error {
	return w.mutate(func() error {
		if err := w.store.Remove(id); err != nil {
			return err
		}
		if w.drag != nil && w.drag.LayerID == id {
			w.drag = nil
		}
		return nil
	})
}

// MoveLayer changes a layer's position in the render order.
func (w *Workspace) MoveLayer(id string, index int) error {
	return w.mutate(func() error { return w.store.MoveTo(id, index) })
}

func (w *Workspace) SetVisible(id string, visible bool) error {
	return w.mutate(func() error { return w.store.SetVisible(id, visible) })
}

func (w *Workspace) SetColor(id string, c model.RGB) error {
	return w.mutate(func() error { return w.store.SetColor(id, c) })
}

func (w *Workspace) RenameLayer(id, label string) error {
	return w.mutate(func() error { return w.store.Rename(id, label) })
}

// SetGroup moves a layer into a folder; an empty group is the root.
func (w *Workspace) SetGroup(id, group string) error {
	return w.mutate(func() error { return w.store.SetGroup(id, group) })
}

func (w *Workspace) SetIcon(id, icon string) error {
	return w.mutate(func() error { return w.store.SetIcon(id, icon) })
}

func (w *Workspace) SetIconKind(id, kind string) error {
	return w.mutate(func() error { return w.store.SetIconKind(id, kind) })
}

func (w *Workspace) SetPointMode(id string, mode model.PointMode) error {
	return w.mutate(func() error { return w.store.SetPointMode(id, mode) })
}

func (w *Workspace) SetRadius(id string, radius float64) error {
	return w.mutate(func() error { return w.store.SetRadius(id, radius) })
}

// SetGroupLabel names a folder; an empty label removes the name.
func (w *Workspace) SetGroupLabel(group, label string) {
	_ = w.mutate(func() error {
		w.store.SetGroupLabel(group, label)
		return nil
	})
}

// SetCollapsed records a section's collapsed flag.
func (w *Workspace) SetCollapsed(section string, collapsed bool) {
	_ = w.mutate(func() error {
		w.store.SetCollapsed(section, collapsed)
		return nil
	})
}
