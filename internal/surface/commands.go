package surface

import (
	"context"
	"errors"
	"fmt"

	"github.com/signalsfoundry/mapdraw/core"
	"github.com/signalsfoundry/mapdraw/internal/logging"
	"github.com/signalsfoundry/mapdraw/internal/workspace"
	"github.com/signalsfoundry/mapdraw/kb"
	"github.com/signalsfoundry/mapdraw/model"
)

var errBadCommand = errors.New("bad command")

// Command is one message from the operator UI. Type selects the handler;
// the remaining fields are its arguments.
type Command struct {
	Type string `json:"type"`
	Seq  int    `json:"seq,omitempty"`

	Mode string            `json:"mode,omitempty"`
	At   *model.Coordinate `json:"at,omitempty"`

	Layer     string          `json:"layer,omitempty"`
	Index     *int            `json:"index,omitempty"`
	Visible   *bool           `json:"visible,omitempty"`
	Color     *model.RGB      `json:"color,omitempty"`
	Label     *string         `json:"label,omitempty"`
	Group     *string         `json:"group,omitempty"`
	Icon      *string         `json:"icon,omitempty"`
	IconKind  *string         `json:"iconKind,omitempty"`
	PointMode model.PointMode `json:"pointMode,omitempty"`
	Radius    *float64        `json:"radius,omitempty"`

	Section   string `json:"section,omitempty"`
	Collapsed *bool  `json:"collapsed,omitempty"`

	Viewport *model.Viewport `json:"viewport,omitempty"`
	Style    *string         `json:"style,omitempty"`
}

const (
	ReplyHello  = "hello"
	ReplyView   = "view"
	ReplyError  = "error"
	ReplyUpdate = "update"
)

// Reply answers a command, or carries an unsolicited update. Every reply
// except errors for undecodable input includes the full view.
type Reply struct {
	Type  string `json:"type"`
	Seq   int    `json:"seq,omitempty"`
	Conn  string `json:"conn,omitempty"`
	Error string `json:"error,omitempty"`
	Code  string `json:"code,omitempty"`

	Committed *model.Layer      `json:"committed,omitempty"`
	Hit       *model.NodeRecord `json:"hit,omitempty"`
	Focused   *bool             `json:"focused,omitempty"`

	*workspace.View
}

func (srv *Server) dispatch(ctx context.Context, log logging.Logger, cmd Command) Reply {
	reply := Reply{Type: ReplyView, Seq: cmd.Seq}
	if err := srv.apply(ctx, cmd, &reply); err != nil {
		log.Debug(ctx, "command rejected",
			logging.String("command", cmd.Type),
			logging.Err(err),
		)
		return srv.errorReply(cmd, err)
	}
	view := srv.ws.View()
	reply.View = &view
	return reply
}

func (srv *Server) errorReply(cmd Command, err error) Reply {
	view := srv.ws.View()
	return Reply{
		Type:  ReplyError,
		Seq:   cmd.Seq,
		Error: err.Error(),
		Code:  errorCode(err),
		View:  &view,
	}
}

func (srv *Server) apply(ctx context.Context, cmd Command, reply *Reply) error {
	ws := srv.ws
	switch cmd.Type {
	case "view":
		return nil
	case "mode":
		mode, err := core.ParseDrawMode(cmd.Mode)
		if err != nil {
			return fmt.Errorf("%w: %v", errBadCommand, err)
		}
		ws.SetMode(mode)
	case "cancel":
		ws.Cancel()
	case "move":
		if err := need(cmd.At != nil, "at"); err != nil {
			return err
		}
		ws.Move(*cmd.At)
	case "click":
		if err := need(cmd.At != nil, "at"); err != nil {
			return err
		}
		layer, err := ws.Click(ctx, *cmd.At)
		if err != nil {
			return err
		}
		reply.Committed = layer
	case "drag_start":
		if err := need(cmd.At != nil && cmd.Layer != "", "layer and at"); err != nil {
			return err
		}
		return ws.DragStart(cmd.Layer, *cmd.At)
	case "drag_move", "drag_end", "band_start", "band_move", "band_end":
		if err := need(cmd.At != nil, "at"); err != nil {
			return err
		}
		return srv.gesture(cmd.Type, *cmd.At)
	case "focus":
		if err := need(cmd.Layer != "", "layer"); err != nil {
			return err
		}
		_, ok, err := ws.Focus(cmd.Layer)
		if err != nil {
			return err
		}
		reply.Focused = &ok
	case "viewport":
		if err := need(cmd.Viewport != nil, "viewport"); err != nil {
			return err
		}
		ws.SetViewport(*cmd.Viewport)
	case "map_style":
		if err := need(cmd.Style != nil, "style"); err != nil {
			return err
		}
		ws.SetMapStyle(*cmd.Style)
	case "hit_test":
		if err := need(cmd.At != nil, "at"); err != nil {
			return err
		}
		if rec, ok := ws.HitTest(*cmd.At); ok {
			reply.Hit = &rec
		}
	case "group_label":
		if err := need(cmd.Group != nil && cmd.Label != nil, "group and label"); err != nil {
			return err
		}
		ws.SetGroupLabel(*cmd.Group, *cmd.Label)
	case "collapse":
		if err := need(cmd.Section != "" && cmd.Collapsed != nil, "section and collapsed"); err != nil {
			return err
		}
		ws.SetCollapsed(cmd.Section, *cmd.Collapsed)
	default:
		return srv.layerCommand(cmd)
	}
	return nil
}

func (srv *Server) gesture(kind string, at model.Coordinate) error {
	ws := srv.ws
	switch kind {
	case "drag_move":
		return ws.DragMove(at)
	case "drag_end":
		return ws.DragEnd(at)
	case "band_start":
		return ws.BandStart(at)
	case "band_move":
		return ws.BandMove(at)
	default:
		_, err := ws.BandEnd(at)
		return err
	}
}

// layerCommand handles the single-field layer store edits.
func (srv *Server) layerCommand(cmd Command) error {
	ws := srv.ws
	if cmd.Layer == "" {
		return fmt.Errorf("%w: unknown command %q or missing layer", errBadCommand, cmd.Type)
	}
	id := cmd.Layer
	switch cmd.Type {
	case "remove":
		return ws.RemoveLayer(id)
	case "reorder":
		if err := need(cmd.Index != nil, "index"); err != nil {
			return err
		}
		return ws.MoveLayer(id, *cmd.Index)
	case "visible":
		if err := need(cmd.Visible != nil, "visible"); err != nil {
			return err
		}
		return ws.SetVisible(id, *cmd.Visible)
	case "color":
		if err := need(cmd.Color != nil, "color"); err != nil {
			return err
		}
		return ws.SetColor(id, *cmd.Color)
	case "rename":
		if err := need(cmd.Label != nil, "label"); err != nil {
			return err
		}
		return ws.RenameLayer(id, *cmd.Label)
	case "group":
		if err := need(cmd.Group != nil, "group"); err != nil {
			return err
		}
		return ws.SetGroup(id, *cmd.Group)
	case "icon":
		if err := need(cmd.Icon != nil, "icon"); err != nil {
			return err
		}
		return ws.SetIcon(id, *cmd.Icon)
	case "icon_kind":
		if err := need(cmd.IconKind != nil, "iconKind"); err != nil {
			return err
		}
		return ws.SetIconKind(id, *cmd.IconKind)
	case "point_mode":
		return ws.SetPointMode(id, cmd.PointMode)
	case "radius":
		if err := need(cmd.Radius != nil, "radius"); err != nil {
			return err
		}
		return ws.SetRadius(id, *cmd.Radius)
	}
	return fmt.Errorf("%w: unknown command %q", errBadCommand, cmd.Type)
}

func need(ok bool, fields string) error {
	if ok {
		return nil
	}
	return fmt.Errorf("%w: missing %s", errBadCommand, fields)
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, errBadCommand):
		return "bad_request"
	case errors.Is(err, kb.ErrLayerNotFound):
		return "not_found"
	case errors.Is(err, workspace.ErrNoGesture):
		return "no_gesture"
	case errors.Is(err, workspace.ErrDrawingActive):
		return "drawing_active"
	case errors.Is(err, core.ErrNotDraggable), errors.Is(err, core.ErrNothingToDrag):
		return "not_draggable"
	case errors.Is(err, kb.ErrInvalidStyle), errors.Is(err, kb.ErrInvalidKind),
		errors.Is(err, kb.ErrEmptyGeometry), errors.Is(err, kb.ErrShapeMismatch),
		errors.Is(err, kb.ErrOpenRing):
		return "invalid"
	}
	return "internal"
}
