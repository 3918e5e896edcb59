package mapview

import (
	"errors"

	"github.com/example/ride-ops/internal/models"
)

var (
	ErrNotMounted     = errors.New("mapview: canvas not mounted")
	ErrAlreadyMounted = errors.New("mapview: canvas already mounted")
	ErrDisposed       = errors.New("mapview: canvas disposed")
)

// Surface is the drawing target behind a canvas: a browser map driven over
// a websocket in production, a recorder in tests.
type Surface interface {
	SetBaseLayer(tileURL, attribution string) error
	SetView(center models.Coord, zoom int) error
	Draw(l Layer) error
	Remove(key string) error
	FitBounds(b Bounds, padding int) error
	// Flush commits the commands issued since the previous flush.
	Flush() error
	Close() error
}

type CanvasOptions struct {
	TileURL     string
	Attribution string
	Center      models.Coord
	Zoom        int
}

type canvasState int

const (
	canvasUninitialized canvasState = iota
	canvasReady
	canvasDisposed
)

// Canvas owns the layers drawn on one surface. It is created per mounted
// view and is never reused after Dispose.
type Canvas struct {
	opts    CanvasOptions
	state   canvasState
	surface Surface
	drawn   []string
}

func NewCanvas(opts CanvasOptions) *Canvas {
	return &Canvas{opts: opts}
}

// Mount binds the surface and its single base tile layer.
func (c *Canvas) Mount(s Surface) error {
	switch c.state {
	case canvasReady:
		return ErrAlreadyMounted
	case canvasDisposed:
		return ErrDisposed
	}
	if err := s.SetBaseLayer(c.opts.TileURL, c.opts.Attribution); err != nil {
		return err
	}
	if err := s.SetView(c.opts.Center, c.opts.Zoom); err != nil {
		return err
	}
	if err := s.Flush(); err != nil {
		return err
	}
	c.surface = s
	c.state = canvasReady
	return nil
}

func (c *Canvas) ready() error {
	switch c.state {
	case canvasUninitialized:
		return ErrNotMounted
	case canvasDisposed:
		return ErrDisposed
	}
	return nil
}

// Apply replaces everything drawn by the previous pass with the scene.
// When fit is valid the viewport is fitted in the same batch.
func (c *Canvas) Apply(scene Scene, fit Bounds) error {
	if err := c.ready(); err != nil {
		return err
	}
	if err := c.clear(); err != nil {
		return err
	}
	for _, l := range scene.Layers {
		if err := c.surface.Draw(l); err != nil {
			return err
		}
		c.drawn = append(c.drawn, l.Key)
	}
	if fit.Valid() {
		if err := c.surface.FitBounds(fit, FitPadding); err != nil {
			return err
		}
	}
	return c.surface.Flush()
}

// Drawn returns the keys currently on the surface.
func (c *Canvas) Drawn() []string {
	return append([]string(nil), c.drawn...)
}

func (c *Canvas) clear() error {
	for _, k := range c.drawn {
		if err := c.surface.Remove(k); err != nil {
			return err
		}
	}
	c.drawn = c.drawn[:0]
	return nil
}

// Dispose releases the surface and every layer drawn on it. It is terminal
// and safe to call more than once.
func (c *Canvas) Dispose() error {
	if c.state != canvasReady {
		c.state = canvasDisposed
		return nil
	}
	c.state = canvasDisposed
	c.drawn = nil
	return c.surface.Close()
}
