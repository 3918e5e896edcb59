package mapview

import "github.com/example/ride-ops/internal/models"

// Sink delivers session messages to the client.
type Sink interface {
	Send(msg Message) error
	Close() error
}

// Message is the envelope of everything a session sends. Type selects
// which of the other fields is set.
type Message struct {
	Type       string          `json:"type"`
	Ops        []Op            `json:"ops,omitempty"`
	URL        string          `json:"url,omitempty"`
	TripID     string          `json:"trip_id,omitempty"`
	Passengers []models.Person `json:"passengers,omitempty"`
	State      *Snapshot       `json:"state,omitempty"`
	Error      string          `json:"error,omitempty"`
}

const (
	MsgDraw       = "draw"
	MsgURLReplace = "url_replace"
	MsgURLPush    = "url_push"
	MsgPassengers = "passengers"
	MsgState      = "state"
	MsgError      = "error"
)

// Op is a single drawing command.
type Op struct {
	Op          string        `json:"op"`
	Key         string        `json:"key,omitempty"`
	Layer       *Layer        `json:"layer,omitempty"`
	Bounds      *Bounds       `json:"bounds,omitempty"`
	Padding     int           `json:"padding,omitempty"`
	Center      *models.Coord `json:"center,omitempty"`
	Zoom        int           `json:"zoom,omitempty"`
	TileURL     string        `json:"tile_url,omitempty"`
	Attribution string        `json:"attribution,omitempty"`
}

// BatchSurface queues drawing commands and sends them as one draw message
// per Flush.
type BatchSurface struct {
	sink Sink
	ops  []Op
}

func NewBatchSurface(sink Sink) *BatchSurface { return &BatchSurface{sink: sink} }

func (b *BatchSurface) SetBaseLayer(tileURL, attribution string) error {
	b.ops = append(b.ops, Op{Op: "base", TileURL: tileURL, Attribution: attribution})
	return nil
}

func (b *BatchSurface) SetView(center models.Coord, zoom int) error {
	b.ops = append(b.ops, Op{Op: "view", Center: &center, Zoom: zoom})
	return nil
}

func (b *BatchSurface) Draw(l Layer) error {
	b.ops = append(b.ops, Op{Op: "add", Key: l.Key, Layer: &l})
	return nil
}

func (b *BatchSurface) Remove(key string) error {
	b.ops = append(b.ops, Op{Op: "remove", Key: key})
	return nil
}

func (b *BatchSurface) FitBounds(bounds Bounds, padding int) error {
	b.ops = append(b.ops, Op{Op: "fit", Bounds: &bounds, Padding: padding})
	return nil
}

func (b *BatchSurface) Flush() error {
	if len(b.ops) == 0 {
		return nil
	}
	ops := b.ops
	b.ops = nil
	return b.sink.Send(Message{Type: MsgDraw, Ops: ops})
}

func (b *BatchSurface) Close() error {
	b.ops = nil
	return b.sink.Close()
}
