package remote

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/dyluth/mosaic/internal/clock"
	"github.com/gorilla/websocket"
	"github.com/sugawarayuuta/sonnet"
)

const configSubscriptionID = "1"

const configurationQuery = `subscription configuration($input: SubscribeInput!) {
  subscribe(input: $input) {
    id
    ... on BasicMessage {
      data {
        __typename
        ... on ConfigurationMessageData {
          colorPalette { colors { hex index __typename } __typename }
          canvasConfigurations { index dx dy __typename }
          canvasWidth
          canvasHeight
          __typename
        }
      }
      __typename
    }
    __typename
  }
}`

const canvasQuery = `subscription replace($input: SubscribeInput!) {
  subscribe(input: $input) {
    id
    ... on BasicMessage {
      data {
        __typename
        ... on FullFrameMessageData { __typename name timestamp }
        ... on DiffFrameMessageData { __typename name currentTimestamp previousTimestamp }
      }
      __typename
    }
    __typename
  }
}`

// CanvasConfig places one tile on the stitched board.
type CanvasConfig struct {
	Index int `json:"index"`
	DX    int `json:"dx"`
	DY    int `json:"dy"`
}

// BoardConfig is the layout announced on the configuration channel.
type BoardConfig struct {
	Canvases     []CanvasConfig `json:"canvasConfigurations"`
	CanvasWidth  int            `json:"canvasWidth"`
	CanvasHeight int            `json:"canvasHeight"`
}

// Bounds returns the stitched board rectangle.
func (c BoardConfig) Bounds() image.Rectangle {
	var w, h int
	for _, cc := range c.Canvases {
		w = max(w, cc.DX)
		h = max(h, cc.DY)
	}
	return image.Rect(0, 0, w+c.CanvasWidth, h+c.CanvasHeight)
}

type inboundMessage struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Payload struct {
		Data struct {
			Subscribe struct {
				Data struct {
					Typename string `json:"__typename"`
					Name     string `json:"name"`
					BoardConfig
				} `json:"data"`
			} `json:"subscribe"`
		} `json:"data"`
	} `json:"payload"`
}

type outboundMessage struct {
	ID      string      `json:"id,omitempty"`
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

type subscribePayload struct {
	Variables     map[string]interface{} `json:"variables"`
	Extensions    map[string]interface{} `json:"extensions"`
	OperationName string                 `json:"operationName"`
	Query         string                 `json:"query"`
}

// BoardFetcher downloads the full board: it subscribes to the configuration
// channel, then one channel per canvas tile, fetches each full-frame image and
// stitches them at their offsets.
type BoardFetcher struct {
	http       *http.Client
	dialer     *websocket.Dialer
	endpoints  Endpoints
	clock      clock.Clock
	retryDelay time.Duration
}

// NewBoardFetcher creates a BoardFetcher. A nil clk uses the wall clock.
func NewBoardFetcher(pool *ProxyPool, endpoints Endpoints, clk clock.Clock, retryDelay time.Duration) *BoardFetcher {
	if clk == nil {
		clk = clock.Real{}
	}
	if retryDelay <= 0 {
		retryDelay = DefaultRetryDelay
	}
	return &BoardFetcher{
		http: pool.Client(30 * time.Second),
		dialer: &websocket.Dialer{
			Proxy:            pool.Proxy,
			HandshakeTimeout: 30 * time.Second,
		},
		endpoints:  endpoints.WithDefaults(),
		clock:      clk,
		retryDelay: retryDelay,
	}
}

// FetchBoard returns the stitched board. Dial failures are retried until ctx is
// done; any other failure, a missing tile included, fails the whole fetch.
func (b *BoardFetcher) FetchBoard(ctx context.Context, token string) (image.Image, error) {
	log.Printf("[DEBUG] Connecting and obtaining board images")

	var conn *websocket.Conn
	err := Retry(ctx, b.clock, b.retryDelay, "connect to websocket", func(ctx context.Context) error {
		header := http.Header{"Origin": {b.endpoints.Origin}}
		c, _, err := b.dialer.DialContext(ctx, b.endpoints.Realtime, header)
		if err != nil {
			return err
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	s := &session{conn: conn}
	board, err := b.fetch(ctx, s, token)
	if err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return board, err
}

func (b *BoardFetcher) fetch(ctx context.Context, s *session, token string) (image.Image, error) {
	err := s.send(outboundMessage{
		Type:    "connection_init",
		Payload: map[string]string{"Authorization": "Bearer " + token},
	})
	if err != nil {
		return nil, err
	}

	if _, err := s.await(func(m *inboundMessage) bool { return m.Type == "connection_ack" }); err != nil {
		return nil, fmt.Errorf("connection_init not acknowledged: %w", err)
	}
	log.Printf("[DEBUG] Connected to WebSocket server")

	if err := s.send(b.subscribe(configSubscriptionID, "configuration", configurationQuery, "CONFIG", "")); err != nil {
		return nil, err
	}
	msg, err := s.await(func(m *inboundMessage) bool { return m.Type == "data" && m.ID == configSubscriptionID })
	if err != nil {
		return nil, fmt.Errorf("failed to read canvas configuration: %w", err)
	}
	cfg := msg.Payload.Data.Subscribe.Data.BoardConfig
	if len(cfg.Canvases) == 0 || cfg.CanvasWidth <= 0 || cfg.CanvasHeight <= 0 {
		return nil, fmt.Errorf("invalid canvas configuration: %+v", cfg)
	}
	log.Printf("[DEBUG] Canvas config: %d canvases of %dx%d", len(cfg.Canvases), cfg.CanvasWidth, cfg.CanvasHeight)

	pending := make(map[string]CanvasConfig, len(cfg.Canvases))
	ids := []string{configSubscriptionID}
	for i, cc := range cfg.Canvases {
		id := strconv.Itoa(2 + i)
		pending[id] = cc
		ids = append(ids, id)
		if err := s.send(b.subscribe(id, "replace", canvasQuery, "CANVAS", strconv.Itoa(cc.Index))); err != nil {
			return nil, err
		}
	}

	board := image.NewRGBA(cfg.Bounds())
	draw.Draw(board, board.Bounds(), &image.Uniform{C: color.RGBA{A: 0xff}}, image.Point{}, draw.Src)

	for len(pending) > 0 {
		msg, err := s.await(func(m *inboundMessage) bool {
			_, ok := pending[m.ID]
			return ok && m.Type == "data" && m.Payload.Data.Subscribe.Data.Typename == "FullFrameMessageData"
		})
		if err != nil {
			return nil, fmt.Errorf("failed waiting for canvas frames: %w", err)
		}

		cc := pending[msg.ID]
		delete(pending, msg.ID)

		tile, err := b.download(ctx, msg.Payload.Data.Subscribe.Data.Name)
		if err != nil {
			return nil, fmt.Errorf("canvas %d: %w", cc.Index, err)
		}

		at := image.Pt(cc.DX, cc.DY)
		draw.Draw(board, tile.Bounds().Sub(tile.Bounds().Min).Add(at), tile, tile.Bounds().Min, draw.Src)
		log.Printf("[DEBUG] Canvas %d placed at %v, %d remaining", cc.Index, at, len(pending))
	}

	for _, id := range ids {
		if err := s.send(outboundMessage{ID: id, Type: "stop"}); err != nil {
			log.Printf("[WARN] Failed to stop subscription %s: %v", id, err)
		}
	}
	_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))

	return board, nil
}

func (b *BoardFetcher) subscribe(id, operation, query, category, tag string) outboundMessage {
	channel := map[string]interface{}{
		"teamOwner": b.endpoints.TeamOwner,
		"category":  category,
	}
	if tag != "" {
		channel["tag"] = tag
	}
	return outboundMessage{
		ID:   id,
		Type: "start",
		Payload: subscribePayload{
			Variables:     map[string]interface{}{"input": map[string]interface{}{"channel": channel}},
			Extensions:    map[string]interface{}{},
			OperationName: operation,
			Query:         query,
		},
	}
}

// download fetches one tile. A 404 is reported as ErrTileMissing.
func (b *BoardFetcher) download(ctx context.Context, target string) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid canvas image url %q: %w", target, err)
	}

	resp, err := b.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download canvas image: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrTileMissing, target)
	default:
		return nil, fmt.Errorf("canvas image %s returned status %d", target, resp.StatusCode)
	}

	img, err := png.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode canvas image: %w", err)
	}
	return img, nil
}

type session struct {
	conn *websocket.Conn
}

func (s *session) send(m outboundMessage) error {
	data, err := sonnet.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode %s message: %w", m.Type, err)
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to send %s message: %w", m.Type, err)
	}
	return nil
}

// await reads messages until match accepts one. Server errors abort the wait.
func (s *session) await(match func(*inboundMessage) bool) (*inboundMessage, error) {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return nil, err
		}

		var m inboundMessage
		if err := sonnet.Unmarshal(data, &m); err != nil {
			log.Printf("[WARN] Ignoring undecodable websocket message: %v", err)
			continue
		}

		switch m.Type {
		case "connection_error", "error":
			return nil, fmt.Errorf("server sent %s: %s", m.Type, string(data))
		}
		if match(&m) {
			return &m, nil
		}
	}
}
