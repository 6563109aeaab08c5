package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dyluth/mosaic/internal/worker"
	"github.com/sugawarayuuta/sonnet"
)

const setPixelQuery = `mutation setPixel($input: ActInput!) {
  act(input: $input) {
    data {
      ... on BasicMessage {
        id
        data {
          ... on GetUserCooldownResponseMessageData { nextAvailablePixelTimestamp __typename }
          ... on SetPixelResponseMessageData { timestamp __typename }
          __typename
        }
        __typename
      }
      __typename
    }
    __typename
  }
}`

type setPixelRequest struct {
	OperationName string `json:"operationName"`
	Variables     struct {
		Input struct {
			ActionName       string `json:"actionName"`
			PixelMessageData struct {
				Coordinate struct {
					X int `json:"x"`
					Y int `json:"y"`
				} `json:"coordinate"`
				ColorIndex  int `json:"colorIndex"`
				CanvasIndex int `json:"canvasIndex"`
			} `json:"PixelMessageData"`
		} `json:"input"`
	} `json:"variables"`
	Query string `json:"query"`
}

type setPixelResponse struct {
	Data *struct {
		Act struct {
			Data []struct {
				Data struct {
					NextAvailablePixelTimestamp float64 `json:"nextAvailablePixelTimestamp"`
				} `json:"data"`
			} `json:"data"`
		} `json:"act"`
	} `json:"data"`
	Errors []struct {
		Message    string `json:"message"`
		Extensions *struct {
			NextAvailablePixelTs float64 `json:"nextAvailablePixelTs"`
		} `json:"extensions"`
	} `json:"errors"`
}

// Placer submits setPixel mutations.
type Placer struct {
	http      *http.Client
	endpoints Endpoints
}

// NewPlacer creates a Placer sending through pool.
func NewPlacer(pool *ProxyPool, endpoints Endpoints) *Placer {
	return &Placer{
		http:      pool.Client(30 * time.Second),
		endpoints: endpoints.WithDefaults(),
	}
}

// Place sends one placement. Transport and decoding failures are returned as
// errors; server rejections come back in the Response.
func (p *Placer) Place(ctx context.Context, req worker.PlaceRequest) (*worker.Response, error) {
	var body setPixelRequest
	body.OperationName = "setPixel"
	body.Query = setPixelQuery
	body.Variables.Input.ActionName = "r/replace:set_pixel"
	px := &body.Variables.Input.PixelMessageData
	px.Coordinate.X = req.Within.X
	px.Coordinate.Y = req.Within.Y
	px.ColorIndex = req.ColorID
	px.CanvasIndex = req.Region

	payload, err := sonnet.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode setPixel: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoints.GraphQL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build setPixel request: %w", err)
	}
	httpReq.Header.Set("Origin", p.endpoints.Origin)
	httpReq.Header.Set("Referer", p.endpoints.Origin+"/")
	httpReq.Header.Set("Apollographql-Client-Name", "garlic-bread")
	httpReq.Header.Set("Authorization", "Bearer "+req.Token)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("setPixel request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read setPixel response: %w", err)
	}

	return decodeSetPixel(raw)
}

func decodeSetPixel(raw []byte) (*worker.Response, error) {
	var decoded setPixelResponse
	if err := sonnet.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode setPixel response %q: %w", truncate(raw, 200), err)
	}

	out := &worker.Response{Raw: string(raw)}

	if ts := nextAvailable(&decoded); ts > 0 {
		out.Success = &worker.Success{NextAvailable: fromMillis(ts)}
		return out, nil
	}

	switch {
	case len(decoded.Errors) > 0:
		e := decoded.Errors[0]
		out.Error = &worker.ResponseError{Message: e.Message}
		if e.Extensions != nil && e.Extensions.NextAvailablePixelTs > 0 {
			out.Error.RateLimit = &worker.RateLimit{NextAvailable: fromMillis(e.Extensions.NextAvailablePixelTs)}
		}

	case decoded.Data != nil:
		// Acknowledged without a cooldown; back off rather than re-place at once.
		out.Error = &worker.ResponseError{Message: "setPixel response carried no nextAvailablePixelTimestamp"}
	}

	return out, nil
}

// nextAvailable returns the first non-zero cooldown timestamp in act.data.
func nextAvailable(r *setPixelResponse) float64 {
	if r.Data == nil {
		return 0
	}
	for _, d := range r.Data.Act.Data {
		if ts := d.Data.NextAvailablePixelTimestamp; ts > 0 {
			return ts
		}
	}
	return 0
}

func fromMillis(ms float64) time.Time {
	return time.UnixMilli(int64(ms))
}
