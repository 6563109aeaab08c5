// Package remote talks to the canvas service: it logs identities in, streams
// the board tiles over the realtime socket and submits placements through the
// GraphQL endpoint. Every outbound request goes through a ProxyPool.
package remote

import (
	"errors"
	"time"
)

var (
	// ErrAuthFailed means the login form was rejected, usually bad credentials.
	ErrAuthFailed = errors.New("authentication rejected")

	// ErrSessionMalformed means the session page lacked a usable token.
	ErrSessionMalformed = errors.New("session data malformed")

	// ErrTileMissing means a canvas tile image could not be found, so the
	// stitched board would have a hole in it.
	ErrTileMissing = errors.New("canvas tile missing")
)

// DefaultRetryDelay separates attempts of the retry-forever loops.
const DefaultRetryDelay = 30 * time.Second

// Endpoints are the service URLs. Tests point them at httptest servers.
type Endpoints struct {
	Home      string `yaml:"home_url"`
	Login     string `yaml:"login_url"`
	Session   string `yaml:"session_url"`
	GraphQL   string `yaml:"gql_url"`
	Realtime  string `yaml:"ws_url"`
	Origin    string `yaml:"origin"`
	TeamOwner string `yaml:"team_owner"`
}

// DefaultEndpoints are the production URLs.
var DefaultEndpoints = Endpoints{
	Home:      "https://www.reddit.com",
	Login:     "https://www.reddit.com/login",
	Session:   "https://new.reddit.com/",
	GraphQL:   "https://gql-realtime-2.reddit.com/query",
	Realtime:  "wss://gql-realtime-2.reddit.com/query",
	Origin:    "https://garlic-bread.reddit.com",
	TeamOwner: "GARLICBREAD",
}

// WithDefaults fills empty fields from DefaultEndpoints.
func (e Endpoints) WithDefaults() Endpoints {
	d := DefaultEndpoints
	if e.Home == "" {
		e.Home = d.Home
	}
	if e.Login == "" {
		e.Login = d.Login
	}
	if e.Session == "" {
		e.Session = d.Session
	}
	if e.GraphQL == "" {
		e.GraphQL = d.GraphQL
	}
	if e.Realtime == "" {
		e.Realtime = d.Realtime
	}
	if e.Origin == "" {
		e.Origin = d.Origin
	}
	if e.TeamOwner == "" {
		e.TeamOwner = d.TeamOwner
	}
	return e
}

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/114.0.0.0 Safari/537.36"
