// Package hdulib is a client for the library's seat-booking web API: login,
// room/seat discovery and the signed reserve call.
package hdulib

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/example/seat-scheduler/internal/config"
	"github.com/example/seat-scheduler/internal/topology"
)

// StatusOK is the response code the API uses for a successful operation.
const StatusOK = "ok"

// roomQueryPause spaces out the per-room layout queries during discovery.
const roomQueryPause = 500 * time.Millisecond

var errNotLoggedIn = errors.New("not logged in")

// Client is one authenticated session against the booking API. Sessions are
// pipeline-local: a uid obtained by Login is never shared across tasks.
type Client struct {
	hc  *http.Client
	cfg config.API
	log *slog.Logger
	now func() time.Time

	uid string
}

func New(cfg config.API, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		hc:  &http.Client{Timeout: 30 * time.Second},
		cfg: cfg,
		log: log.With("component", "hdulib"),
		now: time.Now,
	}
}

// UID returns the identity token from the last successful Login.
func (c *Client) UID() string { return c.uid }

type codeResponse struct {
	Code string          `json:"CODE"`
	Msg  string          `json:"MSG"`
	Data json.RawMessage `json:"DATA"`
}

// Login authenticates and records the returned uid on the client.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	if username == "" || password == "" {
		return "", fmt.Errorf("username and password are required")
	}

	form := url.Values{}
	form.Set("login_name", username)
	form.Set("org_id", c.cfg.OrgID)
	form.Set("password", password)

	body, err := c.do(ctx, http.MethodPost, c.cfg.LoginURL, form.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("login request: %w", err)
	}

	var res codeResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return "", fmt.Errorf("login response: %w", err)
	}
	if res.Code != StatusOK {
		return "", fmt.Errorf("login failed for %s: %s", username, orUnknown(res.Msg))
	}

	var data struct {
		UID flexString `json:"uid"`
	}
	if err := json.Unmarshal(res.Data, &data); err != nil || data.UID == "" {
		return "", fmt.Errorf("login response missing uid")
	}

	c.uid = string(data.UID)
	c.log.Info("login successful", "user", username)
	return c.uid, nil
}

// Reserve submits one reservation attempt. It returns StatusOK on success or
// a human-readable rejection reason mapped through the configured state table;
// the error return is reserved for transport-level failures.
func (c *Client) Reserve(ctx context.Context, beginTime int64, durationHours int, seatID int64) (string, error) {
	if c.uid == "" {
		return "", errNotLoggedIn
	}

	now := c.now()
	apiTime := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 0, 0, 0, now.Location())

	fields := []field{
		{"api_time", strconv.FormatInt(apiTime.Unix(), 10)},
		{"beginTime", strconv.FormatInt(beginTime, 10)},
		{"duration", strconv.Itoa(3600 * durationHours)},
		{"is_recommend", "1"},
		{"seatBookers[0]", c.uid},
		{"seats[0]", strconv.FormatInt(seatID, 10)},
	}

	form := url.Values{}
	for _, f := range fields {
		form.Set(f.key, f.value)
	}

	c.log.Debug("reserving seat", "seat_id", seatID, "begin_time", beginTime, "duration_hours", durationHours)

	body, err := c.do(ctx, http.MethodPost, c.cfg.ReserveSeatURL, form.Encode(), map[string]string{
		"Api-Token": apiToken(fields),
	})
	if err != nil {
		return "", fmt.Errorf("reserve request: %w", err)
	}

	var res codeResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return "", fmt.Errorf("reserve response: %w", err)
	}
	if res.Code == StatusOK {
		return StatusOK, nil
	}
	if reason, ok := c.cfg.States[res.Code]; ok {
		return reason, nil
	}
	return fmt.Sprintf("unknown error: %s", res.Code), nil
}

// --- discovery ---

type categoryResponse struct {
	Content *categoryPayload `json:"content"`
	Data    *categoryPayload `json:"DATA"`
}

type categoryPayload struct {
	Children []struct {
		DefaultItems []roomItem `json:"defaultItems"`
	} `json:"children"`
}

type roomItem struct {
	Name string `json:"name"`
	Link struct {
		URL string `json:"url"`
	} `json:"link"`
}

type spaceCategory struct {
	CategoryID flexString `json:"category_id"`
	ContentID  flexString `json:"content_id"`
}

type roomLayout struct {
	SpaceCategory *spaceCategory `json:"space_category"`
}

type floorEntry struct {
	RoomName string `json:"roomName"`
	SeatMap  struct {
		POIs []struct {
			Title string    `json:"title"`
			ID    flexInt64 `json:"id"`
		} `json:"POIs"`
		Info struct {
			ID flexInt64 `json:"id"`
		} `json:"info"`
	} `json:"seatMap"`
}

// FetchTopology walks the API's two-step discovery protocol: enumerate rooms,
// then query each room's seat layout for the rolling booking window.
func (c *Client) FetchTopology(ctx context.Context) (topology.Topology, error) {
	rooms, err := c.queryRooms(ctx)
	if err != nil {
		return nil, err
	}
	return c.querySeats(ctx, rooms)
}

func (c *Client) queryRooms(ctx context.Context) (map[string]*spaceCategory, error) {
	body, err := c.do(ctx, http.MethodGet, c.cfg.CategoryListURL, "", nil)
	if err != nil {
		return nil, fmt.Errorf("category list: %w", err)
	}

	var res categoryResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("category list response: %w", err)
	}
	payload := res.Content
	if payload == nil {
		payload = res.Data
	}
	if payload == nil || len(payload.Children) < 2 {
		return nil, fmt.Errorf("unexpected category list shape")
	}

	rooms := map[string]*spaceCategory{}
	for _, item := range payload.Children[1].DefaultItems {
		sc, err := c.queryRoomLayout(ctx, item)
		if err != nil {
			c.log.Error("room layout query failed", "room", item.Name, "error", err)
			continue
		}
		if sc != nil {
			rooms[item.Name] = sc
		}
		if err := sleepCtx(ctx, roomQueryPause); err != nil {
			return nil, err
		}
	}
	return rooms, nil
}

func (c *Client) queryRoomLayout(ctx context.Context, item roomItem) (*spaceCategory, error) {
	raw := item.Link.URL
	if unescaped, err := url.QueryUnescape(raw); err == nil {
		raw = unescaped
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("room link: %w", err)
	}
	if u.RawQuery == "" {
		c.log.Warn("room link has no query parameters", "room", item.Name)
		return nil, nil
	}

	target, err := url.Parse(c.cfg.SearchSeatsURL)
	if err != nil {
		return nil, err
	}
	q := target.Query()
	for k, vs := range u.Query() {
		if len(vs) > 0 {
			q.Set(k, vs[0])
		}
	}
	target.RawQuery = q.Encode()

	body, err := c.do(ctx, http.MethodGet, target.String(), "", nil)
	if err != nil {
		return nil, err
	}
	var res struct {
		Data *roomLayout `json:"data"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, err
	}
	if res.Data == nil {
		return nil, nil
	}
	return res.Data.SpaceCategory, nil
}

func (c *Client) querySeats(ctx context.Context, rooms map[string]*spaceCategory) (topology.Topology, error) {
	bt := bookingWindow(c.now())
	topo := topology.Topology{}

	for name, sc := range rooms {
		if sc == nil {
			c.log.Warn("room has no space category", "room", name)
			continue
		}

		form := url.Values{}
		form.Set("beginTime", strconv.FormatInt(bt.Unix(), 10))
		form.Set("duration", "3600")
		form.Set("num", "1")
		form.Set("space_category[category_id]", string(sc.CategoryID))
		form.Set("space_category[content_id]", string(sc.ContentID))

		body, err := c.do(ctx, http.MethodPost, c.cfg.SearchSeatsURL, form.Encode(), nil)
		if err != nil {
			c.log.Error("seat query failed", "room", name, "error", err)
			continue
		}

		room, err := parseFloors(body)
		if err != nil {
			c.log.Error("seat query parse failed", "room", name, "error", err)
			continue
		}
		if len(room) > 0 {
			topo[name] = room
			c.log.Info("room processed", "room", name, "floors", len(room))
		}
	}
	return topo, nil
}

func parseFloors(body []byte) (topology.Room, error) {
	// The floor list sits under allContent.children[2].children.children; the
	// sibling children entries carry unrelated shapes, hence the RawMessage hop.
	var res struct {
		AllContent struct {
			Children []json.RawMessage `json:"children"`
		} `json:"allContent"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, err
	}
	if len(res.AllContent.Children) < 3 {
		return nil, fmt.Errorf("unexpected seat search shape")
	}

	var inner struct {
		Children struct {
			Children []floorEntry `json:"children"`
		} `json:"children"`
	}
	if err := json.Unmarshal(res.AllContent.Children[2], &inner); err != nil {
		return nil, err
	}

	room := topology.Room{}
	for _, fl := range inner.Children.Children {
		name := fl.RoomName
		if name == "" {
			name = "Unknown"
		}
		seats := make(map[string]int64, len(fl.SeatMap.POIs))
		for _, poi := range fl.SeatMap.POIs {
			if poi.Title != "" && poi.ID != 0 {
				seats[poi.Title] = int64(poi.ID)
			}
		}
		room[name] = topology.Floor{Seats: seats, SpaceID: int64(fl.SeatMap.Info.ID)}
	}
	return room, nil
}

// bookingWindow is the time slice used to ask which seats are free: late
// evenings target 11:00 the next day, early mornings 11:00 today, otherwise
// now. This is independent of any task's requested booking time.
func bookingWindow(now time.Time) time.Time {
	switch {
	case now.Hour() >= 22:
		next := now.AddDate(0, 0, 1)
		return time.Date(next.Year(), next.Month(), next.Day(), 11, 0, 0, 0, now.Location())
	case now.Hour() < 8:
		return time.Date(now.Year(), now.Month(), now.Day(), 11, 0, 0, 0, now.Location())
	default:
		return now
	}
}

// do issues one request with the configured default headers. All endpoints
// speak JSON when LAB_JSON=1 is present, so it is appended to every call.
func (c *Client) do(ctx context.Context, method, rawURL, form string, headers map[string]string) ([]byte, error) {
	if rawURL == "" {
		return nil, fmt.Errorf("endpoint not configured")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("LAB_JSON", "1")
	u.RawQuery = q.Encode()

	var body io.Reader
	if form != "" {
		body = strings.NewReader(form)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	for k, v := range c.cfg.Headers {
		req.Header.Set(k, v)
	}
	if form != "" {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	res, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	b, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	if res.StatusCode >= 400 {
		return nil, fmt.Errorf("http %d from %s", res.StatusCode, u.Path)
	}
	return b, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func orUnknown(msg string) string {
	if msg == "" {
		return "unknown error"
	}
	return msg
}

// flexString absorbs JSON fields that arrive as either strings or numbers.
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*s = flexString(n.String())
	return nil
}

// flexInt64 absorbs numeric ids that arrive either quoted or bare.
type flexInt64 int64

func (i *flexInt64) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*i = 0
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return err
	}
	*i = flexInt64(v)
	return nil
}
