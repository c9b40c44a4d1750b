package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"gotibia/game"
	"gotibia/world"
)

var (
	errNoClient   = errors.New("no such client")
	errReadOnly   = errors.New("client is a replay")
	errBadRequest = errors.New("bad request")
)

var dumpConfig = func() *spew.ConfigState {
	c := spew.NewDefaultConfig()
	c.DisableCapacities = true
	c.DisablePointerAddresses = true
	c.SortKeys = true
	return c
}()

// clientRegistry is the set of pipelines the debug server can see.
type clientRegistry struct {
	mu      sync.Mutex
	order   []string
	clients map[string]*client
}

func newClientRegistry() *clientRegistry {
	return &clientRegistry{clients: map[string]*client{}}
}

// add registers c, suffixing its name when another client already has it.
func (r *clientRegistry) add(c *client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := c.name
	for i := 2; r.clients[name] != nil; i++ {
		name = fmt.Sprintf("%s-%d", c.name, i)
	}
	c.name = name
	r.clients[name] = c
	r.order = append(r.order, name)
}

// get finds a client by name; the empty name is the first one registered.
func (r *clientRegistry) get(name string) (*client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if name == "" {
		if len(r.order) == 0 {
			return nil, false
		}
		name = r.order[0]
	}
	c, ok := r.clients[name]
	return c, ok
}

func (r *clientRegistry) all() []*client {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*client, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.clients[n])
	}
	return out
}

type clientStatus struct {
	Name     string     `json:"name"`
	Live     bool       `json:"live"`
	LoggedIn bool       `json:"loggedIn"`
	Session  string     `json:"session,omitempty"`
	Game     game.Stats `json:"game"`
	Traffic  statsView  `json:"traffic"`
}

type debugServer struct {
	reg *clientRegistry
}

func (d *debugServer) router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/status", d.status).Methods(http.MethodGet)
	d.clientRoutes(r)
	d.clientRoutes(r.PathPrefix("/clients/{name}").Subrouter())
	return r
}

func (d *debugServer) clientRoutes(r *mux.Router) {
	r.HandleFunc("/snapshot", d.snapshot).Methods(http.MethodGet)
	r.HandleFunc("/creatures", d.creatures).Methods(http.MethodGet)
	r.HandleFunc("/creatures/{id}", d.creature).Methods(http.MethodGet)
	r.HandleFunc("/tiles/{x:[0-9]+}/{y:[0-9]+}/{z:[0-9]+}", d.tile).Methods(http.MethodGet)
	r.HandleFunc("/walk/{dir}", d.walk).Methods(http.MethodPost)
	r.HandleFunc("/turn/{dir}", d.turn).Methods(http.MethodPost)
	r.HandleFunc("/stop", d.stop).Methods(http.MethodPost)
	r.HandleFunc("/goto/{x:[0-9]+}/{y:[0-9]+}/{z:[0-9]+}", d.autoWalk).Methods(http.MethodPost)
	r.HandleFunc("/say", d.say).Methods(http.MethodPost)
	r.HandleFunc("/attack/{id:[0-9]+}", d.attack).Methods(http.MethodPost)
}

// serveDebugHTTP runs the debug server on addr until ctx ends.
func serveDebugHTTP(ctx context.Context, addr string, reg *clientRegistry) error {
	d := &debugServer{reg: reg}
	h := handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(d.router())
	srv := &http.Server{
		Addr:              addr,
		Handler:           handlers.LoggingHandler(os.Stdout, h),
		ReadHeaderTimeout: 5 * time.Second,
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	logInfo("debug server on http://%s", ln.Addr())
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, r *http.Request, v interface{}) {
	if r.URL.Query().Get("dump") != "" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		dumpConfig.Fdump(w, v)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		logDebug("debug http: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, errNoClient):
		code = http.StatusNotFound
	case errors.Is(err, errReadOnly), errors.Is(err, errBadRequest):
		code = http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		code = http.StatusGatewayTimeout
	}
	http.Error(w, err.Error(), code)
}

func (d *debugServer) client(r *http.Request) (*client, error) {
	name := mux.Vars(r)["name"]
	c, ok := d.reg.get(name)
	if !ok {
		return nil, fmt.Errorf("%w %q", errNoClient, name)
	}
	return c, nil
}

func (d *debugServer) status(w http.ResponseWriter, r *http.Request) {
	var out []clientStatus
	for _, c := range d.reg.all() {
		st := clientStatus{
			Name:     c.name,
			Live:     c.session != nil,
			LoggedIn: c.game.LoggedIn(),
			Game:     c.game.Stats(),
			Traffic:  c.stats.view(),
		}
		if c.session != nil {
			st.Session = c.session.State().String()
		}
		out = append(out, st)
	}
	writeJSON(w, r, out)
}

func (d *debugServer) snapshot(w http.ResponseWriter, r *http.Request) {
	c, err := d.client(r)
	if err != nil {
		writeError(w, err)
		return
	}
	lines := gs.ChatLines
	if s := r.URL.Query().Get("chat"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n >= 0 {
			lines = n
		}
	}
	writeJSON(w, r, c.game.Snapshot(lines))
}

func (d *debugServer) creatures(w http.ResponseWriter, r *http.Request) {
	c, err := d.client(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, r, c.game.Snapshot(0).Creatures)
}

func (d *debugServer) creature(w http.ResponseWriter, r *http.Request) {
	c, err := d.client(r)
	if err != nil {
		writeError(w, err)
		return
	}
	// a creature is given by id or, failing that, by name
	var (
		cv game.CreatureView
		ok bool
	)
	ref := mux.Vars(r)["id"]
	if id, err := strconv.ParseUint(ref, 10, 32); err == nil {
		cv, ok = c.game.Creature(uint32(id))
	} else {
		cv, ok = c.game.CreatureByName(ref)
	}
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, r, cv)
}

func (d *debugServer) tile(w http.ResponseWriter, r *http.Request) {
	c, err := d.client(r)
	if err != nil {
		writeError(w, err)
		return
	}
	pos, err := positionVars(mux.Vars(r))
	if err != nil {
		writeError(w, err)
		return
	}
	tv, ok := c.game.Tile(pos)
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, r, tv)
}

// act runs fn on the client's dispatch goroutine and answers 204 when it
// succeeds.
func (d *debugServer) act(w http.ResponseWriter, r *http.Request, fn func(g *game.Game) error) {
	c, err := d.client(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if c.session == nil {
		writeError(w, errReadOnly)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := c.do(ctx, func() error { return fn(c.game) }); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (d *debugServer) walk(w http.ResponseWriter, r *http.Request) {
	dir, err := parseDirection(mux.Vars(r)["dir"])
	if err != nil {
		writeError(w, err)
		return
	}
	d.act(w, r, func(g *game.Game) error { return g.Walk(dir) })
}

func (d *debugServer) turn(w http.ResponseWriter, r *http.Request) {
	dir, err := parseDirection(mux.Vars(r)["dir"])
	if err != nil {
		writeError(w, err)
		return
	}
	d.act(w, r, func(g *game.Game) error { return g.Turn(dir) })
}

func (d *debugServer) stop(w http.ResponseWriter, r *http.Request) {
	d.act(w, r, func(g *game.Game) error { return g.Stop() })
}

func (d *debugServer) autoWalk(w http.ResponseWriter, r *http.Request) {
	pos, err := positionVars(mux.Vars(r))
	if err != nil {
		writeError(w, err)
		return
	}
	d.act(w, r, func(g *game.Game) error { return g.AutoWalk(pos) })
}

func (d *debugServer) say(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1024))
	if err != nil {
		writeError(w, err)
		return
	}
	text := strings.TrimSpace(string(body))
	if text == "" {
		writeError(w, fmt.Errorf("%w: empty message", errBadRequest))
		return
	}
	d.act(w, r, func(g *game.Game) error { return g.Say(text) })
}

func (d *debugServer) attack(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 32)
	if err != nil {
		writeError(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	d.act(w, r, func(g *game.Game) error { return g.Attack(uint32(id)) })
}

func positionVars(v map[string]string) (world.Position, error) {
	var p world.Position
	var err error
	if p.X, err = strconv.Atoi(v["x"]); err != nil {
		return p, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if p.Y, err = strconv.Atoi(v["y"]); err != nil {
		return p, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if p.Z, err = strconv.Atoi(v["z"]); err != nil {
		return p, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if !p.Valid() {
		return p, fmt.Errorf("%w: position %v", errBadRequest, p)
	}
	return p, nil
}

var directionAliases = map[string]world.Direction{
	"n": world.North, "e": world.East, "s": world.South, "w": world.West,
	"ne": world.NorthEast, "se": world.SouthEast, "sw": world.SouthWest, "nw": world.NorthWest,
}

// parseDirection accepts a direction name, its compass abbreviation or its
// protocol number.
func parseDirection(s string) (world.Direction, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if d, ok := directionAliases[s]; ok {
		return d, nil
	}
	for d := world.North; d <= world.NorthWest; d++ {
		if strings.ToLower(d.String()) == s {
			return d, nil
		}
	}
	if n, err := strconv.Atoi(s); err == nil && world.Direction(n).Valid() {
		return world.Direction(n), nil
	}
	return world.InvalidDirection, fmt.Errorf("%w: direction %q", errBadRequest, s)
}
