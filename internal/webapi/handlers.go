package webapi

import (
	"encoding/json"
	"net/http"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/weftlabs/weft/internal/engine"
	"github.com/weftlabs/weft/internal/linker"
	"github.com/weftlabs/weft/internal/state"
)

// routes wires the JSON API.
func (s *Server) routes(r chi.Router) {
	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/scripts", s.handleScripts)
		r.Get("/scripts/{name}", s.handleScript)
		r.Get("/scripts/{name}/source", s.handleScriptSource)
		r.Get("/graph", s.handleGraph)
		r.Get("/registry", s.handleRegistry)
		r.Get("/runs", s.handleRuns)
		r.Post("/build", s.handleBuild)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// scriptSummary is the list view of one script row.
type scriptSummary struct {
	Name        string    `json:"name"`
	FilePath    string    `json:"file_path"`
	Description string    `json:"description,omitempty"`
	Owner       string    `json:"owner,omitempty"`
	LinkedHash  string    `json:"linked_hash,omitempty"`
	Cyclic      bool      `json:"cyclic"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// scriptDetail adds the call rows and the registry view of one script.
type scriptDetail struct {
	scriptSummary
	RawHash      string     `json:"raw_hash"`
	Calls        []callView `json:"calls"`
	Callers      []string   `json:"callers"`
	RegistryHash string     `json:"registry_hash,omitempty"`
}

type callView struct {
	Target string `json:"target"`
	Mode   string `json:"mode"`
}

func summarize(rec *state.ScriptRecord) scriptSummary {
	return scriptSummary{
		Name:        rec.Name,
		FilePath:    rec.FilePath,
		Description: rec.Description,
		Owner:       rec.Owner,
		LinkedHash:  rec.LinkedHash,
		Cyclic:      rec.Cyclic,
		UpdatedAt:   rec.UpdatedAt,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":      "ok",
		"environment": s.engine.Environment(),
	})
}

func (s *Server) handleScripts(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	recs, err := s.engine.StateStore().ListScripts()
	s.mu.Unlock()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]scriptSummary, len(recs))
	for i, rec := range recs {
		out[i] = summarize(rec)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleScript(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.engine.StateStore().GetScript(name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "unknown script: "+name)
		return
	}

	calls, err := s.engine.StateStore().GetCalls(name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	detail := scriptDetail{
		scriptSummary: summarize(rec),
		RawHash:       rec.RawHash,
		Calls:         make([]callView, len(calls)),
		Callers:       s.callersOf(name),
	}
	for i, c := range calls {
		detail.Calls[i] = callView{Target: c.Target, Mode: c.Mode.String()}
	}
	if hash, err := s.engine.Registry().Lookup(r.Context(), name); err == nil {
		detail.RegistryHash = hash
	}

	writeJSON(w, http.StatusOK, detail)
}

// callersOf scans the persisted call rows for scripts that call name.
// The caller holds s.mu.
func (s *Server) callersOf(name string) []string {
	callers := []string{}
	recs, err := s.engine.StateStore().ListScripts()
	if err != nil {
		return callers
	}
	for _, rec := range recs {
		calls, err := s.engine.StateStore().GetCalls(rec.Name)
		if err != nil {
			continue
		}
		for _, c := range calls {
			if c.Target == name {
				callers = append(callers, rec.Name)
				break
			}
		}
	}
	return callers
}

func (s *Server) handleScriptSource(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	raw, _ := strconv.ParseBool(r.URL.Query().Get("raw"))

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.engine.StateStore().GetScript(name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "unknown script: "+name)
		return
	}

	var src string
	if raw {
		content, err := os.ReadFile(rec.FilePath)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		src = string(content)
	} else {
		stored, ok := s.engine.Host().Source(rec.LinkedHash)
		if rec.LinkedHash == "" || !ok {
			writeError(w, http.StatusNotFound, "script not linked: "+name)
			return
		}
		src = stored
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(src))
}

// graphView is the condensed call graph built from the persisted call rows,
// so it reflects the last successful link even after a rejected batch.
type graphView struct {
	Nodes      []graphNode `json:"nodes"`
	Edges      []graphEdge `json:"edges"`
	Components int         `json:"components"`
	Levels     int         `json:"levels"`
}

type graphNode struct {
	Name      string `json:"name"`
	Component int    `json:"component"`
	Level     int    `json:"level"`
	Cyclic    bool   `json:"cyclic"`
}

type graphEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
	Mode string `json:"mode"`
}

func (s *Server) handleGraph(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.engine.StateStore().ListScripts()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	g := linker.NewGraph()
	for _, rec := range recs {
		g.AddNode(rec.Name)
	}

	view := graphView{Nodes: []graphNode{}, Edges: []graphEdge{}}
	for _, rec := range recs {
		calls, err := s.engine.StateStore().GetCalls(rec.Name)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		for _, c := range calls {
			// A target row may be gone after a file deletion; the edge
			// goes with it.
			if !g.HasNode(c.Target) {
				continue
			}
			if err := g.AddEdge(rec.Name, c.Target); err != nil {
				continue
			}
			view.Edges = append(view.Edges, graphEdge{
				From: rec.Name, To: c.Target, Mode: c.Mode.String(),
			})
		}
	}

	cond := g.Condense()
	levelOf := make(map[int]int, len(cond.Components))
	for lvl, comps := range cond.Levels {
		for _, id := range comps {
			levelOf[id] = lvl
		}
	}
	for _, name := range g.Nodes() {
		comp := cond.ByNode[name]
		view.Nodes = append(view.Nodes, graphNode{
			Name:      name,
			Component: comp,
			Level:     levelOf[comp],
			Cyclic:    cond.Components[comp].Cyclic,
		})
	}
	sort.Slice(view.Edges, func(i, j int) bool {
		if view.Edges[i].From != view.Edges[j].From {
			return view.Edges[i].From < view.Edges[j].From
		}
		return view.Edges[i].To < view.Edges[j].To
	})
	view.Components = len(cond.Components)
	view.Levels = len(cond.Levels)

	writeJSON(w, http.StatusOK, view)
}

// registryView is the full shared mapping under the configured key.
type registryView struct {
	Key     string            `json:"key"`
	Count   int               `json:"count"`
	Entries map[string]string `json:"entries"`
}

func (s *Server) handleRegistry(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	snap, err := s.engine.Registry().Snapshot(r.Context())
	s.mu.Unlock()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, registryView{
		Key:     s.engine.Registry().Key(),
		Count:   len(snap),
		Entries: snap,
	})
}

type runView struct {
	ID            string     `json:"id"`
	Environment   string     `json:"environment"`
	Status        string     `json:"status"`
	Error         string     `json:"error,omitempty"`
	ScriptsTotal  int        `json:"scripts_total"`
	StaticCalls   int        `json:"static_calls"`
	DynamicCalls  int        `json:"dynamic_calls"`
	CyclicScripts int        `json:"cyclic_scripts"`
	StartedAt     time.Time  `json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	s.mu.Lock()
	runs, err := s.engine.StateStore().ListLinkRuns(limit)
	s.mu.Unlock()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]runView, len(runs))
	for i, run := range runs {
		out[i] = runView{
			ID:            run.ID,
			Environment:   run.Environment,
			Status:        string(run.Status),
			Error:         run.Error,
			ScriptsTotal:  run.ScriptsTotal,
			StaticCalls:   run.StaticCalls,
			DynamicCalls:  run.DynamicCalls,
			CyclicScripts: run.CyclicScripts,
			StartedAt:     run.StartedAt,
			CompletedAt:   run.CompletedAt,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// buildView summarizes one API-triggered pipeline pass.
type buildView struct {
	ScriptsTotal  int `json:"scripts_total"`
	StaticCalls   int `json:"static_calls"`
	DynamicCalls  int `json:"dynamic_calls"`
	CyclicScripts int `json:"cyclic_scripts"`
}

func (s *Server) handleBuild(w http.ResponseWriter, r *http.Request) {
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))

	s.mu.Lock()
	res, err := s.engine.Build(r.Context(), engine.DiscoveryOptions{ForceFullRefresh: force})
	s.mu.Unlock()
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, buildView{
		ScriptsTotal:  res.Stats.Scripts,
		StaticCalls:   res.Stats.StaticCalls,
		DynamicCalls:  res.Stats.DynamicCalls,
		CyclicScripts: res.Stats.CyclicScripts,
	})
}
