package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/teranos/shelf/errors"
	"github.com/teranos/shelf/logger"
	"github.com/teranos/shelf/unit"
)

// unitView is the body of GET /units/{name}
type unitView struct {
	unit.Status
	Schema map[string]unit.ConfigField `json:"schema,omitempty"`
}

// HandleListUnits handles GET /units
func (s *Server) HandleListUnits(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.Status())
}

// HandleDescribeUnit handles GET /units/{name}
func (s *Server) HandleDescribeUnit(w http.ResponseWriter, r *http.Request) {
	view, err := s.unitView(chi.URLParam(r, "name"))
	if err != nil {
		s.writeErr(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleConfigureUnit handles PUT /units/{name}/config. The body is a JSON
// object of options; a rejected configuration leaves the unit unchanged.
func (s *Server) HandleConfigureUnit(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var opts unit.Options
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&opts); err != nil {
		s.writeErr(w, r, errors.NewInvalidRequestError("config body must be a JSON object: %v", err), nil)
		return
	}
	if err := s.registry.Configure(name, opts); err != nil {
		s.writeErr(w, r, err, nil)
		return
	}
	logger.FromContext(r.Context(), s.logger).Infow("Unit reconfigured",
		logger.FieldUnit, name,
		logger.FieldCount, len(opts))

	view, err := s.unitView(name)
	if err != nil {
		s.writeErr(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) unitView(name string) (*unitView, error) {
	u, ok := s.registry.Get(name)
	if !ok {
		return nil, errors.WithStage(errors.NewNotFoundError("unit %s", name), errors.StageRegistry, name)
	}
	view := &unitView{}
	for _, st := range s.registry.Status() {
		if st.Name == name {
			view.Status = st
		}
	}
	if c, ok := u.(unit.Configurable); ok {
		view.Schema = c.ConfigSchema()
	}
	return view, nil
}
