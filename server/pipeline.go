package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/teranos/shelf/analyzer"
	"github.com/teranos/shelf/errors"
	"github.com/teranos/shelf/parser"
	"github.com/teranos/shelf/pipeline"
)

// Export formats accepted by ?format=
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
	FormatText = "text"
)

// documentLimit is the pipeline request body cap: the live parser's
// max_document_bytes, else the configured one, else the parser default.
func (s *Server) documentLimit() int64 {
	if s.registry != nil {
		if u, ok := s.registry.Get(parser.Name); ok {
			if p, ok := u.(*parser.Unit); ok {
				return p.Config().MaxDocumentBytes
			}
		}
	}
	if n := s.cfg.Parser.MaxDocumentBytes; n > 0 {
		return int64(n)
	}
	return parser.DefaultMaxDocumentBytes
}

// HandleParse handles POST /pipeline/parse. The body is a bookmark tree as
// JSON (node, node list or Chromium profile) or Netscape HTML.
func (s *Server) HandleParse(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r, s.documentLimit())
	if err != nil {
		s.writeErr(w, r, err, nil)
		return
	}
	res, err := s.orchestrator.Parse(r.Context(), body, r.URL.Query()["flag"]...)
	if err != nil {
		s.writeErr(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleAnalyze handles POST /pipeline/analyze. The body is a JSON array of
// flat records.
func (s *Server) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	format, err := exportFormat(r)
	if err != nil {
		s.writeErr(w, r, err, nil)
		return
	}

	var records []parser.FlatRecord
	limit := s.documentLimit()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	if err := dec.Decode(&records); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeErr(w, r, errors.Wrapf(errors.ErrTooLarge, "request body exceeds %d bytes", limit), nil)
			return
		}
		s.writeErr(w, r, errors.NewInvalidRequestError("body must be a JSON array of records: %v", err), nil)
		return
	}

	suggestions, err := s.orchestrator.Analyze(r.Context(), records, r.URL.Query()["flag"]...)
	if err != nil {
		s.writeErr(w, r, err, nil)
		return
	}
	s.writeSuggestions(w, r, format, records, suggestions, suggestions)
}

// HandleProcess handles POST /pipeline/process?persist=&skip_analysis=
func (s *Server) HandleProcess(w http.ResponseWriter, r *http.Request) {
	format, err := exportFormat(r)
	if err != nil {
		s.writeErr(w, r, err, nil)
		return
	}
	persist, err := queryBool(r, "persist")
	if err != nil {
		s.writeErr(w, r, err, nil)
		return
	}
	skip, err := queryBool(r, "skip_analysis")
	if err != nil {
		s.writeErr(w, r, err, nil)
		return
	}
	body, err := readBody(w, r, s.documentLimit())
	if err != nil {
		s.writeErr(w, r, err, nil)
		return
	}

	res, err := s.orchestrator.Process(r.Context(), body, pipeline.ProcessOptions{
		Persist:      persist,
		SkipAnalysis: skip,
	})
	if err != nil {
		s.writeErr(w, r, err, partialResult(res))
		return
	}
	s.writeSuggestions(w, r, format, res.Records, res.Suggestions, res)
}

// HandleUpload handles POST /bookmark/upload: a multipart "file" holding an
// HTML or JSON export is parsed, analyzed and stored in one run.
func (s *Server) HandleUpload(w http.ResponseWriter, r *http.Request) {
	if s.uploadLimiter != nil && !s.uploadLimiter.Allow() {
		w.Header().Set("Retry-After", strconv.Itoa(s.retryAfterSeconds()))
		s.writeErr(w, r, errRateLimited, nil)
		return
	}

	maxBytes := s.cfg.GetUploadMaxBytes()
	// multipart framing needs some room beyond the file itself
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+1<<20)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeErr(w, r, errors.Wrapf(errors.ErrTooLarge, "upload exceeds %d bytes", maxBytes), nil)
			return
		}
		s.writeErr(w, r, errors.NewInvalidRequestError("multipart field \"file\" is required: %v", err), nil)
		return
	}
	defer file.Close()

	data, err := parser.ReadLimited(file, maxBytes)
	if err != nil {
		s.writeErr(w, r, errors.Wrapf(err, "read %s", header.Filename), nil)
		return
	}

	res, err := s.orchestrator.Process(r.Context(), data, pipeline.ProcessOptions{Persist: s.orchestrator.HasSink()})
	if err != nil {
		s.writeErr(w, r, err, partialResult(res))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"runId":       res.RunID,
		"file":        header.Filename,
		"parsed":      res.ParsedCount,
		"skipped":     res.Skipped,
		"malformed":   len(res.Malformed),
		"suggestions": res.SuggestionCount,
		"persisted":   res.Persisted,
	})
}

func (s *Server) writeSuggestions(w http.ResponseWriter, r *http.Request, format string, records []parser.FlatRecord, suggestions []analyzer.Suggestion, asJSON any) {
	var err error
	switch format {
	case FormatCSV:
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		err = analyzer.WriteCSV(w, records, suggestions)
	case FormatText:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		err = analyzer.WriteText(w, records, suggestions)
	default:
		err = writeJSON(w, http.StatusOK, asJSON)
	}
	if err != nil {
		s.logger.Warnw("Failed to write response", "format", format, "error", err)
	}
}

// partialResult returns res for an error body, or nil so the field is omitted.
func partialResult(res *pipeline.Result) any {
	if res == nil {
		return nil
	}
	return res
}

func exportFormat(r *http.Request) (string, error) {
	switch f := r.URL.Query().Get("format"); f {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatCSV, FormatText:
		return f, nil
	default:
		return "", errors.NewInvalidRequestError("format must be json, csv or text, got %q", f)
	}
}

func (s *Server) retryAfterSeconds() int {
	rpm := s.cfg.Upload.RequestsPerMinute
	if rpm <= 0 {
		return 1
	}
	return max(60/rpm, 1)
}
