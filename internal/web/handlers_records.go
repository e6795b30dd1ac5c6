package web

import (
	"net/http"
	"time"

	"github.com/JonMunkholm/agrionboard/internal/core"
	"github.com/go-chi/chi/v5"
)

type recordsResponse struct {
	Records []core.Record `json:"records"`
	Count   int           `json:"count"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleWorkflow(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, s.service.Workflow())
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.service.Statistics(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, stats)
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	spec, err := parseFilter(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	records, err := s.service.ListRecords(r.Context(), spec)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, recordsResponse{Records: records, Count: len(records)})
}

func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	var req core.CreateRecordRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	rec, err := s.service.CreateRecord(r.Context(), req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/records/"+rec.ID)
	writeJSON(w, r, http.StatusCreated, rec)
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := s.service.GetRecord(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, rec)
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	p, err := s.service.ComputeProgress(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, p)
}

// recordMutation decodes a body of type T and applies it to the record named
// in the URL, writing the updated record.
func recordMutation[T any](s *Server, apply func(r *http.Request, id string, body T) (core.Record, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body T
		if err := decodeJSON(r, &body); err != nil {
			s.respondError(w, r, err)
			return
		}
		rec, err := apply(r, chi.URLParam(r, "id"), body)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, rec)
	}
}

type stageRequest struct {
	Stage  core.Stage `json:"stage"`
	Note   string     `json:"note"`
	Reason string     `json:"reason"`
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	recordMutation(s, func(r *http.Request, id string, body stageRequest) (core.Record, error) {
		return s.service.AdvanceStage(r.Context(), id, body.Stage, body.Note)
	})(w, r)
}

func (s *Server) handleOverride(w http.ResponseWriter, r *http.Request) {
	recordMutation(s, func(r *http.Request, id string, body stageRequest) (core.Record, error) {
		return s.service.OverrideStage(r.Context(), id, body.Stage, body.Reason)
	})(w, r)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	recordMutation(s, func(r *http.Request, id string, body struct {
		Status core.Status `json:"status"`
	}) (core.Record, error) {
		return s.service.UpdateStatus(r.Context(), id, body.Status)
	})(w, r)
}

func (s *Server) handleNote(w http.ResponseWriter, r *http.Request) {
	recordMutation(s, func(r *http.Request, id string, body struct {
		Text string `json:"text"`
	}) (core.Record, error) {
		return s.service.AppendNote(r.Context(), id, body.Text)
	})(w, r)
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	recordMutation(s, func(r *http.Request, id string, body struct {
		Kind core.DocumentKind `json:"kind"`
		Ref  string            `json:"ref"`
	}) (core.Record, error) {
		return s.service.AttachDocument(r.Context(), id, body.Kind, body.Ref)
	})(w, r)
}

func (s *Server) handleTraining(w http.ResponseWriter, r *http.Request) {
	recordMutation(s, func(r *http.Request, id string, body core.TrainingUpdate) (core.Record, error) {
		return s.service.RecordTraining(r.Context(), id, body)
	})(w, r)
}

func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	recordMutation(s, func(r *http.Request, id string, body struct {
		Agent    string        `json:"agent"`
		Priority core.Priority `json:"priority"`
	}) (core.Record, error) {
		return s.service.AssignAgent(r.Context(), id, body.Agent, body.Priority)
	})(w, r)
}

func (s *Server) handleFollowUp(w http.ResponseWriter, r *http.Request) {
	recordMutation(s, func(r *http.Request, id string, body struct {
		At *time.Time `json:"at"`
	}) (core.Record, error) {
		return s.service.ScheduleFollowUp(r.Context(), id, body.At)
	})(w, r)
}

type messageRequest struct {
	TemplateID string            `json:"templateId"`
	Variables  map[string]string `json:"variables"`
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	msg, err := s.service.SendToRecord(r.Context(), chi.URLParam(r, "id"), req.TemplateID, req.Variables)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, msg)
}
