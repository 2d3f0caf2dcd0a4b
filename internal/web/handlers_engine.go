package web

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/internal/transform"
	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/internal/validation"
)

// OperationInfo describes one registered operation.
type OperationInfo struct {
	Name        string   `json:"name"`
	Category    string   `json:"category"`
	Signature   string   `json:"signature"`
	Description string   `json:"description,omitempty"`
	Params      []string `json:"params,omitempty"`
}

// handleListOperations lists operations, optionally filtered by ?category=.
func (s *Server) handleListOperations(w http.ResponseWriter, r *http.Request) {
	reg := s.service.Engine().Registry()

	var ops []transform.Operation
	if cat := r.URL.Query().Get("category"); cat != "" {
		ops = reg.ByCategory(transform.Category(cat))
	} else {
		ops = reg.Operations()
	}

	out := make([]OperationInfo, len(ops))
	for i, op := range ops {
		params := make([]string, len(op.Params))
		for j, p := range op.Params {
			params[j] = p.Name
		}
		out[i] = OperationInfo{
			Name:        op.Name,
			Category:    string(op.Category),
			Signature:   transform.Describe(op),
			Description: op.Description,
			Params:      params,
		}
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"operations": out,
		"count":      len(out),
		"categories": reg.Categories(),
	})
}

// RuleTypeInfo describes one validation rule type.
type RuleTypeInfo struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// handleListRuleTypes lists the registered validation rule types.
func (s *Server) handleListRuleTypes(w http.ResponseWriter, r *http.Request) {
	types := validation.RuleTypes()
	out := make([]RuleTypeInfo, len(types))
	for i, rt := range types {
		out[i] = RuleTypeInfo{Name: rt.Name, Description: rt.Description}
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"rule_types": out, "count": len(out)})
}

// TransformRequest is the body of POST /api/transform. Exactly one form is used:
//   - value with rule or pipeline
//   - values with rules (bulk apply)
//   - rows with field_rules (pipe rules across rows)
type TransformRequest struct {
	Value    any                `json:"value"`
	Rule     string             `json:"rule,omitempty"`
	Pipeline transform.Pipeline `json:"pipeline,omitempty"`

	Values []any    `json:"values,omitempty"`
	Rules  []string `json:"rules,omitempty"`

	Rows       []map[string]any  `json:"rows,omitempty"`
	FieldRules map[string]string `json:"field_rules,omitempty"`
}

// FieldError reports one field a bulk transform could not process.
type FieldError struct {
	Row   int    `json:"row"`
	Field string `json:"field"`
	Error string `json:"error"`
}

// handleTransform runs the transform engine on the request body.
func (s *Server) handleTransform(w http.ResponseWriter, r *http.Request) {
	var req TransformRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	engine := s.service.Engine()

	switch {
	case req.Rows != nil:
		if len(req.FieldRules) == 0 {
			s.respondError(w, r, fmt.Errorf("%w: rows need field_rules", errBadRequest), 0)
			return
		}
		rows, err := engine.BulkApplyPipeRules(req.Rows, req.FieldRules)
		var bulk *transform.BulkError
		if err != nil && !errors.As(err, &bulk) {
			s.respondError(w, r, err, 0)
			return
		}
		resp := map[string]any{"rows": rows}
		if bulk != nil {
			failures := make([]FieldError, len(bulk.Failures))
			for i, f := range bulk.Failures {
				failures[i] = FieldError{Row: f.Row, Field: f.Field, Error: f.Err.Error()}
			}
			resp["errors"] = failures
		}
		writeJSON(w, r, http.StatusOK, resp)

	case req.Values != nil:
		out, err := engine.BulkApply(req.Values, req.Rules)
		if err != nil {
			s.respondError(w, r, err, 0)
			return
		}
		writeJSON(w, r, http.StatusOK, map[string]any{"values": out})

	case req.Pipeline != nil:
		out, err := engine.Apply(req.Value, req.Pipeline)
		if err != nil {
			s.respondError(w, r, err, 0)
			return
		}
		writeJSON(w, r, http.StatusOK, map[string]any{"value": out, "rule": req.Pipeline.String()})

	default:
		out, err := engine.Transform(req.Value, req.Rule)
		if err != nil {
			s.respondError(w, r, err, 0)
			return
		}
		writeJSON(w, r, http.StatusOK, map[string]any{"value": out, "rule": req.Rule})
	}
}

// ValidateRequest is the body of POST /api/validate. Exactly one form is used:
//   - value with rules
//   - row with field_rules
//   - rows with field_rules
type ValidateRequest struct {
	Value any               `json:"value"`
	Rules []validation.Rule `json:"rules,omitempty"`

	Row        map[string]any               `json:"row,omitempty"`
	Rows       []map[string]any             `json:"rows,omitempty"`
	FieldRules map[string][]validation.Rule `json:"field_rules,omitempty"`
}

// handleValidate runs the validation engine on the request body.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	switch {
	case req.Rows != nil:
		v, err := validation.NewValidator(req.FieldRules)
		if err != nil {
			s.respondError(w, r, err, 0)
			return
		}
		report, summary := v.ValidateBatch(req.Rows)
		writeJSON(w, r, http.StatusOK, map[string]any{"report": report, "summary": summary})

	case req.Row != nil:
		report, err := validation.ValidateRow(req.Row, req.FieldRules)
		if err != nil {
			s.respondError(w, r, err, 0)
			return
		}
		writeJSON(w, r, http.StatusOK, map[string]any{"valid": report.Valid(), "report": report})

	default:
		errs, err := validation.Validate(req.Value, req.Rules)
		if err != nil {
			s.respondError(w, r, err, 0)
			return
		}
		if errs == nil {
			errs = []validation.Error{}
		}
		writeJSON(w, r, http.StatusOK, map[string]any{"valid": len(errs) == 0, "errors": errs})
	}
}
