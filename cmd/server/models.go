package main

import (
	"github.com/goccy/go-json"

	"github.com/liamcoop/querybuilder/evaluate"
	"github.com/liamcoop/querybuilder/fields"
	"github.com/liamcoop/querybuilder/internal/logger"
)

// API request and response models

// CreateSessionRequest starts an editor session. Document and SavedQueryID
// are optional and mutually exclusive; with neither the session starts from
// an empty And group.
type CreateSessionRequest struct {
	Catalog      string          `json:"catalog" example:"default"`
	Document     json.RawMessage `json:"document,omitempty"`
	SavedQueryID string          `json:"savedQueryId,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
} // @name CreateSessionRequest

// AddRuleRequest appends a rule to the group at Path. Value follows the
// document form: absent for no operands, an array for several, anything
// else for one.
type AddRuleRequest struct {
	Path     []int           `json:"path"`
	Field    string          `json:"field" example:"Age"`
	Operator string          `json:"operator" example:">"`
	Value    json.RawMessage `json:"value,omitempty"`
} // @name AddRuleRequest

// AddGroupRequest appends an empty group to the group at Path.
type AddGroupRequest struct {
	Path       []int  `json:"path"`
	Connective string `json:"connective" example:"Or"`
} // @name AddGroupRequest

// RemoveChildRequest removes child Index of the group at Path.
type RemoveChildRequest struct {
	Path  []int `json:"path"`
	Index int   `json:"index" example:"0"`
} // @name RemoveChildRequest

// MoveChildRequest moves a child of the group at Path from one index to another.
type MoveChildRequest struct {
	Path []int `json:"path"`
	From int   `json:"from" example:"1"`
	To   int   `json:"to" example:"0"`
} // @name MoveChildRequest

// SetConnectiveRequest changes the connective of the group at Path.
type SetConnectiveRequest struct {
	Path       []int  `json:"path"`
	Connective string `json:"connective" example:"And"`
} // @name SetConnectiveRequest

type EvaluateSessionRequest struct {
	Records []evaluate.MapRecord `json:"records"`
} // @name EvaluateSessionRequest

// EvaluateRequest evaluates a document without a session.
type EvaluateRequest struct {
	Catalog  string               `json:"catalog" example:"default"`
	Document json.RawMessage      `json:"document"`
	Records  []evaluate.MapRecord `json:"records"`
} // @name EvaluateRequest

type EvaluateResponse struct {
	Matches        []evaluate.MapRecord `json:"matches"`
	Matched        int                  `json:"matched" example:"2"`
	Total          int                  `json:"total" example:"10"`
	EvaluationTime string               `json:"evaluationTime" example:"180µs"`
} // @name EvaluateResponse

type SaveRequest struct {
	Name string `json:"name" example:"Adult electronics buyers"`
} // @name SaveRequest

// UpdateQueryRequest replaces a saved query. An empty Catalog keeps the
// stored one.
type UpdateQueryRequest struct {
	Name     string          `json:"name" example:"Adult electronics buyers"`
	Catalog  string          `json:"catalog,omitempty" example:"default"`
	Document json.RawMessage `json:"document"`
} // @name UpdateQueryRequest

type CatalogSummary struct {
	Name   string `json:"name" example:"default"`
	Fields int    `json:"fields" example:"6"`
} // @name CatalogSummary

type CatalogResponse struct {
	Name   string          `json:"name" example:"default"`
	Fields []*fields.Field `json:"fields"`
} // @name CatalogResponse

type HealthResponse struct {
	Status   string       `json:"status" example:"healthy"`
	Sessions int          `json:"sessions" example:"3"`
	Catalogs int          `json:"catalogs" example:"1"`
	Database string       `json:"database" example:"postgres"`
	Counters logger.Stats `json:"counters"`
} // @name HealthResponse

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error      string `json:"error" example:"invalid operator"`
	Details    string `json:"details,omitempty"`
	Violations any    `json:"violations,omitempty"`
} // @name ErrorResponse
