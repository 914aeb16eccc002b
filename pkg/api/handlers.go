package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/segmentio/ksuid"
	"go.uber.org/zap"

	"github.com/ssargent/recordvault/pkg/codec"
	"github.com/ssargent/recordvault/pkg/keys"
	"github.com/ssargent/recordvault/pkg/policy"
	"github.com/ssargent/recordvault/pkg/store"
)

// Server holds the API server state
type Server struct {
	records RecordService
	config  ServerConfig
	metrics *Metrics
	logger  *zap.Logger
}

// NewServer creates a new API server
func NewServer(records RecordService, config ServerConfig, metrics *Metrics, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Deriver == nil {
		config.Deriver = keys.NewDeriver(keys.DefaultProgramID)
	}
	return &Server{
		records: records,
		config:  config,
		metrics: metrics,
		logger:  logger,
	}
}

// decodeBody reads a JSON request body, keeping numbers exact
func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func parseKeyParam(r *http.Request) (keys.Address, error) {
	return keys.ParseAddress(chi.URLParam(r, "key"))
}

func (s *Server) observe(operation string, start time.Time, err error) {
	if s.metrics != nil {
		s.metrics.RecordOperation(operation, err, time.Since(start))
	}
}

// handleHealth godoc
//
//	@Summary		Health check
//	@Tags			health
//	@Produce		json
//	@Success		200	{object}	map[string]string
//	@Router			/health [get]
//	@Security		ApiKeyAuth
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.metrics != nil {
		s.metrics.RecordHealthCheck(true)
	}
	sendSuccess(w, map[string]string{"status": "healthy"})
}

// handleStats godoc
//
//	@Summary		Store statistics
//	@Tags			health
//	@Produce		json
//	@Success		200	{object}	StatsResponse
//	@Router			/stats [get]
//	@Security		ApiKeyAuth
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	limits := s.records.Limits()
	sendSuccess(w, StatsResponse{
		Records:         s.records.Count(),
		AllocatedBytes:  s.records.AllocatedBytes(),
		MaxRecordSize:   limits.MaxRecordSize,
		MaxNestedGrowth: limits.MaxNestedGrowth,
	})
}

// handleListSchemas godoc
//
//	@Summary		List record schemas
//	@Tags			schemas
//	@Produce		json
//	@Success		200	{array}	SchemaView
//	@Router			/schemas [get]
//	@Security		ApiKeyAuth
func (s *Server) handleListSchemas(w http.ResponseWriter, r *http.Request) {
	schemas := s.records.Schemas()
	views := make([]SchemaView, 0, len(schemas))
	for _, schema := range schemas {
		views = append(views, NewSchemaView(schema))
	}
	sendSuccess(w, views)
}

// handleDeriveKey godoc
//
//	@Summary		Derive a record address
//	@Tags			keys
//	@Accept			json
//	@Produce		json
//	@Param			body	body		DeriveRequest	true	"Namespace and owner"
//	@Success		200		{object}	DeriveResponse
//	@Failure		400		{object}	APIResponse
//	@Router			/keys/derive [post]
//	@Security		ApiKeyAuth
func (s *Server) handleDeriveKey(w http.ResponseWriter, r *http.Request) {
	var req DeriveRequest
	if err := decodeBody(r, &req); err != nil {
		sendError(w, "Invalid JSON in request body", http.StatusBadRequest)
		return
	}

	owner, err := keys.ParseAddress(req.Owner)
	if err != nil {
		sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	addr, bump, err := s.config.Deriver.Derive(req.Namespace, owner)
	if err != nil {
		sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	sendSuccess(w, DeriveResponse{
		Address:   addr.String(),
		Bump:      bump,
		ProgramID: s.config.Deriver.ProgramID().String(),
	})
}

// handleListRecords godoc
//
//	@Summary		List record addresses
//	@Tags			records
//	@Produce		json
//	@Success		200	{array}	string
//	@Router			/records [get]
//	@Security		ApiKeyAuth
func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	addrs := s.records.Keys()
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = a.String()
	}
	sendSuccess(w, out)
}

// handleInitialize godoc
//
//	@Summary		Initialize a record
//	@Tags			records
//	@Accept			json
//	@Produce		json
//	@Param			key		path		string				true	"Record address"
//	@Param			body	body		InitializeRequest	true	"Initial record"
//	@Success		200		{object}	store.Receipt
//	@Failure		409		{object}	APIResponse
//	@Failure		422		{object}	APIResponse
//	@Router			/records/{key} [post]
//	@Security		ApiKeyAuth
func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	key, err := parseKeyParam(r)
	if err != nil {
		sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req InitializeRequest
	if err := decodeBody(r, &req); err != nil {
		sendError(w, "Invalid JSON in request body", http.StatusBadRequest)
		return
	}

	schema, ok := s.records.Schema(req.Schema)
	if !ok {
		err := fmt.Errorf("%w: %q", store.ErrUnknownSchema, req.Schema)
		s.observe("initialize", start, err)
		sendStoreError(w, err, nil)
		return
	}
	rec, err := BuildRecord(schema, textFields(req.Fields), req.Sequences)
	if err != nil {
		s.observe("initialize", start, err)
		sendStoreError(w, err, nil)
		return
	}

	receipt, err := s.records.Initialize(key, rec, CapacityFor(rec, req.Capacity, req.Reserve))
	s.observe("initialize", start, err)
	if err != nil {
		sendStoreError(w, err, receipt)
		return
	}
	sendSuccess(w, receipt)
}

// handleRead godoc
//
//	@Summary		Read a record
//	@Tags			records
//	@Produce		json
//	@Param			key	path		string	true	"Record address"
//	@Success		200	{object}	RecordView
//	@Failure		404	{object}	APIResponse
//	@Router			/records/{key} [get]
//	@Security		ApiKeyAuth
func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	key, err := parseKeyParam(r)
	if err != nil {
		sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	rec, err := s.records.Read(key)
	if err != nil {
		s.observe("read", start, err)
		sendStoreError(w, err, nil)
		return
	}
	st, err := s.records.Stat(key)
	s.observe("read", start, err)
	if err != nil {
		sendStoreError(w, err, nil)
		return
	}
	sendSuccess(w, NewRecordView(key, rec, st))
}

// handleStat godoc
//
//	@Summary		Allocation capacity and length
//	@Tags			records
//	@Produce		json
//	@Param			key	path		string	true	"Record address"
//	@Success		200	{object}	store.RecordStat
//	@Failure		404	{object}	APIResponse
//	@Router			/records/{key}/stat [get]
//	@Security		ApiKeyAuth
func (s *Server) handleStat(w http.ResponseWriter, r *http.Request) {
	key, err := parseKeyParam(r)
	if err != nil {
		sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	st, err := s.records.Stat(key)
	if err != nil {
		sendStoreError(w, err, nil)
		return
	}
	sendSuccess(w, st)
}

// handleAppend godoc
//
//	@Summary		Append sequence elements
//	@Description	Grows the allocation by the exact deficit when needed. Growth is checked against the policy for the given context.
//	@Tags			records
//	@Accept			json
//	@Produce		json
//	@Param			key		path		string			true	"Record address"
//	@Param			body	body		AppendRequest	true	"Elements to append"
//	@Success		200		{object}	store.Receipt
//	@Failure		404		{object}	APIResponse
//	@Failure		422		{object}	APIResponse
//	@Router			/records/{key}/append [post]
//	@Security		ApiKeyAuth
func (s *Server) handleAppend(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	key, err := parseKeyParam(r)
	if err != nil {
		sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req AppendRequest
	if err := decodeBody(r, &req); err != nil {
		sendError(w, "Invalid JSON in request body", http.StatusBadRequest)
		return
	}
	ctx, err := policy.ParseContext(req.Context)
	if err != nil {
		sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	receipt, err := s.records.Append(key, req.Sequence, req.Elements, ctx)
	s.observe("append", start, err)
	if err != nil {
		sendStoreError(w, err, receipt)
		return
	}
	sendSuccess(w, receipt)
}

// handleUpdate godoc
//
//	@Summary		Update scalar fields
//	@Tags			records
//	@Accept			json
//	@Produce		json
//	@Param			key		path		string			true	"Record address"
//	@Param			body	body		UpdateRequest	true	"Field values"
//	@Success		200		{object}	store.Receipt
//	@Failure		400		{object}	APIResponse
//	@Failure		404		{object}	APIResponse
//	@Router			/records/{key} [patch]
//	@Security		ApiKeyAuth
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	key, err := parseKeyParam(r)
	if err != nil {
		sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req UpdateRequest
	if err := decodeBody(r, &req); err != nil {
		sendError(w, "Invalid JSON in request body", http.StatusBadRequest)
		return
	}

	st, err := s.records.Stat(key)
	if err != nil {
		s.observe("update", start, err)
		sendStoreError(w, err, nil)
		return
	}
	schema, ok := s.records.Schema(st.Schema)
	if !ok {
		err := fmt.Errorf("%w: %q", store.ErrUnknownSchema, st.Schema)
		s.observe("update", start, err)
		sendStoreError(w, err, nil)
		return
	}
	updates, err := ParseUpdates(schema, textFields(req.Fields))
	if err != nil {
		s.observe("update", start, err)
		sendStoreError(w, err, nil)
		return
	}

	receipt, err := s.records.Update(key, updates)
	s.observe("update", start, err)
	if err != nil {
		sendStoreError(w, err, receipt)
		return
	}
	sendSuccess(w, receipt)
}

// handleFieldEquals godoc
//
//	@Summary		Compare a field with a value
//	@Tags			records
//	@Produce		json
//	@Param			key		path		string	true	"Record address"
//	@Param			field	path		string	true	"Field name"
//	@Param			equals	query		string	true	"Value to compare"
//	@Success		200		{object}	FieldEqualsResponse
//	@Router			/records/{key}/fields/{field} [get]
//	@Security		ApiKeyAuth
func (s *Server) handleFieldEquals(w http.ResponseWriter, r *http.Request) {
	key, err := parseKeyParam(r)
	if err != nil {
		sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	field := chi.URLParam(r, "field")

	st, err := s.records.Stat(key)
	if err != nil {
		sendStoreError(w, err, nil)
		return
	}
	schema, ok := s.records.Schema(st.Schema)
	if !ok {
		sendStoreError(w, fmt.Errorf("%w: %q", store.ErrUnknownSchema, st.Schema), nil)
		return
	}
	i := schema.FieldIndex(field)
	if i < 0 {
		sendStoreError(w, fmt.Errorf("%w: schema %s has no field %q", codec.ErrInvalidValue, schema.Name, field), nil)
		return
	}
	v, err := ParseField(schema.Fields[i], r.URL.Query().Get("equals"))
	if err != nil {
		sendStoreError(w, err, nil)
		return
	}

	equal, err := s.records.FieldEquals(key, field, v)
	if err != nil {
		sendStoreError(w, err, nil)
		return
	}
	sendSuccess(w, FieldEqualsResponse{Field: field, Equal: equal})
}

// handleReceipt godoc
//
//	@Summary		Fetch an operation receipt
//	@Tags			receipts
//	@Produce		json
//	@Param			id	path		string	true	"Receipt ID"
//	@Success		200	{object}	store.Receipt
//	@Failure		404	{object}	APIResponse
//	@Router			/receipts/{id} [get]
//	@Security		ApiKeyAuth
func (s *Server) handleReceipt(w http.ResponseWriter, r *http.Request) {
	id, err := ksuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		sendError(w, "Invalid receipt ID", http.StatusBadRequest)
		return
	}

	receipt, err := s.records.Receipt(id)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Error("failed to read receipt", zap.Stringer("id", id), zap.Error(err))
		}
		sendStoreError(w, err, nil)
		return
	}
	sendSuccess(w, receipt)
}
