package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/TFMV/avs/internal/address"
	"github.com/TFMV/avs/internal/dataset"
	"github.com/TFMV/avs/internal/events"
	"github.com/TFMV/avs/internal/normalize"
	"github.com/TFMV/avs/internal/query"
	"github.com/TFMV/avs/internal/store"
)

// maxBodyBytes bounds request bodies of the reference data endpoints.
const maxBodyBytes = 1 << 20

var nonDigits = regexp.MustCompile(`[^0-9]`)

// handleListAddresses handles GET /api/v1/addresses
func (s *Server) handleListAddresses(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	params := r.URL.Query()

	// A single record by backend ID
	if id := params.Get("id"); id != "" {
		rec, err := s.store.Get(ctx, store.Selector{ID: id})
		switch {
		case errors.Is(err, store.ErrInvalidID):
			respondWithJSON(w, http.StatusBadRequest, map[string]string{"Message": "Invalid address ID"})
		case errors.Is(err, store.ErrNotFound):
			respondWithJSON(w, http.StatusNotFound, map[string]string{"Message": "Address not found"})
		case err != nil:
			s.respondWithStoreError(w, r, err)
		default:
			respondWithJSON(w, http.StatusOK, rec)
		}
		return
	}

	f, msg := parseFilter(r)
	if msg != "" {
		respondWithJSON(w, http.StatusBadRequest, map[string]string{"Message": msg})
		return
	}

	recs, err := s.store.List(ctx, f)
	if err != nil {
		s.respondWithStoreError(w, r, err)
		return
	}
	if len(recs) == 0 {
		respondWithJSON(w, http.StatusNotFound, map[string]string{"Message": "Address not found"})
		return
	}

	if strings.EqualFold(params.Get("format"), "csv") {
		var buf bytes.Buffer
		if err := dataset.WriteCSV(&buf, recs); err != nil {
			loggerFrom(ctx, s.logger).Error("write csv", zap.Error(err))
			respondWithError(w, http.StatusInternalServerError, "Error: unable to export addresses")
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="addresses.csv"`)
		w.WriteHeader(http.StatusOK)
		w.Write(buf.Bytes())
		return
	}

	respondWithJSON(w, http.StatusOK, recs)
}

// parseFilter reads the listing filter from the query string and the
// optional {"addressLine1": ...} body. A non-empty message reports bad input.
func parseFilter(r *http.Request) (query.Filter, string) {
	params := r.URL.Query()
	f := query.Filter{
		City:       params.Get("city"),
		StateProv:  params.Get("stateprov"),
		PostalCode: params.Get("postalcode"),
		Country:    params.Get("country"),
		Search:     params.Get("search"),
	}

	if v := params.Get("sort"); v != "" {
		sortKey, err := query.ParseSort(v)
		if err != nil {
			return f, "Invalid sort field"
		}
		f.Sort = sortKey
	}

	if v := params.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, "Invalid limit"
		}
		f.Limit = n
	}

	if v := params.Get("ref_id"); v != "" {
		ref, err := strconv.ParseInt(nonDigits.ReplaceAllString(v, ""), 10, 64)
		if err != nil {
			return f, "Invalid reference ID"
		}
		f.ReferenceID = &ref
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return f, "Invalid request body"
	}
	if len(bytes.TrimSpace(body)) > 0 {
		var req struct {
			AddressLine1 string `json:"addressLine1"`
		}
		if err := json.Unmarshal(body, &req); err != nil {
			return f, "Invalid request body"
		}
		f.AddressLine1 = req.AddressLine1
	}

	return f, ""
}

// handleCreateAddress handles POST /api/v1/address/
func (s *Server) handleCreateAddress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	a, ok := decodeAddress(w, r)
	if !ok {
		return
	}
	if !respondIfInvalid(w, a) {
		return
	}

	canonical := normalize.Address(a)
	exists, err := s.store.Exists(ctx, canonical)
	if err != nil {
		s.respondWithStoreError(w, r, err)
		return
	}
	if exists {
		respondWithJSON(w, http.StatusConflict, map[string]interface{}{
			"message": "Address already exists",
			"address": a,
			"status":  "failure",
		})
		return
	}

	rec, err := s.store.Insert(ctx, canonical)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			respondWithJSON(w, http.StatusConflict, map[string]interface{}{
				"message": "Address already exists",
				"address": a,
				"status":  "failure",
			})
			return
		}
		s.respondWithStoreError(w, r, err)
		return
	}

	s.publish(ctx, events.Created, rec, nil)
	respondWithJSON(w, http.StatusCreated, map[string]interface{}{
		"time_created":          timestamp(),
		"newly_created_address": rec,
		"status":                "success",
	})
}

// handleUpdateAddress handles PUT /api/v1/address/{ref}
func (s *Server) handleUpdateAddress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	ref := mux.Vars(r)["ref"]

	notFound := func() {
		respondWithJSON(w, http.StatusNotFound, map[string]string{
			"message":        "Address not found",
			"address_ref_id": ref,
		})
	}

	refID, err := strconv.ParseInt(ref, 10, 64)
	if err != nil {
		notFound()
		return
	}

	a, ok := decodeAddress(w, r)
	if !ok {
		return
	}
	if !respondIfInvalid(w, a) {
		return
	}

	canonical := normalize.Address(a)
	prev, err := s.store.Update(ctx, store.Selector{ReferenceID: &refID}, canonical)
	switch {
	case errors.Is(err, store.ErrNotFound):
		notFound()
		return
	case err != nil:
		s.respondWithStoreError(w, r, err)
		return
	}

	updated := &store.Record{ID: prev.ID, Address: store.Merge(prev.Address, canonical)}
	s.publish(ctx, events.Updated, updated, prev)
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"message":      "Address Updated successfully",
		"time_updated": timestamp(),
		"status":       "success",
		"old_address":  prev,
		"new_address":  updated,
	})
}

// handleDeleteAddress handles DELETE /api/v1/addresses/{id}. A numeric id is
// a reference ID, anything else a backend ID.
func (s *Server) handleDeleteAddress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sel := store.ParseSelector(mux.Vars(r)["id"])

	rec, err := s.store.Delete(ctx, sel)
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrInvalidID):
		respondWithJSON(w, http.StatusNotFound, map[string]string{"message": "Address not found"})
		return
	case err != nil:
		s.respondWithStoreError(w, r, err)
		return
	}

	s.publish(ctx, events.Deleted, rec, nil)
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"message":         "Address deleted successfully",
		"time_deleted":    timestamp(),
		"status":          "success",
		"deleted_address": rec,
	})
}

// respondIfInvalid answers 400 for an invalid address and reports whether
// the address is valid.
func respondIfInvalid(w http.ResponseWriter, a address.Address) bool {
	err := address.Validate(a)
	if err == nil {
		return true
	}
	var verr *address.ValidationError
	if errors.As(err, &verr) {
		respondWithJSON(w, http.StatusBadRequest, map[string]interface{}{
			"message": "Invalid address data",
			"errors":  verr.ByField(),
		})
		return false
	}
	respondWithError(w, http.StatusBadRequest, "Invalid address data")
	return false
}

// respondWithStoreError answers 500 for a backend failure. Every route uses
// this shape for database errors.
func (s *Server) respondWithStoreError(w http.ResponseWriter, r *http.Request, err error) {
	loggerFrom(r.Context(), s.logger).Error("record store failure", zap.Error(err))
	msg := "Database error"
	var serr *store.Error
	if errors.As(err, &serr) {
		msg += ": " + serr.Msg
	}
	respondWithError(w, http.StatusInternalServerError, msg)
}

// publish emits a change event. Failures are logged and counted, never
// returned.
func (s *Server) publish(ctx context.Context, typ events.Type, rec, prev *store.Record) {
	e := events.Event{
		ID:       uuid.NewString(),
		Type:     typ,
		Time:     timeNow().UTC(),
		Record:   rec,
		Previous: prev,
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()

	if err := s.events.Publish(ctx, e); err != nil {
		loggerFrom(ctx, s.logger).Warn("publish change event", zap.String("type", string(typ)), zap.Error(err))
		if s.metrics != nil {
			s.metrics.EventPublishFailed()
		}
	}
}
