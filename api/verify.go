package api

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/TFMV/avs/internal/address"
	"github.com/TFMV/avs/internal/store"
	"github.com/TFMV/avs/internal/verify"
)

// apiKeyBytes is the entropy of an issued API key.
const apiKeyBytes = 32

// handleVerify handles POST /api/v1/verify
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	// Parse request
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	a, ok := decodeAddress(w, r)
	if !ok {
		return
	}

	opts := verify.Options{SuppressRecommendation: strings.EqualFold(r.URL.Query().Get("nr"), "f")}

	res, err := s.verifier.Verify(r.Context(), a, opts)
	if err != nil {
		s.respondWithVerifyError(w, r, err)
		return
	}

	// Return the decision envelope
	respondWithJSON(w, http.StatusOK, res)
}

func (s *Server) respondWithVerifyError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *address.ValidationError
	var serr *store.Error
	switch {
	case errors.As(err, &verr):
		respondWithJSON(w, http.StatusBadRequest, map[string]interface{}{
			"message": "Invalid address data, please check your input",
			"errors":  verr.ByField(),
		})
	case errors.As(err, &serr):
		s.respondWithStoreError(w, r, err)
	default:
		loggerFrom(r.Context(), s.logger).Error("verification failed", zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "Error: unable to verify address")
	}
}

// decodeAddress reads an address body, answering 400 itself on malformed
// JSON.
func decodeAddress(w http.ResponseWriter, r *http.Request) (address.Address, bool) {
	var a address.Address
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field == "addressLine1" {
			respondWithError(w, http.StatusBadRequest, "Invalid addressLine1 Input")
			return a, false
		}
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return a, false
	}
	return a, true
}

// handleAuth handles GET /api/v1/auth. Each client IP is issued one key.
func (s *Server) handleAuth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := loggerFrom(ctx, s.logger)
	client := clientIP(r)

	exists := func() {
		respondWithJSON(w, http.StatusBadRequest, map[string]string{
			"error":  "Key already exist. Please use that instead.",
			"status": "failure",
		})
	}

	_, err := s.store.FindKeyByClient(ctx, client)
	switch {
	case err == nil:
		exists()
		return
	case !errors.Is(err, store.ErrNotFound):
		logger.Error("api key lookup failed", zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "Database error: unable to issue key")
		return
	}

	key, err := NewAPIKey()
	if err != nil {
		logger.Error("generate api key", zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "Error: unable to issue key")
		return
	}

	issued := store.APIKey{Key: key, ClientIP: client, Created: timeNow().UTC()}
	if err := s.store.InsertKey(ctx, issued); err != nil {
		if errors.Is(err, store.ErrConflict) {
			exists()
			return
		}
		logger.Error("store api key", zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "Database error: unable to issue key")
		return
	}

	logger.Info("api key issued", zap.String("client_ip", client))
	respondWithJSON(w, http.StatusOK, map[string]string{
		"key":            key,
		"time_generated": timestamp(),
	})
}

// NewAPIKey returns a random hex-encoded key.
func NewAPIKey() (string, error) {
	b := make([]byte, apiKeyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
