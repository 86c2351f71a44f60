package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/ariefcatur/storefront-ledger/internal/apperr"
	"github.com/ariefcatur/storefront-ledger/internal/redisx"
	"github.com/ariefcatur/storefront-ledger/internal/roles"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

var statusByCode = map[string]int{
	apperr.ErrNotFound.Code:            http.StatusNotFound,
	apperr.ErrInvalidInput.Code:        http.StatusBadRequest,
	apperr.ErrInvalidQuantity.Code:     http.StatusUnprocessableEntity,
	apperr.ErrPriceUnavailable.Code:    http.StatusUnprocessableEntity,
	apperr.ErrInsufficientStock.Code:   http.StatusConflict,
	apperr.ErrAlreadyAssigned.Code:     http.StatusConflict,
	apperr.ErrInvalidState.Code:        http.StatusConflict,
	apperr.ErrDuplicateLine.Code:       http.StatusConflict,
	apperr.ErrConcurrencyConflict.Code: http.StatusConflict,
	apperr.ErrNotStaffCapable.Code:     http.StatusForbidden,
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors to statuses; anything unrecognised is logged
// and reported as a 500 without its message.
func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	if errors.Is(err, redisx.ErrInFlight) {
		writeJSON(w, http.StatusConflict, errorBody{Error: errorDetail{Code: "IN_PROGRESS", Message: err.Error()}})
		return
	}
	code := apperr.Code(err)
	status, ok := statusByCode[code]
	if !ok {
		log.Error("request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: errorDetail{Code: "INTERNAL", Message: "internal error"}})
		return
	}
	d := errorDetail{Code: code, Message: err.Error()}
	var se *apperr.InsufficientStockError
	var qe *apperr.QuantityConstraintError
	switch {
	case errors.As(err, &se):
		d.Details = se
	case errors.As(err, &qe):
		d.Details = qe
	}
	writeJSON(w, status, errorBody{Error: d})
}

func forbidden(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusForbidden, errorBody{Error: errorDetail{Code: "FORBIDDEN", Message: msg}})
}

// decode reads a JSON body into v and runs struct validation.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: errorDetail{Code: apperr.ErrInvalidInput.Code, Message: "invalid json: " + err.Error()}})
		return false
	}
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		fields := map[string]string{}
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				fields[fe.Field()] = fe.Tag()
			}
		}
		writeJSON(w, http.StatusBadRequest, errorBody{Error: errorDetail{Code: apperr.ErrInvalidInput.Code, Message: "validation failed", Details: fields}})
		return false
	}
	return true
}

func queryInt(r *http.Request, key string, def int) int {
	if v, err := strconv.Atoi(r.URL.Query().Get(key)); err == nil && v > 0 {
		return v
	}
	return def
}

// Access answers capability questions about the caller.
type Access struct {
	Dir roles.Directory
	Log *zap.Logger
}

// can writes the response itself when the answer is no or the lookup fails.
func (a Access) can(w http.ResponseWriter, r *http.Request, c roles.Capability) bool {
	role, err := a.Dir.RoleOf(r.Context(), userID(r.Context()))
	if err != nil {
		writeError(w, a.Log, err)
		return false
	}
	if !role.Can(c) {
		forbidden(w, "requires "+string(c))
		return false
	}
	return true
}
