package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmadesk/rmadesk/internal/shared"
)

func TestRespondErrorStatusMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("lot 3: %w", shared.ErrNotFound), http.StatusNotFound},
		{shared.ErrEmptySelection, http.StatusBadRequest},
		{fmt.Errorf("%w: sku required", ErrValidation), http.StatusBadRequest},
		{fmt.Errorf("lot 3 is confirmed: %w", shared.ErrInvalidTransition), http.StatusConflict},
		{shared.ErrIdempotencyConflict, http.StatusConflict},
		{shared.BackendFailure("lots.confirm", errors.New("timeout")), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		RespondError(rr, tc.err)
		assert.Equal(t, tc.status, rr.Code, tc.err.Error())

		var body ProblemDetail
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		assert.Equal(t, tc.status, body.Status)
	}
}

func TestRespondErrorBackendHidesCause(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, shared.BackendFailure("stock.reset", errors.New("password authentication failed")))
	require.Equal(t, "5", rr.Header().Get("Retry-After"))
	require.NotContains(t, rr.Body.String(), "password")
}

func TestDecodeAndValidate(t *testing.T) {
	type payload struct {
		RMAIDs []int64 `json:"rma_ids" validate:"required,min=1"`
	}
	v := validator.New()

	req := httptest.NewRequest(http.MethodPost, "/lots", strings.NewReader(`{"rma_ids":[]}`))
	var p payload
	err := DecodeAndValidate(req, v, &p)
	require.ErrorIs(t, err, ErrValidation)
	require.Contains(t, err.Error(), "rmaids failed min")

	req = httptest.NewRequest(http.MethodPost, "/lots", strings.NewReader(`{"rma_ids":[4],"extra":1}`))
	require.ErrorIs(t, DecodeAndValidate(req, v, &p), ErrValidation)

	req = httptest.NewRequest(http.MethodPost, "/lots", strings.NewReader(`{"rma_ids":[4,5]}`))
	require.NoError(t, DecodeAndValidate(req, v, &p))
	require.Equal(t, []int64{4, 5}, p.RMAIDs)
}
