package response_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kiranshivaraju/lorastudio/internal/api/response"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func TestJSON_WrapsData(t *testing.T) {
	w := httptest.NewRecorder()
	response.JSON(w, item{ID: "job-1", Status: "QUEUED"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var env response.Envelope[item]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, item{ID: "job-1", Status: "QUEUED"}, env.Data)
}

func TestCreated(t *testing.T) {
	w := httptest.NewRecorder()
	response.Created(w, item{ID: "job-2"})

	assert.Equal(t, http.StatusCreated, w.Code)

	var env response.Envelope[item]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, "job-2", env.Data.ID)
}

// A caller with no active job gets data: null, not an empty object.
func TestJSON_NilPointerIsNull(t *testing.T) {
	w := httptest.NewRecorder()
	var none *item
	response.JSON(w, none)

	assert.Equal(t, "{\"data\":null}\n", w.Body.String())

	var env response.Envelope[*item]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Nil(t, env.Data)
}

func TestCollection(t *testing.T) {
	w := httptest.NewRecorder()
	response.Collection(w, []item{{ID: "1"}, {ID: "2"}}, response.NewPage(1, 2, 5))

	assert.Equal(t, http.StatusOK, w.Code)

	var env response.CollectionEnvelope[item]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	require.Len(t, env.Data, 2)
	assert.Equal(t, "2", env.Data[1].ID)
	assert.Equal(t, response.PaginationMeta{Page: 1, Limit: 2, Total: 5, HasNext: true}, env.Meta)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	assert.Contains(t, raw["meta"], "has_next")
}

func TestCollection_NilIsEmptyArray(t *testing.T) {
	w := httptest.NewRecorder()
	response.Collection[item](w, nil, response.NewPage(1, 20, 0))

	assert.JSONEq(t, `{"data":[],"meta":{"page":1,"limit":20,"total":0,"has_next":false}}`, w.Body.String())
}

func TestNewPage(t *testing.T) {
	tests := []struct {
		page, limit, total int
		hasNext            bool
	}{
		{1, 20, 0, false},
		{1, 20, 20, false},
		{1, 20, 21, true},
		{2, 10, 25, true},
		{3, 10, 25, false},
	}
	for _, tt := range tests {
		got := response.NewPage(tt.page, tt.limit, tt.total)
		assert.Equal(t, tt.hasNext, got.HasNext, "page=%d limit=%d total=%d", tt.page, tt.limit, tt.total)
	}
}

func TestError(t *testing.T) {
	w := httptest.NewRecorder()
	response.Error(w, http.StatusBadRequest, "VALIDATION_FAILED", "imageKeys: need between 10 and 40 images, got 9",
		map[string]string{"field": "imageKeys"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var env response.ErrorEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, "VALIDATION_FAILED", env.Error.Code)
	assert.Contains(t, env.Error.Message, "got 9")
	assert.Equal(t, map[string]any{"field": "imageKeys"}, env.Error.Details)
}

func TestError_OmitsEmptyDetails(t *testing.T) {
	w := httptest.NewRecorder()
	response.Error(w, http.StatusConflict, "ACTIVE_JOB_EXISTS", "busy", nil)

	assert.JSONEq(t, `{"error":{"code":"ACTIVE_JOB_EXISTS","message":"busy"}}`, w.Body.String())
}
