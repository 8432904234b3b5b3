package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecmigrate/model"
)

func TestRESTClient_ListAndGet(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/projects/p/locations/l/indexes", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"indexes": []Index{{Name: "projects/p/locations/l/indexes/1", DisplayName: "demo"}},
		})
	})
	mux.HandleFunc("GET /v1/projects/p/locations/l/indexes/1", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Index{Name: "projects/p/locations/l/indexes/1", DisplayName: "demo", Dimensions: 4})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewRESTClient(srv.URL+"/v1", "projects/p/locations/l")

	indexes, err := c.ListIndexes(context.Background())
	require.NoError(t, err)
	require.Len(t, indexes, 1)
	assert.Equal(t, "demo", indexes[0].DisplayName)

	idx, err := c.GetIndex(context.Background(), "projects/p/locations/l/indexes/1")
	require.NoError(t, err)
	assert.Equal(t, 4, idx.Dimensions)
}

func TestRESTClient_ErrorClassification(t *testing.T) {
	var status int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", status)
	}))
	defer srv.Close()

	c := NewRESTClient(srv.URL, "projects/p/locations/l")

	status = http.StatusTooManyRequests
	_, err := c.ListIndexes(context.Background())
	assert.True(t, IsTransient(err))

	status = http.StatusInternalServerError
	_, err = c.ListIndexes(context.Background())
	assert.True(t, IsTransient(err))

	status = http.StatusForbidden
	_, err = c.ListIndexes(context.Background())
	require.Error(t, err)
	assert.False(t, IsTransient(err))

	status = http.StatusNotFound
	_, err = c.ListIndexes(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRESTClient_CreateIndexOperation(t *testing.T) {
	polls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/projects/p/locations/l/indexes", func(w http.ResponseWriter, r *http.Request) {
		var spec IndexSpec
		require.NoError(t, json.NewDecoder(r.Body).Decode(&spec))
		assert.Equal(t, "demo", spec.DisplayName)
		json.NewEncoder(w).Encode(map[string]any{"name": "projects/p/locations/l/operations/7", "done": false})
	})
	mux.HandleFunc("GET /v1/projects/p/locations/l/operations/7", func(w http.ResponseWriter, r *http.Request) {
		polls++
		if polls < 2 {
			json.NewEncoder(w).Encode(map[string]any{"name": "projects/p/locations/l/operations/7", "done": false})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"name":     "projects/p/locations/l/operations/7",
			"done":     true,
			"response": Index{Name: "projects/p/locations/l/indexes/9", DisplayName: "demo"},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewRESTClient(srv.URL+"/v1", "projects/p/locations/l")

	op, err := c.CreateIndex(context.Background(), IndexSpec{DisplayName: "demo", Dimensions: 4})
	require.NoError(t, err)

	st, err := op.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OperationPending, st.State)

	st, err = op.Poll(context.Background())
	require.NoError(t, err)
	require.Equal(t, OperationDone, st.State)
	assert.Equal(t, "projects/p/locations/l/indexes/9", st.Result.Name)
}

func TestRESTClient_UpsertDatapoints(t *testing.T) {
	var got struct {
		Datapoints []model.Datapoint `json:"datapoints"`
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/projects/p/locations/l/indexes/1:upsertDatapoints", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("{}"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewRESTClient(srv.URL+"/v1", "projects/p/locations/l")

	err := c.UpsertDatapoints(context.Background(), "projects/p/locations/l/indexes/1", []model.Datapoint{
		{ID: "a", Vector: []float32{1, 2}},
	})
	require.NoError(t, err)
	require.Len(t, got.Datapoints, 1)
	assert.Equal(t, "a", got.Datapoints[0].ID)
}

func TestRESTClient_TokenSource(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		w.Write([]byte(`{"indexes": []}`))
	}))
	defer srv.Close()

	c := NewRESTClient(srv.URL, "projects/p/locations/l", WithTokenSource(func(ctx context.Context) (string, error) {
		return "tok123", nil
	}))

	_, err := c.ListIndexes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok123", auth)
}
