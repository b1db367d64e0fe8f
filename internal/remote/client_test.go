package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hr-bulk-import/internal/reference"
)

type countingPacer struct{ calls int }

func (p *countingPacer) Wait(context.Context) error {
	p.calls++
	return nil
}

func TestCreateSuccessSendsTokenAndPayload(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/employees", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id": 7}`))
	}))
	defer srv.Close()

	pacer := &countingPacer{}
	c := New(srv.URL+"/", "secret", time.Second, WithPacer(pacer))
	err := c.Create(context.Background(), "employee", map[string]string{"email": "a@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", got["email"])
	assert.Equal(t, 1, pacer.calls)
}

func TestCreateErrorMessages(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"message field", 400, `{"message": "Email already exists"}`, "Email already exists"},
		{"error field", 422, `{"error": "bad designation"}`, "bad designation"},
		{"detail list", 422, `{"detail": [{"msg": "field required"}, {"msg": "too long"}]}`, "field required; too long"},
		{"plain text", 500, "upstream exploded", "upstream exploded"},
		{"empty body", 502, "", fallbackMessage},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			err := New(srv.URL, "", time.Second).Create(context.Background(), "employee", struct{}{})
			var rerr *Error
			require.True(t, errors.As(err, &rerr))
			assert.Equal(t, tc.status, rerr.StatusCode)
			assert.Equal(t, tc.want, rerr.Message)
		})
	}
}

func TestCreateTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	err := New(url, "", time.Second).Create(context.Background(), "employee", struct{}{})
	var rerr *Error
	require.True(t, errors.As(err, &rerr))
	assert.Zero(t, rerr.StatusCode)
	assert.NotEmpty(t, rerr.Message)
}

func TestCreateUnencodablePayload(t *testing.T) {
	err := New("http://127.0.0.1:1", "", time.Second).Create(context.Background(), "employee", map[string]any{"c": make(chan int)})
	var rerr *Error
	require.True(t, errors.As(err, &rerr))
	assert.Contains(t, rerr.Message, "encode payload")
}

func TestListReferencesShapes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/departments":
			_, _ = w.Write([]byte(`[{"id": 1, "name": "Engineering"}, {"id": "2", "name": "Sales"}, {"id": null, "name": "Ghost"}]`))
		case "/designations":
			_, _ = w.Write([]byte(`{"data": [{"id": "d-1", "title": "Manager"}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := New(srv.URL, "", time.Second)
	lists, err := c.FetchReferences(context.Background(), []reference.Kind{reference.KindDepartment, reference.KindDesignation})
	require.NoError(t, err)
	assert.Equal(t, []reference.Entry{{ID: "1", Name: "Engineering"}, {ID: "2", Name: "Sales"}}, lists[reference.KindDepartment])
	assert.Equal(t, []reference.Entry{{ID: "d-1", Name: "Manager"}}, lists[reference.KindDesignation])
}

func TestListReferencesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail": "token expired"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, "", time.Second).ListReferences(context.Background(), reference.KindDesignation)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token expired")
}
