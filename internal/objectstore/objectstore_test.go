package objectstore_test

import (
	"context"
	"io"
	"marketchat/backend/internal/objectstore"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPStore_Upload(t *testing.T) {
	var gotBody, gotType, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		gotType = r.Header.Get("Content-Type")
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	store := objectstore.NewHTTPStore(srv.URL + "/uploads/")
	url, err := store.Upload(context.Background(), objectstore.Object{Name: "Photo.JPG", ContentType: "image/jpeg", Data: []byte("jpegbytes")})

	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, srv.URL+"/uploads/"))
	assert.True(t, strings.HasSuffix(url, ".jpg"))
	assert.Equal(t, "jpegbytes", gotBody)
	assert.Equal(t, "image/jpeg", gotType)
	assert.True(t, strings.HasPrefix(gotPath, "/uploads/"))
}

func TestHTTPStore_UploadFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	store := objectstore.NewHTTPStore(srv.URL)

	_, err := store.Upload(context.Background(), objectstore.Object{Name: "a.png", Data: []byte("x")})
	assert.ErrorContains(t, err, "unexpected status 500")

	_, err = store.Upload(context.Background(), objectstore.Object{Name: "a.png"})
	assert.ErrorContains(t, err, "empty object")
}
