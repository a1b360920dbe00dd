package fakes3

import (
	"encoding/xml"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEndpoint(t *testing.T) (*httptest.Server, *Store) {
	t.Helper()

	dir := t.TempDir()
	store, err := Open(dir, filepath.Join(dir, "metadata.db"))
	require.NoError(t, err)

	srv := httptest.NewServer(NewHandler(store))
	t.Cleanup(func() {
		srv.Close()
		store.Close()
	})

	return srv, store
}

func doRequest(t *testing.T, method, url string, body io.Reader, headers map[string]string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(method, url, body)
	require.NoError(t, err)
	for name, value := range headers {
		req.Header.Set(name, value)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	return resp
}

func TestHandlerPutGetRoundtrip(t *testing.T) {
	srv, _ := newTestEndpoint(t)

	resp := doRequest(t, http.MethodPut, srv.URL+"/test-bucket", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doRequest(t, http.MethodPut, srv.URL+"/test-bucket/folder/obj.txt",
		strings.NewReader("hello"), map[string]string{
			"Content-Type":         "text/plain",
			"x-amz-meta-test-meta": "test-value",
		})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("ETag"))

	resp = doRequest(t, http.MethodGet, srv.URL+"/test-bucket/folder/obj.txt", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/plain", resp.Header.Get("Content-Type"))
	assert.Equal(t, "test-value", resp.Header.Get("x-amz-meta-test-meta"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(body))
}

func TestHandlerChunkedPut(t *testing.T) {
	srv, _ := newTestEndpoint(t)

	resp := doRequest(t, http.MethodPut, srv.URL+"/test-bucket", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	chunked := "5;chunk-signature=abc123\r\nhello\r\n0;chunk-signature=def456\r\n\r\n"
	resp = doRequest(t, http.MethodPut, srv.URL+"/test-bucket/obj",
		strings.NewReader(chunked), map[string]string{
			"Content-Encoding": "aws-chunked",
		})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doRequest(t, http.MethodGet, srv.URL+"/test-bucket/obj", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(body))
}

func TestHandlerErrorCodes(t *testing.T) {
	srv, _ := newTestEndpoint(t)

	// GET on a missing bucket
	resp := doRequest(t, http.MethodGet, srv.URL+"/missing-bucket/key", nil, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	var e apiError
	require.NoError(t, xml.NewDecoder(resp.Body).Decode(&e))
	assert.Equal(t, "NoSuchBucket", e.Code)
	assert.NotEmpty(t, e.RequestID)

	// GET on a missing key in an existing bucket
	resp = doRequest(t, http.MethodPut, srv.URL+"/test-bucket", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doRequest(t, http.MethodGet, srv.URL+"/test-bucket/missing-key", nil, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	e = apiError{}
	require.NoError(t, xml.NewDecoder(resp.Body).Decode(&e))
	assert.Equal(t, "NoSuchKey", e.Code)

	// Duplicate create
	resp = doRequest(t, http.MethodPut, srv.URL+"/test-bucket", nil, nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	e = apiError{}
	require.NoError(t, xml.NewDecoder(resp.Body).Decode(&e))
	assert.Equal(t, "BucketAlreadyOwnedByYou", e.Code)

	// Invalid bucket name
	resp = doRequest(t, http.MethodPut, srv.URL+"/AB", nil, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandlerListObjectsPrefix(t *testing.T) {
	srv, _ := newTestEndpoint(t)

	resp := doRequest(t, http.MethodPut, srv.URL+"/test-bucket", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	for _, key := range []string{"test1.txt", "test2.txt", "folder/test3.txt"} {
		resp = doRequest(t, http.MethodPut, srv.URL+"/test-bucket/"+key,
			strings.NewReader("content"), nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp = doRequest(t, http.MethodGet, srv.URL+"/test-bucket?list-type=2&prefix=folder%2F", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result listBucketResult
	require.NoError(t, xml.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, int32(1), result.KeyCount)
	require.Len(t, result.Contents, 1)
	assert.Equal(t, "folder/test3.txt", result.Contents[0].Key)
}

func TestHandlerHeadObject(t *testing.T) {
	srv, _ := newTestEndpoint(t)

	resp := doRequest(t, http.MethodPut, srv.URL+"/test-bucket", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doRequest(t, http.MethodPut, srv.URL+"/test-bucket/obj",
		strings.NewReader("12345"), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doRequest(t, http.MethodHead, srv.URL+"/test-bucket/obj", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "5", resp.Header.Get("Content-Length"))
	assert.NotEmpty(t, resp.Header.Get("ETag"))

	resp = doRequest(t, http.MethodHead, srv.URL+"/test-bucket/missing", nil, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandlerDeleteBucket(t *testing.T) {
	srv, _ := newTestEndpoint(t)

	resp := doRequest(t, http.MethodPut, srv.URL+"/test-bucket", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doRequest(t, http.MethodDelete, srv.URL+"/test-bucket", nil, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doRequest(t, http.MethodDelete, srv.URL+"/test-bucket", nil, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	var e apiError
	require.NoError(t, xml.NewDecoder(resp.Body).Decode(&e))
	assert.Equal(t, "NoSuchBucket", e.Code)
}
