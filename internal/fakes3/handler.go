package fakes3

import (
	"encoding/xml"
	"errors"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Handler serves the trimmed S3 API surface over path-style HTTP.
type Handler struct {
	store *Store
}

// NewHandler creates a Handler backed by store.
func NewHandler(store *Store) *Handler {
	return &Handler{store: store}
}

var bucketNameRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func validBucketName(name string) bool {
	return len(name) >= 3 && len(name) <= 63 && bucketNameRegex.MatchString(name)
}

// ServeHTTP routes path-style S3 requests. Requests are served
// unauthenticated; signature verification is the target service's
// concern, not this test endpoint's.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if err := recover(); err != nil {
			log.Error().Interface("error", err).Msg("Panic recovered")
			writeError(w, errInternal, r.URL.Path)
		}
	}()

	start := time.Now()
	bucket, key := splitPath(r.URL.Path)

	switch r.Method {
	case http.MethodGet:
		switch {
		case bucket == "":
			h.listBuckets(w, r)
		case key == "":
			h.listObjects(w, r, bucket)
		default:
			h.getObject(w, r, bucket, key)
		}

	case http.MethodPut:
		switch {
		case bucket != "" && key == "":
			h.createBucket(w, r, bucket)
		case bucket != "" && key != "":
			h.putObject(w, r, bucket, key)
		default:
			writeError(w, errInvalidRequest, r.URL.Path)
		}

	case http.MethodHead:
		switch {
		case bucket != "" && key == "":
			h.headBucket(w, r, bucket)
		case bucket != "" && key != "":
			h.headObject(w, r, bucket, key)
		default:
			w.WriteHeader(http.StatusBadRequest)
		}

	case http.MethodDelete:
		switch {
		case bucket != "" && key == "":
			h.deleteBucket(w, r, bucket)
		case bucket != "" && key != "":
			h.deleteObject(w, r, bucket, key)
		default:
			writeError(w, errInvalidRequest, r.URL.Path)
		}

	default:
		writeError(w, errMethodNotAllowed, r.URL.Path)
	}

	log.Debug().
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Dur("duration", time.Since(start)).
		Msg("Request")
}

// splitPath parses /{bucket} or /{bucket}/{key}.
func splitPath(path string) (bucket, key string) {
	parts := strings.SplitN(strings.TrimPrefix(path, "/"), "/", 2)
	if len(parts) > 0 {
		bucket = parts[0]
	}
	if len(parts) > 1 {
		key = parts[1]
	}
	return bucket, key
}

// listAllMyBucketsResult is the ListBuckets response.
type listAllMyBucketsResult struct {
	XMLName xml.Name `xml:"ListAllMyBucketsResult"`
	Xmlns   string   `xml:"xmlns,attr"`
	Owner   owner    `xml:"Owner"`
	Buckets buckets  `xml:"Buckets"`
}

type owner struct {
	ID          string `xml:"ID"`
	DisplayName string `xml:"DisplayName,omitempty"`
}

type buckets struct {
	Bucket []bucketInfo `xml:"Bucket"`
}

type bucketInfo struct {
	Name         string `xml:"Name"`
	CreationDate string `xml:"CreationDate"`
}

func (h *Handler) listBuckets(w http.ResponseWriter, r *http.Request) {
	all, err := h.store.ListBuckets(r.Context())
	if err != nil {
		writeError(w, errInternal, "/")
		return
	}

	result := listAllMyBucketsResult{
		Xmlns: "http://s3.amazonaws.com/doc/2006-03-01/",
		Owner: owner{ID: "owner-id", DisplayName: "owner"},
		Buckets: buckets{
			Bucket: make([]bucketInfo, len(all)),
		},
	}
	for i, b := range all {
		result.Buckets.Bucket[i] = bucketInfo{
			Name:         b.Name,
			CreationDate: b.CreationDate.Format(time.RFC3339),
		}
	}

	writeXML(w, result)
}

func (h *Handler) createBucket(w http.ResponseWriter, r *http.Request, bucket string) {
	if !validBucketName(bucket) {
		writeError(w, errInvalidBucketName, "/"+bucket)
		return
	}

	if err := h.store.CreateBucket(r.Context(), bucket); err != nil {
		if errors.Is(err, ErrBucketAlreadyExists) {
			// Single-owner endpoint: a duplicate create is always
			// a bucket the caller already owns.
			writeError(w, errBucketAlreadyOwnedByYou, "/"+bucket)
			return
		}
		writeError(w, errInternal, "/"+bucket)
		return
	}

	w.Header().Set("Location", "/"+bucket)
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) headBucket(w http.ResponseWriter, r *http.Request, bucket string) {
	exists, err := h.store.BucketExists(r.Context(), bucket)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if !exists {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) deleteBucket(w http.ResponseWriter, r *http.Request, bucket string) {
	if err := h.store.DeleteBucket(r.Context(), bucket); err != nil {
		if errors.Is(err, ErrBucketNotFound) {
			writeError(w, errNoSuchBucket, "/"+bucket)
			return
		}
		if errors.Is(err, ErrBucketNotEmpty) {
			writeError(w, errBucketNotEmpty, "/"+bucket)
			return
		}
		writeError(w, errInternal, "/"+bucket)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) putObject(w http.ResponseWriter, r *http.Request, bucket, key string) {
	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	metadata := make(map[string]string)
	for name, values := range r.Header {
		lower := strings.ToLower(name)
		if strings.HasPrefix(lower, "x-amz-meta-") {
			metadata[strings.TrimPrefix(lower, "x-amz-meta-")] = values[0]
		}
	}

	body := io.Reader(r.Body)
	if isAWSChunked(r.Header.Get("Content-Encoding"), r.Header.Get("X-Amz-Content-Sha256")) {
		body = newChunkedReader(r.Body)
	}

	obj, err := h.store.PutObject(r.Context(), bucket, key, body, contentType, metadata)
	if err != nil {
		if errors.Is(err, ErrBucketNotFound) {
			writeError(w, errNoSuchBucket, "/"+bucket)
			return
		}
		writeError(w, errInternal, "/"+bucket+"/"+key)
		return
	}

	w.Header().Set("ETag", `"`+obj.ETag+`"`)
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) getObject(w http.ResponseWriter, r *http.Request, bucket, key string) {
	obj, body, err := h.store.GetObject(r.Context(), bucket, key)
	if err != nil {
		if errors.Is(err, ErrBucketNotFound) {
			writeError(w, errNoSuchBucket, "/"+bucket)
			return
		}
		if errors.Is(err, ErrObjectNotFound) {
			writeError(w, errNoSuchKey, "/"+bucket+"/"+key)
			return
		}
		writeError(w, errInternal, "/"+bucket+"/"+key)
		return
	}
	defer body.Close()

	writeObjectHeaders(w, obj)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		log.Error().Err(err).Str("key", key).Msg("Failed to write object body")
	}
}

func (h *Handler) headObject(w http.ResponseWriter, r *http.Request, bucket, key string) {
	obj, err := h.store.HeadObject(r.Context(), bucket, key)
	if err != nil {
		// HEAD responses carry no body; the status code is the error.
		if errors.Is(err, ErrBucketNotFound) || errors.Is(err, ErrObjectNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	writeObjectHeaders(w, obj)
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) deleteObject(w http.ResponseWriter, r *http.Request, bucket, key string) {
	if err := h.store.DeleteObject(r.Context(), bucket, key); err != nil {
		if errors.Is(err, ErrBucketNotFound) {
			writeError(w, errNoSuchBucket, "/"+bucket)
			return
		}
		writeError(w, errInternal, "/"+bucket+"/"+key)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// listBucketResult is the ListObjectsV2 response.
type listBucketResult struct {
	XMLName     xml.Name     `xml:"ListBucketResult"`
	Xmlns       string       `xml:"xmlns,attr"`
	Name        string       `xml:"Name"`
	Prefix      string       `xml:"Prefix"`
	MaxKeys     int32        `xml:"MaxKeys"`
	IsTruncated bool         `xml:"IsTruncated"`
	KeyCount    int32        `xml:"KeyCount"`
	Contents    []objectInfo `xml:"Contents"`
}

type objectInfo struct {
	Key          string `xml:"Key"`
	LastModified string `xml:"LastModified"`
	ETag         string `xml:"ETag"`
	Size         int64  `xml:"Size"`
	StorageClass string `xml:"StorageClass"`
}

func (h *Handler) listObjects(w http.ResponseWriter, r *http.Request, bucket string) {
	prefix := r.URL.Query().Get("prefix")

	objects, err := h.store.ListObjects(r.Context(), bucket, prefix)
	if err != nil {
		if errors.Is(err, ErrBucketNotFound) {
			writeError(w, errNoSuchBucket, "/"+bucket)
			return
		}
		writeError(w, errInternal, "/"+bucket)
		return
	}

	result := listBucketResult{
		Xmlns:       "http://s3.amazonaws.com/doc/2006-03-01/",
		Name:        bucket,
		Prefix:      prefix,
		MaxKeys:     1000,
		IsTruncated: false,
		KeyCount:    int32(len(objects)),
		Contents:    make([]objectInfo, len(objects)),
	}
	for i, obj := range objects {
		result.Contents[i] = objectInfo{
			Key:          obj.Key,
			LastModified: obj.LastModified.Format(time.RFC3339),
			ETag:         `"` + obj.ETag + `"`,
			Size:         obj.Size,
			StorageClass: "STANDARD",
		}
	}

	writeXML(w, result)
}

func writeObjectHeaders(w http.ResponseWriter, obj *Object) {
	w.Header().Set("Content-Type", obj.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	w.Header().Set("ETag", `"`+obj.ETag+`"`)
	w.Header().Set("Last-Modified", obj.LastModified.Format(http.TimeFormat))
	for name, value := range obj.Metadata {
		w.Header().Set("x-amz-meta-"+name, value)
	}
}

func writeXML(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	if err := xml.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}
