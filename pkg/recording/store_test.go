package recording

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2025, 3, 14, 9, 26, 53, 589_000_000, time.UTC)

func jsonFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var out []string
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".json" {
			out = append(out, e.Name())
		}
	}
	return out
}

func TestTimestamp(t *testing.T) {
	assert.Equal(t, "20250314_092653_589", Timestamp(baseTime))
	assert.Equal(t, "20250314_092653_000", Timestamp(baseTime.Truncate(time.Second)))
}

func TestKey_Prefix(t *testing.T) {
	assert.Equal(t, "GET_nq_nb_", Key{Method: "get"}.Prefix())
	assert.Equal(t, "POST_qp_bp_", Key{Method: "POST", HasQuery: true, HasBody: true}.Prefix())
}

func TestCapture_Recording(t *testing.T) {
	rec := Capture{
		Method:       "post",
		URI:          "/api/users?x=1",
		RequestBody:  []byte(`{"name":"a","n":1}`),
		StatusCode:   201,
		ResponseBody: []byte("created"),
	}.Recording()

	assert.Equal(t, "POST", rec.HTTPMethod)
	assert.Equal(t, map[string]any{"name": "a", "n": json.Number("1")}, rec.Request)
	assert.Equal(t, "created", rec.Response)

	empty := Capture{Method: "GET", URI: "/"}.Recording()
	assert.Nil(t, empty.Request)
	assert.Equal(t, "", empty.Response)
}

func TestStore_RecordWritesFile(t *testing.T) {
	s := NewStore(t.TempDir(), nil)

	res, err := s.Record(Capture{
		Method:       "GET",
		URI:          "/api/users?page=2",
		StatusCode:   200,
		ResponseBody: []byte(`{"users":[]}`),
		Time:         baseTime,
	}, DefaultOptions())
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	assert.Equal(t, filepath.Join(s.Root(), "api", "users", "GET_qp_nb_20250314_092653_589.json"), res.Path)

	data, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	var stored map[string]any
	require.NoError(t, json.Unmarshal(data, &stored))
	assert.Equal(t, "GET", stored["httpMethod"])
	assert.Equal(t, "/api/users?page=2", stored["uri"])
	assert.Nil(t, stored["request"])
	assert.Equal(t, float64(200), stored["httpStatus"])
	assert.Equal(t, map[string]any{"users": []any{}}, stored["response"])
}

func TestStore_RecordDecodesPath(t *testing.T) {
	s := NewStore(t.TempDir(), nil)
	res, err := s.Record(Capture{Method: "GET", URI: "/files/my%20doc", Time: baseTime}, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(s.Root(), "files", "my doc"), filepath.Dir(res.Path))
}

func TestStore_RecordRejectsTraversal(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "active"), nil)
	_, err := s.Record(Capture{Method: "GET", URI: "/../../etc", Time: baseTime}, DefaultOptions())
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestStore_RecordThenFind(t *testing.T) {
	s := NewStore(t.TempDir(), nil)
	c := Capture{
		Method:       "POST",
		URI:          "/login",
		RequestBody:  []byte(`{"user":"x"}`),
		StatusCode:   200,
		ResponseBody: []byte(`{"token":"abc","ttl":3600}`),
		Time:         baseTime,
	}
	_, err := s.Record(c, DefaultOptions())
	require.NoError(t, err)

	got, err := s.Find("POST", "/login", true)
	require.NoError(t, err)
	assert.Equal(t, c.Recording(), got)

	_, err = s.Find("POST", "/login", false)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Find("GET", "/login", true)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_FindNewestAndQuery(t *testing.T) {
	s := NewStore(t.TempDir(), nil)
	opts := DefaultOptions()

	for i, body := range []string{`"first"`, `"second"`} {
		_, err := s.Record(Capture{Method: "GET", URI: "/items", StatusCode: 200, ResponseBody: []byte(body), Time: baseTime.Add(time.Duration(i) * time.Second)}, opts)
		require.NoError(t, err)
	}
	got, err := s.Find("GET", "/items", false)
	require.NoError(t, err)
	assert.Equal(t, `"second"`, got.Response)

	for i, q := range []string{"a=1", "a=2"} {
		_, err := s.Record(Capture{Method: "GET", URI: "/items?" + q, StatusCode: 200, ResponseBody: []byte(q), Time: baseTime.Add(time.Duration(i) * time.Second)}, opts)
		require.NoError(t, err)
	}
	got, err = s.Find("GET", "/items?a=1", false)
	require.NoError(t, err)
	assert.Equal(t, "a=1", got.Response)

	_, err = s.Find("GET", "/items?a=3", false)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_DedupKeepsOne(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, nil)
	c := Capture{Method: "GET", URI: "/widgets", StatusCode: 200, ResponseBody: []byte(`{"a":1}`)}

	// Seed three identical captures written without dedup.
	noDedup := Options{}
	for i := range 3 {
		c.Time = baseTime.Add(time.Duration(i) * time.Second)
		_, err := s.Record(c, noDedup)
		require.NoError(t, err)
	}
	require.Len(t, jsonFiles(t, filepath.Join(dir, "widgets")), 3)

	c.Time = baseTime.Add(time.Minute)
	res, err := s.Record(c, DefaultOptions())
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Len(t, res.Removed, 2)

	files := jsonFiles(t, filepath.Join(dir, "widgets"))
	require.Len(t, files, 1)
	assert.Equal(t, "GET_nq_nb_20250314_092655_589.json", files[0], "the most recent duplicate survives")
}

func TestStore_DedupIgnoresDifferentResponses(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, nil)

	for i, body := range []string{`{"v":1}`, `{"v":2}`, `{"v": 1}`} {
		_, err := s.Record(Capture{Method: "GET", URI: "/v", ResponseBody: []byte(body), Time: baseTime.Add(time.Duration(i) * time.Second)}, DefaultOptions())
		require.NoError(t, err)
	}
	// The third body decodes equal to the first.
	assert.Len(t, jsonFiles(t, filepath.Join(dir, "v")), 2)
}

func TestStore_SameMillisecondDoesNotOverwrite(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, nil)
	for _, body := range []string{"a", "b", "c"} {
		_, err := s.Record(Capture{Method: "GET", URI: "/x", ResponseBody: []byte(body), Time: baseTime}, DefaultOptions())
		require.NoError(t, err)
	}
	files := jsonFiles(t, filepath.Join(dir, "x"))
	require.Len(t, files, 3)

	got, err := s.Find("GET", "/x", false)
	require.NoError(t, err)
	assert.Equal(t, "c", got.Response)
}

func TestStore_MaxRecordingsPrunes(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, nil)
	opts := Options{DeleteDuplicates: true, MaxRecordings: 2}

	for i := range 4 {
		_, err := s.Record(Capture{Method: "GET", URI: "/p", ResponseBody: []byte{byte('a' + i)}, Time: baseTime.Add(time.Duration(i) * time.Second)}, opts)
		require.NoError(t, err)
	}
	files := jsonFiles(t, filepath.Join(dir, "p"))
	assert.Equal(t, []string{"GET_nq_nb_20250314_092655_589.json", "GET_nq_nb_20250314_092656_589.json"}, files)
}

func TestStore_FindSkipsCorruptFiles(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, nil)
	_, err := s.Record(Capture{Method: "GET", URI: "/c", ResponseBody: []byte("ok"), Time: baseTime}, DefaultOptions())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c", "GET_nq_nb_20990101_000000_000.json"), []byte("{broken"), 0644))

	got, err := s.Find("GET", "/c", false)
	require.NoError(t, err)
	assert.Equal(t, "ok", got.Response)
}

func TestStore_ConcurrentIdenticalRecordsKeepOne(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, nil)
	c := Capture{Method: "GET", URI: "/race", StatusCode: 200, ResponseBody: []byte(`{"a":1}`), Time: baseTime}

	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for i := range 32 {
		wg.Add(1)
		go func(c Capture) {
			defer wg.Done()
			c.Time = c.Time.Add(time.Duration(i) * time.Millisecond)
			_, err := s.Record(c, DefaultOptions())
			errs <- err
		}(c)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.Len(t, jsonFiles(t, filepath.Join(dir, "race")), 1)
}

func TestRecording_JSONStringBodyReplaysVerbatim(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, nil)
	_, err := s.Record(Capture{Method: "GET", URI: "/status", StatusCode: 200, ResponseBody: []byte(`"ok"`), Time: baseTime}, DefaultOptions())
	require.NoError(t, err)

	got, err := s.Find("GET", "/status", false)
	require.NoError(t, err)
	body, isJSON := got.Body()
	assert.Equal(t, `"ok"`, string(body))
	assert.True(t, isJSON)

	plain := Capture{Method: "GET", URI: "/p", ResponseBody: []byte("ok")}.Recording()
	body, isJSON = plain.Body()
	assert.Equal(t, "ok", string(body))
	assert.False(t, isJSON)
}
