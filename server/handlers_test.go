package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"sync"
	"testing"

	"TrackForge/config"
	"TrackForge/core/engine"
	"TrackForge/core/mix"
	"TrackForge/model"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memTrackRepo struct {
	mu     sync.Mutex
	nextID int64
	tracks map[int64]*model.AudioTrack
}

func newMemTrackRepo() *memTrackRepo {
	return &memTrackRepo{nextID: 1, tracks: make(map[int64]*model.AudioTrack)}
}

func (r *memTrackRepo) Create(_ context.Context, track *model.AudioTrack) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	track.ID = r.nextID
	r.nextID++
	track.Status = model.StatusUploaded
	cp := *track
	r.tracks[track.ID] = &cp
	return track.ID, nil
}

func (r *memTrackRepo) GetByID(_ context.Context, id int64) (*model.AudioTrack, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	track, ok := r.tracks[id]
	if !ok {
		return nil, model.ErrTrackNotFound
	}
	cp := *track
	return &cp, nil
}

func (r *memTrackRepo) Update(_ context.Context, id int64, patch *model.TrackPatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	track, ok := r.tracks[id]
	if !ok {
		return model.ErrTrackNotFound
	}
	if patch.Status != nil {
		track.Status = *patch.Status
	}
	if patch.DurationSeconds != nil {
		track.DurationSeconds = *patch.DurationSeconds
	}
	if patch.BPM != nil {
		track.BPM = *patch.BPM
	}
	if patch.MusicalKey != nil {
		track.MusicalKey = *patch.MusicalKey
	}
	if patch.Format != nil {
		track.Format = *patch.Format
	}
	if patch.Bitrate != nil {
		track.Bitrate = *patch.Bitrate
	}
	if patch.Settings != nil {
		track.Settings = *patch.Settings
	}
	return nil
}

func (r *memTrackRepo) ListByOwner(_ context.Context, ownerID int64) ([]*model.AudioTrack, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*model.AudioTrack{}
	for _, track := range r.tracks {
		if track.OwnerID == ownerID {
			cp := *track
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memTrackRepo) ClearAll(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := int64(len(r.tracks))
	r.tracks = make(map[int64]*model.AudioTrack)
	return count, nil
}

func (r *memTrackRepo) CompareAndSetProcessing(_ context.Context, id int64, settings model.MixSettings) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	track, ok := r.tracks[id]
	if !ok {
		return false, model.ErrTrackNotFound
	}
	if track.Status == model.StatusProcessing {
		return false, nil
	}
	track.Status = model.StatusProcessing
	track.Settings = settings
	return true, nil
}

type memVersionRepo struct {
	mu       sync.Mutex
	versions map[int64][]*model.MixVersion
}

func newMemVersionRepo() *memVersionRepo {
	return &memVersionRepo{versions: make(map[int64][]*model.MixVersion)}
}

func (r *memVersionRepo) Append(_ context.Context, trackID int64, version *model.MixVersion) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing := r.versions[trackID]
	if len(existing) >= model.MaxVersions {
		return 0, model.ErrCapacityExceeded
	}
	version.TrackID = trackID
	version.Idx = len(existing)
	r.versions[trackID] = append(existing, version)
	return version.Idx, nil
}

func (r *memVersionRepo) List(_ context.Context, trackID int64) ([]*model.MixVersion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*model.MixVersion{}, r.versions[trackID]...), nil
}

func (r *memVersionRepo) Get(_ context.Context, trackID int64, idx int) (*model.MixVersion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.versions[trackID]
	if idx < 0 || idx >= len(list) {
		return nil, model.ErrVersionNotFound
	}
	return list[idx], nil
}

func (r *memVersionRepo) CountByTrack(_ context.Context, trackID int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.versions[trackID]), nil
}

func (r *memVersionRepo) ClearAll(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, list := range r.versions {
		count += int64(len(list))
	}
	r.versions = make(map[int64][]*model.MixVersion)
	return count, nil
}

type memBlobStore struct {
	mu      sync.Mutex
	objects map[string]bool
}

func newMemBlobStore() *memBlobStore {
	return &memBlobStore{objects: make(map[string]bool)}
}

func (s *memBlobStore) Upload(_ context.Context, objectPath string, _ io.Reader, _ int64, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[objectPath] = true
	return nil
}

func (s *memBlobStore) UploadFile(_ context.Context, objectPath, _, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[objectPath] = true
	return nil
}

func (s *memBlobStore) Download(_ context.Context, _, _ string) error { return nil }

func (s *memBlobStore) Remove(_ context.Context, objectPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, objectPath)
	return nil
}

type stubEngine struct {
	mu      sync.Mutex
	calls   int
	fail    bool
	blocked chan struct{}
}

func (e *stubEngine) Generate(_ context.Context, _, outputPath string, _ model.MixSettings) (*engine.Result, error) {
	e.mu.Lock()
	e.calls++
	blocked := e.blocked
	e.mu.Unlock()
	if blocked != nil {
		<-blocked
	}
	if e.fail {
		return nil, fmt.Errorf("%w: stems unavailable", model.ErrEngineFailure)
	}
	return &engine.Result{
		ArtifactPath:    outputPath,
		DurationSeconds: 240,
		BPM:             124,
		MusicalKey:      "G major",
		Format:          "mp3",
		Bitrate:         320000,
	}, nil
}

type apiFixture struct {
	router   *mux.Router
	tracks   *memTrackRepo
	versions *memVersionRepo
	store    *memBlobStore
	eng      *stubEngine
	coord    *mix.Coordinator
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	f := &apiFixture{
		tracks:   newMemTrackRepo(),
		versions: newMemVersionRepo(),
		store:    newMemBlobStore(),
		eng:      &stubEngine{},
	}
	hub := mix.NewEventHub()
	f.coord = mix.NewCoordinator(f.tracks, f.versions, f.eng, f.store, hub, nil, t.TempDir())
	handler := NewAPIHandler(f.tracks, f.versions, f.coord, f.store, hub, &config.Config{})
	f.router = mux.NewRouter()
	handler.RegisterRoutes(f.router)
	return f
}

func (f *apiFixture) do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func (f *apiFixture) uploadTrack(t *testing.T) int64 {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="trackFile"; filename="night_drive.mp3"`)
	header.Set("Content-Type", "audio/mpeg")
	part, err := writer.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write([]byte("ID3fake-mp3-bytes"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("X-Owner-ID", "7")

	rr := f.do(req)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var resp struct {
		TrackID int64 `json:"trackId"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp.TrackID
}

func TestUploadCreatesTrack(t *testing.T) {
	f := newAPIFixture(t)
	id := f.uploadTrack(t)

	track, err := f.tracks.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusUploaded, track.Status)
	assert.Equal(t, "night_drive.mp3", track.OriginalFilename)
	assert.Equal(t, model.MetadataUnknown, track.Format)
	assert.Equal(t, model.MetadataUnknown, track.MusicalKey)
	assert.True(t, f.store.objects[track.OriginalPath], "audio bytes must land in the blob store")
}

func TestUploadRejectsNonAudio(t *testing.T) {
	f := newAPIFixture(t)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="trackFile"; filename="notes.txt"`)
	header.Set("Content-Type", "text/plain")
	part, err := writer.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write([]byte("not audio"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("X-Owner-ID", "7")

	rr := f.do(req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestUploadRequiresOwner(t *testing.T) {
	f := newAPIFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/api/upload", nil)
	rr := f.do(req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestGetTrackNotFound(t *testing.T) {
	f := newAPIFixture(t)
	rr := f.do(httptest.NewRequest(http.MethodGet, "/api/tracks/99", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestExtendLifecycle(t *testing.T) {
	f := newAPIFixture(t)
	id := f.uploadTrack(t)

	payload := bytes.NewBufferString(`{"introLengthBars": 8, "beatDetection": "librosa"}`)
	rr := f.do(httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/tracks/%d/extend", id), payload))
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())

	var submit struct {
		Accepted bool  `json:"accepted"`
		TrackID  int64 `json:"trackId"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &submit))
	assert.True(t, submit.Accepted)
	assert.Equal(t, id, submit.TrackID)

	f.coord.Wait()

	rr = f.do(httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/tracks/%d/status", id), nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var status struct {
		Status       model.TrackStatus `json:"status"`
		VersionCount int               `json:"versionCount"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))
	assert.Equal(t, model.StatusCompleted, status.Status)
	assert.Equal(t, 1, status.VersionCount)

	// Polling is idempotent: a second read observes the same truth.
	rr2 := f.do(httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/tracks/%d/status", id), nil))
	require.Equal(t, http.StatusOK, rr2.Code)
	assert.JSONEq(t, rr.Body.String(), rr2.Body.String())

	rr = f.do(httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/tracks/%d/versions", id), nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var versions []model.MixVersion
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &versions))
	require.Len(t, versions, 1)
	assert.Equal(t, 0, versions[0].Idx)

	rr = f.do(httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/tracks/%d/versions/0", id), nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = f.do(httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/tracks/%d/versions/1", id), nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestExtendUnknownTrack(t *testing.T) {
	f := newAPIFixture(t)
	rr := f.do(httptest.NewRequest(http.MethodPost, "/api/tracks/404/extend", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestExtendInvalidSettings(t *testing.T) {
	f := newAPIFixture(t)
	id := f.uploadTrack(t)

	payload := bytes.NewBufferString(`{"introLengthBars": 200}`)
	rr := f.do(httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/tracks/%d/extend", id), payload))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestExtendConflictWhileProcessing(t *testing.T) {
	f := newAPIFixture(t)
	id := f.uploadTrack(t)
	f.eng.blocked = make(chan struct{})

	rr := f.do(httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/tracks/%d/extend", id), nil))
	require.Equal(t, http.StatusAccepted, rr.Code)

	rr = f.do(httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/tracks/%d/extend", id), nil))
	require.Equal(t, http.StatusConflict, rr.Code)

	var resp struct {
		Accepted bool   `json:"accepted"`
		Reason   string `json:"reason"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.False(t, resp.Accepted)
	assert.Equal(t, "alreadyProcessing", resp.Reason)

	close(f.eng.blocked)
	f.coord.Wait()
}

func TestExtendCapacityExceeded(t *testing.T) {
	f := newAPIFixture(t)
	id := f.uploadTrack(t)

	for i := 0; i < model.MaxVersions; i++ {
		rr := f.do(httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/tracks/%d/extend", id), nil))
		require.Equal(t, http.StatusAccepted, rr.Code)
		f.coord.Wait()
	}

	rr := f.do(httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/tracks/%d/extend", id), nil))
	require.Equal(t, http.StatusConflict, rr.Code)

	var resp struct {
		Reason string `json:"reason"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "capacityExceeded", resp.Reason)
}

func TestStatusAfterFailure(t *testing.T) {
	f := newAPIFixture(t)
	id := f.uploadTrack(t)
	f.eng.fail = true

	rr := f.do(httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/tracks/%d/extend", id), nil))
	require.Equal(t, http.StatusAccepted, rr.Code)
	f.coord.Wait()

	rr = f.do(httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/tracks/%d/status", id), nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var status struct {
		Status       model.TrackStatus `json:"status"`
		VersionCount int               `json:"versionCount"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))
	assert.Equal(t, model.StatusFailed, status.Status)
	assert.Equal(t, 0, status.VersionCount)
}

func TestListTracksByOwner(t *testing.T) {
	f := newAPIFixture(t)
	f.uploadTrack(t)
	f.uploadTrack(t)

	req := httptest.NewRequest(http.MethodGet, "/api/tracks", nil)
	req.Header.Set("X-Owner-ID", "7")
	rr := f.do(req)
	require.Equal(t, http.StatusOK, rr.Code)

	var tracks []model.AudioTrack
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &tracks))
	assert.Len(t, tracks, 2)

	req = httptest.NewRequest(http.MethodGet, "/api/tracks", nil)
	req.Header.Set("X-Owner-ID", "8")
	rr = f.do(req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &tracks))
	assert.Empty(t, tracks)
}

func TestClearTracks(t *testing.T) {
	f := newAPIFixture(t)
	id := f.uploadTrack(t)

	rr := f.do(httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/tracks/%d/extend", id), nil))
	require.Equal(t, http.StatusAccepted, rr.Code)
	f.coord.Wait()

	rr = f.do(httptest.NewRequest(http.MethodDelete, "/api/tracks", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var resp map[string]int64
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, int64(1), resp["removedTracks"])
	assert.Equal(t, int64(1), resp["removedVersions"])

	rr = f.do(httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/tracks/%d", id), nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
