package workflow

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dastankg/orimi-merchen/internal/config"
	"github.com/dastankg/orimi-merchen/internal/models"
	"github.com/dastankg/orimi-merchen/internal/provenance"
	"github.com/dastankg/orimi-merchen/internal/services"
	"github.com/dastankg/orimi-merchen/internal/storage"
	"github.com/stretchr/testify/require"
)

const (
	identity = "whatsapp:+996700123456"
	phone    = "+996700123456"
)

var errBackendDown = errors.New("backend down")

type fakeBackend struct {
	mu       sync.Mutex
	agents   map[string]*models.Agent
	agentErr error
	stores   []models.StoreRef
	storeErr error
	ids      map[string]int64
	geoOK    bool
	geoErr   error
	geoCalls int
	lookups  int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		agents: map[string]*models.Agent{phone: {ID: 7, PhoneNumber: phone, Name: "Айгуль"}},
		stores: []models.StoreRef{{ID: 3, Name: "Глобус"}, {ID: 4, Name: "Народный"}},
		ids:    map[string]int64{"Глобус": 3, "Народный": 4},
		geoOK:  true,
	}
}

func (f *fakeBackend) FindAgent(_ context.Context, p string) (*models.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	if f.agentErr != nil {
		return nil, f.agentErr
	}
	return f.agents[p], nil
}

func (f *fakeBackend) AssignedStores(context.Context, string) ([]models.StoreRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stores, f.storeErr
}

func (f *fakeBackend) ResolveStoreID(_ context.Context, name string) (*models.StoreRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.ids[name]
	if !ok {
		return nil, nil
	}
	return &models.StoreRef{ID: id, Name: name}, nil
}

func (f *fakeBackend) CheckLocation(context.Context, float64, float64, string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.geoCalls++
	return f.geoOK, f.geoErr
}

func (f *fakeBackend) forget(p string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.agents, p)
}

// fakeMedia writes a small scratch file per fetch.
type fakeMedia struct {
	dir   string
	err   error
	paths []string
}

func (m *fakeMedia) Fetch(_ context.Context, _ string, ext string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	p := filepath.Join(m.dir, time.Now().Format("150405.000000000")+ext)
	if err := os.WriteFile(p, []byte("photo"), 0o600); err != nil {
		return "", err
	}
	m.paths = append(m.paths, p)
	return p, nil
}

// fakeVerifier returns a canned result. A zero NormalizedPath echoes the input.
type fakeVerifier struct {
	result provenance.Result
	calls  int
}

func (v *fakeVerifier) Verify(_ context.Context, path, _ string) provenance.Result {
	v.calls++
	res := v.result
	if res.Accepted && res.NormalizedPath == "" {
		res.NormalizedPath = path
	}
	return res
}

type recordingSink struct {
	mu      sync.Mutex
	records []models.SubmissionRecord
	err     error
}

func (r *recordingSink) CreatePost(_ context.Context, rec models.SubmissionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return r.err
}

type harness struct {
	engine   *Engine
	store    *storage.MemoryStore
	backend  *fakeBackend
	media    *fakeMedia
	verifier *fakeVerifier
	sink     *recordingSink
	now      time.Time
}

var bishkek = time.FixedZone("Asia/Bishkek", 6*60*60)

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:    storage.NewMemoryStore(),
		backend:  newFakeBackend(),
		media:    &fakeMedia{dir: t.TempDir()},
		verifier: &fakeVerifier{result: provenance.Result{Accepted: true}},
		sink:     &recordingSink{},
		// Wednesday
		now: time.Date(2025, 6, 4, 12, 0, 0, 0, bishkek),
	}
	catalog := config.DefaultCatalog()
	engine, err := NewEngine(Deps{
		Store:       h.store,
		Directory:   h.backend,
		Assignments: h.backend,
		Stores:      h.backend,
		Geofence:    h.backend,
		Media:       h.media,
		Verifier:    h.verifier,
		Submitter:   services.NewSubmissionService(h.sink, catalog, nil),
		Catalog:     catalog,
		Location:    bishkek,
		MaxPhotoAge: 5 * time.Minute,
		Now:         func() time.Time { return h.now },
	})
	require.NoError(t, err)
	h.engine = engine
	return h
}

func (h *harness) send(t *testing.T, ev Event) []Reply {
	t.Helper()
	replies, err := h.engine.Handle(context.Background(), ev)
	require.NoError(t, err)
	return replies
}

func (h *harness) text(t *testing.T, s string) []Reply {
	t.Helper()
	return h.send(t, TextEvent(identity, s))
}

func (h *harness) session(t *testing.T) *models.Session {
	t.Helper()
	s, err := h.store.Get(context.Background(), identity)
	require.NoError(t, err)
	return s
}

func (h *harness) login(t *testing.T) {
	t.Helper()
	h.send(t, ContactEvent(identity, phone))
	require.Equal(t, models.StateAuthenticated, h.session(t).State)
}

// walkTo drives a logged-in agent up to the category prompt at Глобус.
func (h *harness) walkTo(t *testing.T, category string) {
	t.Helper()
	h.login(t)
	h.text(t, ButtonUpload)
	h.text(t, "Глобус")
	h.send(t, LocationEvent(identity, 42.87, 74.59))
	require.Equal(t, models.StateAwaitingCategory, h.session(t).State)
	if category != "" {
		h.text(t, category)
	}
}

func lastText(replies []Reply) string {
	if len(replies) == 0 {
		return ""
	}
	return replies[len(replies)-1].Text
}
