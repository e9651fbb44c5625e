package telegram

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nat-king-15/Master-Extractor-Bot/pkg/config"
	"github.com/nat-king-15/Master-Extractor-Bot/pkg/httpclient"
	"github.com/nat-king-15/Master-Extractor-Bot/pkg/manifest"
	"github.com/nat-king-15/Master-Extractor-Bot/pkg/registry"
	"github.com/nat-king-15/Master-Extractor-Bot/pkg/session"
	"github.com/nat-king-15/Master-Extractor-Bot/pkg/types"
)

// recordStore is an in-memory Store that records mutations.
type recordStore struct {
	apis           map[string]string
	premium        map[int64]time.Time
	removedPremium []int64
	removedAPIs    []string
}

func newRecordStore() *recordStore {
	return &recordStore{
		apis:    make(map[string]string),
		premium: make(map[int64]time.Time),
	}
}

func (s *recordStore) AddSubscriber(ctx context.Context, userID int64) error { return nil }
func (s *recordStore) Subscribers(ctx context.Context) ([]int64, error)      { return nil, nil }
func (s *recordStore) SetPremium(ctx context.Context, userID int64, until time.Time) error {
	s.premium[userID] = until
	return nil
}
func (s *recordStore) IsPremium(ctx context.Context, userID int64) (bool, error) {
	_, ok := s.premium[userID]
	return ok, nil
}
func (s *recordStore) RemovePremium(ctx context.Context, userID int64) error {
	delete(s.premium, userID)
	s.removedPremium = append(s.removedPremium, userID)
	return nil
}
func (s *recordStore) SaveBackup(context.Context, int64, string, *manifest.Manifest) error {
	return nil
}
func (s *recordStore) ListBackups(context.Context, int64) ([]string, error) { return nil, nil }
func (s *recordStore) GetBackup(context.Context, int64, string) (*manifest.Manifest, error) {
	return nil, fmt.Errorf("not found")
}
func (s *recordStore) SetAppxAPI(ctx context.Context, appName, apiURL string) error {
	s.apis[appName] = apiURL
	return nil
}
func (s *recordStore) GetAppxAPI(ctx context.Context, appName string) (string, error) {
	return s.apis[appName], nil
}
func (s *recordStore) ListAppxAPIs(ctx context.Context) (map[string]string, error) {
	return s.apis, nil
}
func (s *recordStore) DeleteAppxAPI(ctx context.Context, appName string) error {
	delete(s.apis, appName)
	s.removedAPIs = append(s.removedAPIs, appName)
	return nil
}
func (s *recordStore) Close() error { return nil }

// newTestBot wires a bot against a Bot API stub that acknowledges
// every call.
func newTestBot(t *testing.T, st *recordStore) *Bot {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ok":true,"result":{"message_id":1}}`)
	}))
	t.Cleanup(srv.Close)

	log := testLogger()
	api := &API{client: httpclient.New(log), log: log, base: srv.URL + "/bottest"}
	cfg := &config.Config{OwnerID: 99}
	return New(cfg, api, st, registry.NewExtractorRegistry(), session.NewManager(), nil, log)
}

func adminUpdate(text string) types.Update {
	return types.Update{ChatID: 99, UserID: 99, Text: text}
}

func TestAddPremiumRemoveSubcommand(t *testing.T) {
	st := newRecordStore()
	st.premium[1234] = time.Now().Add(24 * time.Hour)
	b := newTestBot(t, st)

	b.dispatch(context.Background(), adminUpdate("/addpremium remove 1234"))

	if len(st.removedPremium) != 1 || st.removedPremium[0] != 1234 {
		t.Fatalf("removedPremium = %v, want [1234]", st.removedPremium)
	}
	if _, still := st.premium[1234]; still {
		t.Error("user 1234 still premium after removal")
	}
}

func TestAddPremiumGrant(t *testing.T) {
	st := newRecordStore()
	b := newTestBot(t, st)

	b.dispatch(context.Background(), adminUpdate("/addpremium 555 30"))

	until, ok := st.premium[555]
	if !ok {
		t.Fatal("user 555 was not granted premium")
	}
	if d := time.Until(until); d < 29*24*time.Hour || d > 31*24*time.Hour {
		t.Errorf("premium expiry %s away, want about 30 days", d)
	}
}

func TestAddAPIRemoveSubcommand(t *testing.T) {
	st := newRecordStore()
	st.apis["myapp"] = "https://myapp.example.com"
	b := newTestBot(t, st)

	b.dispatch(context.Background(), adminUpdate("/addapi remove myapp"))

	if len(st.removedAPIs) != 1 || st.removedAPIs[0] != "myapp" {
		t.Fatalf("removedAPIs = %v, want [myapp]", st.removedAPIs)
	}
	if _, still := st.apis["myapp"]; still {
		t.Error("myapp still registered after removal")
	}
}

func TestAdminCommandsRefuseNonAdmins(t *testing.T) {
	st := newRecordStore()
	st.premium[1234] = time.Now().Add(24 * time.Hour)
	b := newTestBot(t, st)

	upd := types.Update{ChatID: 7, UserID: 7, Text: "/addpremium remove 1234"}
	b.dispatch(context.Background(), upd)

	if len(st.removedPremium) != 0 {
		t.Errorf("non-admin removal went through: %v", st.removedPremium)
	}
}
