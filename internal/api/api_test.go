package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/eduboard/backend/internal/api"
	"github.com/eduboard/backend/internal/assistant"
	"github.com/eduboard/backend/internal/domain"
	"github.com/eduboard/backend/internal/event"
	"github.com/eduboard/backend/internal/ranking"
	"github.com/eduboard/backend/internal/score"
	"github.com/eduboard/backend/internal/store"
)

type fakeIdentity struct {
	users map[string]domain.User
}

func (f *fakeIdentity) Lookup(_ context.Context, ids []string) (map[string]domain.User, error) {
	m := make(map[string]domain.User)
	for _, id := range ids {
		if u, ok := f.users[id]; ok {
			m[id] = u
		}
	}
	return m, nil
}

type testAPI struct {
	engine *gin.Engine
	eb     *event.Bus
}

func makeAPI(t *testing.T, adminEnabled bool) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	rs := miniredis.RunT(t)
	rc := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{rs.Addr()},
	})
	require.NoError(t, rc.Ping(ctx).Err())

	eb := event.NewBus()
	mem := store.NewMemory()

	ss := score.NewService(score.Config{
		EventBus: eb,
		Store:    mem,
	})

	rank := ranking.NewService(ranking.Config{
		EventBus: eb,
		Store:    mem,
		Identity: &fakeIdentity{users: map[string]domain.User{}},
		Redis:    rc,
		Prefix:   "test",
	})

	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`))
	}))
	t.Cleanup(provider.Close)

	e := gin.New()
	api.New(api.Config{
		Engine:       e,
		EventBus:     eb,
		Score:        ss,
		Ranking:      rank,
		Assistant:    assistant.NewClient(assistant.Config{BaseURL: provider.URL}),
		Redis:        rc,
		PubsubPrefix: "test:pubsub",
		AdminEnabled: adminEnabled,
	})

	return &testAPI{engine: e, eb: eb}
}

func (a *testAPI) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)
	return w
}

func TestAPI_SubmitScore_Scenario(t *testing.T) {
	a := makeAPI(t, false)

	type result struct {
		Outcome string `json:"outcome"`
		Record  struct {
			CurrentScore string `json:"current_score"`
			BestScore    string `json:"best_score"`
		} `json:"record"`
	}

	submit := func(body string) result {
		w := a.do(t, http.MethodPost, "/v1/scores", body)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var res result
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
		return res
	}

	res := submit(`{"participant_id":"u1","display_name":"Aliya","score":100}`)
	require.Equal(t, "created", res.Outcome)
	require.Equal(t, "100", res.Record.BestScore)

	res = submit(`{"participant_id":"u1","score":80}`)
	require.Equal(t, "not_improved", res.Outcome)
	require.Equal(t, "80", res.Record.CurrentScore)
	require.Equal(t, "100", res.Record.BestScore)

	res = submit(`{"participant_id":"u1","score":150}`)
	require.Equal(t, "updated", res.Outcome)
	require.Equal(t, "150", res.Record.CurrentScore)
	require.Equal(t, "150", res.Record.BestScore)
}

func TestAPI_SubmitScore_Validation(t *testing.T) {
	a := makeAPI(t, false)

	w := a.do(t, http.MethodPost, "/v1/scores", `{"score":10}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(t, http.MethodPost, "/v1/scores", `{"participant_id":"u1"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAPI_GetFullRanking(t *testing.T) {
	a := makeAPI(t, false)

	for _, body := range []string{
		`{"participant_id":"u1","score":50}`,
		`{"participant_id":"u2","score":200}`,
		`{"participant_id":"u3","score":200}`,
	} {
		w := a.do(t, http.MethodPost, "/v1/scores", body)
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := a.do(t, http.MethodGet, "/v1/leaderboard", "")
	require.Equal(t, http.StatusOK, w.Code)

	var res struct {
		Ranking []struct {
			Rank          int64  `json:"rank"`
			ParticipantID string `json:"participant_id"`
		} `json:"ranking"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.Len(t, res.Ranking, 3)

	// Ties break deterministically: u3 before u2, u1 last.
	require.Equal(t, "u3", res.Ranking[0].ParticipantID)
	require.Equal(t, "u2", res.Ranking[1].ParticipantID)
	require.Equal(t, "u1", res.Ranking[2].ParticipantID)
	require.EqualValues(t, 3, res.Ranking[2].Rank)
}

func TestAPI_GetParticipantView(t *testing.T) {
	a := makeAPI(t, false)

	for _, body := range []string{
		`{"participant_id":"u1","score":100}`,
		`{"participant_id":"u2","score":300}`,
	} {
		w := a.do(t, http.MethodPost, "/v1/scores", body)
		require.Equal(t, http.StatusOK, w.Code)
	}
	a.eb.Stop()

	w := a.do(t, http.MethodGet, "/v1/leaderboard/u1", "")
	require.Equal(t, http.StatusOK, w.Code)

	var res struct {
		UserData struct {
			Rank          int64  `json:"rank"`
			ParticipantID string `json:"participant_id"`
		} `json:"user_data"`
		Top10 []struct {
			ParticipantID string `json:"participant_id"`
		} `json:"top10"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.EqualValues(t, 2, res.UserData.Rank)
	require.Len(t, res.Top10, 2)

	w = a.do(t, http.MethodGet, "/v1/leaderboard/ghost", "")
	require.Equal(t, http.StatusNotFound, w.Code, "unknown participant is NotFound, never a partial view")
}

func TestAPI_UpdateProfile(t *testing.T) {
	a := makeAPI(t, false)

	w := a.do(t, http.MethodPost, "/v1/scores", `{"participant_id":"u1","display_name":"Old","score":10}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = a.do(t, http.MethodPatch, "/v1/scores/u1/profile", `{"display_name":"New"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var res struct {
		Record struct {
			DisplayName string `json:"display_name"`
			BestScore   string `json:"best_score"`
		} `json:"record"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.Equal(t, "New", res.Record.DisplayName)
	require.Equal(t, "10", res.Record.BestScore)
}

func TestAPI_AdminGate(t *testing.T) {
	a := makeAPI(t, false)

	w := a.do(t, http.MethodDelete, "/v1/admin/leaderboard", "")
	require.Equal(t, http.StatusNotFound, w.Code, "admin routes are hidden when the flag is off")

	w = a.do(t, http.MethodPost, "/v1/admin/seed", `{"count":5}`)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestAPI_ClearLeaderboard(t *testing.T) {
	a := makeAPI(t, true)

	for _, body := range []string{
		`{"participant_id":"u1","score":50}`,
		`{"participant_id":"u2","score":60}`,
	} {
		w := a.do(t, http.MethodPost, "/v1/scores", body)
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := a.do(t, http.MethodDelete, "/v1/admin/leaderboard", "")
	require.Equal(t, http.StatusOK, w.Code)

	var res struct {
		DeletedCount int64 `json:"deleted_count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.EqualValues(t, 2, res.DeletedCount)

	w = a.do(t, http.MethodGet, "/v1/leaderboard", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"ranking":[]`)
}

func TestAPI_AssistantChat(t *testing.T) {
	a := makeAPI(t, false)

	w := a.do(t, http.MethodPost, "/v1/assistant/chat", `{"message":"explain my rank"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"reply":"ok"`)

	w = a.do(t, http.MethodPost, "/v1/assistant/chat", `{}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
}
