// Package api binds the services to their REST surface and fans
// leaderboard updates out over redis pub/sub.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/eduboard/backend/internal/assistant"
	"github.com/eduboard/backend/internal/domain"
	"github.com/eduboard/backend/internal/errors"
	"github.com/eduboard/backend/internal/event"
	"github.com/eduboard/backend/internal/identity"
	"github.com/eduboard/backend/internal/ranking"
	"github.com/eduboard/backend/internal/score"
	"github.com/eduboard/backend/internal/telemetry"
)

type Config struct {
	Engine       *gin.Engine
	EventBus     *event.Bus
	Score        *score.Service
	Ranking      *ranking.Service
	Identity     *identity.Service
	Assistant    *assistant.Client
	Redis        Redis
	PubsubPrefix string

	// AdminEnabled exposes the destructive development endpoints.
	// Leave false in production.
	AdminEnabled bool
}

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type API struct {
	ss  *score.Service
	rs  *ranking.Service
	is  *identity.Service
	as  *assistant.Client
	red Redis

	prefix string
	admin  bool
}

func New(c Config) *API {
	a := &API{
		ss:     c.Score,
		rs:     c.Ranking,
		is:     c.Identity,
		as:     c.Assistant,
		red:    c.Redis,
		prefix: c.PubsubPrefix,
		admin:  c.AdminEnabled,
	}

	a.register(c.Engine)

	c.EventBus.Subscribe(domain.EventNameLeaderboardUpdated, func(ctx context.Context, e event.Event) error {
		return a.publishLeaderboardUpdated(ctx, e.(domain.EventLeaderboardUpdated))
	})

	return a
}

func (a *API) register(e *gin.Engine) {
	v1 := e.Group("/v1")

	v1.POST("/scores", a.submitScore)
	v1.PATCH("/scores/:participantId/profile", a.updateProfile)
	v1.GET("/leaderboard", a.getFullRanking)
	v1.GET("/leaderboard/:participantId", a.getParticipantView)

	v1.POST("/users", a.createUser)
	v1.GET("/users", a.listUsers)
	v1.GET("/users/:id", a.getUser)

	v1.POST("/assistant/chat", a.chat)
	v1.POST("/assistant/analyze", a.analyze)

	// Destructive development endpoints; hidden entirely unless the
	// admin flag is on.
	if a.admin {
		v1.DELETE("/admin/leaderboard", a.clearLeaderboard)
		v1.POST("/admin/seed", a.seed)
	}
}

type scoreRecordBody struct {
	ParticipantID string `json:"participant_id"`
	DisplayName   string `json:"display_name"`
	ImageRef      string `json:"image_ref"`
	Country       string `json:"country"`
	CurrentScore  string `json:"current_score"`
	BestScore     string `json:"best_score"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

func toRecordBody(rec domain.ScoreRecord) scoreRecordBody {
	return scoreRecordBody{
		ParticipantID: rec.ParticipantID,
		DisplayName:   rec.DisplayName,
		ImageRef:      rec.ImageRef,
		Country:       rec.Country,
		CurrentScore:  rec.CurrentScore.String(),
		BestScore:     rec.BestScore.String(),
		CreatedAt:     rec.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     rec.UpdatedAt.Format(time.RFC3339),
	}
}

type submitScoreBody struct {
	ParticipantID string   `json:"participant_id" binding:"required"`
	DisplayName   string   `json:"display_name"`
	ImageRef      string   `json:"image_ref"`
	Country       string   `json:"country"`
	Score         *float64 `json:"score" binding:"required"`
}

func (a *API) submitScore(c *gin.Context) {
	var body submitScoreBody
	if err := c.ShouldBindJSON(&body); err != nil {
		a.fail(c, "submit_score", "", errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("participant_id and score are required"),
			errors.WithCause(err)))
		return
	}

	resp, err := a.ss.Submit(c.Request.Context(), score.SubmitRequest{
		ParticipantID: body.ParticipantID,
		DisplayName:   body.DisplayName,
		ImageRef:      body.ImageRef,
		Country:       body.Country,
		Score:         decimal.NewFromFloat(*body.Score),
	})
	if err != nil {
		a.fail(c, "submit_score", body.ParticipantID, err)
		return
	}

	telemetry.CountSubmission(string(resp.Outcome))

	c.JSON(http.StatusOK, gin.H{
		"outcome": resp.Outcome,
		"record":  toRecordBody(resp.Record),
	})
}

type updateProfileBody struct {
	DisplayName *string `json:"display_name"`
	ImageRef    *string `json:"image_ref"`
	Country     *string `json:"country"`
}

func (a *API) updateProfile(c *gin.Context) {
	pid := c.Param("participantId")

	var body updateProfileBody
	if err := c.ShouldBindJSON(&body); err != nil {
		a.fail(c, "update_profile", pid, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("invalid profile payload"),
			errors.WithCause(err)))
		return
	}

	rec, err := a.ss.UpdateProfile(c.Request.Context(), score.UpdateProfileRequest{
		ParticipantID: pid,
		DisplayName:   body.DisplayName,
		ImageRef:      body.ImageRef,
		Country:       body.Country,
	})
	if err != nil {
		a.fail(c, "update_profile", pid, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"record": toRecordBody(*rec)})
}

type rankedRecordBody struct {
	Rank int64 `json:"rank"`
	scoreRecordBody
}

func (a *API) getFullRanking(c *gin.Context) {
	ranked, err := a.rs.FullRanking(c.Request.Context())
	if err != nil {
		a.fail(c, "get_full_ranking", "", err)
		return
	}

	out := make([]rankedRecordBody, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, rankedRecordBody{
			Rank:            r.Rank,
			scoreRecordBody: toRecordBody(r.ScoreRecord),
		})
	}

	c.JSON(http.StatusOK, gin.H{"ranking": out})
}

type topEntryBody struct {
	Rank          int64  `json:"rank"`
	ParticipantID string `json:"participant_id"`
	DisplayName   string `json:"display_name"`
	Name          string `json:"name,omitempty"`
	Country       string `json:"country,omitempty"`
	CurrentScore  string `json:"current_score"`
	BestScore     string `json:"best_score"`
}

func (a *API) getParticipantView(c *gin.Context) {
	pid := c.Param("participantId")

	view, err := a.rs.ParticipantViewByID(c.Request.Context(), pid)
	if err != nil {
		a.fail(c, "get_participant_view", pid, err)
		return
	}

	top := make([]topEntryBody, 0, len(view.Top))
	for _, e := range view.Top {
		top = append(top, topEntryBody{
			Rank:          e.Rank,
			ParticipantID: e.ParticipantID,
			DisplayName:   e.DisplayName,
			Name:          e.Name,
			Country:       e.Country,
			CurrentScore:  e.CurrentScore,
			BestScore:     e.BestScore,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"user_data": rankedRecordBody{
			Rank:            view.UserData.Rank,
			scoreRecordBody: toRecordBody(view.UserData.ScoreRecord),
		},
		"top10": top,
	})
}

type createUserBody struct {
	ID      string `json:"id"`
	Name    string `json:"name" binding:"required"`
	Country string `json:"country"`
}

func (a *API) createUser(c *gin.Context) {
	var body createUserBody
	if err := c.ShouldBindJSON(&body); err != nil {
		a.fail(c, "create_user", "", errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("name is required"),
			errors.WithCause(err)))
		return
	}

	u, err := a.is.CreateUser(c.Request.Context(), identity.CreateUserRequest{
		ID:      body.ID,
		Name:    body.Name,
		Country: body.Country,
	})
	if err != nil {
		a.fail(c, "create_user", body.ID, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"user": toUserBody(*u)})
}

type userBody struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Country   string `json:"country,omitempty"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func toUserBody(u domain.User) userBody {
	return userBody{
		ID:        u.ID,
		Name:      u.Name,
		Country:   u.Country,
		CreatedAt: u.CreatedAt.Format(time.RFC3339),
		UpdatedAt: u.UpdatedAt.Format(time.RFC3339),
	}
}

func (a *API) getUser(c *gin.Context) {
	id := c.Param("id")

	u, err := a.is.GetUser(c.Request.Context(), id)
	if err != nil {
		a.fail(c, "get_user", id, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": toUserBody(*u)})
}

func (a *API) listUsers(c *gin.Context) {
	users, err := a.is.ListUsers(c.Request.Context())
	if err != nil {
		a.fail(c, "list_users", "", err)
		return
	}

	out := make([]userBody, 0, len(users))
	for _, u := range users {
		out = append(out, toUserBody(u))
	}

	c.JSON(http.StatusOK, gin.H{"users": out})
}

type chatBody struct {
	Message string `json:"message" binding:"required"`
}

func (a *API) chat(c *gin.Context) {
	var body chatBody
	if err := c.ShouldBindJSON(&body); err != nil {
		a.fail(c, "chat", "", errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("message is required"),
			errors.WithCause(err)))
		return
	}

	resp, err := a.as.Chat(c.Request.Context(), assistant.ChatRequest{Message: body.Message})
	if err != nil {
		a.fail(c, "chat", "", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"reply": resp.Reply})
}

type analyzeBody struct {
	Text string `json:"text" binding:"required"`
}

func (a *API) analyze(c *gin.Context) {
	var body analyzeBody
	if err := c.ShouldBindJSON(&body); err != nil {
		a.fail(c, "analyze", "", errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("text is required"),
			errors.WithCause(err)))
		return
	}

	resp, err := a.as.Analyze(c.Request.Context(), assistant.AnalyzeRequest{Text: body.Text})
	if err != nil {
		a.fail(c, "analyze", "", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"analysis": resp.Analysis})
}

func (a *API) clearLeaderboard(c *gin.Context) {
	n, err := a.ss.Clear(c.Request.Context())
	if err != nil {
		a.fail(c, "clear_leaderboard", "", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted_count": n})
}

type seedBody struct {
	Count int `json:"count"`
}

func (a *API) seed(c *gin.Context) {
	var body seedBody
	if err := c.ShouldBindJSON(&body); err != nil || body.Count <= 0 {
		body.Count = 25
	}

	ids, err := a.ss.Seed(c.Request.Context(), score.SeedRequest{Count: body.Count})
	if err != nil {
		a.fail(c, "seed", "", err)
		return
	}

	users, err := a.is.Seed(c.Request.Context(), ids)
	if err != nil {
		a.fail(c, "seed", "", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"seeded_records": len(ids), "seeded_users": users})
}

// fail logs the failure with its operation context, then answers with
// the mapped status. Internal detail stays out of the response body.
func (a *API) fail(c *gin.Context, op, participantID string, err error) {
	e := errors.Convert(err)

	// NotFound is a normal control-flow outcome for rank lookups; only
	// real failures are logged as errors.
	switch e.Code {
	case errors.CodeNotFound, errors.CodeInvalidArgument, errors.CodeAlreadyExists:
		slog.InfoContext(c.Request.Context(), "api: request rejected",
			"operation", op, "participant", participantID, "code", int(e.Code))
	default:
		slog.ErrorContext(c.Request.Context(), "api: request failed",
			"operation", op, "participant", participantID, "error", err)
	}

	msg := e.Message
	if e.Code == errors.CodeInternal || e.Code == errors.CodeUnavailable {
		msg = "internal error"
		if e.Code == errors.CodeUnavailable {
			msg = "temporarily unavailable, retry later"
		}
	}

	c.JSON(e.HTTPStatusCode(), gin.H{"code": int(e.Code), "message": msg})
}
