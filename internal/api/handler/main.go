package handler

import (
	"net/http"

	"github.com/hiendaovinh/toolkit/pkg/httpx-echo"
	"github.com/labstack/echo-contrib/pprof"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/samber/do"

	"guildhall/internal/services"
)

type Config struct {
	Container *do.Injector
	Mode      string
	Origins   []string
}

func New(cfg *Config) (http.Handler, error) {
	r := echo.New()
	r.Pre(middleware.RemoveTrailingSlash())
	if cfg.Mode == "debug" {
		r.Debug = true
		pprof.Register(r)
	}

	r.JSONSerializer = httpx.SegmentJSONSerializer{}
	r.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "${time_rfc3339}\t${method}\t${uri}\t${status}\t${latency_human}\n",
	}))
	r.Use(middleware.Recover())

	r.GET("", func(c echo.Context) error {
		return c.String(http.StatusOK, "guild hall")
	})

	routesAPIv1 := r.Group("/api/v1")
	{
		authentication, err := do.Invoke[*services.Authentication](cfg.Container)
		if err != nil {
			return nil, err
		}
		cors := middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins:     cfg.Origins,
			AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
			AllowCredentials: true,
			MaxAge:           60 * 60,
		})

		routesAPIv1.Use(cors)
		routesAPIv1.Use(Authn(authentication)) // Authn will NOT terminate unauthenticated request.
		routesAPIv1.GET("", Hello)

		u := groupUser{cfg.Container}
		routesAPIv1.GET("/me", u.Me)
		routesAPIv1.PATCH("/me", u.UpdateMe)
		routesAPIv1.GET("/me/points", u.Points)

		q := groupQuest{cfg.Container}
		routesAPIv1.GET("/quests", q.List)
		routesAPIv1.GET("/quests/:id", q.Show)
		routesAPIv1.POST("/quests/:id/accept", q.Accept)

		routesAPIv1UserQuest := routesAPIv1.Group("/user-quests")
		{
			uq := groupUserQuest{cfg.Container}
			routesAPIv1UserQuest.GET("", uq.List)
			routesAPIv1UserQuest.GET("/:id", uq.Show)
			routesAPIv1UserQuest.POST("/:id/abandon", uq.Abandon)
			routesAPIv1UserQuest.POST("/:id/claim", uq.Claim)
			routesAPIv1UserQuest.POST("/:id/extension", uq.RequestExtension)
		}

		routesAPIv1UserObjective := routesAPIv1.Group("/user-objectives")
		{
			uo := groupUserObjective{cfg.Container}
			routesAPIv1UserObjective.POST("/:id/evidence", uo.SubmitEvidence)
			routesAPIv1UserObjective.POST("/:id/complete", uo.Complete)
			routesAPIv1UserObjective.POST("/:id/uncheck", uo.Uncheck)
		}

		l := groupLeaderboard{cfg.Container}
		routesAPIv1.GET("/leaderboard/overall", l.GetOverallLeaderboard)
		routesAPIv1.GET("/leaderboard/weekly", l.GetWeeklyLeaderboard)

		n := groupNotification{cfg.Container}
		routesAPIv1.GET("/notifications", n.List)
		routesAPIv1.DELETE("/notifications", n.Clear)
		routesAPIv1.POST("/notifications/telegram", n.LinkTelegram)

		routesAPIv1GM := routesAPIv1.Group("/gm")
		{
			gm := groupGM{cfg.Container}
			routesAPIv1GM.GET("/quests", gm.ListQuests)
			routesAPIv1GM.POST("/quests", gm.CreateQuest)
			routesAPIv1GM.PATCH("/quests/:id", gm.UpdateQuest)
			routesAPIv1GM.POST("/quests/:id/status", gm.SetQuestStatus)
			routesAPIv1GM.POST("/quests/:id/badge", gm.UploadBadge)

			routesAPIv1GM.GET("/submissions", gm.ListSubmissions)
			routesAPIv1GM.POST("/user-objectives/:id/review", gm.ReviewSubmission)

			routesAPIv1GM.GET("/completions", gm.ListCompletions)
			routesAPIv1GM.POST("/user-quests/:id/review", gm.ReviewCompletion)

			routesAPIv1GM.GET("/extensions", gm.ListExtensions)
			routesAPIv1GM.POST("/user-quests/:id/extension", gm.DecideExtension)
		}

		routesAPIv1Admin := routesAPIv1.Group("/admin")
		{
			admin := groupAdmin{cfg.Container}
			routesAPIv1Admin.GET("/configs", admin.ListConfigs)
			routesAPIv1Admin.PUT("/configs/:key", admin.SetConfig)
			routesAPIv1Admin.POST("/roles", admin.SetRole)
		}
	}

	return r, nil
}

func Hello(c echo.Context) error {
	return httpx.RestAbort(c, "hello adventurer", nil)
}
