package middleware

import (
	"github.com/MicahParks/keyfunc/v3"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/rabbitmq/amqp091-go"

	"github.com/cleargate-io/cleargate/pkg/store"
	pgstore "github.com/cleargate-io/cleargate/pkg/store/pgx"
)

type AppUser struct {
	UserID      int64
	Role        string
	Permissions []string
}

// App bundles the shared dependencies handlers reach through the request
// context. Store is the graph read backend (Postgres or Neo4j); Jobs is
// always the Postgres store, screening jobs live there regardless of the
// graph backend.
type App struct {
	DBConn         *pgxpool.Pool
	Store          store.GraphReader
	Jobs           *pgstore.Store
	Queue          *amqp091.Channel
	Key            *keyfunc.Keyfunc
	S3             *s3.Client
	MasterAPIKey   string
	MasterUserID   int64
	MasterUserRole string
}

type AppContext struct {
	echo.Context
	App  *App
	User *AppUser
}

func AppContextMiddleware(app *App) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc := &AppContext{c, app, nil}
			return next(cc)
		}
	}
}
