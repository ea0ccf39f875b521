package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/domain/entity"
)

// HeaderUserID carries the id of the calling user
const HeaderUserID = "X-User-ID"

const actorKey = "actor"

// actorMiddleware resolves the caller from HeaderUserID. Requests from
// unknown users are rejected with 403.
func actorMiddleware(users port.UserRepository, logger Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(HeaderUserID)
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			c.AbortWithStatusJSON(http.StatusForbidden, Response{
				Success: false,
				Error:   "missing or invalid " + HeaderUserID + " header",
			})
			return
		}

		user, err := users.GetByID(c.Request.Context(), id)
		if err != nil {
			logger.Error("Failed to resolve user", "user_id", id, "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, Response{
				Success: false,
				Error:   "internal error",
			})
			return
		}
		if user == nil {
			c.AbortWithStatusJSON(http.StatusForbidden, Response{
				Success: false,
				Error:   "unknown user",
			})
			return
		}

		c.Set(actorKey, entity.ActorFromUser(user))
		c.Next()
	}
}

func actorFrom(c *gin.Context) entity.Actor {
	if v, ok := c.Get(actorKey); ok {
		if actor, ok := v.(entity.Actor); ok {
			return actor
		}
	}
	return entity.Actor{}
}
