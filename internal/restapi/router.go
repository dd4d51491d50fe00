package restapi

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// NewRouter builds a gin.Engine with Logger/Recovery middleware and every
// route from Handler.Register mounted, the way the teacher's cmd/server
// assembles its router.
func NewRouter(manager *Manager, log *logrus.Logger) *gin.Engine {
	if log == nil {
		log = logrus.New()
	}

	r := gin.New()
	r.Use(RequestID(), Logger(log), Recovery(log))

	NewHandler(manager, log).Register(r)
	return r
}
