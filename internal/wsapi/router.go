package wsapi

import (
	"net/http"

	"dstore/internal/restapi"

	"github.com/sirupsen/logrus"
)

// NewHandler builds an http.Handler that upgrades every request to the
// wsapi command protocol — the one route this front-end needs, mounted
// directly on a *http.ServeMux or gorilla mux by the caller.
func NewHandler(manager *restapi.Manager, log *logrus.Logger) http.Handler {
	return NewServer(manager, log)
}
