package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/abduss/picvault/internal/remote"
	"github.com/gin-gonic/gin"
)

const readinessTimeout = 5 * time.Second

type pinger interface {
	Ping(ctx context.Context) error
}

type repositoryChecker interface {
	GetRepository(ctx context.Context, owner, repo string) (remote.Repository, error)
}

func registerHealthRoutes(router *gin.Engine, deps Dependencies) {
	router.GET("/health/live", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/health/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
		defer cancel()

		if deps.DB != nil {
			if err := deps.DB.Ping(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status":    "degraded",
					"component": "postgres",
					"error":     err.Error(),
				})
				return
			}
		}

		if err := checkStore(ctx, deps); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":    "degraded",
				"component": "store",
				"error":     err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

// checkStore probes the vault repository. A missing vault still proves the
// store is reachable and the credentials are accepted.
func checkStore(ctx context.Context, deps Dependencies) error {
	if deps.Store == nil {
		return nil
	}
	_, err := deps.Store.GetRepository(ctx, deps.Config.Storage.Owner, deps.Config.Storage.VaultRepo)
	if errors.Is(err, remote.ErrNotFound) {
		return nil
	}
	return err
}
