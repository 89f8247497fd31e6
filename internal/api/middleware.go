package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"reward-service/internal/models"
	"reward-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const actorContextKey = "actor"

// actorClaims are the JWT claims the auth service issues.
type actorClaims struct {
	Admin bool `json:"admin,omitempty"`
	jwt.RegisteredClaims
}

// actorMiddleware resolves the caller into an explicit Actor: a bearer token
// yields an authenticated account, an X-Device-ID header yields a guest.
// Handlers that require authentication call requireAccount on top.
func actorMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if strings.HasPrefix(authHeader, "Bearer ") {
			tokenStr := strings.TrimPrefix(authHeader, "Bearer ")

			claims := &actorClaims{}
			token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
				}
				return []byte(jwtSecret), nil
			})
			if err != nil || !token.Valid {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
				return
			}

			accountID, err := uuid.Parse(claims.Subject)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid subject"})
				return
			}

			c.Set(actorContextKey, models.Actor{AccountID: accountID, Admin: claims.Admin})
			c.Next()
			return
		}

		if deviceID := c.GetHeader("X-Device-ID"); deviceID != "" {
			c.Set(actorContextKey, models.Actor{DeviceID: deviceID})
			c.Next()
			return
		}

		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing credentials"})
	}
}

func getActor(c *gin.Context) models.Actor {
	if v, ok := c.Get(actorContextKey); ok {
		if actor, ok := v.(models.Actor); ok {
			return actor
		}
	}
	return models.Actor{}
}

// requireAccount rejects guest callers.
func requireAccount(c *gin.Context) (models.Actor, bool) {
	actor := getActor(c)
	if actor.AccountID == uuid.Nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "Authentication required"})
		return actor, false
	}
	return actor, true
}

// requireAdmin rejects non-admin callers.
func requireAdmin(c *gin.Context) (models.Actor, bool) {
	actor := getActor(c)
	if !actor.Admin {
		c.JSON(http.StatusForbidden, gin.H{"error": "Admin required"})
		return actor, false
	}
	return actor, true
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
