// Package server exposes the admin HTTP API on gin.
package server
