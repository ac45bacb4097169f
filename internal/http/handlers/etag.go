package handlers

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/geocoder89/kidshub/internal/store"
	"github.com/gin-gonic/gin"
)

// respondPublicRows answers a read of a public table. The body gets a weak
// validator so catalogue clients can revalidate with If-None-Match instead
// of downloading the same page again.
func respondPublicRows(ctx *gin.Context, rows []store.Row) {
	body, err := json.Marshal(rows)
	if err != nil {
		ctx.JSON(http.StatusOK, rows)
		return
	}

	sum := sha256.Sum256(body)
	etag := `W/"` + base64.RawURLEncoding.EncodeToString(sum[:16]) + `"`

	ctx.Header("ETag", etag)
	ctx.Header("Cache-Control", "no-cache")

	if etagMatches(ctx.GetHeader("If-None-Match"), etag) {
		ctx.Status(http.StatusNotModified)
		return
	}
	ctx.Data(http.StatusOK, "application/json; charset=utf-8", body)
}

// etagMatches uses the weak comparison of If-None-Match.
func etagMatches(header, etag string) bool {
	header = strings.TrimSpace(header)
	if header == "" {
		return false
	}
	if header == "*" {
		return true
	}

	want := strings.TrimPrefix(etag, "W/")
	for _, candidate := range strings.Split(header, ",") {
		if strings.TrimPrefix(strings.TrimSpace(candidate), "W/") == want {
			return true
		}
	}
	return false
}
