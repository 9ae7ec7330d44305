package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// GeoResolver resolves a record's geo origin from the status-detail JSON
// endpoint. Every failure mode yields an empty string; geo enrichment is
// never fatal to a record.
type GeoResolver struct {
	client    *http.Client
	endpoint  string
	userAgent string
	cookie    string
	logger    *zap.Logger
}

// NewGeoResolver constructs a resolver sharing the session identity of the
// page fetcher.
func NewGeoResolver(cfg Config, logger *zap.Logger) *GeoResolver {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &GeoResolver{
		client:    &http.Client{Timeout: timeout},
		endpoint:  "https://weibo.com/ajax/statuses/show",
		userAgent: cfg.UserAgent,
		cookie:    cfg.Cookie,
		logger:    logger,
	}
}

// ResolveRegion looks up the region name for a post's secondary ID.
func (g *GeoResolver) ResolveRegion(ctx context.Context, secondaryID string) string {
	target := fmt.Sprintf("%s?id=%s&locale=zh-CN", g.endpoint, secondaryID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return ""
	}
	req.Header.Set("User-Agent", g.userAgent)
	if g.cookie != "" {
		req.Header.Set("Cookie", g.cookie)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		g.logger.Debug("geo lookup failed", zap.String("secondary_id", secondaryID), zap.Error(err))
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		g.logger.Debug("geo lookup rejected",
			zap.String("secondary_id", secondaryID),
			zap.Int("status", resp.StatusCode))
		return ""
	}

	var payload struct {
		RegionName string `json:"region_name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return ""
	}
	fields := strings.Fields(payload.RegionName)
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}
