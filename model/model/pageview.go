package model

import (
	"strings"

	"github.com/mssola/user_agent"
)

// Pageview - One observed page visit. Immutable once recorded by the
// ingestion path; the matcher consumes it read only.
type Pageview struct {
	Timestamp         int64  `json:"timestamp"`
	IPAddress         string `json:"ip_address"`
	SessionID         string `json:"session_id,omitempty"`
	CanvasFingerprint string `json:"canvas_fingerprint,omitempty"`
	GPUSignature      string `json:"gpu_signature,omitempty"`
	ScreenResolution  string `json:"screen_resolution,omitempty"`
	LandingPage       string `json:"landing_page"`
	Source            string `json:"source"`
	Medium            string `json:"medium,omitempty"`
	Campaign          string `json:"campaign,omitempty"`
	Content           string `json:"content,omitempty"`
	Term              string `json:"term,omitempty"`
	ReferrerURL       string `json:"referrer_url,omitempty"`
	UserAgent         string `json:"user_agent,omitempty"`
}

// PageviewIPIndex - Value of pageview_index_ip:<encodedIP>. Written
// pre-grouped by the ingestion path.
type PageviewIPIndex struct {
	Pageviews []Pageview `json:"pageviews"`
}

var botUATokens = []string{
	"bot", "crawler", "spider", "headless", "phantomjs", "selenium",
	"python-requests", "curl/", "wget/",
}

// DefaultBotScoreThreshold - Pageviews scoring at or above this are dropped
// from candidate sets.
const DefaultBotScoreThreshold = 3

// BotScore - Scored checklist, not a real detector. Each signal adds a
// point; automation tokens in the UA are decisive on their own.
func (p *Pageview) BotScore() int {
	score := 0

	if p.UserAgent == "" {
		score++
	} else {
		loweredUA := strings.ToLower(p.UserAgent)
		for _, token := range botUATokens {
			if strings.Contains(loweredUA, token) {
				score += DefaultBotScoreThreshold
				break
			}
		}

		ua := user_agent.New(p.UserAgent)
		if ua.Bot() {
			score += DefaultBotScoreThreshold
		}
		if browserName, _ := ua.Browser(); browserName == "" {
			score++
		}
	}

	if p.SessionID == "" && p.CanvasFingerprint == "" {
		score++
	}
	if p.ScreenResolution == "" {
		score++
	}

	return score
}

func (p *Pageview) IsLikelyBot() bool {
	return p.BotScore() >= DefaultBotScoreThreshold
}

// DeviceType - Coarse device class from the user agent, annotated on
// touchpoints for journey reporting.
func (p *Pageview) DeviceType() string {
	if p.UserAgent == "" {
		return "unknown"
	}

	ua := user_agent.New(p.UserAgent)
	if ua.Mobile() {
		return "mobile"
	}
	if ua.Bot() {
		return "bot"
	}
	return "desktop"
}
