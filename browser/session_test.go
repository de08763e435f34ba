package browser

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/use-agent/insightx/config"
	"github.com/use-agent/insightx/rules"
)

func TestUserAgentPicksFromPool(t *testing.T) {
	r := rules.Default()
	var asked []int
	m := &Manager{rules: r, pick: func(n int) int {
		asked = append(asked, n)
		return n - 1
	}}

	assert.Equal(t, r.UserAgents[len(r.UserAgents)-1], m.userAgent())
	assert.Equal(t, []int{len(r.UserAgents)}, asked)
}

func TestUserAgentDefaultRandomStaysInPool(t *testing.T) {
	r := rules.Default()
	m := &Manager{rules: r, pick: rand.IntN}
	for i := 0; i < 50; i++ {
		assert.Contains(t, r.UserAgents, m.userAgent())
	}
}

func TestAcceptLanguage(t *testing.T) {
	r := rules.Default()
	m := &Manager{rules: r}
	assert.Equal(t, r.AcceptLanguage, m.acceptLanguage())

	m.cfg.AcceptLanguage = "en-US"
	assert.Equal(t, "en-US", m.acceptLanguage())
}

func TestWindowSize(t *testing.T) {
	assert.Equal(t, "1920,1080", windowSize(config.BrowserConfig{}))
	assert.Equal(t, "1280,800", windowSize(config.BrowserConfig{ViewportWidth: 1280, ViewportHeight: 800}))
}
