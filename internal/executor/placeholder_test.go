package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"gamesmith/internal/session"
)

func TestSubstituteStyleForms(t *testing.T) {
	urls := map[string]string{"ship": "https://x/ship.png"}
	names := []string{"ship"}

	cases := []struct {
		name string
		in   string
		want string
	}{
		{"url single quoted png", `background: url('ship.png');`, `background: url('https://x/ship.png');`},
		{"url double quoted", `background: url("ship");`, `background: url('https://x/ship.png');`},
		{"url bare", `background: url(ship.png);`, `background: url('https://x/ship.png');`},
		{"url curly", `background: url({{ship}});`, `background: url('https://x/ship.png');`},
		{"standalone quoted becomes wrapped", `background: 'ship.png';`, `background: url('https://x/ship.png');`},
		{"standalone curly becomes wrapped", `background: {{ship}};`, `background: url('https://x/ship.png');`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := session.Fragments{Style: tc.in}
			substituteFragments(&f, names, urls)
			assert.Equal(t, tc.want, f.Style)
		})
	}
}

func TestSubstituteDoesNotDoubleWrap(t *testing.T) {
	f := session.Fragments{Style: `#game { background: url('ship.png') no-repeat; }`}
	substituteFragments(&f, []string{"ship"}, map[string]string{"ship": "https://x/ship.png"})
	assert.Equal(t, `#game { background: url('https://x/ship.png') no-repeat; }`, f.Style)
	assert.NotContains(t, f.Style, "url(url(")
}

func TestSubstituteRespectsNameBoundaries(t *testing.T) {
	urls := map[string]string{"ship": "https://x/ship.png"}
	names := []string{"ship"}

	f := session.Fragments{
		Behavior: `const a = 'ship2'; const b = "shipment.png"; const c = shipCount;`,
		Style:    `background: url(ship2.png);`,
	}
	substituteFragments(&f, names, urls)

	assert.Equal(t, `const a = 'ship2'; const b = "shipment.png"; const c = shipCount;`, f.Behavior,
		"a different asset name sharing a prefix must not be rewritten")
	assert.Equal(t, `background: url(ship2.png);`, f.Style)
}

func TestSubstituteMultipleAssetsInOrder(t *testing.T) {
	urls := map[string]string{
		"ship": "https://x/ship.png",
		"rock": "https://x/rock.png",
	}
	f := session.Fragments{Behavior: `load('ship'); load('rock');`}
	substituteFragments(&f, []string{"ship", "rock"}, urls)
	assert.Equal(t, `load('https://x/ship.png'); load('https://x/rock.png');`, f.Behavior)
}

func TestRefIsAllowed(t *testing.T) {
	allowed := map[string]bool{"ship": true}

	assert.True(t, refIsAllowed("https://cdn.test/lib.js", nil), "network scripts are hosted, not bundled")
	assert.True(t, refIsAllowed("data:image/png;base64,AAAA", nil))
	assert.True(t, refIsAllowed("blob:abc-123", nil))
	assert.True(t, refIsAllowed("#section", nil))
	assert.True(t, refIsAllowed("", nil))
	assert.True(t, refIsAllowed("/assets/s1/ship.png", nil))
	assert.True(t, refIsAllowed("ship.png", allowed))
	assert.True(t, refIsAllowed("SHIP.PNG", map[string]bool{"SHIP": true}))

	assert.False(t, refIsAllowed("game.js", allowed))
	assert.False(t, refIsAllowed("./game.js", allowed))
	assert.False(t, refIsAllowed("style.css", allowed))
	assert.False(t, refIsAllowed("enemy.png", allowed))
	assert.False(t, refIsAllowed("../secrets.txt", allowed))
}
