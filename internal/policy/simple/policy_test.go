package simple

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllowTarget(t *testing.T) {
	t.Parallel()

	p := New("blocked.example")
	cases := []struct {
		url     string
		allowed bool
	}{
		{"https://shop.example", true},
		{"http://93.184.216.34/about", true},
		{"ftp://shop.example", false},
		{"/relative", false},
		{"http://localhost:8080", false},
		{"http://api.localhost", false},
		{"http://127.0.0.1", false},
		{"http://10.1.2.3", false},
		{"http://[::1]/", false},
		{"http://169.254.169.254/latest", false},
		{"https://blocked.example", false},
		{"https://www.Blocked.example", false},
		{"https://notblocked.example", true},
	}
	for _, tc := range cases {
		err := p.AllowTarget(tc.url)
		if tc.allowed {
			assert.NoError(t, err, tc.url)
		} else {
			assert.ErrorIs(t, err, ErrDisallowed, tc.url)
		}
	}
}

func TestAllowTargetPermitsPrivateWhenDisabled(t *testing.T) {
	t.Parallel()

	p := &Policy{}
	assert.NoError(t, p.AllowTarget("http://127.0.0.1:9000"))
	assert.ErrorIs(t, p.AllowTarget("mailto:a@b"), ErrDisallowed)
}
