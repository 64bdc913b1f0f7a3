package sunshine

import "testing"

func TestMediaPortDerivation(t *testing.T) {
	cases := []struct {
		channel string
		want    int
	}{
		{"video", 47999},
		{"audio", 48000},
		{"control", 47998},
	}
	for _, c := range cases {
		if got := MediaPort(47990, c.channel); got != c.want {
			t.Errorf("MediaPort(47990, %q) = %d; want %d", c.channel, got, c.want)
		}
	}
}

func TestIdentityPortMapper(t *testing.T) {
	if got := IdentityPortMapper(PortHTTPS); got != PortHTTPS {
		t.Errorf("IdentityPortMapper(PortHTTPS) = %d; want %d", got, PortHTTPS)
	}
}
