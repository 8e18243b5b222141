package browser

import "testing"

func TestParseStealth(t *testing.T) {
	cases := map[string]StealthLevel{
		"headless": LevelHeadless,
		"headful":  LevelHeadful,
		"":         LevelHeadless,
		"bogus":    LevelHeadless,
	}
	for in, want := range cases {
		if got := ParseStealth(in, LevelHeadless); got != want {
			t.Errorf("ParseStealth(%q) = %v, want %v", in, got, want)
		}
	}
	if got := ParseStealth("", LevelHeadful); got != LevelHeadful {
		t.Errorf("default not honoured: %v", got)
	}
}

func TestShouldBlock(t *testing.T) {
	set := map[string]bool{"images": true, "fonts": true, "xhr": true}
	cases := map[string]bool{
		"Image":      true,
		"Font":       true,
		"Stylesheet": false,
		"Media":      false,
		"XHR":        true,
		"Script":     false,
	}
	for typ, want := range cases {
		if got := shouldBlock(set, typ); got != want {
			t.Errorf("shouldBlock(%q) = %v, want %v", typ, got, want)
		}
	}
}

func TestConfigDefaults(t *testing.T) {
	var c Config
	c.defaults()
	if c.Stealth != LevelHeadless || c.XvfbDisplay != ":99" || c.RecycleInterval == 0 || c.Logger == nil {
		t.Fatalf("defaults: %+v", c)
	}
}
