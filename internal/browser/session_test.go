package browser

import (
	"os"
	"path/filepath"
	"testing"
)

func writeState(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "login_state.json")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write state: %v", err)
	}
	return path
}

func TestLoadLoginStatePlainCookies(t *testing.T) {
	path := writeState(t, `{"cookies":[
		{"name":"cookie2","value":"abc","domain":".goofish.com","path":"/","expires":1893456000,"httpOnly":true,"secure":true,"sameSite":"Lax"}
	]}`)

	state, err := LoadLoginState(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(state.Cookies) != 1 {
		t.Fatalf("got %d cookies", len(state.Cookies))
	}
	c := state.Cookies[0]
	if c.Name != "cookie2" || c.Domain != ".goofish.com" || !c.HTTPOnly {
		t.Fatalf("cookie = %+v", c)
	}
	// 没有环境快照时使用仿真默认值
	if state.UserAgent != defaultUserAgent {
		t.Fatalf("ua = %q", state.UserAgent)
	}
	if state.ViewWidth != defaultViewportWidth || state.ScaleFactor != defaultScaleFactor {
		t.Fatalf("viewport = %dx%d@%.3f", state.ViewWidth, state.ViewHeight, state.ScaleFactor)
	}
}

func TestLoadLoginStateSnapshotOverrides(t *testing.T) {
	path := writeState(t, `{
		"cookies":[{"name":"t","value":"v","domain":".goofish.com","path":"/"}],
		"headers":{"User-Agent":"CustomUA/1.0","Accept-Language":"en-US,en;q=0.9","Cookie":"secret","Referer":"https://www.goofish.com/"},
		"env":{
			"navigator":{"language":"en-US","maxTouchPoints":5},
			"screen":{"width":390,"height":844,"devicePixelRatio":3},
			"intl":{"timeZone":"Asia/Hong_Kong"}
		}
	}`)

	state, err := LoadLoginState(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if state.UserAgent != "CustomUA/1.0" {
		t.Fatalf("ua = %q", state.UserAgent)
	}
	if state.Locale != "en-US" {
		t.Fatalf("locale = %q", state.Locale)
	}
	if state.Timezone != "Asia/Hong_Kong" {
		t.Fatalf("timezone = %q", state.Timezone)
	}
	if state.ViewWidth != 390 || state.ViewHeight != 844 || state.ScaleFactor != 3 {
		t.Fatalf("viewport = %dx%d@%.1f", state.ViewWidth, state.ViewHeight, state.ScaleFactor)
	}
	if _, ok := state.ExtraHeaders["Cookie"]; ok {
		t.Fatal("cookie header must not leak into extra headers")
	}
	if _, ok := state.ExtraHeaders["User-Agent"]; ok {
		t.Fatal("user-agent handled separately, must not repeat in extra headers")
	}
	if state.ExtraHeaders["Referer"] != "https://www.goofish.com/" {
		t.Fatalf("extra headers = %v", state.ExtraHeaders)
	}
}

func TestLoadLoginStateMissingFile(t *testing.T) {
	if _, err := LoadLoginState(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
