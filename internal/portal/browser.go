package portal

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 Chrome/120.0.0.0 Safari/537.36"

const (
	selEmail    = "input[type='email'], input[name='email']"
	selPassword = "input[type='password'], input[name='password']"
	selSubmit   = "button[type='submit']"
)

// Session owns the one browser page used to drive the portal. The page and
// its filter state are a single shared mutable resource: every pipeline
// stage receives this same Session and nothing may hold a second handle.
type Session struct {
	Base string

	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
}

// Launch starts a Chrome instance and opens a stealth page. A launch failure
// is an environment problem (no usable Chrome on the host), not a run bug.
func Launch(baseURL string, headless bool) (*Session, error) {
	l := launcher.New().
		Headless(headless).
		Set("no-sandbox").
		Set("disable-setuid-sandbox").
		Set("window-size", "1280,800")

	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("chrome launch failed: %w", err)
	}

	browser := rod.New().ControlURL(u)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("browser connect failed: %w", err)
	}

	page, err := stealth.Page(browser)
	if err != nil {
		_ = browser.Close()
		l.Kill()
		return nil, fmt.Errorf("page open failed: %w", err)
	}

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width: 1280, Height: 800, DeviceScaleFactor: 1,
	}); err != nil {
		_ = browser.Close()
		l.Kill()
		return nil, fmt.Errorf("viewport setup failed: %w", err)
	}
	if err := (proto.NetworkSetUserAgentOverride{UserAgent: userAgent}).Call(page); err != nil {
		_ = browser.Close()
		l.Kill()
		return nil, fmt.Errorf("user agent setup failed: %w", err)
	}

	return &Session{Base: strings.TrimRight(baseURL, "/"), launcher: l, browser: browser, page: page}, nil
}

// Close tears the browser down. Safe to call more than once.
func (s *Session) Close() {
	if s.browser != nil {
		_ = s.browser.Close()
		s.browser = nil
	}
	if s.launcher != nil {
		s.launcher.Kill()
		s.launcher = nil
	}
}

// Login navigates to the portal and authenticates. The post-login redirect is
// not deterministic (some portals finish auth via XHR with no navigation
// event), so the navigation wait is best-effort and followed by a settle
// delay. A missing credential field within its timeout is fatal.
func (s *Session) Login(email, password string, settle time.Duration) error {
	if err := s.page.Timeout(25 * time.Second).Navigate(s.Base); err != nil {
		return &AutomationError{Step: "navigate login", Err: err}
	}
	_ = s.page.Timeout(25 * time.Second).WaitLoad()

	emailEl, err := s.page.Timeout(10 * time.Second).Element(selEmail)
	if err != nil {
		return &AutomationError{Step: "wait email field", Diagnostic: s.Diagnostics(), Err: err}
	}
	passEl, err := s.page.Timeout(10 * time.Second).Element(selPassword)
	if err != nil {
		return &AutomationError{Step: "wait password field", Diagnostic: s.Diagnostics(), Err: err}
	}

	if err := emailEl.Input(email); err != nil {
		return &AutomationError{Step: "type email", Err: err}
	}
	if err := passEl.Input(password); err != nil {
		return &AutomationError{Step: "type password", Err: err}
	}

	wait := s.page.Timeout(15 * time.Second).WaitNavigation(proto.PageLifecycleEventNameNetworkAlmostIdle)
	if submitEl, err := s.page.Timeout(5 * time.Second).Element(selSubmit); err == nil {
		if err := submitEl.Click(proto.InputMouseButtonLeft, 1); err != nil {
			return &AutomationError{Step: "submit login", Err: err}
		}
	} else if btn, err := s.page.Timeout(2 * time.Second).Element("button"); err == nil {
		if err := btn.Click(proto.InputMouseButtonLeft, 1); err != nil {
			return &AutomationError{Step: "submit login", Err: err}
		}
	} else {
		return &AutomationError{Step: "find submit button", Diagnostic: s.Diagnostics(), Err: err}
	}
	wait() // navigation timeout tolerated
	time.Sleep(settle)

	return nil
}

// Diagnostics captures the current URL, title and a short inventory of
// visible inputs and buttons, for attaching to automation errors.
func (s *Session) Diagnostics() string {
	info, err := s.page.Info()
	url, title := "?", "?"
	if err == nil {
		url, title = info.URL, info.Title
	}

	inventory := "?"
	res, err := s.page.Eval(`() => {
		const out = [];
		document.querySelectorAll("input, button").forEach((el) => {
			const d = el.tagName.toLowerCase()
				+ (el.type ? "[" + el.type + "]" : "")
				+ (el.name ? "#" + el.name : "");
			out.push(d);
		});
		return out.slice(0, 30).join(", ");
	}`)
	if err == nil {
		inventory = res.Value.Str()
	}
	return fmt.Sprintf("url=%s title=%q controls=[%s]", url, title, inventory)
}

// Cookies exports the authenticated session cookies so HTTP reads against the
// portal's internal endpoints can reuse the browser login.
func (s *Session) Cookies() ([]*http.Cookie, error) {
	raw, err := s.browser.GetCookies()
	if err != nil {
		return nil, err
	}
	cookies := make([]*http.Cookie, 0, len(raw))
	for _, c := range raw {
		cookies = append(cookies, &http.Cookie{
			Name:   c.Name,
			Value:  c.Value,
			Domain: c.Domain,
			Path:   c.Path,
		})
	}
	return cookies, nil
}

// Screenshot returns a base64 JPEG of the current page, or "" when capture
// fails (captures are advisory only).
func (s *Session) Screenshot() string {
	data, err := s.page.Timeout(10*time.Second).Screenshot(false, &proto.PageCaptureScreenshot{
		Format:  proto.PageCaptureScreenshotFormatJpeg,
		Quality: gson.Int(80),
	})
	if err != nil {
		return ""
	}
	return base64.StdEncoding.EncodeToString(data)
}

// URL reports the page's current location, best-effort.
func (s *Session) URL() string {
	info, err := s.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}
