package captcha

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"
)

// Timeout is the hard limit for a single acquisition, independent of the caller.
const Timeout = 2 * time.Minute

var (
	ErrNoBrowser   = errors.New("no browser runtime available")
	ErrTimeout     = errors.New("verification timed out")
	ErrAlreadyUsed = errors.New("captcha service already used")
	ErrEmptyToken  = errors.New("verification returned an empty token")
)

type Options struct {
	// BrowserPath is tried before the runtimes found on the host.
	BrowserPath string
	SiteKey     string
	Action      string
	// Origin is the backend origin the document is served under, e.g. https://example.com.
	Origin    string
	ScriptURL string
	Headless  bool
	Timeout   time.Duration
	// TempDir holds the ephemeral document and browser profile. Defaults to os.TempDir().
	TempDir string
}

// Service acquires a single verification token. A Service must not be reused.
type Service struct {
	logger *slog.Logger
	opts   Options
	lookup func() (string, bool)
	used   atomic.Bool

	// leakless makes the browser die with this process even on a hard crash.
	leakless bool
}

type Option func(*Service)

// WithBrowserLookup overrides the browser runtime discovery.
func WithBrowserLookup(fn func() (string, bool)) Option {
	return func(s *Service) { s.lookup = fn }
}

func NewService(logger *slog.Logger, opts Options, options ...Option) *Service {
	if opts.Timeout <= 0 {
		opts.Timeout = Timeout
	}
	if opts.ScriptURL == "" {
		opts.ScriptURL = "https://www.recaptcha.net/recaptcha/api.js"
	}
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}

	s := &Service{logger: logger, opts: opts, lookup: launcher.LookPath, leakless: true}
	for _, o := range options {
		o(s)
	}

	return s
}

// AcquireToken returns the token, or false when none could be acquired for any reason.
func (s *Service) AcquireToken(ctx context.Context) (string, bool) {
	token, err := s.Acquire(ctx)
	if err != nil {
		return "", false
	}

	return token, true
}

// Acquire is AcquireToken with the reason of a failed acquisition. ErrNoBrowser is
// logged at info level only.
func (s *Service) Acquire(ctx context.Context) (string, error) {
	if !s.used.CompareAndSwap(false, true) {
		return "", ErrAlreadyUsed
	}

	bin, found := s.findBrowser()
	if !found {
		s.logger.Info("No browser runtime found, verification challenge skipped")
		return "", ErrNoBrowser
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	if err := ctx.Err(); err != nil {
		return "", s.contextError(ctx)
	}

	docPath, err := writeDocument(s.opts.TempDir, s.opts)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := os.Remove(docPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("Error removing verification document", slog.Any("error", err))
		}
	}()

	profileDir, err := os.MkdirTemp(s.opts.TempDir, "koolaunch-browser-")
	if err != nil {
		return "", fmt.Errorf("error creating browser profile dir: %w", err)
	}

	l := launcher.New().
		Context(ctx).
		Bin(bin).
		Headless(s.opts.Headless).
		UserDataDir(profileDir).
		Leakless(s.leakless).
		Set("incognito").
		Set("disable-extensions").
		Set("no-first-run").
		Set("no-default-browser-check")
	defer func() {
		l.Kill()
		l.Cleanup()
		_ = os.RemoveAll(profileDir)
	}()

	controlURL, err := l.Launch()
	if err != nil {
		if ctx.Err() != nil {
			return "", s.contextError(ctx)
		}
		return "", fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return "", fmt.Errorf("failed to connect to browser: %w", err)
	}
	defer func() {
		_ = browser.Close()
	}()

	token, err := s.runChallenge(ctx, browser, docPath)
	if err != nil {
		if ctx.Err() != nil {
			return "", s.contextError(ctx)
		}
		return "", err
	}

	return token, nil
}

func (s *Service) findBrowser() (string, bool) {
	if s.opts.BrowserPath != "" {
		if _, err := os.Stat(s.opts.BrowserPath); err == nil {
			return s.opts.BrowserPath, true
		}
		s.logger.Warn("Configured browser not found, looking for another one", slog.String("path", s.opts.BrowserPath))
	}
	if s.lookup == nil {
		return "", false
	}

	return s.lookup()
}

func (s *Service) runChallenge(ctx context.Context, browser *rod.Browser, docPath string) (string, error) {
	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return "", fmt.Errorf("failed to create page: %w", err)
	}

	tokens := make(chan string, 1)
	var once sync.Once
	stopBinding, err := page.Expose(bindingName, func(v gson.JSON) (interface{}, error) {
		once.Do(func() { tokens <- v.Str() })
		return nil, nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to expose token binding: %w", err)
	}
	defer func() {
		_ = stopBinding()
	}()

	origin := strings.TrimSuffix(s.opts.Origin, "/")
	router := page.HijackRequests()
	err = router.Add(origin+"/*", proto.NetworkResourceTypeDocument, func(h *rod.Hijack) {
		content, err := os.ReadFile(docPath)
		if err != nil {
			h.Response.Fail(proto.NetworkErrorReasonFailed)
			return
		}
		h.Response.SetHeader("Content-Type", "text/html; charset=utf-8")
		h.Response.SetBody(content)
	})
	if err != nil {
		return "", fmt.Errorf("failed to register document route: %w", err)
	}
	go router.Run()
	defer func() {
		_ = router.Stop()
	}()

	if err := page.Navigate(origin + "/"); err != nil {
		return "", fmt.Errorf("failed to navigate to %s: %w", sanitizeURL(origin), err)
	}
	s.logger.Debug("Verification document loaded, waiting for token")

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case token := <-tokens:
		if token == "" {
			return "", ErrEmptyToken
		}
		return token, nil
	}
}

func (s *Service) contextError(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrTimeout
	}

	return ctx.Err()
}

func sanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.User = nil
	u.RawQuery = ""

	return u.String()
}
